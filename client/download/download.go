package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Handle streams body to a hidden staging file beside destPath, creating the
// directory if missing, and moves it onto destPath once the length and
// checksum checks pass. A failed transfer removes the staging file and never
// touches destPath.
func Handle(ctx context.Context, body io.Reader, contentLength int64, destPath string, logger *slog.Logger, optFns ...Option) error {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return fmt.Errorf("applying option: %w", err)
		}
	}

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			logger.Info("asset already on disk, not downloading", "path", destPath)
			return nil
		}
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	staging, err := os.CreateTemp(dir, ".vaulta-dl-*")
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := staging.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("closing abandoned staging file", "path", staging.Name(), "error", err)
		}
		if err := os.Remove(staging.Name()); err != nil {
			logger.Error("removing abandoned staging file", "path", staging.Name(), "error", err)
		}
	}()

	n, err := stream(ctx, staging, body, contentLength, destPath, logger, &opts)
	if err != nil {
		return err
	}

	if err := staging.Sync(); err != nil {
		return fmt.Errorf("flushing staging file: %w", err)
	}
	if err := staging.Close(); err != nil {
		return fmt.Errorf("closing staging file: %w", err)
	}
	if err := os.Rename(staging.Name(), destPath); err != nil {
		return fmt.Errorf("moving staging file into place: %w", err)
	}
	committed = true

	logger.Debug("asset saved to disk", "path", destPath, "bytes", n)

	return nil
}

// stream copies body into dst through the checksum and progress writers and
// checks the transfer against contentLength and the expected digest.
func stream(ctx context.Context, dst io.Writer, body io.Reader, contentLength int64, destPath string, logger *slog.Logger, opts *options) (int64, error) {
	if opts.checksum != nil {
		dst = io.MultiWriter(dst, opts.checksum)
	}

	var prog *progress
	if opts.progress {
		prog = newProgress(dst, logger, destPath, contentLength)
		dst = prog
	}

	n, err := io.Copy(dst, &contextReader{ctx: ctx, r: body})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return n, fmt.Errorf("%w: %w", ErrDownloadCancelled, err)
		}

		return n, fmt.Errorf("reading asset content: %w", err)
	}

	if contentLength >= 0 && n != contentLength {
		return n, &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", contentLength, n),
		}
	}

	if err := opts.checksum.verify(); err != nil {
		return n, err
	}

	if prog != nil {
		prog.done()
	}

	return n, nil
}
