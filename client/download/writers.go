package download

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"time"

	"github.com/vaulta/vaulta-go/model"
)

// checksum hashes everything written to it.
type checksum struct {
	hash     hash.Hash
	expected string
}

func (c *checksum) Write(p []byte) (int, error) {
	return c.hash.Write(p)
}

// verify is a no-op on a nil receiver.
func (c *checksum) verify() error {
	if c == nil {
		return nil
	}

	if got := hex.EncodeToString(c.hash.Sum(nil)); got != c.expected {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("digest %s, want %s", got, c.expected),
		}
	}

	return nil
}

// progress counts bytes on their way to w. total is negative when the server
// sent no Content-Length.
type progress struct {
	w       io.Writer
	logger  *slog.Logger
	path    string
	written int64
	total   int64
	start   time.Time
	last    time.Time
	every   time.Duration
}

func newProgress(w io.Writer, logger *slog.Logger, path string, total int64) *progress {
	now := time.Now()
	return &progress{w: w, logger: logger, path: path, total: total, start: now, last: now, every: time.Second}
}

func (p *progress) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)

	if now := time.Now(); now.Sub(p.last) >= p.every {
		p.last = now
		p.report("asset transfer")
	}

	return n, err
}

// done logs the final state once the body has been consumed.
func (p *progress) done() {
	p.report("asset transfer complete")
}

func (p *progress) report(msg string) {
	elapsed := time.Since(p.start)

	attrs := []any{
		"path", p.path,
		"written", model.FormatSize(p.written),
		"elapsed", elapsed.Round(time.Millisecond),
	}
	if p.total >= 0 {
		attrs = append(attrs, "total", model.FormatSize(p.total))
		if p.total > 0 {
			attrs = append(attrs, "percent", fmt.Sprintf("%.1f", float64(p.written)/float64(p.total)*100))
		}
	}
	if s := elapsed.Seconds(); s > 0 {
		attrs = append(attrs, "rate", model.FormatSize(int64(float64(p.written)/s))+"/s")
	}

	p.logger.Info(msg, attrs...)
}
