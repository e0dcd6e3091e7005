package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestHandle_CreatesParentDirs(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "deeper", "asset.bin")

	data := []byte("vaulta asset bytes")
	if err := Handle(t.Context(), bytes.NewReader(data), int64(len(data)), dest, discard); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("content = %q, want %q", got, data)
	}

	assertNoTempFiles(t, filepath.Dir(dest))
}

func TestHandle_UnknownLength(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "asset.bin")

	if err := Handle(t.Context(), strings.NewReader("abc"), -1, dest, discard, WithProgress()); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestHandle_ContentLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "asset.bin")

	err := Handle(t.Context(), strings.NewReader("short"), 100, dest, discard)
	if !errors.Is(err, ErrContentLengthMismatch) {
		t.Fatalf("expected ErrContentLengthMismatch, got %v", err)
	}

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination must not exist after a failed download")
	}
	assertNoTempFiles(t, dir)
}

func TestHandle_Checksum(t *testing.T) {
	data := []byte("checksummed")
	sum := sha256.Sum256(data)

	testCases := []struct {
		name     string
		expected string
		expErr   error
	}{
		{name: "match", expected: hex.EncodeToString(sum[:])},
		{name: "mismatch", expected: strings.Repeat("0", 64), expErr: ErrChecksumMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "asset.bin")
			err := Handle(t.Context(), bytes.NewReader(data), int64(len(data)), dest, discard,
				WithChecksum(sha256.New(), tc.expected),
			)
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("exp err %v; got: %v", tc.expErr, err)
			}
		})
	}
}

func TestHandle_SkipExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "asset.bin")
	if err := os.WriteFile(dest, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Handle(t.Context(), strings.NewReader("new"), 3, dest, discard, WithSkipExisting()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := os.ReadFile(dest)
	if string(got) != "old" {
		t.Errorf("existing file overwritten: %q", got)
	}
}

func TestHandle_Cancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := Handle(ctx, strings.NewReader("data"), 4, filepath.Join(dir, "asset.bin"), discard)
	if !errors.Is(err, ErrDownloadCancelled) {
		t.Fatalf("expected ErrDownloadCancelled, got %v", err)
	}
	assertNoTempFiles(t, dir)
}

func TestHandle_BrokenBodyKeepsDestination(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "asset.bin")
	if err := os.WriteFile(dest, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	cause := errors.New("connection reset")
	body := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(cause))

	err := Handle(t.Context(), body, -1, dest, discard)
	if !errors.Is(err, cause) {
		t.Fatalf("expected read error, got %v", err)
	}

	got, _ := os.ReadFile(dest)
	if string(got) != "previous" {
		t.Errorf("destination changed by a failed download: %q", got)
	}
	assertNoTempFiles(t, dir)
}

func TestOptions_Validation(t *testing.T) {
	var opts options
	if err := WithChecksum(nil, "abc")(&opts); err == nil {
		t.Error("expected error for nil hash")
	}
	if err := WithChecksum(sha256.New(), "")(&opts); err == nil {
		t.Error("expected error for empty checksum")
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, ".vaulta-dl-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("staging files left behind: %v", matches)
	}
}

func TestHandle_ProgressReport(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	dest := filepath.Join(t.TempDir(), "asset.bin")
	data := bytes.Repeat([]byte("x"), 2048)

	if err := Handle(t.Context(), bytes.NewReader(data), int64(len(data)), dest, logger, WithProgress()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	out := logs.String()
	for _, want := range []string{"asset transfer complete", "written=\"2.0 KB\"", "total=\"2.0 KB\"", "percent=100.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestProgress_PeriodicAndUnknownTotal(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	p := newProgress(io.Discard, logger, "asset.bin", -1)
	p.every = 0

	if _, err := p.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}

	out := logs.String()
	if !strings.Contains(out, "msg=\"asset transfer\"") {
		t.Errorf("expected a periodic report, got %q", out)
	}
	if strings.Contains(out, "total=") || strings.Contains(out, "percent=") {
		t.Errorf("unknown totals must not be reported, got %q", out)
	}
}

func TestHandle_SHA256IgnoresCase(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "asset.bin")

	sum := sha256.Sum256([]byte("abc"))
	expected := strings.ToUpper(hex.EncodeToString(sum[:]))

	if err := Handle(t.Context(), strings.NewReader("abc"), 3, dest, discard, WithSHA256(expected)); err != nil {
		t.Fatalf("handle: %v", err)
	}
}
