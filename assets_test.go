package vaulta_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	vaulta "github.com/vaulta/vaulta-go"
	"github.com/vaulta/vaulta-go/client"
	"github.com/vaulta/vaulta-go/errs"
	"github.com/vaulta/vaulta-go/model"
	"github.com/vaulta/vaulta-go/sign"
)

type trackedFile struct {
	io.ReadCloser
	closed *atomic.Bool
}

func (f trackedFile) Close() error {
	f.closed.Store(true)
	return f.ReadCloser.Close()
}

func trackOpens(t *testing.T) *atomic.Bool {
	t.Helper()

	var closed atomic.Bool
	restore := vaulta.SetOpenFile(func(path string) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return trackedFile{ReadCloser: f, closed: &closed}, nil
	})
	t.Cleanup(restore)

	return &closed
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestUploadAsset_FromPath(t *testing.T) {
	vc, srv := newTest(t, nil)
	closed := trackOpens(t)

	path := writeFile(t, "report.txt", "quarterly numbers")

	got, err := vc.UploadAsset(t.Context(), vaulta.FromPath(path),
		vaulta.WithName("Q3 report"),
		vaulta.WithLabels(model.Labels{"env": "prod", "year": 2024}),
	)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if !closed.Load() {
		t.Error("file must be closed after the call")
	}

	if got.Name != "Q3 report" || got.Filename != "report.txt" {
		t.Errorf("upload response = %+v", got)
	}
	if got.MimeType != "text/plain; charset=utf-8" {
		t.Errorf("mime type = %q", got.MimeType)
	}
	if got.Size != int64(len("quarterly numbers")) {
		t.Errorf("size = %d", got.Size)
	}
	if diff := cmp.Diff(model.Labels{"env": "prod", "year": float64(2024)}, got.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	ct := srv.Requests()[0].Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data; boundary=") {
		t.Errorf("content type = %q, want multipart", ct)
	}
}

func TestUploadAsset_ClosesFileOnFailure(t *testing.T) {
	vc, srv := newTest(t, nil)
	closed := trackOpens(t)

	srv.FailNext(1, http.StatusBadRequest, 0)

	_, err := vc.UploadAsset(t.Context(), vaulta.FromPath(writeFile(t, "a.bin", "x")))
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if !closed.Load() {
		t.Error("file must be closed after a failed call")
	}
}

func TestUploadAsset_MissingFile(t *testing.T) {
	vc, srv := newTest(t, nil)

	_, err := vc.UploadAsset(t.Context(), vaulta.FromPath(filepath.Join(t.TempDir(), "nope.bin")))
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the stat error in the chain, got %v", err)
	}

	if n := len(srv.Requests()); n != 0 {
		t.Errorf("requests = %d, want none", n)
	}
}

func TestUploadAsset_LocalFailuresAreTyped(t *testing.T) {
	permission := writeFile(t, "locked.bin", "x")

	testCases := []struct {
		name  string
		src   func(t *testing.T) vaulta.Source
		cause error
	}{
		{
			name: "directory",
			src: func(t *testing.T) vaulta.Source {
				return vaulta.FromPath(t.TempDir())
			},
		},
		{
			name: "open fails",
			src: func(t *testing.T) vaulta.Source {
				t.Cleanup(vaulta.SetOpenFile(func(string) (io.ReadCloser, error) {
					return nil, os.ErrPermission
				}))
				return vaulta.FromPath(permission)
			},
			cause: os.ErrPermission,
		},
		{
			name: "read fails",
			src: func(t *testing.T) vaulta.Source {
				return vaulta.FromReader(failingReader{}, "broken.bin")
			},
			cause: errBrokenRead,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			vc, srv := newTest(t, nil)

			_, err := vc.UploadAsset(t.Context(), tc.src(t))

			var e *errs.Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *errs.Error, got %T: %v", err, err)
			}
			if !errors.Is(err, errs.ErrVaulta) || !errors.Is(err, errs.ErrValidation) {
				t.Errorf("expected ErrVaulta and ErrValidation, got %v", err)
			}
			if tc.cause != nil && !errors.Is(err, tc.cause) {
				t.Errorf("expected %v in the chain, got %v", tc.cause, err)
			}
			if n := len(srv.Requests()); n != 0 {
				t.Errorf("requests = %d, want none", n)
			}
		})
	}
}

var errBrokenRead = errors.New("disk on fire")

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errBrokenRead }

func TestUploadAsset_FromReaderRetried(t *testing.T) {
	vc, srv := newTest(t, nil)
	srv.FailNext(1, http.StatusBadGateway, 0)

	got, err := vc.UploadAsset(t.Context(), vaulta.FromReader(strings.NewReader("streamed"), ""))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if got.Filename != "upload" {
		t.Errorf("filename = %q, want default", got.Filename)
	}
	if got.Size != int64(len("streamed")) {
		t.Errorf("size = %d, the replayed body must be complete", got.Size)
	}
	if n := len(srv.Requests()); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestUploadAsset_NilReader(t *testing.T) {
	vc, _ := newTest(t, nil)

	if _, err := vc.UploadAsset(t.Context(), vaulta.FromReader(nil, "x")); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchAssets(t *testing.T) {
	vc, srv := newTest(t, nil)
	ctx := t.Context()

	for i, env := range []string{"prod", "dev", "prod"} {
		_, err := vc.UploadAsset(ctx, vaulta.FromReader(strings.NewReader("asset"), "f.txt"),
			vaulta.WithLabels(model.Labels{"env": env, "n": i}))
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	got, err := vc.SearchAssets(ctx, model.AssetSearch{Labels: model.Labels{"env": "prod"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2", len(got))
	}

	page, err := vc.SearchAssets(ctx, model.AssetSearch{Labels: model.Labels{"env": "prod"}, Skip: 1, Limit: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page) != 1 || page[0].Labels["n"] != float64(2) {
		t.Errorf("page = %+v", page)
	}

	last := srv.Requests()[len(srv.Requests())-1]
	if last.Query.Get("skip") != "1" || last.Query.Get("limit") != "1" {
		t.Errorf("query = %v", last.Query)
	}
}

func TestSearchAssets_EmptyLabels(t *testing.T) {
	vc, srv := newTest(t, nil)

	for name, labels := range map[string]model.Labels{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			_, err := vc.SearchAssets(t.Context(), model.AssetSearch{Labels: labels})
			if !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if n := len(srv.Requests()); n != 0 {
		t.Errorf("requests = %d, want none", n)
	}
}

func TestDownloadAsset(t *testing.T) {
	vc, srv := newTest(t, nil)
	ctx := t.Context()

	body := []byte("\x00binary\xffcontent")
	up, err := vc.UploadAsset(ctx, vaulta.FromReader(bytes.NewReader(body), "blob.bin"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	token, ok := srv.DownloadToken(up.AssetID)
	if !ok {
		t.Fatal("no download token")
	}

	if got := vc.AssetDownloadURL(token); got != up.URL {
		t.Errorf("download url = %q, want %q", got, up.URL)
	}

	t.Run("inMemory", func(t *testing.T) {
		got, err := vc.DownloadAsset(ctx, token)
		if err != nil {
			t.Fatalf("download: %v", err)
		}
		if !bytes.Equal(got.Data, body) || got.Path != "" {
			t.Errorf("fetched = %+v", got)
		}
	})

	t.Run("saveTo", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "deep", "er", "blob.bin")

		got, err := vc.DownloadAsset(ctx, token, vaulta.SaveTo(dest))
		if err != nil {
			t.Fatalf("download: %v", err)
		}
		if got.Path != dest || got.Data != nil {
			t.Errorf("fetched = %+v", got)
		}

		onDisk, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(onDisk, body) {
			t.Errorf("on disk = %q, want %q", onDisk, body)
		}
	})

	t.Run("unknownToken", func(t *testing.T) {
		_, err := vc.DownloadAsset(ctx, "missing")

		var e *errs.Error
		if !errors.As(err, &e) {
			t.Fatalf("expected *errs.Error, got %v", err)
		}
		if e.Kind != errs.KindGeneric || e.StatusCode != http.StatusNotFound {
			t.Errorf("kind = %v status = %d", e.Kind, e.StatusCode)
		}
		if e.Message != "Download failed: 404" {
			t.Errorf("message = %q", e.Message)
		}
	})
}

func TestDownloadAsset_Verification(t *testing.T) {
	vc, srv := newTest(t, nil)
	ctx := t.Context()

	body := []byte("checked content")
	up, err := vc.UploadAsset(ctx, vaulta.FromReader(bytes.NewReader(body), "c.txt"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	token, _ := srv.DownloadToken(up.AssetID)

	sum := sha256.Sum256(body)
	good := hex.EncodeToString(sum[:])
	bad := strings.Repeat("0", 64)

	if _, err := vc.DownloadAsset(ctx, token, vaulta.VerifySHA256(strings.ToUpper(good))); err != nil {
		t.Errorf("in memory, matching digest: %v", err)
	}

	_, err = vc.DownloadAsset(ctx, token, vaulta.VerifySHA256(bad))
	if !errors.Is(err, client.ErrChecksumMismatch) || !strings.Contains(err.Error(), "Download failed: checksum mismatch") {
		t.Errorf("in memory, wrong digest: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "c.txt")
	if _, err := vc.DownloadAsset(ctx, token, vaulta.SaveTo(dest), vaulta.VerifySHA256(bad)); !errors.Is(err, client.ErrChecksumMismatch) {
		t.Errorf("saved, wrong digest: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("a file failing verification must not be kept")
	}

	if _, err := vc.DownloadAsset(ctx, token, vaulta.SaveTo(dest), vaulta.VerifySHA256(good), vaulta.ReportProgress()); err != nil {
		t.Fatalf("saved, matching digest: %v", err)
	}

	if err := os.WriteFile(dest, []byte("local edit"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := vc.DownloadAsset(ctx, token, vaulta.SaveTo(dest), vaulta.SkipExisting()); err != nil {
		t.Fatalf("skip existing: %v", err)
	}
	if b, _ := os.ReadFile(dest); string(b) != "local edit" {
		t.Errorf("existing file was overwritten: %q", b)
	}
}

func TestServeAsset(t *testing.T) {
	vc, _ := newTest(t, nil)
	ctx := t.Context()

	c, err := vc.CreateClient(ctx, model.ClientCreate{Name: "Acme", ClientID: "acme"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	up, err := vc.UploadAsset(ctx, vaulta.FromReader(strings.NewReader("served"), "s.txt"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	signed := vc.SignedServeURL(up.AssetID.String(), "acme", c.Secret, 0)
	payload := strings.TrimPrefix(signed, vc.BaseURL()+sign.ServePath)

	tok, err := sign.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if until := time.Until(tok.ExpiresAt); until < 59*time.Minute || until > 61*time.Minute {
		t.Errorf("default expiry = %v, want about an hour", until)
	}

	got, err := vc.ServeAsset(ctx, payload)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if string(got.Data) != "served" {
		t.Errorf("data = %q", got.Data)
	}

	forged := vc.SignedServeURL(up.AssetID.String(), "acme", "wrong", time.Minute)
	_, err = vc.ServeAsset(ctx, strings.TrimPrefix(forged, vc.BaseURL()+sign.ServePath))
	if errs.StatusCode(err) != http.StatusForbidden || !strings.Contains(err.Error(), "Serve failed: 403") {
		t.Errorf("forged link: %v", err)
	}
}

func TestDeleteAsset(t *testing.T) {
	vc, _ := newTest(t, nil)
	ctx := t.Context()

	up, err := vc.UploadAsset(ctx, vaulta.FromReader(strings.NewReader("x"), "x.txt"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	ok, err := vc.DeleteAsset(ctx, up.AssetID)
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}

	if _, err := vc.DeleteAsset(ctx, up.AssetID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
