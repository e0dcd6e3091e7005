package vaulta

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vaulta/vaulta-go/errs"
)

// defaultFilename is sent for reader sources given no name.
const defaultFilename = "upload"

// openFile is swapped in tests to observe closing.
var openFile = func(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Source is the content of an upload: either a file on disk ([FromPath]) or a
// caller-owned stream ([FromReader]).
type Source struct {
	path     string
	r        io.Reader
	filename string
}

// FromPath uploads the file at path. The file is opened for the duration of
// the call and closed before it returns.
func FromPath(path string) Source {
	return Source{path: path, filename: filepath.Base(path)}
}

// FromReader uploads the content of r under filename. The caller keeps
// ownership of r; it is read to the end but never closed.
func FromReader(r io.Reader, filename string) Source {
	if filename == "" {
		filename = defaultFilename
	}

	return Source{r: r, filename: filename}
}

// open returns the content of s and a release func that must be called once
// the content has been consumed.
func (s Source) open() (io.Reader, func(), error) {
	if s.path == "" {
		if s.r == nil {
			return nil, nil, errs.Validation("Upload source has no content", nil)
		}

		return s.r, func() {}, nil
	}

	details := map[string]any{"path": s.path}

	info, err := os.Stat(s.path)
	if err != nil {
		e := errs.Validation(fmt.Sprintf("File not found: %s", s.path), details)
		e.Err = err
		return nil, nil, e
	}
	if info.IsDir() {
		return nil, nil, errs.Validation(fmt.Sprintf("Not a regular file: %s", s.path), details)
	}

	f, err := openFile(s.path)
	if err != nil {
		e := errs.Validation(fmt.Sprintf("Cannot open file: %s", s.path), details)
		e.Err = err
		return nil, nil, e
	}

	return f, func() { _ = f.Close() }, nil
}
