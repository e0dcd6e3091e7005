package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Form is a multipart/form-data request body.
type Form struct {
	Fields map[string]string
	Files  []FormFile
}

// FormFile is a single file part of a [Form].
type FormFile struct {
	Field    string
	Filename string
	Content  io.Reader
}

// ErrFileContent marks a [FormFile] whose content could not be read.
var ErrFileContent = errors.New("file part content unreadable")

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// MultipartRequest instantiates an *http.Request carrying form as a
// multipart/form-data body. The body is buffered so it can be replayed on
// retry. Each file part declares the content type sniffed from its bytes.
// Only [WithHeaders] applies; payload and content type come from form.
func MultipartRequest(ctx context.Context, reqURL *url.URL, method string, form Form, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return nil, err
		}
	}

	if settings.body != nil || settings.contentType != nil {
		return nil, errors.New("multipart requests take their payload and content type from the form")
	}

	var payload bytes.Buffer
	w := multipart.NewWriter(&payload)

	keys := make([]string, 0, len(form.Fields))
	for k := range form.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if err := w.WriteField(k, form.Fields[k]); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", k, err)
		}
	}

	for _, f := range form.Files {
		if err := writeFile(w, f); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bytes.NewReader(payload.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	req.Header.Set("Content-Type", w.FormDataContentType())
	addHeaders(req, settings.headers)

	return req, nil
}

func writeFile(w *multipart.Writer, f FormFile) error {
	if f.Content == nil {
		return fmt.Errorf("%w: %s has no content", ErrFileContent, f.Field)
	}

	data, err := io.ReadAll(f.Content)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileContent, f.Field, err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
	h.Set("Content-Type", mimetype.Detect(data).String())

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating file part %s: %w", f.Field, err)
	}

	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("writing file part %s: %w", f.Field, err)
	}

	return nil
}
