package vaulta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vaulta/vaulta-go/client"
	"github.com/vaulta/vaulta-go/errs"
	"github.com/vaulta/vaulta-go/model"
	"github.com/vaulta/vaulta-go/sign"
	"github.com/vaulta/vaulta-go/validate"
)

// DefaultServeExpiry is the lifetime of links from [Client.SignedServeURL].
const DefaultServeExpiry = time.Hour

// UploadOption configures [Client.UploadAsset].
type UploadOption func(*uploadOpts)

type uploadOpts struct {
	name   string
	labels model.Labels
}

// WithName sets a display name for the uploaded asset.
func WithName(name string) UploadOption {
	return func(o *uploadOpts) {
		o.name = name
	}
}

// WithLabels attaches labels to the uploaded asset.
func WithLabels(labels model.Labels) UploadOption {
	return func(o *uploadOpts) {
		o.labels = labels
	}
}

// UploadAsset stores the content of src as a new asset. A [FromPath] source
// that is missing, a directory or unreadable fails with [errs.ErrValidation]
// before any request is made.
func (c *Client) UploadAsset(ctx context.Context, src Source, opts ...UploadOption) (*model.AssetUploadResponse, error) {
	var o uploadOpts
	for _, opt := range opts {
		opt(&o)
	}

	content, release, err := src.open()
	if err != nil {
		return nil, err
	}
	defer release()

	form := client.Form{
		Fields: map[string]string{},
		Files:  []client.FormFile{{Field: "file", Filename: src.filename, Content: content}},
	}
	if o.name != "" {
		form.Fields["name"] = o.name
	}
	if len(o.labels) > 0 {
		b, err := json.Marshal(o.labels)
		if err != nil {
			return nil, errs.Generic(0, "Encoding labels failed", err)
		}
		form.Fields["labels"] = string(b)
	}

	u, err := client.URL(c.baseURL, "/assets")
	if err != nil {
		return nil, errs.Generic(0, "Building url failed", err)
	}

	req, err := client.MultipartRequest(ctx, u, http.MethodPost, form)
	if err != nil {
		if errors.Is(err, client.ErrFileContent) {
			e := errs.Validation(fmt.Sprintf("Cannot read upload content: %s", src.filename), map[string]any{"filename": src.filename})
			e.Err = err
			return nil, e
		}
		return nil, errs.Generic(0, "Building upload request failed", err)
	}

	var out model.AssetUploadResponse
	if _, err := c.http.Do(req, client.WithDestination(&out)); err != nil {
		return nil, err
	}

	c.logger.Debug("asset uploaded", "asset_id", out.AssetID, "filename", out.Filename, "size", out.Size)

	return &out, nil
}

// SearchAssets returns the assets whose labels match search.Labels. Empty
// labels fail with [errs.ErrValidation] before any request is made.
func (c *Client) SearchAssets(ctx context.Context, search model.AssetSearch) ([]model.Asset, error) {
	if err := validate.Check(search); err != nil {
		return nil, err
	}

	page := search.Page()

	var out []model.Asset
	_, err := c.send(ctx, call{
		method:   http.MethodPost,
		endpoint: "/assets/search",
		query: map[string]string{
			"skip":  strconv.Itoa(page.Skip),
			"limit": strconv.Itoa(page.Limit),
		},
		body: search.Body(),
		dest: []client.DoOption{client.WithDestination(&out)},
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// DeleteAsset removes an asset. It reports true only when the server
// answers 200.
func (c *Client) DeleteAsset(ctx context.Context, id uuid.UUID) (bool, error) {
	status, err := c.send(ctx, call{
		method:   http.MethodDelete,
		endpoint: "/assets/" + id.String(),
	})
	if err != nil {
		return false, err
	}

	return status == http.StatusOK, nil
}

// AssetDownloadURL returns the download link for a download token.
func (c *Client) AssetDownloadURL(token string) string {
	return c.baseURL + "/assets/download/" + url.PathEscape(token)
}

// AssetServeURL returns the serve link for a signed payload.
func (c *Client) AssetServeURL(payload string) string {
	return c.baseURL + sign.ServePath + url.PathEscape(payload)
}

// DownloadAsset fetches the raw content behind a download token. Any status
// but 200 fails with a generic error carrying the status code.
func (c *Client) DownloadAsset(ctx context.Context, token string, opts ...FetchOption) (Fetched, error) {
	return c.fetch(ctx, c.AssetDownloadURL(token), "Download", opts...)
}

// ServeAsset fetches the raw content behind a signed serve payload. Any
// status but 200 fails with a generic error carrying the status code.
func (c *Client) ServeAsset(ctx context.Context, payload string, opts ...FetchOption) (Fetched, error) {
	return c.fetch(ctx, c.AssetServeURL(payload), "Serve", opts...)
}

// SignedServeURL returns a serve link for assetID signed with secret that
// stays valid for expiresIn. Zero or negative expiresIn means
// [DefaultServeExpiry]. Signing is local; no request is made.
func (c *Client) SignedServeURL(assetID, clientID, secret string, expiresIn time.Duration) string {
	if expiresIn < time.Second {
		expiresIn = DefaultServeExpiry
	}

	return c.AssetServeURL(sign.Path(assetID, clientID, secret, sign.WithExpiresIn(expiresIn)))
}
