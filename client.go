package vaulta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vaulta/vaulta-go/client"
	"github.com/vaulta/vaulta-go/client/transport"
	"github.com/vaulta/vaulta-go/errs"
)

// Client talks to one Vaulta deployment. It holds no per-call state and is
// safe for concurrent use.
type Client struct {
	baseURL string
	http    *client.Client
	logger  *slog.Logger
}

// New builds a [Client] for the API rooted at baseURL. Unless overridden the
// client times out after [DefaultTimeout], retries [DefaultMaxRetries] times
// and identifies itself with [DefaultUserAgent].
func New(baseURL string, opts ...Option) (*Client, error) {
	s := settings{
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		userAgent:  DefaultUserAgent(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	base := strings.TrimRight(baseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	clientOpts := []client.Option{
		client.WithTimeout(s.timeout),
		client.WithUserAgent(s.userAgent),
		client.WithBearerToken(s.token),
		client.WithLogger(s.logger),
	}
	if s.httpClient != nil {
		clientOpts = append(clientOpts, client.WithClient(s.httpClient))
	}
	if s.transport != nil {
		clientOpts = append(clientOpts, client.WithTransport(s.transport))
	}
	if s.throttle != nil {
		clientOpts = append(clientOpts, client.WithThrottle(s.throttle.RPS, s.throttle.Burst))
	}
	if s.tracerProvider != nil {
		clientOpts = append(clientOpts, client.WithTracerProvider(s.tracerProvider, s.propagator))
	}

	switch {
	case s.retry != nil:
		clientOpts = append(clientOpts, client.WithRetry(s.retry))
	case s.maxRetries > 0:
		clientOpts = append(clientOpts, client.WithRetry(transport.DefaultBackoff(s.maxRetries)))
	}

	hc, err := client.Build(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("building http client: %w", err)
	}

	return &Client{
		baseURL: base,
		http:    hc,
		logger:  s.logger,
	}, nil
}

// BaseURL returns the API root with trailing slashes removed.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call is the shared JSON round trip behind every API operation.
type call struct {
	method   string
	endpoint string
	query    map[string]string
	body     any
	dest     []client.DoOption
}

func (c *Client) send(ctx context.Context, cl call) (int, error) {
	u, err := client.URL(c.baseURL, cl.endpoint, client.WithQueryStrings(cl.query))
	if err != nil {
		return 0, errs.Generic(0, "Building url failed", err)
	}

	var reqOpts []client.RequestOption
	if cl.body != nil {
		reqOpts = append(reqOpts, client.WithPayload(cl.body))
	}

	req, err := client.Request(ctx, u, cl.method, reqOpts...)
	if err != nil {
		return 0, errs.Generic(0, "Building request failed", err)
	}

	return c.http.Do(req, cl.dest...)
}

// Fetched is the result of [Client.DownloadAsset] and [Client.ServeAsset].
// Exactly one of Data and Path is set.
type Fetched struct {
	Data []byte
	Path string
}

// FetchOption configures a raw content fetch.
type FetchOption func(*fetchOpts)

type fetchOpts struct {
	saveTo       string
	sha256       string
	skipExisting bool
	progress     bool
}

// SaveTo writes the fetched content to path, creating parent directories as
// needed, instead of returning it in memory.
func SaveTo(path string) FetchOption {
	return func(o *fetchOpts) {
		o.saveTo = path
	}
}

// VerifySHA256 fails the fetch unless the content hashes to the hex digest
// expected. A saved file is discarded on mismatch.
func VerifySHA256(expected string) FetchOption {
	return func(o *fetchOpts) {
		o.sha256 = expected
	}
}

// SkipExisting leaves the [SaveTo] destination untouched when it already
// exists.
func SkipExisting() FetchOption {
	return func(o *fetchOpts) {
		o.skipExisting = true
	}
}

// ReportProgress logs [SaveTo] transfers at info level.
func ReportProgress() FetchOption {
	return func(o *fetchOpts) {
		o.progress = true
	}
}

func (c *Client) fetch(ctx context.Context, rawURL, what string, opts ...FetchOption) (Fetched, error) {
	var o fetchOpts
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Fetched{}, errs.Generic(0, "Parsing url failed", err)
	}

	req, err := client.Request(ctx, u, http.MethodGet)
	if err != nil {
		return Fetched{}, errs.Generic(0, "Building request failed", err)
	}

	if o.saveTo != "" {
		var dlOpts []client.DownloadOption
		if o.sha256 != "" {
			dlOpts = append(dlOpts, client.WithSHA256(o.sha256))
		}
		if o.skipExisting {
			dlOpts = append(dlOpts, client.WithSkipExisting())
		}
		if o.progress {
			dlOpts = append(dlOpts, client.WithProgress())
		}

		if err := c.http.Download(req, http.StatusOK, o.saveTo, dlOpts...); err != nil {
			return Fetched{}, relabel(err, what)
		}

		c.logger.Debug("asset saved", "op", what, "path", o.saveTo)

		return Fetched{Path: o.saveTo}, nil
	}

	data, err := c.http.Fetch(req, http.StatusOK)
	if err != nil {
		return Fetched{}, relabel(err, what)
	}

	if o.sha256 != "" {
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, o.sha256) {
			return Fetched{}, errs.Generic(http.StatusOK, what+" failed: checksum mismatch",
				&client.DownloadError{Err: client.ErrChecksumMismatch, Detail: fmt.Sprintf("digest %s, want %s", got, o.sha256)})
		}
	}

	return Fetched{Data: data}, nil
}

// relabel names the failed operation on status mismatches from raw fetches.
func relabel(err error, what string) error {
	var e *errs.Error
	if errors.As(err, &e) && errors.Is(e.Err, client.ErrUnexpectedStatusCode) {
		e.Message = fmt.Sprintf("%s failed: %d", what, e.StatusCode)
	}

	return err
}
