package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vaulta/vaulta-go/client/download"
	"github.com/vaulta/vaulta-go/client/transport"
	"github.com/vaulta/vaulta-go/errs"
)

// Client wraps the std-lib *http.Client and translates every response into
// the [errs] taxonomy. The zero value is not usable; construct one with [Build].
type Client struct {
	c      *http.Client
	logger *slog.Logger
}

// Build assembles a [Client]. Decorators wrap the base transport so that a
// call passes through tracing, then retry, then throttling, then the auth and
// User-Agent headers.
func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		logger: slog.Default(),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	var hc http.Client
	if opts.client != nil {
		hc = *opts.client
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.timeout != nil {
		hc.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var rt http.RoundTripper
	switch {
	case opts.rt != nil:
		rt = opts.rt
	case hc.Transport != nil:
		rt = hc.Transport
	default:
		rt = http.DefaultTransport
	}

	logFn := func() *slog.Logger { return client.logger }

	if opts.userAgent != "" {
		rt = transport.NewUserAgent(opts.userAgent, rt)
	}
	if opts.bearerToken != "" {
		rt = transport.NewBearer(opts.bearerToken, rt)
	}
	if opts.throttle != nil {
		throttled, err := transport.NewThrottle(*opts.throttle, logFn, rt)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		rt = throttled
	}
	if opts.retry != nil {
		retried, err := transport.NewRetry(opts.retry, logFn, rt)
		if err != nil {
			return nil, fmt.Errorf("configuring retry: %w", err)
		}
		rt = retried
	}
	if opts.tracerProvider != nil {
		rt = transport.NewTrace(opts.tracerProvider, opts.propagator, rt)
	}

	hc.Transport = rt
	client.c = &hc

	return client, nil
}

// Do fires the request and returns the final status code. Any status of 400
// or above is translated into an [*errs.Error]; on success the body is
// decoded into the destination given with [WithDestination], if any.
func (c *Client) Do(req *http.Request, opts ...DoOption) (int, error) {
	var settings doOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return 0, err
		}
	}

	doFunc := func(resp *http.Response) error {
		if settings.responseBody == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		d := json.NewDecoder(resp.Body)

		if settings.useJSONNum {
			d.UseNumber()
		}

		if err := d.Decode(settings.responseBody); err != nil {
			return errs.Generic(resp.StatusCode, "Malformed response body", err)
		}

		return nil
	}

	return c.exec(req, checkStatus, doFunc)
}

// Fetch executes a request whose whole response body is wanted in memory.
// Any status other than expCode yields a generic [*errs.Error] carrying the
// status code.
func (c *Client) Fetch(req *http.Request, expCode int) ([]byte, error) {
	var data []byte

	fetchFunc := func(resp *http.Response) error {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Generic(resp.StatusCode, "Reading response body failed", err)
		}
		data = b

		return nil
	}

	if _, err := c.exec(req, expectStatus(expCode), fetchFunc); err != nil {
		return nil, err
	}

	return data, nil
}

// Download executes a request that's intended to stream the response body to destPath.
// Data streams to a temp file in the same directory, then the temp file is renamed to
// destPath on success or cleared on failure. Any status other than expCode
// yields a generic [*errs.Error] carrying the status code.
func (c *Client) Download(req *http.Request, expCode int, destPath string, opts ...DownloadOption) error {
	if destPath == "" {
		return errors.New("destPath must not be empty")
	}

	dlFunc := func(resp *http.Response) error {
		if err := download.Handle(req.Context(), resp.Body, resp.ContentLength, destPath, c.logger, opts...); err != nil {
			return errs.Generic(resp.StatusCode, fmt.Sprintf("Saving response to %s failed", destPath), err)
		}

		return nil
	}

	_, err := c.exec(req, expectStatus(expCode), dlFunc)

	return err
}

// Logger returns the logger the client writes to.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// exec runs the request, validates the status with check and runs fn on success.
func (c *Client) exec(req *http.Request, check checkFn, fn execFn) (int, error) {
	start := time.Now()

	resp, err := c.c.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return 0, errs.Transport(err)
	}

	discardBody := true
	defer func() {
		if discardBody {
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				c.logger.Error("failed to discard unused body", "error", err)
			}
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	c.logger.Debug("request completed",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if err := check(resp); err != nil {
		return resp.StatusCode, err
	}

	if err := fn(resp); err != nil {
		discardBody = false
		return resp.StatusCode, err
	}

	return resp.StatusCode, nil
}

// checkStatus maps any status of 400 or above into the error taxonomy.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	return errs.FromResponse(resp.StatusCode, readErrBody(resp))
}

// expectStatus rejects anything but code with a generic error.
func expectStatus(code int) checkFn {
	return func(resp *http.Response) error {
		if resp.StatusCode == code {
			return nil
		}

		return errs.Generic(resp.StatusCode, fmt.Sprintf("Unexpected status code: %d", resp.StatusCode), &UnexpectedStatusError{
			StatusCode: resp.StatusCode,
			Body:       string(readErrBody(resp)),
			Err:        ErrUnexpectedStatusCode,
		})
	}
}

func readErrBody(resp *http.Response) []byte {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
	if err != nil {
		return []byte("unable to read body")
	}

	return b
}

// Request instantiates an *http.Request with the provided information.
// Content-Type defaults to `application/json` if unspecified via WithContentType.
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return nil, err
		}
	}

	var payload bytes.Buffer
	if settings.body != nil {
		if err := json.NewEncoder(&payload).Encode(settings.body); err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), &payload)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	contentType := "application/json"
	if settings.contentType != nil {
		contentType = *settings.contentType
	}

	req.Header.Set("Content-Type", contentType)
	addHeaders(req, settings.headers)

	return req, nil
}

// URL appends endpoint to base, preserving any path prefix in base, and
// adds the query strings given with [WithQueryStrings]. Trailing slashes on
// base are dropped. Path segments in endpoint must already be escaped.
func URL(base, endpoint string, opts ...URLOption) (*url.URL, error) {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		u.RawQuery = queryParams.Encode()
	}

	return u, nil
}

func addHeaders(req *http.Request, headers map[string][]string) {
	for k, v := range headers {
		for _, element := range v {
			req.Header.Add(k, element)
		}
	}
}
