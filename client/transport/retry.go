package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrNilPolicy is returned by [NewRetry] without a policy.
	ErrNilPolicy = errors.New("retry policy must not be nil")
	// ErrRetryAborted wraps the context error that ended a wait between attempts.
	ErrRetryAborted = errors.New("retry wait aborted")
)

// DefaultRetryStatuses are the responses treated as transient.
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy decides whether a finished attempt is retried.
//
// attempt counts the retries already made, starting at zero for the first
// response. Exactly one of resp and err is non-nil. A true result asks for
// another attempt after the returned delay.
type RetryPolicy interface {
	Retry(attempt int, resp *http.Response, err error) (time.Duration, bool)
}

// RetryPolicyFunc adapts a plain function to [RetryPolicy].
type RetryPolicyFunc func(attempt int, resp *http.Response, err error) (time.Duration, bool)

// Retry calls f.
func (f RetryPolicyFunc) Retry(attempt int, resp *http.Response, err error) (time.Duration, bool) {
	return f(attempt, resp, err)
}

// Backoff retries transport errors and the configured statuses with an
// exponentially growing delay: BaseDelay, 2*BaseDelay, 4*BaseDelay, ...
// capped at MaxDelay. A Retry-After header given in seconds on a 429 or 503
// takes precedence over the computed delay.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Statuses defaults to DefaultRetryStatuses when nil.
	Statuses []int
}

// DefaultBackoff returns the policy used by the client when none is given.
func DefaultBackoff(maxRetries int) Backoff {
	return Backoff{
		MaxRetries: maxRetries,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Retry implements [RetryPolicy].
func (b Backoff) Retry(attempt int, resp *http.Response, err error) (time.Duration, bool) {
	if attempt >= b.MaxRetries {
		return 0, false
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, false
		}
	} else {
		statuses := b.Statuses
		if statuses == nil {
			statuses = DefaultRetryStatuses
		}
		if !slices.Contains(statuses, resp.StatusCode) {
			return 0, false
		}
	}

	delay := b.schedule(attempt)
	if resp != nil {
		if ra, ok := retryAfter(resp); ok {
			delay = ra
		}
	}

	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	return delay, true
}

// schedule returns the delay before retry number attempt+1, without jitter.
func (b Backoff) schedule(attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.MaxInterval = b.MaxDelay
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = time.Duration(math.MaxInt64)
	}
	eb.Reset()

	delay := eb.NextBackOff()
	for range attempt {
		delay = eb.NextBackOff()
	}

	return delay
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}

	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}

	return time.Duration(secs) * time.Second, true
}

// errAgain marks an attempt the policy wants repeated.
var errAgain = errors.New("retry requested")

// policyBackOff feeds the delays chosen by a [RetryPolicy] to the backoff loop.
type policyBackOff struct {
	attempt int
	next    time.Duration
}

func (p *policyBackOff) NextBackOff() time.Duration { return p.next }
func (p *policyBackOff) Reset()                     {}

// retry is an http.RoundTripper re-sending requests per its policy.
type retry struct {
	policy RetryPolicy
	next   http.RoundTripper
	logFn  func() *slog.Logger
}

// NewRetry wraps next with policy. logFn lazily resolves the logger so
// option ordering does not matter; it may return nil to disable logging.
func NewRetry(policy RetryPolicy, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if policy == nil {
		return nil, ErrNilPolicy
	}

	return &retry{
		policy: policy,
		next:   next,
		logFn:  logFn,
	}, nil
}

// RoundTrip returns the last response once the policy stops retrying, so an
// exhausted retry still yields the final status.
func (r *retry) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		state policyBackOff
		resp  *http.Response
		rtErr error
	)

	op := func() error {
		cur, err := rewind(req, state.attempt)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, rtErr = r.next.RoundTrip(cur)

		delay, again := r.policy.Retry(state.attempt, resp, rtErr)
		if !again || !replayable(req) {
			return nil
		}

		r.log(req, state.attempt, delay, resp, rtErr)
		if resp != nil {
			drain(resp)
			resp = nil
		}

		state.next = delay
		state.attempt++

		return errAgain
	}

	err := backoff.Retry(op, backoff.WithContext(&state, req.Context()))
	switch {
	case err == nil:
		return resp, rtErr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %w", ErrRetryAborted, err)
	default:
		return nil, err
	}
}

func (r *retry) log(req *http.Request, attempt int, delay time.Duration, resp *http.Response, err error) {
	if r.logFn == nil {
		return
	}
	logger := r.logFn()
	if logger == nil {
		return
	}

	attrs := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"attempt", attempt + 1,
		"delay", delay.String(),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	} else {
		attrs = append(attrs, "status", resp.StatusCode)
	}

	logger.Info("retrying request", attrs...)
}

// replayable reports whether req's body can be sent again.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// rewind returns req for the first attempt and a copy with a fresh body for
// later ones.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 {
		return req, nil
	}

	cpy := req.Clone(req.Context())
	if req.GetBody == nil {
		return cpy, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	cpy.Body = body

	return cpy, nil
}

// drain discards a bounded amount of an abandoned response so the connection
// can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
