package vaulta

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaulta/vaulta-go/client/transport"
)

const (
	// DefaultTimeout bounds a whole call, retries included.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
)

// Option configures a [Client] built by [New].
type Option func(*settings) error

type settings struct {
	token          string
	timeout        time.Duration
	maxRetries     int
	retry          transport.RetryPolicy
	userAgent      string
	throttle       *transport.ThrottleConfig
	logger         *slog.Logger
	httpClient     *http.Client
	transport      http.RoundTripper
	tracerProvider trace.TracerProvider
	propagator     propagation.TextMapPropagator
}

// WithToken authenticates every request with "Authorization: Bearer token".
func WithToken(token string) Option {
	return func(s *settings) error {
		s.token = token
		return nil
	}
}

// WithTimeout sets the overall per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		s.timeout = d
		return nil
	}
}

// WithMaxRetries sets how many times a failed call is retried with
// exponential backoff. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(s *settings) error {
		if n < 0 {
			return errors.New("max retries must not be negative")
		}
		s.maxRetries = n
		return nil
	}
}

// WithRetryPolicy replaces the default backoff policy. It takes precedence
// over [WithMaxRetries].
func WithRetryPolicy(p transport.RetryPolicy) Option {
	return func(s *settings) error {
		if p == nil {
			return transport.ErrNilPolicy
		}
		s.retry = p
		return nil
	}
}

// WithUserAgent overrides the default "vaulta-go/{Version}" User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *settings) error {
		if ua == "" {
			return errors.New("user agent must not be empty")
		}
		s.userAgent = ua
		return nil
	}
}

// WithThrottle limits outgoing requests to rps per second with the given burst.
func WithThrottle(rps, burst int) Option {
	return func(s *settings) error {
		cfg := transport.ThrottleConfig{RPS: rps, Burst: burst}
		if err := cfg.Validate(); err != nil {
			return err
		}
		s.throttle = &cfg
		return nil
	}
}

// WithLogger sets the logger used for request, retry and download events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithHTTPClient supplies the *http.Client to build on. It is copied, so the
// caller's value is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) error {
		if hc == nil {
			return errors.New("http client must not be nil")
		}
		s.httpClient = hc
		return nil
	}
}

// WithTransport replaces the base round tripper beneath the client's retry,
// throttle and header layers.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		s.transport = rt
		return nil
	}
}

// WithTracerProvider records a client span per request and propagates the
// trace context. A nil propagator defaults to W3C trace context.
func WithTracerProvider(tp trace.TracerProvider, propagator propagation.TextMapPropagator) Option {
	return func(s *settings) error {
		if tp == nil {
			return errors.New("tracer provider must not be nil")
		}
		s.tracerProvider = tp
		s.propagator = propagator
		return nil
	}
}
