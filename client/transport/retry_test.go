package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastBackoff(maxRetries int) Backoff {
	return Backoff{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}
}

func noLog() *slog.Logger { return nil }

func TestNewRetry_NilPolicy(t *testing.T) {
	if _, err := NewRetry(nil, noLog, http.DefaultTransport); !errors.Is(err, ErrNilPolicy) {
		t.Fatalf("expected ErrNilPolicy, got %v", err)
	}
}

func TestBackoff_Delays(t *testing.T) {
	b := Backoff{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	resp := &http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for attempt, exp := range want {
		got, ok := b.Retry(attempt, resp, nil)
		if !ok {
			t.Fatalf("attempt %d: expected retry", attempt)
		}
		if got != exp {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, exp)
		}
	}

	if _, ok := b.Retry(5, resp, nil); ok {
		t.Error("expected no retry once MaxRetries is reached")
	}
}

func TestBackoff_Decisions(t *testing.T) {
	b := DefaultBackoff(3)

	testCases := []struct {
		name  string
		resp  *http.Response
		err   error
		retry bool
	}{
		{name: "429", resp: &http.Response{StatusCode: 429, Header: http.Header{}}, retry: true},
		{name: "500", resp: &http.Response{StatusCode: 500, Header: http.Header{}}, retry: true},
		{name: "502", resp: &http.Response{StatusCode: 502, Header: http.Header{}}, retry: true},
		{name: "503", resp: &http.Response{StatusCode: 503, Header: http.Header{}}, retry: true},
		{name: "504", resp: &http.Response{StatusCode: 504, Header: http.Header{}}, retry: true},
		{name: "501", resp: &http.Response{StatusCode: 501, Header: http.Header{}}, retry: false},
		{name: "404", resp: &http.Response{StatusCode: 404, Header: http.Header{}}, retry: false},
		{name: "200", resp: &http.Response{StatusCode: 200, Header: http.Header{}}, retry: false},
		{name: "transport error", err: errors.New("connection reset"), retry: true},
		{name: "cancelled", err: context.Canceled, retry: false},
		{name: "deadline", err: context.DeadlineExceeded, retry: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, got := b.Retry(0, tc.resp, tc.err)
			if got != tc.retry {
				t.Errorf("retry = %v, want %v", got, tc.retry)
			}
		})
	}
}

func TestBackoff_RetryAfter(t *testing.T) {
	b := Backoff{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Minute}

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": {"7"}}}
	if d, _ := b.Retry(0, resp, nil); d != 7*time.Second {
		t.Errorf("delay = %v, want 7s", d)
	}

	b.MaxDelay = 2 * time.Second
	if d, _ := b.Retry(0, resp, nil); d != 2*time.Second {
		t.Errorf("delay = %v, want capped 2s", d)
	}

	// Retry-After is ignored on statuses that do not define it.
	resp = &http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{"Retry-After": {"7"}}}
	if d, _ := b.Retry(0, resp, nil); d != time.Millisecond {
		t.Errorf("delay = %v, want base delay", d)
	}
}

func TestRetry_RecoversAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"name":"X"}` {
			t.Errorf("attempt %d: body = %q", calls.Load()+1, b)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	rt, err := NewRetry(fastBackoff(3), noLog, http.DefaultTransport)
	if err != nil {
		t.Fatalf("new retry: %v", err)
	}

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL, bytes.NewBufferString(`{"name":"X"}`))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRetry_ExhaustedReturnsLastResponse(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	rt, _ := NewRetry(fastBackoff(2), noLog, http.DefaultTransport)

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodDelete, ts.URL, nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 1 attempt + 2 retries", calls.Load())
	}
}

func TestRetry_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	rt, _ := NewRetry(fastBackoff(3), noLog, http.DefaultTransport)

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL, nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRetry_TransportError(t *testing.T) {
	var calls atomic.Int32
	failing := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("dial tcp: connection refused")
	})

	rt, _ := NewRetry(fastBackoff(2), noLog, failing)

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://vaulta.invalid/clients", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRetry_NonReplayableBody(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	rt, _ := NewRetry(fastBackoff(3), noLog, http.DefaultTransport)

	// io.NopCloser hides the concrete reader so GetBody stays nil.
	req, _ := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL, io.NopCloser(strings.NewReader("stream")))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	policy := Backoff{MaxRetries: 3, BaseDelay: time.Minute, MaxDelay: time.Minute}
	rt, _ := NewRetry(policy, noLog, http.DefaultTransport)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)

	start := time.Now()
	_, err := rt.RoundTrip(req)
	if !errors.Is(err, ErrRetryAborted) {
		t.Fatalf("expected ErrRetryAborted, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("wait should have been interrupted by the context")
	}
}

func TestRetry_CustomPolicy(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))
	defer ts.Close()

	policy := RetryPolicyFunc(func(attempt int, resp *http.Response, err error) (time.Duration, bool) {
		return 0, err == nil && resp.StatusCode == http.StatusConflict && attempt < 1
	})
	rt, _ := NewRetry(policy, noLog, http.DefaultTransport)

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodPut, ts.URL, strings.NewReader("{}"))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestRetry_RewindFailureStops(t *testing.T) {
	var calls atomic.Int32
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return &http.Response{StatusCode: http.StatusBadGateway, Body: http.NoBody, Request: r}, nil
	})

	rt, _ := NewRetry(fastBackoff(3), noLog, next)

	rewindErr := errors.New("body gone")
	req, _ := http.NewRequestWithContext(t.Context(), http.MethodPost, "http://vaulta.test", strings.NewReader("x"))
	req.GetBody = func() (io.ReadCloser, error) { return nil, rewindErr }

	_, err := rt.RoundTrip(req)
	if !errors.Is(err, rewindErr) {
		t.Fatalf("expected rewind error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestBackoff_UncappedGrowth(t *testing.T) {
	b := Backoff{MaxRetries: 10, BaseDelay: time.Millisecond}
	resp := &http.Response{StatusCode: http.StatusInternalServerError, Header: http.Header{}}

	delay, ok := b.Retry(6, resp, nil)
	if !ok {
		t.Fatal("expected retry")
	}
	if delay != 64*time.Millisecond {
		t.Errorf("delay = %v, want 64ms", delay)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
