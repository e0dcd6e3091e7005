// Package vaultatest provides an in-memory Vaulta API for tests.
//
// A [Server] answers every endpoint the client library uses, keeps clients
// and assets in memory, verifies signed serve links with the owning client's
// secret and records each request it receives:
//
//	srv := vaultatest.New(vaultatest.WithToken("T"))
//	defer srv.Close()
//
//	vc, _ := vaulta.New(srv.URL, vaulta.WithToken("T"))
//
// Failures can be queued with [Server.FailNext] to exercise retries.
package vaultatest

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vaulta/vaulta-go/model"
)

// Request is a request as received by the [Server].
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Header  http.Header
	TraceID string
}

// Option configures a [Server].
type Option func(*Server)

// WithToken requires "Authorization: Bearer token" on management endpoints.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithSecrets replaces the random secret generator for new and rotated clients.
func WithSecrets(next func() string) Option {
	return func(s *Server) {
		s.newSecret = next
	}
}

// WithClock replaces the server's time source for timestamps and link expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.logger = log
	}
}

// WithTracerProvider records a server span per request.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tp = tp
	}
}

type storedClient struct {
	model.Client
	secret string
}

type storedAsset struct {
	model.Asset
	data  []byte
	token string
}

type failure struct {
	status     int
	retryAfter time.Duration
}

// Server is an in-memory Vaulta API listening on a local port.
type Server struct {
	*httptest.Server

	token     string
	newSecret func() string
	now       func() time.Time
	logger    *slog.Logger
	tp        trace.TracerProvider

	mu       sync.Mutex
	clients  []*storedClient
	assets   []*storedAsset
	requests []Request
	failures []failure
}

// New starts a [Server]. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		newSecret: randomSecret,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tp:        noop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	a := &app{
		mux:        http.NewServeMux(),
		logger:     s.logger,
		tracer:     s.tp.Tracer("github.com/vaulta/vaulta-go/vaultatest"),
		propagator: propagation.TraceContext{},
		now:        s.now,
	}
	a.use(logger(s.logger), renderErrors(s.logger), panics(), s.record(), s.injectFailures())

	s.routes(a)
	s.Server = httptest.NewServer(a)

	return s
}

// FailNext makes the next n requests answer status. A positive retryAfter is
// sent as a Retry-After header in whole seconds.
func (s *Server) FailNext(n, status int, retryAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range n {
		s.failures = append(s.failures, failure{status: status, retryAfter: retryAfter})
	}
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, len(s.requests))
	copy(out, s.requests)

	return out
}

// Secret returns the current secret of the client with the given slug.
func (s *Server) Secret(clientID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.clientBySlug(clientID); c != nil {
		return c.secret, true
	}

	return "", false
}

// DownloadToken returns the download token of an uploaded asset.
func (s *Server) DownloadToken(assetID uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.asset(assetID); a != nil {
		return a.token, true
	}

	return "", false
}

func (s *Server) clientBySlug(slug string) *storedClient {
	for _, c := range s.clients {
		if c.ClientID == slug {
			return c
		}
	}

	return nil
}

func (s *Server) client(id uuid.UUID) *storedClient {
	for _, c := range s.clients {
		if c.ID == id {
			return c
		}
	}

	return nil
}

func (s *Server) asset(id uuid.UUID) *storedAsset {
	for _, a := range s.assets {
		if a.ID == id {
			return a
		}
	}

	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)

	return hex.EncodeToString(b)
}
