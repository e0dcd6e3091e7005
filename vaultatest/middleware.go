package vaultatest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"
)

func logger(log *slog.Logger) middleware {
	return func(next handler) handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := getValues(ctx)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = fmt.Sprintf("%s?%s", path, r.URL.RawQuery)
			}

			log.Debug("request started", "method", r.Method, "path", path, "trace_id", v.TraceID)

			err := next(ctx, w, r)

			log.Debug("request completed", "method", r.Method, "path", path, "status", v.StatusCode, "since", time.Since(v.Now).String())

			return err
		}
	}
}

// renderErrors renders handler failures. Anything that is not an apiError is hidden
// behind a 500.
func renderErrors(log *slog.Logger) middleware {
	return func(next handler) handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := next(ctx, w, r)
			if err == nil {
				return nil
			}

			apiErr, ok := errors.AsType[*apiError](err)
			if !ok {
				log.Error("internal error", "trace_id", getValues(ctx).TraceID, "error", err)
				apiErr = &apiError{Status: http.StatusInternalServerError, Detail: http.StatusText(http.StatusInternalServerError)}
			}

			return respondJSON(ctx, w, apiErr.Status, map[string]any{"detail": apiErr.Detail})
		}
	}
}

func panics() middleware {
	return func(next handler) handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, string(debug.Stack()))
				}
			}()

			return next(ctx, w, r)
		}
	}
}

// record appends every request, including injected failures, to the log.
func (s *Server) record() middleware {
	return func(next handler) handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			s.mu.Lock()
			s.requests = append(s.requests, Request{
				Method:  r.Method,
				Path:    r.URL.Path,
				Query:   r.URL.Query(),
				Header:  r.Header.Clone(),
				TraceID: getValues(ctx).TraceID,
			})
			s.mu.Unlock()

			return next(ctx, w, r)
		}
	}
}

// injectFailures answers with the queued failure status, if any.
func (s *Server) injectFailures() middleware {
	return func(next handler) handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			s.mu.Lock()
			var f *failure
			if len(s.failures) > 0 {
				f = &s.failures[0]
				s.failures = s.failures[1:]
			}
			s.mu.Unlock()

			if f == nil {
				return next(ctx, w, r)
			}

			if f.retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(f.retryAfter/time.Second)))
			}

			return &apiError{Status: f.status, Detail: http.StatusText(f.status)}
		}
	}
}

// authenticate requires the configured bearer token.
func (s *Server) authenticate() middleware {
	return func(next handler) handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
				return fail(http.StatusUnauthorized, "Not authenticated")
			}

			return next(ctx, w, r)
		}
	}
}
