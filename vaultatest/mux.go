package vaultatest

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// handler is an http.Handler that returns an error.
type handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// middleware chains handlers together.
type middleware func(handler) handler

// app routes requests to handlers wrapped in the middleware stack, opening a
// server span per request that continues any propagated trace.
type app struct {
	mux        *http.ServeMux
	mw         []middleware
	logger     *slog.Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	now        func() time.Time
}

func (a *app) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *app) use(mw ...middleware) {
	a.mw = append(a.mw, mw...)
}

func (a *app) handle(method, path string, fn handler, mw ...middleware) {
	fn = wrap(mw, fn)
	fn = wrap(a.mw, fn)

	pattern := method + " " + path

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx := a.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		remote := trace.SpanContextFromContext(ctx)

		ctx, span := a.tracer.Start(ctx, "vaultatest "+pattern,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("url.path", r.URL.Path)),
		)
		defer span.End()

		v := values{
			TraceID: remote.TraceID().String(),
			Now:     a.now().UTC(),
		}
		if !remote.TraceID().IsValid() {
			v.TraceID = uuid.NewString()
		}

		r = r.WithContext(setValues(ctx, &v))

		if err := fn(r.Context(), w, r); err != nil {
			a.logger.Error("vaultatest", "handle", err)
		}
	}

	a.mux.HandleFunc(pattern, h)
}

// wrap middleware around the handler and execute in order given.
func wrap(mw []middleware, fn handler) handler {
	for _, mwFn := range slices.Backward(mw) {
		if mwFn != nil {
			fn = mwFn(fn)
		}
	}

	return fn
}

type ctxKey int

const valuesKey ctxKey = 1

// values are shared across the middleware of one request.
type values struct {
	TraceID    string
	Now        time.Time
	StatusCode int
}

func setValues(ctx context.Context, v *values) context.Context {
	return context.WithValue(ctx, valuesKey, v)
}

func getValues(ctx context.Context) *values {
	v, ok := ctx.Value(valuesKey).(*values)
	if !ok {
		return &values{TraceID: uuid.Nil.String(), Now: time.Now()}
	}

	return v
}

func setStatusCode(ctx context.Context, statusCode int) {
	if v, ok := ctx.Value(valuesKey).(*values); ok {
		v.StatusCode = statusCode
	}
}
