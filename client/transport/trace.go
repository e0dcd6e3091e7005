package transport

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vaulta/vaulta-go/client/transport"

// traced is an http.RoundTripper opening a client span around each call.
type traced struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	next       http.RoundTripper
}

// NewTrace records a span per request using tp and injects the span context
// into the request headers with propagator. A nil propagator defaults to W3C
// trace context.
func NewTrace(tp trace.TracerProvider, propagator propagation.TextMapPropagator, next http.RoundTripper) http.RoundTripper {
	if propagator == nil {
		propagator = propagation.TraceContext{}
	}

	return &traced{
		tracer:     tp.Tracer(tracerName),
		propagator: propagator,
		next:       next,
	}
}

func (t *traced) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(r.Context(), "vaulta "+r.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("server.address", r.URL.Host),
		),
	)
	defer span.End()

	cpy := r.Clone(ctx)
	t.propagator.Inject(ctx, propagation.HeaderCarrier(cpy.Header))

	resp, err := t.next.RoundTrip(cpy)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	return resp, nil
}
