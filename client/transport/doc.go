// Package transport provides the [http.RoundTripper] decorators the Vaulta
// client chains around its base transport:
//
//   - [NewRetry] re-sends a request on transport failures and transient
//     statuses according to a [RetryPolicy] (default [Backoff]).
//   - [NewThrottle] rate-limits outbound requests with a token bucket from
//     [golang.org/x/time/rate].
//   - [NewBearer] attaches an Authorization header.
//   - [NewUserAgent] sets a persistent User-Agent header.
//   - [NewTrace] opens an OpenTelemetry client span per call and injects the
//     trace context into the outgoing headers.
//
// Retries apply to every method, POST/PUT/DELETE included. A request whose
// first attempt reached the server but whose response was lost will be sent
// again; the server must tolerate duplicates for those calls.
package transport
