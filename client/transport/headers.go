package transport

import (
	"net/http"
)

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	next  http.RoundTripper
}

// NewUserAgent sets the User-Agent header of every request to value.
func NewUserAgent(value string, next http.RoundTripper) http.RoundTripper {
	return userAgent{value: value, next: next}
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.next.RoundTrip(cpy)
}

// bearer is an http.RoundTripper attaching a bearer token.
type bearer struct {
	token string
	next  http.RoundTripper
}

// NewBearer authorizes every request with token unless the request already
// carries an Authorization header.
func NewBearer(token string, next http.RoundTripper) http.RoundTripper {
	return bearer{token: token, next: next}
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("Authorization") != "" {
		return b.next.RoundTrip(r)
	}

	cpy := r.Clone(r.Context())
	cpy.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(cpy)
}
