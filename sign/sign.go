// Package sign produces time-limited, HMAC-SHA256 signed asset serve links.
//
// A signed path has the form
//
//	{asset_id}.{client_id}.{unix_expiry}.{hex_hmac_sha256}
//
// where the signature covers "{asset_id}.{client_id}.{unix_expiry}" keyed by
// the client secret. Verification is the server's job; this package only
// produces (and, for inspection, parses) tokens.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultExpiry is applied when no positive expiry is given.
const DefaultExpiry = 7200 * time.Second

// ServePath is the endpoint prefix for signed serve links.
const ServePath = "/assets/serve/"

var ErrMalformedToken = errors.New("malformed signed token")

// Option configures signing.
type Option func(*options)

type options struct {
	expiresIn time.Duration
	now       func() time.Time
}

// WithExpiresIn sets how long the link stays valid. Sub-second precision is
// truncated. Non-positive values fall back to [DefaultExpiry].
func WithExpiresIn(d time.Duration) Option {
	return func(o *options) {
		o.expiresIn = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Path returns the signed serve path for assetID.
func Path(assetID, clientID, secret string, opts ...Option) string {
	o := options{
		expiresIn: DefaultExpiry,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.expiresIn < time.Second {
		o.expiresIn = DefaultExpiry
	}

	expiresAt := o.now().Unix() + int64(o.expiresIn/time.Second)
	payload := fmt.Sprintf("%s.%s.%d", assetID, clientID, expiresAt)

	return payload + "." + Signature(secret, payload)
}

// URL returns the absolute signed serve URL rooted at hostURL.
func URL(hostURL, assetID, clientID, secret string, opts ...Option) string {
	return strings.TrimRight(hostURL, "/") + ServePath + Path(assetID, clientID, secret, opts...)
}

// Signature is the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Signature(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))

	return hex.EncodeToString(mac.Sum(nil))
}

// Token is a parsed signed path.
type Token struct {
	AssetID   string
	ClientID  string
	ExpiresAt time.Time
	Signature string
}

// Payload returns the signed portion of the token.
func (t Token) Payload() string {
	return fmt.Sprintf("%s.%s.%d", t.AssetID, t.ClientID, t.ExpiresAt.Unix())
}

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Parse splits a signed path into its parts. It does not verify the signature.
// A full serve URL is accepted as well; everything up to the serve prefix is
// discarded.
func Parse(signed string) (Token, error) {
	if i := strings.LastIndex(signed, ServePath); i >= 0 {
		signed = signed[i+len(ServePath):]
	}

	// Asset ids are UUIDs and client ids are slugs, neither contains a dot.
	parts := strings.Split(signed, ".")
	if len(parts) != 4 {
		return Token{}, fmt.Errorf("%w: expected 4 parts, got %d", ErrMalformedToken, len(parts))
	}

	for i, p := range parts {
		if p == "" {
			return Token{}, fmt.Errorf("%w: empty part %d", ErrMalformedToken, i)
		}
	}

	expiry, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: expiry: %w", ErrMalformedToken, err)
	}

	if _, err := hex.DecodeString(parts[3]); err != nil || len(parts[3]) != sha256.Size*2 {
		return Token{}, fmt.Errorf("%w: signature is not a hex sha256 digest", ErrMalformedToken)
	}

	return Token{
		AssetID:   parts[0],
		ClientID:  parts[1],
		ExpiresAt: time.Unix(expiry, 0),
		Signature: parts[3],
	}, nil
}
