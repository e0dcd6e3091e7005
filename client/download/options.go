package download

import (
	"crypto/sha256"
	"errors"
	"hash"
	"strings"
)

// Option configures [Handle].
type Option func(*options) error

type options struct {
	checksum     *checksum
	progress     bool
	skipExisting bool
}

// WithChecksum discards the file unless the hex digest h computes over the
// content equals expected. Case is ignored.
func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}
		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksum{hash: h, expected: strings.ToLower(expected)}
		return nil
	}
}

// WithSHA256 is [WithChecksum] with a fresh SHA-256 hash.
func WithSHA256(expected string) Option {
	return WithChecksum(sha256.New(), expected)
}

// WithProgress logs the transfer at most once per second and once when it
// completes.
func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}

// WithSkipExisting leaves an existing destination untouched and skips the
// transfer.
func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}
