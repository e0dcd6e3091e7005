package client

import (
	"hash"

	"github.com/vaulta/vaulta-go/client/download"
)

type (
	// DownloadOption configures [Client.Download].
	DownloadOption = download.Option

	// DownloadError carries a download sentinel and detail.
	DownloadError = download.Error
)

var (
	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled
)

// WithChecksum discards the file unless its hex digest under h equals expected.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithSHA256 verifies the content against a hex SHA-256 digest.
func WithSHA256(expected string) DownloadOption { return download.WithSHA256(expected) }

// WithProgress enables periodic download progress logging.
func WithProgress() DownloadOption { return download.WithProgress() }

// WithSkipExisting leaves an existing destination untouched.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }
