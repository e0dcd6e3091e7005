package client

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrBodySize caps the amount of response body read when
// building an error for a failed status. This prevents
// unbounded memory usage when a large error body arrives.
const maxErrBodySize = 4 << 10 // 4KB

type (
	// execFn operates on a response that passed its status check.
	execFn func(response *http.Response) error
	// checkFn turns an unwanted status into an error.
	checkFn func(response *http.Response) error
)

// ErrUnexpectedStatusCode is the sentinel error wrapped by [UnexpectedStatusError].
var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// UnexpectedStatusError is the cause attached to the generic error returned
// by [Client.Fetch] and [Client.Download] when the status does not match.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}
