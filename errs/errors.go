// Package errs defines the error taxonomy returned by the Vaulta client.
//
// Every failure surfaced by the client is an [*Error] tagged with a [Kind].
// Callers branch on the kind with [errors.Is] against the package sentinels,
// or pull the full error out with [errors.As]:
//
//	if errors.Is(err, errs.ErrNotFound) {
//		// ...
//	}
//
//	var e *errs.Error
//	if errors.As(err, &e) {
//		log.Println(e.StatusCode, e.Details)
//	}
//
// [ErrClient] matches every 4xx kind, including authentication, not-found and
// validation failures. [ErrVaulta] matches every kind.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an [Error].
type Kind int

const (
	// KindGeneric covers local failures and statuses outside 4xx/5xx.
	KindGeneric Kind = iota
	// KindAuthentication is a 401 response.
	KindAuthentication
	// KindNotFound is a 404 response.
	KindNotFound
	// KindValidation is a 400 response or input rejected before sending.
	KindValidation
	// KindClient is any other 4xx response.
	KindClient
	// KindServer is a 5xx response.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "generic"
	}
}

var (
	// ErrVaulta matches any [Error].
	ErrVaulta = errors.New("vaulta error")

	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("resource not found")
	ErrValidation     = errors.New("validation failed")
	// ErrClient matches any 4xx error, whatever its specific kind.
	ErrClient  = errors.New("client error")
	ErrServer  = errors.New("server error")
	ErrGeneric = errors.New("request failed")
)

var sentinels = map[Kind]error{
	KindGeneric:        ErrGeneric,
	KindAuthentication: ErrAuthentication,
	KindNotFound:       ErrNotFound,
	KindValidation:     ErrValidation,
	KindClient:         ErrClient,
	KindServer:         ErrServer,
}

// Error is the single concrete error type returned by the client.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("vaulta %s error (%d): %s", e.Kind, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("vaulta %s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrVaulta:
		return true
	case ErrClient:
		return e.isClientKind()
	}

	return sentinels[e.Kind] == target
}

func (e *Error) isClientKind() bool {
	switch e.Kind {
	case KindAuthentication, KindNotFound, KindValidation, KindClient:
		return true
	}

	return false
}

// New builds an [Error] of the given kind.
func New(kind Kind, statusCode int, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Validation builds a local precondition failure. No status code is attached
// because no request was sent.
func Validation(message string, details map[string]any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Details: details,
	}
}

// Generic wraps a transport failure or any response the taxonomy has no
// specific kind for.
func Generic(statusCode int, message string, err error) *Error {
	return &Error{
		Kind:       KindGeneric,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Transport wraps a failure that happened before any response was received.
func Transport(err error) *Error {
	return Generic(0, fmt.Sprintf("Request failed: %v", err), err)
}

// KindOf returns the kind of err, or [KindGeneric] when err is not an [Error].
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindGeneric
}

// StatusCode returns the HTTP status attached to err, or zero.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}

	return 0
}
