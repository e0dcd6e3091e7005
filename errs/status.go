package errs

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// FromResponse translates a response status into the taxonomy. It returns nil
// for any status below 400. body is the (possibly truncated) response body;
// when it decodes as a JSON object it is attached as [Error.Details].
func FromResponse(status int, body []byte) error {
	if status < http.StatusBadRequest {
		return nil
	}

	details := decodeDetails(body)

	var e *Error
	switch {
	case status == http.StatusUnauthorized:
		e = New(KindAuthentication, status, "Authentication failed")
	case status == http.StatusNotFound:
		e = New(KindNotFound, status, "Resource not found")
	case status == http.StatusBadRequest:
		e = New(KindValidation, status, badRequestMessage(details))
	case status < http.StatusInternalServerError:
		e = New(KindClient, status, fmt.Sprintf("Client error: %d", status))
	case status < 600:
		e = New(KindServer, status, fmt.Sprintf("Server error: %d", status))
	default:
		e = New(KindGeneric, status, fmt.Sprintf("Unexpected status code: %d", status))
	}

	e.Details = details

	return e
}

// badRequestMessage uses the body's detail field, rendered as JSON when it is
// not a string.
func badRequestMessage(details map[string]any) string {
	detail, ok := details["detail"]
	if !ok || detail == nil {
		return "Bad request"
	}

	if s, ok := detail.(string); ok {
		if s == "" {
			return "Bad request"
		}
		return s
	}

	b, err := json.Marshal(detail)
	if err != nil {
		return "Bad request"
	}

	return string(b)
}

func decodeDetails(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}

	return m
}
