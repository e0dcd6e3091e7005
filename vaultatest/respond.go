package vaultatest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vaulta/vaulta-go/validate"
)

// apiError is a handler failure rendered as {"detail": "..."}.
type apiError struct {
	Status int
	Detail any
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d: %v", e.Status, e.Detail)
}

func fail(status int, format string, args ...any) error {
	return &apiError{Status: status, Detail: fmt.Sprintf(format, args...)}
}

// respondJSON writes data with statusCode.
func respondJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) error {
	setStatusCode(ctx, statusCode)

	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err = w.Write(jsonData); err != nil {
		return err
	}

	return nil
}

// decode reads a JSON body into val, rejecting unknown fields, and checks
// its validate tags. Validation failures answer 422 listing the fields.
func decode[T any](r *http.Request, val *T) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return fail(http.StatusUnprocessableEntity, "decode: %v", err)
	}

	if err := validate.Check(val); err != nil {
		var fields validate.FieldErrors
		if errors.As(err, &fields) {
			return &apiError{Status: http.StatusUnprocessableEntity, Detail: fields}
		}
		return fail(http.StatusUnprocessableEntity, "%v", err)
	}

	return nil
}
