package transform

import (
	"errors"
	"net/http"
)

// ErrInvalidJSON is matched by every *InvalidJSONError.
var ErrInvalidJSON = errors.New("invalid json")

// InvalidJSONErrorType is the client-facing type of *InvalidJSONError.
const InvalidJSONErrorType = "invalid_json"

// InvalidJSONError reports a body that is not valid JSON.
type InvalidJSONError struct {
	Cause error
}

// NewInvalidJSONError creates an InvalidJSONError wrapping cause.
func NewInvalidJSONError(cause error) *InvalidJSONError {
	return &InvalidJSONError{Cause: cause}
}

// Error implements the error interface.
func (e *InvalidJSONError) Error() string {
	if e.Cause == nil {
		return "passed in json is not valid"
	}
	return "passed in json is not valid: " + e.Cause.Error()
}

// Unwrap returns the parse error.
func (e *InvalidJSONError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *InvalidJSONError) Is(target error) bool {
	if target == ErrInvalidJSON {
		return true
	}
	_, ok := target.(*InvalidJSONError)
	return ok
}

// Type returns InvalidJSONErrorType.
func (e *InvalidJSONError) Type() string {
	return InvalidJSONErrorType
}

// StatusCode returns the HTTP status for the error.
func (e *InvalidJSONError) StatusCode() int {
	return http.StatusBadRequest
}
