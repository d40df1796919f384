package stage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

var (
	// ErrUnknownStage is returned by Build for an unregistered stage name.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrNoBridge is returned by Build when a forwarding stage is
	// configured without a legacy bridge.
	ErrNoBridge = errors.New("forwarding stage requires a legacy bridge")
)

// Error types written by DefaultErrorConverter.
const (
	ErrorTypeInternal = "internal_error"
	ErrorTypeGeneric  = "error"
)

const internalErrorMessage = "internal server error"

// PanicError is the failure produced by the recovery stage.
type PanicError struct {
	Value interface{}
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// errorBody is the JSON document written for converted errors.
type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DefaultErrorConverter renders err as {"type":...,"message":...}. Errors
// exposing StatusCode() and Type() control the status and type, as
// transform.InvalidJSONError does (400, "invalid_json"). Panics are
// reported without detail.
func DefaultErrorConverter(err error) *pipeline.Response {
	status := http.StatusInternalServerError
	body := errorBody{Type: ErrorTypeGeneric, Message: err.Error()}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		body = errorBody{Type: ErrorTypeInternal, Message: internalErrorMessage}
		return jsonResponse(status, body)
	}

	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		if code := coded.StatusCode(); code >= 400 && code <= 599 {
			status = code
		}
	}

	var typed interface{ Type() string }
	if errors.As(err, &typed) {
		body.Type = typed.Type()
	}

	return jsonResponse(status, body)
}

func jsonResponse(status int, body errorBody) *pipeline.Response {
	data, err := json.Marshal(body)
	if err != nil {
		return pipeline.TextResponse(http.StatusInternalServerError, internalErrorMessage)
	}
	return pipeline.NewResponse(status, "application/json", data)
}
