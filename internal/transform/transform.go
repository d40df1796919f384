// Package transform rewrites JSON request and response bodies.
//
// Apply is the single entry point: non-JSON bodies pass through untouched,
// malformed JSON yields *InvalidJSONError, and everything else is decoded,
// handed to a Func and encoded again.
package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
)

// Common transformation errors.
var (
	// ErrInvalidDataType indicates that a value cannot be traversed.
	ErrInvalidDataType = errors.New("invalid data type for transformation")

	// ErrFieldNotFound indicates that a path does not exist in the data.
	ErrFieldNotFound = errors.New("field not found")

	// ErrInvalidFieldPath indicates that a field path is invalid.
	ErrInvalidFieldPath = errors.New("invalid field path")

	// ErrUnknownOp indicates an unsupported rule operation.
	ErrUnknownOp = errors.New("unknown transform operation")
)

// Func transforms a decoded JSON value. A non-nil result replaces the
// value; nil keeps the value passed in, including any in-place changes.
// Objects are map[string]interface{}, arrays []interface{} and numbers json.Number.
type Func func(v interface{}) interface{}

// IsJSON reports whether contentType names a JSON media type.
func IsJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.Contains(strings.ToLower(mediaType), "json")
}

// Apply runs fn over body when contentType is JSON and returns the encoded
// result. Non-JSON bodies are returned unchanged and fn is not called. A
// JSON body that does not parse, including an empty one, returns
// *InvalidJSONError.
func Apply(contentType string, body []byte, fn Func) ([]byte, error) {
	if fn == nil || !IsJSON(contentType) {
		return body, nil
	}

	v, err := Decode(body)
	if err != nil {
		return nil, err
	}

	if out := fn(v); out != nil {
		v = out
	}

	return Encode(v)
}

// Decode parses body into a JSON value with exact numbers.
func Decode(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, NewInvalidJSONError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, NewInvalidJSONError(err)
	}
	return v, nil
}

// Encode serialises v without HTML escaping and without a trailing newline.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FormatIfJSON indents body when it is valid JSON and returns it unchanged
// otherwise. Meant for debug logging.
func FormatIfJSON(body []byte) []byte {
	if !json.Valid(body) {
		return body
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return body
	}
	return buf.Bytes()
}
