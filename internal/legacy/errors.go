package legacy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

// Sentinel errors for legacy dispatch.
var (
	// ErrInvalidTarget indicates that a translated path is not a valid URL
	// reference.
	ErrInvalidTarget = errors.New("invalid forward target")

	// ErrInvalidLegacyURL indicates that the legacy server URL is invalid.
	ErrInvalidLegacyURL = errors.New("invalid legacy URL")
)

// UnavailableHeader marks the diagnostic response returned when no legacy
// handler exists for a translated path.
const UnavailableHeader = "X-Forward-Unavailable"

// UnavailableResponse returns the diagnostic response for target.
func UnavailableResponse(target string) *pipeline.Response {
	resp := pipeline.TextResponse(http.StatusBadGateway, "failed to forward request to: "+target)
	resp.Header.Set(UnavailableHeader, target)
	return resp
}

// IsUnavailable reports whether resp is a diagnostic response produced by
// UnavailableResponse.
func IsUnavailable(resp *pipeline.Response) bool {
	return resp != nil && resp.Header != nil && resp.Header.Get(UnavailableHeader) != ""
}

// ForwardError describes a dispatch that did not complete.
type ForwardError struct {
	Target string
	Mode   Mode
	Cause  error
}

// Error implements the error interface.
func (e *ForwardError) Error() string {
	return fmt.Sprintf("legacy forward [%s] target=%s: %v", e.Mode, e.Target, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ForwardError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ForwardError) Is(target error) bool {
	_, ok := target.(*ForwardError)
	return ok
}
