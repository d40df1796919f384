package stage

import (
	"context"
	"errors"
	"net/http"

	"github.com/vyrodovalexey/avabridge/internal/legacy"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
	"github.com/vyrodovalexey/avabridge/internal/transform"
)

// Options carries the collaborators and hooks shared by all stages.
type Options struct {
	// Logger used by the stages. Defaults to a no-op logger.
	Logger observability.Logger

	// Bridge dispatches to the legacy handler. Required by forwarding stages.
	Bridge *legacy.Bridge

	// CaptureLimit bounds the response bytes buffered by modify-response
	// and modify-response-body. Larger responses are streamed unmodified.
	CaptureLimit int64

	// RequestTransform runs after the configured rules of
	// modify-request-body.
	RequestTransform transform.Func

	// ResponseTransform runs after the configured rules of
	// modify-response-body.
	ResponseTransform transform.Func

	// RequestHook may replace the request in modify-request. A nil result
	// keeps the request.
	RequestHook func(r *http.Request) *http.Request

	// ResponseHook may replace the response in modify-response. A nil
	// result keeps the response.
	ResponseHook func(resp *pipeline.Response) *pipeline.Response

	// IsAppError decides which failures json-error converts.
	IsAppError func(err error, ex *pipeline.Exchange) bool

	// ErrorConverter renders an accepted failure. A nil result leaves the
	// failure unchanged.
	ErrorConverter func(err error) *pipeline.Response
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = observability.NopLogger()
	}
	if o.IsAppError == nil {
		o.IsAppError = DefaultIsAppError
	}
	if o.ErrorConverter == nil {
		o.ErrorConverter = DefaultErrorConverter
	}
	return o
}

// DefaultIsAppError accepts every error except context cancellation and
// deadline expiry.
func DefaultIsAppError(err error, _ *pipeline.Exchange) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// chainFuncs returns a Func running a then b. A nil result from either
// keeps the value it was given.
func chainFuncs(a, b transform.Func) transform.Func {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(v interface{}) interface{} {
		if out := a(v); out != nil {
			v = out
		}
		if out := b(v); out != nil {
			v = out
		}
		return v
	}
}
