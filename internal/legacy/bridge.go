package legacy

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avabridge/internal/capture"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pathrewrite"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

// CaptureParam is the query parameter and exchange attribute that turns
// capturing off for a single request.
const CaptureParam = "legacycapture"

const tracerName = "avabridge/legacy"

// Mode selects how the legacy output reaches the caller.
type Mode int

const (
	// ModeStreaming writes the legacy output straight to the client.
	ModeStreaming Mode = iota
	// ModeCapturing buffers the legacy output and returns it.
	ModeCapturing
)

// String returns the lowercase name of the mode.
func (m Mode) String() string {
	if m == ModeCapturing {
		return "capturing"
	}
	return "streaming"
}

type originalPathKey struct{}

// ContextWithOriginalPath stores the path the client requested.
func ContextWithOriginalPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, originalPathKey{}, path)
}

// OriginalPath returns the path the client requested before translation,
// or "" for requests that were not forwarded.
func OriginalPath(ctx context.Context) string {
	path, _ := ctx.Value(originalPathKey{}).(string)
	return path
}

// Bridge forwards exchanges to the legacy dispatcher.
type Bridge struct {
	dispatcher   Dispatcher
	logger       observability.Logger
	captureLimit int64
	tracer       trace.Tracer
}

// Option is a functional option for configuring the bridge.
type Option func(*Bridge)

// WithLogger sets the logger for the bridge.
func WithLogger(logger observability.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithCaptureLimit bounds the bytes buffered in capturing mode. Larger
// responses are streamed and reported as already sent.
func WithCaptureLimit(n int64) Option {
	return func(b *Bridge) {
		b.captureLimit = n
	}
}

// WithTracerProvider sets the tracer provider used for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bridge) {
		if tp != nil {
			b.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewBridge creates a bridge to dispatcher.
func NewBridge(dispatcher Dispatcher, opts ...Option) *Bridge {
	b := &Bridge{
		dispatcher: dispatcher,
		logger:     observability.NopLogger(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Forward dispatches ex to the legacy handler for the translated path.
//
// It returns nil, nil when rule does not match the original path, the
// diagnostic UnavailableResponse when no legacy handler exists, the
// already-sent sentinel in streaming mode, and the captured response in
// capturing mode. A request cancelled during dispatch returns the context
// error.
func (b *Bridge) Forward(ex *pipeline.Exchange, rule pathrewrite.Rule, mode Mode) (*pipeline.Response, error) {
	original := ex.OriginalPath()
	target, ok := pathrewrite.Translate(original, rule)
	if !ok {
		return nil, nil
	}
	if CaptureDisabled(ex) {
		mode = ModeStreaming
	}

	logger := b.logger.WithContext(ex.Context())
	m := getMetrics()

	ctx, span := b.tracer.Start(ex.Context(), "legacy.forward",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("legacy.original_path", original),
			attribute.String("legacy.target_path", target),
			attribute.String("legacy.mode", mode.String()),
		),
	)
	defer span.End()

	req, err := forwardRequest(ctx, ex.Request(), original, target)
	if err != nil {
		span.RecordError(err)
		logger.Warn("invalid legacy forward target",
			observability.String("target", target),
			observability.Error(err),
		)
		m.forwardsTotal.WithLabelValues(mode.String(), resultUnavailable).Inc()
		span.SetAttributes(attribute.Bool("legacy.unavailable", true))
		return UnavailableResponse(target), nil
	}

	handler, ok := b.dispatcher.Resolve(req)
	if !ok {
		logger.Warn("no legacy handler for forward target",
			observability.String("original_path", original),
			observability.String("target", target),
		)
		m.forwardsTotal.WithLabelValues(mode.String(), resultUnavailable).Inc()
		span.SetAttributes(attribute.Bool("legacy.unavailable", true))
		return UnavailableResponse(target), nil
	}

	logger.Debug("forwarding to legacy dispatcher",
		observability.String("original_path", original),
		observability.String("target", target),
		observability.String("mode", mode.String()),
	)

	start := time.Now()
	resp := b.dispatch(ex.Writer(), req, handler, mode)
	m.forwardDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())

	if err := ctx.Err(); err != nil {
		m.forwardsTotal.WithLabelValues(mode.String(), resultCancelled).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &ForwardError{Target: target, Mode: mode, Cause: err}
	}

	m.forwardsTotal.WithLabelValues(mode.String(), resultOK).Inc()
	if !resp.Sent() {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	}
	return resp, nil
}

func (b *Bridge) dispatch(w http.ResponseWriter, req *http.Request, h http.Handler, mode Mode) *pipeline.Response {
	if mode == ModeStreaming {
		h.ServeHTTP(w, req)
		return pipeline.SentResponse()
	}

	rec := capture.New(w, capture.WithLimit(b.captureLimit))
	h.ServeHTTP(rec, req)
	if !rec.Streaming() {
		getMetrics().capturedBytes.Observe(float64(rec.Len()))
	}
	return rec.Response()
}

// forwardRequest derives the request served by the legacy handler. A query
// in target is merged into the original query.
func forwardRequest(ctx context.Context, r *http.Request, original, target string) (*http.Request, error) {
	path, rawQuery, hasQuery := strings.Cut(target, "?")

	out := r.Clone(ContextWithOriginalPath(ctx, original))
	out.URL.Path = path
	out.URL.RawPath = ""
	if hasQuery && rawQuery != "" {
		extra, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, err
		}
		q := out.URL.Query()
		for k, vals := range extra {
			q[k] = vals
		}
		out.URL.RawQuery = q.Encode()
	}
	out.RequestURI = out.URL.RequestURI()
	return out, nil
}

// CaptureDisabled reports whether the exchange opts out of capturing via
// the CaptureParam query parameter ("false", "no" or "none") or a falsy
// CaptureParam attribute.
func CaptureDisabled(ex *pipeline.Exchange) bool {
	if values, ok := ex.Query()[CaptureParam]; ok && len(values) > 0 {
		switch values[0] {
		case "false", "no", "none":
			return true
		}
	}

	v, ok := ex.Attr(CaptureParam)
	if !ok {
		return false
	}
	return !truthy(v)
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch val {
		case "", "false", "no", "none":
			return false
		}
		return true
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
