package legacy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vyrodovalexey/avabridge/internal/pathrewrite"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
	"github.com/vyrodovalexey/avabridge/internal/transform"
)

func legacyMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/service/_api/users", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Legacy", "users")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"users":["Alice"]}`)
	})
	mux.HandleFunc("/service/_api/whoami", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, OriginalPath(r.Context())+" -> "+r.URL.RequestURI())
	})
	mux.HandleFunc("/service/_api/large", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
		_, _ = w.Write([]byte(strings.Repeat("b", 64)))
	})
	return mux
}

func newExchange(target string) (*pipeline.Exchange, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return pipeline.NewExchange(rec, httptest.NewRequest(http.MethodGet, target, nil)), rec
}

func TestBridge_NoMatchReturnsNil(t *testing.T) {
	t.Parallel()

	called := false
	b := NewBridge(DispatcherFunc(func(*http.Request) (http.Handler, bool) {
		called = true
		return nil, false
	}))

	ex, rec := newExchange("/service/users")
	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)

	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.False(t, called)
	assert.Zero(t, rec.Body.Len())
}

func TestBridge_CapturingScenario(t *testing.T) {
	t.Parallel()

	b := NewBridge(NewMuxDispatcher(legacyMux()))
	ex, rec := newExchange("/service/api/users")

	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.False(t, resp.Sent())

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Equal(t, "users", resp.Header.Get("X-Legacy"))
	assert.Equal(t, `{"users":["Alice"]}`, string(resp.Body))
	assert.Zero(t, rec.Body.Len(), "capturing must not write to the client")

	body, err := transform.Apply(resp.ContentType, resp.Body,
		transform.Rules{{Op: transform.OpSet, Path: "users[0]", Value: "Fred"}}.Func())
	require.NoError(t, err)
	assert.Equal(t, `{"users":["Fred"]}`, string(body))
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestBridge_Streaming(t *testing.T) {
	t.Parallel()

	b := NewBridge(NewMuxDispatcher(legacyMux()))
	ex, rec := newExchange("/service/api/users")

	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeStreaming)
	require.NoError(t, err)
	assert.True(t, resp.Sent())
	assert.Empty(t, resp.Body)
	assert.Equal(t, `{"users":["Alice"]}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestBridge_CaptureOptOut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		attr  interface{}
		want  bool
	}{
		{name: "query none", query: "?legacycapture=none", want: true},
		{name: "query no", query: "?legacycapture=no", want: true},
		{name: "query false", query: "?legacycapture=false", want: true},
		{name: "query yes", query: "?legacycapture=yes", want: false},
		{name: "attribute false", attr: false, want: true},
		{name: "attribute empty", attr: "", want: true},
		{name: "attribute true", attr: true, want: false},
		{name: "absent", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := NewBridge(NewMuxDispatcher(legacyMux()))
			ex, rec := newExchange("/service/api/users" + tt.query)
			if tt.attr != nil {
				ex.SetAttr(CaptureParam, tt.attr)
			}
			assert.Equal(t, tt.want, CaptureDisabled(ex))

			resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Sent())
			if tt.want {
				assert.Equal(t, `{"users":["Alice"]}`, rec.Body.String())
				assert.Equal(t, "true", resp.Header.Get(pipeline.SkipResponseHeader))
			} else {
				assert.Zero(t, rec.Body.Len())
			}
		})
	}
}

func TestBridge_Unavailable(t *testing.T) {
	t.Parallel()

	b := NewBridge(NewMuxDispatcher(legacyMux()))
	ex, rec := newExchange("/service/api/missing")

	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, IsUnavailable(resp))
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Equal(t, "failed to forward request to: /service/_api/missing", string(resp.Body))
	assert.Zero(t, rec.Body.Len())

	assert.False(t, IsUnavailable(pipeline.TextResponse(http.StatusOK, "")))
	assert.False(t, IsUnavailable(nil))
}

func TestBridge_OriginalPathAndQuery(t *testing.T) {
	t.Parallel()

	rule := pathrewrite.MustParseRule(`^/service/api/(\w+)$`, `/service/_api/$1?via=bridge`)
	b := NewBridge(NewMuxDispatcher(legacyMux()))
	ex, _ := newExchange("/service/api/whoami?x=1")

	resp, err := b.Forward(ex, rule, ModeCapturing)
	require.NoError(t, err)
	assert.Equal(t, "/service/api/whoami -> /service/_api/whoami?via=bridge&x=1", string(resp.Body))
	assert.Equal(t, "/service/api/whoami", ex.Request().URL.Path, "exchange request must not change")
}

func TestBridge_UsesOriginalPathOfDerivedExchange(t *testing.T) {
	t.Parallel()

	b := NewBridge(NewMuxDispatcher(legacyMux()))
	ex, _ := newExchange("/service/api/users")

	r := ex.Request().Clone(ex.Context())
	r.URL.Path = "/somewhere/else"
	resp, err := b.Forward(ex.WithRequest(r), pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)
	assert.Equal(t, `{"users":["Alice"]}`, string(resp.Body))
}

func TestBridge_CaptureLimitStreams(t *testing.T) {
	t.Parallel()

	b := NewBridge(NewMuxDispatcher(legacyMux()), WithCaptureLimit(100))
	ex, rec := newExchange("/service/api/large")

	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)
	assert.True(t, resp.Sent())
	assert.Equal(t, strings.Repeat("a", 64)+strings.Repeat("b", 64), rec.Body.String())
}

func TestBridge_CancelledContextIsError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBridge(NewMuxDispatcher(legacyMux()))
	r := httptest.NewRequest(http.MethodGet, "/service/api/users", nil).WithContext(ctx)
	ex := pipeline.NewExchange(httptest.NewRecorder(), r)

	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, &ForwardError{})
}

func TestBridge_Span(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	b := NewBridge(NewMuxDispatcher(legacyMux()), WithTracerProvider(tp))
	ex, _ := newExchange("/service/api/users")
	_, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "legacy.forward", spans[0].Name)

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "/service/_api/users", attrs["legacy.target_path"].AsString())
	assert.Equal(t, "capturing", attrs["legacy.mode"].AsString())
	assert.Equal(t, int64(http.StatusOK), attrs["http.status_code"].AsInt64())
}

func TestBridge_Metrics(t *testing.T) {
	m := getMetrics()
	counter := m.forwardsTotal.WithLabelValues(ModeCapturing.String(), resultUnavailable)
	before := testutil.ToFloat64(counter)

	b := NewBridge(NewMuxDispatcher(legacyMux()))
	ex, _ := newExchange("/service/api/nothing-here")
	_, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMode_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "streaming", ModeStreaming.String())
	assert.Equal(t, "capturing", ModeCapturing.String())
}
