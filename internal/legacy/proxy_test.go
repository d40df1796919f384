package legacy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avabridge/internal/pathrewrite"
)

func TestNewProxyDispatcher_InvalidURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not a url", "/relative/only", "http://[::1"} {
		_, err := NewProxyDispatcher(raw)
		assert.ErrorIs(t, err, ErrInvalidLegacyURL, raw)
	}
}

func TestProxyDispatcher_ForwardsTranslatedPath(t *testing.T) {
	t.Parallel()

	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Seen-Path", r.URL.Path)
		w.Header().Set("X-Seen-Original", r.Header.Get(OriginalPathHeader))
		_, _ = io.WriteString(w, `{"users":["Alice"]}`)
	}))
	t.Cleanup(legacy.Close)

	d, err := NewProxyDispatcher(legacy.URL)
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, d.State())

	b := NewBridge(d)
	ex, _ := newExchange("/service/api/users")
	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Equal(t, "/service/_api/users", resp.Header.Get("X-Seen-Path"))
	assert.Equal(t, "/service/api/users", resp.Header.Get("X-Seen-Original"))
	assert.Equal(t, `{"users":["Alice"]}`, string(resp.Body))
}

func TestProxyDispatcher_UnreachableServer(t *testing.T) {
	t.Parallel()

	legacy := httptest.NewServer(http.NotFoundHandler())
	url := legacy.URL
	legacy.Close()

	d, err := NewProxyDispatcher(url)
	require.NoError(t, err)

	b := NewBridge(d)
	ex, _ := newExchange("/service/api/users")
	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.True(t, IsUnavailable(resp))
}

func TestProxyDispatcher_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(legacy.Close)

	d, err := NewProxyDispatcher(legacy.URL, WithCircuitBreaker(2, time.Minute))
	require.NoError(t, err)
	b := NewBridge(d)

	for i := 0; i < 2; i++ {
		ex, _ := newExchange("/service/api/users")
		resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.Status, "5xx responses pass through")
	}

	assert.Equal(t, gobreaker.StateOpen, d.State())

	ex, _ := newExchange("/service/api/users")
	resp, err := b.Forward(ex, pathrewrite.DefaultRule(), ModeCapturing)
	require.NoError(t, err)
	assert.True(t, IsUnavailable(resp))
	assert.Equal(t, int32(2), hits.Load())
}

func TestProxyDispatcher_Target(t *testing.T) {
	t.Parallel()

	d, err := NewProxyDispatcher("http://legacy.internal:8081/base")
	require.NoError(t, err)

	u := d.Target()
	u.Host = "changed"
	assert.Equal(t, "legacy.internal:8081", d.Target().Host)
}
