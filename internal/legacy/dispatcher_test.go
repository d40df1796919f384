package legacy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuxDispatcher_Resolve(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("item " + r.PathValue("id")))
	})
	d := NewMuxDispatcher(mux)

	h, ok := d.Resolve(httptest.NewRequest(http.MethodGet, "/_api/items/9", nil))
	require.True(t, ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_api/items/9", nil))
	assert.Equal(t, "item 9", rec.Body.String())

	_, ok = d.Resolve(httptest.NewRequest(http.MethodGet, "/_api/other", nil))
	assert.False(t, ok)

	_, ok = NewMuxDispatcher(nil).Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
