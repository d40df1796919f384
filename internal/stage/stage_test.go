package stage

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/legacy"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

// legacyMux stands in for the legacy application.
func legacyMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/service/_api/users", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"users":["Alice"]}`)
	})
	mux.HandleFunc("/service/_api/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"method":    r.Method,
			"query":     r.URL.RawQuery,
			"header":    r.Header.Get("X-Bridge"),
			"body":      string(body),
			"requestId": r.Header.Get(RequestIDHeader),
		})
	})
	mux.HandleFunc("/service/_api/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/service/_api/blank", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/service/_api/big", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, strings.Repeat("x", 128))
	})
	return mux
}

// testRouter serves the routes implemented natively by the bridge.
func testRouter() *pipeline.Router {
	rt := pipeline.NewRouter()
	rt.Get("/service/native", func(*pipeline.Exchange) pipeline.Outcome {
		return pipeline.Handled(pipeline.NewResponse(http.StatusOK, "application/json", []byte(`{"native":true}`)))
	})
	rt.Get("/service/panic", func(*pipeline.Exchange) pipeline.Outcome {
		panic("route exploded")
	})
	rt.Get("/service/fail", func(*pipeline.Exchange) pipeline.Outcome {
		return pipeline.Failed(errors.New("boom"))
	})
	rt.HandleHTTP(http.MethodGet, "/service/raw", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"raw":true}`)
	}))
	return rt
}

func testBridge() *legacy.Bridge {
	return legacy.NewBridge(legacy.NewMuxDispatcher(legacyMux()))
}

func serve(t *testing.T, cfgs []config.StageConfig, opts Options, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	if opts.Bridge == nil {
		opts.Bridge = testBridge()
	}
	stages, err := Build(cfgs, opts)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	pipeline.NewChain(testRouter(), stages).ServeHTTP(rec, req)
	return rec
}

func get(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func stages(names ...string) []config.StageConfig {
	cfgs := make([]config.StageConfig, 0, len(names))
	for _, name := range names {
		cfgs = append(cfgs, config.StageConfig{Name: name})
	}
	return cfgs
}

func decodeEcho(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var echo map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &echo))
	return echo
}

func boolPtr(b bool) *bool { return &b }
