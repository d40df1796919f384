package stage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/legacy"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
	"github.com/vyrodovalexey/avabridge/internal/transform"
)

func TestNotFound_DefaultBody(t *testing.T) {
	t.Parallel()

	rec := serve(t, stages(config.StageNotFound), Options{}, get("/nowhere"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, DefaultNotFoundBody, rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	opts := Options{Logger: observability.NewLoggerFromZap(zap.New(core))}

	rec := serve(t, stages(config.StageJSONError, config.StageRecovery), opts, get("/service/panic"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"type":"internal_error","message":"internal server error"}`, rec.Body.String())

	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/service/panic", entries[0].ContextMap()["path"])
}

func TestRecovery_WithoutJSONError(t *testing.T) {
	t.Parallel()

	rec := serve(t, stages(config.StageRecovery), Options{}, get("/service/panic"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       Options
		wantStatus int
		wantBody   string
	}{
		{
			name:       "default converter",
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"type":"error","message":"boom"}`,
		},
		{
			name: "rejected by IsAppError",
			opts: Options{
				IsAppError: func(error, *pipeline.Exchange) bool { return false },
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "custom converter",
			opts: Options{
				ErrorConverter: func(err error) *pipeline.Response {
					return pipeline.TextResponse(http.StatusTeapot, "converted "+err.Error())
				},
			},
			wantStatus: http.StatusTeapot,
			wantBody:   "converted boom",
		},
		{
			name: "converter declines",
			opts: Options{
				ErrorConverter: func(error) *pipeline.Response { return nil },
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(t, stages(config.StageJSONError), tt.opts, get("/service/fail"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestDefaultIsAppError(t *testing.T) {
	t.Parallel()

	assert.True(t, DefaultIsAppError(errors.New("boom"), nil))
	assert.False(t, DefaultIsAppError(context.Canceled, nil))
	assert.False(t, DefaultIsAppError(context.DeadlineExceeded, nil))
	assert.False(t, DefaultIsAppError(&legacy.ForwardError{Target: "/x", Cause: context.Canceled}, nil))
}

func TestDefaultErrorConverter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantMsg    string
	}{
		{
			name:       "invalid json",
			err:        transform.NewInvalidJSONError(errors.New("unexpected EOF")),
			wantStatus: http.StatusBadRequest,
			wantType:   transform.InvalidJSONErrorType,
			wantMsg:    "passed in json is not valid: unexpected EOF",
		},
		{
			name:       "panic",
			err:        &PanicError{Value: "secret detail"},
			wantStatus: http.StatusInternalServerError,
			wantType:   ErrorTypeInternal,
			wantMsg:    "internal server error",
		},
		{
			name:       "generic",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   ErrorTypeGeneric,
			wantMsg:    "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := DefaultErrorConverter(tt.err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "application/json", resp.ContentType)

			var body errorBody
			require.NoError(t, json.Unmarshal(resp.Body, &body))
			assert.Equal(t, tt.wantType, body.Type)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}

func TestPanicError(t *testing.T) {
	t.Parallel()

	cause := errors.New("inner")
	err := &PanicError{Value: cause}
	assert.Equal(t, "panic: inner", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, (&PanicError{Value: 42}).Unwrap())
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	req := get("/service/api/echo")
	req.Header.Set(RequestIDHeader, "req-123")

	rec := serve(t, stages(config.StageRequestID, config.StageCaptureUnhandled), Options{}, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", decodeEcho(t, rec)["requestId"])
}

func TestRequestID_Generated(t *testing.T) {
	t.Parallel()

	rec := serve(t, stages(config.StageRequestID, config.StageCaptureUnhandled), Options{}, get("/service/api/echo"))

	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, decodeEcho(t, rec)["requestId"])
}

func TestAccessLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfgs        []config.StageConfig
		target      string
		wantStatus  int64
		wantOutcome string
	}{
		{
			name:        "not found",
			cfgs:        stages(config.StageAccessLog, config.StageRequestID, config.StageNotFound),
			target:      "/nowhere?q=1",
			wantStatus:  http.StatusNotFound,
			wantOutcome: "handled",
		},
		{
			name:        "streamed legacy response",
			cfgs:        stages(config.StageAccessLog, config.StageRequestID, config.StageForwardUnhandled),
			target:      "/service/api/users",
			wantStatus:  http.StatusOK,
			wantOutcome: "handled",
		},
		{
			name:        "unhandled",
			cfgs:        stages(config.StageAccessLog, config.StageRequestID),
			target:      "/nowhere",
			wantStatus:  http.StatusNotFound,
			wantOutcome: "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			opts := Options{Logger: observability.NewLoggerFromZap(zap.New(core))}

			rec := serve(t, tt.cfgs, opts, get(tt.target))
			assert.Equal(t, int(tt.wantStatus), rec.Code)

			entries := logs.FilterMessage("http request").All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, http.MethodGet, fields["method"])
			assert.Equal(t, tt.wantStatus, fields["status"])
			assert.Equal(t, tt.wantOutcome, fields["outcome"])
			assert.Equal(t, rec.Header().Get(RequestIDHeader), fields["request_id"])
			assert.NotEmpty(t, fields["request_id"])
		})
	}
}

func TestStatusWriter_InformationalStatusNotFinal(t *testing.T) {
	t.Parallel()

	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	sw.WriteHeader(http.StatusEarlyHints)
	sw.WriteHeader(http.StatusCreated)
	_, err := sw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, sw.status)
	assert.Equal(t, 2, sw.size)
}
