package stage

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Request-ID"

// DefaultNotFoundBody is written by the not-found stage when no body is
// configured.
const DefaultNotFoundBody = "Not Found"

// newNotFound turns a not-found outcome into a 404 response.
func newNotFound(cfg config.StageConfig, _ *Options) (pipeline.Stage, error) {
	body := cfg.NotFoundBody
	if body == "" {
		body = DefaultNotFoundBody
	}

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				out := next.Serve(ex)
				if !out.IsNotFound() || ex.Context().Err() != nil {
					return out
				}
				return pipeline.Handled(pipeline.TextResponse(http.StatusNotFound, body))
			})
		},
	}, nil
}

// newRecovery converts panics raised further down the chain into a
// *PanicError failure. http.ErrAbortHandler is re-raised.
func newRecovery(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	logger := opts.Logger

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) (out pipeline.Outcome) {
				defer func() {
					v := recover()
					if v == nil {
						return
					}
					if v == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
						panic(v)
					}

					stack := debug.Stack()
					logger.WithContext(ex.Context()).Error("panic recovered",
						observability.Any("error", v),
						observability.String("stack", string(stack)),
						observability.String("path", ex.OriginalPath()),
						observability.String("method", ex.Request().Method),
					)
					out = pipeline.Failed(&PanicError{Value: v, Stack: stack})
				}()

				return next.Serve(ex)
			})
		},
	}, nil
}

// newJSONError converts failures accepted by Options.IsAppError into the
// response built by Options.ErrorConverter.
func newJSONError(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	isAppError := opts.IsAppError
	convert := opts.ErrorConverter
	logger := opts.Logger

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				out := next.Serve(ex)
				if !out.IsFailed() {
					return out
				}

				err := out.Err()
				if !isAppError(err, ex) {
					return out
				}
				resp := convert(err)
				if resp == nil {
					return out
				}

				logger.WithContext(ex.Context()).Debug("request failed, error converted",
					observability.Error(err),
					observability.Int("status", resp.StatusCode()),
				)
				return pipeline.Handled(resp)
			})
		},
	}, nil
}

// newRequestID takes the request ID from the request header or generates
// one, stores it in the request context and echoes it on the response.
func newRequestID(cfg config.StageConfig, _ *Options) (pipeline.Stage, error) {
	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				requestID := ex.Request().Header.Get(RequestIDHeader)
				if requestID == "" {
					requestID = uuid.New().String()
				}

				ctx := observability.ContextWithRequestID(ex.Context(), requestID)
				r := ex.Request().Clone(ctx)
				r.Header.Set(RequestIDHeader, requestID)
				ex.Writer().Header().Set(RequestIDHeader, requestID)

				return next.Serve(ex.WithRequest(r))
			})
		},
	}, nil
}

// newAccessLog writes one structured line per request.
func newAccessLog(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	logger := opts.Logger

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				start := time.Now()
				sw := &statusWriter{ResponseWriter: ex.Writer()}
				out := next.Serve(ex.WithWriter(sw))

				r := ex.Request()
				requestID := observability.RequestIDFromContext(ex.Context())
				if requestID == "" {
					requestID = sw.Header().Get(RequestIDHeader)
				}

				logger.Info("http request",
					observability.String("method", r.Method),
					observability.String("path", ex.OriginalPath()),
					observability.String("query", r.URL.RawQuery),
					observability.String("outcome", out.Kind().String()),
					observability.Int("status", outcomeStatus(out, sw)),
					observability.Int("size", outcomeSize(out, sw)),
					observability.Duration("duration", time.Since(start)),
					observability.String("remote_addr", r.RemoteAddr),
					observability.String("user_agent", r.UserAgent()),
					observability.String("request_id", requestID),
				)
				return out
			})
		},
	}, nil
}

// outcomeStatus is the status the client receives for out, as far as it is
// known at this stage.
func outcomeStatus(out pipeline.Outcome, sw *statusWriter) int {
	switch {
	case out.IsHandled() && !out.Response().Sent():
		return out.Response().StatusCode()
	case out.IsHandled():
		return sw.StatusCode()
	case out.IsNotFound():
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func outcomeSize(out pipeline.Outcome, sw *statusWriter) int {
	if out.IsHandled() && !out.Response().Sent() {
		return len(out.Response().Body)
	}
	return sw.size
}

// statusWriter records the status and size of responses written directly
// to the transport.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 && (code < 100 || code >= 200 || code == http.StatusSwitchingProtocols) {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// StatusCode returns the written status, 200 when none was written.
func (w *statusWriter) StatusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
