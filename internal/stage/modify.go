package stage

import (
	"errors"
	"net/http"

	"github.com/vyrodovalexey/avabridge/internal/capture"
	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
	"github.com/vyrodovalexey/avabridge/internal/transform"
)

// passthrough is the stage installed when a stage has nothing to do.
func passthrough(name string) pipeline.Stage {
	return pipeline.Stage{
		Name: name,
		Wrap: func(next pipeline.Handler) pipeline.Handler { return next },
	}
}

// newModifyRequestBody transforms JSON request bodies before next runs. A
// malformed JSON body fails the request with a transform.InvalidJSONError.
func newModifyRequestBody(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	if err := cfg.Transform.Validate(); err != nil {
		return pipeline.Stage{}, err
	}
	fn := chainFuncs(cfg.Transform.Func(), opts.RequestTransform)
	if fn == nil {
		return passthrough(cfg.Name), nil
	}

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				if !hasRequestBody(ex.Request()) {
					return next.Serve(ex)
				}

				body, err := ex.Body()
				if err != nil {
					return pipeline.Failed(err)
				}

				contentType := ex.Request().Header.Get("Content-Type")
				out, err := transform.Observe(transform.DirectionRequest, contentType, body, fn)
				if err != nil {
					if isInvalidJSON(err) {
						opts.Logger.WithContext(ex.Context()).Debug("malformed JSON request body",
							observability.String("path", ex.OriginalPath()),
							observability.Error(err),
						)
					}
					return pipeline.Failed(err)
				}
				return next.Serve(ex.WithBody(out))
			})
		},
	}, nil
}

// newModifyRequestParams sets query parameters before next runs.
func newModifyRequestParams(cfg config.StageConfig, _ *Options) (pipeline.Stage, error) {
	if len(cfg.Params) == 0 {
		return passthrough(cfg.Name), nil
	}
	params := copyStrings(cfg.Params)

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				r := ex.Request().Clone(ex.Context())
				query := r.URL.Query()
				for name, value := range params {
					query.Set(name, value)
				}
				r.URL.RawQuery = query.Encode()
				r.RequestURI = r.URL.RequestURI()
				return next.Serve(ex.WithRequest(r))
			})
		},
	}, nil
}

// newModifyRequest sets request headers and runs the request hook before
// next runs.
func newModifyRequest(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	hook := opts.RequestHook
	if len(cfg.Headers) == 0 && hook == nil {
		return passthrough(cfg.Name), nil
	}
	headers := copyStrings(cfg.Headers)

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				r := ex.Request().Clone(ex.Context())
				for name, value := range headers {
					r.Header.Set(name, value)
				}
				if hook != nil {
					if replaced := hook(r); replaced != nil {
						r = replaced
					}
				}
				return next.Serve(ex.WithRequest(r))
			})
		},
	}, nil
}

// newModifyResponse rewrites the status, sets headers and runs the
// response hook on the response produced by next.
func newModifyResponse(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	hook := opts.ResponseHook
	if len(cfg.Headers) == 0 && len(cfg.StatusMap) == 0 && hook == nil {
		return passthrough(cfg.Name), nil
	}
	headers := copyStrings(cfg.Headers)
	statusMap := make(map[int]int, len(cfg.StatusMap))
	for from, to := range cfg.StatusMap {
		statusMap[from] = to
	}

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				resp, out := captureNext(ex, next, opts)
				if resp == nil {
					return out
				}

				if status, ok := statusMap[resp.StatusCode()]; ok {
					resp.Status = status
				}
				if len(headers) > 0 && resp.Header == nil {
					resp.Header = make(http.Header, len(headers))
				}
				for name, value := range headers {
					resp.Header.Set(name, value)
				}
				if hook != nil {
					if replaced := hook(resp); replaced != nil {
						resp = replaced
					}
				}
				return pipeline.Handled(resp)
			})
		},
	}, nil
}

// newModifyResponseBody transforms JSON bodies of responses produced by
// next.
func newModifyResponseBody(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	if err := cfg.Transform.Validate(); err != nil {
		return pipeline.Stage{}, err
	}
	fn := chainFuncs(cfg.Transform.Func(), opts.ResponseTransform)
	if fn == nil {
		return passthrough(cfg.Name), nil
	}

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				resp, out := captureNext(ex, next, opts)
				if resp == nil {
					return out
				}
				if !hasResponseBody(ex.Request(), resp.Status) {
					return pipeline.Handled(resp)
				}

				body, err := transform.Observe(transform.DirectionResponse, resp.ContentType, resp.Body, fn)
				if err != nil {
					return pipeline.Failed(err)
				}

				logger := opts.Logger.WithContext(ex.Context())
				logger.Debug("response body transformed",
					observability.String("path", ex.OriginalPath()),
					observability.String("body", string(transform.FormatIfJSON(body))),
				)

				resp.Body = body
				return pipeline.Handled(resp)
			})
		},
	}, nil
}

// captureNext runs next against a capture.Recorder and returns the
// response it produced. It returns a nil response, together with the
// outcome to pass on, when there is nothing to modify: next failed or did
// not handle the request, or the response was too large and has already
// been streamed to the client.
func captureNext(ex *pipeline.Exchange, next pipeline.Handler, opts *Options) (*pipeline.Response, pipeline.Outcome) {
	rec := capture.New(ex.Writer(), capture.WithLimit(opts.CaptureLimit))
	out := next.Serve(ex.WithWriter(rec))
	if !out.IsHandled() {
		return nil, out
	}

	resp := out.Response()
	if !resp.Sent() {
		return resp.Clone(), out
	}
	if rec.Streaming() {
		opts.Logger.WithContext(ex.Context()).Debug("response streamed, not modified",
			observability.String("path", ex.OriginalPath()),
		)
		return nil, out
	}
	return rec.Response(), out
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// isInvalidJSON reports whether err is a malformed JSON failure.
func isInvalidJSON(err error) bool {
	return errors.Is(err, transform.ErrInvalidJSON)
}

// hasRequestBody reports whether r was sent with a body. A request without
// one has nothing to transform.
func hasRequestBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody
}

// hasResponseBody reports whether a response with status may carry a body
// for a request r.
func hasResponseBody(r *http.Request, status int) bool {
	switch {
	case r.Method == http.MethodHead:
		return false
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
