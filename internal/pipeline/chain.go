package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avabridge/internal/observability"
)

// Handler serves an exchange and reports its outcome.
type Handler interface {
	Serve(ex *Exchange) Outcome
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ex *Exchange) Outcome

// Serve calls f(ex).
func (f HandlerFunc) Serve(ex *Exchange) Outcome { return f(ex) }

// Stage is one named link of the chain. Wrap receives the rest of the
// chain as next and returns the handler for this link.
type Stage struct {
	Name string
	Wrap func(next Handler) Handler
}

// NotFoundHandler reports every exchange as not found.
var NotFoundHandler Handler = HandlerFunc(NotFound)

// Chain is a composed, immutable sequence of stages ending in a terminal
// handler.
type Chain struct {
	handler  Handler
	names    []string
	notFound *Response
	logger   observability.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithNotFoundResponse sets the response used when a not-found outcome
// reaches the top of the chain.
func WithNotFoundResponse(resp *Response) ChainOption {
	return func(c *Chain) {
		if resp != nil {
			c.notFound = resp
		}
	}
}

// WithChainLogger sets the logger for the chain.
func WithChainLogger(logger observability.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// DefaultNotFoundResponse returns the response for unclaimed requests.
func DefaultNotFoundResponse() *Response {
	return TextResponse(http.StatusNotFound, "Not Found")
}

// NewChain composes stages around terminal. The first stage is outermost:
// it sees the request first and the outcome last. A nil terminal reports
// every request as not found.
func NewChain(terminal Handler, stages []Stage, opts ...ChainOption) *Chain {
	if terminal == nil {
		terminal = NotFoundHandler
	}

	c := &Chain{
		notFound: DefaultNotFoundResponse(),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	h := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		s := stages[i]
		if s.Wrap == nil {
			continue
		}
		if wrapped := s.Wrap(h); wrapped != nil {
			h = wrapped
		}
	}
	c.handler = h

	c.names = make([]string, 0, len(stages))
	for _, s := range stages {
		c.names = append(c.names, s.Name)
	}
	return c
}

// Stages returns the configured stage names in order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

// Serve runs the composed handler. A not-found outcome is reported as a
// failure when the request context is already done.
func (c *Chain) Serve(ex *Exchange) Outcome {
	out := c.handler.Serve(ex)
	if out.Kind() == KindInvalid {
		out = Failed(ErrNoOutcome)
	}
	if out.IsNotFound() {
		if err := ex.Context().Err(); err != nil {
			out = Failed(err)
		}
	}
	getMetrics().outcomes.WithLabelValues(out.Kind().String()).Inc()
	return out
}

// Execute runs the chain and resolves the outcome to a response. A
// not-found outcome becomes the not-found response; a failure is returned
// as is.
func (c *Chain) Execute(ex *Exchange) (*Response, error) {
	out := c.Serve(ex)
	switch out.Kind() {
	case KindHandled:
		return out.Response(), nil
	case KindNotFound:
		return c.notFound.Clone(), nil
	default:
		return nil, out.Err()
	}
}

// ServeHTTP implements http.Handler.
func (c *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ex := NewExchange(w, r)
	logger := c.logger.WithContext(r.Context())

	resp, err := c.Execute(ex)
	if err != nil {
		if isContextError(err) && r.Context().Err() != nil {
			logger.Debug("request cancelled",
				observability.String("path", r.URL.Path),
				observability.Error(err),
			)
			return
		}
		logger.Error("unhandled pipeline error",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.Duration("duration", time.Since(start)),
			observability.Error(err),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := WriteResponse(w, resp); err != nil {
		logger.Debug("failed to write response",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
