package legacy

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avabridge/internal/observability"
)

// OriginalPathHeader carries the path the client requested to a remote
// legacy server.
const OriginalPathHeader = "X-Original-Path"

var errUpstreamStatus = errors.New("upstream server error")

// ProxyDispatcher dispatches to a legacy server over HTTP. When a circuit
// breaker is configured an open circuit makes Resolve report no handler,
// so the bridge answers with its diagnostic response.
type ProxyDispatcher struct {
	target    *url.URL
	proxy     *httputil.ReverseProxy
	transport http.RoundTripper
	breaker   *gobreaker.CircuitBreaker
	logger    observability.Logger

	breakerThreshold int
	breakerTimeout   time.Duration
}

// ProxyOption is a functional option for configuring the proxy dispatcher.
type ProxyOption func(*ProxyDispatcher)

// WithProxyLogger sets the logger for the proxy dispatcher.
func WithProxyLogger(logger observability.Logger) ProxyOption {
	return func(d *ProxyDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTransport sets the transport used to reach the legacy server.
func WithTransport(transport http.RoundTripper) ProxyOption {
	return func(d *ProxyDispatcher) {
		d.transport = transport
	}
}

// WithCircuitBreaker guards the legacy server with a circuit breaker that
// trips once threshold requests were seen and at least half failed. A
// failure is a transport error or a 5xx response.
func WithCircuitBreaker(threshold int, timeout time.Duration) ProxyOption {
	return func(d *ProxyDispatcher) {
		d.breakerThreshold = threshold
		d.breakerTimeout = timeout
	}
}

// NewProxyDispatcher creates a dispatcher for the legacy server at rawURL.
func NewProxyDispatcher(rawURL string, opts ...ProxyOption) (*ProxyDispatcher, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		if err == nil {
			err = errors.New("scheme and host are required")
		}
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidLegacyURL, rawURL, err)
	}

	d := &ProxyDispatcher{
		target:    target,
		transport: http.DefaultTransport,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}

	transport := d.transport
	if d.breakerThreshold > 0 {
		d.breaker = d.newBreaker()
		transport = &breakerTransport{base: d.transport, breaker: d.breaker}
	}

	d.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(d.target)
			pr.SetXForwarded()
			if original := OriginalPath(pr.In.Context()); original != "" {
				pr.Out.Header.Set(OriginalPathHeader, original)
			}
			observability.InjectTraceContext(pr.In.Context(), pr.Out)
		},
		Transport:     transport,
		FlushInterval: -1,
		ErrorHandler:  d.errorHandler,
	}

	return d, nil
}

func (d *ProxyDispatcher) newBreaker() *gobreaker.CircuitBreaker {
	threshold := safeIntToUint32(d.breakerThreshold)
	name := "legacy:" + d.target.Host

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: threshold,
		Interval:    d.breakerTimeout,
		Timeout:     d.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			d.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			getMetrics().breakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// Target returns the legacy server URL.
func (d *ProxyDispatcher) Target() *url.URL {
	u := *d.target
	return &u
}

// State returns the circuit breaker state. Without a breaker the circuit
// is always closed.
func (d *ProxyDispatcher) State() gobreaker.State {
	if d.breaker == nil {
		return gobreaker.StateClosed
	}
	return d.breaker.State()
}

// Resolve returns the reverse proxy unless the circuit is open.
func (d *ProxyDispatcher) Resolve(r *http.Request) (http.Handler, bool) {
	if d.State() == gobreaker.StateOpen {
		d.logger.Debug("legacy circuit open",
			observability.String("path", r.URL.Path),
		)
		return nil, false
	}
	return d.proxy, true
}

func (d *ProxyDispatcher) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}

	d.logger.Warn("legacy proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(err),
	)

	resp := UnavailableResponse(r.URL.Path)
	for k, vals := range resp.Header {
		w.Header()[k] = vals
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// breakerTransport counts transport errors and 5xx responses against the
// circuit breaker.
type breakerTransport struct {
	base    http.RoundTripper
	breaker *gobreaker.CircuitBreaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})

	resp, _ := result.(*http.Response)
	if errors.Is(err, errUpstreamStatus) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
