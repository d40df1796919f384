package legacy

import (
	"net/http"
)

// Dispatcher locates the legacy handler for a request whose path has
// already been translated.
type Dispatcher interface {
	// Resolve returns the handler serving r, or false when the legacy
	// system has nothing for it.
	Resolve(r *http.Request) (http.Handler, bool)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(r *http.Request) (http.Handler, bool)

// Resolve calls f(r).
func (f DispatcherFunc) Resolve(r *http.Request) (http.Handler, bool) { return f(r) }

// MuxDispatcher dispatches to an in-process http.ServeMux.
type MuxDispatcher struct {
	mux *http.ServeMux
}

// NewMuxDispatcher creates a dispatcher for mux.
func NewMuxDispatcher(mux *http.ServeMux) *MuxDispatcher {
	return &MuxDispatcher{mux: mux}
}

// Resolve reports whether a pattern registered on the mux matches r. The
// mux itself is returned so wildcard values reach r.PathValue.
func (d *MuxDispatcher) Resolve(r *http.Request) (http.Handler, bool) {
	if d.mux == nil {
		return nil, false
	}
	if _, pattern := d.mux.Handler(r); pattern == "" {
		return nil, false
	}
	return d.mux, true
}
