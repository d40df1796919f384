package pipeline

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type routeSlotKey struct{}

type routeSlot struct {
	ex      *Exchange
	outcome Outcome
	served  bool
}

// Router is a terminal handler for the routes owned by the new layer.
// Requests with no matching route yield NotFound so forwarding stages can
// hand them to the legacy dispatcher. Path parameters are read with
// chi.URLParam on the exchange's request.
type Router struct {
	mux *chi.Mux
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{mux: chi.NewRouter()}
}

// Use appends net/http middlewares applied to matched routes.
func (rt *Router) Use(middlewares ...func(http.Handler) http.Handler) {
	rt.mux.Use(middlewares...)
}

// Method registers h for method and pattern.
func (rt *Router) Method(method, pattern string, h Handler) {
	rt.mux.Method(method, pattern, rt.adapt(h))
}

// Handle registers h for every method on pattern.
func (rt *Router) Handle(pattern string, h Handler) {
	rt.mux.Handle(pattern, rt.adapt(h))
}

// Get registers h for GET requests on pattern.
func (rt *Router) Get(pattern string, h HandlerFunc) { rt.Method(http.MethodGet, pattern, h) }

// Post registers h for POST requests on pattern.
func (rt *Router) Post(pattern string, h HandlerFunc) { rt.Method(http.MethodPost, pattern, h) }

// Put registers h for PUT requests on pattern.
func (rt *Router) Put(pattern string, h HandlerFunc) { rt.Method(http.MethodPut, pattern, h) }

// Delete registers h for DELETE requests on pattern.
func (rt *Router) Delete(pattern string, h HandlerFunc) { rt.Method(http.MethodDelete, pattern, h) }

// HandleHTTP registers a plain http.Handler. Its output goes straight to
// the client and the route reports the already-sent sentinel.
func (rt *Router) HandleHTTP(method, pattern string, h http.Handler) {
	rt.Method(method, pattern, HandlerFunc(func(ex *Exchange) Outcome {
		h.ServeHTTP(ex.Writer(), ex.Request())
		return Handled(SentResponse())
	}))
}

// Match reports whether a route exists for method and path.
func (rt *Router) Match(method, path string) bool {
	return rt.mux.Match(chi.NewRouteContext(), method, path)
}

// Serve dispatches the exchange to the matching route.
func (rt *Router) Serve(ex *Exchange) Outcome {
	r := ex.Request()
	if !rt.Match(r.Method, routePath(r)) {
		return NotFound(ex)
	}

	slot := &routeSlot{ex: ex}
	ctx := context.WithValue(r.Context(), routeSlotKey{}, slot)
	rt.mux.ServeHTTP(ex.Writer(), r.WithContext(ctx))

	if !slot.served {
		// A middleware answered without reaching the route.
		return Handled(SentResponse())
	}
	return slot.outcome
}

func (rt *Router) adapt(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot, ok := r.Context().Value(routeSlotKey{}).(*routeSlot)
		if !ok {
			// Served outside of Router.Serve.
			ex := NewExchange(w, r)
			resp, err := NewChain(h, nil).Execute(ex)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			_ = WriteResponse(w, resp)
			return
		}
		slot.served = true
		slot.outcome = h.Serve(slot.ex.WithRequest(r).WithWriter(w))
	})
}

func routePath(r *http.Request) string {
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	return r.URL.Path
}
