package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Exchange is the per-request state threaded through the chain: the inbound
// request, the transport writer and request-scoped attributes.
//
// Stages do not modify a received Exchange's request. They derive a copy
// with WithRequest or WithWriter and pass that copy to next.
type Exchange struct {
	req          *http.Request
	w            http.ResponseWriter
	attrs        map[string]interface{}
	originalPath string

	body     []byte
	bodyRead bool
}

// NewExchange creates an exchange for one inbound request.
func NewExchange(w http.ResponseWriter, r *http.Request) *Exchange {
	return &Exchange{
		req:          r,
		w:            w,
		attrs:        make(map[string]interface{}),
		originalPath: r.URL.Path,
	}
}

// Request returns the request.
func (e *Exchange) Request() *http.Request { return e.req }

// Writer returns the transport response writer.
func (e *Exchange) Writer() http.ResponseWriter { return e.w }

// Context returns the request context.
func (e *Exchange) Context() context.Context { return e.req.Context() }

// OriginalPath returns the path the request arrived with, before any stage
// derived a request with a different path.
func (e *Exchange) OriginalPath() string { return e.originalPath }

// Query returns the parsed query parameters of the current request.
func (e *Exchange) Query() url.Values { return e.req.URL.Query() }

// WithRequest returns a copy of the exchange carrying r. Attributes are
// shared with the receiver; the cached body is dropped.
func (e *Exchange) WithRequest(r *http.Request) *Exchange {
	c := *e
	c.req = r
	c.body = nil
	c.bodyRead = false
	return &c
}

// WithWriter returns a copy of the exchange writing to w.
func (e *Exchange) WithWriter(w http.ResponseWriter) *Exchange {
	c := *e
	c.w = w
	return &c
}

// Attr returns a request-scoped attribute.
func (e *Exchange) Attr(key string) (interface{}, bool) {
	v, ok := e.attrs[key]
	return v, ok
}

// SetAttr stores a request-scoped attribute, visible to every exchange
// derived from the same request.
func (e *Exchange) SetAttr(key string, value interface{}) {
	e.attrs[key] = value
}

// Body reads the request body once and restores it so later readers,
// including the legacy dispatcher, see the same bytes.
func (e *Exchange) Body() ([]byte, error) {
	if e.bodyRead {
		return e.body, nil
	}
	if e.req.Body == nil || e.req.Body == http.NoBody {
		e.bodyRead = true
		return nil, nil
	}

	data, err := io.ReadAll(e.req.Body)
	_ = e.req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	e.req.Body = io.NopCloser(bytes.NewReader(data))
	e.body = data
	e.bodyRead = true
	return data, nil
}

// WithBody returns a copy of the exchange whose request carries body.
func (e *Exchange) WithBody(body []byte) *Exchange {
	r := e.req.Clone(e.req.Context())
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	if r.Header.Get("Content-Length") != "" {
		r.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}

	c := e.WithRequest(r)
	c.body = body
	c.bodyRead = true
	return c
}
