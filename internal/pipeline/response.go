package pipeline

import (
	"net/http"
	"strconv"
)

// SkipResponseHeader marks a Response whose content already reached the
// client. The transport must not write anything further for it.
const SkipResponseHeader = "X-Skip-Response"

// Response is the structured result of a handled request.
type Response struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
}

// NewResponse returns a response with the given status, content type and body.
func NewResponse(status int, contentType string, body []byte) *Response {
	return &Response{
		Status:      status,
		ContentType: contentType,
		Header:      make(http.Header),
		Body:        body,
	}
}

// TextResponse returns a text/plain response.
func TextResponse(status int, text string) *Response {
	return NewResponse(status, "text/plain; charset=utf-8", []byte(text))
}

// SentResponse returns the sentinel for output that was streamed straight
// to the client.
func SentResponse() *Response {
	h := make(http.Header)
	h.Set(SkipResponseHeader, "true")
	return &Response{Header: h}
}

// Sent reports whether r is the already-sent sentinel.
func (r *Response) Sent() bool {
	if r == nil || r.Header == nil {
		return false
	}
	sent, _ := strconv.ParseBool(r.Header.Get(SkipResponseHeader))
	return sent
}

// StatusCode returns the status, defaulting to 200.
func (r *Response) StatusCode() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := &Response{
		Status:      r.Status,
		ContentType: r.ContentType,
		Header:      r.Header.Clone(),
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return c
}

// WriteResponse writes r to w: headers, content type, status and body.
// The sentinel returned by SentResponse is never written.
func WriteResponse(w http.ResponseWriter, r *Response) error {
	if r == nil || r.Sent() {
		return nil
	}

	dst := w.Header()
	for k, vals := range r.Header {
		if http.CanonicalHeaderKey(k) == SkipResponseHeader {
			continue
		}
		dst.Del(k)
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
	if r.ContentType != "" {
		dst.Set("Content-Type", r.ContentType)
	}
	if len(r.Body) > 0 {
		dst.Set("Content-Length", strconv.Itoa(len(r.Body)))
	} else {
		dst.Del("Content-Length")
	}

	w.WriteHeader(r.StatusCode())
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
