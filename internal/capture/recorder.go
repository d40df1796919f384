// Package capture provides a response writer that buffers a handler's
// output and can either hand it back as a structured response or replay it
// to the client and switch to passthrough.
package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

// ErrStreaming is returned when buffered state is modified after the
// recorder started streaming.
var ErrStreaming = errors.New("response is already streaming")

// Option configures a Recorder.
type Option func(*Recorder)

// WithLimit switches the recorder to streaming once more than n bytes
// would be buffered. Zero or a negative n disables the limit.
func WithLimit(n int64) Option {
	return func(r *Recorder) {
		r.limit = n
	}
}

// Recorder captures status, headers and body written by a handler.
//
// It starts in buffering mode. StartStreaming flushes everything buffered
// to the underlying writer exactly once and makes every later write pass
// straight through. The transition cannot be undone.
type Recorder struct {
	w           http.ResponseWriter
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
	streaming   bool
	limit       int64
}

// New wraps w in a buffering Recorder.
func New(w http.ResponseWriter, opts ...Option) *Recorder {
	r := &Recorder{
		w:      w,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Header returns the buffered header map, or the underlying writer's
// header map once streaming.
func (r *Recorder) Header() http.Header {
	if r.streaming {
		return r.w.Header()
	}
	return r.header
}

// WriteHeader records the status. Only the first final status counts.
// Informational 1xx statuses other than 101 are not final: they are
// dropped while buffering and passed on while streaming.
func (r *Recorder) WriteHeader(code int) {
	if isInformational(code) {
		if r.streaming && !r.wroteHeader {
			r.w.WriteHeader(code)
		}
		return
	}
	if r.streaming {
		if !r.wroteHeader {
			r.status = code
			r.wroteHeader = true
			r.w.WriteHeader(code)
		}
		return
	}
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
}

// Write buffers b. If buffering b would exceed the limit the recorder
// switches to streaming first and b goes to the client.
func (r *Recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if r.streaming {
		return r.w.Write(b)
	}

	if r.limit > 0 && int64(r.body.Len())+int64(len(b)) > r.limit {
		if err := r.StartStreaming(); err != nil {
			return 0, err
		}
		return r.w.Write(b)
	}

	return r.body.Write(b)
}

// StartStreaming copies the buffered headers, status and body to the
// underlying writer and switches to passthrough. Calling it again is a
// no-op.
func (r *Recorder) StartStreaming() error {
	if r.streaming {
		return nil
	}
	r.streaming = true

	dst := r.w.Header()
	for k, vals := range r.header {
		dst.Del(k)
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
	if r.wroteHeader {
		r.w.WriteHeader(r.status)
	}

	if r.body.Len() == 0 {
		return nil
	}
	_, err := r.w.Write(r.body.Bytes())
	r.body.Reset()
	if err != nil {
		return fmt.Errorf("failed to flush buffered response: %w", err)
	}
	return nil
}

// Streaming reports whether the recorder switched to passthrough.
func (r *Recorder) Streaming() bool { return r.streaming }

// Status returns the recorded status, 200 when none was written.
func (r *Recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// ContentType returns the recorded Content-Type header.
func (r *Recorder) ContentType() string {
	return r.Header().Get("Content-Type")
}

// Body returns the buffered body. It is empty once streaming.
func (r *Recorder) Body() []byte {
	return r.body.Bytes()
}

// Len returns the number of buffered bytes.
func (r *Recorder) Len() int {
	return r.body.Len()
}

// SetStatus overrides the buffered status.
func (r *Recorder) SetStatus(code int) error {
	if r.streaming {
		return ErrStreaming
	}
	r.status = code
	r.wroteHeader = true
	return nil
}

// SetBody replaces the buffered body.
func (r *Recorder) SetBody(b []byte) error {
	if r.streaming {
		return ErrStreaming
	}
	r.body.Reset()
	_, _ = r.body.Write(b)
	return nil
}

// Response returns a copy of the captured state. Once streaming it returns
// the already-sent sentinel.
func (r *Recorder) Response() *pipeline.Response {
	if r.streaming {
		return pipeline.SentResponse()
	}

	header := r.header.Clone()
	header.Del("Content-Type")
	header.Del("Content-Length")

	var body []byte
	if r.body.Len() > 0 {
		body = append([]byte(nil), r.body.Bytes()...)
	}

	return &pipeline.Response{
		Status:      r.Status(),
		ContentType: r.header.Get("Content-Type"),
		Header:      header,
		Body:        body,
	}
}

// Flush forwards to the underlying writer once streaming. While buffering
// it does nothing.
func (r *Recorder) Flush() {
	if !r.streaming {
		return
	}
	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker.
func (r *Recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.w.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap returns the underlying writer for http.ResponseController.
func (r *Recorder) Unwrap() http.ResponseWriter {
	return r.w
}

func isInformational(code int) bool {
	return code >= 100 && code < 200 && code != http.StatusSwitchingProtocols
}
