package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoOutcome is reported when a handler returns the zero Outcome.
var ErrNoOutcome = errors.New("handler produced no outcome")

// Kind identifies which shape an Outcome holds.
type Kind int

const (
	// KindInvalid is the zero Outcome.
	KindInvalid Kind = iota
	// KindHandled carries a response.
	KindHandled
	// KindNotFound means no stage claimed the request.
	KindNotFound
	// KindFailed carries an error.
	KindFailed
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindHandled:
		return "handled"
	case KindNotFound:
		return "not_found"
	case KindFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Outcome is the result of running a handler: exactly one of a response,
// a not-found signal, or an error.
type Outcome struct {
	kind     Kind
	response *Response
	exchange *Exchange
	err      error
}

// Handled returns an outcome carrying resp. A nil resp yields a failure.
func Handled(resp *Response) Outcome {
	if resp == nil {
		return Failed(fmt.Errorf("%w: nil response", ErrNoOutcome))
	}
	return Outcome{kind: KindHandled, response: resp}
}

// NotFound returns the not-found signal for ex. The exchange is kept so an
// ancestor stage can retry the request elsewhere.
func NotFound(ex *Exchange) Outcome {
	return Outcome{kind: KindNotFound, exchange: ex}
}

// Failed returns an outcome carrying err. A nil err yields ErrNoOutcome.
func Failed(err error) Outcome {
	if err == nil {
		err = ErrNoOutcome
	}
	return Outcome{kind: KindFailed, err: err}
}

// Kind returns the shape of the outcome.
func (o Outcome) Kind() Kind { return o.kind }

// IsHandled reports whether the outcome carries a response.
func (o Outcome) IsHandled() bool { return o.kind == KindHandled }

// IsNotFound reports whether the outcome is the not-found signal.
func (o Outcome) IsNotFound() bool { return o.kind == KindNotFound }

// IsFailed reports whether the outcome carries an error.
func (o Outcome) IsFailed() bool { return o.kind == KindFailed }

// Response returns the response of a handled outcome, or nil.
func (o Outcome) Response() *Response { return o.response }

// Exchange returns the exchange attached to a not-found outcome, or nil.
func (o Outcome) Exchange() *Exchange { return o.exchange }

// Err returns the error of a failed outcome. The zero Outcome reports
// ErrNoOutcome.
func (o Outcome) Err() error {
	if o.kind == KindInvalid {
		return ErrNoOutcome
	}
	return o.err
}

// String describes the outcome for logs.
func (o Outcome) String() string {
	switch o.kind {
	case KindHandled:
		return fmt.Sprintf("handled(%d)", o.response.StatusCode())
	case KindFailed:
		return fmt.Sprintf("failed(%v)", o.err)
	default:
		return o.kind.String()
	}
}
