package errors

import "github.com/pkg/errors"

// StackTracer is satisfied by errors that carry a pkg/errors stack trace.
type StackTracer interface {
	StackTrace() errors.StackTrace
}

// ErrorTracer decorates an error with a message and guarantees a stack trace
// somewhere in the chain, so the logger can always print one. Unwrap keeps
// the cause visible, which lets Code and IsCode see through a tracer to a
// coded ErrorDetails underneath.
type ErrorTracer struct {
	Message string
	Err     error
}

// NewTracer creates a tracer that is its own root cause. Attach an
// underlying error with Wrap.
func NewTracer(message string) *ErrorTracer {
	return &ErrorTracer{Message: message}
}

// TracerFromError wraps err under its own message, adding a stack trace
// unless it already carries one.
func TracerFromError(err error) *ErrorTracer {
	return NewTracer(err.Error()).Wrap(err)
}

// Wrap attaches the cause. The original stack trace is preserved when err
// already has one; otherwise the stack is captured here.
func (e *ErrorTracer) Wrap(err error) *ErrorTracer {
	if _, ok := err.(StackTracer); ok {
		e.Err = err
		return e
	}
	e.Err = errors.WithStack(err)
	return e
}

func (e *ErrorTracer) Error() string {
	return e.Message
}

func (e *ErrorTracer) Unwrap() error {
	return e.Err
}

// StackTrace returns the cause's stack trace, or nil for a tracer with no
// cause.
func (e *ErrorTracer) StackTrace() errors.StackTrace {
	if st, ok := e.Err.(StackTracer); ok {
		return st.StackTrace()
	}
	return nil
}
