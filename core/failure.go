package core

import (
	"errors"
	"reflect"

	goerrors "github.com/go-errors/errors"
)

// Failure is a serializable representation of an error that terminated a task.
type Failure struct {
	Type       string   `json:"type,omitempty"`
	Message    string   `json:"message,omitempty"`
	Stacktrace string   `json:"stacktrace,omitempty"`
	Cause      *Failure `json:"cause,omitempty"`
}

var _ error = (*Failure)(nil)

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	if f == nil || f.Cause == nil {
		return nil
	}

	return f.Cause
}

// Is matches the sentinel errors of this package by failure type, so that a restored failure
// still satisfies errors.Is(f, ErrBackendFailure).
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrBackendFailure:
		return f.Type == errorType(&BackendFailure{})
	}

	return false
}

// FromError wraps the given error into a failure which can be persisted and restored.
func FromError(err error) *Failure {
	if err == nil {
		return nil
	}

	if f, ok := err.(*Failure); ok {
		return f
	}

	f := &Failure{
		Type:    errorType(err),
		Message: err.Error(),
	}

	if st, ok := err.(interface{ Stacktrace() string }); ok {
		f.Stacktrace = st.Stacktrace()
	}

	if cause := errors.Unwrap(err); cause != nil {
		f.Cause = FromError(cause)
	}

	return f
}

// PanicError is the error recorded for a job function that panicked.
type PanicError struct {
	message    string
	stacktrace string
}

func (pe *PanicError) Error() string {
	return pe.message
}

func (pe *PanicError) Stacktrace() string {
	return pe.stacktrace
}

// NewPanicError captures the current stack for a recovered panic value.
func NewPanicError(v any) *PanicError {
	goerr := goerrors.Wrap(v, 2)

	return &PanicError{
		message:    goerr.Error(),
		stacktrace: string(goerr.Stack()),
	}
}

func errorType(err error) string {
	t := reflect.TypeOf(err)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Name()
}
