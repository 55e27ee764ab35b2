package dispatch

import (
	"errors"
	"fmt"
	"maps"
)

// Error is the base shape shared by framework and application errors.
//
// Data is safe to return to clients. Info is for logs only and must never be
// rendered by an adapter.
type Error struct {
	Name    string
	Message string
	Data    map[string]any
	Info    map[string]any

	// Status is an optional transport hint, e.g. an HTTP status code.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Name
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Name, so catalog sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name != "" && t.Name == e.Name
}

// WithData sets a client-safe data key and returns e.
func (e *Error) WithData(key string, value any) *Error {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// WithInfo sets an internal-only info key and returns e.
func (e *Error) WithInfo(key string, value any) *Error {
	if e.Info == nil {
		e.Info = make(map[string]any)
	}
	e.Info[key] = value
	return e
}

// WithStatus sets the transport status hint and returns e.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// Wrap records cause as the underlying error and returns e.
func (e *Error) Wrap(cause error) *Error {
	e.Err = cause
	return e
}

// clone returns a copy whose maps can be mutated independently.
func (e *Error) clone() *Error {
	c := *e
	c.Data = maps.Clone(e.Data)
	c.Info = maps.Clone(e.Info)
	return &c
}

// Kind classifies framework errors.
type Kind string

const (
	// KindValidation covers invalid builder input.
	KindValidation Kind = "ValidationError"
	// KindHooksSealed is returned by hook setters after the first dispatch.
	KindHooksSealed Kind = "HooksAlreadySealed"
	// KindRoutesSealed is returned by To after the first dispatch.
	KindRoutesSealed Kind = "RoutesAlreadySealed"
	// KindHandlerNotFound is raised when no route resolves an invocation.
	KindHandlerNotFound Kind = "HandlerNotFound"
)

// FrameworkError is an error raised by the engine itself, as opposed to one
// returned by application code. Use errors.As to tell them apart:
//
//	var fe *dispatch.FrameworkError
//	if errors.As(err, &fe) {
//	    // engine error, fe.Kind says which
//	}
type FrameworkError struct {
	Kind Kind
	err  *Error
}

func (e *FrameworkError) Error() string { return e.err.Error() }

// Unwrap exposes the base *Error.
func (e *FrameworkError) Unwrap() error { return e.err }

// Base returns the underlying error shape.
func (e *FrameworkError) Base() *Error { return e.err }

// Is matches a sentinel whose Name equals the error's kind, so
// errors.Is(err, ErrValidation) holds for every validation failure.
func (e *FrameworkError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == string(e.Kind)
}

func (e *FrameworkError) wrap(cause error) *FrameworkError {
	e.err.Err = cause
	return e
}

// IsFrameworkError reports whether err was raised by the engine.
func IsFrameworkError(err error) bool {
	var fe *FrameworkError
	return errors.As(err, &fe)
}

// Sentinels for errors.Is. They carry only a Name; do not mutate them.
var (
	ErrValidation          = &Error{Name: string(KindValidation)}
	ErrInvalidSegment      = &Error{Name: "InvalidSegment"}
	ErrInvalidMiddleware   = &Error{Name: "InvalidMiddleware"}
	ErrInvalidHandler      = &Error{Name: "InvalidHandler"}
	ErrMissingSegments     = &Error{Name: "MissingSegments"}
	ErrInvalidPattern      = &Error{Name: "InvalidPattern"}
	ErrHooksAlreadySealed  = &Error{Name: string(KindHooksSealed)}
	ErrRoutesAlreadySealed = &Error{Name: string(KindRoutesSealed)}
	ErrHandlerNotFound     = &Error{Name: string(KindHandlerNotFound)}
)

var frameworkCatalog = MustCatalog(map[string]any{
	"InvalidSegment":      "route segment must be a non-empty string",
	"InvalidMiddleware":   "middleware {index} is nil",
	"InvalidHandler":      "handler must not be nil",
	"MissingSegments":     "at least one Route segment is required before To",
	"InvalidPattern":      "cannot compile route pattern {pattern}",
	"HooksAlreadySealed":  "cannot set {hook} hook after the first dispatch",
	"HandlerNotFound":     "no handler for {raw}",
	"RoutesAlreadySealed": "cannot register {route} after the first dispatch",
})

func frameworkError(kind Kind, name string, data map[string]any) *FrameworkError {
	return &FrameworkError{Kind: kind, err: frameworkCatalog.New(name, data)}
}

func validationError(name string, data map[string]any) *FrameworkError {
	return frameworkError(KindValidation, name, data)
}

func notFoundError(op, raw, pattern string) *FrameworkError {
	fe := frameworkError(KindHandlerNotFound, string(KindHandlerNotFound), map[string]any{
		"op":      op,
		"raw":     raw,
		"pattern": pattern,
	})
	fe.err.Status = 404
	return fe
}

// PanicError wraps a value recovered from a panicking hook or handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatch: recovered panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
