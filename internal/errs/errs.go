// Package errs defines the error kinds shared by adapters, storage and services.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrTransient  = errors.New("temporarily unavailable")
	ErrValidation = errors.New("invalid input")
	ErrStorage    = errors.New("storage unavailable")
)

// Error tags a cause with one of the kinds above and the operation that failed.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound reports that the requested asset or resource is absent upstream.
func NotFound(op, msg string) error {
	return &Error{Kind: ErrNotFound, Op: op, Err: errors.New(msg)}
}

// Transient wraps a network, timeout or non-2xx failure.
func Transient(op string, err error) error {
	return &Error{Kind: ErrTransient, Op: op, Err: err}
}

// Validation reports malformed user input.
func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Err: errors.New(msg)}
}

// Storage wraps a persistence failure.
func Storage(op string, err error) error {
	return &Error{Kind: ErrStorage, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or nil when err is untagged.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrTransient, ErrStorage} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsTemporary reports whether a later attempt may succeed.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTransient)
}
