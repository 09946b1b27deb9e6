// Package errors augments the standard errors
// provided by fmt (https://golang.org/src/fmt/errors.go)
// with a Wrap() method to wrap errors without resorting
// to fmt.Errorf("%w", err).
package errors

import (
	stderr "errors"
	"fmt"
)

var _ error = New("")

// New Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Newf builds an Error from a format string
func Newf(format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Error augments the standard error interface with a Wrap method.
//
// The main difference with github.com/pkg/errors is that we are wrapping
// errors from errors, not from text.
type Error struct {
	msg  string
	err  error
	base *Error
}

// Error message
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error. The receiver is not mutated, so package-level
// sentinels stay safe to wrap concurrently; the receiver remains
// matchable through Is on the returned error.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err, base: e}
}

// WrapMessage attaches a contextual message built from a format string,
// keeping the receiver as the matchable sentinel in the chain.
func (e *Error) WrapMessage(format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), err: e}
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	if e == target || e.err == target {
		return true
	}
	return e.base != nil && e.base.Is(target)
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.As)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
