// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"errors"
	"fmt"
)

// ErrNilOperation is reported when Try is handed a nil function, or when Fail
// is called with a nil error.
var ErrNilOperation = errors.New("nil operation")

// PanicError carries a recovered panic value that was not itself an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Result is the outcome of a fallible operation: either a value (Ok) or an
// error (Fail). Exactly one variant is active. The zero Result is not valid;
// build one with Try, Ok or Fail.
type Result[D any] struct {
	data D
	err  error
}

// Ok returns a successful Result holding v.
func Ok[D any](v D) Result[D] { return Result[D]{data: v} }

// Fail returns a failed Result holding err. A nil err is replaced by
// ErrNilOperation so a failed Result never looks successful.
func Fail[D any](err error) Result[D] {
	if err == nil {
		err = ErrNilOperation
	}
	return Result[D]{err: err}
}

// Try runs fn and captures its outcome. A returned error is kept as is, with
// no wrapping, so callers can still inspect driver-specific error types. A
// panic inside fn is recovered and reported as the failure; panic values
// that are not errors are wrapped in *PanicError. Try never panics itself.
//
// Example:
//
//	res := utils.Try(func() (string, error) { return hasher.Hash(pw) })
//	if err := res.Err(); err != nil {
//	    // handle
//	}
func Try[D any](fn func() (D, error)) (res Result[D]) {
	if fn == nil {
		return Fail[D](ErrNilOperation)
	}
	defer func() {
		if p := recover(); p != nil {
			if err, ok := p.(error); ok {
				res = Fail[D](err)
				return
			}
			res = Fail[D](&PanicError{Value: p})
		}
	}()
	v, err := fn()
	if err != nil {
		return Fail[D](err)
	}
	return Ok(v)
}

// IsOk reports whether the Result holds a value.
func (r Result[D]) IsOk() bool { return r.err == nil }

// IsErr reports whether the Result holds an error.
func (r Result[D]) IsErr() bool { return r.err != nil }

// Value returns the held value, or the zero value of D on failure.
func (r Result[D]) Value() D { return r.data }

// Err returns the held error, or nil on success.
func (r Result[D]) Err() error { return r.err }

// Unpack returns the Result as a conventional (value, error) pair.
func (r Result[D]) Unpack() (D, error) { return r.data, r.err }

// Match folds r into a single value, calling exactly one of onOk or onErr.
func Match[D, T any](r Result[D], onOk func(D) T, onErr func(error) T) T {
	if r.err != nil {
		return onErr(r.err)
	}
	return onOk(r.data)
}
