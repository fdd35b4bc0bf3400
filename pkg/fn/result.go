// Package fn holds the small functional toolkit the pipeline is built from:
// tagged results, composable stages, bounded fan-out and retry.
package fn

import "fmt"

// Result is either a value (Ok) or the reason the value could not be
// produced. Soft-failure sites return a Result instead of a nil value so
// callers can tell "degraded" apart from "empty".
type Result[T any] struct {
	val T
	err error
	ok  bool
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v, ok: true}
}

// Err wraps a failure reason.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Errf wraps a formatted failure reason.
func Errf[T any](format string, args ...any) Result[T] {
	return Result[T]{err: fmt.Errorf(format, args...)}
}

func (r Result[T]) IsOk() bool  { return r.ok }
func (r Result[T]) IsErr() bool { return !r.ok }

// Unwrap returns the value and the failure reason.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Reason returns the failure reason, nil for Ok.
func (r Result[T]) Reason() error { return r.err }

// Must returns the value or panics with the failure reason.
func (r Result[T]) Must() T {
	if !r.ok {
		panic(r.err)
	}
	return r.val
}

// FromPair builds a Result from a (value, error) pair.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}
