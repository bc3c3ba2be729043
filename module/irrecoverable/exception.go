package irrecoverable

import (
	"fmt"
)

// exception represents an unexpected error. An unexpected error is any error
// returned by a function, other than the errors its documentation lists as
// expected return values.
//
// It wraps an error, which could be a sentinel error. IMPORTANT: the wrapped
// sentinel is not matched by errors.Is, so the exception does not count as
// the sentinel:
//
//	sentinel := fmt.Errorf("sentinel")
//	err := NewException(sentinel)
//	errors.Is(err, sentinel) // -> false
//
// Functions may return exceptions in cases where a sentinel error would be
// expected but its origin cannot be verified.
type exception struct {
	err error
}

// Error returns the error string of the exception. It is always prefixed by
// `[exception!]` to easily differentiate unexpected errors in logs.
func (e exception) Error() string {
	return "[exception!] " + e.err.Error()
}

// NewException wraps the input error as an exception, stripping any sentinel
// error information.
func NewException(err error) error {
	return exception{err: err}
}

// NewExceptionf is NewException with formatting support.
func NewExceptionf(msg string, args ...interface{}) error {
	return NewException(fmt.Errorf(msg, args...))
}
