package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is a runtime failure tagged with its kind. A batch-fatal error of
// any kind aborts the current batch only; the process keeps running.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s: %s", Category(e.Kind), e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s", Category(e.Kind), e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an error of the given kind.
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err or anything it wraps is a forge error of kind k.
func Is(err error, k Kind) bool {
	var fe *Error
	for err != nil {
		if stderrors.As(err, &fe) {
			if fe.Kind == k {
				return true
			}
			err = fe.Err
			continue
		}
		return false
	}
	return false
}
