package instrument

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorPrefix starts the text of every instrument error. Clients detect a
// failed command by this prefix in the response result.
const ErrorPrefix = "MultiPyVuError: "

// Error is a command failure. Its text travels back to the client as the
// result of the request instead of breaking the connection.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s%s: %v", ErrorPrefix, e.Msg, e.Err)
	}
	return ErrorPrefix + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error from a format string.
func Errorf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// wrapDriver turns a driver failure into an *Error, keeping errors that
// already are one.
func wrapDriver(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Msg: msg, Err: err}
}

// IsError reports whether err is, or wraps, an *Error.
func IsError(err error) bool {
	var ie *Error
	return errors.As(err, &ie)
}
