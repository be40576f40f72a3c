package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error is a typed agent failure. Type carries the name the health monitor
// classifies on; it never depends on the message text.
type Error struct {
	Type string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// TypeName reports the classification name for an error. Typed agent errors
// carry their own name; well-known stdlib failures map onto the same
// taxonomy; anything else falls through as a generic Error.
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TimeoutError"
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return "TimeoutError"
		}
		return "ConnectionError"
	}
	return "Error"
}

func NewConnectionError(msg string, err error) *Error {
	return &Error{Type: "ConnectionError", Msg: msg, Err: err}
}

func NewAuthenticationError(msg string, err error) *Error {
	return &Error{Type: "AuthenticationError", Msg: msg, Err: err}
}

func NewDatabaseError(msg string, err error) *Error {
	return &Error{Type: "DatabaseError", Msg: msg, Err: err}
}

func NewTimeoutError(msg string, err error) *Error {
	return &Error{Type: "TimeoutError", Msg: msg, Err: err}
}

func NewValidationError(msg string, err error) *Error {
	return &Error{Type: "ValidationError", Msg: msg, Err: err}
}

func NewKeyError(msg string) *Error {
	return &Error{Type: "KeyError", Msg: msg}
}

func NewHTTPError(msg string, err error) *Error {
	return &Error{Type: "HTTPException", Msg: msg, Err: err}
}

func NewRequestError(msg string, err error) *Error {
	return &Error{Type: "RequestException", Msg: msg, Err: err}
}

func NewParseError(msg string, err error) *Error {
	return &Error{Type: "ParseError", Msg: msg, Err: err}
}
