package transport

import (
	"errors"
	"fmt"
	"net"
)

// ErrClosed is returned by every operation on a Conn after Close, or after a failure
// left the byte stream in an unknown position.
var ErrClosed = errors.New("transport: connection closed")

// ConnectError reports that the endpoint does not exist or refused the connection.
// It is never retried here; the caller decides.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IOError reports a socket-level failure (broken pipe, reset, premature close, deadline).
// The Conn that produced it is closed; a caller wanting to continue must dial again.
type IOError struct {
	Op       string // "send" or "receive"
	Endpoint string
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline expiring.
func (e *IOError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// IsConnectError reports whether err is, or wraps, a *ConnectError.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

// IsIOError reports whether err is, or wraps, an *IOError.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
