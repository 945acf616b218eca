package client

import (
	"errors"
	"fmt"

	"chemrpc/message"
)

var (
	// ErrIDMismatch means the reply echoed a different id than the outstanding request.
	ErrIDMismatch = errors.New("client: reply id does not match request id")
	// ErrMissingID means a successful reply carried no id.
	ErrMissingID = errors.New("client: reply has no id")
)

// ProtocolError reports a reply that arrived intact at the frame level but could not be
// used: not JSON, missing envelope members, or not correlated with the request. Only
// that call fails; the connection remains open for the next one.
type ProtocolError struct {
	Method string
	ID     *message.ID
	Raw    []byte // The offending payload, for diagnostics
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("client: protocol error in %s (id %s): %v", e.Method, e.ID, e.Err)
	}
	return fmt.Sprintf("client: protocol error in %s: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is, or wraps, a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// AsRPCError extracts the service's rejection from err.
func AsRPCError(err error) (*message.Error, bool) {
	var re *message.Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
