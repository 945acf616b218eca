// Package transport owns the socket to a chemrpc endpoint.
//
// A Conn wraps exactly one stream socket and moves whole frames across it:
//
//	caller ──Send(payload)──→ protocol.WriteFrame ──→ socket ──→ service
//	caller ←─Receive()──────  protocol.ReadFrame  ←── socket ←── service
//
// Unlike a multiplexed transport there is no background reader: Receive runs on the
// caller's goroutine and blocks until one full frame arrives, the deadline fires, or
// the socket fails. Lifecycle is Dial → (Send/Receive)* → Close, and a Conn is never
// reconnected; after any I/O failure it closes itself and the caller dials a new one.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"chemrpc/protocol"
)

// Conn is one session's socket. It is not safe for concurrent request/response use:
// Send is serialized internally, but pairing a Send with the right Receive is the
// caller's job.
type Conn struct {
	conn     net.Conn
	endpoint string
	limits   protocol.Limits

	sending   sync.Mutex  // Whole frames only; two writers must not interleave bytes
	closed    atomic.Bool // Set by Close or by the first I/O failure
	closeOnce sync.Once
}

// Option configures a Conn.
type Option func(*Conn)

// WithLimits overrides the default maximum frame size.
func WithLimits(l protocol.Limits) Option {
	return func(c *Conn) { c.limits = l }
}

// Dial opens a stream socket to the named local endpoint. It fails with *ConnectError
// if the endpoint does not exist or refuses the connection.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Conn, error) {
	path := EndpointPath(endpoint)

	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, &ConnectError{Endpoint: path, Err: err}
	}
	return NewConn(nc, path, opts...), nil
}

// NewConn wraps an already-connected socket. The service side uses it for accepted
// connections.
func NewConn(nc net.Conn, endpoint string, opts ...Option) *Conn {
	c := &Conn{
		conn:     nc,
		endpoint: endpoint,
		limits:   protocol.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the socket path this Conn is attached to.
func (c *Conn) Endpoint() string { return c.endpoint }

// Closed reports whether the Conn was closed, explicitly or after a failure.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Send frames payload and writes it in full.
func (c *Conn) Send(payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.sending.Lock()
	defer c.sending.Unlock()

	if err := protocol.WriteFrameLimit(c.conn, payload, c.limits); err != nil {
		// An oversized payload is rejected before any byte hits the socket.
		if protocol.IsFramingError(err) {
			return err
		}
		c.fail()
		return &IOError{Op: "send", Endpoint: c.endpoint, Err: err}
	}
	return nil
}

// Receive blocks until one complete frame is read and returns its payload.
func (c *Conn) Receive() ([]byte, error) {
	return c.ReceiveDeadline(time.Time{})
}

// ReceiveTimeout is Receive bounded by d. A zero or negative d means no timeout.
func (c *Conn) ReceiveTimeout(d time.Duration) ([]byte, error) {
	if d <= 0 {
		return c.Receive()
	}
	return c.ReceiveDeadline(time.Now().Add(d))
}

// ReceiveDeadline is Receive bounded by an absolute deadline; the zero time means none.
//
// Failure kinds:
//   - peer closed (cleanly between frames, or mid-frame) → *IOError; mid-frame closes
//     also match protocol.ErrTruncatedFrame / ErrShortHeader through errors.Is
//   - header declaring an oversize payload → *protocol.FramingError
//   - deadline or socket error → *IOError
//
// Any failure closes the Conn: part of a frame may already have been consumed.
func (c *Conn) ReceiveDeadline(deadline time.Time) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.fail()
		return nil, &IOError{Op: "receive", Endpoint: c.endpoint, Err: err}
	}

	payload, err := protocol.ReadFrameLimit(c.conn, c.limits)
	if err == nil {
		return payload, nil
	}

	c.fail()
	switch {
	case errors.Is(err, protocol.ErrPayloadTooLarge):
		return nil, err
	case errors.Is(err, io.EOF):
		return nil, &IOError{Op: "receive", Endpoint: c.endpoint, Err: io.EOF}
	default:
		return nil, &IOError{Op: "receive", Endpoint: c.endpoint, Err: err}
	}
}

// Close releases the socket. Calling it more than once is harmless.
func (c *Conn) Close() error {
	c.closed.Store(true)
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) fail() {
	_ = c.Close()
}
