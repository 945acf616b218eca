// Package client is the caller side of a chemrpc session.
//
// A Client holds one transport.Conn and performs strictly synchronous round trips:
//
//	Call:   encode Request{id} → Send → Receive (blocks) → decode Response → result | *message.Error
//	Notify: encode Request{}   → Send                                        (never reads)
//
// There is no background reader and no multiplexing. Calls on one Client are serialized;
// a caller that needs several requests in flight uses several Clients, or a PooledClient.
// Nothing is retried: one Call is one round trip, and retry policy belongs to the caller.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chemrpc/codec"
	"chemrpc/log"
	"chemrpc/message"
	"chemrpc/protocol"
	"chemrpc/transport"
)

// ErrClosed is returned once the Client's connection has been closed, by Close or by a
// transport failure on an earlier call.
var ErrClosed = transport.ErrClosed

type Client struct {
	conn        *transport.Conn
	codec       codec.Codec
	seq         atomic.Int64  // Last auto-assigned request id
	calling     sync.Mutex    // One request/response pair on the wire at a time
	session     string        // uuid, shows up in every log line of this client
	callTimeout time.Duration // Applied when the ctx carries no deadline; 0 = wait forever
	logger      *zap.Logger

	transportOpts []transport.Option // Only consulted by Dial
}

// Option configures a Client.
type Option func(*Client)

// WithCodec selects the JSON implementation used for envelopes.
func WithCodec(t codec.CodecType) Option {
	return func(c *Client) { c.codec = codec.GetCodec(t) }
}

// WithCallTimeout bounds how long Call waits for a reply when ctx has no deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithLogger overrides the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(c *Client) { c.session = id }
}

// WithTransportOptions passes options to transport.Dial. Ignored by New.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *Client) { c.transportOpts = append(c.transportOpts, opts...) }
}

// New wraps an open connection. The Client owns conn from here on and closes it.
func New(conn *transport.Conn, opts ...Option) *Client {
	c := newClient(opts...)
	c.conn = conn
	c.logger = c.logger.With(zap.String("endpoint", conn.Endpoint()))
	return c
}

// Dial connects to endpoint and returns a Client bound to the new connection.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	c := newClient(opts...)
	conn, err := transport.Dial(ctx, endpoint, c.transportOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.logger = c.logger.With(zap.String("endpoint", conn.Endpoint()))
	c.logger.Debug("connected")
	return c, nil
}

func newClient(opts ...Option) *Client {
	c := &Client{
		codec:   codec.GetCodec(codec.CodecTypeJSON),
		session: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.WithComponent("client")
	}
	c.logger = c.logger.With(zap.String("session", c.session))
	return c
}

// SessionID returns the id used to tag this client's log lines.
func (c *Client) SessionID() string { return c.session }

// Endpoint returns the socket path of the underlying connection.
func (c *Client) Endpoint() string { return c.conn.Endpoint() }

// Closed reports whether the connection is gone.
func (c *Client) Closed() bool { return c.conn.Closed() }

// Call sends method with params under a fresh integer id, waits for the single reply and
// decodes its result into reply (which may be nil to discard it).
func (c *Client) Call(ctx context.Context, method string, params, reply any) error {
	id := message.IntID(c.seq.Add(1))
	return c.Invoke(ctx, &id, method, params, reply)
}

// CallWithID is Call with a caller-chosen correlation id.
func (c *Client) CallWithID(ctx context.Context, id message.ID, method string, params, reply any) error {
	return c.Invoke(ctx, &id, method, params, reply)
}

// CallRaw is Call returning the undecoded result.
func (c *Client) CallRaw(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, method, params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Notify sends method as a notification (no id). It never waits for or reads a reply.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	return c.Invoke(ctx, nil, method, params, nil)
}

// Invoke is the general form behind Call and Notify. With a nil id the request is a
// notification and Invoke returns as soon as the frame is written. Otherwise it blocks
// for exactly one reply.
//
// Failure kinds:
//   - *transport.IOError / *protocol.FramingError: the connection is closed, dial again
//   - *ProtocolError: the reply was unusable; the connection stays open
//   - *message.Error: the service rejected the request; reply is left untouched
func (c *Client) Invoke(ctx context.Context, id *message.ID, method string, params, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req, err := message.NewRequest(id, method, params)
	if err != nil {
		return err
	}
	body, err := c.codec.Encode(req)
	if err != nil {
		return err
	}

	c.calling.Lock()
	defer c.calling.Unlock()

	logger := c.logger.With(zap.String("method", method))
	if id != nil {
		logger = logger.With(zap.Stringer("id", id))
	}
	start := time.Now()

	// Step 1: Write the request frame
	if err := c.conn.Send(body); err != nil {
		return c.transportFailure(logger, "send", err)
	}
	if id == nil {
		logger.Debug("notification sent")
		return nil
	}

	// Step 2: Block for exactly one reply frame
	payload, err := c.conn.ReceiveDeadline(c.deadline(ctx))
	if err != nil {
		return c.transportFailure(logger, "receive", err)
	}

	// Step 3: Decode and correlate
	resp, err := c.decodeResponse(method, *id, payload)
	if err != nil {
		logger.Warn("discarding malformed reply", zap.Error(err))
		return err
	}

	logger.Debug("call completed", zap.Duration("duration", time.Since(start)), zap.Bool("rpc_error", resp.Error != nil))
	if resp.Error != nil {
		return resp.Error
	}
	if reply != nil {
		if err := c.codec.Decode(resp.Result, reply); err != nil {
			return &ProtocolError{Method: method, ID: id, Raw: payload, Err: err}
		}
	}
	return nil
}

func (c *Client) decodeResponse(method string, id message.ID, payload []byte) (*message.Response, error) {
	var resp message.Response
	if err := c.codec.Decode(payload, &resp); err != nil {
		return nil, &ProtocolError{Method: method, ID: &id, Raw: payload, Err: err}
	}
	if err := resp.Validate(); err != nil {
		return nil, &ProtocolError{Method: method, ID: &id, Raw: payload, Err: err}
	}
	if resp.ID == nil {
		// A service that could not parse the request answers with a null id; surface
		// its error rather than a correlation failure.
		if resp.Error != nil {
			return &resp, nil
		}
		return nil, &ProtocolError{Method: method, ID: &id, Raw: payload, Err: ErrMissingID}
	}
	if *resp.ID != id {
		return nil, &ProtocolError{Method: method, ID: &id, Raw: payload, Err: ErrIDMismatch}
	}
	return &resp, nil
}

// deadline picks the receive deadline from ctx, falling back to the call timeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	if c.callTimeout > 0 {
		return time.Now().Add(c.callTimeout)
	}
	return time.Time{}
}

func (c *Client) transportFailure(logger *zap.Logger, op string, err error) error {
	switch {
	case errors.Is(err, transport.ErrClosed):
		return ErrClosed
	case errors.Is(err, protocol.ErrPayloadTooLarge) && op == "send":
		// Nothing was written; the connection is still usable.
		return err
	}
	logger.Warn("transport failure, closing connection", zap.String("op", op), zap.Error(err))
	_ = c.conn.Close()
	return err
}

// Close releases the connection. Safe to call more than once.
func (c *Client) Close() error {
	return c.conn.Close()
}
