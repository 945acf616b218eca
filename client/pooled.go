package client

import (
	"context"
	"sync"

	"chemrpc/transport"
)

// PooledClient spreads concurrent calls over up to size connections to one endpoint.
// Each call borrows an exclusive connection from a transport.Pool, so calls never
// share a wire; a connection that fails is dropped and a fresh one dialed on demand.
type PooledClient struct {
	pool *transport.Pool
	opts []Option

	mu      sync.Mutex
	clients map[*transport.Conn]*Client // One Client per pooled connection keeps its id sequence
}

// NewPooled returns a PooledClient for endpoint. No connection is opened until the
// first call.
func NewPooled(endpoint string, size int, opts ...Option) *PooledClient {
	probe := newClient(opts...)
	return &PooledClient{
		pool:    transport.NewPool(endpoint, size, probe.transportOpts...),
		opts:    opts,
		clients: make(map[*transport.Conn]*Client),
	}
}

// Call borrows a connection and performs one round trip on it.
func (p *PooledClient) Call(ctx context.Context, method string, params, reply any) error {
	return p.with(ctx, func(c *Client) error {
		return c.Call(ctx, method, params, reply)
	})
}

// Notify borrows a connection and sends one notification on it.
func (p *PooledClient) Notify(ctx context.Context, method string, params any) error {
	return p.with(ctx, func(c *Client) error {
		return c.Notify(ctx, method, params)
	})
}

// Close closes idle connections; borrowed ones close when their call returns.
func (p *PooledClient) Close() error {
	return p.pool.Close()
}

func (p *PooledClient) with(ctx context.Context, fn func(c *Client) error) error {
	conn, err := p.pool.Get(ctx)
	if err != nil {
		return err
	}
	c := p.bind(conn)
	defer func() {
		if conn.Closed() {
			p.mu.Lock()
			delete(p.clients, conn)
			p.mu.Unlock()
		}
		p.pool.Put(conn)
	}()
	return fn(c)
}

func (p *PooledClient) bind(conn *transport.Conn) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[conn]
	if !ok {
		c = New(conn, p.opts...)
		p.clients[conn] = c
	}
	return c
}
