// Package transport also provides a borrow/return pool of exclusive connections (Pool).
//
// The protocol does not multiplex: one Conn carries one request/response at a time.
// A caller that needs several calls in flight borrows distinct connections from a Pool
// instead of sharing one.
//
// Pool design: uses a buffered channel as a natural FIFO queue.
// Buffered channels are concurrency-safe, and blocking on empty is built-in.
package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("transport: pool closed")

// Pool manages up to maxConns exclusive connections to a single endpoint.
type Pool struct {
	mu       sync.Mutex
	conns    chan *Conn                                  // Idle connections, FIFO
	slots    chan struct{}                               // One token per live connection, caps growth
	closed   bool                                        // Guarded by mu
	factory  func(ctx context.Context) (*Conn, error)    // Connection factory
	endpoint string
}

// NewPool creates a pool for endpoint with the given max size. Connections are created
// lazily: the pool starts empty and grows on demand.
func NewPool(endpoint string, maxConns int, opts ...Option) *Pool {
	if maxConns < 1 {
		maxConns = 1
	}
	return &Pool{
		conns:    make(chan *Conn, maxConns),
		slots:    make(chan struct{}, maxConns),
		endpoint: endpoint,
		factory: func(ctx context.Context) (*Conn, error) {
			return Dial(ctx, endpoint, opts...)
		},
	}
}

// Get retrieves a connection from the pool.
// Strategy:
//  1. Take an idle connection if one is waiting (closed ones are discarded)
//  2. If the pool is under its limit, dial a new connection
//  3. Otherwise block until a connection is returned or ctx is done
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	for {
		if p.isClosed() {
			return nil, ErrPoolClosed
		}

		select {
		case c := <-p.conns:
			if c.Closed() {
				p.release()
				continue
			}
			return c, nil
		default:
		}

		select {
		case c := <-p.conns:
			if c.Closed() {
				p.release()
				continue
			}
			return c, nil
		case p.slots <- struct{}{}:
			c, err := p.factory(ctx)
			if err != nil {
				p.release()
				return nil, err
			}
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a connection to the pool. A connection that failed (and therefore closed
// itself) is discarded and its slot freed.
func (p *Pool) Put(c *Conn) {
	if c == nil {
		return
	}
	// Held across the check and the push so a concurrent Close either sees the conn in
	// the channel when it drains or makes us close it here. The push never blocks: at
	// most cap(conns) connections exist.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || c.Closed() {
		_ = c.Close()
		p.release()
		return
	}
	p.conns <- c
}

// Close shuts down the pool and closes all idle connections. Connections still
// borrowed are closed when they are Put back.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case c := <-p.conns:
			_ = c.Close()
			p.release()
		default:
			return nil
		}
	}
}

// Endpoint returns the endpoint the pool dials.
func (p *Pool) Endpoint() string { return p.endpoint }

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) release() {
	select {
	case <-p.slots:
	default:
	}
}
