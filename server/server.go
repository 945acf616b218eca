// Package server implements the service side of a chemrpc endpoint: method registration,
// a middleware chain, in-order request processing and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → for each frame, in order: decode → validate → Middleware Chain → businessHandler
//	    → encode → Send (skipped for notifications)
//
// There is no per-request goroutine: the protocol does not multiplex, so replies on one
// connection leave in exactly the order the requests arrived.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chemrpc/codec"
	"chemrpc/log"
	"chemrpc/message"
	"chemrpc/middleware"
	"chemrpc/protocol"
	"chemrpc/registry"
	"chemrpc/transport"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Server answers JSON-RPC 2.0 requests on one local endpoint.
type Server struct {
	mu          sync.RWMutex
	handlers    map[string]middleware.HandlerFunc // Wire method name → business handler
	listener    *net.UnixListener
	endpoint    string
	conns       map[*transport.Conn]struct{}
	ready       chan struct{}           // Closed once the listener is bound
	wg          sync.WaitGroup          // Tracks in-flight requests for graceful shutdown
	shutdown    atomic.Bool             // Set to true during shutdown to suppress Accept errors
	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	handler     middleware.HandlerFunc  // The final handler chain: middleware(middleware(...(businessHandler)))

	codec  codec.Codec
	limits protocol.Limits
	logger *zap.Logger

	registry    registry.Registry // nil if not publishing
	serviceName string
	instance    registry.ServiceInstance
	ttl         int64 // Lease seconds
}

// Option configures a Server.
type Option func(*Server)

func WithCodec(t codec.CodecType) Option {
	return func(s *Server) { s.codec = codec.GetCodec(t) }
}

func WithLimits(l protocol.Limits) Option {
	return func(s *Server) { s.limits = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry publishes the endpoint under serviceName while the server is serving.
func WithRegistry(reg registry.Registry, serviceName string, weight int) Option {
	return func(s *Server) {
		s.registry = reg
		s.serviceName = serviceName
		s.instance.Weight = weight
	}
}

// WithRegistryTTL sets the lease TTL in seconds used when publishing (default 10).
func WithRegistryTTL(seconds int64) Option {
	return func(s *Server) { s.ttl = seconds }
}

// NewServer creates a server with no methods.
func NewServer(opts ...Option) *Server {
	s := &Server{
		handlers: make(map[string]middleware.HandlerFunc),
		conns:    make(map[*transport.Conn]struct{}),
		ready:    make(chan struct{}),
		codec:    codec.GetCodec(codec.CodecTypeJSON),
		limits:   protocol.DefaultLimits(),
		ttl:      10,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithComponent("server")
	}
	return s
}

// Register exposes rcvr's exported methods of the form
// func(*Args, *Reply) error (optionally with a leading context.Context) under their
// lowerCamel names. A method returning a *message.Error has it sent verbatim; any other
// error becomes -32603.
func (svr *Server) Register(rcvr any) error {
	svc, err := NewService(rcvr)
	if err != nil {
		return err
	}
	for name, mt := range svc.method {
		if err := svr.Handle(name, svr.reflectHandler(svc, mt)); err != nil {
			return err
		}
	}
	svr.logger.Debug("registered service", zap.String("service", svc.name), zap.Int("methods", len(svc.method)))
	return nil
}

// Handle registers h under an explicit method name. The handler still runs behind the
// middleware chain.
func (svr *Server) Handle(method string, h middleware.HandlerFunc) error {
	if method == "" {
		return errEmptyName
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if _, dup := svr.handlers[method]; dup {
		return fmt.Errorf("server: method %q already registered", method)
	}
	svr.handlers[method] = h
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Ready is closed once the endpoint accepts connections.
func (svr *Server) Ready() <-chan struct{} { return svr.ready }

// Endpoint returns the socket path being served, empty before Serve.
func (svr *Server) Endpoint() string {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	return svr.endpoint
}

// Serve binds endpoint, optionally publishes it to the registry, and enters the Accept
// loop. It returns nil after Shutdown.
func (svr *Server) Serve(endpoint string) error {
	listener, err := transport.Listen(endpoint)
	if err != nil {
		return err
	}

	// Build the middleware chain once at startup (not per-request)
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		listener.Close()
		return ErrServerClosed
	}
	svr.listener = listener
	svr.endpoint = transport.EndpointPath(endpoint)
	svr.instance.Endpoint = svr.endpoint
	svr.instance.PID = os.Getpid()
	inst := svr.instance
	svr.mu.Unlock()
	close(svr.ready)

	if svr.registry != nil {
		// KeepAlive renews the lease for as long as we serve
		if err := svr.registry.Register(svr.serviceName, inst, svr.ttl); err != nil {
			svr.logger.Warn("registry publish failed", zap.String("service", svr.serviceName), zap.Error(err))
		}
	}

	svr.logger.Info("serving", zap.String("endpoint", inst.Endpoint))

	// Accept loop: one goroutine per connection
	for {
		nc, err := listener.Accept()
		if err != nil {
			// During shutdown, listener.Close() causes Accept to return an error.
			// Check the shutdown flag to distinguish intentional close from real errors.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		conn := transport.NewConn(nc, svr.endpoint, transport.WithLimits(svr.limits))
		if !svr.track(conn) {
			conn.Close()
			return nil
		}
		go svr.handleConn(conn)
	}
}

func (svr *Server) track(conn *transport.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

// begin counts one in-flight request. The shutdown check and the Add happen under mu,
// so no Add can race with the Wait in Shutdown.
func (svr *Server) begin() bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

func (svr *Server) untrack(conn *transport.Conn) {
	svr.mu.Lock()
	delete(svr.conns, conn)
	svr.mu.Unlock()
}

// handleConn reads frames sequentially and answers each one before reading the next.
func (svr *Server) handleConn(conn *transport.Conn) {
	defer svr.untrack(conn)
	defer conn.Close()

	logger := svr.logger.With(zap.String("conn", fmt.Sprintf("%p", conn)))
	logger.Debug("connection accepted")

	for {
		payload, err := conn.Receive()
		if err != nil {
			switch {
			case svr.shutdown.Load(), errors.Is(err, transport.ErrClosed), errors.Is(err, io.EOF):
				logger.Debug("connection closed", zap.Error(err))
			default:
				logger.Warn("connection dropped", zap.Error(err))
			}
			return
		}

		if !svr.begin() {
			logger.Debug("shutting down, request dropped")
			return
		}
		resp := svr.process(payload)
		if resp != nil {
			err = svr.reply(conn, resp)
		}
		svr.wg.Done()

		if err != nil {
			logger.Warn("write reply failed", zap.Error(err))
			return
		}
	}
}

// process turns one request payload into its response; nil means nothing is sent back.
func (svr *Server) process(payload []byte) *message.Response {
	// Step 1: Decode the envelope
	var req message.Request
	if err := svr.codec.Decode(payload, &req); err != nil {
		if !json.Valid(payload) {
			return message.NewErrorResponse(nil, message.ErrParse(err.Error()))
		}
		return message.NewErrorResponse(nil, message.ErrInvalidRequest(err.Error()))
	}
	if err := req.Validate(); err != nil {
		return message.NewErrorResponse(req.ID, message.ErrInvalidRequest(err.Error()))
	}

	// Step 2: Run through the middleware chain → business handler
	ctx := withRawRequest(context.Background(), payload)
	resp := svr.handler(ctx, &req)

	// Step 3: Notifications never get a reply, not even an error
	if req.IsNotification() {
		return nil
	}
	if resp == nil {
		return message.NewErrorResponse(req.ID, message.ErrInternal("handler returned no response"))
	}
	if resp.ID == nil {
		resp.ID = req.ID
	}
	return resp
}

func (svr *Server) reply(conn *transport.Conn, resp *message.Response) error {
	body, err := svr.codec.Encode(resp)
	if err != nil {
		body, err = svr.codec.Encode(message.NewErrorResponse(resp.ID, message.ErrInternal(err.Error())))
		if err != nil {
			return err
		}
	}
	return conn.Send(body)
}

// businessHandler is the innermost handler: it looks the method up and runs it.
func (svr *Server) businessHandler(ctx context.Context, req *message.Request) *message.Response {
	svr.mu.RLock()
	h, ok := svr.handlers[req.Method]
	svr.mu.RUnlock()
	if !ok {
		rpcErr := message.ErrMethodNotFound()
		if raw := rawRequest(ctx); raw != nil {
			rpcErr = rpcErr.WithData(map[string]json.RawMessage{"request": raw})
		}
		return message.NewErrorResponse(req.ID, rpcErr)
	}
	return h(ctx, req)
}

// reflectHandler adapts a registered method to a HandlerFunc.
//
// Flow: reflect.New(args) → decode params into args → reflect.Call → encode reply
func (svr *Server) reflectHandler(svc *service, mt *methodType) middleware.HandlerFunc {
	return func(ctx context.Context, req *message.Request) *message.Response {
		argv := reflect.New(mt.ArgType)     // e.g., reflect.New(Args) → *Args
		replyv := reflect.New(mt.ReplyType) // e.g., reflect.New(Reply) → *Reply

		if len(req.Params) > 0 && string(req.Params) != "null" {
			if err := svr.codec.Decode(req.Params, argv.Interface()); err != nil {
				return message.NewErrorResponse(req.ID, message.ErrInvalidParams(err.Error()))
			}
		}

		if err := svc.call(ctx, mt, argv, replyv); err != nil {
			var rpcErr *message.Error
			if errors.As(err, &rpcErr) {
				return message.NewErrorResponse(req.ID, rpcErr)
			}
			return message.NewErrorResponse(req.ID, message.ErrInternal(err.Error()))
		}

		resp, err := message.NewResult(req.ID, replyv.Elem().Interface())
		if err != nil {
			return message.NewErrorResponse(req.ID, message.ErrInternal(err.Error()))
		}
		return resp
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (callers stop resolving this endpoint)
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections, unlink the socket)
//  4. Wait for in-flight requests to finish (with timeout)
//  5. Close every remaining connection
func (svr *Server) Shutdown(timeout time.Duration) error {
	// Step 1: Deregister FIRST so callers stop dialing us
	endpoint := svr.Endpoint()
	if svr.registry != nil && endpoint != "" {
		if err := svr.registry.Deregister(svr.serviceName, endpoint); err != nil {
			svr.logger.Warn("registry deregister failed", zap.Error(err))
		}
	}

	// Step 2 + 3: flag before close, otherwise Serve would report the Accept error
	svr.mu.Lock()
	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}
	svr.mu.Unlock()

	// Step 4: Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("server: timeout waiting for ongoing requests to finish")
	}

	// Step 5: idle connections are blocked in Receive; closing them ends their goroutines
	svr.mu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.mu.Unlock()

	svr.logger.Info("server stopped", zap.String("endpoint", endpoint), zap.Error(err))
	return err
}

type rawRequestKey struct{}

func withRawRequest(ctx context.Context, payload []byte) context.Context {
	return context.WithValue(ctx, rawRequestKey{}, json.RawMessage(payload))
}

func rawRequest(ctx context.Context) json.RawMessage {
	raw, _ := ctx.Value(rawRequestKey{}).(json.RawMessage)
	return raw
}
