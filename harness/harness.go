// Package harness scopes one service session: launch, connect, and a Close that always
// runs the shutdown sequence exactly once, whatever path the caller leaves by.
//
//	s, err := harness.Open(ctx, cfg)
//	if err != nil { ... }
//	defer s.Close()
//	name, err := s.Chem().GetChemicalJSON(ctx, inchi)
package harness

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chemrpc/chem"
	"chemrpc/client"
	"chemrpc/launcher"
	"chemrpc/log"
	"chemrpc/shutdown"
)

// Config combines what the launcher and the client need.
type Config struct {
	Launch        launcher.Config
	ClientOptions []client.Option
	Drain         time.Duration // Time the service gets to exit after kill
	Logger        *zap.Logger
}

// Session is a running service plus one connected client.
type Session struct {
	handle *launcher.Handle
	client *client.Client
	drain  time.Duration
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open launches the service, waits for readiness and connects. If connecting fails the
// freshly launched process is shut down before Open returns.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithComponent("harness")
	}
	if cfg.Launch.Logger == nil {
		cfg.Launch.Logger = logger.Named("launcher")
	}

	h, err := launcher.Start(ctx, cfg.Launch)
	if err != nil {
		return nil, err
	}

	opts := append([]client.Option{client.WithLogger(logger.Named("client"))}, cfg.ClientOptions...)
	c, err := client.Dial(ctx, h.Endpoint(), opts...)
	if err != nil {
		_ = shutdown.Shutdown(context.Background(), nil, h, cfg.Drain, shutdown.WithLogger(logger))
		return nil, err
	}

	logger.Info("session opened", zap.Int("pid", h.PID()), zap.String("endpoint", h.Endpoint()),
		zap.String("session", c.SessionID()))
	return &Session{handle: h, client: c, drain: cfg.Drain, logger: logger}, nil
}

// Client returns the session's RPC client.
func (s *Session) Client() *client.Client { return s.client }

// Chem returns typed wrappers over Client.
func (s *Session) Chem() *chem.Client { return chem.NewClient(s.client) }

// Handle returns the launched process.
func (s *Session) Handle() *launcher.Handle { return s.handle }

// Close runs the shutdown sequence once; later calls return the first result. The
// error is an *shutdown.UngracefulShutdownError when the service had to be killed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = shutdown.Shutdown(context.Background(), s.client, s.handle, s.drain, shutdown.WithLogger(s.logger))
		s.logger.Info("session closed", zap.Int("pid", s.handle.PID()), zap.Error(s.closeErr))
	})
	return s.closeErr
}
