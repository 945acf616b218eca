package chem

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chemrpc/catalog"
	"chemrpc/codec"
	"chemrpc/log"
	"chemrpc/middleware"
	"chemrpc/protocol"
	"chemrpc/registry"
	"chemrpc/server"
)

// Options configures Run.
type Options struct {
	Endpoint        string
	Testing         bool
	Catalog         catalog.Catalog
	Codec           codec.CodecType
	MaxPayloadBytes uint32
	RequestTimeout  time.Duration // 0 = no per-request timeout
	RateLimit       float64       // Requests per second, 0 = unlimited
	Burst           int
	ShutdownTimeout time.Duration
	Registry        registry.Registry // nil = don't publish
	ServiceName     string
	RegistryTTL     int64 // Lease seconds, 0 = server default
	Logger          *zap.Logger
}

// Run serves the chemistry methods on opts.Endpoint until ctx is done or an accepted
// kill arrives, then shuts the server down gracefully.
func Run(ctx context.Context, opts Options) error {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultEndpoint
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.WithComponent("chemsvc")
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.NewMemoryCatalog(catalog.Fixture()...)
	}
	logger := opts.Logger

	srvOpts := []server.Option{
		server.WithCodec(opts.Codec),
		server.WithLogger(logger.Named("server")),
	}
	if opts.MaxPayloadBytes > 0 {
		srvOpts = append(srvOpts, server.WithLimits(protocol.Limits{MaxPayloadBytes: opts.MaxPayloadBytes}))
	}
	if opts.Registry != nil {
		srvOpts = append(srvOpts, server.WithRegistry(opts.Registry, opts.ServiceName, 1))
		if opts.RegistryTTL > 0 {
			srvOpts = append(srvOpts, server.WithRegistryTTL(opts.RegistryTTL))
		}
	}
	svr := server.NewServer(srvOpts...)

	svr.Use(middleware.RecoverMiddleware(logger))
	svr.Use(middleware.LoggingMiddleware(logger))
	if opts.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(opts.RateLimit, max(opts.Burst, 1)))
	}
	if opts.RequestTimeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(opts.RequestTimeout))
	}

	killed := make(chan struct{})
	svc := NewService(opts.Catalog,
		WithTesting(opts.Testing),
		WithKillFunc(func() { close(killed) }),
		WithServiceLogger(logger),
	)
	if err := svr.Register(svc); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svr.Serve(opts.Endpoint)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("stopping", zap.NamedError("cause", context.Cause(gctx)))
		case <-killed:
			logger.Info("stopping after kill")
		}
		return svr.Shutdown(opts.ShutdownTimeout)
	})
	return g.Wait()
}
