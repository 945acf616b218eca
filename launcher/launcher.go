// Package launcher starts a chemistry service as a child process and waits until its
// endpoint is ready.
//
// Readiness is active: instead of sleeping a fixed amount of time, Start probes the
// endpoint (connect, then close) at a fixed interval until one probe succeeds.
//
//	spawn ──→ probe ──✗──→ wait PollInterval ──→ probe ──✓──→ *Handle
//	              │
//	              ├── child exited    → *LaunchError        (child reaped)
//	              └── Timeout elapsed → *LaunchTimeoutError (child killed + reaped)
//
// The returned Handle is the only owner of the child: it reaps it exactly once and
// exposes its exit through Done/Wait.
package launcher

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"

	"chemrpc/log"
	"chemrpc/transport"
)

// TestingFlag makes the service honour the kill method.
const TestingFlag = "--testing"

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

var errExited = errors.New("launcher: process exited")

// Config describes one service process.
type Config struct {
	Executable   string
	Args         []string // e.g. []string{TestingFlag}
	Endpoint     string   // Name or path the service will listen on
	Timeout      time.Duration
	PollInterval time.Duration
	Env          []string // Appended to the parent's environment
	Stdout       io.Writer
	Stderr       io.Writer
	Clock        clock.Clock
	Logger       *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Logger == nil {
		c.Logger = log.WithComponent("launcher")
	}
}

// Start spawns the service and blocks until its endpoint accepts a connection, the
// process exits, the timeout elapses, or ctx is done. On every failure path the child
// is killed and reaped before Start returns.
func Start(ctx context.Context, cfg Config) (*Handle, error) {
	cfg.setDefaults()
	if cfg.Executable == "" {
		return nil, &LaunchError{ExitCode: -1, Err: errors.New("no executable configured")}
	}
	if cfg.Endpoint == "" {
		return nil, &LaunchError{Executable: cfg.Executable, ExitCode: -1, Err: errors.New("no endpoint configured")}
	}
	h, err := spawn(cfg)
	if err != nil {
		return nil, err
	}
	endpoint := h.Endpoint()
	logger := h.logger

	start := cfg.Clock.Now()
	var (
		attempts atomic.Int32
		lastErr  error
	)
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			attempts.Add(1)
			if h.Exited() {
				return errExited
			}
			lastErr = transport.Probe(ctx, endpoint)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return errors.Is(err, errExited) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debug("endpoint not ready", zap.Int("attempt", attempt), zap.Error(err))
		},
		Delay:       cfg.PollInterval,
		MaxDuration: cfg.Timeout,
		Clock:       cfg.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		logger.Info("service ready", zap.Int("pid", h.PID()), zap.Int32("probes", attempts.Load()),
			zap.Duration("elapsed", cfg.Clock.Now().Sub(start)))
		return h, nil
	}

	if h.Exited() {
		logger.Warn("service exited before becoming ready", zap.Error(h.ExitErr()))
		return nil, &LaunchError{Executable: cfg.Executable, ExitCode: h.ExitCode(), Err: h.ExitErr()}
	}

	_ = h.Kill()
	if retry.IsRetryStopped(err) || ctx.Err() != nil {
		logger.Debug("launch cancelled, service killed")
		return nil, ctx.Err()
	}
	logger.Warn("service not ready in time, killed", zap.Duration("timeout", cfg.Timeout), zap.Error(lastErr))
	return nil, &LaunchTimeoutError{
		Endpoint: endpoint,
		Timeout:  cfg.Timeout,
		Attempts: int(attempts.Load()),
		LastErr:  lastErr,
	}
}

func spawn(cfg Config) (*Handle, error) {
	endpoint := transport.EndpointPath(cfg.Endpoint)
	logger := cfg.Logger.With(zap.String("endpoint", endpoint))

	cmd := exec.Command(cfg.Executable, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stdout = cfg.Stdout
	cmd.Stderr = cfg.Stderr

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Executable: cfg.Executable, ExitCode: -1, Err: err}
	}
	h := newHandle(cmd, endpoint, logger)
	logger.Debug("service spawned", zap.String("executable", cfg.Executable), zap.Int("pid", h.PID()))
	return h, nil
}
