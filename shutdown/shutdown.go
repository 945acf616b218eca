// Package shutdown ends a service session: ask politely over RPC, give the process a
// drain window, then force it.
//
//	Notify("kill") ──→ close client ──→ wait ≤ drain ──✓──→ nil
//	                                           │
//	                                           └──✗──→ SIGKILL → *UngracefulShutdownError
//
// A forced stop is reported, never fatal: the process is gone either way.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chemrpc/client"
	"chemrpc/launcher"
	"chemrpc/log"
)

// DefaultDrain is how long the service gets to exit after the kill notification.
const DefaultDrain = 2 * time.Second

// DefaultMethod is the documented termination method.
const DefaultMethod = "kill"

// UngracefulShutdownError reports that the process ignored the kill request and was
// killed after the drain window.
type UngracefulShutdownError struct {
	PID     int
	Drain   time.Duration
	SendErr error // Why the kill notification could not be delivered, if it could not
}

func (e *UngracefulShutdownError) Error() string {
	if e.SendErr != nil {
		return fmt.Sprintf("shutdown: pid %d force-killed after %s (kill request failed: %v)", e.PID, e.Drain, e.SendErr)
	}
	return fmt.Sprintf("shutdown: pid %d still running after %s, force-killed", e.PID, e.Drain)
}

func (e *UngracefulShutdownError) Unwrap() error { return e.SendErr }

// IsUngraceful reports whether err is, or wraps, an *UngracefulShutdownError.
func IsUngraceful(err error) bool {
	var ue *UngracefulShutdownError
	return errors.As(err, &ue)
}

type options struct {
	method string
	logger *zap.Logger
}

type Option func(*options)

// Method overrides the termination method name.
func Method(name string) Option {
	return func(o *options) { o.method = name }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Shutdown terminates the session made of c and h. Either may be nil, and a closed
// client or an exited process counts as already terminated. The client is always
// closed on return, and the process is always gone.
//
// A drain of 0 means DefaultDrain.
func Shutdown(ctx context.Context, c *client.Client, h *launcher.Handle, drain time.Duration, opts ...Option) error {
	o := options{method: DefaultMethod}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.WithComponent("shutdown")
	}
	if drain <= 0 {
		drain = DefaultDrain
	}

	// Step 1: ask the service to exit
	var sendErr error
	if c != nil {
		if !c.Closed() && (h == nil || !h.Exited()) {
			sendErr = c.Notify(ctx, o.method, nil)
			if sendErr != nil {
				o.logger.Debug("kill request not delivered", zap.Error(sendErr))
			}
		}
		_ = c.Close()
	}
	if h == nil {
		return nil
	}
	logger := o.logger.With(zap.Int("pid", h.PID()), zap.String("endpoint", h.Endpoint()))

	// Step 2: give it the drain window
	timer := time.NewTimer(drain)
	defer timer.Stop()

	select {
	case <-h.Done():
		logger.Debug("service exited")
		return nil
	case <-ctx.Done():
	case <-timer.C:
	}

	// Step 3: force it
	if err := h.Kill(); err != nil {
		return fmt.Errorf("shutdown: kill pid %d: %w", h.PID(), err)
	}
	if ctx.Err() != nil && !errors.Is(sendErr, ctx.Err()) {
		logger.Warn("shutdown cancelled, service force-killed", zap.Error(ctx.Err()))
		return ctx.Err()
	}
	err := &UngracefulShutdownError{PID: h.PID(), Drain: drain, SendErr: sendErr}
	logger.Warn("service ignored kill request", zap.Error(err))
	return err
}
