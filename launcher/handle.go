package launcher

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Handle is a running service process. It reaps the child in the background exactly
// once; every other observer learns about the exit through Done.
type Handle struct {
	cmd      *exec.Cmd
	endpoint string
	logger   *zap.Logger

	done    chan struct{}
	exitErr error // Valid after done is closed
}

func newHandle(cmd *exec.Cmd, endpoint string, logger *zap.Logger) *Handle {
	h := &Handle{
		cmd:      cmd,
		endpoint: endpoint,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go h.reap()
	return h
}

func (h *Handle) reap() {
	h.exitErr = h.cmd.Wait()
	close(h.done)
	h.logger.Debug("service exited", zap.Int("pid", h.PID()), zap.Int("code", h.ExitCode()))
}

// PID returns the child's process id.
func (h *Handle) PID() int { return h.cmd.Process.Pid }

// Endpoint returns the socket path the service was probed on.
func (h *Handle) Endpoint() string { return h.endpoint }

// Done is closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the child is gone.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error from waiting on the child: nil for a clean exit, an
// *exec.ExitError otherwise. Only meaningful once Done is closed.
func (h *Handle) ExitErr() error {
	if !h.Exited() {
		return nil
	}
	return h.exitErr
}

// ExitCode returns the child's exit status, or -1 while it runs or if a signal killed it.
func (h *Handle) ExitCode() int {
	if !h.Exited() || h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// Wait blocks until the child exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate asks the child to stop with SIGTERM, waits up to grace, then sends SIGKILL.
// It returns once the child is reaped.
func (h *Handle) Terminate(grace time.Duration) error {
	if h.Exited() {
		return nil
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Warn("failed to send SIGTERM", zap.Error(err))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		// Process exited gracefully
		h.logger.Debug("service exited after SIGTERM")
		return nil
	case <-timer.C:
		// Grace period expired, send SIGKILL
		h.logger.Warn("service did not exit after SIGTERM, sending SIGKILL", zap.Duration("grace", grace))
		return h.Kill()
	}
}

// Kill sends SIGKILL and waits for the child to be reaped. Killing an exited child is
// not an error.
func (h *Handle) Kill() error {
	if h.Exited() {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-h.done
	return nil
}
