package launcher

import (
	"errors"
	"fmt"
	"time"
)

// LaunchError reports that the service could not be started, or exited before its
// endpoint became reachable.
type LaunchError struct {
	Executable string
	ExitCode   int   // -1 when the process never ran or was killed by a signal
	Err        error // Start failure or the process's wait error
}

func (e *LaunchError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("launcher: %s exited with status %d before becoming ready", e.Executable, e.ExitCode)
	}
	return fmt.Sprintf("launcher: %s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// LaunchTimeoutError reports that the endpoint never accepted a connection within the
// readiness timeout. The child has been killed and reaped by the time it is returned.
type LaunchTimeoutError struct {
	Endpoint string
	Timeout  time.Duration
	Attempts int
	LastErr  error // Last probe failure
}

func (e *LaunchTimeoutError) Error() string {
	return fmt.Sprintf("launcher: %s not ready after %s (%d probes): %v", e.Endpoint, e.Timeout, e.Attempts, e.LastErr)
}

func (e *LaunchTimeoutError) Unwrap() error { return e.LastErr }

// IsLaunchError reports whether err is, or wraps, a *LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}

// IsLaunchTimeout reports whether err is, or wraps, a *LaunchTimeoutError.
func IsLaunchTimeout(err error) bool {
	var te *LaunchTimeoutError
	return errors.As(err, &te)
}
