package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// EndpointPath resolves an endpoint name to a socket path. Absolute paths are used as
// given; a bare service name lives in the shared temp directory, e.g. "chemdata" →
// "/tmp/chemdata".
func EndpointPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(os.TempDir(), name)
}

// Probe connects to the endpoint and immediately closes the connection. A nil error
// means the service is accepting connections.
func Probe(ctx context.Context, endpoint string) error {
	c, err := Dial(ctx, endpoint)
	if err != nil {
		return err
	}
	return c.Close()
}

// Listen opens a stream listener on the endpoint. A leftover socket file from a process
// that died without unlinking it is removed first; a live one is an error. The socket
// file is unlinked when the listener is closed.
func Listen(endpoint string) (*net.UnixListener, error) {
	path := EndpointPath(endpoint)

	if fi, err := os.Stat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("transport: %s exists and is not a socket", path)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		probeErr := Probe(ctx, path)
		cancel()
		if probeErr == nil {
			return nil, fmt.Errorf("transport: endpoint %s is already in use", path)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("transport: remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("transport: create endpoint directory: %w", err)
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)
	return ln, nil
}
