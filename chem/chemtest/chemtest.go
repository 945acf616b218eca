// Package chemtest runs the chemistry service out of a test binary.
//
// A test package calls RunHelper first thing in its TestMain. When the binary is
// re-executed with EnvMode set, RunHelper becomes the service (or a misbehaving
// stand-in) and exits instead of returning, so launcher and shutdown tests get a real
// child process without building cmd/chemsvc first.
package chemtest

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chemrpc/catalog"
	"chemrpc/chem"
)

const (
	EnvMode     = "CHEMTEST_MODE"
	EnvEndpoint = "CHEMTEST_ENDPOINT"
	EnvDelayMS  = "CHEMTEST_DELAY_MS"
	EnvExitCode = "CHEMTEST_EXIT_CODE"
)

// Modes of the re-executed binary.
const (
	ModeServe = "serve" // Serve after an optional delay
	ModeExit  = "exit"  // Exit immediately with EnvExitCode
	ModeHang  = "hang"  // Never listen, ignore SIGTERM
)

// RunHelper returns immediately in a normal test run. In a re-executed child it runs
// the requested mode and exits the process.
func RunHelper() {
	switch os.Getenv(EnvMode) {
	case "":
		return
	case ModeServe:
		os.Exit(serve())
	case ModeExit:
		code, _ := strconv.Atoi(os.Getenv(EnvExitCode))
		os.Exit(code)
	case ModeHang:
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Hour)
		os.Exit(0)
	default:
		os.Exit(2)
	}
}

func serve() int {
	if ms, err := strconv.Atoi(os.Getenv(EnvDelayMS)); err == nil && ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	err := chem.Run(ctx, chem.Options{
		Endpoint: os.Getenv(EnvEndpoint),
		Testing:  slices.Contains(os.Args[1:], "--testing"),
		Catalog:  catalog.NewMemoryCatalog(catalog.Fixture()...),
		Logger:   zap.NewNop(),
	})
	if err != nil {
		return 1
	}
	return 0
}

// Process describes one re-execution of the current test binary.
type Process struct {
	Mode     string
	Endpoint string
	Delay    time.Duration // ModeServe: time before the endpoint is bound
	Testing  bool          // ModeServe: honour kill
	ExitCode int           // ModeExit
}

// Executable is the running test binary.
func (p Process) Executable() string {
	exe, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return exe
}

func (p Process) Args() []string {
	if p.Testing {
		return []string{"--testing"}
	}
	return nil
}

func (p Process) Env() []string {
	return []string{
		EnvMode + "=" + p.Mode,
		EnvEndpoint + "=" + p.Endpoint,
		EnvDelayMS + "=" + strconv.FormatInt(p.Delay.Milliseconds(), 10),
		EnvExitCode + "=" + strconv.Itoa(p.ExitCode),
	}
}

// Endpoint returns a unique socket path short enough for sun_path, removed after the test.
func Endpoint(t testing.TB) string {
	t.Helper()
	path := filepath.Join(os.TempDir(), "chemtest-"+uuid.NewString()[:8])
	t.Cleanup(func() { os.Remove(path) })
	return path
}
