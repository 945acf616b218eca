package launcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chemrpc/chem/chemtest"
	"chemrpc/transport"
)

func TestMain(m *testing.M) {
	// 子进程模式下直接变成服务，不会跑测试
	chemtest.RunHelper()
	goleak.VerifyTestMain(m)
}

func config(p chemtest.Process, timeout time.Duration) Config {
	return Config{
		Executable:   p.Executable(),
		Args:         p.Args(),
		Endpoint:     p.Endpoint,
		Env:          p.Env(),
		Timeout:      timeout,
		PollInterval: 20 * time.Millisecond,
	}
}

func TestStartWaitsForReadiness(t *testing.T) {
	p := chemtest.Process{Mode: chemtest.ModeServe, Endpoint: chemtest.Endpoint(t), Delay: 1500 * time.Millisecond, Testing: true}

	start := time.Now()
	h, err := Start(context.Background(), config(p, 5*time.Second))
	require.NoError(t, err)
	defer h.Kill()

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 1500*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
	assert.NoError(t, transport.Probe(context.Background(), h.Endpoint()))
	assert.False(t, h.Exited())
	assert.Greater(t, h.PID(), 0)
}

func TestStartTimeout(t *testing.T) {
	p := chemtest.Process{Mode: chemtest.ModeHang, Endpoint: chemtest.Endpoint(t)}

	start := time.Now()
	_, err := Start(context.Background(), config(p, 300*time.Millisecond))

	var te *LaunchTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 300*time.Millisecond, te.Timeout)
	assert.Greater(t, te.Attempts, 1)
	assert.True(t, transport.IsConnectError(te.LastErr), "got %v", te.LastErr)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestStartProcessExitsEarly(t *testing.T) {
	p := chemtest.Process{Mode: chemtest.ModeExit, Endpoint: chemtest.Endpoint(t), ExitCode: 3}

	_, err := Start(context.Background(), config(p, 5*time.Second))

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, le.ExitCode)
	assert.False(t, IsLaunchTimeout(err))
}

func TestStartMissingExecutable(t *testing.T) {
	_, err := Start(context.Background(), Config{Executable: "/nonexistent/chemsvc", Endpoint: chemtest.Endpoint(t)})
	assert.True(t, IsLaunchError(err), "got %v", err)
}

func TestStartCancelled(t *testing.T) {
	p := chemtest.Process{Mode: chemtest.ModeHang, Endpoint: chemtest.Endpoint(t)}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := Start(ctx, config(p, 5*time.Second))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	p := chemtest.Process{Mode: chemtest.ModeServe, Endpoint: chemtest.Endpoint(t)}
	h, err := Start(context.Background(), config(p, 5*time.Second))
	require.NoError(t, err)

	// The served helper stops on SIGTERM.
	require.NoError(t, h.Terminate(2*time.Second))
	assert.True(t, h.Exited())
	assert.Equal(t, 0, h.ExitCode())

	// ModeHang 忽略 SIGTERM，只能靠 SIGKILL
	hang := chemtest.Process{Mode: chemtest.ModeHang, Endpoint: chemtest.Endpoint(t)}
	cfg := config(hang, 5*time.Second)
	h2 := spawnOnly(t, cfg)

	start := time.Now()
	require.NoError(t, h2.Terminate(200*time.Millisecond))
	assert.True(t, h2.Exited())
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, -1, h2.ExitCode())
}

func TestWait(t *testing.T) {
	p := chemtest.Process{Mode: chemtest.ModeServe, Endpoint: chemtest.Endpoint(t)}
	h, err := Start(context.Background(), config(p, 5*time.Second))
	require.NoError(t, err)
	defer h.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)

	require.NoError(t, h.Kill())
	assert.Error(t, h.Wait(context.Background()))
	select {
	case <-h.Done():
	default:
		t.Fatal("Done must be closed after Kill")
	}
	// 再次 Kill 已退出的进程不算错误
	assert.NoError(t, h.Kill())
	assert.NoError(t, h.Terminate(time.Second))
}

// spawnOnly starts a process without waiting for readiness.
func spawnOnly(t *testing.T, cfg Config) *Handle {
	t.Helper()
	cfg.setDefaults()
	h, err := spawn(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { h.Kill() })
	// 给子进程一点时间装好 SIGTERM 处理
	time.Sleep(200 * time.Millisecond)
	return h
}
