package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chemrpc/chem/chemtest"
	"chemrpc/client"
	"chemrpc/launcher"
	"chemrpc/shutdown"
	"chemrpc/transport"
)

func TestMain(m *testing.M) {
	chemtest.RunHelper()
	goleak.VerifyTestMain(m)
}

func config(t *testing.T, testingMode bool) Config {
	p := chemtest.Process{Mode: chemtest.ModeServe, Endpoint: chemtest.Endpoint(t), Testing: testingMode, Delay: 300 * time.Millisecond}
	return Config{
		Launch: launcher.Config{
			Executable: p.Executable(),
			Args:       p.Args(),
			Endpoint:   p.Endpoint,
			Env:        p.Env(),
			Timeout:    5 * time.Second,
		},
		Drain: 2 * time.Second,
	}
}

// 端到端：methanol → InChI, ethanol InChI → name, 然后 kill
func TestSession(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config(t, true))
	require.NoError(t, err)
	defer s.Close()

	inchi, err := s.Chem().ConvertMoleculeIdentifier(ctx, "methanol", "name", "inchi")
	require.NoError(t, err)
	assert.Equal(t, "InChI=1S/CH4O/c1-2/h2H,1H3", inchi)

	name, err := s.Chem().GetChemicalJSON(ctx, "InChI=1S/C2H6O/c1-2-3/h3H,2H2,1H3")
	require.NoError(t, err)
	assert.Equal(t, "ethanol", name)

	require.NoError(t, s.Close())
	assert.True(t, s.Handle().Exited())

	_, err = client.Dial(ctx, s.Handle().Endpoint())
	assert.True(t, transport.IsConnectError(err), "got %v", err)

	// 第二次 Close 返回同样的结果
	assert.NoError(t, s.Close())
}

func TestSessionUngracefulClose(t *testing.T) {
	cfg := config(t, false)
	cfg.Drain = 300 * time.Millisecond

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	err = s.Close()
	assert.True(t, shutdown.IsUngraceful(err), "got %v", err)
	assert.True(t, s.Handle().Exited())
}

func TestOpenLaunchFailure(t *testing.T) {
	cfg := config(t, true)
	cfg.Launch.Env = append(cfg.Launch.Env, chemtest.EnvMode+"="+chemtest.ModeExit)

	_, err := Open(context.Background(), cfg)
	assert.True(t, launcher.IsLaunchError(err), "got %v", err)
}

// 多个会话并发：每个会话有自己的连接和进程
func TestConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	sessions := make([]*Session, 3)
	for i := range sessions {
		s, err := Open(ctx, config(t, true))
		require.NoError(t, err)
		defer s.Close()
		sessions[i] = s
	}

	done := make(chan error, len(sessions))
	for _, s := range sessions {
		go func(s *Session) {
			_, err := s.Chem().ConvertMoleculeIdentifier(ctx, "ethanol", "name", "smiles")
			done <- err
		}(s)
	}
	for range sessions {
		assert.NoError(t, <-done)
	}
}
