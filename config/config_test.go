package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
service:
  executable: ${CHEMRPC_TEST_BIN}
  args: ["--testing"]
  endpoint: mongochem
  ready_timeout: 3s
  poll_interval: 25ms
client:
  codec: jsoniter
  call_timeout: 1500ms
server:
  rate: 100
  burst: 10
registry:
  endpoints: ["127.0.0.1:2379"]
  balancer: weighted_random
log:
  level: debug
`

const tomlConfig = `
[service]
executable = "${CHEMRPC_TEST_BIN}"
args = ["--testing"]
endpoint = "mongochem"
ready_timeout = "3s"
poll_interval = "25ms"

[client]
codec = "jsoniter"
call_timeout = "1500ms"

[server]
rate = 100.0
burst = 10

[registry]
endpoints = ["127.0.0.1:2379"]
balancer = "weighted_random"

[log]
level = "debug"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// YAML 和 TOML 解析结果必须一致
func TestLoadYAMLAndTOMLAgree(t *testing.T) {
	t.Setenv("CHEMRPC_TEST_BIN", "/usr/local/bin/chemsvc")

	fromYAML, err := Load(writeFile(t, "chemrpc.yaml", yamlConfig))
	require.NoError(t, err)
	fromTOML, err := Load(writeFile(t, "chemrpc.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, fromYAML, fromTOML)

	cfg := fromYAML
	assert.Equal(t, "/usr/local/bin/chemsvc", cfg.Service.Executable)
	assert.Equal(t, []string{"--testing"}, cfg.Service.Args)
	assert.Equal(t, "mongochem", cfg.Service.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.Service.ReadyTimeout.Duration)
	assert.Equal(t, 25*time.Millisecond, cfg.Service.PollInterval.Duration)
	assert.Equal(t, 1500*time.Millisecond, cfg.Client.CallTimeout.Duration)
	assert.Equal(t, "jsoniter", cfg.CodecType().String())
	assert.Equal(t, "debug", cfg.Log.Level)

	// 文件里没写的字段用默认值
	assert.Equal(t, 2*time.Second, cfg.Service.DrainTimeout.Duration)
	assert.Equal(t, int64(10), cfg.Registry.TTL)
	assert.Equal(t, "chemdata", cfg.Registry.ServiceName)
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown.yaml":  "service:\n  endpont: typo\n",
		"duration.yaml": "service:\n  ready_timeout: soon\n",
		"codec.yaml":    "client:\n  codec: protobuf\n",
		"poll.yaml":     "service:\n  ready_timeout: 10ms\n  poll_interval: 1s\n",
		"unknown.toml":  "[service]\nendpont = \"typo\"\n",
		"config.json":   "{}",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, name, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefaultsAreValid(t *testing.T) {
	assert.NoError(t, validate(Defaults()))
}
