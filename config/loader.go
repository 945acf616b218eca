package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"chemrpc/codec"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads path, decodes it according to its extension, and returns the validated
// result with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Defaults()
	interpolated := interpolateEnv(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse YAML config %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.Decode(interpolated, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse TOML config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse TOML config %s: unknown key %q", path, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q (want .yaml, .yml or .toml)", path, filepath.Ext(path))
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables become empty strings.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Service.Endpoint) == "" {
		return fmt.Errorf("service.endpoint must not be empty")
	}
	if cfg.Service.ReadyTimeout.Duration <= 0 {
		return fmt.Errorf("service.ready_timeout must be positive")
	}
	if cfg.Service.PollInterval.Duration <= 0 {
		return fmt.Errorf("service.poll_interval must be positive")
	}
	if cfg.Service.PollInterval.Duration > cfg.Service.ReadyTimeout.Duration {
		return fmt.Errorf("service.poll_interval (%s) exceeds service.ready_timeout (%s)",
			cfg.Service.PollInterval.Duration, cfg.Service.ReadyTimeout.Duration)
	}
	if cfg.Service.DrainTimeout.Duration < 0 {
		return fmt.Errorf("service.drain_timeout must not be negative")
	}
	if _, err := codec.ParseType(cfg.Client.Codec); err != nil {
		return fmt.Errorf("client.codec: %w", err)
	}
	if cfg.Server.Rate < 0 || cfg.Server.Burst < 0 {
		return fmt.Errorf("server.rate and server.burst must not be negative")
	}
	switch cfg.Registry.Balancer {
	case "", "round_robin", "weighted_random":
	default:
		return fmt.Errorf("registry.balancer: unknown balancer %q", cfg.Registry.Balancer)
	}
	if len(cfg.Registry.Endpoints) > 0 && cfg.Registry.TTL <= 0 {
		return fmt.Errorf("registry.ttl must be positive")
	}
	return nil
}
