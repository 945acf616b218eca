// Package config loads chemrpc settings from a YAML or TOML file.
//
// The format follows the file extension (.yaml/.yml or .toml). ${VAR} references are
// replaced with environment values before parsing, defaults fill whatever the file
// leaves out, and the result is validated before it is returned.
package config

import (
	"fmt"
	"time"

	"chemrpc/codec"
)

// Duration is a time.Duration written as "250ms", "5s" in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Service  ServiceConfig  `yaml:"service" toml:"service"`
	Client   ClientConfig   `yaml:"client" toml:"client"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Registry RegistryConfig `yaml:"registry" toml:"registry"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// ServiceConfig describes the service process a harness launches.
type ServiceConfig struct {
	Executable   string   `yaml:"executable" toml:"executable"`
	Args         []string `yaml:"args" toml:"args"`
	Endpoint     string   `yaml:"endpoint" toml:"endpoint"`
	Catalog      string   `yaml:"catalog" toml:"catalog"` // SQLite file; empty = built-in fixture
	Testing      bool     `yaml:"testing" toml:"testing"`
	ReadyTimeout Duration `yaml:"ready_timeout" toml:"ready_timeout"`
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval"`
	DrainTimeout Duration `yaml:"drain_timeout" toml:"drain_timeout"`
}

type ClientConfig struct {
	Codec           string   `yaml:"codec" toml:"codec"` // "json" or "jsoniter"
	CallTimeout     Duration `yaml:"call_timeout" toml:"call_timeout"`
	MaxPayloadBytes uint32   `yaml:"max_payload_bytes" toml:"max_payload_bytes"`
}

type ServerConfig struct {
	Rate            float64  `yaml:"rate" toml:"rate"` // Requests per second, 0 = unlimited
	Burst           int      `yaml:"burst" toml:"burst"`
	RequestTimeout  Duration `yaml:"request_timeout" toml:"request_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// RegistryConfig enables etcd publishing/discovery when Endpoints is non-empty.
type RegistryConfig struct {
	Endpoints   []string `yaml:"endpoints" toml:"endpoints"`
	ServiceName string   `yaml:"service_name" toml:"service_name"`
	TTL         int64    `yaml:"ttl" toml:"ttl"`
	Balancer    string   `yaml:"balancer" toml:"balancer"` // "round_robin" or "weighted_random"
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Endpoint:     "chemdata",
			ReadyTimeout: Duration{5 * time.Second},
			PollInterval: Duration{50 * time.Millisecond},
			DrainTimeout: Duration{2 * time.Second},
		},
		Client: ClientConfig{
			Codec: "json",
		},
		Server: ServerConfig{
			ShutdownTimeout: Duration{5 * time.Second},
		},
		Registry: RegistryConfig{
			ServiceName: "chemdata",
			TTL:         10,
			Balancer:    "round_robin",
		},
		Log: LogConfig{Level: "info"},
	}
}

// CodecType resolves Client.Codec.
func (c *Config) CodecType() codec.CodecType {
	t, _ := codec.ParseType(c.Client.Codec)
	return t
}
