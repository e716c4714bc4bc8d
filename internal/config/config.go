// Package config loads and validates the trustgate YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level trustgate configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel string `yaml:"log_level"`
}

// LedgerConfig selects the call ledger's durable sink.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite, postgres
	Path    string `yaml:"path,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
}

// UpstreamConfig describes the platform connection and resilience knobs.
type UpstreamConfig struct {
	Transport string            `yaml:"transport"` // stdio or http
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`

	MaxAttempts      int `yaml:"max_attempts"`
	TimeoutS         int `yaml:"timeout_s"`
	BackoffMS        int `yaml:"backoff_ms"`
	BackoffMaxMS     int `yaml:"backoff_max_ms"`
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownS        int `yaml:"cooldown_s"`
}

// CacheConfig enables the degraded-response cache when Addr is set.
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr,omitempty"`
	TTLSeconds int    `yaml:"ttl_s,omitempty"`
}

// Load reads and parses a trustgate config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	applyDefaults(cfg)

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	cfg := &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Ledger: LedgerConfig{
			Backend: "memory",
		},
		Upstream: UpstreamConfig{
			Transport: "http",
			URL:       "http://127.0.0.1:9000/mcp",
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Upstream.MaxAttempts == 0 {
		cfg.Upstream.MaxAttempts = 3
	}
	if cfg.Upstream.TimeoutS == 0 {
		cfg.Upstream.TimeoutS = 30
	}
	if cfg.Upstream.BackoffMS == 0 {
		cfg.Upstream.BackoffMS = 200
	}
	if cfg.Upstream.BackoffMaxMS == 0 {
		cfg.Upstream.BackoffMaxMS = 5000
	}
	if cfg.Upstream.FailureThreshold == 0 {
		cfg.Upstream.FailureThreshold = 5
	}
	if cfg.Upstream.CooldownS == 0 {
		cfg.Upstream.CooldownS = 60
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 300
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "memory"
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Ledger.Backend {
	case "memory":
	case "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	switch c.Upstream.Transport {
	case "stdio":
		if c.Upstream.Command == "" {
			return fmt.Errorf("upstream.command is required for stdio transport")
		}
	case "http":
		if c.Upstream.URL == "" {
			return fmt.Errorf("upstream.url is required for http transport")
		}
	default:
		return fmt.Errorf("unknown upstream transport %q", c.Upstream.Transport)
	}
	if c.Upstream.MaxAttempts < 1 {
		return fmt.Errorf("upstream.max_attempts must be at least 1")
	}
	return nil
}
