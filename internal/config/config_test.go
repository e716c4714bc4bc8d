package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Ledger.Backend != "memory" {
		t.Errorf("ledger backend = %s, want memory", cfg.Ledger.Backend)
	}
	if cfg.Upstream.MaxAttempts != 3 || cfg.Upstream.FailureThreshold != 5 {
		t.Errorf("upstream defaults = %+v", cfg.Upstream)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trustgate.yaml")
	content := `
version: "1"
server:
  port: 9090
upstream:
  transport: stdio
  command: platform-mcp
ledger:
  backend: sqlite
  path: ./ledger.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Upstream.TimeoutS != 30 {
		t.Errorf("timeout_s default not applied: %d", cfg.Upstream.TimeoutS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid port"},
		{"sqlite without path", func(c *Config) { c.Ledger.Backend = "sqlite" }, "ledger.path"},
		{"postgres without dsn", func(c *Config) { c.Ledger.Backend = "postgres" }, "ledger.dsn"},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "etcd" }, "unknown ledger backend"},
		{"stdio without command", func(c *Config) {
			c.Upstream.Transport = "stdio"
			c.Upstream.Command = ""
		}, "upstream.command"},
		{"unknown transport", func(c *Config) { c.Upstream.Transport = "carrier-pigeon" }, "unknown upstream transport"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trustgate.yaml")
	cfg := Defaults()
	cfg.Server.Port = 7070
	cfg.Cache.RedisAddr = "127.0.0.1:6379"

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 7070 || loaded.Cache.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}
