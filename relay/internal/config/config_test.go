package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WithDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Upstream.APIBase != "http://localhost:8080" {
		t.Errorf("Upstream.APIBase = %q, want %q", cfg.Upstream.APIBase, "http://localhost:8080")
	}
	if cfg.Upstream.AuthToken != "" {
		t.Errorf("Upstream.AuthToken = %q, want empty", cfg.Upstream.AuthToken)
	}
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("Upstream.Timeout = %v, want 30s", cfg.Upstream.Timeout)
	}
	if cfg.CORS.Origin != "*" {
		t.Errorf("CORS.Origin = %q, want *", cfg.CORS.Origin)
	}
	if cfg.Stream.KeepaliveInterval != 25*time.Second {
		t.Errorf("Stream.KeepaliveInterval = %v, want 25s", cfg.Stream.KeepaliveInterval)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Dir != "./logs" || cfg.Journal.Buffer != 1024 {
		t.Errorf("Journal = %+v, want enabled ./logs 1024", cfg.Journal)
	}
	if cfg.Ingestion.MaxBodyBytes != 1048576 {
		t.Errorf("Ingestion.MaxBodyBytes = %d, want 1048576", cfg.Ingestion.MaxBodyBytes)
	}
	if cfg.RateLimit.Enabled {
		t.Error("RateLimit.Enabled should be false by default")
	}
	if cfg.RateLimit.Backend != "local" || cfg.RateLimit.Requests != 60 || cfg.RateLimit.Window != time.Minute || cfg.RateLimit.TrustProxy {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS.Enabled should be false by default")
	}
	if cfg.NATS.SubjectPrefix != "callrelay.events" {
		t.Errorf("NATS.SubjectPrefix = %q", cfg.NATS.SubjectPrefix)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
	if cfg.Debug {
		t.Error("Debug should be false by default")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() with non-existent file path should return error")
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(path, []byte("invalid: yaml: : :"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with invalid YAML should return error")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := `
server:
  port: 9100
upstream:
  api_base: "https://telephony.example.com/v1///"
  auth_token: "file-token"
  timeout: 5s
cors:
  origin: "https://console.example.com"
stream:
  keepalive_interval: 10s
journal:
  dir: /var/lib/callrelay
ratelimit:
  enabled: true
  backend: redis
  requests: 5
  window: 10s
  trust_proxy: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Upstream.APIBase != "https://telephony.example.com/v1" {
		t.Errorf("trailing slashes should be trimmed, got %q", cfg.Upstream.APIBase)
	}
	if cfg.Upstream.AuthToken != "file-token" {
		t.Errorf("Upstream.AuthToken = %q", cfg.Upstream.AuthToken)
	}
	if cfg.Upstream.Timeout != 5*time.Second {
		t.Errorf("Upstream.Timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.CORS.Origin != "https://console.example.com" {
		t.Errorf("CORS.Origin = %q", cfg.CORS.Origin)
	}
	if cfg.Stream.KeepaliveInterval != 10*time.Second {
		t.Errorf("Stream.KeepaliveInterval = %v", cfg.Stream.KeepaliveInterval)
	}
	if cfg.Journal.Dir != "/var/lib/callrelay" {
		t.Errorf("Journal.Dir = %q", cfg.Journal.Dir)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Backend != "redis" || !cfg.RateLimit.TrustProxy {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9200")
	t.Setenv("API_BASE", "http://10.0.0.5:8080/")
	t.Setenv("AUTH_TOKEN", "env-token")
	t.Setenv("CORS_ORIGIN", "https://ops.example.com")
	t.Setenv("DEBUG", "1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Upstream.APIBase != "http://10.0.0.5:8080" {
		t.Errorf("Upstream.APIBase = %q", cfg.Upstream.APIBase)
	}
	if cfg.Upstream.AuthToken != "env-token" {
		t.Errorf("Upstream.AuthToken = %q", cfg.Upstream.AuthToken)
	}
	if cfg.CORS.Origin != "https://ops.example.com" {
		t.Errorf("CORS.Origin = %q", cfg.CORS.Origin)
	}
	if !cfg.Debug {
		t.Error("DEBUG=1 should enable debug")
	}
}

func TestLoad_PrefixedEnvironmentWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_TOKEN", "legacy")
	t.Setenv("RELAY_UPSTREAM_AUTH_TOKEN", "prefixed")
	t.Setenv("RELAY_STREAM_KEEPALIVE_INTERVAL", "3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upstream.AuthToken != "prefixed" {
		t.Errorf("Upstream.AuthToken = %q, want prefixed", cfg.Upstream.AuthToken)
	}
	if cfg.Stream.KeepaliveInterval != 3*time.Second {
		t.Errorf("Stream.KeepaliveInterval = %v, want 3s", cfg.Stream.KeepaliveInterval)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    ServerConfig{Port: 9000},
			Upstream:  UpstreamConfig{APIBase: "http://localhost:8080"},
			Stream:    StreamConfig{KeepaliveInterval: time.Second},
			RateLimit: RateLimitConfig{Backend: "local", Requests: 1, Window: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"api base without scheme", func(c *Config) { c.Upstream.APIBase = "localhost:8080" }, true},
		{"api base empty", func(c *Config) { c.Upstream.APIBase = "" }, true},
		{"zero keepalive", func(c *Config) { c.Stream.KeepaliveInterval = 0 }, true},
		{"unknown limiter backend", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Backend = "memcached"
		}, true},
		{"limiter without window", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Window = 0
		}, true},
		{"disabled limiter is not checked", func(c *Config) { c.RateLimit.Backend = "bogus" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
