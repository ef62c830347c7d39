package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Debug     bool            `mapstructure:"debug"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type UpstreamConfig struct {
	APIBase   string        `mapstructure:"api_base"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type CORSConfig struct {
	Origin string `mapstructure:"origin"`
}

type StreamConfig struct {
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Buffer  int    `mapstructure:"buffer"`
}

type IngestionConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Backend  string        `mapstructure:"backend"` // "local" (default) or "redis"
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`

	// TrustProxy keys limits on X-Forwarded-For / X-Real-IP. Enable only
	// behind a reverse proxy that sets those headers.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Token         string `mapstructure:"token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps config keys to the unprefixed variable names that are
// accepted alongside the RELAY_ ones.
var legacyEnv = map[string]string{
	"server.port":         "PORT",
	"upstream.api_base":   "API_BASE",
	"upstream.auth_token": "AUTH_TOKEN",
	"cors.origin":         "CORS_ORIGIN",
	"debug":               "DEBUG",
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 9000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("upstream.api_base", "http://localhost:8080")
	v.SetDefault("upstream.auth_token", "")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("cors.origin", "*")
	v.SetDefault("stream.keepalive_interval", "25s")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.dir", "./logs")
	v.SetDefault("journal.buffer", 1024)
	v.SetDefault("ingestion.max_body_bytes", 1<<20)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.backend", "local")
	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.trust_proxy", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "callrelay.events")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("debug", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/callrelay")
	}

	// RELAY_UPSTREAM_API_BASE etc. override file values.
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		prefixed := "RELAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Upstream.APIBase = strings.TrimRight(cfg.Upstream.APIBase, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the relay cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	u, err := url.Parse(c.Upstream.APIBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream.api_base %q", c.Upstream.APIBase)
	}
	if c.Stream.KeepaliveInterval <= 0 {
		return fmt.Errorf("stream.keepalive_interval must be positive")
	}
	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "local", "redis":
		default:
			return fmt.Errorf("unknown ratelimit.backend %q (supported: local, redis)", c.RateLimit.Backend)
		}
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("ratelimit.requests and ratelimit.window must be positive")
		}
	}
	return nil
}
