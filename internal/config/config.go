package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment variable, e.g. BIKEDASH_SERVER_ADDR.
const EnvPrefix = "BIKEDASH"

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" split_words:"true"`
	Dataset  DatasetConfig  `yaml:"dataset" split_words:"true"`
	Sessions SessionsConfig `yaml:"sessions" split_words:"true"`
	Logging  LoggingConfig  `yaml:"logging" split_words:"true"`
}

type ServerConfig struct {
	Addr            string          `yaml:"addr" split_words:"true" default:":8080"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" split_words:"true" default:"15s"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" split_words:"true" default:"15s"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" split_words:"true" default:"10s"`
	AllowedOrigins  []string        `yaml:"allowed_origins" split_words:"true" default:"*"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" split_words:"true" default:"true"`
	RPS     float64 `yaml:"rps" split_words:"true" default:"50"`
	Burst   int     `yaml:"burst" split_words:"true" default:"100"`
}

type DatasetConfig struct {
	Path     string `yaml:"path" split_words:"true" default:"day.csv"`
	Response string `yaml:"response" split_words:"true" default:"cnt"`
	DefaultX string `yaml:"default_x" split_words:"true" default:"temp"`
	DefaultY string `yaml:"default_y" split_words:"true" default:"cnt"`
	Bins     int    `yaml:"bins" split_words:"true" default:"30"`
}

type SessionsConfig struct {
	IdleTTL          time.Duration `yaml:"idle_ttl" split_words:"true" default:"30m"`
	SweepInterval    time.Duration `yaml:"sweep_interval" split_words:"true" default:"1m"`
	SubscriberBuffer int           `yaml:"subscriber_buffer" split_words:"true" default:"4"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true" default:"info"`
	Format string `yaml:"format" split_words:"true" default:"json"`
}

// Load reads defaults and environment variables, then overlays the YAML
// file at path when one is given. Environment variables that are set win
// over the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "load config from env")
	}

	if path != "" {
		fileCfg, err := loadFromFile(path, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "load config from file")
		}
		cfg = mergeConfigs(cfg, *fileCfg, os.LookupEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}

// loadFromFile decodes the YAML file on top of base, so keys the file
// leaves out keep their base values.
func loadFromFile(path string, base Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base
	cfg.Server.AllowedOrigins = append([]string(nil), base.Server.AllowedOrigins...)
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs takes fileCfg, restoring the envCfg value of every field
// whose environment variable is set.
func mergeConfigs(envCfg, fileCfg Config, lookup func(string) (string, bool)) Config {
	set := func(name string) bool {
		_, ok := lookup(EnvPrefix + "_" + name)
		return ok
	}
	out := fileCfg

	if set("SERVER_ADDR") {
		out.Server.Addr = envCfg.Server.Addr
	}
	if set("SERVER_READ_TIMEOUT") {
		out.Server.ReadTimeout = envCfg.Server.ReadTimeout
	}
	if set("SERVER_WRITE_TIMEOUT") {
		out.Server.WriteTimeout = envCfg.Server.WriteTimeout
	}
	if set("SERVER_SHUTDOWN_TIMEOUT") {
		out.Server.ShutdownTimeout = envCfg.Server.ShutdownTimeout
	}
	if set("SERVER_ALLOWED_ORIGINS") {
		out.Server.AllowedOrigins = envCfg.Server.AllowedOrigins
	}
	if set("SERVER_RATE_LIMIT_ENABLED") {
		out.Server.RateLimit.Enabled = envCfg.Server.RateLimit.Enabled
	}
	if set("SERVER_RATE_LIMIT_RPS") {
		out.Server.RateLimit.RPS = envCfg.Server.RateLimit.RPS
	}
	if set("SERVER_RATE_LIMIT_BURST") {
		out.Server.RateLimit.Burst = envCfg.Server.RateLimit.Burst
	}

	if set("DATASET_PATH") {
		out.Dataset.Path = envCfg.Dataset.Path
	}
	if set("DATASET_RESPONSE") {
		out.Dataset.Response = envCfg.Dataset.Response
	}
	if set("DATASET_DEFAULT_X") {
		out.Dataset.DefaultX = envCfg.Dataset.DefaultX
	}
	if set("DATASET_DEFAULT_Y") {
		out.Dataset.DefaultY = envCfg.Dataset.DefaultY
	}
	if set("DATASET_BINS") {
		out.Dataset.Bins = envCfg.Dataset.Bins
	}

	if set("SESSIONS_IDLE_TTL") {
		out.Sessions.IdleTTL = envCfg.Sessions.IdleTTL
	}
	if set("SESSIONS_SWEEP_INTERVAL") {
		out.Sessions.SweepInterval = envCfg.Sessions.SweepInterval
	}
	if set("SESSIONS_SUBSCRIBER_BUFFER") {
		out.Sessions.SubscriberBuffer = envCfg.Sessions.SubscriberBuffer
	}

	if set("LOGGING_LEVEL") {
		out.Logging.Level = envCfg.Logging.Level
	}
	if set("LOGGING_FORMAT") {
		out.Logging.Format = envCfg.Logging.Format
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr must be set")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst <= 0) {
		return errors.Newf("rate limit needs positive rps and burst, got %v/%d",
			c.Server.RateLimit.RPS, c.Server.RateLimit.Burst)
	}
	if c.Dataset.Path == "" {
		return errors.New("dataset path must be set")
	}
	if c.Dataset.Response == "" {
		return errors.New("dataset response column must be set")
	}
	if c.Dataset.Bins <= 0 {
		return errors.Newf("histogram bins must be positive, got %d", c.Dataset.Bins)
	}
	if c.Sessions.IdleTTL <= 0 || c.Sessions.SweepInterval <= 0 {
		return errors.New("session ttl and sweep interval must be positive")
	}
	if c.Sessions.SubscriberBuffer <= 0 {
		return errors.Newf("subscriber buffer must be positive, got %d", c.Sessions.SubscriberBuffer)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errors.Newf("logging format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
