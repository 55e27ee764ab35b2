// Package config loads engine settings from a TOML file with DISPATCH_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

// Config is the file layout:
//
//	[instance]
//	id = "orders-1"
//
//	[log]
//	level = "debug"
//	file  = "log/dispatch.log"
//
//	[http]
//	listen = ":8080"
//	mount  = "/rpc"
type Config struct {
	Instance Instance `toml:"instance"`
	Stats    Stats    `toml:"stats"`
	Log      Log      `toml:"log"`
	Metrics  Metrics  `toml:"metrics"`
	Tracing  Tracing  `toml:"tracing"`
	Catalog  Catalog  `toml:"catalog"`
	HTTP     HTTP     `toml:"http"`
}

type Instance struct {
	// ID pins the engine id. Empty generates a UUIDv7.
	ID string `toml:"id"`
}

type Stats struct {
	// IntervalMs is the max age of the process stats sample. Zero disables
	// sampling.
	IntervalMs int `toml:"interval_ms"`
}

// Interval returns IntervalMs as a duration.
func (s Stats) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

type Log struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`

	// File enables a rotating JSON log file. Empty disables it.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type Metrics struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
	Subsystem string `toml:"subsystem"`

	// Path serves the Prometheus handler on the HTTP adapter. Empty
	// disables it.
	Path string `toml:"path"`
}

type Tracing struct {
	Enabled bool `toml:"enabled"`
}

type Catalog struct {
	// File is a YAML error catalog loaded at startup.
	File string `toml:"file"`
}

type HTTP struct {
	Listen         string `toml:"listen"`
	Mount          string `toml:"mount"`
	Health         string `toml:"health"`
	ReadTimeoutMs  int    `toml:"read_timeout_ms"`
	WriteTimeoutMs int    `toml:"write_timeout_ms"`
	IdleTimeoutMs  int    `toml:"idle_timeout_ms"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Stats: Stats{IntervalMs: 5000},
		Log: Log{
			Level:      "info",
			Console:    true,
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "dispatch",
			Path:      "/metrics",
		},
		Tracing: Tracing{Enabled: true},
		HTTP: HTTP{
			Listen:         ":8080",
			Mount:          "/",
			Health:         "/healthz",
			ReadTimeoutMs:  15000,
			WriteTimeoutMs: 30000,
			IdleTimeoutMs:  60000,
		},
	}
}

// Load reads path over Default, then applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 -- path is provided by trusted config/flag.
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults restores defaults for string fields a file set to blank.
func applyDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = def.Log.Level
	}
	if strings.TrimSpace(cfg.Metrics.Namespace) == "" {
		cfg.Metrics.Namespace = def.Metrics.Namespace
	}
	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = def.HTTP.Listen
	}
	if strings.TrimSpace(cfg.HTTP.Mount) == "" {
		cfg.HTTP.Mount = def.HTTP.Mount
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DISPATCH_INSTANCE_ID")); v != "" {
		cfg.Instance.ID = v
	}
	if v := strings.TrimSpace(os.Getenv("DISPATCH_STATS_INTERVAL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stats.IntervalMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DISPATCH_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("DISPATCH_LOG_FILE")); v != "" {
		cfg.Log.File = v
	}
	cfg.Log.Console = envBool("DISPATCH_LOG_CONSOLE", cfg.Log.Console)
	cfg.Metrics.Enabled = envBool("DISPATCH_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Tracing.Enabled = envBool("DISPATCH_TRACING_ENABLED", cfg.Tracing.Enabled)
	if v := strings.TrimSpace(os.Getenv("DISPATCH_CATALOG_FILE")); v != "" {
		cfg.Catalog.File = v
	}
	if v := strings.TrimSpace(os.Getenv("DISPATCH_HTTP_LISTEN")); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("DISPATCH_HTTP_MOUNT")); v != "" {
		cfg.HTTP.Mount = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Stats.IntervalMs < 0 {
		return errors.New("stats.interval_ms must be non-negative")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return errors.New("log rotation limits must be non-negative")
	}
	if !strings.HasPrefix(c.HTTP.Mount, "/") {
		return fmt.Errorf("http.mount %q must start with /", c.HTTP.Mount)
	}
	if c.HTTP.Health != "" && !strings.HasPrefix(c.HTTP.Health, "/") {
		return fmt.Errorf("http.health %q must start with /", c.HTTP.Health)
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}
	return nil
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
