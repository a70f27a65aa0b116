package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Bronze   BronzeConfig   `koanf:"bronze"`
	Pipeline PipelineConfig `koanf:"pipeline"`
}

type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Port    int    `koanf:"port"`
	Host    string `koanf:"host"`
	Mode    string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type BronzeConfig struct {
	Path string `koanf:"path"`
}

type PipelineConfig struct {
	Interval   string `koanf:"interval"`
	RunOnce    bool   `koanf:"run_once"`
	SessionGap string `koanf:"session_gap"`
	BatchSize  int    `koanf:"batch_size"`
}

// IntervalDuration returns the parsed tick interval. Validate has
// already checked it parses.
func (c PipelineConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// SessionGapDuration returns the parsed session gap threshold.
func (c PipelineConfig) SessionGapDuration() time.Duration {
	d, _ := time.ParseDuration(c.SessionGap)
	return d
}

func (c *Config) Validate() error {
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
		}
		if strings.TrimSpace(c.Server.Host) == "" {
			return fmt.Errorf("server.host is required")
		}
		if c.Server.Mode != "debug" && c.Server.Mode != "release" {
			return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
		}
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if strings.TrimSpace(c.Bronze.Path) == "" {
		return fmt.Errorf("bronze.path is required")
	}

	interval, err := time.ParseDuration(c.Pipeline.Interval)
	if err != nil {
		return fmt.Errorf("invalid pipeline.interval %q: %w", c.Pipeline.Interval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("pipeline.interval must be > 0")
	}
	gap, err := time.ParseDuration(c.Pipeline.SessionGap)
	if err != nil {
		return fmt.Errorf("invalid pipeline.session_gap %q: %w", c.Pipeline.SessionGap, err)
	}
	if gap <= 0 {
		return fmt.Errorf("pipeline.session_gap must be > 0")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}

	return nil
}

// Load parses config from defaults, an optional YAML file and env
// vars (SHOPFUNNEL_ prefix, double underscore as the key separator),
// then validates the result.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.enabled":          true,
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.mode":             "release",
		"database.type":           "postgres",
		"database.dsn":            "",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"bronze.path":             "./data/bronze",
		"pipeline.interval":       "1m",
		"pipeline.run_once":       false,
		"pipeline.session_gap":    "30m",
		"pipeline.batch_size":     5000,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("SHOPFUNNEL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SHOPFUNNEL_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
