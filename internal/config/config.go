// Package config holds server configuration and its YAML file loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceConfig tunes one registered device.
type DeviceConfig struct {
	// MaxConcurrent caps simultaneous jobs on the device. Zero means
	// unlimited.
	MaxConcurrent int `yaml:"max_concurrent"`

	// RatePerSec caps sustained job starts per second. Zero disables
	// rate limiting.
	RatePerSec float64 `yaml:"rate_per_sec"`

	// Burst is the rate limiter's burst size.
	Burst int `yaml:"burst"`

	// LatencyMS adds artificial per-run latency (sim device only).
	LatencyMS int `yaml:"latency_ms"`
}

// SchedulerConfig tunes the worker pool and retry pacing.
type SchedulerConfig struct {
	Workers          int `yaml:"workers"`
	BackoffInitialMS int `yaml:"backoff_initial_ms"`
	BackoffMaxMS     int `yaml:"backoff_max_ms"`
}

// ServerConfig holds configuration for the server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (":memory:" for testing)
	JobLogDir string `yaml:"job_log_dir"`

	Scheduler SchedulerConfig         `yaml:"scheduler"`
	Devices   map[string]DeviceConfig `yaml:"devices"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Scheduler: SchedulerConfig{
			Workers:          4,
			BackoffInitialMS: 1000,
		},
	}
}

// LoadServerConfig reads a YAML config file over the defaults. An
// empty path returns the defaults unchanged.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = DefaultServerConfig().Scheduler.Workers
	}
	return cfg, nil
}

// BackoffInitial returns the initial retry delay.
func (c SchedulerConfig) BackoffInitial() time.Duration {
	if c.BackoffInitialMS <= 0 {
		return time.Second
	}
	return time.Duration(c.BackoffInitialMS) * time.Millisecond
}

// BackoffMax returns the retry delay cap, zero for uncapped.
func (c SchedulerConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMS) * time.Millisecond
}
