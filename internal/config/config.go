// Package config holds the taskhost configuration and its YAML file format.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/taskhost/internal/executor"
	"github.com/me/taskhost/pkg/model"
)

// HostConfig holds configuration for a taskhost run.
type HostConfig struct {
	TickInterval time.Duration    `yaml:"tick_interval"` // Driver tick period (default 16ms)
	MaxTicks     int              `yaml:"max_ticks"`     // Stop after this many ticks; 0 = no limit
	MaxWorkers   int              `yaml:"max_workers"`   // Concurrent worker jobs; 0 = unlimited
	Executor     string           `yaml:"executor"`      // Worker executor: goroutine or inline
	Capability   model.Capability `yaml:"capability"`    // Trust tier of the root script task
	LogLevel     string           `yaml:"log_level"`     // debug, info, warn, error
	LogFormat    string           `yaml:"log_format"`    // text, json
	DBPath       string           `yaml:"db_path"`       // SQLite journal path; empty disables the journal
	Addr         string           `yaml:"addr"`          // Diagnostics listen address; empty disables the server
	FetchTimeout time.Duration    `yaml:"fetch_timeout"` // HTTP timeout for fetch()
	BaseDir      string           `yaml:"base_dir"`      // Root for relative readFile/glob paths
}

// DefaultHostConfig returns sensible defaults.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		TickInterval: 16 * time.Millisecond,
		Executor:     executor.TypeGoroutine,
		Capability:   model.CapabilityHostScript,
		LogLevel:     "info",
		LogFormat:    "text",
		FetchTimeout: 30 * time.Second,
		BaseDir:      ".",
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (HostConfig, error) {
	cfg := DefaultHostConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode unmarshals YAML into cfg, rejecting unknown keys, and validates
// the result. Fields absent from data keep their current values.
func Decode(data []byte, cfg *HostConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

// Validate checks value ranges.
func (c HostConfig) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be > 0, got %s", c.TickInterval))
	}
	if c.MaxTicks < 0 {
		errs = append(errs, fmt.Errorf("max_ticks must be >= 0, got %d", c.MaxTicks))
	}
	if c.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("max_workers must be >= 0, got %d", c.MaxWorkers))
	}
	switch c.Executor {
	case executor.TypeGoroutine, executor.TypeInline:
	default:
		errs = append(errs, fmt.Errorf("executor must be %q or %q, got %q", executor.TypeGoroutine, executor.TypeInline, c.Executor))
	}
	if c.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout must be >= 0, got %s", c.FetchTimeout))
	}
	return errors.Join(errs...)
}

// Marshal renders the config as YAML.
func (c HostConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
