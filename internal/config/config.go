// Package config handles the taskvm.toml server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
)

// Config represents a taskvm.toml file.
type Config struct {
	Server    Server    `toml:"server"`
	Scheduler Scheduler `toml:"scheduler"`
	Store     Store     `toml:"store"`
	Log       Log       `toml:"log"`
}

// Server configures the HTTP API.
type Server struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout Duration `toml:"shutdown-timeout"`
}

// Scheduler configures the worker pool that runs submitted tasks.
type Scheduler struct {
	Workers   int      `toml:"workers"`
	QueueSize int      `toml:"queue-size"`
	StepLimit int64    `toml:"step-limit"`
	Timeout   Duration `toml:"timeout"`
}

// Store selects the task database. URL accepts "memory:", sqlite and
// postgres database URLs.
type Store struct {
	URL string `toml:"url"`
}

// Log configures the server logger.
type Log struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Duration is a time.Duration written as a string such as "5s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            "127.0.0.1:8642",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Scheduler: Scheduler{
			Workers:   4,
			QueueSize: 256,
			StepLimit: 50_000_000,
			Timeout:   Duration{30 * time.Second},
		},
		Store: Store{URL: "sqlite:taskvm.db"},
		Log:   Log{Level: "info"},
	}
}

// Load reads a config file. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text on top of Default and validates the result.
func Parse(text string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Server.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("server.addr must not be empty"))
	}
	if c.Scheduler.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("scheduler.workers must be at least 1, got %d", c.Scheduler.Workers))
	}
	if c.Scheduler.QueueSize < 1 {
		result = multierror.Append(result, fmt.Errorf("scheduler.queue-size must be at least 1, got %d", c.Scheduler.QueueSize))
	}
	if c.Scheduler.StepLimit < 0 {
		result = multierror.Append(result, fmt.Errorf("scheduler.step-limit must not be negative"))
	}
	if c.Scheduler.Timeout.Duration < 0 {
		result = multierror.Append(result, fmt.Errorf("scheduler.timeout must not be negative"))
	}
	if c.Store.URL == "" {
		result = multierror.Append(result, fmt.Errorf("store.url must not be empty"))
	}
	return result.ErrorOrNil()
}
