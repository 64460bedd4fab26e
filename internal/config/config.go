// internal/config/config.go
// Environment configuration for the xprocsem tool
//
// LEARN: envconfig maps struct fields to environment variables. A tag on
// a nested struct becomes part of the key, so Log.Level is read from
// XPROC_LOG_LEVEL and Stress.Workers from XPROC_STRESS_WORKERS. Defaults
// live in struct tags, so Default() and Load() on an empty environment agree.

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "XPROC"

// Config holds all tool configuration.
type Config struct {
	Log     LogConfig     `envconfig:"LOG"`
	Metrics MetricsConfig `envconfig:"METRICS"`
	Demo    DemoConfig    `envconfig:"DEMO"`
	Stress  StressConfig  `envconfig:"STRESS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
	AuditFile   string `envconfig:"AUDIT_FILE"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `envconfig:"ADDR"` // empty disables the endpoint
}

// DemoConfig drives the two-process demo.
type DemoConfig struct {
	Initial uint32        `envconfig:"INITIAL" default:"0"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// StressConfig drives the in-process attach/detach stress run.
type StressConfig struct {
	Workers int `envconfig:"WORKERS" default:"8"`
	Rounds  int `envconfig:"ROUNDS" default:"200"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Demo: DemoConfig{
			Timeout: 5 * time.Second,
		},
		Stress: StressConfig{
			Workers: 8,
			Rounds:  200,
		},
	}
}

// Validate rejects values the tool cannot run with.
func (c *Config) Validate() error {
	if c.Stress.Workers <= 0 {
		return fmt.Errorf("stress workers must be positive, got %d", c.Stress.Workers)
	}
	if c.Stress.Rounds <= 0 {
		return fmt.Errorf("stress rounds must be positive, got %d", c.Stress.Rounds)
	}
	if c.Demo.Timeout <= 0 {
		return fmt.Errorf("demo timeout must be positive, got %s", c.Demo.Timeout)
	}
	return nil
}
