package config

import "time"

// Config represents the complete application configuration.
// Values come from, in increasing precedence: built-in defaults, the config
// file, TOOTFILL_* environment variables, and command-line flags.
type Config struct {
	Throttle ThrottleConfig `mapstructure:"throttle" yaml:"throttle"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	Input    InputConfig    `mapstructure:"input" yaml:"input"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Status   StatusConfig   `mapstructure:"status" yaml:"status"`
}

// ThrottleConfig holds the per-host bucket defaults and the global pacer.
type ThrottleConfig struct {
	// Capacity is the unit budget per interval for a newly seen host.
	Capacity int `mapstructure:"capacity" yaml:"capacity"`

	// Interval is how long a full bucket takes to drain.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// InitialLevel pre-fills new buckets so a run does not start with a burst.
	InitialLevel int `mapstructure:"initial_level" yaml:"initial_level"`

	// AcquireTimeout is how long a request may wait for admission before the
	// run is stopped.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`

	// IntervalCeiling bounds intervals learned from server reset headers.
	IntervalCeiling time.Duration `mapstructure:"interval_ceiling" yaml:"interval_ceiling"`

	// MaxRPS caps requests per second across all hosts (0 disables).
	MaxRPS     float64 `mapstructure:"max_rps" yaml:"max_rps"`
	PacerBurst int     `mapstructure:"pacer_burst" yaml:"pacer_burst"`
}

// FetchConfig configures outbound status requests.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// InputConfig describes the input CSV layout.
type InputConfig struct {
	Column     int  `mapstructure:"column" yaml:"column"`
	SkipHeader bool `mapstructure:"skip_header" yaml:"skip_header"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Profile selects console output (simple) or JSON lines (structured)
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// StatusConfig configures the optional run status server.
type StatusConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `mapstructure:"addr" yaml:"addr"`
}
