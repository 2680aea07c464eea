// Package config provides configuration loading for tootfill on top of viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable overrides, e.g.
// TOOTFILL_THROTTLE_CAPACITY.
const EnvPrefix = "TOOTFILL"

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	// Throttle defaults
	v.SetDefault("throttle.capacity", 150)
	v.SetDefault("throttle.interval", "300s")
	v.SetDefault("throttle.initial_level", 2)
	v.SetDefault("throttle.acquire_timeout", "30s")
	v.SetDefault("throttle.interval_ceiling", "1h")
	v.SetDefault("throttle.max_rps", 0.0)
	v.SetDefault("throttle.pacer_burst", 1)

	// Fetch defaults
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.user_agent", "tootfill")
	v.SetDefault("fetch.max_body_bytes", 4<<20)

	// Input defaults
	v.SetDefault("input.column", 0)
	v.SetDefault("input.skip_header", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "simple")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// Status server is off unless an address is given
	v.SetDefault("status.addr", "")
}

// BindEnv wires TOOTFILL_* environment overrides into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the settings held by v into a validated Config and makes it
// the current configuration.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	t := c.Throttle

	if t.Capacity < 1 {
		errs = append(errs, fmt.Errorf("throttle.capacity must be at least 1, got %d", t.Capacity))
	}
	if t.Interval <= 0 {
		errs = append(errs, fmt.Errorf("throttle.interval must be positive, got %s", t.Interval))
	}
	if t.InitialLevel < 0 || t.InitialLevel > t.Capacity {
		errs = append(errs, fmt.Errorf("throttle.initial_level must be between 0 and capacity, got %d", t.InitialLevel))
	}
	if t.AcquireTimeout <= 0 {
		errs = append(errs, fmt.Errorf("throttle.acquire_timeout must be positive, got %s", t.AcquireTimeout))
	}
	if t.IntervalCeiling <= t.Interval {
		errs = append(errs, fmt.Errorf("throttle.interval_ceiling (%s) must exceed throttle.interval (%s)", t.IntervalCeiling, t.Interval))
	}
	if t.MaxRPS < 0 {
		errs = append(errs, fmt.Errorf("throttle.max_rps must not be negative, got %g", t.MaxRPS))
	}
	if t.MaxRPS > 0 && t.PacerBurst < 1 {
		errs = append(errs, fmt.Errorf("throttle.pacer_burst must be at least 1, got %d", t.PacerBurst))
	}

	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must not be negative, got %s", c.Fetch.Timeout))
	}
	if c.Fetch.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_body_bytes must not be negative, got %d", c.Fetch.MaxBodyBytes))
	}
	if c.Input.Column < 0 {
		errs = append(errs, fmt.Errorf("input.column must not be negative, got %d", c.Input.Column))
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Profile)) {
	case "", "simple", "structured":
	default:
		errs = append(errs, fmt.Errorf("logging.profile must be simple or structured, got %q", c.Logging.Profile))
	}

	return errors.Join(errs...)
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
