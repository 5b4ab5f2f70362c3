package config

import (
	"time"
)

// Config represents the complete application configuration. Values come from
// the config file, environment variables (WINGMAN_ prefix), and flags, in
// that order of increasing precedence.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`

	// Models maps each logical model to its endpoint pool. May also be
	// loaded from dispatch.endpoints_file.
	Models map[string]ModelConfig `mapstructure:"models"`

	// RateLimits maps rate-limit keys (endpoint IDs) to their limits.
	// Endpoints without an entry are not limited.
	RateLimits map[string]RateLimitConfig `mapstructure:"rate_limits"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format).
	// Metrics are also proxied at /metrics on the main HTTP port.
	Port int `mapstructure:"port"`

	// MaxSamples bounds the in-memory histogram retention per series.
	MaxSamples int `mapstructure:"max_samples"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Interval is the background check cadence.
	Interval time.Duration `mapstructure:"interval"`

	// DiskPath is the filesystem checked for disk pressure.
	DiskPath string `mapstructure:"disk_path"`

	// Per-check thresholds. The percent values are used-percent cutoffs for
	// the resource checks; the error-rate values are failure fractions over
	// dispatch traffic.
	MemoryDegradedPercent  float64 `mapstructure:"memory_degraded_percent"`
	MemoryUnhealthyPercent float64 `mapstructure:"memory_unhealthy_percent"`
	DiskDegradedPercent    float64 `mapstructure:"disk_degraded_percent"`
	DiskUnhealthyPercent   float64 `mapstructure:"disk_unhealthy_percent"`
	ErrorRateMinSamples    int     `mapstructure:"error_rate_min_samples"`
	ErrorRateDegraded      float64 `mapstructure:"error_rate_degraded"`
	ErrorRateUnhealthy     float64 `mapstructure:"error_rate_unhealthy"`
}

// DispatchConfig tunes failover and circuit-breaker behavior.
type DispatchConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffCap       time.Duration `mapstructure:"backoff_cap"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`

	// EndpointsFile optionally points at a YAML file declaring the model
	// endpoint pools, merged under Models.
	EndpointsFile string `mapstructure:"endpoints_file"`
}

// ModelConfig is the endpoint pool for one logical model.
type ModelConfig struct {
	Endpoints []EndpointConfig `mapstructure:"endpoints" yaml:"endpoints"`
}

// EndpointConfig describes one provider endpoint. API keys are never stored
// in config; APIKeyEnv names the environment variable holding the key.
type EndpointConfig struct {
	ID        string `mapstructure:"id" yaml:"id"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Model     string `mapstructure:"model" yaml:"model"`
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env"`
}

// RateLimitConfig is the limit for one key.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests" yaml:"max_requests"`
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	BurstSize   int           `mapstructure:"burst_size" yaml:"burst_size"`
	Strategy    string        `mapstructure:"strategy" yaml:"strategy"`
}
