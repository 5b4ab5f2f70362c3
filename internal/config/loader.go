// Package config provides centralized configuration management. Settings are
// layered: built-in defaults, then the config file, then WINGMAN_ environment
// variables, then flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SetDefaults registers the built-in defaults on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.max_samples", 1000)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.interval", "60s")
	v.SetDefault("health.disk_path", "/")
	v.SetDefault("health.memory_degraded_percent", 80.0)
	v.SetDefault("health.memory_unhealthy_percent", 90.0)
	v.SetDefault("health.disk_degraded_percent", 85.0)
	v.SetDefault("health.disk_unhealthy_percent", 95.0)
	v.SetDefault("health.error_rate_min_samples", 10)
	v.SetDefault("health.error_rate_degraded", 0.10)
	v.SetDefault("health.error_rate_unhealthy", 0.50)

	v.SetDefault("dispatch.failure_threshold", 3)
	v.SetDefault("dispatch.backoff_base", "1s")
	v.SetDefault("dispatch.backoff_cap", "60s")
	v.SetDefault("dispatch.max_attempts", 0)
	v.SetDefault("dispatch.call_timeout", "60s")
}

// Load unmarshals the viper state into a typed Config, merges the endpoints
// file when configured, and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Dispatch.EndpointsFile != "" {
		if err := mergeEndpointsFile(cfg, cfg.Dispatch.EndpointsFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// endpointsFile is the YAML shape of the external endpoints declaration.
type endpointsFile struct {
	Models     map[string]ModelConfig     `yaml:"models"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
}

// mergeEndpointsFile loads model pools and rate limits from a YAML file.
// Inline config wins on key collisions.
func mergeEndpointsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read endpoints file: %w", err)
	}

	var parsed endpointsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse endpoints file %s: %w", path, err)
	}

	if cfg.Models == nil {
		cfg.Models = make(map[string]ModelConfig)
	}
	for model, pool := range parsed.Models {
		if _, exists := cfg.Models[model]; !exists {
			cfg.Models[model] = pool
		}
	}

	if cfg.RateLimits == nil {
		cfg.RateLimits = make(map[string]RateLimitConfig)
	}
	for key, limit := range parsed.RateLimits {
		if _, exists := cfg.RateLimits[key]; !exists {
			cfg.RateLimits[key] = limit
		}
	}
	return nil
}

// Validate checks structural consistency. Credential presence is checked
// separately at serve time by ResolveCredential, so validation stays usable
// for offline commands.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	for model, pool := range c.Models {
		if len(pool.Endpoints) == 0 {
			return fmt.Errorf("model %q: at least one endpoint is required", model)
		}
		seen := make(map[string]struct{}, len(pool.Endpoints))
		for _, ep := range pool.Endpoints {
			if strings.TrimSpace(ep.ID) == "" {
				return fmt.Errorf("model %q: endpoint id is required", model)
			}
			if _, dup := seen[ep.ID]; dup {
				return fmt.Errorf("model %q: duplicate endpoint id %q", model, ep.ID)
			}
			seen[ep.ID] = struct{}{}
			if strings.TrimSpace(ep.BaseURL) == "" {
				return fmt.Errorf("endpoint %q: base_url is required", ep.ID)
			}
			if strings.TrimSpace(ep.Model) == "" {
				return fmt.Errorf("endpoint %q: model is required", ep.ID)
			}
		}
	}

	for key, limit := range c.RateLimits {
		if limit.MaxRequests <= 0 {
			return fmt.Errorf("rate limit %q: max_requests must be positive", key)
		}
		if limit.Window <= 0 {
			return fmt.Errorf("rate limit %q: window must be positive", key)
		}
		switch limit.Strategy {
		case "", "token_bucket", "sliding_window":
		default:
			return fmt.Errorf("rate limit %q: unknown strategy %q", key, limit.Strategy)
		}
	}

	if c.Health.Interval < 0 || (c.Health.Enabled && c.Health.Interval > 0 && c.Health.Interval < time.Second) {
		return fmt.Errorf("health.interval must be at least 1s")
	}
	if c.Health.MemoryDegradedPercent > c.Health.MemoryUnhealthyPercent {
		return fmt.Errorf("health.memory_degraded_percent must not exceed memory_unhealthy_percent")
	}
	if c.Health.DiskDegradedPercent > c.Health.DiskUnhealthyPercent {
		return fmt.Errorf("health.disk_degraded_percent must not exceed disk_unhealthy_percent")
	}
	if c.Health.ErrorRateDegraded > c.Health.ErrorRateUnhealthy {
		return fmt.Errorf("health.error_rate_degraded must not exceed error_rate_unhealthy")
	}
	return nil
}

// ResolveCredential reads the endpoint's API key from the environment.
// Endpoints without an api_key_env send no credential.
func (e EndpointConfig) ResolveCredential() (string, error) {
	if e.APIKeyEnv == "" {
		return "", nil
	}
	key := strings.TrimSpace(os.Getenv(e.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("endpoint %q: environment variable %s is not set", e.ID, e.APIKeyEnv)
	}
	return key, nil
}
