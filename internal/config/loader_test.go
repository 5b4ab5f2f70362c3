package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper())
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "STRUCTURED", cfg.Logging.Profile)
	require.Equal(t, 3, cfg.Dispatch.FailureThreshold)
	require.Equal(t, time.Second, cfg.Dispatch.BackoffBase)
	require.Equal(t, time.Minute, cfg.Dispatch.BackoffCap)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, 60*time.Second, cfg.Health.Interval)
	require.Equal(t, 80.0, cfg.Health.MemoryDegradedPercent)
	require.Equal(t, 90.0, cfg.Health.MemoryUnhealthyPercent)
	require.Equal(t, 85.0, cfg.Health.DiskDegradedPercent)
	require.Equal(t, 95.0, cfg.Health.DiskUnhealthyPercent)
	require.Equal(t, 10, cfg.Health.ErrorRateMinSamples)
	require.Equal(t, 0.10, cfg.Health.ErrorRateDegraded)
	require.Equal(t, 0.50, cfg.Health.ErrorRateUnhealthy)
}

func TestValidateRejectsInvertedHealthThresholds(t *testing.T) {
	cfg := Config{Health: HealthConfig{MemoryDegradedPercent: 95, MemoryUnhealthyPercent: 90}}
	require.Error(t, cfg.Validate())

	cfg = Config{Health: HealthConfig{DiskDegradedPercent: 99, DiskUnhealthyPercent: 95}}
	require.Error(t, cfg.Validate())

	cfg = Config{Health: HealthConfig{ErrorRateDegraded: 0.6, ErrorRateUnhealthy: 0.5}}
	require.Error(t, cfg.Validate())
}

func TestLoadInlineModels(t *testing.T) {
	v := newTestViper()
	v.Set("models.chat.endpoints", []map[string]any{
		{"id": "openai-1", "base_url": "https://api.openai.com/v1", "model": "gpt-4o", "api_key_env": "OPENAI_API_KEY"},
		{"id": "azure-1", "base_url": "https://example.azure.com/v1", "model": "gpt-4o"},
	})
	v.Set("rate_limits.openai-1", map[string]any{
		"max_requests": 60, "window": "1m", "strategy": "token_bucket",
	})

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Len(t, cfg.Models["chat"].Endpoints, 2)
	require.Equal(t, "openai-1", cfg.Models["chat"].Endpoints[0].ID)
	require.Equal(t, 60, cfg.RateLimits["openai-1"].MaxRequests)
	require.Equal(t, time.Minute, cfg.RateLimits["openai-1"].Window)
}

func TestLoadEndpointsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.yaml")
	content := `
models:
  chat:
    endpoints:
      - id: primary
        base_url: https://api.example.com/v1
        model: example-large
        api_key_env: EXAMPLE_API_KEY
      - id: fallback
        base_url: https://backup.example.com/v1
        model: example-large
rate_limits:
  primary:
    max_requests: 100
    window: 1m
    burst_size: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := newTestViper()
	v.Set("dispatch.endpoints_file", path)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Len(t, cfg.Models["chat"].Endpoints, 2)
	require.Equal(t, "EXAMPLE_API_KEY", cfg.Models["chat"].Endpoints[0].APIKeyEnv)
	require.Equal(t, 20, cfg.RateLimits["primary"].BurstSize)
}

func TestValidateRejectsBadEndpoints(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty pool", Config{Models: map[string]ModelConfig{"chat": {}}}},
		{"missing id", Config{Models: map[string]ModelConfig{"chat": {
			Endpoints: []EndpointConfig{{BaseURL: "https://x", Model: "m"}},
		}}}},
		{"duplicate id", Config{Models: map[string]ModelConfig{"chat": {
			Endpoints: []EndpointConfig{
				{ID: "a", BaseURL: "https://x", Model: "m"},
				{ID: "a", BaseURL: "https://y", Model: "m"},
			},
		}}}},
		{"missing base_url", Config{Models: map[string]ModelConfig{"chat": {
			Endpoints: []EndpointConfig{{ID: "a", Model: "m"}},
		}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.cfg.Validate())
		})
	}
}

func TestValidateRejectsBadRateLimits(t *testing.T) {
	cfg := Config{RateLimits: map[string]RateLimitConfig{
		"k": {MaxRequests: 0, Window: time.Minute},
	}}
	require.Error(t, cfg.Validate())

	cfg = Config{RateLimits: map[string]RateLimitConfig{
		"k": {MaxRequests: 10, Window: time.Minute, Strategy: "leaky_bucket"},
	}}
	require.Error(t, cfg.Validate())
}

func TestResolveCredential(t *testing.T) {
	ep := EndpointConfig{ID: "a"}
	cred, err := ep.ResolveCredential()
	require.NoError(t, err)
	require.Empty(t, cred)

	ep.APIKeyEnv = "WINGMAN_TEST_API_KEY"
	_, err = ep.ResolveCredential()
	require.Error(t, err)

	t.Setenv("WINGMAN_TEST_API_KEY", "sk-test")
	cred, err = ep.ResolveCredential()
	require.NoError(t, err)
	require.Equal(t, "sk-test", cred)
}
