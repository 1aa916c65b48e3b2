package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, Validate(cfg))
	assert.Equal(t, 7777, cfg.Gateway.Port)
	assert.Equal(t, 60, cfg.Gateway.ExecTimeoutSeconds)
	assert.True(t, cfg.Approval.AutoApproveReads)
	// Tool execution is single-attempt unless explicitly raised.
	assert.Equal(t, 1, cfg.Resilience.ExecMaxAttempts)
}

func TestLoader_MissingFileYieldsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Gateway.Port, cfg.Gateway.Port)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoader_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gambit.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"gateway": {"port": 9999},
		"sessions": {"max": 4},
		"ai": {"provider": "anthropic"}
	}`), 0600))

	cfg, err := NewLoader(path).Load()

	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, 4, cfg.Sessions.Max)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	// Untouched sections keep their defaults.
	assert.Equal(t, 60, cfg.Gateway.ExecTimeoutSeconds)
}

func TestLoader_RejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gambit.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvAPIKeyOverride(t *testing.T) {
	t.Setenv("GAMBIT_AI_API_KEY", "sk-ant-test123")
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test123", cfg.AI.APIKey)
}

func TestValidate_Ranges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Gateway.Port = 0 }},
		{"port too high", func(c *Config) { c.Gateway.Port = 70000 }},
		{"exec timeout zero", func(c *Config) { c.Gateway.ExecTimeoutSeconds = 0 }},
		{"session limit zero", func(c *Config) { c.Sessions.Max = 0 }},
		{"approval timeout zero", func(c *Config) { c.Approval.TimeoutMinutes = 0 }},
		{"failure threshold zero", func(c *Config) { c.Resilience.FailureThreshold = 0 }},
		{"cooldown growth below one", func(c *Config) { c.Resilience.CooldownGrowth = 0.5 }},
		{"exec attempts zero", func(c *Config) { c.Resilience.ExecMaxAttempts = 0 }},
		{"jitter above one", func(c *Config) { c.Resilience.Jitter = 1.5 }},
		{"unknown provider", func(c *Config) { c.AI.Provider = "bard" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	assert.NoError(t, ValidateAPIKey("sk-ant-abc", "anthropic"))
	assert.Error(t, ValidateAPIKey("sk-abc", "anthropic"))
	assert.NoError(t, ValidateAPIKey("sk-abc", "openai"))
	assert.Error(t, ValidateAPIKey("abc", "openai"))
	assert.Error(t, ValidateAPIKey("", "anthropic"))
}
