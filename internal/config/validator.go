package config

import (
	"fmt"
	"strings"
)

// Validate sanity-checks configuration ranges.
func Validate(cfg *Config) error {
	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("gateway port %d out of range", cfg.Gateway.Port)
	}
	if cfg.Gateway.ExecTimeoutSeconds <= 0 {
		return fmt.Errorf("exec timeout must be positive")
	}
	if cfg.Sessions.Max <= 0 {
		return fmt.Errorf("session limit must be positive")
	}
	if cfg.Approval.TimeoutMinutes <= 0 {
		return fmt.Errorf("approval timeout must be positive")
	}
	if cfg.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive")
	}
	if cfg.Resilience.CooldownGrowth < 1 {
		return fmt.Errorf("cooldown growth must be at least 1")
	}
	if cfg.Resilience.ExecMaxAttempts <= 0 {
		return fmt.Errorf("execution attempts must be positive")
	}
	if cfg.Resilience.Jitter < 0 || cfg.Resilience.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1")
	}
	if err := validateProvider(cfg.AI.Provider); err != nil {
		return err
	}
	return nil
}

func validateProvider(provider string) error {
	switch provider {
	case "", "anthropic", "openai":
		return nil
	default:
		return fmt.Errorf("unsupported AI provider %q", provider)
	}
}

// ValidateAPIKey validates an API key format for a provider.
func ValidateAPIKey(key, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}
	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}
	return nil
}
