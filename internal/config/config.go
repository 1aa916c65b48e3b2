package config

// Config represents the main gambit configuration.
type Config struct {
	// Data directory for the audit database and logs.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Default workspace root for sessions created without one.
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	Gateway    GatewayConfig    `json:"gateway" mapstructure:"gateway"`
	Sessions   SessionsConfig   `json:"sessions" mapstructure:"sessions"`
	Approval   ApprovalConfig   `json:"approval" mapstructure:"approval"`
	Security   SecurityConfig   `json:"security" mapstructure:"security"`
	AI         AIConfig         `json:"ai" mapstructure:"ai"`
	Resilience ResilienceConfig `json:"resilience" mapstructure:"resilience"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// GatewayConfig holds gateway server configuration.
type GatewayConfig struct {
	Port int `json:"port" mapstructure:"port"`
	// ExecTimeoutSeconds bounds how long a dispatched tool call may run.
	ExecTimeoutSeconds int `json:"exec_timeout_seconds" mapstructure:"exec_timeout_seconds"`
}

// SessionsConfig bounds the session table.
type SessionsConfig struct {
	Max               int `json:"max" mapstructure:"max"`
	IdleAfterMinutes  int `json:"idle_after_minutes" mapstructure:"idle_after_minutes"`
	CloseAfterMinutes int `json:"close_after_minutes" mapstructure:"close_after_minutes"`
}

// ApprovalConfig holds approval workflow settings.
type ApprovalConfig struct {
	TimeoutMinutes   int      `json:"timeout_minutes" mapstructure:"timeout_minutes"`
	AutoApproveReads bool     `json:"auto_approve_reads" mapstructure:"auto_approve_reads"`
	AutoApprove      []string `json:"auto_approve" mapstructure:"auto_approve"`
	AlwaysAsk        []string `json:"always_ask" mapstructure:"always_ask"`
	Block            []string `json:"block" mapstructure:"block"`
}

// SecurityConfig holds command filter settings.
type SecurityConfig struct {
	AllowedCommands []string `json:"allowed_commands" mapstructure:"allowed_commands"`
	DeniedCommands  []string `json:"denied_commands" mapstructure:"denied_commands"`
	IgnorePatterns  []string `json:"ignore_patterns" mapstructure:"ignore_patterns"`
}

// AIConfig holds model backend configuration.
type AIConfig struct {
	Provider     string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey       string  `json:"api_key" mapstructure:"api_key"`
	Model        string  `json:"model" mapstructure:"model"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
}

// ResilienceConfig tunes the breaker and retry layer.
type ResilienceConfig struct {
	FailureThreshold int     `json:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSeconds  int     `json:"cooldown_seconds" mapstructure:"cooldown_seconds"`
	CooldownGrowth   float64 `json:"cooldown_growth" mapstructure:"cooldown_growth"`
	MaxAttempts      int     `json:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMillis  int     `json:"base_delay_millis" mapstructure:"base_delay_millis"`
	Jitter           float64 `json:"jitter" mapstructure:"jitter"`
	// ExecMaxAttempts bounds tool execution attempts. Tool calls have
	// side effects, so the default is a single attempt.
	ExecMaxAttempts int `json:"exec_max_attempts" mapstructure:"exec_max_attempts"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:               7777,
			ExecTimeoutSeconds: 60,
		},
		Sessions: SessionsConfig{
			Max:               16,
			IdleAfterMinutes:  10,
			CloseAfterMinutes: 30,
		},
		Approval: ApprovalConfig{
			TimeoutMinutes:   5,
			AutoApproveReads: true,
		},
		AI: AIConfig{
			Provider:  "anthropic",
			MaxTokens: 4096,
		},
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			CooldownSeconds:  30,
			CooldownGrowth:   2,
			MaxAttempts:      3,
			BaseDelayMillis:  1000,
			Jitter:           0.1,
			ExecMaxAttempts:  1,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}
