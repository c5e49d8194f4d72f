package config

// Config is the top-level engine configuration
type Config struct {
	Agent     AgentConfig    `json:"agent" mapstructure:"agent"`
	Auth      []AuthProfile  `json:"auth" mapstructure:"auth"`
	Schedules []ScheduleRule `json:"schedules,omitempty" mapstructure:"schedules"`
	Metrics   MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Logging   LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// AgentConfig configures the execution engine
type AgentConfig struct {
	Model          string   `json:"model" mapstructure:"model"`
	FallbackModels []string `json:"fallback_models,omitempty" mapstructure:"fallback_models"`
	SystemPrompt   string   `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
	ThinkingLevel  string   `json:"thinking_level,omitempty" mapstructure:"thinking_level"`
	MaxTokens      int      `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	MaxRetries     int      `json:"max_retries,omitempty" mapstructure:"max_retries"`
	BackoffCapSecs int      `json:"backoff_cap_seconds,omitempty" mapstructure:"backoff_cap_seconds"`
	SteeringMode   string   `json:"steering_mode,omitempty" mapstructure:"steering_mode"`
	FollowUpMode   string   `json:"follow_up_mode,omitempty" mapstructure:"follow_up_mode"`
}

// AuthProfile holds credentials for one provider backend
type AuthProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// ScheduleRule injects a prompt into a running agent on a cron schedule
type ScheduleRule struct {
	Cron   string `json:"cron" mapstructure:"cron"`
	Prompt string `json:"prompt" mapstructure:"prompt"`
	Kind   string `json:"kind,omitempty" mapstructure:"kind"` // follow_up (default) or steering
}

// MetricsConfig configures the prometheus scrape endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr,omitempty" mapstructure:"addr"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file,omitempty" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:          "claude-sonnet-4-20250514",
			ThinkingLevel:  "off",
			MaxTokens:      4096,
			MaxRetries:     3,
			BackoffCapSecs: 30,
			SteeringMode:   "one-at-a-time",
			FollowUpMode:   "one-at-a-time",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}
