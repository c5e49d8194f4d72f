package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
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

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateThinkingLevel validates the extended thinking level
func (v *Validator) ValidateThinkingLevel(level string) error {
	if level == "" {
		return nil // Use default
	}

	validLevels := []string{"off", "low", "medium", "high"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid thinking level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateDrainMode validates a queue drain mode
func (v *Validator) ValidateDrainMode(mode string) error {
	if mode == "" {
		return nil // Use default
	}

	validModes := []string{"all", "one-at-a-time"}
	for _, valid := range validModes {
		if mode == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid drain mode: %s (must be one of: %s)", mode, strings.Join(validModes, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.Auth {
		if profile.Provider == "" {
			errors = append(errors, fmt.Errorf("auth profile %d (%s): provider is required", i, profile.ID))
			continue
		}
		if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
			errors = append(errors, fmt.Errorf("auth profile %d (%s): %w", i, profile.ID, err))
		}
	}

	if err := v.ValidateModel(cfg.Agent.Model); err != nil {
		errors = append(errors, err)
	}
	for i, model := range cfg.Agent.FallbackModels {
		if err := v.ValidateModel(model); err != nil {
			errors = append(errors, fmt.Errorf("fallback model %d: %w", i, err))
		}
	}

	if cfg.Agent.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.Agent.MaxTokens); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Agent.MaxRetries < 0 {
		errors = append(errors, fmt.Errorf("agent.max_retries must be >= 0"))
	}
	if cfg.Agent.BackoffCapSecs < 0 {
		errors = append(errors, fmt.Errorf("agent.backoff_cap_seconds must be >= 0"))
	}

	if err := v.ValidateThinkingLevel(cfg.Agent.ThinkingLevel); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateDrainMode(cfg.Agent.SteeringMode); err != nil {
		errors = append(errors, fmt.Errorf("agent.steering_mode: %w", err))
	}
	if err := v.ValidateDrainMode(cfg.Agent.FollowUpMode); err != nil {
		errors = append(errors, fmt.Errorf("agent.follow_up_mode: %w", err))
	}

	for i, rule := range cfg.Schedules {
		if strings.TrimSpace(rule.Cron) == "" {
			errors = append(errors, fmt.Errorf("schedule %d: cron expression is required", i))
		}
		if strings.TrimSpace(rule.Prompt) == "" {
			errors = append(errors, fmt.Errorf("schedule %d: prompt is required", i))
		}
		switch rule.Kind {
		case "", "follow_up", "steering":
		default:
			errors = append(errors, fmt.Errorf("schedule %d: invalid kind %s (must be follow_up or steering)", i, rule.Kind))
		}
	}

	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Addr) == "" {
		errors = append(errors, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
