package ai

import (
	"errors"
	"net/url"
	"time"

	"github.com/hrygo/estatebot/internal/profile"
	"github.com/hrygo/estatebot/plugin/ai/timeout"
)

// Config holds the AI provider configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	MaxRetries     int
	Timeout        time.Duration // Per request
	RetryBaseDelay time.Duration // Doubled after each failed attempt
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.openai.com/v1",
		Model:          "gpt-4o-mini",
		MaxRetries:     3,
		Timeout:        timeout.LLMRequestTimeout,
		RetryBaseDelay: time.Second,
	}
}

// NewConfigFromProfile creates the provider config from profile.
func NewConfigFromProfile(p *profile.Profile) Config {
	cfg := DefaultConfig()
	cfg.APIKey = p.OpenAIAPIKey
	if p.OpenAIBaseURL != "" {
		cfg.BaseURL = p.OpenAIBaseURL
	}
	if p.OpenAIModel != "" {
		cfg.Model = p.OpenAIModel
	}
	return cfg
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	if c.Model == "" {
		return errors.New("LLM model is required")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("LLM base URL must be an absolute URL")
	}
	return nil
}
