package llm

import (
	"fmt"
	"os"
	"time"
)

// Provider names accepted by Config.Provider.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Config selects and configures the topic-tagging model.
type Config struct {
	Provider string

	Anthropic  ProviderConfig
	OpenAI     ProviderConfig
	Gemini     ProviderConfig
	OpenRouter ProviderConfig
	Retry      RetryConfig

	// Timeout bounds a single tagging call including retries.
	Timeout time.Duration
}

// ProviderConfig holds credentials and model choice for one provider.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string // OpenAI-compatible endpoints only
}

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig returns defaults tuned for short classification calls.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderAnthropic,
		Anthropic:  ProviderConfig{Model: "claude-haiku"},
		OpenAI:     ProviderConfig{Model: "gpt-4o-mini"},
		Gemini:     ProviderConfig{Model: "gemini-flash"},
		OpenRouter: ProviderConfig{Model: "google/gemini-2.0-flash-exp", BaseURL: defaultOpenRouterBaseURL},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 20 * time.Second,
	}
}

// ConfigFromEnv overlays PAPERSMITH_* environment variables on the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	setIf(&cfg.Provider, "PAPERSMITH_LLM_PROVIDER")

	for prefix, pc := range map[string]*ProviderConfig{
		"ANTHROPIC":  &cfg.Anthropic,
		"OPENAI":     &cfg.OpenAI,
		"GEMINI":     &cfg.Gemini,
		"OPENROUTER": &cfg.OpenRouter,
	} {
		setIf(&pc.APIKey, "PAPERSMITH_"+prefix+"_API_KEY")
		setIf(&pc.Model, "PAPERSMITH_"+prefix+"_MODEL")
		setIf(&pc.BaseURL, "PAPERSMITH_"+prefix+"_BASE_URL")
	}
	return cfg
}

// DiscoverConfig falls back to the vendors' standard key variables when no
// PAPERSMITH_* provider is configured. It reports false if no key is found.
func DiscoverConfig() (Config, bool) {
	cfg := DefaultConfig()
	probes := []struct {
		env      string
		provider string
		target   *ProviderConfig
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic, &cfg.Anthropic},
		{"OPENAI_API_KEY", ProviderOpenAI, &cfg.OpenAI},
		{"GEMINI_API_KEY", ProviderGemini, &cfg.Gemini},
		{"OPENROUTER_API_KEY", ProviderOpenRouter, &cfg.OpenRouter},
	}
	for _, p := range probes {
		if k := os.Getenv(p.env); k != "" {
			cfg.Provider = p.provider
			p.target.APIKey = k
			return cfg, true
		}
	}
	return Config{}, false
}

// Validate checks that the selected provider has an API key.
func (c Config) Validate() error {
	var pc ProviderConfig
	switch c.Provider {
	case ProviderAnthropic:
		pc = c.Anthropic
	case ProviderOpenAI:
		pc = c.OpenAI
	case ProviderGemini:
		pc = c.Gemini
	case ProviderOpenRouter:
		pc = c.OpenRouter
	case ProviderMock:
		return nil
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if pc.APIKey == "" {
		return fmt.Errorf("an API key is required for the %s provider", c.Provider)
	}
	return nil
}

func setIf(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
