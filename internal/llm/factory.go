package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/abhisek/papersmith/internal/store"
)

// ErrNotConfigured is returned by NewProviderFromEnv when no provider
// credentials are present.
var ErrNotConfigured = errors.New("no LLM provider configured")

// NewProvider builds the configured provider wrapped as
// caller -> retry -> logging -> base.
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderOpenRouter:
		oc := cfg.OpenRouter
		if oc.BaseURL == "" {
			oc.BaseURL = defaultOpenRouterBaseURL
		}
		base, err = NewOpenAIProvider(oc)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderMock:
		return NewMockProvider(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	if events != nil {
		base = WithLogging(base, cfg.Provider, events)
	}
	return WithRetry(base, cfg.Retry), nil
}

// NewProviderFromEnv uses PAPERSMITH_LLM_PROVIDER when set and otherwise
// probes the vendors' standard API key variables.
func NewProviderFromEnv(ctx context.Context, events store.EventRepo) (Provider, error) {
	if os.Getenv("PAPERSMITH_LLM_PROVIDER") != "" {
		return NewProvider(ctx, ConfigFromEnv(), events)
	}
	cfg, ok := DiscoverConfig()
	if !ok {
		return nil, ErrNotConfigured
	}
	return NewProvider(ctx, cfg, events)
}
