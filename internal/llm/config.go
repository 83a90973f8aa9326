package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// Provider names.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

// Config holds the connection settings for one provider.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	RateLimit   int // requests per minute
}

// NewProvider builds the provider named by cfg.Provider. Missing credentials are reported
// here so no network call is attempted with an unusable provider.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))

	switch name {
	case ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return nil, common.NewConfigurationError("llm.provider",
			fmt.Errorf("%w: unknown LLM provider %q", common.ErrInvalidConfig, cfg.Provider))
	}

	if cfg.APIKey == "" {
		return nil, common.NewConfigurationError(name+".api_key", nil)
	}
	if cfg.Model == "" {
		return nil, common.NewConfigurationError(name+".model", nil)
	}

	switch name {
	case ProviderOpenRouter:
		return newChatCompletionsProvider(name, "https://openrouter.ai/api/v1", cfg), nil
	case ProviderOpenAI:
		return newChatCompletionsProvider(name, "https://api.openai.com/v1", cfg), nil
	case ProviderAnthropic:
		return newAnthropicProvider(cfg), nil
	default:
		return newGeminiProvider(ctx, cfg)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
