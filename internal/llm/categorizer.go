package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// Categorizer dispatches categorization requests to registered providers. It applies a
// per-provider rate limit and caches validated results. It never retries.
type Categorizer struct {
	registry  *Registry
	cache     *resultCache
	logger    *slog.Logger
	limiters  map[string]*rateLimiter
	rateLimit int
	mu        sync.Mutex
}

// CategorizerOptions tunes rate limiting and caching.
type CategorizerOptions struct {
	Logger    *slog.Logger
	CacheTTL  time.Duration
	RateLimit int // requests per minute per provider
}

// NewCategorizer creates a categorizer over registry.
func NewCategorizer(registry *Registry, opts CategorizerOptions) *Categorizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Categorizer{
		registry:  registry,
		cache:     newResultCache(opts.CacheTTL),
		logger:    logger.With("component", "llm"),
		limiters:  make(map[string]*rateLimiter),
		rateLimit: opts.RateLimit,
	}
}

// Categorize asks the named provider for a category. Unknown providers and missing
// categories fail with a ConfigurationError, malformed responses with a ValidationError
// and transport failures with an UpstreamError.
func (c *Categorizer) Categorize(ctx context.Context, providerName string, input Input) (Result, error) {
	provider, err := c.registry.Get(providerName)
	if err != nil {
		return Result{}, err
	}
	if len(input.Categories) == 0 {
		return Result{}, common.NewConfigurationError("categories", nil)
	}

	key := cacheKey(provider.Name(), input)
	if result, found := c.cache.get(key); found {
		c.logger.Debug("cache hit for transaction",
			"provider", provider.Name(),
			"merchant", input.Merchant)
		return result, nil
	}

	if err := c.limiter(provider.Name()).wait(ctx); err != nil {
		return Result{}, err
	}

	result, err := provider.Categorize(ctx, input)
	if err != nil {
		c.logger.Warn("provider categorization failed",
			"provider", provider.Name(),
			"merchant", input.Merchant,
			"kind", common.Kind(err),
			"error", err)
		return Result{}, err
	}

	c.cache.set(key, result)

	c.logger.Info("transaction categorized",
		"provider", provider.Name(),
		"merchant", input.Merchant,
		"category", result.Category,
		"confidence", result.Confidence,
		"is_transfer", result.IsTransfer)

	return result, nil
}

func (c *Categorizer) limiter(name string) *rateLimiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	rl, ok := c.limiters[name]
	if !ok {
		rl = newRateLimiter(c.rateLimit)
		c.limiters[name] = rl
	}
	return rl
}
