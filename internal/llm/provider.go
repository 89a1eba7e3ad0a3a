package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/config"
	"github.com/cvtailor/cvtailor/internal/resilience"
)

// Provider names
const (
	ProviderClaude = config.ProviderClaude
	ProviderOpenAI = config.ProviderOpenAI
)

// Provider is a chat completion backend
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
	Model() string
}

// RequestRecorder receives one call per upstream API request
type RequestRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, inputTokens, outputTokens int)
}

type nopRecorder struct{}

func (nopRecorder) RecordLLMRequest(string, string, string, time.Duration, int, int) {}

// NewProvider builds the configured provider behind a circuit breaker. When
// caching is enabled the result is wrapped in a CachedProvider backed by rdb
// (which may be nil), so cached tailoring answers are served while the
// breaker is open.
func NewProvider(cfg *config.Config, rdb *redis.Client, recorder RequestRecorder, logger *zap.Logger) (Provider, error) {
	var base Provider

	switch cfg.LLM.Provider {
	case ProviderClaude, "":
		client, err := NewClaudeClient(Config{
			APIKey:       cfg.Claude.APIKey,
			BaseURL:      cfg.Claude.BaseURL,
			Model:        cfg.Claude.Model,
			MaxTokens:    cfg.Claude.MaxTokens,
			Timeout:      cfg.Claude.Timeout,
			RateLimitRPM: cfg.Claude.RateLimitRPM,
			CacheTTL:     cfg.Claude.CacheTTL,
			MaxRetries:   cfg.Claude.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("creating claude client: %w", err)
		}
		base = client.WithRecorder(recorder)
	case ProviderOpenAI:
		client, err := NewOpenAIClient(OpenAIConfig{
			APIKey:    cfg.OpenAI.APIKey,
			BaseURL:   cfg.OpenAI.BaseURL,
			Model:     cfg.OpenAI.Model,
			MaxTokens: cfg.OpenAI.MaxTokens,
			Timeout:   cfg.OpenAI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		base = client.WithRecorder(recorder)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", cfg.LLM.Provider)
	}

	if cfg.LLM.BreakerMinRequests > 0 {
		breakerCfg := resilience.DefaultConfig(base.Name())
		breakerCfg.MinRequests = cfg.LLM.BreakerMinRequests
		breakerCfg.FailureRatio = cfg.LLM.BreakerFailureRatio
		breakerCfg.Cooldown = cfg.LLM.BreakerCooldown
		base = NewBreakerProvider(base, breakerCfg, logger)
	}

	if !cfg.Claude.EnableCaching {
		return base, nil
	}

	inputCost, outputCost := GetModelPricing(base.Model())
	cache := NewTailorCache(rdb, cfg.Claude.CacheTTL, 1000, logger)
	spend := NewSpendTracker(Pricing{Input: inputCost, Output: outputCost}, cfg.LLM.DailyBudget, rdb, logger)
	return NewCachedProvider(base, cache, spend, logger), nil
}
