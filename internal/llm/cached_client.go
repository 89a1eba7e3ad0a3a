package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrBudgetExceeded is returned when the daily budget is spent and the
// tailoring request has no cached answer.
var ErrBudgetExceeded = errors.New("daily LLM budget exceeded")

// CachedProvider serves repeated tailoring requests from a TailorCache and
// tracks the day's spend. Other completions pass straight through.
type CachedProvider struct {
	Provider
	cache  *TailorCache
	spend  *SpendTracker
	logger *zap.Logger
}

// NewCachedProvider wraps base with the given cache and tracker
func NewCachedProvider(base Provider, cache *TailorCache, spend *SpendTracker, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{Provider: base, cache: cache, spend: spend, logger: logger}
}

// Tailor answers from cache when possible. Once the daily budget is spent
// only cached requests are answered.
func (c *CachedProvider) Tailor(ctx context.Context, jobDescription, userCV string) (string, error) {
	req := NewTailorRequest(c.Model(), jobDescription, userCV)

	if text, usage, ok := c.cache.Get(ctx, req); ok {
		c.logger.Debug("Tailor cache hit", zap.String("cv_hash", req.CVHash[:12]))
		c.spend.Record(ctx, usage, true)
		return text, nil
	}

	if c.spend.OverBudget(ctx) {
		c.logger.Warn("Daily LLM budget exceeded, serving cached answers only")
		return "", ErrBudgetExceeded
	}

	prompt := TailorPrompt(jobDescription, userCV)
	start := time.Now()
	text, err := c.Provider.Complete(ctx, tailorSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	usage := TokenUsage{
		InputTokens:  estimateTokens(tailorSystemPrompt) + estimateTokens(prompt),
		OutputTokens: estimateTokens(text),
	}
	c.cache.Set(ctx, req, text, usage)
	c.spend.Record(ctx, usage, false)

	c.logger.Debug("Tailor completed",
		zap.String("provider", c.Name()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
	)
	return text, nil
}

// Spend returns today's running total
func (c *CachedProvider) Spend(ctx context.Context) DailySpend {
	return c.spend.Today(ctx)
}

// estimateTokens assumes roughly 4 characters per token
func estimateTokens(text string) int {
	return len(text) / 4
}
