package llm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const spendKeyPrefix = "cvtailor:llm-spend:"

// DailySpend is one day of tailoring traffic
type DailySpend struct {
	Date         string  `json:"date"`
	Requests     int64   `json:"requests"`
	CacheHits    int64   `json:"cache_hits"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Pricing is USD per million tokens
type Pricing struct {
	Input  float64
	Output float64
}

// SpendTracker accumulates the day's LLM cost. With a redis client the
// running total survives restarts.
type SpendTracker struct {
	pricing Pricing
	budget  float64
	rdb     *redis.Client
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	today *DailySpend
}

// NewSpendTracker creates a tracker. A zero budget never blocks requests.
func NewSpendTracker(pricing Pricing, budget float64, rdb *redis.Client, logger *zap.Logger) *SpendTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpendTracker{pricing: pricing, budget: budget, rdb: rdb, logger: logger, now: time.Now}
}

// Record adds one tailoring exchange. Cached answers count as requests but
// cost nothing.
func (t *SpendTracker) Record(ctx context.Context, usage TokenUsage, cached bool) {
	t.mu.Lock()
	day := t.day(ctx)
	day.Requests++
	if cached {
		day.CacheHits++
	} else {
		day.InputTokens += int64(usage.InputTokens)
		day.OutputTokens += int64(usage.OutputTokens)
		day.Cost += float64(usage.InputTokens)/1e6*t.pricing.Input + float64(usage.OutputTokens)/1e6*t.pricing.Output
	}
	snapshot := *day
	t.mu.Unlock()

	if t.budget > 0 && !cached && snapshot.Cost >= t.budget*0.8 {
		t.logger.Warn("LLM spend approaching daily budget",
			zap.Float64("cost", snapshot.Cost),
			zap.Float64("budget", t.budget),
		)
	}

	if t.rdb == nil {
		return
	}
	data, _ := json.Marshal(snapshot)
	if err := t.rdb.Set(ctx, spendKeyPrefix+snapshot.Date, data, 48*time.Hour).Err(); err != nil {
		t.logger.Warn("Failed to persist LLM spend", zap.Error(err))
	}
}

// Today returns a copy of the running total for the current day
func (t *SpendTracker) Today(ctx context.Context) DailySpend {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.day(ctx)
}

// OverBudget reports whether today's cost has reached the budget
func (t *SpendTracker) OverBudget(ctx context.Context) bool {
	return t.budget > 0 && t.Today(ctx).Cost >= t.budget
}

// day returns the current day's total, loading it from redis when the date
// rolls over or on first use. Callers hold mu.
func (t *SpendTracker) day(ctx context.Context) *DailySpend {
	date := t.now().UTC().Format("2006-01-02")
	if t.today != nil && t.today.Date == date {
		return t.today
	}

	t.today = &DailySpend{Date: date}
	if t.rdb != nil {
		if data, err := t.rdb.Get(ctx, spendKeyPrefix+date).Bytes(); err == nil {
			var stored DailySpend
			if json.Unmarshal(data, &stored) == nil && stored.Date == date {
				t.today = &stored
			}
		}
	}
	return t.today
}
