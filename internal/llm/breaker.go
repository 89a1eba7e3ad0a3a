package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/resilience"
)

// BreakerProvider stops calling a provider that keeps failing and answers
// with SERVICE_UNAVAILABLE until a probe succeeds again
type BreakerProvider struct {
	Provider
	breaker *resilience.Breaker
}

// NewBreakerProvider wraps base. OnStateChange in cfg is replaced with a
// logger hook.
func NewBreakerProvider(base Provider, cfg resilience.Config, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = base.Name()
	}
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("LLM circuit breaker state changed",
			zap.String("provider", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &BreakerProvider{Provider: base, breaker: resilience.New(cfg)}
}

// Complete forwards to the wrapped provider when the breaker allows it
func (p *BreakerProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var text string
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = p.Provider.Complete(ctx, systemPrompt, userPrompt)
		return err
	})
	if errors.Is(err, resilience.ErrOpen) || errors.Is(err, resilience.ErrProbeLimit) {
		return "", domain.ErrServiceUnavailable(p.Name()).WithCause(err)
	}
	return text, err
}

// State reports the breaker state
func (p *BreakerProvider) State() resilience.State {
	return p.breaker.State()
}
