// Package resilience guards calls to upstream services that fail in streaks,
// such as the LLM providers behind CV tailoring.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a Breaker
type State int32

const (
	// StateClosed lets every call through
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned without calling the upstream while the breaker is open
	ErrOpen = errors.New("circuit breaker is open")

	// ErrProbeLimit is returned in half-open state once all probes are in flight
	ErrProbeLimit = errors.New("circuit breaker probe limit reached")
)

// Config tunes a Breaker
type Config struct {
	// Name identifies the guarded upstream in logs
	Name string

	// MinRequests is the number of calls in a window before the breaker may trip
	MinRequests uint32

	// FailureRatio trips the breaker once failures/requests reaches it
	FailureRatio float64

	// Window resets the closed-state counts. Zero keeps counting forever.
	Window time.Duration

	// Cooldown is how long the breaker stays open before probing
	Cooldown time.Duration

	// Probes is both the half-open concurrency limit and the number of
	// consecutive successes needed to close again
	Probes uint32

	// OnStateChange observes every transition
	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count against the upstream. Errors
	// it rejects leave the counts untouched.
	IsFailure func(err error) bool
}

// DefaultConfig suits slow remote APIs called a few times a minute
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MinRequests:  5,
		FailureRatio: 0.6,
		Window:       time.Minute,
		Cooldown:     30 * time.Second,
		Probes:       1,
		IsFailure:    UpstreamFailure,
	}
}

// UpstreamFailure counts every error except caller cancellation
func UpstreamFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Counts are the calls seen in the current generation
type Counts struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.Successes++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.Failures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker is a three-state circuit breaker safe for concurrent use
type Breaker struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
	probes     uint32
}

// New creates a closed Breaker, filling unset fields from DefaultConfig
func New(cfg Config) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Probes == 0 {
		cfg.Probes = def.Probes
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = def.IsFailure
	}

	b := &Breaker{cfg: cfg, now: time.Now}
	b.nextGeneration(b.now())
	return b
}

// Name returns the configured name
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// State returns the current state, moving open to half-open once the
// cooldown has elapsed
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.current(b.now())
	return state
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn unless the breaker rejects the call
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	generation, err := b.before()
	if err != nil {
		return err
	}

	err = fn(ctx)
	b.after(generation, err)
	return err
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, generation := b.current(b.now())
	switch state {
	case StateOpen:
		return generation, ErrOpen
	case StateHalfOpen:
		if b.probes >= b.cfg.Probes {
			return generation, ErrProbeLimit
		}
		b.probes++
	}
	b.counts.Requests++
	return generation, nil
}

func (b *Breaker) after(before uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	state, generation := b.current(now)
	if generation != before {
		return
	}

	if err != nil && !b.cfg.IsFailure(err) {
		b.counts.Requests--
		if state == StateHalfOpen {
			b.probes--
		}
		return
	}

	if err == nil {
		b.counts.success()
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.Probes {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.failure()
	switch state {
	case StateClosed:
		if b.tripped() {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

func (b *Breaker) tripped() bool {
	if b.counts.Requests < b.cfg.MinRequests {
		return false
	}
	return float64(b.counts.Failures)/float64(b.counts.Requests) >= b.cfg.FailureRatio
}

func (b *Breaker) current(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.nextGeneration(now)
		}
	case StateOpen:
		if !b.expiry.After(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.nextGeneration(now)

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

func (b *Breaker) nextGeneration(now time.Time) {
	b.generation++
	b.counts = Counts{}
	b.probes = 0

	switch b.state {
	case StateClosed:
		if b.cfg.Window > 0 {
			b.expiry = now.Add(b.cfg.Window)
		} else {
			b.expiry = time.Time{}
		}
	case StateOpen:
		b.expiry = now.Add(b.cfg.Cooldown)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}
}
