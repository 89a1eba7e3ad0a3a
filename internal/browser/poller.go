package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ScanFunc runs one scan of a page
type ScanFunc func(ctx context.Context) error

// Poller re-runs a scan on a fixed interval. Scans never overlap: a trigger
// that arrives while a scan is in flight is dropped.
type Poller struct {
	interval time.Duration
	scan     ScanFunc
	logger   *zap.Logger

	busy    atomic.Bool
	skipped atomic.Int64
	wg      sync.WaitGroup
}

// NewPoller creates a poller
func NewPoller(interval time.Duration, scan ScanFunc, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		interval: interval,
		scan:     scan,
		logger:   logger,
	}
}

// Trigger runs a scan unless one is already running. It reports whether a
// scan ran.
func (p *Poller) Trigger(ctx context.Context) bool {
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return false
	}
	defer p.busy.Store(false)

	if err := p.scan(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("scan failed", zap.Error(err))
	}
	return true
}

// Run scans immediately and then on every tick until ctx is done. It waits
// for the scan in flight before returning.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.wg.Wait()

	p.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.spawn(ctx)
		}
	}
}

// Skipped returns how many triggers were dropped because a scan was running
func (p *Poller) Skipped() int64 {
	return p.skipped.Load()
}

func (p *Poller) spawn(ctx context.Context) {
	if p.busy.Load() {
		p.skipped.Add(1)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Trigger(ctx)
	}()
}
