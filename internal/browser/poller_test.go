package browser

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPoller_TriggerDropsOverlappingScans(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	p := NewPoller(time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}, zap.NewNop())

	done := make(chan bool)
	go func() { done <- p.Trigger(context.Background()) }()
	<-started

	assert.False(t, p.Trigger(context.Background()), "second trigger must be dropped")
	assert.Equal(t, int64(1), p.Skipped())

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), runs.Load())
}

func TestPoller_TriggerAfterCompletion(t *testing.T) {
	var runs atomic.Int32
	p := NewPoller(time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("page gone")
	}, zap.NewNop())

	assert.True(t, p.Trigger(context.Background()))
	assert.True(t, p.Trigger(context.Background()))
	assert.Equal(t, int32(2), runs.Load())
	assert.Zero(t, p.Skipped())
}

func TestPoller_RunScansUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	p := NewPoller(10*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			cancel()
		}
		return nil
	}, zap.NewNop())

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestPoller_RunSkipsTicksWhileBusy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	p := NewPoller(5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-ctx.Done():
		case <-time.After(60 * time.Millisecond):
		}
		return nil
	}, zap.NewNop())

	go func() {
		time.Sleep(40 * time.Millisecond)
		cancel()
	}()
	_ = p.Run(ctx)

	assert.Equal(t, int32(1), runs.Load())
	assert.Positive(t, p.Skipped())
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 3, toInt(3))
	assert.Equal(t, 3, toInt(int64(3)))
	assert.Equal(t, 3, toInt(float64(3)))
	assert.Equal(t, 0, toInt(nil))
	assert.Equal(t, 0, toInt("3"))
}
