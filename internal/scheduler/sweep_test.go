package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls      atomic.Int32
	staleAfter atomic.Int64
	block      chan struct{}
	err        error
}

func (f *fakeSweeper) SweepStale(ctx context.Context, staleAfter time.Duration, _ int) (int, error) {
	f.calls.Add(1)
	f.staleAfter.Store(int64(staleAfter))
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 2, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepScheduler_DisabledDoesNotStart(t *testing.T) {
	s := NewSweepScheduler(&fakeSweeper{}, SweepConfig{Enabled: false, Schedule: "garbage"}, discardLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestSweepScheduler_InvalidSchedule(t *testing.T) {
	s := NewSweepScheduler(&fakeSweeper{}, SweepConfig{Enabled: true, Schedule: "every tuesday"}, discardLogger())

	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestSweepScheduler_RunsOnSchedule(t *testing.T) {
	f := &fakeSweeper{}
	s := NewSweepScheduler(f, SweepConfig{Enabled: true, Schedule: "@every 1s", StaleAfter: time.Hour}, discardLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return f.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, int64(time.Hour), f.staleAfter.Load())
}

func TestSweepScheduler_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweepScheduler(&fakeSweeper{}, SweepConfig{Enabled: true, Schedule: "*/15 * * * *", StaleAfter: time.Hour}, discardLogger())

	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
	s.Stop() // idempotent
}

func TestSweepScheduler_RunNow(t *testing.T) {
	f := &fakeSweeper{}
	s := NewSweepScheduler(f, SweepConfig{StaleAfter: 24 * time.Hour}, discardLogger())

	n, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(1), f.calls.Load())

	f.err = errors.New("store offline")
	_, err = s.RunNow(context.Background())
	assert.EqualError(t, err, "store offline")
}

func TestSweepScheduler_RunNowSkipsWhileSweeping(t *testing.T) {
	f := &fakeSweeper{block: make(chan struct{})}
	s := NewSweepScheduler(f, SweepConfig{StaleAfter: time.Hour}, discardLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.RunNow(context.Background())
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	n, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(1), f.calls.Load())

	close(f.block)
	wg.Wait()
}
