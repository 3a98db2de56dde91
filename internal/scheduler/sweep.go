// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper fails downloads that stopped reporting progress.
type Sweeper interface {
	SweepStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

// SweepConfig configures the stale download sweep.
type SweepConfig struct {
	Enabled    bool
	Schedule   string // standard 5-field cron or a descriptor such as "@every 10m"
	StaleAfter time.Duration
	BatchSize  int // records examined per run; 0 means all
}

// SweepScheduler runs the stale download sweep on a cron schedule.
type SweepScheduler struct {
	sweeper Sweeper
	config  SweepConfig
	logger  *slog.Logger

	cron       *cron.Cron
	mu         sync.Mutex
	isRunning  bool
	isSweeping bool
	cancelFunc context.CancelFunc
}

// NewSweepScheduler creates a scheduler. Nothing runs until Start.
func NewSweepScheduler(sweeper Sweeper, config SweepConfig, logger *slog.Logger) *SweepScheduler {
	return &SweepScheduler{
		sweeper: sweeper,
		config:  config,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start schedules the sweep. It is a no-op when the sweep is disabled or already started.
// The job stops when ctx is cancelled or Stop is called.
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		s.logger.Info("stale download sweep disabled")
		return nil
	}

	schedule, err := cron.ParseStandard(s.config.Schedule)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
	}

	var runCtx context.Context
	runCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Schedule(schedule, cron.FuncJob(func() { s.runSweep(runCtx) }))
	s.cron.Start()
	s.isRunning = true

	s.logger.Info("stale download sweep scheduled",
		"schedule", s.config.Schedule,
		"stale_after", s.config.StaleAfter,
		"next_run", schedule.Next(time.Now()),
	)

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancelFunc
	s.cancelFunc = nil
	s.mu.Unlock()

	stopped := s.cron.Stop()
	cancel()
	<-stopped.Done()

	s.logger.Info("stale download sweep stopped")
}

// RunNow performs one sweep synchronously. It reports zero without sweeping
// when another sweep is already in progress.
func (s *SweepScheduler) RunNow(ctx context.Context) (int, error) {
	if !s.beginSweep() {
		return 0, nil
	}
	defer s.endSweep()
	return s.sweeper.SweepStale(ctx, s.config.StaleAfter, s.config.BatchSize)
}

// IsRunning reports whether the schedule is active.
func (s *SweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *SweepScheduler) runSweep(ctx context.Context) {
	if !s.beginSweep() {
		s.logger.Warn("previous stale download sweep still running, skipping")
		return
	}
	defer s.endSweep()

	start := time.Now()
	n, err := s.sweeper.SweepStale(ctx, s.config.StaleAfter, s.config.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("stale download sweep failed", "error", err, "failed_so_far", n)
		}
		return
	}
	s.logger.Debug("stale download sweep finished", "failed", n, "duration", time.Since(start))
}

func (s *SweepScheduler) beginSweep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSweeping {
		return false
	}
	s.isSweeping = true
	return true
}

func (s *SweepScheduler) endSweep() {
	s.mu.Lock()
	s.isSweeping = false
	s.mu.Unlock()
}
