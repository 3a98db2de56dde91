package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/booksyapp/booksy-server/internal/config"
	"github.com/booksyapp/booksy-server/internal/logger"
	"github.com/booksyapp/booksy-server/internal/scheduler"
	"github.com/booksyapp/booksy-server/internal/service"
)

// SweepSchedulerHandle wraps the stale download sweep with shutdown capability.
type SweepSchedulerHandle struct {
	*scheduler.SweepScheduler
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SweepSchedulerHandle) Shutdown() error {
	h.cancel()
	h.Stop()
	return nil
}

// ProvideSweepScheduler provides and starts the stale download sweep.
func ProvideSweepScheduler(i do.Injector) (*SweepSchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	downloads := do.MustInvoke[*service.DownloadService](i)

	sweeper := scheduler.NewSweepScheduler(downloads, scheduler.SweepConfig{
		Enabled:    cfg.Sweep.Enabled,
		Schedule:   cfg.Sweep.Schedule,
		StaleAfter: cfg.Sweep.StaleAfter,
		BatchSize:  cfg.Sweep.BatchSize,
	}, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	if err := sweeper.Start(ctx); err != nil {
		cancel()
		return nil, err
	}

	return &SweepSchedulerHandle{SweepScheduler: sweeper, cancel: cancel}, nil
}
