package scheduler

import (
	"context"
	"log/slog"
	"time"

	"tubesync/internal/domain"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncReport, error)
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(syncer Syncer, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.syncer.Sync(syncCtx); err != nil {
		s.logger.Error("sync failed", "error", err)
	}
}
