package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/arbflow/adrecon/internal/models"
	"go.uber.org/zap"
)

// Scheduler triggers reconciliation runs on a fixed interval. The
// window always ends yesterday so that both platforms have closed their
// daily books before reconciliation reads them.
type Scheduler struct {
	service  *Service
	interval time.Duration
	window   int
	logger   *zap.Logger
}

// NewScheduler creates a scheduler around the given service. windowDays
// is the number of days each run covers.
func NewScheduler(service *Service, interval time.Duration, windowDays int, logger *zap.Logger) *Scheduler {
	if windowDays < 1 {
		windowDays = 1
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		window:   windowDays,
		logger:   logger,
	}
}

// Start runs until ctx is cancelled. The first run fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("window_days", s.window),
	)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	dateFrom, dateTo := s.Window(time.Now().UTC())
	if _, err := s.service.Run(ctx, dateFrom, dateTo); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.logger.Warn("scheduled run skipped, another run holds the lock")
			return
		}
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}

// Window returns the inclusive date range for a run triggered at now.
func (s *Scheduler) Window(now time.Time) (dateFrom, dateTo string) {
	to := now.AddDate(0, 0, -1)
	from := now.AddDate(0, 0, -s.window)
	return from.Format(models.DateFormat), to.Format(models.DateFormat)
}
