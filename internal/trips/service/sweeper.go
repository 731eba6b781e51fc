package service

import (
	"context"
	"time"

	"tripsync/internal/trips/repository"
	"tripsync/pkg/logger"
	"tripsync/pkg/metrics"
)

// LockSweeper periodically deletes expired locks. Acquire still purges
// lazily; the sweeper only keeps the lock table small between acquisitions.
type LockSweeper struct {
	repo     repository.LockRepository
	interval time.Duration
	log      *logger.Logger
}

func NewLockSweeper(repo repository.LockRepository, interval time.Duration, log *logger.Logger) *LockSweeper {
	return &LockSweeper{
		repo:     repo,
		interval: interval,
		log:      log,
	}
}

// Run sweeps on every tick until ctx is done. A non-positive interval
// disables the sweeper.
func (s *LockSweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("Lock sweeper disabled")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Lock sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Lock sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *LockSweeper) SweepOnce(ctx context.Context) int64 {
	purged, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		s.log.Warn("Lock sweep failed", "error", err)
		return 0
	}
	if purged > 0 {
		metrics.LocksSwept.Add(float64(purged))
		s.log.Debug("Swept expired locks", "count", purged)
	}
	return purged
}
