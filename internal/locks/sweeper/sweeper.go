package sweeper

import (
	"context"
	"time"

	"opsline/internal/locks/service"
	"opsline/pkg/logger"
)

// Sweeper periodically deletes expired lock records. Reads already treat
// expired records as absent, so the interval only bounds storage growth and
// how late a crash-orphaned lock is announced as unlocked.
type Sweeper struct {
	service  service.LockService
	interval time.Duration
	log      *logger.Logger
}

func New(svc service.LockService, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		service:  svc,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("Lock sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Lock sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimed, err := s.service.Sweep(sweepCtx)
	if err != nil {
		s.log.Error("Lock sweep failed", "error", err)
		return
	}
	if reclaimed > 0 {
		s.log.Info("Reclaimed expired locks", "count", reclaimed)
	}
}
