package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper expires overdue transactions on a fixed interval so they do not
// stay pending until someone reads them.
type Sweeper struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

func NewSweeper(reconciler *Reconciler, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
	}
}

// Run blocks until ctx is done. A zero interval disables sweeping.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("expiry sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.reconciler.ExpireDue(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired overdue transactions", "count", n)
	}
}
