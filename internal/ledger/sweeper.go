package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically reconciles pending records left behind by
// interrupted uploads.
type Sweeper struct {
	ledger        *Ledger
	logger        *zap.Logger
	interval      time.Duration
	pendingMaxAge time.Duration
	done          chan struct{}
}

// NewSweeper constructs the reconciliation sweeper.
func NewSweeper(l *Ledger, logger *zap.Logger, interval, pendingMaxAge time.Duration) *Sweeper {
	return &Sweeper{
		ledger:        l,
		logger:        logger,
		interval:      interval,
		pendingMaxAge: pendingMaxAge,
		done:          make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(ctx)
		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the sweep loop has stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.ledger.ReconcileOrphans(ctx, s.pendingMaxAge)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("ledger sweep failed", zap.Error(err))
		}
		return
	}
	if removed > 0 {
		s.logger.Info("ledger sweep removed stale pending records", zap.Int64("count", removed))
	}
}
