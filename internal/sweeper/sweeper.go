package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pruner removes ledger entries that expired longer ago than the retention
// window. *carebook.Engine satisfies it.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Sweeper runs Prune on a cron schedule. Runs never overlap.
type Sweeper struct {
	pruner  Pruner
	logger  *zap.Logger
	timeout time.Duration
	cron    *cron.Cron

	mu      sync.Mutex
	lastRun time.Time
	removed int64
}

// New schedules pruner on schedule, a standard five-field cron expression or a
// descriptor such as "@every 10m".
func New(pruner Pruner, schedule string, timeout time.Duration, logger *zap.Logger) (*Sweeper, error) {
	if pruner == nil {
		return nil, errors.New("sweeper: pruner required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Sweeper{
		pruner:  pruner,
		logger:  logger.Named("sweeper"),
		timeout: timeout,
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("expiry sweeper started")
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep. The cron schedule calls it; tests and the
// server's startup path may call it directly.
func (s *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Warn("sweep failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.lastRun = start
	s.removed += n
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info("sweep finished", zap.Int64("removed", n), zap.Duration("took", time.Since(start)))
	}
}

// Stats returns the time of the last successful sweep and the total entries
// removed since start.
func (s *Sweeper) Stats() (time.Time, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.removed
}
