package updater

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ratehub/pkg/retrier"
)

// ErrNoEntries is returned to the retrier when a cycle produced nothing.
var ErrNoEntries = errors.New("update cycle produced no entries")

type cycleRunner interface {
	RunUpdate(ctx context.Context) (bool, error)
}

// Scheduler runs cycles periodically. A cycle that produced nothing is
// retried with backoff before waiting for the next tick.
type Scheduler struct {
	runner   cycleRunner
	interval time.Duration
	retrier  *retrier.Retrier
	logger   *zap.Logger
}

// NewScheduler creates a Scheduler. retries is the number of extra attempts
// per tick.
func NewScheduler(runner cycleRunner, interval time.Duration, retries int, logger *zap.Logger, opts ...retrier.Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxWait := interval / 2
	if maxWait <= 0 {
		maxWait = time.Second
	}

	base := []retrier.Option{
		retrier.WithMaxRetries(retries),
		retrier.WithInitialInterval(5 * time.Second),
		retrier.WithMaxInterval(maxWait),
		retrier.WithOnRetry(func(attempt int, wait time.Duration, err error) {
			logger.Info("retrying update cycle", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	}

	return &Scheduler{
		runner:   runner,
		interval: interval,
		retrier:  retrier.New(append(base, opts...)...),
		logger:   logger,
	}
}

// Run performs a cycle immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("update interval must be positive")
	}

	s.logger.Info("Starting update loop", zap.Duration("interval", s.interval))
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Context done, stopping update loop.")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		ok, err := s.runner.RunUpdate(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoEntries
		}

		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Warn("update cycle failed after retries", zap.Error(err))
	}
}
