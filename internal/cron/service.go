package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/metrics"
)

const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.SweepMetrics
	Interval time.Duration
	Clock    func() time.Time
}

// Service runs every registered sweep once per interval while holding the
// cluster-wide lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.SweepMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{byName: map[string]Job{}}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      now,
	}, nil
}

// Run loops until ctx is canceled. A failed cycle is logged and the next tick
// tries again.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "sweep cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunJob executes one named sweep under the lock, outside the schedule.
func (s *Service) RunJob(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("cron job %q not registered", name)
	}
	return s.withLock(ctx, func(ctx context.Context) error {
		return s.runJob(ctx, job)
	})
}

func (s *Service) runCycle(ctx context.Context) error {
	return s.withLock(ctx, func(ctx context.Context) error {
		jobs := s.registry.Jobs()
		for i, job := range jobs {
			if i > 0 {
				if err := s.refresh(ctx); err != nil {
					for _, skipped := range jobs[i:] {
						s.metrics.ObserveSweep(skipped.Name(), metrics.SweepAborted, 0, s.now())
					}
					return err
				}
			}
			// one job's failure never stops the others
			_ = s.runJob(ctx, job)
		}
		return nil
	})
}

func (s *Service) withLock(ctx context.Context, fn func(context.Context) error) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance holds the lock; skipping")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()
	return fn(ctx)
}

func (s *Service) refresh(ctx context.Context) error {
	held, err := s.lock.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("lock refresh: %w", err)
	}
	if !held {
		return ErrLockLost
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	start := s.now()
	err := job.Run(jobCtx)
	finished := s.now()
	elapsed := finished.Sub(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		outcome := metrics.SweepFailed
		if errors.Is(err, context.Canceled) {
			outcome = metrics.SweepAborted
		}
		s.metrics.ObserveSweep(job.Name(), outcome, elapsed, finished)
		s.logg.Error(jobCtx, "sweep failed", err)
		return err
	}
	s.metrics.ObserveSweep(job.Name(), metrics.SweepSucceeded, elapsed, finished)
	s.logg.Info(jobCtx, "sweep completed")
	return nil
}
