package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const (
	defaultInterval   = 24 * time.Hour
	defaultJobTimeout = 5 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service drives the registered jobs. Every instance ticks; only the lock holder works.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	var missing error
	if params.Logger == nil {
		missing = multierr.Append(missing, errors.New("logger required"))
	}
	if params.Lock == nil {
		missing = multierr.Append(missing, errors.New("lock required"))
	}
	if missing != nil {
		return nil, missing
	}

	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   orDefault(params.Interval, defaultInterval),
		jobTimeout: orDefault(params.JobTimeout, defaultJobTimeout),
	}, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Run starts with a cycle and repeats it every interval until ctx ends. Cycle failures are
// logged, never fatal.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		}
	}
}

// RunOnce takes the lock and runs every job in registration order, re-extending the lock
// between jobs. Job failures are collected; a lost lock ends the cycle early because the
// new holder will run the rest.
func (s *Service) RunOnce(ctx context.Context) error {
	jobs := s.registry.Jobs()

	locked, err := s.lock.Acquire(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("lock acquire: %w", err)
	case !locked:
		for _, job := range jobs {
			s.metrics.IncSkipped(job.Name())
		}
		s.logg.Info(ctx, "cron lock held by another instance; skipping cycle")
		return nil
	}
	defer s.release(ctx)

	start := time.Now()
	var failures error
	for i, job := range jobs {
		if i > 0 {
			if err := s.keepLock(ctx); err != nil {
				return multierr.Append(failures, fmt.Errorf("before %s: %w", job.Name(), err))
			}
		}
		if err := s.runJob(ctx, job); err != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        len(jobs),
		"failed":      len(multierr.Errors(failures)),
		"duration_ms": time.Since(start).Milliseconds(),
	}), "cron cycle finished")
	return failures
}

func (s *Service) keepLock(ctx context.Context) error {
	held, err := s.lock.Extend(ctx)
	if err != nil {
		return err
	}
	if !held {
		return errLockLost
	}
	return nil
}

func (s *Service) release(ctx context.Context) {
	if err := s.lock.Release(ctx); err != nil {
		s.logg.Error(ctx, "release cron lock", err)
	}
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(jobCtx)
	took := time.Since(start)
	s.metrics.ObserveRun(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return err
	}
	s.logg.Info(ctx, "cron job completed")
	return nil
}
