package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	defaultEventRetention      = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
	defaultExhaustedAttempts   = 10
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure pruning of relayed notification events and their dead
// letters. Zero durations fall back to 30 and 90 days.
type OutboxRetentionJobParams struct {
	Logger              *logger.Logger
	DB                  txRunner
	Events              outboxPruner
	DeadLetters         deadLetterPruner
	EventRetention      time.Duration
	DeadLetterRetention time.Duration
	ExhaustedAttempts   int
}

type outboxRetentionJob struct {
	logg              *logger.Logger
	db                txRunner
	events            outboxPruner
	deadLetters       deadLetterPruner
	eventRetention    time.Duration
	dlqRetention      time.Duration
	exhaustedAttempts int
	now               func() time.Time
}

// NewOutboxRetentionJob builds the job that keeps the outbox tables bounded. Dead letters
// are optional; without a pruner only outbox_events is trimmed.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Events == nil:
		return nil, errors.New("outbox repository required")
	}

	job := &outboxRetentionJob{
		logg:              params.Logger,
		db:                params.DB,
		events:            params.Events,
		deadLetters:       params.DeadLetters,
		eventRetention:    params.EventRetention,
		dlqRetention:      params.DeadLetterRetention,
		exhaustedAttempts: params.ExhaustedAttempts,
		now:               time.Now,
	}
	if job.eventRetention <= 0 {
		job.eventRetention = defaultEventRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDeadLetterRetention
	}
	if job.exhaustedAttempts <= 0 {
		job.exhaustedAttempts = defaultExhaustedAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes each table in its own transaction so a failing dead-letter sweep does not
// roll back the event sweep. Both failures are reported.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.Add(-j.eventRetention)
	fields := map[string]any{"event_cutoff": eventCutoff}

	var errs error
	var events int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		events, err = j.events.DeletePublishedBefore(ctx, tx, eventCutoff, j.exhaustedAttempts)
		return err
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune outbox events: %w", err))
	}
	fields["events_deleted"] = events

	if j.deadLetters != nil {
		dlqCutoff := now.Add(-j.dlqRetention)
		var deadLetters int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			deadLetters, err = j.deadLetters.DeleteFailedBefore(ctx, tx, dlqCutoff)
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune dead letters: %w", err))
		}
		fields["dlq_cutoff"] = dlqCutoff
		fields["dead_letters_deleted"] = deadLetters
	}

	logCtx := j.logg.WithFields(ctx, fields)
	if errs != nil {
		j.logg.Error(logCtx, "outbox retention failed", errs)
		return errs
	}
	j.logg.Info(logCtx, "outbox retention complete")
	return nil
}
