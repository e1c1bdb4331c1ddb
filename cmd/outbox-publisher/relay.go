package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var errNoAck = errors.New("publish returned no acknowledgement")

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicPublishers interface {
	Ping(context.Context) error
	Publisher(topic string) (*gcppubsub.Publisher, error)
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// ack is the pending server acknowledgement of one published message.
type ack interface {
	Get(context.Context) (string, error)
}

type sendFunc func(ctx context.Context, topic string, msg *gcppubsub.Message) (ack, error)

type RelayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	PubSub     topicPublishers
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   eventResolver
	Metrics    *metrics.OutboxMetrics
	// Send overrides the Pub/Sub send path in tests.
	Send sendFunc
}

// Relay moves outbox rows to Pub/Sub. Each poll claims a batch with SKIP LOCKED, sends
// every message before waiting on any acknowledgement, then settles all rows in the
// claiming transaction. Several relays can run side by side.
type Relay struct {
	logg     *logger.Logger
	db       txRunner
	pubsub   topicPublishers
	repo     outboxRepository
	dlq      dlqRepository
	registry eventResolver
	metrics  *metrics.OutboxMetrics
	send     sendFunc
	now      func() time.Time

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	var err error
	for name, missing := range map[string]bool{
		"logger":          p.Logger == nil,
		"database client": p.DB == nil,
		"pubsub client":   p.PubSub == nil,
		"outbox repo":     p.Repository == nil,
		"dlq repo":        p.DLQ == nil,
		"event registry":  p.Registry == nil,
	} {
		if missing {
			err = multierr.Append(err, fmt.Errorf("%s is required", name))
		}
	}
	if err != nil {
		return nil, err
	}

	r := &Relay{
		logg:           p.Logger,
		db:             p.DB,
		pubsub:         p.PubSub,
		repo:           p.Repository,
		dlq:            p.DLQ,
		registry:       p.Registry,
		metrics:        p.Metrics,
		send:           p.Send,
		now:            time.Now,
		batchSize:      positiveOr(p.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:    positiveOr(p.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval:   positiveOr(time.Duration(p.Outbox.PollIntervalMS)*time.Millisecond, defaultPollInterval),
		publishTimeout: positiveOr(p.Outbox.PublishTimeout, defaultPublishTimeout),
	}
	if r.send == nil {
		r.send = r.sendPubSub
	}
	return r, nil
}

func (r *Relay) sendPubSub(ctx context.Context, topic string, msg *gcppubsub.Message) (ack, error) {
	p, err := r.pubsub.Publisher(topic)
	if err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	return p.Publish(ctx, msg), nil
}

// Run polls until ctx ends. A full batch polls again at once; an empty one waits the poll
// interval; a failed one backs off exponentially up to maxIdleBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	wait := backoff{base: r.pollInterval, max: maxIdleBackoff}
	for {
		claimed, err := r.drain(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var pause time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			pause = wait.failure()
		case claimed == r.batchSize:
			wait.reset()
			continue
		default:
			pause = wait.reset()
		}
		if err := sleep(ctx, withJitter(pause)); err != nil {
			return err
		}
	}
}

// delivery tracks one claimed row from resolve to settle.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	ack      ack
	err      error
}

func (d *delivery) topic() string {
	if d.resolved == nil {
		return ""
	}
	return d.resolved.Descriptor.Topic
}

// drain handles one batch and reports how many rows it claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	start := time.Now()
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
		defer cancel()

		deliveries := make([]delivery, len(events))
		for i, event := range events {
			deliveries[i] = r.dispatch(sendCtx, event)
		}
		for i := range deliveries {
			d := &deliveries[i]
			if d.err == nil {
				_, d.err = d.ack.Get(sendCtx)
			}
		}
		for i := range deliveries {
			if err := r.settle(ctx, tx, &deliveries[i]); err != nil {
				return err
			}
		}
		return nil
	})
	r.metrics.ObserveBatch(claimed, time.Since(start))
	return claimed, err
}

// dispatch resolves a row and hands its message to Pub/Sub without waiting for the ack.
func (r *Relay) dispatch(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}
	d.resolved, d.err = r.registry.Resolve(event)
	if d.err != nil {
		if !registry.IsNonRetryable(d.err) {
			d.err = registry.NewNonRetryableError(d.err)
		}
		return d
	}
	d.ack, d.err = r.send(ctx, d.topic(), message(event, d.resolved))
	if d.err == nil && d.ack == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("%w for topic %s", errNoAck, d.topic()))
	}
	return d
}

func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
			"schema_version": fmt.Sprint(resolved.Envelope.Version),
			"content_type":   "application/json",
		},
	}
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// judge decides what happens to a row after its publish attempt.
func judge(d *delivery, maxAttempts int) (verdict, enums.OutboxDLQErrorReason, error) {
	switch {
	case d.err == nil:
		return verdictPublished, "", nil
	case registry.IsNonRetryable(d.err):
		return verdictDeadLetter, enums.OutboxDLQReasonNonRetryable, d.err
	case d.event.AttemptCount+1 >= maxAttempts:
		return verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", d.err)
	default:
		return verdictRetry, "", d.err
	}
}

// settle returns an error only when the row's state could not be written.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, d *delivery) error {
	event := d.event
	logCtx := r.logg.WithFields(ctx, deliveryFields(d))
	outcome, reason, cause := judge(d, r.maxAttempts)

	switch outcome {
	case verdictPublished:
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.Inc(string(event.EventType), metrics.OutboxPublished)
		r.logg.Info(logCtx, "outbox event published")

	case verdictRetry:
		if err := r.repo.MarkFailedTx(tx, event.ID, cause); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		r.metrics.Inc(string(event.EventType), metrics.OutboxRetried)
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox publish failed, will retry")

	case verdictDeadLetter:
		entry := event.DeadLetter(reason, cause, r.now())
		if err := r.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := r.repo.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		r.metrics.Inc(string(event.EventType), metrics.OutboxDeadLettered)
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"error":        cause.Error(),
			"error_reason": string(reason),
		}), "outbox event dead-lettered")
	}
	return nil
}

func deliveryFields(d *delivery) map[string]any {
	event := d.event
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.AggregateType == enums.AggregateOrder {
		fields["order_id"] = event.AggregateID.String()
	}
	if topic := d.topic(); topic != "" {
		fields["topic"] = topic
	}
	return fields
}

// backoff doubles the pause after each failed batch; reset returns the base interval.
type backoff struct {
	base, max, cur time.Duration
}

func (b *backoff) failure() time.Duration {
	if b.cur <= 0 {
		b.cur = b.base
	}
	b.cur = min(b.cur*2, b.max)
	return b.cur
}

func (b *backoff) reset() time.Duration {
	b.cur = 0
	return b.base
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func positiveOr[T int | time.Duration](value, fallback T) T {
	if value > 0 {
		return value
	}
	return fallback
}
