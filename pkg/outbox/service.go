package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/logger"
)

var errTxRequired = errors.New("transaction required")

// Service queues domain events on the caller's transaction: the row commits or rolls back
// with the state change that produced it.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	row, err := event.row(s.now().UTC())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	s.queued(ctx, row)
	return nil
}

// EmitIfNotExists is Emit guarded by an existence check on (event type, aggregate). A
// retried notification therefore queues at most one mail per order.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	switch {
	case err != nil:
		return err
	case exists:
		if s.logg != nil {
			s.logg.Debug(s.logg.WithField(ctx, "event_type", string(event.EventType)), "outbox event already queued")
		}
		return nil
	}
	return s.Emit(ctx, tx, event)
}

func (s *Service) queued(ctx context.Context, row models.OutboxEvent) {
	if s.logg == nil {
		return
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":       row.ID.String(),
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
	}), "outbox event queued")
}
