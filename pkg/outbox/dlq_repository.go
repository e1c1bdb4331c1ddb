package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

// DLQRepository persists dead letters. Rows are written by the publisher and pruned by the
// retention job.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx must share the transaction that pins the source event as terminal.
func (r *DLQRepository) InsertTx(tx *gorm.DB, letter models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if letter.ErrorMessage != nil {
		msg := clip(*letter.ErrorMessage, maxErrorLen)
		letter.ErrorMessage = &msg
	}
	return tx.Create(&letter).Error
}

// FindByEventID yields (nil, nil) for an event that never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var letter models.OutboxDLQ
	switch err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&letter).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &letter, nil
}

func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}
