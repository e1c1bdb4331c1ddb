package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockLocation is a fulfillment source. Lower Priority values are drawn first.
type StockLocation struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	Priority  int       `gorm:"column:priority;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (l *StockLocation) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
