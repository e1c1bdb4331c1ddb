package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product carries the stock policy flags consulted before the ledger.
type Product struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title           string    `gorm:"column:title;not null"`
	TracksInventory bool      `gorm:"column:tracks_inventory;not null;default:true"`
	AllowBackorder  bool      `gorm:"column:allow_backorder;not null;default:false"`
	Variants        []Variant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
