package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryLevel is the ledger row for one (variant, location) pair.
// Provisioned accumulates every unit ever added so conservation can be audited.
type InventoryLevel struct {
	VariantID   uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	LocationID  uuid.UUID `gorm:"column:location_id;type:uuid;primaryKey"`
	Available   int       `gorm:"column:available;not null;default:0;check:chk_inventory_levels_available,available >= 0"`
	Provisioned int       `gorm:"column:provisioned;not null;default:0;check:chk_inventory_levels_provisioned,provisioned >= 0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
