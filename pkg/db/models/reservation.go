package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// Reservation records the exact ledger draws made for one order.
type Reservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	Status     enums.ReservationStatus `gorm:"column:status;type:reservation_status;not null;default:'active'"`
	ReleasedAt *time.Time              `gorm:"column:released_at"`
	Lines      []ReservationLine       `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// Quantity sums the units held for a variant across every location.
func (r *Reservation) Quantity(variantID uuid.UUID) int {
	if r == nil {
		return 0
	}
	total := 0
	for _, line := range r.Lines {
		if line.VariantID == variantID {
			total += line.Quantity
		}
	}
	return total
}

// TotalUnits sums every line of the reservation.
func (r *Reservation) TotalUnits() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, line := range r.Lines {
		total += line.Quantity
	}
	return total
}

// ReservationLine is a single (variant, location, quantity) draw.
type ReservationLine struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;index"`
	VariantID     uuid.UUID `gorm:"column:variant_id;type:uuid;not null;index"`
	LocationID    uuid.UUID `gorm:"column:location_id;type:uuid;not null"`
	Quantity      int       `gorm:"column:quantity;not null;check:chk_reservation_lines_quantity,quantity > 0"`
}

func (l *ReservationLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
