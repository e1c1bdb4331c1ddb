package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
)

// Repository manages persistence for inventory levels and reservation records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	SumAvailable(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error)
	ListDrawableLevels(ctx context.Context, variantID uuid.UUID) ([]LevelRow, error)
	Decrement(ctx context.Context, variantID, locationID uuid.UUID, qty int, at time.Time) (bool, error)
	Increment(ctx context.Context, variantID, locationID uuid.UUID, qty int, at time.Time) error
	Provision(ctx context.Context, variantID, locationID uuid.UUID, qty int) (*models.InventoryLevel, error)
	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	VariantExists(ctx context.Context, id uuid.UUID) (bool, error)
	LocationExists(ctx context.Context, id uuid.UUID) (bool, error)
	LevelTotals(ctx context.Context, variantIDs []uuid.UUID) ([]LevelTotals, error)
	OutstandingByVariant(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// LevelRow is a drawable inventory level in draw order.
type LevelRow struct {
	LocationID uuid.UUID `gorm:"column:location_id"`
	Available  int       `gorm:"column:available"`
}

// LevelTotals aggregates every inventory level of a variant.
type LevelTotals struct {
	VariantID   uuid.UUID `gorm:"column:variant_id"`
	Available   int       `gorm:"column:available"`
	Provisioned int       `gorm:"column:provisioned"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) SumAvailable(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	totals := make(map[uuid.UUID]int, len(variantIDs))
	if len(variantIDs) == 0 {
		return totals, nil
	}
	var rows []struct {
		VariantID uuid.UUID `gorm:"column:variant_id"`
		Total     int       `gorm:"column:total"`
	}
	if err := r.db.WithContext(ctx).
		Table("inventory_levels").
		Select("variant_id, COALESCE(SUM(available), 0) AS total").
		Where("variant_id IN ?", variantIDs).
		Group("variant_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		totals[row.VariantID] = row.Total
	}
	return totals, nil
}

func (r *repository) ListDrawableLevels(ctx context.Context, variantID uuid.UUID) ([]LevelRow, error) {
	var rows []LevelRow
	if err := r.db.WithContext(ctx).
		Table("inventory_levels AS il").
		Select("il.location_id, il.available").
		Joins("LEFT JOIN stock_locations sl ON sl.id = il.location_id").
		Where("il.variant_id = ? AND il.available > 0", variantID).
		Order("COALESCE(sl.priority, 0) ASC, il.location_id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Decrement is the single compare-and-update a reservation draw relies on. It reports
// false when the row no longer holds qty units.
func (r *repository) Decrement(ctx context.Context, variantID, locationID uuid.UUID, qty int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_levels
		SET available = available - ?,
			updated_at = ?
		WHERE variant_id = ? AND location_id = ? AND available >= ?
	`, qty, at, variantID, locationID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Increment(ctx context.Context, variantID, locationID uuid.UUID, qty int, at time.Time) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_levels
		SET available = available + ?,
			updated_at = ?
		WHERE variant_id = ? AND location_id = ?
	`, qty, at, variantID, locationID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errMissingLevel
	}
	return nil
}

func (r *repository) Provision(ctx context.Context, variantID, locationID uuid.UUID, qty int) (*models.InventoryLevel, error) {
	level := models.InventoryLevel{
		VariantID:   variantID,
		LocationID:  locationID,
		Available:   qty,
		Provisioned: qty,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "variant_id"}, {Name: "location_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"available":   gorm.Expr("inventory_levels.available + excluded.available"),
			"provisioned": gorm.Expr("inventory_levels.provisioned + excluded.provisioned"),
			"updated_at":  gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&level).Error
	if err != nil {
		return nil, err
	}

	var stored models.InventoryLevel
	if err := r.db.WithContext(ctx).
		Where("variant_id = ? AND location_id = ?", variantID, locationID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repository) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// MarkReleased flips an active reservation to released. Only one caller can win.
func (r *repository) MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusActive).
		Updates(map[string]any{
			"status":      enums.ReservationStatusReleased,
			"released_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) VariantExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, &models.Variant{}, id)
}

func (r *repository) LocationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, &models.StockLocation{}, id)
}

func (r *repository) exists(ctx context.Context, model any, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) LevelTotals(ctx context.Context, variantIDs []uuid.UUID) ([]LevelTotals, error) {
	var rows []LevelTotals
	q := r.db.WithContext(ctx).
		Table("inventory_levels").
		Select("variant_id, COALESCE(SUM(available), 0) AS available, COALESCE(SUM(provisioned), 0) AS provisioned")
	if len(variantIDs) > 0 {
		q = q.Where("variant_id IN ?", variantIDs)
	}
	if err := q.Group("variant_id").Order("variant_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) OutstandingByVariant(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		VariantID   uuid.UUID `gorm:"column:variant_id"`
		Outstanding int       `gorm:"column:outstanding"`
	}
	q := r.db.WithContext(ctx).
		Table("reservation_lines AS rl").
		Select("rl.variant_id, COALESCE(SUM(rl.quantity), 0) AS outstanding").
		Joins("JOIN reservations r ON r.id = rl.reservation_id").
		Where("r.status = ?", enums.ReservationStatusActive)
	if len(variantIDs) > 0 {
		q = q.Where("rl.variant_id IN ?", variantIDs)
	}
	if err := q.Group("rl.variant_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.VariantID] = row.Outstanding
	}
	return out, nil
}

var errMissingLevel = errors.New("inventory level missing for reservation line")
