package policy

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

// Repository reads product policy flags.
type Repository interface {
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindVariantPolicies(ctx context.Context, variantIDs []uuid.UUID) ([]VariantPolicy, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a policy repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Select("id", "tracks_inventory", "allow_backorder").
		First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindVariantPolicies(ctx context.Context, variantIDs []uuid.UUID) ([]VariantPolicy, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	var rows []struct {
		VariantID       uuid.UUID `gorm:"column:variant_id"`
		ProductID       uuid.UUID `gorm:"column:product_id"`
		TracksInventory bool      `gorm:"column:tracks_inventory"`
		AllowBackorder  bool      `gorm:"column:allow_backorder"`
	}
	if err := r.db.WithContext(ctx).
		Table("variants AS v").
		Select("v.id AS variant_id, v.product_id, p.tracks_inventory, p.allow_backorder").
		Joins("JOIN products p ON p.id = v.product_id").
		Where("v.id IN ?", variantIDs).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]VariantPolicy, 0, len(rows))
	for _, row := range rows {
		out = append(out, VariantPolicy{
			VariantID: row.VariantID,
			ProductID: row.ProductID,
			Policy: Policy{
				TracksInventory: row.TracksInventory,
				AllowBackorder:  row.AllowBackorder,
			},
		})
	}
	return out, nil
}
