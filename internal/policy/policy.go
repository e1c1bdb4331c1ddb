// Package policy resolves the per-product stock rules that decide whether the ledger is consulted.
package policy

import (
	"context"

	"github.com/google/uuid"
)

// Policy is the stock behaviour of a product.
type Policy struct {
	TracksInventory bool `json:"tracks_inventory"`
	AllowBackorder  bool `json:"allow_backorder"`
}

// BypassesLedger reports whether stock is never consulted for the product.
func (p Policy) BypassesLedger() bool {
	return !p.TracksInventory
}

// VariantPolicy pairs a variant with its owning product's policy.
type VariantPolicy struct {
	VariantID uuid.UUID `json:"variant_id"`
	ProductID uuid.UUID `json:"product_id"`
	Policy    Policy    `json:"policy"`
}

// Resolver looks up stock policies. Implementations never mutate state.
type Resolver interface {
	Resolve(ctx context.Context, productID uuid.UUID) (Policy, error)
	ResolveVariant(ctx context.Context, variantID uuid.UUID) (VariantPolicy, error)
	// ResolveVariants returns the policies of every known variant. Unknown ids are absent.
	ResolveVariants(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]VariantPolicy, error)
}
