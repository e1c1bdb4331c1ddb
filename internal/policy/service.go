package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

type resolver struct {
	repo Repository
}

// NewResolver returns a database-backed resolver.
func NewResolver(repo Repository) (Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("policy repository required")
	}
	return &resolver{repo: repo}, nil
}

func (r *resolver) Resolve(ctx context.Context, productID uuid.UUID) (Policy, error) {
	if productID == uuid.Nil {
		return Policy{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := r.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Policy{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return Policy{}, pkgerrors.Internal(err, "load product policy")
	}
	return Policy{
		TracksInventory: product.TracksInventory,
		AllowBackorder:  product.AllowBackorder,
	}, nil
}

func (r *resolver) ResolveVariant(ctx context.Context, variantID uuid.UUID) (VariantPolicy, error) {
	if variantID == uuid.Nil {
		return VariantPolicy{}, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	policies, err := r.ResolveVariants(ctx, []uuid.UUID{variantID})
	if err != nil {
		return VariantPolicy{}, err
	}
	vp, ok := policies[variantID]
	if !ok {
		return VariantPolicy{}, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	return vp, nil
}

func (r *resolver) ResolveVariants(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]VariantPolicy, error) {
	rows, err := r.repo.FindVariantPolicies(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Internal(err, "load variant policies")
	}
	out := make(map[uuid.UUID]VariantPolicy, len(rows))
	for _, row := range rows {
		out[row.VariantID] = row
	}
	return out, nil
}
