// Package availability answers read-only stock questions by combining product policy with the ledger.
// Its answers are advisory; the ledger's reserve is the authoritative check.
package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"

	"github.com/angelmondragon/storefront/internal/ledger"
	"github.com/angelmondragon/storefront/internal/policy"
)

// SentinelAvailable is the display quantity reported for untracked products.
// It is never used in arithmetic.
const SentinelAvailable = 999999

type stockReader interface {
	GetStock(ctx context.Context, variantID uuid.UUID) (int, error)
	GetStockBatch(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// Result is the availability of a variant for a requested quantity.
type Result struct {
	Available   int  `json:"available"`
	IsAvailable bool `json:"is_available"`
}

// CartItem is a line of a cart under validation. Lines without a variant are skipped.
type CartItem struct {
	ID        string     `json:"id" validate:"required,notblank"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"gt=0,lte=100000"`
}

// ItemError reports a cart line that cannot be fulfilled.
type ItemError struct {
	ItemID    string `json:"item_id"`
	Message   string `json:"message"`
	Available int    `json:"available"`
}

// CartValidation is the outcome of ValidateCart.
type CartValidation struct {
	IsValid bool        `json:"is_valid"`
	Errors  []ItemError `json:"errors"`
}

// Service exposes the availability read path.
type Service interface {
	CheckVariant(ctx context.Context, variantID uuid.UUID, quantity int) (Result, error)
	ValidateCart(ctx context.Context, items []CartItem) (CartValidation, error)
}

type service struct {
	policies policy.Resolver
	stock    stockReader
}

// NewService builds the availability checker.
func NewService(policies policy.Resolver, stock stockReader) (Service, error) {
	if policies == nil {
		return nil, fmt.Errorf("policy resolver required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock reader required")
	}
	return &service{policies: policies, stock: stock}, nil
}

func (s *service) CheckVariant(ctx context.Context, variantID uuid.UUID, quantity int) (Result, error) {
	if quantity <= 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	vp, err := s.policies.ResolveVariant(ctx, variantID)
	if err != nil {
		return Result{}, err
	}
	if vp.Policy.BypassesLedger() {
		return Result{Available: SentinelAvailable, IsAvailable: true}, nil
	}
	stock, err := s.stock.GetStock(ctx, variantID)
	if err != nil {
		return Result{}, err
	}
	return evaluate(vp.Policy, stock, quantity), nil
}

func (s *service) ValidateCart(ctx context.Context, items []CartItem) (CartValidation, error) {
	result := CartValidation{IsValid: true, Errors: []ItemError{}}

	// quantities are summed per variant so two lines of the same variant are judged together
	requested := map[uuid.UUID]int{}
	var ids []uuid.UUID
	for _, item := range items {
		if item.VariantID == nil || *item.VariantID == uuid.Nil {
			continue
		}
		if item.Quantity <= 0 {
			return CartValidation{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"item_id": item.ID})
		}
		if item.Quantity > ledger.MaxLineQuantity-requested[*item.VariantID] {
			return CartValidation{}, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity exceeds %d", ledger.MaxLineQuantity).
				WithDetails(map[string]any{"item_id": item.ID})
		}
		if _, ok := requested[*item.VariantID]; !ok {
			ids = append(ids, *item.VariantID)
		}
		requested[*item.VariantID] += item.Quantity
	}
	if len(ids) == 0 {
		return result, nil
	}

	policies, err := s.policies.ResolveVariants(ctx, ids)
	if err != nil {
		return CartValidation{}, err
	}
	stock, err := s.stock.GetStockBatch(ctx, ids)
	if err != nil {
		return CartValidation{}, err
	}

	for _, item := range items {
		if item.VariantID == nil || *item.VariantID == uuid.Nil {
			continue
		}
		vp, ok := policies[*item.VariantID]
		if !ok {
			result.Errors = append(result.Errors, ItemError{
				ItemID:  item.ID,
				Message: "variant not found",
			})
			continue
		}
		if vp.Policy.BypassesLedger() {
			continue
		}
		available := stock[*item.VariantID]
		if evaluate(vp.Policy, available, requested[*item.VariantID]).IsAvailable {
			continue
		}
		result.Errors = append(result.Errors, ItemError{
			ItemID:    item.ID,
			Message:   fmt.Sprintf("only %d available", available),
			Available: available,
		})
	}
	result.IsValid = len(result.Errors) == 0
	return result, nil
}

func evaluate(p policy.Policy, stock, quantity int) Result {
	if p.AllowBackorder {
		return Result{Available: stock, IsAvailable: true}
	}
	return Result{Available: stock, IsAvailable: stock >= quantity}
}
