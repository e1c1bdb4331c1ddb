package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const defaultMaxAttempts = 3

// Service is the only component allowed to move stock.
type Service interface {
	GetStock(ctx context.Context, variantID uuid.UUID) (int, error)
	GetStockBatch(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error)
	Reserve(ctx context.Context, tx *gorm.DB, req ReserveRequest) (*models.Reservation, error)
	Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (bool, error)
	Provision(ctx context.Context, input ProvisionInput) (*models.InventoryLevel, error)
	Audit(ctx context.Context, variantIDs ...uuid.UUID) ([]AuditResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReserveLine asks for Quantity units of a variant. AllowShortfall lines draw what
// exists and never fail for lack of stock.
type ReserveLine struct {
	VariantID      uuid.UUID
	Quantity       int
	AllowShortfall bool
}

// ReserveRequest is reserved as a single unit: every line succeeds or none does.
type ReserveRequest struct {
	OrderID *uuid.UUID
	Lines   []ReserveLine
}

// ProvisionInput adds stock to a (variant, location) row.
type ProvisionInput struct {
	VariantID  uuid.UUID `json:"variant_id" validate:"required"`
	LocationID uuid.UUID `json:"location_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,gt=0"`
}

// AuditResult reports the conservation balance of one variant.
type AuditResult struct {
	VariantID   uuid.UUID `json:"variant_id"`
	Provisioned int       `json:"provisioned"`
	Available   int       `json:"available"`
	Outstanding int       `json:"outstanding"`
	Balanced    bool      `json:"balanced"`
}

// ShortLine describes a line that could not be satisfied.
type ShortLine struct {
	VariantID uuid.UUID `json:"variant_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// ServiceParams wires the ledger.
type ServiceParams struct {
	Repository  Repository
	DB          txRunner
	Metrics     *metrics.InventoryMetrics
	MaxAttempts int
	Now         func() time.Time
}

type service struct {
	repo        Repository
	db          txRunner
	metrics     *metrics.InventoryMetrics
	maxAttempts int
	now         func() time.Time
}

// NewService builds the stock ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repository,
		db:          params.DB,
		metrics:     params.Metrics,
		maxAttempts: maxAttempts,
		now:         now,
	}, nil
}

func (s *service) GetStock(ctx context.Context, variantID uuid.UUID) (int, error) {
	totals, err := s.GetStockBatch(ctx, []uuid.UUID{variantID})
	if err != nil {
		return 0, err
	}
	return totals[variantID], nil
}

func (s *service) GetStockBatch(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	ids := dedupe(variantIDs)
	totals, err := s.repo.SumAvailable(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Internal(err, "load stock")
	}
	for _, id := range ids {
		if _, ok := totals[id]; !ok {
			totals[id] = 0
		}
	}
	return totals, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, req ReserveRequest) (*models.Reservation, error) {
	lines, err := mergeLines(req.Lines)
	if err != nil {
		return nil, err
	}

	started := s.now()
	var reservation *models.Reservation
	err = s.atomically(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var (
			splits []models.ReservationLine
			short  []ShortLine
		)
		for _, line := range lines {
			drawn, remaining, err := s.draw(ctx, repo, line)
			if err != nil {
				return err
			}
			splits = append(splits, drawn...)
			if remaining > 0 && !line.AllowShortfall {
				short = append(short, ShortLine{
					VariantID: line.VariantID,
					Requested: line.Quantity,
					Available: line.Quantity - remaining,
				})
			}
		}
		if len(short) > 0 {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").WithDetails(short)
		}

		reservation = &models.Reservation{
			OrderID: req.OrderID,
			Status:  enums.ReservationStatusActive,
			Lines:   splits,
		}
		if err := repo.CreateReservation(ctx, reservation); err != nil {
			return pkgerrors.Internal(err, "store reservation")
		}
		return nil
	})
	took := s.now().Sub(started)
	switch {
	case err == nil:
		s.metrics.ObserveReserve(metrics.ReserveSuccess, reservation.TotalUnits(), took)
		return reservation, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock):
		s.metrics.ObserveReserve(metrics.ReserveOutOfStock, 0, took)
		return nil, err
	default:
		s.metrics.ObserveReserve(metrics.ReserveError, 0, took)
		return nil, pkgerrors.Internal(err, "reserve stock")
	}
}

// draw takes up to line.Quantity units from the variant's locations in priority order.
// A lost compare-and-update re-reads the levels, bounded by maxAttempts passes.
func (s *service) draw(ctx context.Context, repo Repository, line ReserveLine) ([]models.ReservationLine, int, error) {
	remaining := line.Quantity
	taken := map[uuid.UUID]int{}
	var order []uuid.UUID

	for attempt := 0; attempt < s.maxAttempts && remaining > 0; attempt++ {
		levels, err := repo.ListDrawableLevels(ctx, line.VariantID)
		if err != nil {
			return nil, 0, pkgerrors.Internal(err, "load inventory levels")
		}
		if len(levels) == 0 {
			break
		}
		contended := false
		for _, level := range levels {
			if remaining == 0 {
				break
			}
			n := min(remaining, level.Available)
			ok, err := repo.Decrement(ctx, line.VariantID, level.LocationID, n, s.now())
			if err != nil {
				return nil, 0, pkgerrors.Internal(err, "decrement inventory level")
			}
			if !ok {
				contended = true
				continue
			}
			if _, seen := taken[level.LocationID]; !seen {
				order = append(order, level.LocationID)
			}
			taken[level.LocationID] += n
			remaining -= n
		}
		if !contended {
			break
		}
	}

	splits := make([]models.ReservationLine, 0, len(order))
	for _, locationID := range order {
		splits = append(splits, models.ReservationLine{
			VariantID:  line.VariantID,
			LocationID: locationID,
			Quantity:   taken[locationID],
		})
	}
	return splits, remaining, nil
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (bool, error) {
	if reservationID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	var (
		released bool
		units    int
	)
	err := s.atomically(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()
		ok, err := repo.MarkReleased(ctx, reservationID, now)
		if err != nil {
			return pkgerrors.Internal(err, "mark reservation released")
		}
		reservation, err := repo.FindReservation(ctx, reservationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
			}
			return pkgerrors.Internal(err, "load reservation")
		}
		if !ok {
			return nil
		}
		for _, line := range reservation.Lines {
			if err := repo.Increment(ctx, line.VariantID, line.LocationID, line.Quantity, now); err != nil {
				return pkgerrors.Internal(err, "credit inventory level")
			}
			units += line.Quantity
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	s.metrics.ObserveRelease(released, units)
	return released, nil
}

func (s *service) Provision(ctx context.Context, input ProvisionInput) (*models.InventoryLevel, error) {
	if input.VariantID == uuid.Nil || input.LocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant_id and location_id are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var level *models.InventoryLevel
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.VariantExists(ctx, input.VariantID)
		if err != nil {
			return pkgerrors.Internal(err, "load variant")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		ok, err = repo.LocationExists(ctx, input.LocationID)
		if err != nil {
			return pkgerrors.Internal(err, "load stock location")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "stock location not found")
		}
		level, err = repo.Provision(ctx, input.VariantID, input.LocationID, input.Quantity)
		if err != nil {
			return pkgerrors.Internal(err, "provision inventory")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return level, nil
}

func (s *service) Audit(ctx context.Context, variantIDs ...uuid.UUID) ([]AuditResult, error) {
	ids := dedupe(variantIDs)
	totals, err := s.repo.LevelTotals(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Internal(err, "load level totals")
	}
	outstanding, err := s.repo.OutstandingByVariant(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Internal(err, "load outstanding reservations")
	}

	results := make([]AuditResult, 0, len(totals))
	seen := make(map[uuid.UUID]bool, len(totals))
	for _, t := range totals {
		seen[t.VariantID] = true
		out := outstanding[t.VariantID]
		results = append(results, AuditResult{
			VariantID:   t.VariantID,
			Provisioned: t.Provisioned,
			Available:   t.Available,
			Outstanding: out,
			Balanced:    t.Available+out == t.Provisioned,
		})
	}
	// reservation lines without any inventory level can never balance
	for variantID, out := range outstanding {
		if seen[variantID] {
			continue
		}
		results = append(results, AuditResult{
			VariantID:   variantID,
			Outstanding: out,
			Balanced:    out == 0,
		})
	}
	return results, nil
}

// atomically runs fn in its own transaction, or in a savepoint when the caller
// already holds one, so a failed call never leaves partial decrements behind.
func (s *service) atomically(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx == nil {
		return s.db.WithTx(ctx, fn)
	}
	return tx.WithContext(ctx).Transaction(fn)
}

// MaxLineQuantity caps the units one variant may draw in a single reservation, after lines
// of the same variant are merged.
const MaxLineQuantity = 100_000

func mergeLines(lines []ReserveLine) ([]ReserveLine, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]ReserveLine, 0, len(lines))
	for _, line := range lines {
		if line.VariantID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if line.Quantity > MaxLineQuantity {
			return nil, quantityTooLarge(line.VariantID)
		}
		if i, ok := index[line.VariantID]; ok {
			if merged[i].Quantity > MaxLineQuantity-line.Quantity {
				return nil, quantityTooLarge(line.VariantID)
			}
			merged[i].Quantity += line.Quantity
			merged[i].AllowShortfall = merged[i].AllowShortfall || line.AllowShortfall
			continue
		}
		index[line.VariantID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func quantityTooLarge(variantID uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, "quantity for variant %s exceeds %d", variantID, MaxLineQuantity)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
