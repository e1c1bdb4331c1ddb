package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/internal/ledger"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

type stockAuditor interface {
	Audit(ctx context.Context, variantIDs ...uuid.UUID) ([]ledger.AuditResult, error)
}

// InventoryAuditJobParams configure the conservation audit.
type InventoryAuditJobParams struct {
	Logger  *logger.Logger
	Ledger  stockAuditor
	Metrics *metrics.InventoryMetrics
}

// NewInventoryAuditJob builds the job that checks available + outstanding == provisioned
// for every variant and reports the number of variants that drifted.
func NewInventoryAuditJob(params InventoryAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	return &inventoryAuditJob{
		logg:    params.Logger,
		ledger:  params.Ledger,
		metrics: params.Metrics,
	}, nil
}

type inventoryAuditJob struct {
	logg    *logger.Logger
	ledger  stockAuditor
	metrics *metrics.InventoryMetrics
}

func (j *inventoryAuditJob) Name() string { return "inventory-audit" }

func (j *inventoryAuditJob) Run(ctx context.Context) error {
	results, err := j.ledger.Audit(ctx)
	if err != nil {
		return fmt.Errorf("inventory audit: %w", err)
	}

	var errs error
	violations := 0
	for _, result := range results {
		if result.Balanced {
			continue
		}
		violations++
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"variant_id":  result.VariantID.String(),
			"provisioned": result.Provisioned,
			"available":   result.Available,
			"outstanding": result.Outstanding,
		})
		j.logg.Warn(logCtx, "inventory conservation violated")
		errs = multierr.Append(errs, fmt.Errorf("variant %s: available %d + outstanding %d != provisioned %d",
			result.VariantID, result.Available, result.Outstanding, result.Provisioned))
	}
	j.metrics.SetViolations(violations)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"variants":   len(results),
		"violations": violations,
	})
	j.logg.Info(logCtx, "inventory audit complete")
	return errs
}
