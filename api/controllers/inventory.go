package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/ledger"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type inventoryService interface {
	GetStock(ctx context.Context, variantID uuid.UUID) (int, error)
	Provision(ctx context.Context, input ledger.ProvisionInput) (*models.InventoryLevel, error)
	Audit(ctx context.Context, variantIDs ...uuid.UUID) ([]ledger.AuditResult, error)
}

type stockResponse struct {
	VariantID uuid.UUID `json:"variant_id"`
	Available int       `json:"available"`
}

type levelResponse struct {
	VariantID   uuid.UUID `json:"variant_id"`
	LocationID  uuid.UUID `json:"location_id"`
	Available   int       `json:"available"`
	Provisioned int       `json:"provisioned"`
}

type auditResponse struct {
	Results    []ledger.AuditResult `json:"results"`
	Violations int                  `json:"violations"`
}

// AdminProvisionStock adds units to a (variant, location) row.
func AdminProvisionStock(svc inventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		var input ledger.ProvisionInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		level, err := svc.Provision(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, levelResponse{
			VariantID:   level.VariantID,
			LocationID:  level.LocationID,
			Available:   level.Available,
			Provisioned: level.Provisioned,
		})
	}
}

// AdminVariantStock returns the ledger total for a variant across locations.
func AdminVariantStock(svc inventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		variantID, err := validators.ParseUUIDParam(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := svc.GetStock(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stockResponse{VariantID: variantID, Available: available})
	}
}

// AdminInventoryAudit runs the conservation audit, optionally limited by ?variant_ids=a,b.
func AdminInventoryAudit(svc inventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		ids, err := validators.ParseQueryUUIDs(r, "variant_ids")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		results, err := svc.Audit(r.Context(), ids...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := auditResponse{Results: results}
		if resp.Results == nil {
			resp.Results = []ledger.AuditResult{}
		}
		for _, result := range results {
			if !result.Balanced {
				resp.Violations++
			}
		}
		responses.WriteSuccess(w, resp)
	}
}
