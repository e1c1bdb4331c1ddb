// Package notifications hands order events to the external mail collaborator.
// Every notifier is best-effort: callers log failures and never roll back on them.
package notifications

import (
	"context"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

// Notifier is called after an order transaction commits.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, order *models.Order) error
	NotifyOrderCancelled(ctx context.Context, order *models.Order) error
}
