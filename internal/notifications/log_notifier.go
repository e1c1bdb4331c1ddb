package notifications

import (
	"context"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// LogNotifier only records the notification. It is used when eventing is disabled.
type LogNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) NotifyOrderCreated(ctx context.Context, order *models.Order) error {
	n.log(ctx, order, "order created notification")
	return nil
}

func (n *LogNotifier) NotifyOrderCancelled(ctx context.Context, order *models.Order) error {
	n.log(ctx, order, "order cancelled notification")
	return nil
}

func (n *LogNotifier) log(ctx context.Context, order *models.Order, msg string) {
	if n.logg == nil || order == nil {
		return
	}
	ctx = n.logg.WithShopper(ctx, order.Email)
	ctx = n.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
	})
	n.logg.Info(ctx, msg)
}
