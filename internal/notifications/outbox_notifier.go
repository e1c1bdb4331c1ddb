package notifications

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxNotifier queues notification events on the outbox in a transaction of its own.
// The outbox publisher relays them to the notifications topic.
type OutboxNotifier struct {
	db     txRunner
	outbox eventEmitter
	now    func() time.Time
}

// NewOutboxNotifier builds an OutboxNotifier.
func NewOutboxNotifier(db txRunner, emitter eventEmitter) (*OutboxNotifier, error) {
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &OutboxNotifier{db: db, outbox: emitter, now: time.Now}, nil
}

func (n *OutboxNotifier) NotifyOrderCreated(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	data := payloads.OrderCreatedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		Currency:    order.Currency,
		Subtotal:    order.Subtotal,
		Shipping:    order.Shipping,
		Total:       order.Total,
		Items:       orderLines(order.Items),
		CreatedAt:   order.CreatedAt,
	}
	return n.emit(ctx, enums.EventOrderCreated, order, data)
}

func (n *OutboxNotifier) NotifyOrderCancelled(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	canceledAt := n.now().UTC()
	if order.CancelledAt != nil {
		canceledAt = *order.CancelledAt
	}
	data := payloads.OrderCanceledEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		CanceledAt:  canceledAt,
	}
	return n.emit(ctx, enums.EventOrderCanceled, order, data)
}

func (n *OutboxNotifier) emit(ctx context.Context, eventType enums.OutboxEventType, order *models.Order, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.ShopperActor(order.Email, order.CustomerID),
		Data:          data,
		OccurredAt:    n.now().UTC(),
	}
	return n.db.WithTx(ctx, func(tx *gorm.DB) error {
		return n.outbox.EmitIfNotExists(ctx, tx, event)
	})
}

func orderLines(items []models.OrderItem) []payloads.OrderLine {
	lines := make([]payloads.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, payloads.OrderLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return lines
}
