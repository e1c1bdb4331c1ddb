package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// OrderLine is the notification-facing view of an ordered item.
type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	VariantID *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent asks the mail collaborator to send an order confirmation.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Email       string          `json:"email"`
	Currency    enums.Currency  `json:"currency"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Shipping    decimal.Decimal `json:"shipping"`
	Total       decimal.Decimal `json:"total"`
	Items       []OrderLine     `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderCanceledEvent asks the mail collaborator to confirm a cancellation.
type OrderCanceledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Email       string    `json:"email"`
	CanceledAt  time.Time `json:"canceled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderStatusChangedEvent records an admin transition.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Email         string              `json:"email"`
	From          enums.OrderStatus   `json:"from"`
	To            enums.OrderStatus   `json:"to"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// ReservationReleasedEvent reports stock returned to the ledger.
type ReservationReleasedEvent struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
	ReleasedAt    time.Time  `json:"released_at"`
}

// AggregateID returns the id the outbox row must be keyed by.
func (e OrderCreatedEvent) AggregateID() uuid.UUID { return e.OrderID }

func (e OrderCanceledEvent) AggregateID() uuid.UUID { return e.OrderID }

func (e OrderStatusChangedEvent) AggregateID() uuid.UUID { return e.OrderID }

func (e ReservationReleasedEvent) AggregateID() uuid.UUID { return e.ReservationID }
