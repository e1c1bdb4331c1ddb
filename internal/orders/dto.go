package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
)

// CreateOrderInput carries a checkout request.
type CreateOrderInput struct {
	Email         string               `json:"email" validate:"required,email"`
	CustomerID    *uuid.UUID           `json:"customer_id,omitempty"`
	Items         []OrderItemInput     `json:"items" validate:"required,min=1,dive"`
	PaymentStatus *enums.PaymentStatus `json:"payment_status,omitempty" validate:"omitempty,enum"`
}

// OrderItemInput is one requested line.
type OrderItemInput struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	VariantID *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity" validate:"required,gt=0,lte=100000"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// UpdateStatusInput is an admin transition request.
type UpdateStatusInput struct {
	Status        enums.OrderStatus    `json:"status" validate:"required,enum"`
	PaymentStatus *enums.PaymentStatus `json:"payment_status,omitempty" validate:"omitempty,enum"`
}

// ListFilters narrows the admin order list.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	Email         string
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
