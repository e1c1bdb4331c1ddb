package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/availability"
	"github.com/angelmondragon/storefront/internal/ledger"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/policy"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

// CancelWindow is how long after creation a customer may cancel.
const CancelWindow = 24 * time.Hour

const orderNumberPrefix = "SF-"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, req ledger.ReserveRequest) (*models.Reservation, error)
	Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (bool, error)
}

type cartValidator interface {
	ValidateCart(ctx context.Context, items []availability.CartItem) (availability.CartValidation, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns every code path that moves stock on behalf of an order.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, requesterEmail string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
}

// ServiceParams wires the order lifecycle manager. Outbox and Metrics are optional.
type ServiceParams struct {
	Repository   Repository
	DB           txRunner
	Ledger       stockLedger
	Availability cartValidator
	Policies     policy.Resolver
	Notifier     notifications.Notifier
	Outbox       outboxEmitter
	Logger       *logger.Logger
	Metrics      *metrics.OrderMetrics
	Currency     enums.Currency
	Shipping     decimal.Decimal
	Now          func() time.Time
}

type service struct {
	repo         Repository
	db           txRunner
	ledger       stockLedger
	availability cartValidator
	policies     policy.Resolver
	notifier     notifications.Notifier
	outbox       outboxEmitter
	logg         *logger.Logger
	metrics      *metrics.OrderMetrics
	currency     enums.Currency
	shipping     decimal.Decimal
	now          func() time.Time
}

// NewService builds the order lifecycle manager with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Availability == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	if params.Policies == nil {
		return nil, fmt.Errorf("policy resolver required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := params.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("unsupported currency %q", currency)
	}
	if params.Shipping.IsNegative() {
		return nil, fmt.Errorf("shipping cannot be negative")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:         params.Repository,
		db:           params.DB,
		ledger:       params.Ledger,
		availability: params.Availability,
		policies:     params.Policies,
		notifier:     params.Notifier,
		outbox:       params.Outbox,
		logg:         params.Logger,
		metrics:      params.Metrics,
		currency:     currency,
		shipping:     params.Shipping,
		now:          now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (order *models.Order, err error) {
	defer func() { s.metrics.Observe("create", err) }()

	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	paymentStatus := enums.PaymentStatusPending
	if input.PaymentStatus != nil {
		if !input.PaymentStatus.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
		}
		paymentStatus = *input.PaymentStatus
	}

	var variantIDs []uuid.UUID
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, itemError(i, "product_id is required")
		}
		if item.Quantity <= 0 {
			return nil, itemError(i, "quantity must be positive")
		}
		if item.Quantity > ledger.MaxLineQuantity {
			return nil, itemError(i, fmt.Sprintf("quantity cannot exceed %d", ledger.MaxLineQuantity))
		}
		if item.UnitPrice.IsNegative() {
			return nil, itemError(i, "unit_price cannot be negative")
		}
		if item.VariantID != nil && *item.VariantID != uuid.Nil {
			variantIDs = append(variantIDs, *item.VariantID)
		}
	}

	policies, err := s.policies.ResolveVariants(ctx, variantIDs)
	if err != nil {
		return nil, err
	}
	for i, item := range input.Items {
		if item.VariantID == nil || *item.VariantID == uuid.Nil {
			continue
		}
		vp, ok := policies[*item.VariantID]
		if !ok {
			return nil, itemError(i, "variant not found")
		}
		if vp.ProductID != item.ProductID {
			return nil, itemError(i, "variant does not belong to product")
		}
	}

	if err := s.precheck(ctx, input.Items); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order = &models.Order{
		ID:            uuid.New(),
		OrderNumber:   newOrderNumber(now),
		Email:         email,
		CustomerID:    input.CustomerID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: paymentStatus,
		Currency:      s.currency,
		Shipping:      s.shipping,
		CreatedAt:     now,
	}
	subtotal := decimal.Zero
	var lines []ledger.ReserveLine
	for i, item := range input.Items {
		var variantID *uuid.UUID
		if item.VariantID != nil && *item.VariantID != uuid.Nil {
			id := *item.VariantID
			variantID = &id
			vp := policies[id]
			// untracked products never touch the ledger
			if !vp.Policy.BypassesLedger() {
				lines = append(lines, ledger.ReserveLine{
					VariantID:      id,
					Quantity:       item.Quantity,
					AllowShortfall: vp.Policy.AllowBackorder,
				})
			}
		}
		orderItem := models.OrderItem{
			OrderID:   order.ID,
			Position:  i,
			ProductID: item.ProductID,
			VariantID: variantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		subtotal = subtotal.Add(orderItem.LineTotal())
		order.Items = append(order.Items, orderItem)
	}
	order.Subtotal = subtotal
	order.Total = subtotal.Add(s.shipping)

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if len(lines) > 0 {
			reservation, err := s.ledger.Reserve(ctx, tx, ledger.ReserveRequest{OrderID: &order.ID, Lines: lines})
			if err != nil {
				return err
			}
			order.ReservationID = &reservation.ID
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Internal(err, "create order")
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Internal(err, "create order")
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"order_number": order.OrderNumber,
		"items":        len(order.Items),
	})
	s.logg.Info(logCtx, "order created")
	if nerr := s.notifier.NotifyOrderCreated(ctx, order); nerr != nil {
		s.logg.Error(logCtx, "order created notification failed", nerr)
	}
	return order, nil
}

// precheck runs the advisory cart validation so shoppers get per-line feedback
// before the authoritative reservation.
func (s *service) precheck(ctx context.Context, items []OrderItemInput) error {
	cart := make([]availability.CartItem, 0, len(items))
	for i, item := range items {
		cart = append(cart, availability.CartItem{
			ID:        strconv.Itoa(i),
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	validation, err := s.availability.ValidateCart(ctx, cart)
	if err != nil {
		return err
	}
	if !validation.IsValid {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").WithDetails(validation.Errors)
	}
	return nil
}

func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, requesterEmail string) (order *models.Order, err error) {
	defer func() { s.metrics.Observe("cancel", err) }()

	current, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !sameEmail(current.Email, requesterEmail) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "order does not belong to requester")
	}
	now := s.now().UTC()
	if now.Sub(current.CreatedAt) > CancelWindow {
		return nil, pkgerrors.New(pkgerrors.CodeWindowExpired, "cancellation window expired").
			WithDetails(map[string]any{"created_at": current.CreatedAt, "window_hours": int(CancelWindow.Hours())})
	}
	if !isCancellable(current.Status) {
		return nil, invalidTransition(current.Status, enums.OrderStatusCancelled)
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var terr error
		order, terr = s.cancelTx(ctx, tx, current, cancellableStatuses, now)
		return terr
	})
	if err != nil {
		return nil, pkgerrors.Internal(err, "cancel order")
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "order cancelled by customer")
	if nerr := s.notifier.NotifyOrderCancelled(ctx, order); nerr != nil {
		s.logg.Error(logCtx, "order cancelled notification failed", nerr)
	}
	return order, nil
}

// cancelTx moves the order to cancelled while it is still in one of the from states and
// releases its reservation in the same transaction. A concurrent transition loses here.
func (s *service) cancelTx(ctx context.Context, tx *gorm.DB, current *models.Order, from []enums.OrderStatus, now time.Time) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	ok, err := repo.TransitionStatus(ctx, current.ID, from, map[string]any{
		"status":       enums.OrderStatusCancelled,
		"cancelled_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return nil, pkgerrors.Internal(err, "update order status")
	}
	if !ok {
		return nil, invalidTransition(current.Status, enums.OrderStatusCancelled)
	}
	if err := s.releaseTx(ctx, tx, current); err != nil {
		return nil, err
	}
	order, err := repo.FindByID(ctx, current.ID)
	if err != nil {
		return nil, pkgerrors.Internal(err, "reload order")
	}
	return order, nil
}

func (s *service) releaseTx(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order.ReservationID == nil {
		return nil
	}
	released, err := s.ledger.Release(ctx, tx, *order.ReservationID)
	if err != nil {
		return err
	}
	if !released || s.outbox == nil {
		return nil
	}
	orderID := order.ID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationReleased,
		AggregateType: enums.AggregateReservation,
		AggregateID:   *order.ReservationID,
		Data: payloads.ReservationReleasedEvent{
			ReservationID: *order.ReservationID,
			OrderID:       &orderID,
			ReleasedAt:    s.now().UTC(),
		},
	})
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (order *models.Order, err error) {
	defer func() { s.metrics.Observe("update_status", err) }()

	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if input.PaymentStatus != nil && !input.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}

	current, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	sameStatus := current.Status == input.Status
	if sameStatus && input.PaymentStatus == nil {
		return current, nil
	}
	if !sameStatus && !CanTransition(current.Status, input.Status) {
		return nil, invalidTransition(current.Status, input.Status)
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{
			"status":     input.Status,
			"updated_at": now,
		}
		if input.PaymentStatus != nil {
			updates["payment_status"] = *input.PaymentStatus
		}
		if input.Status == enums.OrderStatusCancelled && !sameStatus {
			updates["cancelled_at"] = now
		}
		ok, err := repo.TransitionStatus(ctx, current.ID, []enums.OrderStatus{current.Status}, updates)
		if err != nil {
			return pkgerrors.Internal(err, "update order status")
		}
		if !ok {
			return invalidTransition(current.Status, input.Status)
		}
		// admin cancellation returns the stock just like a customer cancellation
		if input.Status == enums.OrderStatusCancelled && !sameStatus {
			if err := s.releaseTx(ctx, tx, current); err != nil {
				return err
			}
		}
		order, err = repo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Internal(err, "reload order")
		}
		if s.outbox == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.AdminActor(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				Email:         order.Email,
				From:          current.Status,
				To:            order.Status,
				PaymentStatus: order.PaymentStatus,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Internal(err, "update order status")
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"from": current.Status,
		"to":   order.Status,
	})
	s.logg.Info(logCtx, "order status updated")
	if order.Status == enums.OrderStatusCancelled && !sameStatus {
		if nerr := s.notifier.NotifyOrderCancelled(ctx, order); nerr != nil {
			s.logg.Error(logCtx, "order cancelled notification failed", nerr)
		}
	}
	return order, nil
}

func (s *service) DeleteOrder(ctx context.Context, orderID uuid.UUID) (err error) {
	defer func() { s.metrics.Observe("delete", err) }()

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Internal(err, "load order")
		}
		// release before removing anything so a deleted order never strands stock
		if err := s.releaseTx(ctx, tx, order); err != nil {
			return err
		}
		if err := repo.Delete(ctx, order.ID); err != nil {
			return pkgerrors.Internal(err, "delete order")
		}
		if order.ReservationID != nil {
			if err := repo.DeleteReservation(ctx, *order.ReservationID); err != nil {
				return pkgerrors.Internal(err, "delete reservation")
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Internal(err, "delete order")
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order deleted")
	return nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.load(ctx, orderID)
}

func (s *service) ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if filters.PaymentStatus != nil && !filters.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Internal(err, "list orders")
	}

	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: page, NextCursor: next}, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Internal(err, "load order")
	}
	return order, nil
}

func sameEmail(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func itemError(index int, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"item_index": index})
}

func newOrderNumber(at time.Time) string {
	return orderNumberPrefix + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
