package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorders "github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

type stubAdminOrders struct {
	updateFn func(ctx context.Context, orderID uuid.UUID, input internalorders.UpdateStatusInput) (*models.Order, error)
	deleteFn func(ctx context.Context, orderID uuid.UUID) error
	listFn   func(ctx context.Context, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error)
}

func (s stubAdminOrders) UpdateStatus(ctx context.Context, orderID uuid.UUID, input internalorders.UpdateStatusInput) (*models.Order, error) {
	return s.updateFn(ctx, orderID, input)
}

func (s stubAdminOrders) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	return s.deleteFn(ctx, orderID)
}

func (s stubAdminOrders) ListOrders(ctx context.Context, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error) {
	return s.listFn(ctx, filters, params)
}

func TestAdminListOrdersParsesFilters(t *testing.T) {
	order := sampleOrder()
	svc := stubAdminOrders{listFn: func(_ context.Context, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error) {
		assert.Equal(t, 5, params.Limit)
		assert.Equal(t, "abc", params.Cursor)
		require.NotNil(t, filters.Status)
		assert.Equal(t, enums.OrderStatusPending, *filters.Status)
		require.NotNil(t, filters.PaymentStatus)
		assert.Equal(t, enums.PaymentStatusPaid, *filters.PaymentStatus)
		assert.Equal(t, "owner@example.com", filters.Email)
		return &internalorders.OrderList{Orders: []models.Order{*order}, NextCursor: "next"}, nil
	}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&cursor=abc&status=pending&payment_status=paid&email=Owner@Example.com", nil)
	AdminListOrders(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[orderListResponse](t, rec)
	require.Len(t, got.Orders, 1)
	assert.Equal(t, order.ID, got.Orders[0].ID)
	assert.Equal(t, "next", got.NextCursor)
}

func TestAdminListOrdersRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminListOrders(stubAdminOrders{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?status=lost", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	order := sampleOrder()
	order.Status = enums.OrderStatusShipped
	svc := stubAdminOrders{updateFn: func(_ context.Context, id uuid.UUID, input internalorders.UpdateStatusInput) (*models.Order, error) {
		assert.Equal(t, order.ID, id)
		assert.Equal(t, enums.OrderStatusShipped, input.Status)
		require.NotNil(t, input.PaymentStatus)
		assert.Equal(t, enums.PaymentStatusPaid, *input.PaymentStatus)
		return order, nil
	}}

	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"shipped","payment_status":"paid"}`), map[string]string{"orderId": order.ID.String()})
	AdminUpdateOrderStatus(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.OrderStatusShipped, decodeData[orderResponse](t, rec).Status)
}

func TestAdminUpdateOrderStatusInvalidTransition(t *testing.T) {
	svc := stubAdminOrders{updateFn: func(context.Context, uuid.UUID, internalorders.UpdateStatusInput) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move from delivered to pending")
	}}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"pending"}`), map[string]string{"orderId": uuid.NewString()})
	AdminUpdateOrderStatus(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "cannot move from delivered to pending", decodeError(t, rec).Message)
}

func TestAdminDeleteOrder(t *testing.T) {
	orderID := uuid.New()
	var deleted uuid.UUID
	svc := stubAdminOrders{deleteFn: func(_ context.Context, id uuid.UUID) error {
		deleted = id
		return nil
	}}

	rec := httptest.NewRecorder()
	AdminDeleteOrder(svc, nil).ServeHTTP(rec, newRequest(http.MethodDelete, "/", nil, map[string]string{"orderId": orderID.String()}))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, orderID, deleted)

	missing := stubAdminOrders{deleteFn: func(context.Context, uuid.UUID) error {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}}
	rec = httptest.NewRecorder()
	AdminDeleteOrder(missing, nil).ServeHTTP(rec, newRequest(http.MethodDelete, "/", nil, map[string]string{"orderId": orderID.String()}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
