package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
)

func TestResolveOrderCreated(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: envelopeFor(t, payloads.OrderCreatedEvent{
			OrderID:     orderID,
			OrderNumber: "SF-01",
			Email:       "shopper@example.com",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "notification-topic", resolved.Descriptor.Topic)
	payload, ok := resolved.Payload.(payloads.OrderCreatedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, "shopper@example.com", payload.Email)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestResolveRoutesBookkeepingEventsToOrdersTopic(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID, reservationID := uuid.New(), uuid.New()

	status, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: envelopeFor(t, payloads.OrderStatusChangedEvent{
			OrderID: orderID,
			From:    enums.OrderStatusPending,
			To:      enums.OrderStatusShipped,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", status.Descriptor.Topic)

	released, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventReservationReleased,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservationID,
		Payload:       envelopeFor(t, payloads.ReservationReleasedEvent{ReservationID: reservationID}),
	})
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", released.Descriptor.Topic)
}

func TestOrdersTopicFallsBackToNotificationTopic(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: "notify"})
	require.NoError(t, err)
	assert.Equal(t, []string{"notify"}, reg.Topics())
}

func TestTopicsAreDistinct(t *testing.T) {
	assert.Equal(t, []string{"notification-topic", "orders-topic"}, newTestEventRegistry(t).Topics())
}

func TestNewEventRegistryRequiresNotificationTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	orderID := uuid.New()
	cases := map[string]models.OutboxEvent{
		"unknown event type": {
			EventType:     enums.OutboxEventType("mystery"),
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       envelopeFor(t, payloads.OrderCanceledEvent{OrderID: orderID}),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateReservation,
			AggregateID:   orderID,
			Payload:       envelopeFor(t, payloads.OrderCreatedEvent{OrderID: orderID}),
		},
		"missing aggregate id": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			Payload:       envelopeFor(t, payloads.OrderCreatedEvent{}),
		},
		"null payload": {
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       envelopeFor(t, nil),
		},
		"payload keyed by another order": {
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       envelopeFor(t, payloads.OrderCanceledEvent{OrderID: uuid.New()}),
		},
		"payload of wrong shape": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       envelopeFor(t, []int{1, 2}),
		},
		"envelope not json": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       json.RawMessage(`{`),
		},
	}

	reg := newTestEventRegistry(t)
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.Error(t, err)
			assert.True(t, IsNonRetryable(err), "expected non-retryable, got %v", err)
		})
	}
}

func TestIsNonRetryableSeesThroughWrapping(t *testing.T) {
	wrapped := errors.Join(errors.New("publish"), NewNonRetryableError(errors.New("bad topic")))
	assert.True(t, IsNonRetryable(wrapped))
	assert.False(t, IsNonRetryable(errors.New("timeout")))
	assert.Equal(t, "non-retryable error", NonRetryableError{}.Error())
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		OrdersTopic:       "orders-topic",
		NotificationTopic: "notification-topic",
	})
	require.NoError(t, err)
	return reg
}

func envelopeFor(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return raw
}
