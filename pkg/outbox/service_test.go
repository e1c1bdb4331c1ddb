package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
)

func TestServiceEmitWritesEnvelope(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	orderID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         ShopperActor("shopper@example.com", nil),
			Data:          map[string]string{"order_number": "SF-1"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.JSONEq(t, `{"order_number":"SF-1"}`, string(envelope.Data))
	require.Equal(t, "shopper@example.com", envelope.Actor.Email)
}

func TestServiceEmitRequiresTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated})
	require.Error(t, err)
}

func TestServiceEmitRejectsUnknownEventType(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     "bogus",
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
		})
	})
	require.Error(t, err)
}

func TestServiceEmitStampsClockAndRejectsMissingAggregate(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
		})
	})
	require.Error(t, err)

	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Actor:         AdminActor(),
			Data:          map[string]string{},
		})
	}))

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row).Error)
	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.True(t, fixed.Equal(envelope.OccurredAt))
	require.Equal(t, "admin", envelope.Actor.Role)
}

func TestServiceEmitIfNotExistsDedupes(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	event := DomainEvent{
		EventType:     enums.EventOrderCanceled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]string{},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, repo.Insert(client.DB(), row))

	rows, err := repo.FetchUnpublishedForPublish(client.DB(), 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, repo.MarkFailedTx(client.DB(), row.ID, errors.New("transient")))
	var stored models.OutboxEvent
	require.NoError(t, client.DB().First(&stored, "id = ?", row.ID).Error)
	require.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastError)

	require.NoError(t, repo.MarkTerminalTx(client.DB(), row.ID, errors.New("dead"), 3))
	rows, err = repo.FetchUnpublishedForPublish(client.DB(), 10, 3)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.NoError(t, repo.MarkPublishedTx(client.DB(), row.ID))
	require.NoError(t, client.DB().First(&stored, "id = ?", row.ID).Error)
	require.NotNil(t, stored.PublishedAt)
	require.False(t, stored.Pending())
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()

	rows := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &old, CreatedAt: old},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &fresh, CreatedAt: fresh},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 9, CreatedAt: old},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 1, CreatedAt: old},
	}
	require.NoError(t, client.DB().Create(&rows).Error)

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, time.Now().UTC().Add(-24*time.Hour), 5)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var remaining int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
}

func TestDLQRepositoryTruncatesMessages(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	long := strings.Repeat("x", maxErrorLen+50)
	eventID := uuid.New()
	event := models.OutboxEvent{
		ID:            eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		AttemptCount:  4,
	}
	require.NoError(t, repo.InsertTx(client.DB(), event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, errors.New(long), time.Now())))

	found, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, *found.ErrorMessage, maxErrorLen)
	require.Equal(t, 4, found.AttemptCount)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, found.ErrorReason)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestClipKeepsRunesWhole(t *testing.T) {
	require.Equal(t, "abc", clip("abc", 10))
	require.Equal(t, "ab", clip("abcdef", 2))
	// "é" is two bytes
	got := clip("aé", 2)
	require.Equal(t, "a", got)
	require.True(t, utf8.ValidString(got))
}
