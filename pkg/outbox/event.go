package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
)

const envelopeVersion = 1

// DomainEvent is what producers hand to Emit. Data is marshalled into the envelope.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// ActorRef identifies who caused the event.
type ActorRef struct {
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
	Email      string     `json:"email,omitempty"`
	Role       string     `json:"role,omitempty"`
}

func ShopperActor(email string, customerID *uuid.UUID) *ActorRef {
	return &ActorRef{CustomerID: customerID, Email: email, Role: string(enums.RoleCustomer)}
}

func AdminActor() *ActorRef {
	return &ActorRef{Role: string(enums.RoleAdmin)}
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published verbatim.
// EventID equals the outbox row id, so dead letters and consumers share one key.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func (e DomainEvent) validate() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("invalid event type %q", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return fmt.Errorf("invalid aggregate type %q", e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return fmt.Errorf("%s event missing aggregate id", e.EventType)
	}
	return nil
}

func (e DomainEvent) envelope(eventID uuid.UUID, now time.Time) ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.EventType, err)
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	version := e.Version
	if version == 0 {
		version = envelopeVersion
	}
	return json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    eventID.String(),
		OccurredAt: occurred.UTC(),
		Actor:      e.Actor,
		Data:       data,
	})
}

// row renders the event as an outbox_events row keyed by a fresh id that doubles as the
// envelope event id.
func (e DomainEvent) row(now time.Time) (models.OutboxEvent, error) {
	if err := e.validate(); err != nil {
		return models.OutboxEvent{}, err
	}
	id := uuid.New()
	payload, err := e.envelope(id, now)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}, nil
}
