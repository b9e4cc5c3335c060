package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate, channel and payload.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Channel        string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor and its
// versioned payload decoders.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	decoders *DecoderRegistry
}

const currentPayloadVersion = 1

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry; every event is broadcast on
// "<prefix>:<event_name>".
func NewEventRegistry(cfg config.OutboxConfig) (*EventRegistry, error) {
	prefix := strings.TrimSpace(cfg.ChannelPrefix)
	if prefix == "" {
		return nil, fmt.Errorf("channel prefix is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		decoders: NewDecoderRegistry(),
	}
	channel := func(eventType enums.OutboxEventType) string {
		return prefix + ":" + string(eventType)
	}

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventMovementRecorded,
			AggregateType:  enums.AggregateMovement,
			PayloadFactory: func() any { return &payloads.MovementRecordedEvent{} },
		},
		{
			EventType:      enums.EventReservationCreated,
			AggregateType:  enums.AggregateReservation,
			PayloadFactory: func() any { return &payloads.ReservationEvent{} },
		},
		{
			EventType:      enums.EventReservationConsumed,
			AggregateType:  enums.AggregateReservation,
			PayloadFactory: func() any { return &payloads.ReservationEvent{} },
		},
		{
			EventType:      enums.EventReservationCancelled,
			AggregateType:  enums.AggregateReservation,
			PayloadFactory: func() any { return &payloads.ReservationEvent{} },
		},
		{
			EventType:      enums.EventReservationExpired,
			AggregateType:  enums.AggregateReservation,
			PayloadFactory: func() any { return &payloads.ReservationEvent{} },
		},
		{
			EventType:      enums.EventReplenishmentAdvisory,
			AggregateType:  enums.AggregateBalance,
			PayloadFactory: func() any { return &payloads.ReplenishmentAdvisoryEvent{} },
		},
		{
			EventType:      enums.EventPickingStatusChanged,
			AggregateType:  enums.AggregateSeparationOrder,
			PayloadFactory: func() any { return &payloads.PickingStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventPickingItemUpdated,
			AggregateType:  enums.AggregateSeparationOrder,
			PayloadFactory: func() any { return &payloads.PickingItemUpdatedEvent{} },
		},
		{
			EventType:      enums.EventPickingMessageReceived,
			AggregateType:  enums.AggregateSeparationOrder,
			PayloadFactory: func() any { return &payloads.PickingMessageAddedEvent{} },
		},
	} {
		desc.Channel = channel(desc.EventType)
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
	factory := desc.PayloadFactory
	r.decoders.Register(desc.EventType, currentPayloadVersion, func(raw json.RawMessage) (any, error) {
		payload := factory()
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, err
		}
		return payload, nil
	})
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	version := envelope.Version
	if version <= 0 {
		version = currentPayloadVersion
	}
	payload, err := r.decoders.Decode(event.EventType, version, envelope.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
