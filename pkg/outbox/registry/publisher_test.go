package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	itemID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.MovementRecordedEvent{
		MovementID:     uuid.New(),
		Type:           enums.MovementEntry,
		ItemID:         itemID,
		Quantity:       decimal.NewFromInt(10),
		UnitCost:       decimal.NewFromInt(5),
		ApprovalStatus: enums.ApprovalApproved,
		Applied:        true,
		OriginKind:     enums.OriginManual,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventMovementRecorded,
		AggregateType: enums.AggregateMovement,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, enums.EventMovementRecorded, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Channel != "ledger:movement.recorded" {
		t.Fatalf("unexpected channel %q", resolved.Descriptor.Channel)
	}
	payload, ok := resolved.Payload.(*payloads.MovementRecordedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ItemID != itemID || !payload.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.TenantID != "tenant-a" {
		t.Fatalf("envelope tenant mismatch %q", resolved.Envelope.TenantID)
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("inventory.teleported"),
		AggregateType: enums.AggregateMovement,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, "inventory.teleported", []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventReservationCreated,
		AggregateType: enums.AggregateSeparationOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, enums.EventReservationCreated, []byte(`{"quantity":"1"}`)),
	}

	if _, err := reg.Resolve(event); err == nil {
		t.Fatal("expected aggregate mismatch error")
	}
}

func TestEventRegistryResolveMissingPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventPickingStatusChanged,
		AggregateType: enums.AggregateSeparationOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, enums.EventPickingStatusChanged, []byte("null")),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveUnknownVersion(t *testing.T) {
	reg := newTestEventRegistry(t)

	raw := mustMarshal(t, outbox.PayloadEnvelope{
		EventID:   uuid.NewString(),
		EventName: string(enums.EventReservationCreated),
		Version:   7,
		Timestamp: time.Now().UTC(),
		TenantID:  "tenant-a",
		Payload:   json.RawMessage(`{"quantity":"1"}`),
	})
	event := models.OutboxEvent{
		EventType:     enums.EventReservationCreated,
		AggregateType: enums.AggregateReservation,
		AggregateID:   uuid.New(),
		Payload:       raw,
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
	if !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected unknown version, got %v", err)
	}
}

func TestNewEventRegistryRequiresPrefix(t *testing.T) {
	if _, err := NewEventRegistry(config.OutboxConfig{}); err == nil {
		t.Fatal("expected error for missing channel prefix")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.OutboxConfig{ChannelPrefix: "ledger"})
	if err != nil {
		t.Fatalf("NewEventRegistry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, eventType enums.OutboxEventType, payload []byte) json.RawMessage {
	t.Helper()
	return mustMarshal(t, outbox.PayloadEnvelope{
		EventID:   uuid.NewString(),
		EventName: string(eventType),
		Version:   1,
		Timestamp: time.Now().UTC(),
		TenantID:  "tenant-a",
		Payload:   payload,
	})
}
