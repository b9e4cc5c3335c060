package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateMovement        OutboxAggregateType = "movement"
	AggregateReservation     OutboxAggregateType = "reservation"
	AggregateBalance         OutboxAggregateType = "balance"
	AggregateSeparationOrder OutboxAggregateType = "separation_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMovement,
	AggregateReservation,
	AggregateBalance,
	AggregateSeparationOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the public event name carried in every envelope.
type OutboxEventType string

const (
	EventMovementRecorded       OutboxEventType = "movement.recorded"
	EventReservationCreated     OutboxEventType = "reservation.created"
	EventReservationConsumed    OutboxEventType = "reservation.consumed"
	EventReservationCancelled   OutboxEventType = "reservation.cancelled"
	EventReservationExpired     OutboxEventType = "reservation.expired"
	EventReplenishmentAdvisory  OutboxEventType = "replenishment.advisory"
	EventPickingStatusChanged   OutboxEventType = "picking.status_changed"
	EventPickingItemUpdated     OutboxEventType = "picking.item_updated"
	EventPickingMessageReceived OutboxEventType = "picking.message_added"
)

var validOutboxEventTypes = []OutboxEventType{
	EventMovementRecorded,
	EventReservationCreated,
	EventReservationConsumed,
	EventReservationCancelled,
	EventReservationExpired,
	EventReplenishmentAdvisory,
	EventPickingStatusChanged,
	EventPickingItemUpdated,
	EventPickingMessageReceived,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
