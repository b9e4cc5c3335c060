package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// MovementRecordedEvent is emitted for every ledger entry, applied or pending.
type MovementRecordedEvent struct {
	MovementID            uuid.UUID            `json:"movement_id"`
	Type                  enums.MovementType   `json:"type"`
	ItemID                uuid.UUID            `json:"item_id"`
	OriginLocationID      *uuid.UUID           `json:"origin_location_id,omitempty"`
	DestinationLocationID *uuid.UUID           `json:"destination_location_id,omitempty"`
	Quantity              decimal.Decimal      `json:"quantity"`
	UnitCost              decimal.Decimal      `json:"unit_cost"`
	ApprovalStatus        enums.ApprovalStatus `json:"approval_status"`
	Applied               bool                 `json:"applied"`
	ReversedOfID          *uuid.UUID           `json:"reversed_of_id,omitempty"`
	OriginKind            enums.OriginKind     `json:"origin_kind"`
	OriginRef             *string              `json:"origin_ref,omitempty"`
}

// ReservationEvent covers reservation.created|consumed|cancelled|expired.
// Quantity is the delta of the operation; Remaining the hold left afterwards.
type ReservationEvent struct {
	ReservationID uuid.UUID               `json:"reservation_id"`
	ItemID        uuid.UUID               `json:"item_id"`
	LocationID    uuid.UUID               `json:"location_id"`
	Quantity      decimal.Decimal         `json:"quantity"`
	Remaining     decimal.Decimal         `json:"remaining"`
	Status        enums.ReservationStatus `json:"status"`
	OriginKind    enums.OriginKind        `json:"origin_kind"`
	OriginRef     string                  `json:"origin_ref,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
}

// ReplenishmentAdvisoryEvent suggests reordering a balance below its minimum.
type ReplenishmentAdvisoryEvent struct {
	ItemID            uuid.UUID                   `json:"item_id"`
	LocationID        uuid.UUID                   `json:"location_id"`
	Quantity          decimal.Decimal             `json:"quantity"`
	Min               decimal.Decimal             `json:"min"`
	Max               decimal.Decimal             `json:"max"`
	SuggestedQuantity decimal.Decimal             `json:"suggested_quantity"`
	LeadTimeDays      int                         `json:"lead_time_days"`
	Strategy          enums.ReplenishmentStrategy `json:"strategy"`
}

// PickingStatusChangedEvent reports a separation order transition.
type PickingStatusChangedEvent struct {
	OrderID  uuid.UUID                   `json:"order_id"`
	Code     string                      `json:"code"`
	From     enums.SeparationOrderStatus `json:"from"`
	To       enums.SeparationOrderStatus `json:"to"`
	Priority enums.SeparationPriority    `json:"priority"`
	Reason   string                      `json:"reason,omitempty"`
	At       time.Time                   `json:"at"`
}

// PickingItemUpdatedEvent reports a line change on a separation order.
type PickingItemUpdatedEvent struct {
	OrderID           uuid.UUID                  `json:"order_id"`
	LineID            uuid.UUID                  `json:"line_id"`
	ItemID            uuid.UUID                  `json:"item_id"`
	Status            enums.SeparationItemStatus `json:"status"`
	QuantityRequested decimal.Decimal            `json:"quantity_requested"`
	QuantityPicked    decimal.Decimal            `json:"quantity_picked"`
	Note              string                     `json:"note,omitempty"`
}

// PickingMessageAddedEvent reports a note posted on a separation order.
type PickingMessageAddedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	MessageID uuid.UUID `json:"message_id"`
	Author    string    `json:"author"`
}
