package movements

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/types"
)

// EntryInput receives stock at a location. UnitCost is required for plain
// entries; returns fall back to the current average when it is zero.
type EntryInput struct {
	TenantID   string          `json:"tenant_id" validate:"required"`
	ItemID     uuid.UUID       `json:"item_id" validate:"required"`
	LocationID uuid.UUID       `json:"location_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	Actor      string          `json:"actor" validate:"required"`
	Reason     string          `json:"reason"`
	Origin     types.OriginRef `json:"origin"`
}

// ExitInput takes stock out of a location.
type ExitInput struct {
	TenantID   string          `json:"tenant_id" validate:"required"`
	ItemID     uuid.UUID       `json:"item_id" validate:"required"`
	LocationID uuid.UUID       `json:"location_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	Actor      string          `json:"actor" validate:"required"`
	Reason     string          `json:"reason"`
	Origin     types.OriginRef `json:"origin"`
}

// TransferInput moves stock between two locations of the same tenant.
type TransferInput struct {
	TenantID       string          `json:"tenant_id" validate:"required"`
	ItemID         uuid.UUID       `json:"item_id" validate:"required"`
	FromLocationID uuid.UUID       `json:"from_location_id" validate:"required"`
	ToLocationID   uuid.UUID       `json:"to_location_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	Actor          string          `json:"actor" validate:"required"`
	Reason         string          `json:"reason"`
	Origin         types.OriginRef `json:"origin"`
}

// AdjustmentSign selects ADJUST_POS or ADJUST_NEG.
type AdjustmentSign int

const (
	AdjustNegative AdjustmentSign = -1
	AdjustPositive AdjustmentSign = 1
)

// AdjustmentInput corrects a balance after a count. Positive adjustments
// enter at UnitCost, or at the current average when it is zero.
type AdjustmentInput struct {
	TenantID   string          `json:"tenant_id" validate:"required"`
	ItemID     uuid.UUID       `json:"item_id" validate:"required"`
	LocationID uuid.UUID       `json:"location_id" validate:"required"`
	Sign       AdjustmentSign  `json:"sign" validate:"oneof=-1 1"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	Actor      string          `json:"actor" validate:"required"`
	Reason     string          `json:"reason" validate:"required"`
}

// DiscardInput records a DISCARD, LOSS or EXPIRY. Threshold overrides the
// configured approval threshold when set.
type DiscardInput struct {
	TenantID      string             `json:"tenant_id" validate:"required"`
	ItemID        uuid.UUID          `json:"item_id" validate:"required"`
	LocationID    uuid.UUID          `json:"location_id" validate:"required"`
	Type          enums.MovementType `json:"type" validate:"required"`
	Quantity      decimal.Decimal    `json:"quantity"`
	Justification string             `json:"justification"`
	Threshold     *decimal.Decimal   `json:"threshold"`
	EvidenceRefs  []string           `json:"evidence_refs" validate:"dive,required"`
	Actor         string             `json:"actor" validate:"required"`
}

// BOMInput consumes the components of ParentItemID for Quantity units.
type BOMInput struct {
	TenantID     string          `json:"tenant_id" validate:"required"`
	ParentItemID uuid.UUID       `json:"parent_item_id" validate:"required"`
	LocationID   uuid.UUID       `json:"location_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	Actor        string          `json:"actor" validate:"required"`
	Reason       string          `json:"reason"`
	Origin       types.OriginRef `json:"origin"`
}

// ApproveInput approves a pending discard-class movement.
type ApproveInput struct {
	TenantID   string    `json:"tenant_id" validate:"required"`
	MovementID uuid.UUID `json:"movement_id" validate:"required"`
	Approver   string    `json:"approver" validate:"required"`
}

// RejectInput rejects a pending discard-class movement.
type RejectInput struct {
	TenantID   string    `json:"tenant_id" validate:"required"`
	MovementID uuid.UUID `json:"movement_id" validate:"required"`
	Approver   string    `json:"approver" validate:"required"`
	Reason     string    `json:"reason" validate:"required"`
}

// ReverseInput undoes an applied movement with a new opposite entry.
type ReverseInput struct {
	TenantID   string    `json:"tenant_id" validate:"required"`
	MovementID uuid.UUID `json:"movement_id" validate:"required"`
	Actor      string    `json:"actor" validate:"required"`
	Reason     string    `json:"reason"`
}

// HoldInput changes the reserved quantity of a balance. It is used by the
// reservation manager while it holds the balance lock.
type HoldInput struct {
	TenantID      string
	ItemID        uuid.UUID
	LocationID    uuid.UUID
	Quantity      decimal.Decimal
	Actor         string
	Reason        string
	Origin        types.OriginRef
	ReservationID uuid.UUID
}
