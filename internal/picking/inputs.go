package picking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/types"
)

// LineInput is one requested line of a new separation order.
type LineInput struct {
	ItemID     uuid.UUID       `json:"item_id" validate:"required"`
	LocationID uuid.UUID       `json:"location_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// CreateInput opens a separation order. Code is generated when empty and
// Priority defaults to NORMAL.
type CreateInput struct {
	TenantID     string                   `json:"tenant_id" validate:"required"`
	Code         string                   `json:"code" validate:"max=64"`
	Priority     enums.SeparationPriority `json:"priority"`
	AllowPartial bool                     `json:"allow_partial"`
	Origin       types.OriginRef          `json:"origin"`
	RequestedBy  string                   `json:"requested_by" validate:"required"`
	Notes        string                   `json:"notes"`
	ExpiresAt    *time.Time               `json:"expires_at"`
	Lines        []LineInput              `json:"lines" validate:"min=1,dive"`
}

// OrderRef addresses an order and names who acts on it.
type OrderRef struct {
	TenantID string    `json:"tenant_id" validate:"required"`
	OrderID  uuid.UUID `json:"order_id" validate:"required"`
	Actor    string    `json:"actor" validate:"required"`
	Reason   string    `json:"reason"`
}

// PickInput records a picked quantity on one line.
type PickInput struct {
	TenantID string          `json:"tenant_id" validate:"required"`
	OrderID  uuid.UUID       `json:"order_id" validate:"required"`
	LineID   uuid.UUID       `json:"line_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Actor    string          `json:"actor" validate:"required"`
}

// UnavailableInput flags a line that cannot be picked.
type UnavailableInput struct {
	TenantID string    `json:"tenant_id" validate:"required"`
	OrderID  uuid.UUID `json:"order_id" validate:"required"`
	LineID   uuid.UUID `json:"line_id" validate:"required"`
	Note     string    `json:"note"`
	Actor    string    `json:"actor" validate:"required"`
}

// MessageInput posts a note on an order.
type MessageInput struct {
	TenantID string    `json:"tenant_id" validate:"required"`
	OrderID  uuid.UUID `json:"order_id" validate:"required"`
	Author   string    `json:"author" validate:"required"`
	Body     string    `json:"body" validate:"required"`
}
