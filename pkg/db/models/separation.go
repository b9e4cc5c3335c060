package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// SeparationOrder is a picking job. The item counters mirror the live
// aggregation of Items and are rewritten after every line change.
type SeparationOrder struct {
	ID                   uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	TenantID             string                      `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_separation_orders_code,priority:1;index:ix_separation_orders_status,priority:1"`
	Code                 string                      `gorm:"column:code;type:varchar(64);not null;uniqueIndex:ux_separation_orders_code,priority:2"`
	Priority             enums.SeparationPriority    `gorm:"column:priority;type:varchar(16);not null;default:NORMAL;index:ix_separation_orders_status,priority:3"`
	Status               enums.SeparationOrderStatus `gorm:"column:status;type:varchar(16);not null;default:OPEN;index:ix_separation_orders_status,priority:2"`
	AllowPartial         bool                        `gorm:"column:allow_partial;not null;default:false"`
	OriginKind           enums.OriginKind            `gorm:"column:origin_kind;type:varchar(32);not null;default:manual"`
	OriginRef            *string                     `gorm:"column:origin_ref;type:varchar(128)"`
	RequestedBy          string                      `gorm:"column:requested_by;type:varchar(128);not null"`
	Operator             *string                     `gorm:"column:operator;type:varchar(128)"`
	TotalItems           int                         `gorm:"column:total_items;not null;default:0"`
	PendingItems         int                         `gorm:"column:pending_items;not null;default:0"`
	PickedItems          int                         `gorm:"column:picked_items;not null;default:0"`
	PartialItems         int                         `gorm:"column:partial_items;not null;default:0"`
	UnavailableItems     int                         `gorm:"column:unavailable_items;not null;default:0"`
	Notes                *string                     `gorm:"column:notes;type:text"`
	ExpiresAt            *time.Time                  `gorm:"column:expires_at;index"`
	PreparationStartedAt *time.Time                  `gorm:"column:preparation_started_at"`
	CompletedAt          *time.Time                  `gorm:"column:completed_at"`
	PickedUpAt           *time.Time                  `gorm:"column:picked_up_at"`
	ClosedAt             *time.Time                  `gorm:"column:closed_at"`
	CloseReason          *string                     `gorm:"column:close_reason;type:text"`
	CreatedAt            time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
	Items                []SeparationItem            `gorm:"foreignKey:OrderID"`
	Messages             []SeparationMessage         `gorm:"foreignKey:OrderID"`
}

// SeparationItem is one requested line of a separation order.
type SeparationItem struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	TenantID          string                     `gorm:"column:tenant_id;type:varchar(64);not null"`
	LineNo            int                        `gorm:"column:line_no;not null"`
	ItemID            uuid.UUID                  `gorm:"column:item_id;type:uuid;not null"`
	LocationID        uuid.UUID                  `gorm:"column:location_id;type:uuid;not null"`
	QuantityRequested decimal.Decimal            `gorm:"column:quantity_requested;type:numeric(20,6);not null"`
	QuantityPicked    decimal.Decimal            `gorm:"column:quantity_picked;type:numeric(20,6);not null;default:0"`
	Status            enums.SeparationItemStatus `gorm:"column:status;type:varchar(16);not null;default:PENDING"`
	ReservationID     *uuid.UUID                 `gorm:"column:reservation_id;type:uuid"`
	UnavailableNote   *string                    `gorm:"column:unavailable_note;type:text"`
	PickedBy          *string                    `gorm:"column:picked_by;type:varchar(128)"`
	PickedAt          *time.Time                 `gorm:"column:picked_at"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// Remaining is the quantity still to be picked.
func (i SeparationItem) Remaining() decimal.Decimal {
	return i.QuantityRequested.Sub(i.QuantityPicked)
}

// SeparationMessage is a free-text note exchanged on an order.
type SeparationMessage struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	TenantID  string    `gorm:"column:tenant_id;type:varchar(64);not null"`
	Author    string    `gorm:"column:author;type:varchar(128);not null"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
