package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// Reservation is a soft hold against a balance. Quantity is the outstanding
// hold; Consumed accumulates what was converted into exits.
type Reservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    string                  `gorm:"column:tenant_id;type:varchar(64);not null;index:ix_reservations_origin,priority:1"`
	ItemID      uuid.UUID               `gorm:"column:item_id;type:uuid;not null;index:ix_reservations_origin,priority:2"`
	LocationID  uuid.UUID               `gorm:"column:location_id;type:uuid;not null;index:ix_reservations_origin,priority:3"`
	OriginKind  enums.OriginKind        `gorm:"column:origin_kind;type:varchar(32);not null;index:ix_reservations_origin,priority:4"`
	OriginRef   string                  `gorm:"column:origin_ref;type:varchar(128);not null;default:'';index:ix_reservations_origin,priority:5"`
	Quantity    decimal.Decimal         `gorm:"column:quantity;type:numeric(20,6);not null"`
	Consumed    decimal.Decimal         `gorm:"column:consumed;type:numeric(20,6);not null;default:0"`
	Status      enums.ReservationStatus `gorm:"column:status;type:varchar(16);not null;default:ACTIVE;index"`
	ExpiresAt   *time.Time              `gorm:"column:expires_at;index"`
	Actor       string                  `gorm:"column:actor;type:varchar(128);not null"`
	CloseReason *string                 `gorm:"column:close_reason;type:text"`
	ClosedAt    *time.Time              `gorm:"column:closed_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
