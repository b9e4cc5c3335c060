package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostLayer is one FIFO acquisition lot. Layers are consumed in Sequence order
// and never reused once QuantityRemaining reaches zero.
type CostLayer struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          string          `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_cost_layers_sequence,priority:1"`
	ItemID            uuid.UUID       `gorm:"column:item_id;type:uuid;not null;uniqueIndex:ux_cost_layers_sequence,priority:2"`
	LocationID        uuid.UUID       `gorm:"column:location_id;type:uuid;not null;uniqueIndex:ux_cost_layers_sequence,priority:3"`
	Sequence          int64           `gorm:"column:sequence;not null;uniqueIndex:ux_cost_layers_sequence,priority:4"`
	QuantityReceived  decimal.Decimal `gorm:"column:quantity_received;type:numeric(20,6);not null"`
	QuantityRemaining decimal.Decimal `gorm:"column:quantity_remaining;type:numeric(20,6);not null"`
	UnitCost          decimal.Decimal `gorm:"column:unit_cost;type:numeric(20,6);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
