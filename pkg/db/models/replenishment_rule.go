package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// ReplenishmentRule is the reorder policy for one balance key.
type ReplenishmentRule struct {
	ID           uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     string                      `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_replenishment_rules_key,priority:1"`
	ItemID       uuid.UUID                   `gorm:"column:item_id;type:uuid;not null;uniqueIndex:ux_replenishment_rules_key,priority:2"`
	LocationID   uuid.UUID                   `gorm:"column:location_id;type:uuid;not null;uniqueIndex:ux_replenishment_rules_key,priority:3"`
	MinQuantity  decimal.Decimal             `gorm:"column:min_quantity;type:numeric(20,6);not null"`
	MaxQuantity  decimal.Decimal             `gorm:"column:max_quantity;type:numeric(20,6);not null"`
	LeadTimeDays int                         `gorm:"column:lead_time_days;not null;default:0"`
	Strategy     enums.ReplenishmentStrategy `gorm:"column:strategy;type:varchar(32);not null;default:MIN_MAX"`
	Active       bool                        `gorm:"column:active;not null;default:true"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
