package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// Item carries the per-item settings the ledger needs, chiefly the valuation
// strategy. Items without a row are valued by weighted average.
type Item struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          string                  `gorm:"column:tenant_id;type:varchar(64);not null;index"`
	SKU               string                  `gorm:"column:sku;type:varchar(128);not null"`
	Name              string                  `gorm:"column:name;type:varchar(255);not null"`
	ValuationStrategy enums.ValuationStrategy `gorm:"column:valuation_strategy;type:varchar(32);not null;default:WEIGHTED_AVERAGE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// BOMComponent is one line of a bill of materials: consuming one unit of the
// parent consumes Ratio units of the component.
type BOMComponent struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID        string          `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_bom_components_line,priority:1"`
	ParentItemID    uuid.UUID       `gorm:"column:parent_item_id;type:uuid;not null;uniqueIndex:ux_bom_components_line,priority:2"`
	ComponentItemID uuid.UUID       `gorm:"column:component_item_id;type:uuid;not null;uniqueIndex:ux_bom_components_line,priority:3"`
	Ratio           decimal.Decimal `gorm:"column:ratio;type:numeric(20,6);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
