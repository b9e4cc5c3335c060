package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Balance is the current stock of one item at one location for a tenant.
type Balance struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    string          `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_balances_key,priority:1"`
	ItemID      uuid.UUID       `gorm:"column:item_id;type:uuid;not null;uniqueIndex:ux_balances_key,priority:2"`
	LocationID  uuid.UUID       `gorm:"column:location_id;type:uuid;not null;uniqueIndex:ux_balances_key,priority:3"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:numeric(20,6);not null;default:0"`
	Reserved    decimal.Decimal `gorm:"column:reserved;type:numeric(20,6);not null;default:0"`
	AverageCost decimal.Decimal `gorm:"column:average_cost;type:numeric(20,6);not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Available is the quantity not held by active reservations.
func (b Balance) Available() decimal.Decimal {
	return b.Quantity.Sub(b.Reserved)
}

// TotalValue is quantity times average cost.
func (b Balance) TotalValue() decimal.Decimal {
	return b.Quantity.Mul(b.AverageCost)
}

// Snapshot captures the fields recorded in ledger metadata and audit records.
func (b Balance) Snapshot() BalanceSnapshot {
	return BalanceSnapshot{
		TenantID:    b.TenantID,
		ItemID:      b.ItemID,
		LocationID:  b.LocationID,
		Quantity:    b.Quantity,
		Reserved:    b.Reserved,
		AverageCost: b.AverageCost,
	}
}

// BalanceSnapshot is the serialisable view of a balance at a point in time.
type BalanceSnapshot struct {
	TenantID    string          `json:"tenant_id"`
	ItemID      uuid.UUID       `json:"item_id"`
	LocationID  uuid.UUID       `json:"location_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reserved    decimal.Decimal `json:"reserved"`
	AverageCost decimal.Decimal `json:"average_cost"`
}
