package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/stockledger/pkg/db/types"
	"github.com/angelmondragon/stockledger/pkg/enums"
)

// Movement is one ledger transaction. Rows are append-only apart from the
// approval fields of entries created PENDING. UnitCost is the snapshot taken
// at creation; AppliedUnitCost is the cost the balance actually moved at and
// is set when the entry is applied.
type Movement struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TenantID              string               `gorm:"column:tenant_id;type:varchar(64);not null;index:ix_movements_item,priority:1"`
	ItemID                uuid.UUID            `gorm:"column:item_id;type:uuid;not null;index:ix_movements_item,priority:2"`
	Type                  enums.MovementType   `gorm:"column:type;type:varchar(32);not null"`
	Quantity              decimal.Decimal      `gorm:"column:quantity;type:numeric(20,6);not null"`
	UnitCost              decimal.Decimal      `gorm:"column:unit_cost;type:numeric(20,6);not null;default:0"`
	AppliedUnitCost       decimal.Decimal      `gorm:"column:applied_unit_cost;type:numeric(20,6);not null;default:0"`
	EstimatedValue        decimal.Decimal      `gorm:"column:estimated_value;type:numeric(20,6);not null;default:0"`
	OriginLocationID      *uuid.UUID           `gorm:"column:origin_location_id;type:uuid"`
	DestinationLocationID *uuid.UUID           `gorm:"column:destination_location_id;type:uuid"`
	ApprovalStatus        enums.ApprovalStatus `gorm:"column:approval_status;type:varchar(16);not null;default:APPROVED"`
	Applied               bool                 `gorm:"column:applied;not null;default:false"`
	AppliedAt             *time.Time           `gorm:"column:applied_at"`
	IsReversal            bool                 `gorm:"column:is_reversal;not null;default:false"`
	ReversedOfID          *uuid.UUID           `gorm:"column:reversed_of_id;type:uuid;index"`
	BatchID               *uuid.UUID           `gorm:"column:batch_id;type:uuid;index"`
	OriginKind            enums.OriginKind     `gorm:"column:origin_kind;type:varchar(32);not null;default:manual"`
	OriginRef             *string              `gorm:"column:origin_ref;type:varchar(128)"`
	Actor                 string               `gorm:"column:actor;type:varchar(128);not null"`
	Reason                *string              `gorm:"column:reason;type:text"`
	Justification         *string              `gorm:"column:justification;type:text"`
	EvidenceRefs          dbtypes.StringArray  `gorm:"column:evidence_refs;type:text"`
	Approver              *string              `gorm:"column:approver;type:varchar(128)"`
	RejectionReason       *string              `gorm:"column:rejection_reason;type:text"`
	DecidedAt             *time.Time           `gorm:"column:decided_at"`
	Metadata              json.RawMessage      `gorm:"column:metadata;type:jsonb"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime;index"`
}

// TotalCost is quantity times the cost the balance was moved at.
func (m Movement) TotalCost() decimal.Decimal {
	return m.Quantity.Mul(m.AppliedUnitCost)
}

// MovementMetadata is stored in Movement.Metadata. Before holds the balance
// state(s) read under lock prior to mutation.
type MovementMetadata struct {
	Before []BalanceSnapshot `json:"before,omitempty"`
	After  []BalanceSnapshot `json:"after,omitempty"`
	Notes  map[string]string `json:"notes,omitempty"`
}
