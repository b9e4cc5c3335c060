package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// AuditRecord is one link of the global hash chain. Rows are never updated.
type AuditRecord struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Sequence       int64                  `gorm:"column:sequence;not null;uniqueIndex"`
	TenantID       string                 `gorm:"column:tenant_id;type:varchar(64);not null;index"`
	EntityType     string                 `gorm:"column:entity_type;type:varchar(32);not null"`
	EntityID       uuid.UUID              `gorm:"column:entity_id;type:uuid;not null;index"`
	Actor          string                 `gorm:"column:actor;type:varchar(128);not null"`
	SpecialType    enums.AuditSpecialType `gorm:"column:special_type;type:varchar(32);not null;default:''"`
	PriorHash      string                 `gorm:"column:prior_hash;type:varchar(64);not null;default:''"`
	CurrentHash    string                 `gorm:"column:current_hash;type:varchar(64);not null"`
	BeforeSnapshot json.RawMessage        `gorm:"column:before_snapshot;type:jsonb"`
	AfterSnapshot  json.RawMessage        `gorm:"column:after_snapshot;type:jsonb;not null"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}

// AuditChainHeadID is the primary key of the single chain head row.
const AuditChainHeadID = 1

// AuditChainHead holds the tail of the chain. It is locked in the same
// transaction that inserts the next AuditRecord.
type AuditChainHead struct {
	ID           int       `gorm:"column:id;primaryKey;autoIncrement:false"`
	TailHash     string    `gorm:"column:tail_hash;type:varchar(64);not null;default:''"`
	LastSequence int64     `gorm:"column:last_sequence;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
