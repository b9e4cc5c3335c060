package audit

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/pkg/db/models"
)

// Repository reads and appends audit records.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to a connection used for reads.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LockHead returns the chain head row locked for update, creating it on the
// first append.
func (r *Repository) LockHead(ctx context.Context, tx *gorm.DB) (*models.AuditChainHead, error) {
	seed := models.AuditChainHead{ID: models.AuditChainHeadID}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	var head models.AuditChainHead
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", models.AuditChainHeadID).
		First(&head).Error
	if err != nil {
		return nil, err
	}
	return &head, nil
}

// Insert writes a record and moves the head to it.
func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, record *models.AuditRecord) error {
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Model(&models.AuditChainHead{}).
		Where("id = ?", models.AuditChainHeadID).
		Updates(map[string]any{
			"tail_hash":     record.CurrentHash,
			"last_sequence": record.Sequence,
		}).Error
}

// Range returns records with from <= sequence <= to (to == 0 means open
// ended), at most limit rows, in sequence order.
func (r *Repository) Range(ctx context.Context, from, to int64, limit int) ([]models.AuditRecord, error) {
	q := r.db.WithContext(ctx).Where("sequence >= ?", from)
	if to > 0 {
		q = q.Where("sequence <= ?", to)
	}
	var rows []models.AuditRecord
	err := q.Order("sequence ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// BySequence returns one record or nil.
func (r *Repository) BySequence(ctx context.Context, seq int64) (*models.AuditRecord, error) {
	var rec models.AuditRecord
	err := r.db.WithContext(ctx).Where("sequence = ?", seq).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListForEntity returns the audit trail of one entity.
func (r *Repository) ListForEntity(ctx context.Context, tenantID, entityType, entityID string) ([]models.AuditRecord, error) {
	var rows []models.AuditRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, entityType, entityID).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}
