package movements

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/pagination"
)

// ListFilter narrows ListMovementsForItem.
type ListFilter struct {
	TenantID   string
	ItemID     uuid.UUID
	LocationID *uuid.UUID
	Types      []enums.MovementType
	Status     *enums.ApprovalStatus
	Params     pagination.Params
}

// MovementPage is one page of ledger entries, newest first.
type MovementPage struct {
	Movements  []models.Movement
	NextCursor string
}

// ListMovementsForItem pages through an item's ledger, newest first. A
// location filter matches either side of a transfer.
func (s *Service) ListMovementsForItem(ctx context.Context, f ListFilter) (*MovementPage, error) {
	if f.TenantID == "" || f.ItemID == uuid.Nil {
		return nil, pkgerrors.Invalid("tenant and item are required")
	}
	cursor, err := pagination.Decode(f.Params.Cursor)
	if err != nil {
		return nil, err
	}

	q := s.db.DB().WithContext(ctx).
		Model(&models.Movement{}).
		Where("tenant_id = ? AND item_id = ?", f.TenantID, f.ItemID)
	if f.LocationID != nil {
		q = q.Where("(origin_location_id = ? OR destination_location_id = ?)", *f.LocationID, *f.LocationID)
	}
	if len(f.Types) > 0 {
		q = q.Where("type IN ?", f.Types)
	}
	if f.Status != nil {
		q = q.Where("approval_status = ?", *f.Status)
	}
	if cursor != nil {
		q = q.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Movement
	if err := q.Order("created_at DESC").Order("id DESC").Limit(pagination.Fetch(f.Params.Limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	page, next := pagination.Split(rows, f.Params.Limit, func(mv models.Movement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: mv.CreatedAt, ID: mv.ID}
	})
	return &MovementPage{Movements: page, NextCursor: next}, nil
}
