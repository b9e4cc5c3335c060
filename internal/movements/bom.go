package movements

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/validation"
)

// Components returns the bill of materials of a parent item.
func (s *Service) Components(ctx context.Context, tenantID string, parentItemID uuid.UUID) ([]models.BOMComponent, error) {
	var rows []models.BOMComponent
	err := s.db.DB().WithContext(ctx).
		Where("tenant_id = ? AND parent_item_id = ?", tenantID, parentItemID).
		Order("component_item_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load bill of materials: %w", err)
	}
	return rows, nil
}

// UpsertComponent stores one bill of materials line.
func (s *Service) UpsertComponent(ctx context.Context, component *models.BOMComponent) error {
	if component.TenantID == "" || component.ParentItemID == uuid.Nil || component.ComponentItemID == uuid.Nil {
		return pkgerrors.Invalid("tenant, parent and component are required")
	}
	if component.ParentItemID == component.ComponentItemID {
		return pkgerrors.Invalid("an item cannot be its own component")
	}
	if err := validation.PositiveQuantity("ratio", component.Ratio); err != nil {
		return err
	}
	return s.db.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "parent_item_id"}, {Name: "component_item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ratio"}),
	}).Create(component).Error
}

// RecordBOMConsumption consumes ratio x quantity of every component of the
// parent item at one location. Either every component exit is applied or
// none is. All exits share a batch id.
func (s *Service) RecordBOMConsumption(ctx context.Context, in BOMInput) ([]*models.Movement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	if err := in.Origin.Validate(); err != nil {
		return nil, err
	}
	components, err := s.Components(ctx, in.TenantID, in.ParentItemID)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "item has no bill of materials").
			WithDetails(map[string]string{"parent_item_id": in.ParentItemID.String()})
	}

	keys := make([]balances.Key, 0, len(components))
	for _, c := range components {
		keys = append(keys, balances.NewKey(in.TenantID, c.ComponentItemID, in.LocationID))
	}
	origin := in.Origin.Normalize()
	batchID := uuid.New()

	var out []*models.Movement
	err = s.run(ctx, string(enums.MovementBOMConsume), keys, func(ctx context.Context, tx *gorm.DB) error {
		out = out[:0]
		for _, c := range components {
			key := balances.NewKey(in.TenantID, c.ComponentItemID, in.LocationID)
			qty := c.Ratio.Mul(in.Quantity)
			leg, err := s.decrease(ctx, tx, key, qty, false)
			if err != nil {
				return err
			}
			now := s.nowUTC()
			loc := in.LocationID
			batch := batchID
			mv := &models.Movement{
				TenantID:         in.TenantID,
				ItemID:           c.ComponentItemID,
				Type:             enums.MovementBOMConsume,
				Quantity:         qty,
				UnitCost:         leg.unitCost,
				AppliedUnitCost:  leg.unitCost,
				EstimatedValue:   qty.Mul(leg.unitCost),
				OriginLocationID: &loc,
				ApprovalStatus:   enums.ApprovalApproved,
				Applied:          true,
				AppliedAt:        &now,
				BatchID:          &batch,
				OriginKind:       origin.Kind,
				OriginRef:        origin.RefPtr(),
				Actor:            in.Actor,
				Reason:           strPtr(in.Reason),
			}
			notes := map[string]string{
				"parent_item_id":  in.ParentItemID.String(),
				"parent_quantity": in.Quantity.String(),
				"ratio":           c.Ratio.String(),
			}
			if err := s.persist(ctx, tx, mv, enums.AuditRegular, notes, leg); err != nil {
				return err
			}
			s.consult(ctx, tx, leg)
			out = append(out, mv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logRecorded(ctx, out...)
	return out, nil
}
