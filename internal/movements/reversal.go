package movements

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/validation"
)

// ReversalType returns the structurally opposite movement type. Discard
// class entries come back as positive adjustments.
func ReversalType(t enums.MovementType) (enums.MovementType, bool) {
	switch t {
	case enums.MovementEntry, enums.MovementCustomerReturn:
		return enums.MovementExit, true
	case enums.MovementExit, enums.MovementSupplierReturn, enums.MovementBOMConsume:
		return enums.MovementEntry, true
	case enums.MovementAdjustPos:
		return enums.MovementAdjustNeg, true
	case enums.MovementAdjustNeg, enums.MovementDiscard, enums.MovementLoss, enums.MovementExpiry:
		return enums.MovementAdjustPos, true
	case enums.MovementTransfer:
		return enums.MovementTransfer, true
	}
	return "", false
}

// ReverseMovement books a new entry that undoes an applied movement. The
// original is never modified. Reversals, reservation holds and entries that
// were already reversed are refused with NOT_REVERSIBLE.
func (s *Service) ReverseMovement(ctx context.Context, in ReverseInput) (*models.Movement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	orig, err := s.GetMovement(ctx, in.TenantID, in.MovementID)
	if err != nil {
		return nil, err
	}
	if orig.IsReversal {
		return nil, pkgerrors.New(pkgerrors.CodeNotReversible, "a reversal cannot be reversed")
	}
	revType, ok := ReversalType(orig.Type)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotReversible, "movement type cannot be reversed").
			WithDetails(map[string]string{"type": string(orig.Type)})
	}
	if !orig.Applied {
		return nil, pkgerrors.InvalidState("only applied movements can be reversed").
			WithDetails(map[string]string{"approval_status": string(orig.ApprovalStatus)})
	}

	// out is where the reversal takes stock from, back where it returns it.
	var out, back *uuid.UUID
	switch {
	case orig.Type == enums.MovementTransfer:
		out, back = orig.DestinationLocationID, orig.OriginLocationID
	case orig.Type.IsInbound():
		out = orig.DestinationLocationID
	default:
		back = orig.OriginLocationID
	}
	if (out == nil && back == nil) || (orig.Type == enums.MovementTransfer && (out == nil || back == nil)) {
		return nil, pkgerrors.InvalidState("movement has no locations to reverse")
	}
	var keys []balances.Key
	if out != nil {
		keys = append(keys, balances.NewKey(orig.TenantID, orig.ItemID, *out))
	}
	if back != nil {
		keys = append(keys, balances.NewKey(orig.TenantID, orig.ItemID, *back))
	}

	var mv *models.Movement
	err = s.run(ctx, "reverse", keys, func(ctx context.Context, tx *gorm.DB) error {
		reversed, err := s.hasReversalTx(ctx, tx, orig.ID)
		if err != nil {
			return err
		}
		if reversed {
			return pkgerrors.New(pkgerrors.CodeNotReversible, "movement was already reversed")
		}
		var legs []legResult
		var decreased []legResult
		cost := orig.AppliedUnitCost
		if out != nil {
			leg, err := s.decrease(ctx, tx, balances.NewKey(orig.TenantID, orig.ItemID, *out), orig.Quantity, false)
			if err != nil {
				return err
			}
			legs = append(legs, leg)
			decreased = append(decreased, leg)
			cost = leg.unitCost
		}
		if back != nil {
			leg, err := s.increase(ctx, tx, balances.NewKey(orig.TenantID, orig.ItemID, *back), orig.Quantity, orig.AppliedUnitCost)
			if err != nil {
				return err
			}
			legs = append(legs, leg)
			if out == nil {
				cost = leg.unitCost
			}
		}
		now := s.nowUTC()
		origID := orig.ID
		mv = &models.Movement{
			TenantID:              orig.TenantID,
			ItemID:                orig.ItemID,
			Type:                  revType,
			Quantity:              orig.Quantity,
			UnitCost:              cost,
			AppliedUnitCost:       cost,
			EstimatedValue:        orig.Quantity.Mul(cost),
			OriginLocationID:      out,
			DestinationLocationID: back,
			ApprovalStatus:        enums.ApprovalApproved,
			Applied:               true,
			AppliedAt:             &now,
			IsReversal:            true,
			ReversedOfID:          &origID,
			OriginKind:            orig.OriginKind,
			OriginRef:             orig.OriginRef,
			Actor:                 in.Actor,
			Reason:                strPtr(in.Reason),
		}
		notes := map[string]string{"reversed_type": string(orig.Type)}
		if err := s.persist(ctx, tx, mv, enums.AuditReversal, notes, legs...); err != nil {
			return err
		}
		s.consult(ctx, tx, decreased...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logRecorded(ctx, mv)
	return mv, nil
}

func (s *Service) hasReversalTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&models.Movement{}).Where("reversed_of_id = ?", id).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check reversal: %w", err)
	}
	return count > 0, nil
}

// GetMovement loads one entry of the tenant.
func (s *Service) GetMovement(ctx context.Context, tenantID string, id uuid.UUID) (*models.Movement, error) {
	var mv models.Movement
	err := s.db.DB().WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "movement not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &mv, nil
}
