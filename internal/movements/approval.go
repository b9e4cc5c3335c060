package movements

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	dbtypes "github.com/angelmondragon/stockledger/pkg/db/types"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/validation"
)

// RecordDiscard records a DISCARD, LOSS or EXPIRY. When the estimated value
// (quantity times current average cost) is above the threshold the entry is
// stored PENDING and the balance is left alone until it is approved.
func (s *Service) RecordDiscard(ctx context.Context, in DiscardInput) (*models.Movement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if !in.Type.IsDiscardClass() {
		return nil, pkgerrors.Invalid("movement type is not discard class").
			WithDetails(map[string]string{"type": string(in.Type)})
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	if err := validation.MinLength("justification", in.Justification, s.cfg.JustificationMinLength); err != nil {
		return nil, err
	}
	threshold := s.cfg.ApprovalThreshold
	if in.Threshold != nil {
		threshold = *in.Threshold
	}
	if threshold.IsNegative() {
		return nil, pkgerrors.Invalid("threshold must not be negative")
	}

	key := balances.NewKey(in.TenantID, in.ItemID, in.LocationID)
	justification := in.Justification
	var mv *models.Movement
	err := s.run(ctx, string(in.Type), []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		bal, err := s.balances.GetOrCreate(ctx, tx, key)
		if err != nil {
			return err
		}
		if in.Quantity.GreaterThan(bal.Available()) {
			return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
				TenantID:   key.TenantID,
				ItemID:     key.ItemID,
				LocationID: key.LocationID,
				Requested:  in.Quantity,
				Available:  bal.Available(),
			})
		}
		estimated := unitValue(in.Quantity, bal.AverageCost)
		loc := in.LocationID
		mv = &models.Movement{
			TenantID:         in.TenantID,
			ItemID:           in.ItemID,
			Type:             in.Type,
			Quantity:         in.Quantity,
			UnitCost:         bal.AverageCost,
			EstimatedValue:   estimated,
			OriginLocationID: &loc,
			OriginKind:       enums.OriginManual,
			Actor:            in.Actor,
			Justification:    &justification,
			EvidenceRefs:     dbtypes.StringArray(in.EvidenceRefs),
		}

		if estimated.GreaterThan(threshold) {
			mv.ApprovalStatus = enums.ApprovalPending
			mv.Applied = false
			held := legResult{before: bal.Snapshot(), after: *bal}
			notes := map[string]string{"threshold": threshold.String()}
			return s.persist(ctx, tx, mv, enums.AuditPending, notes, held)
		}

		leg, err := s.decrease(ctx, tx, key, in.Quantity, false)
		if err != nil {
			return err
		}
		now := s.nowUTC()
		mv.ApprovalStatus = enums.ApprovalApproved
		mv.Applied = true
		mv.AppliedAt = &now
		mv.AppliedUnitCost = leg.unitCost
		if err := s.persist(ctx, tx, mv, enums.AuditRegular, nil, leg); err != nil {
			return err
		}
		s.consult(ctx, tx, leg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logRecorded(ctx, mv)
	return mv, nil
}

// ApproveMovement applies a pending discard-class entry. Availability is
// checked again; a shortfall returns INSUFFICIENT_STOCK and the entry stays
// PENDING so the caller can retry.
func (s *Service) ApproveMovement(ctx context.Context, in ApproveInput) (*models.Movement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	pending, key, err := s.loadPending(ctx, in.TenantID, in.MovementID)
	if err != nil {
		return nil, err
	}

	var mv *models.Movement
	err = s.run(ctx, "approve", []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		locked, err := s.lockPendingTx(ctx, tx, in.TenantID, pending.ID)
		if err != nil {
			return err
		}
		leg, err := s.decrease(ctx, tx, key, locked.Quantity, false)
		if err != nil {
			return err
		}
		now := s.nowUTC()
		approver := in.Approver
		updates := map[string]any{
			"approval_status":   enums.ApprovalApproved,
			"applied":           true,
			"applied_at":        now,
			"applied_unit_cost": leg.unitCost,
			"approver":          approver,
			"decided_at":        now,
		}
		if err := tx.WithContext(ctx).Model(&models.Movement{}).Where("id = ?", locked.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("approve movement: %w", err)
		}
		locked.ApprovalStatus = enums.ApprovalApproved
		locked.Applied = true
		locked.AppliedAt = &now
		locked.AppliedUnitCost = leg.unitCost
		locked.Approver = &approver
		locked.DecidedAt = &now

		before, after := snapshots(leg)
		decided := *locked
		decided.Actor = approver
		if err := s.chain(ctx, tx, &decided, enums.AuditApproval, before, after); err != nil {
			return err
		}
		s.consult(ctx, tx, leg)
		mv = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncApprovalDecision("approved")
	s.logDecision(ctx, mv, "movement approved")
	return mv, nil
}

// RejectMovement closes a pending entry without touching the balance.
func (s *Service) RejectMovement(ctx context.Context, in RejectInput) (*models.Movement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	pending, key, err := s.loadPending(ctx, in.TenantID, in.MovementID)
	if err != nil {
		return nil, err
	}

	var mv *models.Movement
	err = s.run(ctx, "reject", []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		locked, err := s.lockPendingTx(ctx, tx, in.TenantID, pending.ID)
		if err != nil {
			return err
		}
		now := s.nowUTC()
		approver, reason := in.Approver, in.Reason
		updates := map[string]any{
			"approval_status":  enums.ApprovalRejected,
			"approver":         approver,
			"rejection_reason": reason,
			"decided_at":       now,
		}
		if err := tx.WithContext(ctx).Model(&models.Movement{}).Where("id = ?", locked.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("reject movement: %w", err)
		}
		locked.ApprovalStatus = enums.ApprovalRejected
		locked.Approver = &approver
		locked.RejectionReason = &reason
		locked.DecidedAt = &now

		bal, err := s.balances.GetOrCreate(ctx, tx, key)
		if err != nil {
			return err
		}
		decided := *locked
		decided.Actor = approver
		snap := []models.BalanceSnapshot{bal.Snapshot()}
		if err := s.chain(ctx, tx, &decided, enums.AuditRejection, snap, snap); err != nil {
			return err
		}
		mv = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncApprovalDecision("rejected")
	s.logDecision(ctx, mv, "movement rejected")
	return mv, nil
}

// loadPending reads the entry outside any lock to learn its balance key.
func (s *Service) loadPending(ctx context.Context, tenantID string, id uuid.UUID) (*models.Movement, balances.Key, error) {
	var mv models.Movement
	err := s.db.DB().WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, balances.Key{}, pkgerrors.New(pkgerrors.CodeNotFound, "movement not found")
	}
	if err != nil {
		return nil, balances.Key{}, fmt.Errorf("load movement: %w", err)
	}
	if mv.ApprovalStatus != enums.ApprovalPending {
		return nil, balances.Key{}, pkgerrors.InvalidState("movement is not pending approval").
			WithDetails(map[string]string{"approval_status": string(mv.ApprovalStatus)})
	}
	if mv.OriginLocationID == nil {
		return nil, balances.Key{}, pkgerrors.InvalidState("pending movement has no location")
	}
	return &mv, balances.NewKey(mv.TenantID, mv.ItemID, *mv.OriginLocationID), nil
}

// lockPendingTx re-reads the entry under lock and checks it is still pending.
func (s *Service) lockPendingTx(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*models.Movement, error) {
	var mv models.Movement
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&mv).Error
	if err != nil {
		return nil, fmt.Errorf("lock movement: %w", err)
	}
	if mv.ApprovalStatus != enums.ApprovalPending {
		return nil, pkgerrors.InvalidState("movement is not pending approval").
			WithDetails(map[string]string{"approval_status": string(mv.ApprovalStatus)})
	}
	return &mv, nil
}

func (s *Service) logDecision(ctx context.Context, mv *models.Movement, msg string) {
	approver := ""
	if mv.Approver != nil {
		approver = *mv.Approver
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id":   mv.TenantID,
		"movement_id": mv.ID.String(),
		"approver":    approver,
		"quantity":    mv.Quantity.String(),
	})
	s.logg.Info(logCtx, msg)
}

// EstimateDiscardValue previews the value the approval threshold is compared
// against for a discard of qty.
func (s *Service) EstimateDiscardValue(ctx context.Context, key balances.Key, qty decimal.Decimal) (decimal.Decimal, error) {
	bal, err := s.balances.GetBalance(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	return unitValue(qty, bal.AverageCost), nil
}
