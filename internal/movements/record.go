package movements

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/validation"
)

// RecordEntry receives stock at a location. A zero unit cost is a free
// receipt and dilutes the average; negative costs are rejected.
func (s *Service) RecordEntry(ctx context.Context, in EntryInput) (*models.Movement, error) {
	return s.recordInbound(ctx, enums.MovementEntry, in, false)
}

// RecordCustomerReturn puts stock back after a customer return. A zero unit
// cost re-enters at the current average.
func (s *Service) RecordCustomerReturn(ctx context.Context, in EntryInput) (*models.Movement, error) {
	return s.recordInbound(ctx, enums.MovementCustomerReturn, in, true)
}

func (s *Service) recordInbound(ctx context.Context, typ enums.MovementType, in EntryInput, costFromAverage bool) (*models.Movement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	if err := in.Origin.Validate(); err != nil {
		return nil, err
	}
	key := balances.NewKey(in.TenantID, in.ItemID, in.LocationID)
	origin := in.Origin.Normalize()

	var mv *models.Movement
	err := s.run(ctx, string(typ), []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		cost := in.UnitCost
		if cost.IsZero() && costFromAverage {
			bal, err := s.balances.GetOrCreate(ctx, tx, key)
			if err != nil {
				return err
			}
			cost = bal.AverageCost
		}
		leg, err := s.increase(ctx, tx, key, in.Quantity, cost)
		if err != nil {
			return err
		}
		now := s.nowUTC()
		loc := in.LocationID
		mv = &models.Movement{
			TenantID:              in.TenantID,
			ItemID:                in.ItemID,
			Type:                  typ,
			Quantity:              in.Quantity,
			UnitCost:              leg.unitCost,
			AppliedUnitCost:       leg.unitCost,
			EstimatedValue:        in.Quantity.Mul(leg.unitCost),
			DestinationLocationID: &loc,
			ApprovalStatus:        enums.ApprovalApproved,
			Applied:               true,
			AppliedAt:             &now,
			OriginKind:            origin.Kind,
			OriginRef:             origin.RefPtr(),
			Actor:                 in.Actor,
			Reason:                strPtr(in.Reason),
		}
		return s.persist(ctx, tx, mv, enums.AuditRegular, nil, leg)
	})
	if err != nil {
		return nil, err
	}
	s.logRecorded(ctx, mv)
	return mv, nil
}

// RecordExit takes stock out of a location at the valuation cost.
func (s *Service) RecordExit(ctx context.Context, in ExitInput) (*models.Movement, error) {
	return s.recordOutbound(ctx, enums.MovementExit, in)
}

// RecordSupplierReturn sends stock back to a supplier.
func (s *Service) RecordSupplierReturn(ctx context.Context, in ExitInput) (*models.Movement, error) {
	return s.recordOutbound(ctx, enums.MovementSupplierReturn, in)
}

func (s *Service) recordOutbound(ctx context.Context, typ enums.MovementType, in ExitInput) (*models.Movement, error) {
	if err := validateExit(in); err != nil {
		return nil, err
	}
	key := balances.NewKey(in.TenantID, in.ItemID, in.LocationID)
	var mv *models.Movement
	err := s.run(ctx, string(typ), []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		mv, err = s.exitTx(ctx, tx, typ, in, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logRecorded(ctx, mv)
	return mv, nil
}

// RecordExitTx records an EXIT inside tx. The caller must hold the balance
// lock. With fromReserved the quantity is released from the reserved hold
// first.
func (s *Service) RecordExitTx(ctx context.Context, tx *gorm.DB, in ExitInput, fromReserved bool) (*models.Movement, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	if err := validateExit(in); err != nil {
		return nil, err
	}
	mv, err := s.exitTx(ctx, tx, enums.MovementExit, in, fromReserved)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			s.metrics.IncStockRejection(string(enums.MovementExit))
		}
		return nil, err
	}
	s.logRecorded(ctx, mv)
	return mv, nil
}

func validateExit(in ExitInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return err
	}
	return in.Origin.Validate()
}

func (s *Service) exitTx(ctx context.Context, tx *gorm.DB, typ enums.MovementType, in ExitInput, fromReserved bool) (*models.Movement, error) {
	key := balances.NewKey(in.TenantID, in.ItemID, in.LocationID)
	leg, err := s.decrease(ctx, tx, key, in.Quantity, fromReserved)
	if err != nil {
		return nil, err
	}
	origin := in.Origin.Normalize()
	now := s.nowUTC()
	loc := in.LocationID
	mv := &models.Movement{
		TenantID:         in.TenantID,
		ItemID:           in.ItemID,
		Type:             typ,
		Quantity:         in.Quantity,
		UnitCost:         leg.unitCost,
		AppliedUnitCost:  leg.unitCost,
		EstimatedValue:   in.Quantity.Mul(leg.unitCost),
		OriginLocationID: &loc,
		ApprovalStatus:   enums.ApprovalApproved,
		Applied:          true,
		AppliedAt:        &now,
		OriginKind:       origin.Kind,
		OriginRef:        origin.RefPtr(),
		Actor:            in.Actor,
		Reason:           strPtr(in.Reason),
	}
	if err := s.persist(ctx, tx, mv, enums.AuditRegular, nil, leg); err != nil {
		return nil, err
	}
	s.consult(ctx, tx, leg)
	return mv, nil
}

// RecordTransfer moves stock between two locations as one entry. Both
// balances change in the same transaction or neither does. The destination
// receives the stock at the origin's exit cost, so an empty destination
// inherits the origin cost basis.
func (s *Service) RecordTransfer(ctx context.Context, in TransferInput) (*models.Movement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	if in.FromLocationID == in.ToLocationID {
		return nil, pkgerrors.Invalid("transfer locations must differ").
			WithDetails(map[string]string{"to_location_id": "must differ from from_location_id"})
	}
	if err := in.Origin.Validate(); err != nil {
		return nil, err
	}
	from := balances.NewKey(in.TenantID, in.ItemID, in.FromLocationID)
	to := balances.NewKey(in.TenantID, in.ItemID, in.ToLocationID)
	origin := in.Origin.Normalize()

	var mv *models.Movement
	err := s.run(ctx, string(enums.MovementTransfer), []balances.Key{from, to}, func(ctx context.Context, tx *gorm.DB) error {
		out, err := s.decrease(ctx, tx, from, in.Quantity, false)
		if err != nil {
			return err
		}
		into, err := s.increase(ctx, tx, to, in.Quantity, out.unitCost)
		if err != nil {
			return err
		}
		now := s.nowUTC()
		fromLoc, toLoc := in.FromLocationID, in.ToLocationID
		mv = &models.Movement{
			TenantID:              in.TenantID,
			ItemID:                in.ItemID,
			Type:                  enums.MovementTransfer,
			Quantity:              in.Quantity,
			UnitCost:              out.unitCost,
			AppliedUnitCost:       out.unitCost,
			EstimatedValue:        in.Quantity.Mul(out.unitCost),
			OriginLocationID:      &fromLoc,
			DestinationLocationID: &toLoc,
			ApprovalStatus:        enums.ApprovalApproved,
			Applied:               true,
			AppliedAt:             &now,
			OriginKind:            origin.Kind,
			OriginRef:             origin.RefPtr(),
			Actor:                 in.Actor,
			Reason:                strPtr(in.Reason),
		}
		if err := s.persist(ctx, tx, mv, enums.AuditRegular, nil, out, into); err != nil {
			return err
		}
		s.consult(ctx, tx, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logRecorded(ctx, mv)
	return mv, nil
}

// RecordAdjustment records an inventory count correction.
func (s *Service) RecordAdjustment(ctx context.Context, in AdjustmentInput) (*models.Movement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	key := balances.NewKey(in.TenantID, in.ItemID, in.LocationID)
	typ := enums.MovementAdjustPos
	if in.Sign == AdjustNegative {
		typ = enums.MovementAdjustNeg
	}

	var mv *models.Movement
	err := s.run(ctx, string(typ), []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		var (
			leg legResult
			err error
		)
		loc := in.LocationID
		mv = &models.Movement{
			TenantID:       in.TenantID,
			ItemID:         in.ItemID,
			Type:           typ,
			Quantity:       in.Quantity,
			ApprovalStatus: enums.ApprovalApproved,
			Applied:        true,
			OriginKind:     enums.OriginManual,
			Actor:          in.Actor,
			Reason:         strPtr(in.Reason),
		}
		if typ == enums.MovementAdjustPos {
			cost := in.UnitCost
			if cost.IsZero() {
				bal, gerr := s.balances.GetOrCreate(ctx, tx, key)
				if gerr != nil {
					return gerr
				}
				cost = bal.AverageCost
			}
			leg, err = s.increase(ctx, tx, key, in.Quantity, cost)
			mv.DestinationLocationID = &loc
		} else {
			leg, err = s.decrease(ctx, tx, key, in.Quantity, false)
			mv.OriginLocationID = &loc
		}
		if err != nil {
			return err
		}
		now := s.nowUTC()
		mv.UnitCost = leg.unitCost
		mv.AppliedUnitCost = leg.unitCost
		mv.EstimatedValue = in.Quantity.Mul(leg.unitCost)
		mv.AppliedAt = &now
		if err := s.persist(ctx, tx, mv, enums.AuditRegular, nil, leg); err != nil {
			return err
		}
		if typ == enums.MovementAdjustNeg {
			s.consult(ctx, tx, leg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logRecorded(ctx, mv)
	return mv, nil
}

// ReserveTx raises the reserved hold of a balance and records a RESERVE
// entry. The caller must hold the balance lock.
func (s *Service) ReserveTx(ctx context.Context, tx *gorm.DB, in HoldInput) (*models.Movement, error) {
	return s.holdTx(ctx, tx, enums.MovementReserve, in)
}

// ReleaseTx lowers the reserved hold of a balance and records a
// RELEASE_RESERVE entry. The caller must hold the balance lock.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, in HoldInput) (*models.Movement, error) {
	return s.holdTx(ctx, tx, enums.MovementReleaseReserve, in)
}

func (s *Service) holdTx(ctx context.Context, tx *gorm.DB, typ enums.MovementType, in HoldInput) (*models.Movement, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	key := balances.NewKey(in.TenantID, in.ItemID, in.LocationID)
	delta := in.Quantity
	if typ == enums.MovementReleaseReserve {
		delta = delta.Neg()
	}
	leg, err := s.adjustReserved(ctx, tx, key, delta)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			s.metrics.IncStockRejection(string(typ))
		}
		return nil, err
	}
	origin := in.Origin.Normalize()
	now := s.nowUTC()
	loc := in.LocationID
	mv := &models.Movement{
		TenantID:         in.TenantID,
		ItemID:           in.ItemID,
		Type:             typ,
		Quantity:         in.Quantity,
		UnitCost:         leg.unitCost,
		AppliedUnitCost:  leg.unitCost,
		EstimatedValue:   in.Quantity.Mul(leg.unitCost),
		OriginLocationID: &loc,
		ApprovalStatus:   enums.ApprovalApproved,
		Applied:          true,
		AppliedAt:        &now,
		OriginKind:       origin.Kind,
		OriginRef:        origin.RefPtr(),
		Actor:            in.Actor,
		Reason:           strPtr(in.Reason),
	}
	notes := map[string]string{"reservation_id": in.ReservationID.String()}
	if err := s.persist(ctx, tx, mv, enums.AuditReservation, notes, leg); err != nil {
		return nil, err
	}
	s.logRecorded(ctx, mv)
	return mv, nil
}

func unitValue(qty, cost decimal.Decimal) decimal.Decimal {
	return qty.Mul(cost).Round(6)
}
