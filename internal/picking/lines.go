package picking

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/internal/reservations"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/types"
	"github.com/angelmondragon/stockledger/pkg/validation"
)

// PickItem records a picked quantity on a PENDING or PARTIAL line of an
// IN_PREP order and holds it with a reservation.
func (s *Service) PickItem(ctx context.Context, in PickInput) (*models.SeparationItem, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	lineKey := func(order *models.SeparationOrder) []balances.Key {
		line, err := findLine(order, in.LineID)
		if err != nil {
			return nil
		}
		return []balances.Key{balances.NewKey(order.TenantID, line.ItemID, line.LocationID)}
	}
	var out *models.SeparationItem
	order, err := s.withOrder(ctx, in.TenantID, in.OrderID, lineKey, func(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error {
		line, err := s.editableLine(order, in.LineID)
		if err != nil {
			return err
		}
		remaining := line.Remaining()
		if in.Quantity.GreaterThan(remaining) {
			return pkgerrors.Invalid("quantity exceeds the remaining requested quantity").
				WithDetails(map[string]string{"quantity": in.Quantity.String(), "remaining": remaining.String()})
		}

		res, err := s.reservations.CreateTx(ctx, tx, reservations.CreateInput{
			TenantID:   order.TenantID,
			ItemID:     line.ItemID,
			LocationID: line.LocationID,
			Quantity:   in.Quantity,
			Origin:     types.NewOriginRef(enums.OriginPickingOrder, order.ID.String()),
			ExpiresAt:  order.ExpiresAt,
			Actor:      in.Actor,
		})
		if err != nil {
			return err
		}

		now := s.nowUTC()
		actor := in.Actor
		line.ReservationID = &res.ID
		line.QuantityPicked = line.QuantityPicked.Add(in.Quantity)
		line.PickedBy = &actor
		line.PickedAt = &now
		line.Status = enums.SeparationItemPartial
		if line.QuantityPicked.Equal(line.QuantityRequested) {
			line.Status = enums.SeparationItemPicked
		}
		out = line
		return s.saveLine(ctx, tx, order, line)
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(ctx, order, "separation line picked")
	return out, nil
}

// MarkUnavailable flags a line that cannot be picked. Stock already picked
// on the line stays reserved for the order.
func (s *Service) MarkUnavailable(ctx context.Context, in UnavailableInput) (*models.SeparationItem, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(in.Note)
	if err := validation.MinLength("note", note, s.cfg.UnavailableNoteMinLength); err != nil {
		return nil, err
	}
	var out *models.SeparationItem
	order, err := s.withOrder(ctx, in.TenantID, in.OrderID, nil, func(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error {
		line, err := s.editableLine(order, in.LineID)
		if err != nil {
			return err
		}
		now := s.nowUTC()
		actor := in.Actor
		line.Status = enums.SeparationItemUnavailable
		line.UnavailableNote = &note
		line.PickedBy = &actor
		line.PickedAt = &now
		out = line
		return s.saveLine(ctx, tx, order, line)
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(ctx, order, "separation line unavailable")
	return out, nil
}

func (s *Service) editableLine(order *models.SeparationOrder, lineID uuid.UUID) (*models.SeparationItem, error) {
	if order.Status != enums.SeparationInPrep {
		return nil, pkgerrors.InvalidState("separation order is not in preparation").
			WithDetails(map[string]string{"status": string(order.Status)})
	}
	line, err := findLine(order, lineID)
	if err != nil {
		return nil, err
	}
	if line.Status != enums.SeparationItemPending && line.Status != enums.SeparationItemPartial {
		return nil, pkgerrors.InvalidState("separation line is already final").
			WithDetails(map[string]string{"status": string(line.Status)})
	}
	return line, nil
}
