package picking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/internal/reservations"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger/pkg/validation"
)

// CreateSeparationOrder opens a new order in OPEN. URGENT orders are capped
// per tenant across OPEN and IN_PREP orders.
func (s *Service) CreateSeparationOrder(ctx context.Context, in CreateInput) (*models.SeparationOrder, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	for i, line := range in.Lines {
		if err := validation.PositiveQuantity(fmt.Sprintf("lines[%d].quantity", i), line.Quantity); err != nil {
			return nil, err
		}
	}
	if in.Priority == "" {
		in.Priority = enums.PriorityNormal
	}
	if !in.Priority.IsValid() {
		return nil, pkgerrors.Invalid("unknown priority").WithDetails(map[string]string{"priority": string(in.Priority)})
	}
	if err := in.Origin.Validate(); err != nil {
		return nil, err
	}

	if in.Priority == enums.PriorityUrgent && s.cfg.UrgentCap > 0 {
		release, err := s.balances.LockNames(ctx, urgentLockName(in.TenantID))
		if err != nil {
			return nil, err
		}
		defer release()
	}

	origin := in.Origin.Normalize()
	order := &models.SeparationOrder{
		ID:           uuid.New(),
		TenantID:     in.TenantID,
		Code:         strings.TrimSpace(in.Code),
		Priority:     in.Priority,
		Status:       enums.SeparationOpen,
		AllowPartial: in.AllowPartial,
		OriginKind:   origin.Kind,
		OriginRef:    origin.RefPtr(),
		RequestedBy:  in.RequestedBy,
	}
	if order.Code == "" {
		order.Code = "SEP-" + strings.ToUpper(strings.ReplaceAll(order.ID.String(), "-", "")[:10])
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		order.Notes = &notes
	}
	if in.ExpiresAt != nil {
		expires := in.ExpiresAt.UTC()
		order.ExpiresAt = &expires
	}
	for i, line := range in.Lines {
		order.Items = append(order.Items, models.SeparationItem{
			ID:                uuid.New(),
			OrderID:           order.ID,
			TenantID:          in.TenantID,
			LineNo:            i + 1,
			ItemID:            line.ItemID,
			LocationID:        line.LocationID,
			QuantityRequested: line.Quantity,
			QuantityPicked:    decimal.Zero,
			Status:            enums.SeparationItemPending,
		})
	}
	recount(order)

	err := s.db.WithTx(context.WithoutCancel(ctx), func(tx *gorm.DB) error {
		if in.Priority == enums.PriorityUrgent && s.cfg.UrgentCap > 0 {
			var open int64
			if err := tx.Model(&models.SeparationOrder{}).
				Where("tenant_id = ? AND priority = ? AND status IN ?", in.TenantID, enums.PriorityUrgent,
					[]enums.SeparationOrderStatus{enums.SeparationOpen, enums.SeparationInPrep}).
				Count(&open).Error; err != nil {
				return fmt.Errorf("count urgent orders: %w", err)
			}
			if open >= int64(s.cfg.UrgentCap) {
				return pkgerrors.InvalidState("urgent order cap reached").
					WithDetails(map[string]string{"cap": fmt.Sprint(s.cfg.UrgentCap), "open": fmt.Sprint(open)})
			}
		}
		var taken int64
		if err := tx.Model(&models.SeparationOrder{}).
			Where("tenant_id = ? AND code = ?", in.TenantID, order.Code).
			Count(&taken).Error; err != nil {
			return fmt.Errorf("check order code: %w", err)
		}
		if taken > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "separation order code already in use").
				WithDetails(map[string]string{"code": order.Code})
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("create separation order: %w", err)
		}
		return s.emitStatus(ctx, tx, order, "", in.RequestedBy, "", s.nowUTC())
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(ctx, order, "separation order created")
	return order, nil
}

// StartPreparation moves an OPEN order to IN_PREP and records the operator.
func (s *Service) StartPreparation(ctx context.Context, ref OrderRef) (*models.SeparationOrder, error) {
	if err := validation.Struct(ref); err != nil {
		return nil, err
	}
	order, err := s.withOrder(ctx, ref.TenantID, ref.OrderID, nil, func(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error {
		return s.transition(ctx, tx, order, enums.SeparationInPrep, ref.Actor, ref.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(ctx, order, "separation preparation started")
	return order, nil
}

// CompleteOrder moves IN_PREP to READY once no line is PENDING. Without
// allow_partial every line must be PICKED.
func (s *Service) CompleteOrder(ctx context.Context, ref OrderRef) (*models.SeparationOrder, error) {
	if err := validation.Struct(ref); err != nil {
		return nil, err
	}
	order, err := s.withOrder(ctx, ref.TenantID, ref.OrderID, nil, func(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error {
		if err := readyToClose(order); err != nil {
			return err
		}
		return s.transition(ctx, tx, order, enums.SeparationReady, ref.Actor, ref.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(ctx, order, "separation order ready")
	return order, nil
}

func readyToClose(order *models.SeparationOrder) error {
	recount(order)
	if order.PendingItems > 0 {
		return pkgerrors.InvalidState("separation order has pending lines").
			WithDetails(map[string]string{"pending": fmt.Sprint(order.PendingItems)})
	}
	if !order.AllowPartial && order.PickedItems != order.TotalItems {
		return pkgerrors.InvalidState("separation order does not allow partial completion").
			WithDetails(map[string]string{
				"partial":     fmt.Sprint(order.PartialItems),
				"unavailable": fmt.Sprint(order.UnavailableItems),
			})
	}
	return nil
}

// RegisterPickup closes a READY order, or an IN_PREP order that allows
// partial delivery, and consumes every reservation held for it.
func (s *Service) RegisterPickup(ctx context.Context, ref OrderRef) (*models.SeparationOrder, error) {
	if err := validation.Struct(ref); err != nil {
		return nil, err
	}
	order, err := s.withOrder(ctx, ref.TenantID, ref.OrderID, heldKeys, func(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error {
		if !canTransition(order.Status, enums.SeparationPickedUp, order.AllowPartial) {
			return pkgerrors.InvalidState("separation order is not ready for pickup").
				WithDetails(map[string]string{"status": string(order.Status)})
		}
		if order.Status == enums.SeparationInPrep {
			if err := readyToClose(order); err != nil {
				return err
			}
		}
		reason := "pickup of " + order.Code
		for _, id := range reservationIDs(order) {
			if _, err := s.reservations.ConsumeTx(ctx, tx, reservations.ConsumeInput{
				TenantID:      order.TenantID,
				ReservationID: id,
				Reason:        reason,
				Actor:         ref.Actor,
			}); err != nil {
				return err
			}
		}
		return s.transition(ctx, tx, order, enums.SeparationPickedUp, ref.Actor, ref.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(ctx, order, "separation order picked up")
	return order, nil
}

// CancelOrder closes a non-terminal order and releases its reservations.
func (s *Service) CancelOrder(ctx context.Context, ref OrderRef) (*models.SeparationOrder, error) {
	return s.closeOrder(ctx, ref, enums.SeparationCancelled)
}

// ExpireOrder closes a non-terminal order whose time ran out and expires its
// reservations.
func (s *Service) ExpireOrder(ctx context.Context, ref OrderRef) (*models.SeparationOrder, error) {
	if ref.Reason == "" {
		ref.Reason = "expired"
	}
	return s.closeOrder(ctx, ref, enums.SeparationExpired)
}

func (s *Service) closeOrder(ctx context.Context, ref OrderRef, status enums.SeparationOrderStatus) (*models.SeparationOrder, error) {
	if err := validation.Struct(ref); err != nil {
		return nil, err
	}
	order, err := s.withOrder(ctx, ref.TenantID, ref.OrderID, heldKeys, func(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error {
		if order.Status.IsTerminal() {
			return pkgerrors.InvalidState("separation order is already closed").
				WithDetails(map[string]string{"status": string(order.Status)})
		}
		for _, id := range reservationIDs(order) {
			in := reservations.CloseInput{TenantID: order.TenantID, ReservationID: id, Reason: ref.Reason, Actor: ref.Actor}
			var err error
			if status == enums.SeparationExpired {
				_, err = s.reservations.ExpireTx(ctx, tx, in)
			} else {
				_, err = s.reservations.CancelTx(ctx, tx, in)
			}
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
				return err
			}
		}
		for i := range order.Items {
			line := &order.Items[i]
			if line.Status == enums.SeparationItemPending {
				line.Status = enums.SeparationItemCancelled
				if err := tx.WithContext(ctx).Save(line).Error; err != nil {
					return fmt.Errorf("cancel separation line: %w", err)
				}
			}
		}
		return s.transition(ctx, tx, order, status, ref.Actor, ref.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.logStatus(ctx, order, "separation order "+strings.ToLower(string(status)))
	return order, nil
}

// AddMessage posts a note on the order.
func (s *Service) AddMessage(ctx context.Context, in MessageInput) (*models.SeparationMessage, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, pkgerrors.Invalid("message body is required")
	}
	var msg *models.SeparationMessage
	_, err := s.withOrder(ctx, in.TenantID, in.OrderID, nil, func(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error {
		msg = &models.SeparationMessage{
			ID:       uuid.New(),
			OrderID:  order.ID,
			TenantID: order.TenantID,
			Author:   in.Author,
			Body:     body,
		}
		if err := tx.WithContext(ctx).Create(msg).Error; err != nil {
			return fmt.Errorf("create separation message: %w", err)
		}
		order.Messages = append(order.Messages, *msg)
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPickingMessageReceived,
			AggregateType: enums.AggregateSeparationOrder,
			AggregateID:   order.ID,
			TenantID:      order.TenantID,
			Actor:         in.Author,
			Data:          payloads.PickingMessageAddedEvent{OrderID: order.ID, MessageID: msg.ID, Author: in.Author},
		})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// heldKeys lists the balances of lines that hold a reservation.
func heldKeys(order *models.SeparationOrder) []balances.Key {
	var keys []balances.Key
	for _, line := range order.Items {
		if line.ReservationID != nil {
			keys = append(keys, balances.NewKey(order.TenantID, line.ItemID, line.LocationID))
		}
	}
	return keys
}

func reservationIDs(order *models.SeparationOrder) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, line := range order.Items {
		if line.ReservationID == nil {
			continue
		}
		if _, ok := seen[*line.ReservationID]; ok {
			continue
		}
		seen[*line.ReservationID] = struct{}{}
		ids = append(ids, *line.ReservationID)
	}
	return ids
}
