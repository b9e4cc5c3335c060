// Package reservations manages soft holds on balances. A hold raises the
// balance's reserved quantity without moving stock; consuming it turns the
// held quantity into an exit.
package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger/pkg/types"
	"github.com/angelmondragon/stockledger/pkg/validation"
)

// Ledger is the part of the movement ledger reservations write through. All
// methods run inside the caller's transaction with the balance locked.
type Ledger interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, in movements.HoldInput) (*models.Movement, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, in movements.HoldInput) (*models.Movement, error)
	RecordExitTx(ctx context.Context, tx *gorm.DB, in movements.ExitInput, fromReserved bool) (*models.Movement, error)
}

// EventEmitter stores outbound events in the caller's transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateInput asks for a hold. ExpiresAt defaults to now plus the
// configured TTL; separation order holds get no default.
type CreateInput struct {
	TenantID   string          `json:"tenant_id" validate:"required"`
	ItemID     uuid.UUID       `json:"item_id" validate:"required"`
	LocationID uuid.UUID       `json:"location_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	Origin     types.OriginRef `json:"origin"`
	ExpiresAt  *time.Time      `json:"expires_at"`
	Actor      string          `json:"actor" validate:"required"`
}

// ConsumeInput converts held quantity into an exit. A nil Quantity consumes
// everything still held.
type ConsumeInput struct {
	TenantID      string           `json:"tenant_id" validate:"required"`
	ReservationID uuid.UUID        `json:"reservation_id" validate:"required"`
	Quantity      *decimal.Decimal `json:"quantity"`
	Reason        string           `json:"reason"`
	Actor         string           `json:"actor" validate:"required"`
}

// CloseInput cancels or expires a hold.
type CloseInput struct {
	TenantID      string    `json:"tenant_id" validate:"required"`
	ReservationID uuid.UUID `json:"reservation_id" validate:"required"`
	Reason        string    `json:"reason"`
	Actor         string    `json:"actor" validate:"required"`
}

// ServiceParams wires the reservation manager.
type ServiceParams struct {
	DB         balances.Database
	Balances   *balances.Store
	Ledger     Ledger
	Events     EventEmitter
	Logger     *logger.Logger
	DefaultTTL time.Duration
}

// Service is the reservation manager.
type Service struct {
	db       balances.Database
	balances *balances.Store
	ledger   Ledger
	events   EventEmitter
	logg     *logger.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewService builds the reservation manager.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Balances == nil {
		return nil, fmt.Errorf("balance store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:       params.DB,
		balances: params.Balances,
		ledger:   params.Ledger,
		events:   params.Events,
		logg:     logg,
		ttl:      params.DefaultTTL,
		now:      time.Now,
	}, nil
}

// Create places a hold, or grows the ACTIVE hold with the same item,
// location and origin.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Reservation, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	key := balances.NewKey(in.TenantID, in.ItemID, in.LocationID)
	var out *models.Reservation
	err := s.balances.WithLocked(ctx, []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		out, err = s.CreateTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out, "reservation created")
	return out, nil
}

// expiryFor picks the deadline of a new or topped-up hold. Holds placed for a
// separation order live as long as the order does and get no default TTL.
func (s *Service) expiryFor(origin types.OriginRef, requested *time.Time) *time.Time {
	if requested != nil {
		at := requested.UTC()
		return &at
	}
	if origin.Kind == enums.OriginPickingOrder {
		return nil
	}
	at := s.nowUTC().Add(s.ttl)
	return &at
}

func validateCreate(in CreateInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if err := validation.PositiveQuantity("quantity", in.Quantity); err != nil {
		return err
	}
	return in.Origin.Validate()
}

// CreateTx is Create for callers that already hold the balance lock.
func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, in CreateInput) (*models.Reservation, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	origin := in.Origin.Normalize()

	var existing models.Reservation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND item_id = ? AND location_id = ? AND origin_kind = ? AND origin_ref = ? AND status = ?",
			in.TenantID, in.ItemID, in.LocationID, origin.Kind, origin.ID, enums.ReservationActive).
		First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find reservation: %w", err)
	}

	expires := s.expiryFor(origin, in.ExpiresAt)

	res := &existing
	if !found {
		res = &models.Reservation{
			ID:         uuid.New(),
			TenantID:   in.TenantID,
			ItemID:     in.ItemID,
			LocationID: in.LocationID,
			OriginKind: origin.Kind,
			OriginRef:  origin.ID,
			Quantity:   decimal.Zero,
			Consumed:   decimal.Zero,
			Status:     enums.ReservationActive,
			Actor:      in.Actor,
		}
	}

	if _, err := s.ledger.ReserveTx(ctx, tx, movements.HoldInput{
		TenantID:      in.TenantID,
		ItemID:        in.ItemID,
		LocationID:    in.LocationID,
		Quantity:      in.Quantity,
		Actor:         in.Actor,
		Origin:        origin,
		ReservationID: res.ID,
	}); err != nil {
		return nil, err
	}

	res.Quantity = res.Quantity.Add(in.Quantity)
	if expires != nil && (res.ExpiresAt == nil || expires.After(*res.ExpiresAt)) {
		res.ExpiresAt = expires
	}
	if found {
		err = tx.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", res.ID).
			Updates(map[string]any{"quantity": res.Quantity, "expires_at": res.ExpiresAt}).Error
	} else {
		err = tx.WithContext(ctx).Create(res).Error
	}
	if err != nil {
		return nil, fmt.Errorf("save reservation: %w", err)
	}
	if err := s.emit(ctx, tx, enums.EventReservationCreated, res, in.Quantity, in.Actor, ""); err != nil {
		return nil, err
	}
	return res, nil
}

// Consume turns held quantity into an EXIT movement.
func (s *Service) Consume(ctx context.Context, in ConsumeInput) (*models.Reservation, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	key, err := s.keyOf(ctx, in.TenantID, in.ReservationID)
	if err != nil {
		return nil, err
	}
	var out *models.Reservation
	err = s.balances.WithLocked(ctx, []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		out, err = s.ConsumeTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out, "reservation consumed")
	return out, nil
}

// ConsumeTx is Consume for callers that already hold the balance lock.
func (s *Service) ConsumeTx(ctx context.Context, tx *gorm.DB, in ConsumeInput) (*models.Reservation, error) {
	res, err := s.lockActive(ctx, tx, in.TenantID, in.ReservationID)
	if err != nil {
		return nil, err
	}
	qty := res.Quantity
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	if err := validation.PositiveQuantity("quantity", qty); err != nil {
		return nil, err
	}
	if qty.GreaterThan(res.Quantity) {
		return nil, pkgerrors.Invalid("quantity exceeds the reserved amount").
			WithDetails(map[string]string{"quantity": qty.String(), "reserved": res.Quantity.String()})
	}

	origin := types.NewOriginRef(res.OriginKind, res.OriginRef)
	if _, err := s.ledger.RecordExitTx(ctx, tx, movements.ExitInput{
		TenantID:   res.TenantID,
		ItemID:     res.ItemID,
		LocationID: res.LocationID,
		Quantity:   qty,
		Actor:      in.Actor,
		Reason:     in.Reason,
		Origin:     origin,
	}, true); err != nil {
		return nil, err
	}

	res.Quantity = res.Quantity.Sub(qty)
	res.Consumed = res.Consumed.Add(qty)
	updates := map[string]any{"quantity": res.Quantity, "consumed": res.Consumed}
	if res.Quantity.IsZero() {
		now := s.nowUTC()
		res.Status = enums.ReservationConsumed
		res.ClosedAt = &now
		updates["status"] = res.Status
		updates["closed_at"] = now
		if in.Reason != "" {
			reason := in.Reason
			res.CloseReason = &reason
			updates["close_reason"] = reason
		}
	}
	if err := tx.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", res.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}
	if err := s.emit(ctx, tx, enums.EventReservationConsumed, res, qty, in.Actor, in.Reason); err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel releases the remaining hold. Only ACTIVE holds can be cancelled.
func (s *Service) Cancel(ctx context.Context, in CloseInput) (*models.Reservation, error) {
	return s.close(ctx, in, enums.ReservationCancelled, nil)
}

// Expire releases the remaining hold of an ACTIVE reservation whose time has
// run out. It refuses holds that are not yet due and holds owned by a
// separation order, which expire with their order.
func (s *Service) Expire(ctx context.Context, in CloseInput) (*models.Reservation, error) {
	if in.Reason == "" {
		in.Reason = "expired"
	}
	return s.close(ctx, in, enums.ReservationExpired, s.checkDue)
}

func (s *Service) checkDue(res *models.Reservation) error {
	if res.OriginKind == enums.OriginPickingOrder {
		return pkgerrors.InvalidState("reservation expires with its separation order")
	}
	if res.ExpiresAt == nil || !res.ExpiresAt.Before(s.nowUTC()) {
		return pkgerrors.InvalidState("reservation has not expired")
	}
	return nil
}

// CancelTx is Cancel for callers that already hold the balance lock.
func (s *Service) CancelTx(ctx context.Context, tx *gorm.DB, in CloseInput) (*models.Reservation, error) {
	return s.closeTx(ctx, tx, in, enums.ReservationCancelled, nil)
}

// ExpireTx is Expire for callers that already hold the balance lock.
func (s *Service) ExpireTx(ctx context.Context, tx *gorm.DB, in CloseInput) (*models.Reservation, error) {
	if in.Reason == "" {
		in.Reason = "expired"
	}
	return s.closeTx(ctx, tx, in, enums.ReservationExpired, nil)
}

func (s *Service) close(ctx context.Context, in CloseInput, status enums.ReservationStatus, guard func(*models.Reservation) error) (*models.Reservation, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	key, err := s.keyOf(ctx, in.TenantID, in.ReservationID)
	if err != nil {
		return nil, err
	}
	var out *models.Reservation
	err = s.balances.WithLocked(ctx, []balances.Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		out, err = s.closeTx(ctx, tx, in, status, guard)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out, "reservation "+string(status))
	return out, nil
}

func (s *Service) closeTx(ctx context.Context, tx *gorm.DB, in CloseInput, status enums.ReservationStatus, guard func(*models.Reservation) error) (*models.Reservation, error) {
	res, err := s.lockActive(ctx, tx, in.TenantID, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(res); err != nil {
			return nil, err
		}
	}
	released := res.Quantity
	if released.IsPositive() {
		if _, err := s.ledger.ReleaseTx(ctx, tx, movements.HoldInput{
			TenantID:      res.TenantID,
			ItemID:        res.ItemID,
			LocationID:    res.LocationID,
			Quantity:      released,
			Actor:         in.Actor,
			Reason:        in.Reason,
			Origin:        types.NewOriginRef(res.OriginKind, res.OriginRef),
			ReservationID: res.ID,
		}); err != nil {
			return nil, err
		}
	}
	now := s.nowUTC()
	res.Status = status
	res.Quantity = decimal.Zero
	res.ClosedAt = &now
	updates := map[string]any{"status": status, "quantity": decimal.Zero, "closed_at": now}
	if in.Reason != "" {
		reason := in.Reason
		res.CloseReason = &reason
		updates["close_reason"] = reason
	}
	if err := tx.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", res.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("close reservation: %w", err)
	}
	event := enums.EventReservationCancelled
	if status == enums.ReservationExpired {
		event = enums.EventReservationExpired
	}
	if err := s.emit(ctx, tx, event, res, released, in.Actor, in.Reason); err != nil {
		return nil, err
	}
	return res, nil
}

// Get loads one reservation of the tenant.
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	err := s.db.DB().WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

// ListExpired returns ACTIVE reservations whose expires_at is before cutoff,
// oldest first, across tenants. Separation order holds are left to the order
// lifecycle.
func (s *Service) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Reservation
	err := s.db.DB().WithContext(ctx).
		Where("status = ? AND origin_kind <> ? AND expires_at IS NOT NULL AND expires_at < ?",
			enums.ReservationActive, enums.OriginPickingOrder, cutoff.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return rows, nil
}

// ListActiveByOrigin returns the ACTIVE holds placed for one origin document.
func (s *Service) ListActiveByOrigin(ctx context.Context, tenantID string, origin types.OriginRef) ([]models.Reservation, error) {
	origin = origin.Normalize()
	var rows []models.Reservation
	err := s.db.DB().WithContext(ctx).
		Where("tenant_id = ? AND origin_kind = ? AND origin_ref = ? AND status = ?", tenantID, origin.Kind, origin.ID, enums.ReservationActive).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (s *Service) keyOf(ctx context.Context, tenantID string, id uuid.UUID) (balances.Key, error) {
	res, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return balances.Key{}, err
	}
	return balances.NewKey(res.TenantID, res.ItemID, res.LocationID), nil
}

func (s *Service) lockActive(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	if res.Status != enums.ReservationActive {
		return nil, pkgerrors.InvalidState("reservation is not active").
			WithDetails(map[string]string{"status": string(res.Status)})
	}
	return &res, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, res *models.Reservation, qty decimal.Decimal, actor, reason string) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateReservation,
		AggregateID:   res.ID,
		TenantID:      res.TenantID,
		Actor:         actor,
		Data: payloads.ReservationEvent{
			ReservationID: res.ID,
			ItemID:        res.ItemID,
			LocationID:    res.LocationID,
			Quantity:      qty,
			Remaining:     res.Quantity,
			Status:        res.Status,
			OriginKind:    res.OriginKind,
			OriginRef:     res.OriginRef,
			Reason:        reason,
		},
	})
}

func (s *Service) logTransition(ctx context.Context, res *models.Reservation, msg string) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id":      res.TenantID,
		"reservation_id": res.ID.String(),
		"status":         string(res.Status),
		"remaining":      res.Quantity.String(),
	})
	s.logg.Info(logCtx, msg)
}

func (s *Service) nowUTC() time.Time {
	return s.now().UTC()
}
