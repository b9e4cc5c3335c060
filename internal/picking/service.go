// Package picking drives separation orders through OPEN, IN_PREP, READY and
// PICKED_UP, holding picked stock with reservations until pickup.
package picking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/internal/reservations"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
)

// Reservations is the transactional surface of the reservation manager.
type Reservations interface {
	CreateTx(ctx context.Context, tx *gorm.DB, in reservations.CreateInput) (*models.Reservation, error)
	ConsumeTx(ctx context.Context, tx *gorm.DB, in reservations.ConsumeInput) (*models.Reservation, error)
	CancelTx(ctx context.Context, tx *gorm.DB, in reservations.CloseInput) (*models.Reservation, error)
	ExpireTx(ctx context.Context, tx *gorm.DB, in reservations.CloseInput) (*models.Reservation, error)
}

// EventEmitter stores outbound events in the caller's transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Config holds the picking rules. UrgentCap 0 disables the cap.
type Config struct {
	UrgentCap                int
	UnavailableNoteMinLength int
}

// ServiceParams wires the picking orchestrator.
type ServiceParams struct {
	DB           balances.Database
	Balances     *balances.Store
	Reservations Reservations
	Events       EventEmitter
	Logger       *logger.Logger
	Config       Config
}

// Service is the picking orchestrator.
type Service struct {
	db           balances.Database
	balances     *balances.Store
	reservations Reservations
	events       EventEmitter
	logg         *logger.Logger
	cfg          Config
	now          func() time.Time
}

// NewService builds the orchestrator.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Balances == nil {
		return nil, fmt.Errorf("balance store required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Config.UrgentCap < 0 {
		return nil, fmt.Errorf("urgent cap must be non-negative")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:           params.DB,
		balances:     params.Balances,
		reservations: params.Reservations,
		events:       params.Events,
		logg:         logg,
		cfg:          params.Config,
		now:          time.Now,
	}, nil
}

func orderLockName(id uuid.UUID) string {
	return "separation:" + id.String()
}

func urgentLockName(tenantID string) string {
	return "separation-urgent:" + tenantID
}

// orderTxFunc runs with the order lock, the balance locks returned by keys and
// an open transaction. order was loaded under the order lock.
type orderTxFunc func(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error

// withOrder serializes work on one order. The order lock is always taken
// before balance locks.
func (s *Service) withOrder(ctx context.Context, tenantID string, orderID uuid.UUID, keys func(*models.SeparationOrder) []balances.Key, fn orderTxFunc) (*models.SeparationOrder, error) {
	release, err := s.balances.LockNames(ctx, orderLockName(orderID))
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.load(ctx, s.db.DB(), tenantID, orderID)
	if err != nil {
		return nil, err
	}
	var balanceKeys []balances.Key
	if keys != nil {
		balanceKeys = keys(order)
	}
	if err := s.balances.WithLocked(ctx, balanceKeys, func(ctx context.Context, tx *gorm.DB) error {
		return fn(ctx, tx, order)
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) load(ctx context.Context, conn *gorm.DB, tenantID string, orderID uuid.UUID) (*models.SeparationOrder, error) {
	var order models.SeparationOrder
	err := conn.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "separation order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load separation order: %w", err)
	}
	return &order, nil
}

// GetOrder returns an order with its lines and messages.
func (s *Service) GetOrder(ctx context.Context, tenantID string, orderID uuid.UUID) (*models.SeparationOrder, error) {
	return s.load(ctx, s.db.DB(), tenantID, orderID)
}

// ListExpired returns non-terminal orders whose expires_at is before cutoff.
func (s *Service) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.SeparationOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.SeparationOrder
	err := s.db.DB().WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]enums.SeparationOrderStatus{enums.SeparationOpen, enums.SeparationInPrep, enums.SeparationReady}, cutoff.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expired separation orders: %w", err)
	}
	return rows, nil
}

func findLine(order *models.SeparationOrder, lineID uuid.UUID) (*models.SeparationItem, error) {
	for i := range order.Items {
		if order.Items[i].ID == lineID {
			return &order.Items[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "separation line not found")
}

// recount rewrites the order counters from its lines.
func recount(order *models.SeparationOrder) {
	order.TotalItems = len(order.Items)
	order.PendingItems = 0
	order.PickedItems = 0
	order.PartialItems = 0
	order.UnavailableItems = 0
	for _, line := range order.Items {
		switch line.Status {
		case enums.SeparationItemPending:
			order.PendingItems++
		case enums.SeparationItemPicked:
			order.PickedItems++
		case enums.SeparationItemPartial:
			order.PartialItems++
		case enums.SeparationItemUnavailable:
			order.UnavailableItems++
		}
	}
}

func (s *Service) saveOrder(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder) error {
	recount(order)
	if err := tx.WithContext(ctx).Omit(clause.Associations).Save(order).Error; err != nil {
		return fmt.Errorf("save separation order: %w", err)
	}
	return nil
}

func (s *Service) saveLine(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder, line *models.SeparationItem) error {
	if err := tx.WithContext(ctx).Save(line).Error; err != nil {
		return fmt.Errorf("save separation line: %w", err)
	}
	if err := s.saveOrder(ctx, tx, order); err != nil {
		return err
	}
	note := ""
	if line.UnavailableNote != nil {
		note = *line.UnavailableNote
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPickingItemUpdated,
		AggregateType: enums.AggregateSeparationOrder,
		AggregateID:   order.ID,
		TenantID:      order.TenantID,
		Actor:         deref(line.PickedBy),
		Data: payloads.PickingItemUpdatedEvent{
			OrderID:           order.ID,
			LineID:            line.ID,
			ItemID:            line.ItemID,
			Status:            line.Status,
			QuantityRequested: line.QuantityRequested,
			QuantityPicked:    line.QuantityPicked,
			Note:              note,
		},
	})
}

func canTransition(from, to enums.SeparationOrderStatus, allowPartial bool) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case enums.SeparationCancelled, enums.SeparationExpired:
		return true
	case enums.SeparationInPrep:
		return from == enums.SeparationOpen
	case enums.SeparationReady:
		return from == enums.SeparationInPrep
	case enums.SeparationPickedUp:
		return from == enums.SeparationReady || (allowPartial && from == enums.SeparationInPrep)
	}
	return false
}

// transition moves the order to status, persists it and emits
// picking.status_changed.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder, to enums.SeparationOrderStatus, actor, reason string) error {
	from := order.Status
	if !canTransition(from, to, order.AllowPartial) {
		return pkgerrors.InvalidState("separation order cannot move from " + string(from) + " to " + string(to)).
			WithDetails(map[string]string{"from": string(from), "to": string(to)})
	}
	now := s.nowUTC()
	order.Status = to
	switch to {
	case enums.SeparationInPrep:
		order.Operator = &actor
		order.PreparationStartedAt = &now
	case enums.SeparationReady:
		order.CompletedAt = &now
	case enums.SeparationPickedUp:
		order.PickedUpAt = &now
		order.ClosedAt = &now
	case enums.SeparationCancelled, enums.SeparationExpired:
		order.ClosedAt = &now
		if reason != "" {
			order.CloseReason = &reason
		}
	}
	if err := s.saveOrder(ctx, tx, order); err != nil {
		return err
	}
	return s.emitStatus(ctx, tx, order, from, actor, reason, now)
}

func (s *Service) emitStatus(ctx context.Context, tx *gorm.DB, order *models.SeparationOrder, from enums.SeparationOrderStatus, actor, reason string, at time.Time) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPickingStatusChanged,
		AggregateType: enums.AggregateSeparationOrder,
		AggregateID:   order.ID,
		TenantID:      order.TenantID,
		Actor:         actor,
		Data: payloads.PickingStatusChangedEvent{
			OrderID:  order.ID,
			Code:     order.Code,
			From:     from,
			To:       order.Status,
			Priority: order.Priority,
			Reason:   reason,
			At:       at,
		},
	})
}

func (s *Service) logStatus(ctx context.Context, order *models.SeparationOrder, msg string) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id": order.TenantID,
		"order_id":  order.ID.String(),
		"code":      order.Code,
		"status":    string(order.Status),
		"pending":   order.PendingItems,
		"picked":    order.PickedItems,
	})
	s.logg.Info(logCtx, msg)
}

func (s *Service) nowUTC() time.Time {
	return s.now().UTC()
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
