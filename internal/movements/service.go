// Package movements is the append-only stock ledger. Every operation that
// changes a balance goes through here: it locks the balance keys, values the
// stock, records the entry, chains an audit record and queues events.
package movements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/audit"
	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/internal/replenishment"
	"github.com/angelmondragon/stockledger/internal/valuation"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
)

// AuditAppender chains audit records inside the caller's transaction.
type AuditAppender interface {
	Append(ctx context.Context, tx *gorm.DB, in audit.AppendInput) (*models.AuditRecord, error)
}

// Advisor is consulted after every balance decrease.
type Advisor interface {
	Consult(ctx context.Context, tx *gorm.DB, bal models.Balance) *replenishment.Advisory
}

// EventEmitter stores outbound events in the caller's transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Config holds the ledger business knobs.
type Config struct {
	ApprovalThreshold      decimal.Decimal
	JustificationMinLength int
}

// ServiceParams wires the ledger.
type ServiceParams struct {
	DB        balances.Database
	Balances  *balances.Store
	Valuation *valuation.Engine
	Audit     AuditAppender
	Advisor   Advisor
	Events    EventEmitter
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	Config    Config
}

// Service records movements.
type Service struct {
	db        balances.Database
	balances  *balances.Store
	valuation *valuation.Engine
	audit     AuditAppender
	advisor   Advisor
	events    EventEmitter
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	cfg       Config
	now       func() time.Time
}

// NewService validates dependencies and builds the ledger service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Balances == nil {
		return nil, fmt.Errorf("balance store required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit appender required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	engine := params.Valuation
	if engine == nil {
		engine = valuation.NewEngine(nil, params.Logger)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:        params.DB,
		balances:  params.Balances,
		valuation: engine,
		audit:     params.Audit,
		advisor:   params.Advisor,
		events:    params.Events,
		metrics:   params.Metrics,
		logg:      logg,
		cfg:       params.Config,
		now:       time.Now,
	}, nil
}

// Balances exposes the balance store the ledger mutates.
func (s *Service) Balances() *balances.Store {
	return s.balances
}

// legResult is one balance touched by a movement.
type legResult struct {
	before   models.BalanceSnapshot
	after    models.Balance
	unitCost decimal.Decimal
}

// decrease takes qty out of key. When fromReserved is set the quantity is
// first released from the reserved hold, as reservation consumption does.
func (s *Service) decrease(ctx context.Context, tx *gorm.DB, key balances.Key, qty decimal.Decimal, fromReserved bool) (legResult, error) {
	var res legResult
	bal, err := s.balances.Mutate(ctx, tx, key, func(bal *models.Balance) error {
		res.before = bal.Snapshot()
		if fromReserved {
			if qty.GreaterThan(bal.Reserved) {
				return pkgerrors.InvalidState("reservation exceeds the reserved quantity of the balance")
			}
			bal.Reserved = bal.Reserved.Sub(qty)
		}
		if qty.GreaterThan(bal.Available()) {
			return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
				TenantID:   key.TenantID,
				ItemID:     key.ItemID,
				LocationID: key.LocationID,
				Requested:  qty,
				Available:  bal.Available(),
			})
		}
		cost, err := s.valuation.ApplyExit(ctx, tx, bal, qty)
		if err != nil {
			return err
		}
		res.unitCost = cost
		return nil
	})
	if err != nil {
		return legResult{}, err
	}
	res.after = *bal
	return res, nil
}

// increase adds qty to key at unitCost.
func (s *Service) increase(ctx context.Context, tx *gorm.DB, key balances.Key, qty, unitCost decimal.Decimal) (legResult, error) {
	res := legResult{unitCost: unitCost.Round(valuation.CostScale)}
	bal, err := s.balances.Mutate(ctx, tx, key, func(bal *models.Balance) error {
		res.before = bal.Snapshot()
		return s.valuation.ApplyEntry(ctx, tx, bal, qty, unitCost)
	})
	if err != nil {
		return legResult{}, err
	}
	res.after = *bal
	return res, nil
}

// adjustReserved moves delta in or out of the reserved hold of key.
func (s *Service) adjustReserved(ctx context.Context, tx *gorm.DB, key balances.Key, delta decimal.Decimal) (legResult, error) {
	var res legResult
	bal, err := s.balances.Mutate(ctx, tx, key, func(bal *models.Balance) error {
		res.before = bal.Snapshot()
		if delta.IsPositive() && delta.GreaterThan(bal.Available()) {
			return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
				TenantID:   key.TenantID,
				ItemID:     key.ItemID,
				LocationID: key.LocationID,
				Requested:  delta,
				Available:  bal.Available(),
			})
		}
		bal.Reserved = bal.Reserved.Add(delta)
		res.unitCost = bal.AverageCost
		return nil
	})
	if err != nil {
		return legResult{}, err
	}
	res.after = *bal
	return res, nil
}

// movementAuditView is the after snapshot hashed into the audit chain.
type movementAuditView struct {
	MovementID     string                   `json:"movement_id"`
	Type           enums.MovementType       `json:"type"`
	ItemID         string                   `json:"item_id"`
	Quantity       decimal.Decimal          `json:"quantity"`
	UnitCost       decimal.Decimal          `json:"unit_cost"`
	ApprovalStatus enums.ApprovalStatus     `json:"approval_status"`
	Applied        bool                     `json:"applied"`
	ReversedOf     string                   `json:"reversed_of,omitempty"`
	Actor          string                   `json:"actor"`
	Balances       []models.BalanceSnapshot `json:"balances"`
}

func auditView(mv *models.Movement, after []models.BalanceSnapshot) movementAuditView {
	view := movementAuditView{
		MovementID:     mv.ID.String(),
		Type:           mv.Type,
		ItemID:         mv.ItemID.String(),
		Quantity:       mv.Quantity,
		UnitCost:       mv.AppliedUnitCost,
		ApprovalStatus: mv.ApprovalStatus,
		Applied:        mv.Applied,
		Actor:          mv.Actor,
		Balances:       after,
	}
	if !mv.Applied {
		view.UnitCost = mv.UnitCost
	}
	if mv.ReversedOfID != nil {
		view.ReversedOf = mv.ReversedOfID.String()
	}
	if view.Balances == nil {
		view.Balances = []models.BalanceSnapshot{}
	}
	return view
}

func snapshots(legs ...legResult) (before, after []models.BalanceSnapshot) {
	for _, leg := range legs {
		before = append(before, leg.before)
		after = append(after, leg.after.Snapshot())
	}
	return before, after
}

// persist writes mv with its metadata, appends the audit record and queues
// movement.recorded, all on tx.
func (s *Service) persist(ctx context.Context, tx *gorm.DB, mv *models.Movement, special enums.AuditSpecialType, notes map[string]string, legs ...legResult) error {
	before, after := snapshots(legs...)
	meta, err := json.Marshal(models.MovementMetadata{Before: before, After: after, Notes: notes})
	if err != nil {
		return fmt.Errorf("encode movement metadata: %w", err)
	}
	mv.Metadata = meta
	if err := tx.WithContext(ctx).Create(mv).Error; err != nil {
		return fmt.Errorf("create movement: %w", err)
	}
	return s.chain(ctx, tx, mv, special, before, after)
}

// chain appends the audit record and queues movement.recorded for mv.
func (s *Service) chain(ctx context.Context, tx *gorm.DB, mv *models.Movement, special enums.AuditSpecialType, before, after []models.BalanceSnapshot) error {
	var beforeView any
	if len(before) > 0 {
		beforeView = before
	}
	_, err := s.audit.Append(ctx, tx, audit.AppendInput{
		TenantID:    mv.TenantID,
		EntityType:  audit.EntityMovement,
		EntityID:    mv.ID,
		Actor:       mv.Actor,
		SpecialType: special,
		Before:      beforeView,
		After:       auditView(mv, after),
	})
	if err != nil {
		return err
	}
	return s.emitRecorded(ctx, tx, mv)
}

func (s *Service) emitRecorded(ctx context.Context, tx *gorm.DB, mv *models.Movement) error {
	unitCost := mv.AppliedUnitCost
	if !mv.Applied {
		unitCost = mv.UnitCost
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventMovementRecorded,
		AggregateType: enums.AggregateMovement,
		AggregateID:   mv.ID,
		TenantID:      mv.TenantID,
		Actor:         mv.Actor,
		Data: payloads.MovementRecordedEvent{
			MovementID:            mv.ID,
			Type:                  mv.Type,
			ItemID:                mv.ItemID,
			OriginLocationID:      mv.OriginLocationID,
			DestinationLocationID: mv.DestinationLocationID,
			Quantity:              mv.Quantity,
			UnitCost:              unitCost,
			ApprovalStatus:        mv.ApprovalStatus,
			Applied:               mv.Applied,
			ReversedOfID:          mv.ReversedOfID,
			OriginKind:            mv.OriginKind,
			OriginRef:             mv.OriginRef,
		},
	})
}

// consult runs the replenishment advisor for every decreased balance.
func (s *Service) consult(ctx context.Context, tx *gorm.DB, legs ...legResult) {
	if s.advisor == nil {
		return
	}
	for _, leg := range legs {
		s.advisor.Consult(ctx, tx, leg.after)
	}
}

// run locks keys and executes fn in one transaction, then logs and counts
// the outcome.
func (s *Service) run(ctx context.Context, op string, keys []balances.Key, fn func(ctx context.Context, tx *gorm.DB) error) error {
	err := s.balances.WithLocked(ctx, keys, fn)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			s.metrics.IncStockRejection(op)
		}
		return err
	}
	return nil
}

func (s *Service) logRecorded(ctx context.Context, mvs ...*models.Movement) {
	for _, mv := range mvs {
		s.metrics.IncMovement(string(mv.Type), string(mv.ApprovalStatus))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tenant_id":       mv.TenantID,
			"movement_id":     mv.ID.String(),
			"movement_type":   string(mv.Type),
			"item_id":         mv.ItemID.String(),
			"quantity":        mv.Quantity.String(),
			"approval_status": string(mv.ApprovalStatus),
		})
		s.logg.Info(logCtx, "movement recorded")
	}
}

func (s *Service) nowUTC() time.Time {
	return s.now().UTC()
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

var errTxRequired = errors.New("transaction required")
