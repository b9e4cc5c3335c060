// Package replenishment evaluates reorder rules after stock decreases and
// publishes advisories. It never changes balances.
package replenishment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger/pkg/validation"
)

const savepoint = "replenishment_advisory"

// EventEmitter stores outbound events in the caller's transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Advisory is a reorder suggestion for one balance.
type Advisory struct {
	TenantID          string
	ItemID            uuid.UUID
	LocationID        uuid.UUID
	Quantity          decimal.Decimal
	Min               decimal.Decimal
	Max               decimal.Decimal
	SuggestedQuantity decimal.Decimal
	LeadTimeDays      int
	Strategy          enums.ReplenishmentStrategy
}

// Evaluate returns an advisory when bal has fallen below the rule minimum.
// A missing or inactive rule yields nil.
func Evaluate(bal models.Balance, rule *models.ReplenishmentRule) *Advisory {
	if rule == nil || !rule.Active {
		return nil
	}
	if !bal.Quantity.LessThan(rule.MinQuantity) {
		return nil
	}
	target := rule.MaxQuantity
	if rule.Strategy == enums.ReplenishToMin {
		target = rule.MinQuantity
	}
	suggested := target.Sub(bal.Quantity)
	if suggested.IsNegative() {
		suggested = decimal.Zero
	}
	return &Advisory{
		TenantID:          bal.TenantID,
		ItemID:            bal.ItemID,
		LocationID:        bal.LocationID,
		Quantity:          bal.Quantity,
		Min:               rule.MinQuantity,
		Max:               rule.MaxQuantity,
		SuggestedQuantity: suggested,
		LeadTimeDays:      rule.LeadTimeDays,
		Strategy:          rule.Strategy,
	}
}

// RuleInput configures the reorder policy of one balance.
type RuleInput struct {
	TenantID     string                      `json:"tenant_id" validate:"required"`
	ItemID       uuid.UUID                   `json:"item_id" validate:"required"`
	LocationID   uuid.UUID                   `json:"location_id" validate:"required"`
	MinQuantity  decimal.Decimal             `json:"min" validate:"gte=0"`
	MaxQuantity  decimal.Decimal             `json:"max" validate:"gte=0"`
	LeadTimeDays int                         `json:"lead_time_days" validate:"gte=0"`
	Strategy     enums.ReplenishmentStrategy `json:"strategy"`
	Active       *bool                       `json:"active"`
}

// Advisor loads rules and publishes advisories.
type Advisor struct {
	db     *gorm.DB
	events EventEmitter
	logg   *logger.Logger
}

// NewAdvisor builds an advisor. db is used for rule maintenance only;
// Consult works on the caller's transaction.
func NewAdvisor(db *gorm.DB, events EventEmitter, logg *logger.Logger) *Advisor {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Advisor{db: db, events: events, logg: logg}
}

// Consult evaluates bal against its rule and queues an advisory event. It
// runs inside a savepoint and swallows every failure so a movement is never
// rolled back because of it.
func (a *Advisor) Consult(ctx context.Context, tx *gorm.DB, bal models.Balance) *Advisory {
	if a == nil || tx == nil {
		return nil
	}
	ctx = a.logg.WithFields(ctx, map[string]any{
		"tenant_id":   bal.TenantID,
		"item_id":     bal.ItemID.String(),
		"location_id": bal.LocationID.String(),
	})

	if err := tx.SavePoint(savepoint).Error; err != nil {
		a.logg.Error(ctx, "replenishment savepoint failed", err)
		return nil
	}
	advisory, err := a.consult(ctx, tx, bal)
	if err != nil {
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			a.logg.Error(ctx, "replenishment savepoint rollback failed", rbErr)
		}
		a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "replenishment advisory suppressed")
		return nil
	}
	if advisory != nil {
		a.logg.Info(a.logg.WithField(ctx, "suggested_quantity", advisory.SuggestedQuantity.String()), "replenishment advisory raised")
	}
	return advisory
}

func (a *Advisor) consult(ctx context.Context, tx *gorm.DB, bal models.Balance) (*Advisory, error) {
	rule, err := a.ruleFor(ctx, tx, bal.TenantID, bal.ItemID, bal.LocationID)
	if err != nil {
		return nil, err
	}
	advisory := Evaluate(bal, rule)
	if advisory == nil || a.events == nil {
		return advisory, nil
	}
	err = a.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReplenishmentAdvisory,
		AggregateType: enums.AggregateBalance,
		AggregateID:   bal.ID,
		TenantID:      bal.TenantID,
		Actor:         "system",
		Data: payloads.ReplenishmentAdvisoryEvent{
			ItemID:            advisory.ItemID,
			LocationID:        advisory.LocationID,
			Quantity:          advisory.Quantity,
			Min:               advisory.Min,
			Max:               advisory.Max,
			SuggestedQuantity: advisory.SuggestedQuantity,
			LeadTimeDays:      advisory.LeadTimeDays,
			Strategy:          advisory.Strategy,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("emit advisory: %w", err)
	}
	return advisory, nil
}

func (a *Advisor) ruleFor(ctx context.Context, tx *gorm.DB, tenantID string, itemID, locationID uuid.UUID) (*models.ReplenishmentRule, error) {
	var rule models.ReplenishmentRule
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND location_id = ?", tenantID, itemID, locationID).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load replenishment rule: %w", err)
	}
	return &rule, nil
}

// UpsertRule validates and stores the rule for a balance key.
func (a *Advisor) UpsertRule(ctx context.Context, in RuleInput) (*models.ReplenishmentRule, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.MaxQuantity.LessThan(in.MinQuantity) {
		return nil, pkgerrors.Invalid("max must be greater than or equal to min").
			WithDetails(map[string]string{"max": in.MaxQuantity.String(), "min": in.MinQuantity.String()})
	}
	strategy := in.Strategy
	if strategy == "" {
		strategy = enums.ReplenishMinMax
	}
	if !strategy.IsValid() {
		return nil, pkgerrors.Invalid("unknown replenishment strategy").WithDetails(map[string]string{"strategy": string(strategy)})
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	rule := &models.ReplenishmentRule{
		TenantID:     in.TenantID,
		ItemID:       in.ItemID,
		LocationID:   in.LocationID,
		MinQuantity:  in.MinQuantity,
		MaxQuantity:  in.MaxQuantity,
		LeadTimeDays: in.LeadTimeDays,
		Strategy:     strategy,
		Active:       active,
	}
	err := a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "item_id"}, {Name: "location_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"min_quantity", "max_quantity", "lead_time_days", "strategy", "active", "updated_at"}),
	}).Create(rule).Error
	if err != nil {
		return nil, fmt.Errorf("upsert replenishment rule: %w", err)
	}
	return a.ruleFor(ctx, a.db, in.TenantID, in.ItemID, in.LocationID)
}
