// Package valuation computes unit costs for stock entering and leaving a
// balance, by weighted average or by FIFO cost layers.
package valuation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

// CostScale is the number of decimal places unit costs are rounded to.
const CostScale = 6

// Engine applies valuation to balances that are already locked by the caller.
// It mutates Quantity and AverageCost on the passed balance but does not save
// it; persisting the balance is the balance store's job.
type Engine struct {
	repo *Repository
	logg *logger.Logger
}

// NewEngine builds a valuation engine.
func NewEngine(repo *Repository, logg *logger.Logger) *Engine {
	if repo == nil {
		repo = NewRepository()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Engine{repo: repo, logg: logg}
}

// Repository exposes the item and layer repository.
func (e *Engine) Repository() *Repository {
	return e.repo
}

// Strategy resolves the item's valuation strategy.
func (e *Engine) Strategy(ctx context.Context, tx *gorm.DB, bal *models.Balance) (enums.ValuationStrategy, error) {
	strategy, err := e.repo.ItemStrategy(ctx, tx, bal.TenantID, bal.ItemID)
	if err != nil {
		return "", fmt.Errorf("resolve valuation strategy: %w", err)
	}
	return strategy, nil
}

// ApplyEntry adds qty at unitCost to bal.
func (e *Engine) ApplyEntry(ctx context.Context, tx *gorm.DB, bal *models.Balance, qty, unitCost decimal.Decimal) error {
	if !qty.IsPositive() {
		return pkgerrors.Invalid("entry quantity must be positive")
	}
	if unitCost.IsNegative() {
		return pkgerrors.Invalid("unit cost cannot be negative")
	}
	strategy, err := e.Strategy(ctx, tx, bal)
	if err != nil {
		return err
	}
	unitCost = unitCost.Round(CostScale)

	if strategy == enums.ValuationFIFO {
		if err := e.pushLayer(ctx, tx, bal, qty, unitCost); err != nil {
			return err
		}
		bal.Quantity = bal.Quantity.Add(qty)
		return e.refreshAverage(ctx, tx, bal)
	}

	bal.AverageCost = WeightedAverage(bal.Quantity, bal.AverageCost, qty, unitCost)
	bal.Quantity = bal.Quantity.Add(qty)
	return nil
}

// ApplyExit removes qty from bal and returns the unit cost it left at. FIFO
// consumption is all-or-nothing.
func (e *Engine) ApplyExit(ctx context.Context, tx *gorm.DB, bal *models.Balance, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, pkgerrors.Invalid("exit quantity must be positive")
	}
	strategy, err := e.Strategy(ctx, tx, bal)
	if err != nil {
		return decimal.Zero, err
	}

	if strategy != enums.ValuationFIFO {
		if qty.GreaterThan(bal.Quantity) {
			return decimal.Zero, shortage(bal, qty, bal.Quantity)
		}
		bal.Quantity = bal.Quantity.Sub(qty)
		return bal.AverageCost, nil
	}

	layers, err := e.repo.OpenLayers(ctx, tx, bal)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load cost layers: %w", err)
	}
	plan, err := planConsumption(bal, layers, qty)
	if err != nil {
		return decimal.Zero, err
	}
	for i := range plan.layers {
		if err := e.repo.UpdateLayer(ctx, tx, &plan.layers[i]); err != nil {
			return decimal.Zero, fmt.Errorf("consume cost layer: %w", err)
		}
	}
	bal.Quantity = bal.Quantity.Sub(qty)
	if err := e.refreshAverage(ctx, tx, bal); err != nil {
		return decimal.Zero, err
	}
	return plan.unitCost, nil
}

// EstimateExitCost returns the unit cost an exit of qty would leave at
// without changing anything.
func (e *Engine) EstimateExitCost(ctx context.Context, tx *gorm.DB, bal *models.Balance, qty decimal.Decimal) (decimal.Decimal, error) {
	strategy, err := e.Strategy(ctx, tx, bal)
	if err != nil {
		return decimal.Zero, err
	}
	if strategy != enums.ValuationFIFO || !qty.IsPositive() {
		return bal.AverageCost, nil
	}
	layers, err := e.repo.OpenLayers(ctx, tx, bal)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load cost layers: %w", err)
	}
	plan, err := planConsumption(bal, layers, qty)
	if err != nil {
		return decimal.Zero, err
	}
	return plan.unitCost, nil
}

func (e *Engine) pushLayer(ctx context.Context, tx *gorm.DB, bal *models.Balance, qty, unitCost decimal.Decimal) error {
	last, err := e.repo.LastLayer(ctx, tx, bal)
	if err != nil {
		return fmt.Errorf("load last cost layer: %w", err)
	}
	if last != nil && last.UnitCost.Equal(unitCost) && last.QuantityRemaining.IsPositive() {
		last.QuantityReceived = last.QuantityReceived.Add(qty)
		last.QuantityRemaining = last.QuantityRemaining.Add(qty)
		if err := e.repo.UpdateLayer(ctx, tx, last); err != nil {
			return fmt.Errorf("merge cost layer: %w", err)
		}
		return nil
	}
	var seq int64 = 1
	if last != nil {
		seq = last.Sequence + 1
	}
	layer := &models.CostLayer{
		TenantID:          bal.TenantID,
		ItemID:            bal.ItemID,
		LocationID:        bal.LocationID,
		Sequence:          seq,
		QuantityReceived:  qty,
		QuantityRemaining: qty,
		UnitCost:          unitCost,
	}
	if err := e.repo.CreateLayer(ctx, tx, layer); err != nil {
		return fmt.Errorf("create cost layer: %w", err)
	}
	return nil
}

func (e *Engine) refreshAverage(ctx context.Context, tx *gorm.DB, bal *models.Balance) error {
	layers, err := e.repo.OpenLayers(ctx, tx, bal)
	if err != nil {
		return fmt.Errorf("load cost layers: %w", err)
	}
	if avg, ok := LayerAverage(layers); ok {
		bal.AverageCost = avg
	}
	return nil
}

// WeightedAverage is the moving average after receiving qtyIn at costIn on
// top of qtyBefore at avgBefore. An empty balance takes costIn as is.
func WeightedAverage(qtyBefore, avgBefore, qtyIn, costIn decimal.Decimal) decimal.Decimal {
	if !qtyBefore.IsPositive() {
		return costIn.Round(CostScale)
	}
	total := qtyBefore.Add(qtyIn)
	if total.IsZero() {
		return avgBefore
	}
	value := qtyBefore.Mul(avgBefore).Add(qtyIn.Mul(costIn))
	return value.DivRound(total, CostScale+4).Round(CostScale)
}

// LayerAverage is the quantity-weighted cost of the remaining layers. It
// reports false when no quantity remains.
func LayerAverage(layers []models.CostLayer) (decimal.Decimal, bool) {
	qty := decimal.Zero
	value := decimal.Zero
	for _, l := range layers {
		if !l.QuantityRemaining.IsPositive() {
			continue
		}
		qty = qty.Add(l.QuantityRemaining)
		value = value.Add(l.QuantityRemaining.Mul(l.UnitCost))
	}
	if qty.IsZero() {
		return decimal.Zero, false
	}
	return value.DivRound(qty, CostScale+4).Round(CostScale), true
}

type consumption struct {
	layers   []models.CostLayer
	unitCost decimal.Decimal
}

// planConsumption walks layers oldest first and returns the touched layers
// with their new remaining quantities. Nothing is written.
func planConsumption(bal *models.Balance, layers []models.CostLayer, qty decimal.Decimal) (consumption, error) {
	available := sumRemaining(layers)
	if available.LessThan(qty) {
		return consumption{}, shortage(bal, qty, available)
	}
	left := qty
	cost := decimal.Zero
	touched := make([]models.CostLayer, 0, len(layers))
	for _, layer := range layers {
		if !left.IsPositive() {
			break
		}
		take := decimal.Min(layer.QuantityRemaining, left)
		if !take.IsPositive() {
			continue
		}
		cost = cost.Add(take.Mul(layer.UnitCost))
		layer.QuantityRemaining = layer.QuantityRemaining.Sub(take)
		left = left.Sub(take)
		touched = append(touched, layer)
	}
	return consumption{
		layers:   touched,
		unitCost: cost.DivRound(qty, CostScale+4).Round(CostScale),
	}, nil
}

func shortage(bal *models.Balance, requested, available decimal.Decimal) error {
	return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
		TenantID:   bal.TenantID,
		ItemID:     bal.ItemID,
		LocationID: bal.LocationID,
		Requested:  requested,
		Available:  available,
	})
}
