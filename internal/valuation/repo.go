package valuation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

// Repository persists items and FIFO cost layers. All layer access happens
// inside the caller's transaction while the owning balance is locked.
type Repository struct{}

// NewRepository returns a layer repository.
func NewRepository() *Repository {
	return &Repository{}
}

// ItemStrategy returns the valuation strategy configured for an item,
// defaulting to weighted average when the item is unknown.
func (r *Repository) ItemStrategy(ctx context.Context, tx *gorm.DB, tenantID string, itemID uuid.UUID) (enums.ValuationStrategy, error) {
	var item models.Item
	err := tx.WithContext(ctx).
		Select("valuation_strategy").
		Where("tenant_id = ? AND id = ?", tenantID, itemID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return enums.ValuationWeightedAverage, nil
	}
	if err != nil {
		return "", err
	}
	if !item.ValuationStrategy.IsValid() {
		return enums.ValuationWeightedAverage, nil
	}
	return item.ValuationStrategy, nil
}

// UpsertItem creates or updates an item row. The valuation strategy of an
// existing item only changes while none of its balances holds stock.
func (r *Repository) UpsertItem(ctx context.Context, tx *gorm.DB, item *models.Item) error {
	if item.ID != uuid.Nil {
		if err := r.checkStrategyChange(ctx, tx, item); err != nil {
			return err
		}
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sku", "name", "valuation_strategy", "updated_at"}),
	}).Create(item).Error
}

func (r *Repository) checkStrategyChange(ctx context.Context, tx *gorm.DB, item *models.Item) error {
	var current models.Item
	err := tx.WithContext(ctx).
		Select("valuation_strategy").
		Where("tenant_id = ? AND id = ?", item.TenantID, item.ID).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.ValuationStrategy == item.ValuationStrategy {
		return nil
	}
	var stocked int64
	err = tx.WithContext(ctx).Model(&models.Balance{}).
		Where("tenant_id = ? AND item_id = ? AND quantity <> 0", item.TenantID, item.ID).
		Count(&stocked).Error
	if err != nil {
		return err
	}
	if stocked > 0 {
		return pkgerrors.InvalidState("valuation strategy cannot change while the item has stock on hand").
			WithDetails(map[string]string{"valuation_strategy": string(current.ValuationStrategy)})
	}
	return nil
}

// OpenLayers returns layers with remaining quantity in sequence order.
func (r *Repository) OpenLayers(ctx context.Context, tx *gorm.DB, bal *models.Balance) ([]models.CostLayer, error) {
	var layers []models.CostLayer
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND location_id = ? AND quantity_remaining > 0", bal.TenantID, bal.ItemID, bal.LocationID).
		Order("sequence ASC").
		Find(&layers).Error
	return layers, err
}

// LastLayer returns the highest-sequence layer for the balance, or nil.
func (r *Repository) LastLayer(ctx context.Context, tx *gorm.DB, bal *models.Balance) (*models.CostLayer, error) {
	var layer models.CostLayer
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND location_id = ?", bal.TenantID, bal.ItemID, bal.LocationID).
		Order("sequence DESC").
		First(&layer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &layer, nil
}

// CreateLayer inserts a new layer.
func (r *Repository) CreateLayer(ctx context.Context, tx *gorm.DB, layer *models.CostLayer) error {
	return tx.WithContext(ctx).Create(layer).Error
}

// UpdateLayer persists the quantity fields of a layer.
func (r *Repository) UpdateLayer(ctx context.Context, tx *gorm.DB, layer *models.CostLayer) error {
	return tx.WithContext(ctx).
		Model(&models.CostLayer{}).
		Where("id = ?", layer.ID).
		Updates(map[string]any{
			"quantity_received":  layer.QuantityReceived,
			"quantity_remaining": layer.QuantityRemaining,
		}).Error
}

func sumRemaining(layers []models.CostLayer) decimal.Decimal {
	total := decimal.Zero
	for _, l := range layers {
		total = total.Add(l.QuantityRemaining)
	}
	return total
}
