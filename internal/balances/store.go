package balances

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
)

// Database is the persistence surface the store needs.
type Database interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MutateFunc changes a locked balance in place. Returning an error aborts the
// surrounding transaction.
type MutateFunc func(bal *models.Balance) error

// StoreParams configure the balance store.
type StoreParams struct {
	DB      Database
	Locker  Locker
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
}

// Store owns every balance row. All mutations go through Mutate while the
// caller holds the key's lock.
type Store struct {
	db      Database
	locker  Locker
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

// NewStore builds a balance store. A nil locker falls back to an in-process
// KeyedMutex.
func NewStore(params StoreParams) (*Store, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	locker := params.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{
		db:      params.DB,
		locker:  locker,
		metrics: params.Metrics,
		logg:    logg,
	}, nil
}

// Locker exposes the lock backend so other aggregates (separation orders)
// serialise on the same infrastructure.
func (s *Store) Locker() Locker {
	return s.locker
}

// Lock acquires every key in canonical order. The caller must invoke the
// returned release once its transaction has finished.
func (s *Store) Lock(ctx context.Context, keys ...Key) (func(), error) {
	ordered := Canonical(keys)
	for _, key := range ordered {
		if err := key.Validate(); err != nil {
			return nil, err
		}
	}
	names := make([]string, len(ordered))
	for i, key := range ordered {
		names[i] = key.LockName()
	}
	return s.LockNames(ctx, names...)
}

// LockNames acquires raw lock names in the given order.
func (s *Store) LockNames(ctx context.Context, names ...string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	releases := make([]func(), 0, len(names))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, name := range names {
		release, err := s.locker.Acquire(ctx, name)
		if err != nil {
			releaseAll()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "lock "+name+" not obtained")
		}
		releases = append(releases, release)
	}
	s.metrics.ObserveLockWait(time.Since(start))
	return releaseAll, nil
}

// WithLocked locks keys, then runs fn in a transaction. Once the locks are
// held the transaction ignores ctx cancellation so it always completes or
// rolls back as a whole; fn receives that detached context and must use it
// for every statement it issues.
func (s *Store) WithLocked(ctx context.Context, keys []Key, fn func(ctx context.Context, tx *gorm.DB) error) error {
	release, err := s.Lock(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()
	txCtx := context.WithoutCancel(ctx)
	return s.db.WithTx(txCtx, func(tx *gorm.DB) error {
		return fn(txCtx, tx)
	})
}

// LockAndMutate locks one key and applies fn to its balance in a single
// transaction.
func (s *Store) LockAndMutate(ctx context.Context, key Key, fn MutateFunc) (*models.Balance, error) {
	var out *models.Balance
	err := s.WithLocked(ctx, []Key{key}, func(ctx context.Context, tx *gorm.DB) error {
		bal, err := s.Mutate(ctx, tx, key, fn)
		if err != nil {
			return err
		}
		out = bal
		return nil
	})
	return out, err
}

// LockAndMutateMany locks all keys in canonical order and applies fn to each
// balance inside one transaction; any failure rolls every change back.
func (s *Store) LockAndMutateMany(ctx context.Context, keys []Key, fn func(key Key, bal *models.Balance) error) (map[Key]*models.Balance, error) {
	out := make(map[Key]*models.Balance, len(keys))
	err := s.WithLocked(ctx, keys, func(ctx context.Context, tx *gorm.DB) error {
		for _, key := range keys {
			k := key
			bal, err := s.Mutate(ctx, tx, k, func(b *models.Balance) error { return fn(k, b) })
			if err != nil {
				return err
			}
			out[k] = bal
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrCreate returns the balance row for key inside tx, creating a zero row
// on first use. The row is read FOR UPDATE where the dialect supports it.
func (s *Store) GetOrCreate(ctx context.Context, tx *gorm.DB, key Key) (*models.Balance, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	seed := models.Balance{
		TenantID:    key.TenantID,
		ItemID:      key.ItemID,
		LocationID:  key.LocationID,
		Quantity:    decimal.Zero,
		Reserved:    decimal.Zero,
		AverageCost: decimal.Zero,
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("seed balance %s: %w", key, err)
	}
	var bal models.Balance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND item_id = ? AND location_id = ?", key.TenantID, key.ItemID, key.LocationID).
		First(&bal).Error
	if err != nil {
		return nil, fmt.Errorf("load balance %s: %w", key, err)
	}
	return &bal, nil
}

// Mutate loads the balance for key, applies fn and persists the result. It
// refuses any state where quantity or reserved is negative or reserved
// exceeds quantity.
func (s *Store) Mutate(ctx context.Context, tx *gorm.DB, key Key, fn MutateFunc) (*models.Balance, error) {
	bal, err := s.GetOrCreate(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	before := *bal
	if err := fn(bal); err != nil {
		return nil, err
	}
	if err := checkInvariant(before, *bal); err != nil {
		return nil, err
	}
	bal.ID = before.ID
	bal.TenantID, bal.ItemID, bal.LocationID = key.TenantID, key.ItemID, key.LocationID
	if err := tx.WithContext(ctx).Save(bal).Error; err != nil {
		return nil, fmt.Errorf("save balance %s: %w", key, err)
	}
	return bal, nil
}

func checkInvariant(before, after models.Balance) error {
	if after.Quantity.IsNegative() {
		return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
			TenantID:   before.TenantID,
			ItemID:     before.ItemID,
			LocationID: before.LocationID,
			Requested:  before.Quantity.Sub(after.Quantity),
			Available:  before.Available(),
		})
	}
	if after.Reserved.IsNegative() {
		return pkgerrors.InvalidState("reserved quantity cannot go below zero")
	}
	if after.Reserved.GreaterThan(after.Quantity) {
		return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
			TenantID:   before.TenantID,
			ItemID:     before.ItemID,
			LocationID: before.LocationID,
			Requested:  after.Reserved.Sub(before.Reserved),
			Available:  before.Available(),
		})
	}
	return nil
}

// GetBalance returns the committed balance for key. Unknown keys read as a
// zero balance without creating a row.
func (s *Store) GetBalance(ctx context.Context, key Key) (*models.Balance, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var bal models.Balance
	err := s.db.DB().WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND location_id = ?", key.TenantID, key.ItemID, key.LocationID).
		First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Balance{
			TenantID:    key.TenantID,
			ItemID:      key.ItemID,
			LocationID:  key.LocationID,
			Quantity:    decimal.Zero,
			Reserved:    decimal.Zero,
			AverageCost: decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s: %w", key, err)
	}
	return &bal, nil
}

// GetAvailableQuantity is quantity minus reserved for key.
func (s *Store) GetAvailableQuantity(ctx context.Context, key Key) (decimal.Decimal, error) {
	bal, err := s.GetBalance(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Available(), nil
}

// ListForItem returns every balance of an item across locations.
func (s *Store) ListForItem(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Balance, error) {
	var rows []models.Balance
	err := s.db.DB().WithContext(ctx).
		Where("tenant_id = ? AND item_id = ?", tenantID, itemID).
		Order("location_id ASC").
		Find(&rows).Error
	return rows, err
}
