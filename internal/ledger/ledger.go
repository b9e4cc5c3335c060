// Package ledger assembles the stock ledger services over one database so
// every binary wires them identically.
package ledger

import (
	"errors"
	"fmt"

	"github.com/bsm/redislock"

	"github.com/angelmondragon/stockledger/internal/audit"
	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/picking"
	"github.com/angelmondragon/stockledger/internal/replenishment"
	"github.com/angelmondragon/stockledger/internal/reservations"
	"github.com/angelmondragon/stockledger/internal/valuation"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/redis"
)

// Params configure New.
type Params struct {
	DB      balances.Database
	Redis   redislock.RedisClient
	Config  *config.Config
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
}

// Ledger holds the wired services.
type Ledger struct {
	Balances     *balances.Store
	Valuation    *valuation.Engine
	Audit        *audit.Service
	Advisor      *replenishment.Advisor
	Movements    *movements.Service
	Reservations *reservations.Service
	Picking      *picking.Service
	Outbox       *outbox.Service
	OutboxRepo   *outbox.Repository
}

// New builds the service graph. Redis is only required when the lock backend
// is "redis".
func New(params Params) (*Ledger, error) {
	if params.DB == nil {
		return nil, errors.New("db required")
	}
	if params.Config == nil {
		return nil, errors.New("config required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := params.Config

	locker, err := buildLocker(params, logg)
	if err != nil {
		return nil, err
	}

	store, err := balances.NewStore(balances.StoreParams{
		DB:      params.DB,
		Locker:  locker,
		Metrics: params.Metrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("balance store: %w", err)
	}

	conn := params.DB.DB()
	outboxRepo := outbox.NewRepository(conn)
	events := outbox.NewService(outboxRepo, logg)

	auditSvc, err := audit.NewService(audit.NewRepository(conn), params.Metrics, logg)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	engine := valuation.NewEngine(valuation.NewRepository(), logg)
	advisor := replenishment.NewAdvisor(conn, events, logg)

	ledgerSvc, err := movements.NewService(movements.ServiceParams{
		DB:        params.DB,
		Balances:  store,
		Valuation: engine,
		Audit:     auditSvc,
		Advisor:   advisor,
		Events:    events,
		Metrics:   params.Metrics,
		Logger:    logg,
		Config: movements.Config{
			ApprovalThreshold:      cfg.Ledger.Threshold(),
			JustificationMinLength: cfg.Ledger.JustificationMinLength,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("movements: %w", err)
	}

	resSvc, err := reservations.NewService(reservations.ServiceParams{
		DB:         params.DB,
		Balances:   store,
		Ledger:     ledgerSvc,
		Events:     events,
		Logger:     logg,
		DefaultTTL: cfg.Reservations.DefaultTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("reservations: %w", err)
	}

	pickSvc, err := picking.NewService(picking.ServiceParams{
		DB:           params.DB,
		Balances:     store,
		Reservations: resSvc,
		Events:       events,
		Logger:       logg,
		Config: picking.Config{
			UrgentCap:                cfg.Ledger.UrgentOrderCap,
			UnavailableNoteMinLength: cfg.Ledger.UnavailableNoteMinLen,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("picking: %w", err)
	}

	return &Ledger{
		Balances:     store,
		Valuation:    engine,
		Audit:        auditSvc,
		Advisor:      advisor,
		Movements:    ledgerSvc,
		Reservations: resSvc,
		Picking:      pickSvc,
		Outbox:       events,
		OutboxRepo:   outboxRepo,
	}, nil
}

func buildLocker(params Params, logg *logger.Logger) (balances.Locker, error) {
	local := balances.NewKeyedMutex()
	if !params.Config.Ledger.UsesRedisLocks() {
		return local, nil
	}
	if params.Redis == nil {
		return nil, errors.New("redis lock backend selected but no redis client configured")
	}
	remote, err := balances.NewRedisLocker(balances.RedisLockerParams{
		Client:        params.Redis,
		TTL:           params.Config.Ledger.LockTTL,
		RetryInterval: params.Config.Ledger.LockRetryInterval,
		Prefix:        redis.LockKey("balance", params.Config.App.Env) + ":",
		Logger:        logg,
	})
	if err != nil {
		return nil, fmt.Errorf("redis locker: %w", err)
	}
	return balances.Chain{local, remote}, nil
}
