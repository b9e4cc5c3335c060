package movements

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/audit"
	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/internal/replenishment"
	"github.com/angelmondragon/stockledger/internal/valuation"
	"github.com/angelmondragon/stockledger/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/outbox"
)

const tenant = "acme"

type harness struct {
	conn   *gorm.DB
	svc    *Service
	store  *balances.Store
	audit  *audit.Service
	outbox *outbox.Repository
	engine *valuation.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	store, err := balances.NewStore(balances.StoreParams{DB: client})
	require.NoError(t, err)
	auditSvc, err := audit.NewService(audit.NewRepository(conn), nil, nil)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	events := outbox.NewService(outboxRepo, nil)
	engine := valuation.NewEngine(nil, nil)

	svc, err := NewService(ServiceParams{
		DB:        client,
		Balances:  store,
		Valuation: engine,
		Audit:     auditSvc,
		Advisor:   replenishment.NewAdvisor(conn, events, nil),
		Events:    events,
		Config: Config{
			ApprovalThreshold:      decimal.NewFromInt(100),
			JustificationMinLength: 10,
		},
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, store: store, audit: auditSvc, outbox: outboxRepo, engine: engine}
}

func (h *harness) item(t *testing.T, strategy enums.ValuationStrategy) uuid.UUID {
	t.Helper()
	item := &models.Item{TenantID: tenant, SKU: uuid.NewString()[:8], Name: "item", ValuationStrategy: strategy}
	require.NoError(t, h.engine.Repository().UpsertItem(context.Background(), h.conn, item))
	return item.ID
}

func (h *harness) receive(t *testing.T, item, loc uuid.UUID, qty, cost int64) *models.Movement {
	t.Helper()
	mv, err := h.svc.RecordEntry(context.Background(), EntryInput{
		TenantID:   tenant,
		ItemID:     item,
		LocationID: loc,
		Quantity:   decimal.NewFromInt(qty),
		UnitCost:   decimal.NewFromInt(cost),
		Actor:      "receiver",
	})
	require.NoError(t, err)
	return mv
}

func (h *harness) balance(t *testing.T, item, loc uuid.UUID) *models.Balance {
	t.Helper()
	bal, err := h.store.GetBalance(context.Background(), balances.NewKey(tenant, item, loc))
	require.NoError(t, err)
	return bal
}

func (h *harness) movementCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(&models.Movement{}).Count(&n).Error)
	return n
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func requireDecimal(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, want.Equal(got), "want %s got %s", want, got)
}
