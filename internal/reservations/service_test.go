package reservations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/audit"
	"github.com/angelmondragon/stockledger/internal/balances"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/valuation"
	"github.com/angelmondragon/stockledger/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/types"
)

const tenant = "acme"

type fixture struct {
	conn   *gorm.DB
	svc    *Service
	ledger *movements.Service
	store  *balances.Store
	outbox *outbox.Repository
	item   uuid.UUID
	loc    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	store, err := balances.NewStore(balances.StoreParams{DB: client})
	require.NoError(t, err)
	auditSvc, err := audit.NewService(audit.NewRepository(conn), nil, nil)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	events := outbox.NewService(outboxRepo, nil)

	ledger, err := movements.NewService(movements.ServiceParams{
		DB:        client,
		Balances:  store,
		Valuation: valuation.NewEngine(nil, nil),
		Audit:     auditSvc,
		Events:    events,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:         client,
		Balances:   store,
		Ledger:     ledger,
		Events:     events,
		DefaultTTL: time.Hour,
	})
	require.NoError(t, err)

	f := &fixture{conn: conn, svc: svc, ledger: ledger, store: store, outbox: outboxRepo, item: uuid.New(), loc: uuid.New()}
	_, err = ledger.RecordEntry(context.Background(), movements.EntryInput{
		TenantID:   tenant,
		ItemID:     f.item,
		LocationID: f.loc,
		Quantity:   decimal.NewFromInt(20),
		UnitCost:   decimal.NewFromInt(2),
		Actor:      "receiver",
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T, qty int64, origin types.OriginRef) *models.Reservation {
	t.Helper()
	res, err := f.svc.Create(context.Background(), CreateInput{
		TenantID:   tenant,
		ItemID:     f.item,
		LocationID: f.loc,
		Quantity:   decimal.NewFromInt(qty),
		Origin:     origin,
		Actor:      "clerk",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T) *models.Balance {
	t.Helper()
	bal, err := f.store.GetBalance(context.Background(), balances.NewKey(tenant, f.item, f.loc))
	require.NoError(t, err)
	return bal
}

func requireDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.NewFromInt(want).Equal(got), "want %d got %s", want, got)
}

func TestCreateAggregatesSameOrigin(t *testing.T) {
	f := newFixture(t)
	origin := types.NewOriginRef(enums.OriginSalesOrder, "SO-1")

	first := f.create(t, 10, origin)
	second := f.create(t, 5, origin)

	require.Equal(t, first.ID, second.ID)
	requireDecimal(t, 15, second.Quantity)
	bal := f.balance(t)
	requireDecimal(t, 20, bal.Quantity)
	requireDecimal(t, 15, bal.Reserved)

	var holds int64
	require.NoError(t, f.conn.Model(&models.Movement{}).Where("type = ?", enums.MovementReserve).Count(&holds).Error)
	require.EqualValues(t, 2, holds)

	other := f.create(t, 1, types.NewOriginRef(enums.OriginSalesOrder, "SO-2"))
	require.NotEqual(t, first.ID, other.ID)
	requireDecimal(t, 16, f.balance(t).Reserved)
}

func TestCreateBeyondAvailable(t *testing.T) {
	f := newFixture(t)
	f.create(t, 15, types.ManualOrigin())

	_, err := f.svc.Create(context.Background(), CreateInput{
		TenantID:   tenant,
		ItemID:     f.item,
		LocationID: f.loc,
		Quantity:   decimal.NewFromInt(6),
		Actor:      "clerk",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	shortage, ok := pkgerrors.ShortageOf(err)
	require.True(t, ok)
	requireDecimal(t, 5, shortage.Available)
	requireDecimal(t, 15, f.balance(t).Reserved)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{TenantID: tenant, ItemID: f.item, LocationID: f.loc, Quantity: decimal.Zero, Actor: "clerk"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateInput{
		TenantID:   tenant,
		ItemID:     f.item,
		LocationID: f.loc,
		Quantity:   decimal.NewFromInt(1),
		Origin:     types.OriginRef{Kind: enums.OriginPickingOrder},
		Actor:      "clerk",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateDefaultsExpiry(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	res := f.create(t, 1, types.ManualOrigin())
	require.NotNil(t, res.ExpiresAt)
	require.True(t, res.ExpiresAt.Equal(fixed.Add(time.Hour)))
}

func TestConsumePartialThenRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, 10, types.NewOriginRef(enums.OriginSalesOrder, "SO-9"))

	four := decimal.NewFromInt(4)
	res, err := f.svc.Consume(ctx, ConsumeInput{TenantID: tenant, ReservationID: res.ID, Quantity: &four, Actor: "picker"})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationActive, res.Status)
	requireDecimal(t, 6, res.Quantity)
	requireDecimal(t, 4, res.Consumed)
	bal := f.balance(t)
	requireDecimal(t, 16, bal.Quantity)
	requireDecimal(t, 6, bal.Reserved)

	res, err = f.svc.Consume(ctx, ConsumeInput{TenantID: tenant, ReservationID: res.ID, Actor: "picker"})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationConsumed, res.Status)
	require.NotNil(t, res.ClosedAt)
	bal = f.balance(t)
	requireDecimal(t, 10, bal.Quantity)
	requireDecimal(t, 0, bal.Reserved)

	var exits []models.Movement
	require.NoError(t, f.conn.Where("type = ?", enums.MovementExit).Find(&exits).Error)
	require.Len(t, exits, 2)
	require.Equal(t, enums.OriginSalesOrder, exits[0].OriginKind)

	_, err = f.svc.Consume(ctx, ConsumeInput{TenantID: tenant, ReservationID: res.ID, Actor: "picker"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
}

func TestConsumeMoreThanHeld(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, 3, types.ManualOrigin())

	five := decimal.NewFromInt(5)
	_, err := f.svc.Consume(context.Background(), ConsumeInput{TenantID: tenant, ReservationID: res.ID, Quantity: &five, Actor: "picker"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	requireDecimal(t, 20, f.balance(t).Quantity)
}

func TestCancelReleasesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, 8, types.ManualOrigin())

	res, err := f.svc.Cancel(ctx, CloseInput{TenantID: tenant, ReservationID: res.ID, Reason: "customer changed mind", Actor: "clerk"})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationCancelled, res.Status)
	require.NotNil(t, res.CloseReason)
	bal := f.balance(t)
	requireDecimal(t, 20, bal.Quantity)
	requireDecimal(t, 0, bal.Reserved)

	var releases int64
	require.NoError(t, f.conn.Model(&models.Movement{}).Where("type = ?", enums.MovementReleaseReserve).Count(&releases).Error)
	require.EqualValues(t, 1, releases)

	_, err = f.svc.Cancel(ctx, CloseInput{TenantID: tenant, ReservationID: res.ID, Actor: "clerk"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))

	_, err = f.svc.Expire(ctx, CloseInput{TenantID: tenant, ReservationID: res.ID, Actor: "system"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
}

func TestListExpiredAndExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	stale, err := f.svc.Create(ctx, CreateInput{
		TenantID:   tenant,
		ItemID:     f.item,
		LocationID: f.loc,
		Quantity:   decimal.NewFromInt(2),
		ExpiresAt:  &past,
		Actor:      "clerk",
	})
	require.NoError(t, err)
	f.create(t, 3, types.NewOriginRef(enums.OriginSalesOrder, "SO-fresh"))

	expired, err := f.svc.ListExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, stale.ID, expired[0].ID)

	res, err := f.svc.Expire(ctx, CloseInput{TenantID: tenant, ReservationID: stale.ID, Actor: "system"})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationExpired, res.Status)
	requireDecimal(t, 3, f.balance(t).Reserved)

	events, err := f.outbox.ListByType(ctx, enums.EventReservationExpired, stale.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	expired, err = f.svc.ListExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, expired)
}

func TestExpireRefusesHoldThatIsNotDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fresh := f.create(t, 5, types.NewOriginRef(enums.OriginSalesOrder, "SO-9"))

	_, err := f.svc.Expire(ctx, CloseInput{TenantID: tenant, ReservationID: fresh.ID, Actor: "system"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState), "got %v", err)

	got, err := f.svc.Get(ctx, tenant, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationActive, got.Status)
	requireDecimal(t, 5, f.balance(t).Reserved)
}

func TestSeparationOrderHoldsSkipTheSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	origin := types.NewOriginRef(enums.OriginPickingOrder, uuid.NewString())
	hold := f.create(t, 4, origin)
	require.Nil(t, hold.ExpiresAt)

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, f.conn.Model(&models.Reservation{}).Where("id = ?", hold.ID).
		Update("expires_at", past).Error)

	expired, err := f.svc.ListExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, expired)

	_, err = f.svc.Expire(ctx, CloseInput{TenantID: tenant, ReservationID: hold.ID, Actor: "system"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState), "got %v", err)
	requireDecimal(t, 4, f.balance(t).Reserved)
}

func TestGetUnknownReservation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), tenant, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	res := f.create(t, 1, types.ManualOrigin())
	_, err = f.svc.Get(context.Background(), "other-tenant", res.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReservationEventsQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, 2, types.ManualOrigin())
	_, err := f.svc.Consume(ctx, ConsumeInput{TenantID: tenant, ReservationID: res.ID, Actor: "picker"})
	require.NoError(t, err)

	created, err := f.outbox.ListByType(ctx, enums.EventReservationCreated, res.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	consumed, err := f.outbox.ListByType(ctx, enums.EventReservationConsumed, res.ID)
	require.NoError(t, err)
	require.Len(t, consumed, 1)
}
