package movements

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

func TestReversalType(t *testing.T) {
	cases := map[enums.MovementType]enums.MovementType{
		enums.MovementEntry:          enums.MovementExit,
		enums.MovementCustomerReturn: enums.MovementExit,
		enums.MovementExit:           enums.MovementEntry,
		enums.MovementSupplierReturn: enums.MovementEntry,
		enums.MovementBOMConsume:     enums.MovementEntry,
		enums.MovementAdjustPos:      enums.MovementAdjustNeg,
		enums.MovementAdjustNeg:      enums.MovementAdjustPos,
		enums.MovementDiscard:        enums.MovementAdjustPos,
		enums.MovementTransfer:       enums.MovementTransfer,
	}
	for in, want := range cases {
		got, ok := ReversalType(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := ReversalType(enums.MovementReserve)
	require.False(t, ok)
}

func TestReverseExitRestoresStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item, loc := h.item(t, enums.ValuationWeightedAverage), uuid.New()
	h.receive(t, item, loc, 10, 3)
	exit, err := h.svc.RecordExit(ctx, ExitInput{TenantID: tenant, ItemID: item, LocationID: loc, Quantity: dec(4), Actor: "a"})
	require.NoError(t, err)

	rev, err := h.svc.ReverseMovement(ctx, ReverseInput{TenantID: tenant, MovementID: exit.ID, Actor: "supervisor", Reason: "wrong order"})
	require.NoError(t, err)
	require.Equal(t, enums.MovementEntry, rev.Type)
	require.True(t, rev.IsReversal)
	require.Equal(t, exit.ID, *rev.ReversedOfID)
	require.Equal(t, loc, *rev.DestinationLocationID)
	requireDecimal(t, dec(3), rev.AppliedUnitCost)

	bal := h.balance(t, item, loc)
	requireDecimal(t, dec(10), bal.Quantity)
	requireDecimal(t, dec(3), bal.AverageCost)

	original, err := h.svc.GetMovement(ctx, tenant, exit.ID)
	require.NoError(t, err)
	require.False(t, original.IsReversal)

	_, err = h.svc.ReverseMovement(ctx, ReverseInput{TenantID: tenant, MovementID: rev.ID, Actor: "supervisor"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotReversible), "got %v", err)

	_, err = h.svc.ReverseMovement(ctx, ReverseInput{TenantID: tenant, MovementID: exit.ID, Actor: "supervisor"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotReversible), "got %v", err)
}

func TestReverseTransferSwapsLocations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.item(t, enums.ValuationWeightedAverage)
	from, to := uuid.New(), uuid.New()
	h.receive(t, item, from, 10, 2)
	tr, err := h.svc.RecordTransfer(ctx, TransferInput{TenantID: tenant, ItemID: item, FromLocationID: from, ToLocationID: to, Quantity: dec(6), Actor: "a"})
	require.NoError(t, err)

	rev, err := h.svc.ReverseMovement(ctx, ReverseInput{TenantID: tenant, MovementID: tr.ID, Actor: "a"})
	require.NoError(t, err)
	require.Equal(t, enums.MovementTransfer, rev.Type)
	require.Equal(t, to, *rev.OriginLocationID)
	require.Equal(t, from, *rev.DestinationLocationID)
	requireDecimal(t, dec(10), h.balance(t, item, from).Quantity)
	requireDecimal(t, decimal.Zero, h.balance(t, item, to).Quantity)
}

func TestReverseEntryNeedsAvailableStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item, loc := h.item(t, enums.ValuationWeightedAverage), uuid.New()
	entry := h.receive(t, item, loc, 5, 1)
	_, err := h.svc.RecordExit(ctx, ExitInput{TenantID: tenant, ItemID: item, LocationID: loc, Quantity: dec(3), Actor: "a"})
	require.NoError(t, err)

	_, err = h.svc.ReverseMovement(ctx, ReverseInput{TenantID: tenant, MovementID: entry.ID, Actor: "a"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	requireDecimal(t, dec(2), h.balance(t, item, loc).Quantity)
}

func TestReversePendingDiscardIsInvalidState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item, loc := h.item(t, enums.ValuationWeightedAverage), uuid.New()
	h.receive(t, item, loc, 20, 10)
	pending, err := h.svc.RecordDiscard(ctx, discardInput(item, loc, 15))
	require.NoError(t, err)

	_, err = h.svc.ReverseMovement(ctx, ReverseInput{TenantID: tenant, MovementID: pending.ID, Actor: "a"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState), "got %v", err)
}

func TestReverseAppliedDiscardAdjustsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item, loc := h.item(t, enums.ValuationWeightedAverage), uuid.New()
	h.receive(t, item, loc, 10, 2)
	discard, err := h.svc.RecordDiscard(ctx, discardInput(item, loc, 4))
	require.NoError(t, err)
	require.True(t, discard.Applied)

	rev, err := h.svc.ReverseMovement(ctx, ReverseInput{TenantID: tenant, MovementID: discard.ID, Actor: "a"})
	require.NoError(t, err)
	require.Equal(t, enums.MovementAdjustPos, rev.Type)
	requireDecimal(t, dec(10), h.balance(t, item, loc).Quantity)
}

func TestBOMConsumption(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	parent := h.item(t, enums.ValuationWeightedAverage)
	wheel, frame := h.item(t, enums.ValuationWeightedAverage), h.item(t, enums.ValuationFIFO)
	loc := uuid.New()

	_, err := h.svc.RecordBOMConsumption(ctx, BOMInput{TenantID: tenant, ParentItemID: parent, LocationID: loc, Quantity: dec(1), Actor: "a"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfiguration), "got %v", err)

	require.NoError(t, h.svc.UpsertComponent(ctx, &models.BOMComponent{TenantID: tenant, ParentItemID: parent, ComponentItemID: wheel, Ratio: dec(2)}))
	require.NoError(t, h.svc.UpsertComponent(ctx, &models.BOMComponent{TenantID: tenant, ParentItemID: parent, ComponentItemID: frame, Ratio: dec(1)}))
	h.receive(t, wheel, loc, 10, 3)
	h.receive(t, frame, loc, 2, 50)

	_, err = h.svc.RecordBOMConsumption(ctx, BOMInput{TenantID: tenant, ParentItemID: parent, LocationID: loc, Quantity: dec(3), Actor: "a"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	requireDecimal(t, dec(10), h.balance(t, wheel, loc).Quantity)
	requireDecimal(t, dec(2), h.balance(t, frame, loc).Quantity)

	out, err := h.svc.RecordBOMConsumption(ctx, BOMInput{TenantID: tenant, ParentItemID: parent, LocationID: loc, Quantity: dec(2), Actor: "a"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].BatchID)
	require.Equal(t, *out[0].BatchID, *out[1].BatchID)
	requireDecimal(t, dec(6), h.balance(t, wheel, loc).Quantity)
	requireDecimal(t, decimal.Zero, h.balance(t, frame, loc).Quantity)

	require.Error(t, h.svc.UpsertComponent(ctx, &models.BOMComponent{TenantID: tenant, ParentItemID: parent, ComponentItemID: parent, Ratio: dec(1)}))
}
