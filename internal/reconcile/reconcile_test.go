package reconcile

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

type fakeVenueOrders struct {
	orders []types.OpenOrder
	err    error
}

func (f *fakeVenueOrders) GetOpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	return f.orders, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestReconcileFindsMissingOnVenue(t *testing.T) {
	t.Parallel()
	fv := &fakeVenueOrders{} // venue reports nothing open
	r := New(fv, testLogger())

	active := map[types.AssetID]*types.ActiveOrder{
		"a1": {OrderID: "order-1", Asset: "a1", Side: types.BUY, Price: 0.4, Size: 10},
	}

	report, err := r.Reconcile(context.Background(), active)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Discrepancies) != 1 || report.Discrepancies[0].Kind != MissingOnVenue {
		t.Errorf("discrepancies = %+v, want one MissingOnVenue", report.Discrepancies)
	}
}

func TestReconcileFindsOrphanedOnVenue(t *testing.T) {
	t.Parallel()
	fv := &fakeVenueOrders{orders: []types.OpenOrder{
		{ID: "order-9", AssetID: "a9", Side: "BUY", OriginalSize: "10", SizeMatched: "0", Price: "0.4"},
	}}
	r := New(fv, testLogger())

	report, err := r.Reconcile(context.Background(), map[types.AssetID]*types.ActiveOrder{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Discrepancies) != 1 || report.Discrepancies[0].Kind != OrphanedOnVenue {
		t.Errorf("discrepancies = %+v, want one OrphanedOnVenue", report.Discrepancies)
	}
}

func TestReconcileMatchedOrdersProduceNoDiscrepancy(t *testing.T) {
	t.Parallel()
	fv := &fakeVenueOrders{orders: []types.OpenOrder{
		{ID: "order-1", AssetID: "a1", Side: "BUY", OriginalSize: "10", SizeMatched: "0", Price: "0.4"},
	}}
	r := New(fv, testLogger())

	active := map[types.AssetID]*types.ActiveOrder{
		"a1": {OrderID: "order-1", Asset: "a1", Side: types.BUY, Price: 0.4, Size: 10},
	}

	report, err := r.Reconcile(context.Background(), active)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Discrepancies) != 0 {
		t.Errorf("discrepancies = %+v, want none", report.Discrepancies)
	}
}

func TestReconstructFiltersToTrackedAssets(t *testing.T) {
	t.Parallel()
	fv := &fakeVenueOrders{orders: []types.OpenOrder{
		{ID: "order-1", AssetID: "a1", Side: "BUY", OriginalSize: "10", SizeMatched: "2", Price: "0.4"},
		{ID: "order-2", AssetID: "a2", Side: "SELL", OriginalSize: "5", SizeMatched: "0", Price: "0.6"},
	}}
	r := New(fv, testLogger())

	result, err := r.Reconstruct(context.Background(), []types.AssetID{"a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("result = %+v, want exactly asset a1", result)
	}
	order, ok := result["a1"]
	if !ok {
		t.Fatal("missing a1 in reconstructed set")
	}
	if order.Size != 8 {
		t.Errorf("size = %v, want 8 (original 10 - matched 2)", order.Size)
	}
	if order.Price != 0.4 || order.Side != types.BUY {
		t.Errorf("order = %+v, want price=0.4 side=BUY", order)
	}
}

func TestReconstructSkipsFullyFilledOrders(t *testing.T) {
	t.Parallel()
	fv := &fakeVenueOrders{orders: []types.OpenOrder{
		{ID: "order-1", AssetID: "a1", Side: "BUY", OriginalSize: "10", SizeMatched: "10", Price: "0.4"},
	}}
	r := New(fv, testLogger())

	result, err := r.Reconstruct(context.Background(), []types.AssetID{"a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("result = %+v, want empty (fully filled order has no remaining size)", result)
	}
}

func TestReconstructSkipsUnparsableOrders(t *testing.T) {
	t.Parallel()
	fv := &fakeVenueOrders{orders: []types.OpenOrder{
		{ID: "order-1", AssetID: "a1", Side: "BUY", OriginalSize: "not-a-number", SizeMatched: "0", Price: "0.4"},
	}}
	r := New(fv, testLogger())

	result, err := r.Reconstruct(context.Background(), []types.AssetID{"a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}
