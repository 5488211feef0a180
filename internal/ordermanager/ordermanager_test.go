package ordermanager

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/0xspreadcap/polymarket-maker/internal/config"
	"github.com/0xspreadcap/polymarket-maker/internal/quant"
	"github.com/0xspreadcap/polymarket-maker/internal/venue"
	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

type fakeVenue struct {
	postSeq     int
	postErr     error
	cancelErr   error
	cancelled   []string
	lastOrder   types.UserOrder
	lastAmounts quant.Amounts
}

func (f *fakeVenue) PostOrder(ctx context.Context, order types.UserOrder, amounts quant.Amounts) (types.OrderResponse, error) {
	f.lastOrder = order
	f.lastAmounts = amounts
	if f.postErr != nil {
		return types.OrderResponse{}, f.postErr
	}
	f.postSeq++
	return types.OrderResponse{Success: true, OrderID: "order-" + string(rune('a'+f.postSeq)), Status: "live"}, nil
}

func (f *fakeVenue) CancelOrders(ctx context.Context, orderIDs []string) (*types.CancelResponse, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderIDs...)
	return &types.CancelResponse{Canceled: orderIDs}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCfg() config.OrderConfig {
	return config.OrderConfig{
		TTL:                5 * time.Second,
		ReplacePriceTicks:  3,
		AskChaseWindow:     10 * time.Second,
		AskChaseMaxReplace: 2,
	}
}

func TestPlaceBuyPlacesAtBestBid(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	order, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Price != 0.40 || order.Side != types.BUY {
		t.Errorf("order = %+v, want price=0.40 side=BUY", order)
	}
	if fv.lastOrder.Price != 0.40 {
		t.Errorf("posted order price = %v, want 0.40", fv.lastOrder.Price)
	}

	active, ok := m.Active("a1")
	if !ok || active.OrderID != order.OrderID {
		t.Errorf("active order not recorded: %+v ok=%v", active, ok)
	}
}

func TestPlaceSellPlacesAtBestAsk(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	order, err := m.PlaceSell(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Price != 0.45 || order.Side != types.SELL {
		t.Errorf("order = %+v, want price=0.45 side=SELL", order)
	}
}

func TestPlaceBuyRejectsSideLockViolation(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	if _, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001); err != nil {
		t.Fatalf("first place failed: %v", err)
	}
	_, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001)
	var sideLock *SideLockError
	if !errors.As(err, &sideLock) {
		t.Errorf("err = %v, want *SideLockError", err)
	}
}

func TestPlaceBuyRejectsWouldCross(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	_, err := m.PlaceBuy(context.Background(), "a1", 0.50, 0.45, 20, types.Tick001)
	var crossed *venue.WouldCross
	if !errors.As(err, &crossed) {
		t.Errorf("err = %v, want *venue.WouldCross", err)
	}
}

func TestPlaceBuyDoesNotRecordOnVenueFailure(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{postErr: &venue.ApiError{Reason: "size too small"}}
	m := New(fv, testCfg(), testLogger())

	if _, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001); err == nil {
		t.Fatal("expected error from venue")
	}
	if _, ok := m.Active("a1"); ok {
		t.Error("active order recorded despite venue failure")
	}
}

func TestShouldReplaceOnTTLExpiry(t *testing.T) {
	t.Parallel()
	cfg := testCfg()
	cfg.TTL = 1 * time.Millisecond
	order := &types.ActiveOrder{Price: 0.40, PlacedAt: time.Now().Add(-10 * time.Millisecond)}

	if !ShouldReplaceBuy(order, 0.40, types.Tick001, cfg) {
		t.Error("expected replace due to TTL expiry")
	}
}

func TestShouldReplaceOnPriceDrift(t *testing.T) {
	t.Parallel()
	cfg := testCfg()
	cfg.ReplacePriceTicks = 2
	order := &types.ActiveOrder{Price: 0.40, PlacedAt: time.Now()}

	// drift of 1 tick (0.01) should not trigger; 2 ticks (0.02) should.
	if ShouldReplaceBuy(order, 0.41, types.Tick001, cfg) {
		t.Error("drift of 1 tick should not trigger replace")
	}
	if !ShouldReplaceBuy(order, 0.42, types.Tick001, cfg) {
		t.Error("drift of 2 ticks should trigger replace")
	}
}

func TestCanChase(t *testing.T) {
	t.Parallel()
	cfg := testCfg()
	cfg.AskChaseWindow = 1 * time.Hour
	cfg.AskChaseMaxReplace = 2

	if !CanChase(time.Now(), 0, cfg) {
		t.Error("fresh window with no replaces should allow chase")
	}
	if CanChase(time.Now(), 2, cfg) {
		t.Error("replace count at ceiling should deny chase")
	}
	if CanChase(time.Now().Add(-2*time.Hour), 0, cfg) {
		t.Error("expired window should deny chase")
	}
}

func TestReplaceCancelsThenPlaces(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	first, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001)
	if err != nil {
		t.Fatalf("initial place failed: %v", err)
	}

	second, err := m.Replace(context.Background(), "a1", 0.42, 0.47, 20, types.Tick001)
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if second.OrderID == first.OrderID {
		t.Error("replace should produce a new order ID")
	}
	if len(fv.cancelled) != 1 || fv.cancelled[0] != first.OrderID {
		t.Errorf("cancelled = %v, want [%s]", fv.cancelled, first.OrderID)
	}
}

func TestReplaceLeavesExistingOrderOnCancelFailure(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	first, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001)
	if err != nil {
		t.Fatalf("initial place failed: %v", err)
	}

	fv.cancelErr = &venue.ApiError{Reason: "order not found"}
	_, err = m.Replace(context.Background(), "a1", 0.42, 0.47, 20, types.Tick001)
	var replaceFailed *ReplaceFailed
	if !errors.As(err, &replaceFailed) {
		t.Fatalf("err = %v, want *ReplaceFailed", err)
	}

	active, ok := m.Active("a1")
	if !ok || active.OrderID != first.OrderID {
		t.Errorf("active order changed after failed cancel: %+v ok=%v", active, ok)
	}
}

func TestReplaceReleasesLockWhenPlaceFailsAfterCancel(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	if _, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001); err != nil {
		t.Fatalf("initial place failed: %v", err)
	}

	fv.postErr = &venue.ApiError{Reason: "rejected"}
	_, err := m.Replace(context.Background(), "a1", 0.42, 0.47, 20, types.Tick001)
	if err == nil {
		t.Fatal("expected placement error")
	}
	if _, ok := m.Active("a1"); ok {
		t.Error("side lock should be released after cancel-succeeded/place-failed replace")
	}
}

func TestCancelReleasesLock(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	if _, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001); err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if err := m.Cancel(context.Background(), "a1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, ok := m.Active("a1"); ok {
		t.Error("active order should be cleared after cancel")
	}
}

func TestCancelOnUntrackedAssetIsNoop(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	if err := m.Cancel(context.Background(), "nonexistent"); err != nil {
		t.Errorf("unexpected error cancelling untracked asset: %v", err)
	}
}

func TestForgetExternallyClosedReleasesLock(t *testing.T) {
	t.Parallel()
	fv := &fakeVenue{}
	m := New(fv, testCfg(), testLogger())

	if _, err := m.PlaceBuy(context.Background(), "a1", 0.40, 0.45, 20, types.Tick001); err != nil {
		t.Fatalf("place failed: %v", err)
	}
	m.ForgetExternallyClosed("a1")
	if _, ok := m.Active("a1"); ok {
		t.Error("active order should be cleared")
	}
}
