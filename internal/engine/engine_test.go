package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/0xspreadcap/polymarket-maker/internal/api"
	"github.com/0xspreadcap/polymarket-maker/internal/config"
	"github.com/0xspreadcap/polymarket-maker/internal/ordermanager"
	"github.com/0xspreadcap/polymarket-maker/internal/quant"
	"github.com/0xspreadcap/polymarket-maker/internal/risk"
	"github.com/0xspreadcap/polymarket-maker/internal/statemachine"
	"github.com/0xspreadcap/polymarket-maker/internal/venue"
	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// testSignerKey is Hardhat/Anvil's well-known default account #0 private
// key — public, fixture-only, never used against a real chain.
const testSignerKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690"

type fakeVenue struct {
	postResponses []types.OrderResponse
	postErrs      []error
	postCalls     int
	cancelErr     error
	cancelled     [][]string
}

func (f *fakeVenue) PostOrder(_ context.Context, _ types.UserOrder, _ quant.Amounts) (types.OrderResponse, error) {
	i := f.postCalls
	f.postCalls++
	var err error
	if i < len(f.postErrs) {
		err = f.postErrs[i]
	}
	if err != nil {
		return types.OrderResponse{}, err
	}
	if i < len(f.postResponses) {
		return f.postResponses[i], nil
	}
	return types.OrderResponse{OrderID: "order-default", Success: true}, nil
}

func (f *fakeVenue) CancelOrders(_ context.Context, orderIDs []string) (*types.CancelResponse, error) {
	f.cancelled = append(f.cancelled, orderIDs)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &types.CancelResponse{Canceled: orderIDs}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func permissiveConfig() config.Config {
	return config.Config{
		Risk: config.RiskConfig{
			MinNotionalPerOrder:   0.01,
			MinExpectedProfit:     0.0001,
			MinSizeShares:         5,
			MaxSharesPerMarket:    1000,
			MaxUSDCPerMarket:      1000,
			MaxNotionalAtRiskUSDC: 1000,
		},
		Select: config.SelectConfig{MinSpreadCents: 1},
		Order: config.OrderConfig{
			TTL:                time.Minute,
			ReplacePriceTicks:  3,
			AskChaseWindow:     10 * time.Second,
			AskChaseMaxReplace: 2,
		},
	}
}

func newTestAuth(t *testing.T) *venue.Auth {
	t.Helper()
	signer, err := venue.NewEIP712Signer(testSignerKey)
	if err != nil {
		t.Fatalf("NewEIP712Signer: %v", err)
	}
	return venue.NewAuth(signer, "", 137, types.SigEOA, venue.Credentials{APIKey: "k", Secret: "c2VjcmV0", Passphrase: "p"})
}

// testEngine builds an Engine with real cache/state-machine/risk/order
// manager components but no live network connections — every scenario
// below drives it through process()/handleTrade()/handleOrderStatus()
// directly, never Start()/Run(), matching how the orchestrator's pure
// synchronous logic is meant to be exercised in isolation.
func testEngine(t *testing.T, cfg config.Config, fv *fakeVenue) *Engine {
	t.Helper()
	logger := testLogger()
	auth := newTestAuth(t)
	return &Engine{
		cfg:         cfg,
		marketFeed:  venue.NewMarketFeed("ws://test-market", logger),
		userFeed:    venue.NewUserFeed("ws://test-user", auth, logger),
		risk:        risk.New(cfg.Risk, logger),
		orders:      ordermanager.New(fv, cfg.Order, logger),
		metrics:     api.NewMetrics(),
		markets:     make(map[types.AssetID]*statemachine.MarketState),
		defaultTick: make(map[types.AssetID]types.TickSize),
		logger:      logger,
	}
}

func seedBook(e *Engine, asset types.AssetID, bid, ask string) {
	e.marketFeed.Apply(venue.FeedEvent{
		Kind: types.MarketEventBook,
		Book: &types.WSBookEvent{
			AssetID: string(asset),
			Buys:    []types.PriceLevel{{Price: bid, Size: "100"}},
			Sells:   []types.PriceLevel{{Price: ask, Size: "100"}},
		},
	})
}

func TestHappyPathRoundTrip(t *testing.T) {
	t.Parallel()
	cfg := permissiveConfig()
	fv := &fakeVenue{postResponses: []types.OrderResponse{
		{OrderID: "buy-1", Success: true},
		{OrderID: "sell-1", Success: true},
	}}
	e := testEngine(t, cfg, fv)

	asset := types.AssetID("asset-1")
	e.markets[asset] = statemachine.New(asset, "slug", "cond-1")
	seedBook(e, asset, "0.40", "0.45")

	ctx := context.Background()
	e.process(ctx, asset)
	ms := e.markets[asset]
	if ms.State() != statemachine.WaitBuyFill {
		t.Fatalf("state after buy placement = %s, want WAIT_BUY_FILL", ms.State())
	}
	if ms.BuyOrderID != "buy-1" || ms.BuyPrice != 0.40 {
		t.Fatalf("buy order = %+v, want id=buy-1 price=0.40", ms)
	}
	if got := e.risk.GlobalNotional(); got <= 0 {
		t.Errorf("global notional = %v, want > 0 after buy recorded", got)
	}

	e.handleTrade(&types.WSTradeEvent{AssetID: string(asset), Side: "BUY", Size: "5", Price: "0.40"})
	if ms.State() != statemachine.PlaceSell || ms.FilledSize != 5 {
		t.Fatalf("state after buy fill = %s filled=%v, want PLACE_SELL/5", ms.State(), ms.FilledSize)
	}
	if _, ok := e.orders.Active(asset); ok {
		t.Errorf("expected no active order immediately after buy fill")
	}

	e.process(ctx, asset)
	if ms.State() != statemachine.AskChase {
		t.Fatalf("state after sell placement = %s, want ASK_CHASE", ms.State())
	}
	if ms.SellOrderID != "sell-1" {
		t.Errorf("sell order id = %q, want sell-1", ms.SellOrderID)
	}

	e.handleTrade(&types.WSTradeEvent{AssetID: string(asset), Side: "SELL", Size: "5", Price: "0.45"})
	if ms.State() != statemachine.Complete {
		t.Fatalf("state after sell fill = %s, want COMPLETE", ms.State())
	}
	if got := e.risk.GlobalNotional(); got != 0 {
		t.Errorf("global notional after round trip = %v, want 0", got)
	}

	e.process(ctx, asset)
	if ms.State() != statemachine.Idle {
		t.Fatalf("state after completing round trip = %s, want IDLE", ms.State())
	}
}

func TestDriftReplace(t *testing.T) {
	t.Parallel()
	cfg := permissiveConfig()
	fv := &fakeVenue{postResponses: []types.OrderResponse{
		{OrderID: "buy-1"}, {OrderID: "buy-2"},
	}}
	e := testEngine(t, cfg, fv)

	asset := types.AssetID("asset-1")
	e.markets[asset] = statemachine.New(asset, "slug", "cond-1")
	seedBook(e, asset, "0.40", "0.45")

	ctx := context.Background()
	e.process(ctx, asset) // places buy-1 at 0.40

	// Best bid drifts by 4 ticks (tick defaults to 0.01 with no tick_size
	// event observed), past the 3-tick replace threshold.
	seedBook(e, asset, "0.44", "0.48")
	e.process(ctx, asset)

	ms := e.markets[asset]
	if ms.BuyOrderID != "buy-2" || ms.BuyPrice != 0.44 {
		t.Fatalf("buy order after drift = %+v, want id=buy-2 price=0.44", ms)
	}
	if len(fv.cancelled) != 1 || fv.cancelled[0][0] != "buy-1" {
		t.Errorf("cancelled = %+v, want exactly buy-1 cancelled once", fv.cancelled)
	}
}

func TestRiskCapSaturation(t *testing.T) {
	t.Parallel()
	cfg := permissiveConfig()
	cfg.Risk.MaxNotionalAtRiskUSDC = 0.01 // far below any feasible order notional
	fv := &fakeVenue{}
	e := testEngine(t, cfg, fv)

	asset := types.AssetID("asset-1")
	e.markets[asset] = statemachine.New(asset, "slug", "cond-1")
	seedBook(e, asset, "0.40", "0.45")

	e.process(context.Background(), asset)

	ms := e.markets[asset]
	if ms.State() != statemachine.Idle {
		t.Errorf("state = %s, want IDLE (buy should have been denied)", ms.State())
	}
	if fv.postCalls != 0 {
		t.Errorf("post calls = %d, want 0 (denied before placement)", fv.postCalls)
	}
	if got := e.risk.GlobalNotional(); got != 0 {
		t.Errorf("global notional = %v, want 0 (nothing should have been recorded)", got)
	}
}

func TestExternalCancelRaceIgnoresStaleOrderID(t *testing.T) {
	t.Parallel()
	cfg := permissiveConfig()
	fv := &fakeVenue{postResponses: []types.OrderResponse{{OrderID: "buy-1"}}}
	e := testEngine(t, cfg, fv)

	asset := types.AssetID("asset-1")
	e.markets[asset] = statemachine.New(asset, "slug", "cond-1")
	seedBook(e, asset, "0.40", "0.45")
	e.process(context.Background(), asset)

	ms := e.markets[asset]
	e.handleOrderStatus(&types.WSOrderEvent{AssetID: string(asset), ID: "buy-0", Status: "CANCELLED"})
	if ms.State() != statemachine.WaitBuyFill {
		t.Fatalf("state after stale cancel = %s, want WAIT_BUY_FILL unchanged", ms.State())
	}

	e.handleOrderStatus(&types.WSOrderEvent{AssetID: string(asset), ID: "buy-1", Status: "CANCELLED"})
	if ms.State() != statemachine.Idle || ms.BuyOrderID != "" {
		t.Fatalf("state after matching cancel = %s orderID=%q, want IDLE/empty", ms.State(), ms.BuyOrderID)
	}
	if got := e.risk.GlobalNotional(); got != 0 {
		t.Errorf("global notional after external cancel = %v, want 0", got)
	}
}

func TestFeedInvariantViolationDeactivatesOnNoPrices(t *testing.T) {
	t.Parallel()
	cfg := permissiveConfig()
	fv := &fakeVenue{}
	e := testEngine(t, cfg, fv)

	asset := types.AssetID("asset-1")
	ms := statemachine.New(asset, "slug", "cond-1")
	ms.InitializedAt = time.Now().Add(-time.Hour) // past the 30s grace period
	e.markets[asset] = ms
	// A crossed book violates the feed's invariant and is dropped, so the
	// asset never gets a valid top of book.
	seedBook(e, asset, "0.55", "0.40")

	e.process(context.Background(), asset)

	if _, ok := e.markets[asset]; ok {
		t.Fatalf("market still present after deactivation on no_prices")
	}
}

func TestDeactivationWithInventoryLiquidates(t *testing.T) {
	t.Parallel()
	cfg := permissiveConfig()
	fv := &fakeVenue{postResponses: []types.OrderResponse{{OrderID: "liq-sell"}}}
	e := testEngine(t, cfg, fv)

	asset := types.AssetID("asset-1")
	ms := statemachine.New(asset, "slug", "cond-1")
	_ = ms.ToPlaceBuy()
	_ = ms.OnBuyPlaced("buy-1", 0.40, 5, time.Now())
	_ = ms.OnBuyFilled(5)
	_ = ms.OnSellPlaced("sell-1", 0.45, time.Now())
	_ = ms.ChaseExpired() // ASK_CHASE -> WAIT_SELL_FILL, per scenario 6
	ms.InitializedAt = time.Now().Add(-time.Hour)
	e.markets[asset] = ms
	e.orders.Adopt(asset, &types.ActiveOrder{OrderID: "sell-1", Asset: asset, Side: types.SELL, Price: 0.45, Size: 5, PlacedAt: time.Now()})

	if ms.State() != statemachine.WaitSellFill {
		t.Fatalf("setup: state = %s, want WAIT_SELL_FILL", ms.State())
	}

	// Spread is below MinSpreadCents/100 (0.01), so check_exit fires
	// spread_too_small once past the grace period.
	seedBook(e, asset, "0.50", "0.505")

	e.process(context.Background(), asset)

	if _, ok := e.markets[asset]; ok {
		t.Fatalf("market still present after deactivation")
	}
	if len(fv.cancelled) != 1 || fv.cancelled[0][0] != "sell-1" {
		t.Fatalf("cancelled = %+v, want exactly sell-1 cancelled", fv.cancelled)
	}
	if fv.postCalls != 1 {
		t.Fatalf("post calls = %d, want 1 (liquidation sell)", fv.postCalls)
	}
	if got := e.risk.GlobalNotional(); got != 0 {
		t.Errorf("global notional after CleanMarket = %v, want 0", got)
	}
}

func TestWaitSellFillReplacesOnDrift(t *testing.T) {
	t.Parallel()
	cfg := permissiveConfig()
	fv := &fakeVenue{postResponses: []types.OrderResponse{{OrderID: "sell-2"}}}
	e := testEngine(t, cfg, fv)

	asset := types.AssetID("asset-1")
	ms := statemachine.New(asset, "slug", "cond-1")
	_ = ms.ToPlaceBuy()
	_ = ms.OnBuyPlaced("buy-1", 0.40, 5, time.Now())
	_ = ms.OnBuyFilled(5)
	_ = ms.OnSellPlaced("sell-1", 0.45, time.Now())
	_ = ms.ChaseExpired() // ASK_CHASE -> WAIT_SELL_FILL, chase window spent
	e.markets[asset] = ms
	e.orders.Adopt(asset, &types.ActiveOrder{OrderID: "sell-1", Asset: asset, Side: types.SELL, Price: 0.45, Size: 5, PlacedAt: time.Now()})

	if ms.State() != statemachine.WaitSellFill {
		t.Fatalf("setup: state = %s, want WAIT_SELL_FILL", ms.State())
	}

	// Ask drifts 0.04 away from the resting sell's 0.45, past the 3-tick
	// (0.03) replace threshold — the sell must reprice even though the
	// ask-chase window has already expired.
	seedBook(e, asset, "0.40", "0.49")

	e.process(context.Background(), asset)

	if ms.State() != statemachine.WaitSellFill {
		t.Fatalf("state = %s, want still WAIT_SELL_FILL", ms.State())
	}
	if ms.SellOrderID != "sell-2" || ms.SellPrice != 0.49 {
		t.Errorf("sell order = %s @ %v, want sell-2 @ 0.49", ms.SellOrderID, ms.SellPrice)
	}
	if len(fv.cancelled) != 1 || fv.cancelled[0][0] != "sell-1" {
		t.Fatalf("cancelled = %+v, want exactly sell-1 cancelled", fv.cancelled)
	}
	if fv.postCalls != 1 {
		t.Fatalf("post calls = %d, want 1 (replacement sell)", fv.postCalls)
	}
}

func TestValidPricesRejectsOutOfBandQuotes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		tob  types.TopOfBook
		want bool
	}{
		{"healthy", types.TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.40, BestAsk: 0.45}, true},
		{"bid too low", types.TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.0005, BestAsk: 0.45}, false},
		{"ask too high", types.TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.40, BestAsk: 0.9995}, false},
		{"spread too small", types.TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.40, BestAsk: 0.4001}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := validPrices(tc.tob); got != tc.want {
				t.Errorf("validPrices(%+v) = %v, want %v", tc.tob, got, tc.want)
			}
		})
	}
}
