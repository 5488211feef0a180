// Package engine is the central orchestrator of the market-making bot.
//
// It wires together all subsystems:
//
//  1. The selector discovers eligible binary-outcome markets.
//  2. Each chosen token gets a state machine driving one buy-then-sell
//     round trip, gated by the risk manager and executed through the
//     order manager's side lock.
//  3. MarketFeed and UserFeed events, the 500ms tick, and the periodic
//     metrics/reconcile/health timers are all serialized onto a single
//     select loop — the single-threaded cooperative executor the risk and
//     state-machine invariants depend on.
//
// Lifecycle: New() -> Start() -> [runs until Stop() or a signal] -> Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0xspreadcap/polymarket-maker/internal/api"
	"github.com/0xspreadcap/polymarket-maker/internal/config"
	"github.com/0xspreadcap/polymarket-maker/internal/directory"
	"github.com/0xspreadcap/polymarket-maker/internal/ordermanager"
	"github.com/0xspreadcap/polymarket-maker/internal/reconcile"
	"github.com/0xspreadcap/polymarket-maker/internal/risk"
	"github.com/0xspreadcap/polymarket-maker/internal/selector"
	"github.com/0xspreadcap/polymarket-maker/internal/statemachine"
	"github.com/0xspreadcap/polymarket-maker/internal/venue"
	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

const (
	tickInterval   = 500 * time.Millisecond
	warmUpWait     = 10 * time.Second
	exitGrace      = 30 * time.Second
	healthInterval = 180 * time.Second
	staleAfter     = 5 * time.Minute

	minValidBid    = 0.001
	maxValidAsk    = 0.999
	minValidSpread = 0.001
	maxValidSpread = 0.5
)

// Engine owns every subsystem and the one goroutine that mutates them.
type Engine struct {
	cfg config.Config

	client     *venue.Client
	auth       *venue.Auth
	marketFeed *venue.MarketFeed
	userFeed   *venue.UserFeed
	selector   *selector.Selector
	risk       *risk.Manager
	orders     *ordermanager.Manager
	reconciler *reconcile.Reconciler
	metrics    *api.Metrics
	apiServer  *api.Server

	markets     map[types.AssetID]*statemachine.MarketState
	defaultTick map[types.AssetID]types.TickSize

	fatal error

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every subsystem against cfg. If L2 API credentials aren't
// configured it derives them via L1 (EIP-712) auth, the same fallback the
// venue client's own DeriveAPIKey documents.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	signer, err := venue.NewEIP712Signer(cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	creds := venue.Credentials{
		APIKey:     cfg.Wallet.APIKey,
		Secret:     cfg.Wallet.APISecret,
		Passphrase: cfg.Wallet.Passphrase,
	}
	auth := venue.NewAuth(signer, cfg.Wallet.FunderAddress, cfg.Wallet.ChainID, types.SignatureType(cfg.Wallet.SignatureType), creds)

	client := venue.NewClient(cfg.Venue.CLOBBaseURL, auth, cfg.Venue.ExchangeAddress, cfg.DryRun, logger)

	if !auth.HasL2Credentials() {
		logger.Info("no L2 credentials configured, deriving via L1 auth")
		derived, err := client.DeriveAPIKey(context.Background())
		if err != nil {
			return nil, fmt.Errorf("derive L2 credentials: %w", err)
		}
		auth.SetCredentials(*derived)
	}

	marketFeed := venue.NewMarketFeed(cfg.Venue.WSMarketURL, logger)
	userFeed := venue.NewUserFeed(cfg.Venue.WSUserURL, auth, logger)
	dir := directory.NewClient(cfg.Venue.DirectoryBaseURL)
	sel := selector.New(cfg.Select, cfg.Risk, dir, marketFeed, client, logger)
	riskMgr := risk.New(cfg.Risk, logger)
	orders := ordermanager.New(client, cfg.Order, logger)
	reconciler := reconcile.New(client, logger)
	metrics := api.NewMetrics()
	apiServer := api.NewServer(cfg.API, metrics, logger)

	marketFeed.OnReconnect = func(attempt int) { metrics.IncFeedReconnect("market") }
	userFeed.OnReconnect = func(attempt int) { metrics.IncFeedReconnect("user") }

	return &Engine{
		cfg:         cfg,
		client:      client,
		auth:        auth,
		marketFeed:  marketFeed,
		userFeed:    userFeed,
		selector:    sel,
		risk:        riskMgr,
		orders:      orders,
		reconciler:  reconciler,
		metrics:     metrics,
		apiServer:   apiServer,
		markets:     make(map[types.AssetID]*statemachine.MarketState),
		defaultTick: make(map[types.AssetID]types.TickSize),
		logger:      logger.With("component", "engine"),
	}, nil
}

// Start launches both feeds as background goroutines, runs the startup
// sequence (select markets, subscribe feeds, warm up, reconstruct order state
// from the venue), and then launches the API server and the main loop as
// background goroutines.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.marketFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("market feed stopped", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.userFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("user feed stopped", "error", err)
		}
	}()

	if err := e.selectAndInitMarkets(e.ctx); err != nil {
		return fmt.Errorf("select markets: %w", err)
	}

	if err := e.seedFromVenue(e.ctx); err != nil {
		e.logger.Error("startup reconciliation failed, continuing with no adopted orders", "error", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.apiServer.Start(); err != nil {
			e.logger.Error("api server stopped", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("main loop stopped", "error", err)
		}
	}()

	return nil
}

// selectAndInitMarkets runs the selector once, initializes a state machine
// and subscribes both feeds for every chosen token, then waits up to
// warmUpWait for initial prices — logging, not failing, markets that
// haven't received one yet.
func (e *Engine) selectAndInitMarkets(ctx context.Context) error {
	candidates, err := e.selector.Select(ctx)
	if err != nil {
		return err
	}

	for _, c := range candidates {
		e.markets[c.Asset] = statemachine.New(c.Asset, c.Market.Slug, c.ConditionID)
		e.defaultTick[c.Asset] = c.Market.TickSize
		e.marketFeed.Subscribe(c.Asset)
		e.userFeed.Track(c.ConditionID)
	}
	e.logger.Info("markets selected", "count", len(candidates))

	// Run has not started yet, so the warm-up applies market-feed events
	// itself; nothing else would move them into the price cache.
	deadline := time.After(warmUpWait)
warmUp:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.marketFeed.Events():
			e.marketFeed.Apply(ev)
		case <-deadline:
			break warmUp
		}
	}

	for asset := range e.markets {
		if _, ok := e.marketFeed.LastPrices(asset); !ok {
			e.logger.Warn("market has no initial price after warm-up, will keep waiting", "asset", asset)
		}
	}
	return nil
}

// seedFromVenue rebuilds order-manager and risk state for every selected
// asset from the venue's open orders, since there is no persisted state to
// load. A recovered BUY fast-forwards the state machine to WAIT_BUY_FILL; a
// recovered SELL fast-forwards through the buy-fill transition since the
// shares are already held.
func (e *Engine) seedFromVenue(ctx context.Context) error {
	assets := make([]types.AssetID, 0, len(e.markets))
	for asset := range e.markets {
		assets = append(assets, asset)
	}

	recovered, err := e.reconciler.Reconstruct(ctx, assets)
	if err != nil {
		return err
	}

	for asset, order := range recovered {
		ms, ok := e.markets[asset]
		if !ok {
			continue
		}
		e.orders.Adopt(asset, order)

		switch order.Side {
		case types.BUY:
			_ = ms.ToPlaceBuy()
			_ = ms.OnBuyPlaced(order.OrderID, order.Price, order.Size, order.PlacedAt)
		case types.SELL:
			_ = ms.ToPlaceBuy()
			_ = ms.OnBuyPlaced("", order.Price, order.Size, order.PlacedAt)
			_ = ms.OnBuyFilled(order.Size)
			_ = ms.OnSellPlaced(order.OrderID, order.Price, order.PlacedAt)
		}
		e.risk.RecordBuyOrder(asset, order.Size, order.Price)
		e.logger.Info("adopted order from venue", "asset", asset, "side", order.Side, "order_id", order.OrderID)
	}
	return nil
}

// Run is the single-threaded cooperative executor: every event source —
// the 500ms tick, both feeds, and the periodic timers — is handled to
// completion here before the loop reads its next event. Returns the first
// fatal error observed (an InvariantViolation, or context cancellation).
func (e *Engine) Run(ctx context.Context) error {
	tick := time.NewTicker(tickInterval)
	defer tick.Stop()
	reconcileTick := time.NewTicker(e.cfg.Period.ReconcileInterval)
	defer reconcileTick.Stop()
	metricsTick := time.NewTicker(e.cfg.Period.MetricsInterval)
	defer metricsTick.Stop()
	healthTick := time.NewTicker(healthInterval)
	defer healthTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.marketFeed.Events():
			e.marketFeed.Apply(ev)
		case ev := <-e.userFeed.Events():
			e.handleUserEvent(ev)
		case <-tick.C:
			if err := e.runTick(ctx); err != nil {
				return err
			}
		case <-reconcileTick.C:
			e.runReconcile(ctx)
		case <-metricsTick.C:
			e.runMetrics()
		case <-healthTick.C:
			e.runHealthCheck()
		}
	}
}

// runTick processes every active asset once, per spec's process(asset).
func (e *Engine) runTick(ctx context.Context) error {
	for asset := range e.markets {
		e.process(ctx, asset)
		if e.fatal != nil {
			return e.fatal
		}
	}
	return nil
}

func (e *Engine) process(ctx context.Context, asset types.AssetID) {
	ms, ok := e.markets[asset]
	if !ok || ms.State() == statemachine.Deactivating {
		return
	}

	if reason, exit := e.checkExit(ms); exit {
		e.deactivate(ctx, ms, reason)
		return
	}

	tob, ok := e.marketFeed.LastPrices(asset)
	if !ok || !validPrices(tob) {
		return
	}

	switch ms.State() {
	case statemachine.Idle:
		e.tryPlaceBuy(ctx, ms, tob)
	case statemachine.WaitBuyFill:
		e.maybeReplaceBuy(ctx, ms, tob)
	case statemachine.PlaceSell:
		e.tryPlaceSell(ctx, ms, tob)
	case statemachine.AskChase:
		e.maybeChaseSell(ctx, ms, tob)
	case statemachine.WaitSellFill:
		e.maybeReplaceWaitingSell(ctx, ms, tob)
	case statemachine.Complete:
		_ = ms.ToIdle()
	}
}

// checkExit implements check_exit: after a 30s grace period from
// InitializedAt, a market with no valid price or too-small a spread is
// unhealthy and must be deactivated.
func (e *Engine) checkExit(ms *statemachine.MarketState) (string, bool) {
	if time.Since(ms.InitializedAt) < exitGrace {
		return "", false
	}
	tob, ok := e.marketFeed.LastPrices(ms.Asset)
	if !ok || !tob.Valid() {
		return "no_prices", true
	}
	if tob.Spread() < e.cfg.Select.MinSpreadCents/100 {
		return "spread_too_small", true
	}
	return "", false
}

// validPrices applies the per-tick price sanity band on top of the feed's
// own book invariant (0 < bid < ask <= 1, spread <= 0.20).
func validPrices(tob types.TopOfBook) bool {
	if !tob.Valid() {
		return false
	}
	if tob.BestBid < minValidBid || tob.BestAsk > maxValidAsk {
		return false
	}
	spread := tob.Spread()
	return spread >= minValidSpread && spread <= maxValidSpread
}

func (e *Engine) tickSizeFor(asset types.AssetID) types.TickSize {
	if ts, ok := e.marketFeed.TickSize(asset); ok {
		return ts
	}
	if ts, ok := e.defaultTick[asset]; ok {
		return ts
	}
	return types.Tick001
}

func (e *Engine) tryPlaceBuy(ctx context.Context, ms *statemachine.MarketState, tob types.TopOfBook) {
	size := e.cfg.Risk.MinSizeShares
	reason, ok := e.risk.CanPlaceBuy(ms.Asset, size, tob.BestBid, tob.Spread()*100)
	if !ok {
		e.metrics.IncRiskDenial(reason)
		e.logger.Info("buy denied", "asset", ms.Asset, "reason", reason)
		return
	}

	if err := ms.ToPlaceBuy(); err != nil {
		e.logger.Error("unexpected transition error", "asset", ms.Asset, "error", err)
		return
	}

	order, err := e.orders.PlaceBuy(ctx, ms.Asset, tob.BestBid, tob.BestAsk, size, e.tickSizeFor(ms.Asset))
	if err != nil {
		if e.noteIfSideLockViolation(ms.Asset, err) {
			return
		}
		_ = ms.OnBuyPlaceFailed()
		e.logger.Warn("buy placement failed", "asset", ms.Asset, "error", err)
		return
	}

	_ = ms.OnBuyPlaced(order.OrderID, order.Price, order.Size, order.PlacedAt)
	e.risk.RecordBuyOrder(ms.Asset, order.Size, order.Price)
}

func (e *Engine) maybeReplaceBuy(ctx context.Context, ms *statemachine.MarketState, tob types.TopOfBook) {
	active, ok := e.orders.Active(ms.Asset)
	if !ok {
		return
	}
	tickSize := e.tickSizeFor(ms.Asset)
	if !ordermanager.ShouldReplaceBuy(active, tob.BestBid, tickSize, e.cfg.Order) {
		return
	}

	newOrder, err := e.orders.Replace(ctx, ms.Asset, tob.BestBid, tob.BestAsk, active.Size, tickSize)
	if err != nil {
		e.handleBuyReplaceFailure(ms, active, err)
		return
	}

	_ = ms.UpdateBuyOrder(newOrder.OrderID, newOrder.Price, newOrder.PlacedAt)
	e.risk.CancelBuyOrder(ms.Asset, active.Size, active.Price)
	e.risk.RecordBuyOrder(ms.Asset, newOrder.Size, newOrder.Price)
}

// handleBuyReplaceFailure implements spec section 4.4's two replace-failure
// outcomes for the buy side: a failed cancel leaves the existing order
// untouched; a cancel that succeeds but whose re-placement fails releases
// the side lock, so the market reverts to IDLE.
func (e *Engine) handleBuyReplaceFailure(ms *statemachine.MarketState, active *types.ActiveOrder, err error) {
	if _, ok := err.(*ordermanager.ReplaceFailed); ok {
		e.logger.Warn("buy replace failed, keeping existing order", "asset", ms.Asset, "error", err)
		return
	}
	e.risk.CancelBuyOrder(ms.Asset, active.Size, active.Price)
	_ = ms.OnBuyExternallyCancelled()
	e.logger.Error("buy replace cancel succeeded but place failed, reverting to idle", "asset", ms.Asset, "error", err)
}

func (e *Engine) tryPlaceSell(ctx context.Context, ms *statemachine.MarketState, tob types.TopOfBook) {
	order, err := e.orders.PlaceSell(ctx, ms.Asset, tob.BestBid, tob.BestAsk, ms.FilledSize, e.tickSizeFor(ms.Asset))
	if err != nil {
		if e.noteIfSideLockViolation(ms.Asset, err) {
			return
		}
		_ = ms.OnSellPlaceFailed()
		e.logger.Warn("sell placement failed, retrying next tick", "asset", ms.Asset, "error", err)
		return
	}
	_ = ms.OnSellPlaced(order.OrderID, order.Price, order.PlacedAt)
}

func (e *Engine) maybeChaseSell(ctx context.Context, ms *statemachine.MarketState, tob types.TopOfBook) {
	active, ok := e.orders.Active(ms.Asset)
	if !ok {
		// A prior replace's cancel succeeded but its place failed, leaving
		// the position unprotected. Repair by placing fresh, restarting
		// the chase window against the current ask.
		order, err := e.orders.PlaceSell(ctx, ms.Asset, tob.BestBid, tob.BestAsk, ms.FilledSize, e.tickSizeFor(ms.Asset))
		if err != nil {
			if e.noteIfSideLockViolation(ms.Asset, err) {
				return
			}
			e.logger.Warn("sell repair placement failed, will retry next tick", "asset", ms.Asset, "error", err)
			return
		}
		_ = ms.UpdateSellOrder(order.OrderID, order.Price, order.PlacedAt, true)
		return
	}

	if !ordermanager.CanChase(ms.ChaseStart, ms.ReplaceCount, e.cfg.Order) {
		_ = ms.ChaseExpired()
		return
	}

	tickSize := e.tickSizeFor(ms.Asset)
	if !ordermanager.ShouldReplaceSell(active, tob.BestAsk, tickSize, e.cfg.Order) {
		return
	}

	newOrder, err := e.orders.Replace(ctx, ms.Asset, tob.BestBid, tob.BestAsk, active.Size, tickSize)
	if err != nil {
		if _, ok := err.(*ordermanager.ReplaceFailed); ok {
			e.logger.Warn("sell replace failed, keeping existing order", "asset", ms.Asset, "error", err)
			return
		}
		e.logger.Error("sell replace cancel succeeded but place failed, position unprotected until next tick", "asset", ms.Asset, "error", err)
		return
	}

	ms.NoteReplace()
	_ = ms.UpdateSellOrder(newOrder.OrderID, newOrder.Price, newOrder.PlacedAt, false)
}

// maybeReplaceWaitingSell keeps repricing a held position's sell order once
// the ask-chase window has expired: unlike maybeChaseSell there is no
// CanChase gate, so drift-or-TTL replacement continues indefinitely until
// the sell fills, matching the liquidation guarantee a market holding
// shares is never left quoting a stale ask.
func (e *Engine) maybeReplaceWaitingSell(ctx context.Context, ms *statemachine.MarketState, tob types.TopOfBook) {
	active, ok := e.orders.Active(ms.Asset)
	if !ok {
		order, err := e.orders.PlaceSell(ctx, ms.Asset, tob.BestBid, tob.BestAsk, ms.FilledSize, e.tickSizeFor(ms.Asset))
		if err != nil {
			if e.noteIfSideLockViolation(ms.Asset, err) {
				return
			}
			e.logger.Warn("sell repair placement failed, will retry next tick", "asset", ms.Asset, "error", err)
			return
		}
		_ = ms.UpdateSellOrder(order.OrderID, order.Price, order.PlacedAt, false)
		return
	}

	tickSize := e.tickSizeFor(ms.Asset)
	if !ordermanager.ShouldReplaceSell(active, tob.BestAsk, tickSize, e.cfg.Order) {
		return
	}

	newOrder, err := e.orders.Replace(ctx, ms.Asset, tob.BestBid, tob.BestAsk, active.Size, tickSize)
	if err != nil {
		if _, ok := err.(*ordermanager.ReplaceFailed); ok {
			e.logger.Warn("sell replace failed, keeping existing order", "asset", ms.Asset, "error", err)
			return
		}
		e.logger.Error("sell replace cancel succeeded but place failed, position unprotected until next tick", "asset", ms.Asset, "error", err)
		return
	}

	_ = ms.UpdateSellOrder(newOrder.OrderID, newOrder.Price, newOrder.PlacedAt, false)
}

// noteIfSideLockViolation escalates an unexpected SideLockError to a fatal
// InvariantViolation (I1) and reports true if it did so.
func (e *Engine) noteIfSideLockViolation(asset types.AssetID, err error) bool {
	lockErr, ok := err.(*ordermanager.SideLockError)
	if !ok {
		return false
	}
	e.fatal = &InvariantViolation{Asset: asset, Reason: lockErr.Error()}
	return true
}

// deactivate implements the "any state -> DEACTIVATING" rule: cancel any
// live order, liquidate a held position at the current best ask, clean risk
// state, and drop the market from the active set.
func (e *Engine) deactivate(ctx context.Context, ms *statemachine.MarketState, reason string) {
	asset := ms.Asset
	e.logger.Info("deactivating market", "asset", asset, "reason", reason)
	ms.Deactivate()

	if active, ok := e.orders.Active(asset); ok {
		if err := e.orders.Cancel(ctx, asset); err != nil {
			e.logger.Error("cancel on deactivate failed", "asset", asset, "error", err)
		} else if active.Side == types.BUY {
			e.risk.CancelBuyOrder(asset, active.Size, active.Price)
		}
	}

	if ms.HasLivePosition() {
		if tob, ok := e.marketFeed.LastPrices(asset); ok && tob.Valid() {
			if _, err := e.orders.PlaceSell(ctx, asset, tob.BestBid, tob.BestAsk, ms.FilledSize, e.tickSizeFor(asset)); err != nil {
				e.logger.Error("liquidation sell failed", "asset", asset, "error", err)
			}
		} else {
			e.logger.Warn("cannot liquidate on deactivate, no valid price", "asset", asset)
		}
	}

	e.risk.CleanMarket(asset)
	e.marketFeed.Unsubscribe(asset)
	e.userFeed.Untrack(ms.ConditionID)
	delete(e.markets, asset)
}

func (e *Engine) handleUserEvent(ev venue.UserFeedEvent) {
	switch ev.Kind {
	case types.UserEventTrade:
		e.handleTrade(ev.Trade)
	case types.UserEventOrder:
		e.handleOrderStatus(ev.Order)
	}
}

func (e *Engine) handleTrade(trade *types.WSTradeEvent) {
	if trade == nil {
		return
	}
	asset := types.AssetID(trade.AssetID)
	ms, ok := e.markets[asset]
	if !ok {
		return
	}

	size, err := parseFloat(trade.Size)
	if err != nil {
		e.logger.Warn("unparsable fill size, ignoring", "asset", asset, "error", err)
		return
	}

	switch types.Side(trade.Side) {
	case types.BUY:
		if ms.State() != statemachine.WaitBuyFill {
			return
		}
		e.orders.ForgetExternallyClosed(asset)
		_ = ms.OnBuyFilled(size)
	case types.SELL:
		if ms.State() != statemachine.AskChase && ms.State() != statemachine.WaitSellFill {
			return
		}
		e.orders.ForgetExternallyClosed(asset)
		e.risk.RecordSellFill(asset)
		_ = ms.OnSellFilled()
	}
}

func (e *Engine) handleOrderStatus(order *types.WSOrderEvent) {
	if order == nil || order.Status != "CANCELLED" {
		return
	}
	asset := types.AssetID(order.AssetID)
	ms, ok := e.markets[asset]
	if !ok {
		return
	}

	// A CANCELLED status for a buy we've since replaced or already filled
	// refers to a stale order id — discard it, per the ordering guarantee
	// that tolerates the replace/cancel-notification race.
	if ms.State() != statemachine.WaitBuyFill || order.ID != ms.BuyOrderID {
		return
	}

	if active, ok := e.orders.Active(asset); ok {
		e.risk.CancelBuyOrder(asset, active.Size, active.Price)
	}
	e.orders.ForgetExternallyClosed(asset)
	_ = ms.OnBuyExternallyCancelled()
}

func (e *Engine) runReconcile(ctx context.Context) {
	report, err := e.reconciler.Reconcile(ctx, e.orders.Snapshot())
	if err != nil {
		e.logger.Error("reconcile failed", "error", err)
		return
	}
	for _, d := range report.Discrepancies {
		e.metrics.IncReconcileDiscrepancy(string(d.Kind))
	}
}

func (e *Engine) runMetrics() {
	counts := make(map[string]int)
	for _, ms := range e.markets {
		counts[string(ms.State())]++
	}
	e.metrics.SetStateCounts(counts)
	e.metrics.SetGlobalNotional(e.risk.GlobalNotional())
	e.metrics.SetActiveOrders(e.orders.Count())
}

func (e *Engine) runHealthCheck() {
	for asset := range e.markets {
		if !e.marketFeed.IsActive(asset, staleAfter) {
			e.logger.Warn("market has had no price update recently", "asset", asset, "stale_after", staleAfter)
		}
	}
}

// Stop gracefully shuts down: cancels the executor context, stops the API
// server, waits for every background goroutine to exit, then cancels any
// remaining live orders as a safety net and closes both feeds.
func (e *Engine) Stop() {
	e.logger.Info("shutting down")
	if e.cancel != nil {
		e.cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.apiServer.Stop(shutdownCtx); err != nil {
		e.logger.Error("api server stop failed", "error", err)
	}

	e.wg.Wait()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelCancel()
	for asset := range e.markets {
		if err := e.orders.Cancel(cancelCtx, asset); err != nil {
			e.logger.Error("cancel on shutdown failed", "asset", asset, "error", err)
		}
	}

	if err := e.marketFeed.Close(); err != nil {
		e.logger.Error("market feed close failed", "error", err)
	}
	if err := e.userFeed.Close(); err != nil {
		e.logger.Error("user feed close failed", "error", err)
	}
}

func parseFloat(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}
