// Package ordermanager realizes the state machine's placement intentions
// on the venue under the side-lock invariant (I1): at most one live
// ActiveOrder per asset at any time. It is the only package that calls the
// venue's order-placement/cancel endpoints.
package ordermanager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xspreadcap/polymarket-maker/internal/config"
	"github.com/0xspreadcap/polymarket-maker/internal/quant"
	"github.com/0xspreadcap/polymarket-maker/internal/venue"
	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// VenueClient is the narrow placement/cancel surface the order manager
// needs — just enough to place one order and cancel by ID.
type VenueClient interface {
	PostOrder(ctx context.Context, order types.UserOrder, amounts quant.Amounts) (types.OrderResponse, error)
	CancelOrders(ctx context.Context, orderIDs []string) (*types.CancelResponse, error)
}

// SideLockError reports an attempt to place an order for an asset that
// already has a live ActiveOrder — a violation of I1 and always a caller
// bug (the orchestrator must check Active(asset) first).
type SideLockError struct {
	Asset types.AssetID
}

func (e *SideLockError) Error() string {
	return fmt.Sprintf("side-lock violation: asset %s already has a live order", e.Asset)
}

// ReplaceFailed is returned when Replace's cancel step fails; the existing
// order is left untouched.
type ReplaceFailed struct {
	Asset  types.AssetID
	Reason string
}

func (e *ReplaceFailed) Error() string {
	return fmt.Sprintf("replace failed for asset %s: %s", e.Asset, e.Reason)
}

// Manager enforces the side lock and drives placement/replace/cancel.
type Manager struct {
	venue  VenueClient
	cfg    config.OrderConfig
	active map[types.AssetID]*types.ActiveOrder
	logger *slog.Logger
}

// New creates an order manager against a venue client.
func New(venueClient VenueClient, cfg config.OrderConfig, logger *slog.Logger) *Manager {
	return &Manager{
		venue:  venueClient,
		cfg:    cfg,
		active: make(map[types.AssetID]*types.ActiveOrder),
		logger: logger.With("component", "order_manager"),
	}
}

// Active returns the live order for an asset, if any.
func (m *Manager) Active(asset types.AssetID) (*types.ActiveOrder, bool) {
	o, ok := m.active[asset]
	return o, ok
}

// PlaceBuy places a post-only buy joining the best bid. Fails with
// SideLockError if asset already has a live order, *venue.WouldCross if
// bestBid >= bestAsk.
func (m *Manager) PlaceBuy(ctx context.Context, asset types.AssetID, bestBid, bestAsk, size float64, tickSize types.TickSize) (*types.ActiveOrder, error) {
	return m.place(ctx, asset, types.BUY, bestBid, bestAsk, size, tickSize)
}

// PlaceSell places a post-only sell joining the best ask. Fails with
// *venue.WouldCross if bestAsk <= bestBid.
func (m *Manager) PlaceSell(ctx context.Context, asset types.AssetID, bestBid, bestAsk, size float64, tickSize types.TickSize) (*types.ActiveOrder, error) {
	return m.place(ctx, asset, types.SELL, bestBid, bestAsk, size, tickSize)
}

func (m *Manager) place(ctx context.Context, asset types.AssetID, side types.Side, bestBid, bestAsk, size float64, tickSize types.TickSize) (*types.ActiveOrder, error) {
	if _, exists := m.active[asset]; exists {
		return nil, &SideLockError{Asset: asset}
	}
	if bestBid >= bestAsk {
		return nil, &venue.WouldCross{Side: string(side)}
	}

	var price float64
	if side == types.BUY {
		price = bestBid
	} else {
		price = bestAsk
	}

	amounts, err := quant.Quantize(side, price, size)
	if err != nil {
		return nil, err
	}

	order := types.UserOrder{
		AssetID: asset, Price: price, Size: size, Side: side,
		OrderType: types.OrderTypeGTC, TickSize: tickSize,
	}
	resp, err := m.venue.PostOrder(ctx, order, amounts)
	if err != nil {
		return nil, err
	}

	placedAt := time.Now()
	active := &types.ActiveOrder{
		OrderID: resp.OrderID, Asset: asset, Side: side,
		Price: price, Size: size, PlacedAt: placedAt,
	}
	m.active[asset] = active
	return active, nil
}

// ShouldReplaceBuy reports whether a resting buy has drifted far enough
// from the current best bid, or aged past the TTL, to warrant replacement.
func ShouldReplaceBuy(order *types.ActiveOrder, currentBestBid float64, tickSize types.TickSize, cfg config.OrderConfig) bool {
	return shouldReplace(order, currentBestBid, tickSize, cfg)
}

// ShouldReplaceSell is ShouldReplaceBuy's symmetric counterpart against the
// current best ask.
func ShouldReplaceSell(order *types.ActiveOrder, currentBestAsk float64, tickSize types.TickSize, cfg config.OrderConfig) bool {
	return shouldReplace(order, currentBestAsk, tickSize, cfg)
}

func shouldReplace(order *types.ActiveOrder, currentPrice float64, tickSize types.TickSize, cfg config.OrderConfig) bool {
	if time.Since(order.PlacedAt) >= cfg.TTL {
		return true
	}
	drift := currentPrice - order.Price
	if drift < 0 {
		drift = -drift
	}
	// The epsilon keeps an exact N-tick move (e.g. 0.40 -> 0.42) from falling
	// just short of N*tick through float subtraction error.
	return drift+1e-9 >= float64(cfg.ReplacePriceTicks)*tickSize.Float()
}

// CanChase reports whether the ask-chase window is still open: the live
// sell is younger than ASK_CHASE_WINDOW_SEC and the per-order replace
// counter hasn't hit ASK_CHASE_MAX_REPLACES.
func CanChase(chaseStart time.Time, replaceCount int, cfg config.OrderConfig) bool {
	return time.Since(chaseStart) < cfg.AskChaseWindow && replaceCount < cfg.AskChaseMaxReplace
}

// Replace cancels the live order and places a new one at the current
// price. If the cancel fails, the existing order is left in place and
// ReplaceFailed is returned. If cancel succeeds but the new placement
// fails, the asset's side lock is released (no ActiveOrder remains) and
// the placement error is returned — the caller (the orchestrator) decides
// whether that means reverting to IDLE (buy side) or retrying next tick
// while holding an unprotected position (sell side).
func (m *Manager) Replace(ctx context.Context, asset types.AssetID, bestBid, bestAsk, size float64, tickSize types.TickSize) (*types.ActiveOrder, error) {
	existing, ok := m.active[asset]
	if !ok {
		return nil, fmt.Errorf("replace: no active order for asset %s", asset)
	}

	if _, err := m.venue.CancelOrders(ctx, []string{existing.OrderID}); err != nil {
		return nil, &ReplaceFailed{Asset: asset, Reason: err.Error()}
	}
	delete(m.active, asset)

	return m.place(ctx, asset, existing.Side, bestBid, bestAsk, size, tickSize)
}

// Cancel cancels the live order for an asset and releases its side lock.
func (m *Manager) Cancel(ctx context.Context, asset types.AssetID) error {
	existing, ok := m.active[asset]
	if !ok {
		return nil
	}
	if _, err := m.venue.CancelOrders(ctx, []string{existing.OrderID}); err != nil {
		return err
	}
	delete(m.active, asset)
	return nil
}

// ForgetExternallyClosed removes the ActiveOrder record for an asset
// without issuing a cancel — used when the user feed reports a fill or an
// external cancellation that already resolved the order on the venue.
func (m *Manager) ForgetExternallyClosed(asset types.AssetID) {
	delete(m.active, asset)
}

// Adopt seeds the side lock for an asset whose order already exists on the
// venue — used once at startup to install Reconciler.Reconstruct's result,
// since there is no persisted state to load instead.
func (m *Manager) Adopt(asset types.AssetID, order *types.ActiveOrder) {
	m.active[asset] = order
}

// Snapshot returns a copy of the full active-order set, read by
// reconciliation and the metrics tick.
func (m *Manager) Snapshot() map[types.AssetID]*types.ActiveOrder {
	out := make(map[types.AssetID]*types.ActiveOrder, len(m.active))
	for k, v := range m.active {
		out[k] = v
	}
	return out
}

// Count returns the number of live ActiveOrder entries (I1's global view).
func (m *Manager) Count() int { return len(m.active) }
