// Package risk implements RiskManager: the per-market and aggregate
// exposure caps (I2, I3) and the order-sizing/profitability floors that
// gate every buy placement, per spec section 4.5. It is pure synchronous
// state — no I/O, no locking — callable only from the orchestrator's
// executor, the same discipline as internal/statemachine.
package risk

import (
	"log/slog"

	"github.com/0xspreadcap/polymarket-maker/internal/config"
	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// Deny reasons, in the exact evaluation order spec section 4.5 prescribes.
const (
	DenyMinNotional       = "min_notional"
	DenyExpectedProfitLow = "expected_profit_low"
	DenyMinSize           = "min_size"
	DenySharesCap         = "shares_cap"
	DenyMarketNotionalCap = "market_notional_cap"
	DenyGlobalNotionalCap = "global_notional_cap"
)

// minNotionalTolerance is the 0.5% slack spec section 4.5 allows on the
// minimum-notional floor.
const minNotionalTolerance = 0.995

// Manager tracks per-asset and aggregate notional/share exposure and
// decides whether a prospective buy is allowed.
type Manager struct {
	cfg      config.RiskConfig
	exposure map[types.AssetID]types.Exposure
	global   float64
	logger   *slog.Logger
}

// New creates a RiskManager with zero exposure.
func New(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		exposure: make(map[types.AssetID]types.Exposure),
		logger:   logger.With("component", "risk_manager"),
	}
}

// GlobalNotional returns the current aggregate notional at risk (I2).
func (m *Manager) GlobalNotional() float64 { return m.global }

// Exposure returns the current exposure record for an asset (zero value if
// none is tracked).
func (m *Manager) Exposure(asset types.AssetID) types.Exposure {
	return m.exposure[asset]
}

// CanPlaceBuy evaluates the six denial conditions in order and returns
// ("", true) if the buy is allowed, or (reason, false) for the first
// denial that applies.
func (m *Manager) CanPlaceBuy(asset types.AssetID, size, price, spreadCents float64) (string, bool) {
	notional := size * price
	current := m.exposure[asset]

	switch {
	case notional < minNotionalTolerance*m.cfg.MinNotionalPerOrder:
		return DenyMinNotional, false
	case (spreadCents/100)*notional < m.cfg.MinExpectedProfit:
		return DenyExpectedProfitLow, false
	case size < m.cfg.MinSizeShares:
		return DenyMinSize, false
	case current.SharesCommitted+size > m.cfg.MaxSharesPerMarket:
		return DenySharesCap, false
	case current.NotionalCommitted+notional > m.cfg.MaxUSDCPerMarket:
		return DenyMarketNotionalCap, false
	case m.global+notional > m.cfg.MaxNotionalAtRiskUSDC:
		return DenyGlobalNotionalCap, false
	default:
		return "", true
	}
}

// RecordBuyOrder commits a just-placed buy's size/notional to the asset's
// exposure and the global notional total.
func (m *Manager) RecordBuyOrder(asset types.AssetID, size, price float64) {
	notional := size * price
	e := m.exposure[asset]
	e.SharesCommitted += size
	e.NotionalCommitted += notional
	m.exposure[asset] = e
	m.global += notional
}

// CancelBuyOrder releases exposure committed by a buy that was cancelled
// before any fill — either an external cancel or a failed replace.
func (m *Manager) CancelBuyOrder(asset types.AssetID, size, price float64) {
	notional := size * price
	e := m.exposure[asset]
	e.SharesCommitted = clampNonNegative(e.SharesCommitted - size)
	e.NotionalCommitted = clampNonNegative(e.NotionalCommitted - notional)
	m.exposure[asset] = e
	m.global = clampNonNegative(m.global - notional)
}

// RecordSellFill clears an asset's exposure once its position has been
// fully sold, completing the round trip's risk accounting.
func (m *Manager) RecordSellFill(asset types.AssetID) {
	e := m.exposure[asset]
	m.global = clampNonNegative(m.global - e.NotionalCommitted)
	delete(m.exposure, asset)
}

// CleanMarket drops an asset's exposure record entirely, used when a
// market is deactivated and removed from the active set.
func (m *Manager) CleanMarket(asset types.AssetID) {
	e := m.exposure[asset]
	m.global = clampNonNegative(m.global - e.NotionalCommitted)
	delete(m.exposure, asset)
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
