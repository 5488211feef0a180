// Package statemachine implements the per-market state machine: the eight
// states and transitions that drive one buy-then-sell round trip, per
// spec section 4.3. All methods are pure synchronous mutations of a single
// MarketState value — no I/O, no locking — callable only from the
// orchestrator's executor.
package statemachine

import (
	"fmt"
	"time"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// State is one of the eight per-market states.
type State string

const (
	Idle         State = "IDLE"
	PlaceBuy     State = "PLACE_BUY"
	WaitBuyFill  State = "WAIT_BUY_FILL"
	PlaceSell    State = "PLACE_SELL"
	AskChase     State = "ASK_CHASE"
	WaitSellFill State = "WAIT_SELL_FILL"
	Complete     State = "COMPLETE"
	Deactivating State = "DEACTIVATING"
)

// TransitionError reports an attempted transition from a state that doesn't
// allow it — a programming error in the orchestrator's event routing, never
// expected in production use.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("state machine: cannot apply %q from state %s", e.Event, e.From)
}

// MarketState carries one asset's full state-machine record: the current
// state plus whatever order/position metadata that state implies.
type MarketState struct {
	Asset       types.AssetID
	Slug        string
	ConditionID types.ConditionID

	state State

	BuyOrderID string
	BuyPrice   float64
	BuySize    float64
	PlacedAt   time.Time

	FilledSize float64

	SellOrderID string
	SellPrice   float64
	SellPlaced  time.Time

	ChaseStart   time.Time
	ReplaceCount int

	InitializedAt time.Time
}

// New creates a market in IDLE, per spec section 4.3's init_market.
func New(asset types.AssetID, slug string, conditionID types.ConditionID) *MarketState {
	return &MarketState{
		Asset: asset, Slug: slug, ConditionID: conditionID,
		state: Idle, InitializedAt: time.Now(),
	}
}

// State returns the current state.
func (m *MarketState) State() State { return m.state }

// ToPlaceBuy begins a buy placement attempt. IDLE -> PLACE_BUY, triggered by
// the orchestrator once eligibility and risk checks pass.
func (m *MarketState) ToPlaceBuy() error {
	if m.state != Idle {
		return &TransitionError{From: m.state, Event: "to_place_buy"}
	}
	m.state = PlaceBuy
	return nil
}

// OnBuyPlaced records a successful buy placement. PLACE_BUY -> WAIT_BUY_FILL.
func (m *MarketState) OnBuyPlaced(orderID string, price, size float64, placedAt time.Time) error {
	if m.state != PlaceBuy {
		return &TransitionError{From: m.state, Event: "buy_placed"}
	}
	m.BuyOrderID = orderID
	m.BuyPrice = price
	m.BuySize = size
	m.PlacedAt = placedAt
	m.state = WaitBuyFill
	return nil
}

// OnBuyPlaceFailed reverts a failed buy placement. PLACE_BUY -> IDLE.
func (m *MarketState) OnBuyPlaceFailed() error {
	if m.state != PlaceBuy {
		return &TransitionError{From: m.state, Event: "buy_place_failed"}
	}
	m.state = Idle
	return nil
}

// OnBuyFilled records the buy fill and moves to sell placement.
// WAIT_BUY_FILL -> PLACE_SELL.
func (m *MarketState) OnBuyFilled(filledSize float64) error {
	if m.state != WaitBuyFill {
		return &TransitionError{From: m.state, Event: "buy_filled"}
	}
	m.FilledSize = filledSize
	m.BuyOrderID = ""
	m.state = PlaceSell
	return nil
}

// OnBuyExternallyCancelled handles a CANCELLED order-status event for our
// live buy that didn't originate from a replace. WAIT_BUY_FILL -> IDLE.
func (m *MarketState) OnBuyExternallyCancelled() error {
	if m.state != WaitBuyFill {
		return &TransitionError{From: m.state, Event: "buy_externally_cancelled"}
	}
	m.BuyOrderID = ""
	m.state = Idle
	return nil
}

// OnSellPlaced records a successful sell placement and starts the
// ask-chase window. PLACE_SELL -> ASK_CHASE.
func (m *MarketState) OnSellPlaced(orderID string, price float64, placedAt time.Time) error {
	if m.state != PlaceSell {
		return &TransitionError{From: m.state, Event: "sell_placed"}
	}
	m.SellOrderID = orderID
	m.SellPrice = price
	m.SellPlaced = placedAt
	m.ChaseStart = placedAt
	m.ReplaceCount = 0
	m.state = AskChase
	return nil
}

// OnSellPlaceFailed is called when a sell placement attempt fails. There is
// no safe state to fall back to — shares are already held, so the market
// stays in PLACE_SELL and the orchestrator's next tick retries placement.
func (m *MarketState) OnSellPlaceFailed() error {
	if m.state != PlaceSell {
		return &TransitionError{From: m.state, Event: "sell_place_failed"}
	}
	return nil
}

// NoteReplace increments the per-order replace counter, called by the
// orchestrator each time it replaces the live sell inside the chase window.
func (m *MarketState) NoteReplace() {
	m.ReplaceCount++
}

// UpdateBuyOrder records a successful order-manager Replace of the live
// buy. It is valid only in WAIT_BUY_FILL and never changes state: a replace
// happens entirely within WAIT_BUY_FILL, and only which order
// id/price/timestamp is currently live changes.
func (m *MarketState) UpdateBuyOrder(orderID string, price float64, placedAt time.Time) error {
	if m.state != WaitBuyFill {
		return &TransitionError{From: m.state, Event: "update_buy_order"}
	}
	m.BuyOrderID = orderID
	m.BuyPrice = price
	m.PlacedAt = placedAt
	return nil
}

// UpdateSellOrder records a new live sell order id/price/timestamp without
// changing state. Valid from ASK_CHASE (the in-window chase replace, and
// its post-repair-placement variant) and from WAIT_SELL_FILL (the
// indefinite replace-on-drift that continues once the chase window has
// expired). When resetChase is true the ask-chase window restarts (used to
// repair a sell lost when a replace's cancel succeeded but its place
// failed); otherwise only the order identity/price move, matching an
// ordinary in-window chase replace whose ReplaceCount is bumped separately
// by NoteReplace.
func (m *MarketState) UpdateSellOrder(orderID string, price float64, placedAt time.Time, resetChase bool) error {
	if m.state != AskChase && m.state != WaitSellFill {
		return &TransitionError{From: m.state, Event: "update_sell_order"}
	}
	m.SellOrderID = orderID
	m.SellPrice = price
	if resetChase {
		m.ChaseStart = placedAt
		m.ReplaceCount = 0
	}
	return nil
}

// ChaseExpired ends the ask-chase window once it has aged out or hit its
// replace ceiling. ASK_CHASE -> WAIT_SELL_FILL.
func (m *MarketState) ChaseExpired() error {
	if m.state != AskChase {
		return &TransitionError{From: m.state, Event: "chase_expired"}
	}
	m.state = WaitSellFill
	return nil
}

// OnSellFilled records the round trip's completion. ASK_CHASE -> COMPLETE,
// WAIT_SELL_FILL -> COMPLETE.
func (m *MarketState) OnSellFilled() error {
	if m.state != AskChase && m.state != WaitSellFill {
		return &TransitionError{From: m.state, Event: "sell_filled"}
	}
	m.SellOrderID = ""
	m.state = Complete
	return nil
}

// ToIdle closes out a completed round trip, ready to buy again.
// COMPLETE -> IDLE.
func (m *MarketState) ToIdle() error {
	if m.state != Complete {
		return &TransitionError{From: m.state, Event: "to_idle"}
	}
	m.FilledSize = 0
	m.BuyOrderID = ""
	m.SellOrderID = ""
	m.state = Idle
	return nil
}

// Deactivate withdraws the market from any state, per spec section 4.3's
// "any -> DEACTIVATING" rule.
func (m *MarketState) Deactivate() {
	m.state = Deactivating
}

// HasLivePosition reports whether the market is holding shares that still
// need to be sold — used by the orchestrator's deactivate path to decide
// whether a liquidating sell is required.
func (m *MarketState) HasLivePosition() bool {
	return m.FilledSize > 0
}
