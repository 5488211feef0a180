// Package types defines the shared data structures used across all packages:
// order types, market metadata, order book snapshots, and WebSocket event
// payloads. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"math/big"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// MarketSide is the outcome side of a binary market the selector chose.
type MarketSide string

const (
	Yes MarketSide = "YES"
	No  MarketSide = "NO"
)

// OrderType enumerates the supported order lifecycles.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Til-Cancelled: stays on book until filled or cancelled
)

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // Polymarket proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// TickSize represents the price granularity for a market. Polymarket supports
// four tick sizes; each market has a fixed tick size that determines the
// minimum price increment and USDC amount rounding precision.
type TickSize string

const (
	Tick01    TickSize = "0.1"    // 1 decimal  — coarse markets
	Tick001   TickSize = "0.01"   // 2 decimals — standard markets (most common)
	Tick0001  TickSize = "0.001"  // 3 decimals — fine-grained markets
	Tick00001 TickSize = "0.0001" // 4 decimals — ultra-precise markets
)

// Decimals returns the number of decimal places for a tick size.
func (t TickSize) Decimals() int {
	switch t {
	case Tick01:
		return 1
	case Tick001:
		return 2
	case Tick0001:
		return 3
	case Tick00001:
		return 4
	default:
		return 2
	}
}

// Float returns the tick size as a float64 price increment.
func (t TickSize) Float() float64 {
	switch t {
	case Tick01:
		return 0.1
	case Tick001:
		return 0.01
	case Tick0001:
		return 0.001
	case Tick00001:
		return 0.0001
	default:
		return 0.01
	}
}

// ————————————————————————————————————————————————————————————————————————
// Identifiers
// ————————————————————————————————————————————————————————————————————————

// AssetID is an opaque venue token identifier, one per binary outcome.
type AssetID string

// ConditionID groups the two outcome tokens of a single binary market; used
// only to enforce the per-event cap (I4).
type ConditionID string

// ————————————————————————————————————————————————————————————————————————
// Market metadata
// ————————————————————————————————————————————————————————————————————————

// MarketInfo is the internal representation of a Polymarket binary market.
// Populated from the directory listing during selection. A binary market has
// exactly two tokens (YES and NO) whose prices always sum to ~$1.
type MarketInfo struct {
	ID          string      // directory market ID
	ConditionID ConditionID // CTF condition ID (used for cancels + user WS subscription)
	Slug        string      // human-readable URL slug
	Question    string      // the prediction question, e.g. "Will X happen by Y?"

	YesAsset AssetID // CLOB token ID for the YES outcome
	NoAsset  AssetID // CLOB token ID for the NO outcome

	TickSize TickSize // price granularity (determines rounding)
	NegRisk  bool     // true if this is a neg-risk market (affects CTF exchange)

	Active          bool      // market is live
	Closed          bool      // market has been resolved
	AcceptingOrders bool      // CLOB is accepting new orders
	EndDate         time.Time // when the market is scheduled to resolve
	Liquidity       float64   // total USD liquidity on the book
	Volume24h       float64   // trailing 24-hour volume in USD
}

// CandidateMarket is the selector's output: one asset chosen to trade,
// carrying the figures that produced the selection decision.
type CandidateMarket struct {
	Asset        AssetID
	Side         MarketSide
	ConditionID  ConditionID
	Market       MarketInfo
	Spread       float64 // best_ask - best_bid, in price units
	Depth        float64 // normalized top-2 depth in USD
	Volume24h    float64
	HoursToClose float64
	Score        float64
}

// ————————————————————————————————————————————————————————————————————————
// TopOfBook
// ————————————————————————————————————————————————————————————————————————

// TopOfBook is the cached best bid/ask for one asset. All fields are
// optional until first valid observation (HaveBid/HaveAsk report whether
// each side has been seen). Invariant enforced by the feed before storing an
// update: 0 < BestBid < BestAsk <= 1 and BestAsk-BestBid <= 0.20.
type TopOfBook struct {
	HaveBid      bool
	HaveAsk      bool
	BestBid      float64
	BestAsk      float64
	TickSize     TickSize
	LastUpdateTS time.Time
}

// Spread returns BestAsk-BestBid. Only meaningful when both sides are present.
func (t TopOfBook) Spread() float64 {
	return t.BestAsk - t.BestBid
}

// Valid reports whether both sides of the book have been observed and the
// invariant 0 < bid < ask <= 1, spread <= 0.20 holds.
func (t TopOfBook) Valid() bool {
	if !t.HaveBid || !t.HaveAsk {
		return false
	}
	return t.BestBid > 0 && t.BestBid < t.BestAsk && t.BestAsk <= 1 && t.Spread() <= 0.20
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// UserOrder is the high-level order representation produced by the order
// manager. The venue client converts it to a SignedOrder for the CLOB API.
type UserOrder struct {
	AssetID    AssetID   // which token to trade
	Price      float64   // limit price (0.0 to 1.0 for binary markets)
	Size       float64   // quantity in shares
	Side       Side      // BUY or SELL
	OrderType  OrderType // GTC
	TickSize   TickSize  // market's price granularity (for amount rounding)
	Expiration int64     // unix timestamp, 0 = no expiry
	FeeRateBps int       // fee rate in basis points
}

// SignedOrder is the on-chain order format the CLOB API expects. MakerAmount
// and TakerAmount are in 6-decimal USDC units (1e6 = $1).
//
// For BUY:  maker gives MakerAmount USDC, receives TakerAmount shares
// For SELL: maker gives MakerAmount shares, receives TakerAmount USDC
type SignedOrder struct {
	Salt          string        `json:"salt"`
	Maker         string        `json:"maker"`  // funder/proxy wallet address
	Signer        string        `json:"signer"` // EOA that signs the order
	Taker         string        `json:"taker"`  // zero address = open order
	TokenID       string        `json:"tokenId"`
	MakerAmount   *big.Int      `json:"makerAmount"`
	TakerAmount   *big.Int      `json:"takerAmount"`
	Side          Side          `json:"side"`
	Expiration    string        `json:"expiration"`
	Nonce         string        `json:"nonce"`
	FeeRateBps    string        `json:"feeRateBps"`
	SignatureType SignatureType `json:"signatureType"`
	Signature     string        `json:"signature"`
}

// OrderPayload is the REST API request body for POST /order.
type OrderPayload struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType OrderType   `json:"orderType"`
	PostOnly  bool        `json:"postOnly,omitempty"`
}

// OrderResponse is the REST API response to a single order placement.
type OrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"` // e.g. "live", "matched"
}

// OpenOrder represents a live resting order on the CLOB, as returned by
// get_open_orders.
type OpenOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`        // condition ID
	AssetID      string `json:"asset_id"`      // token ID
	Side         string `json:"side"`          // "BUY" or "SELL"
	OriginalSize string `json:"original_size"` // initial size
	SizeMatched  string `json:"size_matched"`  // how much has filled
	Price        string `json:"price"`         // limit price
}

// CancelResponse is returned by DELETE /orders and DELETE /cancel-all.
type CancelResponse struct {
	Canceled []string `json:"canceled"`
}

// ActiveOrder is a live venue order for one asset. At most one exists per
// AssetID at any time (the side-lock invariant, I1).
type ActiveOrder struct {
	OrderID  string
	Asset    AssetID
	Side     Side
	Price    float64
	Size     float64
	PlacedAt time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Exposure
// ————————————————————————————————————————————————————————————————————————

// Exposure tracks committed shares and notional for one asset (I2, I3).
type Exposure struct {
	SharesCommitted  float64
	NotionalCommitted float64
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in the order book. Price and Size
// are strings because the CLOB API returns them as strings to preserve
// decimal precision.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookResponse is the REST response from GET /book for a single token.
type BookResponse struct {
	Market       string       `json:"market"`
	AssetID      string       `json:"asset_id"`
	Bids         []PriceLevel `json:"bids"` // descending by price, best bid first
	Asks         []PriceLevel `json:"asks"` // ascending by price, best ask first
	Hash         string       `json:"hash"`
	Timestamp    string       `json:"timestamp"`
	MinOrderSize string       `json:"min_order_size"`
	TickSize     string       `json:"tick_size"`
	NegRisk      bool         `json:"neg_risk"`
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket events
// ————————————————————————————————————————————————————————————————————————
// These structs map 1:1 to the JSON messages sent over the venue WebSocket.
// Market channel events: "book" (full snapshot), "price_change" (delta),
// "tick_size_change". User channel events: "trade" (fill), "order"
// (placement/cancel lifecycle).

// WSBookEvent is a full order book snapshot from the market WS channel.
type WSBookEvent struct {
	EventType string       `json:"event_type"` // "book"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"` // condition ID
	Timestamp string       `json:"timestamp"`
	Hash      string       `json:"hash"`
	Buys      []PriceLevel `json:"buys"`  // bid levels
	Sells     []PriceLevel `json:"sells"` // ask levels
}

// WSPriceChange is a single price level update within a price_change event.
type WSPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	Hash    string `json:"hash"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// WSPriceChangeEvent is an incremental order book update from the market WS.
type WSPriceChangeEvent struct {
	EventType    string          `json:"event_type"` // "price_change"
	Market       string          `json:"market"`
	Timestamp    string          `json:"timestamp"`
	PriceChanges []WSPriceChange `json:"price_changes"`
}

// WSTickSizeChangeEvent updates the cached tick size for an asset.
type WSTickSizeChangeEvent struct {
	EventType   string `json:"event_type"` // "tick_size_change"
	AssetID     string `json:"asset_id"`
	Market      string `json:"market"`
	OldTickSize string `json:"old_tick_size"`
	NewTickSize string `json:"new_tick_size"`
	Timestamp   string `json:"timestamp"`
}

// WSTradeEvent is a fill notification from the user WS channel.
type WSTradeEvent struct {
	EventType string `json:"event_type"` // "trade"
	ID        string `json:"id"`         // trade ID
	Market    string `json:"market"`     // condition ID
	AssetID   string `json:"asset_id"`   // token ID that was traded
	Side      string `json:"side"`       // our side: "BUY" or "SELL"
	Size      string `json:"size"`       // filled quantity
	Price     string `json:"price"`      // fill price
	Outcome   string `json:"outcome"`    // "Yes" or "No"
	Timestamp string `json:"timestamp"`
}

// WSOrderEvent is an order lifecycle notification from the user WS channel.
type WSOrderEvent struct {
	EventType    string `json:"event_type"` // "order"
	ID           string `json:"id"`         // order ID
	Market       string `json:"market"`     // condition ID
	AssetID      string `json:"asset_id"`   // token ID
	Side         string `json:"side"`       // "BUY" or "SELL"
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"` // cumulative filled
	Status       string `json:"status"`       // "LIVE", "MATCHED", "CANCELLED"
	Timestamp    string `json:"timestamp"`
}

// WSSubscribeMsg is the initial subscription message sent when connecting to
// a WebSocket channel. For the user channel, Auth must be provided.
type WSSubscribeMsg struct {
	Auth     *WSAuth  `json:"auth,omitempty"`
	Type     string   `json:"type"`                 // "market" or "user"
	Markets  []string `json:"markets,omitempty"`     // condition IDs (user channel)
	AssetIDs []string `json:"assets_ids,omitempty"`  // token IDs (market channel)
}

// WSAuth contains the L2 API credentials for authenticating the user WS channel.
type WSAuth struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// WSUpdateMsg dynamically subscribes or unsubscribes from channels after the
// initial connection is established.
type WSUpdateMsg struct {
	AssetIDs  []string `json:"assets_ids,omitempty"`
	Markets   []string `json:"markets,omitempty"`
	Operation string   `json:"operation"` // "subscribe" or "unsubscribe"
}
