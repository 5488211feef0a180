package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

const (
	subscribeDebounce  = 75 * time.Millisecond
	heartbeatInterval  = 10 * time.Second
	livenessTimeout    = 30 * time.Second
	maxReconnectWait   = 30 * time.Second
	maxReconnectTries  = 10
	writeTimeout       = 10 * time.Second
	feedEventBufferLen = 256
)

// FeedEvent is the tagged, decoded form of one market-channel message,
// pushed onto MarketFeed's bounded channel by the connection-read goroutine.
// The orchestrator is the only caller of Apply, which is where the
// TopOfBook invariant is enforced and the cache is mutated — the decode
// above is pure and touches no shared state.
type FeedEvent struct {
	Kind           types.MarketEventKind
	Book           *types.WSBookEvent
	PriceChange    *types.WSPriceChangeEvent
	TickSizeChange *types.WSTickSizeChangeEvent
}

// MarketFeed subscribes to book streams, caches top-of-book per asset, and
// exposes last_prices/tick_size/is_active to the orchestrator. Per the
// concurrency model, the cache is mutated only by Apply, which the
// orchestrator calls from its own executor after draining Events().
type MarketFeed struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	pendingMu    sync.Mutex
	tracked      map[types.AssetID]bool
	pendingAdd   map[types.AssetID]bool
	pendingRem   map[types.AssetID]bool
	debounce     *time.Timer

	cacheMu sync.Mutex
	cache   map[types.AssetID]*types.TopOfBook

	events chan FeedEvent
	logger *slog.Logger

	// OnReconnect, if set, is called once per reconnect attempt so the
	// orchestrator can surface it as a metric. Optional.
	OnReconnect func(attempt int)
}

// NewMarketFeed creates a market-channel feed against wsURL.
func NewMarketFeed(wsURL string, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		url:        wsURL,
		tracked:    make(map[types.AssetID]bool),
		pendingAdd: make(map[types.AssetID]bool),
		pendingRem: make(map[types.AssetID]bool),
		cache:      make(map[types.AssetID]*types.TopOfBook),
		events:     make(chan FeedEvent, feedEventBufferLen),
		logger:     logger.With("component", "market_feed"),
	}
}

// Events returns the channel the orchestrator drains every tick.
func (f *MarketFeed) Events() <-chan FeedEvent { return f.events }

// Subscribe adds an asset to the tracked set. The actual subscribe frame is
// coalesced with any other Subscribe/Unsubscribe calls inside a 75ms
// debounce window, per section 4.2.
func (f *MarketFeed) Subscribe(asset types.AssetID) {
	f.pendingMu.Lock()
	defer f.pendingMu.Unlock()
	delete(f.pendingRem, asset)
	f.pendingAdd[asset] = true
	f.armDebounce()
}

// Unsubscribe removes an asset from the tracked set, subject to the same
// debounce window.
func (f *MarketFeed) Unsubscribe(asset types.AssetID) {
	f.pendingMu.Lock()
	defer f.pendingMu.Unlock()
	delete(f.pendingAdd, asset)
	f.pendingRem[asset] = true
	f.armDebounce()
}

// armDebounce must be called with pendingMu held.
func (f *MarketFeed) armDebounce() {
	if f.debounce != nil {
		f.debounce.Stop()
	}
	f.debounce = time.AfterFunc(subscribeDebounce, f.flushSubscriptions)
}

func (f *MarketFeed) flushSubscriptions() {
	f.pendingMu.Lock()
	for id := range f.pendingAdd {
		f.tracked[id] = true
	}
	for id := range f.pendingRem {
		delete(f.tracked, id)
	}
	f.pendingAdd = make(map[types.AssetID]bool)
	f.pendingRem = make(map[types.AssetID]bool)
	ids := make([]string, 0, len(f.tracked))
	for id := range f.tracked {
		ids = append(ids, string(id))
	}
	f.pendingMu.Unlock()

	msg := types.WSUpdateMsg{AssetIDs: ids, Operation: "subscribe"}
	if err := f.writeJSON(msg); err != nil {
		f.logger.Warn("subscribe frame not sent, not connected yet", "error", err)
	}
}

// resendSubscriptions re-sends the full tracked asset set; called on every
// successful reconnect, per section 4.2's idempotent re-subscription.
func (f *MarketFeed) resendSubscriptions() error {
	f.pendingMu.Lock()
	ids := make([]string, 0, len(f.tracked))
	for id := range f.tracked {
		ids = append(ids, string(id))
	}
	f.pendingMu.Unlock()

	return f.writeJSON(types.WSSubscribeMsg{Type: "market", AssetIDs: ids})
}

// LastPrices returns the cached top-of-book for an asset, and whether any
// observation has been recorded at all (it may still not satisfy Valid()).
func (f *MarketFeed) LastPrices(asset types.AssetID) (types.TopOfBook, bool) {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	tob, ok := f.cache[asset]
	if !ok {
		return types.TopOfBook{}, false
	}
	return *tob, true
}

// TickSize returns the cached tick size for an asset, if known.
func (f *MarketFeed) TickSize(asset types.AssetID) (types.TickSize, bool) {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	tob, ok := f.cache[asset]
	if !ok || tob.TickSize == "" {
		return "", false
	}
	return tob.TickSize, true
}

// IsActive reports whether the asset's cache entry was updated within maxAge.
func (f *MarketFeed) IsActive(asset types.AssetID, maxAge time.Duration) bool {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	tob, ok := f.cache[asset]
	if !ok {
		return false
	}
	return time.Since(tob.LastUpdateTS) <= maxAge
}

// Apply mutates the top-of-book cache for one decoded event. It is the only
// place the cache is written, and it is only ever called by the
// orchestrator's executor after draining Events(). Returns false when an
// update was dropped for violating the book invariant.
func (f *MarketFeed) Apply(ev FeedEvent) bool {
	switch ev.Kind {
	case types.MarketEventBook:
		return f.applyBook(ev.Book)
	case types.MarketEventPriceChange:
		return f.applyPriceChange(ev.PriceChange)
	case types.MarketEventTickSizeChange:
		return f.applyTickSizeChange(ev.TickSizeChange)
	default:
		return false
	}
}

func (f *MarketFeed) applyBook(ev *types.WSBookEvent) bool {
	if ev == nil || len(ev.Buys) == 0 || len(ev.Sells) == 0 {
		return false
	}
	bid, err1 := parsePrice(ev.Buys[0].Price)
	ask, err2 := parsePrice(ev.Sells[0].Price)
	if err1 != nil || err2 != nil {
		return false
	}

	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	existing := f.getOrCreate(types.AssetID(ev.AssetID))
	candidate := types.TopOfBook{
		HaveBid: true, HaveAsk: true,
		BestBid: bid, BestAsk: ask,
		TickSize:     existing.TickSize,
		LastUpdateTS: time.Now(),
	}
	if !candidate.Valid() {
		return false
	}
	*existing = candidate
	return true
}

func (f *MarketFeed) applyPriceChange(ev *types.WSPriceChangeEvent) bool {
	if ev == nil {
		return false
	}
	applied := false
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	for _, pc := range ev.PriceChanges {
		if pc.BestBid == "" || pc.BestAsk == "" {
			continue
		}
		bid, err1 := parsePrice(pc.BestBid)
		ask, err2 := parsePrice(pc.BestAsk)
		if err1 != nil || err2 != nil {
			continue
		}
		existing := f.getOrCreate(types.AssetID(pc.AssetID))
		candidate := types.TopOfBook{
			HaveBid: true, HaveAsk: true,
			BestBid: bid, BestAsk: ask,
			TickSize:     existing.TickSize,
			LastUpdateTS: time.Now(),
		}
		if !candidate.Valid() {
			continue
		}
		*existing = candidate
		applied = true
	}
	return applied
}

func (f *MarketFeed) applyTickSizeChange(ev *types.WSTickSizeChangeEvent) bool {
	if ev == nil || ev.NewTickSize == "" {
		return false
	}
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	existing := f.getOrCreate(types.AssetID(ev.AssetID))
	existing.TickSize = types.TickSize(ev.NewTickSize)
	return true
}

// getOrCreate must be called with cacheMu held.
func (f *MarketFeed) getOrCreate(asset types.AssetID) *types.TopOfBook {
	tob, ok := f.cache[asset]
	if !ok {
		tob = &types.TopOfBook{}
		f.cache[asset] = tob
	}
	return tob
}

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled or the reconnect attempt ceiling (10) is
// exceeded, in which case it returns a *FeedError — the orchestrator logs
// this; affected assets keep their last cached prices, and the periodic
// health check logs them as stale without deactivating them.
func (f *MarketFeed) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++

		wait := time.Duration(1<<uint(attempt-1)) * time.Second
		if wait > maxReconnectWait {
			wait = maxReconnectWait
		}

		f.logger.Warn("market feed disconnected, reconnecting", "error", err, "attempt", attempt, "wait", wait)
		if f.OnReconnect != nil {
			f.OnReconnect(attempt)
		}

		if attempt >= maxReconnectTries {
			return &FeedError{Channel: "market", Cause: fmt.Errorf("exceeded %d reconnect attempts: %w", maxReconnectTries, err)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (f *MarketFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.resendSubscriptions(); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}
	f.logger.Info("market feed connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.heartbeatLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(livenessTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		ev, err := types.DecodeMarketEvent(msg)
		if err != nil {
			f.logger.Debug("ignoring malformed market event", "error", err)
			continue
		}
		if ev.Kind == types.MarketEventUnknown {
			f.logger.Debug("ignoring unknown market event")
			continue
		}

		out := FeedEvent{Kind: ev.Kind, Book: ev.Book, PriceChange: ev.PriceChange, TickSizeChange: ev.TickSizeChange}
		select {
		case f.events <- out:
		default:
			f.logger.Warn("market feed event channel full, dropping event")
		}
	}
}

func (f *MarketFeed) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("heartbeat failed", "error", err)
				return
			}
		}
	}
}

func (f *MarketFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("market feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *MarketFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("market feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

// Close gracefully closes the connection.
func (f *MarketFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func parsePrice(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}
