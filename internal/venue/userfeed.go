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

// UserFeed is the authenticated per-account channel carrying fill and order
// lifecycle notifications. Unlike MarketFeed it caches nothing — every
// decoded event is simply forwarded to the orchestrator, which is the one
// that updates order-manager/risk state from it.
type UserFeed struct {
	url  string
	auth *Auth

	conn   *websocket.Conn
	connMu sync.Mutex

	marketsMu sync.Mutex
	markets   map[types.ConditionID]bool

	events chan UserFeedEvent
	logger *slog.Logger

	// OnReconnect, if set, is called once per reconnect attempt so the
	// orchestrator can surface it as a metric. Optional.
	OnReconnect func(attempt int)
}

// UserFeedEvent is the tagged, decoded form of one user-channel message.
type UserFeedEvent struct {
	Kind  types.UserEventKind
	Trade *types.WSTradeEvent
	Order *types.WSOrderEvent
}

// NewUserFeed creates a user-channel feed authenticated with auth.
func NewUserFeed(wsURL string, auth *Auth, logger *slog.Logger) *UserFeed {
	return &UserFeed{
		url:     wsURL,
		auth:    auth,
		markets: make(map[types.ConditionID]bool),
		events:  make(chan UserFeedEvent, feedEventBufferLen),
		logger:  logger.With("component", "user_feed"),
	}
}

// Events returns the channel the orchestrator drains every tick.
func (f *UserFeed) Events() <-chan UserFeedEvent { return f.events }

// Track adds a market (by condition ID) to the set re-subscribed on every
// reconnect. There is no debounce here: markets are added one at a time as
// the selector activates them, and a reconnect mid-selection simply resends
// whatever set is tracked at that moment.
func (f *UserFeed) Track(conditionID types.ConditionID) {
	f.marketsMu.Lock()
	defer f.marketsMu.Unlock()
	f.markets[conditionID] = true
}

// Untrack removes a market from the tracked set; the engine calls it when it
// deactivates the market.
func (f *UserFeed) Untrack(conditionID types.ConditionID) {
	f.marketsMu.Lock()
	defer f.marketsMu.Unlock()
	delete(f.markets, conditionID)
}

// Run connects and maintains the authenticated user WebSocket connection,
// with the same bounded back-off as MarketFeed.
func (f *UserFeed) Run(ctx context.Context) error {
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

		f.logger.Warn("user feed disconnected, reconnecting", "error", err, "attempt", attempt, "wait", wait)
		if f.OnReconnect != nil {
			f.OnReconnect(attempt)
		}

		if attempt >= maxReconnectTries {
			return &FeedError{Channel: "user", Cause: fmt.Errorf("exceeded %d reconnect attempts: %w", maxReconnectTries, err)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (f *UserFeed) connectAndRead(ctx context.Context) error {
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

	wsAuth, err := f.auth.WSAuthPayload()
	if err != nil {
		return fmt.Errorf("build ws auth: %w", err)
	}

	f.marketsMu.Lock()
	markets := make([]string, 0, len(f.markets))
	for id := range f.markets {
		markets = append(markets, string(id))
	}
	f.marketsMu.Unlock()

	sub := types.WSSubscribeMsg{Type: "user", Auth: wsAuth, Markets: markets}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("user feed connected")

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

		ev, err := types.DecodeUserEvent(msg)
		if err != nil {
			f.logger.Debug("ignoring malformed user event", "error", err)
			continue
		}
		if ev.Kind == types.UserEventUnknown {
			f.logger.Debug("ignoring unknown user event")
			continue
		}

		out := UserFeedEvent{Kind: ev.Kind, Trade: ev.Trade, Order: ev.Order}
		select {
		case f.events <- out:
		default:
			f.logger.Warn("user feed event channel full, dropping event")
		}
	}
}

func (f *UserFeed) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("heartbeat failed", "error", err)
				return
			}
		}
	}
}

// Close gracefully closes the connection.
func (f *UserFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
