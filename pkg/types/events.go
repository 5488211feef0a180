package types

import "encoding/json"

// MarketEventKind tags a decoded market-channel event.
type MarketEventKind string

const (
	MarketEventBook           MarketEventKind = "book"
	MarketEventPriceChange    MarketEventKind = "price_change"
	MarketEventTickSizeChange MarketEventKind = "tick_size_change"
	MarketEventUnknown        MarketEventKind = "unknown"
)

// MarketEvent is the decoded tagged variant for a single market-channel
// message. Exactly one of Book, PriceChange, TickSizeChange is set,
// matching Kind.
type MarketEvent struct {
	Kind           MarketEventKind
	Book           *WSBookEvent
	PriceChange    *WSPriceChangeEvent
	TickSizeChange *WSTickSizeChangeEvent
}

// wireEnvelope peels off just the discriminator field shared by every
// message kind on both channels.
type wireEnvelope struct {
	EventType string `json:"event_type"`
}

// DecodeMarketEvent decodes one raw market-channel frame into a tagged
// MarketEvent. Malformed JSON is reported via the error return; an unknown
// event_type decodes to MarketEventUnknown with a nil error. Neither is ever
// treated as a fatal condition.
func DecodeMarketEvent(raw []byte) (MarketEvent, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return MarketEvent{}, err
	}
	switch env.EventType {
	case string(MarketEventBook):
		var ev WSBookEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return MarketEvent{}, err
		}
		return MarketEvent{Kind: MarketEventBook, Book: &ev}, nil
	case string(MarketEventPriceChange):
		var ev WSPriceChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return MarketEvent{}, err
		}
		return MarketEvent{Kind: MarketEventPriceChange, PriceChange: &ev}, nil
	case string(MarketEventTickSizeChange):
		var ev WSTickSizeChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return MarketEvent{}, err
		}
		return MarketEvent{Kind: MarketEventTickSizeChange, TickSizeChange: &ev}, nil
	default:
		return MarketEvent{Kind: MarketEventUnknown}, nil
	}
}

// UserEventKind tags a decoded user-channel event.
type UserEventKind string

const (
	UserEventTrade   UserEventKind = "trade"
	UserEventOrder   UserEventKind = "order"
	UserEventUnknown UserEventKind = "unknown"
)

// UserEvent is the decoded tagged variant for a single user-channel message.
type UserEvent struct {
	Kind  UserEventKind
	Trade *WSTradeEvent
	Order *WSOrderEvent
}

// DecodeUserEvent decodes one raw user-channel frame into a tagged UserEvent.
func DecodeUserEvent(raw []byte) (UserEvent, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return UserEvent{}, err
	}
	switch env.EventType {
	case string(UserEventTrade):
		var ev WSTradeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return UserEvent{}, err
		}
		return UserEvent{Kind: UserEventTrade, Trade: &ev}, nil
	case string(UserEventOrder):
		var ev WSOrderEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return UserEvent{}, err
		}
		return UserEvent{Kind: UserEventOrder, Order: &ev}, nil
	default:
		return UserEvent{Kind: UserEventUnknown}, nil
	}
}
