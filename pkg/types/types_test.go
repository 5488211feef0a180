package types

import "testing"

func TestTickSizeDecimals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tick TickSize
		want int
	}{
		{Tick01, 1},
		{Tick001, 2},
		{Tick0001, 3},
		{Tick00001, 4},
		{TickSize("unknown"), 2}, // default
	}

	for _, tt := range tests {
		if got := tt.tick.Decimals(); got != tt.want {
			t.Errorf("TickSize(%q).Decimals() = %d, want %d", tt.tick, got, tt.want)
		}
	}
}

func TestTopOfBookValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tob  TopOfBook
		want bool
	}{
		{"missing bid", TopOfBook{HaveAsk: true, BestAsk: 0.5}, false},
		{"missing ask", TopOfBook{HaveBid: true, BestBid: 0.4}, false},
		{"valid", TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.46, BestAsk: 0.50}, true},
		{"crossed", TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.55, BestAsk: 0.40}, false},
		{"equal", TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.5, BestAsk: 0.5}, false},
		{"spread too wide", TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.1, BestAsk: 0.9}, false},
		{"spread exactly 0.20", TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.30, BestAsk: 0.50}, true},
		{"ask above one", TopOfBook{HaveBid: true, HaveAsk: true, BestBid: 0.9, BestAsk: 1.01}, false},
	}

	for _, tt := range tests {
		if got := tt.tob.Valid(); got != tt.want {
			t.Errorf("%s: TopOfBook.Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDecodeMarketEvent(t *testing.T) {
	t.Parallel()

	book := []byte(`{"event_type":"book","asset_id":"A1","buys":[{"price":"0.46","size":"10"}],"sells":[{"price":"0.50","size":"10"}]}`)
	ev, err := DecodeMarketEvent(book)
	if err != nil {
		t.Fatalf("DecodeMarketEvent(book): %v", err)
	}
	if ev.Kind != MarketEventBook || ev.Book == nil {
		t.Fatalf("expected book event, got %+v", ev)
	}

	unknown := []byte(`{"event_type":"new_market"}`)
	ev, err = DecodeMarketEvent(unknown)
	if err != nil {
		t.Fatalf("DecodeMarketEvent(unknown): %v", err)
	}
	if ev.Kind != MarketEventUnknown {
		t.Fatalf("expected unknown kind, got %q", ev.Kind)
	}

	if _, err := DecodeMarketEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected error decoding malformed JSON")
	}
}

func TestDecodeUserEvent(t *testing.T) {
	t.Parallel()

	trade := []byte(`{"event_type":"trade","id":"t1","side":"BUY","size":"5","price":"0.46"}`)
	ev, err := DecodeUserEvent(trade)
	if err != nil {
		t.Fatalf("DecodeUserEvent(trade): %v", err)
	}
	if ev.Kind != UserEventTrade || ev.Trade == nil {
		t.Fatalf("expected trade event, got %+v", ev)
	}

	order := []byte(`{"event_type":"order","id":"o1","status":"CANCELLED"}`)
	ev, err = DecodeUserEvent(order)
	if err != nil {
		t.Fatalf("DecodeUserEvent(order): %v", err)
	}
	if ev.Kind != UserEventOrder || ev.Order == nil {
		t.Fatalf("expected order event, got %+v", ev)
	}
}
