package directory

import "testing"

func TestConvertFiltersInactiveMarkets(t *testing.T) {
	t.Parallel()
	gm := gammaMarket{Active: false, ClobTokenIds: `["a","b"]`}
	if _, ok := convert(gm); ok {
		t.Errorf("expected inactive market to be filtered")
	}
}

func TestConvertFiltersMissingTokenIDs(t *testing.T) {
	t.Parallel()
	gm := gammaMarket{Active: true, AcceptingOrders: true, EnableOrderBook: true}
	if _, ok := convert(gm); ok {
		t.Errorf("expected market with no token ids to be filtered")
	}
}

func TestConvertParsesTokenIDsAndTickSize(t *testing.T) {
	t.Parallel()
	gm := gammaMarket{
		Active: true, AcceptingOrders: true, EnableOrderBook: true,
		ConditionID:  "0xABC",
		ClobTokenIds: `["yes-token","no-token"]`,
		Liquidity:    "1234.5",
		TickSize:     0.001,
	}
	info, ok := convert(gm)
	if !ok {
		t.Fatalf("expected market to convert")
	}
	if info.YesAsset != "yes-token" || info.NoAsset != "no-token" {
		t.Errorf("asset ids = %q/%q, want yes-token/no-token", info.YesAsset, info.NoAsset)
	}
	if info.ConditionID != "0xabc" {
		t.Errorf("condition id = %q, want lowercased 0xabc", info.ConditionID)
	}
	if info.TickSize != "0.001" {
		t.Errorf("tick size = %q, want 0.001", info.TickSize)
	}
	if info.Liquidity != 1234.5 {
		t.Errorf("liquidity = %v, want 1234.5", info.Liquidity)
	}
}

func TestConvertRejectsMalformedTokenIDJSON(t *testing.T) {
	t.Parallel()
	gm := gammaMarket{Active: true, AcceptingOrders: true, EnableOrderBook: true, ClobTokenIds: "not-json"}
	if _, ok := convert(gm); ok {
		t.Errorf("expected malformed token id json to be filtered")
	}
}
