// Package directory discovers candidate markets from the venue's public
// market-listing API (distinct from the authenticated CLOB trading API).
// It is the external directory named in the selector's step 1 — a CandidateSource
// that the market selector consults once per scan cycle.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// CandidateSource lists markets worth offering to the selector. Its only
// implementation here is the Gamma-shaped REST client below, but the
// selector depends on this narrow interface so it can be driven from a
// fixture in tests.
type CandidateSource interface {
	ListMarkets(ctx context.Context) ([]types.MarketInfo, error)
}

// gammaMarket is the JSON shape returned by the venue's market-listing API.
type gammaMarket struct {
	ID              string  `json:"id"`
	Question        string  `json:"question"`
	ConditionID     string  `json:"conditionId"`
	Slug            string  `json:"slug"`
	Active          bool    `json:"active"`
	Closed          bool    `json:"closed"`
	AcceptingOrders bool    `json:"acceptingOrders"`
	EnableOrderBook bool    `json:"enableOrderBook"`
	EndDate         string  `json:"endDate"`
	Liquidity       string  `json:"liquidity"`
	Volume24hr      float64 `json:"volume24hr"`
	ClobTokenIds    string  `json:"clobTokenIds"`
	NegRisk         bool    `json:"negRisk"`
	TickSize        float64 `json:"orderPriceMinTickSize"`
}

// Client lists candidate markets by paging through the directory's /markets
// endpoint, filtered to active, order-book-enabled markets with a parseable
// token-ID pair.
type Client struct {
	http *resty.Client
}

// NewClient creates a directory client against baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
	}
}

// ListMarkets pages through every active, order-book-enabled market.
func (c *Client) ListMarkets(ctx context.Context) ([]types.MarketInfo, error) {
	const pageSize = 100
	var out []types.MarketInfo
	offset := 0

	for {
		var page []gammaMarket
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":  strconv.Itoa(pageSize),
				"offset": strconv.Itoa(offset),
				"active": "true",
				"closed": "false",
			}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("fetch markets page at offset %d: %w", offset, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("fetch markets: status %d", resp.StatusCode())
		}

		for _, gm := range page {
			if info, ok := convert(gm); ok {
				out = append(out, info)
			}
		}

		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}

	return out, nil
}

func convert(gm gammaMarket) (types.MarketInfo, bool) {
	if !gm.Active || gm.Closed || !gm.AcceptingOrders || !gm.EnableOrderBook {
		return types.MarketInfo{}, false
	}
	if gm.ClobTokenIds == "" {
		return types.MarketInfo{}, false
	}

	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIds), &tokenIDs); err != nil || len(tokenIDs) < 2 {
		return types.MarketInfo{}, false
	}

	liquidity, _ := strconv.ParseFloat(gm.Liquidity, 64)
	endDate, _ := time.Parse(time.RFC3339, gm.EndDate)

	var tick types.TickSize
	switch {
	case gm.TickSize == 0.1:
		tick = types.Tick01
	case gm.TickSize == 0.001:
		tick = types.Tick0001
	case gm.TickSize == 0.0001:
		tick = types.Tick00001
	default:
		tick = types.Tick001
	}

	return types.MarketInfo{
		ID:              gm.ID,
		ConditionID:     types.ConditionID(strings.ToLower(gm.ConditionID)),
		Slug:            gm.Slug,
		Question:        gm.Question,
		YesAsset:        types.AssetID(tokenIDs[0]),
		NoAsset:         types.AssetID(tokenIDs[1]),
		TickSize:        tick,
		NegRisk:         gm.NegRisk,
		Active:          gm.Active,
		Closed:          gm.Closed,
		AcceptingOrders: gm.AcceptingOrders,
		EndDate:         endDate,
		Liquidity:       liquidity,
		Volume24h:       gm.Volume24hr,
	}, true
}
