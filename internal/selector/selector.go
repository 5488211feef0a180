// Package selector implements MarketSelector: turns the directory's raw
// candidate list into up to MAX_MARKETS outcome tokens worth trading,
// per spec section 4.6.
package selector

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/0xspreadcap/polymarket-maker/internal/config"
	"github.com/0xspreadcap/polymarket-maker/internal/directory"
	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// warmUpDelay is how long the selector waits after subscribing all
// candidate assets to MarketFeed before reading back top-of-book.
const warmUpDelay = 3 * time.Second

// restFallbackDepthUSD is the fixed depth estimate used when top-of-book
// came from MarketFeed rather than a REST book snapshot — the feed itself
// doesn't carry size information, only best bid/ask.
const restFallbackDepthUSD = 500.0

// maxNormalizedDepthUSD caps the REST-derived depth estimate so a
// malformed book can't inflate a candidate's score unboundedly.
const maxNormalizedDepthUSD = 10_000.0

// FeedSource is the subset of MarketFeed the selector needs: subscribe to
// warm the cache, then read back whatever arrived.
type FeedSource interface {
	Subscribe(asset types.AssetID)
	Unsubscribe(asset types.AssetID)
	LastPrices(asset types.AssetID) (types.TopOfBook, bool)
}

// BookSource is the REST fallback used when MarketFeed hasn't produced a
// valid top-of-book for an asset within the warm-up window.
type BookSource interface {
	GetOrderBook(ctx context.Context, assetID types.AssetID) (*types.BookResponse, error)
}

// denyCounts tallies how many candidates were rejected by each strict
// filter, logged once per scan for observability.
type denyCounts map[string]int

// Selector runs the eligibility/scoring pipeline over the directory's
// candidate list.
type Selector struct {
	cfg    config.SelectConfig
	risk   config.RiskConfig
	source directory.CandidateSource
	feed   FeedSource
	books  BookSource
	warmUp time.Duration
	logger *slog.Logger
}

// New creates a Selector.
func New(cfg config.SelectConfig, risk config.RiskConfig, source directory.CandidateSource, feed FeedSource, books BookSource, logger *slog.Logger) *Selector {
	return &Selector{
		cfg: cfg, risk: risk, source: source, feed: feed, books: books,
		warmUp: warmUpDelay,
		logger: logger.With("component", "selector"),
	}
}

// sideObservation is one side's (YES or NO) top-of-book plus the estimated
// depth behind it, before the strict filters and scoring are applied.
type sideObservation struct {
	side   types.MarketSide
	asset  types.AssetID
	tob    types.TopOfBook
	depth  float64
	fromWS bool
}

// Select runs the full pipeline and returns up to cfg.MaxMarkets candidates.
func (s *Selector) Select(ctx context.Context) ([]types.CandidateMarket, error) {
	markets, err := s.source.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}

	prefiltered := make([]types.MarketInfo, 0, len(markets))
	for _, m := range markets {
		if m.Volume24h >= s.cfg.MinVolume24hUSD {
			prefiltered = append(prefiltered, m)
		}
	}

	for _, m := range prefiltered {
		s.feed.Subscribe(m.YesAsset)
		s.feed.Subscribe(m.NoAsset)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.warmUp):
	}

	deny := make(denyCounts)
	candidates := make([]types.CandidateMarket, 0, len(prefiltered))

	for _, m := range prefiltered {
		obs, ok := s.bestSide(ctx, m)
		if !ok {
			deny["no_book"]++
			continue
		}

		hoursToClose := time.Until(m.EndDate).Hours()
		cand, reason, ok := s.applyFilters(m, obs, hoursToClose)
		if !ok {
			deny[reason]++
			continue
		}
		candidates = append(candidates, cand)
	}

	for _, m := range prefiltered {
		s.feed.Unsubscribe(m.YesAsset)
		s.feed.Unsubscribe(m.NoAsset)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	candidates = enforcePerEventCap(candidates, s.cfg.MaxMarketsPerEvent)

	if len(candidates) > s.cfg.MaxMarkets {
		candidates = candidates[:s.cfg.MaxMarkets]
	}

	s.logger.Info("selection complete",
		"candidates_in", len(prefiltered), "selected", len(candidates), "denied", deny)

	return candidates, nil
}

// bestSide picks whichever of YES/NO has a valid top-of-book and the larger
// spread when both are valid, per spec step 5.
func (s *Selector) bestSide(ctx context.Context, m types.MarketInfo) (sideObservation, bool) {
	yes, yesOK := s.observeSide(ctx, types.Yes, m.YesAsset)
	no, noOK := s.observeSide(ctx, types.No, m.NoAsset)

	switch {
	case yesOK && noOK:
		if yes.tob.Spread() >= no.tob.Spread() {
			return yes, true
		}
		return no, true
	case yesOK:
		return yes, true
	case noOK:
		return no, true
	default:
		return sideObservation{}, false
	}
}

func (s *Selector) observeSide(ctx context.Context, side types.MarketSide, asset types.AssetID) (sideObservation, bool) {
	if tob, ok := s.feed.LastPrices(asset); ok && tob.Valid() {
		return sideObservation{side: side, asset: asset, tob: tob, depth: restFallbackDepthUSD, fromWS: true}, true
	}

	book, err := s.books.GetOrderBook(ctx, asset)
	if err != nil || book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return sideObservation{}, false
	}

	bid, err1 := strconv.ParseFloat(book.Bids[0].Price, 64)
	ask, err2 := strconv.ParseFloat(book.Asks[0].Price, 64)
	if err1 != nil || err2 != nil {
		return sideObservation{}, false
	}
	tob := types.TopOfBook{HaveBid: true, HaveAsk: true, BestBid: bid, BestAsk: ask, LastUpdateTS: time.Now()}
	if !tob.Valid() {
		return sideObservation{}, false
	}

	depth := normalizedDepth(book.Bids) + normalizedDepth(book.Asks)
	if depth > maxNormalizedDepthUSD {
		depth = maxNormalizedDepthUSD
	}
	return sideObservation{side: side, asset: asset, tob: tob, depth: depth, fromWS: false}, true
}

// normalizedDepth sums price*size over the top-2 levels, applying the
// mis-scaled-units correction and sanity bounds from spec step "Depth
// normalization".
func normalizedDepth(levels []types.PriceLevel) float64 {
	total := 0.0
	for i, lvl := range levels {
		if i >= 2 {
			break
		}
		price, err1 := strconv.ParseFloat(lvl.Price, 64)
		size, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if size > 100_000 {
			size = size / 1e6
		}
		if price <= 0 || price > 1 || size <= 0 || size >= 1e6 {
			continue
		}
		total += price * size
	}
	return total
}

// applyFilters runs the strict deny-code filters and, on success, computes
// the candidate's score.
func (s *Selector) applyFilters(m types.MarketInfo, obs sideObservation, hoursToClose float64) (types.CandidateMarket, string, bool) {
	spread := obs.tob.Spread()
	minSpread := s.cfg.MinSpreadCents / 100
	maxSpread := s.cfg.MaxSpreadCents / 100

	switch {
	case spread < minSpread:
		return types.CandidateMarket{}, "spread_too_small", false
	case spread > maxSpread:
		return types.CandidateMarket{}, "spread_too_large", false
	case m.Volume24h < s.cfg.MinVolume24hUSD:
		return types.CandidateMarket{}, "volume_low", false
	case obs.depth < s.cfg.MinDepthTop2USD:
		return types.CandidateMarket{}, "depth_low", false
	case hoursToClose < s.cfg.HoursToCloseMin:
		return types.CandidateMarket{}, "closing_soon", false
	case spread*s.risk.MinNotionalPerOrder < s.risk.MinExpectedProfit:
		return types.CandidateMarket{}, "expected_profit_low", false
	}

	score := 0.4*(spread*1000) +
		0.3*math.Log10(obs.depth+1)*100 +
		0.2*math.Log10(m.Volume24h+1)*50 +
		0.1*math.Min(hoursToClose/24, 30)

	return types.CandidateMarket{
		Asset:        obs.asset,
		Side:         obs.side,
		ConditionID:  m.ConditionID,
		Market:       m,
		Spread:       spread,
		Depth:        obs.depth,
		Volume24h:    m.Volume24h,
		HoursToClose: hoursToClose,
		Score:        score,
	}, "", true
}

// enforcePerEventCap keeps only the top maxPerEvent candidates per
// condition ID, assuming candidates is already sorted by score descending.
func enforcePerEventCap(candidates []types.CandidateMarket, maxPerEvent int) []types.CandidateMarket {
	counts := make(map[types.ConditionID]int)
	out := make([]types.CandidateMarket, 0, len(candidates))
	for _, c := range candidates {
		if counts[c.ConditionID] >= maxPerEvent {
			continue
		}
		counts[c.ConditionID]++
		out = append(out, c)
	}
	return out
}
