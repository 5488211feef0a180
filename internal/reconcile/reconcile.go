// Package reconcile reconstructs and periodically re-verifies the order
// manager's in-memory ActiveOrder set against the venue's own open-orders
// listing, per spec section 4.7's reconciliation step. There is no local
// persistence (spec section 6: "Persisted state: None") — this package's
// Reconstruct is the only way exposure/order state survives a restart,
// recovered entirely from the venue, not from disk.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// VenueOrders is the narrow surface the reconciler needs from the REST
// client: the full list of open orders this account holds on the venue.
type VenueOrders interface {
	GetOpenOrders(ctx context.Context) ([]types.OpenOrder, error)
}

// DiscrepancyKind classifies one mismatch between the local ActiveOrder set
// and what the venue reports.
type DiscrepancyKind string

const (
	// MissingOnVenue: we believe an order is live, but the venue no longer
	// lists it — it either filled or was cancelled out of band. UserFeed is
	// the primary path for learning this; a discrepancy here means the
	// corresponding fill/cancel event was missed or arrived out of order.
	MissingOnVenue DiscrepancyKind = "missing_on_venue"
	// OrphanedOnVenue: the venue lists an order for an asset this process
	// has no ActiveOrder record for — a leftover from a previous run, or a
	// replace whose cancel silently failed. Should be cancelled.
	OrphanedOnVenue DiscrepancyKind = "orphaned_on_venue"
)

// Discrepancy is one mismatch found during Reconcile.
type Discrepancy struct {
	Asset   types.AssetID
	OrderID string
	Kind    DiscrepancyKind
}

// Report summarizes one reconciliation pass.
type Report struct {
	VenueOrderCount int
	LocalOrderCount int
	Discrepancies   []Discrepancy
}

// Reconciler compares local order-manager state against the venue's
// open-orders listing.
type Reconciler struct {
	venue  VenueOrders
	logger *slog.Logger
}

// New creates a reconciler against a venue client.
func New(venue VenueOrders, logger *slog.Logger) *Reconciler {
	return &Reconciler{venue: venue, logger: logger.With("component", "reconciler")}
}

// Reconcile compares the order manager's current ActiveOrder set against
// the venue's open-orders listing and reports every mismatch found. It
// performs no mutation itself, and the orchestrator acts on none of the
// discrepancies: it only counts each one by kind in its metrics.
func (r *Reconciler) Reconcile(ctx context.Context, active map[types.AssetID]*types.ActiveOrder) (*Report, error) {
	openOrders, err := r.venue.GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: get open orders: %w", err)
	}

	byOrderID := make(map[string]types.OpenOrder, len(openOrders))
	for _, o := range openOrders {
		byOrderID[o.ID] = o
	}

	report := &Report{VenueOrderCount: len(openOrders), LocalOrderCount: len(active)}

	trackedOrderIDs := make(map[string]bool, len(active))
	for asset, order := range active {
		trackedOrderIDs[order.OrderID] = true
		if _, exists := byOrderID[order.OrderID]; !exists {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Asset: asset, OrderID: order.OrderID, Kind: MissingOnVenue,
			})
		}
	}

	for _, o := range openOrders {
		if trackedOrderIDs[o.ID] {
			continue
		}
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Asset: types.AssetID(o.AssetID), OrderID: o.ID, Kind: OrphanedOnVenue,
		})
	}

	if len(report.Discrepancies) > 0 {
		r.logger.Warn("reconciliation found discrepancies",
			"venue_orders", report.VenueOrderCount,
			"local_orders", report.LocalOrderCount,
			"discrepancies", len(report.Discrepancies),
		)
	}
	return report, nil
}

// Reconstruct rebuilds the initial ActiveOrder set at startup, the only
// recovery path for order state since nothing is persisted to disk. Venue
// open orders are filtered down to the given tracked assets; anything else
// the account holds open (e.g. from a previous, differently-configured run)
// is left alone here — the orchestrator's first Reconcile pass will surface
// it as OrphanedOnVenue.
func (r *Reconciler) Reconstruct(ctx context.Context, assets []types.AssetID) (map[types.AssetID]*types.ActiveOrder, error) {
	tracked := make(map[types.AssetID]bool, len(assets))
	for _, a := range assets {
		tracked[a] = true
	}

	openOrders, err := r.venue.GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: get open orders: %w", err)
	}

	result := make(map[types.AssetID]*types.ActiveOrder)
	for _, o := range openOrders {
		asset := types.AssetID(o.AssetID)
		if !tracked[asset] {
			continue
		}
		order, ok := convertOpenOrder(o)
		if !ok {
			r.logger.Warn("reconstruct: skipping unparsable open order", "order_id", o.ID, "asset", asset)
			continue
		}
		result[asset] = order
	}

	r.logger.Info("reconstructed active orders from venue", "count", len(result), "tracked_assets", len(assets))
	return result, nil
}

func convertOpenOrder(o types.OpenOrder) (*types.ActiveOrder, bool) {
	price, err := strconv.ParseFloat(o.Price, 64)
	if err != nil {
		return nil, false
	}
	origSize, err := strconv.ParseFloat(o.OriginalSize, 64)
	if err != nil {
		return nil, false
	}
	matched, err := strconv.ParseFloat(o.SizeMatched, 64)
	if err != nil {
		matched = 0
	}
	remaining := origSize - matched
	if remaining <= 0 {
		return nil, false
	}

	var side types.Side
	switch o.Side {
	case string(types.BUY):
		side = types.BUY
	case string(types.SELL):
		side = types.SELL
	default:
		return nil, false
	}

	return &types.ActiveOrder{
		OrderID: o.ID,
		Asset:   types.AssetID(o.AssetID),
		Side:    side,
		Price:   price,
		Size:    remaining,
	}, true
}
