package engine

import (
	"fmt"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// InvariantViolation reports a side-lock (I1) violation observed at
// transition time: the order manager refused a placement because the
// orchestrator's own bookkeeping already believed the asset had no live
// order. This should never happen in production use — it means the
// engine's state tracking and the order manager's active set disagree —
// so it is fatal rather than recovered.
type InvariantViolation struct {
	Asset  types.AssetID
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on asset %s: %s", e.Asset, e.Reason)
}
