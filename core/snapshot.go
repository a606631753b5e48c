package core

import "github.com/signalsfoundry/supplychain-env/model"

// SnapshotQuery is the read side of the engine's snapshot store.
//
// Point returns one value per attribute (one per slot for list attributes).
// Window returns a (len(attrs), len(ticks)) matrix flattened row-major.
// Ticks the store has not committed, including ticks before the simulation
// started, read as zeros. Unknown node types or attributes are errors.
type SnapshotQuery interface {
	Point(node string, tick, index int, attrs ...string) ([]float64, error)
	Window(node string, ticks []int, index int, attrs ...string) ([]float64, error)
}

// Attribute names read by the feature extractors.
const (
	AttrProductList            = "product_list"
	AttrProductNumber          = "product_number"
	AttrRemainingOrderQuantity = "remaining_order_quantity"
	AttrRemainingOrderNumber   = "remaining_order_number"
	AttrLatestConsumptions     = "latest_consumptions"
	AttrTotalDemand            = "total_demand"
	AttrSold                   = "sold"
	AttrDemand                 = "demand"
)

// WindowTicks returns [tick, tick-1, ..., tick-(n-1)].
func WindowTicks(tick, n int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = tick - i
	}
	return out
}

// TickContext is everything the core reads for one committed tick. Passing
// it explicitly makes the per-tick consistency boundary part of the call
// signature.
type TickContext struct {
	Tick      int
	Metrics   *model.TickMetrics
	Snapshots SnapshotQuery
}

func (tc TickContext) check() error {
	if tc.Metrics == nil {
		return ErrNoTickContext
	}
	if tc.Snapshots == nil {
		return ErrNoTickContext
	}
	return nil
}
