package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/supplychain-env/kb"
	"github.com/signalsfoundry/supplychain-env/model"
)

// StateBuilder turns a committed tick into per-agent raw state records.
type StateBuilder struct {
	topo *kb.Topology
	dims Dims
}

// NewStateBuilder creates a builder over an immutable topology.
func NewStateBuilder(topo *kb.Topology, dims Dims) *StateBuilder {
	return &StateBuilder{topo: topo, dims: dims}
}

// Dims returns the vector sizes the builder was constructed with.
func (b *StateBuilder) Dims() Dims { return b.dims }

// TickView is one tick's read-only view: the metrics handle plus every
// facility's storage contents, read once. Agents built from the same view
// observe identical storage. Safe for concurrent BuildAgentState calls.
type TickView struct {
	tc      TickContext
	topo    *kb.Topology
	dims    Dims
	storage map[int]map[int]float64
}

// Refresh reads the storage snapshot of every facility for tc.Tick.
func (b *StateBuilder) Refresh(tc TickContext) (*TickView, error) {
	if err := tc.check(); err != nil {
		return nil, err
	}

	v := &TickView{
		tc:      tc,
		topo:    b.topo,
		dims:    b.dims,
		storage: make(map[int]map[int]float64),
	}
	for _, f := range b.topo.Facilities() {
		products, err := readStorage(tc, f.Storage)
		if err != nil {
			return nil, fmt.Errorf("facility %d: %w", f.ID, err)
		}
		v.storage[f.ID] = products
	}
	return v, nil
}

func readStorage(tc TickContext, storage *model.UnitRef) (map[int]float64, error) {
	vals, err := tc.Snapshots.Point(model.NodeStorage, tc.Tick, storage.NodeIndex,
		AttrProductList, AttrProductNumber)
	if err != nil {
		return nil, fmt.Errorf("storage %d: %w", storage.ID, err)
	}
	// product_list and product_number are lists of equal width.
	if len(vals)%2 != 0 {
		return nil, fmt.Errorf("storage %d: uneven product list (%d values)", storage.ID, len(vals))
	}

	half := len(vals) / 2
	products := make(map[int]float64, half)
	for i := 0; i < half; i++ {
		id := int(math.Trunc(vals[i]))
		if id <= 0 {
			// Empty slot.
			continue
		}
		products[id] = math.Trunc(vals[half+i])
	}
	return products, nil
}

// Tick returns the tick this view was refreshed for.
func (v *TickView) Tick() int { return v.tc.Tick }

// Metrics returns the metrics handle this view was refreshed with.
func (v *TickView) Metrics() *model.TickMetrics { return v.tc.Metrics }

// BuildAgentState runs every extractor for agent into a fresh record.
func (v *TickView) BuildAgentState(agent model.AgentInfo) (*RawState, error) {
	f := v.topo.Facility(agent.FacilityID)
	if f == nil {
		return nil, fmt.Errorf("%w: agent %d names facility %d", ErrInvalidAgent, agent.ID, agent.FacilityID)
	}
	if agent.AgentType < 0 || agent.AgentType >= v.dims.AgentTypes {
		return nil, fmt.Errorf("%w: agent %d has type %d of %d", ErrInvalidAgent, agent.ID, agent.AgentType, v.dims.AgentTypes)
	}
	if !agent.IsFacility {
		if agent.Sku == nil || agent.Sku.ID < 1 || agent.Sku.ID > v.dims.SkuCount {
			return nil, fmt.Errorf("%w: product agent %d has no valid sku", ErrInvalidAgent, agent.ID)
		}
	}

	c := &extractCtx{
		tick:      v.tc.Tick,
		topo:      v.topo,
		dims:      v.dims,
		metrics:   v.tc.Metrics,
		snapshots: v.tc.Snapshots,
		facility:  f,
		storage:   v.storage[f.ID],
	}

	s := &RawState{}
	for _, e := range extractors {
		if err := e.fn(c, agent, s); err != nil {
			return nil, fmt.Errorf("%s features for agent %d: %w", e.name, agent.ID, err)
		}
	}
	s.GlobalTime = float64(v.tc.Tick)
	return s, nil
}
