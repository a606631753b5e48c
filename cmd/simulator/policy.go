package main

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/supplychain-env/core"
	"github.com/signalsfoundry/supplychain-env/model"
)

// Policy turns one tick of raw agent records into flat per-agent actions.
// Replenishing agents read the value as an order quantity, manufacturing
// agents as a production rate; other agents ignore it.
type Policy interface {
	Name() string
	Decide(agents []model.AgentInfo, states []*core.RawState) map[int]float64
}

func newPolicy(name string, constantQty float64) (Policy, error) {
	switch name {
	case "rop":
		return ropPolicy{}, nil
	case "constant":
		return constantPolicy{qty: constantQty}, nil
	case "idle":
		return idlePolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// ropPolicy orders up to the reorder point plus one lead time of mean
// demand whenever estimated inventory falls below the reorder point, and
// produces at the observed sale rate while storage is under half full.
type ropPolicy struct{}

func (ropPolicy) Name() string { return "rop" }

func (ropPolicy) Decide(agents []model.AgentInfo, states []*core.RawState) map[int]float64 {
	out := make(map[int]float64, len(agents))
	for i, a := range agents {
		s := states[i]
		if a.IsFacility || s == nil {
			out[a.ID] = 0
			continue
		}
		if s.Replenish != nil {
			out[a.ID] = orderUpTo(s)
			continue
		}
		free := s.StorageCapacity - s.StorageUtilization
		if s.StorageCapacity > 0 && s.StorageLevels[a.Sku.ID] < 0.5*s.StorageCapacity && free > 0 {
			out[a.ID] = math.Min(math.Ceil(math.Max(s.SaleMean, 1)), free)
			continue
		}
		out[a.ID] = 0
	}
	return out
}

func orderUpTo(s *core.RawState) float64 {
	if s.IsBelowRop == 0 && s.IsOutOfStock == 0 {
		return 0
	}
	lead := math.Max(s.MaxVlt, 1)
	target := s.InventoryRop + s.SaleMean*lead
	qty := math.Ceil(target - s.InventoryEstimated)
	if room := s.StorageCapacity - s.StorageUtilization; s.StorageCapacity > 0 && qty > room {
		qty = math.Floor(room)
	}
	return math.Max(qty, 0)
}

// constantPolicy sends the same value to every agent.
type constantPolicy struct{ qty float64 }

func (constantPolicy) Name() string { return "constant" }

func (p constantPolicy) Decide(agents []model.AgentInfo, _ []*core.RawState) map[int]float64 {
	out := make(map[int]float64, len(agents))
	for _, a := range agents {
		out[a.ID] = p.qty
	}
	return out
}

// idlePolicy never orders or produces.
type idlePolicy struct{}

func (idlePolicy) Name() string { return "idle" }

func (idlePolicy) Decide(agents []model.AgentInfo, _ []*core.RawState) map[int]float64 {
	out := make(map[int]float64, len(agents))
	for _, a := range agents {
		out[a.ID] = 0
	}
	return out
}
