package core

import (
	"fmt"
	"sync"

	"github.com/signalsfoundry/supplychain-env/model"
)

// ActionTranslator maps flat per-agent action values to typed engine
// actions. Agents that replenish from an upstream source are recorded in a
// side table while consumer state is built; every other known agent is
// treated as a producer.
type ActionTranslator struct {
	mu        sync.RWMutex
	known     map[int]struct{}
	replenish map[int]ReplenishTarget
}

// NewActionTranslator creates a translator for agents.
func NewActionTranslator(agents []model.AgentInfo) *ActionTranslator {
	t := &ActionTranslator{
		known:     make(map[int]struct{}, len(agents)),
		replenish: make(map[int]ReplenishTarget),
	}
	for _, a := range agents {
		t.known[a.ID] = struct{}{}
	}
	return t
}

// Record updates the side table from a freshly built record.
func (t *ActionTranslator) Record(agentID int, s *RawState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == nil || s.Replenish == nil {
		delete(t.replenish, agentID)
		return
	}
	t.replenish[agentID] = *s.Replenish
}

// Target returns the replenishment target recorded for agentID.
func (t *ActionTranslator) Target(agentID int) (ReplenishTarget, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.replenish[agentID]
	return r, ok
}

// Translate converts every entry of actions. Any unknown agent id fails the
// whole call.
func (t *ActionTranslator) Translate(actions map[int]float64) (map[int]model.Action, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[int]model.Action, len(actions))
	for agentID, qty := range actions {
		if _, ok := t.known[agentID]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownAgent, agentID)
		}
		if r, ok := t.replenish[agentID]; ok {
			out[agentID] = model.ConsumerAction{
				AgentID:    agentID,
				ProductID:  r.ProductID,
				SourceID:   r.SourceID,
				Quantity:   qty,
				Multiplier: 1,
			}
			continue
		}
		out[agentID] = model.ManufactureAction{AgentID: agentID, ProductionRate: qty}
	}
	return out, nil
}
