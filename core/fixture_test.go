package core

import (
	"testing"

	"github.com/signalsfoundry/supplychain-env/internal/sim/state"
	"github.com/signalsfoundry/supplychain-env/model"
)

// Two facilities: a supplier (1) that manufactures sku 1 and a retailer (2)
// that buys sku 1 from the supplier and also stocks sku 2 without a
// consumer unit.
const (
	supplierID      = 1
	retailerID      = 2
	supplierProduct = 11
	retailerSku1    = 22
	retailerSku2    = 25
)

func fixtureSkus() []model.Sku {
	return []model.Sku{
		{ID: 1, Name: "widget", Price: 10, Cost: 5, ServiceLevel: 0.95, SaleGamma: 3},
		{ID: 2, Name: "gadget", Price: 20, Cost: 8, ServiceLevel: 0.9, SaleGamma: 2},
	}
}

func fixtureSummary() model.Summary {
	return model.Summary{
		AgentTypes: []string{"facility", "product"},
		Skus:       fixtureSkus(),
		Facilities: map[int]model.FacilitySummary{
			supplierID: {
				ID:   supplierID,
				Name: "supplier",
				Skus: map[int]model.FacilitySku{
					1: {SkuID: 1, Vlt: 3, SaleGamma: 3},
				},
				Units: model.FacilityUnits{
					Storage: &model.UnitSummary{ID: 10, NodeIndex: 0, Config: map[string]any{"capacity": 1000}},
					Products: map[int]model.ProductSummary{
						1: {
							UnitSummary: model.UnitSummary{ID: supplierProduct, NodeIndex: 0},
							SkuID:       1,
							Manufacture: &model.UnitSummary{ID: 12, NodeIndex: 0},
						},
					},
				},
			},
			retailerID: {
				ID:        retailerID,
				Name:      "retailer",
				NodeIndex: 1,
				Upstreams: map[int][]int{1: {supplierID}, 2: {}},
				Skus: map[int]model.FacilitySku{
					1: {SkuID: 1, Vlt: 2, SaleGamma: 4},
					2: {SkuID: 2, Vlt: 1, SaleGamma: 2},
				},
				Units: model.FacilityUnits{
					Storage:      &model.UnitSummary{ID: 20, NodeIndex: 1, Config: map[string]any{"capacity": 100.0}},
					Distribution: &model.UnitSummary{ID: 21, NodeIndex: 0},
					Products: map[int]model.ProductSummary{
						1: {
							UnitSummary: model.UnitSummary{ID: retailerSku1, NodeIndex: 1, Attrs: map[string]any{"max_vlt": 2}},
							SkuID:       1,
							Consumer:    &model.UnitSummary{ID: 23, NodeIndex: 0},
							Seller:      &model.UnitSummary{ID: 24, NodeIndex: 0},
						},
						2: {
							UnitSummary: model.UnitSummary{ID: retailerSku2, NodeIndex: 2},
							SkuID:       2,
						},
					},
				},
			},
		},
	}
}

func fixtureAgents() []model.AgentInfo {
	skus := fixtureSkus()
	return []model.AgentInfo{
		{ID: supplierID, FacilityID: supplierID, AgentType: 0, IsFacility: true},
		{ID: supplierProduct, FacilityID: supplierID, AgentType: 1, Sku: &skus[0]},
		{ID: retailerID, FacilityID: retailerID, AgentType: 0, IsFacility: true},
		{ID: retailerSku1, FacilityID: retailerID, AgentType: 1, Sku: &skus[0]},
		{ID: retailerSku2, FacilityID: retailerID, AgentType: 1, Sku: &skus[1]},
	}
}

func fixtureStore(t *testing.T, skuCount int) *state.SnapshotList {
	t.Helper()
	ss, err := state.NewSnapshotList(0,
		state.NodeSpec{Name: model.NodeStorage, Count: 2, Attrs: []state.AttrSpec{
			{Name: AttrProductList, Slots: skuCount},
			{Name: AttrProductNumber, Slots: skuCount},
		}},
		state.NodeSpec{Name: model.NodeDistribution, Count: 1, Attrs: []state.AttrSpec{
			{Name: AttrRemainingOrderQuantity}, {Name: AttrRemainingOrderNumber},
		}},
		state.NodeSpec{Name: model.NodeConsumer, Count: 1, Attrs: []state.AttrSpec{
			{Name: AttrLatestConsumptions},
		}},
		state.NodeSpec{Name: model.NodeSeller, Count: 1, Attrs: []state.AttrSpec{
			{Name: AttrTotalDemand}, {Name: AttrSold}, {Name: AttrDemand},
		}},
	)
	if err != nil {
		t.Fatalf("NewSnapshotList: %v", err)
	}
	return ss
}

func mustSet(t *testing.T, ss *state.SnapshotList, node string, index int, attr string, values ...float64) {
	t.Helper()
	if err := ss.SetSlots(node, index, attr, values...); err != nil {
		t.Fatalf("SetSlots(%s[%d].%s): %v", node, index, attr, err)
	}
}

// commitFixtureTick writes retailer stock of sku 1 and 2 and seller history
// for tick, then commits it.
func commitFixtureTick(t *testing.T, ss *state.SnapshotList, tick int, stock1, stock2 float64) {
	t.Helper()
	mustSet(t, ss, model.NodeStorage, 0, AttrProductList, 1, 0)
	mustSet(t, ss, model.NodeStorage, 0, AttrProductNumber, 500, 0)
	mustSet(t, ss, model.NodeStorage, 1, AttrProductList, 1, 2)
	mustSet(t, ss, model.NodeStorage, 1, AttrProductNumber, stock1, stock2)
	mustSet(t, ss, model.NodeDistribution, 0, AttrRemainingOrderQuantity, 12.7)
	mustSet(t, ss, model.NodeDistribution, 0, AttrRemainingOrderNumber, 3)
	mustSet(t, ss, model.NodeConsumer, 0, AttrLatestConsumptions, float64(tick%2))
	mustSet(t, ss, model.NodeSeller, 0, AttrTotalDemand, 9.9)
	mustSet(t, ss, model.NodeSeller, 0, AttrSold, float64(tick+1))
	mustSet(t, ss, model.NodeSeller, 0, AttrDemand, float64(2*(tick+1)))
	ss.Commit(tick)
}

func fixtureMetrics(tick int) *model.TickMetrics {
	return &model.TickMetrics{
		Tick:                  tick,
		MaxSourcesPerFacility: 1,
		MaxPrice:              20,
		StepBalanceSheet: map[int]model.BalanceSheet{
			supplierID:      {Profit: 100},
			retailerID:      {Profit: 1000},
			retailerSku1:    {Profit: 200},
			supplierProduct: {Profit: 50, Loss: -20},
		},
		Facilities: map[int]model.FacilityMetrics{
			retailerID: {
				TotalBalanceSheet: model.BalanceSheet{Profit: 10},
				InTransitOrders:   map[int]float64{1: 5, 2: 1},
				PendingOrder:      map[int]float64{1: 2},
			},
		},
		Products: map[int]model.ProductMetrics{
			retailerSku1: {SaleMean: 4, SaleStd: 1, PendingOrderDaily: []float64{1, 2}},
			retailerSku2: {SaleMean: 2, SaleStd: 0.5, TotalBalanceSheet: model.BalanceSheet{Loss: -3}},
		},
	}
}

func newFixtureEnv(t *testing.T, settings Settings) *Env {
	t.Helper()
	env, err := NewEnv(fixtureSummary(), fixtureAgents(), settings, nil)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	return env
}

func buildFixtureState(t *testing.T, env *Env, tc TickContext, agentID int) *RawState {
	t.Helper()
	view, err := env.builder.Refresh(tc)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	for _, a := range env.Agents() {
		if a.ID == agentID {
			s, err := view.BuildAgentState(a)
			if err != nil {
				t.Fatalf("BuildAgentState(%d): %v", agentID, err)
			}
			return s
		}
	}
	t.Fatalf("agent %d not in fixture", agentID)
	return nil
}

func approxEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
