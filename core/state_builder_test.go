package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/supplychain-env/internal/sim/state"
	"github.com/signalsfoundry/supplychain-env/model"
)

func TestConsumerFeaturesForRetailerProduct(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	commitFixtureTick(t, ss, 0, 30, 7)

	s := buildFixtureState(t, env, TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss}, retailerSku1)

	if s.InventoryInStock != 30 {
		t.Fatalf("InventoryInStock = %v, want 30", s.InventoryInStock)
	}
	if s.InventoryInTransit != 5 {
		t.Fatalf("InventoryInTransit = %v, want 5", s.InventoryInTransit)
	}
	if s.InventoryInDistribution != 2 {
		t.Fatalf("InventoryInDistribution = %v, want 2", s.InventoryInDistribution)
	}
	if s.InventoryEstimated != 33 {
		t.Fatalf("InventoryEstimated = %v, want 33", s.InventoryEstimated)
	}
	if s.IsOverStock != 0 || s.IsOutOfStock != 0 || s.IsBelowRop != 0 {
		t.Fatalf("flags = (%v,%v,%v), want all zero", s.IsOverStock, s.IsOutOfStock, s.IsBelowRop)
	}
	if s.MaxVlt != 2 {
		t.Fatalf("MaxVlt = %v, want 2", s.MaxVlt)
	}
	wantRop := ReorderPoint(2, 4, 1, 0.95)
	if !approxEqual(s.InventoryRop, wantRop) {
		t.Fatalf("InventoryRop = %v, want %v", s.InventoryRop, wantRop)
	}
	if s.Replenish == nil || *s.Replenish != (ReplenishTarget{ProductID: 1, SourceID: supplierID}) {
		t.Fatalf("Replenish = %+v, want {1 %d}", s.Replenish, supplierID)
	}
	if got := s.ConsumerInTransitOrders; len(got) != 3 || got[1] != 5 || got[2] != 1 {
		t.Fatalf("ConsumerInTransitOrders = %v, want [0 5 1]", got)
	}
}

func TestVLTAndExportMaskUseSourceSlots(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	commitFixtureTick(t, ss, 0, 30, 7)

	s := buildFixtureState(t, env, TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss}, retailerSku1)

	dims := env.Dims()
	if len(s.Vlt) != dims.SourceSlots() || len(s.ConsumerSourceExportMask) != dims.SourceSlots() {
		t.Fatalf("per-source vector lengths = (%d,%d), want %d", len(s.Vlt), len(s.ConsumerSourceExportMask), dims.SourceSlots())
	}
	slot := dims.SourceSlot(0, 1)
	if slot != 1 {
		t.Fatalf("SourceSlot(0,1) = %d, want 1", slot)
	}
	for i, v := range s.Vlt {
		want := 0.0
		if i == slot {
			want = 2 // retailer's own lead time for sku 1
		}
		if v != want {
			t.Fatalf("Vlt[%d] = %v, want %v", i, v, want)
		}
	}
	for i, v := range s.ConsumerSourceExportMask {
		want := 0.0
		if i == slot {
			want = 3 // supplier's lead time for sku 1
		}
		if v != want {
			t.Fatalf("ConsumerSourceExportMask[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestSaleFeaturesReadWindowsMostRecentFirst(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	for tick := 0; tick <= 3; tick++ {
		commitFixtureTick(t, ss, tick, 30, 7)
	}

	s := buildFixtureState(t, env, TickContext{Tick: 3, Metrics: fixtureMetrics(3), Snapshots: ss}, retailerSku1)

	wantSold := []float64{4, 3, 2, 1}
	wantDemand := []float64{8, 6, 4, 2}
	for i := range wantSold {
		if s.SaleHist[i] != wantSold[i] {
			t.Fatalf("SaleHist = %v, want %v", s.SaleHist, wantSold)
		}
		if s.BacklogDemandHist[i] != wantDemand[i] {
			t.Fatalf("BacklogDemandHist = %v, want %v", s.BacklogDemandHist, wantDemand)
		}
	}
	if s.TotalBacklogDemand != 9 {
		t.Fatalf("TotalBacklogDemand = %v, want 9 (truncated)", s.TotalBacklogDemand)
	}
	if s.SaleMean != 4 || s.SaleStd != 1 {
		t.Fatalf("sale mean/std = %v/%v, want 4/1", s.SaleMean, s.SaleStd)
	}
	if s.SaleGamma != 4 {
		t.Fatalf("SaleGamma = %v, want facility override 4", s.SaleGamma)
	}
	if got := s.ConsumptionHist; got[0] != 1 || got[1] != 0 || got[2] != 1 || got[3] != 0 {
		t.Fatalf("ConsumptionHist = %v, want [1 0 1 0]", got)
	}
	if got := s.PendingOrder; len(got) != 4 || got[0] != 1 || got[1] != 2 || got[2] != 0 {
		t.Fatalf("PendingOrder = %v, want [1 2 0 0]", got)
	}
	if s.GlobalTime != 3 {
		t.Fatalf("GlobalTime = %v, want 3", s.GlobalTime)
	}
}

func TestWindowBeforeStartIsZeroFilled(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	commitFixtureTick(t, ss, 0, 30, 7)
	commitFixtureTick(t, ss, 1, 30, 7)

	s := buildFixtureState(t, env, TickContext{Tick: 1, Metrics: fixtureMetrics(1), Snapshots: ss}, retailerSku1)

	want := []float64{2, 1, 0, 0}
	for i := range want {
		if s.SaleHist[i] != want[i] {
			t.Fatalf("SaleHist = %v, want %v", s.SaleHist, want)
		}
	}
}

func TestSaleGammaMirrorsMeanWithoutSeller(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	commitFixtureTick(t, ss, 0, 30, 7)

	s := buildFixtureState(t, env, TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss}, retailerSku2)
	if s.SaleGamma != 2 || s.SaleMean != 2 {
		t.Fatalf("SaleGamma/SaleMean = %v/%v, want 2/2", s.SaleGamma, s.SaleMean)
	}
	if s.ServiceLevel != 0.9 {
		t.Fatalf("ServiceLevel = %v, want 0.9", s.ServiceLevel)
	}
	if s.IsPositiveBalance != 0 {
		t.Fatalf("IsPositiveBalance = %v, want 0 for negative product balance", s.IsPositiveBalance)
	}
}

func TestProductWithoutConsumerHasZeroInventoryFeatures(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	commitFixtureTick(t, ss, 0, 30, 7)
	tc := TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss}

	for _, id := range []int{retailerSku2, supplierProduct, retailerID, supplierID} {
		s := buildFixtureState(t, env, tc, id)
		if s.InventoryInStock != 0 || s.InventoryRop != 0 || s.IsOverStock != 0 ||
			s.IsOutOfStock != 0 || s.IsBelowRop != 0 || s.InventoryEstimated != 0 {
			t.Fatalf("agent %d inventory features = %+v, want zero defaults", id, s)
		}
		if s.Replenish != nil {
			t.Fatalf("agent %d Replenish = %+v, want nil", id, s.Replenish)
		}
		for i, v := range s.ConsumerSourceExportMask {
			if v != 0 {
				t.Fatalf("agent %d export mask[%d] = %v, want 0", id, i, v)
			}
		}
	}
}

func TestStorageAndFacilityFeatures(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	commitFixtureTick(t, ss, 0, 30.9, 7)

	s := buildFixtureState(t, env, TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss}, retailerID)

	if s.StorageCapacity != 100 {
		t.Fatalf("StorageCapacity = %v, want 100", s.StorageCapacity)
	}
	if s.StorageUtilization != 37 {
		t.Fatalf("StorageUtilization = %v, want 37 (quantities truncated)", s.StorageUtilization)
	}
	if s.StorageLevels[1] != 30 || s.StorageLevels[2] != 7 {
		t.Fatalf("StorageLevels = %v, want [0 30 7]", s.StorageLevels)
	}
	if s.FacilityType[0] != 1 || s.FacilityType[1] != 0 {
		t.Fatalf("FacilityType = %v, want [1 0]", s.FacilityType)
	}
	if s.IsPositiveBalance != 1 {
		t.Fatalf("IsPositiveBalance = %v, want 1", s.IsPositiveBalance)
	}
	if s.DistributorInTransitOrdersQty != 12 || s.DistributorInTransitOrders != 3 {
		t.Fatalf("distributor = (%v,%v), want (12,3)", s.DistributorInTransitOrdersQty, s.DistributorInTransitOrders)
	}
	for _, name := range AtomNames() {
		if got := s.AtomHistory[name]; len(got) != 4 || got[0] != 1 {
			t.Fatalf("AtomHistory[%s] = %v, want four ones", name, got)
		}
	}

	p := buildFixtureState(t, env, TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss}, retailerSku1)
	if p.FacilityID[1] != 1 || p.BomInputs[1] != 1 || p.BomOutputs[1] != 1 {
		t.Fatalf("product one-hots = %v %v %v, want sku slot 1 set", p.FacilityID, p.BomInputs, p.BomOutputs)
	}
	if p.SkuPrice != 10 || p.SkuCost != 5 || p.MaxPrice != 20 {
		t.Fatalf("price = (%v,%v,%v), want (10,5,20)", p.SkuPrice, p.SkuCost, p.MaxPrice)
	}
}

func TestTickViewCachesStorage(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	commitFixtureTick(t, ss, 0, 30, 7)

	view, err := env.builder.Refresh(TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Overwrite the committed tick after the refresh.
	commitFixtureTick(t, ss, 0, 99, 99)

	agents := fixtureAgents()
	s, err := view.BuildAgentState(agents[3])
	if err != nil {
		t.Fatalf("BuildAgentState: %v", err)
	}
	if s.InventoryInStock != 30 {
		t.Fatalf("InventoryInStock = %v, want cached 30", s.InventoryInStock)
	}
}

func TestRefreshRejectsIncompleteContext(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	if _, err := env.builder.Refresh(TickContext{Tick: 0}); !errors.Is(err, ErrNoTickContext) {
		t.Fatalf("Refresh error = %v, want ErrNoTickContext", err)
	}
}

func TestRefreshPropagatesSnapshotErrors(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss, err := state.NewSnapshotList(0)
	if err != nil {
		t.Fatalf("NewSnapshotList: %v", err)
	}
	_, err = env.builder.Refresh(TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss})
	if !errors.Is(err, state.ErrUnknownNode) {
		t.Fatalf("Refresh error = %v, want ErrUnknownNode", err)
	}
}

func TestBuildAgentStateRejectsInvalidAgent(t *testing.T) {
	env := newFixtureEnv(t, DefaultSettings())
	ss := fixtureStore(t, 2)
	commitFixtureTick(t, ss, 0, 30, 7)
	view, err := env.builder.Refresh(TickContext{Tick: 0, Metrics: fixtureMetrics(0), Snapshots: ss})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	cases := []model.AgentInfo{
		{ID: 99, FacilityID: 42, IsFacility: true},
		{ID: 99, FacilityID: retailerID, AgentType: 7, IsFacility: true},
		{ID: 99, FacilityID: retailerID, AgentType: 1},
	}
	for _, a := range cases {
		if _, err := view.BuildAgentState(a); !errors.Is(err, ErrInvalidAgent) {
			t.Fatalf("BuildAgentState(%+v) error = %v, want ErrInvalidAgent", a, err)
		}
	}
}

func TestReorderPoint(t *testing.T) {
	cases := []struct {
		name                     string
		maxVlt, mean, std, level float64
		want                     float64
	}{
		{name: "zero lead time", maxVlt: 0, mean: 10, std: 3, level: 0.95, want: 0},
		{name: "median service level", maxVlt: 4, mean: 10, std: 2, level: 0.5, want: 40},
		{name: "95 percent", maxVlt: 4, mean: 10, std: 2, level: 0.95, want: 40 + 2*2*1.6448536269514722},
		{name: "99 percent", maxVlt: 9, mean: 1, std: 1, level: 0.99, want: 9 + 3*2.3263478740408408},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ReorderPoint(tc.maxVlt, tc.mean, tc.std, tc.level); !approxEqual(got, tc.want) {
				t.Fatalf("ReorderPoint = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConstraintAtoms(t *testing.T) {
	s := &RawState{
		InventoryInStock: 10,
		MaxVlt:           1,
		SaleMean:         2,
		SkuPrice:         10,
		SkuCost:          5,
		ConsumptionHist:  []float64{0, 0, 3},
	}
	got := EvaluateAtoms(s)
	want := map[string]bool{
		"stock_constraint":        true,  // 10 <= 16
		"is_replenish_constraint": true,  // last consumption 3
		"low_profit":              true,  // 10 <= 1000
		"low_stock_constraint":    false, // 10 > 8
		"out_of_stock":            true,
	}
	for name, w := range want {
		if got[name] != w {
			t.Fatalf("atom %s = %v, want %v", name, got[name], w)
		}
	}
	if len(EvaluateAtoms(nil)) != 0 {
		t.Fatalf("EvaluateAtoms(nil) should be empty")
	}
}
