package kb

import (
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/supplychain-env/model"
)

func sampleSummary() model.Summary {
	return model.Summary{
		AgentTypes: []string{"facility", "product"},
		Skus: []model.Sku{
			{ID: 1, Name: "a", Price: 10, Cost: 4},
			{ID: 2, Name: "b", Price: 12, Cost: 6},
		},
		UnitMapping: map[int]model.UnitMapping{
			10: {NodeType: model.NodeStorage, NodeIndex: 0, FacilityID: 1},
			11: {NodeType: model.NodeProduct, NodeIndex: 0, FacilityID: 1},
			12: {NodeType: model.NodeManufacture, NodeIndex: 0, FacilityID: 1},
			20: {NodeType: model.NodeStorage, NodeIndex: 1, FacilityID: 2},
			21: {NodeType: model.NodeDistribution, NodeIndex: 0, FacilityID: 2},
			22: {NodeType: model.NodeProduct, NodeIndex: 1, FacilityID: 2},
			23: {NodeType: model.NodeConsumer, NodeIndex: 0, FacilityID: 2},
			24: {NodeType: model.NodeSeller, NodeIndex: 0, FacilityID: 2},
		},
		Facilities: map[int]model.FacilitySummary{
			2: {
				ID:        2,
				Name:      "store",
				Upstreams: map[int][]int{1: {1}},
				Skus:      map[int]model.FacilitySku{1: {SkuID: 1, Vlt: 2}},
				Units: model.FacilityUnits{
					Storage:      &model.UnitSummary{ID: 20, NodeIndex: 1},
					Distribution: &model.UnitSummary{ID: 21, NodeIndex: 0},
					Products: map[int]model.ProductSummary{
						1: {
							UnitSummary: model.UnitSummary{ID: 22, NodeIndex: 1},
							SkuID:       1,
							Consumer:    &model.UnitSummary{ID: 23, NodeIndex: 0},
							Seller:      &model.UnitSummary{ID: 24, NodeIndex: 0},
						},
					},
				},
			},
			1: {
				ID:   1,
				Name: "plant",
				Units: model.FacilityUnits{
					Storage: &model.UnitSummary{ID: 10, NodeIndex: 0},
					Products: map[int]model.ProductSummary{
						1: {
							UnitSummary: model.UnitSummary{ID: 11, NodeIndex: 0},
							SkuID:       1,
							Manufacture: &model.UnitSummary{ID: 12, NodeIndex: 0},
						},
					},
				},
			},
		},
	}
}

func TestBuildIndexesFacilitiesAndUnits(t *testing.T) {
	topo, err := Build(sampleSummary())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	facilities := topo.Facilities()
	if len(facilities) != 2 || facilities[0].ID != 1 || facilities[1].ID != 2 {
		t.Fatalf("Facilities() = %v, want ids [1 2]", facilities)
	}
	if topo.UnitCount() != 8 {
		t.Fatalf("UnitCount = %d, want 8", topo.UnitCount())
	}

	for unit, want := range map[int]int{10: 1, 11: 1, 12: 1, 20: 2, 21: 2, 22: 2, 23: 2, 24: 2} {
		got, ok := topo.FacilityOf(unit)
		if !ok || got != want {
			t.Fatalf("FacilityOf(%d) = %d,%v, want %d", unit, got, ok, want)
		}
	}
	if _, ok := topo.FacilityOf(2); ok {
		t.Fatalf("facility ids must not resolve as units")
	}
	if !topo.IsFacility(2) || topo.IsFacility(22) {
		t.Fatalf("IsFacility mismatch")
	}

	store := topo.Facility(2)
	bundle, ok := store.Product(1)
	if !ok || !bundle.HasConsumer() || !bundle.HasSeller() || bundle.HasManufacture() {
		t.Fatalf("store bundle = %+v, want consumer+seller only", bundle)
	}
	if store.Distribution == nil || store.Distribution.ID != 21 {
		t.Fatalf("store distribution = %+v, want unit 21", store.Distribution)
	}
	if topo.Facility(1).Distribution != nil {
		t.Fatalf("plant should have no distribution unit")
	}
	if got := store.Sources(1); len(got) != 1 || got[0] != 1 {
		t.Fatalf("Sources(1) = %v, want [1]", got)
	}
	if topo.SkuCount() != 2 || len(topo.AgentTypes()) != 2 {
		t.Fatalf("SkuCount/AgentTypes = %d/%d, want 2/2", topo.SkuCount(), len(topo.AgentTypes()))
	}
	if sku, ok := topo.Sku(2); !ok || sku.Name != "b" {
		t.Fatalf("Sku(2) = %+v,%v", sku, ok)
	}
}

func TestBuildErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.Summary)
		want   error
	}{
		{
			name:   "empty",
			mutate: func(s *model.Summary) { s.Facilities = nil },
			want:   ErrEmptySummary,
		},
		{
			name: "missing storage",
			mutate: func(s *model.Summary) {
				f := s.Facilities[1]
				f.Units.Storage = nil
				s.Facilities[1] = f
			},
			want: ErrMissingStorage,
		},
		{
			name: "duplicate unit",
			mutate: func(s *model.Summary) {
				f := s.Facilities[2]
				f.Units.Distribution = &model.UnitSummary{ID: 20, NodeIndex: 1}
				s.Facilities[2] = f
			},
			want: ErrDuplicateUnit,
		},
		{
			name: "unit id reuses a facility id",
			mutate: func(s *model.Summary) {
				f := s.Facilities[1]
				f.Units.Storage = &model.UnitSummary{ID: 2, NodeIndex: 0}
				s.Facilities[1] = f
				s.UnitMapping[2] = model.UnitMapping{NodeType: model.NodeStorage, NodeIndex: 0, FacilityID: 1}
			},
			want: ErrDuplicateUnit,
		},
		{
			name:   "unit missing from mapping",
			mutate: func(s *model.Summary) { delete(s.UnitMapping, 23) },
			want:   ErrUnresolvedUnit,
		},
		{
			name: "mapping disagrees on node index",
			mutate: func(s *model.Summary) {
				s.UnitMapping[24] = model.UnitMapping{NodeType: model.NodeSeller, NodeIndex: 5, FacilityID: 2}
			},
			want: ErrUnresolvedUnit,
		},
		{
			name: "unknown upstream",
			mutate: func(s *model.Summary) {
				f := s.Facilities[2]
				f.Upstreams = map[int][]int{1: {1, 9}}
				s.Facilities[2] = f
			},
			want: ErrUnknownFacility,
		},
		{
			name:   "sparse sku ids",
			mutate: func(s *model.Summary) { s.Skus[1].ID = 5 },
			want:   ErrSkuIDs,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := sampleSummary()
			tc.mutate(&s)
			if _, err := Build(s); !errors.Is(err, tc.want) {
				t.Fatalf("Build error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBuildWithoutUnitMapping(t *testing.T) {
	s := sampleSummary()
	s.UnitMapping = nil
	if _, err := Build(s); err != nil {
		t.Fatalf("Build without mapping: %v", err)
	}
}

func TestConcurrentReaders(t *testing.T) {
	topo, err := Build(sampleSummary())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if id, ok := topo.FacilityOf(22); !ok || id != 2 {
					t.Errorf("FacilityOf(22) = %d,%v", id, ok)
					return
				}
				_ = topo.Facilities()
			}
		}()
	}
	wg.Wait()
}
