// Package kb holds the static supply-chain topology: facilities, their
// storage/distribution units and per-SKU product bundles, plus the reverse
// lookup from any unit id to its owning facility.
package kb

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/supplychain-env/model"
)

var (
	// ErrMissingStorage indicates a facility was reported without a storage unit.
	ErrMissingStorage = errors.New("facility has no storage unit")
	// ErrDuplicateUnit indicates a unit id was referenced more than once or
	// collides with a facility id.
	ErrDuplicateUnit = errors.New("duplicate unit id")
	// ErrUnresolvedUnit indicates a unit is missing from the engine unit mapping
	// or disagrees with it.
	ErrUnresolvedUnit = errors.New("unresolved unit reference")
	// ErrUnknownFacility indicates an upstream references a facility that does not exist.
	ErrUnknownFacility = errors.New("unknown facility")
	// ErrSkuIDs indicates the SKU catalogue is not dense over [1, n].
	ErrSkuIDs = errors.New("sku ids must be dense from 1")
	// ErrEmptySummary indicates Build was given nothing to index.
	ErrEmptySummary = errors.New("empty topology summary")
)

// Topology is the immutable index built from an engine summary. All methods
// are safe for concurrent use because nothing mutates it after Build.
type Topology struct {
	agentTypes []string
	skus       []model.Sku
	skuByID    map[int]model.Sku

	facilities   map[int]*model.Facility
	facilityIDs  []int
	unitFacility map[int]int
}

// Build indexes summary. Malformed summaries are initialization errors.
func Build(summary model.Summary) (*Topology, error) {
	if len(summary.Facilities) == 0 {
		return nil, ErrEmptySummary
	}

	t := &Topology{
		agentTypes:   append([]string(nil), summary.AgentTypes...),
		skus:         append([]model.Sku(nil), summary.Skus...),
		skuByID:      make(map[int]model.Sku, len(summary.Skus)),
		facilities:   make(map[int]*model.Facility, len(summary.Facilities)),
		unitFacility: make(map[int]int),
	}

	for i, sku := range t.skus {
		if sku.ID != i+1 {
			return nil, fmt.Errorf("%w: position %d has id %d", ErrSkuIDs, i, sku.ID)
		}
		t.skuByID[sku.ID] = sku
	}

	for id := range summary.Facilities {
		t.facilityIDs = append(t.facilityIDs, id)
	}
	sort.Ints(t.facilityIDs)

	for _, id := range t.facilityIDs {
		fs := summary.Facilities[id]
		f, err := t.buildFacility(id, fs, summary.UnitMapping)
		if err != nil {
			return nil, err
		}
		t.facilities[id] = f
	}

	// Upstream sources must resolve once every facility is known.
	for _, id := range t.facilityIDs {
		f := t.facilities[id]
		for skuID, sources := range f.Upstreams {
			for _, src := range sources {
				if _, ok := t.facilities[src]; !ok {
					return nil, fmt.Errorf("%w: facility %d lists source %d for sku %d",
						ErrUnknownFacility, id, src, skuID)
				}
			}
		}
	}

	return t, nil
}

func (t *Topology) buildFacility(id int, fs model.FacilitySummary, mapping map[int]model.UnitMapping) (*model.Facility, error) {
	if fs.Units.Storage == nil {
		return nil, fmt.Errorf("%w: facility %d", ErrMissingStorage, id)
	}

	f := &model.Facility{
		ID:        id,
		Name:      fs.Name,
		NodeIndex: fs.NodeIndex,
		Config:    fs.Configs,
		Upstreams: make(map[int][]int, len(fs.Upstreams)),
		Skus:      make(map[int]model.FacilitySku, len(fs.Skus)),
		Products:  make(map[int]model.ProductBundle, len(fs.Units.Products)),
	}
	for skuID, sources := range fs.Upstreams {
		f.Upstreams[skuID] = append([]int(nil), sources...)
	}
	for skuID, cfg := range fs.Skus {
		f.Skus[skuID] = cfg
	}

	register := func(u *model.UnitSummary, nodeType string) (*model.UnitRef, error) {
		if u == nil {
			return nil, nil
		}
		if t.isFacilityID(u.ID) {
			return nil, fmt.Errorf("%w: %s unit %d of facility %d reuses a facility id", ErrDuplicateUnit, nodeType, u.ID, id)
		}
		if owner, dup := t.unitFacility[u.ID]; dup {
			return nil, fmt.Errorf("%w: unit %d already owned by facility %d", ErrDuplicateUnit, u.ID, owner)
		}
		if len(mapping) > 0 {
			m, ok := mapping[u.ID]
			if !ok {
				return nil, fmt.Errorf("%w: %s unit %d of facility %d not in unit mapping", ErrUnresolvedUnit, nodeType, u.ID, id)
			}
			if m.NodeIndex != u.NodeIndex || m.FacilityID != id {
				return nil, fmt.Errorf("%w: %s unit %d maps to node %d of facility %d",
					ErrUnresolvedUnit, nodeType, u.ID, m.NodeIndex, m.FacilityID)
			}
		}
		t.unitFacility[u.ID] = id
		return u.Ref(), nil
	}

	var err error
	if f.Storage, err = register(fs.Units.Storage, model.NodeStorage); err != nil {
		return nil, err
	}
	if f.Distribution, err = register(fs.Units.Distribution, model.NodeDistribution); err != nil {
		return nil, err
	}

	skuIDs := make([]int, 0, len(fs.Units.Products))
	for skuID := range fs.Units.Products {
		skuIDs = append(skuIDs, skuID)
	}
	sort.Ints(skuIDs)

	for _, skuID := range skuIDs {
		ps := fs.Units.Products[skuID]
		if _, ok := t.skuByID[skuID]; !ok {
			return nil, fmt.Errorf("%w: facility %d has product for sku %d", ErrSkuIDs, id, skuID)
		}
		product, err := register(&ps.UnitSummary, model.NodeProduct)
		if err != nil {
			return nil, err
		}
		bundle := model.ProductBundle{Product: *product}
		if bundle.Seller, err = register(ps.Seller, model.NodeSeller); err != nil {
			return nil, err
		}
		if bundle.Consumer, err = register(ps.Consumer, model.NodeConsumer); err != nil {
			return nil, err
		}
		if bundle.Manufacture, err = register(ps.Manufacture, model.NodeManufacture); err != nil {
			return nil, err
		}
		f.Products[skuID] = bundle
	}

	return f, nil
}

func (t *Topology) isFacilityID(id int) bool {
	i := sort.SearchInts(t.facilityIDs, id)
	return i < len(t.facilityIDs) && t.facilityIDs[i] == id
}

// Facility returns the facility with the given id, or nil if not found.
func (t *Topology) Facility(id int) *model.Facility {
	return t.facilities[id]
}

// Facilities returns all facilities ordered by id.
func (t *Topology) Facilities() []*model.Facility {
	out := make([]*model.Facility, 0, len(t.facilityIDs))
	for _, id := range t.facilityIDs {
		out = append(out, t.facilities[id])
	}
	return out
}

// FacilityOf returns the facility owning unitID. Facility ids themselves are
// not units and report false.
func (t *Topology) FacilityOf(unitID int) (int, bool) {
	id, ok := t.unitFacility[unitID]
	return id, ok
}

// IsFacility reports whether id names a facility.
func (t *Topology) IsFacility(id int) bool {
	_, ok := t.facilities[id]
	return ok
}

// SkuCount is the number of SKUs in the catalogue.
func (t *Topology) SkuCount() int { return len(t.skus) }

// Skus returns the catalogue in global order.
func (t *Topology) Skus() []model.Sku {
	return append([]model.Sku(nil), t.skus...)
}

// Sku returns the catalogue entry for id.
func (t *Topology) Sku(id int) (model.Sku, bool) {
	s, ok := t.skuByID[id]
	return s, ok
}

// AgentTypes returns the ordered agent type names.
func (t *Topology) AgentTypes() []string {
	return append([]string(nil), t.agentTypes...)
}

// UnitCount is the number of indexed units across all facilities.
func (t *Topology) UnitCount() int { return len(t.unitFacility) }
