package engine

import (
	"sort"

	"github.com/signalsfoundry/supplychain-env/internal/sim/state"
	"github.com/signalsfoundry/supplychain-env/model"
)

// Snapshot attribute names written by the engine. The observation core
// reads a subset of them.
const (
	attrProductList            = "product_list"
	attrProductNumber          = "product_number"
	attrCapacity               = "capacity"
	attrRemainingSpace         = "remaining_space"
	attrRemainingOrderQuantity = "remaining_order_quantity"
	attrRemainingOrderNumber   = "remaining_order_number"
	attrProductID              = "product_id"
	attrProductUnitID          = "product_unit_id"
	attrLatestConsumptions     = "latest_consumptions"
	attrOrderQuantity          = "order_quantity"
	attrPurchased              = "purchased"
	attrReceived               = "received"
	attrTotalDemand            = "total_demand"
	attrSold                   = "sold"
	attrDemand                 = "demand"
	attrTotalSold              = "total_sold"
	attrProductionRate         = "production_rate"
	attrManufactureQuantity    = "manufacture_quantity"
	attrPrice                  = "price"
)

// Agent type names. Facility agents come first.
var agentTypes = []string{"facility", "product"}

const (
	agentTypeFacility = 0
	agentTypeProduct  = 1
)

type shipment struct {
	arrive   int
	sourceID int
	qty      float64
}

type order struct {
	dest     *productState
	destFac  *facilityState
	sourceID int
	qty      float64
}

type consumerState struct {
	unitID    int
	nodeIndex int
	inbound   []shipment

	orderQty  float64
	purchased float64
	received  float64
	latest    float64
}

type sellerState struct {
	unitID      int
	nodeIndex   int
	demand      float64
	sold        float64
	totalDemand float64
	totalSold   float64
}

type manufactureState struct {
	unitID    int
	nodeIndex int
	rate      float64
	produced  float64
}

type productState struct {
	unitID    int
	nodeIndex int
	sku       SkuSpec
	cfg       FacilitySkuSpec
	price     float64
	cost      float64
	gamma     float64

	consumer    *consumerState
	seller      *sellerState
	manufacture *manufactureState

	sales     []float64
	tickSales float64
	total     model.BalanceSheet
}

type facilityState struct {
	spec      FacilitySpec
	nodeIndex int

	storageID    int
	storageIndex int
	distID       int
	distIndex    int

	stock    map[int]float64
	queue    []order
	products []*productState
	bySku    map[int]*productState
	total    model.BalanceSheet
}

func (f *facilityState) onHand() float64 {
	total := 0.0
	for _, q := range f.stock {
		total += q
	}
	return total
}

func (f *facilityState) free() float64 {
	return f.spec.StorageCapacity - f.onHand()
}

// layout is the static structure derived from a scenario: ids, node indexes
// and the summary handed to observers. It never changes after build.
type layout struct {
	facilities []*facilityState
	byID       map[int]*facilityState
	products   map[int]*productState
	owner      map[int]*facilityState
	summary    model.Summary
	agents     []model.AgentInfo
	nodes      []state.NodeSpec
	maxSources int
	maxPrice   float64
}

func buildLayout(sc Scenario) *layout {
	l := &layout{
		byID:     make(map[int]*facilityState, len(sc.Facilities)),
		products: make(map[int]*productState),
		owner:    make(map[int]*facilityState),
	}

	skus := make(map[int]SkuSpec, len(sc.Skus))
	for _, s := range sc.Skus {
		skus[s.ID] = s
		if s.Price > l.maxPrice {
			l.maxPrice = s.Price
		}
	}

	nextID := 0
	for _, f := range sc.Facilities {
		if f.ID > nextID {
			nextID = f.ID
		}
	}
	allocate := func() int {
		nextID++
		return nextID
	}

	var nDist, nProducts, nConsumers, nSellers, nManufactures int
	for i, spec := range sc.Facilities {
		fs := &facilityState{
			spec:         spec,
			nodeIndex:    i,
			storageID:    allocate(),
			storageIndex: i,
			stock:        make(map[int]float64, len(spec.Skus)),
			bySku:        make(map[int]*productState, len(spec.Skus)),
		}
		if spec.Distribution {
			fs.distID = allocate()
			fs.distIndex = nDist
			nDist++
		}

		cfgs := append([]FacilitySkuSpec(nil), spec.Skus...)
		sort.Slice(cfgs, func(a, b int) bool { return cfgs[a].SkuID < cfgs[b].SkuID })
		for _, cfg := range cfgs {
			sku := skus[cfg.SkuID]
			p := &productState{
				unitID:    allocate(),
				nodeIndex: nProducts,
				sku:       sku,
				cfg:       cfg,
				price:     pick(cfg.Price, sku.Price),
				cost:      pick(cfg.Cost, sku.Cost),
				gamma:     pick(cfg.SaleGamma, sku.SaleGamma),
			}
			nProducts++
			if cfg.HasConsumer() {
				p.consumer = &consumerState{unitID: allocate(), nodeIndex: nConsumers}
				nConsumers++
				if len(cfg.Sources) > l.maxSources {
					l.maxSources = len(cfg.Sources)
				}
			}
			if cfg.Seller {
				p.seller = &sellerState{unitID: allocate(), nodeIndex: nSellers}
				nSellers++
			}
			if cfg.Manufacture {
				p.manufacture = &manufactureState{unitID: allocate(), nodeIndex: nManufactures}
				nManufactures++
			}
			fs.products = append(fs.products, p)
			fs.bySku[cfg.SkuID] = p
			l.products[p.unitID] = p
			l.owner[p.unitID] = fs
		}
		l.facilities = append(l.facilities, fs)
		l.byID[spec.ID] = fs
	}

	skuSlots := len(sc.Skus)
	l.nodes = []state.NodeSpec{
		{Name: model.NodeStorage, Count: len(l.facilities), Attrs: []state.AttrSpec{
			{Name: attrProductList, Slots: skuSlots},
			{Name: attrProductNumber, Slots: skuSlots},
			{Name: attrCapacity},
			{Name: attrRemainingSpace},
		}},
		{Name: model.NodeDistribution, Count: nDist, Attrs: []state.AttrSpec{
			{Name: attrRemainingOrderQuantity},
			{Name: attrRemainingOrderNumber},
		}},
		{Name: model.NodeProduct, Count: nProducts, Attrs: []state.AttrSpec{
			{Name: attrProductID},
			{Name: attrPrice},
		}},
		{Name: model.NodeConsumer, Count: nConsumers, Attrs: []state.AttrSpec{
			{Name: attrProductID},
			{Name: attrProductUnitID},
			{Name: attrLatestConsumptions},
			{Name: attrOrderQuantity},
			{Name: attrPurchased},
			{Name: attrReceived},
		}},
		{Name: model.NodeSeller, Count: nSellers, Attrs: []state.AttrSpec{
			{Name: attrProductID},
			{Name: attrProductUnitID},
			{Name: attrTotalDemand},
			{Name: attrSold},
			{Name: attrDemand},
			{Name: attrTotalSold},
		}},
		{Name: model.NodeManufacture, Count: nManufactures, Attrs: []state.AttrSpec{
			{Name: attrProductID},
			{Name: attrProductUnitID},
			{Name: attrProductionRate},
			{Name: attrManufactureQuantity},
		}},
	}

	l.summary = l.buildSummary(sc)
	return l
}

func (l *layout) buildSummary(sc Scenario) model.Summary {
	s := model.Summary{
		AgentTypes:  append([]string(nil), agentTypes...),
		UnitMapping: make(map[int]model.UnitMapping),
		Facilities:  make(map[int]model.FacilitySummary, len(l.facilities)),
	}
	for _, sku := range sc.Skus {
		s.Skus = append(s.Skus, model.Sku{
			ID:           sku.ID,
			Name:         sku.Name,
			Price:        sku.Price,
			Cost:         sku.Cost,
			ServiceLevel: sku.ServiceLevel,
			SaleGamma:    sku.SaleGamma,
		})
	}

	mapUnit := func(id int, nodeType string, index, facilityID int) {
		s.UnitMapping[id] = model.UnitMapping{NodeType: nodeType, NodeIndex: index, FacilityID: facilityID}
	}

	for _, f := range l.facilities {
		id := f.spec.ID
		fs := model.FacilitySummary{
			ID:        id,
			Name:      f.spec.Name,
			NodeIndex: f.nodeIndex,
			Configs: map[string]any{
				"kind":             f.spec.Kind,
				"holding_cost":     f.spec.HoldingCost,
				"delivery_cost":    f.spec.DeliveryCost,
				"stockout_penalty": f.spec.StockoutPenalty,
			},
			Upstreams: make(map[int][]int),
			Skus:      make(map[int]model.FacilitySku, len(f.products)),
			Units: model.FacilityUnits{
				Storage: &model.UnitSummary{
					ID:        f.storageID,
					NodeIndex: f.storageIndex,
					Config:    map[string]any{"capacity": f.spec.StorageCapacity},
				},
				Products: make(map[int]model.ProductSummary, len(f.products)),
			},
		}
		mapUnit(f.storageID, model.NodeStorage, f.storageIndex, id)
		if f.distID != 0 {
			fs.Units.Distribution = &model.UnitSummary{ID: f.distID, NodeIndex: f.distIndex}
			mapUnit(f.distID, model.NodeDistribution, f.distIndex, id)
		}

		for _, p := range f.products {
			skuID := p.sku.ID
			fs.Upstreams[skuID] = append([]int{}, p.cfg.Sources...)
			fs.Skus[skuID] = model.FacilitySku{
				SkuID:     skuID,
				Vlt:       p.cfg.Vlt,
				SaleGamma: p.gamma,
				InitStock: p.cfg.InitStock,
				Price:     p.price,
				Cost:      p.cost,
			}

			maxVlt := 0.0
			if len(p.cfg.Sources) > 0 {
				maxVlt = float64(p.cfg.Vlt)
			}
			ps := model.ProductSummary{
				UnitSummary: model.UnitSummary{
					ID:        p.unitID,
					NodeIndex: p.nodeIndex,
					Attrs:     map[string]any{"max_vlt": maxVlt, "sku_id": skuID},
				},
				SkuID: skuID,
			}
			mapUnit(p.unitID, model.NodeProduct, p.nodeIndex, id)
			if p.consumer != nil {
				ps.Consumer = &model.UnitSummary{ID: p.consumer.unitID, NodeIndex: p.consumer.nodeIndex}
				mapUnit(p.consumer.unitID, model.NodeConsumer, p.consumer.nodeIndex, id)
			}
			if p.seller != nil {
				ps.Seller = &model.UnitSummary{
					ID:        p.seller.unitID,
					NodeIndex: p.seller.nodeIndex,
					Config:    map[string]any{"sale_gamma": p.gamma},
				}
				mapUnit(p.seller.unitID, model.NodeSeller, p.seller.nodeIndex, id)
			}
			if p.manufacture != nil {
				ps.Manufacture = &model.UnitSummary{
					ID:        p.manufacture.unitID,
					NodeIndex: p.manufacture.nodeIndex,
					Config:    map[string]any{"production_rate": p.cfg.ProductionRate},
				}
				mapUnit(p.manufacture.unitID, model.NodeManufacture, p.manufacture.nodeIndex, id)
			}
			fs.Units.Products[skuID] = ps
		}
		s.Facilities[id] = fs

		l.agents = append(l.agents, model.AgentInfo{
			ID:         id,
			FacilityID: id,
			AgentType:  agentTypeFacility,
			IsFacility: true,
		})
		for _, p := range f.products {
			sku := s.Skus[p.sku.ID-1]
			l.agents = append(l.agents, model.AgentInfo{
				ID:         p.unitID,
				FacilityID: id,
				AgentType:  agentTypeProduct,
				Sku:        &sku,
			})
		}
	}
	return s
}

func pick(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
