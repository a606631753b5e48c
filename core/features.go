package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/supplychain-env/kb"
	"github.com/signalsfoundry/supplychain-env/model"
)

// extractCtx is the read-only input shared by every extractor for one agent.
type extractCtx struct {
	tick      int
	topo      *kb.Topology
	dims      Dims
	metrics   *model.TickMetrics
	snapshots SnapshotQuery
	facility  *model.Facility
	// storage is the facility's product id -> on-hand quantity for this tick.
	storage map[int]float64
}

type extractor struct {
	name string
	fn   func(c *extractCtx, a model.AgentInfo, s *RawState) error
}

// extractors run in this order: later passes read fields set by earlier
// ones (sale statistics feed the reorder point, storage feeds the stock
// flags).
var extractors = []extractor{
	{"facility", addFacilityFeatures},
	{"storage", addStorageFeatures},
	{"bom", addBOMFeatures},
	{"distributor", addDistributorFeatures},
	{"sale", addSaleFeatures},
	{"vlt", addVLTFeatures},
	{"consumer", addConsumerFeatures},
	{"price", addPriceFeatures},
}

func addFacilityFeatures(c *extractCtx, a model.AgentInfo, s *RawState) error {
	s.FacilityType = make([]float64, c.dims.AgentTypes)
	s.FacilityType[a.AgentType] = 1

	s.IsAccepted = make([]float64, c.dims.ConstraintStateHistLen)
	s.ConstraintIdx = []float64{0}

	s.AtomHistory = make(map[string][]float64, len(atoms))
	for _, atom := range atoms {
		s.AtomHistory[atom.name] = ones(c.dims.ConstraintStateHistLen)
	}

	// One-hot over SKU ids, not facility ids.
	s.FacilityID = make([]float64, c.dims.SkuSlots())
	s.FacilityInfo = c.facility.Config

	if a.IsFacility {
		m, _ := c.metrics.Facility(a.FacilityID)
		s.IsPositiveBalance = flag(m.TotalBalanceSheet.Total() > 0)
	} else {
		s.SkuInfo = a.Sku
		m, _ := c.metrics.Product(a.ID)
		s.IsPositiveBalance = flag(m.TotalBalanceSheet.Total() > 0)
		s.FacilityID[a.Sku.ID] = 1
	}

	s.EchelonLevel = 0
	return nil
}

func addStorageFeatures(c *extractCtx, _ model.AgentInfo, s *RawState) error {
	s.StorageLevels = make([]float64, c.dims.SkuSlots())
	s.StorageCapacity = c.facility.Storage.ConfigFloat("capacity", 0)
	s.StorageUtilization = 0

	for productID, qty := range c.storage {
		if productID > 0 && productID < len(s.StorageLevels) {
			s.StorageLevels[productID] = qty
		}
		s.StorageUtilization += qty
	}
	return nil
}

func addBOMFeatures(c *extractCtx, a model.AgentInfo, s *RawState) error {
	s.BomInputs = make([]float64, c.dims.SkuSlots())
	s.BomOutputs = make([]float64, c.dims.SkuSlots())

	if !a.IsFacility {
		s.BomInputs[a.Sku.ID] = 1
		s.BomOutputs[a.Sku.ID] = 1
	}
	return nil
}

func addDistributorFeatures(c *extractCtx, _ model.AgentInfo, s *RawState) error {
	s.DistributorInTransitOrders = 0
	s.DistributorInTransitOrdersQty = 0

	dist := c.facility.Distribution
	if dist == nil {
		return nil
	}

	vals, err := c.snapshots.Point(model.NodeDistribution, c.tick, dist.NodeIndex,
		AttrRemainingOrderQuantity, AttrRemainingOrderNumber)
	if err != nil {
		return fmt.Errorf("distribution %d: %w", dist.ID, err)
	}
	if len(vals) < 2 {
		return fmt.Errorf("distribution %d: expected 2 values, got %d", dist.ID, len(vals))
	}
	s.DistributorInTransitOrdersQty = math.Trunc(vals[0])
	s.DistributorInTransitOrders = math.Trunc(vals[1])
	return nil
}

func addSaleFeatures(c *extractCtx, a model.AgentInfo, s *RawState) error {
	s.SaleMean = 1
	s.SaleStd = 1
	s.SaleGamma = 1
	s.ServiceLevel = 0.95
	s.TotalBacklogDemand = 0

	s.SaleHist = make([]float64, c.dims.SaleHistLen)
	s.BacklogDemandHist = make([]float64, c.dims.SaleHistLen)
	s.ConsumptionHist = make([]float64, c.dims.ConsumptionHistLen)
	s.PendingOrder = make([]float64, c.dims.PendingOrderLen)

	if a.IsFacility {
		return nil
	}

	pm, _ := c.metrics.Product(a.ID)

	s.ServiceLevel = a.Sku.ServiceLevel
	s.SaleMean = pm.SaleMean
	s.SaleGamma = s.SaleMean
	s.SaleStd = pm.SaleStd

	bundle, ok := c.facility.Product(a.Sku.ID)
	if !ok {
		return nil
	}

	if bundle.HasConsumer() {
		hist, err := c.snapshots.Window(model.NodeConsumer,
			WindowTicks(c.tick, c.dims.ConsumptionHistLen), bundle.Consumer.NodeIndex, AttrLatestConsumptions)
		if err != nil {
			return fmt.Errorf("consumer %d: %w", bundle.Consumer.ID, err)
		}
		s.ConsumptionHist = fit(hist, c.dims.ConsumptionHistLen)
		s.PendingOrder = fit(pm.PendingOrderDaily, c.dims.PendingOrderLen)
	}

	if bundle.HasSeller() {
		idx := bundle.Seller.NodeIndex
		single, err := c.snapshots.Point(model.NodeSeller, c.tick, idx, AttrTotalDemand)
		if err != nil {
			return fmt.Errorf("seller %d: %w", bundle.Seller.ID, err)
		}
		n := c.dims.SaleHistLen
		hist, err := c.snapshots.Window(model.NodeSeller, WindowTicks(c.tick, n), idx, AttrSold, AttrDemand)
		if err != nil {
			return fmt.Errorf("seller %d: %w", bundle.Seller.ID, err)
		}
		hist = fit(hist, 2*n)
		if len(single) > 0 {
			s.TotalBacklogDemand = math.Trunc(single[0])
		}
		for i := 0; i < n; i++ {
			s.SaleHist[i] = math.Trunc(hist[i])
			s.BacklogDemandHist[i] = math.Trunc(hist[n+i])
		}
		s.SaleGamma = c.facility.SkuConfig(a.Sku.ID).SaleGamma
	}
	return nil
}

func addVLTFeatures(c *extractCtx, a model.AgentInfo, s *RawState) error {
	s.Vlt = make([]float64, c.dims.SourceSlots())
	s.MaxVlt = 0

	if a.IsFacility {
		return nil
	}

	sources := c.facility.Sources(a.Sku.ID)
	bundle, ok := c.facility.Product(a.Sku.ID)
	if !ok || !bundle.HasConsumer() || len(sources) == 0 {
		return nil
	}

	s.MaxVlt = bundle.Product.SummaryFloat("max_vlt", 0)

	vlt := float64(c.facility.SkuConfig(a.Sku.ID).Vlt)
	for i := range sources {
		if i >= c.dims.MaxSources {
			break
		}
		s.Vlt[c.dims.SourceSlot(i, a.Sku.ID)] = vlt
	}
	return nil
}

func addConsumerFeatures(c *extractCtx, a model.AgentInfo, s *RawState) error {
	s.ConsumerSourceExportMask = make([]float64, c.dims.SourceSlots())
	s.ConsumerSourceInventory = make([]float64, c.dims.SkuSlots())
	s.ConsumerInTransitOrders = make([]float64, c.dims.SkuSlots())

	s.InventoryInStock = 0
	s.InventoryInTransit = 0
	s.InventoryInDistribution = 0
	s.InventoryEstimated = 0
	s.InventoryRop = 0
	s.IsOverStock = 0
	s.IsOutOfStock = 0
	s.IsBelowRop = 0
	s.Replenish = nil

	if a.IsFacility {
		return nil
	}

	bundle, ok := c.facility.Product(a.Sku.ID)
	if !ok || !bundle.HasConsumer() {
		return nil
	}

	skuID := a.Sku.ID
	sources := c.facility.Sources(skuID)
	for i, src := range sources {
		if i >= c.dims.MaxSources {
			break
		}
		s.ConsumerSourceExportMask[c.dims.SourceSlot(i, skuID)] = float64(c.topo.Facility(src).SkuConfig(skuID).Vlt)
	}
	if len(sources) > 0 {
		s.Replenish = &ReplenishTarget{ProductID: skuID, SourceID: sources[0]}
	}

	fm, _ := c.metrics.Facility(a.FacilityID)
	for id := 1; id < len(s.ConsumerInTransitOrders); id++ {
		s.ConsumerInTransitOrders[id] = fm.InTransitOrders[id]
	}

	s.InventoryInStock = c.storage[skuID]
	s.InventoryInTransit = s.ConsumerInTransitOrders[skuID]
	if fm.PendingOrder != nil {
		s.InventoryInDistribution = fm.PendingOrder[skuID]
	}

	s.InventoryEstimated = s.InventoryInStock + s.InventoryInTransit - s.InventoryInDistribution

	if s.StorageCapacity > 0 && s.InventoryEstimated >= 0.5*s.StorageCapacity {
		s.IsOverStock = 1
	}
	if s.InventoryEstimated <= 0 {
		s.IsOutOfStock = 1
	}

	s.InventoryRop = ReorderPoint(s.MaxVlt, s.SaleMean, s.SaleStd, s.ServiceLevel)
	if s.InventoryEstimated < s.InventoryRop {
		s.IsBelowRop = 1
	}
	return nil
}

func addPriceFeatures(c *extractCtx, a model.AgentInfo, s *RawState) error {
	s.MaxPrice = c.metrics.MaxPrice
	s.SkuPrice = 0
	s.SkuCost = 0

	if !a.IsFacility {
		s.SkuPrice = a.Sku.Price
		s.SkuCost = a.Sku.Cost
	}
	return nil
}
