package core

import "github.com/signalsfoundry/supplychain-env/model"

// Dims are the vector sizes derived from the topology and settings. They are
// fixed for the lifetime of an Env.
type Dims struct {
	SkuCount               int
	AgentTypes             int
	MaxSources             int
	ConstraintStateHistLen int
	SaleHistLen            int
	ConsumptionHistLen     int
	PendingOrderLen        int
}

// SkuSlots is the length of all-SKU vectors: one-based SKU ids index them
// directly, slot 0 is unused.
func (d Dims) SkuSlots() int { return d.SkuCount + 1 }

// SourceSlots is the length of per-source-per-sku vectors.
func (d Dims) SourceSlots() int { return d.MaxSources * d.SkuSlots() }

// SourceSlot encodes (source position, sku id) as sourcePosition*skuCount + skuID.
// Row i occupies [i*skuCount+1, i*skuCount+skuCount]; index 0 and the tail
// past MaxSources*skuCount are never written.
func (d Dims) SourceSlot(position, skuID int) int {
	return position*d.SkuCount + skuID
}

// ReplenishTarget is the supplier a consumer-role agent orders from.
type ReplenishTarget struct {
	ProductID int
	SourceID  int
}

// RawState is the per-agent scratch record the extractors fill in. Each
// extractor owns a disjoint set of fields and sets all of them, defaults
// included.
type RawState struct {
	// facility identity
	FacilityType      []float64
	IsAccepted        []float64
	ConstraintIdx     []float64
	AtomHistory       map[string][]float64
	FacilityID        []float64
	FacilityInfo      map[string]any
	SkuInfo           *model.Sku
	IsPositiveBalance float64
	EchelonLevel      float64

	// storage
	StorageLevels      []float64
	StorageCapacity    float64
	StorageUtilization float64

	// bill of materials
	BomInputs  []float64
	BomOutputs []float64

	// distributor
	DistributorInTransitOrders    float64
	DistributorInTransitOrdersQty float64

	// sale statistics
	SaleMean           float64
	SaleStd            float64
	SaleGamma          float64
	ServiceLevel       float64
	TotalBacklogDemand float64
	SaleHist           []float64
	BacklogDemandHist  []float64
	ConsumptionHist    []float64
	PendingOrder       []float64

	// vendor lead time
	Vlt    []float64
	MaxVlt float64

	// consumer / inventory
	ConsumerSourceExportMask []float64
	ConsumerSourceInventory  []float64
	ConsumerInTransitOrders  []float64
	InventoryInStock         float64
	InventoryInTransit       float64
	InventoryInDistribution  float64
	InventoryEstimated       float64
	InventoryRop             float64
	IsOverStock              float64
	IsOutOfStock             float64
	IsBelowRop               float64
	Replenish                *ReplenishTarget

	// price
	MaxPrice float64
	SkuPrice float64
	SkuCost  float64

	// global
	GlobalTime float64
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// fit copies src into a vector of exactly n values, zero padded.
func fit(src []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, src)
	return out
}
