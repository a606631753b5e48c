package model

// Facility is one node of the supply-chain topology together with its
// resolved sub-units.
type Facility struct {
	ID        int
	Name      string
	NodeIndex int
	Config    map[string]any

	// Upstreams maps a SKU id to the ordered list of facilities supplying it.
	// The position of a source in the list selects its slot in the
	// per-source-per-sku vectors.
	Upstreams map[int][]int

	Skus map[int]FacilitySku

	// Storage is required; Distribution is optional.
	Storage      *UnitRef
	Distribution *UnitRef

	Products map[int]ProductBundle
}

// Sources returns the ordered upstream facility ids for skuID.
func (f *Facility) Sources(skuID int) []int {
	if f == nil {
		return nil
	}
	return f.Upstreams[skuID]
}

// SkuConfig returns the facility's static config for skuID, or the zero value.
func (f *Facility) SkuConfig(skuID int) FacilitySku {
	if f == nil {
		return FacilitySku{}
	}
	return f.Skus[skuID]
}

// Product returns the bundle for skuID.
func (f *Facility) Product(skuID int) (ProductBundle, bool) {
	if f == nil {
		return ProductBundle{}, false
	}
	p, ok := f.Products[skuID]
	return p, ok
}

// ProductBundle groups one SKU's sub-units within a facility.
type ProductBundle struct {
	Product     UnitRef
	Seller      *UnitRef
	Consumer    *UnitRef
	Manufacture *UnitRef
}

func (p ProductBundle) HasSeller() bool      { return p.Seller != nil }
func (p ProductBundle) HasConsumer() bool    { return p.Consumer != nil }
func (p ProductBundle) HasManufacture() bool { return p.Manufacture != nil }
