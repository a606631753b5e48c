package model

// Sku describes one product type in the catalogue. SKU ids are dense and
// start at 1 so they can index all-SKU vectors directly.
type Sku struct {
	ID           int     `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Price        float64 `json:"price" yaml:"price"`
	Cost         float64 `json:"cost" yaml:"cost"`
	ServiceLevel float64 `json:"service_level" yaml:"service_level"`
	SaleGamma    float64 `json:"sale_gamma" yaml:"sale_gamma"`
}

// FacilitySku is the static per-SKU configuration of one facility.
type FacilitySku struct {
	SkuID     int     `json:"sku_id" yaml:"sku_id"`
	Vlt       int     `json:"vlt" yaml:"vlt"`
	SaleGamma float64 `json:"sale_gamma" yaml:"sale_gamma"`
	InitStock float64 `json:"init_stock" yaml:"init_stock"`
	Price     float64 `json:"price" yaml:"price"`
	Cost      float64 `json:"cost" yaml:"cost"`
}
