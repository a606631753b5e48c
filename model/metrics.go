package model

// BalanceSheet is one entity's profit and loss for a period. Loss is stored
// as a non-positive number so Total is a plain sum.
type BalanceSheet struct {
	Profit float64 `json:"profit"`
	Loss   float64 `json:"loss"`
}

// Total returns profit plus loss.
func (b BalanceSheet) Total() float64 { return b.Profit + b.Loss }

// Add returns the element-wise sum of two sheets.
func (b BalanceSheet) Add(o BalanceSheet) BalanceSheet {
	return BalanceSheet{Profit: b.Profit + o.Profit, Loss: b.Loss + o.Loss}
}

// FacilityMetrics is the per-tick metrics block of one facility.
type FacilityMetrics struct {
	TotalBalanceSheet BalanceSheet `json:"total_balance_sheet"`
	// InTransitOrders is the quantity on the way to this facility, per SKU id.
	InTransitOrders map[int]float64 `json:"in_transit_orders"`
	// PendingOrder is the quantity waiting in the facility's distribution
	// queue, per SKU id. Nil when the facility has no distribution.
	PendingOrder map[int]float64 `json:"pending_order,omitempty"`
}

// ProductMetrics is the per-tick metrics block of one product unit.
type ProductMetrics struct {
	TotalBalanceSheet BalanceSheet `json:"total_balance_sheet"`
	SaleMean          float64      `json:"sale_mean"`
	SaleStd           float64      `json:"sale_std"`
	PendingOrderDaily []float64    `json:"pending_order_daily"`
}

// TickMetrics is everything the engine reports about one committed tick.
type TickMetrics struct {
	Tick                  int                     `json:"tick"`
	MaxSourcesPerFacility int                     `json:"max_sources_per_facility"`
	MaxPrice              float64                 `json:"max_price"`
	StepRewards           map[int]float64         `json:"step_rewards"`
	StepBalanceSheet      map[int]BalanceSheet    `json:"step_balance_sheet"`
	Facilities            map[int]FacilityMetrics `json:"facilities"`
	Products              map[int]ProductMetrics  `json:"products"`
}

// Facility returns the metrics of facility id. Absent facilities report the
// zero value and false.
func (m *TickMetrics) Facility(id int) (FacilityMetrics, bool) {
	if m == nil {
		return FacilityMetrics{}, false
	}
	f, ok := m.Facilities[id]
	return f, ok
}

// Product returns the metrics of product unit id. Absent products report the
// zero value and false.
func (m *TickMetrics) Product(id int) (ProductMetrics, bool) {
	if m == nil {
		return ProductMetrics{}, false
	}
	p, ok := m.Products[id]
	return p, ok
}

// Balance returns the step balance sheet of entity id, zero if absent.
func (m *TickMetrics) Balance(id int) (BalanceSheet, bool) {
	if m == nil {
		return BalanceSheet{}, false
	}
	b, ok := m.StepBalanceSheet[id]
	return b, ok
}

// Clone returns a deep copy of m.
func (m *TickMetrics) Clone() *TickMetrics {
	if m == nil {
		return nil
	}
	out := *m
	out.StepRewards = make(map[int]float64, len(m.StepRewards))
	for k, v := range m.StepRewards {
		out.StepRewards[k] = v
	}
	out.StepBalanceSheet = make(map[int]BalanceSheet, len(m.StepBalanceSheet))
	for k, v := range m.StepBalanceSheet {
		out.StepBalanceSheet[k] = v
	}
	out.Facilities = make(map[int]FacilityMetrics, len(m.Facilities))
	for k, v := range m.Facilities {
		v.InTransitOrders = cloneIntFloat(v.InTransitOrders)
		v.PendingOrder = cloneIntFloat(v.PendingOrder)
		out.Facilities[k] = v
	}
	out.Products = make(map[int]ProductMetrics, len(m.Products))
	for k, v := range m.Products {
		v.PendingOrderDaily = append([]float64(nil), v.PendingOrderDaily...)
		out.Products[k] = v
	}
	return &out
}

func cloneIntFloat(in map[int]float64) map[int]float64 {
	if in == nil {
		return nil
	}
	out := make(map[int]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
