package core

type atom struct {
	name string
	fn   func(s *RawState) bool
}

// atoms are boolean constraint predicates over a finished record. They are
// reported alongside observations but are not part of the vector layout.
var atoms = []atom{
	{"stock_constraint", func(s *RawState) bool {
		return s.InventoryInStock > 0 && s.InventoryInStock <= (s.MaxVlt+7)*s.SaleMean
	}},
	{"is_replenish_constraint", func(s *RawState) bool {
		return len(s.ConsumptionHist) > 0 && s.ConsumptionHist[len(s.ConsumptionHist)-1] > 0
	}},
	{"low_profit", func(s *RawState) bool {
		return (s.SkuPrice-s.SkuCost)*s.SaleMean <= 1000
	}},
	{"low_stock_constraint", func(s *RawState) bool {
		return s.InventoryInStock > 0 && s.InventoryInStock <= (s.MaxVlt+3)*s.SaleMean
	}},
	{"out_of_stock", func(s *RawState) bool {
		return s.InventoryInStock > 0
	}},
}

// AtomNames lists the constraint atoms in evaluation order.
func AtomNames() []string {
	out := make([]string, len(atoms))
	for i, a := range atoms {
		out[i] = a.name
	}
	return out
}

// EvaluateAtoms evaluates every constraint atom against s.
func EvaluateAtoms(s *RawState) map[string]bool {
	out := make(map[string]bool, len(atoms))
	if s == nil {
		return out
	}
	for _, a := range atoms {
		out[a.name] = a.fn(s)
	}
	return out
}
