package core

import (
	"fmt"
	"math"
)

// Normalization bounds.
const (
	normEpsilon = 0.01
	normMin     = 0.0
	normMax     = 100.0
)

// Normalize maps v to clamp(v/(ref+0.01), 0, 100). NaN maps to 0.
func Normalize(v, ref float64) float64 {
	x := v / (ref + normEpsilon)
	if math.IsNaN(x) {
		return normMin
	}
	return math.Min(normMax, math.Max(normMin, x))
}

type field struct {
	name  string
	width func(Dims) int
	value func(*RawState) []float64
}

type fieldGroup struct {
	norm   string
	ref    func(*RawState) float64
	fields []field
}

func scalar(name string, get func(*RawState) float64) field {
	return field{
		name:  name,
		width: func(Dims) int { return 1 },
		value: func(s *RawState) []float64 { return []float64{get(s)} },
	}
}

func vector(name string, width func(Dims) int, get func(*RawState) []float64) field {
	return field{name: name, width: width, value: get}
}

// layoutGroups is the serialized field order. Consumers of the vectors index
// into it positionally, so entries must never be reordered.
var layoutGroups = []fieldGroup{
	{
		fields: []field{
			scalar("is_over_stock", func(s *RawState) float64 { return s.IsOverStock }),
			scalar("is_out_of_stock", func(s *RawState) float64 { return s.IsOutOfStock }),
			scalar("is_below_rop", func(s *RawState) float64 { return s.IsBelowRop }),
			vector("constraint_idx", func(Dims) int { return 1 },
				func(s *RawState) []float64 { return s.ConstraintIdx }),
			vector("is_accepted", func(d Dims) int { return d.ConstraintStateHistLen },
				func(s *RawState) []float64 { return s.IsAccepted }),
			vector("consumption_hist", func(d Dims) int { return d.ConsumptionHistLen },
				func(s *RawState) []float64 { return s.ConsumptionHist }),
		},
	},
	{
		norm: "storage_capacity",
		ref:  func(s *RawState) float64 { return s.StorageCapacity },
		fields: []field{
			scalar("storage_utilization", func(s *RawState) float64 { return s.StorageUtilization }),
		},
	},
	{
		norm: "sale_gamma",
		ref:  func(s *RawState) float64 { return s.SaleGamma },
		fields: []field{
			scalar("sale_std", func(s *RawState) float64 { return s.SaleStd }),
			vector("sale_hist", func(d Dims) int { return d.SaleHistLen },
				func(s *RawState) []float64 { return s.SaleHist }),
			vector("pending_order", func(d Dims) int { return d.PendingOrderLen },
				func(s *RawState) []float64 { return s.PendingOrder }),
			scalar("inventory_in_stock", func(s *RawState) float64 { return s.InventoryInStock }),
			scalar("inventory_in_transit", func(s *RawState) float64 { return s.InventoryInTransit }),
			scalar("inventory_estimated", func(s *RawState) float64 { return s.InventoryEstimated }),
			scalar("inventory_rop", func(s *RawState) float64 { return s.InventoryRop }),
		},
	},
	{
		norm: "max_price",
		ref:  func(s *RawState) float64 { return s.MaxPrice },
		fields: []field{
			scalar("sku_price", func(s *RawState) float64 { return s.SkuPrice }),
			scalar("sku_cost", func(s *RawState) float64 { return s.SkuCost }),
		},
	},
}

// FieldLayout locates one field in a serialized vector.
type FieldLayout struct {
	Name      string `json:"name"`
	Offset    int    `json:"offset"`
	Width     int    `json:"width"`
	Normalize string `json:"normalize,omitempty"`
}

// Serializer flattens raw records into fixed-layout vectors.
type Serializer struct {
	dims   Dims
	layout []FieldLayout
	width  int
}

// NewSerializer computes the layout for dims.
func NewSerializer(dims Dims) *Serializer {
	s := &Serializer{dims: dims}
	for _, g := range layoutGroups {
		for _, f := range g.fields {
			w := f.width(dims)
			s.layout = append(s.layout, FieldLayout{Name: f.name, Offset: s.width, Width: w, Normalize: g.norm})
			s.width += w
		}
	}
	return s
}

// Width is the length of every serialized vector.
func (z *Serializer) Width() int { return z.width }

// Layout returns the field table in serialized order.
func (z *Serializer) Layout() []FieldLayout {
	return append([]FieldLayout(nil), z.layout...)
}

// Serialize flattens one record. A field whose length differs from its
// declared width is rejected rather than shifting later fields.
func (z *Serializer) Serialize(s *RawState) ([]float64, error) {
	out := make([]float64, 0, z.width)
	for _, g := range layoutGroups {
		ref := 0.0
		if g.ref != nil {
			ref = g.ref(s)
		}
		for _, f := range g.fields {
			vals := f.value(s)
			if want := f.width(z.dims); len(vals) != want {
				return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrLayoutMismatch, f.name, len(vals), want)
			}
			for _, v := range vals {
				if g.ref != nil {
					v = Normalize(v, ref)
				}
				out = append(out, v)
			}
		}
	}
	return out, nil
}

// SerializedState holds one vector per agent for each role view.
type SerializedState struct {
	Consumer map[int][]float64 `json:"consumer"`
	Producer map[int][]float64 `json:"producer"`
}

// NewSerializedState returns an empty state sized for n agents.
func NewSerializedState(n int) SerializedState {
	return SerializedState{
		Consumer: make(map[int][]float64, n),
		Producer: make(map[int][]float64, n),
	}
}

// Put stores vec under both role views. The producer view gets its own copy
// so callers may mutate one without affecting the other.
func (st SerializedState) Put(agentID int, vec []float64) {
	st.Consumer[agentID] = vec
	st.Producer[agentID] = append([]float64(nil), vec...)
}
