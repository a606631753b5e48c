package engine

import (
	"math"

	"github.com/ojrac/opensimplex-go"
)

// demandModel draws smooth, seed-deterministic customer demand around each
// seller's sale gamma.
type demandModel struct {
	noise     opensimplex.Noise
	amplitude float64
	frequency float64
}

func newDemandModel(seed int64, spec DemandSpec) demandModel {
	return demandModel{
		noise:     opensimplex.NewNormalized(seed),
		amplitude: spec.Amplitude,
		frequency: spec.Frequency,
	}
}

// octave sums two noise layers, the second at double frequency and half
// weight, and renormalises to [0, 1].
func (d demandModel) octave(x, y float64) float64 {
	v := d.noise.Eval2(x, y) + 0.5*d.noise.Eval2(2*x, 2*y)
	return v / 1.5
}

// At returns whole-unit demand for one (facility, sku) at tick.
func (d demandModel) At(tick, facilityID, skuID int, gamma float64) float64 {
	if gamma <= 0 {
		return 0
	}
	n := d.octave(float64(tick)*d.frequency, float64(facilityID*131+skuID*17))
	v := gamma * (1 + d.amplitude*(2*n-1))
	return math.Max(0, math.Round(v))
}
