package core

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// serviceLevelBound keeps the normal quantile finite at the edges of (0, 1).
const serviceLevelBound = 1e-6

// NormalQuantile is the standard normal inverse CDF.
func NormalQuantile(p float64) float64 {
	p = math.Min(math.Max(p, serviceLevelBound), 1-serviceLevelBound)
	return distuv.UnitNormal.Quantile(p)
}

// ReorderPoint is maxVlt*saleMean + sqrt(maxVlt)*saleStd*Φ⁻¹(serviceLevel).
// A zero lead time gives a zero reorder point.
func ReorderPoint(maxVlt, saleMean, saleStd, serviceLevel float64) float64 {
	if maxVlt <= 0 {
		return 0
	}
	return maxVlt*saleMean + math.Sqrt(maxVlt)*saleStd*NormalQuantile(serviceLevel)
}
