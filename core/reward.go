package core

import "github.com/signalsfoundry/supplychain-env/model"

// Rewards are per-entity rewards for both role views.
type Rewards struct {
	Consumer map[int]float64 `json:"consumer"`
	Producer map[int]float64 `json:"producer"`
}

// OwnerFunc resolves a unit id to its owning facility. Facilities
// themselves report false.
type OwnerFunc func(id int) (facilityID int, ok bool)

// ComputeRewards blends each entity's step balance with its owning
// facility's:
//
//	producer[e] = balance[e]
//	consumer[e] = wc*parent[e] + (1-wc)*balance[e]
//
// parent[e] is the owning facility's balance for sub-units (zero when the
// facility has no entry this tick) and the entity's own balance otherwise.
func ComputeRewards(balance map[int]model.BalanceSheet, owner OwnerFunc, wc float64) Rewards {
	r := Rewards{
		Consumer: make(map[int]float64, len(balance)),
		Producer: make(map[int]float64, len(balance)),
	}
	for id, sheet := range balance {
		own := sheet.Total()
		parent := own
		if owner != nil {
			if facilityID, ok := owner(id); ok {
				parent = balance[facilityID].Total()
			}
		}
		r.Producer[id] = own
		r.Consumer[id] = wc*parent + (1-wc)*own
	}
	return r
}

// Sum totals a role's rewards.
func Sum(rewards map[int]float64) float64 {
	total := 0.0
	for _, v := range rewards {
		total += v
	}
	return total
}
