package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector exposes metrics of the reference supply-chain engine.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	StepDuration    prometheus.Histogram
	OrdersPlaced    prometheus.Counter
	UnitsSold       prometheus.Counter
	UnmetDemand     prometheus.Counter
	InventoryOnHand prometheus.Gauge
}

// NewEngineCollector registers engine metrics against the provided registerer.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	reg, gatherer := registryPair(reg)

	step := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_step_duration_seconds",
		Help:    "Duration of one engine tick, including action application and snapshot commit.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	})
	step, err := register(reg, step, "engine_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	orders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_orders_placed_total",
		Help: "Cumulative number of replenishment orders accepted by the engine.",
	})
	orders, err = register(reg, orders, "engine_orders_placed_total")
	if err != nil {
		return nil, err
	}

	sold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_units_sold_total",
		Help: "Cumulative units sold to end customers.",
	})
	sold, err = register(reg, sold, "engine_units_sold_total")
	if err != nil {
		return nil, err
	}

	unmet := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_unmet_demand_total",
		Help: "Cumulative customer demand that could not be served from stock.",
	})
	unmet, err = register(reg, unmet, "engine_unmet_demand_total")
	if err != nil {
		return nil, err
	}

	onHand := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_inventory_on_hand",
		Help: "Total units held in all facility storages after the latest tick.",
	})
	onHand, err = register(reg, onHand, "engine_inventory_on_hand")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:        gatherer,
		StepDuration:    step,
		OrdersPlaced:    orders,
		UnitsSold:       sold,
		UnmetDemand:     unmet,
		InventoryOnHand: onHand,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveStep records one engine tick.
func (c *EngineCollector) ObserveStep(d time.Duration, orders int, sold, unmet, onHand float64) {
	if c == nil {
		return
	}
	if c.StepDuration != nil {
		c.StepDuration.Observe(d.Seconds())
	}
	if c.OrdersPlaced != nil {
		c.OrdersPlaced.Add(float64(orders))
	}
	if c.UnitsSold != nil && sold > 0 {
		c.UnitsSold.Add(sold)
	}
	if c.UnmetDemand != nil && unmet > 0 {
		c.UnmetDemand.Add(unmet)
	}
	if c.InventoryOnHand != nil {
		c.InventoryOnHand.Set(onHand)
	}
}
