// Package engine is a small deterministic supply-chain simulator. It owns
// the world state, applies typed actions once per tick and commits the
// per-tick snapshot and metrics that observers read.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/supplychain-env/core"
	"github.com/signalsfoundry/supplychain-env/internal/logging"
	"github.com/signalsfoundry/supplychain-env/internal/sim/state"
	"github.com/signalsfoundry/supplychain-env/model"
)

var (
	// ErrUnknownAgent indicates an action addressed an id the engine never created.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrInvalidAction indicates an action the addressed unit cannot perform.
	ErrInvalidAction = errors.New("invalid action")
)

// manufactureCostRatio is the share of a product's cost paid to make one unit.
const manufactureCostRatio = 0.5

// StepRecorder receives per-tick engine totals.
type StepRecorder interface {
	ObserveStep(d time.Duration, orders int, sold, unmet, onHand float64)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithStepRecorder attaches a recorder called after every tick.
func WithStepRecorder(r StepRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithSnapshotHistory bounds the number of committed ticks kept in memory.
func WithSnapshotHistory(n int) Option {
	return func(e *Engine) { e.history = n }
}

// WithSeed sets the demand seed used by New. Reset takes its own seed.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = seed }
}

// Engine simulates one scenario. All exported methods are safe for
// concurrent use; Step and Reset serialise against readers so a tick's
// snapshot and metrics are always observed together.
type Engine struct {
	mu sync.RWMutex

	scenario Scenario
	seed     int64
	history  int
	log      logging.Logger
	recorder StepRecorder

	world     *layout
	demand    demandModel
	tick      int
	snapshots *state.SnapshotList
	metrics   *state.MetricsStore
}

// New builds an engine for sc and commits tick 0.
func New(sc *Scenario, opts ...Option) (*Engine, error) {
	if sc == nil {
		return nil, fmt.Errorf("%w: nil scenario", ErrInvalidScenario)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		scenario: sc.withDefaults(),
		history:  64,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.world = buildLayout(e.scenario)
	snaps, err := state.NewSnapshotList(e.history, e.world.nodes...)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}
	e.snapshots = snaps
	e.metrics = state.NewMetricsStore(e.history)

	if err := e.Reset(context.Background(), e.seed); err != nil {
		return nil, err
	}
	e.log.Info(context.Background(), "engine ready",
		logging.String("scenario", e.scenario.Name),
		logging.Int("facilities", len(e.world.facilities)),
		logging.Int("products", len(e.world.products)),
		logging.Int("max_sources", e.world.maxSources),
	)
	return e, nil
}

// Reset restores initial stock, clears history and commits tick 0.
func (e *Engine) Reset(ctx context.Context, seed int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seed = seed
	e.demand = newDemandModel(seed, e.scenario.Demand)
	e.tick = 0
	e.snapshots.Reset()
	e.metrics.Reset()

	for _, f := range e.world.facilities {
		f.queue = nil
		f.total = model.BalanceSheet{}
		f.stock = make(map[int]float64, len(f.products))
		for _, p := range f.products {
			f.stock[p.sku.ID] = p.cfg.InitStock
			p.sales = nil
			p.tickSales = 0
			p.total = model.BalanceSheet{}
			if p.consumer != nil {
				*p.consumer = consumerState{unitID: p.consumer.unitID, nodeIndex: p.consumer.nodeIndex}
			}
			if p.seller != nil {
				*p.seller = sellerState{unitID: p.seller.unitID, nodeIndex: p.seller.nodeIndex}
			}
			if p.manufacture != nil {
				*p.manufacture = manufactureState{
					unitID:    p.manufacture.unitID,
					nodeIndex: p.manufacture.nodeIndex,
					rate:      p.cfg.ProductionRate,
				}
			}
		}
	}

	if err := e.commit(make(map[int]model.BalanceSheet)); err != nil {
		return err
	}
	e.log.Debug(ctx, "engine reset", logging.Any("seed", seed))
	return nil
}

// Summary returns the static node mapping. It must be treated as read-only.
func (e *Engine) Summary() model.Summary { return e.world.summary }

// Agents returns every controllable entity, facilities first within each
// facility, ordered by facility id.
func (e *Engine) Agents() []model.AgentInfo {
	return append([]model.AgentInfo(nil), e.world.agents...)
}

// MaxSources is the longest upstream list in the scenario.
func (e *Engine) MaxSources() int { return e.world.maxSources }

// Snapshots exposes the snapshot store for direct queries.
func (e *Engine) Snapshots() *state.SnapshotList { return e.snapshots }

// Tick returns the last committed tick.
func (e *Engine) Tick() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tick
}

// Metrics returns a copy of the metrics committed for tick, or nil.
func (e *Engine) Metrics(tick int) *model.TickMetrics { return e.metrics.Get(tick) }

// TickContext returns the latest committed tick with its metrics.
func (e *Engine) TickContext() core.TickContext {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return core.TickContext{
		Tick:      e.tick,
		Metrics:   e.metrics.Get(e.tick),
		Snapshots: e.snapshots,
	}
}

// Step validates and applies actions, advances one tick and commits it.
// Invalid actions reject the whole step and leave the world unchanged.
func (e *Engine) Step(ctx context.Context, actions map[int]model.Action) (*model.TickMetrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validate(actions); err != nil {
		return nil, err
	}

	e.tick++
	tick := e.tick
	balance := make(map[int]model.BalanceSheet)
	debit := func(id int, v float64) {
		b := balance[id]
		b.Loss -= v
		balance[id] = b
	}
	credit := func(id int, v float64) {
		b := balance[id]
		b.Profit += v
		balance[id] = b
	}

	for _, f := range e.world.facilities {
		for _, p := range f.products {
			p.tickSales = 0
			if p.consumer != nil {
				p.consumer.orderQty = 0
				p.consumer.latest = 0
			}
			if p.manufacture != nil {
				p.manufacture.produced = 0
			}
		}
	}

	orders := e.placeOrders(actions, debit)

	for _, f := range e.world.facilities {
		for _, p := range f.products {
			m := p.manufacture
			if m == nil || m.rate <= 0 {
				continue
			}
			made := math.Floor(math.Min(m.rate, math.Max(f.free(), 0)))
			if made <= 0 {
				continue
			}
			m.produced = made
			f.stock[p.sku.ID] += made
			debit(p.unitID, made*p.cost*manufactureCostRatio)
		}
	}

	for _, f := range e.world.facilities {
		e.ship(tick, f, credit, debit)
	}

	for _, f := range e.world.facilities {
		for _, p := range f.products {
			c := p.consumer
			if c == nil {
				continue
			}
			kept := c.inbound[:0]
			for _, s := range c.inbound {
				if s.arrive > tick {
					kept = append(kept, s)
					continue
				}
				accepted := math.Min(s.qty, math.Max(f.free(), 0))
				f.stock[p.sku.ID] += accepted
				c.received += accepted
				c.latest += accepted
				// Overflow waits at the dock and is retried next tick.
				if s.qty -= accepted; s.qty > 0 {
					kept = append(kept, s)
				}
			}
			c.inbound = kept
		}
	}

	var sold, unmet, onHand float64
	for _, f := range e.world.facilities {
		for _, p := range f.products {
			s := p.seller
			if s == nil {
				continue
			}
			s.demand = e.demand.At(tick, f.spec.ID, p.sku.ID, p.gamma)
			s.sold = math.Min(s.demand, f.stock[p.sku.ID])
			f.stock[p.sku.ID] -= s.sold
			s.totalDemand += s.demand
			s.totalSold += s.sold
			p.tickSales += s.sold

			credit(p.unitID, s.sold*p.price)
			if short := s.demand - s.sold; short > 0 {
				debit(p.unitID, short*f.spec.StockoutPenalty)
				unmet += short
			}
			sold += s.sold
		}
		held := f.onHand()
		onHand += held
		debit(f.spec.ID, held*f.spec.HoldingCost)
	}

	// Facilities report their own costs plus every product they own.
	for _, f := range e.world.facilities {
		own := balance[f.spec.ID]
		for _, p := range f.products {
			balance[p.unitID] = balance[p.unitID]
			own = own.Add(balance[p.unitID])
			p.total = p.total.Add(balance[p.unitID])
			p.sales = append(p.sales, p.tickSales)
			if len(p.sales) > e.scenario.SaleWindow {
				p.sales = p.sales[len(p.sales)-e.scenario.SaleWindow:]
			}
		}
		balance[f.spec.ID] = own
		f.total = f.total.Add(own)
	}

	if err := e.commit(balance); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if e.recorder != nil {
		e.recorder.ObserveStep(elapsed, orders, sold, unmet, onHand)
	}
	e.log.Debug(ctx, "tick committed",
		logging.Int("tick", tick),
		logging.Int("orders", orders),
		logging.Float64("sold", sold),
		logging.Float64("unmet", unmet),
		logging.Duration("elapsed", elapsed),
	)
	return e.metrics.Get(tick), nil
}

func (e *Engine) validate(actions map[int]model.Action) error {
	for id, a := range actions {
		if a == nil {
			continue
		}
		if a.Agent() != id {
			return fmt.Errorf("%w: action for %d addressed to %d", ErrInvalidAction, id, a.Agent())
		}
		_, isFacility := e.world.byID[id]
		p, isProduct := e.world.products[id]
		if !isFacility && !isProduct {
			return fmt.Errorf("%w: %d", ErrUnknownAgent, id)
		}
		switch act := a.(type) {
		case model.ConsumerAction:
			if !isProduct || p.consumer == nil {
				return fmt.Errorf("%w: agent %d has no consumer", ErrInvalidAction, id)
			}
			if act.ProductID != p.sku.ID {
				return fmt.Errorf("%w: agent %d manages sku %d, not %d", ErrInvalidAction, id, p.sku.ID, act.ProductID)
			}
			if !contains(p.cfg.Sources, act.SourceID) {
				return fmt.Errorf("%w: facility %d is not a source of agent %d", ErrInvalidAction, act.SourceID, id)
			}
			if act.Quantity < 0 || math.IsNaN(act.Quantity) {
				return fmt.Errorf("%w: agent %d quantity %g", ErrInvalidAction, id, act.Quantity)
			}
		case model.ManufactureAction:
			if act.ProductionRate < 0 || math.IsNaN(act.ProductionRate) {
				return fmt.Errorf("%w: agent %d production rate %g", ErrInvalidAction, id, act.ProductionRate)
			}
		default:
			return fmt.Errorf("%w: unsupported kind %q", ErrInvalidAction, a.Kind())
		}
	}
	return nil
}

// placeOrders queues replenishment orders at their source and sets
// production rates. Manufacture actions on units that cannot manufacture
// are ignored.
func (e *Engine) placeOrders(actions map[int]model.Action, debit func(int, float64)) int {
	ids := make([]int, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	placed := 0
	for _, id := range ids {
		switch act := actions[id].(type) {
		case model.ConsumerAction:
			p := e.world.products[id]
			mult := act.Multiplier
			if mult < 1 {
				mult = 1
			}
			qty := math.Floor(act.Quantity * float64(mult))
			if qty <= 0 {
				continue
			}
			src := e.world.byID[act.SourceID]
			src.queue = append(src.queue, order{
				dest:     p,
				destFac:  e.world.owner[id],
				sourceID: act.SourceID,
				qty:      qty,
			})
			p.consumer.orderQty += qty
			p.consumer.purchased += qty
			debit(p.unitID, qty*src.bySku[p.sku.ID].cost)
			placed++
		case model.ManufactureAction:
			if p, ok := e.world.products[id]; ok && p.manufacture != nil {
				p.manufacture.rate = act.ProductionRate
			}
		}
	}
	return placed
}

// ship serves f's queue first-in first-out from stock. Partially served
// orders stay queued.
func (e *Engine) ship(tick int, f *facilityState, credit, debit func(int, float64)) {
	kept := f.queue[:0]
	for _, o := range f.queue {
		skuID := o.dest.sku.ID
		qty := math.Min(o.qty, f.stock[skuID])
		if qty > 0 {
			f.stock[skuID] -= qty
			o.qty -= qty
			lead := o.dest.cfg.Vlt
			if lead < 1 {
				lead = 1
			}
			o.dest.consumer.inbound = append(o.dest.consumer.inbound, shipment{
				arrive:   tick + lead,
				sourceID: f.spec.ID,
				qty:      qty,
			})
			src := f.bySku[skuID]
			src.tickSales += qty
			credit(src.unitID, qty*src.cost)
			debit(f.spec.ID, qty*f.spec.DeliveryCost)
		}
		if o.qty > 0 {
			kept = append(kept, o)
		}
	}
	f.queue = kept
}

// commit writes the current world into the snapshot store and metrics store
// under e.tick. Callers hold e.mu.
func (e *Engine) commit(balance map[int]model.BalanceSheet) error {
	tick := e.tick
	skuCount := len(e.scenario.Skus)
	snaps := e.snapshots

	m := &model.TickMetrics{
		Tick:                  tick,
		MaxSourcesPerFacility: e.world.maxSources,
		MaxPrice:              e.world.maxPrice,
		StepRewards:           make(map[int]float64, len(balance)),
		StepBalanceSheet:      make(map[int]model.BalanceSheet, len(balance)),
		Facilities:            make(map[int]model.FacilityMetrics, len(e.world.facilities)),
		Products:              make(map[int]model.ProductMetrics, len(e.world.products)),
	}

	inTransit := make(map[int]map[int]float64, len(e.world.facilities))
	for _, f := range e.world.facilities {
		inTransit[f.spec.ID] = make(map[int]float64, len(f.products))
	}
	for _, f := range e.world.facilities {
		for _, o := range f.queue {
			inTransit[o.destFac.spec.ID][o.dest.sku.ID] += o.qty
		}
	}

	for _, f := range e.world.facilities {
		ids := make([]float64, skuCount)
		numbers := make([]float64, skuCount)
		for i, p := range f.products {
			ids[i] = float64(p.sku.ID)
			numbers[i] = f.stock[p.sku.ID]
		}
		if err := snaps.SetSlots(model.NodeStorage, f.storageIndex, attrProductList, ids...); err != nil {
			return err
		}
		if err := snaps.SetSlots(model.NodeStorage, f.storageIndex, attrProductNumber, numbers...); err != nil {
			return err
		}
		if err := snaps.Set(model.NodeStorage, f.storageIndex, attrCapacity, f.spec.StorageCapacity); err != nil {
			return err
		}
		if err := snaps.Set(model.NodeStorage, f.storageIndex, attrRemainingSpace, math.Max(f.free(), 0)); err != nil {
			return err
		}

		fm := model.FacilityMetrics{
			TotalBalanceSheet: f.total,
			InTransitOrders:   inTransit[f.spec.ID],
		}
		if f.distID != 0 {
			pending := make(map[int]float64, len(f.products))
			qty := 0.0
			for _, o := range f.queue {
				pending[o.dest.sku.ID] += o.qty
				qty += o.qty
			}
			fm.PendingOrder = pending
			if err := snaps.Set(model.NodeDistribution, f.distIndex, attrRemainingOrderQuantity, qty); err != nil {
				return err
			}
			if err := snaps.Set(model.NodeDistribution, f.distIndex, attrRemainingOrderNumber, float64(len(f.queue))); err != nil {
				return err
			}
		}

		for _, p := range f.products {
			if err := e.writeProduct(tick, f, p, inTransit[f.spec.ID], m); err != nil {
				return err
			}
		}
		m.Facilities[f.spec.ID] = fm
	}

	for id, b := range balance {
		m.StepBalanceSheet[id] = b
		m.StepRewards[id] = b.Total()
	}

	snaps.Commit(tick)
	return e.metrics.Put(m)
}

func (e *Engine) writeProduct(tick int, f *facilityState, p *productState, inTransit map[int]float64, m *model.TickMetrics) error {
	snaps := e.snapshots
	skuID := float64(p.sku.ID)
	unitID := float64(p.unitID)

	if err := snaps.Set(model.NodeProduct, p.nodeIndex, attrProductID, skuID); err != nil {
		return err
	}
	if err := snaps.Set(model.NodeProduct, p.nodeIndex, attrPrice, p.price); err != nil {
		return err
	}

	daily := make([]float64, e.scenario.PendingOrderDays)
	if c := p.consumer; c != nil {
		for _, s := range c.inbound {
			inTransit[p.sku.ID] += s.qty
			if d := max(s.arrive-tick-1, 0); d < len(daily) {
				daily[d] += s.qty
			}
		}
		for attr, v := range map[string]float64{
			attrProductID:          skuID,
			attrProductUnitID:      unitID,
			attrLatestConsumptions: c.latest,
			attrOrderQuantity:      c.orderQty,
			attrPurchased:          c.purchased,
			attrReceived:           c.received,
		} {
			if err := snaps.Set(model.NodeConsumer, c.nodeIndex, attr, v); err != nil {
				return err
			}
		}
	}
	if s := p.seller; s != nil {
		for attr, v := range map[string]float64{
			attrProductID:     skuID,
			attrProductUnitID: unitID,
			attrTotalDemand:   s.totalDemand,
			attrSold:          s.sold,
			attrDemand:        s.demand,
			attrTotalSold:     s.totalSold,
		} {
			if err := snaps.Set(model.NodeSeller, s.nodeIndex, attr, v); err != nil {
				return err
			}
		}
	}
	if mf := p.manufacture; mf != nil {
		for attr, v := range map[string]float64{
			attrProductID:           skuID,
			attrProductUnitID:       unitID,
			attrProductionRate:      mf.rate,
			attrManufactureQuantity: mf.produced,
		} {
			if err := snaps.Set(model.NodeManufacture, mf.nodeIndex, attr, v); err != nil {
				return err
			}
		}
	}

	mean, std := meanStd(p.sales)
	m.Products[p.unitID] = model.ProductMetrics{
		TotalBalanceSheet: p.total,
		SaleMean:          mean,
		SaleStd:           std,
		PendingOrderDaily: daily,
	}
	return nil
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(xs, nil)
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
