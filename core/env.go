package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/supplychain-env/internal/logging"
	"github.com/signalsfoundry/supplychain-env/kb"
	"github.com/signalsfoundry/supplychain-env/model"
)

const tracerName = "github.com/signalsfoundry/supplychain-env/core"

// MetricsRecorder receives per-tick observation and reward statistics.
type MetricsRecorder interface {
	ObserveStateBuild(tick, agents int, d time.Duration)
	ObserveRewards(tick int, consumer, producer float64)
	ObserveConstraintAtoms(counts map[string]int)
}

// EnvOption customises Env construction.
type EnvOption func(*Env)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EnvOption {
	return func(e *Env) {
		e.metrics = m
	}
}

// WithMaxSources overrides the number of upstream source positions encoded
// in per-source vectors. By default it is the largest upstream list in the
// topology.
func WithMaxSources(n int) EnvOption {
	return func(e *Env) {
		if n > 0 {
			e.maxSources = n
		}
	}
}

// Env produces observations, rewards and typed actions for a fixed topology
// and agent list.
type Env struct {
	topo       *kb.Topology
	agents     []model.AgentInfo
	settings   Settings
	maxSources int

	builder    *StateBuilder
	serializer *Serializer
	translator *ActionTranslator

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	mu       sync.Mutex
	warnedMS bool
}

// NewEnv indexes summary and sizes every vector from it and settings.
func NewEnv(summary model.Summary, agents []model.AgentInfo, settings Settings, log logging.Logger, opts ...EnvOption) (*Env, error) {
	if log == nil {
		log = logging.Noop()
	}
	if err := settings.Check(); err != nil {
		return nil, err
	}

	topo, err := kb.Build(summary)
	if err != nil {
		return nil, fmt.Errorf("build topology: %w", err)
	}

	e := &Env{
		topo:       topo,
		agents:     append([]model.AgentInfo(nil), agents...),
		settings:   settings,
		maxSources: maxUpstreams(topo),
		log:        log,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	dims := Dims{
		SkuCount:               topo.SkuCount(),
		AgentTypes:             len(topo.AgentTypes()),
		MaxSources:             e.maxSources,
		ConstraintStateHistLen: settings.ConstraintStateHistLen,
		SaleHistLen:            settings.SaleHistLen,
		ConsumptionHistLen:     settings.ConsumptionHistLen,
		PendingOrderLen:        settings.PendingOrderLen,
	}
	e.builder = NewStateBuilder(topo, dims)
	e.serializer = NewSerializer(dims)
	e.translator = NewActionTranslator(agents)

	for _, a := range e.agents {
		if topo.Facility(a.FacilityID) == nil {
			return nil, fmt.Errorf("%w: agent %d names facility %d", ErrInvalidAgent, a.ID, a.FacilityID)
		}
	}

	log.Info(context.Background(), "env initialised",
		logging.Int("facilities", len(topo.Facilities())),
		logging.Int("skus", dims.SkuCount),
		logging.Int("agents", len(e.agents)),
		logging.Int("max_sources", dims.MaxSources),
		logging.Int("state_width", e.serializer.Width()),
	)
	return e, nil
}

func maxUpstreams(topo *kb.Topology) int {
	n := 1
	for _, f := range topo.Facilities() {
		for _, sources := range f.Upstreams {
			if len(sources) > n {
				n = len(sources)
			}
		}
	}
	return n
}

// Topology returns the immutable topology index.
func (e *Env) Topology() *kb.Topology { return e.topo }

// Agents returns the agent list in observation order.
func (e *Env) Agents() []model.AgentInfo {
	return append([]model.AgentInfo(nil), e.agents...)
}

// Dims returns the vector sizes.
func (e *Env) Dims() Dims { return e.builder.Dims() }

// Layout returns the serialized field table.
func (e *Env) Layout() []FieldLayout { return e.serializer.Layout() }

// StateWidth is the length of every serialized vector.
func (e *Env) StateWidth() int { return e.serializer.Width() }

// Settings returns the settings the env was built with.
func (e *Env) Settings() Settings { return e.settings }

// BuildStates refreshes tc and builds the raw record of every agent, in
// agent order. It also refreshes the replenishment side table.
func (e *Env) BuildStates(ctx context.Context, tc TickContext) ([]*RawState, error) {
	ctx, span := e.tracer.Start(ctx, "env/build_states",
		trace.WithAttributes(attribute.Int("tick", tc.Tick), attribute.Int("agents", len(e.agents))))
	defer span.End()

	start := time.Now()

	view, err := e.builder.Refresh(tc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("refresh tick %d: %w", tc.Tick, err)
	}
	e.checkMaxSources(ctx, tc.Metrics)

	records := make([]*RawState, len(e.agents))
	if e.settings.Parallelism > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.settings.Parallelism)
		for i, a := range e.agents {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				s, err := view.BuildAgentState(a)
				if err != nil {
					return err
				}
				records[i] = s
				return nil
			})
		}
		err = g.Wait()
	} else {
		for i, a := range e.agents {
			if err = ctx.Err(); err != nil {
				break
			}
			var s *RawState
			if s, err = view.BuildAgentState(a); err != nil {
				break
			}
			records[i] = s
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for i, a := range e.agents {
		e.translator.Record(a.ID, records[i])
	}

	if e.metrics != nil {
		e.metrics.ObserveStateBuild(tc.Tick, len(records), time.Since(start))
		e.metrics.ObserveConstraintAtoms(countAtoms(records))
	}
	return records, nil
}

// GetState builds and serializes every agent's observation for tc. Both role
// views carry the same vector.
func (e *Env) GetState(ctx context.Context, tc TickContext) (SerializedState, error) {
	records, err := e.BuildStates(ctx, tc)
	if err != nil {
		return SerializedState{}, err
	}
	return e.Serialize(ctx, tc.Tick, records)
}

// Serialize flattens records built by BuildStates, one per agent in Agents
// order.
func (e *Env) Serialize(ctx context.Context, tick int, records []*RawState) (SerializedState, error) {
	if len(records) != len(e.agents) {
		return SerializedState{}, fmt.Errorf("%w: %d records for %d agents", ErrLayoutMismatch, len(records), len(e.agents))
	}
	_, span := e.tracer.Start(ctx, "env/serialize", trace.WithAttributes(attribute.Int("tick", tick)))
	defer span.End()

	out := NewSerializedState(len(records))
	for i, a := range e.agents {
		vec, err := e.serializer.Serialize(records[i])
		if err != nil {
			span.RecordError(err)
			return SerializedState{}, fmt.Errorf("serialize agent %d: %w", a.ID, err)
		}
		out.Put(a.ID, vec)
	}

	e.log.Debug(ctx, "state built",
		logging.Int("tick", tick),
		logging.Int("agents", len(records)),
	)
	return out, nil
}

// GetReward blends the tick's step balance sheet into per-entity rewards.
func (e *Env) GetReward(ctx context.Context, tc TickContext) (Rewards, error) {
	if tc.Metrics == nil {
		return Rewards{}, ErrNoTickContext
	}
	_, span := e.tracer.Start(ctx, "env/reward", trace.WithAttributes(attribute.Int("tick", tc.Tick)))
	defer span.End()

	r := ComputeRewards(tc.Metrics.StepBalanceSheet, e.topo.FacilityOf, e.settings.GlobalRewardWeightConsumer)
	if e.metrics != nil {
		e.metrics.ObserveRewards(tc.Tick, Sum(r.Consumer), Sum(r.Producer))
	}
	return r, nil
}

// GetAction translates flat per-agent actions into typed engine actions.
// Replenishment targets come from the most recent BuildStates call.
func (e *Env) GetAction(actions map[int]float64) (map[int]model.Action, error) {
	return e.translator.Translate(actions)
}

func (e *Env) checkMaxSources(ctx context.Context, m *model.TickMetrics) {
	if m.MaxSourcesPerFacility <= e.maxSources {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.warnedMS {
		return
	}
	e.warnedMS = true
	e.log.Warn(ctx, "engine reports more sources than encoded; extra positions are dropped",
		logging.Int("engine_max_sources", m.MaxSourcesPerFacility),
		logging.Int("encoded_max_sources", e.maxSources),
	)
}

func countAtoms(records []*RawState) map[string]int {
	counts := make(map[string]int, len(atoms))
	for _, a := range atoms {
		counts[a.name] = 0
	}
	for _, s := range records {
		for name, ok := range EvaluateAtoms(s) {
			if ok {
				counts[name]++
			}
		}
	}
	return counts
}
