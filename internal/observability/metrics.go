package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// EnvCollector bundles Prometheus metrics for the environment service and
// the observation pipeline. It satisfies core.MetricsRecorder.
type EnvCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	StateBuildDuration prometheus.Histogram
	AgentsObserved     prometheus.Gauge
	CurrentTick        prometheus.Gauge
	RewardSum          *prometheus.GaugeVec
	ConstraintAtoms    *prometheus.GaugeVec
}

// NewEnvCollector registers the env metrics on reg (the default registry when
// nil). Registering twice on one registry reuses the existing collectors.
func NewEnvCollector(reg prometheus.Registerer) (*EnvCollector, error) {
	reg, gatherer := registryPair(reg)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "env_requests_total",
		Help: "Total number of handled env RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	requests, err := register(reg, requests, "env_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "env_request_duration_seconds",
		Help:    "Env RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"})
	durations, err = register(reg, durations, "env_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	build, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "env_state_build_duration_seconds",
		Help:    "Time to refresh a tick and build every agent's raw state.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}), "env_state_build_duration_seconds")
	if err != nil {
		return nil, err
	}
	agents, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "env_agents_observed",
		Help: "Number of agents in the most recent observation batch.",
	}), "env_agents_observed")
	if err != nil {
		return nil, err
	}
	tick, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "env_current_tick",
		Help: "Tick of the most recent observation or reward computation.",
	}), "env_current_tick")
	if err != nil {
		return nil, err
	}
	rewards, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "env_reward_sum",
		Help: "Sum of per-entity rewards for the most recent tick, by role.",
	}, []string{"role"}), "env_reward_sum")
	if err != nil {
		return nil, err
	}
	atoms, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "env_constraint_atom_agents",
		Help: "Number of agents satisfying each constraint atom in the most recent observation.",
	}, []string{"atom"}), "env_constraint_atom_agents")
	if err != nil {
		return nil, err
	}

	return &EnvCollector{
		gatherer:           gatherer,
		RPCRequests:        requests,
		RPCDurations:       durations,
		StateBuildDuration: build,
		AgentsObserved:     agents,
		CurrentTick:        tick,
		RewardSum:          rewards,
		ConstraintAtoms:    atoms,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EnvCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// UnaryServerInterceptor counts env RPCs by status code and observes their
// latency.
func (c *EnvCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil || c.RPCRequests == nil || c.RPCDurations == nil {
			return resp, err
		}

		var service, method string
		if info != nil {
			service, method = SplitMethod(info.FullMethod)
		} else {
			service, method = SplitMethod("")
		}
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *EnvCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveStateBuild records one observation batch.
func (c *EnvCollector) ObserveStateBuild(tick, agents int, d time.Duration) {
	if c == nil {
		return
	}
	if c.StateBuildDuration != nil {
		c.StateBuildDuration.Observe(d.Seconds())
	}
	if c.AgentsObserved != nil {
		c.AgentsObserved.Set(float64(agents))
	}
	if c.CurrentTick != nil {
		c.CurrentTick.Set(float64(tick))
	}
}

// ObserveRewards records the per-role reward sums of a tick.
func (c *EnvCollector) ObserveRewards(tick int, consumer, producer float64) {
	if c == nil {
		return
	}
	if c.RewardSum != nil {
		c.RewardSum.WithLabelValues("consumer").Set(consumer)
		c.RewardSum.WithLabelValues("producer").Set(producer)
	}
	if c.CurrentTick != nil {
		c.CurrentTick.Set(float64(tick))
	}
}

// ObserveConstraintAtoms records how many agents satisfy each atom.
func (c *EnvCollector) ObserveConstraintAtoms(counts map[string]int) {
	if c == nil || c.ConstraintAtoms == nil {
		return
	}
	for atom, n := range counts {
		c.ConstraintAtoms.WithLabelValues(atom).Set(float64(n))
	}
}

// SplitMethod splits "/pkg.Service/Method" into ("Service", "Method").
// Unparseable parts come back as "unknown".
func SplitMethod(fullMethod string) (string, string) {
	service, method := "unknown", "unknown"
	path := strings.TrimPrefix(fullMethod, "/")
	slash := strings.LastIndex(path, "/")
	if slash < 0 {
		return service, method
	}
	if s := path[:slash]; s != "" {
		if i := strings.LastIndex(s, "/"); i >= 0 {
			s = s[i+1:]
		}
		if dot := strings.LastIndex(s, "."); dot >= 0 && dot+1 < len(s) {
			s = s[dot+1:]
		}
		if s != "" {
			service = s
		}
	}
	if m := path[slash+1:]; m != "" {
		method = m
	}
	return service, method
}
