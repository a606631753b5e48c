package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEnvCollector(reg)
	if err != nil {
		t.Fatalf("NewEnvCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/scenv.v1.EnvService/GetState"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("EnvService", "GetState", "OK")); got != 1 {
		t.Fatalf("env_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "env_request_duration_seconds", map[string]string{
		"service": "EnvService",
		"method":  "GetState",
	}); count != 1 {
		t.Fatalf("env_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEnvCollector(reg)
	if err != nil {
		t.Fatalf("NewEnvCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/scenv.v1.EnvService/Step"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("EnvService", "Step", "InvalidArgument")); got != 1 {
		t.Fatalf("env_requests_total error label = %v, want 1", got)
	}
}

func TestEnvRecorderMethods(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEnvCollector(reg)
	if err != nil {
		t.Fatalf("NewEnvCollector: %v", err)
	}

	collector.ObserveStateBuild(7, 12, 3*time.Millisecond)
	collector.ObserveRewards(7, 150, 90)
	collector.ObserveConstraintAtoms(map[string]int{"low_profit": 4, "out_of_stock": 1})

	if got := testutil.ToFloat64(collector.AgentsObserved); got != 12 {
		t.Fatalf("env_agents_observed = %v, want 12", got)
	}
	if got := testutil.ToFloat64(collector.CurrentTick); got != 7 {
		t.Fatalf("env_current_tick = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.RewardSum.WithLabelValues("consumer")); got != 150 {
		t.Fatalf("env_reward_sum{consumer} = %v, want 150", got)
	}
	if got := testutil.ToFloat64(collector.ConstraintAtoms.WithLabelValues("low_profit")); got != 4 {
		t.Fatalf("env_constraint_atom_agents{low_profit} = %v, want 4", got)
	}
	if count := histogramSampleCount(t, reg, "env_state_build_duration_seconds", nil); count != 1 {
		t.Fatalf("env_state_build_duration_seconds sample_count = %d, want 1", count)
	}

	var nilCollector *EnvCollector
	nilCollector.ObserveStateBuild(1, 1, time.Millisecond)
	nilCollector.ObserveRewards(1, 1, 1)
	nilCollector.ObserveConstraintAtoms(map[string]int{"x": 1})
}

func TestCollectorsReuseExistingRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEnvCollector(reg)
	if err != nil {
		t.Fatalf("first NewEnvCollector: %v", err)
	}
	second, err := NewEnvCollector(reg)
	if err != nil {
		t.Fatalf("second NewEnvCollector: %v", err)
	}
	first.CurrentTick.Set(9)
	if got := testutil.ToFloat64(second.CurrentTick); got != 9 {
		t.Fatalf("second collector tick = %v, want shared gauge value 9", got)
	}
}

func TestEngineCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveStep(2*time.Millisecond, 3, 10, 2, 420)
	collector.ObserveStep(time.Millisecond, 1, 5, 0, 400)

	if got := testutil.ToFloat64(collector.OrdersPlaced); got != 4 {
		t.Fatalf("engine_orders_placed_total = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.UnitsSold); got != 15 {
		t.Fatalf("engine_units_sold_total = %v, want 15", got)
	}
	if got := testutil.ToFloat64(collector.UnmetDemand); got != 2 {
		t.Fatalf("engine_unmet_demand_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.InventoryOnHand); got != 400 {
		t.Fatalf("engine_inventory_on_hand = %v, want 400", got)
	}
	if collector.Gatherer() == nil {
		t.Fatalf("Gatherer() = nil")
	}
}

func TestMetricsHandlerExposesEnvMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEnvCollector(reg)
	if err != nil {
		t.Fatalf("NewEnvCollector: %v", err)
	}
	collector.ObserveStateBuild(3, 4, time.Millisecond)
	collector.ObserveRewards(3, 5, 6)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"env_requests_total",
		"env_request_duration_seconds",
		"env_state_build_duration_seconds",
		"env_agents_observed 4",
		"env_current_tick 3",
		`env_reward_sum{role="producer"} 6`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in              string
		service, method string
	}{
		{"/scenv.v1.EnvService/GetLayout", "EnvService", "GetLayout"},
		{"EnvService/Reset", "EnvService", "Reset"},
		{"", "unknown", "unknown"},
		{"/justone", "unknown", "unknown"},
	}
	for _, tc := range cases {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.method {
			t.Fatalf("SplitMethod(%q) = %q,%q, want %q,%q", tc.in, s, m, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
