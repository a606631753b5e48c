package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/signalsfoundry/supplychain-env/internal/config"
	"github.com/signalsfoundry/supplychain-env/internal/envsvc"
	"github.com/signalsfoundry/supplychain-env/internal/logging"
)

func TestServeUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Scenario.Path = "../../configs/scenarios/three_echelon.yaml"

	server, collector, err := newServer(cfg, logging.Noop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if collector == nil {
		t.Fatalf("collector is nil")
	}

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, lis, logging.Noop()) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	layout, err := envsvc.NewClient(conn).Layout(context.Background())
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if layout.StateWidth <= 0 {
		t.Fatalf("state width = %d, want > 0", layout.StateWidth)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestNewServerRejectsMissingScenario(t *testing.T) {
	cfg := config.Default()
	cfg.Scenario.Path = "does-not-exist.yaml"
	if _, _, err := newServer(cfg, logging.Noop(), prometheus.NewRegistry()); err == nil {
		t.Fatalf("newServer should fail for a missing scenario")
	}
}

func TestServeMetricsDisabled(t *testing.T) {
	if srv := serveMetrics("", nil, logging.Noop()); srv != nil {
		t.Fatalf("serveMetrics with no collector returned a server")
	}
}
