package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/supplychain-env/core"
	"github.com/signalsfoundry/supplychain-env/internal/config"
	"github.com/signalsfoundry/supplychain-env/internal/envsvc"
	"github.com/signalsfoundry/supplychain-env/internal/logging"
	"github.com/signalsfoundry/supplychain-env/internal/observability"
	"github.com/signalsfoundry/supplychain-env/internal/sim/engine"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		grpcAddr    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "env-server",
		Short: "Serve the supply-chain observation env over gRPC",
		Long: `env-server loads a scenario into the reference engine and exposes
scenv.v1.EnvService (GetLayout, GetState, GetReward, Step, Reset) over gRPC,
with Prometheus metrics on /metrics.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Server.MetricsAddr = metricsAddr
			}

			log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

			reg := prometheus.NewRegistry()
			server, collector, err := newServer(cfg, log, reg)
			if err != nil {
				return err
			}
			metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if metricsSrv != nil {
					_ = metricsSrv.Shutdown(shutdownCtx)
				}
			}()

			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
			}
			log.Info(ctx, "starting env gRPC server", logging.String("addr", cfg.Server.GRPCAddr))
			return serve(ctx, server, lis, log)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a scenv YAML config")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":50061", "TCP address the env gRPC server listens on")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	return cmd
}

// newServer builds the engine, env session and gRPC server for cfg.
func newServer(cfg *config.Config, log logging.Logger, reg *prometheus.Registry) (*grpc.Server, *observability.EnvCollector, error) {
	collector, err := observability.NewEnvCollector(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics collector: %w", err)
	}
	engineMetrics, err := observability.NewEngineCollector(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("engine metrics: %w", err)
	}

	sc, err := engine.LoadScenarioFile(cfg.Scenario.Path)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(sc,
		engine.WithLogger(log),
		engine.WithSeed(cfg.Scenario.Seed),
		engine.WithSnapshotHistory(cfg.Scenario.SnapshotHistory),
		engine.WithStepRecorder(engineMetrics),
	)
	if err != nil {
		return nil, nil, err
	}

	session, err := envsvc.NewSession(eng, cfg.Env, log, core.WithMetricsRecorder(collector))
	if err != nil {
		return nil, nil, err
	}
	return envsvc.NewGRPCServer(session, log, collector), collector, nil
}

// serve runs server on lis until ctx is cancelled, then stops gracefully.
func serve(ctx context.Context, server *grpc.Server, lis net.Listener, log logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down env server")
		server.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func serveMetrics(addr string, collector *observability.EnvCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
