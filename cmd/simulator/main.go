package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/supplychain-env/internal/config"
	"github.com/signalsfoundry/supplychain-env/internal/logging"
	"github.com/signalsfoundry/supplychain-env/internal/observability"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "simulator",
		Short: "Drive supply-chain episodes with a heuristic policy",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a scenv YAML config (default: ./scenv.yaml or ./configs/scenv.yaml)")
	root.AddCommand(newRunCommand(&configPath))
	return root
}

func newRunCommand(configPath *string) *cobra.Command {
	var (
		episodes    int
		ticks       int
		seed        int64
		policyName  string
		scenario    string
		constantQty float64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one or more episodes and record observations and rewards",
		Long: `Run loads the scenario, builds the observation env over it and drives
each episode with a built-in policy (rop, constant or idle). Observations
and rewards are written to the configured observation log and episode
database when those outputs are set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("episodes") {
				cfg.Run.Episodes = episodes
			}
			if flags.Changed("ticks") {
				cfg.Run.Ticks = ticks
			}
			if flags.Changed("seed") {
				cfg.Scenario.Seed = seed
			}
			if flags.Changed("policy") {
				cfg.Run.Policy = policyName
			}
			if flags.Changed("scenario") {
				cfg.Scenario.Path = scenario
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

			results, err := runEpisodes(ctx, cfg, constantQty, log, prometheus.NewRegistry())
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s ticks=%d consumer_return=%.2f producer_return=%.2f\n",
					r.EpisodeID, r.Ticks, r.ConsumerReturn, r.ProducerReturn)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&episodes, "episodes", 1, "Number of episodes to run")
	cmd.Flags().IntVar(&ticks, "ticks", 100, "Ticks per episode")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Demand seed of the first episode; later episodes add their index")
	cmd.Flags().StringVar(&policyName, "policy", "rop", "Policy: rop, constant or idle")
	cmd.Flags().StringVar(&scenario, "scenario", "", "Scenario file (JSON or YAML)")
	cmd.Flags().Float64Var(&constantQty, "constant-qty", 5, "Value sent by the constant policy")
	return cmd
}

// runEpisodes runs cfg.Run.Episodes episodes and returns their results.
func runEpisodes(ctx context.Context, cfg *config.Config, constantQty float64, log logging.Logger, reg *prometheus.Registry) ([]EpisodeResult, error) {
	policy, err := newPolicy(cfg.Run.Policy, constantQty)
	if err != nil {
		return nil, err
	}
	collector, err := observability.NewEnvCollector(reg)
	if err != nil {
		return nil, err
	}
	engineMetrics, err := observability.NewEngineCollector(reg)
	if err != nil {
		return nil, err
	}

	r, err := newRunner(cfg, policy, log, collector, engineMetrics)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			log.Warn(ctx, "closing outputs failed", logging.Err(cerr))
		}
	}()

	results := make([]EpisodeResult, 0, cfg.Run.Episodes)
	for ep := 0; ep < cfg.Run.Episodes; ep++ {
		res, err := r.runEpisode(ctx, cfg.Scenario.Seed+int64(ep))
		if err != nil {
			return results, fmt.Errorf("episode %d: %w", ep, err)
		}
		results = append(results, res)
	}
	return results, nil
}
