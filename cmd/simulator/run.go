package main

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/supplychain-env/core"
	"github.com/signalsfoundry/supplychain-env/internal/config"
	"github.com/signalsfoundry/supplychain-env/internal/logging"
	"github.com/signalsfoundry/supplychain-env/internal/observability"
	"github.com/signalsfoundry/supplychain-env/internal/persistence/episodedb"
	"github.com/signalsfoundry/supplychain-env/internal/persistence/obslog"
	"github.com/signalsfoundry/supplychain-env/internal/sim/engine"
	"github.com/signalsfoundry/supplychain-env/timectrl"
)

// EpisodeResult summarises one finished episode.
type EpisodeResult struct {
	EpisodeID      string
	Ticks          int
	ConsumerReturn float64
	ProducerReturn float64
}

// runner owns the engine, env and recording sinks for `simulator run`.
type runner struct {
	cfg    *config.Config
	log    logging.Logger
	policy Policy

	engine *engine.Engine
	env    *core.Env

	obs *obslog.EpisodeLog
	db  *episodedb.DB
}

func newRunner(cfg *config.Config, policy Policy, log logging.Logger, collector *observability.EnvCollector, engineMetrics *observability.EngineCollector) (*runner, error) {
	sc, err := engine.LoadScenarioFile(cfg.Scenario.Path)
	if err != nil {
		return nil, err
	}

	engineOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithSeed(cfg.Scenario.Seed),
		engine.WithSnapshotHistory(cfg.Scenario.SnapshotHistory),
	}
	if engineMetrics != nil {
		engineOpts = append(engineOpts, engine.WithStepRecorder(engineMetrics))
	}
	eng, err := engine.New(sc, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	var envOpts []core.EnvOption
	if collector != nil {
		envOpts = append(envOpts, core.WithMetricsRecorder(collector))
	}
	env, err := core.NewEnv(eng.Summary(), eng.Agents(), cfg.Env, log, envOpts...)
	if err != nil {
		return nil, fmt.Errorf("build env: %w", err)
	}

	r := &runner{cfg: cfg, log: log, policy: policy, engine: eng, env: env}
	if cfg.Output.ObservationLog != "" {
		r.obs = obslog.NewEpisodeLog(cfg.Output.ObservationLog, cfg.Output.RotateBytes)
	}
	if cfg.Output.EpisodeDB != "" {
		db, err := episodedb.Open(cfg.Output.EpisodeDB)
		if err != nil {
			return nil, err
		}
		r.db = db
	}
	return r, nil
}

func (r *runner) Close() error {
	var firstErr error
	if r.obs != nil {
		firstErr = r.obs.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runEpisode resets the world with seed and drives it for cfg.Run.Ticks
// ticks: observe, reward, decide, step.
func (r *runner) runEpisode(ctx context.Context, seed int64) (EpisodeResult, error) {
	if err := r.engine.Reset(ctx, seed); err != nil {
		return EpisodeResult{}, err
	}
	res := EpisodeResult{EpisodeID: logging.NewEpisodeID()}
	ctx = logging.ContextWithEpisodeID(ctx, res.EpisodeID)

	if r.db != nil {
		if err := r.db.StartEpisode(ctx, res.EpisodeID, r.cfg.Scenario.Path, seed, time.Now().UTC()); err != nil {
			return res, err
		}
	}

	mode := timectrl.Accelerated
	if r.cfg.Run.Mode == "realtime" {
		mode = timectrl.RealTime
	}
	clock := timectrl.NewTickController(0, r.cfg.Run.TickInterval, mode)
	clock.AddListener(func(ctx context.Context, tick int) error {
		return r.tick(ctx, &res)
	})

	r.log.Info(ctx, "episode started",
		logging.Any("seed", seed),
		logging.String("policy", r.policy.Name()),
		logging.Int("ticks", r.cfg.Run.Ticks),
	)
	if err := clock.Run(ctx, r.cfg.Run.Ticks); err != nil {
		return res, err
	}

	if r.db != nil {
		if err := r.db.FinishEpisode(ctx, res.EpisodeID, res.Ticks, time.Now().UTC()); err != nil {
			return res, err
		}
	}
	r.log.Info(ctx, "episode finished",
		logging.Int("ticks", res.Ticks),
		logging.Float64("consumer_return", res.ConsumerReturn),
		logging.Float64("producer_return", res.ProducerReturn),
	)
	return res, nil
}

func (r *runner) tick(ctx context.Context, res *EpisodeResult) error {
	tc := r.engine.TickContext()

	records, err := r.env.BuildStates(ctx, tc)
	if err != nil {
		return err
	}
	rewards, err := r.env.GetReward(ctx, tc)
	if err != nil {
		return err
	}

	flat := r.policy.Decide(r.env.Agents(), records)
	actions, err := r.env.GetAction(flat)
	if err != nil {
		return err
	}

	if r.obs != nil {
		st, err := r.env.Serialize(ctx, tc.Tick, records)
		if err != nil {
			return err
		}
		err = r.obs.WriteTick(obslog.Entry{
			EpisodeID: res.EpisodeID,
			Tick:      tc.Tick,
			Time:      time.Now().UTC(),
			States:    st.Consumer,
			Rewards:   map[string]map[int]float64{"consumer": rewards.Consumer, "producer": rewards.Producer},
			Actions:   flat,
		})
		if err != nil {
			return fmt.Errorf("observation log: %w", err)
		}
	}
	if r.db != nil {
		if err := r.db.RecordTick(ctx, res.EpisodeID, tc.Tick, rewards.Consumer, rewards.Producer); err != nil {
			return err
		}
	}

	if _, err := r.engine.Step(ctx, actions); err != nil {
		return err
	}
	res.Ticks++
	res.ConsumerReturn += core.Sum(rewards.Consumer)
	res.ProducerReturn += core.Sum(rewards.Producer)
	return nil
}
