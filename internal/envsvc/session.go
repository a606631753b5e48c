package envsvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/supplychain-env/core"
	"github.com/signalsfoundry/supplychain-env/internal/logging"
	"github.com/signalsfoundry/supplychain-env/internal/sim/engine"
	"github.com/signalsfoundry/supplychain-env/model"
)

// Session pairs one engine with the observation env built over its summary.
// Calls are serialised: a tick's state, reward and step all see the same
// engine tick.
type Session struct {
	mu        sync.Mutex
	engine    *engine.Engine
	env       *core.Env
	log       logging.Logger
	episodeID string
	builtTick int
}

// NewSession builds the observation env for eng.
func NewSession(eng *engine.Engine, settings core.Settings, log logging.Logger, opts ...core.EnvOption) (*Session, error) {
	if log == nil {
		log = logging.Noop()
	}
	env, err := core.NewEnv(eng.Summary(), eng.Agents(), settings, log, opts...)
	if err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	return &Session{
		engine:    eng,
		env:       env,
		log:       log,
		episodeID: logging.NewEpisodeID(),
		builtTick: -1,
	}, nil
}

// Env returns the observation env.
func (s *Session) Env() *core.Env { return s.env }

// Engine returns the simulated world.
func (s *Session) Engine() *engine.Engine { return s.engine }

// EpisodeID identifies the current episode; Reset starts a new one.
func (s *Session) EpisodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodeID
}

// State serializes every agent's observation at the current tick.
func (s *Session) State(ctx context.Context) (int, core.SerializedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc := s.engine.TickContext()
	st, err := s.env.GetState(s.withEpisode(ctx), tc)
	if err != nil {
		return tc.Tick, core.SerializedState{}, err
	}
	s.builtTick = tc.Tick
	return tc.Tick, st, nil
}

// Reward returns both reward views for the current tick.
func (s *Session) Reward(ctx context.Context) (int, core.Rewards, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc := s.engine.TickContext()
	r, err := s.env.GetReward(s.withEpisode(ctx), tc)
	return tc.Tick, r, err
}

// Step translates flat actions, applies them and advances one tick. When no
// state was built for the current tick, one is built first so replenishment
// targets are current.
func (s *Session) Step(ctx context.Context, actions map[int]float64) (*model.TickMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = s.withEpisode(ctx)
	tc := s.engine.TickContext()
	if s.builtTick != tc.Tick {
		if _, err := s.env.BuildStates(ctx, tc); err != nil {
			return nil, err
		}
		s.builtTick = tc.Tick
	}

	typed, err := s.env.GetAction(actions)
	if err != nil {
		return nil, err
	}
	m, err := s.engine.Step(ctx, typed)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Reset restarts the world with seed and opens a new episode.
func (s *Session) Reset(ctx context.Context, seed int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Reset(ctx, seed); err != nil {
		return "", err
	}
	s.episodeID = logging.NewEpisodeID()
	s.builtTick = -1
	s.log.Info(ctx, "episode reset",
		logging.String("episode_id", s.episodeID),
		logging.Any("seed", seed),
	)
	return s.episodeID, nil
}

func (s *Session) withEpisode(ctx context.Context) context.Context {
	return logging.ContextWithEpisodeID(ctx, s.episodeID)
}
