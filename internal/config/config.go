// Package config loads run configuration for the simulator and env server
// from a YAML file, SCENV_-prefixed environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/supplychain-env/core"
)

// EnvPrefix prefixes every environment override, e.g. SCENV_ENV_SALE_HIST_LEN.
const EnvPrefix = "SCENV"

// Config is the full run configuration.
type Config struct {
	// Env shapes observation vectors and rewards.
	Env core.Settings `mapstructure:"env" yaml:"env"`

	Scenario ScenarioConfig `mapstructure:"scenario" yaml:"scenario"`
	Run      RunConfig      `mapstructure:"run" yaml:"run"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ScenarioConfig selects the world to simulate.
type ScenarioConfig struct {
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
	Seed int64  `mapstructure:"seed" yaml:"seed"`
	// SnapshotHistory bounds retained snapshot ticks; zero keeps all.
	SnapshotHistory int `mapstructure:"snapshot_history" yaml:"snapshot_history" validate:"gte=0"`
}

// RunConfig controls episode length and pacing.
type RunConfig struct {
	Episodes     int           `mapstructure:"episodes" yaml:"episodes" validate:"gte=1"`
	Ticks        int           `mapstructure:"ticks" yaml:"ticks" validate:"gte=1"`
	Mode         string        `mapstructure:"mode" yaml:"mode" validate:"oneof=accelerated realtime"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" validate:"gte=0"`
	// Policy selects the built-in heuristic driving `simulator run`.
	Policy string `mapstructure:"policy" yaml:"policy" validate:"oneof=rop constant idle"`
}

// ServerConfig configures the gRPC env service.
type ServerConfig struct {
	GRPCAddr    string `mapstructure:"grpc_addr" yaml:"grpc_addr" validate:"required"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// OutputConfig names optional recording sinks. Empty disables a sink.
type OutputConfig struct {
	ObservationLog string `mapstructure:"observation_log" yaml:"observation_log"`
	EpisodeDB      string `mapstructure:"episode_db" yaml:"episode_db"`
	RotateBytes    int64  `mapstructure:"rotate_bytes" yaml:"rotate_bytes" validate:"gte=0"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// Load reads configuration with priority env > file > defaults. A missing
// .env file is ignored; a missing explicit config file is an error.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("scenv")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static; unmarshal cannot fail on them.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	d := core.DefaultSettings()
	v.SetDefault("env.global_reward_weight_consumer", d.GlobalRewardWeightConsumer)
	v.SetDefault("env.constraint_state_hist_len", d.ConstraintStateHistLen)
	v.SetDefault("env.sale_hist_len", d.SaleHistLen)
	v.SetDefault("env.consumption_hist_len", d.ConsumptionHistLen)
	v.SetDefault("env.pending_order_len", d.PendingOrderLen)
	v.SetDefault("env.parallelism", d.Parallelism)

	v.SetDefault("scenario.path", "configs/scenarios/three_echelon.yaml")
	v.SetDefault("scenario.seed", 1)
	v.SetDefault("scenario.snapshot_history", 64)

	v.SetDefault("run.episodes", 1)
	v.SetDefault("run.ticks", 100)
	v.SetDefault("run.mode", "accelerated")
	v.SetDefault("run.tick_interval", time.Second)
	v.SetDefault("run.policy", "rop")

	v.SetDefault("server.grpc_addr", ":50061")
	v.SetDefault("server.metrics_addr", ":9090")

	v.SetDefault("output.observation_log", "")
	v.SetDefault("output.episode_db", "")
	v.SetDefault("output.rotate_bytes", 64<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
