package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Env.GlobalRewardWeightConsumer != 0.5 || cfg.Env.SaleHistLen != 4 {
		t.Fatalf("env defaults = %+v", cfg.Env)
	}
	if cfg.Run.Ticks != 100 || cfg.Run.Mode != "accelerated" || cfg.Run.TickInterval != time.Second {
		t.Fatalf("run defaults = %+v", cfg.Run)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "scenv.yaml", `
env:
  global_reward_weight_consumer: 0.25
  sale_hist_len: 7
scenario:
  path: worlds/sample.yaml
  seed: 42
run:
  ticks: 30
  tick_interval: 250ms
`)
	t.Setenv("SCENV_RUN_TICKS", "12")
	t.Setenv("SCENV_ENV_PENDING_ORDER_LEN", "6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env.GlobalRewardWeightConsumer != 0.25 || cfg.Env.SaleHistLen != 7 {
		t.Fatalf("env = %+v", cfg.Env)
	}
	if cfg.Env.PendingOrderLen != 6 {
		t.Fatalf("PendingOrderLen = %d, want env override 6", cfg.Env.PendingOrderLen)
	}
	if cfg.Run.Ticks != 12 {
		t.Fatalf("Ticks = %d, want env override 12", cfg.Run.Ticks)
	}
	if cfg.Run.TickInterval != 250*time.Millisecond {
		t.Fatalf("TickInterval = %v, want 250ms", cfg.Run.TickInterval)
	}
	if cfg.Scenario.Path != "worlds/sample.yaml" || cfg.Scenario.Seed != 42 {
		t.Fatalf("scenario = %+v", cfg.Scenario)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "SCENV_SCENARIO_SEED=99\n")
	t.Cleanup(func() { os.Unsetenv("SCENV_SCENARIO_SEED") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scenario.Seed != 99 {
		t.Fatalf("Seed = %d, want 99 from .env", cfg.Scenario.Seed)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "bad.yaml", `
env:
  global_reward_weight_consumer: 2
run:
  mode: warp
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"GlobalRewardWeightConsumer", "Mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}
