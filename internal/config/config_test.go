package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quantlab/internal/engine"
	"quantlab/internal/optimizer"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"ALPACA_BASE_URL", "ALPACA_DATA_URL", "LOG_LEVEL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "QUANTLAB_WORKERS",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantlab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/quantlab/data"
  sqlite_path: "/tmp/quantlab/quantlab.db"
server:
  host: "127.0.0.1"
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
logging:
  level: "debug"
  format: "text"
engine:
  initial_capital: 50000
  slippage: 0.0002
risk:
  stop_loss: -0.08
  take_profit: 0.2
  max_position: 1
position_sizer:
  method: atr
  risk_fraction: 0.01
data:
  symbol: SPY
  start_date: "2020-01-01"
  end_date: "2023-12-31"
strategy:
  name: turtle
  params:
    entry_period: 55
    exit_period: 20
optimizer:
  n_splits: 4
  target_metric: total_return
  param_space:
    short_window: [5, 10]
    long_window: [20, 50, 100]
batch:
  workers: 2
  sort_by: max_drawdown
  symbols: [SPY, QQQ]
  strategies:
    - name: ma_cross
    - name: momentum
      params:
        lookback_period: 60
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage / server --
	if cfg.Storage.DataDir != "/tmp/quantlab/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/quantlab/data")
	}
	if cfg.Server.Port != 8081 || cfg.Server.GRPCPort != 9091 {
		t.Errorf("Server ports = %d/%d, want 8081/9091", cfg.Server.Port, cfg.Server.GRPCPort)
	}
	if !cfg.Alpaca.Enabled() {
		t.Error("Alpaca.Enabled() = false, want true")
	}
	// Unset keys keep their defaults.
	if cfg.Alpaca.DataURL != "https://data.alpaca.markets" {
		t.Errorf("Alpaca.DataURL = %q, want default", cfg.Alpaca.DataURL)
	}

	// -- Engine --
	if cfg.Engine.InitialCapital != 50000 {
		t.Errorf("Engine.InitialCapital = %v, want 50000", cfg.Engine.InitialCapital)
	}
	if cfg.Engine.CommissionRate != 0.0003 {
		t.Errorf("Engine.CommissionRate = %v, want default 0.0003", cfg.Engine.CommissionRate)
	}
	if cfg.Risk.StopLoss != -0.08 {
		t.Errorf("Risk.StopLoss = %v, want -0.08", cfg.Risk.StopLoss)
	}
	if cfg.Sizer.Method != engine.SizingATR {
		t.Errorf("Sizer.Method = %q, want %q", cfg.Sizer.Method, engine.SizingATR)
	}

	// -- Strategy / optimizer / batch --
	if cfg.Strategy.Name != "turtle" || cfg.Strategy.Params["entry_period"] != 55 {
		t.Errorf("Strategy = %+v", cfg.Strategy)
	}
	if got := cfg.Optimizer.ParamSpace.Names(); len(got) != 2 || got[0] != "short_window" {
		t.Errorf("ParamSpace.Names() = %v, want [short_window long_window]", got)
	}
	if got := cfg.Optimizer.ParamSpace.Size(); got != 6 {
		t.Errorf("ParamSpace.Size() = %d, want 6", got)
	}
	oc := cfg.OptimizerConfig()
	if oc.NSplits != 4 || oc.TrainRatio != 0.7 || oc.TargetMetric != optimizer.MetricTotalReturn {
		t.Errorf("OptimizerConfig = %+v", oc)
	}
	if oc.Settings.Sizer.RiskFraction != 0.95 || oc.Settings.Engine.InitialCapital != 50000 {
		t.Errorf("optimizer settings = %+v", oc.Settings)
	}
	if bc := cfg.BatchConfig(); bc.Workers != 2 {
		t.Errorf("BatchConfig.Workers = %d, want 2", bc.Workers)
	}
	if len(cfg.Batch.Strategies) != 2 || cfg.Batch.Strategies[1].Name != "momentum" {
		t.Errorf("Batch.Strategies = %+v", cfg.Batch.Strategies)
	}

	start, end, err := cfg.DateRange(time.Now())
	if err != nil {
		t.Fatalf("DateRange: %v", err)
	}
	if start.Format(time.DateOnly) != "2020-01-01" || end.Format(time.DateOnly) != "2023-12-31" {
		t.Errorf("DateRange = %v..%v", start, end)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("QUANTLAB_WORKERS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Optimizer.Workers != 3 || cfg.Batch.Workers != 3 {
		t.Errorf("workers = %d/%d, want 3/3", cfg.Optimizer.Workers, cfg.Batch.Workers)
	}

	// Canonical SDK names win.
	t.Setenv("APCA_API_KEY_ID", "sdk-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "sdk-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "sdk-key")
	}

	t.Setenv("QUANTLAB_WORKERS", "many")
	if _, err := Load(path); err == nil {
		t.Error("Load() with bad QUANTLAB_WORKERS should fail")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		yaml string
	}{
		{"capital", "engine:\n  initial_capital: 0\n"},
		{"stop loss sign", "risk:\n  stop_loss: 0.05\n"},
		{"sizing method", "position_sizer:\n  method: martingale\n"},
		{"date", "data:\n  start_date: 01/02/2020\n"},
		{"strategy", "strategy:\n  name: nope\n"},
		{"strategy params", "strategy:\n  name: ma_cross\n  params:\n    short_window: 30\n    long_window: 10\n"},
		{"train ratio", "optimizer:\n  train_ratio: 1.5\n"},
		{"target metric", "optimizer:\n  target_metric: alpha\n"},
		{"param space", "optimizer:\n  param_space:\n    short_window: []\n"},
		{"sort by", "batch:\n  sort_by: luck\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Parse() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	now := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	start, end, err := cfg.DateRange(now)
	if err != nil {
		t.Fatalf("DateRange: %v", err)
	}
	if start.Format(time.DateOnly) != "2015-01-01" || !end.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DateRange = %v..%v", start, end)
	}
}
