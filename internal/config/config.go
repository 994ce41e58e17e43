// Package config loads the quantlab YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quantlab/internal/batch"
	"quantlab/internal/engine"
	"quantlab/internal/metrics"
	"quantlab/internal/optimizer"
	"quantlab/internal/strategy"
	"quantlab/internal/strategy/builtins"
)

// ErrInvalid marks a configuration that failed validation.
var ErrInvalid = errors.New("invalid configuration")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for quantlab.
type Config struct {
	Storage   Storage            `yaml:"storage"`
	Server    Server             `yaml:"server"`
	Alpaca    Alpaca             `yaml:"alpaca"`
	Logging   Logging            `yaml:"logging"`
	Engine    engine.Config      `yaml:"engine"`
	Risk      engine.RiskConfig  `yaml:"risk"`
	Sizer     engine.SizerConfig `yaml:"position_sizer"`
	Metrics   metrics.Config     `yaml:"metrics"`
	Data      Data               `yaml:"data"`
	Strategy  strategy.Config    `yaml:"strategy"`
	Optimizer Optimizer          `yaml:"optimizer"`
	Batch     Batch              `yaml:"batch"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Enabled reports whether credentials are present.
func (a Alpaca) Enabled() bool { return a.APIKey != "" && a.APISecret != "" }

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Data configures the default backtest window and remote fetching.
type Data struct {
	StartDate       string `yaml:"start_date"`
	EndDate         string `yaml:"end_date"`
	HistoryStart    string `yaml:"history_start"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
	Fetch           bool   `yaml:"fetch"`
}

// Optimizer holds grid-search and walk-forward settings plus the default
// parameter space.
type Optimizer struct {
	NSplits         int                  `yaml:"n_splits"`
	TrainRatio      float64              `yaml:"train_ratio"`
	TargetMetric    string               `yaml:"target_metric"`
	MaxCombinations int                  `yaml:"max_combinations"`
	Workers         int                  `yaml:"workers"`
	ParamSpace      optimizer.ParamSpace `yaml:"param_space"`
}

// Batch holds batch-run settings.
type Batch struct {
	Workers    int               `yaml:"workers"`
	SortBy     string            `yaml:"sort_by"`
	Symbols    []string          `yaml:"symbols"`
	Strategies []strategy.Config `yaml:"strategies"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns a configuration usable without a file.
func Default() *Config {
	opt := optimizer.DefaultConfig()
	bat := batch.DefaultConfig()
	return &Config{
		Storage: Storage{DataDir: "data", SQLitePath: "data/quantlab.db"},
		Server:  Server{Host: "0.0.0.0", Port: 8080, GRPCPort: 9090},
		Alpaca:  Alpaca{BaseURL: "https://api.alpaca.markets", DataURL: "https://data.alpaca.markets"},
		Logging: Logging{Level: "info", Format: "json"},
		Engine:  engine.DefaultConfig(),
		Risk:    engine.DefaultRiskConfig(),
		Sizer:   engine.DefaultSizerConfig(),
		Metrics: metrics.DefaultConfig(),
		Data: Data{
			HistoryStart:    "2015-01-01",
			RateLimitPerMin: 200,
			MaxRetries:      3,
			Fetch:           true,
		},
		Strategy: strategy.Config{Name: string(strategy.KindMACross)},
		Optimizer: Optimizer{
			NSplits:         opt.NSplits,
			TrainRatio:      opt.TrainRatio,
			TargetMetric:    string(opt.TargetMetric),
			MaxCombinations: opt.MaxCombinations,
			Workers:         opt.Workers,
		},
		Batch: Batch{Workers: bat.Workers, SortBy: string(optimizer.MetricTotalReturn)},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, applies environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("QUANTLAB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing QUANTLAB_WORKERS: %w", err)
		}
		cfg.Optimizer.Workers = n
		cfg.Batch.Workers = n
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	if c.Engine.InitialCapital <= 0 {
		return fmt.Errorf("%w: engine.initial_capital must be positive", ErrInvalid)
	}
	if c.Engine.Slippage < 0 || c.Engine.Slippage >= 1 {
		return fmt.Errorf("%w: engine.slippage must be in [0, 1)", ErrInvalid)
	}
	if c.Engine.CommissionRate < 0 || c.Engine.CommissionRate >= 1 {
		return fmt.Errorf("%w: engine.commission_rate must be in [0, 1)", ErrInvalid)
	}
	if c.Risk.StopLoss <= -1 || c.Risk.StopLoss >= 0 {
		return fmt.Errorf("%w: risk.stop_loss must be in (-1, 0)", ErrInvalid)
	}
	if c.Risk.TakeProfit <= 0 {
		return fmt.Errorf("%w: risk.take_profit must be positive", ErrInvalid)
	}
	if c.Risk.MaxPosition <= 0 {
		return fmt.Errorf("%w: risk.max_position must be positive", ErrInvalid)
	}

	method, err := engine.ParseSizingMethod(string(c.Sizer.Method))
	if err != nil {
		return fmt.Errorf("%w: position_sizer: %v", ErrInvalid, err)
	}
	c.Sizer.Method = method
	if c.Sizer.RiskFraction <= 0 || c.Sizer.RiskFraction > 1 {
		return fmt.Errorf("%w: position_sizer.risk_fraction must be in (0, 1]", ErrInvalid)
	}

	if c.Metrics.TradingDaysPerYear <= 0 {
		return fmt.Errorf("%w: metrics.trading_days_per_year must be positive", ErrInvalid)
	}

	for _, d := range []struct{ key, value string }{
		{"data.start_date", c.Data.StartDate},
		{"data.end_date", c.Data.EndDate},
		{"data.history_start", c.Data.HistoryStart},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d.value); err != nil {
			return fmt.Errorf("%w: %s %q is not YYYY-MM-DD", ErrInvalid, d.key, d.value)
		}
	}
	if c.Data.RateLimitPerMin < 0 {
		return fmt.Errorf("%w: data.rate_limit_per_min must not be negative", ErrInvalid)
	}

	if c.Strategy.Name != "" {
		if err := builtins.Validate(c.Strategy); err != nil {
			return fmt.Errorf("%w: strategy: %v", ErrInvalid, err)
		}
	}

	if err := c.OptimizerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: optimizer: %v", ErrInvalid, err)
	}
	if len(c.Optimizer.ParamSpace) > 0 {
		if err := c.Optimizer.ParamSpace.Validate(); err != nil {
			return fmt.Errorf("%w: optimizer.param_space: %v", ErrInvalid, err)
		}
	}

	if c.Batch.SortBy != "" {
		if _, err := optimizer.ParseMetric(c.Batch.SortBy); err != nil {
			return fmt.Errorf("%w: batch.sort_by: %v", ErrInvalid, err)
		}
	}
	for i, sc := range c.Batch.Strategies {
		if err := builtins.Validate(sc); err != nil {
			return fmt.Errorf("%w: batch.strategies[%d]: %v", ErrInvalid, i, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Derived settings
// ---------------------------------------------------------------------------

// Settings returns the engine settings for single backtests.
func (c *Config) Settings() engine.Settings {
	return engine.Settings{Engine: c.Engine, Risk: c.Risk, Sizer: c.Sizer}
}

// sweepSettings keeps the configured account and risk limits but sizes
// positions the way parameter sweeps always do.
func (c *Config) sweepSettings() engine.Settings {
	s := c.Settings()
	s.Sizer = engine.SweepSettings().Sizer
	return s
}

// OptimizerConfig converts the optimizer section.
func (c *Config) OptimizerConfig() optimizer.Config {
	oc := optimizer.DefaultConfig()
	oc.NSplits = c.Optimizer.NSplits
	oc.TrainRatio = c.Optimizer.TrainRatio
	oc.TargetMetric = optimizer.Metric(strings.ToLower(strings.TrimSpace(c.Optimizer.TargetMetric)))
	oc.MaxCombinations = c.Optimizer.MaxCombinations
	if c.Optimizer.Workers > 0 {
		oc.Workers = c.Optimizer.Workers
	}
	oc.Settings = c.sweepSettings()
	oc.Metrics = c.Metrics
	return oc
}

// BatchConfig converts the batch section.
func (c *Config) BatchConfig() batch.Config {
	bc := batch.DefaultConfig()
	if c.Batch.Workers > 0 {
		bc.Workers = c.Batch.Workers
	}
	bc.Settings = c.sweepSettings()
	bc.Metrics = c.Metrics
	return bc
}

// DateRange parses the configured window. A missing end date means today
// and a missing start date means history_start.
func (c *Config) DateRange(now time.Time) (start, end time.Time, err error) {
	end = now.UTC().Truncate(24 * time.Hour)
	if c.Data.EndDate != "" {
		if end, err = time.Parse(time.DateOnly, c.Data.EndDate); err != nil {
			return start, end, fmt.Errorf("parsing end date: %w", err)
		}
	}
	startStr := c.Data.StartDate
	if startStr == "" {
		startStr = c.Data.HistoryStart
	}
	if start, err = time.Parse(time.DateOnly, startStr); err != nil {
		return start, end, fmt.Errorf("parsing start date: %w", err)
	}
	if start.After(end) {
		return start, end, fmt.Errorf("%w: start %s after end %s", ErrInvalid,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return start, end, nil
}
