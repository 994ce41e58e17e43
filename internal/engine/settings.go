package engine

import (
	"log/slog"

	"quantlab/internal/strategy"
)

// Settings bundles everything an engine needs apart from the strategy, so
// callers that run many backtests can build a fresh engine per run.
type Settings struct {
	Engine Config      `yaml:"engine" json:"engine"`
	Risk   RiskConfig  `yaml:"risk" json:"risk"`
	Sizer  SizerConfig `yaml:"position_sizer" json:"position_sizer"`
}

// DefaultSettings returns the defaults of each part.
func DefaultSettings() Settings {
	return Settings{
		Engine: DefaultConfig(),
		Risk:   DefaultRiskConfig(),
		Sizer:  DefaultSizerConfig(),
	}
}

// SweepSettings returns the settings used for parameter sweeps and batch
// runs: default account and risk limits with 95% fixed-fraction sizing.
func SweepSettings() Settings {
	s := DefaultSettings()
	s.Sizer = SizerConfig{
		Method:        SizingFixedFraction,
		RiskFraction:  0.95,
		ATRMultiplier: 2.0,
		KellyFraction: 0.5,
	}
	return s
}

// Build creates an engine for s.
func (st Settings) Build(s strategy.Strategy, log *slog.Logger) *Engine {
	opts := []Option{}
	if log != nil {
		opts = append(opts, WithLogger(log))
	}
	return NewEngine(s, st.Risk.Manager(), NewPositionSizer(st.Sizer), st.Engine, opts...)
}
