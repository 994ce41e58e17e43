package engine

import (
	"fmt"
	"math"
)

// SizingMethod selects how the PositionSizer turns equity into a quantity.
type SizingMethod string

const (
	SizingFixedFraction SizingMethod = "fixed_fraction"
	SizingATR           SizingMethod = "atr"
	SizingKelly         SizingMethod = "kelly"
)

// ParseSizingMethod resolves a configured method name. An empty name means
// fixed fraction.
func ParseSizingMethod(name string) (SizingMethod, error) {
	switch m := SizingMethod(name); m {
	case "":
		return SizingFixedFraction, nil
	case SizingFixedFraction, SizingATR, SizingKelly:
		return m, nil
	}
	return "", fmt.Errorf("unknown sizing method %q (available: fixed_fraction, atr, kelly)", name)
}

// SizingInputs are the caller-supplied statistics the ATR and Kelly methods
// need. They are never inferred from the price series. A non-positive ATR
// or a nil Kelly input counts as missing.
type SizingInputs struct {
	ATR             float64  `yaml:"atr" json:"atr,omitempty"`
	WinRate         *float64 `yaml:"win_rate" json:"win_rate,omitempty"`
	ProfitLossRatio *float64 `yaml:"profit_loss_ratio" json:"profit_loss_ratio,omitempty"`
}

// SizerConfig configures a PositionSizer.
type SizerConfig struct {
	Method        SizingMethod `yaml:"method" json:"method"`
	RiskFraction  float64      `yaml:"risk_fraction" json:"risk_fraction"`
	ATRMultiplier float64      `yaml:"atr_multiplier" json:"atr_multiplier"`
	KellyFraction float64      `yaml:"kelly_fraction" json:"kelly_fraction"`
}

// DefaultSizerConfig returns fixed-fraction sizing at 2% of equity.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		Method:        SizingFixedFraction,
		RiskFraction:  0.02,
		ATRMultiplier: 2.0,
		KellyFraction: 0.5,
	}
}

// PositionSizer computes whole-share order quantities.
type PositionSizer struct {
	cfg SizerConfig
}

// NewPositionSizer creates a PositionSizer from cfg.
func NewPositionSizer(cfg SizerConfig) *PositionSizer {
	if cfg.Method == "" {
		cfg.Method = SizingFixedFraction
	}
	return &PositionSizer{cfg: cfg}
}

// Method returns the configured sizing method.
func (ps *PositionSizer) Method() SizingMethod { return ps.cfg.Method }

// Calculate returns the number of shares to buy at price. The position value
// is capped by availableCash and floor-divided by price. The result is never
// negative.
func (ps *PositionSizer) Calculate(totalEquity, availableCash, price float64, in SizingInputs) int64 {
	if price <= 0 || availableCash <= 0 {
		return 0
	}

	var value float64
	switch ps.cfg.Method {
	case SizingATR:
		value = ps.atrValue(totalEquity, in.ATR)
	case SizingKelly:
		value = ps.kellyValue(totalEquity, in.WinRate, in.ProfitLossRatio)
	default:
		value = totalEquity * ps.cfg.RiskFraction
	}

	value = math.Min(value, availableCash)
	qty := int64(math.Floor(value / price))
	if qty < 0 {
		return 0
	}
	return qty
}

func (ps *PositionSizer) atrValue(equity, atr float64) float64 {
	riskAmount := equity * ps.cfg.RiskFraction
	if atr <= 0 || ps.cfg.ATRMultiplier <= 0 {
		return riskAmount
	}
	return riskAmount / (atr * ps.cfg.ATRMultiplier)
}

func (ps *PositionSizer) kellyValue(equity float64, winRate, plRatio *float64) float64 {
	if winRate == nil || plRatio == nil {
		return equity * ps.cfg.RiskFraction
	}
	p, b := *winRate, *plRatio
	if b <= 0 {
		return 0
	}
	k := p - (1-p)/b
	if k <= 0 {
		return 0
	}
	return equity * k * ps.cfg.KellyFraction
}
