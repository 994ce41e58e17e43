package engine

import (
	"fmt"

	"quantlab/internal/domain"
)

// RiskAction is the outcome of a risk check.
type RiskAction string

const (
	RiskPass       RiskAction = "pass"
	RiskReject     RiskAction = "reject"
	RiskForceClose RiskAction = "force_close"
)

// RiskCheckResult pairs an action with a human-readable reason.
type RiskCheckResult struct {
	Action RiskAction
	Reason string
}

// Passed reports whether the signal may be executed.
func (r RiskCheckResult) Passed() bool { return r.Action == RiskPass }

// ShouldClose reports whether the position must be liquidated.
func (r RiskCheckResult) ShouldClose() bool { return r.Action == RiskForceClose }

// Default risk limits.
const (
	DefaultStopLoss    = -0.05
	DefaultTakeProfit  = 0.10
	DefaultMaxPosition = 1
)

// RiskManager applies stop-loss, take-profit and position-limit rules. It is
// stateless; every input arrives with the call.
type RiskManager struct {
	stopLoss    float64
	takeProfit  float64
	maxPosition int64
}

// NewRiskManager creates a RiskManager with the specified thresholds.
//
//   - stopLoss: unrealised return at or below which a position is closed
//     (e.g. -0.05 for -5%).
//   - takeProfit: unrealised return at or above which a position is closed
//     (e.g. 0.10 for +10%).
//   - maxPosition: a BUY is rejected once the held quantity reaches this
//     value.
func NewRiskManager(stopLoss, takeProfit float64, maxPosition int64) *RiskManager {
	return &RiskManager{
		stopLoss:    stopLoss,
		takeProfit:  takeProfit,
		maxPosition: maxPosition,
	}
}

// DefaultRiskManager returns a RiskManager with the default limits.
func DefaultRiskManager() *RiskManager {
	return NewRiskManager(DefaultStopLoss, DefaultTakeProfit, DefaultMaxPosition)
}

// Check evaluates sig against the current position. Stop-loss and
// take-profit are checked first and apply even to HOLD. An entryPrice or
// currentPrice of zero means unknown and skips those checks.
func (rm *RiskManager) Check(sig domain.Signal, position int64, entryPrice, currentPrice float64) RiskCheckResult {
	if position > 0 && entryPrice > 0 && currentPrice > 0 {
		pnlPct := (currentPrice - entryPrice) / entryPrice
		if pnlPct <= rm.stopLoss {
			return RiskCheckResult{
				Action: RiskForceClose,
				Reason: fmt.Sprintf("stop loss triggered: %.2f%% <= %.2f%%", pnlPct*100, rm.stopLoss*100),
			}
		}
		if pnlPct >= rm.takeProfit {
			return RiskCheckResult{
				Action: RiskForceClose,
				Reason: fmt.Sprintf("take profit triggered: %.2f%% >= %.2f%%", pnlPct*100, rm.takeProfit*100),
			}
		}
	}

	if sig == domain.SignalBuy && position >= rm.maxPosition {
		return RiskCheckResult{
			Action: RiskReject,
			Reason: fmt.Sprintf("position %d already at limit %d", position, rm.maxPosition),
		}
	}

	if sig == domain.SignalSell && position <= 0 {
		return RiskCheckResult{Action: RiskReject, Reason: "no position to sell"}
	}

	return RiskCheckResult{Action: RiskPass}
}

// RiskConfig is the serialisable form of a RiskManager.
type RiskConfig struct {
	StopLoss    float64 `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit  float64 `yaml:"take_profit" json:"take_profit"`
	MaxPosition int64   `yaml:"max_position" json:"max_position"`
}

// DefaultRiskConfig returns the default limits.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		StopLoss:    DefaultStopLoss,
		TakeProfit:  DefaultTakeProfit,
		MaxPosition: DefaultMaxPosition,
	}
}

// Manager builds a RiskManager from c.
func (c RiskConfig) Manager() *RiskManager {
	return NewRiskManager(c.StopLoss, c.TakeProfit, c.MaxPosition)
}
