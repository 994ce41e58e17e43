// Package builtins provides the strategy implementations that ship with
// quantlab and the factory that constructs them from configuration.
package builtins

import (
	"fmt"

	"quantlab/internal/strategy"
)

// New constructs a fresh strategy from cfg. Unknown names and malformed
// parameters return errors wrapping strategy.ErrUnknownStrategy or
// strategy.ErrInvalidParams.
func New(cfg strategy.Config) (strategy.Strategy, error) {
	kind, err := strategy.ParseKind(cfg.Name)
	if err != nil {
		return nil, err
	}

	r := strategy.NewParamReader(string(kind), cfg.Params)
	var s strategy.Strategy
	switch kind {
	case strategy.KindMACross:
		s = maCrossFromParams(r)
	case strategy.KindEMAPullback:
		s = emaPullbackFromParams(r)
	case strategy.KindTurtle:
		s = turtleFromParams(r)
	case strategy.KindGrid:
		s = gridFromParams(r)
	case strategy.KindMomentum:
		s = momentumFromParams(r)
	case strategy.KindMeanReversion:
		s = meanReversionFromParams(r)
	default:
		return nil, fmt.Errorf("%w %q", strategy.ErrUnknownStrategy, cfg.Name)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports whether cfg would construct successfully.
func Validate(cfg strategy.Config) error {
	_, err := New(cfg)
	return err
}

// Defaults returns the default parameters for kind, as used by the CLI and
// the strategies endpoint.
func Defaults(kind strategy.Kind) strategy.Params {
	switch kind {
	case strategy.KindMACross:
		return strategy.Params{"short_window": 5, "long_window": 20}
	case strategy.KindEMAPullback:
		return strategy.Params{
			"ema_period": 20, "macd_fast": 12, "macd_slow": 26, "macd_signal": 9,
			"volume_period": 20, "pullback_tolerance": 0.005, "pullback_lookback": 5,
		}
	case strategy.KindTurtle:
		return strategy.Params{"entry_period": 20, "exit_period": 10, "atr_period": 14, "atr_multiplier": 2.0}
	case strategy.KindGrid:
		return strategy.Params{"grid_num": 10, "lookback_period": 60}
	case strategy.KindMomentum:
		return strategy.Params{"lookback_period": 20}
	case strategy.KindMeanReversion:
		return strategy.Params{"bb_period": 20, "bb_std": 2.0, "rsi_period": 14, "rsi_oversold": 30.0, "rsi_overbought": 70.0}
	}
	return nil
}
