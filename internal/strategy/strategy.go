// Package strategy defines the Strategy contract driven by the backtest
// engine, the closed set of strategy kinds, and the configuration shape used
// to construct them.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"quantlab/internal/domain"
)

// Configuration errors. Callers match them with errors.Is.
var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidParams   = errors.New("invalid strategy parameters")
	ErrBarOrder        = errors.New("bar out of order")
)

// Strategy is the interface that all trading strategies must implement. The
// engine calls OnBar, then Signal, then OnFill for any executed order, once
// per bar and in that order.
type Strategy interface {
	// Name returns a display name including the key parameters.
	Name() string

	// OnBar folds one bar into the strategy's incremental state. It must
	// only read the bar passed and state derived from earlier bars.
	OnBar(bar domain.Bar) error

	// Signal returns the trading intent for the most recent bar. It does not
	// mutate state and returns HOLD until the strategy has warmed up.
	Signal() domain.Signal

	// OnFill notifies the strategy that a BUY or SELL was executed.
	OnFill(sig domain.Signal)

	// Reset clears all state so the strategy can replay a new series.
	Reset()
}

// ---------------------------------------------------------------------------
// Kinds
// ---------------------------------------------------------------------------

// Kind names one of the built-in strategy variants.
type Kind string

const (
	KindMACross       Kind = "ma_cross"
	KindEMAPullback   Kind = "ema20_pullback"
	KindTurtle        Kind = "turtle"
	KindGrid          Kind = "grid"
	KindMomentum      Kind = "momentum"
	KindMeanReversion Kind = "mean_reversion"
)

var kinds = []Kind{
	KindMACross,
	KindEMAPullback,
	KindTurtle,
	KindGrid,
	KindMomentum,
	KindMeanReversion,
}

// Kinds returns the available strategy kinds sorted by name.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind resolves a configured strategy name.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.TrimSpace(name))
	for _, known := range kinds {
		if k == known {
			return k, nil
		}
	}
	names := make([]string, 0, len(kinds))
	for _, known := range Kinds() {
		names = append(names, string(known))
	}
	return "", fmt.Errorf("%w %q (available: %s)", ErrUnknownStrategy, name, strings.Join(names, ", "))
}

// Config selects a strategy kind and its parameters.
type Config struct {
	Name   string `yaml:"name" json:"name"`
	Params Params `yaml:"params" json:"params,omitempty"`
}

// String renders the config as name{k=v,...} with keys sorted.
func (c Config) String() string {
	if len(c.Params) == 0 {
		return c.Name
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, c.Params[k])
	}
	return c.Name + "{" + strings.Join(parts, ",") + "}"
}

// ---------------------------------------------------------------------------
// Base
// ---------------------------------------------------------------------------

// Base carries the state every built-in strategy shares: its display name,
// the position flag updated by fills, and the date guard that rejects bars
// arriving out of order.
type Base struct {
	name       string
	inPosition bool
	lastDate   time.Time
}

// NewBase creates a Base with the given display name.
func NewBase(name string) Base {
	return Base{name: name}
}

// Name returns the display name.
func (b *Base) Name() string { return b.name }

// InPosition reports whether the last fill was a BUY.
func (b *Base) InPosition() bool { return b.inPosition }

// OnFill tracks the position flag.
func (b *Base) OnFill(sig domain.Signal) {
	switch sig {
	case domain.SignalBuy:
		b.inPosition = true
	case domain.SignalSell:
		b.inPosition = false
	}
}

// Advance records bar's date, failing when it does not follow the previous
// bar. Bars without a date are not checked.
func (b *Base) Advance(bar domain.Bar) error {
	if bar.Date.IsZero() {
		return nil
	}
	if !b.lastDate.IsZero() && !bar.Date.After(b.lastDate) {
		return fmt.Errorf("%w: %s after %s", ErrBarOrder,
			bar.Date.Format(time.DateOnly), b.lastDate.Format(time.DateOnly))
	}
	b.lastDate = bar.Date
	return nil
}

// ResetBase clears the position flag and date guard.
func (b *Base) ResetBase() {
	b.inPosition = false
	b.lastDate = time.Time{}
}
