package builtins

import (
	"fmt"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Turtle)(nil)

// Turtle trades Donchian channel breakouts. It buys when the close exceeds
// the highest high of the prior entry-period bars and sells when the close
// drops below the lowest low of the prior exit-period bars, or below the
// entry price by more than a multiple of ATR. The channel exit stays off
// until exit-period prior lows are held.
type Turtle struct {
	strategy.Base
	entryPeriod   int
	exitPeriod    int
	atrMultiplier float64

	highs *indicator.Ring // prior entryPeriod highs plus the current bar
	lows  *indicator.Ring // prior exitPeriod lows plus the current bar
	atr   *indicator.ATR

	lastClose  float64
	entryPrice float64
	hasClose   bool
}

// NewTurtle creates a channel breakout strategy.
func NewTurtle(entryPeriod, exitPeriod, atrPeriod int, atrMultiplier float64) *Turtle {
	return &Turtle{
		Base:          strategy.NewBase(fmt.Sprintf("Turtle(%d,%d)", entryPeriod, exitPeriod)),
		entryPeriod:   entryPeriod,
		exitPeriod:    exitPeriod,
		atrMultiplier: atrMultiplier,
		highs:         indicator.NewRing(entryPeriod + 1),
		lows:          indicator.NewRing(exitPeriod + 1),
		atr:           indicator.NewATR(atrPeriod),
	}
}

func turtleFromParams(r *strategy.ParamReader) *Turtle {
	entry := r.Window("entry_period", 20)
	exit := r.Window("exit_period", 10)
	atrPeriod := r.Window("atr_period", 14)
	mult := r.Float("atr_multiplier", 2.0)
	r.Check(mult > 0, "atr_multiplier", "must be positive, got %v", mult)
	return NewTurtle(entry, exit, atrPeriod, mult)
}

// OnBar updates the channels and ATR.
func (s *Turtle) OnBar(bar domain.Bar) error {
	if err := s.Advance(bar); err != nil {
		return err
	}
	s.atr.Update(bar.High, bar.Low, bar.Close)
	s.highs.Push(bar.High)
	s.lows.Push(bar.Low)
	s.lastClose = bar.Close
	s.hasClose = true
	return nil
}

// Signal compares the close against the channels built from prior bars.
func (s *Turtle) Signal() domain.Signal {
	atr, ok := s.atr.Value()
	if !ok || !s.hasClose || !s.highs.Full() {
		return domain.SignalHold
	}

	if !s.InPosition() {
		channelHigh := s.highs.Max(0, s.highs.Len()-1)
		if s.lastClose > channelHigh {
			return domain.SignalBuy
		}
		return domain.SignalHold
	}

	// The channel exit needs exitPeriod prior lows; the ATR stop does not.
	if s.lows.Full() && s.lastClose < s.lows.Min(0, s.lows.Len()-1) {
		return domain.SignalSell
	}
	if s.entryPrice > 0 && s.lastClose < s.entryPrice-s.atrMultiplier*atr {
		return domain.SignalSell
	}
	return domain.SignalHold
}

// OnFill records the last close as the stop reference on entry.
func (s *Turtle) OnFill(sig domain.Signal) {
	s.Base.OnFill(sig)
	switch sig {
	case domain.SignalBuy:
		s.entryPrice = s.lastClose
	case domain.SignalSell:
		s.entryPrice = 0
	}
}

// Reset clears channels, ATR and position state.
func (s *Turtle) Reset() {
	s.ResetBase()
	s.highs.Reset()
	s.lows.Reset()
	s.atr.Reset()
	s.lastClose = 0
	s.entryPrice = 0
	s.hasClose = false
}
