package builtins

import (
	"fmt"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Momentum)(nil)

// Momentum holds while the N-bar rate of change is positive.
type Momentum struct {
	strategy.Base
	lookbackPeriod int

	closes   *indicator.Ring
	momentum float64
	ready    bool
}

// NewMomentum creates a rate-of-change strategy over lookbackPeriod bars.
func NewMomentum(lookbackPeriod int) *Momentum {
	return &Momentum{
		Base:           strategy.NewBase(fmt.Sprintf("Momentum(%d)", lookbackPeriod)),
		lookbackPeriod: lookbackPeriod,
		closes:         indicator.NewRing(lookbackPeriod + 1),
	}
}

func momentumFromParams(r *strategy.ParamReader) *Momentum {
	n := r.Window("lookback_period", 20)
	return NewMomentum(n)
}

// OnBar updates the rate of change once lookbackPeriod prior closes exist.
func (s *Momentum) OnBar(bar domain.Bar) error {
	if err := s.Advance(bar); err != nil {
		return err
	}
	s.closes.Push(bar.Close)
	if !s.closes.Full() {
		return nil
	}
	old := s.closes.Get(0)
	if old > 0 {
		s.momentum = (bar.Close - old) / old
	} else {
		s.momentum = 0
	}
	s.ready = true
	return nil
}

// Signal buys on positive momentum and exits when it turns non-positive.
func (s *Momentum) Signal() domain.Signal {
	if !s.ready {
		return domain.SignalHold
	}
	if !s.InPosition() && s.momentum > 0 {
		return domain.SignalBuy
	}
	if s.InPosition() && s.momentum <= 0 {
		return domain.SignalSell
	}
	return domain.SignalHold
}

// Reset clears the close window.
func (s *Momentum) Reset() {
	s.ResetBase()
	s.closes.Reset()
	s.momentum = 0
	s.ready = false
}
