package builtins

import (
	"fmt"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MACross)(nil)

// MACross implements a dual moving average crossover. It signals BUY when the
// short average crosses above the long average and SELL when it crosses
// below.
type MACross struct {
	strategy.Base
	shortWindow int
	longWindow  int

	prices              *indicator.Ring
	prevShort, prevLong float64
	currShort, currLong float64
	prevReady           bool
	currReady           bool
}

// NewMACross creates a crossover strategy over the given windows.
func NewMACross(short, long int) *MACross {
	return &MACross{
		Base:        strategy.NewBase(fmt.Sprintf("MACross(%d,%d)", short, long)),
		shortWindow: short,
		longWindow:  long,
		prices:      indicator.NewRing(long),
	}
}

func maCrossFromParams(r *strategy.ParamReader) *MACross {
	short := r.Window("short_window", 5)
	long := r.Window("long_window", 20)
	r.Check(long > short, "long_window", "must exceed short_window (%d), got %d", short, long)
	return NewMACross(short, long)
}

// OnBar updates both averages from the bar's close.
func (s *MACross) OnBar(bar domain.Bar) error {
	if err := s.Advance(bar); err != nil {
		return err
	}
	s.prices.Push(bar.Close)

	s.prevShort, s.prevLong, s.prevReady = s.currShort, s.currLong, s.currReady

	n := s.prices.Len()
	if n >= s.longWindow {
		s.currShort = s.prices.Sum(n-s.shortWindow, n) / float64(s.shortWindow)
		s.currLong = s.prices.Sum(n-s.longWindow, n) / float64(s.longWindow)
		s.currReady = true
	} else {
		s.currReady = false
	}
	return nil
}

// Signal compares the average spread on the previous and current bar.
func (s *MACross) Signal() domain.Signal {
	if !s.prevReady || !s.currReady {
		return domain.SignalHold
	}
	prevDiff := s.prevShort - s.prevLong
	currDiff := s.currShort - s.currLong

	if prevDiff <= 0 && currDiff > 0 {
		return domain.SignalBuy
	}
	if prevDiff >= 0 && currDiff < 0 {
		return domain.SignalSell
	}
	return domain.SignalHold
}

// Reset clears the price window and averages.
func (s *MACross) Reset() {
	s.ResetBase()
	s.prices.Reset()
	s.prevShort, s.prevLong, s.currShort, s.currLong = 0, 0, 0, 0
	s.prevReady, s.currReady = false, false
}
