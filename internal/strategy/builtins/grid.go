package builtins

import (
	"fmt"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Grid)(nil)

// Grid divides a price range into equal levels, buying when price steps down
// a level while flat and selling when it steps up a level while holding. The
// range is either fixed by configuration or taken once from the high and low
// of the first lookback bars.
type Grid struct {
	strategy.Base
	gridNum        int
	upper, lower   float64
	lookbackPeriod int

	prices      *indicator.Ring
	lines       []float64
	lastClose   float64
	prevClose   float64
	closes      int
	initialized bool
}

// NewGrid creates a grid strategy. Zero upper and lower derive the range
// from the lookback window.
func NewGrid(gridNum int, upper, lower float64, lookbackPeriod int) *Grid {
	return &Grid{
		Base:           strategy.NewBase(fmt.Sprintf("Grid(%d)", gridNum)),
		gridNum:        gridNum,
		upper:          upper,
		lower:          lower,
		lookbackPeriod: lookbackPeriod,
		prices:         indicator.NewRing(lookbackPeriod),
	}
}

func gridFromParams(r *strategy.ParamReader) *Grid {
	n := r.Window("grid_num", 10)
	upper := r.Float("upper_price", 0)
	lower := r.Float("lower_price", 0)
	lookback := r.Window("lookback_period", 60)
	r.Check(upper >= 0 && lower >= 0, "upper_price", "bounds must not be negative")
	r.Check((upper > 0) == (lower > 0), "upper_price",
		"upper_price and lower_price must be set together, got %v and %v", upper, lower)
	if upper > 0 && lower > 0 {
		r.Check(upper > lower, "upper_price", "must exceed lower_price (%v), got %v", lower, upper)
	}
	return NewGrid(n, upper, lower, lookback)
}

// Lines returns a copy of the grid lines, or nil before initialisation.
func (s *Grid) Lines() []float64 {
	if !s.initialized {
		return nil
	}
	out := make([]float64, len(s.lines))
	copy(out, s.lines)
	return out
}

// OnBar records the close and builds the grid when enough data is present.
func (s *Grid) OnBar(bar domain.Bar) error {
	if err := s.Advance(bar); err != nil {
		return err
	}
	s.prevClose = s.lastClose
	s.lastClose = bar.Close
	s.closes++
	s.prices.Push(bar.Close)

	if !s.initialized {
		s.initGrid()
	}
	return nil
}

func (s *Grid) initGrid() {
	var upper, lower float64
	switch {
	case s.upper > 0 && s.lower > 0:
		upper, lower = s.upper, s.lower
	case s.prices.Full():
		upper = s.prices.Max(0, s.prices.Len())
		lower = s.prices.Min(0, s.prices.Len())
	default:
		return
	}
	if upper <= lower {
		return
	}

	step := (upper - lower) / float64(s.gridNum)
	s.lines = make([]float64, s.gridNum+1)
	for i := range s.lines {
		s.lines[i] = lower + float64(i)*step
	}
	s.initialized = true
}

// level returns the index of the grid cell containing price: 0 is the lowest
// cell and gridNum means at or above the top line.
func (s *Grid) level(price float64) int {
	for i := 0; i < len(s.lines)-1; i++ {
		if price < s.lines[i+1] {
			return i
		}
	}
	return len(s.lines) - 1
}

// Signal compares the grid level of the previous and current close.
func (s *Grid) Signal() domain.Signal {
	if !s.initialized || s.closes < 2 {
		return domain.SignalHold
	}
	if s.lastClose < s.lines[0] || s.lastClose > s.lines[len(s.lines)-1] {
		return domain.SignalHold
	}

	prev := s.level(s.prevClose)
	curr := s.level(s.lastClose)

	if !s.InPosition() && curr < prev {
		return domain.SignalBuy
	}
	if s.InPosition() && curr > prev {
		return domain.SignalSell
	}
	return domain.SignalHold
}

// Reset discards the grid and price history.
func (s *Grid) Reset() {
	s.ResetBase()
	s.prices.Reset()
	s.lines = nil
	s.lastClose = 0
	s.prevClose = 0
	s.closes = 0
	s.initialized = false
}
