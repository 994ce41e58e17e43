package builtins

import (
	"fmt"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*EMAPullback)(nil)

const noPullback = -999

// EMAPullback buys a shallow pullback to the EMA in an up-trend: price must
// have touched the EMA within the last few bars and closed back above it,
// MACD DIF must be positive, and volume must be below its trailing average.
// It exits after two consecutive closes below the EMA.
type EMAPullback struct {
	strategy.Base
	volumePeriod      int
	pullbackTolerance float64
	pullbackLookback  int

	ema     *indicator.EMA
	macd    *indicator.MACD
	volumes *indicator.Ring

	barCount     int
	lastClose    float64
	pullbackBar  int
	breakCount   int
	hasLastClose bool
}

// EMAPullbackParams configures an EMAPullback.
type EMAPullbackParams struct {
	EMAPeriod         int
	MACDFast          int
	MACDSlow          int
	MACDSignal        int
	VolumePeriod      int
	PullbackTolerance float64
	PullbackLookback  int
}

// NewEMAPullback creates the strategy from p.
func NewEMAPullback(p EMAPullbackParams) *EMAPullback {
	return &EMAPullback{
		Base:              strategy.NewBase(fmt.Sprintf("EMA20Pullback(%d)", p.EMAPeriod)),
		volumePeriod:      p.VolumePeriod,
		pullbackTolerance: p.PullbackTolerance,
		pullbackLookback:  p.PullbackLookback,
		ema:               indicator.NewEMA(p.EMAPeriod),
		macd:              indicator.NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
		volumes:           indicator.NewRing(p.VolumePeriod + 1),
		pullbackBar:       noPullback,
	}
}

func emaPullbackFromParams(r *strategy.ParamReader) *EMAPullback {
	p := EMAPullbackParams{
		EMAPeriod:         r.Window("ema_period", 20),
		MACDFast:          r.Window("macd_fast", 12),
		MACDSlow:          r.Window("macd_slow", 26),
		MACDSignal:        r.Window("macd_signal", 9),
		VolumePeriod:      r.Window("volume_period", 20),
		PullbackTolerance: r.Float("pullback_tolerance", 0.005),
		PullbackLookback:  r.Int("pullback_lookback", 5),
	}
	r.Check(p.MACDSlow > p.MACDFast, "macd_slow", "must exceed macd_fast (%d), got %d", p.MACDFast, p.MACDSlow)
	r.Check(p.PullbackTolerance >= 0, "pullback_tolerance", "must not be negative, got %v", p.PullbackTolerance)
	r.Check(p.PullbackLookback >= 0 && p.PullbackLookback <= strategy.MaxWindow, "pullback_lookback",
		"must be between 0 and %d, got %d", strategy.MaxWindow, p.PullbackLookback)
	return NewEMAPullback(p)
}

// OnBar updates the EMA, MACD and volume window, then tracks pullbacks while
// flat and consecutive closes below the EMA while holding.
func (s *EMAPullback) OnBar(bar domain.Bar) error {
	if err := s.Advance(bar); err != nil {
		return err
	}
	s.barCount++
	s.lastClose = bar.Close
	s.hasLastClose = true

	ema := s.ema.Update(bar.Close)
	s.macd.Update(bar.Close)
	s.volumes.Push(bar.Volume)

	if !s.InPosition() {
		if bar.Close <= ema*(1+s.pullbackTolerance) {
			s.pullbackBar = s.barCount
		}
		return nil
	}

	if bar.Close < ema {
		s.breakCount++
	} else {
		s.breakCount = 0
	}
	return nil
}

// Signal checks the entry conditions while flat and the two-close exit while
// holding.
func (s *EMAPullback) Signal() domain.Signal {
	ema, ok := s.ema.Value()
	if !ok || !s.macd.Ready() || !s.hasLastClose {
		return domain.SignalHold
	}

	if s.InPosition() {
		if s.breakCount >= 2 {
			return domain.SignalSell
		}
		return domain.SignalHold
	}

	if !s.volumes.Full() {
		return domain.SignalHold
	}
	if s.barCount-s.pullbackBar > s.pullbackLookback {
		return domain.SignalHold
	}
	if s.lastClose <= ema {
		return domain.SignalHold
	}
	if s.macd.DIF() <= 0 {
		return domain.SignalHold
	}

	n := s.volumes.Len()
	avgVolume := s.volumes.Sum(0, n-1) / float64(n-1)
	if s.volumes.Last() >= avgVolume {
		return domain.SignalHold
	}
	return domain.SignalBuy
}

// OnFill clears the pullback marker on entry and the break counter on any
// fill.
func (s *EMAPullback) OnFill(sig domain.Signal) {
	s.Base.OnFill(sig)
	switch sig {
	case domain.SignalBuy:
		s.pullbackBar = noPullback
		s.breakCount = 0
	case domain.SignalSell:
		s.breakCount = 0
	}
}

// Reset clears all indicator and position state.
func (s *EMAPullback) Reset() {
	s.ResetBase()
	s.ema.Reset()
	s.macd.Reset()
	s.volumes.Reset()
	s.barCount = 0
	s.lastClose = 0
	s.hasLastClose = false
	s.pullbackBar = noPullback
	s.breakCount = 0
}
