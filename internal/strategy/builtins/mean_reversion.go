package builtins

import (
	"fmt"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversion buys closes at or under the lower Bollinger band while RSI is
// oversold, and sells at the upper band with RSI overbought or once price is
// back at the middle band.
type MeanReversion struct {
	strategy.Base
	oversold   float64
	overbought float64

	bands *indicator.Bollinger
	rsi   *indicator.RSI

	lastClose float64
	hasClose  bool
}

// MeanReversionParams configures a MeanReversion.
type MeanReversionParams struct {
	BBPeriod      int
	BBStd         float64
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
}

// NewMeanReversion creates the strategy from p.
func NewMeanReversion(p MeanReversionParams) *MeanReversion {
	return &MeanReversion{
		Base:       strategy.NewBase(fmt.Sprintf("MeanRev(%d,%d)", p.BBPeriod, p.RSIPeriod)),
		oversold:   p.RSIOversold,
		overbought: p.RSIOverbought,
		bands:      indicator.NewBollinger(p.BBPeriod, p.BBStd),
		rsi:        indicator.NewRSI(p.RSIPeriod),
	}
}

func meanReversionFromParams(r *strategy.ParamReader) *MeanReversion {
	p := MeanReversionParams{
		BBPeriod:      r.Window("bb_period", 20),
		BBStd:         r.Float("bb_std", 2.0),
		RSIPeriod:     r.Window("rsi_period", 14),
		RSIOversold:   r.Float("rsi_oversold", 30),
		RSIOverbought: r.Float("rsi_overbought", 70),
	}
	r.Check(p.BBStd > 0, "bb_std", "must be positive, got %v", p.BBStd)
	r.Check(p.RSIOversold < p.RSIOverbought, "rsi_oversold",
		"must be below rsi_overbought (%v), got %v", p.RSIOverbought, p.RSIOversold)
	return NewMeanReversion(p)
}

// OnBar updates RSI and the Bollinger window.
func (s *MeanReversion) OnBar(bar domain.Bar) error {
	if err := s.Advance(bar); err != nil {
		return err
	}
	s.rsi.Update(bar.Close)
	s.bands.Update(bar.Close)
	s.lastClose = bar.Close
	s.hasClose = true
	return nil
}

// Signal evaluates the band and RSI thresholds.
func (s *MeanReversion) Signal() domain.Signal {
	b, ok := s.bands.Value()
	if !ok || !s.hasClose {
		return domain.SignalHold
	}
	rsi, ok := s.rsi.Value()
	if !ok {
		return domain.SignalHold
	}

	if !s.InPosition() {
		if s.lastClose <= b.Lower && rsi < s.oversold {
			return domain.SignalBuy
		}
		return domain.SignalHold
	}

	if s.lastClose >= b.Upper && rsi > s.overbought {
		return domain.SignalSell
	}
	if s.lastClose >= b.Middle {
		return domain.SignalSell
	}
	return domain.SignalHold
}

// Reset clears the indicators.
func (s *MeanReversion) Reset() {
	s.ResetBase()
	s.bands.Reset()
	s.rsi.Reset()
	s.lastClose = 0
	s.hasClose = false
}
