package indicator

import "math"

// ---------------------------------------------------------------------------
// Moving averages
// ---------------------------------------------------------------------------

// SMA is a simple moving average over a fixed window.
type SMA struct {
	window *Ring
}

// NewSMA creates an SMA over period values.
func NewSMA(period int) *SMA {
	return &SMA{window: NewRing(period)}
}

// Update pushes v and returns the average once the window is full.
func (s *SMA) Update(v float64) (float64, bool) {
	s.window.Push(v)
	return s.Value()
}

// Value returns the current average and whether the window is full.
func (s *SMA) Value() (float64, bool) {
	if !s.window.Full() {
		return 0, false
	}
	return s.window.Mean(), true
}

// Reset clears the window.
func (s *SMA) Reset() { s.window.Reset() }

// EMA is an exponential moving average seeded with the first value.
type EMA struct {
	alpha  float64
	value  float64
	seeded bool
}

// NewEMA creates an EMA with smoothing 2/(period+1).
func NewEMA(period int) *EMA {
	return &EMA{alpha: 2.0 / float64(period+1)}
}

// Update folds v into the average and returns it.
func (e *EMA) Update(v float64) float64 {
	if !e.seeded {
		e.value = v
		e.seeded = true
		return e.value
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
	return e.value
}

// Value returns the current average and whether any value has been seen.
func (e *EMA) Value() (float64, bool) { return e.value, e.seeded }

// Reset forgets all history.
func (e *EMA) Reset() {
	e.value = 0
	e.seeded = false
}

// ---------------------------------------------------------------------------
// MACD
// ---------------------------------------------------------------------------

// MACD tracks DIF (fast EMA minus slow EMA), DEA (EMA of DIF) and the
// histogram. DIF and DEA start at zero on the first value.
type MACD struct {
	fast, slow  *EMA
	signalAlpha float64
	dif, dea    float64
	ready       bool
}

// NewMACD creates a MACD with the given fast, slow and signal periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:        NewEMA(fast),
		slow:        NewEMA(slow),
		signalAlpha: 2.0 / float64(signal+1),
	}
}

// Update folds close into the indicator.
func (m *MACD) Update(close float64) {
	f := m.fast.Update(close)
	s := m.slow.Update(close)
	if !m.ready {
		m.ready = true
		return
	}
	m.dif = f - s
	m.dea = m.signalAlpha*m.dif + (1-m.signalAlpha)*m.dea
}

// DIF returns the fast/slow spread.
func (m *MACD) DIF() float64 { return m.dif }

// DEA returns the signal line.
func (m *MACD) DEA() float64 { return m.dea }

// Hist returns DIF minus DEA.
func (m *MACD) Hist() float64 { return m.dif - m.dea }

// Ready reports whether at least one value has been seen.
func (m *MACD) Ready() bool { return m.ready }

// Reset forgets all history.
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.dif, m.dea = 0, 0
	m.ready = false
}

// ---------------------------------------------------------------------------
// ATR
// ---------------------------------------------------------------------------

// ATR is the simple mean of true range over a window. True range needs the
// previous close, so the first bar contributes nothing.
type ATR struct {
	tr        *Ring
	prevClose float64
	hasPrev   bool
}

// NewATR creates an ATR over period true ranges.
func NewATR(period int) *ATR {
	return &ATR{tr: NewRing(period)}
}

// Update folds one bar into the indicator.
func (a *ATR) Update(high, low, close float64) {
	if a.hasPrev {
		tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
		a.tr.Push(tr)
	}
	a.prevClose = close
	a.hasPrev = true
}

// Value returns the ATR once period true ranges are available.
func (a *ATR) Value() (float64, bool) {
	if !a.tr.Full() {
		return 0, false
	}
	return a.tr.Mean(), true
}

// Reset forgets all history.
func (a *ATR) Reset() {
	a.tr.Reset()
	a.prevClose = 0
	a.hasPrev = false
}

// ---------------------------------------------------------------------------
// RSI
// ---------------------------------------------------------------------------

// RSI uses simple averages of gains and losses over the window. A window
// with no losses reads 100.
type RSI struct {
	gains, losses *Ring
	prev          float64
	hasPrev       bool
}

// NewRSI creates an RSI over period changes.
func NewRSI(period int) *RSI {
	return &RSI{gains: NewRing(period), losses: NewRing(period)}
}

// Update folds close into the indicator.
func (r *RSI) Update(close float64) {
	if r.hasPrev {
		change := close - r.prev
		r.gains.Push(math.Max(change, 0))
		r.losses.Push(math.Max(-change, 0))
	}
	r.prev = close
	r.hasPrev = true
}

// Value returns the RSI once period changes are available.
func (r *RSI) Value() (float64, bool) {
	if !r.gains.Full() {
		return 0, false
	}
	avgGain := r.gains.Mean()
	avgLoss := r.losses.Mean()
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// Reset forgets all history.
func (r *RSI) Reset() {
	r.gains.Reset()
	r.losses.Reset()
	r.prev = 0
	r.hasPrev = false
}

// ---------------------------------------------------------------------------
// Bollinger bands
// ---------------------------------------------------------------------------

// Bands is one Bollinger reading.
type Bands struct {
	Upper, Middle, Lower float64
}

// Bollinger computes bands from the population standard deviation of the
// window.
type Bollinger struct {
	window *Ring
	k      float64
}

// NewBollinger creates bands over period values at k standard deviations.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{window: NewRing(period), k: k}
}

// Update pushes close into the window.
func (b *Bollinger) Update(close float64) { b.window.Push(close) }

// Value returns the bands once the window is full.
func (b *Bollinger) Value() (Bands, bool) {
	if !b.window.Full() {
		return Bands{}, false
	}
	mid := b.window.Mean()
	std := b.window.PopulationStd()
	return Bands{Upper: mid + b.k*std, Middle: mid, Lower: mid - b.k*std}, true
}

// Reset clears the window.
func (b *Bollinger) Reset() { b.window.Reset() }
