// Package domain defines the core value types shared across quantlab: bars,
// signals, trades and backtest results.
package domain

import "time"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one daily OHLCV observation. Bars are immutable once loaded.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is a date-ordered run of bars for a single symbol. A Series with no
// bars is the explicit "no data" result returned by loaders.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// NewSeries wraps bars for symbol.
func NewSeries(symbol string, bars []Bar) Series {
	return Series{Symbol: symbol, Bars: bars}
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Empty reports whether the series holds no bars.
func (s Series) Empty() bool { return len(s.Bars) == 0 }

// Slice returns the half-open window [i, j) sharing the underlying bars.
func (s Series) Slice(i, j int) Series {
	return Series{Symbol: s.Symbol, Bars: s.Bars[i:j]}
}

// Closes returns the close prices in order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// First returns the date of the first bar, or the zero time when empty.
func (s Series) First() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Date
}

// Last returns the date of the last bar, or the zero time when empty.
func (s Series) Last() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// Signal is a strategy's per-bar trading intent.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// ---------------------------------------------------------------------------
// Trades and results
// ---------------------------------------------------------------------------

// TradeSideLong is the only side the simulator produces.
const TradeSideLong = "LONG"

// Trade is a completed round-turn, created when the position is sold.
type Trade struct {
	DateOpen   time.Time `json:"date_open"`
	DateClose  time.Time `json:"date_close"`
	Side       string    `json:"side"`
	Quantity   int64     `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnl_pct"`
	Commission float64   `json:"commission"`
	Reason     string    `json:"reason"`
}

// HoldingDays returns the calendar days between open and close.
func (t Trade) HoldingDays() int {
	return int(t.DateClose.Sub(t.DateOpen).Hours() / 24)
}

// EquityPoint is the account snapshot recorded after each bar.
type EquityPoint struct {
	Date     time.Time `json:"date"`
	Equity   float64   `json:"equity"`
	Cash     float64   `json:"cash"`
	Position int64     `json:"position"`
	Price    float64   `json:"price"`
}

// BacktestResult is the immutable output of one engine run.
type BacktestResult struct {
	StrategyName     string        `json:"strategy_name"`
	InitialCapital   float64       `json:"initial_capital"`
	FinalEquity      float64       `json:"final_equity"`
	Dates            []time.Time   `json:"dates"`
	EquityCurve      []float64     `json:"equity_curve"`
	DailyReturns     []float64     `json:"daily_returns"`
	BenchmarkCurve   []float64     `json:"benchmark_curve,omitempty"`
	BenchmarkReturns []float64     `json:"benchmark_returns,omitempty"`
	Snapshots        []EquityPoint `json:"snapshots"`
	Trades           []Trade       `json:"trades"`
}

// Empty reports whether the run recorded no equity points.
func (r *BacktestResult) Empty() bool {
	return r == nil || len(r.EquityCurve) == 0
}

// TradeCount returns the number of completed round-turns.
func (r *BacktestResult) TradeCount() int {
	if r == nil {
		return 0
	}
	return len(r.Trades)
}
