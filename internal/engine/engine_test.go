package engine

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/strategy"
	"quantlab/internal/strategy/builtins"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// scripted emits a fixed signal per bar and records fills.
type scripted struct {
	signals []domain.Signal
	i       int
	fills   []domain.Signal
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) OnBar(domain.Bar) error {
	s.i++
	return nil
}
func (s *scripted) Signal() domain.Signal {
	if s.i-1 < len(s.signals) {
		return s.signals[s.i-1]
	}
	return domain.SignalHold
}
func (s *scripted) OnFill(sig domain.Signal) { s.fills = append(s.fills, sig) }
func (s *scripted) Reset() {
	s.i = 0
	s.fills = nil
}

func series(closes ...float64) domain.Series {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "TEST", Date: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return domain.NewSeries("TEST", bars)
}

func randomSeries(n int, seed int64) domain.Series {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]domain.Bar, n)
	price := 50.0
	for i := range bars {
		price *= 1 + (rng.Float64()-0.48)*0.05
		bars[i] = domain.Bar{
			Symbol: "RND", Date: day0.AddDate(0, 0, i),
			Open: price, High: price * 1.02, Low: price * 0.98, Close: price,
			Volume: 1000 + rng.Float64()*500,
		}
	}
	return domain.NewSeries("RND", bars)
}

func fullSizer() *PositionSizer {
	return NewPositionSizer(SizerConfig{Method: SizingFixedFraction, RiskFraction: 0.95})
}

func TestNewEngine(t *testing.T) {
	e := NewEngine(&scripted{}, nil, nil, DefaultConfig())
	if e == nil {
		t.Fatal("NewEngine returned nil")
	}
}

func TestEngineRoundTripCommission(t *testing.T) {
	cfg := DefaultConfig()
	s := &scripted{signals: []domain.Signal{domain.SignalBuy, domain.SignalSell}}
	e := NewEngine(s, DefaultRiskManager(), fullSizer(), cfg)

	res, err := e.Run(series(100, 110))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]

	entry := 100 * (1 + cfg.Slippage)
	exit := 110 * (1 - cfg.Slippage)
	qty := float64(tr.Quantity)
	if tr.Quantity != 949 {
		t.Errorf("Quantity = %d, want 949", tr.Quantity)
	}
	if math.Abs(tr.EntryPrice-entry) > 1e-9 || math.Abs(tr.ExitPrice-exit) > 1e-9 {
		t.Errorf("prices = %v/%v, want %v/%v", tr.EntryPrice, tr.ExitPrice, entry, exit)
	}

	wantComm := qty*entry*cfg.CommissionRate + qty*exit*cfg.CommissionRate
	if math.Abs(tr.Commission-wantComm) > 1e-9 {
		t.Errorf("Commission = %v, want %v", tr.Commission, wantComm)
	}
	// Within rounding of the commission computed on the quoted buy price.
	approx := qty*100*cfg.CommissionRate + qty*110*(1-cfg.Slippage)*cfg.CommissionRate
	if math.Abs(tr.Commission-approx) > 0.01 {
		t.Errorf("Commission = %v, not within 0.01 of %v", tr.Commission, approx)
	}

	wantPnL := (exit-entry)*qty - tr.Commission
	if math.Abs(tr.PnL-wantPnL) > 1e-9 {
		t.Errorf("PnL = %v, want %v", tr.PnL, wantPnL)
	}
	if tr.Reason != "strategy exit" || tr.Side != domain.TradeSideLong {
		t.Errorf("Reason/Side = %q/%q", tr.Reason, tr.Side)
	}
	if !tr.DateOpen.Equal(day0) || !tr.DateClose.Equal(day0.AddDate(0, 0, 1)) {
		t.Errorf("dates = %v..%v", tr.DateOpen, tr.DateClose)
	}

	// Final equity is all cash after the round trip.
	last := res.Snapshots[len(res.Snapshots)-1]
	if last.Position != 0 || math.Abs(res.FinalEquity-last.Cash) > 1e-9 {
		t.Errorf("final snapshot = %+v, FinalEquity = %v", last, res.FinalEquity)
	}
	if math.Abs(res.FinalEquity-(cfg.InitialCapital+tr.PnL)) > 1e-6 {
		t.Errorf("FinalEquity = %v, want initial + pnl = %v", res.FinalEquity, cfg.InitialCapital+tr.PnL)
	}

	if !reflect.DeepEqual(s.fills, []domain.Signal{domain.SignalBuy, domain.SignalSell}) {
		t.Errorf("fills = %v", s.fills)
	}
}

func TestEngineStopLossPrecedesSignal(t *testing.T) {
	// Bar 1 drops 6%: the stop fires before the strategy's BUY is considered.
	s := &scripted{signals: []domain.Signal{domain.SignalBuy, domain.SignalBuy}}
	e := NewEngine(s, DefaultRiskManager(), fullSizer(), Config{InitialCapital: 10000})

	res, err := e.Run(series(100, 94))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	if !strings.Contains(res.Trades[0].Reason, "stop loss") {
		t.Errorf("Reason = %q, want stop loss", res.Trades[0].Reason)
	}
	// The BUY on the same bar re-enters after the forced exit.
	if got := res.Snapshots[1].Position; got == 0 {
		t.Errorf("expected re-entry after stop, position = %d", got)
	}
}

func TestEngineTakeProfit(t *testing.T) {
	s := &scripted{signals: []domain.Signal{domain.SignalBuy}}
	e := NewEngine(s, DefaultRiskManager(), fullSizer(), Config{InitialCapital: 10000})

	res, err := e.Run(series(100, 105, 111, 120))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 || !strings.Contains(res.Trades[0].Reason, "take profit") {
		t.Fatalf("trades = %+v, want one take-profit exit", res.Trades)
	}
	if !res.Trades[0].DateClose.Equal(day0.AddDate(0, 0, 2)) {
		t.Errorf("closed on %v, want bar 2", res.Trades[0].DateClose)
	}
}

func TestEngineSellWhileFlatIsNoop(t *testing.T) {
	s := &scripted{signals: []domain.Signal{domain.SignalSell, domain.SignalSell}}
	e := NewEngine(s, nil, nil, DefaultConfig())
	res, err := e.Run(series(100, 101))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 || len(s.fills) != 0 {
		t.Errorf("trades = %d, fills = %v; want none", len(res.Trades), s.fills)
	}
	if res.FinalEquity != 100000 {
		t.Errorf("FinalEquity = %v, want 100000", res.FinalEquity)
	}
}

func TestEngineBuyWhileLongRejected(t *testing.T) {
	s := &scripted{signals: []domain.Signal{domain.SignalBuy, domain.SignalBuy, domain.SignalBuy}}
	e := NewEngine(s, DefaultRiskManager(), fullSizer(), DefaultConfig())
	res, err := e.Run(series(100, 101, 102))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.fills) != 1 {
		t.Errorf("fills = %v, want a single BUY", s.fills)
	}
	if res.Snapshots[2].Position != res.Snapshots[0].Position {
		t.Errorf("position changed while long: %d -> %d", res.Snapshots[0].Position, res.Snapshots[2].Position)
	}
}

func TestEngineReducesQuantityToFitCash(t *testing.T) {
	s := &scripted{signals: []domain.Signal{domain.SignalBuy}}
	sizer := NewPositionSizer(SizerConfig{Method: SizingFixedFraction, RiskFraction: 1})
	e := NewEngine(s, DefaultRiskManager(), sizer, Config{InitialCapital: 100000, CommissionRate: 0.01})

	res, err := e.Run(series(100))
	if err != nil {
		t.Fatal(err)
	}
	snap := res.Snapshots[0]
	if snap.Position != 990 {
		t.Errorf("Position = %d, want 990", snap.Position)
	}
	if math.Abs(snap.Cash-10) > 1e-6 {
		t.Errorf("Cash = %v, want 10", snap.Cash)
	}
}

func TestEngineUnaffordableBuyAbandoned(t *testing.T) {
	s := &scripted{signals: []domain.Signal{domain.SignalBuy}}
	e := NewEngine(s, DefaultRiskManager(), fullSizer(), Config{InitialCapital: 50})
	res, err := e.Run(series(100))
	if err != nil {
		t.Fatal(err)
	}
	if res.Snapshots[0].Position != 0 || len(s.fills) != 0 {
		t.Errorf("bought with insufficient cash: %+v", res.Snapshots[0])
	}
}

func TestEngineEmptySeries(t *testing.T) {
	e := NewEngine(&scripted{}, nil, nil, DefaultConfig())
	res, err := e.Run(domain.Series{Symbol: "NONE"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty() {
		t.Error("result of empty series should be empty")
	}
	if res.FinalEquity != 100000 || res.InitialCapital != 100000 {
		t.Errorf("FinalEquity/InitialCapital = %v/%v", res.FinalEquity, res.InitialCapital)
	}
}

func TestEngineStrategyErrorPropagates(t *testing.T) {
	s, err := builtins.New(strategy.Config{Name: "momentum"})
	if err != nil {
		t.Fatal(err)
	}
	bars := series(1, 2, 3).Bars
	bars[2].Date = bars[0].Date
	e := NewEngine(s, nil, nil, DefaultConfig())

	_, err = e.Run(domain.NewSeries("TEST", bars))
	if !errors.Is(err, strategy.ErrBarOrder) {
		t.Fatalf("Run err = %v, want ErrBarOrder", err)
	}
	if !strings.Contains(err.Error(), "Momentum(20)") {
		t.Errorf("error %q does not name the strategy", err)
	}
}

func TestEngineInvariants(t *testing.T) {
	data := randomSeries(400, 3)
	cfgs := []strategy.Config{
		{Name: "ma_cross", Params: strategy.Params{"short_window": 3, "long_window": 10}},
		{Name: "turtle", Params: strategy.Params{"entry_period": 10, "exit_period": 5, "atr_period": 5}},
		{Name: "momentum", Params: strategy.Params{"lookback_period": 5}},
		{Name: "mean_reversion", Params: strategy.Params{"bb_period": 10, "rsi_period": 5}},
		{Name: "grid", Params: strategy.Params{"grid_num": 8, "lookback_period": 30}},
		{Name: "ema20_pullback", Params: strategy.Params{"ema_period": 5, "volume_period": 5}},
	}

	for _, sc := range cfgs {
		s, err := builtins.New(sc)
		if err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig()
		e := NewEngine(s, DefaultRiskManager(), fullSizer(), cfg)
		res, err := e.Run(data)
		if err != nil {
			t.Fatalf("%s: %v", sc.Name, err)
		}

		if len(res.EquityCurve) != data.Len() || len(res.BenchmarkCurve) != data.Len() {
			t.Errorf("%s: curve lengths %d/%d, want %d", sc.Name, len(res.EquityCurve), len(res.BenchmarkCurve), data.Len())
		}
		if res.DailyReturns[0] != 0 {
			t.Errorf("%s: first daily return = %v, want 0", sc.Name, res.DailyReturns[0])
		}

		for i, p := range res.Snapshots {
			if p.Cash < 0 {
				t.Fatalf("%s: negative cash %v at %d", sc.Name, p.Cash, i)
			}
			if p.Position < 0 {
				t.Fatalf("%s: negative position at %d", sc.Name, i)
			}
			if math.Abs(p.Equity-(p.Cash+float64(p.Position)*p.Price)) > 1e-6 {
				t.Fatalf("%s: equity identity broken at %d: %+v", sc.Name, i, p)
			}
		}

		for _, tr := range res.Trades {
			entryComm := float64(tr.Quantity) * tr.EntryPrice * cfg.CommissionRate
			exitComm := float64(tr.Quantity) * tr.ExitPrice * cfg.CommissionRate
			want := (tr.ExitPrice-tr.EntryPrice)*float64(tr.Quantity) - exitComm - entryComm
			if math.Abs(tr.PnL-want) > 1e-6 {
				t.Errorf("%s: trade PnL = %v, recomputed %v", sc.Name, tr.PnL, want)
			}
			if tr.DateClose.Before(tr.DateOpen) {
				t.Errorf("%s: trade closes before it opens", sc.Name)
			}
		}

		again, err := e.Run(data)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(res, again) {
			t.Errorf("%s: second run differs from first", sc.Name)
		}
	}
}

// ---------------------------------------------------------------------------
// Risk manager
// ---------------------------------------------------------------------------

func TestRiskManagerCheck(t *testing.T) {
	rm := DefaultRiskManager()

	tests := []struct {
		name    string
		sig     domain.Signal
		pos     int64
		entry   float64
		price   float64
		want    RiskAction
		contain string
	}{
		{"stop loss on hold", domain.SignalHold, 10, 100, 95, RiskForceClose, "stop loss"},
		{"take profit on hold", domain.SignalHold, 10, 100, 110, RiskForceClose, "take profit"},
		{"stop beats buy reject", domain.SignalBuy, 10, 100, 90, RiskForceClose, "stop loss"},
		{"buy at limit", domain.SignalBuy, 1, 100, 101, RiskReject, "limit"},
		{"buy flat", domain.SignalBuy, 0, 0, 100, RiskPass, ""},
		{"sell flat", domain.SignalSell, 0, 0, 100, RiskReject, "no position"},
		{"sell long", domain.SignalSell, 5, 100, 102, RiskPass, ""},
		{"unknown entry skips stops", domain.SignalHold, 5, 0, 50, RiskPass, ""},
	}
	for _, tt := range tests {
		got := rm.Check(tt.sig, tt.pos, tt.entry, tt.price)
		if got.Action != tt.want {
			t.Errorf("%s: Action = %s, want %s", tt.name, got.Action, tt.want)
		}
		if !strings.Contains(got.Reason, tt.contain) {
			t.Errorf("%s: Reason = %q, want it to contain %q", tt.name, got.Reason, tt.contain)
		}
	}

	if !rm.Check(domain.SignalBuy, 0, 0, 100).Passed() {
		t.Error("Passed() = false for PASS")
	}
	if !rm.Check(domain.SignalHold, 1, 100, 80).ShouldClose() {
		t.Error("ShouldClose() = false for FORCE_CLOSE")
	}
}

// ---------------------------------------------------------------------------
// Position sizer
// ---------------------------------------------------------------------------

func TestPositionSizer(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name  string
		cfg   SizerConfig
		eq    float64
		cash  float64
		price float64
		in    SizingInputs
		want  int64
	}{
		{"fixed fraction", DefaultSizerConfig(), 100000, 100000, 10, SizingInputs{}, 200},
		{"capped by cash", SizerConfig{RiskFraction: 0.5}, 100000, 1000, 10, SizingInputs{}, 100},
		{"zero price", DefaultSizerConfig(), 100000, 100000, 0, SizingInputs{}, 0},
		{"zero cash", DefaultSizerConfig(), 100000, 0, 10, SizingInputs{}, 0},
		{"atr", SizerConfig{Method: SizingATR, RiskFraction: 0.02, ATRMultiplier: 2}, 100000, 100000, 1, SizingInputs{ATR: 5}, 200},
		{"atr missing falls back", SizerConfig{Method: SizingATR, RiskFraction: 0.02, ATRMultiplier: 2}, 100000, 100000, 10, SizingInputs{}, 200},
		{"kelly", SizerConfig{Method: SizingKelly, RiskFraction: 0.02, KellyFraction: 0.5}, 100000, 100000, 10,
			SizingInputs{WinRate: f(0.75), ProfitLossRatio: f(1)}, 2500},
		{"kelly negative edge", SizerConfig{Method: SizingKelly, KellyFraction: 0.5}, 100000, 100000, 10,
			SizingInputs{WinRate: f(0.2), ProfitLossRatio: f(1)}, 0},
		{"kelly zero ratio", SizerConfig{Method: SizingKelly, KellyFraction: 0.5}, 100000, 100000, 10,
			SizingInputs{WinRate: f(0.6), ProfitLossRatio: f(0)}, 0},
		{"kelly missing falls back", SizerConfig{Method: SizingKelly, RiskFraction: 0.02}, 100000, 100000, 10, SizingInputs{}, 200},
	}
	for _, tt := range tests {
		got := NewPositionSizer(tt.cfg).Calculate(tt.eq, tt.cash, tt.price, tt.in)
		if got != tt.want {
			t.Errorf("%s: Calculate = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestParseSizingMethod(t *testing.T) {
	for _, name := range []string{"", "fixed_fraction", "atr", "kelly"} {
		if _, err := ParseSizingMethod(name); err != nil {
			t.Errorf("ParseSizingMethod(%q): %v", name, err)
		}
	}
	if _, err := ParseSizingMethod("martingale"); err == nil {
		t.Error("ParseSizingMethod(martingale) should fail")
	}
}
