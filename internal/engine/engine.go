// Package engine replays a bar series through a strategy, applying risk
// checks, position sizing and simulated fills, and builds the resulting
// equity trace.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"quantlab/internal/broker"
	"quantlab/internal/domain"
	"quantlab/internal/strategy"
)

// Config holds the account and execution parameters for a run.
type Config struct {
	InitialCapital float64      `yaml:"initial_capital" json:"initial_capital"`
	Slippage       float64      `yaml:"slippage" json:"slippage"`
	CommissionRate float64      `yaml:"commission_rate" json:"commission_rate"`
	Sizing         SizingInputs `yaml:"sizing" json:"sizing"`
}

// DefaultConfig returns 100k starting cash, 1bp slippage and 3bp commission.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100000,
		Slippage:       0.0001,
		CommissionRate: 0.0003,
	}
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithBroker replaces the default simulator fill model.
func WithBroker(b broker.Broker) Option {
	return func(e *Engine) { e.broker = b }
}

// account is the engine's mutable cash and position state.
type account struct {
	cash       float64
	position   int64
	entryPrice float64
	entryDate  time.Time
}

func (a *account) equity(price float64) float64 {
	return a.cash + float64(a.position)*price
}

// Engine orchestrates a single-asset, long-only backtest. An Engine is not
// safe for concurrent use; parallel sweeps build one engine per worker.
type Engine struct {
	strategy strategy.Strategy
	risk     *RiskManager
	sizer    *PositionSizer
	broker   broker.Broker
	cfg      Config
	log      *slog.Logger

	acct    account
	history []domain.EquityPoint
	trades  []domain.Trade
}

// NewEngine creates an Engine wired with the given strategy, risk manager
// and sizer. A nil risk manager or sizer falls back to the defaults.
func NewEngine(s strategy.Strategy, risk *RiskManager, sizer *PositionSizer, cfg Config, opts ...Option) *Engine {
	if risk == nil {
		risk = DefaultRiskManager()
	}
	if sizer == nil {
		sizer = NewPositionSizer(DefaultSizerConfig())
	}
	e := &Engine{
		strategy: s,
		risk:     risk,
		sizer:    sizer,
		cfg:      cfg,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.broker == nil {
		e.broker = broker.NewSimulatorBroker(cfg.Slippage, cfg.CommissionRate)
	}
	e.log = e.log.With("component", "engine", "strategy", s.Name())
	e.Reset()
	return e
}

// Reset restores the starting account and clears the strategy, so repeated
// runs over the same series give identical results.
func (e *Engine) Reset() {
	e.acct = account{cash: e.cfg.InitialCapital}
	e.history = nil
	e.trades = nil
	e.strategy.Reset()
}

// Run replays series bar by bar and returns the result. An error from the
// strategy halts the run.
func (e *Engine) Run(series domain.Series) (*domain.BacktestResult, error) {
	e.Reset()

	for _, bar := range series.Bars {
		if err := e.step(bar); err != nil {
			return nil, fmt.Errorf("strategy %s on %s %s: %w",
				e.strategy.Name(), series.Symbol, bar.Date.Format(time.DateOnly), err)
		}
	}

	e.log.Debug("backtest complete",
		"symbol", series.Symbol,
		"bars", series.Len(),
		"trades", len(e.trades),
	)
	return buildResult(e.strategy.Name(), e.cfg.InitialCapital, series, e.history, e.trades), nil
}

// step runs the per-bar protocol: update the strategy, enforce stops on the
// open position, act on the strategy's signal, then record equity.
func (e *Engine) step(bar domain.Bar) error {
	price := bar.Close

	if err := e.strategy.OnBar(bar); err != nil {
		return err
	}

	if e.acct.position > 0 {
		rc := e.risk.Check(domain.SignalHold, e.acct.position, e.acct.entryPrice, price)
		if rc.ShouldClose() {
			e.sell(price, bar.Date, rc.Reason)
		}
	}

	if sig := e.strategy.Signal(); sig != domain.SignalHold {
		var entry float64
		if e.acct.position > 0 {
			entry = e.acct.entryPrice
		}
		rc := e.risk.Check(sig, e.acct.position, entry, price)
		switch {
		case rc.ShouldClose():
			e.sell(price, bar.Date, rc.Reason)
		case rc.Passed():
			if sig == domain.SignalBuy && e.acct.position == 0 {
				e.buy(price, bar.Date)
			} else if sig == domain.SignalSell && e.acct.position > 0 {
				e.sell(price, bar.Date, "strategy exit")
			}
		default:
			e.log.Debug("signal rejected", "signal", sig, "reason", rc.Reason)
		}
	}

	e.history = append(e.history, domain.EquityPoint{
		Date:     bar.Date,
		Equity:   e.acct.equity(price),
		Cash:     e.acct.cash,
		Position: e.acct.position,
		Price:    price,
	})
	return nil
}

func (e *Engine) buy(price float64, date time.Time) {
	fill := e.broker.FillPrice(domain.SignalBuy, price)
	qty := e.sizer.Calculate(e.acct.equity(price), e.acct.cash, fill, e.cfg.Sizing)
	if qty <= 0 {
		return
	}

	value := float64(qty) * fill
	commission := e.broker.Commission(value)
	if value+commission > e.acct.cash {
		qty = int64(math.Floor((e.acct.cash / (1 + e.broker.CommissionRate())) / fill))
		for qty > 0 {
			value = float64(qty) * fill
			commission = e.broker.Commission(value)
			if value+commission <= e.acct.cash {
				break
			}
			qty--
		}
		if qty <= 0 {
			return
		}
	}

	e.acct.cash -= value + commission
	e.acct.position = qty
	e.acct.entryPrice = fill
	e.acct.entryDate = date
	e.strategy.OnFill(domain.SignalBuy)

	e.log.Debug("buy filled", "date", date.Format(time.DateOnly), "qty", qty, "price", fill, "commission", commission)
}

func (e *Engine) sell(price float64, date time.Time, reason string) {
	if e.acct.position <= 0 {
		return
	}

	qty := e.acct.position
	fill := e.broker.FillPrice(domain.SignalSell, price)
	value := float64(qty) * fill
	commission := e.broker.Commission(value)
	entryCommission := e.broker.Commission(float64(qty) * e.acct.entryPrice)

	pnl := (fill-e.acct.entryPrice)*float64(qty) - commission - entryCommission
	var pnlPct float64
	if e.acct.entryPrice > 0 {
		pnlPct = (fill - e.acct.entryPrice) / e.acct.entryPrice
	}

	opened := e.acct.entryDate
	if opened.IsZero() {
		opened = date
	}
	e.trades = append(e.trades, domain.Trade{
		DateOpen:   opened,
		DateClose:  date,
		Side:       domain.TradeSideLong,
		Quantity:   qty,
		EntryPrice: e.acct.entryPrice,
		ExitPrice:  fill,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Commission: commission + entryCommission,
		Reason:     reason,
	})

	e.acct.cash += value - commission
	e.acct.position = 0
	e.acct.entryPrice = 0
	e.acct.entryDate = time.Time{}
	e.strategy.OnFill(domain.SignalSell)

	e.log.Debug("sell filled", "date", date.Format(time.DateOnly), "qty", qty, "price", fill, "pnl", pnl, "reason", reason)
}
