// Package batch runs a symbol by strategy matrix of backtests and ranks the
// results in a single comparison table.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"quantlab/internal/domain"
	"quantlab/internal/engine"
	"quantlab/internal/metrics"
	"quantlab/internal/optimizer"
	"quantlab/internal/strategy"
	"quantlab/internal/strategy/builtins"
)

// Loader supplies daily bars for a symbol. An empty series means no data.
type Loader interface {
	Load(ctx context.Context, symbol string, start, end time.Time) (domain.Series, error)
}

// Config controls a batch run.
type Config struct {
	Workers  int             `yaml:"workers" json:"workers"`
	Settings engine.Settings `yaml:"-" json:"-"`
	Metrics  metrics.Config  `yaml:"-" json:"-"`
}

// DefaultConfig returns one worker per CPU with sweep settings.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		Settings: engine.SweepSettings(),
		Metrics:  metrics.DefaultConfig(),
	}
}

// Row is one symbol/strategy result.
type Row struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	optimizer.Score
}

// Failure records a symbol or symbol/strategy pair that could not be run.
// Strategy is empty when loading the symbol failed.
type Failure struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy,omitempty"`
	Error    string `json:"error"`
}

// Table is the ranked outcome of a batch run.
type Table struct {
	SortBy   optimizer.Metric `json:"sort_by"`
	Rows     []Row            `json:"rows"`
	Skipped  []string         `json:"skipped,omitempty"`
	Failures []Failure        `json:"failures,omitempty"`
}

// Empty reports whether no backtest produced a row.
func (t *Table) Empty() bool { return t == nil || len(t.Rows) == 0 }

// Option customises a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithProgress registers a callback counting finished symbol/strategy
// pairs.
func WithProgress(fn optimizer.ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// Runner executes batch runs against a Loader.
type Runner struct {
	loader   Loader
	cfg      Config
	log      *slog.Logger
	progress optimizer.ProgressFunc
}

// NewRunner creates a Runner.
func NewRunner(loader Loader, cfg Config, opts ...Option) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	r := &Runner{loader: loader, cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "batch")
	return r
}

type symbolResult struct {
	rows     []Row
	failures []Failure
	skipped  bool
}

// Run backtests every strategy on every symbol between start and end and
// ranks the rows by sortBy, total_return when empty. Invalid strategy
// configs and an unknown sort metric fail before any data is loaded; load
// and run failures are isolated per symbol.
func (r *Runner) Run(ctx context.Context, symbols []string, strategies []strategy.Config, start, end time.Time, sortBy string) (*Table, error) {
	if sortBy == "" {
		sortBy = string(optimizer.MetricTotalReturn)
	}
	metric, err := optimizer.ParseMetric(sortBy)
	if err != nil {
		return nil, err
	}
	for i, sc := range strategies {
		if err := builtins.Validate(sc); err != nil {
			return nil, fmt.Errorf("strategy %d (%s): %w", i+1, sc, err)
		}
	}

	results := make([]symbolResult, len(symbols))
	tracker := optimizer.NewTracker(len(symbols)*len(strategies), r.progress)
	sem := make(chan struct{}, r.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.runSymbol(gctx, sym, strategies, start, end, tracker)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch run: %w", err)
	}

	table := &Table{SortBy: metric, Rows: []Row{}}
	for i, res := range results {
		if res.skipped {
			table.Skipped = append(table.Skipped, symbols[i])
		}
		table.Rows = append(table.Rows, res.rows...)
		table.Failures = append(table.Failures, res.failures...)
	}
	optimizer.Rank(table.Rows, metric, func(row Row) optimizer.Score { return row.Score })

	r.log.Info("batch complete",
		"symbols", len(symbols),
		"strategies", len(strategies),
		"rows", len(table.Rows),
		"skipped", len(table.Skipped),
		"failures", len(table.Failures),
	)
	return table, nil
}

func (r *Runner) runSymbol(ctx context.Context, symbol string, strategies []strategy.Config, start, end time.Time, tracker *optimizer.Tracker) symbolResult {
	var out symbolResult

	series, err := r.loader.Load(ctx, symbol, start, end)
	if err != nil {
		r.log.Warn("load failed", "symbol", symbol, "error", err)
		out.failures = append(out.failures, Failure{Symbol: symbol, Error: err.Error()})
		tracker.Add(len(strategies))
		return out
	}
	if series.Empty() {
		r.log.Info("no data, skipping", "symbol", symbol)
		out.skipped = true
		tracker.Add(len(strategies))
		return out
	}

	for _, sc := range strategies {
		row, err := r.runOne(sc, series)
		if err != nil {
			r.log.Warn("backtest failed", "symbol", symbol, "strategy", sc.String(), "error", err)
			out.failures = append(out.failures, Failure{Symbol: symbol, Strategy: sc.String(), Error: err.Error()})
		} else {
			out.rows = append(out.rows, row)
		}
		tracker.Add(1)
	}
	return out
}

func (r *Runner) runOne(sc strategy.Config, series domain.Series) (Row, error) {
	s, err := builtins.New(sc)
	if err != nil {
		return Row{}, err
	}
	res, err := r.cfg.Settings.Build(s, nil).Run(series)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Symbol:   series.Symbol,
		Strategy: res.StrategyName,
		Score:    optimizer.ScoreResult(res, r.cfg.Metrics),
	}, nil
}
