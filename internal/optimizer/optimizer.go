// Package optimizer searches strategy parameter spaces with an exhaustive
// grid and validates the winners out of sample with walk-forward folds.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"quantlab/internal/domain"
	"quantlab/internal/engine"
	"quantlab/internal/metrics"
	"quantlab/internal/strategy"
	"quantlab/internal/strategy/builtins"
)

// ErrInvalidConfig is returned when the optimizer settings cannot be used.
var ErrInvalidConfig = errors.New("invalid optimizer config")

// Config controls grid search and walk-forward validation.
type Config struct {
	NSplits         int     `yaml:"n_splits" json:"n_splits"`
	TrainRatio      float64 `yaml:"train_ratio" json:"train_ratio"`
	TargetMetric    Metric  `yaml:"target_metric" json:"target_metric"`
	MaxCombinations int     `yaml:"max_combinations" json:"max_combinations"`
	Workers         int     `yaml:"workers" json:"workers"`

	Settings engine.Settings `yaml:"-" json:"-"`
	Metrics  metrics.Config  `yaml:"-" json:"-"`
}

// DefaultConfig returns 5 folds at a 70/30 split ranked by Sharpe ratio,
// run with sweep settings.
func DefaultConfig() Config {
	return Config{
		NSplits:         5,
		TrainRatio:      0.7,
		TargetMetric:    MetricSharpeRatio,
		MaxCombinations: 1000,
		Workers:         runtime.NumCPU(),
		Settings:        engine.SweepSettings(),
		Metrics:         metrics.DefaultConfig(),
	}
}

// Validate checks the fold and ranking settings.
func (c Config) Validate() error {
	if c.NSplits < 1 {
		return fmt.Errorf("%w: n_splits must be at least 1, got %d", ErrInvalidConfig, c.NSplits)
	}
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		return fmt.Errorf("%w: train_ratio must be in (0, 1), got %v", ErrInvalidConfig, c.TrainRatio)
	}
	if _, err := ParseMetric(string(c.TargetMetric)); err != nil {
		return err
	}
	return nil
}

// ProgressFunc receives the number of finished units out of total. Calls
// are serialised and done never decreases.
type ProgressFunc func(done, total int)

// Option customises an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the optimizer logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) { o.log = l }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Optimizer) { o.progress = fn }
}

// Optimizer runs parameter sweeps. It holds no per-run state and may be
// shared between goroutines.
type Optimizer struct {
	cfg      Config
	log      *slog.Logger
	progress ProgressFunc
}

// New creates an Optimizer. A non-positive worker count means one worker
// per CPU.
func New(cfg Config, opts ...Option) (*Optimizer, error) {
	if cfg.TargetMetric == "" {
		cfg.TargetMetric = MetricSharpeRatio
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	o := &Optimizer{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "optimizer")
	return o, nil
}

// Config returns the effective configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Row is one successful grid-search combination.
type Row struct {
	Params strategy.Params `json:"params"`
	Score
}

// Failure records a combination that could not be run.
type Failure struct {
	Params strategy.Params `json:"params"`
	Error  string          `json:"error"`
}

// GridSearchResult holds ranked rows, best first, plus isolated failures.
type GridSearchResult struct {
	Strategy     strategy.Kind `json:"strategy"`
	Symbol       string        `json:"symbol"`
	Target       Metric        `json:"target_metric"`
	Params       []string      `json:"params"`
	Combinations int           `json:"combinations"`
	Rows         []Row         `json:"rows"`
	Failures     []Failure     `json:"failures,omitempty"`
}

// Best returns the top-ranked row.
func (r *GridSearchResult) Best() (Row, bool) {
	if r == nil || len(r.Rows) == 0 {
		return Row{}, false
	}
	return r.Rows[0], true
}

// GridSearch runs every combination of space for the named strategy over
// series and ranks the results by the target metric. Strategy construction
// or run errors for a single combination land in Failures; an unknown
// strategy, an invalid space or a cancelled context fail the whole search.
func (o *Optimizer) GridSearch(ctx context.Context, name string, space ParamSpace, series domain.Series) (*GridSearchResult, error) {
	return o.gridSearch(ctx, name, space, series, o.progress)
}

func (o *Optimizer) gridSearch(ctx context.Context, name string, space ParamSpace, series domain.Series, progress ProgressFunc) (*GridSearchResult, error) {
	kind, err := strategy.ParseKind(name)
	if err != nil {
		return nil, err
	}
	combos, err := space.Combinations()
	if err != nil {
		return nil, err
	}
	if o.cfg.MaxCombinations > 0 && len(combos) > o.cfg.MaxCombinations {
		o.log.Warn("combination count exceeds limit, running anyway",
			"strategy", kind,
			"combinations", len(combos),
			"limit", o.cfg.MaxCombinations,
		)
	}

	type outcome struct {
		score Score
		err   error
	}
	results := make([]outcome, len(combos))
	tracker := NewTracker(len(combos), progress)
	sem := make(chan struct{}, o.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i, params := range combos {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := gctx.Err(); err != nil {
				return err
			}
			score, err := o.runSingle(strategy.Config{Name: string(kind), Params: params}, series)
			results[i] = outcome{score: score, err: err}
			tracker.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("grid search %s: %w", kind, err)
	}

	res := &GridSearchResult{
		Strategy:     kind,
		Symbol:       series.Symbol,
		Target:       o.cfg.TargetMetric,
		Params:       space.Names(),
		Combinations: len(combos),
		Rows:         make([]Row, 0, len(combos)),
	}
	for i, r := range results {
		if r.err != nil {
			res.Failures = append(res.Failures, Failure{Params: combos[i], Error: r.err.Error()})
			continue
		}
		res.Rows = append(res.Rows, Row{Params: combos[i], Score: r.score})
	}
	Rank(res.Rows, o.cfg.TargetMetric, func(r Row) Score { return r.Score })

	o.log.Info("grid search complete",
		"strategy", kind,
		"symbol", series.Symbol,
		"bars", series.Len(),
		"combinations", len(combos),
		"failures", len(res.Failures),
	)
	return res, nil
}

// runSingle builds a fresh strategy and engine for cfg and scores one run.
func (o *Optimizer) runSingle(cfg strategy.Config, series domain.Series) (Score, error) {
	s, err := builtins.New(cfg)
	if err != nil {
		return Score{}, err
	}
	res, err := o.cfg.Settings.Build(s, nil).Run(series)
	if err != nil {
		return Score{}, err
	}
	return ScoreResult(res, o.cfg.Metrics), nil
}

// Tracker serialises progress reports from concurrent workers.
type Tracker struct {
	mu    sync.Mutex
	done  int
	total int
	fn    ProgressFunc
}

// NewTracker creates a Tracker reporting to fn, which may be nil.
func NewTracker(total int, fn ProgressFunc) *Tracker {
	return &Tracker{total: total, fn: fn}
}

// Add marks n more units done.
func (t *Tracker) Add(n int) {
	if t.fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += n
	t.fn(t.done, t.total)
}
