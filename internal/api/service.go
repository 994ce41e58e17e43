// Package api exposes backtests, parameter sweeps and batch runs over gRPC
// and REST.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quantlab/internal/batch"
	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/engine"
	"quantlab/internal/gather"
	"quantlab/internal/metrics"
	"quantlab/internal/optimizer"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
	"quantlab/internal/strategy/builtins"
)

var (
	// ErrInvalidRequest marks a request that is missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoData is returned when the loader has no bars in the window.
	ErrNoData = errors.New("no data")
	// ErrRunsDisabled is returned by run queries without a run store.
	ErrRunsDisabled = errors.New("run persistence is disabled")
)

// ---------------------------------------------------------------------------
// Requests and responses
// ---------------------------------------------------------------------------

// BacktestRequest runs one strategy over one symbol. A zero Strategy uses
// the configured default, and empty dates use the configured window.
type BacktestRequest struct {
	Symbol   string               `json:"symbol" binding:"required"`
	Strategy strategy.Config      `json:"strategy"`
	Start    string               `json:"start,omitempty"`
	End      string               `json:"end,omitempty"`
	Sizing   *engine.SizingInputs `json:"sizing,omitempty"`
	Save     bool                 `json:"save,omitempty"`
}

// BacktestResponse carries the summary, trades and equity trace of a run.
type BacktestResponse struct {
	RunID    string               `json:"run_id,omitempty"`
	Symbol   string               `json:"symbol"`
	Strategy strategy.Config      `json:"strategy"`
	Summary  metrics.Summary      `json:"summary"`
	Trades   []domain.Trade       `json:"trades"`
	Equity   []domain.EquityPoint `json:"equity"`
}

// GridRequest sweeps a parameter space. An empty space uses the configured
// one.
type GridRequest struct {
	Symbol       string               `json:"symbol" binding:"required"`
	Strategy     string               `json:"strategy"`
	ParamSpace   optimizer.ParamSpace `json:"param_space,omitempty"`
	Start        string               `json:"start,omitempty"`
	End          string               `json:"end,omitempty"`
	TargetMetric string               `json:"target_metric,omitempty"`
	Save         bool                 `json:"save,omitempty"`
}

// GridResponse wraps a ranked grid search.
type GridResponse struct {
	RunID string `json:"run_id,omitempty"`
	*optimizer.GridSearchResult
}

// WalkForwardRequest is a GridRequest with fold settings. Zero values use
// the configured ones.
type WalkForwardRequest struct {
	GridRequest
	NSplits    int     `json:"n_splits,omitempty"`
	TrainRatio float64 `json:"train_ratio,omitempty"`
}

// WalkForwardResponse wraps a walk-forward summary.
type WalkForwardResponse struct {
	RunID string `json:"run_id,omitempty"`
	*optimizer.WalkForwardSummary
}

// BatchRequest runs every strategy over every symbol. Empty lists use the
// configured ones; with no configured symbols the universe file in the data
// directory, or the built-in ETF list, is used.
type BatchRequest struct {
	Symbols    []string          `json:"symbols,omitempty"`
	Strategies []strategy.Config `json:"strategies,omitempty"`
	Start      string            `json:"start,omitempty"`
	End        string            `json:"end,omitempty"`
	SortBy     string            `json:"sort_by,omitempty"`
	Save       bool              `json:"save,omitempty"`
}

// BatchResponse wraps a ranked batch table.
type BatchResponse struct {
	RunID string `json:"run_id,omitempty"`
	*batch.Table
}

// StrategyInfo describes one registered strategy.
type StrategyInfo struct {
	Name     string          `json:"name"`
	Defaults strategy.Params `json:"defaults"`
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithRunStore enables saving and querying runs.
func WithRunStore(rs store.RunStore) ServiceOption {
	return func(s *Service) { s.runs = rs }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// Service implements the research operations shared by the gRPC and REST
// surfaces.
type Service struct {
	cfg    *config.Config
	loader batch.Loader
	runs   store.RunStore
	log    *slog.Logger
	now    func() time.Time
}

// NewService creates a Service reading bars through loader.
func NewService(cfg *config.Config, loader batch.Loader, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:    cfg,
		loader: loader,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "api")
	return s
}

// Strategies lists the registered strategies with their defaults.
func (s *Service) Strategies() []StrategyInfo {
	kinds := strategy.Kinds()
	out := make([]StrategyInfo, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, StrategyInfo{Name: string(k), Defaults: builtins.Defaults(k)})
	}
	return out
}

// Backtest runs one strategy over one symbol.
func (s *Service) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	sc := req.Strategy
	if sc.Name == "" {
		sc = s.cfg.Strategy
	}
	strat, err := builtins.New(sc)
	if err != nil {
		return nil, err
	}
	series, start, end, err := s.load(ctx, req.Symbol, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	settings := s.cfg.Settings()
	if req.Sizing != nil {
		settings.Engine.Sizing = *req.Sizing
	}
	res, err := settings.Build(strat, s.log).Run(series)
	if err != nil {
		return nil, fmt.Errorf("running %s on %s: %w", sc.Name, series.Symbol, err)
	}

	resp := &BacktestResponse{
		Symbol:   series.Symbol,
		Strategy: sc,
		Summary:  metrics.Summarize(res, s.cfg.Metrics),
		Trades:   res.Trades,
		Equity:   res.Snapshots,
	}
	if req.Save {
		run := &store.Run{
			Kind:        store.RunBacktest,
			Symbol:      series.Symbol,
			Strategy:    res.StrategyName,
			Params:      toJSON(sc.Params),
			Start:       start,
			End:         end,
			FinalEquity: res.FinalEquity,
			TotalReturn: resp.Summary.TotalReturn,
			SharpeRatio: resp.Summary.SharpeRatio,
			MaxDrawdown: resp.Summary.MaxDrawdown,
			TradeCount:  resp.Summary.TradeCount,
			Report:      toJSON(resp.Summary),
			Trades:      res.Trades,
		}
		if resp.RunID, err = s.save(ctx, run); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// GridSearch ranks every combination of a parameter space.
func (s *Service) GridSearch(ctx context.Context, req GridRequest) (*GridResponse, error) {
	opt, name, space, err := s.optimizer(req, 0, 0)
	if err != nil {
		return nil, err
	}
	series, start, end, err := s.load(ctx, req.Symbol, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	result, err := opt.GridSearch(ctx, name, space, series)
	if err != nil {
		return nil, err
	}
	resp := &GridResponse{GridSearchResult: result}
	if req.Save {
		run := &store.Run{
			Kind:     store.RunGridSearch,
			Symbol:   series.Symbol,
			Strategy: string(result.Strategy),
			Start:    start,
			End:      end,
			Report:   toJSON(result),
		}
		if best, ok := result.Best(); ok {
			run.Params = toJSON(best.Params)
			run.TotalReturn = best.TotalReturn
			run.SharpeRatio = best.SharpeRatio
			run.MaxDrawdown = best.MaxDrawdown
			run.TradeCount = best.TradeCount
		}
		if resp.RunID, err = s.save(ctx, run); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// WalkForward runs a rolling out-of-sample evaluation.
func (s *Service) WalkForward(ctx context.Context, req WalkForwardRequest) (*WalkForwardResponse, error) {
	opt, name, space, err := s.optimizer(req.GridRequest, req.NSplits, req.TrainRatio)
	if err != nil {
		return nil, err
	}
	series, start, end, err := s.load(ctx, req.Symbol, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	summary, err := opt.WalkForward(ctx, name, space, series)
	if err != nil {
		return nil, err
	}
	resp := &WalkForwardResponse{WalkForwardSummary: summary}
	if req.Save {
		run := &store.Run{
			Kind:        store.RunWalkForward,
			Symbol:      series.Symbol,
			Strategy:    string(summary.Strategy),
			Start:       start,
			End:         end,
			TotalReturn: summary.AvgTestReturn,
			Report:      toJSON(summary),
		}
		if resp.RunID, err = s.save(ctx, run); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Batch runs a symbol-by-strategy matrix.
func (s *Service) Batch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = s.cfg.Batch.Symbols
	}
	if len(symbols) == 0 {
		symbols = gather.LoadUniverse(s.cfg.Storage.DataDir)
	}
	strategies := req.Strategies
	if len(strategies) == 0 {
		strategies = s.cfg.Batch.Strategies
	}
	if len(symbols) == 0 || len(strategies) == 0 {
		return nil, fmt.Errorf("%w: batch needs at least one symbol and one strategy", ErrInvalidRequest)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = s.cfg.Batch.SortBy
	}
	start, end, err := s.window(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	runner := batch.NewRunner(s.loader, s.cfg.BatchConfig(), batch.WithLogger(s.log))
	table, err := runner.Run(ctx, symbols, strategies, start, end, sortBy)
	if err != nil {
		return nil, err
	}
	resp := &BatchResponse{Table: table}
	if req.Save {
		names := make([]string, len(strategies))
		for i, sc := range strategies {
			names[i] = sc.String()
		}
		run := &store.Run{
			Kind:     store.RunBatch,
			Symbol:   strings.Join(symbols, ","),
			Strategy: strings.Join(names, ";"),
			Start:    start,
			End:      end,
			Report:   toJSON(table),
		}
		if resp.RunID, err = s.save(ctx, run); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Runs lists the most recent saved runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if s.runs == nil {
		return nil, ErrRunsDisabled
	}
	return s.runs.ListRuns(ctx, limit)
}

// Run returns one saved run with its trades.
func (s *Service) Run(ctx context.Context, id string) (*store.Run, error) {
	if s.runs == nil {
		return nil, ErrRunsDisabled
	}
	return s.runs.GetRun(ctx, id)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *Service) optimizer(req GridRequest, nSplits int, trainRatio float64) (*optimizer.Optimizer, string, optimizer.ParamSpace, error) {
	name := req.Strategy
	if name == "" {
		name = s.cfg.Strategy.Name
	}
	space := req.ParamSpace
	if len(space) == 0 {
		space = s.cfg.Optimizer.ParamSpace
	}
	if len(space) == 0 {
		return nil, "", nil, fmt.Errorf("%w: param_space is required", ErrInvalidRequest)
	}

	oc := s.cfg.OptimizerConfig()
	if req.TargetMetric != "" {
		m, err := optimizer.ParseMetric(req.TargetMetric)
		if err != nil {
			return nil, "", nil, err
		}
		oc.TargetMetric = m
	}
	if nSplits != 0 {
		oc.NSplits = nSplits
	}
	if trainRatio != 0 {
		oc.TrainRatio = trainRatio
	}
	opt, err := optimizer.New(oc, optimizer.WithLogger(s.log))
	if err != nil {
		return nil, "", nil, err
	}
	return opt, name, space, nil
}

func (s *Service) window(startStr, endStr string) (time.Time, time.Time, error) {
	start, end, err := s.cfg.DateRange(s.now())
	if err != nil {
		return start, end, err
	}
	if startStr != "" {
		if start, err = time.Parse(time.DateOnly, startStr); err != nil {
			return start, end, fmt.Errorf("%w: start %q is not YYYY-MM-DD", ErrInvalidRequest, startStr)
		}
	}
	if endStr != "" {
		if end, err = time.Parse(time.DateOnly, endStr); err != nil {
			return start, end, fmt.Errorf("%w: end %q is not YYYY-MM-DD", ErrInvalidRequest, endStr)
		}
	}
	if start.After(end) {
		return start, end, fmt.Errorf("%w: start %s after end %s", ErrInvalidRequest,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return start, end, nil
}

func (s *Service) load(ctx context.Context, symbol, startStr, endStr string) (domain.Series, time.Time, time.Time, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.Series{}, time.Time{}, time.Time{}, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	start, end, err := s.window(startStr, endStr)
	if err != nil {
		return domain.Series{}, start, end, err
	}
	series, err := s.loader.Load(ctx, symbol, start, end)
	if err != nil {
		return domain.Series{}, start, end, fmt.Errorf("loading bars for %s: %w", symbol, err)
	}
	if series.Empty() {
		return domain.Series{}, start, end, fmt.Errorf("%w: %s has no bars between %s and %s", ErrNoData,
			symbol, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return series, start, end, nil
}

func (s *Service) save(ctx context.Context, run *store.Run) (string, error) {
	if s.runs == nil {
		return "", ErrRunsDisabled
	}
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("saving %s run: %w", run.Kind, err)
	}
	s.log.Info("run saved", "id", run.ID, "kind", run.Kind, "symbol", run.Symbol)
	return run.ID, nil
}

func toJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
