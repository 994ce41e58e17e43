package optimizer

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"quantlab/internal/domain"
	"quantlab/internal/metrics"
)

// ErrUnknownMetric is returned when a ranking metric name is not recognised.
var ErrUnknownMetric = errors.New("unknown metric")

// Metric names a ranking column.
type Metric string

const (
	MetricTotalReturn Metric = "total_return"
	MetricSharpeRatio Metric = "sharpe_ratio"
	MetricMaxDrawdown Metric = "max_drawdown"
	MetricTradeCount  Metric = "trade_count"
)

// Metrics returns every ranking metric.
func Metrics() []Metric {
	return []Metric{MetricMaxDrawdown, MetricSharpeRatio, MetricTotalReturn, MetricTradeCount}
}

// ParseMetric resolves name to a Metric.
func ParseMetric(name string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	if slices.Contains(Metrics(), m) {
		return m, nil
	}
	return "", fmt.Errorf("%w %q (available: total_return, sharpe_ratio, max_drawdown, trade_count)", ErrUnknownMetric, name)
}

// Score is the headline result of one backtest, rounded to four decimals.
type Score struct {
	TotalReturn float64 `json:"total_return"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	TradeCount  int     `json:"trade_count"`
}

// ScoreResult computes the Score of res.
func ScoreResult(res *domain.BacktestResult, cfg metrics.Config) Score {
	if res == nil {
		return Score{}
	}
	return Score{
		TotalReturn: metrics.Round(metrics.TotalReturn(res.EquityCurve), 4),
		SharpeRatio: metrics.Round(metrics.SharpeRatio(res.DailyReturns, cfg), 4),
		MaxDrawdown: metrics.Round(metrics.MaxDrawdown(res.EquityCurve), 4),
		TradeCount:  res.TradeCount(),
	}
}

// Value returns the column m of s.
func (s Score) Value(m Metric) float64 {
	switch m {
	case MetricTotalReturn:
		return s.TotalReturn
	case MetricSharpeRatio:
		return s.SharpeRatio
	case MetricMaxDrawdown:
		return s.MaxDrawdown
	case MetricTradeCount:
		return float64(s.TradeCount)
	}
	return 0
}

// Compare orders a before b when a ranks higher on m. Higher is better for
// every metric except max_drawdown, where the smaller absolute drawdown
// wins.
func (m Metric) Compare(a, b Score) int {
	x, y := a.Value(m), b.Value(m)
	if m == MetricMaxDrawdown {
		x, y = -math.Abs(x), -math.Abs(y)
	}
	switch {
	case x > y:
		return -1
	case x < y:
		return 1
	}
	return 0
}

// Rank stable-sorts rows best first on m, so ties keep their input order.
func Rank[T any](rows []T, m Metric, score func(T) Score) {
	slices.SortStableFunc(rows, func(a, b T) int {
		return m.Compare(score(a), score(b))
	})
}
