package engine

import (
	"time"

	"quantlab/internal/domain"
)

// buildResult assembles the immutable result from the recorded history. An
// empty history yields a result carrying only the starting capital.
func buildResult(name string, initial float64, series domain.Series, history []domain.EquityPoint, trades []domain.Trade) *domain.BacktestResult {
	res := &domain.BacktestResult{
		StrategyName:   name,
		InitialCapital: initial,
		FinalEquity:    initial,
		Trades:         append([]domain.Trade(nil), trades...),
	}
	if len(history) == 0 {
		return res
	}

	n := len(history)
	res.Dates = make([]time.Time, n)
	res.EquityCurve = make([]float64, n)
	res.Snapshots = append([]domain.EquityPoint(nil), history...)
	for i, p := range history {
		res.Dates[i] = p.Date
		res.EquityCurve[i] = p.Equity
	}
	res.DailyReturns = pctChange(res.EquityCurve)
	res.FinalEquity = res.EquityCurve[n-1]

	// One history point per bar, so closes align with the equity index.
	if series.Len() == n {
		res.BenchmarkCurve = series.Closes()
		res.BenchmarkReturns = pctChange(res.BenchmarkCurve)
	}
	return res
}

// pctChange returns period-over-period returns with the first value 0. A
// non-positive previous value yields 0.
func pctChange(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i := 1; i < len(xs); i++ {
		if xs[i-1] > 0 {
			out[i] = xs[i]/xs[i-1] - 1
		}
	}
	return out
}
