package metrics

import (
	"math"

	"quantlab/internal/domain"
)

// Summary collects every headline statistic for one backtest. Unbounded
// ratios are stored as 0 with the matching flag set so the summary always
// encodes as JSON.
type Summary struct {
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
	Bars           int     `json:"bars"`
	CalendarDays   int     `json:"calendar_days"`

	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Alpha            float64 `json:"alpha"`
	Beta             float64 `json:"beta"`
	BenchmarkReturn  float64 `json:"benchmark_return"`

	MaxDrawdown      float64 `json:"max_drawdown"`
	RecoveryDays     int     `json:"recovery_days"`
	AnnualVolatility float64 `json:"annual_volatility"`

	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`
	NoDownside   bool    `json:"no_downside,omitempty"`

	TradeCount           int     `json:"trade_count"`
	WinRate              float64 `json:"win_rate"`
	ProfitLossRatio      float64 `json:"profit_loss_ratio"`
	Expectancy           float64 `json:"expectancy"`
	NoLosingTrades       bool    `json:"no_losing_trades,omitempty"`
	TradeFrequency       float64 `json:"trade_frequency"`
	AvgHoldingDays       float64 `json:"avg_holding_days"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`

	Monthly []PeriodReturn `json:"monthly,omitempty"`
	Yearly  []PeriodReturn `json:"yearly,omitempty"`
}

// Summarize computes the full statistic set for res.
func Summarize(res *domain.BacktestResult, cfg Config) Summary {
	s := Summary{}
	if res == nil {
		return s
	}
	s.Strategy = res.StrategyName
	s.InitialCapital = res.InitialCapital
	s.FinalEquity = res.FinalEquity
	s.Bars = len(res.EquityCurve)
	s.TradeCount = len(res.Trades)
	if res.Empty() {
		return s
	}

	if n := len(res.Dates); n >= 2 {
		s.CalendarDays = int(res.Dates[n-1].Sub(res.Dates[0]).Hours() / 24)
	}

	s.TotalReturn = TotalReturn(res.EquityCurve)
	s.AnnualizedReturn = AnnualizedReturn(s.TotalReturn, s.CalendarDays)
	if len(res.BenchmarkReturns) > 0 {
		s.Alpha, s.Beta = AlphaBeta(res.DailyReturns, res.BenchmarkReturns, cfg)
		s.BenchmarkReturn = TotalReturn(res.BenchmarkCurve)
	}

	s.MaxDrawdown = MaxDrawdown(res.EquityCurve)
	s.RecoveryDays = MaxDrawdownRecoveryDays(res.EquityCurve)
	s.AnnualVolatility = AnnualVolatility(res.DailyReturns, cfg)

	s.SharpeRatio = SharpeRatio(res.DailyReturns, cfg)
	s.SortinoRatio = SortinoRatio(res.DailyReturns, cfg)
	if math.IsInf(s.SortinoRatio, 0) {
		s.SortinoRatio = 0
		s.NoDownside = true
	}
	s.CalmarRatio = CalmarRatio(s.AnnualizedReturn, s.MaxDrawdown)

	s.WinRate = WinRate(res.Trades)
	s.ProfitLossRatio = ProfitLossRatio(res.Trades)
	s.Expectancy = Expectancy(res.Trades)
	if math.IsInf(s.ProfitLossRatio, 0) {
		s.ProfitLossRatio = 0
		s.Expectancy = 0
		s.NoLosingTrades = true
	}
	s.TradeFrequency = TradeFrequency(res.Trades, s.Bars)
	s.AvgHoldingDays = AvgHoldingPeriod(res.Trades)
	s.MaxConsecutiveLosses = MaxConsecutiveLosses(res.Trades)
	s.MaxConsecutiveWins = MaxConsecutiveWins(res.Trades)

	s.Monthly = MonthlyReturns(res.Dates, res.DailyReturns)
	s.Yearly = YearlyReturns(res.Dates, res.DailyReturns)
	return s
}
