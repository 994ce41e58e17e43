// Package metrics computes performance statistics for backtest results:
// returns, drawdowns, risk-adjusted ratios and trade statistics.
package metrics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"quantlab/internal/domain"
)

// Config carries the market conventions the ratios depend on.
type Config struct {
	RiskFreeRate       float64 `yaml:"risk_free_rate" json:"risk_free_rate"`
	TradingDaysPerYear int     `yaml:"trading_days_per_year" json:"trading_days_per_year"`
}

// DefaultConfig returns a zero risk-free rate and 252 trading days.
func DefaultConfig() Config {
	return Config{RiskFreeRate: 0, TradingDaysPerYear: 252}
}

func (c Config) days() float64 {
	if c.TradingDaysPerYear <= 0 {
		return 252
	}
	return float64(c.TradingDaysPerYear)
}

func (c Config) dailyRiskFree() float64 {
	return c.RiskFreeRate / c.days()
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

// TotalReturn is last/first - 1, or 0 for fewer than two points.
func TotalReturn(equity []float64) float64 {
	if len(equity) < 2 || equity[0] == 0 {
		return 0
	}
	return equity[len(equity)-1]/equity[0] - 1
}

// AnnualizedReturn compounds total over calendarDays to a 365-day year.
func AnnualizedReturn(total float64, calendarDays int) float64 {
	if calendarDays <= 0 || total <= -1 {
		return 0
	}
	return math.Pow(1+total, 365/float64(calendarDays)) - 1
}

// AlphaBeta regresses strategy returns on benchmark returns, returning
// annualised alpha and beta. Series are aligned on their common prefix.
func AlphaBeta(strategy, benchmark []float64, cfg Config) (alpha, beta float64) {
	n := min(len(strategy), len(benchmark))
	if n < 2 {
		return 0, 0
	}
	s, b := strategy[:n], benchmark[:n]

	// A flat benchmark has no slope; alpha is then the mean excess return.
	intercept := stat.Mean(s, nil)
	if stat.Variance(b, nil) > 0 {
		intercept, beta = stat.LinearRegression(b, s, nil, false)
	}

	rf := cfg.dailyRiskFree()
	alphaDaily := intercept - rf*(1-beta)
	return alphaDaily * cfg.days(), beta
}

// ---------------------------------------------------------------------------
// Risk
// ---------------------------------------------------------------------------

// DrawdownSeries returns (equity - running peak) / running peak per point.
func DrawdownSeries(equity []float64) []float64 {
	out := make([]float64, len(equity))
	peak := math.Inf(-1)
	for i, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = (v - peak) / peak
		}
	}
	return out
}

// MaxDrawdown returns the most negative drawdown, 0 when none.
func MaxDrawdown(equity []float64) float64 {
	var mdd float64
	for _, d := range DrawdownSeries(equity) {
		if d < mdd {
			mdd = d
		}
	}
	return mdd
}

// MaxDrawdownRecoveryDays returns the number of points from the deepest
// trough until equity regains the preceding peak, or -1 if it never does.
func MaxDrawdownRecoveryDays(equity []float64) int {
	if len(equity) < 2 {
		return 0
	}
	dd := DrawdownSeries(equity)
	trough := 0
	for i, d := range dd {
		if d < dd[trough] {
			trough = i
		}
	}

	peak := equity[0]
	for _, v := range equity[:trough+1] {
		peak = math.Max(peak, v)
	}
	for i := trough; i < len(equity); i++ {
		if equity[i] >= peak {
			return i - trough
		}
	}
	return -1
}

// AnnualVolatility is the sample standard deviation of daily returns scaled
// by the square root of trading days.
func AnnualVolatility(returns []float64, cfg Config) float64 {
	return sampleStd(returns) * math.Sqrt(cfg.days())
}

// ---------------------------------------------------------------------------
// Efficiency
// ---------------------------------------------------------------------------

// SharpeRatio annualises mean excess daily return over its sample standard
// deviation. Zero deviation yields 0.
func SharpeRatio(returns []float64, cfg Config) float64 {
	std := sampleStd(returns)
	if std == 0 {
		return 0
	}
	return (mean(returns) - cfg.dailyRiskFree()) / std * math.Sqrt(cfg.days())
}

// SortinoRatio is SharpeRatio using downside deviation. With no downside it
// returns +Inf when the mean beats the risk-free rate and 0 otherwise.
func SortinoRatio(returns []float64, cfg Config) float64 {
	if len(returns) == 0 {
		return 0
	}
	rf := cfg.dailyRiskFree()
	var losses []float64
	for _, r := range returns {
		if x := r - rf; x < 0 {
			losses = append(losses, x)
		}
	}
	m := mean(returns)
	if len(losses) == 0 {
		if m > rf {
			return math.Inf(1)
		}
		return 0
	}
	downside := math.Sqrt(stat.MomentAbout(2, losses, 0, nil))
	if downside == 0 {
		return 0
	}
	return (m - rf) / downside * math.Sqrt(cfg.days())
}

// CalmarRatio is annual return over the absolute max drawdown.
func CalmarRatio(annualReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return annualReturn / math.Abs(maxDrawdown)
}

// ---------------------------------------------------------------------------
// Trade statistics
// ---------------------------------------------------------------------------

// WinRate is the fraction of trades with positive PnL.
func WinRate(trades []domain.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	var wins int
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// ProfitLossRatio is average win over absolute average loss. It is +Inf when
// there are wins and no losses.
func ProfitLossRatio(trades []domain.Trade) float64 {
	var profit, loss float64
	var nProfit, nLoss int
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			profit += t.PnL
			nProfit++
		case t.PnL < 0:
			loss += t.PnL
			nLoss++
		}
	}
	if nProfit == 0 {
		return 0
	}
	if nLoss == 0 {
		return math.Inf(1)
	}
	avgLoss := math.Abs(loss / float64(nLoss))
	if avgLoss == 0 {
		return math.Inf(1)
	}
	return (profit / float64(nProfit)) / avgLoss
}

// Expectancy is winRate*plRatio - (1-winRate).
func Expectancy(trades []domain.Trade) float64 {
	wr := WinRate(trades)
	plr := ProfitLossRatio(trades)
	if math.IsInf(plr, 1) {
		return plr
	}
	return wr*plr - (1 - wr)
}

// TradeFrequency returns the average number of bars per trade.
func TradeFrequency(trades []domain.Trade, bars int) float64 {
	if len(trades) == 0 || bars <= 0 {
		return 0
	}
	return float64(bars) / float64(len(trades))
}

// AvgHoldingPeriod returns mean calendar days held, counting each trade as
// at least one day.
func AvgHoldingPeriod(trades []domain.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	var total int
	for _, t := range trades {
		total += max(t.HoldingDays(), 1)
	}
	return float64(total) / float64(len(trades))
}

// MaxConsecutiveLosses returns the longest run of losing trades.
func MaxConsecutiveLosses(trades []domain.Trade) int {
	return longestRun(trades, func(t domain.Trade) bool { return t.PnL < 0 })
}

// MaxConsecutiveWins returns the longest run of winning trades.
func MaxConsecutiveWins(trades []domain.Trade) int {
	return longestRun(trades, func(t domain.Trade) bool { return t.PnL > 0 })
}

func longestRun(trades []domain.Trade, match func(domain.Trade) bool) int {
	var best, cur int
	for _, t := range trades {
		if match(t) {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Calendar aggregation
// ---------------------------------------------------------------------------

// PeriodReturn is the compounded return of one calendar month or year.
// Month is 0 for yearly rows.
type PeriodReturn struct {
	Year   int     `json:"year"`
	Month  int     `json:"month,omitempty"`
	Return float64 `json:"return"`
}

// MonthlyReturns compounds daily returns per calendar month, in date order.
func MonthlyReturns(dates []time.Time, returns []float64) []PeriodReturn {
	return compound(dates, returns, func(t time.Time) (int, int) { return t.Year(), int(t.Month()) })
}

// YearlyReturns compounds daily returns per calendar year, in date order.
func YearlyReturns(dates []time.Time, returns []float64) []PeriodReturn {
	return compound(dates, returns, func(t time.Time) (int, int) { return t.Year(), 0 })
}

func compound(dates []time.Time, returns []float64, key func(time.Time) (int, int)) []PeriodReturn {
	n := min(len(dates), len(returns))
	var out []PeriodReturn
	growth := 1.0
	for i := 0; i < n; i++ {
		y, m := key(dates[i])
		if len(out) == 0 || out[len(out)-1].Year != y || out[len(out)-1].Month != m {
			growth = 1
			out = append(out, PeriodReturn{Year: y, Month: m})
		}
		growth *= 1 + returns[i]
		out[len(out)-1].Return = growth - 1
	}
	return out
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// mean and sampleStd return 0 where gonum would return NaN for short input.

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
