package report

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"quantlab/internal/batch"
	"quantlab/internal/domain"
	"quantlab/internal/metrics"
	"quantlab/internal/optimizer"
	"quantlab/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Money formats v with two decimals.
func Money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Pct formats a ratio as a percentage with two decimals.
func Pct(v float64) string {
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}

func ratio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func formatParams(p map[string]any) string {
	keys := slices.Sorted(maps.Keys(p))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, " ")
}

func render(headers []string, rows [][]string) string {
	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = headerStyle.Render(h)
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(styled...).
		Rows(rows...).
		StyleFunc(func(_, _ int) lipgloss.Style { return cellStyle }).
		Render()
}

// SummaryTable renders the headline statistics of one backtest.
func SummaryTable(s metrics.Summary) string {
	sortino := ratio(s.SortinoRatio)
	if s.NoDownside {
		sortino = "n/a (no downside)"
	}
	plr := ratio(s.ProfitLossRatio)
	if s.NoLosingTrades {
		plr = "n/a (no losses)"
	}

	rows := [][]string{
		{"Initial capital", Money(s.InitialCapital)},
		{"Final equity", Money(s.FinalEquity)},
		{"Bars", strconv.Itoa(s.Bars)},
		{"Total return", Pct(s.TotalReturn)},
		{"Annualized return", Pct(s.AnnualizedReturn)},
		{"Benchmark return", Pct(s.BenchmarkReturn)},
		{"Alpha / beta", ratio(s.Alpha) + " / " + ratio(s.Beta)},
		{"Max drawdown", Pct(s.MaxDrawdown)},
		{"Recovery days", recovery(s.RecoveryDays)},
		{"Volatility", Pct(s.AnnualVolatility)},
		{"Sharpe", ratio(s.SharpeRatio)},
		{"Sortino", sortino},
		{"Calmar", ratio(s.CalmarRatio)},
		{"Trades", strconv.Itoa(s.TradeCount)},
		{"Win rate", Pct(s.WinRate)},
		{"Profit/loss ratio", plr},
		{"Avg holding days", ratio(s.AvgHoldingDays)},
		{"Max consecutive losses", strconv.Itoa(s.MaxConsecutiveLosses)},
	}
	return titleStyle.Render(s.Strategy) + "\n" + render([]string{"Metric", "Value"}, rows)
}

func recovery(days int) string {
	if days < 0 {
		return "not recovered"
	}
	return strconv.Itoa(days)
}

// TradesTable renders the last limit trades, or all when limit <= 0.
func TradesTable(trades []domain.Trade, limit int) string {
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.DateOpen.Format(time.DateOnly),
			t.DateClose.Format(time.DateOnly),
			strconv.FormatInt(t.Quantity, 10),
			Money(t.EntryPrice),
			Money(t.ExitPrice),
			Money(t.PnL),
			Pct(t.PnLPct),
			t.Reason,
		})
	}
	return render([]string{"Open", "Close", "Qty", "Entry", "Exit", "PnL", "PnL %", "Reason"}, rows)
}

func scoreRow(s optimizer.Score) []string {
	return []string{Pct(s.TotalReturn), ratio(s.SharpeRatio), Pct(s.MaxDrawdown), strconv.Itoa(s.TradeCount)}
}

// GridTable renders the top rows of a grid search, all when top <= 0.
func GridTable(res *optimizer.GridSearchResult, top int) string {
	rows := res.Rows
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}
	out := make([][]string, 0, len(rows))
	for i, r := range rows {
		out = append(out, append([]string{strconv.Itoa(i + 1), formatParams(r.Params)}, scoreRow(r.Score)...))
	}
	title := fmt.Sprintf("%s %s: %d combinations ranked by %s", res.Strategy, res.Symbol, res.Combinations, res.Target)
	s := titleStyle.Render(title) + "\n" +
		render([]string{"#", "Params", "Return", "Sharpe", "Max DD", "Trades"}, out)
	if n := len(res.Failures); n > 0 {
		s += "\n" + warnStyle.Render(fmt.Sprintf("%d combinations failed", n))
	}
	return s
}

// FoldsTable renders a walk-forward summary.
func FoldsTable(s *optimizer.WalkForwardSummary) string {
	rows := make([][]string, 0, len(s.Folds))
	for _, f := range s.Folds {
		rows = append(rows, []string{
			strconv.Itoa(f.Fold),
			f.TestStart.Format(time.DateOnly) + " .. " + f.TestEnd.Format(time.DateOnly),
			formatParams(f.BestParams),
			Pct(f.Train.TotalReturn),
			Pct(f.Test.TotalReturn),
			ratio(f.Test.SharpeRatio),
		})
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s %s walk-forward (%d splits, train %s)",
		s.Strategy, s.Symbol, s.Splits, Pct(s.TrainRatio))))
	b.WriteString("\n")
	b.WriteString(render([]string{"Fold", "Test window", "Best params", "Train", "Test", "Test Sharpe"}, rows))
	b.WriteString(fmt.Sprintf("\navg train %s, avg test %s, confidence %s",
		Pct(s.AvgTrainReturn), Pct(s.AvgTestReturn), s.Confidence))
	if s.Decay != nil {
		b.WriteString(", decay " + ratio(*s.Decay))
	}
	if s.Warning != "" {
		b.WriteString("\n" + warnStyle.Render(s.Warning))
	}
	return b.String()
}

// BatchTable renders a ranked batch table.
func BatchTable(t *batch.Table) string {
	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		rows = append(rows, append([]string{r.Symbol, r.Strategy}, scoreRow(r.Score)...))
	}
	s := titleStyle.Render("sorted by "+string(t.SortBy)) + "\n" +
		render([]string{"Symbol", "Strategy", "Return", "Sharpe", "Max DD", "Trades"}, rows)
	if len(t.Skipped) > 0 {
		s += "\n" + warnStyle.Render("no data: "+strings.Join(t.Skipped, ", "))
	}
	for _, f := range t.Failures {
		name := f.Symbol
		if f.Strategy != "" {
			name += " " + f.Strategy
		}
		s += "\n" + warnStyle.Render(name+": "+f.Error)
	}
	return s
}

// RunsTable renders saved runs.
func RunsTable(runs []store.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Local().Format(time.DateTime),
			r.Kind,
			r.Symbol,
			r.Strategy,
			Pct(r.TotalReturn),
			ratio(r.SharpeRatio),
		})
	}
	return render([]string{"ID", "Created", "Kind", "Symbol", "Strategy", "Return", "Sharpe"}, rows)
}
