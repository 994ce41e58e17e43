// Package report renders backtest, sweep and batch results as CSV files
// and terminal tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"quantlab/internal/batch"
	"quantlab/internal/domain"
	"quantlab/internal/optimizer"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	return nil
}

// WriteTradesCSV writes one row per completed trade.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.DateOpen.Format(time.DateOnly),
			t.DateClose.Format(time.DateOnly),
			t.Side,
			strconv.FormatInt(t.Quantity, 10),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.PnL),
			formatFloat(t.PnLPct),
			formatFloat(t.Commission),
			t.Reason,
		})
	}
	return writeAll(w, []string{
		"date_open", "date_close", "side", "quantity", "entry_price",
		"exit_price", "pnl", "pnl_pct", "commission", "reason",
	}, rows)
}

// WriteEquityCSV writes the per-bar account snapshots.
func WriteEquityCSV(w io.Writer, points []domain.EquityPoint) error {
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, []string{
			p.Date.Format(time.DateOnly),
			formatFloat(p.Equity),
			formatFloat(p.Cash),
			strconv.FormatInt(p.Position, 10),
			formatFloat(p.Price),
		})
	}
	return writeAll(w, []string{"date", "equity", "cash", "position", "price"}, rows)
}

func scoreCells(s optimizer.Score) []string {
	return []string{
		formatFloat(s.TotalReturn),
		formatFloat(s.SharpeRatio),
		formatFloat(s.MaxDrawdown),
		strconv.Itoa(s.TradeCount),
	}
}

var scoreHeader = []string{"total_return", "sharpe_ratio", "max_drawdown", "trade_count"}

// WriteGridCSV writes ranked grid rows with one column per parameter.
func WriteGridCSV(w io.Writer, res *optimizer.GridSearchResult) error {
	header := append(append([]string{"rank"}, res.Params...), scoreHeader...)
	rows := make([][]string, 0, len(res.Rows))
	for i, r := range res.Rows {
		row := []string{strconv.Itoa(i + 1)}
		for _, name := range res.Params {
			row = append(row, fmt.Sprint(r.Params[name]))
		}
		rows = append(rows, append(row, scoreCells(r.Score)...))
	}
	return writeAll(w, header, rows)
}

// WriteBatchCSV writes the ranked batch table.
func WriteBatchCSV(w io.Writer, t *batch.Table) error {
	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		rows = append(rows, append([]string{r.Symbol, r.Strategy}, scoreCells(r.Score)...))
	}
	return writeAll(w, append([]string{"symbol", "strategy"}, scoreHeader...), rows)
}

// WriteFoldsCSV writes one row per usable walk-forward fold.
func WriteFoldsCSV(w io.Writer, s *optimizer.WalkForwardSummary) error {
	rows := make([][]string, 0, len(s.Folds))
	for _, f := range s.Folds {
		rows = append(rows, []string{
			strconv.Itoa(f.Fold),
			f.TrainStart.Format(time.DateOnly),
			f.TrainEnd.Format(time.DateOnly),
			f.TestStart.Format(time.DateOnly),
			f.TestEnd.Format(time.DateOnly),
			formatParams(f.BestParams),
			formatFloat(f.Train.TotalReturn),
			formatFloat(f.Test.TotalReturn),
			formatFloat(f.Test.SharpeRatio),
			formatFloat(f.Test.MaxDrawdown),
		})
	}
	return writeAll(w, []string{
		"fold", "train_start", "train_end", "test_start", "test_end",
		"best_params", "train_return", "test_return", "test_sharpe", "test_max_drawdown",
	}, rows)
}
