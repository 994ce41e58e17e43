package gather

import (
	"math"
	"sort"
	"strings"

	"quantlab/internal/domain"
	"quantlab/internal/util"
)

// Clean normalises raw bars: dates truncate to UTC midnight, duplicates keep
// the last occurrence, bars sort by date, and missing prices (non-finite or
// non-positive) are forward-filled then back-filled per column. A bar left
// with no valid price is dropped. Negative or non-finite volume becomes 0.
func Clean(bars []domain.Bar) []domain.Bar {
	if len(bars) == 0 {
		return nil
	}

	byDate := make(map[int64]domain.Bar, len(bars))
	for _, b := range bars {
		b.Date = util.Truncate(b.Date)
		b.Symbol = strings.ToUpper(b.Symbol)
		byDate[b.Date.Unix()] = b
	}
	out := make([]domain.Bar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	columns := []func(*domain.Bar) *float64{
		func(b *domain.Bar) *float64 { return &b.Open },
		func(b *domain.Bar) *float64 { return &b.High },
		func(b *domain.Bar) *float64 { return &b.Low },
		func(b *domain.Bar) *float64 { return &b.Close },
	}
	for _, col := range columns {
		fill(out, col)
	}

	kept := out[:0]
	for _, b := range out {
		if !validPrice(b.Close) {
			continue
		}
		if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
			b.Volume = 0
		}
		kept = append(kept, b)
	}
	return kept
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// fill forward-fills then back-fills one price column.
func fill(bars []domain.Bar, col func(*domain.Bar) *float64) {
	last := math.NaN()
	for i := range bars {
		p := col(&bars[i])
		if validPrice(*p) {
			last = *p
		} else if !math.IsNaN(last) {
			*p = last
		}
	}
	next := math.NaN()
	for i := len(bars) - 1; i >= 0; i-- {
		p := col(&bars[i])
		if validPrice(*p) {
			next = *p
		} else if !math.IsNaN(next) {
			*p = next
		}
	}
}
