package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Date.IsZero() {
		t.Error("expected zero Date for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 || bar.Volume != 0 {
		t.Error("expected zero OHLCV values for zero-value Bar")
	}

	// Verify enum constants are defined correctly.
	if SignalBuy != "BUY" {
		t.Errorf("SignalBuy = %q, want %q", SignalBuy, "BUY")
	}
	if SignalSell != "SELL" {
		t.Errorf("SignalSell = %q, want %q", SignalSell, "SELL")
	}
	if SignalHold != "HOLD" {
		t.Errorf("SignalHold = %q, want %q", SignalHold, "HOLD")
	}
}

func TestSeries(t *testing.T) {
	d0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewSeries("SPY", []Bar{
		{Date: d0, Close: 10},
		{Date: d0.AddDate(0, 0, 1), Close: 11},
		{Date: d0.AddDate(0, 0, 2), Close: 12},
	})

	if s.Empty() {
		t.Fatal("series with bars reported empty")
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if !s.First().Equal(d0) {
		t.Errorf("First() = %v, want %v", s.First(), d0)
	}
	if got := s.Slice(1, 3); got.Len() != 2 || got.Bars[0].Close != 11 || got.Symbol != "SPY" {
		t.Errorf("Slice(1,3) = %+v", got)
	}
	closes := s.Closes()
	if len(closes) != 3 || closes[2] != 12 {
		t.Errorf("Closes() = %v", closes)
	}

	var empty Series
	if !empty.Empty() {
		t.Error("zero Series should be empty")
	}
	if !empty.Last().IsZero() {
		t.Error("Last() of empty series should be zero time")
	}
}

func TestBacktestResultEmpty(t *testing.T) {
	var r *BacktestResult
	if !r.Empty() {
		t.Error("nil result should be empty")
	}
	if r.TradeCount() != 0 {
		t.Errorf("TradeCount() = %d, want 0", r.TradeCount())
	}

	r = &BacktestResult{EquityCurve: []float64{100}}
	if r.Empty() {
		t.Error("result with equity should not be empty")
	}
}

func TestTradeHoldingDays(t *testing.T) {
	open := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tr := Trade{DateOpen: open, DateClose: open.AddDate(0, 0, 5)}
	if got := tr.HoldingDays(); got != 5 {
		t.Errorf("HoldingDays() = %d, want 5", got)
	}
}
