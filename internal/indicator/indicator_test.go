package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRingPushEvicts(t *testing.T) {
	r := NewRing(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.Push(v)
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	want := []float64{3, 4, 5}
	got := r.Values()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if r.Get(-1) != 5 || r.Last() != 5 {
		t.Errorf("Get(-1) = %v, want 5", r.Get(-1))
	}
	if r.Get(0) != 3 {
		t.Errorf("Get(0) = %v, want 3", r.Get(0))
	}
	if r.Get(7) != 0 {
		t.Errorf("Get(7) = %v, want 0 for out of range", r.Get(7))
	}
	if r.Max(0, 2) != 4 {
		t.Errorf("Max(0,2) = %v, want 4", r.Max(0, 2))
	}
	if r.Min(1, 3) != 4 {
		t.Errorf("Min(1,3) = %v, want 4", r.Min(1, 3))
	}
	if !almostEqual(r.Mean(), 4) {
		t.Errorf("Mean() = %v, want 4", r.Mean())
	}

	r.Reset()
	if r.Len() != 0 || r.Full() {
		t.Error("Reset() did not empty the ring")
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing(0)
	if r.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", r.Cap())
	}
}

func TestSMA(t *testing.T) {
	s := NewSMA(3)
	if _, ok := s.Update(1); ok {
		t.Error("SMA ready after one value")
	}
	s.Update(2)
	v, ok := s.Update(3)
	if !ok || !almostEqual(v, 2) {
		t.Errorf("SMA = %v, %v; want 2, true", v, ok)
	}
	v, _ = s.Update(10)
	if !almostEqual(v, 5) {
		t.Errorf("SMA = %v, want 5", v)
	}
}

func TestEMASeededWithFirstValue(t *testing.T) {
	e := NewEMA(3) // alpha 0.5
	if v := e.Update(10); v != 10 {
		t.Errorf("first EMA = %v, want 10", v)
	}
	if v := e.Update(20); !almostEqual(v, 15) {
		t.Errorf("second EMA = %v, want 15", v)
	}
	e.Reset()
	if _, ok := e.Value(); ok {
		t.Error("EMA should not be seeded after Reset")
	}
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	m := NewMACD(12, 26, 9)
	for i := 0; i < 50; i++ {
		m.Update(100)
	}
	if !m.Ready() {
		t.Fatal("MACD not ready")
	}
	if m.DIF() != 0 || m.DEA() != 0 || m.Hist() != 0 {
		t.Errorf("flat MACD = %v/%v/%v, want zeros", m.DIF(), m.DEA(), m.Hist())
	}
}

func TestMACDRisingSeriesPositive(t *testing.T) {
	m := NewMACD(3, 6, 3)
	for i := 0; i < 30; i++ {
		m.Update(100 + float64(i))
	}
	if m.DIF() <= 0 {
		t.Errorf("DIF = %v, want > 0 for rising series", m.DIF())
	}
}

func TestATR(t *testing.T) {
	a := NewATR(2)
	a.Update(11, 9, 10) // no previous close
	if _, ok := a.Value(); ok {
		t.Fatal("ATR ready without true ranges")
	}
	a.Update(12, 10, 11) // TR = max(2, 2, 0) = 2
	a.Update(15, 11, 14) // TR = max(4, 4, 0) = 4
	v, ok := a.Value()
	if !ok || !almostEqual(v, 3) {
		t.Errorf("ATR = %v, %v; want 3, true", v, ok)
	}
}

func TestRSI(t *testing.T) {
	r := NewRSI(2)
	r.Update(10)
	r.Update(11)
	if _, ok := r.Value(); ok {
		t.Fatal("RSI ready after one change")
	}
	r.Update(12)
	v, ok := r.Value()
	if !ok || v != 100 {
		t.Errorf("RSI with no losses = %v, want 100", v)
	}
	r.Update(11) // gains {1, 0}, losses {0, 1}
	v, _ = r.Value()
	if !almostEqual(v, 50) {
		t.Errorf("RSI = %v, want 50", v)
	}
}

func TestBollinger(t *testing.T) {
	b := NewBollinger(4, 2)
	for _, v := range []float64{2, 4, 4, 6} {
		b.Update(v)
	}
	bands, ok := b.Value()
	if !ok {
		t.Fatal("Bollinger not ready")
	}
	// mean 4, population std sqrt(2)
	std := math.Sqrt(2)
	if !almostEqual(bands.Middle, 4) || !almostEqual(bands.Upper, 4+2*std) || !almostEqual(bands.Lower, 4-2*std) {
		t.Errorf("bands = %+v", bands)
	}
}
