package strategy

import (
	"errors"
	"strings"
	"testing"
	"time"

	"quantlab/internal/domain"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		if err != nil {
			t.Errorf("ParseKind(%q) returned error: %v", k, err)
		}
		if got != k {
			t.Errorf("ParseKind(%q) = %q", k, got)
		}
	}
}

func TestParseKind_NotFound(t *testing.T) {
	_, err := ParseKind("nonexistent")
	if err == nil {
		t.Fatal("ParseKind returned nil error for unknown name")
	}
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("error %v does not wrap ErrUnknownStrategy", err)
	}
	// The message lists what is available.
	if !strings.Contains(err.Error(), "ma_cross") {
		t.Errorf("error %q does not list available strategies", err)
	}
}

func TestKindsSorted(t *testing.T) {
	ks := Kinds()
	if len(ks) != 6 {
		t.Fatalf("Kinds returned %d kinds, want 6", len(ks))
	}
	for i := 1; i < len(ks); i++ {
		if ks[i-1] >= ks[i] {
			t.Errorf("Kinds not sorted: %v", ks)
		}
	}
}

func TestConfigString(t *testing.T) {
	c := Config{Name: "ma_cross", Params: Params{"long_window": 20, "short_window": 5}}
	if got, want := c.String(), "ma_cross{long_window=20,short_window=5}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (Config{Name: "turtle"}).String(); got != "turtle" {
		t.Errorf("String() = %q, want %q", got, "turtle")
	}
}

func TestParamReader(t *testing.T) {
	r := NewParamReader("test", Params{"a": 3, "b": 2.5, "c": "7"})
	if got := r.Int("a", 0); got != 3 {
		t.Errorf("Int(a) = %d, want 3", got)
	}
	if got := r.Float("b", 0); got != 2.5 {
		t.Errorf("Float(b) = %v, want 2.5", got)
	}
	if got := r.Int("c", 0); got != 7 {
		t.Errorf("Int(c) = %d, want 7", got)
	}
	if got := r.Int("missing", 42); got != 42 {
		t.Errorf("Int(missing) = %d, want default 42", got)
	}
	if err := r.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestParamReaderErrors(t *testing.T) {
	r := NewParamReader("test", Params{"a": 2.5})
	r.Int("a", 0)
	if err := r.Err(); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("non-integer Int: Err() = %v, want ErrInvalidParams", err)
	}

	r = NewParamReader("test", Params{"a": 1, "zzz": 1})
	r.Int("a", 0)
	err := r.Err()
	if !errors.Is(err, ErrInvalidParams) || !strings.Contains(err.Error(), "zzz") {
		t.Errorf("unknown key: Err() = %v", err)
	}

	r = NewParamReader("test", Params{"a": -1})
	n := r.Int("a", 0)
	r.Check(n > 0, "a", "must be positive, got %d", n)
	if err := r.Err(); err == nil || !strings.Contains(err.Error(), "must be positive") {
		t.Errorf("Check: Err() = %v", err)
	}

	r = NewParamReader("test", Params{"a": []int{1}})
	r.Float("a", 0)
	if r.Err() == nil {
		t.Error("slice value should fail conversion")
	}
}

func TestParamReaderWindow(t *testing.T) {
	tests := []struct {
		value   any
		want    int
		wantErr bool
	}{
		{nil, 7, false},
		{20, 20, false},
		{float64(MaxWindow), MaxWindow, false},
		{"15", 15, false},
		{0, 7, true},
		{-3, 7, true},
		{MaxWindow + 1, 7, true},
		{1e10, 7, true},
		{2.5, 7, true},
	}
	for _, tt := range tests {
		r := NewParamReader("test", Params{"n": tt.value})
		got := r.Window("n", 7)
		if got != tt.want {
			t.Errorf("Window(%v) = %d, want %d", tt.value, got, tt.want)
		}
		if err := r.Err(); (err != nil) != tt.wantErr || (err != nil && !errors.Is(err, ErrInvalidParams)) {
			t.Errorf("Window(%v): Err() = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestBaseOnFillAndAdvance(t *testing.T) {
	b := NewBase("x")
	if b.Name() != "x" {
		t.Errorf("Name() = %q, want %q", b.Name(), "x")
	}

	b.OnFill(domain.SignalBuy)
	if !b.InPosition() {
		t.Error("InPosition() = false after BUY fill")
	}
	b.OnFill(domain.SignalHold)
	if !b.InPosition() {
		t.Error("HOLD fill changed the position flag")
	}
	b.OnFill(domain.SignalSell)
	if b.InPosition() {
		t.Error("InPosition() = true after SELL fill")
	}

	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if err := b.Advance(domain.Bar{Date: d}); err != nil {
		t.Fatalf("Advance first bar: %v", err)
	}
	if err := b.Advance(domain.Bar{Date: d}); !errors.Is(err, ErrBarOrder) {
		t.Errorf("Advance duplicate date: err = %v, want ErrBarOrder", err)
	}
	if err := b.Advance(domain.Bar{Date: d.AddDate(0, 0, 1)}); err != nil {
		t.Errorf("Advance next day: %v", err)
	}

	b.ResetBase()
	if err := b.Advance(domain.Bar{Date: d}); err != nil {
		t.Errorf("Advance after reset: %v", err)
	}
}
