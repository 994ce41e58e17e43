package gather

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestLoadUniverseFallsBackToDefault(t *testing.T) {
	got := LoadUniverse(t.TempDir())
	if !slices.Equal(got, DefaultUniverse()) {
		t.Errorf("LoadUniverse(empty dir) = %v, want %v", got, DefaultUniverse())
	}
	got[0] = "XXX"
	if DefaultUniverse()[0] == "XXX" {
		t.Error("DefaultUniverse shares its backing array with callers")
	}
}

func TestLoadUniversePicksLatestFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("universe.csv", "symbol\nAAA\n")
	write("universe_2024-01-02.csv", "symbol\nBBB\n")
	write("universe_2024-03-01.csv", "name,symbol\nTech,qqq\nBroad, spy\nBroad dup,SPY\n,\n")

	want := []string{"QQQ", "SPY"}
	if got := LoadUniverse(dir); !slices.Equal(got, want) {
		t.Errorf("LoadUniverse = %v, want %v", got, want)
	}
}

func TestLoadUniverseUndatedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "universe.csv"), []byte("ticker\ntlt\ngld\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := []string{"GLD", "TLT"}
	if got := LoadUniverse(dir); !slices.Equal(got, want) {
		t.Errorf("LoadUniverse = %v, want %v", got, want)
	}
}
