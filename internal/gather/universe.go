package gather

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// defaultUniverse is a small set of liquid US ETFs spanning equity, bond,
// gold and sector exposure.
var defaultUniverse = []string{"DIA", "GLD", "IWM", "QQQ", "SPY", "TLT", "XLE", "XLF"}

// DefaultUniverse returns the built-in symbol list used when no universe
// file is present.
func DefaultUniverse() []string {
	return slices.Clone(defaultUniverse)
}

// LoadUniverse reads the symbol universe from the latest date-stamped
// universe_YYYY-MM-DD.csv in dir, falling back to universe.csv and then to
// DefaultUniverse. Symbols are upper-cased, deduplicated and sorted.
func LoadUniverse(dir string) []string {
	path := latestUniverseFile(dir)
	syms, err := readSymbolColumn(path)
	if err != nil || len(syms) == 0 {
		slog.Debug("using default universe", "path", path, "error", err)
		return DefaultUniverse()
	}
	slog.Info("loaded universe", "symbols", len(syms), "file", filepath.Base(path))
	return syms
}

func latestUniverseFile(dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "universe_????-??-??.csv"))
	if err == nil && len(matches) > 0 {
		slices.Sort(matches)
		return matches[len(matches)-1]
	}
	return filepath.Join(dir, "universe.csv")
}

// readSymbolColumn returns the column headed "symbol", or the first column
// when no header matches.
func readSymbolColumn(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	col := 0
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "symbol") {
			col = i
			break
		}
	}

	seen := make(map[string]bool)
	var out []string
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		if len(rec) <= col {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(rec[col]))
		if sym != "" && !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	slices.Sort(out)
	return out, nil
}
