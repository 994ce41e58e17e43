package strategy

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MaxWindow caps lookback and period parameters. Windows size ring buffers,
// so an unbounded value from a request would allocate without limit.
const MaxWindow = 10000

// Params holds strategy parameters as decoded from YAML, JSON or a grid
// search combination.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParamReader reads typed values out of Params, remembering which keys were
// consumed and the first conversion failure. Err reports that failure or any
// key never read.
type ParamReader struct {
	strategy string
	params   Params
	used     map[string]bool
	err      error
}

// NewParamReader creates a reader for the named strategy.
func NewParamReader(strategy string, p Params) *ParamReader {
	return &ParamReader{strategy: strategy, params: p, used: make(map[string]bool)}
}

// Int returns the integer at key, or def when absent.
func (r *ParamReader) Int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := toFloat(v)
	switch {
	case err != nil:
	case f != math.Trunc(f):
		err = fmt.Errorf("%v is not an integer", v)
	case math.Abs(f) > 1<<53:
		err = fmt.Errorf("%v is out of range", v)
	}
	if err != nil {
		r.fail(key, err)
		return def
	}
	return int(f)
}

// Window returns the lookback length at key, or def when absent. Values
// outside [1, MaxWindow] are recorded as failures and def is returned, so a
// rejected value never sizes a buffer.
func (r *ParamReader) Window(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := toFloat(v)
	switch {
	case err != nil:
	case f != math.Trunc(f):
		err = fmt.Errorf("%v is not an integer", v)
	case f < 1 || f > MaxWindow:
		err = fmt.Errorf("must be between 1 and %d, got %v", MaxWindow, v)
	}
	if err != nil {
		r.fail(key, err)
		return def
	}
	return int(f)
}

// Float returns the number at key, or def when absent.
func (r *ParamReader) Float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := toFloat(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return f
}

// Check records a validation failure for key when cond is false.
func (r *ParamReader) Check(cond bool, key, format string, args ...any) {
	if !cond {
		r.fail(key, fmt.Errorf(format, args...))
	}
}

// Err returns the first conversion or validation error, or an error naming
// keys that were supplied but never read.
func (r *ParamReader) Err() error {
	if r.err != nil {
		return r.err
	}
	var unknown []string
	for k := range r.params {
		if !r.used[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s: unknown parameter(s) %s",
			ErrInvalidParams, r.strategy, strings.Join(unknown, ", "))
	}
	return nil
}

func (r *ParamReader) lookup(key string) (any, bool) {
	r.used[key] = true
	v, ok := r.params[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *ParamReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s: %s: %v", ErrInvalidParams, r.strategy, key, err)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%v is not finite", n)
		}
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
