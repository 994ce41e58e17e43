package main

import (
	"fmt"
	"strconv"
	"strings"

	"quantlab/internal/optimizer"
	"quantlab/internal/strategy"
)

// parseValue reads a flag value as an int, then a float, then a string.
func parseValue(s string) any {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// parseParams reads repeated key=value flags.
func parseParams(kvs []string) (strategy.Params, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	p := make(strategy.Params, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", kv)
		}
		p[k] = parseValue(v)
	}
	return p, nil
}

// parseParamSpace reads name=v1,v2,... flags into a space, keeping flag
// order. Slice flags split on commas, so a token without "=" continues the
// previous parameter.
func parseParamSpace(tokens []string) (optimizer.ParamSpace, error) {
	var ps optimizer.ParamSpace
	for _, tok := range tokens {
		name, values, ok := strings.Cut(tok, "=")
		if !ok {
			if len(ps) == 0 {
				return nil, fmt.Errorf("parameter space entry %q has no name", tok)
			}
			ps[len(ps)-1].Values = appendValues(ps[len(ps)-1].Values, tok)
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("parameter space entry %q has no name", tok)
		}
		ps = append(ps, optimizer.Param{Name: name, Values: appendValues(nil, values)})
	}
	for _, p := range ps {
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("parameter %q has no values", p.Name)
		}
	}
	return ps, nil
}

func appendValues(dst []any, list string) []any {
	for _, v := range strings.Split(list, ",") {
		if v = strings.TrimSpace(v); v != "" {
			dst = append(dst, parseValue(v))
		}
	}
	return dst
}

// splitList flattens comma separated entries and drops blanks.
func splitList(entries []string) []string {
	var out []string
	for _, e := range entries {
		for _, s := range strings.Split(e, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// strategyConfigs turns strategy names into configs with default params.
func strategyConfigs(names []string) []strategy.Config {
	out := make([]strategy.Config, 0, len(names))
	for _, n := range splitList(names) {
		out = append(out, strategy.Config{Name: n})
	}
	return out
}
