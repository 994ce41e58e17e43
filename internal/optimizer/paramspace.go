package optimizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"quantlab/internal/strategy"
)

// ErrInvalidParamSpace is returned for an empty space, an empty value list
// or a duplicated parameter name.
var ErrInvalidParamSpace = errors.New("invalid parameter space")

// Param is one dimension of a search space.
type Param struct {
	Name   string `yaml:"name" json:"name"`
	Values []any  `yaml:"values" json:"values"`
}

// ParamSpace is an ordered list of parameter dimensions. Order matters: the
// last parameter varies fastest in Combinations.
//
// In YAML a space is written as a mapping (document order is kept) or as a
// sequence of {name, values}. In JSON it is either an array of
// {name, values} or an object, whose keys are taken in sorted order since
// JSON objects carry none.
type ParamSpace []Param

// Size returns the number of combinations, or 0 for an empty space.
func (ps ParamSpace) Size() int {
	if len(ps) == 0 {
		return 0
	}
	n := 1
	for _, p := range ps {
		n *= len(p.Values)
	}
	return n
}

// Names returns the parameter names in order.
func (ps ParamSpace) Names() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

// Validate checks that the space has at least one dimension and that every
// dimension is named uniquely and has values.
func (ps ParamSpace) Validate() error {
	if len(ps) == 0 {
		return fmt.Errorf("%w: no parameters", ErrInvalidParamSpace)
	}
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if p.Name == "" {
			return fmt.Errorf("%w: unnamed parameter", ErrInvalidParamSpace)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate parameter %q", ErrInvalidParamSpace, p.Name)
		}
		seen[p.Name] = true
		if len(p.Values) == 0 {
			return fmt.Errorf("%w: %s has no values", ErrInvalidParamSpace, p.Name)
		}
	}
	return nil
}

// Combinations returns the Cartesian product of the space.
func (ps ParamSpace) Combinations() ([]strategy.Params, error) {
	if err := ps.Validate(); err != nil {
		return nil, err
	}

	out := make([]strategy.Params, 0, ps.Size())
	idx := make([]int, len(ps))
	for {
		combo := make(strategy.Params, len(ps))
		for i, p := range ps {
			combo[p.Name] = p.Values[idx[i]]
		}
		out = append(out, combo)

		k := len(ps) - 1
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < len(ps[k].Values) {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return out, nil
		}
	}
}

// UnmarshalYAML accepts a mapping or a sequence of {name, values}.
func (ps *ParamSpace) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(ParamSpace, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var name string
			if err := node.Content[i].Decode(&name); err != nil {
				return fmt.Errorf("decoding parameter name: %w", err)
			}
			var values []any
			if err := node.Content[i+1].Decode(&values); err != nil {
				return fmt.Errorf("decoding values of %s: %w", name, err)
			}
			out = append(out, Param{Name: name, Values: values})
		}
		*ps = out
		return nil
	case yaml.SequenceNode:
		var params []Param
		if err := node.Decode(&params); err != nil {
			return fmt.Errorf("decoding parameter list: %w", err)
		}
		*ps = params
		return nil
	default:
		return fmt.Errorf("%w: expected mapping or sequence at line %d", ErrInvalidParamSpace, node.Line)
	}
}

// UnmarshalJSON accepts an array of {name, values} or an object.
func (ps *ParamSpace) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var params []Param
		if err := json.Unmarshal(data, &params); err != nil {
			return fmt.Errorf("decoding parameter list: %w", err)
		}
		*ps = params
		return nil
	}

	var m map[string][]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding parameter object: %w", err)
	}
	out := make(ParamSpace, 0, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		out = append(out, Param{Name: name, Values: m[name]})
	}
	*ps = out
	return nil
}
