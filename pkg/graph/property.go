package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedValue is returned when a property value is not one of the
// storable kinds: string, int64 (or narrower ints), float64, bool.
var ErrUnsupportedValue = errors.New("graph: unsupported property value")

// Property is a stored property value with its cardinality.
type Property struct {
	Cardinality Cardinality
	Values      []any
}

// NewProperty validates value against card and normalises it: integers
// widen to int64, slices of storable kinds become []any and are de-duplicated
// for Multi.
func NewProperty(value any, card Cardinality) (Property, error) {
	if card == Single {
		v, err := normalize(value)
		if err != nil {
			return Property{}, err
		}
		return Property{Cardinality: Single, Values: []any{v}}, nil
	}
	items, err := expand(value)
	if err != nil {
		return Property{}, err
	}
	values := make([]any, 0, len(items))
	seen := make(map[any]struct{}, len(items))
	for _, item := range items {
		v, err := normalize(item)
		if err != nil {
			return Property{}, err
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return Property{Cardinality: Multi, Values: values}, nil
}

// Value returns the value in the shape Reader.Property reports it.
func (p Property) Value() any {
	if p.Cardinality == Multi {
		return append([]any(nil), p.Values...)
	}
	if len(p.Values) == 0 {
		return nil
	}
	return p.Values[0]
}

// Clone returns a copy that shares no backing array with p.
func (p Property) Clone() Property {
	return Property{Cardinality: p.Cardinality, Values: append([]any(nil), p.Values...)}
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: non-finite float", ErrUnsupportedValue)
		}
		return x, nil
	case float32:
		return normalize(float64(x))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func expand(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	case []int64:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	case []int:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	case []bool:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: multi property from %T", ErrUnsupportedValue, v)
	}
}

// wireValue keeps the Go kind of a property value across JSON, which would
// otherwise collapse int64 into float64.
type wireValue struct {
	S *string  `json:"s,omitempty"`
	I *int64   `json:"i,omitempty"`
	F *float64 `json:"f,omitempty"`
	B *bool    `json:"b,omitempty"`
}

type wireProperty struct {
	Cardinality string      `json:"c"`
	Values      []wireValue `json:"v"`
}

// MarshalJSON encodes the property with explicit value kinds.
func (p Property) MarshalJSON() ([]byte, error) {
	out := wireProperty{Cardinality: p.Cardinality.String(), Values: make([]wireValue, 0, len(p.Values))}
	for _, v := range p.Values {
		var w wireValue
		switch x := v.(type) {
		case string:
			w.S = &x
		case int64:
			w.I = &x
		case float64:
			w.F = &x
		case bool:
			w.B = &x
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
		}
		out.Values = append(out.Values, w)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the encoding produced by MarshalJSON.
func (p *Property) UnmarshalJSON(data []byte) error {
	var in wireProperty
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Cardinality {
	case "single", "":
		p.Cardinality = Single
	case "multi":
		p.Cardinality = Multi
	default:
		return fmt.Errorf("graph: unknown cardinality %q", in.Cardinality)
	}
	p.Values = make([]any, 0, len(in.Values))
	for _, w := range in.Values {
		switch {
		case w.S != nil:
			p.Values = append(p.Values, *w.S)
		case w.I != nil:
			p.Values = append(p.Values, *w.I)
		case w.F != nil:
			p.Values = append(p.Values, *w.F)
		case w.B != nil:
			p.Values = append(p.Values, *w.B)
		default:
			return fmt.Errorf("graph: empty property value")
		}
	}
	return nil
}
