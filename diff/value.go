// Package diff computes categorized, severity-classified differences
// between two interface definitions.
//
// Structural equality is decided by explicit recursive descent over a
// tagged value tree built from JSON: key-set comparison for objects,
// positional comparison for arrays, value comparison for primitives.
// No reflection-based deep equality is involved, so behavior is
// identical regardless of how the inputs were produced.
package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind tags a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a generic JSON value.
type Value struct {
	Kind Kind
	Bool bool
	Num  string // numeric literal as written
	Str  string
	Arr  []Value
	Obj  map[string]Value
}

// FromJSON decodes raw JSON into a Value tree. Numbers keep their
// literal form.
func FromJSON(raw json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("diff: decode value: %w", err)
	}
	return fromAny(v)
}

func fromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case json.Number:
		return Value{Kind: KindNumber, Num: t.String()}, nil
	case string:
		return Value{Kind: KindString, Str: t}, nil
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			ev, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			arr[i] = ev
		}
		return Value{Kind: KindArray, Arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			obj[k] = ev
		}
		return Value{Kind: KindObject, Obj: obj}, nil
	default:
		return Value{}, fmt.Errorf("diff: unexpected value %T", v)
	}
}

// Equal reports structural equality of two values: same kind, same
// primitive value, positionally equal arrays, key-set-equal objects
// with equal members.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return numberEqual(a.Num, b.Num)
	case KindString:
		return a.Str == b.Str
	case KindArray:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !Equal(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.Obj) != len(b.Obj) {
			return false
		}
		for k, av := range a.Obj {
			bv, ok := b.Obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// numberEqual compares numeric literals: identical text first, then
// numeric value, so "1.50" and "1.5" compare equal.
func numberEqual(a, b string) bool {
	if a == b {
		return true
	}
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	return aerr == nil && berr == nil && af == bf
}

// jsonEqual is a convenience wrapper comparing two raw JSON payloads.
func jsonEqual(a, b json.RawMessage) (bool, error) {
	av, err := FromJSON(a)
	if err != nil {
		return false, err
	}
	bv, err := FromJSON(b)
	if err != nil {
		return false, err
	}
	return Equal(av, bv), nil
}
