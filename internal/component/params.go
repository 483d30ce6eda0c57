package component

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
)

// Params is an opaque key/value parameter set. Values must be JSON encodable.
type Params map[string]any

// Clone returns a deep copy of p: nested maps and slices are copied too. A
// nil receiver yields an empty set.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a copy of base with every key of override applied on top.
// Nested values are replaced whole, never merged.
func (p Params) Merge(override Params) Params {
	out := p.Clone()
	for k, v := range override {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Params:
		return t.Clone()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneReflect(rv.Index(i)))
		}
		return out.Interface()
	default:
		return v
	}
}

func cloneReflect(v reflect.Value) reflect.Value {
	if (v.Kind() == reflect.Interface || v.Kind() == reflect.Map || v.Kind() == reflect.Slice) && v.IsNil() {
		return v
	}
	return reflect.ValueOf(cloneValue(v.Interface()))
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParamType is the coarse type a kind accepts for a parameter key.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBool    ParamType = "bool"
	TypeObject  ParamType = "object"
	TypeList    ParamType = "list"
	TypeAny     ParamType = "any"
)

// Accepts reports whether v is a valid value for t. Null is always accepted.
func (t ParamType) Accepts(v any) bool {
	if v == nil || t == TypeAny {
		return true
	}

	if n, ok := v.(json.Number); ok {
		switch t {
		case TypeNumber:
			_, err := n.Float64()
			return err == nil
		case TypeInteger:
			if _, err := n.Int64(); err == nil {
				return true
			}
			f, err := n.Float64()
			return err == nil && f == math.Trunc(f)
		default:
			return false
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return t == TypeString
	case reflect.Bool:
		return t == TypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return t == TypeNumber || t == TypeInteger
	case reflect.Float32, reflect.Float64:
		if t == TypeNumber {
			return true
		}
		f := rv.Float()
		return t == TypeInteger && f == math.Trunc(f) && !math.IsInf(f, 0)
	case reflect.Map:
		return t == TypeObject && rv.Type().Key().Kind() == reflect.String
	case reflect.Slice, reflect.Array:
		return t == TypeList
	default:
		return false
	}
}
