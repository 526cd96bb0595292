package action

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValueKind enumerates the JSON shapes a parameter value can hold.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a loosely typed action parameter. It preserves the incoming
// JSON shape so handlers can pull out the type they expect and reject
// the rest with a clear message.
type Value struct {
	Kind   ValueKind
	Str    string
	Num    float64
	Bool   bool
	Array  []Value
	Object map[string]Value
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Value{Kind: KindNull}
	case string:
		return Value{Kind: KindString, Str: t}
	case float64:
		return Value{Kind: KindNumber, Num: t}
	case bool:
		return Value{Kind: KindBool, Bool: t}
	case []any:
		arr := make([]Value, 0, len(t))
		for _, item := range t {
			arr = append(arr, fromAny(item))
		}
		return Value{Kind: KindArray, Array: arr}
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			obj[k] = fromAny(item)
		}
		return Value{Kind: KindObject, Object: obj}
	default:
		return Value{Kind: KindNull}
	}
}

// Interface converts back to plain Go values for JSON round-trips.
func (v Value) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindArray:
		out := make([]any, 0, len(v.Array))
		for _, item := range v.Array {
			out = append(out, item.Interface())
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Object))
		for k, item := range v.Object {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

func (v Value) String() (string, bool) {
	return v.Str, v.Kind == KindString
}

func (v Value) Float64() (float64, bool) {
	return v.Num, v.Kind == KindNumber
}

func (v Value) Int64() (int64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	if v.Num != math.Trunc(v.Num) {
		return 0, false
	}
	return int64(v.Num), true
}

func (v Value) Boolean() (bool, bool) {
	return v.Bool, v.Kind == KindBool
}

// Strings flattens a string array value. Non-string elements fail the
// whole conversion.
func (v Value) Strings() ([]string, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	out := make([]string, 0, len(v.Array))
	for _, item := range v.Array {
		s, ok := item.String()
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Params is the parameter bag attached to an action.
type Params map[string]Value

func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v.Kind != KindNull
}

func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	return v.String()
}

func (p Params) Float64(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return v.Float64()
}

func (p Params) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	return v.Boolean()
}

func (p Params) Strings(key string) ([]string, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	return v.Strings()
}

func expectKind(key string, v Value, want ValueKind) error {
	if v.Kind != want {
		return fmt.Errorf("parameter %q must be %s, got %s", key, want, v.Kind)
	}
	return nil
}
