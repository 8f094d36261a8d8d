package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ValueKind identifies which variant a Value holds.
type ValueKind string

const (
	ValueKindString ValueKind = "string"
	ValueKindNumber ValueKind = "number"
	ValueKindBool   ValueKind = "bool"
	ValueKindList   ValueKind = "list"
	ValueKindMap    ValueKind = "map"
)

// Value is a closed tagged variant for parameter values. Task and metric
// parameters are opaque to the orchestration core and interpreted only by
// backend code, so conversions are explicit and return an error instead of
// coercing silently.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	obj  *Params
}

func StringValue(s string) Value {
	return Value{kind: ValueKindString, str: s}
}

func NumberValue(n float64) Value {
	return Value{kind: ValueKindNumber, num: n}
}

func IntValue(n int) Value {
	return Value{kind: ValueKindNumber, num: float64(n)}
}

func BoolValue(b bool) Value {
	return Value{kind: ValueKindBool, b: b}
}

func ListValue(items ...Value) Value {
	return Value{kind: ValueKindList, list: items}
}

func MapValue(p *Params) Value {
	if p == nil {
		p = NewParams()
	}
	return Value{kind: ValueKindMap, obj: p}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) AsString() (string, error) {
	if v.kind != ValueKindString {
		return "", fmt.Errorf("parameter value is %s, not string", v.kind)
	}
	return v.str, nil
}

func (v Value) AsFloat() (float64, error) {
	if v.kind != ValueKindNumber {
		return 0, fmt.Errorf("parameter value is %s, not number", v.kind)
	}
	return v.num, nil
}

// AsInt converts a number value to an int. Non-integral numbers are an error
// rather than being truncated.
func (v Value) AsInt() (int, error) {
	f, err := v.AsFloat()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parameter value %v is not an integer", f)
	}
	return int(f), nil
}

func (v Value) AsBool() (bool, error) {
	if v.kind != ValueKindBool {
		return false, fmt.Errorf("parameter value is %s, not bool", v.kind)
	}
	return v.b, nil
}

func (v Value) AsList() ([]Value, error) {
	if v.kind != ValueKindList {
		return nil, fmt.Errorf("parameter value is %s, not list", v.kind)
	}
	return v.list, nil
}

func (v Value) AsMap() (*Params, error) {
	if v.kind != ValueKindMap {
		return nil, fmt.Errorf("parameter value is %s, not map", v.kind)
	}
	return v.obj, nil
}

// Interface returns the value as plain Go data (string, float64, bool,
// []any or map[string]any) for collaborators that need untyped input, such
// as JSON schema validation. Map ordering is not preserved in the result.
func (v Value) Interface() any {
	switch v.kind {
	case ValueKindString:
		return v.str
	case ValueKindNumber:
		return v.num
	case ValueKindBool:
		return v.b
	case ValueKindList:
		items := make([]any, 0, len(v.list))
		for _, item := range v.list {
			items = append(items, item.Interface())
		}
		return items
	case ValueKindMap:
		return v.obj.Interface()
	default:
		return nil
	}
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueKindString:
		return v.str == other.str
	case ValueKindNumber:
		return v.num == other.num
	case ValueKindBool:
		return v.b == other.b
	case ValueKindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case ValueKindMap:
		return v.obj.Equal(other.obj)
	default:
		return true
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueKindString:
		return json.Marshal(v.str)
	case ValueKindNumber:
		return json.Marshal(v.num)
	case ValueKindBool:
		return json.Marshal(v.b)
	case ValueKindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case ValueKindMap:
		return v.obj.MarshalJSON()
	default:
		return nil, fmt.Errorf("cannot marshal parameter value of kind %q", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return fmt.Errorf("empty parameter value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = ListValue(items...)
	case '{':
		nested := NewParams()
		if err := nested.UnmarshalJSON(data); err != nil {
			return err
		}
		*v = MapValue(nested)
	case 'n':
		return fmt.Errorf("null is not a supported parameter value")
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = NumberValue(f)
	}
	return nil
}

// Params is an ordered mapping from parameter name to Value. Keys keep their
// insertion order through serialization so that parameter maps round-trip
// byte for byte and iterate deterministically.
type Params struct {
	keys   []string
	values map[string]Value
}

func NewParams() *Params {
	return &Params{values: map[string]Value{}}
}

// Set stores a value under key and returns the receiver so calls can be
// chained. Setting an existing key replaces the value but keeps the key's
// original position.
func (p *Params) Set(key string, value Value) *Params {
	if p.values == nil {
		p.values = map[string]Value{}
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

func (p *Params) Get(key string) (Value, bool) {
	if p == nil {
		return Value{}, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the parameter names in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Equal reports structural equality. A nil map and an empty map compare
// equal; key order is not significant.
func (p *Params) Equal(other *Params) bool {
	if p.Len() != other.Len() {
		return false
	}
	if p == nil || other == nil {
		return true
	}
	for key, v := range p.values {
		ov, ok := other.values[key]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Interface returns the parameters as a plain map[string]any. Order is lost;
// use Keys for ordered iteration.
func (p *Params) Interface() map[string]any {
	out := map[string]any{}
	if p == nil {
		return out
	}
	for key, v := range p.values {
		out[key] = v.Interface()
	}
	return out
}

func (p *Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := p.values[key].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parameters must be a JSON object")
	}
	p.keys = nil
	p.values = map[string]Value{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("parameter key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value Value
		if err := value.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("parameter %q: %w", key, err)
		}
		p.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
