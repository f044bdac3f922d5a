package entities

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind discriminates the shapes a parameter value can take.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueList
	ValueMap
)

func (k ValueKind) String() string {
	switch k {
	case ValueList:
		return "list"
	case ValueMap:
		return "map"
	default:
		return "string"
	}
}

// ListSeparator joins list items when a list is flattened to text.
const ListSeparator = ", "

// Value is a parameter value: a string, a list of values, or a
// string-keyed map of values. Numbers and booleans are normalised to
// their string form on construction. The zero Value is the empty string.
type Value struct {
	kind   ValueKind
	str    string
	items  []Value
	fields map[string]Value
}

// String creates a string value.
func String(s string) Value {
	return Value{kind: ValueString, str: s}
}

// List creates a list value.
func List(items ...Value) Value {
	return Value{kind: ValueList, items: items}
}

// Map creates a map value.
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: ValueMap, fields: fields}
}

// Strings creates a list of string values.
func Strings(items ...string) Value {
	out := make([]Value, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return List(out...)
}

// ValueOf converts decoded document data into a Value.
// Accepts strings, integers, floats, booleans, slices and string-keyed maps.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return String(strconv.FormatBool(x)), nil
	case int:
		return String(strconv.Itoa(x)), nil
	case int64:
		return String(strconv.FormatInt(x, 10)), nil
	case uint64:
		return String(strconv.FormatUint(x, 10)), nil
	case float64:
		return String(strconv.FormatFloat(x, 'f', -1, 64)), nil
	case []string:
		return Strings(x...), nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, item := range x {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, iv)
		}
		return List(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = iv
		}
		return Map(fields), nil
	case nil:
		return String(""), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// Kind returns the value's shape.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string content; empty for lists and maps.
func (v Value) Str() string { return v.str }

// Items returns list items.
func (v Value) Items() []Value { return v.items }

// Fields returns map fields.
func (v Value) Fields() map[string]Value { return v.fields }

// Text flattens the value to text. Lists are joined with ListSeparator.
// Maps have no text form and report false.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case ValueString:
		return v.str, true
	case ValueList:
		parts := make([]string, 0, len(v.items))
		for _, item := range v.items {
			s, ok := item.Text()
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ListSeparator), true
	default:
		return "", false
	}
}

// Lookup walks a dotted path through nested maps.
func (v Value) Lookup(path []string) (Value, bool) {
	current := v
	for _, part := range path {
		if current.kind != ValueMap {
			return Value{}, false
		}
		next, ok := current.fields[part]
		if !ok {
			return Value{}, false
		}
		current = next
	}
	return current, true
}

// Native converts the value to plain Go data: string, []any or map[string]any.
func (v Value) Native() any {
	switch v.kind {
	case ValueList:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Native()
		}
		return out
	case ValueMap:
		out := make(map[string]any, len(v.fields))
		for k, item := range v.fields {
			out[k] = item.Native()
		}
		return out
	default:
		return v.str
	}
}

// Equal reports deep equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueList:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case ValueMap:
		if len(v.fields) != len(other.fields) {
			return false
		}
		for k, item := range v.fields {
			o, ok := other.fields[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	default:
		return v.str == other.str
	}
}

// GoString renders the value for test failure output.
func (v Value) GoString() string {
	switch v.kind {
	case ValueList:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.GoString()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case ValueMap:
		keys := make([]string, 0, len(v.fields))
		for k := range v.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + v.fields[k].GoString()
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return strconv.Quote(v.str)
	}
}

// NativeParams converts a parameter set to plain Go data.
func NativeParams(params map[string]Value) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v.Native()
	}
	return out
}
