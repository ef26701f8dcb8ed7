// Package value models the open, arbitrarily nested parameter data declared in a site's
// configuration. Templates may address any depth of it, so it is kept as a tagged tree
// rather than a fixed record type.
package value

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	String
	Int
	Float
	Bool
	List
	Map
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable node of the parameter tree. The zero Value is Null.
type Value struct {
	kind  Kind
	str   string
	num   int64
	float float64
	bool  bool
	list  []Value
	dict  map[string]Value
}

// Constructors for the scalar variants.
func NewString(s string) Value { return Value{kind: String, str: s} }
func NewInt(n int64) Value     { return Value{kind: Int, num: n} }
func NewFloat(f float64) Value { return Value{kind: Float, float: f} }
func NewBool(b bool) Value     { return Value{kind: Bool, bool: b} }

// NewMap copies entries into a Map.
func NewMap(entries map[string]Value) Value {
	dict := make(map[string]Value, len(entries))
	for k, v := range entries {
		dict[k] = v
	}
	return Value{kind: Map, dict: dict}
}

// From converts decoded TOML/YAML data into a Value tree. Datetimes become RFC 3339
// strings. Maps with non-string keys (as produced by YAML) are keyed by their printed form.
func From(data any) (Value, error) {
	switch v := data.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return v, nil
	case string:
		return NewString(v), nil
	case bool:
		return NewBool(v), nil
	case int:
		return NewInt(int64(v)), nil
	case int8:
		return NewInt(int64(v)), nil
	case int16:
		return NewInt(int64(v)), nil
	case int32:
		return NewInt(int64(v)), nil
	case int64:
		return NewInt(v), nil
	case uint:
		return fromUint(uint64(v))
	case uint8:
		return NewInt(int64(v)), nil
	case uint16:
		return NewInt(int64(v)), nil
	case uint32:
		return NewInt(int64(v)), nil
	case uint64:
		return fromUint(v)
	case float32:
		return NewFloat(float64(v)), nil
	case float64:
		return NewFloat(v), nil
	case time.Time:
		return NewString(v.Format(time.RFC3339)), nil
	case []any:
		items := make([]Value, 0, len(v))
		for i, item := range v {
			converted, err := From(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, converted)
		}
		return Value{kind: List, list: items}, nil
	case []map[string]any:
		items := make([]Value, 0, len(v))
		for i, item := range v {
			converted, err := From(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, converted)
		}
		return Value{kind: List, list: items}, nil
	case map[string]any:
		dict := make(map[string]Value, len(v))
		for key, item := range v {
			converted, err := From(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			dict[key] = converted
		}
		return Value{kind: Map, dict: dict}, nil
	case map[any]any:
		dict := make(map[string]Value, len(v))
		for key, item := range v {
			name := fmt.Sprint(key)
			converted, err := From(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", name, err)
			}
			dict[name] = converted
		}
		return Value{kind: Map, dict: dict}, nil
	default:
		return fromReflect(reflect.ValueOf(data))
	}
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("integer %d overflows int64", u)
	}
	return NewInt(int64(u)), nil
}

// fromReflect handles typed slices and maps that the fast path above does not list.
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return From(items)
	case reflect.Map:
		dict := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			dict[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return From(dict)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{}, nil
		}
		return From(rv.Elem().Interface())
	default:
		return Value{}, fmt.Errorf("unsupported parameter type %s", rv.Type())
	}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no data.
func (v Value) IsNull() bool { return v.kind == Null }

// Str returns the string payload and whether v is a String.
func (v Value) Str() (string, bool) { return v.str, v.kind == String }

// Int returns the integer payload and whether v is an Int.
func (v Value) Int() (int64, bool) { return v.num, v.kind == Int }

// Float returns the float payload and whether v is a Float.
func (v Value) Float() (float64, bool) { return v.float, v.kind == Float }

// Bool returns the boolean payload and whether v is a Bool.
func (v Value) Bool() (bool, bool) { return v.bool, v.kind == Bool }

// Len returns the number of items of a List or entries of a Map, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case List:
		return len(v.list)
	case Map:
		return len(v.dict)
	default:
		return 0
	}
}

// Index returns the i-th item of a List.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != List || i < 0 || i >= len(v.list) {
		return Value{}, false
	}
	return v.list[i], true
}

// Get returns the entry named key of a Map.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Map {
		return Value{}, false
	}
	item, ok := v.dict[key]
	return item, ok
}

// Keys returns the sorted keys of a Map.
func (v Value) Keys() []string {
	if v.kind != Map {
		return nil
	}
	keys := make([]string, 0, len(v.dict))
	for k := range v.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup walks a dotted path; numeric segments index into lists.
func (v Value) Lookup(path ...string) (Value, bool) {
	cur := v
	for _, segment := range path {
		switch cur.kind {
		case Map:
			next, ok := cur.dict[segment]
			if !ok {
				return Value{}, false
			}
			cur = next
		case List:
			i, err := strconv.Atoi(segment)
			if err != nil {
				return Value{}, false
			}
			next, ok := cur.Index(i)
			if !ok {
				return Value{}, false
			}
			cur = next
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Native converts the tree into plain Go data (map[string]any, []any and scalars),
// which is the shape template engines resolve paths against. Every call returns a fresh
// copy, so callers may hand the result to concurrent renders.
func (v Value) Native() any {
	switch v.kind {
	case String:
		return v.str
	case Int:
		return v.num
	case Float:
		return v.float
	case Bool:
		return v.bool
	case List:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Native()
		}
		return items
	case Map:
		dict := make(map[string]any, len(v.dict))
		for k, item := range v.dict {
			dict[k] = item.Native()
		}
		return dict
	default:
		return nil
	}
}

// String renders scalars as text; lists and maps use their Go representation.
func (v Value) String() string {
	switch v.kind {
	case Null:
		return ""
	case String:
		return v.str
	case Int:
		return strconv.FormatInt(v.num, 10)
	case Float:
		return strconv.FormatFloat(v.float, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.bool)
	default:
		return fmt.Sprint(v.Native())
	}
}
