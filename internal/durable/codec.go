package durable

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed, self-describing representation of a step's argument
// or return value, covering integers, floating-point numbers, strings,
// booleans, null, records, and the host's canonical date-time type.
type Value interface {
	isValue()
}

// Null represents an absent value (a nil pointer/interface, or a step
// with no declared return type).
type Null struct{}

func (Null) isValue() {}

// String represents a string value. Strings are NFC-normalized on
// encoding so that two byte-distinct but canonically-equal Unicode
// encodings of the same text never look like a structural change.
type String string

func (String) isValue() {}

// Int represents any Go signed or unsigned integer value, always widened
// to int64.
type Int int64

func (Int) isValue() {}

// Float represents a Go float32 or float64 value, always widened to
// float64.
type Float float64

func (Float) isValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) isValue() {}

// Time represents a time.Time value, encoded on the wire as RFC 3339 with
// nanosecond precision.
type Time time.Time

func (Time) isValue() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) isValue() {}

// Object represents a map of string keys to values. Keys are sorted
// before encoding for deterministic output.
type Object map[string]Value

func (Object) isValue() {}

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// EncodeArgs converts a list of native Go argument values into the
// self-describing text format stored in execution_log.parameters.
func EncodeArgs(args []any) (json.RawMessage, error) {
	items := make([]json.RawMessage, len(args))
	for i, a := range args {
		v, err := toValue(reflect.ValueOf(a))
		if err != nil {
			return nil, fmt.Errorf("codec: encode arg %d: %w", i, err)
		}
		b, err := marshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("codec: encode arg %d: %w", i, err)
		}
		items[i] = b
	}
	return json.Marshal(items)
}

// DecodeArgs decodes a stored parameters blob into reflect.Values ready
// to pass to reflect.Value.Call, one per entry in paramTypes.
func DecodeArgs(raw json.RawMessage, paramTypes []reflect.Type) ([]reflect.Value, error) {
	if len(raw) == 0 {
		raw = []byte("[]")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("codec: decode args: %w", err)
	}
	if len(items) != len(paramTypes) {
		return nil, fmt.Errorf("codec: argument count mismatch: got %d, want %d", len(items), len(paramTypes))
	}

	out := make([]reflect.Value, len(items))
	for i, item := range items {
		v, err := unmarshalValue(item)
		if err != nil {
			return nil, fmt.Errorf("codec: decode arg %d: %w", i, err)
		}
		rv, err := fromValue(v, paramTypes[i])
		if err != nil {
			return nil, fmt.Errorf("codec: convert arg %d: %w", i, err)
		}
		out[i] = rv
	}
	return out, nil
}

// DecodeArgsNative decodes a stored parameters blob into plain Go values
// (string, int64, float64, bool, time.Time, []any, map[string]any, nil)
// without requiring the caller to know the declared parameter types: used
// by the Recovery Scheduler, which only has (className, methodName,
// parameters) and not the registered flow function's signature.
func DecodeArgsNative(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 {
		raw = []byte("[]")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("codec: decode args: %w", err)
	}

	out := make([]any, len(items))
	for i, item := range items {
		v, err := unmarshalValue(item)
		if err != nil {
			return nil, fmt.Errorf("codec: decode arg %d: %w", i, err)
		}
		rv, err := nativeValue(v)
		if err != nil {
			return nil, fmt.Errorf("codec: convert arg %d: %w", i, err)
		}
		out[i] = rv.Interface()
	}
	return out, nil
}

// EncodeReturn converts a native Go return value into the self-describing
// text format. A nil v (a void step) encodes as an empty blob, matching
// the "absent for void" contract.
func EncodeReturn(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	val, err := toValue(reflect.ValueOf(v))
	if err != nil {
		return nil, fmt.Errorf("codec: encode return: %w", err)
	}
	return marshalValue(val)
}

// DecodeReturn decodes a stored return-value blob into a reflect.Value of
// type t. An empty blob decodes to t's zero value (the void case).
func DecodeReturn(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return reflect.Value{}, nil
	}
	if len(raw) == 0 {
		return reflect.Zero(t), nil
	}
	v, err := unmarshalValue(raw)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("codec: decode return: %w", err)
	}
	return fromValue(v, t)
}

func toValue(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return Null{}, nil
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return toValue(rv.Elem())
	case reflect.String:
		return String(norm.NFC.String(rv.String())), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return Time(t), nil
		}
		return structToObject(rv)
	case reflect.Slice:
		if rv.IsNil() {
			return Null{}, nil
		}
		fallthrough
	case reflect.Array:
		arr := make(Array, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := toValue(rv.Index(i))
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case reflect.Map:
		if rv.IsNil() {
			return Null{}, nil
		}
		obj := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := toValue(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[fmt.Sprint(iter.Key().Interface())] = v
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("codec: unsupported kind %s", rv.Kind())
	}
}

func fromValue(v Value, t reflect.Type) (reflect.Value, error) {
	if _, isNull := v.(Null); isNull {
		return reflect.Zero(t), nil
	}
	if t.Kind() == reflect.Ptr {
		elem, err := fromValue(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}
	if t.Kind() == reflect.Interface {
		return nativeValue(v)
	}

	switch vv := v.(type) {
	case String:
		if t.Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("codec: cannot assign string into %s", t)
		}
		return reflect.ValueOf(string(vv)).Convert(t), nil
	case Int:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return reflect.ValueOf(int64(vv)).Convert(t), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return reflect.ValueOf(uint64(vv)).Convert(t), nil
		case reflect.Float32, reflect.Float64:
			return reflect.ValueOf(float64(vv)).Convert(t), nil
		default:
			return reflect.Value{}, fmt.Errorf("codec: cannot assign int into %s", t)
		}
	case Float:
		if t.Kind() != reflect.Float32 && t.Kind() != reflect.Float64 {
			return reflect.Value{}, fmt.Errorf("codec: cannot assign float into %s", t)
		}
		return reflect.ValueOf(float64(vv)).Convert(t), nil
	case Bool:
		if t.Kind() != reflect.Bool {
			return reflect.Value{}, fmt.Errorf("codec: cannot assign bool into %s", t)
		}
		return reflect.ValueOf(bool(vv)), nil
	case Time:
		if t != reflect.TypeOf(time.Time{}) {
			return reflect.Value{}, fmt.Errorf("codec: cannot assign time into %s", t)
		}
		return reflect.ValueOf(time.Time(vv)), nil
	case Array:
		if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
			return reflect.Value{}, fmt.Errorf("codec: cannot assign array into %s", t)
		}
		var out reflect.Value
		if t.Kind() == reflect.Slice {
			out = reflect.MakeSlice(t, len(vv), len(vv))
		} else {
			out = reflect.New(t).Elem()
		}
		for i, e := range vv {
			ev, err := fromValue(e, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case Object:
		switch t.Kind() {
		case reflect.Map:
			out := reflect.MakeMapWithSize(t, len(vv))
			for k, e := range vv {
				ev, err := fromValue(e, t.Elem())
				if err != nil {
					return reflect.Value{}, err
				}
				out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
			}
			return out, nil
		case reflect.Struct:
			out := reflect.New(t).Elem()
			for name, idx := range structFields(t) {
				e, ok := vv[name]
				if !ok {
					continue
				}
				fv, err := fromValue(e, t.Field(idx).Type)
				if err != nil {
					return reflect.Value{}, err
				}
				out.Field(idx).Set(fv)
			}
			return out, nil
		default:
			return reflect.Value{}, fmt.Errorf("codec: cannot assign object into %s", t)
		}
	default:
		return reflect.Value{}, fmt.Errorf("codec: unknown value %T", v)
	}
}

// nativeValue converts v into a plain Go value suitable for an `any`
// target: string, int64, float64, bool, time.Time, []any, map[string]any,
// or nil.
func nativeValue(v Value) (reflect.Value, error) {
	switch vv := v.(type) {
	case Null:
		var zero any
		return reflect.ValueOf(&zero).Elem(), nil
	case String:
		return reflect.ValueOf(string(vv)), nil
	case Int:
		return reflect.ValueOf(int64(vv)), nil
	case Float:
		return reflect.ValueOf(float64(vv)), nil
	case Bool:
		return reflect.ValueOf(bool(vv)), nil
	case Time:
		return reflect.ValueOf(time.Time(vv)), nil
	case Array:
		out := make([]any, len(vv))
		for i, e := range vv {
			rv, err := nativeValue(e)
			if err != nil {
				return reflect.Value{}, err
			}
			out[i] = rv.Interface()
		}
		return reflect.ValueOf(out), nil
	case Object:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			rv, err := nativeValue(e)
			if err != nil {
				return reflect.Value{}, err
			}
			out[k] = rv.Interface()
		}
		return reflect.ValueOf(out), nil
	default:
		return reflect.Value{}, fmt.Errorf("codec: unknown value %T", v)
	}
}

func structFields(t reflect.Type) map[string]int {
	out := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			if comma := strings.Index(tag, ","); comma >= 0 {
				tag = tag[:comma]
			}
			if tag != "" && tag != "-" {
				name = tag
			}
		}
		out[name] = i
	}
	return out
}

func structToObject(rv reflect.Value) (Value, error) {
	fields := structFields(rv.Type())
	obj := make(Object, len(fields))
	for name, idx := range fields {
		v, err := toValue(rv.Field(idx))
		if err != nil {
			return nil, err
		}
		obj[name] = v
	}
	return obj, nil
}

func marshalValue(v Value) (json.RawMessage, error) {
	switch vv := v.(type) {
	case Null:
		return wrapJSON("null", nil)
	case String:
		return wrapJSON("string", string(vv))
	case Int:
		return wrapJSON("int", int64(vv))
	case Float:
		return wrapJSON("float", float64(vv))
	case Bool:
		return wrapJSON("bool", bool(vv))
	case Time:
		return wrapJSON("time", time.Time(vv).Format(time.RFC3339Nano))
	case Array:
		items := make([]json.RawMessage, len(vv))
		for i, e := range vv {
			b, err := marshalValue(e)
			if err != nil {
				return nil, err
			}
			items[i] = b
		}
		return wrapJSON("array", items)
	case Object:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := make(map[string]json.RawMessage, len(vv))
		for _, k := range keys {
			b, err := marshalValue(vv[k])
			if err != nil {
				return nil, err
			}
			m[k] = b
		}
		return wrapJSON("object", m)
	default:
		return nil, fmt.Errorf("codec: unknown value type %T", v)
	}
}

func wrapJSON(typ string, val any) (json.RawMessage, error) {
	inner, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: typ, Value: inner})
}

func unmarshalValue(raw json.RawMessage) (Value, error) {
	var w wireValue
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "null":
		return Null{}, nil
	case "string":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case "int":
		var n int64
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return nil, err
		}
		return Int(n), nil
	case "float":
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return nil, err
		}
		return Float(f), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case "time":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return Time(t), nil
	case "array":
		var items []json.RawMessage
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return nil, err
		}
		arr := make(Array, len(items))
		for i, it := range items {
			v, err := unmarshalValue(it)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case "object":
		var m map[string]json.RawMessage
		if err := json.Unmarshal(w.Value, &m); err != nil {
			return nil, err
		}
		obj := make(Object, len(m))
		for k, raw := range m {
			v, err := unmarshalValue(raw)
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("codec: unknown wire type %q", w.Type)
	}
}
