package graft

import (
	"maps"
	"math"
	"reflect"
	"slices"
)

// Payload is a mapping of field names to values. Methods never mutate the
// receiver; every merge returns a new Payload.
type Payload map[string]any

// Shape classifies the value nested under a child key of a Payload.
type Shape uint8

const (
	// ShapeNone means the key is absent or holds an empty value.
	ShapeNone Shape = iota
	// ShapeOne is a single compound value (one-to-one).
	ShapeOne
	// ShapeMany is an ordered sequence of compound values (one-to-many).
	ShapeMany
	// ShapeInvalid is any other value (scalars, mixed sequences).
	ShapeInvalid
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeOne:
		return "one"
	case ShapeMany:
		return "many"
	default:
		return "invalid"
	}
}

// Clone returns a shallow copy of p. A nil payload clones to an empty one.
func (p Payload) Clone() Payload {
	c := make(Payload, len(p))
	maps.Copy(c, p)
	return c
}

// With returns a copy of p with key set to value.
func (p Payload) With(key string, value any) Payload {
	c := p.Clone()
	c[key] = value
	return c
}

// Without returns a copy of p without the given fields.
func (p Payload) Without(fields ...string) Payload {
	c := p.Clone()
	for _, f := range fields {
		delete(c, f)
	}
	return c
}

// Only returns a copy of p restricted to the given fields. Absent fields stay absent.
func (p Payload) Only(fields ...string) Payload {
	c := make(Payload, len(fields))
	for _, f := range fields {
		if v, ok := p[f]; ok {
			c[f] = v
		}
	}
	return c
}

// Keys returns the field names of p in sorted order.
func (p Payload) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Child resolves the value nested under key. For ShapeOne the result holds one
// payload, for ShapeMany one payload per element in order.
func (p Payload) Child(key string) (Shape, []Payload) {
	v, ok := p[key]
	if !ok || IsEmpty(v) {
		return ShapeNone, nil
	}
	if one, ok := AsPayload(v); ok {
		return ShapeOne, []Payload{one}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return ShapeInvalid, nil
	}
	many := make([]Payload, 0, rv.Len())
	for i := range rv.Len() {
		el, ok := AsPayload(rv.Index(i).Interface())
		if !ok {
			return ShapeInvalid, nil
		}
		many = append(many, el)
	}
	return ShapeMany, many
}

// AsPayload converts compound values (Payload or map[string]any) to a Payload.
func AsPayload(v any) (Payload, bool) {
	switch m := v.(type) {
	case Payload:
		return m, true
	case map[string]any:
		return Payload(m), true
	default:
		return nil, false
	}
}

// IsEmpty reports whether v counts as an absent value: nil, the empty string,
// numeric zero, or an empty map, slice or array.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	}
	return false
}

// NormalizeKey maps numerically equal keys of different Go types onto one
// comparable value: integers and integral floats become int64, []byte becomes
// string. Other values are returned unchanged.
func NormalizeKey(v any) any {
	switch k := v.(type) {
	case int:
		return int64(k)
	case int8:
		return int64(k)
	case int16:
		return int64(k)
	case int32:
		return int64(k)
	case uint:
		return normalizeUint(uint64(k), v)
	case uint8:
		return int64(k)
	case uint16:
		return int64(k)
	case uint32:
		return int64(k)
	case uint64:
		return normalizeUint(k, v)
	case float32:
		return normalizeFloat(float64(k))
	case float64:
		return normalizeFloat(k)
	case []byte:
		return string(k)
	default:
		return v
	}
}

// normalizeUint leaves values above math.MaxInt64 as they are.
func normalizeUint(k uint64, v any) any {
	if k > math.MaxInt64 {
		return v
	}
	return int64(k)
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
