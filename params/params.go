// Package params implements the typed parameter descriptor handed to
// the host scheduler.
//
// A Descriptor is an ordered, flat mapping from parameter name to a
// primitively-typed value: bool, int32, int64, float32, float64, string,
// or a homogeneous array of one of these. A descriptor is either being
// written (producer mode, created with New) or read (consumer mode,
// created with Parse from a serialized form). Writes to a consumer-mode
// or sealed descriptor are a logic error and fail; reads degrade to the
// caller-supplied default on absent keys or type mismatches.
package params

import (
	"fmt"
	"math"

	worker "github.com/toyota-m2k/android-worker"
)

// Type tags recorded on the wire alongside each value. Reads check the
// declared tag against the requested type before coercing.
const (
	TypeBool         = "bool"
	TypeInt32        = "i32"
	TypeInt64        = "i64"
	TypeFloat32      = "f32"
	TypeFloat64      = "f64"
	TypeString       = "str"
	TypeBoolSlice    = "[]bool"
	TypeInt32Slice   = "[]i32"
	TypeInt64Slice   = "[]i64"
	TypeFloat32Slice = "[]f32"
	TypeFloat64Slice = "[]f64"
	TypeStringSlice  = "[]str"
)

// Pair is one named, typed parameter on the wire. The wire format is an
// ordered list of pairs so parameter order survives round-trips.
type Pair struct {
	Name  string `json:"n" msgpack:"n"`
	Type  string `json:"t" msgpack:"t"`
	Value any    `json:"v" msgpack:"v"`
}

// Descriptor is the ordered, typed key-value payload for one task.
type Descriptor struct {
	codec  Codec
	sealed bool
	// consumer marks a descriptor backed by a serialized form.
	consumer bool
	raw      []byte

	names []string
	pairs map[string]Pair
}

// New creates an empty producer-mode descriptor.
func New(codec Codec) *Descriptor {
	return &Descriptor{
		codec: codec,
		pairs: make(map[string]Pair),
	}
}

// Parse creates a consumer-mode descriptor backed by the given
// serialized form. Unknown type tags fail with ErrUnsupportedType.
func Parse(data []byte, codec Codec) (*Descriptor, error) {
	pairs, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("params: decode descriptor: %w", err)
	}

	d := &Descriptor{
		codec:    codec,
		sealed:   true,
		consumer: true,
		raw:      data,
		names:    make([]string, 0, len(pairs)),
		pairs:    make(map[string]Pair, len(pairs)),
	}
	for _, p := range pairs {
		if !knownType(p.Type) {
			return nil, fmt.Errorf("%w: %q (parameter %q)", worker.ErrUnsupportedType, p.Type, p.Name)
		}
		if _, dup := d.pairs[p.Name]; !dup {
			d.names = append(d.names, p.Name)
		}
		d.pairs[p.Name] = p
	}
	return d, nil
}

// Seal serializes the descriptor and makes it immutable. Valid only in
// producer mode; sealing an already sealed descriptor returns the same
// serialized form.
func (d *Descriptor) Seal() ([]byte, error) {
	if d.consumer {
		return nil, fmt.Errorf("%w: seal", worker.ErrDescriptorSealed)
	}
	if d.sealed {
		return d.raw, nil
	}

	pairs := make([]Pair, 0, len(d.names))
	for _, name := range d.names {
		pairs = append(pairs, d.pairs[name])
	}

	data, err := d.codec.Encode(pairs)
	if err != nil {
		return nil, fmt.Errorf("params: encode descriptor: %w", err)
	}
	d.sealed = true
	d.raw = data
	return data, nil
}

// Names returns the parameter names in insertion (wire) order.
func (d *Descriptor) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Put writes a value of any supported type. Unsupported Go types fail
// with ErrUnsupportedType; writes in consumer mode or after Seal fail
// with ErrDescriptorSealed.
func (d *Descriptor) Put(name string, value any) error {
	switch v := value.(type) {
	case bool:
		return d.put(name, TypeBool, v)
	case int32:
		return d.put(name, TypeInt32, v)
	case int64:
		return d.put(name, TypeInt64, v)
	case float32:
		return d.put(name, TypeFloat32, v)
	case float64:
		return d.put(name, TypeFloat64, v)
	case string:
		return d.put(name, TypeString, v)
	case []bool:
		return d.put(name, TypeBoolSlice, v)
	case []int32:
		return d.put(name, TypeInt32Slice, v)
	case []int64:
		return d.put(name, TypeInt64Slice, v)
	case []float32:
		return d.put(name, TypeFloat32Slice, v)
	case []float64:
		return d.put(name, TypeFloat64Slice, v)
	case []string:
		return d.put(name, TypeStringSlice, v)
	default:
		return fmt.Errorf("%w: %T (parameter %q)", worker.ErrUnsupportedType, value, name)
	}
}

func (d *Descriptor) PutBool(name string, v bool) error     { return d.put(name, TypeBool, v) }
func (d *Descriptor) PutInt32(name string, v int32) error   { return d.put(name, TypeInt32, v) }
func (d *Descriptor) PutInt64(name string, v int64) error   { return d.put(name, TypeInt64, v) }
func (d *Descriptor) PutFloat32(name string, v float32) error { return d.put(name, TypeFloat32, v) }
func (d *Descriptor) PutFloat64(name string, v float64) error { return d.put(name, TypeFloat64, v) }
func (d *Descriptor) PutString(name, v string) error        { return d.put(name, TypeString, v) }

func (d *Descriptor) PutBoolSlice(name string, v []bool) error   { return d.put(name, TypeBoolSlice, v) }
func (d *Descriptor) PutInt32Slice(name string, v []int32) error { return d.put(name, TypeInt32Slice, v) }
func (d *Descriptor) PutInt64Slice(name string, v []int64) error { return d.put(name, TypeInt64Slice, v) }
func (d *Descriptor) PutFloat32Slice(name string, v []float32) error {
	return d.put(name, TypeFloat32Slice, v)
}
func (d *Descriptor) PutFloat64Slice(name string, v []float64) error {
	return d.put(name, TypeFloat64Slice, v)
}
func (d *Descriptor) PutStringSlice(name string, v []string) error {
	return d.put(name, TypeStringSlice, v)
}

func (d *Descriptor) put(name, typ string, value any) error {
	if d.consumer || d.sealed {
		return fmt.Errorf("%w: put %q", worker.ErrDescriptorSealed, name)
	}
	if _, exists := d.pairs[name]; !exists {
		d.names = append(d.names, name)
	}
	d.pairs[name] = Pair{Name: name, Type: typ, Value: value}
	return nil
}

// Bool reads a bool parameter, returning def when absent or mismatched.
func (d *Descriptor) Bool(name string, def bool) bool {
	p, ok := d.lookup(name, TypeBool)
	if !ok {
		return def
	}
	if v, ok := asBool(p.Value); ok {
		return v
	}
	return def
}

// Int32 reads an int32 parameter, returning def when absent or mismatched.
func (d *Descriptor) Int32(name string, def int32) int32 {
	p, ok := d.lookup(name, TypeInt32)
	if !ok {
		return def
	}
	if v, ok := asInt32(p.Value); ok {
		return v
	}
	return def
}

// Int64 reads an int64 parameter, returning def when absent or mismatched.
func (d *Descriptor) Int64(name string, def int64) int64 {
	p, ok := d.lookup(name, TypeInt64)
	if !ok {
		return def
	}
	if v, ok := asInt64(p.Value); ok {
		return v
	}
	return def
}

// Float32 reads a float32 parameter, returning def when absent or mismatched.
func (d *Descriptor) Float32(name string, def float32) float32 {
	p, ok := d.lookup(name, TypeFloat32)
	if !ok {
		return def
	}
	if v, ok := asFloat64(p.Value); ok {
		return float32(v)
	}
	return def
}

// Float64 reads a float64 parameter, returning def when absent or mismatched.
func (d *Descriptor) Float64(name string, def float64) float64 {
	p, ok := d.lookup(name, TypeFloat64)
	if !ok {
		return def
	}
	if v, ok := asFloat64(p.Value); ok {
		return v
	}
	return def
}

// String reads a string parameter, returning def when absent or mismatched.
func (d *Descriptor) String(name, def string) string {
	p, ok := d.lookup(name, TypeString)
	if !ok {
		return def
	}
	if v, ok := p.Value.(string); ok {
		return v
	}
	return def
}

// BoolSlice reads a []bool parameter, returning def when absent or mismatched.
func (d *Descriptor) BoolSlice(name string, def []bool) []bool {
	p, ok := d.lookup(name, TypeBoolSlice)
	if !ok {
		return def
	}
	if v, ok := coerceSlice(p.Value, asBool); ok {
		return v
	}
	return def
}

// Int32Slice reads a []int32 parameter, returning def when absent or mismatched.
func (d *Descriptor) Int32Slice(name string, def []int32) []int32 {
	p, ok := d.lookup(name, TypeInt32Slice)
	if !ok {
		return def
	}
	if v, ok := coerceSlice(p.Value, asInt32); ok {
		return v
	}
	return def
}

// Int64Slice reads a []int64 parameter, returning def when absent or mismatched.
func (d *Descriptor) Int64Slice(name string, def []int64) []int64 {
	p, ok := d.lookup(name, TypeInt64Slice)
	if !ok {
		return def
	}
	if v, ok := coerceSlice(p.Value, asInt64); ok {
		return v
	}
	return def
}

// Float32Slice reads a []float32 parameter, returning def when absent or mismatched.
func (d *Descriptor) Float32Slice(name string, def []float32) []float32 {
	p, ok := d.lookup(name, TypeFloat32Slice)
	if !ok {
		return def
	}
	if v, ok := coerceSlice(p.Value, asFloat32); ok {
		return v
	}
	return def
}

// Float64Slice reads a []float64 parameter, returning def when absent or mismatched.
func (d *Descriptor) Float64Slice(name string, def []float64) []float64 {
	p, ok := d.lookup(name, TypeFloat64Slice)
	if !ok {
		return def
	}
	if v, ok := coerceSlice(p.Value, asFloat64); ok {
		return v
	}
	return def
}

// StringSlice reads a []string parameter, returning def when absent or mismatched.
func (d *Descriptor) StringSlice(name string, def []string) []string {
	p, ok := d.lookup(name, TypeStringSlice)
	if !ok {
		return def
	}
	if v, ok := coerceSlice(p.Value, asString); ok {
		return v
	}
	return def
}

// lookup finds a pair and checks its declared type tag against the
// requested one. A tag mismatch reads as absent.
func (d *Descriptor) lookup(name, typ string) (Pair, bool) {
	p, ok := d.pairs[name]
	if !ok || p.Type != typ {
		return Pair{}, false
	}
	return p, true
}

func knownType(t string) bool {
	switch t {
	case TypeBool, TypeInt32, TypeInt64, TypeFloat32, TypeFloat64, TypeString,
		TypeBoolSlice, TypeInt32Slice, TypeInt64Slice, TypeFloat32Slice,
		TypeFloat64Slice, TypeStringSlice:
		return true
	}
	return false
}

// ── value coercion ──────────────────────────────────
//
// Producer-mode descriptors hold native Go values; consumer-mode values
// come back from the codec as whatever the wire library produced
// (float64 for every JSON number, sized ints for msgpack, []any for
// arrays). The coercers below normalize both shapes.

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return int64(n), float32(int64(n)) == n
	case float64:
		return int64(n), n == math.Trunc(n) && n >= math.MinInt64 && n <= math.MaxInt64
	default:
		return 0, false
	}
}

func asInt32(v any) (int32, bool) {
	n, ok := asInt64(v)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int32(n), true
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		i, ok := asInt64(v)
		return float64(i), ok
	}
}

func asFloat32(v any) (float32, bool) {
	f, ok := asFloat64(v)
	return float32(f), ok
}

// coerceSlice normalizes a decoded array. Native slices (producer mode)
// pass through; []any (consumer mode) is converted element-wise. Any
// element that fails to coerce rejects the whole slice.
func coerceSlice[T any](v any, conv func(any) (T, bool)) ([]T, bool) {
	if s, ok := v.([]T); ok {
		out := make([]T, len(s))
		copy(out, s)
		return out, true
	}

	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]T, 0, len(raw))
	for _, e := range raw {
		t, ok := conv(e)
		if !ok {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}
