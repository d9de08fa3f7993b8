// Package example defines the structured training example emitted by
// problem generators and its tf.train.Example wire encoding.
package example

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies the scalar type held by a Feature.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt64
	KindFloat
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// Feature is a homogeneous list of scalar values. Use the constructors;
// the zero value is invalid.
type Feature struct {
	kind   Kind
	ints   []int64
	floats []float32
	bytes  [][]byte
}

func Int64s(values ...int64) Feature {
	return Feature{kind: KindInt64, ints: values}
}

// Ints converts values to an int64 feature.
func Ints(values ...int) Feature {
	ints := make([]int64, len(values))
	for i, v := range values {
		ints[i] = int64(v)
	}
	return Feature{kind: KindInt64, ints: ints}
}

func Floats(values ...float32) Feature {
	return Feature{kind: KindFloat, floats: values}
}

func Bytes(values ...[]byte) Feature {
	return Feature{kind: KindBytes, bytes: values}
}

func Strings(values ...string) Feature {
	b := make([][]byte, len(values))
	for i, v := range values {
		b[i] = []byte(v)
	}
	return Feature{kind: KindBytes, bytes: b}
}

func (f Feature) Kind() Kind { return f.kind }

func (f Feature) Int64s() []int64 { return f.ints }

func (f Feature) Floats() []float32 { return f.floats }

func (f Feature) Bytes() [][]byte { return f.bytes }

// Len returns the number of values in the feature.
func (f Feature) Len() int {
	switch f.kind {
	case KindInt64:
		return len(f.ints)
	case KindFloat:
		return len(f.floats)
	case KindBytes:
		return len(f.bytes)
	default:
		return 0
	}
}

// Equal reports whether two features hold the same kind and values.
// Empty and nil lists compare equal.
func (f Feature) Equal(other Feature) bool {
	if f.kind != other.kind {
		return false
	}
	switch f.kind {
	case KindInt64:
		return slices.Equal(f.ints, other.ints)
	case KindFloat:
		return slices.Equal(f.floats, other.floats)
	case KindBytes:
		return slices.EqualFunc(f.bytes, other.bytes, func(a, b []byte) bool {
			return string(a) == string(b)
		})
	default:
		return true
	}
}

func (f Feature) String() string {
	switch f.kind {
	case KindInt64:
		return fmt.Sprint(f.ints)
	case KindFloat:
		return fmt.Sprint(f.floats)
	case KindBytes:
		parts := make([]string, len(f.bytes))
		for i, b := range f.bytes {
			parts[i] = fmt.Sprintf("%q", b)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return "<invalid>"
	}
}

// Example maps feature names to feature values.
type Example map[string]Feature

// Keys returns the feature names in sorted order.
func (e Example) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Equal reports whether both examples hold the same features.
func (e Example) Equal(other Example) bool {
	if len(e) != len(other) {
		return false
	}
	for k, f := range e {
		o, ok := other[k]
		if !ok || !f.Equal(o) {
			return false
		}
	}
	return true
}

// Validate checks that every feature was built with a constructor.
func (e Example) Validate() error {
	for _, k := range e.Keys() {
		if e[k].kind == KindInvalid {
			return fmt.Errorf("feature %q was not built with a constructor", k)
		}
	}
	return nil
}

func (e Example) String() string {
	var builder strings.Builder
	builder.WriteRune('{')
	for i, k := range e.Keys() {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(k)
		builder.WriteString(": ")
		builder.WriteString(e[k].String())
	}
	builder.WriteRune('}')
	return builder.String()
}
