package example

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from tensorflow/core/example/{example,feature}.proto.
const (
	exampleFeaturesField protowire.Number = 1
	featuresMapField     protowire.Number = 1
	mapKeyField          protowire.Number = 1
	mapValueField        protowire.Number = 2
	featureBytesList     protowire.Number = 1
	featureFloatList     protowire.Number = 2
	featureInt64List     protowire.Number = 3
	listValueField       protowire.Number = 1
)

var errMalformed = errors.New("malformed example")

// Marshal encodes e as a serialized tf.train.Example. Map entries are
// written in sorted key order so equal examples encode to equal bytes.
func Marshal(e Example) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	var features []byte
	for _, k := range e.Keys() {
		entry := protowire.AppendTag(nil, mapKeyField, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, mapValueField, protowire.BytesType)
		entry = protowire.AppendBytes(entry, marshalFeature(e[k]))

		features = protowire.AppendTag(features, featuresMapField, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}
	out := protowire.AppendTag(nil, exampleFeaturesField, protowire.BytesType)
	return protowire.AppendBytes(out, features), nil
}

func marshalFeature(f Feature) []byte {
	var list []byte
	var field protowire.Number
	switch f.kind {
	case KindBytes:
		field = featureBytesList
		for _, b := range f.bytes {
			list = protowire.AppendTag(list, listValueField, protowire.BytesType)
			list = protowire.AppendBytes(list, b)
		}
	case KindFloat:
		field = featureFloatList
		if len(f.floats) > 0 {
			packed := make([]byte, 0, 4*len(f.floats))
			for _, v := range f.floats {
				packed = protowire.AppendFixed32(packed, math.Float32bits(v))
			}
			list = protowire.AppendTag(list, listValueField, protowire.BytesType)
			list = protowire.AppendBytes(list, packed)
		}
	case KindInt64:
		field = featureInt64List
		if len(f.ints) > 0 {
			var packed []byte
			for _, v := range f.ints {
				packed = protowire.AppendVarint(packed, uint64(v))
			}
			list = protowire.AppendTag(list, listValueField, protowire.BytesType)
			list = protowire.AppendBytes(list, packed)
		}
	}
	out := protowire.AppendTag(nil, field, protowire.BytesType)
	return protowire.AppendBytes(out, list)
}

// Unmarshal decodes a serialized tf.train.Example. Both packed and
// unpacked numeric lists are accepted.
func Unmarshal(b []byte) (Example, error) {
	e := make(Example)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != exampleFeaturesField || typ != protowire.BytesType {
			return nil
		}
		return walkFields(v, func(num protowire.Number, typ protowire.Type, entry []byte) error {
			if num != featuresMapField || typ != protowire.BytesType {
				return nil
			}
			return unmarshalEntry(entry, e)
		})
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func unmarshalEntry(b []byte, into Example) error {
	var (
		key     string
		feature = Feature{}
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case mapKeyField:
			key = string(v)
		case mapValueField:
			f, err := unmarshalFeature(v)
			if err != nil {
				return fmt.Errorf("feature: %w", err)
			}
			feature = f
		}
		return nil
	})
	if err != nil {
		return err
	}
	if feature.kind == KindInvalid {
		return fmt.Errorf("feature %q has no value list: %w", key, errMalformed)
	}
	into[key] = feature
	return nil
}

func unmarshalFeature(b []byte) (Feature, error) {
	var f Feature
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, list []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case featureBytesList:
			f = Feature{kind: KindBytes, bytes: [][]byte{}}
			return walkFields(list, func(num protowire.Number, typ protowire.Type, v []byte) error {
				if num == listValueField && typ == protowire.BytesType {
					f.bytes = append(f.bytes, append([]byte(nil), v...))
				}
				return nil
			})
		case featureFloatList:
			f = Feature{kind: KindFloat, floats: []float32{}}
			return walkList(list, protowire.Fixed32Type, func(v []byte) (int, error) {
				x, n := protowire.ConsumeFixed32(v)
				if n < 0 {
					return 0, protowire.ParseError(n)
				}
				f.floats = append(f.floats, math.Float32frombits(x))
				return n, nil
			})
		case featureInt64List:
			f = Feature{kind: KindInt64, ints: []int64{}}
			return walkList(list, protowire.VarintType, func(v []byte) (int, error) {
				x, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return 0, protowire.ParseError(n)
				}
				f.ints = append(f.ints, int64(x))
				return n, nil
			})
		}
		return nil
	})
	return f, err
}

// walkList decodes a repeated scalar field that may be packed or unpacked.
func walkList(b []byte, scalar protowire.Type, consume func([]byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == listValueField && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(m))
			}
			for len(packed) > 0 {
				k, err := consume(packed)
				if err != nil {
					return fmt.Errorf("%w: %v", errMalformed, err)
				}
				packed = packed[k:]
			}
			b = b[m:]
		case num == listValueField && typ == scalar:
			k, err := consume(b)
			if err != nil {
				return fmt.Errorf("%w: %v", errMalformed, err)
			}
			b = b[k:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}

// walkFields calls fn for each top level field of a message. Values of
// non-bytes fields are passed as nil.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(m))
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			b = b[m:]
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(m))
		}
		if err := fn(num, typ, nil); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}
