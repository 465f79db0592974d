package schema

import (
	"fmt"
	"maps"
)

// Type identifies the logical shape of a schema. It tells a receiver which
// codec family produced a payload without describing the payload itself.
type Type int8

const (
	// TypeNone is the zero value and identifies no schema.
	TypeNone Type = iota
	// TypeBytes is a pass-through schema over raw byte payloads.
	TypeBytes
	// TypeString is a UTF-8 text schema.
	TypeString
	// TypeJSON is a structured schema encoded with JSON.
	TypeJSON
	// TypeAvro is a structured schema encoded with Avro binary encoding.
	TypeAvro
	// TypeProtobuf is a structured schema over a generated protobuf message.
	TypeProtobuf
	// TypeMsgPack is a structured schema encoded with MessagePack.
	TypeMsgPack
	// TypeKeyValue is a compound schema pairing two independent sub-schemas.
	TypeKeyValue
	// TypeAutoConsume is a deferred schema resolved per message from a
	// schema authority, decoding into a GenericRecord.
	TypeAutoConsume
	// TypeAutoProduce is a deferred schema that validates raw bytes against
	// whatever schema the target topic currently uses.
	TypeAutoProduce
)

// String returns a string representation of the schema type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "NONE"
	case TypeBytes:
		return "BYTES"
	case TypeString:
		return "STRING"
	case TypeJSON:
		return "JSON"
	case TypeAvro:
		return "AVRO"
	case TypeProtobuf:
		return "PROTOBUF"
	case TypeMsgPack:
		return "MSGPACK"
	case TypeKeyValue:
		return "KEY_VALUE"
	case TypeAutoConsume:
		return "AUTO_CONSUME"
	case TypeAutoProduce:
		return "AUTO_PRODUCE"
	default:
		return fmt.Sprintf("unknown(%d)", int8(t))
	}
}

// structured reports whether payloads of this type carry a field-level
// schema definition that a generic decoder can interpret.
func (t Type) structured() bool {
	return t == TypeJSON || t == TypeAvro || t == TypeMsgPack
}

// Info describes a schema's wire shape: its logical type, an optional
// serialized schema definition, and free-form properties.
//
// An Info is built once by the schema that owns it and shared read-only
// with callers. Callers that need to modify one must Clone it first.
type Info struct {
	// Name is a human-readable schema name, typically the record or
	// subject name.
	Name string `json:"name,omitempty"`

	// Type is the logical schema type.
	Type Type `json:"type"`

	// Definition is the serialized structured-format definition
	// (JSON Schema document, Avro record schema, protobuf descriptor).
	// Empty for primitive schemas.
	Definition []byte `json:"definition,omitempty"`

	// Properties carries optional format- or application-specific
	// metadata. Insertion order is irrelevant.
	Properties map[string]string `json:"properties,omitempty"`
}

// Clone creates a deep copy of the info.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	clone := *i
	if i.Definition != nil {
		clone.Definition = append([]byte(nil), i.Definition...)
	}
	if i.Properties != nil {
		clone.Properties = make(map[string]string, len(i.Properties))
		maps.Copy(clone.Properties, i.Properties)
	}
	return &clone
}

// Schema converts typed values to and from byte payloads carried by a
// messaging transport.
//
// Implementations hold no per-call mutable state and are safe for
// concurrent use once constructed. Encode followed by Decode on the same
// instance reproduces the original value for every value the schema can
// encode.
type Schema[T any] interface {
	// Encode serializes a value under the bound schema.
	// Returns ErrSerialization if the value cannot be represented.
	Encode(v T) ([]byte, error)

	// Decode deserializes a payload produced under the bound schema.
	// Returns ErrSerialization if the payload is malformed.
	Decode(data []byte) (T, error)

	// Validate checks that a payload is a valid encoding under the bound
	// schema without returning the decoded value. Unless a variant
	// documents a cheaper check, this decodes and discards the result.
	Validate(data []byte) error

	// Info returns the schema's descriptor. The returned value is shared
	// and must be treated as read-only.
	Info() *Info
}

// Untyped erases the value type of a schema so that schemas of different
// shapes can share one variable, slice, or map. Encode fails with
// ErrSerialization when the supplied value is not a T.
func Untyped[T any](s Schema[T]) Schema[any] {
	return untyped[T]{inner: s}
}

type untyped[T any] struct {
	inner Schema[T]
}

func (u untyped[T]) Encode(v any) ([]byte, error) {
	t, ok := v.(T)
	if !ok {
		return nil, fmt.Errorf("%w: value of type %T is not assignable to schema type", ErrSerialization, v)
	}
	return u.inner.Encode(t)
}

func (u untyped[T]) Decode(data []byte) (any, error) {
	return u.inner.Decode(data)
}

func (u untyped[T]) Validate(data []byte) error {
	return u.inner.Validate(data)
}

func (u untyped[T]) Info() *Info {
	return u.inner.Info()
}
