package schema

import (
	"fmt"
	"maps"
	"reflect"
)

// StructuredOption configures construction of a structured schema.
type StructuredOption func(*structuredConfig)

type structuredConfig struct {
	definition *Definition
	properties map[string]string
}

// WithDefinition supplies an explicit type description instead of deriving
// one from the Go type. Use this when the wire schema is owned elsewhere or
// differs from the struct shape.
func WithDefinition(def *Definition) StructuredOption {
	return func(c *structuredConfig) {
		c.definition = def
	}
}

// WithProperties merges additional key/value metadata into the derived
// descriptor.
func WithProperties(props map[string]string) StructuredOption {
	return func(c *structuredConfig) {
		if c.properties == nil {
			c.properties = make(map[string]string, len(props))
		}
		maps.Copy(c.properties, props)
	}
}

// NewStructured creates a schema for T backed by the registered engine for
// the given structured format. The engine derives the schema descriptor
// from T's type description at construction time; derivation failures
// surface as ErrSchemaDefinition, as does a derived field name the
// format's codec cannot bind to a field of T.
//
// Returns ErrConfiguration if no engine is registered for the format.
// NewJSON, NewAvro and NewMsgPack are shorthands for the built-in engines.
func NewStructured[T any](format Type, opts ...StructuredOption) (Schema[T], error) {
	var cfg structuredConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	eng, ok := LookupEngine(format)
	if !ok {
		return nil, fmt.Errorf("%w: no engine registered for schema type %s", ErrConfiguration, format)
	}

	def := cfg.definition
	if def == nil {
		derived, err := DefinitionOf[T]()
		if err != nil {
			return nil, err
		}
		def = derived
	}

	if hb, ok := eng.(hostBinder); ok {
		if err := hb.bindHost(reflect.TypeFor[T](), def); err != nil {
			return nil, err
		}
	}

	info, err := eng.Define(def)
	if err != nil {
		return nil, err
	}
	if cfg.properties != nil {
		if info.Properties == nil {
			info.Properties = make(map[string]string, len(cfg.properties))
		}
		maps.Copy(info.Properties, cfg.properties)
	}

	codec, err := eng.Codec(info)
	if err != nil {
		return nil, err
	}

	return &structured[T]{codec: codec, info: info}, nil
}

// NewJSON creates a JSON schema for T, deriving the descriptor from T's
// struct shape unless WithDefinition overrides it.
func NewJSON[T any](opts ...StructuredOption) (Schema[T], error) {
	return NewStructured[T](TypeJSON, opts...)
}

// NewAvro creates an Avro schema for T. Field names follow "avro" struct
// tags; see DefinitionOf for the derivation rules.
func NewAvro[T any](opts ...StructuredOption) (Schema[T], error) {
	return NewStructured[T](TypeAvro, opts...)
}

// NewMsgPack creates a MessagePack schema for T.
func NewMsgPack[T any](opts ...StructuredOption) (Schema[T], error) {
	return NewStructured[T](TypeMsgPack, opts...)
}

// structured adapts an engine codec to the typed Schema contract. It owns
// no mutable state beyond the immutable derived descriptor and the engine
// codec handle.
type structured[T any] struct {
	codec Codec
	info  *Info
}

func (s *structured[T]) Encode(v T) ([]byte, error) {
	data, err := s.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s encode: %v", ErrSerialization, s.info.Type, err)
	}
	return data, nil
}

func (s *structured[T]) Decode(data []byte) (T, error) {
	var v T
	if err := s.codec.Decode(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s decode: %v", ErrSerialization, s.info.Type, err)
	}
	return v, nil
}

// Validate decodes and discards the result; a structured payload is valid
// exactly when it decodes.
func (s *structured[T]) Validate(data []byte) error {
	_, err := s.Decode(data)
	return err
}

func (s *structured[T]) Info() *Info {
	return s.info
}
