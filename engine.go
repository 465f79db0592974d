package schema

import (
	"reflect"
	"sync"
)

// Codec is the raw encode/decode pair a structured engine produces for a
// derived schema. Implementations must be safe for concurrent use.
type Codec interface {
	// Encode serializes a value to bytes.
	Encode(v any) ([]byte, error)

	// Decode deserializes bytes into the target. The target must be a
	// pointer.
	Decode(data []byte, v any) error
}

// Engine is the structured-format contract consumed by this package: given
// a type description it derives a schema descriptor, and given a descriptor
// it produces a matching codec. The concrete encoding algorithm belongs to
// the engine, not to this package.
//
// Engines register themselves by logical type; the built-in JSON, Avro and
// MessagePack engines are registered at init time.
type Engine interface {
	// Type returns the logical schema type this engine handles.
	Type() Type

	// Define derives a schema descriptor from a type description.
	// Returns ErrSchemaDefinition if the description is not representable
	// in this format.
	Define(def *Definition) (*Info, error)

	// Codec returns an encode/decode pair for a descriptor previously
	// produced by Define (or recovered from an authority).
	Codec(info *Info) (Codec, error)
}

// hostBinder is implemented by engines whose codec reflects over the host
// Go type itself and therefore needs every derived field name to bind to a
// field of the host struct. NewStructured consults it so a name the codec
// cannot bind fails at construction instead of on the first message.
type hostBinder interface {
	bindHost(host reflect.Type, def *Definition) error
}

// checkHostFields walks a struct host alongside derived fields and reports
// the first name the codec cannot bind. bind returns the name the codec
// matches a given struct field under; rule names that matching scheme for
// the error message. Non-struct hosts (maps, interfaces) bind dynamically
// and always pass.
func checkHostFields(format Type, rule string, host reflect.Type, fields []Field, bind func(reflect.StructField) string) error {
	for host.Kind() == reflect.Pointer {
		host = host.Elem()
	}
	if host.Kind() != reflect.Struct {
		return nil
	}
	byName := make(map[string]reflect.StructField, host.NumField())
	for i := 0; i < host.NumField(); i++ {
		sf := host.Field(i)
		if !sf.IsExported() {
			continue
		}
		byName[bind(sf)] = sf
	}
	for i := range fields {
		f := &fields[i]
		sf, ok := byName[f.Name]
		if !ok {
			return &DefinitionError{
				Format: format,
				Field:  f.Name,
				Reason: "no host struct field binds this name; the codec matches fields by " + rule,
			}
		}
		if err := checkHostField(format, rule, sf.Type, f, bind); err != nil {
			return err
		}
	}
	return nil
}

func checkHostField(format Type, rule string, t reflect.Type, f *Field, bind func(reflect.StructField) string) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch f.Type {
	case FieldRecord:
		return checkHostFields(format, rule, t, f.Fields, bind)
	case FieldArray:
		if f.Items != nil && t.Kind() == reflect.Slice {
			return checkHostField(format, rule, t.Elem(), f.Items, bind)
		}
	case FieldMap:
		if f.Values != nil && t.Kind() == reflect.Map {
			return checkHostField(format, rule, t.Elem(), f.Values, bind)
		}
	}
	return nil
}

var (
	engineMu sync.RWMutex
	engines  = map[Type]Engine{}
)

// RegisterEngine adds an engine to the global registry, replacing any
// engine previously registered for the same logical type.
func RegisterEngine(e Engine) {
	engineMu.Lock()
	defer engineMu.Unlock()
	engines[e.Type()] = e
}

// LookupEngine retrieves an engine by logical type from the global registry.
// Returns the engine and true if found, or nil and false if not found.
func LookupEngine(t Type) (Engine, bool) {
	engineMu.RLock()
	defer engineMu.RUnlock()
	e, ok := engines[t]
	return e, ok
}
