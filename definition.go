package schema

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// FieldType is the format-neutral type of a definition field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInt     FieldType = "int"
	FieldLong    FieldType = "long"
	FieldFloat   FieldType = "float"
	FieldDouble  FieldType = "double"
	FieldBoolean FieldType = "boolean"
	FieldBytes   FieldType = "bytes"
	FieldArray   FieldType = "array"
	FieldMap     FieldType = "map"
	FieldRecord  FieldType = "record"
)

// Field describes one field of a record definition.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Optional bool      `json:"optional,omitempty"`

	// Items is the element type when Type is FieldArray.
	Items *Field `json:"items,omitempty"`

	// Values is the value type when Type is FieldMap. Map keys are
	// always strings.
	Values *Field `json:"values,omitempty"`

	// Fields are the nested fields when Type is FieldRecord.
	Fields []Field `json:"fields,omitempty"`
}

// Definition is an explicit type description for a record: the host-language
// shape a structured engine derives its schema from. It is built once per
// type, either by hand or via DefinitionOf, and reused for the lifetime of
// the schemas constructed from it.
type Definition struct {
	// Name is the record name, typically the Go type name.
	Name string `json:"name"`

	// Doc is an optional description carried into derived schemas.
	Doc string `json:"doc,omitempty"`

	// Fields are the record's fields in declaration order.
	Fields []Field `json:"fields"`

	// Properties carries optional metadata copied into the derived Info.
	Properties map[string]string `json:"properties,omitempty"`
}

// DefinitionOf builds a Definition by introspecting the struct type T.
//
// Field names follow struct tags in priority order "avro", "json", falling
// back to the Go field name. Fields tagged "-" and unexported fields are
// skipped. Pointer fields become optional. Returns a DefinitionError
// (wrapping ErrSchemaDefinition) if T or one of its fields has no
// representation in a structured format.
//
// Example:
//
//	type Order struct {
//	    ID    string  `json:"id"`
//	    Total float64 `json:"total"`
//	}
//
//	def, err := schema.DefinitionOf[Order]()
func DefinitionOf[T any]() (*Definition, error) {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &DefinitionError{Reason: "type " + t.String() + " is not a struct"}
	}
	fields, err := structFields(t)
	if err != nil {
		return nil, err
	}
	return &Definition{Name: t.Name(), Fields: fields}, nil
}

func structFields(t reflect.Type) ([]Field, error) {
	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := fieldName(sf)
		if name == "-" {
			continue
		}
		f, err := fieldOf(name, sf.Type)
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
	}
	return fields, nil
}

func fieldName(sf reflect.StructField) string {
	for _, tag := range []string{"avro", "json"} {
		v, ok := sf.Tag.Lookup(tag)
		if !ok {
			continue
		}
		if idx := strings.Index(v, ","); idx >= 0 {
			v = v[:idx]
		}
		if v != "" {
			return v
		}
	}
	return sf.Name
}

// marshalDefinition renders a definition in its canonical JSON form, used
// by self-describing formats as the descriptor payload.
func marshalDefinition(def *Definition) ([]byte, error) {
	return json.Marshal(def)
}

var timeType = reflect.TypeOf(time.Time{})

func fieldOf(name string, t reflect.Type) (*Field, error) {
	optional := false
	for t.Kind() == reflect.Pointer {
		optional = true
		t = t.Elem()
	}

	f := &Field{Name: name, Optional: optional}

	// time.Time round-trips as RFC 3339 text in every supported format.
	if t == timeType {
		f.Type = FieldString
		return f, nil
	}

	switch t.Kind() {
	case reflect.String:
		f.Type = FieldString
	case reflect.Bool:
		f.Type = FieldBoolean
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		f.Type = FieldInt
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		f.Type = FieldLong
	case reflect.Float32:
		f.Type = FieldFloat
	case reflect.Float64:
		f.Type = FieldDouble
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			f.Type = FieldBytes
			return f, nil
		}
		items, err := fieldOf(name, t.Elem())
		if err != nil {
			return nil, err
		}
		f.Type = FieldArray
		f.Items = items
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, &DefinitionError{Field: name, Reason: "map keys must be strings, got " + t.Key().String()}
		}
		values, err := fieldOf(name, t.Elem())
		if err != nil {
			return nil, err
		}
		f.Type = FieldMap
		f.Values = values
	case reflect.Struct:
		nested, err := structFields(t)
		if err != nil {
			return nil, err
		}
		f.Type = FieldRecord
		f.Fields = nested
	default:
		return nil, &DefinitionError{Field: name, Reason: "unsupported kind " + t.Kind().String()}
	}
	return f, nil
}
