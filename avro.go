package schema

import (
	"encoding/json"
	"maps"
	"reflect"

	"github.com/hamba/avro/v2"
)

// avroEngine implements Engine on top of github.com/hamba/avro. The derived
// descriptor is a standard Avro record schema, parsed once at Define time so
// unrepresentable definitions fail at construction rather than on the first
// message.
type avroEngine struct{}

func (avroEngine) Type() Type {
	return TypeAvro
}

func (avroEngine) Define(def *Definition) (*Info, error) {
	if def == nil {
		return nil, &DefinitionError{Format: TypeAvro, Reason: "nil definition"}
	}
	name := def.Name
	if name == "" {
		name = "Record"
	}
	doc := map[string]any{
		"type":   "record",
		"name":   name,
		"fields": avroFields(def.Fields),
	}
	if def.Doc != "" {
		doc["doc"] = def.Doc
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &DefinitionError{Format: TypeAvro, Reason: err.Error()}
	}
	if _, err := avro.Parse(string(data)); err != nil {
		return nil, &DefinitionError{Format: TypeAvro, Reason: err.Error()}
	}
	var props map[string]string
	if def.Properties != nil {
		props = make(map[string]string, len(def.Properties))
		maps.Copy(props, def.Properties)
	}
	return &Info{Name: name, Type: TypeAvro, Definition: data, Properties: props}, nil
}

func avroFields(fields []Field) []map[string]any {
	out := make([]map[string]any, 0, len(fields))
	for i := range fields {
		f := &fields[i]
		entry := map[string]any{
			"name": f.Name,
			"type": avroType(f),
		}
		if f.Optional {
			// Optional fields become nullable unions defaulting to null.
			entry["type"] = []any{"null", avroType(f)}
			entry["default"] = nil
		}
		out = append(out, entry)
	}
	return out
}

func avroType(f *Field) any {
	switch f.Type {
	case FieldString:
		return "string"
	case FieldBytes:
		return "bytes"
	case FieldInt:
		return "int"
	case FieldLong:
		return "long"
	case FieldFloat:
		return "float"
	case FieldDouble:
		return "double"
	case FieldBoolean:
		return "boolean"
	case FieldArray:
		items := any("bytes")
		if f.Items != nil {
			items = avroType(f.Items)
		}
		return map[string]any{"type": "array", "items": items}
	case FieldMap:
		values := any("bytes")
		if f.Values != nil {
			values = avroType(f.Values)
		}
		return map[string]any{"type": "map", "values": values}
	case FieldRecord:
		return map[string]any{
			"type":   "record",
			"name":   f.Name,
			"fields": avroFields(f.Fields),
		}
	default:
		return string(f.Type)
	}
}

// bindHost rejects derived field names the struct codec cannot populate.
// The Avro codec matches a struct field by the full value of its avro tag,
// or by its exact Go name when the tag is absent; a name derived from a
// json tag would build a valid schema and then encode nothing for that
// field.
func (avroEngine) bindHost(host reflect.Type, def *Definition) error {
	return checkHostFields(TypeAvro, "avro tag or Go field name", host, def.Fields, func(sf reflect.StructField) string {
		if tag, ok := sf.Tag.Lookup("avro"); ok {
			return tag
		}
		return sf.Name
	})
}

func (avroEngine) Codec(info *Info) (Codec, error) {
	s, err := avro.Parse(string(info.Definition))
	if err != nil {
		return nil, &DefinitionError{Format: TypeAvro, Reason: err.Error()}
	}
	return avroCodec{schema: s}, nil
}

type avroCodec struct {
	schema avro.Schema
}

func (c avroCodec) Encode(v any) ([]byte, error) {
	return avro.Marshal(c.schema, v)
}

func (c avroCodec) Decode(data []byte, v any) error {
	return avro.Unmarshal(c.schema, data, v)
}

// Compile-time check
var _ Engine = avroEngine{}

func init() {
	RegisterEngine(avroEngine{})
}
