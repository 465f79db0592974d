package schema

import (
	"encoding/json"
	"maps"
	"reflect"
	"strings"
)

// jsonEngine implements Engine using encoding/json. The derived descriptor
// is a JSON Schema style document so receivers on other stacks can
// interpret it.
type jsonEngine struct{}

func (jsonEngine) Type() Type {
	return TypeJSON
}

// jsonSchemaDoc is the subset of JSON Schema the engine emits.
type jsonSchemaDoc struct {
	Title                string                    `json:"title,omitempty"`
	Description          string                    `json:"description,omitempty"`
	Type                 string                    `json:"type"`
	Properties           map[string]*jsonSchemaDoc `json:"properties,omitempty"`
	Items                *jsonSchemaDoc            `json:"items,omitempty"`
	AdditionalProperties *jsonSchemaDoc            `json:"additionalProperties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
}

func (jsonEngine) Define(def *Definition) (*Info, error) {
	if def == nil {
		return nil, &DefinitionError{Format: TypeJSON, Reason: "nil definition"}
	}
	doc := &jsonSchemaDoc{
		Title:       def.Name,
		Description: def.Doc,
		Type:        "object",
		Properties:  make(map[string]*jsonSchemaDoc, len(def.Fields)),
	}
	for i := range def.Fields {
		f := &def.Fields[i]
		doc.Properties[f.Name] = jsonFieldDoc(f)
		if !f.Optional {
			doc.Required = append(doc.Required, f.Name)
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &DefinitionError{Format: TypeJSON, Reason: err.Error()}
	}
	var props map[string]string
	if def.Properties != nil {
		props = make(map[string]string, len(def.Properties))
		maps.Copy(props, def.Properties)
	}
	return &Info{Name: def.Name, Type: TypeJSON, Definition: data, Properties: props}, nil
}

func jsonFieldDoc(f *Field) *jsonSchemaDoc {
	doc := &jsonSchemaDoc{}
	switch f.Type {
	case FieldString, FieldBytes:
		doc.Type = "string"
	case FieldInt, FieldLong:
		doc.Type = "integer"
	case FieldFloat, FieldDouble:
		doc.Type = "number"
	case FieldBoolean:
		doc.Type = "boolean"
	case FieldArray:
		doc.Type = "array"
		if f.Items != nil {
			doc.Items = jsonFieldDoc(f.Items)
		}
	case FieldMap:
		doc.Type = "object"
		if f.Values != nil {
			doc.AdditionalProperties = jsonFieldDoc(f.Values)
		}
	case FieldRecord:
		doc.Type = "object"
		doc.Properties = make(map[string]*jsonSchemaDoc, len(f.Fields))
		for i := range f.Fields {
			nested := &f.Fields[i]
			doc.Properties[nested.Name] = jsonFieldDoc(nested)
			if !nested.Optional {
				doc.Required = append(doc.Required, nested.Name)
			}
		}
	default:
		doc.Type = "string"
	}
	return doc
}

// bindHost rejects derived field names encoding/json cannot populate. The
// codec matches a struct field by the name segment of its json tag, or by
// its Go name; a name derived from an avro tag would round-trip to an
// absent JSON property.
func (jsonEngine) bindHost(host reflect.Type, def *Definition) error {
	return checkHostFields(TypeJSON, "json tag or Go field name", host, def.Fields, func(sf reflect.StructField) string {
		if tag, ok := sf.Tag.Lookup("json"); ok {
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag != "" {
				return tag
			}
		}
		return sf.Name
	})
}

func (jsonEngine) Codec(info *Info) (Codec, error) {
	return jsonCodec{}, nil
}

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Compile-time check
var _ Engine = jsonEngine{}

func init() {
	RegisterEngine(jsonEngine{})
}
