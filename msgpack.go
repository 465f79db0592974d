package schema

import (
	"maps"

	"github.com/vmihailenco/msgpack/v5"
)

// msgpackEngine implements Engine using MessagePack serialization.
// MessagePack is self-describing, so the descriptor carries the type
// description itself rather than a format-specific schema language.
type msgpackEngine struct{}

func (msgpackEngine) Type() Type {
	return TypeMsgPack
}

func (msgpackEngine) Define(def *Definition) (*Info, error) {
	if def == nil {
		return nil, &DefinitionError{Format: TypeMsgPack, Reason: "nil definition"}
	}
	data, err := marshalDefinition(def)
	if err != nil {
		return nil, &DefinitionError{Format: TypeMsgPack, Reason: err.Error()}
	}
	var props map[string]string
	if def.Properties != nil {
		props = make(map[string]string, len(def.Properties))
		maps.Copy(props, def.Properties)
	}
	return &Info{Name: def.Name, Type: TypeMsgPack, Definition: data, Properties: props}, nil
}

func (msgpackEngine) Codec(info *Info) (Codec, error) {
	return msgpackCodec{}, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// Compile-time check
var _ Engine = msgpackEngine{}

func init() {
	RegisterEngine(msgpackEngine{})
}
