package schema

import (
	"encoding/json"
	"fmt"
)

// FromInfo reconstructs a usable schema from a descriptor, for receivers
// that learn schemas at runtime (a registry lookup, a message header)
// rather than from a compile-time type. Structured descriptors produce
// GenericRecord-valued schemas; the concrete element types are erased, so
// the result is a Schema[any].
//
// PROTOBUF descriptors cannot be reconstructed without the generated
// message type, and AUTO descriptors name a behavior rather than a format;
// both fail with ErrConfiguration.
func FromInfo(info *Info) (Schema[any], error) {
	if info == nil {
		return nil, fmt.Errorf("%w: nil schema info", ErrConfiguration)
	}
	switch info.Type {
	case TypeBytes:
		return Untyped(Bytes), nil
	case TypeString:
		return Untyped(String), nil
	case TypeJSON, TypeAvro, TypeMsgPack:
		return newGenericSchema(info)
	case TypeKeyValue:
		return fromKeyValueInfo(info)
	default:
		return nil, fmt.Errorf("%w: cannot build schema for type %s", ErrConfiguration, info.Type)
	}
}

func fromKeyValueInfo(info *Info) (Schema[any], error) {
	var def kvDefinition
	if err := json.Unmarshal(info.Definition, &def); err != nil {
		return nil, fmt.Errorf("%w: malformed KEY_VALUE definition: %v", ErrConfiguration, err)
	}
	if def.Key == nil || def.Value == nil {
		return nil, fmt.Errorf("%w: KEY_VALUE definition missing sub-schema", ErrConfiguration)
	}
	key, err := FromInfo(def.Key)
	if err != nil {
		return nil, fmt.Errorf("key schema: %w", err)
	}
	value, err := FromInfo(def.Value)
	if err != nil {
		return nil, fmt.Errorf("value schema: %w", err)
	}

	framing := FramingInline
	if info.Properties[framingProperty] == FramingSeparated.String() {
		framing = FramingSeparated
	}
	return Untyped[KeyValue[any, any]](NewKeyValue(key, value, WithFraming(framing))), nil
}
