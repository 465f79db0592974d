package schema

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// NewProto creates a Protobuf schema for a generated message type. Unlike
// the definition-driven formats, Protobuf requires T to already be a
// generated message; the constraint enforces that at compile time. The
// descriptor payload is the message's serialized DescriptorProto.
//
// Example:
//
//	s, err := schema.NewProto[*pb.Order]()
//	data, err := s.Encode(&pb.Order{Id: "123"})
func NewProto[T proto.Message]() (Schema[T], error) {
	var zero T
	// Generated messages expose their descriptor through a nil receiver.
	m := zero.ProtoReflect()
	md := m.Descriptor()

	dp := protodesc.ToDescriptorProto(md)
	def, err := proto.Marshal(dp)
	if err != nil {
		return nil, &DefinitionError{Format: TypeProtobuf, Reason: err.Error()}
	}

	info := &Info{
		Name:       string(md.FullName()),
		Type:       TypeProtobuf,
		Definition: def,
	}
	return &protoSchema[T]{info: info, mtype: m.Type()}, nil
}

type protoSchema[T proto.Message] struct {
	info  *Info
	mtype protoreflect.MessageType
}

func (s *protoSchema[T]) Encode(v T) ([]byte, error) {
	data, err := proto.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: protobuf encode: %v", ErrSerialization, err)
	}
	return data, nil
}

func (s *protoSchema[T]) Decode(data []byte) (T, error) {
	msg := s.mtype.New().Interface()
	if err := proto.Unmarshal(data, msg); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: protobuf decode: %v", ErrSerialization, err)
	}
	return msg.(T), nil
}

func (s *protoSchema[T]) Validate(data []byte) error {
	_, err := s.Decode(data)
	return err
}

func (s *protoSchema[T]) Info() *Info {
	return s.info
}
