package schema

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// KeyValue is the logical pair value a KeyValueSchema encodes and decodes.
// It has no identity beyond its two fields.
type KeyValue[K, V any] struct {
	Key   K
	Value V
}

// Framing selects how a KeyValueSchema lays the two sub-payloads on the
// wire.
type Framing int8

const (
	// FramingInline frames both sub-payloads into one payload, each
	// prefixed with a 4-byte big-endian length. This is the default.
	FramingInline Framing = iota

	// FramingSeparated is for transports that carry key and value as
	// distinct fields: Encode produces only the value bytes, EncodeKey
	// exposes the key bytes, and DecodeParts reassembles the pair.
	FramingSeparated
)

// String returns a string representation of the framing mode.
func (f Framing) String() string {
	switch f {
	case FramingInline:
		return "INLINE"
	case FramingSeparated:
		return "SEPARATED"
	default:
		return fmt.Sprintf("unknown(%d)", int8(f))
	}
}

// framingProperty is the descriptor property carrying the framing mode.
const framingProperty = "kv.framing"

// KeyValueOption configures a KeyValueSchema.
type KeyValueOption func(*keyValueConfig)

type keyValueConfig struct {
	framing Framing
}

// WithFraming sets the framing mode (default FramingInline).
func WithFraming(f Framing) KeyValueOption {
	return func(c *keyValueConfig) {
		c.framing = f
	}
}

// kvDefinition is the JSON shape of a KEY_VALUE descriptor payload: both
// sub-descriptors embedded so a receiver can reconstruct compatible
// sub-codecs without prior knowledge.
type kvDefinition struct {
	Key   *Info `json:"key"`
	Value *Info `json:"value"`
}

// NewKeyValue composes two already-constructed schemas of any variant into
// one paired codec. The key and value encodings may be heterogeneous.
//
// Example:
//
//	kv := schema.NewKeyValue(schema.String, orderSchema)
//	data, err := kv.Encode(schema.KeyValue[string, Order]{Key: "o-1", Value: order})
func NewKeyValue[K, V any](key Schema[K], value Schema[V], opts ...KeyValueOption) *KeyValueSchema[K, V] {
	cfg := keyValueConfig{framing: FramingInline}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Marshaling two Info values cannot fail: every field is a string,
	// a byte slice or a string map.
	def, _ := json.Marshal(kvDefinition{Key: key.Info(), Value: value.Info()})
	info := &Info{
		Name:       "KeyValue",
		Type:       TypeKeyValue,
		Definition: def,
		Properties: map[string]string{framingProperty: cfg.framing.String()},
	}
	return &KeyValueSchema[K, V]{key: key, value: value, framing: cfg.framing, info: info}
}

// NewKeyValueOf composes two structured schemas derived from the Go types K
// and V, both encoded with the same structured format. A zero format
// selects JSON.
func NewKeyValueOf[K, V any](format Type, opts ...KeyValueOption) (*KeyValueSchema[K, V], error) {
	if format == TypeNone {
		format = TypeJSON
	}
	key, err := NewStructured[K](format)
	if err != nil {
		return nil, err
	}
	value, err := NewStructured[V](format)
	if err != nil {
		return nil, err
	}
	return NewKeyValue(key, value, opts...), nil
}

// KeyValueSchema encodes and decodes KeyValue pairs by delegating each half
// to its sub-schema and framing the results according to the configured
// framing mode.
type KeyValueSchema[K, V any] struct {
	key     Schema[K]
	value   Schema[V]
	framing Framing
	info    *Info
}

// Framing returns the framing mode fixed at construction.
func (s *KeyValueSchema[K, V]) Framing() Framing {
	return s.framing
}

// Encode encodes the pair. Under FramingInline the result is
// [4-byte length][key bytes][4-byte length][value bytes]; under
// FramingSeparated the result is the value bytes only, with the key
// available through EncodeKey.
func (s *KeyValueSchema[K, V]) Encode(kv KeyValue[K, V]) ([]byte, error) {
	valueData, err := s.value.Encode(kv.Value)
	if err != nil {
		return nil, err
	}
	if s.framing == FramingSeparated {
		return valueData, nil
	}

	keyData, err := s.key.Encode(kv.Key)
	if err != nil {
		return nil, err
	}
	if len(keyData) > math.MaxUint32 || len(valueData) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: sub-payload exceeds 4-byte length prefix", ErrSerialization)
	}

	out := make([]byte, 0, 8+len(keyData)+len(valueData))
	out = binary.BigEndian.AppendUint32(out, uint32(len(keyData)))
	out = append(out, keyData...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(valueData)))
	out = append(out, valueData...)
	return out, nil
}

// EncodeKey encodes the key half on its own. Transports using
// FramingSeparated call this to populate their out-of-band key field.
func (s *KeyValueSchema[K, V]) EncodeKey(k K) ([]byte, error) {
	return s.key.Encode(k)
}

// Decode decodes an inline-framed payload. Under FramingSeparated the key
// is not part of the payload, so Decode fails; use DecodeParts instead.
func (s *KeyValueSchema[K, V]) Decode(data []byte) (KeyValue[K, V], error) {
	var zero KeyValue[K, V]
	if s.framing == FramingSeparated {
		return zero, fmt.Errorf("%w: separated framing carries no inline key; use DecodeParts", ErrSerialization)
	}

	keyData, rest, err := readChunk(data)
	if err != nil {
		return zero, fmt.Errorf("%w: key %v", ErrSerialization, err)
	}
	valueData, rest, err := readChunk(rest)
	if err != nil {
		return zero, fmt.Errorf("%w: value %v", ErrSerialization, err)
	}
	if len(rest) != 0 {
		return zero, fmt.Errorf("%w: %d trailing bytes after value", ErrSerialization, len(rest))
	}
	return s.DecodeParts(keyData, valueData)
}

// DecodeParts decodes a pair from independently-delivered key and value
// payloads, as carried by a transport using FramingSeparated.
func (s *KeyValueSchema[K, V]) DecodeParts(keyData, valueData []byte) (KeyValue[K, V], error) {
	var zero KeyValue[K, V]
	k, err := s.key.Decode(keyData)
	if err != nil {
		return zero, err
	}
	v, err := s.value.Decode(valueData)
	if err != nil {
		return zero, err
	}
	return KeyValue[K, V]{Key: k, Value: v}, nil
}

// Validate decodes and discards the result. Under FramingSeparated the
// payload is value bytes only, so only the value half is checked.
func (s *KeyValueSchema[K, V]) Validate(data []byte) error {
	if s.framing == FramingSeparated {
		return s.value.Validate(data)
	}
	_, err := s.Decode(data)
	return err
}

// Info returns the combined descriptor: logical type KEY_VALUE with both
// sub-descriptors embedded and the framing mode in the properties.
func (s *KeyValueSchema[K, V]) Info() *Info {
	return s.info
}

// readChunk consumes one length-prefixed chunk, returning it and the
// remaining bytes.
func readChunk(data []byte) (chunk, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("length prefix truncated: %d bytes remaining", len(data))
	}
	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	if uint64(n) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("length prefix %d exceeds %d remaining bytes", n, len(data))
	}
	return data[:n], data[n:], nil
}

// Compile-time check
var _ Schema[KeyValue[[]byte, []byte]] = (*KeyValueSchema[[]byte, []byte])(nil)
