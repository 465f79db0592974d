package schema

import (
	"fmt"
	"maps"
	"slices"
)

// GenericRecord is a dynamically-typed view of a structured payload: a
// mapping of field name to value plus the descriptor it was decoded under.
// Auto-consuming schemas return it when no compile-time host type exists
// for a schema the caller does not control.
type GenericRecord struct {
	info   *Info
	fields map[string]any
}

// NewGenericRecord creates a record over the given fields. The map is
// copied, so later mutation of the argument does not affect the record.
func NewGenericRecord(info *Info, fields map[string]any) *GenericRecord {
	copied := make(map[string]any, len(fields))
	maps.Copy(copied, fields)
	return &GenericRecord{info: info, fields: copied}
}

// Info returns the descriptor the payload was decoded under.
func (r *GenericRecord) Info() *Info {
	return r.info
}

// Get returns the value of a field and whether the field is present.
func (r *GenericRecord) Get(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Fields returns a copy of the field map.
func (r *GenericRecord) Fields() map[string]any {
	copied := make(map[string]any, len(r.fields))
	maps.Copy(copied, r.fields)
	return copied
}

// Names returns the field names in sorted order.
func (r *GenericRecord) Names() []string {
	names := slices.Collect(maps.Keys(r.fields))
	slices.Sort(names)
	return names
}

// newGenericSchema builds a dynamic schema for a structured descriptor:
// Decode produces a *GenericRecord instead of a fixed host type. Used when
// a descriptor is recovered at runtime (FromInfo, auto-consume) and no Go
// type is available.
func newGenericSchema(info *Info) (Schema[any], error) {
	if !info.Type.structured() {
		return nil, fmt.Errorf("%w: %s payloads carry no interpretable definition", ErrConfiguration, info.Type)
	}
	eng, ok := LookupEngine(info.Type)
	if !ok {
		return nil, fmt.Errorf("%w: no engine registered for schema type %s", ErrConfiguration, info.Type)
	}
	codec, err := eng.Codec(info)
	if err != nil {
		return nil, err
	}
	return &genericSchema{codec: codec, info: info}, nil
}

type genericSchema struct {
	codec Codec
	info  *Info
}

func (s *genericSchema) Encode(v any) ([]byte, error) {
	if r, ok := v.(*GenericRecord); ok {
		v = r.fields
	}
	data, err := s.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s encode: %v", ErrSerialization, s.info.Type, err)
	}
	return data, nil
}

func (s *genericSchema) Decode(data []byte) (any, error) {
	var m map[string]any
	if err := s.codec.Decode(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s decode: %v", ErrSerialization, s.info.Type, err)
	}
	return &GenericRecord{info: s.info, fields: m}, nil
}

func (s *genericSchema) Validate(data []byte) error {
	_, err := s.Decode(data)
	return err
}

func (s *genericSchema) Info() *Info {
	return s.info
}
