package schema

import (
	"bytes"
	"errors"
	"testing"
)

func TestFromInfoNil(t *testing.T) {
	_, err := FromInfo(nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestFromInfoPrimitives(t *testing.T) {
	b, err := FromInfo(Bytes.Info())
	if err != nil {
		t.Fatalf("bytes reconstruction failed: %v", err)
	}
	data, err := b.Encode([]byte{0x01})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0x01}) {
		t.Errorf("encode = %v, want [1]", data)
	}

	s, err := FromInfo(String.Info())
	if err != nil {
		t.Fatalf("string reconstruction failed: %v", err)
	}
	out, err := s.Decode([]byte("hi"))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out != any("hi") {
		t.Errorf("decode = %v, want hi", out)
	}
	if _, err := s.Decode([]byte{0xFF}); !errors.Is(err, ErrSerialization) {
		t.Errorf("expected ErrSerialization, got %v", err)
	}
}

func TestFromInfoStructured(t *testing.T) {
	typed, err := NewJSON[testOrder]()
	if err != nil {
		t.Fatalf("construction failed: %v", err)
	}
	in := randomOrder()
	payload, err := typed.Encode(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Rebuild from the descriptor alone, as a receiver would.
	s, err := FromInfo(typed.Info())
	if err != nil {
		t.Fatalf("reconstruction failed: %v", err)
	}

	v, err := s.Decode(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	rec, ok := v.(*GenericRecord)
	if !ok {
		t.Fatalf("decode produced %T, want *GenericRecord", v)
	}
	if id, _ := rec.Get("id"); id != in.ID {
		t.Errorf("id = %v, want %v", id, in.ID)
	}

	// The generic schema can re-encode the record.
	data, err := s.Encode(rec)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	again, err := typed.Decode(data)
	if err != nil {
		t.Fatalf("typed decode failed: %v", err)
	}
	if again.ID != in.ID {
		t.Errorf("round trip id = %v, want %v", again.ID, in.ID)
	}
}

func TestFromInfoKeyValue(t *testing.T) {
	kv := NewKeyValue(String, Bytes)
	built, err := FromInfo(kv.Info())
	if err != nil {
		t.Fatalf("reconstruction failed: %v", err)
	}

	data, err := kv.Encode(KeyValue[string, []byte]{Key: "k", Value: []byte{0x07}})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	v, err := built.Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	pair, ok := v.(KeyValue[any, any])
	if !ok {
		t.Fatalf("decode produced %T, want KeyValue", v)
	}
	if pair.Key != any("k") {
		t.Errorf("key = %v, want k", pair.Key)
	}
	value, ok := pair.Value.([]byte)
	if !ok || !bytes.Equal(value, []byte{0x07}) {
		t.Errorf("value = %v, want [7]", pair.Value)
	}
}

func TestFromInfoKeyValueFraming(t *testing.T) {
	kv := NewKeyValue(String, Bytes, WithFraming(FramingSeparated))
	built, err := FromInfo(kv.Info())
	if err != nil {
		t.Fatalf("reconstruction failed: %v", err)
	}

	// The rebuilt schema carries the separated framing, so plain Decode
	// refuses just like the original.
	if _, err := built.Decode([]byte{0x01}); !errors.Is(err, ErrSerialization) {
		t.Errorf("expected ErrSerialization, got %v", err)
	}
}

func TestFromInfoUnsupported(t *testing.T) {
	tests := []struct {
		name string
		info *Info
	}{
		{"protobuf", &Info{Type: TypeProtobuf}},
		{"auto consume", &Info{Type: TypeAutoConsume}},
		{"auto produce", &Info{Type: TypeAutoProduce}},
		{"none", &Info{Type: TypeNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromInfo(tt.info)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestFromInfoMalformedKeyValue(t *testing.T) {
	_, err := FromInfo(&Info{Type: TypeKeyValue, Definition: []byte("{")})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
