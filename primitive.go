package schema

import (
	"fmt"
	"unicode/utf8"
)

// Bytes is a schema that performs no encoding on message payloads. It
// accepts a byte slice and passes it through unchanged in both directions,
// and never fails.
var Bytes Schema[[]byte] = bytesSchema{}

// String is a schema for messages whose values are text. Payloads are
// encoded with UTF-8; decoding fails on invalid UTF-8 byte sequences.
var String Schema[string] = stringSchema{}

var (
	bytesInfo  = &Info{Name: "Bytes", Type: TypeBytes}
	stringInfo = &Info{Name: "String", Type: TypeString}
)

type bytesSchema struct{}

func (bytesSchema) Encode(v []byte) ([]byte, error) {
	return v, nil
}

func (bytesSchema) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// Validate accepts every payload; any byte sequence is a valid encoding.
func (bytesSchema) Validate([]byte) error {
	return nil
}

func (bytesSchema) Info() *Info {
	return bytesInfo
}

type stringSchema struct{}

func (stringSchema) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

func (stringSchema) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrSerialization)
	}
	return string(data), nil
}

// Validate checks UTF-8 well-formedness without allocating the string.
// Accepts exactly the payloads Decode accepts.
func (stringSchema) Validate(data []byte) error {
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: payload is not valid UTF-8", ErrSerialization)
	}
	return nil
}

func (stringSchema) Info() *Info {
	return stringInfo
}

// Compile-time checks
var (
	_ Schema[[]byte] = bytesSchema{}
	_ Schema[string] = stringSchema{}
)
