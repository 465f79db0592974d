// Package schema provides pluggable message serialization for producers and
// consumers of a messaging system: one generic contract for turning typed
// values into byte payloads and back, plus composable schema shapes built on
// top of it.
//
// Available shapes:
//   - Bytes, String: primitive pass-through and UTF-8 codecs (process-wide
//     singletons)
//   - NewJSON, NewAvro, NewMsgPack: structured codecs derived from a type
//     description and backed by a pluggable Engine
//   - NewProto: structured codec over a generated protobuf message
//   - NewKeyValue, NewKeyValueOf: a compound codec pairing two independent
//     sub-schemas into one key/value wire format
//   - NewAutoConsume, NewAutoProduce: deferred codecs whose concrete
//     encoding is resolved at runtime from a schema authority
//   - FromInfo: reconstructs a codec from a raw descriptor recovered from
//     an authority
//
// Basic example with compile-time type safety:
//
//	type Order struct {
//	    ID    string  `json:"id"`
//	    Total float64 `json:"total"`
//	}
//
//	s, err := schema.NewJSON[Order]()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	data, err := s.Encode(Order{ID: "123", Total: 42.5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	order, err := s.Decode(data)
//
// Every schema instance is immutable after construction and safe for
// concurrent use. Errors returned by this package wrap one of the sentinel
// errors in errors.go; classify them with errors.Is().
//
// The subpackage registry provides schema-authority implementations
// (in-memory, HTTP, Redis, MongoDB) usable as the Resolver consumed by the
// auto-resolving schemas.
package schema
