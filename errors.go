package schema

import (
	"errors"
	"fmt"
)

// Error taxonomy. All failures returned by this package wrap exactly one of
// these sentinels; use errors.Is() to classify them, as they may carry
// additional context.
var (
	// ErrSerialization indicates a malformed payload on decode/validate or
	// a value that cannot be represented under the bound schema on encode.
	// Always recoverable by the caller (skip or reject the message).
	ErrSerialization = errors.New("serialization failed")

	// ErrSchemaDefinition indicates a type description that cannot be
	// mapped to the requested structured format. Raised at construction
	// time and fatal to that construction attempt only.
	ErrSchemaDefinition = errors.New("type not representable in schema format")

	// ErrSchemaResolution indicates the schema authority was unreachable
	// or does not know the requested identity. Recoverable: the identity
	// stays unresolved and the next call retries the lookup.
	ErrSchemaResolution = errors.New("schema resolution failed")

	// ErrUnsupportedSchema indicates the authority resolved an identity to
	// a schema type this codec variant cannot handle. Fatal for messages
	// carrying that identity; other identities are unaffected.
	ErrUnsupportedSchema = errors.New("unsupported schema type")

	// ErrConfiguration indicates a parameter combination that corresponds
	// to no supported schema variant. Fatal at construction and indicates
	// a caller bug.
	ErrConfiguration = errors.New("invalid schema configuration")
)

// DefinitionError reports why a specific field of a type description could
// not be mapped to a structured format. It unwraps to ErrSchemaDefinition.
type DefinitionError struct {
	// Format is the structured format that rejected the definition.
	Format Type
	// Field is the offending field name, if any.
	Field string
	// Reason describes the rejection.
	Reason string
}

func (e *DefinitionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s schema definition: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("%s schema definition: field %q: %s", e.Format, e.Field, e.Reason)
}

func (e *DefinitionError) Unwrap() error {
	return ErrSchemaDefinition
}

// IsDefinitionError checks if an error carries field-level definition detail.
func IsDefinitionError(err error) bool {
	var defErr *DefinitionError
	return errors.As(err, &defErr)
}
