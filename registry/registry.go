// Package registry provides schema stores: durable, append-only catalogs
// of schema descriptors keyed by registry-assigned identities and grouped
// into subjects.
//
// Every Store is also a schema.Resolver, so any store can back the
// auto-resolving schemas directly:
//
//	store := registry.NewMemory()
//	id, _ := store.Register(ctx, "orders", avroOrders.Info())
//
//	s := schema.NewAutoConsume("orders", store)
//	rec, _ := s.Decode(payload)
//
// Backends: NewMemory (in-process, for tests and single-node setups),
// NewClient (Confluent-compatible HTTP registry), NewRedis and NewMongo
// (shared stores without a dedicated registry service).
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/rbaliyan/schema"
)

// Registry errors.
var (
	// ErrNotFound indicates the requested identity or subject is not
	// registered.
	ErrNotFound = errors.New("schema not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("registry closed")
)

// Store is a schema catalog. Identities are assigned by the store on
// registration and are stable for the life of the catalog; registering a
// payload-identical schema under the same subject returns the existing
// identity instead of minting a new one.
type Store interface {
	schema.Resolver

	// Register records a schema under a subject and returns its identity.
	Register(ctx context.Context, subject string, info *schema.Info) (int64, error)

	// Subjects lists the subjects with at least one registered schema.
	Subjects(ctx context.Context) ([]string, error)

	// Delete removes a subject and its version history. Identities stay
	// resolvable so already-written messages remain decodable.
	Delete(ctx context.Context, subject string) error

	// Close releases the store's resources.
	Close() error
}

// fingerprint derives a content address for a schema payload, used to
// deduplicate re-registrations. Two schemas with the same logical type and
// definition are the same schema regardless of name or properties.
func fingerprint(info *schema.Info) string {
	h := sha256.New()
	h.Write([]byte{byte(info.Type)})
	h.Write(info.Definition)
	return hex.EncodeToString(h.Sum(nil))
}
