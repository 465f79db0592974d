package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rbaliyan/schema"
)

// Memory is an in-process Store. Primarily intended for testing and
// development; contents are lost when the process exits.
//
// Example:
//
//	store := registry.NewMemory()
//	defer store.Close()
//
//	id, _ := store.Register(ctx, "orders", info)
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	byID     map[int64]*schema.Info
	byPrint  map[string]int64    // fingerprint -> identity
	subjects map[string][]int64  // subject -> identities, registration order
	closed   bool
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		byID:     make(map[int64]*schema.Info),
		byPrint:  make(map[string]int64),
		subjects: make(map[string][]int64),
	}
}

// Register records a schema under the subject and returns its identity.
// Re-registering a payload-identical schema returns the existing identity.
func (m *Memory) Register(ctx context.Context, subject string, info *schema.Info) (int64, error) {
	if info == nil {
		return 0, fmt.Errorf("%w: nil schema info", schema.ErrConfiguration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	print := fingerprint(info)
	if id, ok := m.byPrint[print]; ok {
		if !slices.Contains(m.subjects[subject], id) {
			m.subjects[subject] = append(m.subjects[subject], id)
		}
		return id, nil
	}

	m.nextID++
	id := m.nextID
	m.byID[id] = info.Clone()
	m.byPrint[print] = id
	m.subjects[subject] = append(m.subjects[subject], id)
	return id, nil
}

// Resolve returns the schema registered under the identity.
func (m *Memory) Resolve(ctx context.Context, version int64) (*schema.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	info, ok := m.byID[version]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, version)
	}
	return info.Clone(), nil
}

// Latest returns the identity and schema most recently registered under
// the subject.
func (m *Memory) Latest(ctx context.Context, subject string) (int64, *schema.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, nil, ErrClosed
	}

	ids := m.subjects[subject]
	if len(ids) == 0 {
		return 0, nil, fmt.Errorf("%w: subject %q", ErrNotFound, subject)
	}
	id := ids[len(ids)-1]
	return id, m.byID[id].Clone(), nil
}

// Subjects lists registered subjects, sorted.
func (m *Memory) Subjects(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	result := make([]string, 0, len(m.subjects))
	for subject := range m.subjects {
		result = append(result, subject)
	}
	slices.Sort(result)
	return result, nil
}

// Delete removes the subject's version history. Identities registered
// through it remain resolvable.
func (m *Memory) Delete(ctx context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.subjects, subject)
	return nil
}

// Close closes the store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Len returns the number of distinct registered schemas (for testing).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Compile-time check that Memory implements Store.
var _ Store = (*Memory)(nil)
