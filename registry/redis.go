package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rbaliyan/schema"
)

// Redis is a Store backed by Redis, for sharing a schema catalog across
// processes without running a dedicated registry service.
//
// Layout, under a configurable prefix (default "schema"):
//   - {prefix}:next            counter backing identity allocation (INCR)
//   - {prefix}:ids             hash: identity -> JSON-encoded descriptor
//   - {prefix}:prints          hash: fingerprint -> identity
//   - {prefix}:subject:{name}  list of identities in registration order
//   - {prefix}:subjects        set of subject names
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := registry.NewRedis(client)
//	defer store.Close()
type Redis struct {
	client redis.UniversalClient
	prefix string

	mu     sync.RWMutex
	closed bool
}

// RedisOption configures Redis.
type RedisOption func(*Redis)

// WithKeyPrefix sets a custom key prefix (default "schema").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis creates a Redis-backed store. The caller owns the client;
// Close does not close it.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "schema",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (r *Redis) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Register records a schema under the subject and returns its identity.
// Registration spans several keys and is not atomic: racing registrations
// of the same schema may append a duplicate version entry to the subject
// list, which does not affect Latest.
func (r *Redis) Register(ctx context.Context, subject string, info *schema.Info) (int64, error) {
	if r.isClosed() {
		return 0, ErrClosed
	}
	if info == nil {
		return 0, fmt.Errorf("%w: nil schema info", schema.ErrConfiguration)
	}

	print := fingerprint(info)
	id, err := r.client.HGet(ctx, r.key("prints"), print).Int64()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("lookup fingerprint: %w", err)
	}
	if err == redis.Nil {
		id, err = r.client.Incr(ctx, r.key("next")).Result()
		if err != nil {
			return 0, fmt.Errorf("allocate id: %w", err)
		}
		data, err := json.Marshal(info)
		if err != nil {
			return 0, fmt.Errorf("marshal schema: %w", err)
		}
		if err := r.client.HSet(ctx, r.key("ids"), idField(id), data).Err(); err != nil {
			return 0, fmt.Errorf("store schema: %w", err)
		}
		if err := r.client.HSet(ctx, r.key("prints"), print, id).Err(); err != nil {
			return 0, fmt.Errorf("store fingerprint: %w", err)
		}
	}

	last, err := r.client.LIndex(ctx, r.key("subject", subject), -1).Int64()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("read subject: %w", err)
	}
	if err == redis.Nil || last != id {
		if err := r.client.RPush(ctx, r.key("subject", subject), id).Err(); err != nil {
			return 0, fmt.Errorf("append version: %w", err)
		}
	}
	if err := r.client.SAdd(ctx, r.key("subjects"), subject).Err(); err != nil {
		return 0, fmt.Errorf("record subject: %w", err)
	}
	return id, nil
}

// Resolve returns the schema registered under the identity.
func (r *Redis) Resolve(ctx context.Context, version int64) (*schema.Info, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}

	data, err := r.client.HGet(ctx, r.key("ids"), idField(version)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}

	var info schema.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return &info, nil
}

// Latest returns the identity and schema most recently registered under
// the subject.
func (r *Redis) Latest(ctx context.Context, subject string) (int64, *schema.Info, error) {
	if r.isClosed() {
		return 0, nil, ErrClosed
	}

	id, err := r.client.LIndex(ctx, r.key("subject", subject), -1).Int64()
	if err == redis.Nil {
		return 0, nil, fmt.Errorf("%w: subject %q", ErrNotFound, subject)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("read subject: %w", err)
	}

	info, err := r.Resolve(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return id, info, nil
}

// Subjects lists registered subjects.
func (r *Redis) Subjects(ctx context.Context) ([]string, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}

	subjects, err := r.client.SMembers(ctx, r.key("subjects")).Result()
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// Delete removes the subject's version history. Identities stay
// resolvable.
func (r *Redis) Delete(ctx context.Context, subject string) error {
	if r.isClosed() {
		return ErrClosed
	}

	if err := r.client.Del(ctx, r.key("subject", subject)).Err(); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if err := r.client.SRem(ctx, r.key("subjects"), subject).Err(); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}

// Close closes the store. The underlying Redis client stays open.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

func idField(id int64) string {
	return fmt.Sprintf("%d", id)
}

// Compile-time check that Redis implements Store.
var _ Store = (*Redis)(nil)
