package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// instrumentationName scopes the meters and tracers this package acquires.
const instrumentationName = "github.com/rbaliyan/schema"

// DefaultResolveTimeout bounds authority lookups made from the
// context-free Schema interface methods.
var DefaultResolveTimeout = 30 * time.Second

// Resolver is the schema-authority contract consumed by the auto-resolving
// schemas: it resolves a schema identity carried alongside a message, or
// answers with the current schema for a topic.
//
// The registry subpackage provides in-memory, HTTP, Redis and MongoDB
// implementations.
type Resolver interface {
	// Resolve returns the schema registered under the given identity.
	Resolve(ctx context.Context, version int64) (*Info, error)

	// Latest returns the identity and schema the topic currently uses.
	Latest(ctx context.Context, topic string) (int64, *Info, error)
}

// AutoOption configures an auto-resolving schema.
type AutoOption func(*autoConfig)

type autoConfig struct {
	timeout time.Duration
	logger  *slog.Logger
}

// WithResolveTimeout bounds authority lookups triggered through the
// context-free Encode/Decode/Validate methods. Context-taking variants use
// their caller's deadline instead. Default is DefaultResolveTimeout.
func WithResolveTimeout(d time.Duration) AutoOption {
	return func(c *autoConfig) {
		c.timeout = d
	}
}

// WithResolveLogger sets a logger for resolution activity. The schema is
// silent when no logger is set.
func WithResolveLogger(l *slog.Logger) AutoOption {
	return func(c *autoConfig) {
		c.logger = l
	}
}

// resolverCache lazily maps schema identities to resolved concrete codecs.
// Entries are never evicted: schemas are assumed to grow, not churn, during
// a session. Concurrent first lookups of the same identity are collapsed to
// a single authority call; a failed lookup leaves the identity unresolved
// so the next call retries.
type resolverCache struct {
	topic    string
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger

	group     singleflight.Group
	mu        sync.RWMutex
	byVersion map[int64]Schema[any]
	latest    int64 // identity of the topic's current schema, 0 until resolved
}

func newResolverCache(topic string, resolver Resolver, opts []AutoOption) *resolverCache {
	cfg := autoConfig{timeout: DefaultResolveTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &resolverCache{
		topic:     topic,
		resolver:  resolver,
		timeout:   cfg.timeout,
		logger:    cfg.logger,
		byVersion: make(map[int64]Schema[any]),
	}
}

// background returns a context bounded by the configured timeout, for calls
// arriving through the context-free Schema interface methods.
func (c *resolverCache) background() (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(context.Background(), c.timeout)
	}
	return context.Background(), func() {}
}

func (c *resolverCache) cached(version int64) (Schema[any], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if version <= 0 {
		if c.latest == 0 {
			return nil, false
		}
		version = c.latest
	}
	s, ok := c.byVersion[version]
	return s, ok
}

// schemaFor returns the resolved codec for an identity, resolving it on
// first use. A version <= 0 means "whatever the topic currently uses".
func (c *resolverCache) schemaFor(ctx context.Context, version int64) (Schema[any], error) {
	if s, ok := c.cached(version); ok {
		return s, nil
	}

	key := "latest"
	if version > 0 {
		key = strconv.FormatInt(version, 10)
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: a previous winner may have
		// populated the cache between the miss and the Do call.
		if s, ok := c.cached(version); ok {
			return s, nil
		}
		return c.resolve(ctx, version)
	})
	if err != nil {
		return nil, err
	}
	return v.(Schema[any]), nil
}

func (c *resolverCache) resolve(ctx context.Context, version int64) (Schema[any], error) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "schema.resolve",
		trace.WithAttributes(
			attribute.String("topic", c.topic),
			attribute.Int64("version", version)))
	defer span.End()

	var (
		info *Info
		id   = version
		err  error
	)
	if version > 0 {
		info, err = c.resolver.Resolve(ctx, version)
	} else {
		id, info, err = c.resolver.Latest(ctx, c.topic)
	}

	meter := otel.Meter(instrumentationName)
	resolutions, _ := meter.Int64Counter("schema.resolutions",
		metric.WithDescription("Total schema authority lookups"))
	resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", c.topic),
		attribute.Bool("error", err != nil)))

	if err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "schema resolution failed",
				"topic", c.topic, "version", version, "error", err)
		}
		if version > 0 {
			return nil, fmt.Errorf("%w: topic %q version %d: %w", ErrSchemaResolution, c.topic, version, err)
		}
		return nil, fmt.Errorf("%w: topic %q latest: %w", ErrSchemaResolution, c.topic, err)
	}

	// Only self-describing structured shapes can back an auto schema.
	if info.Type != TypeAvro && info.Type != TypeJSON {
		return nil, fmt.Errorf("%w: topic %q resolved to %s, want AVRO or JSON", ErrUnsupportedSchema, c.topic, info.Type)
	}

	s, err := newGenericSchema(info)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byVersion[id] = s
	if version <= 0 {
		c.latest = id
	}
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.DebugContext(ctx, "schema resolved",
			"topic", c.topic, "version", id, "type", info.Type.String())
	}
	return s, nil
}

// AutoConsumeSchema decodes messages based on the schema their topic
// currently uses, resolved at runtime from a schema authority. Because the
// caller has no compile-time type for a schema it does not control, decoded
// values are GenericRecords.
//
// Only AVRO- and JSON-shaped topic schemas are supported; resolution to any
// other logical type fails with ErrUnsupportedSchema.
//
// Example:
//
//	s := schema.NewAutoConsume("orders", store)
//	rec, err := s.Decode(payload)
//	total, _ := rec.Get("total")
type AutoConsumeSchema struct {
	cache *resolverCache
	info  *Info
}

// NewAutoConsume creates an auto-consuming schema for the given topic,
// resolving schema identities through the resolver.
func NewAutoConsume(topic string, resolver Resolver, opts ...AutoOption) *AutoConsumeSchema {
	return &AutoConsumeSchema{
		cache: newResolverCache(topic, resolver, opts),
		info: &Info{
			Name:       "AutoConsume",
			Type:       TypeAutoConsume,
			Properties: map[string]string{"topic": topic},
		},
	}
}

// NewAuto creates an auto-consuming schema.
//
// Deprecated: historical name for the same behavior; use NewAutoConsume.
func NewAuto(topic string, resolver Resolver, opts ...AutoOption) *AutoConsumeSchema {
	return NewAutoConsume(topic, resolver, opts...)
}

// Encode is not supported: an auto-consuming schema has no fixed encoding
// to produce. It always returns ErrConfiguration.
func (s *AutoConsumeSchema) Encode(*GenericRecord) ([]byte, error) {
	return nil, fmt.Errorf("%w: auto-consume schema cannot encode", ErrConfiguration)
}

// Decode decodes a payload against the topic's current schema, resolving
// it on first use. The lookup is bounded by the configured resolve timeout.
func (s *AutoConsumeSchema) Decode(data []byte) (*GenericRecord, error) {
	ctx, cancel := s.cache.background()
	defer cancel()
	return s.DecodeContext(ctx, data)
}

// DecodeContext is Decode with a caller-supplied context bounding any
// resolution the call triggers.
func (s *AutoConsumeSchema) DecodeContext(ctx context.Context, data []byte) (*GenericRecord, error) {
	return s.decode(ctx, data, 0)
}

// DecodeVersion decodes a payload against the schema registered under the
// identity carried alongside the message. A version <= 0 falls back to the
// topic's current schema.
func (s *AutoConsumeSchema) DecodeVersion(ctx context.Context, data []byte, version int64) (*GenericRecord, error) {
	return s.decode(ctx, data, version)
}

func (s *AutoConsumeSchema) decode(ctx context.Context, data []byte, version int64) (*GenericRecord, error) {
	resolved, err := s.cache.schemaFor(ctx, version)
	if err != nil {
		return nil, err
	}
	v, err := resolved.Decode(data)
	if err != nil {
		return nil, err
	}
	return v.(*GenericRecord), nil
}

// Validate decodes against the topic's current schema and discards the
// result.
func (s *AutoConsumeSchema) Validate(data []byte) error {
	_, err := s.Decode(data)
	return err
}

func (s *AutoConsumeSchema) Info() *Info {
	return s.info
}

// AutoProduceSchema accepts already-encoded payloads and validates them
// against whatever schema the target topic currently uses. Encode is a
// validated pass-through: the bytes are returned unchanged, but only after
// the resolved schema accepts them.
//
// Use it to publish raw payloads whose format is known but for which no
// host type is available.
type AutoProduceSchema struct {
	cache *resolverCache
	info  *Info
}

// NewAutoProduce creates an auto-producing schema for the given topic.
func NewAutoProduce(topic string, resolver Resolver, opts ...AutoOption) *AutoProduceSchema {
	return &AutoProduceSchema{
		cache: newResolverCache(topic, resolver, opts),
		info: &Info{
			Name:       "AutoProduce",
			Type:       TypeAutoProduce,
			Properties: map[string]string{"topic": topic},
		},
	}
}

// Encode validates the caller-supplied payload against the topic's current
// schema and passes it through unchanged. Validation is never skipped.
func (s *AutoProduceSchema) Encode(data []byte) ([]byte, error) {
	if err := s.Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// EncodeContext is Encode with a caller-supplied context bounding any
// resolution the call triggers.
func (s *AutoProduceSchema) EncodeContext(ctx context.Context, data []byte) ([]byte, error) {
	if err := s.ValidateContext(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode passes the payload through unchanged.
func (s *AutoProduceSchema) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// Validate resolves the topic's current schema and runs its validate path
// against the payload.
func (s *AutoProduceSchema) Validate(data []byte) error {
	ctx, cancel := s.cache.background()
	defer cancel()
	return s.ValidateContext(ctx, data)
}

// ValidateContext is Validate with a caller-supplied context bounding any
// resolution the call triggers.
func (s *AutoProduceSchema) ValidateContext(ctx context.Context, data []byte) error {
	resolved, err := s.cache.schemaFor(ctx, 0)
	if err != nil {
		return err
	}
	return resolved.Validate(data)
}

func (s *AutoProduceSchema) Info() *Info {
	return s.info
}

// Compile-time checks
var (
	_ Schema[*GenericRecord] = (*AutoConsumeSchema)(nil)
	_ Schema[[]byte]         = (*AutoProduceSchema)(nil)
)
