package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/rbaliyan/schema"
)

const (
	instrumentationName = "github.com/rbaliyan/schema/registry"

	contentType = "application/vnd.schemaregistry.v1+json"
)

// Client is a Store backed by a Confluent-compatible schema registry
// service. Resolved schemas and registered identities are cached locally;
// cached entries are immutable on the server side, so they are never
// refreshed.
//
// Example:
//
//	store, err := registry.NewClient("http://localhost:8081",
//	    registry.WithBasicAuth("svc", secret),
//	    registry.WithRateLimit(50, 10),
//	)
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
	logger     *slog.Logger
	limiter    *rate.Limiter

	mu      sync.RWMutex
	byID    map[int64]*schema.Info
	byPrint map[string]int64 // fingerprint -> registered identity
	closed  bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout (default 10s). Ignored when a
// custom HTTP client is supplied.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithBasicAuth sets credentials sent with every request.
func WithBasicAuth(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithLogger sets a logger for request activity. The client is silent when
// no logger is set.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRateLimit caps outgoing requests at rps requests per second with the
// given burst. Requests beyond the cap block until the limiter admits them
// or the context expires.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client for the registry service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: registry URL is required", schema.ErrConfiguration)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		byID:       make(map[int64]*schema.Info),
		byPrint:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// registryPayload is the wire shape the Confluent API uses for schemas.
type registryPayload struct {
	Subject string `json:"subject,omitempty"`
	ID      int64  `json:"id,omitempty"`
	Version int64  `json:"version,omitempty"`
	Schema  string `json:"schema"`
	Type    string `json:"schemaType,omitempty"`
}

// wireType maps a logical type to the registry's schemaType field. The
// registry only understands the three structured formats.
func wireType(t schema.Type) (string, error) {
	switch t {
	case schema.TypeAvro:
		return "AVRO", nil
	case schema.TypeJSON:
		return "JSON", nil
	case schema.TypeProtobuf:
		return "PROTOBUF", nil
	default:
		return "", fmt.Errorf("%w: registry cannot store %s schemas", schema.ErrConfiguration, t)
	}
}

func localType(schemaType string) schema.Type {
	switch schemaType {
	case "JSON":
		return schema.TypeJSON
	case "PROTOBUF":
		return schema.TypeProtobuf
	default:
		// The Confluent API omits schemaType for Avro.
		return schema.TypeAvro
	}
}

func (p *registryPayload) toInfo(name string) *schema.Info {
	return &schema.Info{
		Name:       name,
		Type:       localType(p.Type),
		Definition: []byte(p.Schema),
	}
}

// Register records a schema under the subject and returns the identity the
// service assigned. Payload-identical re-registrations are answered from
// the local cache.
func (c *Client) Register(ctx context.Context, subject string, info *schema.Info) (int64, error) {
	if info == nil {
		return 0, fmt.Errorf("%w: nil schema info", schema.ErrConfiguration)
	}
	schemaType, err := wireType(info.Type)
	if err != nil {
		return 0, err
	}

	print := fingerprint(info)
	c.mu.RLock()
	id, ok := c.byPrint[print]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	body := registryPayload{Schema: string(info.Definition)}
	if schemaType != "AVRO" {
		body.Type = schemaType
	}
	var result struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/subjects/"+url.PathEscape(subject)+"/versions", body, &result); err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.byPrint[print] = result.ID
	c.byID[result.ID] = info.Clone()
	c.mu.Unlock()
	return result.ID, nil
}

// Resolve returns the schema registered under the identity.
func (c *Client) Resolve(ctx context.Context, version int64) (*schema.Info, error) {
	c.mu.RLock()
	info, ok := c.byID[version]
	c.mu.RUnlock()
	if ok {
		return info.Clone(), nil
	}

	var payload registryPayload
	if err := c.do(ctx, http.MethodGet, "/schemas/ids/"+strconv.FormatInt(version, 10), nil, &payload); err != nil {
		return nil, err
	}
	info = payload.toInfo("")

	c.mu.Lock()
	c.byID[version] = info.Clone()
	c.mu.Unlock()
	return info, nil
}

// Latest returns the identity and schema of the subject's current version.
// Always served from the registry: the latest version can change under a
// long-lived client.
func (c *Client) Latest(ctx context.Context, subject string) (int64, *schema.Info, error) {
	var payload registryPayload
	if err := c.do(ctx, http.MethodGet, "/subjects/"+url.PathEscape(subject)+"/versions/latest", nil, &payload); err != nil {
		return 0, nil, err
	}
	info := payload.toInfo(subject)

	c.mu.Lock()
	c.byID[payload.ID] = info.Clone()
	c.mu.Unlock()
	return payload.ID, info, nil
}

// Subjects lists the subjects registered with the service.
func (c *Client) Subjects(ctx context.Context) ([]string, error) {
	var subjects []string
	if err := c.do(ctx, http.MethodGet, "/subjects", nil, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// Delete soft-deletes the subject on the service. Identities remain
// resolvable.
func (c *Client) Delete(ctx context.Context, subject string) error {
	return c.do(ctx, http.MethodDelete, "/subjects/"+url.PathEscape(subject), nil, nil)
}

// Compatible reports whether a schema is compatible with the subject's
// latest version under the subject's configured compatibility mode.
func (c *Client) Compatible(ctx context.Context, subject string, info *schema.Info) (bool, error) {
	schemaType, err := wireType(info.Type)
	if err != nil {
		return false, err
	}
	body := registryPayload{Schema: string(info.Definition)}
	if schemaType != "AVRO" {
		body.Type = schemaType
	}
	var result struct {
		IsCompatible bool `json:"is_compatible"`
	}
	if err := c.do(ctx, http.MethodPost, "/compatibility/subjects/"+url.PathEscape(subject)+"/versions/latest", body, &result); err != nil {
		return false, err
	}
	return result.IsCompatible, nil
}

// Close releases client resources. In-flight requests are not interrupted.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.httpClient.CloseIdleConnections()
	return nil
}

// do performs one registry request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit wait: %v", schema.ErrSchemaResolution, err)
		}
	}

	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "registry.request",
		trace.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path)))
	defer span.End()

	start := time.Now()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	c.count(ctx, method, err)
	if err != nil {
		c.log(ctx, slog.LevelWarn, "registry request failed", method, path, start, err)
		return fmt.Errorf("%w: %s %s: %v", schema.ErrSchemaResolution, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.log(ctx, slog.LevelDebug, "registry entry not found", method, path, start, nil)
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("%w: %s %s: status %d: %s", schema.ErrSchemaResolution, method, path, resp.StatusCode, msg)
		c.log(ctx, slog.LevelWarn, "registry request failed", method, path, start, err)
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", schema.ErrSchemaResolution, err)
		}
	}
	c.log(ctx, slog.LevelDebug, "registry request", method, path, start, nil)
	return nil
}

func (c *Client) count(ctx context.Context, method string, err error) {
	meter := otel.Meter(instrumentationName)
	requests, _ := meter.Int64Counter("registry.requests",
		metric.WithDescription("Total schema registry requests"))
	requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("error", err != nil)))
}

func (c *Client) log(ctx context.Context, level slog.Level, msg, method, path string, start time.Time, err error) {
	if c.logger == nil {
		return
	}
	attrs := []any{"method", method, "path", path, "duration", time.Since(start)}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	c.logger.Log(ctx, level, msg, attrs...)
}

// Compile-time check that Client implements Store.
var _ Store = (*Client)(nil)
