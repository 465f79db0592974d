package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rbaliyan/schema"
)

// fakeRegistry is a minimal Confluent-style registry over httptest.
type fakeRegistry struct {
	t        *testing.T
	requests atomic.Int32

	schemaJSON string
	wantUser   string
	wantPass   string
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /subjects/orders/versions", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.checkAuth(r)
		var body struct {
			Schema string `json:"schema"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Schema == "" {
			http.Error(w, "bad request", http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(map[string]int64{"id": 7})
	})
	mux.HandleFunc("GET /schemas/ids/7", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.checkAuth(r)
		json.NewEncoder(w).Encode(map[string]any{"schema": f.schemaJSON})
	})
	mux.HandleFunc("GET /subjects/orders/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.checkAuth(r)
		json.NewEncoder(w).Encode(map[string]any{
			"id":      int64(7),
			"version": int64(3),
			"subject": "orders",
			"schema":  f.schemaJSON,
		})
	})
	mux.HandleFunc("GET /subjects", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		json.NewEncoder(w).Encode([]string{"orders"})
	})
	mux.HandleFunc("POST /compatibility/subjects/orders/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		json.NewEncoder(w).Encode(map[string]bool{"is_compatible": true})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		http.Error(w, `{"error_code":40401}`, http.StatusNotFound)
	})
	return mux
}

func (f *fakeRegistry) checkAuth(r *http.Request) {
	if f.wantUser == "" {
		return
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != f.wantUser || pass != f.wantPass {
		f.t.Errorf("basic auth = %q/%q, want %q/%q", user, pass, f.wantUser, f.wantPass)
	}
}

func newClientTest(t *testing.T, opts ...ClientOption) (*fakeRegistry, *Client) {
	t.Helper()
	fake := &fakeRegistry{t: t, schemaJSON: `{"type":"object"}`}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return fake, client
}

func TestClientRequiresURL(t *testing.T) {
	_, err := NewClient("")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, schema.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestClientRegister(t *testing.T) {
	ctx := context.Background()
	fake, client := newClientTest(t)

	info := &schema.Info{Type: schema.TypeJSON, Definition: []byte(`{"type":"object"}`)}
	id, err := client.Register(ctx, "orders", info)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}

	// Payload-identical re-registration is a cache hit.
	if _, err := client.Register(ctx, "orders", info.Clone()); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}
	if got := fake.requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClientRegisterUnsupportedType(t *testing.T) {
	_, client := newClientTest(t)

	_, err := client.Register(context.Background(), "orders", &schema.Info{Type: schema.TypeBytes})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, schema.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestClientResolve(t *testing.T) {
	ctx := context.Background()
	fake, client := newClientTest(t)

	info, err := client.Resolve(ctx, 7)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if info.Type != schema.TypeAvro {
		// The registry omits schemaType for Avro schemas.
		t.Errorf("type = %v, want %v", info.Type, schema.TypeAvro)
	}
	if string(info.Definition) != `{"type":"object"}` {
		t.Errorf("definition = %s", info.Definition)
	}

	// Identities are immutable, so the second resolve is a cache hit.
	if _, err := client.Resolve(ctx, 7); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got := fake.requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClientLatest(t *testing.T) {
	ctx := context.Background()
	fake, client := newClientTest(t)

	id, info, err := client.Latest(ctx, "orders")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
	if info.Name != "orders" {
		t.Errorf("name = %q, want orders", info.Name)
	}

	// Latest is never cached, but it primes the identity cache.
	if _, err := client.Resolve(ctx, 7); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got := fake.requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClientNotFound(t *testing.T) {
	_, client := newClientTest(t)

	_, err := client.Resolve(context.Background(), 99)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClientBasicAuth(t *testing.T) {
	fake, client := newClientTest(t, WithBasicAuth("svc", "secret"))
	fake.wantUser = "svc"
	fake.wantPass = "secret"

	if _, err := client.Resolve(context.Background(), 7); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
}

func TestClientSubjects(t *testing.T) {
	_, client := newClientTest(t)

	subjects, err := client.Subjects(context.Background())
	if err != nil {
		t.Fatalf("subjects failed: %v", err)
	}
	if len(subjects) != 1 || subjects[0] != "orders" {
		t.Errorf("subjects = %v, want [orders]", subjects)
	}
}

func TestClientCompatible(t *testing.T) {
	_, client := newClientTest(t)

	ok, err := client.Compatible(context.Background(), "orders",
		&schema.Info{Type: schema.TypeJSON, Definition: []byte(`{"type":"object"}`)})
	if err != nil {
		t.Fatalf("compatibility check failed: %v", err)
	}
	if !ok {
		t.Error("expected compatible")
	}
}

func TestClientRateLimit(t *testing.T) {
	_, client := newClientTest(t, WithRateLimit(1, 1))

	// The second request needs a token the limiter will not grant in time.
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := client.Resolve(ctx, 7); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	cancel()
	_, _, err := client.Latest(ctx, "orders")
	if err == nil {
		t.Fatal("expected error from cancelled rate limit wait")
	}
	if !errors.Is(err, schema.ErrSchemaResolution) {
		t.Errorf("expected ErrSchemaResolution, got %v", err)
	}
}

func TestClientClosed(t *testing.T) {
	_, client := newClientTest(t)
	client.Close()

	if _, err := client.Subjects(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestClientBacksAutoConsume(t *testing.T) {
	type order struct {
		ID string `json:"id"`
	}
	typed, err := schema.NewJSON[order]()
	if err != nil {
		t.Fatalf("construction failed: %v", err)
	}

	payload := struct {
		ID      int64  `json:"id"`
		Version int64  `json:"version"`
		Subject string `json:"subject"`
		Schema  string `json:"schema"`
		Type    string `json:"schemaType"`
	}{ID: 7, Version: 1, Subject: "orders", Schema: string(typed.Info().Definition), Type: "JSON"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /subjects/orders/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}
	defer client.Close()

	data, err := typed.Encode(order{ID: "o-1"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	auto := schema.NewAutoConsume("orders", client)
	rec, err := auto.DecodeContext(context.Background(), data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if id, _ := rec.Get("id"); id != "o-1" {
		t.Errorf("id = %v, want o-1", id)
	}
}
