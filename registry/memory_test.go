package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"syreclabs.com/go/faker"

	"github.com/rbaliyan/schema"
)

func init() {
	faker.Seed(time.Now().UnixNano())
}

type order struct {
	ID    string  `json:"id"`
	Total float64 `json:"total"`
}

func orderInfo(t *testing.T) *schema.Info {
	t.Helper()
	s, err := schema.NewJSON[order]()
	if err != nil {
		t.Fatalf("construction failed: %v", err)
	}
	return s.Info()
}

func TestMemoryRegisterResolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	info := orderInfo(t)
	id, err := store.Register(ctx, "orders", info)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero identity")
	}

	got, err := store.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !cmp.Equal(got, info) {
		t.Errorf("diff : %v", cmp.Diff(got, info))
	}

	// Resolve returns a copy; mutating it does not poison the store.
	got.Properties = map[string]string{"x": "y"}
	again, err := store.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if again.Properties != nil {
		t.Error("mutating a resolved info changed the stored copy")
	}
}

func TestMemoryDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	info := orderInfo(t)
	id1, err := store.Register(ctx, "orders", info)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	id2, err := store.Register(ctx, "orders", info.Clone())
	if err != nil {
		t.Fatalf("re-register failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("identical schema got ids %d and %d", id1, id2)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d schemas, want 1", store.Len())
	}

	// The same schema under another subject keeps its identity.
	id3, err := store.Register(ctx, "orders-dlq", info)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if id3 != id1 {
		t.Errorf("cross-subject id = %d, want %d", id3, id1)
	}
}

func TestMemoryLatest(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	type orderV2 struct {
		ID       string  `json:"id"`
		Total    float64 `json:"total"`
		Currency string  `json:"currency"`
	}
	s2, err := schema.NewJSON[orderV2]()
	if err != nil {
		t.Fatalf("construction failed: %v", err)
	}

	id1, err := store.Register(ctx, "orders", orderInfo(t))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	id2, err := store.Register(ctx, "orders", s2.Info())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	id, info, err := store.Latest(ctx, "orders")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if id != id2 || id == id1 {
		t.Errorf("latest id = %d, want %d", id, id2)
	}
	if info.Name != "orderV2" {
		t.Errorf("latest schema = %q, want orderV2", info.Name)
	}
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	if _, err := store.Resolve(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Latest(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySubjectsAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	info := orderInfo(t)
	id, err := store.Register(ctx, "orders", info)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := store.Register(ctx, "audits", info); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	subjects, err := store.Subjects(ctx)
	if err != nil {
		t.Fatalf("subjects failed: %v", err)
	}
	want := []string{"audits", "orders"}
	if !cmp.Equal(subjects, want) {
		t.Errorf("diff : %v", cmp.Diff(subjects, want))
	}

	if err := store.Delete(ctx, "orders"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, _, err := store.Latest(ctx, "orders"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// The identity survives subject deletion.
	if _, err := store.Resolve(ctx, id); err != nil {
		t.Errorf("resolve after delete failed: %v", err)
	}
}

func TestMemoryClosed(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.Close()

	if _, err := store.Register(ctx, "orders", orderInfo(t)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := store.Resolve(ctx, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryBacksAutoConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	s, err := schema.NewJSON[order]()
	if err != nil {
		t.Fatalf("construction failed: %v", err)
	}
	if _, err := store.Register(ctx, "orders", s.Info()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	in := order{ID: faker.Code().Isbn10(), Total: float64(faker.Commerce().Price())}
	payload, err := s.Encode(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	auto := schema.NewAutoConsume("orders", store)
	rec, err := auto.DecodeContext(ctx, payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if id, _ := rec.Get("id"); id != in.ID {
		t.Errorf("id = %v, want %v", id, in.ID)
	}
}
