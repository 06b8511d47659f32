package stores

import (
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var count int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lookup_data").Scan(&count); err != nil {
		t.Fatalf("table lookup_data is not accessible: %v", err)
	}

	// a second run has nothing to do
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestPutGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	value := map[string]any{
		"servers": []any{"ntp1", "ntp2"},
		"port":    123,
		"enabled": true,
	}
	if err := store.Put(ctx, "ntp::config", value, "test"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, found, err := store.Get(ctx, "ntp::config")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v, %v", got, found, err)
	}
	want := map[string]any{
		"servers": []any{"ntp1", "ntp2"},
		"port":    json.Number("123"),
		"enabled": true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	if err := store.Put(ctx, "ntp::config", "replaced", "test"); err != nil {
		t.Fatalf("Put() replace error = %v", err)
	}
	got, _, _ = store.Get(ctx, "ntp::config")
	if got != "replaced" {
		t.Errorf("Get() after replace = %v, want replaced", got)
	}
}

func TestGetMissing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	v, found, err := store.Get(ctx, "nope")
	if err != nil || found || v != nil {
		t.Fatalf("Get() = %v, %v, %v; want nil, false, nil", v, found, err)
	}
	if _, err := store.GetEntry(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry() error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestImportAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	n, err := store.Import(ctx, map[string]any{
		"b": 2,
		"a": "one",
		"c": nil,
	}, "common.yaml")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Import() = %d, want 3", n)
	}

	entries, err := store.ListEntries(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
		if e.Source != "common.yaml" {
			t.Errorf("entry %s source = %q", e.Key, e.Source)
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
		t.Errorf("ListEntries() keys mismatch (-want +got):\n%s", diff)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	page, err := store.ListEntries(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(page) != 1 || page[0].Key != "c" {
		t.Errorf("ListEntries(1, 1) = %v, want [c]", page)
	}
}

func TestPutRejectsEmptyKey(t *testing.T) {
	store := setupTestStore(t)
	if err := store.Put(context.Background(), "", 1, ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}
