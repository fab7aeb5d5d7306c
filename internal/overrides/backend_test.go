package overrides

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Tests use the pure-Go sqlite driver so they run without cgo; the
// production path opens the same schema through mattn/go-sqlite3.
func testBackend(t *testing.T, dbPath string) *SQLiteBackend {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open %q: %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })

	b, err := NewSQLiteBackendWithDB(db)
	if err != nil {
		t.Fatalf("NewSQLiteBackendWithDB: %v", err)
	}
	return b
}

func TestSQLiteBackend_GetMissing(t *testing.T) {
	b := testBackend(t, filepath.Join(t.TempDir(), "test.db"))

	val, err := b.GetItem(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetItem() error: %v", err)
	}
	if val != "" {
		t.Errorf("GetItem() = %q, want empty string for missing key", val)
	}
}

func TestSQLiteBackend_SetAndGet(t *testing.T) {
	b := testBackend(t, filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()

	if err := b.SetItem(ctx, "device_overrides", `{"schemaVersion":2}`); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}

	val, err := b.GetItem(ctx, "device_overrides")
	if err != nil {
		t.Fatalf("GetItem() error: %v", err)
	}
	if val != `{"schemaVersion":2}` {
		t.Errorf("GetItem() = %q", val)
	}
}

func TestSQLiteBackend_Upsert(t *testing.T) {
	b := testBackend(t, filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()

	if err := b.SetItem(ctx, "key", "v1"); err != nil {
		t.Fatalf("SetItem(v1) error: %v", err)
	}
	if err := b.SetItem(ctx, "key", "v2"); err != nil {
		t.Fatalf("SetItem(v2) error: %v", err)
	}

	val, err := b.GetItem(ctx, "key")
	if err != nil {
		t.Fatalf("GetItem() error: %v", err)
	}
	if val != "v2" {
		t.Errorf("GetItem() = %q, want v2 after upsert", val)
	}
}

func TestSQLiteBackend_CloseLeavesBorrowedDBOpen(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	b, err := NewSQLiteBackendWithDB(db)
	if err != nil {
		t.Fatalf("NewSQLiteBackendWithDB: %v", err)
	}

	ctx := context.Background()
	if err := b.SetItem(ctx, "key", "v1"); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// The caller still owns the handle, so it must stay usable.
	if err := db.PingContext(ctx); err != nil {
		t.Errorf("db closed by borrowed-handle backend: %v", err)
	}
}

func TestSQLiteBackend_PersistAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	b1 := testBackend(t, dbPath)
	if err := b1.SetItem(ctx, "key", "persistent"); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}

	b2 := testBackend(t, dbPath)
	val, err := b2.GetItem(ctx, "key")
	if err != nil {
		t.Fatalf("GetItem() error: %v", err)
	}
	if val != "persistent" {
		t.Errorf("GetItem() = %q after reopen, want persistent", val)
	}
}
