package database

import (
	"context"
	"testing"

	"wisp/internal/bytecode"
)

// TestCatalogRoundTrip exercises the cross-process variant of the
// cross-unit name reuse scenario: one process (simulated here as one
// Catalog handle) records a unit's assigned id and the names it
// declared; a second open of the same database file sees the same
// rows, which is what lets a later process's loader seed its registry
// with ReuseVarStrings-compatible ids instead of renumbering from zero.
func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/catalog.db"

	first, err := Open(ctx, "sqlite3", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	hash := ContentHash([]byte("unit-a-bytes"))
	if err := first.PutUnit(ctx, hash, bytecode.IdentID(7), 3); err != nil {
		t.Fatalf("PutUnit: %v", err)
	}
	if err := first.PutNames(ctx, map[string]bytecode.IdentID{"foo": 7}); err != nil {
		t.Fatalf("PutNames: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(ctx, "sqlite3", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	id, offset, ok, err := second.GetUnit(ctx, hash)
	if err != nil {
		t.Fatalf("GetUnit: %v", err)
	}
	if !ok {
		t.Fatal("GetUnit: unit not found after reopen")
	}
	if id != 7 || offset != 3 {
		t.Fatalf("GetUnit = (%d, %d), want (7, 3)", id, offset)
	}

	names, err := second.LoadNames(ctx)
	if err != nil {
		t.Fatalf("LoadNames: %v", err)
	}
	if names["foo"] != 7 {
		t.Fatalf("LoadNames[\"foo\"] = %d, want 7", names["foo"])
	}

	summary, err := second.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary == "" {
		t.Fatal("Summary: want non-empty description")
	}
}
