package testsupport

import (
	"context"
	"testing"

	"vidshrink/internal/config"
	"vidshrink/internal/history"
)

// MustOpenHistory opens the history store for cfg and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedRecord upserts rec and fails the test when the store rejects it.
func SeedRecord(t testing.TB, store *history.Store, rec history.Record) {
	t.Helper()

	applied, err := store.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("store.Upsert: %v", err)
	}
	if !applied {
		t.Fatalf("store.Upsert: record %s with status %q was dropped", rec.SourcePath, rec.Status)
	}
}
