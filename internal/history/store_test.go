package history_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"vidshrink/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustUpsert(t *testing.T, store *history.Store, rec history.Record) bool {
	t.Helper()
	applied, err := store.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return applied
}

func mustGet(t *testing.T, store *history.Store, path string) *history.Record {
	t.Helper()
	rec, err := store.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return rec
}

func completed() history.Record {
	return history.Record{
		SourcePath:          "/videos/clip.mp4",
		FileName:            "clip.mp4",
		DurationSeconds:     62.5,
		OriginalSizeBytes:   100_000_000,
		OriginalBitrateMbps: 12.8,
		TargetBitrateMbps:   7.46,
		CompressedSizeBytes: 40_000_000,
		CompressionRatio:    0.4,
		ImpactLabel:         "negligible",
		ImpactScore:         0.985,
		Status:              history.StatusCompleted,
		Timestamp:           "2026-01-02T03:04:05Z",
	}
}

func TestUpsertCompletedIsIdempotent(t *testing.T) {
	store := openStore(t)
	rec := completed()
	mustUpsert(t, store, rec)
	mustUpsert(t, store, rec)

	records, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0] != rec {
		t.Fatalf("record changed:\n got %+v\nwant %+v", records[0], rec)
	}
}

func TestStaleProgressAfterCompletedIsDropped(t *testing.T) {
	store := openStore(t)
	rec := completed()
	mustUpsert(t, store, rec)

	stale := history.Record{
		SourcePath: rec.SourcePath,
		Status:     history.EncodingStatus(40),
		Timestamp:  "2026-01-02T03:05:00Z",
	}
	if mustUpsert(t, store, stale) {
		t.Fatal("stale update reported as applied")
	}
	if got := mustGet(t, store, rec.SourcePath); *got != rec {
		t.Fatalf("completed record modified: %+v", got)
	}

	failed := history.Record{SourcePath: rec.SourcePath, Status: history.FailedStatus("encode stalled")}
	if mustUpsert(t, store, failed) {
		t.Fatal("failure after completion reported as applied")
	}
}

func TestCompletedMayBeReconfirmed(t *testing.T) {
	store := openStore(t)
	rec := completed()
	mustUpsert(t, store, rec)

	degraded := history.Record{
		SourcePath: rec.SourcePath,
		Status:     history.StatusCompletedDegraded,
		Timestamp:  "2026-02-01T00:00:00Z",
	}
	if !mustUpsert(t, store, degraded) {
		t.Fatal("completed-to-completed update should apply")
	}
	got := mustGet(t, store, rec.SourcePath)
	if got.Status != history.StatusCompletedDegraded || got.CompressedSizeBytes != rec.CompressedSizeBytes {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestTransientStatusesAreNotPersisted(t *testing.T) {
	store := openStore(t)
	for _, status := range []string{history.StatusSkipped, history.StatusFileNotFound} {
		if mustUpsert(t, store, history.Record{SourcePath: "/videos/" + status, Status: status}) {
			t.Fatalf("%q should not be persisted", status)
		}
		if got := mustGet(t, store, "/videos/"+status); got != nil {
			t.Fatalf("%q stored: %+v", status, got)
		}
	}
}

func TestZeroFieldsDoNotClobber(t *testing.T) {
	store := openStore(t)
	mustUpsert(t, store, history.Record{
		SourcePath:          "/videos/a.mkv",
		FileName:            "a.mkv",
		OriginalSizeBytes:   5_000,
		OriginalBitrateMbps: 20,
		TargetBitrateMbps:   8,
		Status:              history.EncodingStatus(0),
	})
	mustUpsert(t, store, history.Record{
		SourcePath: "/videos/a.mkv",
		Status:     history.EncodingStatus(57),
	})
	got := mustGet(t, store, "/videos/a.mkv")
	if got.Status != "encoding 50%" {
		t.Fatalf("status = %q", got.Status)
	}
	if got.FileName != "a.mkv" || got.OriginalSizeBytes != 5_000 || got.TargetBitrateMbps != 8 {
		t.Fatalf("fields clobbered: %+v", got)
	}
}

func TestFailedCanBeRetried(t *testing.T) {
	store := openStore(t)
	mustUpsert(t, store, history.Record{SourcePath: "/videos/b.mp4", Status: history.FailedStatus("probe failed")})
	rec := completed()
	rec.SourcePath = "/videos/b.mp4"
	if !mustUpsert(t, store, rec) {
		t.Fatal("completion after failure should apply")
	}
	if got := mustGet(t, store, "/videos/b.mp4"); got.Status != history.StatusCompleted {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestUpsertValidation(t *testing.T) {
	store := openStore(t)
	if _, err := store.Upsert(context.Background(), history.Record{Status: history.StatusCompleted}); err == nil {
		t.Fatal("expected error without source path")
	}
	if _, err := store.Upsert(context.Background(), history.Record{SourcePath: "/x"}); err == nil {
		t.Fatal("expected error without status")
	}
}

func TestListAndTotals(t *testing.T) {
	store := openStore(t)
	first := completed()
	second := completed()
	second.SourcePath = "/videos/later.mp4"
	second.OriginalSizeBytes = 50
	second.CompressedSizeBytes = 20
	second.Timestamp = "2026-03-01T00:00:00Z"
	mustUpsert(t, store, first)
	mustUpsert(t, store, second)
	mustUpsert(t, store, history.Record{SourcePath: "/videos/failed.mp4", Status: history.StatusFailed, Timestamp: "2026-01-01T00:00:00Z"})

	records, err := store.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || records[0].SourcePath != "/videos/later.mp4" {
		t.Fatalf("unexpected order: %+v", records)
	}

	totals, err := store.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.Completed != 2 || totals.SavedBytes != 60_000_030 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestConcurrentWriters(t *testing.T) {
	store := openStore(t)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Upsert(context.Background(), history.Record{
				SourcePath: "/videos/shared.mp4",
				Status:     history.EncodingStatus(float64(i * 10)),
			})
			if err != nil {
				t.Errorf("Upsert: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := mustGet(t, store, "/videos/shared.mp4"); got == nil {
		t.Fatal("expected a record")
	}
}

func TestEncodingStatus(t *testing.T) {
	cases := map[float64]string{0: "encoding 0%", 9.9: "encoding 0%", 40: "encoding 40%", 99.9: "encoding 90%", 100: "encoding 100%", -5: "encoding 0%"}
	for percent, want := range cases {
		if got := history.EncodingStatus(percent); got != want {
			t.Errorf("EncodingStatus(%v) = %q, want %q", percent, got, want)
		}
	}
}
