package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "recordings.db"), filepath.Join(dir, "recordings"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadAllOrdersByStartTimeDesc(t *testing.T) {
	store := openTestStore(t)

	later := time.Now().Truncate(time.Second)
	earlier := later.Add(-time.Hour)

	if err := store.Save(Metadata{SessionID: "A", Filename: "a.ttyrec", Command: "bash", StartTime: later, DurationSeconds: 10, Cols: 80, Rows: 24, RecordingPath: "a.ttyrec"}); err != nil {
		t.Fatalf("Save A: %v", err)
	}
	if err := store.Save(Metadata{SessionID: "B", Filename: "b.ttyrec", Command: "bash", StartTime: earlier, DurationSeconds: 20, Cols: 80, Rows: 24, RecordingPath: "b.ttyrec"}); err != nil {
		t.Fatalf("Save B: %v", err)
	}

	items, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(items) != 2 || items[0].SessionID != "A" {
		t.Fatalf("expected newest entry first, got %+v", items)
	}

	updated := items[0]
	updated.Title = "updated"
	if err := store.Save(updated); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	items, err = store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll after update: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after update (upsert, not insert), got %d", len(items))
	}
	if items[0].Title != "updated" {
		t.Fatalf("expected updated metadata at head, got %+v", items[0])
	}
}

func TestSavePreservesArgsSlice(t *testing.T) {
	store := openTestStore(t)

	meta := Metadata{
		SessionID:     "sess",
		Filename:      "sess.ttyrec",
		Command:       "bash",
		Args:          []string{"-c", "echo hi"},
		WorkDir:       "/tmp",
		StartTime:     time.Now().Truncate(time.Second),
		Cols:          80,
		Rows:          24,
		RecordingPath: "sess.ttyrec",
	}
	if err := store.Save(meta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.GetBySessionID("sess")
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if len(got.Args) != 2 || got.Args[0] != "-c" || got.Args[1] != "echo hi" {
		t.Fatalf("expected args round trip, got %+v", got.Args)
	}
}

func TestGetBySessionIDMissing(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.GetBySessionID("nope"); err == nil {
		t.Fatalf("expected error for missing session id")
	}
}

func TestDeleteRemovesMetadata(t *testing.T) {
	store := openTestStore(t)

	now := time.Now().Truncate(time.Second)
	for _, id := range []string{"keep", "remove"} {
		if err := store.Save(Metadata{SessionID: id, Filename: id + ".ttyrec", Command: "bash", StartTime: now, Cols: 80, Rows: 24, RecordingPath: id + ".ttyrec"}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	if err := store.Delete("remove"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	items, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(items) != 1 || items[0].SessionID != "keep" {
		t.Fatalf("expected only keep entry, got %+v", items)
	}
}

func TestScanRecordingsFiltersTtyrecFiles(t *testing.T) {
	store := openTestStore(t)

	files := []string{"one.ttyrec", "two.ttyrec", "notes.txt"}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(store.RecordingsDir(), name), []byte("data"), 0o644); err != nil {
			t.Fatalf("write file %s: %v", name, err)
		}
	}

	paths, err := store.ScanRecordings()
	if err != nil {
		t.Fatalf("ScanRecordings: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 .ttyrec files, got %+v", paths)
	}
}
