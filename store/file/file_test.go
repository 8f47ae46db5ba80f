package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gatewaylab/agentrun/store"
)

func newRecord(id, runID string, seq int) *store.StepRecord {
	return &store.StepRecord{
		ID:         id,
		RunID:      runID,
		AgentName:  "provider_code_agent",
		StepNumber: seq,
		Kind:       "action",
		Seq:        seq,
		Step:       []byte(fmt.Sprintf(`{"step_number":%d}`, seq)),
		Timestamp:  time.Now().UTC(),
	}
}

func TestFileStepStore_New(t *testing.T) {
	t.Parallel()

	t.Run("creates directory if missing", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "steps")

		fs, err := NewFileStepStore(path)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if fs == nil {
			t.Fatal("Store should not be nil")
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Error("Directory should have been created")
		}
	})

	t.Run("opens from URL", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "runs")

		s, err := store.Open(context.Background(), "file://"+path)
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		fs, ok := s.(*FileStepStore)
		if !ok {
			t.Fatalf("Expected *FileStepStore, got %T", s)
		}
		if fs.path != path {
			t.Errorf("Expected path %s, got %s", path, fs.path)
		}
	})
}

func TestFileStepStore_SaveAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("save creates file", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFileStepStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		rec := newRecord("rec-1", "run-1", 1)
		if err := fs.Save(ctx, rec); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		filename := filepath.Join(fs.path, rec.ID+".json")
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Error("Record file should exist")
		}
		if _, err := os.Stat(filename + ".tmp"); !os.IsNotExist(err) {
			t.Error("Temporary file should be gone")
		}
	})

	t.Run("load returns saved record", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFileStepStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		rec := newRecord("rec-1", "run-1", 3)
		if err := fs.Save(ctx, rec); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		loaded, err := fs.Load(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Failed to load: %v", err)
		}
		if loaded.RunID != rec.RunID || loaded.StepNumber != 3 || loaded.AgentName != rec.AgentName {
			t.Errorf("Loaded record mismatch: %+v", loaded)
		}
		if string(loaded.Step) != `{"step_number":3}` {
			t.Errorf("Expected step payload to round trip, got %s", loaded.Step)
		}
		if !loaded.Timestamp.Equal(rec.Timestamp) {
			t.Errorf("Expected timestamp %v, got %v", rec.Timestamp, loaded.Timestamp)
		}
	})

	t.Run("load missing record", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFileStepStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		_, err = fs.Load(ctx, "does-not-exist")
		if !store.IsNotFound(err) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestFileStepStore_List(t *testing.T) {
	t.Parallel()

	t.Run("filters by run and sorts by seq", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFileStepStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		ctx := context.Background()

		for _, rec := range []*store.StepRecord{
			newRecord("z-first", "run-1", 0),
			newRecord("a-second", "run-1", 1),
			newRecord("other", "run-2", 0),
		} {
			if err := fs.Save(ctx, rec); err != nil {
				t.Fatalf("Failed to save %s: %v", rec.ID, err)
			}
		}

		results, err := fs.List(ctx, "run-1")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 records for run, got %d", len(results))
		}
		if results[0].ID != "z-first" || results[1].ID != "a-second" {
			t.Errorf("Results should be sorted by seq, got %s then %s", results[0].ID, results[1].ID)
		}
	})

	t.Run("empty result for unknown run", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFileStepStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		results, err := fs.List(context.Background(), "unknown-run")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("Expected 0 records, got %d", len(results))
		}
	})
}

func TestFileStepStore_Delete(t *testing.T) {
	t.Parallel()

	t.Run("deletes existing record", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFileStepStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		ctx := context.Background()

		rec := newRecord("temp-record", "run-1", 0)
		if err := fs.Save(ctx, rec); err != nil {
			t.Fatalf("Failed to save record: %v", err)
		}
		if err := fs.Delete(ctx, rec.ID); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if _, err := os.Stat(filepath.Join(fs.path, rec.ID+".json")); !os.IsNotExist(err) {
			t.Error("Record file should be deleted")
		}
	})

	t.Run("deleting non-existing is no-op", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFileStepStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if err := fs.Delete(context.Background(), "never-existed"); err != nil {
			t.Errorf("Delete should not error for non-existing record: %v", err)
		}
	})
}

func TestFileStepStore_Clear(t *testing.T) {
	t.Parallel()
	fs, err := NewFileStepStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	_ = fs.Save(ctx, newRecord("a", "run-1", 0))
	_ = fs.Save(ctx, newRecord("b", "run-1", 1))
	_ = fs.Save(ctx, newRecord("keep", "run-2", 0))

	if err := fs.Clear(ctx, "run-1"); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if list, _ := fs.List(ctx, "run-1"); len(list) != 0 {
		t.Errorf("Expected run-1 to be empty, got %d", len(list))
	}
	if _, err := fs.Load(ctx, "keep"); err != nil {
		t.Errorf("Records of other runs should remain: %v", err)
	}
}

func TestFileStepStore_Concurrent(t *testing.T) {
	t.Parallel()
	fs, err := NewFileStepStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := fs.Save(ctx, newRecord(fmt.Sprintf("rec-%d", i), "run-1", i)); err != nil {
				t.Errorf("Failed to save: %v", err)
			}
		}(i)
	}
	wg.Wait()

	list, err := fs.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(list) != 10 {
		t.Errorf("Expected 10 records, got %d", len(list))
	}
}
