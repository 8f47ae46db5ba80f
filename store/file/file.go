// Package file stores step records as JSON files in a directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gatewaylab/agentrun/store"
)

func init() {
	store.Register("file", func(ctx context.Context, rawURL string) (store.StepStore, error) {
		path := strings.TrimPrefix(rawURL, "file://")
		if path == "" {
			return nil, fmt.Errorf("file store URL %q has no directory", rawURL)
		}
		return NewFileStepStore(path)
	})
}

// FileStepStore keeps one JSON file per step record in a directory.
type FileStepStore struct {
	mu   sync.RWMutex
	path string
}

var _ store.StepStore = (*FileStepStore)(nil)

// NewFileStepStore creates the directory if it does not exist.
func NewFileStepStore(path string) (*FileStepStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStepStore{path: path}, nil
}

func (f *FileStepStore) filename(id string) string {
	return filepath.Join(f.path, filepath.Base(id)+".json")
}

func (f *FileStepStore) Save(ctx context.Context, record *store.StepRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal step record: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Records are renamed into place once fully written.
	tmp := f.filename(record.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write step record: %w", err)
	}
	if err := os.Rename(tmp, f.filename(record.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write step record: %w", err)
	}
	return nil
}

func (f *FileStepStore) Load(ctx context.Context, id string) (*store.StepRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.read(f.filename(id), id)
}

func (f *FileStepStore) read(filename, id string) (*store.StepRecord, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.NotFound(id)
		}
		return nil, fmt.Errorf("failed to read step record: %w", err)
	}
	var record store.StepRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step record %s: %w", id, err)
	}
	return &record, nil
}

func (f *FileStepStore) List(ctx context.Context, runID string) ([]*store.StepRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	records := []*store.StepRecord{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		record, err := f.read(filepath.Join(f.path, e.Name()), id)
		if err != nil {
			return nil, err
		}
		if record.RunID == runID {
			records = append(records, record)
		}
	}
	store.SortRecords(records)
	return records, nil
}

func (f *FileStepStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.filename(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete step record: %w", err)
	}
	return nil
}

func (f *FileStepStore) Clear(ctx context.Context, runID string) error {
	records, err := f.List(ctx, runID)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := f.Delete(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileStepStore) Close() error {
	return nil
}
