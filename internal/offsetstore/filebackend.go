package offsetstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
)

// FileBackend persists one CSV file per topic at <output>/offsets/<topic>.csv
// on the shared object store (§4.2).
type FileBackend struct {
	store *objectstore.Store
	dir   string
}

// NewFileBackend returns a Backend rooted at dir (typically "offsets"
// relative to the run's output root).
func NewFileBackend(store *objectstore.Store, dir string) *FileBackend {
	return &FileBackend{store: store, dir: dir}
}

func (b *FileBackend) path(topic string) string {
	return filepath.ToSlash(filepath.Join(b.dir, topic+".csv"))
}

// Load reads and canonicalizes the topic's offset file. A missing file is
// not an error — it returns an empty set.
func (b *FileBackend) Load(topic string) (*offsetrange.Set, error) {
	ctx := context.Background()
	key := b.path(topic)
	if _, ok := b.store.Exists(ctx, key); !ok {
		return offsetrange.NewSet(), nil
	}
	r, err := b.store.NewReader(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("offsetstore: open %s: %w", key, err)
	}
	defer r.Close()

	set, err := offsetrange.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("offsetstore: parse %s: %w", key, err)
	}
	return set, nil
}

// Save writes topic's set to its CSV file via a local temp file, published
// atomically through the object store.
func (b *FileBackend) Save(topic string, set *offsetrange.Set) error {
	ctx := context.Background()
	tmp, err := os.CreateTemp("", "offsets-*.csv")
	if err != nil {
		return fmt.Errorf("offsetstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := offsetrange.WriteCSV(tmp, set); err != nil {
		tmp.Close()
		return fmt.Errorf("offsetstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("offsetstore: close temp file: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("offsetstore: reopen temp file: %w", err)
	}
	defer f.Close()

	if err := b.store.Publish(ctx, b.path(topic), f); err != nil {
		return fmt.Errorf("offsetstore: publish %s: %w", b.path(topic), err)
	}
	return nil
}

// Close is a no-op: FileBackend holds no resources beyond the shared Store.
func (b *FileBackend) Close() error { return nil }
