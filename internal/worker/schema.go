package worker

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/radarbase/restructure/internal/objectstore"
)

// schemaWriter emits schema.json once per <project>/<user>/<topic>/
// directory, on that directory's first successful write (§4.10).
type schemaWriter struct {
	mu      sync.Mutex
	written map[string]struct{}
}

func newSchemaWriter() *schemaWriter {
	return &schemaWriter{written: make(map[string]struct{})}
}

// EnsureWritten publishes schema.json alongside dir (the organization
// path's directory) the first time dir is seen; subsequent calls for the
// same dir are no-ops.
func (s *schemaWriter) EnsureWritten(ctx context.Context, store *objectstore.Store, dir, rawSchema string) error {
	s.mu.Lock()
	if _, ok := s.written[dir]; ok {
		s.mu.Unlock()
		return nil
	}
	s.written[dir] = struct{}{}
	s.mu.Unlock()

	target := path.Join(dir, "schema.json")
	if _, ok := store.Exists(ctx, target); ok {
		return nil
	}

	tmp, err := os.CreateTemp("", "schema-*.json")
	if err != nil {
		return fmt.Errorf("worker: create temp schema file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(rawSchema); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return store.Publish(ctx, target, f)
}
