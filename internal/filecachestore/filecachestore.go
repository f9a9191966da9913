// Package filecachestore implements the File Cache Store (C8): a bounded,
// LRU-by-last-use pool of filecache.FileCache instances, one per worker.
package filecachestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/radarbase/restructure/internal/avrofile"
	"github.com/radarbase/restructure/internal/convert"
	"github.com/radarbase/restructure/internal/filecache"
	"github.com/radarbase/restructure/internal/logging"
	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
)

// WriteResponse is the Cartesian of {cacheHit, success} (§3).
type WriteResponse int

const (
	CacheAndWrite WriteResponse = iota
	CacheAndNoWrite
	NoCacheAndWrite
	NoCacheAndNoWrite
)

func (r WriteResponse) String() string {
	switch r {
	case CacheAndWrite:
		return "CACHE_AND_WRITE"
	case CacheAndNoWrite:
		return "CACHE_AND_NO_WRITE"
	case NoCacheAndWrite:
		return "NO_CACHE_AND_WRITE"
	default:
		return "NO_CACHE_AND_NO_WRITE"
	}
}

// Successful reports whether a row was actually written.
func (r WriteResponse) Successful() bool {
	return r == CacheAndWrite || r == NoCacheAndWrite
}

// Options configures a Store.
type Options struct {
	Store             *objectstore.Store
	Factory           convert.Factory
	Compressor        filecache.Compressor
	MaxFiles          int
	TmpDir            string
	Log               *slog.Logger
	Deduplicate       bool
	DeduplicateFields []string
}

// Store is a bounded pool of FileCache keyed by target path, owned by
// exactly one Restructure Worker.
type Store struct {
	mu       sync.Mutex
	opts     Options
	tmpDir   string
	caches   map[string]*filecache.FileCache
	log      *slog.Logger
	evictions int
}

// New creates the pool's private temp directory under opts.TmpDir and
// returns a ready Store.
func New(opts Options) (*Store, error) {
	dir := filepath.Join(opts.TmpDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filecachestore: create temp dir: %w", err)
	}
	return &Store{
		opts:   opts,
		tmpDir: dir,
		caches: make(map[string]*filecache.FileCache),
		log:    logging.Component(opts.Log, "filecachestore"),
	}, nil
}

// WriteRecord looks up (or opens) the cache for path and writes record to
// it, returning which of the four WriteResponse outcomes occurred.
func (s *Store) WriteRecord(ctx context.Context, path string, schema *avrofile.Schema, tp offsetrange.TopicPartition, offset int64, record map[string]interface{}, ledger filecache.Ledger, category string) (WriteResponse, error) {
	s.mu.Lock()
	cache, hit := s.caches[path]
	if !hit {
		if err := s.ensureCapacityLocked(ctx); err != nil {
			s.mu.Unlock()
			return NoCacheAndNoWrite, err
		}
		tempPath := filepath.Join(s.tmpDir, uuid.NewString())
		newCache, err := filecache.New(ctx, filecache.Options{
			Store:             s.opts.Store,
			Factory:           s.opts.Factory,
			Compressor:        s.opts.Compressor,
			Schema:            schema,
			TargetPath:        path,
			TempPath:          tempPath,
			SampleRecord:      record,
			Category:          category,
			Deduplicate:       s.opts.Deduplicate,
			DeduplicateFields: s.opts.DeduplicateFields,
		})
		if err != nil {
			s.mu.Unlock()
			s.log.Warn("failed to open file cache", "path", path, "error", err)
			return NoCacheAndNoWrite, nil
		}
		cache = newCache
		s.caches[path] = cache
	}
	s.mu.Unlock()

	ok, err := cache.WriteRecord(tp, offset, record, ledger)
	if err != nil {
		s.mu.Lock()
		delete(s.caches, path)
		s.mu.Unlock()
		cache.MarkErrored()
		_ = cache.Close(ctx)
		s.log.Error("file cache write failed", "path", path, "error", err)
		return NoCacheAndNoWrite, nil
	}
	if ok {
		if hit {
			return CacheAndWrite, nil
		}
		return NoCacheAndWrite, nil
	}
	if hit {
		return CacheAndNoWrite, nil
	}
	return NoCacheAndNoWrite, nil
}

// ensureCapacityLocked closes the coldest half of the pool once it is
// exactly full, leaving it half-full (§4.8). Must be called with s.mu held.
func (s *Store) ensureCapacityLocked(ctx context.Context) error {
	if s.opts.MaxFiles <= 0 || len(s.caches) < s.opts.MaxFiles {
		return nil
	}

	ordered := make([]*filecache.FileCache, 0, len(s.caches))
	for _, c := range s.caches {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].LastUse().Equal(ordered[j].LastUse()) {
			return ordered[i].LastUse().Before(ordered[j].LastUse())
		}
		return ordered[i].TargetPath() < ordered[j].TargetPath()
	})

	toClose := ordered[:len(ordered)/2]
	var errs []error
	for _, c := range toClose {
		delete(s.caches, c.TargetPath())
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		s.evictions++
	}
	return joinErrors(errs)
}

// Flush flushes every open cache. Per-cache errors are aggregated; one
// failing cache does not skip the others.
func (s *Store) Flush() error {
	s.mu.Lock()
	caches := make([]*filecache.FileCache, 0, len(s.caches))
	for _, c := range s.caches {
		caches = append(caches, c)
	}
	s.mu.Unlock()

	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for _, c := range caches {
		wg.Add(1)
		go func(c *filecache.FileCache) {
			defer wg.Done()
			if err := c.Flush(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return joinErrors(errs)
}

// Close closes every cache (publishing successful ones) then recursively
// removes the pool's temp directory.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	caches := make([]*filecache.FileCache, 0, len(s.caches))
	for k, c := range s.caches {
		caches = append(caches, c)
		delete(s.caches, k)
	}
	s.mu.Unlock()

	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for _, c := range caches {
		wg.Add(1)
		go func(c *filecache.FileCache) {
			defer wg.Done()
			if err := c.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	if err := os.RemoveAll(s.tmpDir); err != nil {
		s.log.Warn("failed to remove temp directory", "dir", s.tmpDir, "error", err)
	}

	return joinErrors(errs)
}

// Evictions returns the number of caches closed by ensureCapacity so far.
func (s *Store) Evictions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
