// Package filecache implements the File Cache (C7): one open output writer
// for one target path, with header/schema pinning and atomic publish on
// close.
package filecache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/radarbase/restructure/internal/avrofile"
	"github.com/radarbase/restructure/internal/convert"
	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
)

// Ledger is the subset of the Accountant's uncommitted offset set that a
// FileCache mutates directly on a successful write (§4.7).
type Ledger interface {
	AddOffset(tp offsetrange.TopicPartition, offset int64, at time.Time)
}

// FileCache wraps one open local temp file backing one eventual target
// path. New writes accumulate in plaintext on local disk; compression (if
// configured) and the atomic publish to the object store both happen once,
// in Close.
type FileCache struct {
	targetPath string
	tempPath   string
	category   string

	file      *os.File
	bufw      *bufio.Writer
	converter convert.Converter
	compress  Compressor

	store *objectstore.Store
	schema *avrofile.Schema

	dedup       bool
	dedupFields []string
	dedupSeen   map[string]int

	lastUse  time.Time
	errored  bool
	wroteAny bool
}

// Options bundles a FileCache's construction-time dependencies.
type Options struct {
	Store        *objectstore.Store
	Factory      convert.Factory
	Compressor   Compressor
	Schema       *avrofile.Schema
	TargetPath   string
	TempPath     string
	SampleRecord map[string]interface{}
	Category     string

	// Deduplicate enables per-file content deduplication (a per-topic
	// config override); DeduplicateFields restricts the dedup key to a
	// field subset, matching on the full flattened record when empty.
	Deduplicate       bool
	DeduplicateFields []string
}

// New opens a FileCache for opts.TargetPath, seeding it from the existing
// target (if any) so appends preserve prior content and inherit its pinned
// header (§4.7 construction steps 1-3).
func New(ctx context.Context, opts Options) (*FileCache, error) {
	size, exists := opts.Store.Exists(ctx, opts.TargetPath)
	fileIsNew := !exists || size == 0

	if exists && size > 0 {
		if err := seedFromTarget(ctx, opts.Store, opts.Compressor, opts.TargetPath, opts.TempPath); err != nil {
			return nil, err
		}
	} else {
		f, err := os.OpenFile(opts.TempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("filecache: create temp file: %w", err)
		}
		f.Close()
	}

	var existingHeader io.Reader
	var headerFile *os.File
	if !fileIsNew {
		hf, err := os.Open(opts.TempPath)
		if err != nil {
			return nil, fmt.Errorf("filecache: open temp file for header read: %w", err)
		}
		headerFile = hf
		existingHeader = hf
	}

	file, err := os.OpenFile(opts.TempPath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		if headerFile != nil {
			headerFile.Close()
		}
		return nil, fmt.Errorf("filecache: open temp file for append: %w", err)
	}
	bufw := bufio.NewWriter(file)

	conv, err := opts.Factory.NewConverter(bufw, opts.Schema, opts.SampleRecord, fileIsNew, existingHeader)
	if headerFile != nil {
		headerFile.Close()
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("filecache: open converter: %w", err)
	}

	var dedupSeen map[string]int
	if opts.Deduplicate {
		dedupSeen = make(map[string]int)
	}

	return &FileCache{
		targetPath:  opts.TargetPath,
		tempPath:    opts.TempPath,
		category:    opts.Category,
		file:        file,
		bufw:        bufw,
		converter:   conv,
		compress:    opts.Compressor,
		store:       opts.Store,
		schema:      opts.Schema,
		dedup:       opts.Deduplicate,
		dedupFields: opts.DeduplicateFields,
		dedupSeen:   dedupSeen,
		lastUse:     time.Now(),
		wroteAny:    !fileIsNew,
	}, nil
}

func seedFromTarget(ctx context.Context, store *objectstore.Store, compress Compressor, targetPath, tempPath string) error {
	r, err := store.NewReader(ctx, targetPath)
	if err != nil {
		return fmt.Errorf("filecache: read existing target %s: %w", targetPath, err)
	}
	defer r.Close()

	var src io.Reader = r
	if compress != nil && compress.Name() == "gzip" {
		gr, err := newGzipReader(r)
		if err != nil {
			return fmt.Errorf("filecache: decompress existing target %s: %w", targetPath, err)
		}
		defer gr.Close()
		src = gr
	}

	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("filecache: create temp file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("filecache: copy existing target into temp file: %w", err)
	}
	return nil
}

// WriteRecord writes one row and, on success, advances LastUse and adds the
// singleton offset range to ledger. A failing write (false return, or
// error) does not mutate the ledger; an error additionally marks the cache
// as errored so Close will not publish.
func (f *FileCache) WriteRecord(tp offsetrange.TopicPartition, offset int64, record map[string]interface{}, ledger Ledger) (bool, error) {
	if f.dedup {
		if skip, err := f.checkDuplicate(record); err != nil {
			f.errored = true
			return false, err
		} else if skip {
			f.commit(tp, offset, ledger)
			return true, nil
		}
	}

	ok, err := f.converter.WriteRecord(record)
	if err != nil {
		f.errored = true
		return false, err
	}
	if !ok {
		return false, nil
	}
	f.commit(tp, offset, ledger)
	return true, nil
}

func (f *FileCache) commit(tp offsetrange.TopicPartition, offset int64, ledger Ledger) {
	now := time.Now()
	f.lastUse = now
	f.wroteAny = true
	if ledger != nil {
		ledger.AddOffset(tp, offset, now)
	}
}

// checkDuplicate implements the resolved dedup-subset decision: a later
// record sharing its dedup key with an earlier one is skipped (without
// error) when it has fewer-or-equal columns than the earlier row; a later
// record with *more* columns is left to the normal schema-pinning path
// (neither skipped nor specially handled here) so it is free to trigger
// the usual suffix retry instead of being silently dropped.
func (f *FileCache) checkDuplicate(record map[string]interface{}) (skip bool, err error) {
	cols, err := convert.Flatten(f.schema, record)
	if err != nil {
		return false, fmt.Errorf("filecache: flatten record for dedup: %w", err)
	}
	key := f.dedupKey(cols)
	prevCount, seen := f.dedupSeen[key]
	if !seen {
		f.dedupSeen[key] = len(cols)
		return false, nil
	}
	if len(cols) <= prevCount {
		return true, nil
	}
	return false, nil
}

func (f *FileCache) dedupKey(cols []convert.Column) string {
	var b []byte
	if len(f.dedupFields) == 0 {
		for _, c := range cols {
			b = append(b, c.Name...)
			b = append(b, '=')
			b = fmt.Appendf(b, "%v", c.Value)
			b = append(b, ';')
		}
		return string(b)
	}

	values := make(map[string]convert.Column, len(cols))
	for _, c := range cols {
		values[c.Name] = c
	}
	for _, field := range f.dedupFields {
		if c, ok := values[field]; ok {
			b = append(b, field...)
			b = append(b, '=')
			b = fmt.Appendf(b, "%v", c.Value)
			b = append(b, ';')
		}
	}
	return string(b)
}

// Flush flushes the converter and underlying buffered writer.
func (f *FileCache) Flush() error {
	if err := f.converter.Flush(); err != nil {
		return fmt.Errorf("filecache: flush converter: %w", err)
	}
	if err := f.bufw.Flush(); err != nil {
		return fmt.Errorf("filecache: flush buffer: %w", err)
	}
	return nil
}

// Close flushes, closes local resources, then publishes: if the cache
// errored or never accumulated a single successful write, the temp file is
// deleted without ever touching the target (no half-created empty
// targets). Otherwise the accumulated plaintext is compressed (if
// configured) and published atomically to the object store.
func (f *FileCache) Close(ctx context.Context) error {
	flushErr := f.Flush()
	closeErr := f.file.Close()

	defer os.Remove(f.tempPath)

	if f.errored || !f.wroteAny {
		return firstNonNil(flushErr, closeErr)
	}
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return closeErr
	}

	return f.publish(ctx)
}

func (f *FileCache) publish(ctx context.Context) error {
	in, err := os.Open(f.tempPath)
	if err != nil {
		return fmt.Errorf("filecache: reopen temp file for publish: %w", err)
	}
	defer in.Close()

	if f.compress == nil || f.compress.Name() == "none" {
		return f.store.Publish(ctx, f.targetPath, in)
	}

	pr, pw := io.Pipe()
	go func() {
		wc, err := f.compress.Wrap(pw, f.targetPath)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(wc, in); err != nil {
			wc.Close()
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(wc.Close())
	}()

	return f.store.Publish(ctx, f.targetPath, pr)
}

// LastUse returns the time of the most recent successful write, used for
// LRU ordering by the File Cache Store.
func (f *FileCache) LastUse() time.Time { return f.lastUse }

// TargetPath returns the cache's target path, used as the LRU tiebreaker.
func (f *FileCache) TargetPath() string { return f.targetPath }

// Errored reports whether a write ever failed with an error (as opposed to
// a schema mismatch, which is not an error).
func (f *FileCache) Errored() bool { return f.errored }

// MarkErrored is used by the File Cache Store when an operation outside
// WriteRecord (e.g. a bulk flush) fails for this cache.
func (f *FileCache) MarkErrored() { f.errored = true }

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
