// Package worker implements the Restructure Worker (C10): a per-topic
// pipeline that reads source container files, routes records through the
// Path Factory and Record Converter, and drives the File Cache Store and
// Accountant.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path"

	"github.com/radarbase/restructure/internal/accountant"
	"github.com/radarbase/restructure/internal/avrofile"
	"github.com/radarbase/restructure/internal/filecachestore"
	"github.com/radarbase/restructure/internal/logging"
	"github.com/radarbase/restructure/internal/metrics"
	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
	"github.com/radarbase/restructure/internal/pathfactory"
)

// batchSize is the target number of offsets between cacheStore.Flush()
// calls; each worker jitters it ±25% to desynchronize concurrent flushes
// across topics (§4.10).
const batchSize = 500_000

// Options bundles a Worker's per-topic dependencies.
type Options struct {
	Topic       string
	Files       []offsetrange.TopicFile
	Store       *objectstore.Store
	OutputRoot  string
	CacheStore  *filecachestore.Store
	Accountant  *accountant.Accountant
	PathFactory *pathfactory.Factory
	Bins        *Bins
	Timer       *Timer
	Metrics     *metrics.Metrics
	Progress    bool
	Log         *slog.Logger
}

// Worker processes every source file of one topic sequentially, driving
// the cache store, accountant, and bookkeeping sinks.
type Worker struct {
	opts   Options
	log    *slog.Logger
	ledger *accountant.Ledger
	schema *schemaWriter

	batchTarget  int64
	batchCurrent int64

	filesProcessed   int64
	recordsProcessed int64
	recordsSkipped   int64
}

// New returns a Worker ready to Run over opts.Files.
func New(opts Options, rng *rand.Rand) *Worker {
	jitter := 0.75 + rng.Float64()*0.5
	return &Worker{
		opts:        opts,
		log:         logging.TopicLogger(opts.Log, opts.Topic),
		ledger:      accountant.NewLedger(),
		schema:      newSchemaWriter(),
		batchTarget: int64(float64(batchSize) * jitter),
	}
}

// Run processes every file until exhausted or isClosed reports true
// (checked between files, never mid-file, per §5's cancellation model).
func (w *Worker) Run(ctx context.Context, isClosed func() bool) error {
	total := len(w.opts.Files)
	for i, file := range w.opts.Files {
		if isClosed() {
			w.log.Info("stopping before file, orchestrator closed", "remaining", total-i)
			break
		}

		if w.opts.Progress {
			w.log.Info("progress", "file", i+1, "of", total, "records", w.recordsProcessed)
		}

		if err := w.processFile(ctx, file); err != nil {
			w.log.Error("failed to process file", "path", file.Path, "error", err)
			if w.opts.Metrics != nil {
				w.opts.Metrics.FilesSkipped.WithLabelValues(w.opts.Topic, "error").Inc()
			}
			continue
		}
		w.filesProcessed++
		if w.opts.Metrics != nil {
			w.opts.Metrics.FilesProcessed.WithLabelValues(w.opts.Topic).Inc()
		}
	}

	if err := w.opts.CacheStore.Flush(); err != nil {
		w.log.Warn("final flush reported errors", "error", err)
	}
	return nil
}

func (w *Worker) processFile(ctx context.Context, file offsetrange.TopicFile) error {
	size, ok := w.opts.Store.Exists(ctx, file.Path)
	if !ok || size == 0 {
		w.log.Warn("file has zero length or is missing, skipping", "path", file.Path)
		if w.opts.Metrics != nil {
			w.opts.Metrics.FilesSkipped.WithLabelValues(w.opts.Topic, "zero_length").Inc()
		}
		return nil
	}

	r, err := w.opts.Store.NewReader(ctx, file.Path)
	if err != nil {
		return fmt.Errorf("worker: open %s: %w", file.Path, err)
	}
	defer r.Close()

	var reader *avrofile.Reader
	w.opts.Timer.Track("read", func() {
		reader, err = avrofile.NewReader(r)
	})
	if err != nil {
		return fmt.Errorf("worker: parse %s: %w", file.Path, err)
	}

	tp := offsetrange.TopicPartition{Topic: file.Topic, Partition: file.Partition}
	offset := file.Range.From

	for reader.Scan() {
		var record map[string]interface{}
		w.opts.Timer.Track("read", func() {
			record, err = reader.Record()
		})
		if err != nil {
			return fmt.Errorf("worker: decode record at offset %d in %s: %w", offset, file.Path, err)
		}

		if w.opts.Accountant.Contains(tp, offset) {
			w.recordsSkipped++
			if w.opts.Metrics != nil {
				w.opts.Metrics.RecordsSkipped.WithLabelValues(w.opts.Topic).Inc()
			}
			offset++
			continue
		}

		if err := w.writeRecord(ctx, tp, offset, record, reader); err != nil {
			return fmt.Errorf("worker: write record at offset %d in %s: %w", offset, file.Path, err)
		}

		w.recordsProcessed++
		w.batchCurrent++
		offset++

		if w.batchCurrent >= w.batchTarget {
			w.batchCurrent = 0
			w.opts.Timer.Track("flush", func() {
				if err := w.opts.CacheStore.Flush(); err != nil {
					w.log.Warn("batched flush reported errors", "error", err)
				}
			})
		}
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("worker: stream %s: %w", file.Path, err)
	}

	w.ledger.AddRange(tp, file.Range)
	w.opts.Accountant.Process(w.ledger)

	return nil
}

// writeRecord computes the record's organization and attempts to write it,
// recursing with attempt+1 while the cache store reports a schema
// mismatch (§4.10 step 2c).
func (w *Worker) writeRecord(ctx context.Context, tp offsetrange.TopicPartition, offset int64, record map[string]interface{}, reader *avrofile.Reader) error {
	key, _ := record["key"].(map[string]interface{})
	value, _ := record["value"].(map[string]interface{})

	schema, err := reader.Schema()
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		org := w.opts.PathFactory.Organize(tp.Topic, key, value, attempt)
		targetPath := path.Join(w.opts.OutputRoot, org.Path)

		var resp filecachestore.WriteResponse
		w.opts.Timer.Track("write", func() {
			resp, err = w.opts.CacheStore.WriteRecord(ctx, targetPath, schema, tp, offset, record, w.ledger, org.Category)
		})
		if err != nil {
			return err
		}

		if resp.Successful() {
			w.opts.Bins.Add(tp.Topic, org.Category, org.TimeBin)
			if w.opts.Metrics != nil {
				w.opts.Metrics.RecordsWritten.WithLabelValues(tp.Topic).Inc()
			}
			dir := path.Dir(targetPath)
			if raw, err := reader.RawSchema(); err == nil {
				if err := w.schema.EnsureWritten(ctx, w.opts.Store, dir, raw); err != nil {
					w.log.Warn("failed to write schema.json", "dir", dir, "error", err)
				}
			}
			return nil
		}

		if w.opts.Metrics != nil {
			w.opts.Metrics.SchemaRetries.WithLabelValues(tp.Topic).Inc()
		}
		w.log.Debug("schema mismatch, retrying with suffix", "path", targetPath, "attempt", attempt+1)
	}
}

// FilesProcessed returns the count of files fully processed by this Worker.
func (w *Worker) FilesProcessed() int64 { return w.filesProcessed }

// RecordsProcessed returns the count of records written or deduplicated.
func (w *Worker) RecordsProcessed() int64 { return w.recordsProcessed }

// RecordsSkipped returns the count of records skipped as already-seen
// offsets (crash-resume idempotence).
func (w *Worker) RecordsSkipped() int64 { return w.recordsSkipped }
