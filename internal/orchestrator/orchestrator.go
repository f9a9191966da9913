// Package orchestrator implements the Orchestrator (C11): discovers
// topics via the Source Scanner, schedules Restructure Workers under the
// Remote Lock Manager with bounded parallelism, and optionally repeats at
// a fixed service-mode cadence.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/radarbase/restructure/internal/accountant"
	"github.com/radarbase/restructure/internal/config"
	"github.com/radarbase/restructure/internal/convert"
	"github.com/radarbase/restructure/internal/filecache"
	"github.com/radarbase/restructure/internal/filecachestore"
	"github.com/radarbase/restructure/internal/lock"
	"github.com/radarbase/restructure/internal/logging"
	"github.com/radarbase/restructure/internal/metrics"
	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
	"github.com/radarbase/restructure/internal/offsetstore"
	"github.com/radarbase/restructure/internal/pathfactory"
	"github.com/radarbase/restructure/internal/scanner"
	"github.com/radarbase/restructure/internal/worker"
)

// Options bundles everything one Orchestrator run needs.
type Options struct {
	Cfg         config.File
	Source      *objectstore.Store
	Target      *objectstore.Store
	OffsetStore *offsetstore.Store
	Locks       *lock.Manager
	Converter   convert.Factory
	Compressor  filecache.Compressor
	PathFactory *pathfactory.Factory
	Bins        *worker.Bins
	Timer       *worker.Timer
	Metrics     *metrics.Metrics
	Progress    bool
	Log         *slog.Logger
}

// Totals aggregates per-topic counters across one full run.
type Totals struct {
	Files   int64
	Records int64
	Skipped int64
}

// Orchestrator runs one scan-and-process pass over one or more input
// roots, bounded to Cfg.Worker.NumThreads concurrent topics.
type Orchestrator struct {
	opts Options
	log  *slog.Logger

	closed atomic.Bool
}

// New returns an Orchestrator ready to Process one or more roots.
func New(opts Options) *Orchestrator {
	return &Orchestrator{opts: opts, log: logging.Component(opts.Log, "orchestrator")}
}

// Close sets the cooperative isClosed flag; in-flight Workers observe it
// between files and stop accepting new ones rather than aborting mid-file.
func (o *Orchestrator) Close() {
	o.closed.Store(true)
}

// Process scans every root, filters and shuffles topics, then dispatches
// one Worker per topic with up to Cfg.Worker.NumThreads running
// concurrently.
func (o *Orchestrator) Process(ctx context.Context, roots []string) (Totals, error) {
	scan := scanner.New(o.opts.Source, rand.New(rand.NewSource(runSeed())), o.opts.Log)

	var allTopics []string
	for _, root := range roots {
		topics, err := scan.FindTopicPaths(ctx, root)
		if err != nil {
			return Totals{}, fmt.Errorf("orchestrator: scan %s: %w", root, err)
		}
		allTopics = append(allTopics, topics...)
	}

	filtered := allTopics[:0]
	for _, t := range allTopics {
		if !o.opts.Cfg.IsExcluded(topicNameOf(t)) {
			filtered = append(filtered, t)
		}
	}

	type job struct {
		topicPath string
		topic     string
		files     offsetrange.TopicFileList
	}

	var jobs []job
	for _, topicPath := range filtered {
		topic := topicNameOf(topicPath)
		seen := o.opts.OffsetStore.Load(topic)
		files, err := scan.EnumerateFiles(ctx, topicPath, seen, o.opts.Cfg.Worker.MaxFilesPerTopic)
		if err != nil {
			o.log.Warn("failed to enumerate topic files", "topic", topic, "error", err)
			continue
		}
		if len(files.Files) == 0 {
			continue
		}
		jobs = append(jobs, job{topicPath: topicPath, topic: topic, files: files})
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].files.NumberOfOffsets() > jobs[j].files.NumberOfOffsets()
	})

	numThreads := o.opts.Cfg.Worker.NumThreads
	if numThreads < 1 {
		numThreads = 1
	}

	var totals Totals
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numThreads)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if o.closed.Load() {
				return nil
			}
			return o.runTopic(gctx, j.topic, j.files, &totals, &mu)
		})
	}

	if err := g.Wait(); err != nil {
		return totals, err
	}
	return totals, nil
}

func (o *Orchestrator) runTopic(ctx context.Context, topic string, files offsetrange.TopicFileList, totals *Totals, mu *sync.Mutex) error {
	handle, err := o.opts.Locks.AcquireTopicLock(topic)
	if err != nil {
		o.log.Warn("lock acquisition failed", "topic", topic, "error", err)
		if o.opts.Metrics != nil {
			o.opts.Metrics.LockContention.WithLabelValues(topic).Inc()
		}
		return nil
	}
	if handle == nil {
		o.log.Info("topic locked by another process, skipping", "topic", topic)
		if o.opts.Metrics != nil {
			o.opts.Metrics.LockContention.WithLabelValues(topic).Inc()
		}
		return nil
	}
	defer handle.Release()

	acct, err := accountant.New(topic, o.opts.OffsetStore, o.opts.Cfg.Worker.TmpDir, o.opts.Log)
	if err != nil {
		return fmt.Errorf("orchestrator: open accountant for %s: %w", topic, err)
	}
	defer acct.Close()

	topicCfg := o.opts.Cfg.TopicConfigFor(topic)

	cacheStore, err := filecachestore.New(filecachestore.Options{
		Store:             o.opts.Target,
		Factory:           o.opts.Converter,
		Compressor:        o.opts.Compressor,
		MaxFiles:          o.opts.Cfg.Worker.CacheSize,
		TmpDir:            acct.TempDir(),
		Log:               o.opts.Log,
		Deduplicate:       topicCfg.Deduplicate,
		DeduplicateFields: topicCfg.DeduplicateFields,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: open file cache store for %s: %w", topic, err)
	}

	w := worker.New(worker.Options{
		Topic:       topic,
		Files:       files.Files,
		Store:       o.opts.Source,
		OutputRoot:  o.opts.Cfg.Paths.Output,
		CacheStore:  cacheStore,
		Accountant:  acct,
		PathFactory: o.opts.PathFactory,
		Bins:        o.opts.Bins,
		Timer:       o.opts.Timer,
		Metrics:     o.opts.Metrics,
		Progress:    o.opts.Progress,
		Log:         o.opts.Log,
	}, rand.New(rand.NewSource(runSeed())))

	if err := w.Run(ctx, o.closed.Load); err != nil {
		_ = cacheStore.Close(ctx)
		return fmt.Errorf("orchestrator: worker for %s: %w", topic, err)
	}

	if err := cacheStore.Close(ctx); err != nil {
		o.log.Warn("file cache store close reported errors", "topic", topic, "error", err)
	}

	mu.Lock()
	totals.Files += w.FilesProcessed()
	totals.Records += w.RecordsProcessed()
	totals.Skipped += w.RecordsSkipped()
	mu.Unlock()

	return nil
}

func topicNameOf(topicPath string) string {
	idx := lastSlash(topicPath)
	if idx < 0 {
		return topicPath
	}
	return topicPath[idx+1:]
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// runSeed seeds each Process/runTopic's private shuffle and jitter RNGs;
// it need not be cryptographically strong, only decorrelated across runs.
func runSeed() int64 {
	return time.Now().UnixNano()
}
