// Package scanner implements the Source Scanner (C4): lazy discovery of
// topic directories and record files on the pluggable object store.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path"
	"strings"

	"github.com/radarbase/restructure/internal/logging"
	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
)

// tmpDirMarker is the literal directory name pruned from every walk
// (a sink-side staging marker, §4.4).
const tmpDirMarker = "+tmp"

// Scanner walks a Store looking for topic directories and their record
// files.
type Scanner struct {
	store *objectstore.Store
	rng   *rand.Rand
	log   *slog.Logger
}

// New wraps store. rng supplies the shuffle order; pass a seeded
// rand.Rand for reproducible test runs. log may be nil, in which case a
// discarding logger is used.
func New(store *objectstore.Store, rng *rand.Rand, log *slog.Logger) *Scanner {
	return &Scanner{store: store, rng: rng, log: logging.Component(log, "scanner")}
}

// FindTopicPaths walks root looking for any directory that directly
// contains a "*.avro" file; it yields that file's grandparent directory as
// the topic path (for a `<root>/<topic>/<subdir>/<file>.avro` layout, the
// topic directory, whose last segment the Orchestrator uses as the topic
// name). Directories literally named "+tmp" are pruned. Results are deduplicated
// and shuffled.
func (s *Scanner) FindTopicPaths(ctx context.Context, root string) ([]string, error) {
	entries, errCh := s.store.List(ctx, root)

	seen := make(map[string]struct{})
	var topics []string

	for entry := range entries {
		if entry.IsDir || !strings.HasSuffix(entry.Key, ".avro") {
			continue
		}
		if containsPrunedDir(entry.Key) {
			continue
		}
		topicDir := path.Dir(path.Dir(entry.Key))
		if _, ok := seen[topicDir]; ok {
			continue
		}
		seen[topicDir] = struct{}{}
		topics = append(topics, topicDir)
	}

	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("scanner: walk %s: %w", root, err)
	}

	s.shuffle(topics)
	return topics, nil
}

func containsPrunedDir(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if segment == tmpDirMarker {
			return true
		}
	}
	return false
}

func (s *Scanner) shuffle(items []string) {
	if s.rng == nil {
		return
	}
	s.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
}

// EnumerateFiles lists every "*.avro" file under topicPath at any depth
// (the store listing is recursive), skips
// any already fully contained in seen, then caps the remainder at
// maxFilesPerTopic (0 = unbounded) — filtering happens before the cap is
// applied, per the resolved maxFilesPerTopic/Accountant ordering question.
func (s *Scanner) EnumerateFiles(ctx context.Context, topicPath string, seen *offsetrange.Set, maxFilesPerTopic int) (offsetrange.TopicFileList, error) {
	entries, errCh := s.store.List(ctx, topicPath)

	var files []offsetrange.TopicFile
	var topic string

	for entry := range entries {
		if entry.IsDir || !strings.HasSuffix(entry.Key, ".avro") {
			continue
		}
		base := path.Base(entry.Key)
		tf, err := offsetrange.ParseFilename(base)
		if err != nil {
			s.log.Warn("skipping unparseable file name", "path", entry.Key, "error", err)
			continue
		}
		tf.Path = entry.Key
		topic = tf.Topic

		tp := offsetrange.TopicPartition{Topic: tf.Topic, Partition: tf.Partition}
		if seen.Contains(tp, tf.Range) {
			continue
		}
		files = append(files, tf)
	}

	if err := <-errCh; err != nil {
		return offsetrange.TopicFileList{}, fmt.Errorf("scanner: list %s: %w", topicPath, err)
	}

	if maxFilesPerTopic > 0 && len(files) > maxFilesPerTopic {
		files = files[:maxFilesPerTopic]
	}

	return offsetrange.TopicFileList{Topic: topic, Files: files}, nil
}
