package scanner

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
)

func writeEmptyFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFindTopicPaths_PrunesTmpAndDedupes(t *testing.T) {
	dir := t.TempDir()
	writeEmptyFile(t, filepath.Join(dir, "20230101", "topicA", "topicA+0+0+99.avro"))
	writeEmptyFile(t, filepath.Join(dir, "20230101", "topicA", "topicA+0+100+199.avro"))
	writeEmptyFile(t, filepath.Join(dir, "20230102", "topicB", "+tmp", "topicB+0+0+99.avro"))

	store, err := objectstore.Open(context.Background(), objectstore.Config{Type: "local", Dir: dir})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	s := New(store, rand.New(rand.NewSource(1)), nil)
	topics, err := s.FindTopicPaths(context.Background(), "")
	if err != nil {
		t.Fatalf("FindTopicPaths: %v", err)
	}

	if len(topics) != 1 {
		t.Fatalf("expected one deduplicated, non-pruned topic path, got %v", topics)
	}
}

func TestEnumerateFiles_FiltersSeenBeforeCap(t *testing.T) {
	dir := t.TempDir()
	topicDir := filepath.Join(dir, "topicA")
	writeEmptyFile(t, filepath.Join(topicDir, "topicA+0+0+99.avro"))
	writeEmptyFile(t, filepath.Join(topicDir, "topicA+0+100+199.avro"))
	writeEmptyFile(t, filepath.Join(topicDir, "topicA+0+200+299.avro"))

	store, err := objectstore.Open(context.Background(), objectstore.Config{Type: "local", Dir: dir})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	seen := offsetrange.NewSet()
	seen.Add(offsetrange.TopicPartition{Topic: "topicA", Partition: 0}, offsetrange.Range{From: 0, To: 99})

	s := New(store, rand.New(rand.NewSource(1)), nil)
	list, err := s.EnumerateFiles(context.Background(), "topicA", seen, 1)
	if err != nil {
		t.Fatalf("EnumerateFiles: %v", err)
	}

	// The already-seen 0-99 file must be filtered out before the cap of 1
	// applies, leaving exactly one of the two remaining unseen files -- not
	// zero, which is what a cap-then-filter ordering would produce.
	if len(list.Files) != 1 {
		t.Fatalf("expected exactly one file after filter-then-cap, got %d", len(list.Files))
	}
	if list.Files[0].Range.From == 0 {
		t.Fatalf("the already-seen file should have been filtered out, got %+v", list.Files[0])
	}
}
