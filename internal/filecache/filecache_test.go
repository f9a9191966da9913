package filecache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/radarbase/restructure/internal/avrofile"
	"github.com/radarbase/restructure/internal/convert"
	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
)

const testSchema = `{"type":"record","name":"r","fields":[
	{"name":"a","type":"string"},
	{"name":"b","type":"string"}
]}`

type stubLedger struct {
	added []int64
}

func (l *stubLedger) AddOffset(tp offsetrange.TopicPartition, offset int64, at time.Time) {
	l.added = append(l.added, offset)
}

func openTestCache(t *testing.T, dedup bool, fields []string) (*FileCache, *objectstore.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := objectstore.Open(context.Background(), objectstore.Config{Type: "local", Dir: dir})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	schema, err := avrofile.ParseSchema(testSchema)
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	fc, err := New(context.Background(), Options{
		Store:             store,
		Factory:           convert.NewCSVFactory(),
		Schema:            schema,
		TargetPath:        "out.csv",
		TempPath:          filepath.Join(dir, "tmp.csv"),
		SampleRecord:      map[string]interface{}{"a": "1", "b": "2"},
		Deduplicate:       dedup,
		DeduplicateFields: fields,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fc, store
}

func TestWriteRecord_DedupSkipsRepeatedRecord(t *testing.T) {
	fc, _ := openTestCache(t, true, nil)
	tp := offsetrange.TopicPartition{Topic: "t", Partition: 0}
	ledger := &stubLedger{}

	ok, err := fc.WriteRecord(tp, 0, map[string]interface{}{"a": "x", "b": "y"}, ledger)
	if err != nil || !ok {
		t.Fatalf("first write: ok=%v err=%v", ok, err)
	}

	ok, err = fc.WriteRecord(tp, 1, map[string]interface{}{"a": "x", "b": "y"}, ledger)
	if err != nil || !ok {
		t.Fatalf("duplicate write should report ok=true (committed, not error): ok=%v err=%v", ok, err)
	}

	if len(ledger.added) != 2 {
		t.Fatalf("expected both offsets committed to the ledger, got %v", ledger.added)
	}
	if fc.dedupSeen["a=x;b=y;"] != 2 {
		t.Fatalf("expected dedup key column count 2, got %d", fc.dedupSeen["a=x;b=y;"])
	}
}

func TestWriteRecord_DedupOnFieldSubset(t *testing.T) {
	fc, _ := openTestCache(t, true, []string{"a"})
	tp := offsetrange.TopicPartition{Topic: "t", Partition: 0}
	ledger := &stubLedger{}

	if _, err := fc.WriteRecord(tp, 0, map[string]interface{}{"a": "x", "b": "y"}, ledger); err != nil {
		t.Fatalf("first write: %v", err)
	}
	skip, err := fc.checkDuplicate(map[string]interface{}{"a": "x", "b": "different"})
	if err != nil {
		t.Fatalf("checkDuplicate: %v", err)
	}
	if !skip {
		t.Fatalf("expected a later row sharing only the dedup field to be skipped")
	}
}

func TestClose_EmptyCacheDoesNotPublish(t *testing.T) {
	fc, store := openTestCache(t, false, nil)
	if err := fc.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := store.Exists(context.Background(), "out.csv"); ok {
		t.Fatalf("no records were written, target should not exist")
	}
	if _, err := os.Stat(fc.tempPath); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed, got err=%v", err)
	}
}
