// Package accountant implements the Accountant (C9): owns one Ledger and
// one persisted offsetrange.Set loaded from the Offset Store, merging
// batches from writer threads and triggering coalesced durable writes.
package accountant

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/radarbase/restructure/internal/logging"
	"github.com/radarbase/restructure/internal/offsetrange"
	"github.com/radarbase/restructure/internal/offsetstore"
)

// durableWriter is the subset of offsetstore's per-topic postponed writer
// the Accountant needs.
type durableWriter interface {
	TriggerWrite()
	Close()
}

// Accountant tracks processed offsets for exactly one topic and is shared
// by every writer goroutine working that topic (§4.9). It is safe for
// concurrent use.
type Accountant struct {
	topic   string
	tempDir string
	log     *slog.Logger

	mu     sync.Mutex
	set    *offsetrange.Set
	writer durableWriter
}

// New loads topic's persisted set from store, allocates a private
// temporary directory under baseTmpDir, and returns an Accountant ready to
// serve as both the seen-offset oracle and the commit target for a
// worker's ledger.
func New(topic string, store *offsetstore.Store, baseTmpDir string, log *slog.Logger) (*Accountant, error) {
	set := store.Load(topic)
	tempDir, err := os.MkdirTemp(baseTmpDir, "accountant-*")
	if err != nil {
		return nil, err
	}
	a := &Accountant{
		topic:   topic,
		tempDir: tempDir,
		log:     logging.Component(log, "accountant"),
		set:     set,
	}
	a.writer = store.Writer(topic, a.Clone)
	return a, nil
}

// Clone is the offsetstore.SetSource handed to the topic's writer: it
// returns a point-in-time snapshot safe to serialize concurrently with
// further mutation.
func (a *Accountant) Clone() *offsetrange.Set {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set.Clone()
}

// Contains reports whether (tp, offset) has already been committed,
// enabling crash-resume idempotence in the Restructure Worker.
func (a *Accountant) Contains(tp offsetrange.TopicPartition, offset int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set.ContainsOffset(tp, offset)
}

// Ledger is a per-worker accumulator of offsets processed since the last
// Process call; a Transaction is the unit of addition, added as a
// singleton range.
type Ledger struct {
	set *offsetrange.Set
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{set: offsetrange.NewSet()}
}

// AddOffset records a single processed offset, satisfying filecache.Ledger.
func (l *Ledger) AddOffset(tp offsetrange.TopicPartition, offset int64, at time.Time) {
	l.set.AddOffset(tp, offset, at)
}

// AddRange commits a whole file's OffsetRange at once, used when a source
// file completes successfully (§4.10).
func (l *Ledger) AddRange(tp offsetrange.TopicPartition, r offsetrange.Range) {
	l.set.Add(tp, r)
}

// Process merges ledger's accumulated ranges into the persisted set and
// triggers a coalesced durable write.
func (a *Accountant) Process(ledger *Ledger) {
	a.mu.Lock()
	a.set.Merge(ledger.set)
	a.mu.Unlock()

	a.writer.TriggerWrite()
}

// Flush requests (without blocking for) a durable write of the current
// state.
func (a *Accountant) Flush() {
	a.writer.TriggerWrite()
}

// Close forces a synchronous final write via the Offset Store and removes
// the Accountant's private temporary directory.
func (a *Accountant) Close() error {
	a.writer.Close()
	return os.RemoveAll(a.tempDir)
}

// TempDir returns the Accountant's private scratch directory.
func (a *Accountant) TempDir() string {
	return a.tempDir
}
