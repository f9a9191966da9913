// Package offsetstore implements the Offset Store (C2): durable
// persistence of one offsetrange.Set per topic, behind a common contract
// with two backends (file-per-topic CSV, bbolt key-value), both writing
// through a postponed, coalesced background goroutine.
package offsetstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/radarbase/restructure/internal/logging"
	"github.com/radarbase/restructure/internal/offsetrange"
)

// Backend is the durable persistence contract a Store writes through.
// Implementations must be safe for concurrent use by distinct topics.
type Backend interface {
	Load(topic string) (*offsetrange.Set, error)
	Save(topic string, set *offsetrange.Set) error
	Close() error
}

// debounceWindow bounds how long writes may be postponed (§4.2).
const debounceWindow = time.Second

// SetSource returns a point-in-time snapshot of a Ledger owner's current
// state. The Accountant implements this directly (its Clone method) so the
// topicWriter never needs to share a lock with the Accountant's own
// mutations.
type SetSource func() *offsetrange.Set

// topicWriter runs the postponed, coalesced background writer for one
// topic: triggerWrite is a non-blocking signal, close forces a
// synchronous final write.
type topicWriter struct {
	topic   string
	backend Backend
	log     *slog.Logger
	source  SetSource

	mu      sync.Mutex
	pending chan struct{}
	done    chan struct{}
	closed  bool
}

// Store owns one topicWriter per topic, lazily created on first use.
type Store struct {
	backend Backend
	log     *slog.Logger

	mu      sync.Mutex
	writers map[string]*topicWriter
}

// Open wraps backend in a Store ready to load/persist per-topic sets.
func Open(backend Backend, log *slog.Logger) *Store {
	return &Store{
		backend: backend,
		log:     logging.Component(log, "offsetstore"),
		writers: make(map[string]*topicWriter),
	}
}

// Load reads the persisted set for topic. Read failures are logged and an
// empty set is returned — the cost is reprocessing, never target data
// loss (§4.2).
func (s *Store) Load(topic string) *offsetrange.Set {
	set, err := s.backend.Load(topic)
	if err != nil {
		s.log.Warn("failed to load offsets, starting empty", "topic", topic, "error", err)
		return offsetrange.NewSet()
	}
	if set == nil {
		return offsetrange.NewSet()
	}
	return set
}

// Writer returns (creating if necessary) the postponed writer for topic.
// source is called to obtain a fresh snapshot each time a debounced write
// actually fires. An open writer for topic is reused as is (keeping the
// source it was created with); a closed one is replaced by a new writer
// over source.
func (s *Store) Writer(topic string, source SetSource) *topicWriter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.writers[topic]; ok {
		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			return w
		}
	}
	w := &topicWriter{
		topic:   topic,
		backend: s.backend,
		log:     s.log,
		source:  source,
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	s.writers[topic] = w
	return w
}

// Close closes every outstanding topic writer (forcing a final synchronous
// write each) then the backend itself.
func (s *Store) Close() error {
	s.mu.Lock()
	writers := make([]*topicWriter, 0, len(s.writers))
	for _, w := range s.writers {
		writers = append(writers, w)
	}
	s.writers = make(map[string]*topicWriter)
	s.mu.Unlock()

	for _, w := range writers {
		w.Close()
	}
	return s.backend.Close()
}

func (w *topicWriter) run() {
	defer close(w.done)
	for range w.pending {
		time.Sleep(debounceWindow)
		// Drain any writes that coalesced during the debounce window. A
		// closed channel ends the drain; the outer range then exits.
	drain:
		for {
			select {
			case _, ok := <-w.pending:
				if !ok {
					break drain
				}
			default:
				break drain
			}
		}
		w.writeNow()
	}
}

func (w *topicWriter) writeNow() {
	set := w.source()

	if err := w.backend.Save(w.topic, set); err != nil {
		w.log.Warn("offset write failed, will retry on next trigger", "topic", w.topic, "error", err)
	}
}

// TriggerWrite requests a coalesced, postponed write of the current set.
func (w *topicWriter) TriggerWrite() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// Close forces a synchronous final write and stops the background writer.
func (w *topicWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.pending)
	<-w.done
	w.writeNow()
}
