// Package lock implements the Remote Lock Manager (C3): best-effort,
// advisory mutual exclusion per topic across processes sharing a bbolt
// database, via SET-IF-NOT-EXISTS-with-TTL semantics and a heartbeat
// refresher.
package lock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/radarbase/restructure/internal/logging"
	bolt "go.etcd.io/bbolt"
)

var lockBucket = []byte("locks")

// minTTL is the floor enforced on any configured lock TTL (§4.3).
const minTTL = 5 * time.Minute

// heartbeatFraction refreshes the TTL well before it can expire under a
// live holder.
const heartbeatFraction = 3

// Manager grants exclusive, non-reentrant, non-blocking per-topic locks
// backed by a bbolt database.
type Manager struct {
	db    *bolt.DB
	owner string
	ttl   time.Duration
	log   *slog.Logger
}

// Open opens (creating if necessary) a bbolt database at path to back the
// lock manager. owner should be unique per process (e.g. a hostname+pid or
// a uuid) so a crashed holder's record is distinguishable.
func Open(path, owner string, ttl time.Duration, log *slog.Logger) (*Manager, error) {
	if ttl < minTTL {
		ttl = minTTL
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("lock: open bbolt db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(lockBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("lock: init bucket: %w", err)
	}
	return &Manager{db: db, owner: owner, ttl: ttl, log: logging.Component(log, "lock")}, nil
}

// Handle is a scoped lease on one topic's lock. Release is idempotent and
// must be called from every code path, including failure, per §4.3.
type Handle struct {
	mgr   *Manager
	topic string

	mu       sync.Mutex
	released bool
	stop     chan struct{}
	done     chan struct{}
}

// record is the bbolt-persisted lock row.
type record struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AcquireTopicLock attempts to acquire the lock for topic, returning nil
// immediately if another live holder has it (non-blocking, §4.3).
func (m *Manager) AcquireTopicLock(topic string) (*Handle, error) {
	acquired, err := m.tryAcquire(topic)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}

	h := &Handle{mgr: m, topic: topic, stop: make(chan struct{}), done: make(chan struct{})}
	go h.heartbeat()
	return h, nil
}

func (m *Manager) tryAcquire(topic string) (bool, error) {
	now := time.Now()
	acquired := false
	err := m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(lockBucket)
		raw := b.Get([]byte(topic))
		if raw != nil {
			existing, err := decodeRecord(raw)
			if err == nil && existing.ExpiresAt.After(now) {
				return nil // held by a live owner
			}
		}
		rec := record{Owner: m.owner, ExpiresAt: now.Add(m.ttl)}
		encoded, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(topic), encoded); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lock: acquire %s: %w", topic, err)
	}
	return acquired, nil
}

func (m *Manager) refresh(topic string) error {
	now := time.Now()
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(lockBucket)
		rec := record{Owner: m.owner, ExpiresAt: now.Add(m.ttl)}
		encoded, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(topic), encoded)
	})
}

func (m *Manager) release(topic string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(lockBucket)
		raw := b.Get([]byte(topic))
		if raw == nil {
			return nil
		}
		existing, err := decodeRecord(raw)
		if err == nil && existing.Owner != m.owner {
			return nil // someone else's TTL already reclaimed it
		}
		return b.Delete([]byte(topic))
	})
}

func (h *Handle) heartbeat() {
	defer close(h.done)
	interval := h.mgr.ttl / heartbeatFraction
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := h.mgr.refresh(h.topic); err != nil {
				h.mgr.log.Warn("lock heartbeat failed", "topic", h.topic, "error", err)
			}
		case <-h.stop:
			return
		}
	}
}

// Release gives up the lock. Safe to call multiple times.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.mu.Unlock()

	close(h.stop)
	<-h.done
	return h.mgr.release(h.topic)
}

// Close releases the underlying bbolt database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}
