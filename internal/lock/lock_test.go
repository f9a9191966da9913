package lock

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestManager(t *testing.T, owner string) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "locks.bolt"), owner, minTTL, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// TestAcquireTopicLock_OnlyOneHolderAtATime acquires the same topic twice
// through one Manager: only the first AcquireTopicLock call returns a
// non-nil handle, and once that handle is released a subsequent acquire
// succeeds again.
func TestAcquireTopicLock_OnlyOneHolderAtATime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locks.bolt")

	a, err := Open(path, "process-a", minTTL, nil)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()

	first, err := a.AcquireTopicLock("topicA")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if first == nil {
		t.Fatal("expected first acquire to succeed")
	}

	second, err := a.AcquireTopicLock("topicA")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if second != nil {
		t.Fatal("expected second acquire on the same topic to return nil while held")
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	third, err := a.AcquireTopicLock("topicA")
	if err != nil {
		t.Fatalf("third acquire: %v", err)
	}
	if third == nil {
		t.Fatal("expected acquire after release to succeed")
	}
	if err := third.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

// TestAcquireTopicLock_ConcurrentRace launches many concurrent acquire
// attempts for the same topic and asserts exactly one succeeds.
func TestAcquireTopicLock_ConcurrentRace(t *testing.T) {
	m := openTestManager(t, "owner")

	const attempts = 32
	results := make(chan *Handle, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			h, err := m.AcquireTopicLock("racy-topic")
			if err != nil {
				t.Errorf("acquire: %v", err)
				results <- nil
				return
			}
			results <- h
		}()
	}

	var handles []*Handle
	for i := 0; i < attempts; i++ {
		if h := <-results; h != nil {
			handles = append(handles, h)
		}
	}

	if len(handles) != 1 {
		t.Fatalf("expected exactly one successful acquire out of %d attempts, got %d", attempts, len(handles))
	}
	if err := handles[0].Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

// TestRelease_IsIdempotent covers §4.3's requirement that Release be safe
// to call from every code path, including more than once.
func TestRelease_IsIdempotent(t *testing.T) {
	m := openTestManager(t, "owner")

	h, err := m.AcquireTopicLock("topicA")
	if err != nil || h == nil {
		t.Fatalf("acquire: handle=%v err=%v", h, err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got: %v", err)
	}
}

// TestAcquireTopicLock_ExpiredTTLIsReclaimable simulates a crashed holder:
// once its lease's ExpiresAt is in the past, a new acquire must succeed
// without waiting for an explicit release.
func TestAcquireTopicLock_ExpiredTTLIsReclaimable(t *testing.T) {
	m := openTestManager(t, "owner-a")

	rec := record{Owner: "stale-owner", ExpiresAt: time.Now().Add(-time.Minute)}
	encoded, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(lockBucket)
		return b.Put([]byte("topicA"), encoded)
	}); err != nil {
		t.Fatalf("seed stale record: %v", err)
	}

	h, err := m.AcquireTopicLock("topicA")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h == nil {
		t.Fatal("expected an expired lease to be reclaimable")
	}
	_ = h.Release()
}
