package accountant

import (
	"path/filepath"
	"testing"

	"github.com/radarbase/restructure/internal/offsetrange"
	"github.com/radarbase/restructure/internal/offsetstore"
)

// TestIdempotentRerun_ContainsSurvivesRestart drives the same scenario as a
// crash-and-resume: one Accountant commits a batch of offsets and is
// closed (forcing a durable write), then a second Accountant opened
// against the same persisted store for the same topic must already
// Contain everything the first one committed, so a re-run of those
// offsets is recognized and skipped rather than reprocessed.
func TestIdempotentRerun_ContainsSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "offsets.bolt")

	firstBackend, err := offsetstore.OpenBoltBackend(dbPath)
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	firstStore := offsetstore.Open(firstBackend, nil)

	tp := offsetrange.TopicPartition{Topic: "topicA", Partition: 0}

	first, err := New("topicA", firstStore, dir, nil)
	if err != nil {
		t.Fatalf("open first accountant: %v", err)
	}

	ledger := NewLedger()
	ledger.AddRange(tp, offsetrange.Range{From: 0, To: 99})
	first.Process(ledger)

	if !first.Contains(tp, 50) {
		t.Fatal("expected the committing accountant to already see its own offsets")
	}

	if err := first.Close(); err != nil {
		t.Fatalf("close first accountant: %v", err)
	}
	if err := firstStore.Close(); err != nil {
		t.Fatalf("close first store: %v", err)
	}

	// A restart opens a brand new Store (and backend handle) over the same
	// durable bbolt file, exactly as a fresh process would.
	secondBackend, err := offsetstore.OpenBoltBackend(dbPath)
	if err != nil {
		t.Fatalf("reopen backend: %v", err)
	}
	secondStore := offsetstore.Open(secondBackend, nil)
	defer secondStore.Close()

	second, err := New("topicA", secondStore, dir, nil)
	if err != nil {
		t.Fatalf("open second accountant: %v", err)
	}
	defer second.Close()

	if !second.Contains(tp, 0) {
		t.Fatal("expected offset 0 to survive a restart via the durable offset store")
	}
	if !second.Contains(tp, 99) {
		t.Fatal("expected offset 99 to survive a restart via the durable offset store")
	}
	if second.Contains(tp, 100) {
		t.Fatal("did not expect an offset outside the committed range to be seen")
	}
}

// TestProcess_MergesConcurrentLedgers exercises two writer-goroutine
// ledgers landing on the same Accountant, mirroring §4.9's shared-Ledger
// concurrency contract.
func TestProcess_MergesConcurrentLedgers(t *testing.T) {
	dir := t.TempDir()
	backend, err := offsetstore.OpenBoltBackend(filepath.Join(dir, "offsets.bolt"))
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	defer backend.Close()

	store := offsetstore.Open(backend, nil)
	defer store.Close()

	a, err := New("topicA", store, dir, nil)
	if err != nil {
		t.Fatalf("open accountant: %v", err)
	}
	defer a.Close()

	tp := offsetrange.TopicPartition{Topic: "topicA", Partition: 0}

	ledgerA := NewLedger()
	ledgerA.AddRange(tp, offsetrange.Range{From: 0, To: 49})
	ledgerB := NewLedger()
	ledgerB.AddRange(tp, offsetrange.Range{From: 50, To: 99})

	done := make(chan struct{}, 2)
	go func() { a.Process(ledgerA); done <- struct{}{} }()
	go func() { a.Process(ledgerB); done <- struct{}{} }()
	<-done
	<-done

	for _, offset := range []int64{0, 25, 49, 50, 75, 99} {
		if !a.Contains(tp, offset) {
			t.Fatalf("expected merged accountant to contain offset %d", offset)
		}
	}
	if a.Contains(tp, 100) {
		t.Fatal("did not expect offset 100 to be present")
	}
}
