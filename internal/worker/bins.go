package worker

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/radarbase/restructure/internal/objectstore"
)

// binKey identifies one row of the shared bins.csv tally.
type binKey struct {
	Topic    string
	Category string
	TimeBin  string
}

// Bins accumulates a {topic, category, timeBin} -> count tally shared by
// every worker in a run, persisted to <output>/bins.csv (§4.10/§6).
type Bins struct {
	mu     sync.Mutex
	counts map[binKey]int64
}

// NewBins returns an empty tally.
func NewBins() *Bins {
	return &Bins{counts: make(map[binKey]int64)}
}

// Add increments the tally for one written record.
func (b *Bins) Add(topic, category, timeBin string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[binKey{Topic: topic, Category: category, TimeBin: timeBin}]++
}

// WriteTo publishes the current tally as a CSV to <output>/bins.csv,
// merging with anything already there so concurrent topic workers don't
// clobber each other's rows.
func (b *Bins) WriteTo(ctx context.Context, store *objectstore.Store, path string) error {
	b.mu.Lock()
	snapshot := make(map[binKey]int64, len(b.counts))
	for k, v := range b.counts {
		snapshot[k] = v
	}
	b.mu.Unlock()

	if existing, ok := store.Exists(ctx, path); ok && existing > 0 {
		r, err := store.NewReader(ctx, path)
		if err == nil {
			defer r.Close()
			cr := csv.NewReader(r)
			rows, _ := cr.ReadAll()
			for i, row := range rows {
				if i == 0 || len(row) != 4 {
					continue
				}
				var count int64
				fmt.Sscanf(row[3], "%d", &count)
				key := binKey{Topic: row[0], Category: row[1], TimeBin: row[2]}
				if _, ours := snapshot[key]; !ours {
					snapshot[key] = count
				}
			}
		}
	}

	keys := make([]binKey, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].TimeBin < keys[j].TimeBin
	})

	tmp, err := os.CreateTemp("", "bins-*.csv")
	if err != nil {
		return fmt.Errorf("worker: create temp bins file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"topic", "category", "timeBin", "count"}); err != nil {
		tmp.Close()
		return err
	}
	for _, k := range keys {
		if err := w.Write([]string{k.Topic, k.Category, k.TimeBin, fmt.Sprintf("%d", snapshot[k])}); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return store.Publish(ctx, path, f)
}
