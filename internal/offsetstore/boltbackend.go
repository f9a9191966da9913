package offsetstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/radarbase/restructure/internal/offsetrange"
	bolt "go.etcd.io/bbolt"
)

var offsetsBucket = []byte("offsets")

// envelope mirrors the redis-shaped JSON contract in §4.2: one document
// per topic, holding every partition's canonicalized ranges.
type envelope struct {
	Partitions []partitionRanges `json:"partitions"`
}

type partitionRanges struct {
	Topic     string      `json:"topic"`
	Partition int         `json:"partition"`
	Ranges    []rangeJSON `json:"ranges"`
}

type rangeJSON struct {
	From          int64     `json:"from"`
	To            int64     `json:"to"`
	LastProcessed time.Time `json:"lastProcessed"`
}

// BoltBackend is the key-value Offset Store backend, storing one JSON
// envelope per topic keyed by topic name. No Redis client exists anywhere
// in the retrieved dependency pack, so bbolt (already pulled in for the
// Remote Lock Manager) stands in as the concrete embedded KV store behind
// the same "redis" contract named in the config schema (§6).
type BoltBackend struct {
	db *bolt.DB
}

// OpenBoltBackend opens (creating if necessary) a bbolt database at path.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("offsetstore: open bbolt db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(offsetsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("offsetstore: init bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

// Load decodes topic's envelope, if present.
func (b *BoltBackend) Load(topic string) (*offsetrange.Set, error) {
	set := offsetrange.NewSet()
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(offsetsBucket).Get([]byte(topic))
		if raw == nil {
			return nil
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode envelope for %s: %w", topic, err)
		}
		for _, part := range env.Partitions {
			tp := offsetrange.TopicPartition{Topic: part.Topic, Partition: part.Partition}
			for _, r := range part.Ranges {
				set.Add(tp, offsetrange.Range{From: r.From, To: r.To, LastProcessed: r.LastProcessed})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Save encodes set as topic's envelope and writes it in one bbolt
// transaction.
func (b *BoltBackend) Save(topic string, set *offsetrange.Set) error {
	env := envelope{}
	for _, tp := range set.Partitions() {
		if tp.Topic != topic {
			continue
		}
		part := partitionRanges{Topic: tp.Topic, Partition: tp.Partition}
		for _, r := range set.Ranges(tp) {
			part.Ranges = append(part.Ranges, rangeJSON{From: r.From, To: r.To, LastProcessed: r.LastProcessed})
		}
		env.Partitions = append(env.Partitions, part)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("offsetstore: encode envelope for %s: %w", topic, err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(offsetsBucket).Put([]byte(topic), raw)
	})
}

// Close releases the bbolt database handle.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
