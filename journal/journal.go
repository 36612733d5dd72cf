// Package journal persists a durable record of every applied sync message in
// a Pebble key/value store, keyed by big-endian sequence. It exists for gap
// diagnosis: when the consumer suspects a missed batch or delta, the journal
// shows exactly what arrived and when, surviving restarts.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const entryPrefix = "m|"

var errClosed = errors.New("journal: store is closed")

const (
	defaultCacheSizeBytes    = int64(8 << 20) // 8MB block cache; journal reads are rare
	defaultBloomFilterBits   = 10
	defaultMemTableSizeBytes = uint64(4 << 20)
)

// Entry is one applied message summary.
type Entry struct {
	Seq      uint64 `json:"seq"`      // journal-local, monotonic
	WireSeq  uint64 `json:"wireSeq"`  // producer's envelope sequence
	Type     string `json:"type"`
	Producer string `json:"producer,omitempty"`
	Items    int    `json:"items"` // node records carried (or delta size)
	At       int64  `json:"at"`    // unix millis
}

// Journal is a single-writer append log. Append calls are serialized by an
// internal mutex; reads iterate a Pebble snapshot and never block writers.
type Journal struct {
	db     *pebble.DB
	mu     sync.Mutex
	seq    atomic.Uint64
	closed atomic.Bool
}

// Open opens (or creates) the journal at dir with tuned Pebble options.
func Open(dir string) (*Journal, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(defaultCacheSizeBytes),
		MemTableSize: defaultMemTableSizeBytes,
		Levels: []pebble.LevelOptions{{
			FilterPolicy: bloom.FilterPolicy(defaultBloomFilterBits),
		}},
	}
	defer opts.Cache.Unref()
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dir, err)
	}
	j := &Journal{db: db}
	if err := j.recoverSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// recoverSeq resumes the sequence counter from the newest persisted key.
func (j *Journal) recoverSeq() error {
	iter, err := j.db.NewIter(prefixBounds())
	if err != nil {
		return fmt.Errorf("journal: iterator: %w", err)
	}
	defer iter.Close()
	if iter.Last() && iter.Valid() {
		key := iter.Key()
		if len(key) == len(entryPrefix)+8 {
			j.seq.Store(binary.BigEndian.Uint64(key[len(entryPrefix):]))
		}
	}
	return nil
}

// Append persists one entry, assigning the next journal sequence.
func (j *Journal) Append(e Entry) error {
	if j.closed.Load() {
		return errClosed
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	e.Seq = j.seq.Add(1)
	if e.At == 0 {
		e.At = time.Now().UnixMilli()
	}
	value, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	return j.db.Set(entryKey(e.Seq), value, pebble.NoSync)
}

// Recent returns up to n newest entries, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	if j.closed.Load() {
		return nil, errClosed
	}
	if n <= 0 {
		return nil, nil
	}
	iter, err := j.db.NewIter(prefixBounds())
	if err != nil {
		return nil, fmt.Errorf("journal: iterator: %w", err)
	}
	defer iter.Close()
	entries := make([]Entry, 0, n)
	for ok := iter.Last(); ok && len(entries) < n; ok = iter.Prev() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			// One corrupt record must not hide the rest.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Prune deletes entries older than the cutoff. Called periodically so the
// journal stays bounded by retention, not by traffic.
func (j *Journal) Prune(olderThan time.Time) (int, error) {
	if j.closed.Load() {
		return 0, errClosed
	}
	cutoff := olderThan.UnixMilli()
	iter, err := j.db.NewIter(prefixBounds())
	if err != nil {
		return 0, fmt.Errorf("journal: iterator: %w", err)
	}
	batch := j.db.NewBatch()
	defer batch.Close()
	removed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil || e.At < cutoff {
			key := append([]byte(nil), iter.Key()...)
			if err := batch.Delete(key, nil); err == nil {
				removed++
			}
			continue
		}
		// Keys are sequence-ordered and times are monotonic enough that the
		// first retained entry ends the scan.
		break
	}
	iter.Close()
	if removed == 0 {
		return 0, nil
	}
	if err := j.db.Apply(batch, pebble.NoSync); err != nil {
		return 0, fmt.Errorf("journal: prune apply: %w", err)
	}
	return removed, nil
}

// Close flushes and closes the store.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	return j.db.Close()
}

func entryKey(seq uint64) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], seq)
	return key
}

func prefixBounds() *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte(entryPrefix),
		UpperBound: []byte("m}"), // '}' is '|'+1
	}
}
