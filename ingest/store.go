// Package ingest owns the consumer-side authoritative node collection and the
// producer connection lifecycle. All mutations funnel through one mutex (the
// single-writer discipline), and reads serve an immutable published slice so
// the presentation layer never observes a half-applied message.
package ingest

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"treemirror/buffer"
	"treemirror/node"
)

// Store holds the path-keyed node collection mirrored from exactly one
// producer at a time. A new producer connection invalidates everything the
// previous one sent; a disconnect clears the collection outright, because
// paths are meaningless without a live source of truth behind them.
type Store struct {
	mu    sync.Mutex
	nodes map[string]node.Node

	// published is the read-side view, replaced wholesale after every applied
	// message. Readers get fully-applied versions only.
	published atomic.Pointer[publishedView]
	version   atomic.Uint64

	conn connState

	// batch sequence accounting for the current batched snapshot
	batchExpect int
	batchOpen   bool

	events *buffer.RingBuffer
}

type publishedView struct {
	version uint64
	nodes   []node.Node
}

// connState tracks producer liveness. Guarded by Store.mu.
type connState struct {
	connected   bool
	producer    string
	connectedAt time.Time
	lastSeenAt  time.Time
}

// ConnectionState is the read-side copy of producer liveness.
type ConnectionState struct {
	Connected   bool      `json:"connected"`
	Producer    string    `json:"producer,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// NewStore builds an empty store. The event ring may be nil when no dashboard
// is attached.
func NewStore(events *buffer.RingBuffer) *Store {
	s := &Store{
		nodes:  make(map[string]node.Node),
		events: events,
	}
	s.published.Store(&publishedView{})
	return s
}

// ProducerConnected registers a new producer session. The previous collection
// is cleared before any new data is accepted: exactly one producer's state is
// meaningful at a time.
func (s *Store) ProducerConnected(producer string) {
	now := time.Now()
	s.mu.Lock()
	if len(s.nodes) > 0 {
		log.Printf("Store: producer %q replaces previous session, clearing %d nodes", producer, len(s.nodes))
	}
	s.clearLocked()
	s.conn = connState{connected: true, producer: producer, connectedAt: now, lastSeenAt: now}
	s.publishLocked()
	s.mu.Unlock()
}

// ProducerDisconnected clears the collection. The tree is invalid without a
// live producer confirming it.
func (s *Store) ProducerDisconnected(reason string) {
	s.mu.Lock()
	cleared := len(s.nodes)
	s.clearLocked()
	s.conn.connected = false
	s.publishLocked()
	s.mu.Unlock()
	log.Printf("Store: producer disconnected (%s), cleared %d nodes", reason, cleared)
	s.emit(&buffer.Event{Kind: buffer.EventCleared, Count: cleared, At: time.Now()})
}

// Touch refreshes last-contact time. Called for every message and heartbeat.
func (s *Store) Touch() {
	s.mu.Lock()
	s.conn.lastSeenAt = time.Now()
	s.mu.Unlock()
}

// ApplySnapshot replaces the entire collection. Used for the first full sync
// after a producer connects.
func (s *Store) ApplySnapshot(nodes []node.Node) {
	s.mu.Lock()
	s.clearLocked()
	for i := range nodes {
		s.nodes[nodes[i].Path] = nodes[i]
	}
	s.conn.lastSeenAt = time.Now()
	s.publishLocked()
	count := len(s.nodes)
	s.mu.Unlock()
	s.emit(&buffer.Event{Kind: buffer.EventSnapshot, Count: count, At: time.Now()})
}

// BeginBatch handles a batchStart announcement: the collection is cleared and
// batch accounting reset, so the chunks that follow accumulate into a fresh
// collection.
func (s *Store) BeginBatch(totalNodes, batchSize int) {
	s.mu.Lock()
	s.clearLocked()
	s.batchOpen = true
	s.batchExpect = 0
	s.conn.lastSeenAt = time.Now()
	s.publishLocked()
	s.mu.Unlock()
	log.Printf("Store: batched snapshot incoming (%d nodes, batch size %d)", totalNodes, batchSize)
}

// ApplyBatch merges one chunk of a batched snapshot, deduplicating by path
// with last-writer-wins. A gap or reordering in the index sequence is logged
// and reported through the return value so the caller can count it; the union
// semantics still hold for whatever arrives, and isLast needs no finalization
// beyond accounting.
func (s *Store) ApplyBatch(nodes []node.Node, index, total int, isLast bool) (gaps int) {
	s.mu.Lock()
	if !s.batchOpen {
		log.Printf("Store: batch %d arrived without batchStart, merging anyway", index)
	} else if index != s.batchExpect {
		log.Printf("Store: batch sequence gap: got index %d, expected %d (total %d)", index, s.batchExpect, total)
		gaps = 1
	}
	if isLast && index+1 < total {
		log.Printf("Store: isLast on batch %d of %d before lower indices completed", index, total)
	}
	s.batchExpect = index + 1
	for i := range nodes {
		s.nodes[nodes[i].Path] = nodes[i]
	}
	if isLast {
		s.batchOpen = false
	}
	s.conn.lastSeenAt = time.Now()
	s.publishLocked()
	count := len(s.nodes)
	s.mu.Unlock()
	if isLast {
		s.emit(&buffer.Event{Kind: buffer.EventSnapshot, Count: count, At: time.Now()})
	}
	return gaps
}

// ApplyDelta applies removals as deletions and added/modified as upserts.
// Add and modify share upsert semantics; the split is informational, both
// mean "this path now has this content".
func (s *Store) ApplyDelta(delta *node.Delta) {
	now := time.Now()
	s.mu.Lock()
	for _, path := range delta.Removed {
		delete(s.nodes, path)
	}
	for i := range delta.Added {
		s.nodes[delta.Added[i].Path] = delta.Added[i]
	}
	for i := range delta.Modified {
		s.nodes[delta.Modified[i].Path] = delta.Modified[i]
	}
	s.conn.lastSeenAt = now
	s.publishLocked()
	s.mu.Unlock()

	for _, path := range delta.Removed {
		s.emit(&buffer.Event{Kind: buffer.EventRemoved, Path: path, At: now})
	}
	for i := range delta.Added {
		s.emit(&buffer.Event{Kind: buffer.EventAdded, Path: delta.Added[i].Path, At: now})
	}
	for i := range delta.Modified {
		s.emit(&buffer.Event{Kind: buffer.EventModified, Path: delta.Modified[i].Path, At: now})
	}
}

// ListNodes returns the current fully-applied collection. The slice is
// immutable and shared between callers; do not mutate entries.
func (s *Store) ListNodes() []node.Node {
	return s.published.Load().nodes
}

// Version increases by one per applied mutation. The dashboard polls it to
// skip redundant reconciliations.
func (s *Store) Version() uint64 {
	return s.published.Load().version
}

// ConnectionState returns a copy of producer liveness.
func (s *Store) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConnectionState{
		Connected:   s.conn.connected,
		Producer:    s.conn.producer,
		ConnectedAt: s.conn.connectedAt,
		LastSeenAt:  s.conn.lastSeenAt,
	}
}

// clearLocked empties the collection. Caller holds mu.
func (s *Store) clearLocked() {
	s.nodes = make(map[string]node.Node)
	s.batchOpen = false
	s.batchExpect = 0
}

// publishLocked snapshots the map into the read-side slice. Caller holds mu.
func (s *Store) publishLocked() {
	view := &publishedView{
		version: s.version.Add(1),
		nodes:   make([]node.Node, 0, len(s.nodes)),
	}
	for _, n := range s.nodes {
		view.nodes = append(view.nodes, n)
	}
	s.published.Store(view)
}

func (s *Store) emit(e *buffer.Event) {
	if s.events != nil {
		s.events.Add(e)
	}
}
