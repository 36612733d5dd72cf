// Package dispatch sequences producer-side outbound traffic: it splits large
// snapshots and deltas into bounded batches, stamps envelope metadata, and
// paces delivery with an inter-batch pause so the transport gets backpressure
// room instead of a burst.
package dispatch

import (
	"log"
	"sync/atomic"
	"time"

	"treemirror/node"
	"treemirror/wire"
)

// Sender delivers one encoded-ready message to the consumer. Implementations
// are transport-specific (websocket client, in-process loopback in tests).
type Sender interface {
	Send(m *wire.Message) error
}

const (
	// DefaultMaxBatch bounds how many node records ride in one message.
	DefaultMaxBatch = 500
	// DefaultBatchPause is the mandatory gap between consecutive batches.
	DefaultBatchPause = 50 * time.Millisecond
)

// Dispatcher owns the outbound sequence counter for one producer connection.
// Batch delivery is best-effort at-most-once: a failed batch is logged and
// skipped, because a partial sync now beats no sync, and the next full cycle
// reconciles whatever gap remains.
type Dispatcher struct {
	sender   Sender
	producer string
	maxBatch int
	pause    time.Duration
	seq      atomic.Uint64
}

// NewDispatcher builds a dispatcher. Non-positive batch size or pause fall
// back to the defaults.
func NewDispatcher(sender Sender, producer string, maxBatch int, pause time.Duration) *Dispatcher {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	if pause < 0 {
		pause = DefaultBatchPause
	}
	return &Dispatcher{sender: sender, producer: producer, maxBatch: maxBatch, pause: pause}
}

func (d *Dispatcher) envelope(t wire.Type) *wire.Message {
	return &wire.Message{
		Type:      t,
		Seq:       d.seq.Add(1),
		Timestamp: time.Now().UnixMilli(),
		Producer:  d.producer,
	}
}

// SendSnapshot delivers a full snapshot, batching it when it exceeds the
// per-message cap. Batched delivery opens with a batchStart announcement so
// the consumer clears its collection before the first chunk lands.
func (d *Dispatcher) SendSnapshot(nodes []node.Node) {
	if len(nodes) <= d.maxBatch {
		m := d.envelope(wire.TypeSnapshot)
		m.Nodes = nodes
		if err := d.sender.Send(m); err != nil {
			log.Printf("Dispatcher: snapshot send failed (%d nodes): %v", len(nodes), err)
		}
		return
	}

	total := (len(nodes) + d.maxBatch - 1) / d.maxBatch
	start := d.envelope(wire.TypeBatchStart)
	start.TotalNodes = len(nodes)
	start.BatchSize = d.maxBatch
	if err := d.sender.Send(start); err != nil {
		// Without the announcement the consumer would merge chunks into the
		// old collection; abandon and let the next cycle retry.
		log.Printf("Dispatcher: batchStart send failed: %v", err)
		return
	}

	for i := 0; i < total; i++ {
		lo := i * d.maxBatch
		hi := lo + d.maxBatch
		if hi > len(nodes) {
			hi = len(nodes)
		}
		m := d.envelope(wire.TypeBatch)
		m.Nodes = nodes[lo:hi]
		m.BatchIndex = i
		m.BatchTotal = total
		m.IsLast = i == total-1
		if err := d.sender.Send(m); err != nil {
			log.Printf("Dispatcher: batch %d/%d send failed: %v", i+1, total, err)
		}
		if d.pause > 0 && i < total-1 {
			time.Sleep(d.pause)
		}
	}
}

// SendDelta delivers an incremental update, splitting oversized deltas into a
// paced sequence of smaller deltas. Each chunk is independently applicable
// (upserts and removals commute across chunks because the three path sets are
// disjoint), so a lost chunk degrades to a gap the next cycle repairs.
func (d *Dispatcher) SendDelta(delta node.Delta) {
	chunks := splitDelta(delta, d.maxBatch)
	for i, chunk := range chunks {
		m := d.envelope(wire.TypeDelta)
		m.Delta = chunk
		if err := d.sender.Send(m); err != nil {
			log.Printf("Dispatcher: delta chunk %d/%d send failed: %v", i+1, len(chunks), err)
		}
		if d.pause > 0 && i < len(chunks)-1 {
			time.Sleep(d.pause)
		}
	}
}

// SendHeartbeat refreshes consumer-side liveness without touching data.
func (d *Dispatcher) SendHeartbeat() {
	if err := d.sender.Send(d.envelope(wire.TypeHeartbeat)); err != nil {
		log.Printf("Dispatcher: heartbeat send failed: %v", err)
	}
}

// splitDelta chunks a delta so no chunk exceeds max items, never splitting a
// single node record. Category membership is preserved.
func splitDelta(delta node.Delta, max int) []*node.Delta {
	if delta.Size() <= max {
		return []*node.Delta{&delta}
	}
	var chunks []*node.Delta
	current := &node.Delta{}
	room := func() bool { return current.Size() < max }
	flush := func() {
		if current.Size() > 0 {
			chunks = append(chunks, current)
			current = &node.Delta{}
		}
	}
	for _, n := range delta.Added {
		if !room() {
			flush()
		}
		current.Added = append(current.Added, n)
	}
	for _, n := range delta.Modified {
		if !room() {
			flush()
		}
		current.Modified = append(current.Modified, n)
	}
	for _, p := range delta.Removed {
		if !room() {
			flush()
		}
		current.Removed = append(current.Removed, p)
	}
	flush()
	return chunks
}
