// Package buffer provides a lock-free ring of recent change events used to
// fan applied mutations to the dashboard without blocking the ingest writer.
// Each slot stores an atomic pointer so readers either see a complete event or
// the previous one, never a partially written structure.
package buffer

import (
	"sync/atomic"
	"time"
)

// EventKind labels what happened to a path.
type EventKind string

const (
	EventAdded    EventKind = "added"
	EventModified EventKind = "modified"
	EventRemoved  EventKind = "removed"
	EventSnapshot EventKind = "snapshot"
	EventCleared  EventKind = "cleared"
)

// Event is one applied mutation, in arrival order.
type Event struct {
	ID    uint64 // monotonic, assigned by the ring
	Kind  EventKind
	Path  string // empty for snapshot/cleared events
	Count int    // node count for snapshot/cleared events
	At    time.Time
}

// RingBuffer is a thread-safe circular buffer of recent events. Writers
// atomically publish completed *Event values, and readers walk backwards from
// the newest index to gather a snapshot for display.
type RingBuffer struct {
	slots    []atomic.Pointer[Event]
	capacity int
	total    atomic.Uint64
}

// NewRingBuffer allocates a ring with the specified capacity. Capacity bounds
// how much history the dashboard can show; ingest runs independently of it.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 512
	}
	return &RingBuffer{
		slots:    make([]atomic.Pointer[Event], capacity),
		capacity: capacity,
	}
}

// Add appends an event, assigning a monotonic ID so readers can skip stale
// slots after wraparound.
func (rb *RingBuffer) Add(e *Event) {
	newID := rb.total.Add(1)
	e.ID = newID
	idx := (newID - 1) % uint64(rb.capacity)
	// Atomic store publishes the whole event in one step.
	rb.slots[idx].Store(e)
}

// Recent returns up to n most recent events, newest first. Readers walk the
// ID-ordered ring backward without taking locks or disturbing writers.
func (rb *RingBuffer) Recent(n int) []*Event {
	if n <= 0 {
		return []*Event{}
	}
	total := rb.total.Load()
	available := int(total)
	if available > rb.capacity {
		available = rb.capacity
	}
	if n > available {
		n = available
	}
	result := make([]*Event, 0, n)
	if total == 0 {
		return result
	}
	minIndex := total - uint64(available)
	for idx := total; idx > minIndex && len(result) < n; {
		idx--
		slot := idx % uint64(rb.capacity)
		// ID check skips slots overwritten after wraparound.
		if e := rb.slots[slot].Load(); e != nil && e.ID == idx+1 {
			result = append(result, e)
		}
	}
	return result
}

// Count returns the total number of events added (may exceed capacity).
func (rb *RingBuffer) Count() int {
	return int(rb.total.Load())
}
