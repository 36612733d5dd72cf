// Package detect compares successive snapshots by content hash and emits the
// added/modified/removed delta. The detector owns the previous-cycle hash
// table; it is injected state, never a process-wide singleton, so the
// producer pipeline stays testable without timers or network.
package detect

import (
	"log"

	"treemirror/node"
)

// Detector holds the path → content-hash table from the previous snapshot.
// Not safe for concurrent use; the producer cycle is single-threaded by
// design (ticks are skipped while a cycle is in flight).
type Detector struct {
	prev map[string]uint64
}

// NewDetector returns a detector with an empty history, so the first Diff
// classifies every node as added.
func NewDetector() *Detector {
	return &Detector{prev: make(map[string]uint64)}
}

// Diff classifies the new snapshot against the previous one and replaces the
// stored hash table. The replacement happens unconditionally, even when the
// delta comes back empty, so a transient upstream hiccup can never leave a
// stale table accumulating bogus comparisons.
//
// A node whose path changed (renamed or reparented) shows up as a removal at
// the old path plus an addition at the new one; path is the identity key and
// that is the intended reading, not an artifact.
func (d *Detector) Diff(snapshot []node.Node) node.Delta {
	currentHash := make(map[string]uint64, len(snapshot))
	var delta node.Delta

	for i := range snapshot {
		n := &snapshot[i]
		if _, dup := currentHash[n.Path]; dup {
			// Sibling name collision upstream; last record wins, same as the
			// consumer's upsert semantics.
			log.Printf("Detector: duplicate path %s in snapshot, keeping last", n.Path)
		}
		currentHash[n.Path] = n.ContentHash()
	}

	for i := range snapshot {
		n := &snapshot[i]
		prevHash, existed := d.prev[n.Path]
		switch {
		case !existed:
			delta.Added = append(delta.Added, *n)
		case currentHash[n.Path] != prevHash:
			delta.Modified = append(delta.Modified, *n)
		}
	}

	for path := range d.prev {
		if _, present := currentHash[path]; !present {
			delta.Removed = append(delta.Removed, path)
		}
	}

	d.prev = currentHash
	return delta
}

// Reset drops the stored hash table so the next Diff reports a full set of
// additions. Used when the consumer connection is re-established and needs a
// fresh snapshot rather than an incremental delta.
func (d *Detector) Reset() {
	d.prev = make(map[string]uint64)
}

// TrackedCount returns how many paths the previous snapshot contained.
func (d *Detector) TrackedCount() int {
	return len(d.prev)
}
