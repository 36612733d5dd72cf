package dispatch

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"treemirror/collect"
	"treemirror/detect"
)

// DefaultInterval is the fixed producer tick driving collection → detection →
// dispatch.
const DefaultInterval = 2 * time.Second

// Cycle drives the producer pipeline on a fixed interval. Cycles never
// overlap: if batches from the previous tick are still in flight when the
// next tick fires, that tick is skipped outright. This bounds concurrent
// network usage and keeps batch sequences from interleaving.
type Cycle struct {
	collector  *collect.Collector
	detector   *detect.Detector
	dispatcher *Dispatcher
	interval   time.Duration

	busy        atomic.Bool
	needFull    atomic.Bool
	ticksRun    atomic.Uint64
	ticksSkip   atomic.Uint64
	lastCycleAt atomic.Int64
}

// NewCycle wires the pipeline stages together. The first run always ships a
// full snapshot before switching to deltas.
func NewCycle(collector *collect.Collector, detector *detect.Detector, dispatcher *Dispatcher, interval time.Duration) *Cycle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Cycle{
		collector:  collector,
		detector:   detector,
		dispatcher: dispatcher,
		interval:   interval,
	}
	c.needFull.Store(true)
	return c
}

// RequireFullSync forces the next cycle to ship a complete snapshot and reset
// change detection. Called by the transport after a reconnect, since the
// consumer clears its collection when a producer connection is replaced.
func (c *Cycle) RequireFullSync() {
	c.detector.Reset()
	c.needFull.Store(true)
}

// Run ticks until the context is cancelled. Each tick attempts one cycle; a
// tick that lands while the previous cycle is still sending is dropped.
func (c *Cycle) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Immediate first cycle so a fresh producer syncs without waiting a tick.
	c.tick()

	for {
		select {
		case <-ctx.Done():
			log.Println("Cycle: stopped")
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Cycle) tick() {
	if !c.busy.CompareAndSwap(false, true) {
		c.ticksSkip.Add(1)
		log.Println("Cycle: previous cycle still in flight, skipping tick")
		return
	}
	go func() {
		defer c.busy.Store(false)
		c.runOnce()
	}()
}

// runOnce performs one collection → detection → dispatch pass. A collection
// failure abandons the whole cycle (no partial delta is ever emitted) and
// the next tick retries from scratch.
func (c *Cycle) runOnce() {
	c.ticksRun.Add(1)
	c.lastCycleAt.Store(time.Now().UnixMilli())

	snapshot, err := c.collector.Collect()
	if err != nil {
		log.Printf("Cycle: collection failed, abandoning cycle: %v", err)
		return
	}

	if c.needFull.CompareAndSwap(true, false) {
		c.dispatcher.SendSnapshot(snapshot)
		// Prime the hash table; the resulting all-added delta is discarded
		// because the snapshot already carried every node.
		c.detector.Diff(snapshot)
		return
	}

	delta := c.detector.Diff(snapshot)
	if delta.Empty() {
		c.dispatcher.SendHeartbeat()
		return
	}
	c.dispatcher.SendDelta(delta)
}

// Stats returns tick accounting for the harness summary.
func (c *Cycle) Stats() (run, skipped uint64, lastAt time.Time) {
	ms := c.lastCycleAt.Load()
	if ms > 0 {
		lastAt = time.UnixMilli(ms)
	}
	return c.ticksRun.Load(), c.ticksSkip.Load(), lastAt
}
