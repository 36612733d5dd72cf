// Package stats tracks per-message-type and per-mutation counters for display
// in the dashboard and the periodic console summary.
package stats

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Tracker tracks ingestion statistics by message type. Counters live in
// sync.Map + atomic.Uint64 so per-message increments don't fight over a mutex.
type Tracker struct {
	messageCounts sync.Map // string -> *atomic.Uint64
	start         atomic.Int64

	nodesUpserted atomic.Uint64
	nodesRemoved  atomic.Uint64
	batchGaps     atomic.Uint64
	malformed     atomic.Uint64
	bytesIn       atomic.Uint64
}

// NewTracker creates a new stats tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementMessage counts one accepted message of the given type.
func (t *Tracker) IncrementMessage(msgType string) {
	msgType = strings.ToLower(strings.TrimSpace(msgType))
	if msgType == "" {
		return
	}
	counter, _ := t.messageCounts.LoadOrStore(msgType, &atomic.Uint64{})
	counter.(*atomic.Uint64).Add(1)
}

// AddUpserts counts nodes added or modified by an applied message.
func (t *Tracker) AddUpserts(n int) {
	if n > 0 {
		t.nodesUpserted.Add(uint64(n))
	}
}

// AddRemovals counts nodes deleted by an applied message.
func (t *Tracker) AddRemovals(n int) {
	if n > 0 {
		t.nodesRemoved.Add(uint64(n))
	}
}

// IncrementBatchGap counts a detected batch sequence anomaly.
func (t *Tracker) IncrementBatchGap() {
	t.batchGaps.Add(1)
}

// IncrementMalformed counts a discarded message that failed validation.
func (t *Tracker) IncrementMalformed() {
	t.malformed.Add(1)
}

// AddBytesIn accumulates raw wire bytes received.
func (t *Tracker) AddBytesIn(n int) {
	if n > 0 {
		t.bytesIn.Add(uint64(n))
	}
}

// MessageCount returns the accepted count for one message type.
func (t *Tracker) MessageCount(msgType string) uint64 {
	if counter, ok := t.messageCounts.Load(strings.ToLower(msgType)); ok {
		return counter.(*atomic.Uint64).Load()
	}
	return 0
}

// Totals returns the mutation counters.
func (t *Tracker) Totals() (upserted, removed, gaps, malformed uint64) {
	return t.nodesUpserted.Load(), t.nodesRemoved.Load(), t.batchGaps.Load(), t.malformed.Load()
}

// Uptime returns elapsed time since the tracker started.
func (t *Tracker) Uptime() time.Duration {
	return time.Since(time.Unix(0, t.start.Load()))
}

// Summary renders a one-line console summary.
func (t *Tracker) Summary() string {
	var b strings.Builder
	b.WriteString("uptime=")
	b.WriteString(t.Uptime().Round(time.Second).String())
	total := uint64(0)
	t.messageCounts.Range(func(key, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	fmt.Fprintf(&b, " msgs=%s", humanize.Comma(int64(total)))
	up, rm, gaps, bad := t.Totals()
	fmt.Fprintf(&b, " upserts=%s removals=%s", humanize.Comma(int64(up)), humanize.Comma(int64(rm)))
	if gaps > 0 {
		fmt.Fprintf(&b, " batch-gaps=%d", gaps)
	}
	if bad > 0 {
		fmt.Fprintf(&b, " malformed=%d", bad)
	}
	fmt.Fprintf(&b, " rx=%s", humanize.Bytes(t.bytesIn.Load()))
	return b.String()
}
