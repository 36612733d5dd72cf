package ingest

import (
	"context"
	"log"
	"time"
)

const (
	// DefaultTimeout is how long the producer may stay silent before its
	// collection is discarded.
	DefaultTimeout = 15 * time.Second
	// DefaultCheckInterval is the liveness evaluation cadence. Deliberately
	// independent of the producer's sync tick: liveness is judged by elapsed
	// silence, not by any single message's round trip.
	DefaultCheckInterval = 5 * time.Second
)

// Monitor periodically checks producer liveness and clears the store when the
// silence threshold is crossed.
type Monitor struct {
	store    *Store
	timeout  time.Duration
	interval time.Duration
}

// NewMonitor builds a liveness monitor. Non-positive durations fall back to
// the defaults.
func NewMonitor(store *Store, timeout, interval time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Monitor{store: store, timeout: timeout, interval: interval}
}

// Run evaluates liveness on its own cadence until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Monitor: stopped")
			return
		case <-ticker.C:
			m.checkOnce(time.Now())
		}
	}
}

// checkOnce triggers the disconnect-clear when the producer has been silent
// past the timeout.
func (m *Monitor) checkOnce(now time.Time) {
	state := m.store.ConnectionState()
	if !state.Connected {
		return
	}
	if silence := now.Sub(state.LastSeenAt); silence > m.timeout {
		log.Printf("Monitor: producer %q silent for %s, declaring disconnected", state.Producer, silence.Round(time.Second))
		m.store.ProducerDisconnected("liveness timeout")
	}
}
