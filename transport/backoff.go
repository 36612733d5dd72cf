package transport

import "time"

type backoff struct {
	base time.Duration
	cur  time.Duration
	max  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &backoff{base: base, cur: base, max: max}
}

// Next returns the current delay and doubles it up to the cap.
func (b *backoff) Next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

// Reset restarts the window after a successful connection.
func (b *backoff) Reset() {
	b.cur = b.base
}
