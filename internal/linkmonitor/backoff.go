package linkmonitor

import "time"

// interfaceBackoff tracks one interface's flap backoff window (spec
// §4.2): doubling on repeated flap, capped, and cleared on sustained
// stability. cenkalti/backoff's ExponentialBackOff targets RPC retry
// jitter/randomization and has no notion of "currently still inside a
// previously computed window," which is what a flapping interface
// needs reported on every check -- so this is a small purpose-built
// doubling counter instead, kept in the teacher's terse style.
type interfaceBackoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	until   time.Time
}

func newInterfaceBackoff(initial, max time.Duration) *interfaceBackoff {
	return &interfaceBackoff{initial: initial, max: max}
}

// flap doubles the backoff window (or arms it at initial, on first
// flap) and extends until from now.
func (b *interfaceBackoff) flap(now time.Time) {
	if b.current == 0 {
		b.current = b.initial
	} else {
		b.current *= 2
		if b.current > b.max {
			b.current = b.max
		}
	}
	b.until = now.Add(b.current)
}

// active reports whether the interface is still within its backoff
// window as of now.
func (b *interfaceBackoff) active(now time.Time) bool {
	return now.Before(b.until)
}

// remaining returns how much longer the backoff window lasts as of now,
// zero if it has already elapsed.
func (b *interfaceBackoff) remaining(now time.Time) time.Duration {
	if !b.active(now) {
		return 0
	}
	return b.until.Sub(now)
}
