// Package throttle implements the reusable debounce primitive described
// in spec §9: "at most one fire per window; coalesce; cancellable."
// State machine: IDLE -> ARMED (on request) -> IDLE (on fire or cancel).
package throttle

import (
	"sync"
	"time"
)

// Debouncer coalesces repeated Request calls into a single delayed fire
// of fn, at most once per window. It backs both Link-Monitor's
// adjacency-advertisement throttle (§4.2) and Decision's SPF debounce
// (§4.4).
type Debouncer struct {
	window time.Duration
	fn     func()

	mu     sync.Mutex
	timer  *time.Timer
	armed  bool
	closed bool
}

// New creates a Debouncer that waits window after the first Request
// before calling fn, absorbing any further Request calls made within
// that window into the same fire.
func New(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Request arms the debouncer if it is IDLE; a Request while ARMED is a
// no-op, since the pending fire already covers it.
func (d *Debouncer) Request() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.armed {
		return
	}
	d.armed = true
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.closed || !d.armed {
		d.mu.Unlock()
		return
	}
	d.armed = false
	d.mu.Unlock()
	d.fn()
}

// Cancel aborts a pending fire, returning to IDLE without calling fn.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed = false
}

// Close cancels any pending fire and makes the Debouncer permanently
// inert; used when the owning event loop shuts down.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed = false
	d.closed = true
}
