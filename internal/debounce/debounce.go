// Package debounce coalesces bursts of query input into single emissions.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period after which the latest input is emitted.
const DefaultDelay = 500 * time.Millisecond

// Query is an emitted input value. Sequence is assigned when the query fires
// and strictly increases for a given Debouncer.
type Query struct {
	Text     string
	Sequence uint64
}

// Timer is the subset of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, as time.AfterFunc does.
type AfterFunc func(d time.Duration, f func()) Timer

// Debouncer emits the last value given to Input once no further input has
// arrived for its delay. Each Debouncer owns its timer.
type Debouncer struct {
	delay     time.Duration
	afterFunc AfterFunc

	mu      sync.Mutex
	timer   Timer
	pending string
	gen     uint64
	seq     uint64
	stopped bool
	out     chan Query
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithAfterFunc replaces the timer source.
func WithAfterFunc(fn AfterFunc) Option {
	return func(d *Debouncer) {
		if fn != nil {
			d.afterFunc = fn
		}
	}
}

// New creates a Debouncer. A non-positive delay uses DefaultDelay.
func New(delay time.Duration, opts ...Option) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	d := &Debouncer{
		delay: delay,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		out: make(chan Query, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// C returns the channel queries are emitted on. Only the most recent
// unconsumed query is retained. The channel is closed by Stop.
func (d *Debouncer) C() <-chan Query {
	return d.out
}

// Input records text and restarts the quiet period.
func (d *Debouncer) Input(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.pending = text
	d.gen++
	gen := d.gen
	d.timer = d.afterFunc(d.delay, func() { d.fire(gen) })
}

// fire emits the pending value if gen is still the latest input.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || gen != d.gen {
		return
	}
	d.timer = nil
	d.seq++
	q := Query{Text: d.pending, Sequence: d.seq}

	select {
	case d.out <- q:
	default:
		// Replace an unconsumed older query.
		select {
		case <-d.out:
		default:
		}
		d.out <- q
	}
}

// Stop cancels any pending emission and closes C. It is safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	close(d.out)
}
