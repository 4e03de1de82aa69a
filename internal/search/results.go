package search

import "sync"

// Results holds the currently displayed outcome and rejects stale ones.
type Results struct {
	mu      sync.Mutex
	highest uint64
	current Outcome
	applied bool
}

// Announce records that a query with seq has been issued. Outcomes older
// than seq are rejected from now on.
func (r *Results) Announce(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq > r.highest {
		r.highest = seq
	}
}

// Apply replaces the current outcome unless o is older than the highest
// announced or applied sequence. It reports whether o was applied.
func (r *Results) Apply(o Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.Sequence < r.highest {
		return false
	}
	r.highest = o.Sequence
	r.current = o
	r.applied = true
	return true
}

// Current returns the applied outcome, if any.
func (r *Results) Current() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current, r.applied
}
