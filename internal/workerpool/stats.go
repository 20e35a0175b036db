package workerpool

import "sync/atomic"

// Stats holds the worker-side diagnostic counters from spec.md §4.6.
// Relaxed ordering is fine here: these feed the periodic stats log,
// never a correctness decision.
type Stats struct {
	processed     atomic.Int64
	matchFailures atomic.Int64
	matched       atomic.Int64
}

func (s *Stats) snapshot() (processed, matchFailures, matched int64) {
	return s.processed.Load(), s.matchFailures.Load(), s.matched.Load()
}
