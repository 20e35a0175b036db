// Package workerpool implements the parallel pool of goroutines that
// extract and match incoming payloads against the subscription index,
// handing matches off to the single I/O goroutine for publishing.
// Workers never touch the broker directly.
package workerpool

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/queue"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/subindex"
)

const dequeueTimeout = 100 * time.Millisecond

// Index is the read surface a worker needs from the subscription
// index: an atomic, lock-free snapshot load.
type Index interface {
	Snapshot() *subindex.Snapshot
}

// Extractor decodes a raw payload into the event map Search expects.
// It returns an error for anything the event extractor rejects (most
// notably a non-map top level); per-field coercion failures are the
// extractor's own concern and never surface here as an error.
type Extractor func(payload []byte) (map[string]any, error)

// Match is one worker's hand-off to the I/O goroutine: the original
// payload, the subscription ids it matched, and the exact snapshot it
// was matched against (so the I/O goroutine resolves output subjects
// from the same snapshot even if the index has moved on by the time
// it gets to publish).
type Match struct {
	Payload  []byte
	IDs      []uint64
	Snapshot *subindex.Snapshot
}

// Pool runs N workers pulling payloads off a queue.Queue, matching
// them, and posting Matches to a hand-off channel.
type Pool struct {
	n       int
	q       *queue.Queue
	index   Index
	extract Extractor
	handoff chan<- Match
	log     *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	stats   Stats
}

// New builds a pool of n workers (minimum 1). handoff is the channel
// workers post Matches to; the caller (the engine) owns reading it
// from the I/O goroutine.
func New(n int, q *queue.Queue, index Index, extract Extractor, handoff chan<- Match, log *slog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{n: n, q: q, index: index, extract: extract, handoff: handoff, log: log}
}

// Start launches the worker goroutines. Calling Start on an
// already-running pool is a no-op.
func (p *Pool) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.loop()
	}
}

// Stop flips the running flag, enqueues one poison pill per worker,
// and waits for all of them to exit. Calling Stop on an
// already-stopped pool is a no-op.
func (p *Pool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	for i := 0; i < p.n; i++ {
		p.q.EnqueuePoisonPill()
	}
	p.wg.Wait()
}

// Stats returns the current processed/match-failure/matched counters.
// These are diagnostic only, per spec.md's relaxed-ordering policy for
// stats counters, so a plain snapshot read is sufficient.
func (p *Pool) Stats() (processed, matchFailures, matched int64) {
	return p.stats.snapshot()
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		payload, pill, ok := p.q.DequeueTimed(dequeueTimeout)
		if !ok {
			// Timed out with nothing queued: a worker wakes here purely
			// to re-check the running flag for shutdown responsiveness.
			if !p.running.Load() {
				return
			}
			continue
		}
		if pill {
			return
		}
		if !p.running.Load() {
			continue
		}
		p.processOne(payload)
	}
}

func (p *Pool) processOne(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("workerpool: recovered from panic while processing payload", "panic", r)
		}
	}()

	snap := p.index.Snapshot()

	event, err := p.extract(payload)
	p.stats.processed.Add(1)
	if err != nil {
		p.stats.matchFailures.Add(1)
		return
	}

	ids := snap.Search(event)
	if len(ids) == 0 {
		return
	}

	p.stats.matched.Add(1)
	p.handoff <- Match{Payload: payload, IDs: ids, Snapshot: snap}
}
