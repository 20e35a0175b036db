// Package subindex implements the subscription index: the RCU-backed
// store of boolean-expression subscriptions and the matching
// substrate that evaluates incoming events against all of them.
//
// Every subscription's expression is compiled once, at subscribe time,
// with github.com/expr-lang/expr against a typed environment derived
// from the attribute schema. The compiled programs for the full
// current subscription set are held in an immutable Snapshot; writers
// publish a freshly rebuilt Snapshot whenever a subscription is added
// or dropped (a lease-only change does not rebuild), readers (workers doing Search) load it lock-free via
// atomic.Pointer[Snapshot]. This is a direct, idiomatic-Go rendition
// of the original's RCU subscription manager: Go's garbage collector
// retires superseded snapshots once the last reader holding one drops
// it, standing in for the original's shared_ptr refcounting.
package subindex

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/schema"
)

// ErrInvalidExpression wraps every compile/parse failure surfaced by
// Subscribe, so callers (the control-plane request handler) can
// recognize it without string-matching.
var ErrInvalidExpression = errors.New("subindex: invalid expression")

// Record is the public view of one subscription: its id, the
// expression it was registered with, and the set of client ids
// currently holding a lease on it. A Record only exists while
// LeaseHolders is non-empty.
type Record struct {
	ID           uint64
	Expression   string
	LeaseHolders map[string]struct{}
}

// Index is the subscription index. All operations are safe for
// concurrent use: writes (Subscribe, RemoveLease, RemoveSubscription)
// serialize under mu; Snapshot and the Snapshot's own Search never
// take a lock, since they only ever touch the immutable value loaded
// from the atomic cell.
type Index struct {
	schema       *schema.Schema
	outputPrefix string
	env          map[string]any

	mu       sync.RWMutex
	nextID   uint64
	records  map[uint64]*Record
	compiled map[uint64]compiledExpression
	byExpr   map[string]uint64

	snapshot atomic.Pointer[Snapshot]
}

// New builds an empty Index. outputPrefix is formatted with each
// subscription's id ("{outputPrefix}.{id}") to derive its output
// subject.
func New(s *schema.Schema, outputPrefix string) *Index {
	idx := &Index{
		schema:       s,
		outputPrefix: outputPrefix,
		env:          schemaEnv(s),
		records:      make(map[uint64]*Record),
		compiled:     make(map[uint64]compiledExpression),
		byExpr:       make(map[string]uint64),
	}
	idx.snapshot.Store(&Snapshot{outputSubjects: map[uint64]string{}})
	return idx
}

// Subscribe registers client_id's interest in expression. If the
// expression is already known, client_id is added to the existing
// subscription's lease holders and no snapshot rebuild occurs. Else a
// fresh id is allocated and the expression is compiled; on compile
// failure the id is not reused (see DESIGN.md open question 1) but no
// record is created, and ErrInvalidExpression is returned. On success
// a new snapshot is published atomically.
func (idx *Index) Subscribe(expression, clientID string) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if id, ok := idx.byExpr[expression]; ok {
		idx.records[id].LeaseHolders[clientID] = struct{}{}
		return id, nil
	}

	idx.nextID++
	id := idx.nextID

	ce, err := compileExpression(expression, idx.env)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	idx.records[id] = &Record{
		ID:           id,
		Expression:   expression,
		LeaseHolders: map[string]struct{}{clientID: {}},
	}
	idx.compiled[id] = ce
	idx.byExpr[expression] = id

	idx.publishLocked()
	return id, nil
}

// RemoveLease releases client_id's hold on subscription id. It
// returns false and does nothing if id is unknown. If removing
// client_id empties the lease holder set, the subscription is dropped
// entirely, a new snapshot is published, and RemoveLease returns true;
// otherwise it returns false (other clients still hold the lease).
func (idx *Index) RemoveLease(id uint64, clientID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.records[id]
	if !ok {
		return false
	}

	delete(rec.LeaseHolders, clientID)
	if len(rec.LeaseHolders) > 0 {
		return false
	}

	idx.dropLocked(id, rec.Expression)
	idx.publishLocked()
	return true
}

// RemoveSubscription drops subscription id outright regardless of how
// many lease holders remain. Returns false if id is unknown.
func (idx *Index) RemoveSubscription(id uint64) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.records[id]
	if !ok {
		return false
	}

	idx.dropLocked(id, rec.Expression)
	idx.publishLocked()
	return true
}

// FindByExpression returns the id currently registered for
// expression, if any.
func (idx *Index) FindByExpression(expression string) (uint64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	id, ok := idx.byExpr[expression]
	return id, ok
}

// GetSubscription returns a copy of the record for id, if it exists.
func (idx *Index) GetSubscription(id uint64) (Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rec, ok := idx.records[id]
	if !ok {
		return Record{}, false
	}

	holders := make(map[string]struct{}, len(rec.LeaseHolders))
	for k := range rec.LeaseHolders {
		holders[k] = struct{}{}
	}
	return Record{ID: rec.ID, Expression: rec.Expression, LeaseHolders: holders}, true
}

// Snapshot returns the currently published snapshot. This is a
// lock-free atomic load; the caller may retain the returned value for
// as long as it needs without blocking writers.
func (idx *Index) Snapshot() *Snapshot {
	return idx.snapshot.Load()
}

// ActiveCount is the number of subscriptions in the currently
// published snapshot.
func (idx *Index) ActiveCount() int {
	return idx.snapshot.Load().ActiveCount()
}

// dropLocked removes id's bookkeeping state. Caller must hold mu and
// still call publishLocked afterward.
func (idx *Index) dropLocked(id uint64, expression string) {
	delete(idx.records, id)
	delete(idx.compiled, id)
	delete(idx.byExpr, expression)
}

// publishLocked rebuilds a snapshot from the current record set and
// atomically publishes it. Caller must hold mu. Every record's
// expression was already compiled successfully when it was created,
// so this rebuild cannot fail.
func (idx *Index) publishLocked() {
	subs := make([]compiledSubscription, 0, len(idx.records))
	outputSubjects := make(map[uint64]string, len(idx.records))

	for id, rec := range idx.records {
		ce := idx.compiled[id]
		subs = append(subs, compiledSubscription{
			id:          id,
			expression:  rec.Expression,
			program:     ce.program,
			identifiers: ce.identifiers,
		})
		outputSubjects[id] = fmt.Sprintf("%s.%d", idx.outputPrefix, id)
	}

	idx.snapshot.Store(&Snapshot{
		subs:           subs,
		outputSubjects: outputSubjects,
		activeCount:    len(subs),
	})
}
