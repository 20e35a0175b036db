package subindex

import "github.com/expr-lang/expr/vm"

// compiledSubscription is one subscription's matching state as carried
// inside a Snapshot: its id, the compiled boolean program, and the
// attribute names it reads (so Search can skip it without evaluating
// the program when an event leaves one of those undefined).
type compiledSubscription struct {
	id          uint64
	expression  string
	program     *vm.Program
	identifiers map[string]struct{}
}

// Snapshot is the immutable, RCU-published view of the subscription
// set at some point in time. Readers hold a Snapshot for the duration
// of one Search call and never see a torn update; writers never mutate
// a published Snapshot, only build and publish a new one.
type Snapshot struct {
	subs           []compiledSubscription
	outputSubjects map[uint64]string
	activeCount    int
}

// Search evaluates every subscription in the snapshot against event,
// returning the ids of every one that matches. A subscription whose
// expression references an attribute event leaves undefined is
// skipped without being evaluated, rather than asking expr to
// reconcile a partial environment (see S4 in the matching semantics:
// an undefined field never satisfies a comparison against it).
func (s *Snapshot) Search(event map[string]any) []uint64 {
	var matches []uint64
	for _, sub := range s.subs {
		if !definesAll(event, sub.identifiers) {
			continue
		}

		result, err := vm.Run(sub.program, event)
		if err != nil {
			continue
		}
		if matched, ok := result.(bool); ok && matched {
			matches = append(matches, sub.id)
		}
	}
	return matches
}

// OutputSubject returns the per-subscription output subject for id, as
// computed at the time this snapshot was built.
func (s *Snapshot) OutputSubject(id uint64) (string, bool) {
	subj, ok := s.outputSubjects[id]
	return subj, ok
}

// ActiveCount is the number of subscriptions this snapshot carries.
func (s *Snapshot) ActiveCount() int {
	return s.activeCount
}

func definesAll(event map[string]any, identifiers map[string]struct{}) bool {
	for name := range identifiers {
		if _, ok := event[name]; !ok {
			return false
		}
	}
	return true
}
