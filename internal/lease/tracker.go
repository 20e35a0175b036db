package lease

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Remover is the subset of the subscription index's write surface the
// tracker needs: releasing one client's hold on a subscription when
// its lease key disappears from the bucket.
type Remover interface {
	RemoveLease(id uint64, clientID string) bool
}

// Tracker watches every key in a JetStream KV lease bucket and turns
// delete/purge events into RemoveLease calls. Put events are ignored:
// presence means "alive", and the KV itself enforces TTL expiry. The
// tracker never writes to the bucket; clients own key creation and
// refresh.
type Tracker struct {
	kv      jetstream.KeyValue
	remover Remover
	log     *slog.Logger

	watcher jetstream.KeyWatcher
}

// NewTracker builds a Tracker over kv, dispatching removals to remover.
func NewTracker(kv jetstream.KeyValue, remover Remover, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{kv: kv, remover: remover, log: log}
}

// Start establishes a watch over the whole bucket and begins
// processing updates on a background goroutine. Per spec, failure to
// establish the watch is reported to the caller but is not fatal to
// the engine as a whole — callers should log and continue, relying on
// explicit unsubscribe for cleanup.
func (t *Tracker) Start(ctx context.Context) error {
	w, err := t.kv.WatchAll(ctx)
	if err != nil {
		return err
	}
	t.watcher = w
	go t.run()
	return nil
}

func (t *Tracker) run() {
	for entry := range t.watcher.Updates() {
		if entry == nil {
			// nil marks "caught up with initial state", not a real event.
			continue
		}
		t.handle(entry)
	}
}

func (t *Tracker) handle(entry jetstream.KeyValueEntry) {
	switch entry.Operation() {
	case jetstream.KeyValuePut:
		return
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		id, clientID, err := ParseLeaseKey(entry.Key())
		if err != nil {
			t.log.Warn("lease: malformed key, dropping", "key", entry.Key(), "error", err)
			return
		}
		t.remover.RemoveLease(id, clientID)
	}
}

// Close stops the watch. Safe to call even if Start was never called
// or failed.
func (t *Tracker) Close() error {
	if t.watcher == nil {
		return nil
	}
	return t.watcher.Stop()
}
