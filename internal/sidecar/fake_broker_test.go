package sidecar

import (
	"context"
	"errors"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/broker"
)

// fakeBroker is a minimal in-process broker.Broker for engine tests:
// Subscribe hands back a channel the test can feed directly, and
// Publish records every call instead of talking to a real NATS server.
type fakeBroker struct {
	mu sync.Mutex

	subs map[string]chan broker.Message

	published  []publishedMsg
	publishErr error

	leaseBucketErr error
}

type publishedMsg struct {
	subject string
	payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string]chan broker.Message)}
}

var _ broker.Broker = (*fakeBroker)(nil)

func (f *fakeBroker) Connect(ctx context.Context) error { return nil }

func (f *fakeBroker) Subscribe(subject, queueGroup string) (<-chan broker.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan broker.Message, 16)
	f.subs[subject] = ch
	return ch, nil
}

func (f *fakeBroker) Publish(subject string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	cp := append([]byte(nil), payload...)
	f.published = append(f.published, publishedMsg{subject: subject, payload: cp})
	return nil
}

func (f *fakeBroker) OpenLeaseBucket(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	if f.leaseBucketErr != nil {
		return nil, f.leaseBucketErr
	}
	return nil, errors.New("fakeBroker: no lease bucket configured for this test")
}

func (f *fakeBroker) Close() error { return nil }

// deliver pushes msg onto the channel previously returned for subject,
// as if the broker had just received it. Panics if Subscribe was never
// called for subject, since that indicates a test bug.
func (f *fakeBroker) deliver(subject string, msg broker.Message) {
	f.mu.Lock()
	ch := f.subs[subject]
	f.mu.Unlock()
	if ch == nil {
		panic("fakeBroker: deliver on subject with no subscription: " + subject)
	}
	ch <- msg
}

func (f *fakeBroker) publishedMessages() []publishedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]publishedMsg, len(f.published))
	copy(cp, f.published)
	return cp
}
