// Package broker defines the transport surface the engine depends on,
// abstracting over the concrete NATS client so internal/sidecar never
// imports nats.go directly. See internal/broker/natsbroker for the one
// production implementation.
package broker

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
)

// Message is one delivered broker message. Reply is empty when the
// message carries no reply subject.
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Broker is everything the engine needs from the broker connection:
// connect, subscribe with an optional queue group, publish, and open a
// handle to the JetStream KV bucket the lease tracker watches.
//
// Subscribe is channel-based rather than callback-based by design: the
// engine drives one cooperative `select` loop over every subscription
// channel plus its own internal task channels (see internal/sidecar),
// so handing back a channel rather than invoking a handler on whatever
// goroutine the client library happens to use is what makes a single,
// observable I/O loop possible in Go.
type Broker interface {
	// Connect establishes the underlying connection. Must be called
	// before Subscribe, Publish, or OpenLeaseBucket.
	Connect(ctx context.Context) error

	// Subscribe registers interest in subject, optionally as part of
	// queueGroup (empty string means no queue group), and returns a
	// channel of deliveries for the engine's I/O loop to select on.
	Subscribe(subject, queueGroup string) (<-chan Message, error)

	// Publish sends payload on subject.
	Publish(subject string, payload []byte) error

	// OpenLeaseBucket returns a handle to the named JetStream KV
	// bucket the lease tracker watches. The sidecar never writes to
	// this bucket; clients own key creation, refresh, and TTL.
	OpenLeaseBucket(ctx context.Context, bucket string) (jetstream.KeyValue, error)

	// Close tears down the connection and any subscriptions on it.
	Close() error
}
