// Package natsbroker is the production broker.Broker implementation,
// backed by a real NATS connection and JetStream KeyValue bucket.
package natsbroker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/broker"
)

// Config is the connection-level configuration the broker needs:
// address, port, and optional TLS client material.
type Config struct {
	Address string
	Port    int
	TLSCert string
	TLSKey  string
	TLSCA   string
}

func (c Config) url() string {
	return fmt.Sprintf("nats://%s:%d", c.Address, c.Port)
}

// NATSBroker implements broker.Broker over github.com/nats-io/nats.go.
type NATSBroker struct {
	cfg Config
	log *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription
}

// New builds an unconnected NATSBroker. Call Connect before using it.
func New(cfg Config, log *slog.Logger) *NATSBroker {
	if log == nil {
		log = slog.Default()
	}
	return &NATSBroker{cfg: cfg, log: log}
}

var _ broker.Broker = (*NATSBroker)(nil)

// Connect dials the configured NATS server, applying TLS client
// material if any paths were configured, and initializes the
// JetStream context OpenLeaseBucket depends on.
func (b *NATSBroker) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("nats-sidecar"),
	}

	if b.cfg.TLSCert != "" || b.cfg.TLSKey != "" {
		if b.cfg.TLSCert == "" || b.cfg.TLSKey == "" {
			return fmt.Errorf("natsbroker: tls_cert and tls_key must both be set or both be empty")
		}
		opts = append(opts, nats.ClientCert(b.cfg.TLSCert, b.cfg.TLSKey))
	}
	if b.cfg.TLSCA != "" {
		opts = append(opts, nats.RootCAs(b.cfg.TLSCA))
	}

	conn, err := nats.Connect(b.cfg.url(), opts...)
	if err != nil {
		return fmt.Errorf("natsbroker: connect: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("natsbroker: jetstream context: %w", err)
	}

	b.conn = conn
	b.js = js
	return nil
}

// subscriptionBufferSize is how many deliveries nats.go will buffer
// for a subscription before dropping them; the engine's I/O loop is
// expected to drain each subscription's channel promptly.
const subscriptionBufferSize = 256

// Subscribe registers interest in subject, using a queue group
// subscription when queueGroup is non-empty, and returns a channel the
// engine's I/O loop selects on. nats.go delivers onto a raw
// *nats.Msg channel (via ChanSubscribe/ChanQueueSubscribe); a small
// forwarding goroutine translates each delivery into a broker.Message
// so callers never import nats.go themselves.
func (b *NATSBroker) Subscribe(subject, queueGroup string) (<-chan broker.Message, error) {
	raw := make(chan *nats.Msg, subscriptionBufferSize)

	var sub *nats.Subscription
	var err error
	if queueGroup == "" {
		sub, err = b.conn.ChanSubscribe(subject, raw)
	} else {
		sub, err = b.conn.ChanQueueSubscribe(subject, queueGroup, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("natsbroker: subscribe %q: %w", subject, err)
	}
	b.subs = append(b.subs, sub)

	out := make(chan broker.Message, subscriptionBufferSize)
	go func() {
		defer close(out)
		for msg := range raw {
			out <- broker.Message{Subject: msg.Subject, Reply: msg.Reply, Data: msg.Data}
		}
	}()
	return out, nil
}

// Publish sends payload on subject.
func (b *NATSBroker) Publish(subject string, payload []byte) error {
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("natsbroker: publish %q: %w", subject, err)
	}
	return nil
}

// OpenLeaseBucket returns a handle to the named JetStream KV bucket.
// It does not create the bucket: the sidecar is a reader only, and
// bucket provisioning is an operational concern outside its scope.
func (b *NATSBroker) OpenLeaseBucket(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	kv, err := b.js.KeyValue(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("natsbroker: open lease bucket %q: %w", bucket, err)
	}
	return kv, nil
}

// Close unsubscribes everything and drains the connection.
func (b *NATSBroker) Close() error {
	if b.conn == nil {
		return nil
	}
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	return b.conn.Drain()
}
