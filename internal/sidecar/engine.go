// Package sidecar wires the subscription index, event extractor, work
// queue, worker pool, and lease tracker to a broker.Broker connection,
// implementing the engine from spec.md §4.7: a single cooperative I/O
// goroutine driving broker subscriptions, control-plane replies, and
// worker hand-offs. The stats timer runs on a separate goroutine that
// only reads atomic counters.
package sidecar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/broker"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/codec"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/config"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/lease"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/queue"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/schema"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/subindex"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/workerpool"

	"sync/atomic"
)

const (
	queueCapacity     = 1024
	handoffBufferSize = 256
)

// Engine is the sidecar's control plane: it owns the subscription
// index, the work queue, the worker pool, and the lease tracker, and
// drives them from one cooperative I/O loop per spec.md §5.
type Engine struct {
	cfg    *config.Config
	schema *schema.Schema
	format codec.Format

	br      broker.Broker
	index   *subindex.Index
	queue   *queue.Queue
	pool    *workerpool.Pool
	tracker *lease.Tracker
	log     *slog.Logger

	handoff chan workerpool.Match

	received      atomic.Uint64
	published     atomic.Uint64
	publishErrors atomic.Uint64
}

// New builds an Engine from cfg over the given (already-unconnected
// or already-connected) broker. br.Connect must be called by the
// caller before Run.
func New(cfg *config.Config, br broker.Broker, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	s, err := cfg.Schema()
	if err != nil {
		return nil, fmt.Errorf("sidecar: %w", err)
	}

	format, ok := codec.ParseFormat(cfg.Format)
	if !ok {
		return nil, fmt.Errorf("sidecar: unknown format %q", cfg.Format)
	}

	index := subindex.New(s, cfg.OutputPrefix)
	q := queue.New(queueCapacity)
	handoff := make(chan workerpool.Match, handoffBufferSize)

	extract := func(payload []byte) (map[string]any, error) {
		event, err := codec.Extract(format, s, payload)
		if err != nil {
			return nil, err
		}
		return map[string]any(event), nil
	}

	workers := cfg.WorkerThreads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	pool := workerpool.New(workers, q, index, extract, handoff, log)

	return &Engine{
		cfg:     cfg,
		schema:  s,
		format:  format,
		br:      br,
		index:   index,
		queue:   q,
		pool:    pool,
		handoff: handoff,
		log:     log,
	}, nil
}

// Run subscribes to the broker per spec.md's startup order, then
// drives the I/O loop until ctx is cancelled, at which point it
// performs the shutdown sequence from spec.md §4.7: stop the I/O loop,
// stop the worker pool, then drain any publish tasks workers posted
// during shutdown.
func (e *Engine) Run(ctx context.Context) error {
	dataCh, err := e.br.Subscribe(e.cfg.InputSubject, e.cfg.InputQueueGroup)
	if err != nil {
		return fmt.Errorf("sidecar: subscribe input subject: %w", err)
	}

	subCh, err := e.br.Subscribe(e.cfg.SubscribeSubject, "")
	if err != nil {
		return fmt.Errorf("sidecar: subscribe control subject (subscribe): %w", err)
	}

	unsubCh, err := e.br.Subscribe(e.cfg.UnsubscribeSubject, "")
	if err != nil {
		return fmt.Errorf("sidecar: subscribe control subject (unsubscribe): %w", err)
	}

	e.startLeaseTracker(ctx)
	defer func() {
		if e.tracker != nil {
			_ = e.tracker.Close()
		}
	}()

	e.pool.Start()

	statsCtx, stopStats := context.WithCancel(ctx)
	go e.statsLoop(statsCtx)

	e.ioLoop(ctx, dataCh, subCh, unsubCh)
	stopStats()

	e.pool.Stop()
	e.drainHandoff()

	return nil
}

func (e *Engine) startLeaseTracker(ctx context.Context) {
	kv, err := e.br.OpenLeaseBucket(ctx, e.cfg.LeaseBucket)
	if err != nil {
		e.log.Warn("sidecar: lease bucket unavailable, soft-state cleanup disabled",
			"bucket", e.cfg.LeaseBucket, "error", err)
		return
	}

	e.tracker = lease.NewTracker(kv, e.index, e.log)
	if err := e.tracker.Start(ctx); err != nil {
		e.log.Warn("sidecar: lease watch failed to start, soft-state cleanup disabled", "error", err)
	}
}

func (e *Engine) ioLoop(ctx context.Context, dataCh, subCh, unsubCh <-chan broker.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-dataCh:
			e.onData(msg)
		case msg := <-subCh:
			e.onSubscribe(msg)
		case msg := <-unsubCh:
			e.onUnsubscribe(msg)
		case m := <-e.handoff:
			e.publishMatch(m)
		}
	}
}

// drainHandoff flushes any Match values already posted to the
// hand-off channel without blocking, implementing shutdown step 3:
// workers may post a final match between the I/O loop observing
// ctx.Done() and the worker pool actually joining.
func (e *Engine) drainHandoff() {
	for {
		select {
		case m := <-e.handoff:
			e.publishMatch(m)
		default:
			return
		}
	}
}

func (e *Engine) onData(msg broker.Message) {
	payload := append([]byte(nil), msg.Data...)
	e.received.Add(1)
	if !e.queue.Enqueue(payload) {
		e.log.Warn("sidecar: work queue full, dropping payload", "input_subject", e.cfg.InputSubject)
	}
}

func (e *Engine) onSubscribe(msg broker.Message) {
	if msg.Reply == "" {
		e.log.Warn("sidecar: subscribe request with no reply-to subject, dropping")
		return
	}

	var req subscribeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		e.replyError(msg.Reply, fmt.Errorf("malformed subscribe request: %w", err))
		return
	}

	id, err := e.index.Subscribe(req.Expression, req.ClientID)
	if err != nil {
		e.replyError(msg.Reply, err)
		return
	}

	e.replyJSON(msg.Reply, subscribeReply{
		ID:              id,
		Topic:           fmt.Sprintf("%s.%d", e.cfg.OutputPrefix, id),
		LeaseBucket:     e.cfg.LeaseBucket,
		LeaseKey:        lease.MakeLeaseKey(id, req.ClientID),
		LeaseTTLSeconds: e.cfg.LeaseTTLSeconds,
	})
}

// onUnsubscribe always applies the removal, even when the request
// carries no reply-to subject: unlike onSubscribe (where an unreplied
// caller can never learn its subscription id and the subscribe is
// therefore pointless to perform), an unsubscribe with no reply-to
// still has an observable effect worth keeping — it releases the
// caller's lease hold on the index. Only the reply itself is
// conditional on msg.Reply being set.
func (e *Engine) onUnsubscribe(msg broker.Message) {
	var req unsubscribeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		if msg.Reply != "" {
			e.replyError(msg.Reply, fmt.Errorf("malformed unsubscribe request: %w", err))
		}
		return
	}

	removed := e.index.RemoveLease(req.ID, req.ClientID)
	if msg.Reply != "" {
		e.replyJSON(msg.Reply, unsubscribeReply{ID: req.ID, Removed: removed})
	}
}

func (e *Engine) publishMatch(m workerpool.Match) {
	for _, id := range m.IDs {
		subject, ok := m.Snapshot.OutputSubject(id)
		if !ok {
			continue
		}
		if err := e.br.Publish(subject, m.Payload); err != nil {
			e.publishErrors.Add(1)
			e.log.Warn("sidecar: publish failed", "subject", subject, "error", err)
			continue
		}
		e.published.Add(1)
	}
}

func (e *Engine) replyJSON(replyTo string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		e.log.Warn("sidecar: failed to marshal reply", "error", err)
		return
	}
	if err := e.br.Publish(replyTo, data); err != nil {
		e.log.Warn("sidecar: failed to send reply", "subject", replyTo, "error", err)
	}
}

func (e *Engine) replyError(replyTo string, err error) {
	e.replyJSON(replyTo, errorReply{Error: err.Error()})
}

func (e *Engine) statsLoop(ctx context.Context) {
	interval := time.Duration(e.cfg.StatsIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.logStats()
		}
	}
}

func (e *Engine) logStats() {
	processed, matchFailures, matched := e.pool.Stats()
	e.log.Info("sidecar: stats",
		"received", e.received.Load(),
		"processed", processed,
		"matched", matched,
		"match_failures", matchFailures,
		"published", e.published.Load(),
		"publish_errors", e.publishErrors.Load(),
		"active_subscriptions", e.index.ActiveCount(),
		"queue_depth", e.queue.ApproximateDepth(),
		"queue_dropped", e.queue.Dropped(),
	)
}
