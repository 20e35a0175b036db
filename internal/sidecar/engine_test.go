package sidecar

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/broker"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		InputSubject:       "in",
		OutputPrefix:       "out",
		Format:             "msgpack",
		SubscribeSubject:   "sub",
		UnsubscribeSubject: "unsub",
		WorkerThreads:      1,
		Attributes: []config.AttributeConfig{
			{Name: "severity", Type: "integer"},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func testMsg(reply string, data []byte) broker.Message {
	return broker.Message{Reply: reply, Data: data}
}

func waitForSubscribed(t *testing.T, f *fakeBroker, subject string) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		_, ok := f.subs[subject]
		f.mu.Unlock()
		return ok
	}, 2*time.Second, time.Millisecond)
}

func findPublished(msgs []publishedMsg, subject string) (publishedMsg, bool) {
	for _, m := range msgs {
		if m.subject == subject {
			return m, true
		}
	}
	return publishedMsg{}, false
}

func runEngine(t *testing.T, cfg *config.Config) (*fakeBroker, context.CancelFunc) {
	t.Helper()
	fb, _, cancel := runEngineWithHandle(t, cfg)
	return fb, cancel
}

func runEngineWithHandle(t *testing.T, cfg *config.Config) (*fakeBroker, *Engine, context.CancelFunc) {
	t.Helper()
	fb := newFakeBroker()
	log := slog.New(slog.NewTextHandler(discardWriter{}, nil))

	e, err := New(cfg, fb, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitForSubscribed(t, fb, cfg.InputSubject)
	waitForSubscribed(t, fb, cfg.SubscribeSubject)
	waitForSubscribed(t, fb, cfg.UnsubscribeSubject)

	return fb, e, cancel
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestEngine_SubscribeThenMatchingDataIsPublished(t *testing.T) {
	cfg := testConfig()
	fb, _ := runEngine(t, cfg)

	subReq, err := json.Marshal(subscribeRequest{Expression: "severity == 5", ClientID: "client-A"})
	require.NoError(t, err)
	fb.deliver(cfg.SubscribeSubject, testMsg("sub.reply", subReq))

	var reply subscribeReply
	require.Eventually(t, func() bool {
		msgs := fb.publishedMessages()
		m, ok := findPublished(msgs, "sub.reply")
		if !ok {
			return false
		}
		return json.Unmarshal(m.payload, &reply) == nil && reply.ID != 0
	}, 2*time.Second, time.Millisecond)

	require.Equal(t, "out.1", reply.Topic)
	require.Equal(t, "1.client-A", reply.LeaseKey)

	payload, err := msgpack.Marshal(map[string]any{"severity": 5})
	require.NoError(t, err)
	fb.deliver(cfg.InputSubject, testMsg("", payload))

	require.Eventually(t, func() bool {
		_, ok := findPublished(fb.publishedMessages(), reply.Topic)
		return ok
	}, 2*time.Second, time.Millisecond)
}

func TestEngine_NonMatchingDataIsNotPublished(t *testing.T) {
	cfg := testConfig()
	fb, _ := runEngine(t, cfg)

	subReq, err := json.Marshal(subscribeRequest{Expression: "severity == 5", ClientID: "client-A"})
	require.NoError(t, err)
	fb.deliver(cfg.SubscribeSubject, testMsg("sub.reply", subReq))

	var reply subscribeReply
	require.Eventually(t, func() bool {
		m, ok := findPublished(fb.publishedMessages(), "sub.reply")
		if !ok {
			return false
		}
		return json.Unmarshal(m.payload, &reply) == nil && reply.ID != 0
	}, 2*time.Second, time.Millisecond)

	payload, err := msgpack.Marshal(map[string]any{"severity": 1})
	require.NoError(t, err)
	fb.deliver(cfg.InputSubject, testMsg("", payload))

	time.Sleep(50 * time.Millisecond)
	_, ok := findPublished(fb.publishedMessages(), reply.Topic)
	require.False(t, ok)
}

func TestEngine_UnsubscribeRemovesSubscription(t *testing.T) {
	cfg := testConfig()
	fb, _ := runEngine(t, cfg)

	subReq, err := json.Marshal(subscribeRequest{Expression: "severity == 5", ClientID: "client-A"})
	require.NoError(t, err)
	fb.deliver(cfg.SubscribeSubject, testMsg("sub.reply", subReq))

	var reply subscribeReply
	require.Eventually(t, func() bool {
		m, ok := findPublished(fb.publishedMessages(), "sub.reply")
		if !ok {
			return false
		}
		return json.Unmarshal(m.payload, &reply) == nil && reply.ID != 0
	}, 2*time.Second, time.Millisecond)

	unsubReq, err := json.Marshal(unsubscribeRequest{ID: reply.ID, ClientID: "client-A"})
	require.NoError(t, err)
	fb.deliver(cfg.UnsubscribeSubject, testMsg("unsub.reply", unsubReq))

	var unsubReply unsubscribeReply
	require.Eventually(t, func() bool {
		m, ok := findPublished(fb.publishedMessages(), "unsub.reply")
		if !ok {
			return false
		}
		return json.Unmarshal(m.payload, &unsubReply) == nil
	}, 2*time.Second, time.Millisecond)

	require.True(t, unsubReply.Removed)
}

func TestEngine_UnsubscribeWithNoReplyToStillRemovesSubscription(t *testing.T) {
	cfg := testConfig()
	fb, e, _ := runEngineWithHandle(t, cfg)

	subReq, err := json.Marshal(subscribeRequest{Expression: "severity == 5", ClientID: "client-A"})
	require.NoError(t, err)
	fb.deliver(cfg.SubscribeSubject, testMsg("sub.reply", subReq))

	var reply subscribeReply
	require.Eventually(t, func() bool {
		m, ok := findPublished(fb.publishedMessages(), "sub.reply")
		if !ok {
			return false
		}
		return json.Unmarshal(m.payload, &reply) == nil && reply.ID != 0
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, 1, e.index.ActiveCount())

	unsubReq, err := json.Marshal(unsubscribeRequest{ID: reply.ID, ClientID: "client-A"})
	require.NoError(t, err)
	fb.deliver(cfg.UnsubscribeSubject, testMsg("", unsubReq))

	require.Eventually(t, func() bool {
		return e.index.ActiveCount() == 0
	}, 2*time.Second, time.Millisecond)

	// No reply-to subject was given, so nothing should ever be
	// published on one, but the removal above must still have happened.
	_, ok := findPublished(fb.publishedMessages(), "unsub.reply")
	require.False(t, ok)
}

func TestEngine_InvalidSubscribeExpressionRepliesWithError(t *testing.T) {
	cfg := testConfig()
	fb, _ := runEngine(t, cfg)

	subReq, err := json.Marshal(subscribeRequest{Expression: "not_an_attribute == 5", ClientID: "client-A"})
	require.NoError(t, err)
	fb.deliver(cfg.SubscribeSubject, testMsg("sub.reply", subReq))

	require.Eventually(t, func() bool {
		m, ok := findPublished(fb.publishedMessages(), "sub.reply")
		if !ok {
			return false
		}
		var errReply errorReply
		return json.Unmarshal(m.payload, &errReply) == nil && errReply.Error != ""
	}, 2*time.Second, time.Millisecond)
}
