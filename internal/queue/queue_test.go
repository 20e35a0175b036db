package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeue_FIFO(t *testing.T) {
	q := New(4)
	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))

	p, pill, ok := q.DequeueTimed(50 * time.Millisecond)
	require.True(t, ok)
	require.False(t, pill)
	require.Equal(t, []byte("a"), p)

	p, pill, ok = q.DequeueTimed(50 * time.Millisecond)
	require.True(t, ok)
	require.False(t, pill)
	require.Equal(t, []byte("b"), p)
}

func TestDequeueTimed_TimesOutWhenEmpty(t *testing.T) {
	q := New(1)
	_, pill, ok := q.DequeueTimed(10 * time.Millisecond)
	require.False(t, ok)
	require.False(t, pill)
}

func TestPoisonPill_IsDistinctFromEmptyPayload(t *testing.T) {
	q := New(2)
	q.Enqueue([]byte{}) // legitimately empty, non-nil payload
	q.EnqueuePoisonPill()

	p, pill, ok := q.DequeueTimed(50 * time.Millisecond)
	require.True(t, ok)
	require.False(t, pill)
	require.NotNil(t, p)
	require.Empty(t, p)

	_, pill, ok = q.DequeueTimed(50 * time.Millisecond)
	require.True(t, ok)
	require.True(t, pill)
}

func TestApproximateDepth(t *testing.T) {
	q := New(4)
	require.Equal(t, 0, q.ApproximateDepth())
	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	require.Equal(t, 2, q.ApproximateDepth())
}

func TestEnqueue_DropsRatherThanBlocksWhenFull(t *testing.T) {
	q := New(1)
	require.True(t, q.Enqueue([]byte("a")))
	require.False(t, q.Enqueue([]byte("b")))
	require.Equal(t, int64(1), q.Dropped())

	p, pill, ok := q.DequeueTimed(50 * time.Millisecond)
	require.True(t, ok)
	require.False(t, pill)
	require.Equal(t, []byte("a"), p)
}
