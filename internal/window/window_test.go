package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushRespectsCapacity(t *testing.T) {
	w := New(2)
	require.True(t, w.Push(0, []byte("a")))
	require.True(t, w.Push(1, []byte("b")))
	require.False(t, w.Push(2, []byte("c")), "window is full at capacity")
}

func TestAckAdvancesLeftEdgeOverContiguousPrefix(t *testing.T) {
	w := New(5)
	for i := uint32(0); i < 5; i++ {
		require.True(t, w.Push(i, []byte{byte(i)}))
	}
	// Ack the middle first: should not slide.
	require.True(t, w.Ack(2))
	top, ok := w.TopSeq()
	require.True(t, ok)
	assert.Equal(t, uint32(0), top)
	assert.Equal(t, 5, w.Len())

	// Ack 0, then 1: both acked now, prefix [0,1,2] all acked -> slide to 3.
	require.True(t, w.Ack(0))
	require.True(t, w.Ack(1))
	top, ok = w.TopSeq()
	require.True(t, ok)
	assert.Equal(t, uint32(3), top)
	assert.Equal(t, 2, w.Len())
}

func TestAckOutsideWindowIsNoOp(t *testing.T) {
	w := New(3)
	require.True(t, w.Push(10, []byte("x")))
	assert.False(t, w.Ack(9))
	assert.False(t, w.Ack(11))
	assert.True(t, w.Contains(10))
}

func TestGetPayloadForRetransmission(t *testing.T) {
	w := New(3)
	w.Push(0, []byte("hello"))
	payload, ok := w.GetPayload(0)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), payload)

	_, ok = w.GetPayload(5)
	assert.False(t, ok)
}

func TestWindowInvariantLastMinusFirstLessThanCapacity(t *testing.T) {
	w := New(3)
	for i := uint32(0); i < 3; i++ {
		w.Push(i, nil)
	}
	last, _ := w.LastSeq()
	top, _ := w.TopSeq()
	assert.Less(t, last-top, uint32(w.Capacity()))
	assert.True(t, w.Full())
}
