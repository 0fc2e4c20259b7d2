package reorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainWhileMinEqualsExpected(t *testing.T) {
	b := New()
	b.Push(1, []byte("B"))
	b.Push(2, []byte("C"))
	// 0 arrives last; draining from expected=0 should pull 0,1,2 in order.
	b.Push(0, []byte("A"))

	expected := uint32(0)
	var out []byte
	for {
		seq, payload, ok := b.Peek()
		if !ok || seq != expected {
			break
		}
		b.Pop()
		out = append(out, payload...)
		expected++
	}
	assert.Equal(t, "ABC", string(out))
	assert.Equal(t, 0, b.Len())
}

func TestPeekStopsAtGap(t *testing.T) {
	b := New()
	b.Push(2, []byte("C"))
	seq, _, ok := b.Peek()
	require.True(t, ok)
	assert.Equal(t, uint32(2), seq)
	// expected is 0, min is 2: nothing drains.
	_, _, ok = b.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, b.Len())
}

func TestHasDetectsDuplicates(t *testing.T) {
	b := New()
	b.Push(3, []byte("x"))
	assert.True(t, b.Has(3))
	assert.False(t, b.Has(4))
}
