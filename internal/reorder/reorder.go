// Package reorder implements the receive-side out-of-order buffer (the
// server's upload path and the client's download path): a min-heap of
// received DATA payloads keyed by sequence number, which callers drain
// while its minimum element is the next expected sequence.
package reorder

import "container/heap"

type item struct {
	seq     uint32
	payload []byte
}

type minHeap []item

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Buffer holds out-of-order DATA packets pending contiguous delivery.
type Buffer struct {
	h minHeap
}

// New returns an empty reorder Buffer.
func New() *Buffer { return &Buffer{} }

// Len reports the number of buffered packets.
func (b *Buffer) Len() int { return b.h.Len() }

// Has reports whether seq is already buffered (used to treat duplicate
// out-of-order arrivals as no-ops).
func (b *Buffer) Has(seq uint32) bool {
	for _, it := range b.h {
		if it.seq == seq {
			return true
		}
	}
	return false
}

// Push inserts a newly arrived out-of-order payload.
func (b *Buffer) Push(seq uint32, payload []byte) {
	heap.Push(&b.h, item{seq: seq, payload: payload})
}

// Peek returns the lowest-sequence buffered packet without removing it.
func (b *Buffer) Peek() (uint32, []byte, bool) {
	if len(b.h) == 0 {
		return 0, nil, false
	}
	return b.h[0].seq, b.h[0].payload, true
}

// Pop removes and returns the lowest-sequence buffered packet.
func (b *Buffer) Pop() (uint32, []byte, bool) {
	if len(b.h) == 0 {
		return 0, nil, false
	}
	it := heap.Pop(&b.h).(item)
	return it.seq, it.payload, true
}
