// Package window implements the bounded ordered send buffer used by the
// Selective-Repeat engine (and, with capacity 1, by Stop-and-Wait): a
// fixed-capacity run of in-flight sequence numbers with per-slot acked
// state, sliding its left edge over a contiguous acked prefix.
package window

// Window tracks in-flight sequence numbers for one sender. Slots with
// seq in [TopSeq(), LastSeq()] are always populated; last-first < capacity
// holds at all times.
type Window struct {
	capacity int
	entries  []entry
}

type entry struct {
	seq     uint32
	payload []byte
	acked   bool
}

// New returns an empty Window with the given fixed capacity.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity}
}

// Capacity returns the window's fixed size.
func (w *Window) Capacity() int { return w.capacity }

// Len returns the number of slots the window has not yet slid past,
// acked or not.
func (w *Window) Len() int { return len(w.entries) }

// Full reports whether the window has no room for another Push.
func (w *Window) Full() bool { return len(w.entries) >= w.capacity }

// Push records a newly sent packet. It fails (returns false) if the
// window is full. seq must be one greater than the previous LastSeq
// (or anything, if the window is currently empty).
func (w *Window) Push(seq uint32, payload []byte) bool {
	if w.Full() {
		return false
	}
	w.entries = append(w.entries, entry{seq: seq, payload: payload})
	return true
}

// Contains reports whether seq is within [TopSeq(), LastSeq()].
func (w *Window) Contains(seq uint32) bool {
	if len(w.entries) == 0 {
		return false
	}
	first, last := w.entries[0].seq, w.entries[len(w.entries)-1].seq
	return seq >= first && seq <= last
}

// Ack marks seq acked. If seq is the current left edge, the window
// slides forward over any contiguous acked prefix. Returns false (a
// no-op) if seq is outside the window.
func (w *Window) Ack(seq uint32) bool {
	if !w.Contains(seq) {
		return false
	}
	idx := int(seq - w.entries[0].seq)
	w.entries[idx].acked = true
	for len(w.entries) > 0 && w.entries[0].acked {
		w.entries = w.entries[1:]
	}
	return true
}

// GetPayload returns the payload last recorded for seq, for retransmission.
func (w *Window) GetPayload(seq uint32) ([]byte, bool) {
	if !w.Contains(seq) {
		return nil, false
	}
	idx := int(seq - w.entries[0].seq)
	return w.entries[idx].payload, true
}

// TopSeq returns the oldest unacked (left-edge) sequence number.
func (w *Window) TopSeq() (uint32, bool) {
	if len(w.entries) == 0 {
		return 0, false
	}
	return w.entries[0].seq, true
}

// LastSeq returns the highest sequence number currently in flight.
func (w *Window) LastSeq() (uint32, bool) {
	if len(w.entries) == 0 {
		return 0, false
	}
	return w.entries[len(w.entries)-1].seq, true
}
