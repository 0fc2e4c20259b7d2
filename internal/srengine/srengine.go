// Package srengine implements the Selective-Repeat sender engine: it
// owns an outbound window, a socket, and a peer address, and drives
// ACK-advanced sliding plus NACK-driven bounded retransmission. With a
// window size of 1 it also serves as the Stop-and-Wait sender.
package srengine

import (
	"errors"
	"net"

	"rftp/internal/config"
	"rftp/internal/protocol"
	"rftp/internal/transport"
	"rftp/internal/window"
)

// ErrWindowFull is returned by SendChunk when the caller violates the
// "window not full" precondition from the specification.
var ErrWindowFull = errors.New("srengine: send_chunk called with a full window")

// Engine is the per-session sender state for the download direction.
type Engine struct {
	socket  transport.Socket
	peer    net.Addr
	win     *window.Window
	nextSeq uint32
	retries map[uint32]int
}

// New constructs an Engine with a window of the given capacity.
func New(socket transport.Socket, peer net.Addr, windowSize int) *Engine {
	return &Engine{
		socket:  socket,
		peer:    peer,
		win:     window.New(windowSize),
		retries: make(map[uint32]int),
	}
}

// Window exposes the underlying window for fullness/inspection checks.
func (e *Engine) Window() *window.Window { return e.win }

// SendChunk assigns the next sequence number, pushes it into the
// window, and transmits a DATA packet. The caller must ensure the
// window has room; pushing into a full window is a protocol violation
// and SendChunk reports it as an error rather than silently dropping.
func (e *Engine) SendChunk(payload []byte) error {
	seq := e.nextSeq
	if !e.win.Push(seq, payload) {
		return ErrWindowFull
	}
	e.nextSeq++
	return e.socket.SendTo(protocol.EncodeData(seq, payload), e.peer)
}

// AckReceived marks seq acked and slides the window's left edge if
// applicable. Returns false if seq is outside the window; the caller
// must ignore the ACK in that case.
func (e *Engine) AckReceived(seq uint32) bool {
	if !e.win.Ack(seq) {
		return false
	}
	delete(e.retries, seq)
	return true
}

// ResendPackage retransmits seq if it is still in the window and its
// retry budget isn't exhausted. The retry-exhaustion check happens
// before the send (and before incrementing), so the Nth NACK for a
// sequence is the one that trips teardown after N-1 retransmits have
// already gone out — matching the reference implementation this
// protocol was distilled from.
func (e *Engine) ResendPackage(seq uint32) bool {
	if !e.win.Contains(seq) {
		return false
	}
	if e.retries[seq] >= config.MaxRetries {
		return false
	}
	payload, _ := e.win.GetPayload(seq)
	if err := e.socket.SendTo(protocol.EncodeData(seq, payload), e.peer); err != nil {
		return false
	}
	e.retries[seq]++
	return true
}
