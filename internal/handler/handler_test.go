package handler

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rftp/internal/config"
	"rftp/internal/protocol"
	"rftp/internal/transport"
)

func peer() net.Addr { return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5001} }

func newTestHandler(t *testing.T, proto config.Protocol) (*Handler, *transport.FakeSocket, string) {
	t.Helper()
	dir := t.TempDir()
	sock := transport.NewFakeSocket()
	return New(sock, dir, proto, nil), sock, dir
}

func lastSent(t *testing.T, sock *transport.FakeSocket) protocol.Packet {
	t.Helper()
	dgram, ok := sock.Last()
	require.True(t, ok, "expected a datagram to have been sent")
	pkt, err := protocol.Decode(dgram.Bytes)
	require.NoError(t, err)
	return pkt
}

func TestUploadStopAndWaitCleanTransfer(t *testing.T) {
	h, sock, dir := newTestHandler(t, config.StopWait)
	p := peer()

	h.HandleRequest(protocol.EncodeInit(protocol.OpUpload, "greeting.txt"), p)
	assert.Equal(t, protocol.KindAck, lastSent(t, sock).Kind)

	h.HandleRequest(protocol.EncodeData(0, []byte("hello ")), p)
	assert.Equal(t, uint32(0), lastSent(t, sock).Sequence)

	h.HandleRequest(protocol.EncodeData(1, []byte("world")), p)
	assert.Equal(t, uint32(1), lastSent(t, sock).Sequence)

	h.HandleRequest(protocol.EncodeFin(), p)

	data, err := os.ReadFile(filepath.Join(dir, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Empty(t, h.sessions)
}

func TestUploadStopAndWaitDuplicateRetransmitIsNotReplayed(t *testing.T) {
	h, sock, dir := newTestHandler(t, config.StopWait)
	p := peer()

	h.HandleRequest(protocol.EncodeInit(protocol.OpUpload, "dup.txt"), p)

	// DATA(0,"A") is written and ExpectedSeq advances to 1, but its ACK
	// is lost and the client retransmits the same DATA(0,"A"). That
	// retransmit no longer matches ExpectedSeq(1); under Stop-and-Wait
	// it must be treated as a stale duplicate and just re-acked, never
	// buffered into Reorder (which would replay it once ExpectedSeq
	// wraps back to 0).
	h.HandleRequest(protocol.EncodeData(0, []byte("A")), p)
	h.HandleRequest(protocol.EncodeData(0, []byte("A")), p)
	assert.Equal(t, uint32(0), lastSent(t, sock).Sequence)

	h.HandleRequest(protocol.EncodeData(1, []byte("B")), p)
	h.HandleRequest(protocol.EncodeFin(), p)

	data, err := os.ReadFile(filepath.Join(dir, "dup.txt"))
	require.NoError(t, err)
	assert.Equal(t, "AB", string(data))
}

func TestUploadSelectiveRepeatOutOfOrderReassembles(t *testing.T) {
	h, _, dir := newTestHandler(t, config.SelectiveRepeat)
	p := peer()

	h.HandleRequest(protocol.EncodeInit(protocol.OpUpload, "reorder.bin"), p)
	// seq 2 arrives before seq 0 and 1: buffered, not yet written.
	h.HandleRequest(protocol.EncodeData(2, []byte("C")), p)
	h.HandleRequest(protocol.EncodeData(0, []byte("A")), p)
	h.HandleRequest(protocol.EncodeData(1, []byte("B")), p)
	h.HandleRequest(protocol.EncodeFin(), p)

	data, err := os.ReadFile(filepath.Join(dir, "reorder.bin"))
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(data))
}

func TestCorruptedChecksumTriggersNack(t *testing.T) {
	h, sock, _ := newTestHandler(t, config.StopWait)
	p := peer()

	raw := protocol.EncodeData(3, []byte("x"))
	raw[len(raw)-1] ^= 0xFF // flip a CRC byte to invalidate it

	h.HandleRequest(raw, p)
	pkt := lastSent(t, sock)
	assert.Equal(t, protocol.KindNack, pkt.Kind)
	assert.Equal(t, uint32(3), pkt.Sequence)
}

func TestDownloadStopAndWaitHappyPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.bin"), []byte("0123456789"), 0o644))
	sock := transport.NewFakeSocket()
	h := New(sock, dir, config.StopWait, nil)
	p := peer()

	h.HandleRequest(protocol.EncodeInit(protocol.OpDownload, "movie.bin"), p)
	assert.Equal(t, protocol.KindAck, lastSent(t, sock).Kind)

	// Client ACKs the INIT response (seq 0): server reads the first chunk.
	h.HandleRequest(protocol.EncodeAck(0), p)
	first := lastSent(t, sock)
	assert.Equal(t, protocol.KindData, first.Kind)
	assert.Equal(t, uint32(1), first.Sequence)
	assert.Equal(t, "0123456789", string(first.Payload))

	h.HandleRequest(protocol.EncodeAck(1), p)
	assert.Equal(t, protocol.KindFin, lastSent(t, sock).Kind)
}

func TestDownloadStopAndWaitRetryExhaustionTearsDown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.bin"), []byte("data"), 0o644))
	sock := transport.NewFakeSocket()
	h := New(sock, dir, config.StopWait, nil)
	p := peer()

	h.HandleRequest(protocol.EncodeInit(protocol.OpDownload, "f.bin"), p)
	h.HandleRequest(protocol.EncodeAck(0), p) // primes last_chunk, sends DATA(1,...)

	for i := 0; i < config.MaxRetries; i++ {
		h.HandleRequest(protocol.EncodeNack(1), p)
		assert.Equal(t, protocol.KindData, lastSent(t, sock).Kind, "retry %d should still resend", i)
	}
	// 11th NACK observes retries[1] == MaxRetries and tears down.
	h.HandleRequest(protocol.EncodeNack(1), p)
	assert.Equal(t, protocol.KindFin, lastSent(t, sock).Kind)
	assert.Empty(t, h.sessions)
}

func TestDownloadSelectiveRepeatWaitsForWindowToDrainBeforeFin(t *testing.T) {
	dir := t.TempDir()
	chunk := config.ChunkPayloadSize()
	content := make([]byte, 2*chunk)
	for i := range content {
		content[i] = byte(i % 250)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.bin"), content, 0o644))
	sock := transport.NewFakeSocket()
	h := New(sock, dir, config.SelectiveRepeat, nil)
	p := peer()

	h.HandleRequest(protocol.EncodeInit(protocol.OpDownload, "two.bin"), p)
	assert.Equal(t, protocol.KindAck, lastSent(t, sock).Kind)

	// ACK(0) kicks off priming: both chunks fit under the window, so the
	// third (empty) read marks the source exhausted without sending FIN.
	h.HandleRequest(protocol.EncodeAck(0), p)
	assert.Equal(t, protocol.KindData, lastSent(t, sock).Kind)

	// Acking the first chunk slides the window but one chunk is still
	// outstanding: FIN must not fire yet.
	beforeSent := len(sock.Sent)
	h.HandleRequest(protocol.EncodeAck(0), p)
	assert.Equal(t, beforeSent, len(sock.Sent), "a draining (non-final) ACK sends nothing")
	assert.NotEmpty(t, h.sessions)

	// Acking the last outstanding chunk drains the window: now FIN fires.
	h.HandleRequest(protocol.EncodeAck(1), p)
	assert.Equal(t, protocol.KindFin, lastSent(t, sock).Kind)
	assert.Empty(t, h.sessions)
}

func TestDownloadMissingFileSendsFinWithoutSession(t *testing.T) {
	h, sock, _ := newTestHandler(t, config.StopWait)
	p := peer()

	h.HandleRequest(protocol.EncodeInit(protocol.OpDownload, "absent.bin"), p)
	assert.Equal(t, protocol.KindFin, lastSent(t, sock).Kind)
	assert.Empty(t, h.sessions)
}

func TestNonInitFromUnknownPeerIsDropped(t *testing.T) {
	h, sock, _ := newTestHandler(t, config.StopWait)
	p := peer()

	h.HandleRequest(protocol.EncodeData(0, []byte("x")), p)
	_, sent := sock.Last()
	assert.False(t, sent)
	assert.Empty(t, h.sessions)
}
