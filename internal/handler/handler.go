// Package handler implements the single-threaded request dispatcher:
// it demultiplexes incoming datagrams by peer address, creates and
// destroys sessions, and drives the upload-receive and download-send
// state machines described for each packet kind.
package handler

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"

	"rftp/internal/config"
	"rftp/internal/metrics"
	"rftp/internal/protocol"
	"rftp/internal/session"
	"rftp/internal/transport"
)

// Handler owns the session table for one server process. It is not
// safe for concurrent calls to HandleRequest: the accept loop must
// deliver datagrams to it one at a time, matching the single-threaded
// event-driven model the reliable-transport core assumes.
type Handler struct {
	sock     transport.Socket
	storage  string
	protocol config.Protocol
	log      *logrus.Entry
	metrics  *metrics.ServerMetrics

	sessions map[string]*session.Session
}

// New constructs a Handler serving files out of storageDir, negotiating
// every session under the given protocol (the server is launched with a
// single fixed error-recovery strategy, matching the reference
// implementation's server-wide `-r` selection rather than a per-request one).
func New(sock transport.Socket, storageDir string, proto config.Protocol, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Handler{
		sock:     sock,
		storage:  storageDir,
		protocol: proto,
		log:      log,
		metrics:  metrics.NewServerMetrics(),
		sessions: make(map[string]*session.Session),
	}
}

// Metrics exposes the handler's running counters.
func (h *Handler) Metrics() *metrics.ServerMetrics { return h.metrics }

func key(addr net.Addr) string { return addr.String() }

// HandleRequest dispatches one decoded datagram from addr. It is the
// sole entry point the accept loop calls.
func (h *Handler) HandleRequest(raw []byte, addr net.Addr) {
	pkt, err := protocol.Decode(raw)
	if err != nil {
		h.log.WithError(err).WithField("peer", addr).Warn("dropping unparseable datagram")
		h.metrics.AddError()
		return
	}

	if !pkt.Valid {
		h.log.WithFields(logrus.Fields{"peer": addr, "seq": pkt.Sequence}).Warn("checksum mismatch")
		h.metrics.AddError()
		h.send(protocol.EncodeNack(pkt.Sequence), addr)
		return
	}

	k := key(addr)
	sess, ok := h.sessions[k]
	if !ok {
		sess, ok = h.admit(pkt, addr)
		if !ok {
			return
		}
		h.sessions[k] = sess
		h.metrics.AddConnection()
	}

	defer func() { sess.LastPackageType = pkt.Kind }()

	switch pkt.Kind {
	case protocol.KindInit:
		h.send(protocol.EncodeAck(0), addr)
	case protocol.KindData:
		h.handleUploadData(sess, pkt, addr)
	case protocol.KindAck:
		if sess.Operation == protocol.OpDownload {
			h.handleDownloadEvent(sess, pkt, addr, false)
		}
	case protocol.KindNack:
		h.metrics.AddNack()
		if sess.Operation == protocol.OpDownload {
			h.handleDownloadEvent(sess, pkt, addr, true)
		}
	case protocol.KindFin:
		h.finish(sess, k, addr, true)
	default:
		h.log.WithField("kind", pkt.Kind).Error("unknown packet kind")
	}
}

// admit creates a session for a previously-unseen peer, which is only
// legal on an INIT packet.
func (h *Handler) admit(pkt protocol.Packet, addr net.Addr) (*session.Session, bool) {
	if pkt.Kind != protocol.KindInit {
		h.log.WithField("peer", addr).Error("non-INIT packet from unknown session, dropping")
		return nil, false
	}

	if pkt.Operation == protocol.OpDownload {
		path, err := session.ResolvePath(h.storage, pkt.FileName)
		if err != nil || !fileExists(path) {
			h.log.WithField("file", pkt.FileName).Info("download request for missing file")
			h.send(protocol.EncodeFin(), addr)
			return nil, false
		}
	}

	sess := session.New(addr, pkt.Operation, h.protocol, pkt.FileName, h.sock)
	h.log.WithFields(logrus.Fields{
		"peer": addr, "operation": pkt.Operation, "file": pkt.FileName, "protocol": h.protocol,
	}).Info("new session")
	return sess, true
}

// handleUploadData implements the DATA-receive path for an upload.
func (h *Handler) handleUploadData(s *session.Session, pkt protocol.Packet, addr net.Addr) {
	if !pkt.Valid {
		h.send(protocol.EncodeNack(pkt.Sequence), addr)
		return
	}

	if err := s.OpenForUpload(h.storage); err != nil {
		h.log.WithError(err).Error("opening upload destination")
		h.metrics.AddError()
		h.send(protocol.EncodeNack(pkt.Sequence), addr)
		return
	}

	if pkt.Sequence == s.ExpectedSeq {
		if err := s.WriteChunk(pkt.Payload); err != nil {
			h.log.WithError(err).Error("writing upload chunk")
			h.metrics.AddError()
		} else {
			h.metrics.AddBytesSent(uint64(len(pkt.Payload)))
			h.metrics.AddSegmentsSent(1)
		}
		s.ExpectedSeq = session.NextSequence(h.protocol, s.ExpectedSeq)

		for {
			seq, payload, ok := s.Reorder.Peek()
			if !ok || seq != s.ExpectedSeq {
				break
			}
			s.Reorder.Pop()
			if err := s.WriteChunk(payload); err != nil {
				h.log.WithError(err).Error("writing buffered upload chunk")
				h.metrics.AddError()
			}
			s.ExpectedSeq = session.NextSequence(h.protocol, s.ExpectedSeq)
		}
	} else if h.protocol == config.SelectiveRepeat && !s.Reorder.Has(pkt.Sequence) {
		// Only Selective-Repeat's unbounded sequence space can legitimately
		// run ahead of ExpectedSeq. Stop-and-Wait cycles through {0,1}, so a
		// non-matching sequence there is always a stale retransmitted
		// duplicate of an already-written chunk (e.g. the client resent
		// DATA after its ACK was lost); buffering it would let it replay
		// once ExpectedSeq wraps back around. Just re-ACK it below.
		s.Reorder.Push(pkt.Sequence, pkt.Payload)
	}

	h.send(protocol.EncodeAck(pkt.Sequence), addr)
}

// handleDownloadEvent implements the download-send path, branching on
// the negotiated protocol. isNack distinguishes a NACK event from ACK.
func (h *Handler) handleDownloadEvent(s *session.Session, pkt protocol.Packet, addr net.Addr, isNack bool) {
	if h.protocol == config.StopWait {
		h.handleDownloadStopWait(s, pkt.Sequence, addr, isNack)
		return
	}
	h.handleDownloadSelectiveRepeat(s, pkt.Sequence, addr, isNack)
}

func (h *Handler) handleDownloadStopWait(s *session.Session, seq uint32, addr net.Addr, isNack bool) {
	if !isNack {
		if err := s.OpenForDownload(h.storage); err != nil {
			h.log.WithError(err).Error("opening download source")
			h.send(protocol.EncodeFin(), addr)
			h.finishByAddr(addr)
			return
		}
		chunk, err := s.ReadChunk(config.ChunkPayloadSize())
		if len(chunk) == 0 {
			h.send(protocol.EncodeFin(), addr)
			h.finishByAddr(addr)
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			h.log.WithError(err).Error("reading download source")
		}
		s.LastChunk = chunk
		s.ExpectedSeq = session.NextSequence(h.protocol, s.ExpectedSeq)
		h.send(protocol.EncodeData(s.ExpectedSeq, chunk), addr)
		h.metrics.AddBytesSent(uint64(len(chunk)))
		h.metrics.AddSegmentsSent(1)
		return
	}

	if s.Retries[seq] >= config.MaxRetries {
		h.send(protocol.EncodeFin(), addr)
		h.finishByAddr(addr)
		return
	}
	s.Retries[seq]++
	h.metrics.AddRetransmission()
	h.send(protocol.EncodeData(seq, s.LastChunk), addr)
}

func (h *Handler) handleDownloadSelectiveRepeat(s *session.Session, seq uint32, addr net.Addr, isNack bool) {
	if err := s.OpenForDownload(h.storage); err != nil {
		h.log.WithError(err).Error("opening download source")
		h.send(protocol.EncodeFin(), addr)
		h.finishByAddr(addr)
		return
	}

	if !s.FirstWindowSent {
		s.FirstWindowSent = true
		w := s.Protocol.WindowSize()
		for i := 0; i < w; i++ {
			chunk, _ := s.ReadChunk(config.ChunkPayloadSize())
			if len(chunk) == 0 {
				s.SourceExhausted = true
				break
			}
			if err := s.Engine.SendChunk(chunk); err != nil {
				h.log.WithError(err).Error("priming selective-repeat window")
				break
			}
			h.metrics.AddBytesSent(uint64(len(chunk)))
			h.metrics.AddSegmentsSent(1)
		}
		return
	}

	if isNack {
		h.metrics.AddRetransmission()
		if !s.Engine.ResendPackage(seq) {
			h.send(protocol.EncodeFin(), addr)
			h.finishByAddr(addr)
		}
		return
	}

	if !s.Engine.AckReceived(seq) {
		return
	}

	// Once the source is exhausted, every remaining ACK only slides the
	// window; FIN waits until the last in-flight chunk drains out of it
	// rather than firing the moment any single ACK arrives.
	if s.SourceExhausted {
		if s.Engine.Window().Len() == 0 {
			h.send(protocol.EncodeFin(), addr)
			h.finishByAddr(addr)
		}
		return
	}

	// A freed slot lets us read and send one more chunk; if the window
	// is already full again (an out-of-order ACK that didn't slide the
	// left edge) the read is deferred to a later ACK instead of
	// overflowing the window.
	if s.Engine.Window().Full() {
		return
	}
	chunk, _ := s.ReadChunk(config.ChunkPayloadSize())
	if len(chunk) == 0 {
		s.SourceExhausted = true
		if s.Engine.Window().Len() == 0 {
			h.send(protocol.EncodeFin(), addr)
			h.finishByAddr(addr)
		}
		return
	}
	if err := s.Engine.SendChunk(chunk); err != nil {
		h.log.WithError(err).Error("sending next selective-repeat chunk")
		return
	}
	h.metrics.AddBytesSent(uint64(len(chunk)))
	h.metrics.AddSegmentsSent(1)
}

// finish implements the FIN path: ack (if requested), close, evict.
func (h *Handler) finish(s *session.Session, k string, addr net.Addr, ackFirst bool) {
	if ackFirst {
		h.send(protocol.EncodeAck(0), addr)
	}
	if err := s.Close(); err != nil {
		h.log.WithError(err).Warn("closing session file handle")
	}
	delete(h.sessions, k)
	h.metrics.RemoveConnection()
}

// finishByAddr tears down a session identified only by its peer
// address, used by locally-initiated teardown (retry exhaustion, read
// errors) where no FIN was received to ack.
func (h *Handler) finishByAddr(addr net.Addr) {
	k := key(addr)
	s, ok := h.sessions[k]
	if !ok {
		return
	}
	h.finish(s, k, addr, false)
}

func (h *Handler) send(b []byte, addr net.Addr) {
	if err := h.sock.SendTo(b, addr); err != nil {
		h.log.WithError(err).Warn("send failed")
		h.metrics.AddError()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
