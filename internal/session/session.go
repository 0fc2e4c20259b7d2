// Package session holds per-peer state for an in-progress file
// transfer: the negotiated operation and protocol, the lazily-opened
// file handle, the upload-side reorder buffer, the download-side
// Selective-Repeat sender engine, and the Stop-and-Wait download's
// retry counters and last chunk. One Session exists
// per (peer address) for as long as a transfer is active; the handler
// creates one on INIT and discards it on FIN or teardown.
package session

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"rftp/internal/config"
	"rftp/internal/protocol"
	"rftp/internal/reorder"
	"rftp/internal/srengine"
	"rftp/internal/transport"
)

// Session is the mutable state the handler threads through every
// packet arriving from one peer.
type Session struct {
	PeerAddr  net.Addr
	Operation protocol.Operation
	Protocol  config.Protocol
	FileName  string

	// ExpectedSeq is the next in-order sequence number the upload
	// direction is waiting to write to disk.
	ExpectedSeq uint32

	// Reorder buffers upload DATA packets that arrived ahead of
	// ExpectedSeq. Only meaningful for Operation == OpUpload.
	Reorder *reorder.Buffer

	// Engine drives the download direction's outbound window and
	// retransmission under Selective-Repeat. It is created for every
	// download session, but the Stop-and-Wait download path does not use
	// it (it uses Retries and LastChunk instead).
	Engine *srengine.Engine

	// FirstWindowSent tracks whether the initial burst of chunks for a
	// Selective-Repeat download has already gone out, so the handler
	// doesn't re-send it on a stray early ACK.
	FirstWindowSent bool

	// SourceExhausted marks that the download source file has been read
	// to EOF. The handler must wait for the outbound window to drain
	// (every in-flight chunk acked) before sending FIN — declaring EOF
	// doesn't mean every sent chunk has landed yet.
	SourceExhausted bool

	// Done marks a session as finished. The handler neither sets nor
	// reads it; it evicts a session directly on its finish path.
	Done bool

	// Retries counts retransmission attempts per sequence number for
	// the Stop-and-Wait download path (the Selective-Repeat path keeps
	// its own counters inside Engine).
	Retries map[uint32]int

	// LastChunk is the most recently transmitted chunk, held for
	// Stop-and-Wait retransmission on NACK.
	LastChunk []byte

	// LastPackageType records the most recent packet kind handled for
	// this session, carried over from the reference implementation's
	// bookkeeping field for debugging and future transition guards.
	LastPackageType protocol.Kind

	file *os.File
}

// New constructs a Session for a freshly-accepted INIT. Nothing is
// opened on disk yet; OpenForUpload/OpenForDownload do that lazily on
// first use, matching the teacher's avoid-partial-state-on-error style.
func New(peer net.Addr, op protocol.Operation, proto config.Protocol, fileName string, sock transport.Socket) *Session {
	s := &Session{
		PeerAddr:        peer,
		Operation:       op,
		Protocol:        proto,
		FileName:        fileName,
		Retries:         make(map[uint32]int),
		LastPackageType: protocol.KindInit,
	}
	if op == protocol.OpUpload {
		s.Reorder = reorder.New()
	} else {
		s.Engine = srengine.New(sock, peer, proto.WindowSize())
	}
	return s
}

// NextSequence computes the sequence number that follows cur under the
// session's negotiated protocol. Stop-and-Wait's sequence space is the
// two values {0,1} and advances by flipping the low bit; Selective-
// Repeat's space is unbounded and advances by plain increment.
func NextSequence(proto config.Protocol, cur uint32) uint32 {
	if proto == config.StopWait {
		return cur ^ 1
	}
	return cur + 1
}

// OpenForUpload opens (creating if absent, appending to any existing
// content) the destination file for an incoming upload, rooted under
// baseDir. Call is idempotent: a second call is a no-op.
func (s *Session) OpenForUpload(baseDir string) error {
	if s.file != nil {
		return nil
	}
	path, err := safeJoin(baseDir, s.FileName)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("session: open upload destination: %w", err)
	}
	s.file = f
	return nil
}

// OpenForDownload opens the requested file for reading, rooted under
// baseDir. Returns an error (without panicking) if the file is absent,
// so the handler can turn that into a download-rejection FIN.
func (s *Session) OpenForDownload(baseDir string) error {
	if s.file != nil {
		return nil
	}
	path, err := safeJoin(baseDir, s.FileName)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("session: open download source: %w", err)
	}
	s.file = f
	return nil
}

// WriteChunk appends payload to the upload destination at its current
// write position. The caller is responsible for only calling this once
// per sequence number, in order.
func (s *Session) WriteChunk(payload []byte) error {
	if s.file == nil {
		return fmt.Errorf("session: write before open")
	}
	_, err := s.file.Write(payload)
	return err
}

// ReadChunk reads up to n bytes from the download source's current
// position. A short read (or io.EOF) signals the final chunk.
func (s *Session) ReadChunk(n int) ([]byte, error) {
	if s.file == nil {
		return nil, fmt.Errorf("session: read before open")
	}
	buf := make([]byte, n)
	read, err := s.file.Read(buf)
	if read == 0 {
		return nil, err
	}
	return buf[:read], nil
}

// Close releases the session's open file handle, if any. Safe to call
// more than once.
func (s *Session) Close() error {
	if s.file == nil {
		return nil
	}
	var result error
	if err := s.file.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	s.file = nil
	return result
}

// ResolvePath exposes safeJoin's path-traversal-checked join so callers
// (such as the handler's pre-admission file-existence check) can
// resolve a requested name without opening it.
func ResolvePath(baseDir, name string) (string, error) {
	return safeJoin(baseDir, name)
}

// safeJoin rejects any name that would escape baseDir, mirroring the
// teacher's destination-path sanitization for served files.
func safeJoin(baseDir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("session: empty file name")
	}
	clean := filepath.Clean(name)
	joined := filepath.Join(baseDir, clean)
	rel, err := filepath.Rel(baseDir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("session: file name escapes base directory: %q", name)
	}
	return joined, nil
}
