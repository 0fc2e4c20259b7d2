// Package rclient implements the client side of both transfer
// directions and both error-recovery protocols. Where the handler
// package plays receiver (upload) or sender (download) against a
// session table, Client plays the opposite role against a single
// peer: sender for upload, receiver for download.
package rclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"rftp/internal/config"
	"rftp/internal/protocol"
	"rftp/internal/reorder"
	"rftp/internal/session"
	"rftp/internal/srengine"
	"rftp/internal/transport"
)

// Client drives one transfer against one server address.
type Client struct {
	sock     transport.Socket
	proto    config.Protocol
	timeout  time.Duration
	log      *logrus.Entry
}

// New constructs a Client. sock should already be connected (dialed) to
// the server address, matching transport.DialUDP's single-peer socket.
func New(sock transport.Socket, proto config.Protocol, timeout time.Duration, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Client{sock: sock, proto: proto, timeout: timeout, log: log}
}

// recv blocks for one datagram up to the client's timeout, decoding it.
func (c *Client) recv() (protocol.Packet, error) {
	buf := make([]byte, config.BUFSIZE)
	if err := c.sock.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return protocol.Packet{}, err
	}
	n, _, err := c.sock.RecvFrom(buf)
	if err != nil {
		return protocol.Packet{}, err
	}
	return protocol.Decode(buf[:n])
}

// awaitKind sends frame and waits for a valid packet of one of
// wantKinds, resending frame after every timeout, corrupt packet or
// packet of another kind; it gives up after config.MaxRetries+1 sends.
func (c *Client) awaitKind(frame []byte, wantKinds ...protocol.Kind) (protocol.Packet, error) {
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := c.sock.SendTo(frame, nil); err != nil {
			return protocol.Packet{}, err
		}
		pkt, err := c.recv()
		if err != nil {
			if isTimeout(err) {
				c.log.WithField("attempt", attempt).Debug("handshake retry")
				continue
			}
			return protocol.Packet{}, err
		}
		if !pkt.Valid {
			continue
		}
		for _, k := range wantKinds {
			if pkt.Kind == k {
				return pkt, nil
			}
		}
	}
	return protocol.Packet{}, fmt.Errorf("rclient: no response after %d retries", config.MaxRetries)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Upload sends localPath to the server under remoteName.
func (c *Client) Upload(localPath, remoteName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("rclient: open local file: %w", err)
	}
	defer f.Close()

	if _, err := c.awaitKind(protocol.EncodeInit(protocol.OpUpload, remoteName), protocol.KindAck, protocol.KindFin); err != nil {
		return err
	}

	chunkSize := config.ChunkPayloadSize()
	if c.proto == config.StopWait {
		return c.uploadStopWait(f, chunkSize)
	}
	return c.uploadSelectiveRepeat(f, chunkSize)
}

func (c *Client) uploadStopWait(f *os.File, chunkSize int) error {
	seq := uint32(0)
	for {
		chunk := make([]byte, chunkSize)
		n, err := f.Read(chunk)
		if n == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			_, err := c.awaitKind(protocol.EncodeFin(), protocol.KindAck)
			return err
		}
		chunk = chunk[:n]

		ack, err := c.awaitKind(protocol.EncodeData(seq, chunk), protocol.KindAck)
		if err != nil {
			return err
		}
		if ack.Sequence != seq {
			continue
		}
		seq = session.NextSequence(config.StopWait, seq)
	}
}

// uploadSelectiveRepeat drives a srengine.Engine as the sender, fed by
// ACK/NACK datagrams read off the socket in a loop — the same roles the
// handler plays for a Selective-Repeat download, mirrored here for the
// opposite direction.
func (c *Client) uploadSelectiveRepeat(f *os.File, chunkSize int) error {
	engine := srengine.New(c.sock, nil, c.proto.WindowSize())
	eof := false

	fill := func() error {
		for !eof && !engine.Window().Full() {
			chunk := make([]byte, chunkSize)
			n, err := f.Read(chunk)
			if n == 0 {
				eof = true
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				return nil
			}
			if err := engine.SendChunk(chunk[:n]); err != nil {
				return err
			}
		}
		return nil
	}
	if err := fill(); err != nil {
		return err
	}

	for {
		if eof && engine.Window().Len() == 0 {
			_, err := c.awaitKind(protocol.EncodeFin(), protocol.KindAck)
			return err
		}

		if err := c.sock.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
		buf := make([]byte, config.BUFSIZE)
		n, _, err := c.sock.RecvFrom(buf)
		if err != nil {
			if isTimeout(err) {
				if top, ok := engine.Window().TopSeq(); ok {
					engine.ResendPackage(top)
				}
				continue
			}
			return err
		}
		pkt, err := protocol.Decode(buf[:n])
		if err != nil || !pkt.Valid {
			continue
		}

		switch pkt.Kind {
		case protocol.KindAck:
			engine.AckReceived(pkt.Sequence)
			if err := fill(); err != nil {
				return err
			}
		case protocol.KindNack:
			if !engine.ResendPackage(pkt.Sequence) {
				return fmt.Errorf("rclient: retry budget exhausted for seq %d", pkt.Sequence)
			}
		case protocol.KindFin:
			return nil
		}
	}
}

// Download fetches remoteName from the server into localPath.
func (c *Client) Download(remoteName, localPath string) error {
	resp, err := c.awaitKind(protocol.EncodeInit(protocol.OpDownload, remoteName), protocol.KindAck, protocol.KindFin)
	if err != nil {
		return err
	}
	if resp.Kind == protocol.KindFin {
		return fmt.Errorf("rclient: server has no file named %q", remoteName)
	}

	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("rclient: create destination: %w", err)
	}
	defer out.Close()

	// The server's download-send path only starts reading and
	// transmitting chunks once it sees an ACK or NACK following the
	// INIT handshake (the INIT response itself only opens the
	// session). Sending ACK(0) here is what kicks off the pump.
	if err := c.sock.SendTo(protocol.EncodeAck(0), nil); err != nil {
		return err
	}

	// The server's Stop-and-Wait sender advances from seq 0 before its
	// first transmit (an artifact of priming off the INIT ack), so the
	// first real DATA carries seq 1; its Selective-Repeat engine starts
	// numbering at 0. See srengine.Engine and the handler's
	// handleDownloadStopWait for the sending side of this asymmetry.
	expected := uint32(0)
	if c.proto == config.StopWait {
		expected = 1
	}
	buf := reorder.New()

	for {
		if err := c.sock.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
		raw := make([]byte, config.BUFSIZE)
		n, _, err := c.sock.RecvFrom(raw)
		if err != nil {
			if isTimeout(err) {
				c.sock.SendTo(protocol.EncodeNack(expected), nil)
				continue
			}
			return err
		}
		pkt, err := protocol.Decode(raw[:n])
		if err != nil {
			continue
		}
		if !pkt.Valid {
			c.sock.SendTo(protocol.EncodeNack(pkt.Sequence), nil)
			continue
		}

		switch pkt.Kind {
		case protocol.KindFin:
			c.sock.SendTo(protocol.EncodeAck(0), nil)
			return nil
		case protocol.KindData:
			if pkt.Sequence == expected {
				if _, err := out.Write(pkt.Payload); err != nil {
					return err
				}
				expected = session.NextSequence(c.proto, expected)
				for {
					seq, payload, ok := buf.Peek()
					if !ok || seq != expected {
						break
					}
					buf.Pop()
					if _, err := out.Write(payload); err != nil {
						return err
					}
					expected = session.NextSequence(c.proto, expected)
				}
			} else if !buf.Has(pkt.Sequence) {
				buf.Push(pkt.Sequence, pkt.Payload)
			}
			c.sock.SendTo(protocol.EncodeAck(pkt.Sequence), nil)
		}
	}
}
