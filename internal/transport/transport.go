// Package transport provides the datagram socket abstraction the
// reliable-transport core sends and receives through: send_to(bytes,
// addr) and recv_from() -> (bytes, addr), as external collaborators per
// the specification. The concrete implementation wraps *net.UDPConn;
// tests drive the core against an in-memory fake instead.
package transport

import (
	"net"
	"strconv"
	"time"

	"rftp/internal/config"
)

// Socket is the minimal contract the reliable-transport core needs from
// the network. SetReadDeadline lets the client bound its request/response
// waits without the core depending on *net.UDPConn directly.
type Socket interface {
	SendTo(b []byte, addr net.Addr) error
	RecvFrom(buf []byte) (n int, addr net.Addr, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// UDPSocket adapts *net.UDPConn to the Socket interface.
type UDPSocket struct {
	conn *net.UDPConn
}

// ListenUDP opens a UDP socket bound to host:port with the buffer sizes
// the teacher's server/client tune for burst tolerance.
func ListenUDP(host string, port int) (*UDPSocket, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadBuffer(config.DefaultReadBuffer)
	_ = conn.SetWriteBuffer(config.DefaultWriteBuffer)
	return &UDPSocket{conn: conn}, nil
}

// DialUDP opens a UDP socket connected to a single peer, as used by the client.
func DialUDP(host string, port int) (*UDPSocket, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadBuffer(config.DefaultReadBuffer)
	_ = conn.SetWriteBuffer(config.DefaultWriteBuffer)
	return &UDPSocket{conn: conn}, nil
}

func (s *UDPSocket) SendTo(b []byte, addr net.Addr) error {
	if addr == nil {
		_, err := s.conn.Write(b)
		return err
	}
	_, err := s.conn.WriteTo(b, addr)
	return err
}

func (s *UDPSocket) RecvFrom(buf []byte) (int, net.Addr, error) {
	return s.conn.ReadFrom(buf)
}

func (s *UDPSocket) Close() error { return s.conn.Close() }

// LocalAddr exposes the bound local address, mainly for logging.
func (s *UDPSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// SetReadDeadline forwards to the underlying connection, used by the
// client's synchronous request/response waits.
func (s *UDPSocket) SetReadDeadline(t time.Time) error { return s.conn.SetReadDeadline(t) }
