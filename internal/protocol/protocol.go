// Package protocol defines the wire encoding for the five reliable
// file-transfer packet kinds (INIT, DATA, ACK, NACK, FIN) and the
// checksum used to detect datagram corruption.
package protocol

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"rftp/internal/config"
)

// Kind tags a packet variant.
type Kind byte

const (
	KindInit Kind = iota + 1
	KindData
	KindAck
	KindNack
	KindFin
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "INIT"
	case KindData:
		return "DATA"
	case KindAck:
		return "ACK"
	case KindNack:
		return "NACK"
	case KindFin:
		return "FIN"
	default:
		return "UNKNOWN"
	}
}

// Operation is carried by INIT to select upload or download.
type Operation byte

const (
	OpUpload Operation = iota
	OpDownload
)

func (o Operation) String() string {
	if o == OpDownload {
		return "download"
	}
	return "upload"
}

var magic = [2]byte{'R', 'F'}

// header layout (big-endian): magic(2) version(1) kind(1) seq(4) payloadLen(2)
const headerSize = 2 + 1 + 1 + 4 + 2
const trailerSize = 4 // crc32

// Packet is the tagged union the handler operates on. Fields beyond
// Kind/Sequence/Valid are only meaningful for the kinds that use them.
type Packet struct {
	Kind      Kind
	Sequence  uint32
	Valid     bool
	Operation Operation // INIT only
	FileName  string    // INIT only
	Payload   []byte     // DATA only
}

// MaxPayload is the largest DATA chunk that fits in one datagram.
func MaxPayload() int { return config.BUFSIZE - 50 }

func checksum(b []byte) uint32 { return crc32.ChecksumIEEE(b) }

func encode(kind Kind, seq uint32, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload)+trailerSize)
	buf[0], buf[1] = magic[0], magic[1]
	buf[2] = byte(config.ProtocolVersion)
	buf[3] = byte(kind)
	binary.BigEndian.PutUint32(buf[4:8], seq)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(payload)))
	copy(buf[headerSize:headerSize+len(payload)], payload)
	crc := checksum(buf[:headerSize+len(payload)])
	binary.BigEndian.PutUint32(buf[headerSize+len(payload):], crc)
	return buf
}

// EncodeInit packs an INIT packet requesting upload or download of name.
func EncodeInit(op Operation, name string) []byte {
	payload := make([]byte, 1+2+len(name))
	payload[0] = byte(op)
	binary.BigEndian.PutUint16(payload[1:3], uint16(len(name)))
	copy(payload[3:], name)
	return encode(KindInit, 0, payload)
}

// EncodeData packs a DATA packet carrying seq and a chunk of the file.
func EncodeData(seq uint32, chunk []byte) []byte {
	return encode(KindData, seq, chunk)
}

// EncodeAck packs an ACK for seq.
func EncodeAck(seq uint32) []byte { return encode(KindAck, seq, nil) }

// EncodeNack packs a NACK for seq.
func EncodeNack(seq uint32) []byte { return encode(KindNack, seq, nil) }

// EncodeFin packs a FIN.
func EncodeFin() []byte { return encode(KindFin, 0, nil) }

// Decode parses a received datagram into a Packet. It returns an error
// only when the datagram is not well-framed: too short for a header, a
// bad magic, or shorter than its declared payload. A checksum mismatch
// on a well-framed datagram instead yields Valid=false so the caller can
// still NACK the claimed sequence number.
func Decode(b []byte) (Packet, error) {
	if len(b) < headerSize+trailerSize {
		return Packet{}, errors.New("protocol: datagram too short for header")
	}
	if b[0] != magic[0] || b[1] != magic[1] {
		return Packet{}, errors.New("protocol: bad magic")
	}
	kind := Kind(b[3])
	seq := binary.BigEndian.Uint32(b[4:8])
	payloadLen := int(binary.BigEndian.Uint16(b[8:10]))
	if len(b) < headerSize+payloadLen+trailerSize {
		return Packet{}, errors.New("protocol: datagram shorter than declared payload")
	}
	payload := b[headerSize : headerSize+payloadLen]
	carried := binary.BigEndian.Uint32(b[headerSize+payloadLen : headerSize+payloadLen+trailerSize])
	valid := checksum(b[:headerSize+payloadLen]) == carried

	p := Packet{Kind: kind, Sequence: seq, Valid: valid}
	switch kind {
	case KindInit:
		if payloadLen < 3 {
			p.Valid = false
			return p, nil
		}
		p.Operation = Operation(payload[0])
		nameLen := int(binary.BigEndian.Uint16(payload[1:3]))
		if 3+nameLen > len(payload) {
			p.Valid = false
			return p, nil
		}
		p.FileName = string(payload[3 : 3+nameLen])
	case KindData:
		p.Payload = append([]byte(nil), payload...)
	}
	return p, nil
}
