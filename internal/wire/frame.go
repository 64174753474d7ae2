// Package wire implements the binary frame codec used on both the
// network session (TCP) and shared-memory transports.
//
// Every frame is a 32-byte fixed header followed by a payload:
//
//	offset  size  field
//	0       4     magic      ("UTPB", 0x55545042, little-endian)
//	4       1     version    (1)
//	5       1     msg_type
//	6       2     flags
//	8       4     length     (payload length, little-endian)
//	12      8     sequence   (little-endian)
//	20      8     timestamp  (unix micros, little-endian)
//	28      4     checksum   (CRC32 IEEE over the payload)
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	Magic      uint32 = 0x55545042
	Version    uint8  = 1
	HeaderSize        = 32
	// MaxPayloadSize bounds a single frame's payload to guard against
	// a corrupt or hostile length field driving an unbounded allocation.
	MaxPayloadSize = 64 << 20
)

// MessageType identifies the kind of frame.
type MessageType uint8

const (
	MessageData         MessageType = 0x01
	MessageHeartbeat     MessageType = 0x02
	MessageAck           MessageType = 0x03
	MessageError         MessageType = 0x04
	MessageBenchmark     MessageType = 0x05
	MessageSetup         MessageType = 0x10
	MessageFileHeader    MessageType = 0x11
	MessageFileData      MessageType = 0x12
	MessageFileComplete  MessageType = 0x13
	MessageNak           MessageType = 0x14
	MessageFlowControl   MessageType = 0x15
)

func (t MessageType) String() string {
	switch t {
	case MessageData:
		return "DATA"
	case MessageHeartbeat:
		return "HEARTBEAT"
	case MessageAck:
		return "ACK"
	case MessageError:
		return "ERROR"
	case MessageBenchmark:
		return "BENCHMARK"
	case MessageSetup:
		return "SETUP"
	case MessageFileHeader:
		return "FILE_HEADER"
	case MessageFileData:
		return "FILE_DATA"
	case MessageFileComplete:
		return "FILE_COMPLETE"
	case MessageNak:
		return "NAK"
	case MessageFlowControl:
		return "FLOW_CONTROL"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// Flags are frame-level bits, currently unused by any message type but
// reserved for future fragmentation/compression signaling.
type Flags uint16

// Header is the fixed 32-byte frame header.
type Header struct {
	Magic     uint32
	Version   uint8
	Type      MessageType
	Flags     Flags
	Length    uint32
	Sequence  uint64
	Timestamp int64
	Checksum  uint32
}

// Frame is a decoded header plus its payload. Payload borrows the
// caller's buffer; callers that need to retain a Frame past the
// lifetime of the decode buffer must call Frame.Clone.
type Frame struct {
	Header  Header
	Payload []byte
}

// Errors returned by Decode, matching the original protocol's decode
// error taxonomy.
var (
	ErrInvalidMagic      = fmt.Errorf("wire: invalid magic number")
	ErrUnsupportedVersion = fmt.Errorf("wire: unsupported protocol version")
	ErrPayloadTooLarge    = fmt.Errorf("wire: payload exceeds maximum size")
	ErrInsufficientData   = fmt.Errorf("wire: insufficient data for frame")
	ErrChecksumMismatch   = fmt.Errorf("wire: checksum mismatch")
)

// Encode serializes a frame (header + payload) into a new byte slice.
// Sequence and Timestamp are taken from Header as set by the caller;
// Length and Checksum are computed from payload.
func Encode(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, h, payload)
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// EncodeInto writes header+payload into dst, which must be at least
// HeaderSize+len(payload) bytes, and returns the number of bytes written.
// Used by the shared-memory writer to avoid an intermediate allocation.
func EncodeInto(dst []byte, h Header, payload []byte) (int, error) {
	total := HeaderSize + len(payload)
	if len(payload) > MaxPayloadSize {
		return 0, ErrPayloadTooLarge
	}
	if len(dst) < total {
		return 0, ErrInsufficientData
	}
	putHeader(dst, h, payload)
	copy(dst[HeaderSize:total], payload)
	return total, nil
}

func putHeader(buf []byte, h Header, payload []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	buf[4] = Version
	buf[5] = uint8(h.Type)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Flags))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint64(buf[12:20], h.Sequence)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(h.Timestamp))
	binary.LittleEndian.PutUint32(buf[28:32], crc32.ChecksumIEEE(payload))
}

// DecodeHeader parses the fixed 32-byte header from buf without
// touching the payload.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrInsufficientData
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	version := buf[4]
	if version != Version {
		return Header{}, ErrUnsupportedVersion
	}
	length := binary.LittleEndian.Uint32(buf[8:12])
	if length > MaxPayloadSize {
		return Header{}, ErrPayloadTooLarge
	}
	return Header{
		Magic:     magic,
		Version:   version,
		Type:      MessageType(buf[5]),
		Flags:     Flags(binary.LittleEndian.Uint16(buf[6:8])),
		Length:    length,
		Sequence:  binary.LittleEndian.Uint64(buf[12:20]),
		Timestamp: int64(binary.LittleEndian.Uint64(buf[20:28])),
		Checksum:  binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}

// Decode parses a complete frame (header + payload) from buf. The
// returned Frame.Payload aliases buf; use Clone to detach it.
func Decode(buf []byte) (Frame, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Frame{}, err
	}
	end := HeaderSize + int(h.Length)
	if len(buf) < end {
		return Frame{}, ErrInsufficientData
	}
	payload := buf[HeaderSize:end]
	if crc32.ChecksumIEEE(payload) != h.Checksum {
		return Frame{}, ErrChecksumMismatch
	}
	return Frame{Header: h, Payload: payload}, nil
}

// Clone returns a Frame whose Payload is an independent copy, safe to
// retain after the source buffer is reused or discarded.
func (f Frame) Clone() Frame {
	p := make([]byte, len(f.Payload))
	copy(p, f.Payload)
	return Frame{Header: f.Header, Payload: p}
}

// Size returns the total wire size of the frame (header + payload).
func (f Frame) Size() int {
	return HeaderSize + len(f.Payload)
}
