package netsession

import (
	"encoding/binary"
	"fmt"

	"github.com/librorum/vdfs/internal/wire"
)

// SetupMessage negotiates a transfer before any FileData frames flow,
// naming the term geometry both sides will use for the stream. Both
// sides zero TermOffset at setup.
type SetupMessage struct {
	TermOffset    uint32
	SessionID     uint32
	StreamID      uint32
	InitialTermID uint32
	ActiveTermID  uint32
	TermLength    uint32
	MTU           uint32
	TTL           uint32
}

const setupPayloadSize = 8 * 4

// StatusMessage reports receiver-side progress as a flow-control
// window; Reserved is carried across the wire for alignment with
// future use and is always zero today.
type StatusMessage struct {
	TermID   uint32
	Window   uint32
	Reserved uint32
}

const statusPayloadSize = 3 * 4

// NakMessage carries a set of missing chunk indices (compressed with
// RangeCompressor) for the sender to retransmit.
type NakMessage struct {
	SessionID     uint32
	MissingRanges string
}

// ErrorMessage carries a human-readable failure reason for the peer.
type ErrorMessage struct {
	SessionID uint32
	Reason    string
}

// FileHeaderMessage announces the file a Setup session will carry:
// its content-addressed identity, name, size, and chunk layout.
type FileHeaderMessage struct {
	FileID     string
	FileName   string
	FileSize   int64
	ChunkSize  int64
	ChunkCount int64
	MerkleRoot string
}

// SendSetup encodes and sends a SetupMessage as a MessageSetup frame.
func (s *Session) SendSetup(m SetupMessage) (uint64, error) {
	return s.Send(wire.Header{Type: wire.MessageSetup}, encodeSetup(m))
}

// SendStatus encodes and sends a StatusMessage as a MessageAck frame.
func (s *Session) SendStatus(m StatusMessage) (uint64, error) {
	return s.Send(wire.Header{Type: wire.MessageAck}, encodeStatus(m))
}

// SendNak encodes and sends a NakMessage as a MessageNak frame.
func (s *Session) SendNak(m NakMessage) (uint64, error) {
	return s.Send(wire.Header{Type: wire.MessageNak}, encodeSessionString(m.SessionID, m.MissingRanges))
}

// SendError encodes and sends an ErrorMessage as a MessageError frame.
func (s *Session) SendError(m ErrorMessage) (uint64, error) {
	return s.Send(wire.Header{Type: wire.MessageError}, encodeSessionString(m.SessionID, m.Reason))
}

// SendFileHeader encodes and sends a FileHeaderMessage as a
// MessageFileHeader frame.
func (s *Session) SendFileHeader(m FileHeaderMessage) (uint64, error) {
	return s.Send(wire.Header{Type: wire.MessageFileHeader}, encodeFileHeader(m))
}

// encodeSetup serializes a SetupMessage to its 32-byte bit-exact
// payload: term_offset:u32 | session_id:u32 | stream_id:u32 |
// initial_term_id:u32 | active_term_id:u32 | term_length:u32 |
// mtu:u32 | ttl:u32.
func encodeSetup(m SetupMessage) []byte {
	buf := make([]byte, setupPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.TermOffset)
	binary.LittleEndian.PutUint32(buf[4:8], m.SessionID)
	binary.LittleEndian.PutUint32(buf[8:12], m.StreamID)
	binary.LittleEndian.PutUint32(buf[12:16], m.InitialTermID)
	binary.LittleEndian.PutUint32(buf[16:20], m.ActiveTermID)
	binary.LittleEndian.PutUint32(buf[20:24], m.TermLength)
	binary.LittleEndian.PutUint32(buf[24:28], m.MTU)
	binary.LittleEndian.PutUint32(buf[28:32], m.TTL)
	return buf
}

func decodeSetup(payload []byte) (SetupMessage, error) {
	if len(payload) < setupPayloadSize {
		return SetupMessage{}, wire.ErrInsufficientData
	}
	return SetupMessage{
		TermOffset:    binary.LittleEndian.Uint32(payload[0:4]),
		SessionID:     binary.LittleEndian.Uint32(payload[4:8]),
		StreamID:      binary.LittleEndian.Uint32(payload[8:12]),
		InitialTermID: binary.LittleEndian.Uint32(payload[12:16]),
		ActiveTermID:  binary.LittleEndian.Uint32(payload[16:20]),
		TermLength:    binary.LittleEndian.Uint32(payload[20:24]),
		MTU:           binary.LittleEndian.Uint32(payload[24:28]),
		TTL:           binary.LittleEndian.Uint32(payload[28:32]),
	}, nil
}

// encodeStatus serializes a StatusMessage to its 12-byte bit-exact
// payload: term_id:u32 | window:u32 | reserved:u32.
func encodeStatus(m StatusMessage) []byte {
	buf := make([]byte, statusPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.TermID)
	binary.LittleEndian.PutUint32(buf[4:8], m.Window)
	binary.LittleEndian.PutUint32(buf[8:12], m.Reserved)
	return buf
}

func decodeStatus(payload []byte) (StatusMessage, error) {
	if len(payload) < statusPayloadSize {
		return StatusMessage{}, wire.ErrInsufficientData
	}
	return StatusMessage{
		TermID:   binary.LittleEndian.Uint32(payload[0:4]),
		Window:   binary.LittleEndian.Uint32(payload[4:8]),
		Reserved: binary.LittleEndian.Uint32(payload[8:12]),
	}, nil
}

// encodeSessionString serializes a session id followed by a
// length-prefixed UTF-8 string, the shape shared by Nak and Error
// payloads: session_id:u32 | len:u32 | utf8[len].
func encodeSessionString(sessionID uint32, s string) []byte {
	raw := []byte(s)
	buf := make([]byte, 8+len(raw))
	binary.LittleEndian.PutUint32(buf[0:4], sessionID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(raw)))
	copy(buf[8:], raw)
	return buf
}

func decodeSessionString(payload []byte) (uint32, string, error) {
	if len(payload) < 8 {
		return 0, "", wire.ErrInsufficientData
	}
	sessionID := binary.LittleEndian.Uint32(payload[0:4])
	n := binary.LittleEndian.Uint32(payload[4:8])
	if len(payload) < 8+int(n) {
		return 0, "", wire.ErrInsufficientData
	}
	return sessionID, string(payload[8 : 8+n]), nil
}

// encodeFileHeader serializes a FileHeaderMessage as a run of
// length-prefixed UTF-8 strings and fixed-width little-endian
// integers: id, name, size, chunk size, chunk count, Merkle root.
func encodeFileHeader(m FileHeaderMessage) []byte {
	id := []byte(m.FileID)
	name := []byte(m.FileName)
	root := []byte(m.MerkleRoot)

	buf := make([]byte, 4+len(id)+4+len(name)+8+8+8+4+len(root))
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(id)))
	off += 4
	off += copy(buf[off:], id)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(name)))
	off += 4
	off += copy(buf[off:], name)
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.FileSize))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.ChunkSize))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.ChunkCount))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(root)))
	off += 4
	off += copy(buf[off:], root)
	return buf
}

func decodeFileHeader(payload []byte) (FileHeaderMessage, error) {
	var m FileHeaderMessage
	off := 0
	readString := func() (string, error) {
		if len(payload) < off+4 {
			return "", wire.ErrInsufficientData
		}
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if len(payload) < off+n {
			return "", wire.ErrInsufficientData
		}
		s := string(payload[off : off+n])
		off += n
		return s, nil
	}

	var err error
	if m.FileID, err = readString(); err != nil {
		return FileHeaderMessage{}, err
	}
	if m.FileName, err = readString(); err != nil {
		return FileHeaderMessage{}, err
	}
	if len(payload) < off+24 {
		return FileHeaderMessage{}, wire.ErrInsufficientData
	}
	m.FileSize = int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	m.ChunkSize = int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	m.ChunkCount = int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	if m.MerkleRoot, err = readString(); err != nil {
		return FileHeaderMessage{}, err
	}
	return m, nil
}

// DecodeSetup parses a MessageSetup frame's payload.
func DecodeSetup(f wire.Frame) (SetupMessage, error) {
	if f.Header.Type != wire.MessageSetup {
		return SetupMessage{}, fmt.Errorf("netsession: expected SETUP frame, got %s", f.Header.Type)
	}
	return decodeSetup(f.Payload)
}

// DecodeStatus parses a MessageAck frame's payload.
func DecodeStatus(f wire.Frame) (StatusMessage, error) {
	if f.Header.Type != wire.MessageAck {
		return StatusMessage{}, fmt.Errorf("netsession: expected ACK frame, got %s", f.Header.Type)
	}
	return decodeStatus(f.Payload)
}

// DecodeNak parses a MessageNak frame's payload.
func DecodeNak(f wire.Frame) (NakMessage, error) {
	if f.Header.Type != wire.MessageNak {
		return NakMessage{}, fmt.Errorf("netsession: expected NAK frame, got %s", f.Header.Type)
	}
	sessionID, ranges, err := decodeSessionString(f.Payload)
	if err != nil {
		return NakMessage{}, err
	}
	return NakMessage{SessionID: sessionID, MissingRanges: ranges}, nil
}

// DecodeError parses a MessageError frame's payload.
func DecodeError(f wire.Frame) (ErrorMessage, error) {
	if f.Header.Type != wire.MessageError {
		return ErrorMessage{}, fmt.Errorf("netsession: expected ERROR frame, got %s", f.Header.Type)
	}
	sessionID, reason, err := decodeSessionString(f.Payload)
	if err != nil {
		return ErrorMessage{}, err
	}
	return ErrorMessage{SessionID: sessionID, Reason: reason}, nil
}

// DecodeFileHeader parses a MessageFileHeader frame's payload.
func DecodeFileHeader(f wire.Frame) (FileHeaderMessage, error) {
	if f.Header.Type != wire.MessageFileHeader {
		return FileHeaderMessage{}, fmt.Errorf("netsession: expected FILE_HEADER frame, got %s", f.Header.Type)
	}
	return decodeFileHeader(f.Payload)
}
