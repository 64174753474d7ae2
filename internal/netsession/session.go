// Package netsession implements the network leg of the hybrid
// transport: a reliable, ordered TCP stream carrying length-prefixed
// wire frames, used whenever two peers are not eligible for the
// shared-memory fast path.
package netsession

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/librorum/vdfs/internal/wire"
)

// Config tunes dial/accept and retransmit behavior.
type Config struct {
	DialTimeout      time.Duration
	MaxRetries       int
	RetransmitTimeout time.Duration
}

// DefaultConfig mirrors the defaults named in the configuration
// surface: a 3-retry retransmit budget and a 5s per-attempt timeout.
func DefaultConfig() Config {
	return Config{
		DialTimeout:       10 * time.Second,
		MaxRetries:        3,
		RetransmitTimeout: 5 * time.Second,
	}
}

// Session wraps a TCP connection and exchanges length-prefixed wire
// frames over it. One goroutine should own writes and one should own
// reads; Send and Receive are each independently safe to call from a
// single dedicated goroutine per direction but are not safe to call
// concurrently with themselves.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    Config

	writeMu sync.Mutex
	seq     uint64

	pendingMu sync.Mutex
	pending   map[uint64]*pendingFrame
}

type pendingFrame struct {
	header  wire.Header
	payload []byte
	sentAt  time.Time
	retries int
}

// Dial opens a new Session to addr.
func Dial(ctx context.Context, addr string, cfg Config) (*Session, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netsession: dial %s: %w", addr, err)
	}
	return newSession(conn, cfg), nil
}

func newSession(conn net.Conn, cfg Config) *Session {
	return &Session{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 64<<10),
		cfg:     cfg,
		pending: make(map[uint64]*pendingFrame),
	}
}

// RemoteAddr returns the peer address of the underlying connection.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Send writes a single frame to the stream, assigning it the next
// sequence number and timestamp. Frames of type Data/Setup/FileHeader/FileData
// are tracked as pending until acknowledged, so a subsequent Nak can
// trigger Retransmit.
func (s *Session) Send(h wire.Header, payload []byte) (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.seq++
	h.Sequence = s.seq
	h.Timestamp = time.Now().UnixMicro()

	buf, err := wire.Encode(h, payload)
	if err != nil {
		return 0, err
	}
	if _, err := s.conn.Write(buf); err != nil {
		return 0, fmt.Errorf("netsession: write: %w", err)
	}

	if tracksDelivery(h.Type) {
		s.pendingMu.Lock()
		s.pending[h.Sequence] = &pendingFrame{header: h, payload: payload, sentAt: time.Now()}
		s.pendingMu.Unlock()
	}
	return h.Sequence, nil
}

func tracksDelivery(t wire.MessageType) bool {
	switch t {
	case wire.MessageData, wire.MessageSetup, wire.MessageFileHeader, wire.MessageFileData:
		return true
	default:
		return false
	}
}

// Receive blocks until the next complete frame arrives on the stream.
func (s *Session) Receive() (wire.Frame, error) {
	headerBuf := make([]byte, wire.HeaderSize)
	if _, err := readFull(s.reader, headerBuf); err != nil {
		return wire.Frame{}, fmt.Errorf("netsession: read header: %w", err)
	}
	h, err := wire.DecodeHeader(headerBuf)
	if err != nil {
		return wire.Frame{}, err
	}
	full := make([]byte, wire.HeaderSize+int(h.Length))
	copy(full, headerBuf)
	if _, err := readFull(s.reader, full[wire.HeaderSize:]); err != nil {
		return wire.Frame{}, fmt.Errorf("netsession: read payload: %w", err)
	}
	return wire.Decode(full)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Ack records that the peer has acknowledged sequence, clearing it
// from the retransmit set.
func (s *Session) Ack(sequence uint64) {
	s.pendingMu.Lock()
	delete(s.pending, sequence)
	s.pendingMu.Unlock()
}

// Nak retransmits the frame with the given sequence number if it is
// still pending and under the configured retry budget, returning
// ErrRetriesExhausted once MaxRetries has been reached.
func (s *Session) Nak(sequence uint64) error {
	s.pendingMu.Lock()
	pf, ok := s.pending[sequence]
	s.pendingMu.Unlock()
	if !ok {
		return nil // already acked or unknown; nothing to do
	}
	if pf.retries >= s.cfg.MaxRetries {
		return ErrRetriesExhausted
	}

	s.writeMu.Lock()
	buf, err := wire.Encode(pf.header, pf.payload)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	if _, err := s.conn.Write(buf); err != nil {
		return fmt.Errorf("netsession: retransmit: %w", err)
	}

	s.pendingMu.Lock()
	pf.retries++
	pf.sentAt = time.Now()
	s.pendingMu.Unlock()
	return nil
}

// SweepExpired retransmits any pending frame older than
// RetransmitTimeout, returning the sequence numbers that exhausted
// their retry budget (the caller should treat the session as failed
// for those transfers).
func (s *Session) SweepExpired() []uint64 {
	now := time.Now()
	var expired []uint64

	s.pendingMu.Lock()
	var due []uint64
	for seq, pf := range s.pending {
		if now.Sub(pf.sentAt) >= s.cfg.RetransmitTimeout {
			due = append(due, seq)
		}
	}
	s.pendingMu.Unlock()

	for _, seq := range due {
		if err := s.Nak(seq); err == ErrRetriesExhausted {
			expired = append(expired, seq)
			s.pendingMu.Lock()
			delete(s.pending, seq)
			s.pendingMu.Unlock()
		}
	}
	return expired
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

// ErrRetriesExhausted is returned once a frame has been retransmitted
// MaxRetries times without acknowledgment.
var ErrRetriesExhausted = fmt.Errorf("netsession: retries exhausted")
