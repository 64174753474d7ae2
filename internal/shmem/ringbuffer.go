package shmem

import (
	"sync/atomic"
	"unsafe"

	"github.com/librorum/vdfs/internal/wire"
)

// controlBlockSize is the size of the cache-line-aligned control block
// kept at the front of the region. Everything after this offset is the
// ring buffer's data area.
const controlBlockSize = 64

// controlMagic marks a region whose control block has been
// initialized by an owner, distinguishing it from a freshly truncated
// (all-zero) file a peer might race to attach to.
const controlMagic uint32 = 0x53484d32 // "SHM2"

const controlVersion uint8 = 1

// Liveness values for the control block's server_status/client_status
// fields.
const (
	StatusUnknown uint32 = 0
	StatusOnline  uint32 = 1
	StatusOffline uint32 = 2
)

// RingBuffer is a lock-free single-producer/single-consumer byte ring
// laid out over a Region's 64-byte control block followed by a data
// area. One side calls TryWrite, the other TryRead; using it from more
// than one writer or more than one reader concurrently is undefined,
// matching the SPSC contract it implements.
type RingBuffer struct {
	region *Region
	data   []byte // ring data area, i.e. region.Bytes()[controlBlockSize:]

	magic        *uint32
	version      *uint8
	capacity     *uint64
	writePos     *uint64
	readPos      *uint64
	available    *uint64
	serverStatus *uint32
	clientStatus *uint32
}

// ErrFull is returned by TryWrite when the ring does not have enough
// free space for the frame (a frame may wrap around the end).
var ErrFull = wireErr("shmem: ring buffer full")

// ErrEmpty is returned by TryRead when no complete frame is available.
var ErrEmpty = wireErr("shmem: ring buffer empty")

type wireErr string

func (e wireErr) Error() string { return string(e) }

// NewRingBuffer builds a RingBuffer over region's mapped memory. The
// first call on a freshly created region should pass init=true to
// write the control block's magic, version, and capacity and zero its
// position counters; peers attaching to an already-initialized region
// pass init=false.
func NewRingBuffer(region *Region, init bool) *RingBuffer {
	buf := region.Bytes()
	rb := &RingBuffer{
		region:       region,
		data:         buf[controlBlockSize:],
		magic:        (*uint32)(unsafe.Pointer(&buf[0])),
		version:      (*uint8)(unsafe.Pointer(&buf[4])),
		capacity:     (*uint64)(unsafe.Pointer(&buf[8])),
		writePos:     (*uint64)(unsafe.Pointer(&buf[16])),
		readPos:      (*uint64)(unsafe.Pointer(&buf[24])),
		available:    (*uint64)(unsafe.Pointer(&buf[32])),
		serverStatus: (*uint32)(unsafe.Pointer(&buf[40])),
		clientStatus: (*uint32)(unsafe.Pointer(&buf[44])),
	}
	if init {
		atomic.StoreUint32(rb.magic, controlMagic)
		*rb.version = controlVersion
		atomic.StoreUint64(rb.capacity, uint64(len(buf)-controlBlockSize))
		atomic.StoreUint64(rb.writePos, 0)
		atomic.StoreUint64(rb.readPos, 0)
		atomic.StoreUint64(rb.available, 0)
		atomic.StoreUint32(rb.serverStatus, StatusOnline)
		atomic.StoreUint32(rb.clientStatus, StatusUnknown)
	}
	return rb
}

// Capacity returns the usable ring data size in bytes, read from the
// control block rather than assumed from the region's mapped length,
// so a peer attaching to a region it did not size itself agrees with
// the owner on where the data area ends.
func (rb *RingBuffer) Capacity() uint64 { return atomic.LoadUint64(rb.capacity) }

// Available returns the number of bytes currently queued for reading.
func (rb *RingBuffer) Available() uint64 {
	return atomic.LoadUint64(rb.available)
}

// Free returns the number of bytes currently free for writing.
func (rb *RingBuffer) Free() uint64 {
	return rb.Capacity() - atomic.LoadUint64(rb.available)
}

// SetServerStatus updates the control block's server liveness flag.
func (rb *RingBuffer) SetServerStatus(status uint32) { atomic.StoreUint32(rb.serverStatus, status) }

// SetClientStatus updates the control block's client liveness flag.
func (rb *RingBuffer) SetClientStatus(status uint32) { atomic.StoreUint32(rb.clientStatus, status) }

// ServerStatus returns the control block's server liveness flag.
func (rb *RingBuffer) ServerStatus() uint32 { return atomic.LoadUint32(rb.serverStatus) }

// ClientStatus returns the control block's client liveness flag.
func (rb *RingBuffer) ClientStatus() uint32 { return atomic.LoadUint32(rb.clientStatus) }

// Initialized reports whether the region's control block carries the
// expected magic and version, distinguishing a region an owner has set
// up from one a peer raced to attach to before Create finished.
func (rb *RingBuffer) Initialized() bool {
	return atomic.LoadUint32(rb.magic) == controlMagic && *rb.version == controlVersion
}

// TryWrite encodes header+payload as a wire frame and writes it into
// the ring if there is room, advancing the write position and
// available counter. It returns ErrFull without partially writing
// anything if the frame does not fit. Entries are framed directly by
// the wire frame's own 32-byte header — there is no additional
// ring-level length prefix.
func (rb *RingBuffer) TryWrite(h wire.Header, payload []byte) error {
	entryLen := uint64(wire.HeaderSize + len(payload))
	capacity := rb.Capacity()
	if entryLen > capacity {
		return ErrFull
	}
	if rb.Free() < entryLen {
		return ErrFull
	}

	frame := make([]byte, entryLen)
	if _, err := wire.EncodeInto(frame, h, payload); err != nil {
		return err
	}

	pos := atomic.LoadUint64(rb.writePos) // Acquire
	rb.writeAt(pos, frame, capacity)

	newPos := (pos + entryLen) % capacity
	atomic.StoreUint64(rb.writePos, newPos)  // Release
	atomic.AddUint64(rb.available, entryLen) // SeqCst
	return nil
}

// TryRead reads and decodes the next queued frame, advancing the read
// position and available counter. It returns ErrEmpty if no frame is
// currently queued. The 32-byte wire header is read (and may itself
// wrap) before the payload, to learn the payload length without any
// ring-level framing on top of it.
func (rb *RingBuffer) TryRead() (wire.Frame, error) {
	avail := atomic.LoadUint64(rb.available)
	if avail < wire.HeaderSize {
		return wire.Frame{}, ErrEmpty
	}

	capacity := rb.Capacity()
	pos := atomic.LoadUint64(rb.readPos)
	headerBuf := make([]byte, wire.HeaderSize)
	rb.readAt(pos, headerBuf, capacity)
	h, err := wire.DecodeHeader(headerBuf)
	if err != nil {
		return wire.Frame{}, err
	}

	entryLen := uint64(wire.HeaderSize) + uint64(h.Length)
	if avail < entryLen {
		return wire.Frame{}, ErrEmpty
	}

	frame := make([]byte, entryLen)
	rb.readAt(pos, frame, capacity)
	f, err := wire.Decode(frame)
	if err != nil {
		return wire.Frame{}, err
	}

	newPos := (pos + entryLen) % capacity
	atomic.StoreUint64(rb.readPos, newPos)         // Release
	atomic.AddUint64(rb.available, ^(entryLen - 1)) // SeqCst subtract
	return f.Clone(), nil
}

// writeAt copies src into the ring data area starting at byte offset
// pos, wrapping around the end of the buffer as needed.
func (rb *RingBuffer) writeAt(pos uint64, src []byte, capacity uint64) {
	first := capacity - pos
	if uint64(len(src)) <= first {
		copy(rb.data[pos:], src)
		return
	}
	copy(rb.data[pos:], src[:first])
	copy(rb.data[0:], src[first:])
}

// readAt copies from the ring data area starting at byte offset pos
// into dst, wrapping around the end of the buffer as needed.
func (rb *RingBuffer) readAt(pos uint64, dst []byte, capacity uint64) {
	first := capacity - pos
	if uint64(len(dst)) <= first {
		copy(dst, rb.data[pos:pos+uint64(len(dst))])
		return
	}
	copy(dst, rb.data[pos:capacity])
	copy(dst[first:], rb.data[0:uint64(len(dst))-first])
}
