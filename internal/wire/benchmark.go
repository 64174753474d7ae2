package wire

import "encoding/binary"

// BenchmarkPayload is the payload carried by a MessageBenchmark frame:
// an echo id, the timestamp the sender stamped it with, a data block,
// and a free-form metadata string, used by peers to measure round-trip
// throughput without touching the content store.
type BenchmarkPayload struct {
	ID        uint64
	Timestamp uint64
	Data      []byte
	Metadata  string
}

// EncodeBenchmark serializes a BenchmarkPayload as:
//
//	offset  size        field
//	0       8           id
//	8       8           timestamp
//	16      4           data_len
//	20      4           metadata_len
//	24      data_len     data
//	24+data_len  metadata_len  metadata (utf8)
func EncodeBenchmark(b BenchmarkPayload) []byte {
	meta := []byte(b.Metadata)
	buf := make([]byte, 24+len(b.Data)+len(meta))
	binary.LittleEndian.PutUint64(buf[0:8], b.ID)
	binary.LittleEndian.PutUint64(buf[8:16], b.Timestamp)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(b.Data)))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(meta)))
	copy(buf[24:24+len(b.Data)], b.Data)
	copy(buf[24+len(b.Data):], meta)
	return buf
}

// DecodeBenchmark parses a benchmark payload produced by EncodeBenchmark.
func DecodeBenchmark(payload []byte) (BenchmarkPayload, error) {
	if len(payload) < 24 {
		return BenchmarkPayload{}, ErrInsufficientData
	}
	dataLen := binary.LittleEndian.Uint32(payload[16:20])
	metaLen := binary.LittleEndian.Uint32(payload[20:24])
	want := 24 + int(dataLen) + int(metaLen)
	if len(payload) < want {
		return BenchmarkPayload{}, ErrInsufficientData
	}
	data := payload[24 : 24+dataLen]
	meta := payload[24+dataLen : want]
	return BenchmarkPayload{
		ID:        binary.LittleEndian.Uint64(payload[0:8]),
		Timestamp: binary.LittleEndian.Uint64(payload[8:16]),
		Data:      data,
		Metadata:  string(meta),
	}, nil
}
