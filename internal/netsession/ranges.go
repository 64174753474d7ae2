package netsession

import (
	"bytes"
	"fmt"
)

// RangeCompressor turns a sorted slice of chunk indices into compact
// range notation ("3-7,10,15-20") for NakMessage.MissingRanges, and
// back, so a Nak covering most of a large file doesn't need one
// integer per missing chunk on the wire.
type RangeCompressor struct{}

// Compress converts a sorted slice of chunk indices to range notation.
func (c RangeCompressor) Compress(chunks []int64) string {
	if len(chunks) == 0 {
		return ""
	}

	var buf bytes.Buffer
	start := chunks[0]
	prev := chunks[0]

	flush := func(a, b int64) {
		if a == b {
			fmt.Fprintf(&buf, "%d,", a)
		} else {
			fmt.Fprintf(&buf, "%d-%d,", a, b)
		}
	}

	for i := 1; i < len(chunks); i++ {
		curr := chunks[i]
		if curr == prev+1 {
			prev = curr
			continue
		}
		flush(start, prev)
		start, prev = curr, curr
	}
	flush(start, prev)

	return buf.String()[:buf.Len()-1] // trim trailing comma
}

// Decompress parses range notation back into an index slice.
func (c RangeCompressor) Decompress(rangeStr string) ([]int64, error) {
	if rangeStr == "" {
		return nil, nil
	}

	var chunks []int64
	for _, r := range bytes.Split([]byte(rangeStr), []byte(",")) {
		if len(r) == 0 {
			continue
		}
		parts := bytes.Split(r, []byte("-"))
		switch len(parts) {
		case 1:
			var idx int64
			if _, err := fmt.Sscanf(string(parts[0]), "%d", &idx); err != nil {
				return nil, fmt.Errorf("netsession: invalid range element %q: %w", r, err)
			}
			chunks = append(chunks, idx)
		case 2:
			var start, end int64
			if _, err := fmt.Sscanf(string(parts[0]), "%d", &start); err != nil {
				return nil, fmt.Errorf("netsession: invalid range start %q: %w", r, err)
			}
			if _, err := fmt.Sscanf(string(parts[1]), "%d", &end); err != nil {
				return nil, fmt.Errorf("netsession: invalid range end %q: %w", r, err)
			}
			for i := start; i <= end; i++ {
				chunks = append(chunks, i)
			}
		default:
			return nil, fmt.Errorf("netsession: malformed range %q", r)
		}
	}
	return chunks, nil
}
