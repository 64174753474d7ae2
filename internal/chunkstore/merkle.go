package chunkstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ComputeMerkleRoot folds a file's ordered chunk IDs into a single
// root hash: pairwise BLAKE3 of concatenated children, bottom-up,
// duplicating a trailing odd element. Chunk identity itself stays on
// SHA-256 (content addressing); BLAKE3 here is purely an internal
// tree-combining step, chosen because it is the fastest hash already
// in the dependency graph for this kind of bulk non-content-addressed
// hashing.
func ComputeMerkleRoot(ids []ChunkID) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}

	level := make([][]byte, len(ids))
	for i, id := range ids {
		b, err := hex.DecodeString(string(id))
		if err != nil {
			return "", fmt.Errorf("chunkstore: decode chunk id %q: %w", id, err)
		}
		level[i] = b
	}

	for len(level) > 1 {
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			var combined []byte
			if i+1 < len(level) {
				combined = append(append([]byte{}, level[i]...), level[i+1]...)
			} else {
				combined = append(append([]byte{}, level[i]...), level[i]...)
			}
			h := blake3.New()
			h.Write(combined)
			next = append(next, h.Sum(nil))
		}
		level = next
	}

	return hex.EncodeToString(level[0]), nil
}
