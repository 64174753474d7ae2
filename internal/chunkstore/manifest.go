package chunkstore

import (
	"time"

	"github.com/google/uuid"
)

// ManifestHint optionally nudges chunking policy for a file without
// changing the wire contract — see the DOMAIN STACK notes on
// domain-aware profiles. Nil/zero means "use defaults".
type ManifestHint struct {
	PreferredChunkSize int `json:"preferred_chunk_size,omitempty"`
	ReplicationFactor  int `json:"replication_factor,omitempty"`
}

// Manifest describes a file's chunk layout and content identity,
// enough for a receiver to request missing chunks and verify what it
// assembled.
type Manifest struct {
	SessionID  string            `json:"session_id"`
	FileName   string            `json:"file_name"`
	FileSize   int64             `json:"file_size"`
	ChunkSize  int               `json:"chunk_size"`
	ChunkCount int               `json:"chunk_count"`
	HashAlgo   string            `json:"hash_algo"`
	Chunks     []ChunkDescriptor `json:"chunks"`
	MerkleRoot string            `json:"merkle_root"`
	CreatedAt  time.Time         `json:"created_at"`
	Hint       *ManifestHint     `json:"hint,omitempty"`
}

// BuildManifest chunks filePath and returns its full Manifest,
// including a Merkle root over the chunk IDs for whole-file integrity
// checks independent of per-chunk verification.
func BuildManifest(filePath string, opts Options, hint *ManifestHint) (*Manifest, [][]byte, error) {
	if hint != nil && hint.PreferredChunkSize > 0 {
		opts.ChunkSize = hint.PreferredChunkSize
	}
	if opts.ChunkSize <= 0 {
		opts = DefaultOptions()
	}

	descriptors, chunks, err := SplitFile(filePath, opts)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]ChunkID, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.ID
	}
	root, err := ComputeMerkleRoot(ids)
	if err != nil {
		return nil, nil, err
	}

	var size int64
	for _, c := range chunks {
		size += int64(len(c))
	}

	return &Manifest{
		SessionID:  uuid.New().String(),
		FileSize:   size,
		ChunkSize:  opts.ChunkSize,
		ChunkCount: len(descriptors),
		HashAlgo:   "SHA-256",
		Chunks:     descriptors,
		MerkleRoot: root,
		CreatedAt:  time.Now(),
		Hint:       hint,
	}, chunks, nil
}
