package consistency

import (
	"fmt"

	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/fec"
)

// ShardSource fetches one Reed-Solomon encoded shard for a chunk from
// wherever it currently lives — a peer replica, a cache tier, or
// (ok=false) nowhere reachable.
type ShardSource func(id chunkstore.ChunkID, shardIndex int) (data []byte, ok bool)

// FECRepairer reconstructs chunk bytes from shards scattered across a
// file's replica set, for MissingChunkMetadata and ChecksumMismatch
// issues where no single peer holds a clean copy but enough shards
// survive collectively to rebuild one. The adaptive policy decides
// whether FEC repair is worth attempting at all and at what k/r.
type FECRepairer struct {
	policy *fec.AdaptivePolicy
	source ShardSource
	store  *chunkstore.Store
}

// NewFECRepairer builds a repairer using policy to size k/r and
// source to pull individual shards on demand.
func NewFECRepairer(policy *fec.AdaptivePolicy, source ShardSource, store *chunkstore.Store) *FECRepairer {
	return &FECRepairer{policy: policy, source: source, store: store}
}

// Reconstruct rebuilds id's bytes from available shards and, once the
// reassembled content hashes back to id, writes it into the content
// store so ordinary reads no longer need FEC at all.
func (r *FECRepairer) Reconstruct(id chunkstore.ChunkID) ([]byte, error) {
	enabled, k, n := r.policy.GetParameters()
	if !enabled {
		return nil, fmt.Errorf("consistency: FEC repair disabled for %s", id)
	}

	decoder, err := fec.NewDecoder(k, n)
	if err != nil {
		return nil, err
	}

	shards := make([][]byte, k+n)
	present := 0
	for i := range shards {
		if data, ok := r.source(id, i); ok {
			shards[i] = data
			present++
		}
	}
	if present < k {
		return nil, fmt.Errorf("consistency: only %d of %d shards available for %s, need at least %d", present, k+n, id, k)
	}

	if err := decoder.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("consistency: FEC reconstruct %s: %w", id, err)
	}

	var out []byte
	for _, s := range shards[:k] {
		out = append(out, s...)
	}

	rebuilt := chunkstore.ComputeChunkID(out)
	if rebuilt != id {
		return nil, fmt.Errorf("consistency: reconstructed content for %s hashes to %s, discarding", id, rebuilt)
	}

	if r.store != nil {
		if err := r.store.Put(id, out); err != nil {
			return out, fmt.Errorf("consistency: persist reconstructed chunk %s: %w", id, err)
		}
	}
	return out, nil
}
