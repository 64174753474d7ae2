package consistency

import (
	"testing"

	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/fec"
)

func TestFECRepairerReconstructsFromAvailableShards(t *testing.T) {
	const k, n = 4, 2
	shardSize := 8
	data := make([][]byte, k)
	for i := range data {
		data[i] = make([]byte, shardSize)
		for j := range data[i] {
			data[i][j] = byte(i*shardSize + j)
		}
	}

	enc, err := fec.NewEncoder(k, n)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	parity, err := enc.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	all := append(append([][]byte{}, data...), parity...)
	var full []byte
	for _, s := range data {
		full = append(full, s...)
	}
	id := chunkstore.ComputeChunkID(full)

	policy := fec.NewAdaptivePolicy(fec.PolicyConfig{
		EnableThreshold: 0, DisableThreshold: -1, MinObservation: 0,
		DefaultK: k, DefaultR: n, MaxR: n,
	})
	policy.SetEnabled(true)

	// Drop two shards (within the n=2 parity budget) to exercise
	// reconstruction rather than a pure pass-through.
	missing := map[int]bool{1: true, 4: true}
	source := func(cid chunkstore.ChunkID, idx int) ([]byte, bool) {
		if cid != id || missing[idx] {
			return nil, false
		}
		return all[idx], true
	}

	repairer := NewFECRepairer(policy, source, nil)
	out, err := repairer.Reconstruct(id)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if string(out) != string(full) {
		t.Fatalf("reconstructed content mismatch")
	}
}

func TestFECRepairerFailsWithTooFewShards(t *testing.T) {
	const k, n = 4, 2
	policy := fec.NewAdaptivePolicy(fec.PolicyConfig{
		EnableThreshold: 0, DisableThreshold: -1, MinObservation: 0,
		DefaultK: k, DefaultR: n, MaxR: n,
	})
	policy.SetEnabled(true)

	source := func(chunkstore.ChunkID, int) ([]byte, bool) { return nil, false }
	repairer := NewFECRepairer(policy, source, nil)

	if _, err := repairer.Reconstruct(chunkstore.ChunkID("deadbeef")); err == nil {
		t.Fatalf("expected error when no shards are available")
	}
}
