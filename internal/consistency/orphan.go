package consistency

import "github.com/librorum/vdfs/internal/chunkstore"

// ReferencedSet reports which chunk IDs are currently referenced by
// any FileInfo, used to tell live chunks from orphans.
type ReferencedSet interface {
	IsReferenced(id chunkstore.ChunkID) bool
}

// SweepOrphans walks every chunk id known to the content store's
// presence index and reports (and optionally repairs) any that no
// FileInfo references. ids is provided by the caller since the
// content store itself does not expose a full key enumeration beyond
// its BoltDB index — see Store.GC for the analogous pattern.
func (c *Checker) SweepOrphans(ids []chunkstore.ChunkID, referenced ReferencedSet, repair bool) ([]Issue, error) {
	var issues []Issue
	for _, id := range ids {
		if referenced.IsReferenced(id) {
			continue
		}
		issues = append(issues, Issue{Type: OrphanedChunkMetadata, Detail: string(id)})
		if repair {
			if err := c.RepairOrphanChunk(id); err != nil {
				return issues, err
			}
		}
	}
	return issues, nil
}
