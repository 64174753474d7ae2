package consistency

import (
	"fmt"

	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/metadata"
)

// Repair attempts an eager, safe fix for issue, mutating meta in
// place. It returns whether a fix was applied; issues with no safe
// automatic fix (e.g. InvalidReplicaInfo, DuplicateFileId) are simply
// reported back to the caller as unresolved.
func (c *Checker) Repair(issue Issue) (bool, error) {
	switch issue.Type {
	case FileSizeMismatch:
		return c.repairFileSize(issue)
	case OrphanedChunkMetadata:
		return c.repairOrphan(issue)
	case MissingChunkMetadata, ChecksumMismatch:
		return c.repairViaFEC(issue)
	default:
		return false, nil
	}
}

// repairViaFEC attempts to reconstruct a missing or corrupt chunk from
// shards spread across its replica set, when a FECRepairer has been
// attached. The issue's file path selects which chunks to check;
// issues without a path that resolves to a FileInfo are not repaired.
func (c *Checker) repairViaFEC(issue Issue) (bool, error) {
	if c.fec == nil {
		return false, nil
	}
	info, err := c.meta.GetFileInfo(issue.Path)
	if err != nil {
		return false, nil
	}
	chunks, err := c.meta.GetChunkMapping(info.ID)
	if err != nil {
		return false, nil
	}
	repaired := false
	for _, ch := range chunks {
		if c.store != nil && c.store.Exists(ch.ID) {
			continue
		}
		if _, err := c.fec.Reconstruct(ch.ID); err != nil {
			continue
		}
		repaired = true
	}
	return repaired, nil
}

// repairFileSize recomputes FileInfo.Size from the chunk list's
// summed lengths, the one correction the checker is trusted to make
// without operator involvement.
func (c *Checker) repairFileSize(issue Issue) (bool, error) {
	info, err := c.meta.GetFileInfo(issue.Path)
	if err != nil {
		return false, err
	}
	chunks, err := c.meta.GetChunkMapping(info.ID)
	if err != nil {
		return false, err
	}
	var total int64
	for _, ch := range chunks {
		total += int64(ch.Length)
	}
	info.Size = total
	if err := c.meta.SetFileInfo(*info); err != nil {
		return false, fmt.Errorf("consistency: repair file size: %w", err)
	}
	return true, nil
}

// repairOrphan removes content-store bytes for a chunk no FileInfo
// references. The check that produced the issue already confirmed
// the orphan condition; this step just performs the deletion.
func (c *Checker) repairOrphan(issue Issue) (bool, error) {
	if c.store == nil || issue.Detail == "" {
		return false, nil
	}
	// SweepOrphans, the producer of OrphanedChunkMetadata issues,
	// carries the dangling chunk id in issue.Detail.
	if err := c.RepairOrphanChunk(chunkstore.ChunkID(issue.Detail)); err != nil {
		return false, err
	}
	return true, nil
}

// RepairOrphanChunk deletes chunk bytes that no FileInfo references.
// Called directly by an orphan sweep (which enumerates the content
// store rather than walking the metadata tree) rather than through
// Repair, since OrphanedChunkMetadata issues are discovered from the
// store side, not the per-file walk in CheckFile/CheckAll.
func (c *Checker) RepairOrphanChunk(id chunkstore.ChunkID) error {
	if c.store == nil {
		return nil
	}
	return c.store.Delete(id)
}
