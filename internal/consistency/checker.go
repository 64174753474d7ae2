// Package consistency enumerates and repairs invariant violations
// between the metadata manager and the content store: missing or
// orphaned chunk metadata, size mismatches, broken chunk chains,
// stale FileId mappings, malformed checksums, duplicate FileIds, and
// unparseable replica entries.
package consistency

import (
	"encoding/hex"
	"fmt"

	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/metadata"
)

// IssueType names one of the eight detectable invariant violations.
type IssueType string

const (
	MissingChunkMetadata  IssueType = "MissingChunkMetadata"
	OrphanedChunkMetadata IssueType = "OrphanedChunkMetadata"
	FileSizeMismatch      IssueType = "FileSizeMismatch"
	BrokenChunkChain      IssueType = "BrokenChunkChain"
	InvalidFileIdMapping  IssueType = "InvalidFileIdMapping"
	ChecksumMismatch      IssueType = "ChecksumMismatch"
	DuplicateFileID       IssueType = "DuplicateFileId"
	InvalidReplicaInfo    IssueType = "InvalidReplicaInfo"
)

// Issue is one detected violation, naming the file path it concerns
// (when applicable) and a human-readable detail.
type Issue struct {
	Type   IssueType
	Path   string
	FileID metadata.FileID
	Detail string
}

// ReplicaParser validates a replica entry string as a well-formed
// NodeId; the discovery package's NodeID type satisfies this via its
// Valid method.
type ReplicaParser func(entry string) bool

// Checker walks the metadata manager's state (and, for presence
// checks, the content store) looking for the issues named above.
type Checker struct {
	meta  *metadata.Manager
	store *chunkstore.Store
	parse ReplicaParser
	fec   *FECRepairer
}

// New builds a Checker over meta and store. parseReplica may be nil,
// in which case InvalidReplicaInfo is never raised.
func New(meta *metadata.Manager, store *chunkstore.Store, parseReplica ReplicaParser) *Checker {
	return &Checker{meta: meta, store: store, parse: parseReplica}
}

// WithFECRepairer attaches a FECRepairer that Repair uses for
// MissingChunkMetadata and ChecksumMismatch issues; without one,
// those issues are left unrepaired.
func (c *Checker) WithFECRepairer(r *FECRepairer) *Checker {
	c.fec = r
	return c
}

// CheckFile runs every per-file and per-chunk check against one path,
// the mode used for "check on demand" after a transfer completes.
func (c *Checker) CheckFile(path string, replicas []string) []Issue {
	var issues []Issue

	info, err := c.meta.GetFileInfo(path)
	if err != nil {
		return issues
	}

	if real, rerr := c.meta.GetFileInfoByID(info.ID); rerr == nil && real.Path != path {
		issues = append(issues, Issue{Type: InvalidFileIdMapping, Path: path, FileID: info.ID,
			Detail: fmt.Sprintf("FileId resolves to %q, not %q", real.Path, path)})
	}

	chunks, err := c.meta.GetChunkMapping(info.ID)
	if err != nil {
		issues = append(issues, Issue{Type: MissingChunkMetadata, Path: path, FileID: info.ID,
			Detail: "no chunk mapping for file"})
		return issues
	}

	var total int64
	for i, ch := range chunks {
		total += int64(ch.Length)

		if ch.Length == 0 && i != len(chunks)-1 {
			issues = append(issues, Issue{Type: BrokenChunkChain, Path: path, FileID: info.ID,
				Detail: fmt.Sprintf("chunk %d has zero size but is not terminal", i)})
		}

		if !validChecksum(string(ch.ID)) {
			issues = append(issues, Issue{Type: ChecksumMismatch, Path: path, FileID: info.ID,
				Detail: fmt.Sprintf("chunk %d id %q is not a valid 64-char hex digest", i, ch.ID)})
			continue
		}

		if c.store != nil && !c.store.Exists(ch.ID) {
			issues = append(issues, Issue{Type: MissingChunkMetadata, Path: path, FileID: info.ID,
				Detail: fmt.Sprintf("chunk %d (%s) absent from content store", i, ch.ID)})
		}
	}

	if total != info.Size {
		issues = append(issues, Issue{Type: FileSizeMismatch, Path: path, FileID: info.ID,
			Detail: fmt.Sprintf("metadata size %d, sum of chunks %d", info.Size, total)})
	}

	if c.parse != nil {
		for _, r := range replicas {
			if !c.parse(r) {
				issues = append(issues, Issue{Type: InvalidReplicaInfo, Path: path, FileID: info.ID,
					Detail: fmt.Sprintf("replica entry %q does not parse as a NodeId", r)})
			}
		}
	}

	return issues
}

// CheckAll scans every file path under dir recursively (the root "/"
// for a full sweep), additionally checking for duplicate FileIds
// across the whole tree.
func (c *Checker) CheckAll(dir string, replicasFor func(path string) []string) []Issue {
	var issues []Issue
	seen := make(map[metadata.FileID]string)

	var walk func(d string)
	walk = func(d string) {
		entries, err := c.meta.ListDirectory(d)
		if err != nil {
			return
		}
		for _, e := range entries {
			full := joinPath(d, e.Name)
			if e.IsDir {
				walk(full)
				continue
			}
			if e.Info != nil {
				if prior, ok := seen[e.Info.ID]; ok {
					issues = append(issues, Issue{Type: DuplicateFileID, Path: full, FileID: e.Info.ID,
						Detail: fmt.Sprintf("also bound to %q", prior)})
				}
				seen[e.Info.ID] = full
			}
			var replicas []string
			if replicasFor != nil {
				replicas = replicasFor(full)
			}
			issues = append(issues, c.CheckFile(full, replicas)...)
		}
	}
	walk(dir)
	return issues
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func validChecksum(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
