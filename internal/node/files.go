package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/librorum/vdfs/internal/cache"
	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/engineering"
	"github.com/librorum/vdfs/internal/introspect"
	"github.com/librorum/vdfs/internal/media"
	"github.com/librorum/vdfs/internal/medical"
	"github.com/librorum/vdfs/internal/metadata"
	"github.com/librorum/vdfs/internal/permissions"
	"github.com/librorum/vdfs/internal/vpath"
)

// ErrNotMounted is returned by every file operation when the node has
// not been started yet.
var ErrNotMounted = errors.New("node: not mounted")

// anchor mirrors metadata.Manager's own root-anchoring: vpath.Normalize
// preserves a relative input as relative, but every path the node
// layer stores or reports back lives in the metadata tree rooted at
// "/", so callers here anchor right after normalizing.
func anchor(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func (n *Node) requireMounted() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.mounted {
		return ErrNotMounted
	}
	return nil
}

// CreateFile chunks data, stores it content-addressed, and records
// fresh metadata for path. It fails if path already exists — callers
// that want to overwrite call WriteFile instead.
func (n *Node) CreateFile(path string, data []byte) (*metadata.FileInfo, error) {
	if err := n.requireMounted(); err != nil {
		return nil, err
	}
	if n.meta.FileExists(path) {
		return nil, fmt.Errorf("node: create file: %s already exists", path)
	}
	return n.putFile(path, data, metadata.NewFileID())
}

// WriteFile replaces the bytes of an existing file, or creates it if
// absent, matching a normal filesystem's open-with-truncate semantics.
func (n *Node) WriteFile(path string, data []byte) (*metadata.FileInfo, error) {
	if err := n.requireMounted(); err != nil {
		return nil, err
	}
	id := metadata.NewFileID()
	if existing, err := n.meta.GetFileInfo(path); err == nil {
		id = existing.ID
	}
	return n.putFile(path, data, id)
}

func (n *Node) putFile(path string, data []byte, id metadata.FileID) (*metadata.FileInfo, error) {
	norm, err := vpath.Normalize(path)
	if err != nil {
		return nil, err
	}
	norm = anchor(norm)

	domain, data := n.classify(norm, data)

	mode := permissions.DefaultFileMode
	if existing, err := n.meta.GetFileInfo(norm); err == nil && existing.Mode != 0 {
		mode = existing.Mode
	}

	opts := chunkstore.Options{ChunkSize: n.cfg.ChunkSize}
	descriptors, chunks := splitBytes(data, opts.ChunkSize)

	ids := make([]chunkstore.ChunkID, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.ID
		n.cache.Put(cache.ChunkData(d.ID), chunks[i], true)
	}
	root, err := chunkstore.ComputeMerkleRoot(ids)
	if err != nil {
		return nil, fmt.Errorf("node: compute merkle root: %w", err)
	}

	// Granularity selection (§4.7): files at or under file_threshold
	// also get a whole-file read-accelerator entry, so ReadFile can
	// skip chunk reassembly entirely on hit; larger files rely on the
	// per-chunk ChunkData entries populated above.
	if int64(len(data)) <= n.cfg.FileThreshold {
		n.cache.Put(cache.FileData(string(id)), data, false)
	} else {
		// A previous, smaller version of this file may have left a
		// stale whole-file entry behind; drop it so reads fall through
		// to per-chunk reassembly instead of serving outdated bytes.
		n.cache.Invalidate(cache.FileData(string(id)))
	}

	info := metadata.FileInfo{
		ID: id, Path: norm, Size: int64(len(data)),
		ModifiedAt: time.Now(), MerkleRoot: root, ChunkSize: opts.ChunkSize, Domain: domain,
		Mode: mode,
	}
	if err := n.meta.SetFileInfo(info); err != nil {
		return nil, err
	}
	n.meta.SetChunkMapping(id, descriptors)

	if err := n.sqlStore.SaveFile(info, descriptors); err != nil {
		return nil, fmt.Errorf("node: persist file metadata: %w", err)
	}

	n.cache.Invalidate(cache.FileMetadata(norm))
	n.cache.Invalidate(cache.DirectoryListing(vpath.Dir(norm)))

	if n.metrics != nil {
		n.metrics.RecordMetadataOperation("write", true)
	}
	if n.logger != nil {
		n.logger.WithPath(norm, info.Size).Info("file written")
	}

	return &info, nil
}

// splitBytes mirrors chunkstore.SplitFile's chunking policy for data
// that is already resident in memory (as opposed to on disk), which
// is the case for every write the node manager accepts directly.
func splitBytes(data []byte, chunkSize int) ([]chunkstore.ChunkDescriptor, [][]byte) {
	if chunkSize <= 0 {
		chunkSize = chunkstore.DefaultChunkSize
	}
	if len(data) == 0 {
		return []chunkstore.ChunkDescriptor{{Index: 0, ID: chunkstore.ComputeChunkID(nil), Length: 0}}, [][]byte{{}}
	}

	var descriptors []chunkstore.ChunkDescriptor
	var chunks [][]byte
	for offset, idx := 0, 0; offset < len(data); offset, idx = offset+chunkSize, idx+1 {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		descriptors = append(descriptors, chunkstore.ChunkDescriptor{Index: idx, ID: chunkstore.ComputeChunkID(chunk), Length: len(chunk)})
		chunks = append(chunks, chunk)
	}
	return descriptors, chunks
}

// OpenFile returns a file's metadata without reading its bytes,
// serving a FileMetadata cache hit before falling through to the
// metadata manager.
func (n *Node) OpenFile(path string) (*metadata.FileInfo, error) {
	if err := n.requireMounted(); err != nil {
		return nil, err
	}
	norm, normErr := vpath.Normalize(path)
	if normErr == nil {
		key := cache.FileMetadata(anchor(norm))
		if blob, ok := n.cache.Get(key); ok {
			var info metadata.FileInfo
			if err := json.Unmarshal(blob, &info); err == nil {
				return &info, nil
			}
		}
	}

	info, err := n.meta.GetFileInfo(path)
	if err != nil {
		return nil, err
	}
	if blob, err := json.Marshal(info); err == nil {
		n.cache.Put(cache.FileMetadata(info.Path), blob, false)
	}
	return info, nil
}

// ReadFile assembles a file's full bytes, pulling the whole-file
// FileData cache entry on hit for files at or under file_threshold,
// and otherwise reassembling from the per-chunk ChunkData cache
// (which falls back to the content store on miss).
func (n *Node) ReadFile(path string) ([]byte, error) {
	if err := n.requireMounted(); err != nil {
		return nil, err
	}
	info, err := n.meta.GetFileInfo(path)
	if err != nil {
		return nil, err
	}

	whole := info.Size <= n.cfg.FileThreshold
	if whole {
		if data, ok := n.cache.Get(cache.FileData(string(info.ID))); ok {
			if n.metrics != nil {
				n.metrics.RecordCacheAccess(true)
			}
			return data, nil
		}
	}

	chunks, err := n.meta.GetChunkMapping(info.ID)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, info.Size)
	for _, ch := range chunks {
		data, ok := n.cache.Get(cache.ChunkData(ch.ID))
		if n.metrics != nil {
			n.metrics.RecordCacheAccess(ok)
		}
		if !ok {
			return nil, fmt.Errorf("node: chunk %s for %s unavailable: %w", ch.ID, path, chunkstore.ErrChunkNotFound)
		}
		out = append(out, data...)
	}

	if whole {
		n.cache.Put(cache.FileData(string(info.ID)), out, false)
	}
	return out, nil
}

// DeleteFile removes a file's metadata and chunk mapping. Chunk bytes
// are reclaimed later by the consistency checker's orphan sweep
// rather than inline, since other files may still reference the same
// content-addressed chunks.
func (n *Node) DeleteFile(path string) error {
	if err := n.requireMounted(); err != nil {
		return err
	}
	info, infoErr := n.meta.GetFileInfo(path)
	if err := n.meta.DeleteFileInfo(path); err != nil {
		return err
	}
	if err := n.sqlStore.DeleteFile(path); err != nil && !errors.Is(err, metadata.ErrFileNotFound) {
		return err
	}
	if infoErr == nil {
		n.cache.Invalidate(cache.FileData(string(info.ID)))
		n.cache.Invalidate(cache.FileMetadata(info.Path))
		n.cache.Invalidate(cache.DirectoryListing(vpath.Dir(info.Path)))
	}
	if n.logger != nil {
		n.logger.WithPath(path, 0).Info("file deleted")
	}
	return nil
}

// ListDirectory returns a directory's immediate children, serving a
// DirectoryListing cache hit before falling through to the metadata
// manager.
func (n *Node) ListDirectory(dir string) ([]metadata.DirEntry, error) {
	if err := n.requireMounted(); err != nil {
		return nil, err
	}
	norm, normErr := vpath.Normalize(dir)
	if normErr == nil {
		key := cache.DirectoryListing(anchor(norm))
		if blob, ok := n.cache.Get(key); ok {
			var entries []metadata.DirEntry
			if err := json.Unmarshal(blob, &entries); err == nil {
				return entries, nil
			}
		}
	}

	entries, err := n.meta.ListDirectory(dir)
	if err != nil {
		return nil, err
	}
	if blob, err := json.Marshal(entries); err == nil && normErr == nil {
		n.cache.Put(cache.DirectoryListing(anchor(norm)), blob, false)
	}
	return entries, nil
}

// CreateDirectory adds a directory to the tree.
func (n *Node) CreateDirectory(dir string) error {
	if err := n.requireMounted(); err != nil {
		return err
	}
	if err := n.meta.CreateDirectory(dir); err != nil {
		return err
	}
	norm, err := vpath.Normalize(dir)
	if err != nil {
		return err
	}
	norm = anchor(norm)
	n.cache.Invalidate(cache.DirectoryListing(vpath.Dir(norm)))
	return n.sqlStore.SaveDirectory(norm)
}

// RemoveDirectory deletes an empty directory from the tree.
func (n *Node) RemoveDirectory(dir string) error {
	if err := n.requireMounted(); err != nil {
		return err
	}
	if err := n.meta.RemoveDirectory(dir); err != nil {
		return err
	}
	if norm, err := vpath.Normalize(dir); err == nil {
		n.cache.Invalidate(cache.DirectoryListing(vpath.Dir(anchor(norm))))
	}
	return nil
}

// GetMetadata is an alias for OpenFile under the public operation
// name the control-plane surface exposes.
func (n *Node) GetMetadata(path string) (*metadata.FileInfo, error) {
	return n.OpenFile(path)
}

// classify spools data to a scratch file so the extension/magic-byte
// domain detector (which reads from disk) can run, then applies a
// cheap domain-specific enrichment before the write proceeds. It
// returns the detected domain and the bytes to actually store — for
// media whose moov atom isn't already at the front, the front-relocated
// bytes take its place so playback doesn't need a second network hop.
func (n *Node) classify(norm string, data []byte) (string, []byte) {
	tmp, err := os.CreateTemp("", "vdfs-classify-*"+filepath.Ext(norm))
	if err != nil {
		return "", data
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", data
	}
	tmp.Close()

	decision := introspect.Decide(tmpPath)

	switch decision.Domain {
	case introspect.DomainMedia:
		if media.DetectMoovPosition(tmpPath) == "tail" {
			if relocated, err := media.RelocateMoovToFront(tmpPath); err == nil && relocated != "" {
				if out, err := os.ReadFile(relocated); err == nil {
					data = out
				}
			}
		}
	case introspect.DomainMedical:
		if meta, ok := medical.DetectAndExtract(tmpPath); ok && n.logger != nil {
			n.logger.WithPath(norm, int64(len(data))).Info(fmt.Sprintf("medical payload detected: %+v", meta))
		}
	case introspect.DomainEngineering:
		if blocks, err := engineering.ComputeDeltaBlocks(tmpPath, n.cfg.ChunkSize); err == nil && n.metrics != nil {
			n.metrics.RecordMetadataOperation(fmt.Sprintf("engineering_delta_blocks:%d", len(blocks)), true)
		}
	}

	return decision.Domain, data
}
