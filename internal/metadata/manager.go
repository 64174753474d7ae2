// Package metadata implements the metadata manager: path<->FileId
// resolution, chunk lists, a directory tree, and secondary indexes by
// size, extension, and modification date.
package metadata

import (
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/permissions"
	"github.com/librorum/vdfs/internal/vpath"
)

// ErrFileNotFound is returned when a path or FileId has no associated
// metadata.
var ErrFileNotFound = errors.New("metadata: file not found")

// FileID uniquely identifies a file independent of its current path.
type FileID string

// NewFileID generates a fresh, random FileID.
func NewFileID() FileID { return FileID(uuid.New().String()) }

// FileInfo is the metadata record for one file.
type FileInfo struct {
	ID         FileID
	Path       string
	Size       int64
	ModifiedAt time.Time
	MerkleRoot string
	ChunkSize  int

	// Domain is the detected content domain (media, medical,
	// engineering, ...), recorded at write time. The chunk size does
	// not depend on it. Empty when detection could not run.
	Domain string

	// Mode carries the file's logical POSIX permission bits,
	// independent of any local filesystem's own permissions — a file
	// replicated across nodes keeps one mode regardless of each
	// node's umask.
	Mode permissions.Mode
}

// DirEntry is one child of a directory in the tree index: either a
// file (Info set) or a subdirectory (IsDir true).
type DirEntry struct {
	Name  string
	IsDir bool
	Info  *FileInfo
}

// Manager holds the four core maps from the original design — path to
// info, FileId to path, FileId to chunk list, and directory to
// children — plus the secondary indexes, all guarded by a single
// RWMutex.
type Manager struct {
	mu sync.RWMutex

	files      map[string]*FileInfo          // normalized path -> info
	idToPath   map[FileID]string             // FileId -> normalized path
	chunks     map[FileID][]chunkstore.ChunkDescriptor
	directories map[string]map[string]struct{} // dir path -> set of immediate child names

	bySize sizeIndex
	byExt  map[string]map[FileID]struct{}
	byDate dateIndex
}

// NewManager returns an empty, ready-to-use Manager with the root
// directory already present.
func NewManager() *Manager {
	m := &Manager{
		files:       make(map[string]*FileInfo),
		idToPath:    make(map[FileID]string),
		chunks:      make(map[FileID][]chunkstore.ChunkDescriptor),
		directories: make(map[string]map[string]struct{}),
		byExt:       make(map[string]map[FileID]struct{}),
	}
	m.directories["/"] = make(map[string]struct{})
	return m
}

// rootAnchor anchors a vpath.Normalize result under the tree's "/"
// root. vpath.Normalize itself preserves whether its input was
// relative or absolute, but the directory tree this Manager keeps is
// always rooted, so every path used as a tree key passes through here
// first.
func rootAnchor(norm string) string {
	if strings.HasPrefix(norm, "/") {
		return norm
	}
	return "/" + norm
}

// LoadFromSQLite rehydrates a fresh Manager from a SQLiteStore's
// durable contents, the step a node takes at startup before it
// accepts any requests so its in-memory view matches what survived
// the last restart.
func LoadFromSQLite(store *SQLiteStore) (*Manager, error) {
	files, chunksByFile, directories, err := store.LoadAll()
	if err != nil {
		return nil, err
	}

	m := NewManager()
	for _, dir := range directories {
		m.mu.Lock()
		m.ensureDirLocked(dir)
		m.mu.Unlock()
	}
	for _, info := range files {
		if err := m.SetFileInfo(info); err != nil {
			return nil, err
		}
		m.SetChunkMapping(info.ID, chunksByFile[info.ID])
	}
	return m, nil
}

// SetFileInfo inserts or replaces the metadata for a file, updating
// the directory tree and secondary indexes. The file's parent
// directories are created implicitly, matching how a normal
// filesystem's mkdir -p works for intermediate path components.
func (m *Manager) SetFileInfo(info FileInfo) error {
	norm, err := vpath.Normalize(info.Path)
	if err != nil {
		return err
	}
	norm = rootAnchor(norm)
	info.Path = norm

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.files[norm]; ok {
		m.removeFromIndexesLocked(old)
	}

	m.ensureDirLocked(path.Dir(norm))
	m.directories[path.Dir(norm)][path.Base(norm)] = struct{}{}

	cp := info
	m.files[norm] = &cp
	m.idToPath[info.ID] = norm
	m.addToIndexesLocked(&cp)
	return nil
}

// GetFileInfo returns the metadata for a normalized path.
func (m *Manager) GetFileInfo(p string) (*FileInfo, error) {
	norm, err := vpath.Normalize(p)
	if err != nil {
		return nil, err
	}
	norm = rootAnchor(norm)
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.files[norm]
	if !ok {
		return nil, ErrFileNotFound
	}
	cp := *info
	return &cp, nil
}

// GetFileInfoByID resolves a FileId to its current metadata.
func (m *Manager) GetFileInfoByID(id FileID) (*FileInfo, error) {
	m.mu.RLock()
	p, ok := m.idToPath[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrFileNotFound
	}
	return m.GetFileInfo(p)
}

// DeleteFileInfo removes a file's metadata, its chunk mapping, and its
// directory-tree entry.
func (m *Manager) DeleteFileInfo(p string) error {
	norm, err := vpath.Normalize(p)
	if err != nil {
		return err
	}
	norm = rootAnchor(norm)
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.files[norm]
	if !ok {
		return ErrFileNotFound
	}
	m.removeFromIndexesLocked(info)
	delete(m.files, norm)
	delete(m.idToPath, info.ID)
	delete(m.chunks, info.ID)
	if dir, ok := m.directories[path.Dir(norm)]; ok {
		delete(dir, path.Base(norm))
	}
	return nil
}

// FileExists reports whether a path currently has metadata.
func (m *Manager) FileExists(p string) bool {
	norm, err := vpath.Normalize(p)
	if err != nil {
		return false
	}
	norm = rootAnchor(norm)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[norm]
	return ok
}

// SetChunkMapping records the ordered chunk list for a file.
func (m *Manager) SetChunkMapping(id FileID, chunks []chunkstore.ChunkDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[id] = append([]chunkstore.ChunkDescriptor{}, chunks...)
}

// GetChunkMapping returns the ordered chunk list for a file.
func (m *Manager) GetChunkMapping(id FileID) ([]chunkstore.ChunkDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks, ok := m.chunks[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	return append([]chunkstore.ChunkDescriptor{}, chunks...), nil
}

// IsReferenced reports whether any file's chunk list currently
// includes id, satisfying consistency.ReferencedSet for orphan sweeps.
func (m *Manager) IsReferenced(id chunkstore.ChunkID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, chunks := range m.chunks {
		for _, ch := range chunks {
			if ch.ID == id {
				return true
			}
		}
	}
	return false
}

// ErrDirectoryNotEmpty is returned by RemoveDirectory when the
// directory still has children.
var ErrDirectoryNotEmpty = errors.New("metadata: directory not empty")

// CreateDirectory adds an (empty) directory to the tree, implicitly
// creating any missing parent components, matching ensureDirLocked's
// mkdir -p semantics.
func (m *Manager) CreateDirectory(dir string) error {
	norm, err := vpath.Normalize(dir)
	if err != nil {
		return err
	}
	norm = rootAnchor(norm)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDirLocked(norm)
	if norm != "/" {
		m.directories[path.Dir(norm)][path.Base(norm)] = struct{}{}
	}
	return nil
}

// RemoveDirectory deletes an empty directory from the tree. The root
// directory can never be removed.
func (m *Manager) RemoveDirectory(dir string) error {
	norm, err := vpath.Normalize(dir)
	if err != nil {
		return err
	}
	norm = rootAnchor(norm)
	if norm == "/" {
		return errors.New("metadata: cannot remove root directory")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	children, ok := m.directories[norm]
	if !ok {
		return ErrFileNotFound
	}
	if len(children) > 0 {
		return ErrDirectoryNotEmpty
	}
	delete(m.directories, norm)
	if parent, ok := m.directories[path.Dir(norm)]; ok {
		delete(parent, path.Base(norm))
	}
	return nil
}

// Stats reports the total number of tracked files and chunks, for the
// node manager's periodic stats tick.
func (m *Manager) Stats() (files int, chunks int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files = len(m.files)
	for _, cs := range m.chunks {
		chunks += len(cs)
	}
	return files, chunks
}

// ListDirectory returns the immediate children of a directory path.
func (m *Manager) ListDirectory(dir string) ([]DirEntry, error) {
	norm, err := vpath.Normalize(dir)
	if err != nil {
		return nil, err
	}
	norm = rootAnchor(norm)
	m.mu.RLock()
	defer m.mu.RUnlock()

	children, ok := m.directories[norm]
	if !ok {
		return nil, ErrFileNotFound
	}
	entries := make([]DirEntry, 0, len(children))
	for name := range children {
		full := path.Join(norm, name)
		if _, isDir := m.directories[full]; isDir {
			entries = append(entries, DirEntry{Name: name, IsDir: true})
			continue
		}
		info := m.files[full]
		entries = append(entries, DirEntry{Name: name, Info: info})
	}
	return entries, nil
}

func (m *Manager) ensureDirLocked(dir string) {
	if _, ok := m.directories[dir]; ok {
		return
	}
	m.directories[dir] = make(map[string]struct{})
	parent := path.Dir(dir)
	if parent != dir {
		m.ensureDirLocked(parent)
		m.directories[parent][path.Base(dir)] = struct{}{}
	}
}

func (m *Manager) addToIndexesLocked(info *FileInfo) {
	m.bySize.insert(info.ID, info.Size)
	ext := strings.ToLower(path.Ext(info.Path))
	if m.byExt[ext] == nil {
		m.byExt[ext] = make(map[FileID]struct{})
	}
	m.byExt[ext][info.ID] = struct{}{}
	m.byDate.insert(info.ID, info.ModifiedAt)
}

func (m *Manager) removeFromIndexesLocked(info *FileInfo) {
	m.bySize.remove(info.ID, info.Size)
	ext := strings.ToLower(path.Ext(info.Path))
	delete(m.byExt[ext], info.ID)
	m.byDate.remove(info.ID, info.ModifiedAt)
}

// QueryBySizeRange returns FileIds whose size falls within [min, max].
func (m *Manager) QueryBySizeRange(min, max int64) []FileID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySize.query(min, max)
}

// QueryByExtension returns FileIds with the given extension (including
// the leading dot, e.g. ".txt"; case-insensitive).
func (m *Manager) QueryByExtension(ext string) []FileID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byExt[strings.ToLower(ext)]
	out := make([]FileID, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// QueryByDateRange returns FileIds modified within [from, to].
func (m *Manager) QueryByDateRange(from, to time.Time) []FileID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byDate.query(from, to)
}
