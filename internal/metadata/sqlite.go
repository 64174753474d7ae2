package metadata

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/permissions"
)

// ErrDatabaseNotInitialized is returned by operations on a SQLiteStore
// whose schema setup never ran.
var ErrDatabaseNotInitialized = errors.New("metadata: database not initialized")

// SQLiteStore is the durable, embedded-relational backing for file
// and chunk-mapping metadata, used when a node wants its directory
// tree to survive a restart instead of living purely in the
// in-memory Manager. It does not replace Manager — a node loads its
// Manager from a SQLiteStore at startup and writes through to it on
// every mutation, the same two-tier split the daemon used between its
// in-memory session table and its SQLite-backed persistence layer.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed
// metadata store at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("metadata: open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS files (
			file_id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			size INTEGER NOT NULL,
			modified_at TIMESTAMP NOT NULL,
			merkle_root TEXT NOT NULL,
			chunk_size INTEGER NOT NULL,
			domain TEXT NOT NULL DEFAULT '',
			mode INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS chunks (
			file_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			chunk_id TEXT NOT NULL,
			length INTEGER NOT NULL,
			PRIMARY KEY (file_id, idx),
			FOREIGN KEY (file_id) REFERENCES files(file_id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS directories (
			path TEXT PRIMARY KEY
		);

		CREATE INDEX IF NOT EXISTS idx_files_size ON files(size);
		CREATE INDEX IF NOT EXISTS idx_files_modified ON files(modified_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("metadata: initialize schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("metadata: set schema version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("metadata: query schema version: %w", err)
	}

	return nil
}

// SaveFile upserts a file's metadata and its full chunk mapping in a
// single transaction, so readers never observe a file row without its
// chunks or vice versa.
func (s *SQLiteStore) SaveFile(info FileInfo, chunks []chunkstore.ChunkDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("metadata: begin save file: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO files (file_id, path, size, modified_at, merkle_root, chunk_size, domain, mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			path = excluded.path,
			size = excluded.size,
			modified_at = excluded.modified_at,
			merkle_root = excluded.merkle_root,
			chunk_size = excluded.chunk_size,
			domain = excluded.domain,
			mode = excluded.mode
	`, string(info.ID), info.Path, info.Size, info.ModifiedAt, info.MerkleRoot, info.ChunkSize, info.Domain, uint32(info.Mode))
	if err != nil {
		return fmt.Errorf("metadata: save file row: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", string(info.ID)); err != nil {
		return fmt.Errorf("metadata: clear chunk rows: %w", err)
	}
	for _, ch := range chunks {
		if _, err := tx.Exec("INSERT INTO chunks (file_id, idx, chunk_id, length) VALUES (?, ?, ?, ?)",
			string(info.ID), ch.Index, string(ch.ID), ch.Length); err != nil {
			return fmt.Errorf("metadata: save chunk row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metadata: commit save file: %w", err)
	}
	return nil
}

// LoadFile retrieves a file's FileInfo and chunk mapping by path.
func (s *SQLiteStore) LoadFile(path string) (FileInfo, []chunkstore.ChunkDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		id         string
		size       int64
		modifiedAt time.Time
		merkleRoot string
		chunkSize  int
		domain     string
		mode       uint32
	)
	err := s.db.QueryRow(`
		SELECT file_id, size, modified_at, merkle_root, chunk_size, domain, mode FROM files WHERE path = ?
	`, path).Scan(&id, &size, &modifiedAt, &merkleRoot, &chunkSize, &domain, &mode)
	if errors.Is(err, sql.ErrNoRows) {
		return FileInfo{}, nil, ErrFileNotFound
	}
	if err != nil {
		return FileInfo{}, nil, fmt.Errorf("metadata: load file row: %w", err)
	}

	rows, err := s.db.Query("SELECT idx, chunk_id, length FROM chunks WHERE file_id = ? ORDER BY idx", id)
	if err != nil {
		return FileInfo{}, nil, fmt.Errorf("metadata: load chunk rows: %w", err)
	}
	defer rows.Close()

	var chunks []chunkstore.ChunkDescriptor
	for rows.Next() {
		var idx int
		var chunkID string
		var length int
		if err := rows.Scan(&idx, &chunkID, &length); err != nil {
			return FileInfo{}, nil, fmt.Errorf("metadata: scan chunk row: %w", err)
		}
		chunks = append(chunks, chunkstore.ChunkDescriptor{Index: idx, ID: chunkstore.ChunkID(chunkID), Length: length})
	}

	info := FileInfo{
		ID: FileID(id), Path: path, Size: size,
		ModifiedAt: modifiedAt, MerkleRoot: merkleRoot, ChunkSize: chunkSize, Domain: domain,
		Mode: permissions.Mode(mode),
	}
	return info, chunks, nil
}

// DeleteFile removes a file's metadata and chunk mapping.
func (s *SQLiteStore) DeleteFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The chunks table's ON DELETE CASCADE only fires with SQLite's
	// foreign_keys pragma on, which this store never sets, so the chunk
	// rows are removed explicitly.
	if _, err := s.db.Exec("DELETE FROM chunks WHERE file_id IN (SELECT file_id FROM files WHERE path = ?)", path); err != nil {
		return fmt.Errorf("metadata: delete chunk rows: %w", err)
	}

	result, err := s.db.Exec("DELETE FROM files WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("metadata: delete file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrFileNotFound
	}
	return nil
}

// SaveDirectory records a directory path as existing, so an empty
// directory survives a restart even with no files in it yet.
func (s *SQLiteStore) SaveDirectory(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("INSERT OR IGNORE INTO directories (path) VALUES (?)", path)
	if err != nil {
		return fmt.Errorf("metadata: save directory: %w", err)
	}
	return nil
}

// LoadAll reconstructs every stored file, its chunk mapping, and every
// recorded directory, for rehydrating a fresh in-memory Manager at
// startup.
func (s *SQLiteStore) LoadAll() (files []FileInfo, chunksByFile map[FileID][]chunkstore.ChunkDescriptor, directories []string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT file_id, path, size, modified_at, merkle_root, chunk_size, domain, mode FROM files")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("metadata: load all files: %w", err)
	}
	defer rows.Close()

	chunksByFile = make(map[FileID][]chunkstore.ChunkDescriptor)
	for rows.Next() {
		var id, path, merkleRoot, domain string
		var size int64
		var modifiedAt time.Time
		var chunkSize int
		var mode uint32
		if err := rows.Scan(&id, &path, &size, &modifiedAt, &merkleRoot, &chunkSize, &domain, &mode); err != nil {
			return nil, nil, nil, fmt.Errorf("metadata: scan file row: %w", err)
		}
		info := FileInfo{
			ID: FileID(id), Path: path, Size: size, ModifiedAt: modifiedAt, MerkleRoot: merkleRoot, ChunkSize: chunkSize, Domain: domain,
			Mode: permissions.Mode(mode),
		}
		files = append(files, info)

		crows, cerr := s.db.Query("SELECT idx, chunk_id, length FROM chunks WHERE file_id = ? ORDER BY idx", id)
		if cerr != nil {
			return nil, nil, nil, fmt.Errorf("metadata: load chunks for %s: %w", id, cerr)
		}
		var chunks []chunkstore.ChunkDescriptor
		for crows.Next() {
			var idx, length int
			var chunkID string
			if err := crows.Scan(&idx, &chunkID, &length); err != nil {
				crows.Close()
				return nil, nil, nil, fmt.Errorf("metadata: scan chunk row: %w", err)
			}
			chunks = append(chunks, chunkstore.ChunkDescriptor{Index: idx, ID: chunkstore.ChunkID(chunkID), Length: length})
		}
		crows.Close()
		chunksByFile[info.ID] = chunks
	}

	drows, err := s.db.Query("SELECT path FROM directories")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("metadata: load directories: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var path string
		if err := drows.Scan(&path); err != nil {
			return nil, nil, nil, fmt.Errorf("metadata: scan directory row: %w", err)
		}
		directories = append(directories, path)
	}

	return files, chunksByFile, directories, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
