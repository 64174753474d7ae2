package metadata

import "time"

// sizeIndex supports range queries over file size. It trades index
// build speed for query simplicity: entries are kept in a flat slice
// and range queries do a linear scan, which is adequate at the node
// scale this metadata manager targets (a full relational engine is
// available via the SQLite-backed Store for anything larger).
type sizeIndex struct {
	entries []sizeEntry
}

type sizeEntry struct {
	id   FileID
	size int64
}

func (idx *sizeIndex) insert(id FileID, size int64) {
	idx.entries = append(idx.entries, sizeEntry{id: id, size: size})
}

func (idx *sizeIndex) remove(id FileID, size int64) {
	for i, e := range idx.entries {
		if e.id == id && e.size == size {
			idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
			return
		}
	}
}

func (idx *sizeIndex) query(min, max int64) []FileID {
	var out []FileID
	for _, e := range idx.entries {
		if e.size >= min && e.size <= max {
			out = append(out, e.id)
		}
	}
	return out
}

// dateIndex mirrors sizeIndex for modification-time range queries.
type dateIndex struct {
	entries []dateEntry
}

type dateEntry struct {
	id  FileID
	mod time.Time
}

func (idx *dateIndex) insert(id FileID, mod time.Time) {
	idx.entries = append(idx.entries, dateEntry{id: id, mod: mod})
}

func (idx *dateIndex) remove(id FileID, mod time.Time) {
	for i, e := range idx.entries {
		if e.id == id && e.mod.Equal(mod) {
			idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
			return
		}
	}
}

func (idx *dateIndex) query(from, to time.Time) []FileID {
	var out []FileID
	for _, e := range idx.entries {
		if !e.mod.Before(from) && !e.mod.After(to) {
			out = append(out, e.id)
		}
	}
	return out
}
