// Package shmem implements the shared-memory transport: a named,
// file-backed memory region holding a lock-free single-producer/
// single-consumer ring buffer of wire frames, for same-host peer
// transfers where a network round trip would be wasted work. The
// first 64 bytes of the region are a cache-line-aligned control block
// (see RingBuffer); the rest is the ring's data area.
package shmem

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const (
	// DefaultRegionSize is used when a caller does not specify one.
	DefaultRegionSize = 16 << 20 // 16 MiB

	regionDir = "/dev/shm/vdfs"
)

// Region is a named, file-backed shared memory mapping. Two processes
// opening the same name map the same physical pages.
type Region struct {
	name string
	path string
	file *os.File
	data []byte
}

// regionPath returns the backing file path for a region name. The name
// is joined as-is, without sanitizing; callers pass session/peer ids,
// never untrusted input.
func regionPath(name string) string {
	return filepath.Join(regionDir, name+".shm")
}

// Create allocates a new named region of the given size, truncating
// any previous region with the same name. The backing file always
// lives under /dev/shm/vdfs (tmpfs on Linux); there is no fallback
// directory.
func Create(name string, size int) (*Region, error) {
	if size <= 0 {
		size = DefaultRegionSize
	}
	if err := os.MkdirAll(regionDir, 0o755); err != nil {
		return nil, fmt.Errorf("shmem: create region dir: %w", err)
	}
	path := regionPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmem: create region file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: truncate region: %w", err)
	}
	return mapRegion(name, path, f, size)
}

// Open attaches to an existing named region created by another
// process (or an earlier call to Create in this one).
func Open(name string) (*Region, error) {
	path := regionPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmem: open region file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: stat region: %w", err)
	}
	return mapRegion(name, path, f, int(fi.Size()))
}

func mapRegion(name, path string, f *os.File, size int) (*Region, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: mmap: %w", err)
	}
	return &Region{name: name, path: path, file: f, data: data}, nil
}

// Bytes returns the raw mapped memory. Callers build a RingBuffer
// over it rather than touching it directly.
func (r *Region) Bytes() []byte { return r.data }

// Name returns the region's name.
func (r *Region) Name() string { return r.name }

// Close unmaps the region and closes the backing file descriptor. It
// does not remove the backing file; call Remove for that.
func (r *Region) Close() error {
	var err error
	if r.data != nil {
		err = unix.Munmap(r.data)
		r.data = nil
	}
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Remove unmaps the region and deletes its backing file. Call this
// when the last peer of a region is done with it.
func (r *Region) Remove() error {
	if err := r.Close(); err != nil {
		return err
	}
	return os.Remove(r.path)
}

// Exists reports whether a region with the given name currently has a
// backing file on disk.
func Exists(name string) bool {
	_, err := os.Stat(regionPath(name))
	return err == nil
}
