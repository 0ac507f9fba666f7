// Package shm maps client shared-memory pools into the server.
package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Create returns an anonymous memory file of the
// given size. Clients use these to back wl_shm pools; the server only
// uses it in tests.
func Create(name string, size int64) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	file := os.NewFile(uintptr(fd), name)

	err = file.Truncate(size)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("truncate: %w", err)
	}

	return file, nil
}

type Mmap []byte

// Map maps size bytes of file into memory as shared.
func Map(fd int, size int, prot int) (Mmap, error) {
	m, err := unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return Mmap(m), nil
}

func (mmap Mmap) Unmap() error {
	if mmap == nil {
		return nil
	}
	return unix.Munmap(mmap)
}

// Pool is the server side of a wl_shm_pool. The pool's memory stays
// mapped until the client has destroyed the pool and every buffer
// created from it has been destroyed.
type Pool struct {
	fd   int
	mmap Mmap
	refs int
}

// NewPool maps size bytes of fd. The pool takes ownership of fd.
func NewPool(fd int, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid pool size %v", size)
	}

	mmap, err := Map(fd, size, unix.PROT_READ)
	if err != nil {
		return nil, fmt.Errorf("mmap pool: %w", err)
	}

	return &Pool{
		fd:   fd,
		mmap: mmap,
		refs: 1,
	}, nil
}

// Size returns the number of mapped bytes.
func (p *Pool) Size() int {
	return len(p.mmap)
}

// Resize remaps the pool with a new size. Pools can only grow.
func (p *Pool) Resize(size int) error {
	if size < len(p.mmap) {
		return fmt.Errorf("shrinking pool from %v to %v", len(p.mmap), size)
	}
	if size == len(p.mmap) {
		return nil
	}

	mmap, err := Map(p.fd, size, unix.PROT_READ)
	if err != nil {
		return fmt.Errorf("remap pool: %w", err)
	}
	p.mmap.Unmap()
	p.mmap = mmap
	return nil
}

// Bytes returns the range of the pool starting at offset with the
// given length, or nil if it is out of bounds.
func (p *Pool) Bytes(offset, length int) []byte {
	if (offset < 0) || (length < 0) || (offset+length > len(p.mmap)) {
		return nil
	}
	return p.mmap[offset : offset+length]
}

// Ref adds a reference to the pool.
func (p *Pool) Ref() {
	p.refs++
}

// Unref drops a reference, unmapping the pool when the last one is
// gone.
func (p *Pool) Unref() {
	p.refs--
	if p.refs > 0 {
		return
	}

	p.mmap.Unmap()
	p.mmap = nil
	unix.Close(p.fd)
	p.fd = -1
}
