//go:build unix

package mem

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Pages maps anonymous memory for each chunk. Chunks live outside the Go heap
// entirely, which makes them the closest match to memory the native engine
// allocates itself.
type Pages struct {
	mu       sync.Mutex
	pageSize uintptr
	mappings map[uintptr][]byte
}

func NewPages() (Allocator, error) {
	return &Pages{
		pageSize: uintptr(unix.Getpagesize()),
		mappings: make(map[uintptr][]byte),
	}, nil
}

func (p *Pages) Name() string { return "pages" }

func (p *Pages) Alloc(size, align uintptr) (unsafe.Pointer, error) {
	if err := CheckRequest(size, align); err != nil {
		return nil, err
	}
	if align > p.pageSize {
		return nil, fmt.Errorf("%w: %d exceeds page size %d", ErrBadAlignment, align, p.pageSize)
	}
	length := alignUp(size, p.pageSize)
	b, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mem: mmap %d bytes: %w", length, err)
	}
	ptr := unsafe.Pointer(&b[0])

	p.mu.Lock()
	p.mappings[uintptr(ptr)] = b
	p.mu.Unlock()
	return ptr, nil
}

func (p *Pages) Free(ptr unsafe.Pointer, _ uintptr) error {
	p.mu.Lock()
	b, ok := p.mappings[uintptr(ptr)]
	delete(p.mappings, uintptr(ptr))
	p.mu.Unlock()
	if !ok {
		return ErrUnknownChunk
	}
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("mem: munmap: %w", err)
	}
	return nil
}
