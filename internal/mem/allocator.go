package mem

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"unsafe"
)

var (
	ErrZeroSize     = errors.New("mem: zero-size allocation")
	ErrBadAlignment = errors.New("mem: alignment must be a power of two")
	ErrUnknownChunk = errors.New("mem: free of unknown chunk")
)

// Allocator hands out chunks of memory that native code may read and write.
// Chunks never move and are not scanned by the garbage collector, so they
// must not hold Go pointers.
type Allocator interface {
	Name() string
	Alloc(size, align uintptr) (unsafe.Pointer, error)
	Free(p unsafe.Pointer, size uintptr) error
}

// CheckRequest validates an Alloc request against the allocator contract.
func CheckRequest(size, align uintptr) error {
	if size == 0 {
		return ErrZeroSize
	}
	if align == 0 || align&(align-1) != 0 {
		return fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}
	return nil
}

var (
	factoriesMu sync.RWMutex
	factories   = map[string]func() (Allocator, error){
		"go":    func() (Allocator, error) { return NewGoHeap(), nil },
		"pages": func() (Allocator, error) { return NewPages() },
	}
)

// Register makes an allocator available to ByName. Packages with their own
// memory source (the C runtime allocator) register from init.
func Register(name string, factory func() (Allocator, error)) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

func ByName(name string) (Allocator, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown allocator: %s (available: %v)", name, Names())
	}
	return f()
}

func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Zero clears n bytes at p.
func Zero(p unsafe.Pointer, n uintptr) {
	clear(unsafe.Slice((*byte)(p), n))
}

// Fill sets n bytes at p to b.
func Fill(p unsafe.Pointer, n uintptr, b byte) {
	s := unsafe.Slice((*byte)(p), n)
	for i := range s {
		s[i] = b
	}
}
