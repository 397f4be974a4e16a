package mem

import (
	"runtime"
	"sync"
	"unsafe"
)

// GoHeap allocates chunks from the Go heap and pins them so their address
// stays valid while native code holds it. The backing store is a []uint64,
// which carries no pointers and is therefore legal to pass across the call
// boundary.
type GoHeap struct {
	mu     sync.Mutex
	chunks map[uintptr]*pinnedChunk
}

type pinnedChunk struct {
	words  []uint64
	pinner runtime.Pinner
}

func NewGoHeap() *GoHeap {
	return &GoHeap{chunks: make(map[uintptr]*pinnedChunk)}
}

func (g *GoHeap) Name() string { return "go" }

func (g *GoHeap) Alloc(size, align uintptr) (unsafe.Pointer, error) {
	if err := CheckRequest(size, align); err != nil {
		return nil, err
	}
	extra := uintptr(0)
	if align > 8 {
		extra = align - 8
	}
	c := &pinnedChunk{words: make([]uint64, (size+extra+7)/8)}
	base := unsafe.Pointer(&c.words[0])
	c.pinner.Pin(base)

	p := unsafe.Add(base, alignUp(uintptr(base), align)-uintptr(base))

	g.mu.Lock()
	g.chunks[uintptr(p)] = c
	g.mu.Unlock()
	return p, nil
}

func (g *GoHeap) Free(p unsafe.Pointer, _ uintptr) error {
	g.mu.Lock()
	c, ok := g.chunks[uintptr(p)]
	delete(g.chunks, uintptr(p))
	g.mu.Unlock()
	if !ok {
		return ErrUnknownChunk
	}
	c.pinner.Unpin()
	c.words = nil
	return nil
}

// Live returns the number of chunks not yet freed.
func (g *GoHeap) Live() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.chunks)
}

func alignUp(x, a uintptr) uintptr {
	m := a - 1
	return (x + m) &^ m
}
