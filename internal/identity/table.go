// Package identity maps native addresses to the Go wrapper objects that stand
// for them, so a native object is seen through exactly one wrapper for as
// long as that wrapper is reachable.
package identity

import (
	"runtime"
	"sync"
	"weak"

	"go.uber.org/zap"
)

// Table holds the wrappers of one object family. Entries are weak: a wrapper
// nobody references is collected and its slot pruned, and the next lookup of
// the address builds a fresh wrapper.
type Table[W any] struct {
	name string
	log  *zap.Logger

	mu      sync.RWMutex
	entries map[uintptr]weak.Pointer[W]
}

type Option func(*options)

type options struct {
	log *zap.Logger
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func NewTable[W any](name string, opts ...Option) *Table[W] {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[W]{
		name:    name,
		log:     o.log,
		entries: make(map[uintptr]weak.Pointer[W]),
	}
}

func (t *Table[W]) Name() string { return t.name }

// Get returns the live wrapper for addr, or nil.
func (t *Table[W]) Get(addr uintptr) *W {
	if addr == 0 {
		return nil
	}
	t.mu.RLock()
	wp, ok := t.entries[addr]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return wp.Value()
}

// Register installs w for addr unless a live wrapper is already there. It
// returns whichever wrapper the table holds afterwards and whether it is w.
func (t *Table[W]) Register(addr uintptr, w *W) (winner *W, inserted bool) {
	if addr == 0 || w == nil {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.entries[addr]; ok {
		if v := cur.Value(); v != nil {
			return v, false
		}
	}
	wp := weak.Make(w)
	t.entries[addr] = wp
	runtime.AddCleanup(w, t.prune, slot[W]{addr: addr, wp: wp})
	return w, true
}

type slot[W any] struct {
	addr uintptr
	wp   weak.Pointer[W]
}

// prune drops a collected wrapper's slot unless it was replaced meanwhile.
func (t *Table[W]) prune(s slot[W]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.entries[s.addr]; ok && cur == s.wp {
		delete(t.entries, s.addr)
		t.log.Debug("pruned collected wrapper", zap.String("family", t.name), zap.Uintptr("addr", s.addr))
	}
}

// Unregister forgets addr, typically right after the native object was
// destroyed. It reports whether a live wrapper was removed.
func (t *Table[W]) Unregister(addr uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wp, ok := t.entries[addr]
	if !ok {
		return false
	}
	delete(t.entries, addr)
	return wp.Value() != nil
}

// Wrap returns the wrapper for addr, building one with ctor on a miss. When
// goroutines race on the same miss, one constructed wrapper wins and every
// caller gets it. A null address yields nil.
func (t *Table[W]) Wrap(addr uintptr, ctor func(uintptr) *W) *W {
	if addr == 0 {
		return nil
	}
	if w := t.Get(addr); w != nil {
		return w
	}
	winner, _ := t.Register(addr, ctor(addr))
	return winner
}

// Len counts live wrappers.
func (t *Table[W]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, wp := range t.entries {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

// Slots counts table entries, including ones whose wrapper was collected but
// not yet pruned.
func (t *Table[W]) Slots() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
