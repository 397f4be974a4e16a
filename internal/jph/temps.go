package jph

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/san-kum/jphbridge/internal/arena"
	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
)

// temps is a wrapper's set of reusable argument buffers, one per layout.
// The backing region is created on first use and tied to the wrapper, so
// it is freed when the wrapper is collected. Calls that use a temp hold mu
// for their whole duration.
type temps struct {
	mu      sync.Mutex
	r       *arena.Region
	bufs    map[layout.Tag]*arena.Buffer
	dropped atomic.Bool
}

func withTemp[W any](e *Engine, t *temps, owner *W, tag layout.Tag, fn func(*arena.Buffer) error) (err error) {
	t.mu.Lock()
	defer func() {
		if t.dropped.Load() {
			err = errors.Join(err, t.closeLocked())
		}
		t.mu.Unlock()
	}()
	if t.r == nil || t.r.Closed() {
		t.r = e.scratch.Child(arena.WithChunkSize(callChunkSize), arena.WithLabel(fmt.Sprintf("%T", owner)))
		arena.TieTo(t.r, owner)
		t.bufs = make(map[layout.Tag]*arena.Buffer)
	}
	b, ok := t.bufs[tag]
	if !ok {
		if b, err = t.r.Allocate(e.layouts.MustOf(tag)); err != nil {
			return err
		}
		t.bufs[tag] = b
	}
	return fn(b)
}

// release frees the temps now instead of at collection.
func (t *temps) release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

// discard frees the temps from inside a native callback. The call that
// triggered the callback may hold mu on this goroutine, so discard never
// blocks: a busy set is freed by that call on its way out.
func (t *temps) discard() error {
	t.dropped.Store(true)
	if !t.mu.TryLock() {
		return nil
	}
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *temps) closeLocked() error {
	if t.r == nil {
		return nil
	}
	err := t.r.Close()
	t.r, t.bufs = nil, nil
	return err
}

// handle is the state every engine-owned wrapper shares.
type handle struct {
	e         *Engine
	addr      uintptr
	destroyed atomic.Bool
}

func (h *handle) Addr() uintptr { return h.addr }

// Destroyed reports whether the native object is known to be gone.
func (h *handle) Destroyed() bool { return h.destroyed.Load() }

func (h *handle) check(kind string) error {
	if h.destroyed.Load() {
		return &fault.ReleaseError{Object: fmt.Sprintf("%s %#x", kind, h.addr)}
	}
	return nil
}
