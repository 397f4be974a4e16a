// Package upcall lets native code call back into Go through trampolines.
//
// Every callback the engine takes has the shape void (*)(void* ctx, const T*).
// A Dispatcher creates the one native function pointer for that shape and
// routes each invocation by ctx to a live Trampoline, which decodes the
// argument into a reused Go value and hands it to a delegate.
package upcall

import (
	"sync"
	"sync/atomic"

	"github.com/san-kum/jphbridge/internal/native"
	"go.uber.org/zap"
)

type route interface {
	invoke(arg uintptr)
}

// Dispatcher owns the shared native callback. Native callback slots are never
// reclaimed, so one dispatcher per library is created and reused for the
// life of the process.
type Dispatcher struct {
	log *zap.Logger
	ptr uintptr

	mu     sync.RWMutex
	routes map[uintptr]route
	nextID atomic.Uintptr
	stale  atomic.Uint64
}

type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDispatcher(lib native.Library, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		log:    zap.NewNop(),
		routes: make(map[uintptr]route),
	}
	for _, opt := range opts {
		opt(d)
	}
	ptr, err := lib.NewCallback(d.dispatch)
	if err != nil {
		return nil, err
	}
	d.ptr = ptr
	return d, nil
}

// Pointer is the native function pointer to pass wherever the engine takes
// a callback.
func (d *Dispatcher) Pointer() uintptr { return d.ptr }

// Stale counts invocations that arrived for a released trampoline.
func (d *Dispatcher) Stale() uint64 { return d.stale.Load() }

// Live is the number of armed trampolines.
func (d *Dispatcher) Live() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.routes)
}

func (d *Dispatcher) dispatch(ctx, arg uintptr) {
	d.mu.RLock()
	r, ok := d.routes[ctx]
	d.mu.RUnlock()
	if !ok {
		d.stale.Add(1)
		d.log.Error("native callback for released trampoline", zap.Uintptr("ctx", ctx))
		return
	}
	r.invoke(arg)
}

func (d *Dispatcher) add(r route) uintptr {
	id := d.nextID.Add(1)
	d.mu.Lock()
	d.routes[id] = r
	d.mu.Unlock()
	return id
}

func (d *Dispatcher) remove(id uintptr) {
	d.mu.Lock()
	delete(d.routes, id)
	d.mu.Unlock()
}
