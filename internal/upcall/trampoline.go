package upcall

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/san-kum/jphbridge/internal/arena"
	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
	"go.uber.org/zap"
)

type State int32

const (
	Armed State = iota
	Released
)

func (s State) String() string {
	if s == Released {
		return "released"
	}
	return "armed"
}

type trampolineConfig struct {
	region *arena.Region
	label  string
}

type TrampolineOption func(*trampolineConfig)

// InRegion releases the trampoline when r closes. Without it the trampoline
// stays armed until Release.
func InRegion(r *arena.Region) TrampolineOption {
	return func(c *trampolineConfig) { c.region = r }
}

func WithLabel(label string) TrampolineOption {
	return func(c *trampolineConfig) { c.label = label }
}

// Trampoline adapts native invocations carrying a T to a Go delegate. The
// decoded value is a single T reused across invocations; a delegate that
// needs it after returning must copy it.
type Trampoline[T any] struct {
	d        *Dispatcher
	id       uintptr
	l        *layout.Layout
	decode   func(layout.View, *T)
	delegate func(*T)
	label    string

	result      T
	released    atomic.Bool
	invocations atomic.Uint64

	errMu sync.Mutex
	err   error
}

func New[T any](d *Dispatcher, l *layout.Layout, decode func(layout.View, *T), delegate func(*T), opts ...TrampolineOption) (*Trampoline[T], error) {
	var cfg trampolineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.label == "" {
		cfg.label = l.Name()
	}
	t := &Trampoline[T]{
		d:        d,
		l:        l,
		decode:   decode,
		delegate: delegate,
		label:    cfg.label,
	}
	t.id = d.add(t)

	if cfg.region != nil {
		if _, err := cfg.region.BindCleanup(t.id, func(uintptr) error {
			t.Release()
			return nil
		}); err != nil {
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

// Pointer is the callback to hand to native code. It panics with a
// fault.ReleaseError once t is released.
func (t *Trampoline[T]) Pointer() uintptr {
	t.check()
	return t.d.ptr
}

// Ctx is the user-data value native code must pass back with each call. It
// panics with a fault.ReleaseError once t is released.
func (t *Trampoline[T]) Ctx() uintptr {
	t.check()
	return t.id
}

func (t *Trampoline[T]) check() {
	if t.released.Load() {
		panic(&fault.ReleaseError{Object: "trampoline " + t.label})
	}
}

func (t *Trampoline[T]) Invocations() uint64 { return t.invocations.Load() }

func (t *Trampoline[T]) State() State {
	if t.released.Load() {
		return Released
	}
	return Armed
}

// Err returns the first panic raised by the delegate, if any.
func (t *Trampoline[T]) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// Release disarms the trampoline. Native code must not invoke it afterwards;
// invocations that still arrive are dropped and counted by the dispatcher.
func (t *Trampoline[T]) Release() {
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	t.d.remove(t.id)
}

func (t *Trampoline[T]) invoke(arg uintptr) {
	t.invocations.Add(1)
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			err = fmt.Errorf("upcall %s: delegate panicked: %w", t.label, err)
			t.d.log.Error("upcall delegate panicked", zap.String("trampoline", t.label), zap.Error(err))
			t.errMu.Lock()
			if t.err == nil {
				t.err = err
			}
			t.errMu.Unlock()
		}
	}()
	t.decode(layout.ViewAt(arg, t.l), &t.result)
	t.delegate(&t.result)
}
