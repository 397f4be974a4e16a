// Package nativetest provides an in-process stand-in for the engine's shared
// library. Exports are plain Go funcs, so tests can drive the bridge end to
// end without a C toolchain or the real engine.
package nativetest

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/san-kum/jphbridge/internal/native"
)

const (
	symbolBase   uintptr = 0x1000
	callbackBase uintptr = 0x8000
	slotStride   uintptr = 0x10
)

// Library implements native.Library over Go funcs. Addresses it hands out are
// synthetic and only meaningful to the same Library.
type Library struct {
	name string

	mu        sync.RWMutex
	symbols   map[string]uintptr
	funcs     map[uintptr]reflect.Value
	callbacks map[uintptr]reflect.Value
	lookups   map[string]int
	nextSym   uintptr
	nextCb    uintptr
	closed    bool
}

var _ native.Library = (*Library)(nil)

func NewLibrary(name string) *Library {
	return &Library{
		name:      name,
		symbols:   make(map[string]uintptr),
		funcs:     make(map[uintptr]reflect.Value),
		callbacks: make(map[uintptr]reflect.Value),
		lookups:   make(map[string]int),
		nextSym:   symbolBase,
		nextCb:    callbackBase,
	}
}

func (l *Library) Name() string { return l.name }

// Export makes fn callable under symbol. Re-exporting replaces the previous
// function at the same address.
func (l *Library) Export(symbol string, fn any) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic(fmt.Sprintf("nativetest: export %s: %T is not a func", symbol, fn))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	addr, ok := l.symbols[symbol]
	if !ok {
		addr = l.nextSym
		l.nextSym += slotStride
		l.symbols[symbol] = addr
	}
	l.funcs[addr] = v
}

// Unexport removes symbol so later lookups fail.
func (l *Library) Unexport(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if addr, ok := l.symbols[symbol]; ok {
		delete(l.funcs, addr)
		delete(l.symbols, symbol)
	}
}

func (l *Library) Lookup(symbol string) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lookups[symbol]++
	if l.closed {
		return 0, native.ErrClosed
	}
	addr, ok := l.symbols[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s in %s", native.ErrNotExported, symbol, l.name)
	}
	return addr, nil
}

// Lookups reports how many times symbol was looked up.
func (l *Library) Lookups(symbol string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookups[symbol]
}

// Bind fails when fn differs from the exported func's type, which is how a
// real ABI mismatch surfaces in tests.
func (l *Library) Bind(addr uintptr, fn reflect.Type) (reflect.Value, error) {
	l.mu.RLock()
	v, ok := l.funcs[addr]
	l.mu.RUnlock()
	if !ok {
		return reflect.Value{}, fmt.Errorf("nativetest: no function at %#x", addr)
	}
	if v.Type() != fn {
		return reflect.Value{}, fmt.Errorf("nativetest: caller expects %s, library exports %s", fn, v.Type())
	}
	return v, nil
}

func (l *Library) NewCallback(fn any) (uintptr, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return 0, fmt.Errorf("nativetest: callback %T is not a func", fn)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	addr := l.nextCb
	l.nextCb += slotStride
	l.callbacks[addr] = v
	return addr, nil
}

// Callbacks returns the number of callback slots handed out.
func (l *Library) Callbacks() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.callbacks)
}

// Invoke calls the callback at cb the way native code would. An unknown
// address panics, standing in for a jump to garbage.
func (l *Library) Invoke(cb uintptr, args ...uintptr) {
	l.mu.RLock()
	fn, ok := l.callbacks[cb]
	l.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("nativetest: call through invalid function pointer %#x", cb))
	}
	t := fn.Type()
	if t.NumIn() != len(args) {
		panic(fmt.Sprintf("nativetest: callback %#x takes %d arguments, got %d", cb, t.NumIn(), len(args)))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a).Convert(t.In(i))
	}
	fn.Call(in)
}

// Symbols lists exported names in order.
func (l *Library) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.symbols))
	for name := range l.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
