//go:build darwin || freebsd || linux

package native

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ebitengine/purego"
)

type dynLib struct {
	name   string
	mu     sync.RWMutex
	handle uintptr
}

// Open loads a shared library with immediate binding so a missing dependency
// fails here rather than at the first call.
func Open(path string) (Library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("native: open %s: %w", path, err)
	}
	return &dynLib{name: path, handle: h}, nil
}

func (l *dynLib) Name() string { return l.name }

func (l *dynLib) Lookup(symbol string) (uintptr, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.handle == 0 {
		return 0, ErrClosed
	}
	addr, err := purego.Dlsym(l.handle, symbol)
	if err != nil || addr == 0 {
		return 0, fmt.Errorf("%w: %s in %s", ErrNotExported, symbol, l.name)
	}
	return addr, nil
}

func (l *dynLib) Bind(addr uintptr, fn reflect.Type) (v reflect.Value, err error) {
	if fn.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("native: bind target %s is not a func type", fn)
	}
	if addr == 0 {
		return reflect.Value{}, fmt.Errorf("native: bind %s to nil address", fn)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native: bind %s: %v", fn, r)
		}
	}()
	fp := reflect.New(fn)
	purego.RegisterFunc(fp.Interface(), addr)
	return fp.Elem(), nil
}

func (l *dynLib) NewCallback(fn any) (cb uintptr, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native: callback: %v", r)
		}
	}()
	return purego.NewCallback(fn), nil
}

func (l *dynLib) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	if err != nil {
		return fmt.Errorf("native: close %s: %w", l.name, err)
	}
	return nil
}
