package native

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"unsafe"
)

var (
	ErrNotExported = errors.New("native: symbol not exported")
	ErrUnsupported = errors.New("native: dynamic loading not supported on this platform")
	ErrClosed      = errors.New("native: library closed")
)

// Library is a loaded native library.
type Library interface {
	Name() string

	// Lookup returns the address of an exported symbol, or an error wrapping
	// ErrNotExported.
	Lookup(symbol string) (uintptr, error)

	// Bind returns a func value of type fn that calls the code at addr using
	// the platform C calling convention.
	Bind(addr uintptr, fn reflect.Type) (reflect.Value, error)

	// NewCallback returns a native function pointer that calls fn. Callback
	// slots are a finite process resource and are never reclaimed.
	NewCallback(fn any) (uintptr, error)

	Close() error
}

// DefaultNames are the file names tried by Load when no path is configured.
func DefaultNames() []string {
	switch runtime.GOOS {
	case "darwin", "ios":
		return []string{"libjoltc.dylib", "/usr/local/lib/libjoltc.dylib", "/opt/homebrew/lib/libjoltc.dylib"}
	case "windows":
		return []string{"joltc.dll"}
	default:
		return []string{"libjoltc.so", "/usr/local/lib/libjoltc.so", "/usr/lib/libjoltc.so"}
	}
}

// Load opens the first candidate that loads. With no candidates it tries
// DefaultNames.
func Load(candidates ...string) (Library, error) {
	if len(candidates) == 0 {
		candidates = DefaultNames()
	}
	var errs []error
	for _, name := range candidates {
		lib, err := Open(name)
		if err == nil {
			return lib, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("native: no engine library found: %w", errors.Join(errs...))
}

// GoString copies the NUL-terminated string at addr.
func GoString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	p := unsafe.Pointer(addr)
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}
