package native

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"unsafe"

	"github.com/san-kum/jphbridge/internal/mem"
)

func init() {
	mem.Register("libc", func() (mem.Allocator, error) { return NewLibC() })
}

// LibC allocates chunks with the C runtime's posix_memalign. Chunks live
// outside both heaps the Go runtime knows about, which matches what native
// code expects of memory it keeps pointers to.
type LibC struct {
	lib      Library
	memalign func(out *unsafe.Pointer, align, size uintptr) int32
	free     func(p unsafe.Pointer)

	mu   sync.Mutex
	live map[uintptr]uintptr
}

func libcName() string {
	switch runtime.GOOS {
	case "darwin", "ios":
		return "/usr/lib/libSystem.B.dylib"
	case "freebsd":
		return "libc.so.7"
	default:
		return "libc.so.6"
	}
}

func NewLibC() (*LibC, error) {
	lib, err := Open(libcName())
	if err != nil {
		return nil, err
	}
	c, err := NewLibCFrom(lib)
	if err != nil {
		lib.Close()
		return nil, err
	}
	return c, nil
}

// NewLibCFrom binds the allocator to an already loaded library exporting
// posix_memalign and free.
func NewLibCFrom(lib Library) (*LibC, error) {
	c := &LibC{lib: lib, live: make(map[uintptr]uintptr)}
	if err := bindInto(lib, "posix_memalign", &c.memalign); err != nil {
		return nil, err
	}
	if err := bindInto(lib, "free", &c.free); err != nil {
		return nil, err
	}
	return c, nil
}

func bindInto[F any](lib Library, symbol string, fn *F) error {
	addr, err := lib.Lookup(symbol)
	if err != nil {
		return err
	}
	v, err := lib.Bind(addr, reflect.TypeOf(fn).Elem())
	if err != nil {
		return fmt.Errorf("native: %s: %w", symbol, err)
	}
	*fn = v.Interface().(F)
	return nil
}

func (c *LibC) Name() string { return "libc" }

func (c *LibC) Alloc(size, align uintptr) (unsafe.Pointer, error) {
	if err := mem.CheckRequest(size, align); err != nil {
		return nil, err
	}
	if align < unsafe.Sizeof(uintptr(0)) {
		align = unsafe.Sizeof(uintptr(0))
	}
	var p unsafe.Pointer
	if rc := c.memalign(&p, align, size); rc != 0 || p == nil {
		return nil, fmt.Errorf("native: posix_memalign(%d, %d) failed: errno %d", align, size, rc)
	}
	c.mu.Lock()
	c.live[uintptr(p)] = size
	c.mu.Unlock()
	return p, nil
}

func (c *LibC) Free(p unsafe.Pointer, _ uintptr) error {
	c.mu.Lock()
	_, ok := c.live[uintptr(p)]
	delete(c.live, uintptr(p))
	c.mu.Unlock()
	if !ok {
		return mem.ErrUnknownChunk
	}
	c.free(p)
	return nil
}

// Live returns the number of chunks not yet freed.
func (c *LibC) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}
