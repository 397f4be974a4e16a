package arena

import (
	"fmt"
	"unsafe"

	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
)

// Buffer is scratch native memory owned by a Region. Every accessor panics
// with a fault.ErrUseAfterRelease error once the region is closed.
type Buffer struct {
	r      *Region
	ptr    unsafe.Pointer
	size   uintptr
	align  uintptr
	layout *layout.Layout
	count  int
}

func (b *Buffer) check() {
	if b.r.st.closed.Load() {
		panic(&fault.ReleaseError{Object: fmt.Sprintf("buffer %#x of region %s", uintptr(b.ptr), b.r.st.label)})
	}
}

// Valid reports whether the owning region is still open.
func (b *Buffer) Valid() bool { return !b.r.st.closed.Load() }

func (b *Buffer) Region() *Region { return b.r }

// Addr is the native address to pass to downcalls.
func (b *Buffer) Addr() uintptr {
	b.check()
	return uintptr(b.ptr)
}

func (b *Buffer) Pointer() unsafe.Pointer {
	b.check()
	return b.ptr
}

func (b *Buffer) Len() uintptr           { return b.size }
func (b *Buffer) Align() uintptr         { return b.align }
func (b *Buffer) Layout() *layout.Layout { return b.layout }
func (b *Buffer) Count() int             { return b.count }

// View decodes the buffer with the layout it was allocated for. For arrays
// it views the first element.
func (b *Buffer) View() layout.View {
	b.check()
	if b.layout == nil {
		panic(fmt.Sprintf("arena(%s): untyped buffer has no layout", b.r.st.label))
	}
	return layout.NewView(b.ptr, b.layout)
}

// Index views element i of an array buffer.
func (b *Buffer) Index(i int) layout.View {
	b.check()
	if b.layout == nil || i < 0 || i >= b.count {
		panic(fmt.Sprintf("arena(%s): index %d out of range [0,%d)", b.r.st.label, i, b.count))
	}
	return layout.NewView(unsafe.Add(b.ptr, uintptr(i)*b.layout.Size()), b.layout)
}

// Reinterpret views the same bytes through another layout without copying.
// The caller asserts the memory really holds an l; only size and alignment
// are checked.
func (b *Buffer) Reinterpret(l *layout.Layout) (layout.View, error) {
	b.check()
	if l.Size() > b.size {
		return layout.View{}, fmt.Errorf("arena: %s needs %d bytes, buffer has %d", l.Name(), l.Size(), b.size)
	}
	if uintptr(b.ptr)%l.Align() != 0 {
		return layout.View{}, fmt.Errorf("arena: buffer %#x is not %d-aligned for %s", uintptr(b.ptr), l.Align(), l.Name())
	}
	return layout.NewView(b.ptr, l), nil
}

// Bytes aliases the buffer memory.
func (b *Buffer) Bytes() []byte {
	b.check()
	return unsafe.Slice((*byte)(b.ptr), b.size)
}
