package layout

import (
	"fmt"
	"unsafe"
)

// View reads and writes one native struct in place. Loads and stores go
// straight to memory: there is no encoding step and floats keep their bits.
//
// A View does not own its memory. The caller guarantees the memory is live
// and at least Layout().Size() bytes long.
type View struct {
	base unsafe.Pointer
	l    *Layout
}

func NewView(p unsafe.Pointer, l *Layout) View {
	return View{base: p, l: l}
}

// ViewAt wraps an address handed over by native code.
func ViewAt(addr uintptr, l *Layout) View {
	return View{base: unsafe.Pointer(addr), l: l}
}

func (v View) Layout() *Layout        { return v.l }
func (v View) Pointer() unsafe.Pointer { return v.base }
func (v View) Addr() uintptr           { return uintptr(v.base) }
func (v View) IsNil() bool             { return v.base == nil }

// Bytes aliases the viewed memory.
func (v View) Bytes() []byte {
	return unsafe.Slice((*byte)(v.base), v.l.size)
}

// Sub returns a view of a nested struct member.
func (v View) Sub(path string) View {
	ref := v.ref(path, Struct)
	return View{base: unsafe.Add(v.base, ref.Offset), l: ref.Layout}
}

func (v View) ref(path string, want Kind) FieldRef {
	ref, err := v.l.Lookup(path)
	if err != nil {
		panic(err)
	}
	if ref.Kind != want {
		panic(fmt.Sprintf("layout(%s): %q is %s, accessed as %s", v.l.name, path, ref.Kind, want))
	}
	return ref
}

func (v View) at(path string, want Kind) unsafe.Pointer {
	return unsafe.Add(v.base, v.ref(path, want).Offset)
}

func (v View) Bool(path string) bool           { return *(*byte)(v.at(path, Bool)) != 0 }
func (v View) Uint8(path string) uint8         { return *(*uint8)(v.at(path, Uint8)) }
func (v View) Int32(path string) int32         { return *(*int32)(v.at(path, Int32)) }
func (v View) Uint32(path string) uint32       { return *(*uint32)(v.at(path, Uint32)) }
func (v View) Int64(path string) int64         { return *(*int64)(v.at(path, Int64)) }
func (v View) Uint64(path string) uint64       { return *(*uint64)(v.at(path, Uint64)) }
func (v View) Float32(path string) float32     { return *(*float32)(v.at(path, Float32)) }
func (v View) Float64(path string) float64     { return *(*float64)(v.at(path, Float64)) }
func (v View) Address(path string) uintptr     { return *(*uintptr)(v.at(path, Pointer)) }
func (v View) SetUint8(path string, x uint8)   { *(*uint8)(v.at(path, Uint8)) = x }
func (v View) SetInt32(path string, x int32)   { *(*int32)(v.at(path, Int32)) = x }
func (v View) SetUint32(path string, x uint32) { *(*uint32)(v.at(path, Uint32)) = x }
func (v View) SetInt64(path string, x int64)   { *(*int64)(v.at(path, Int64)) = x }
func (v View) SetUint64(path string, x uint64) { *(*uint64)(v.at(path, Uint64)) = x }
func (v View) SetFloat32(path string, x float32) {
	*(*float32)(v.at(path, Float32)) = x
}
func (v View) SetFloat64(path string, x float64) {
	*(*float64)(v.at(path, Float64)) = x
}
func (v View) SetAddress(path string, x uintptr) {
	*(*uintptr)(v.at(path, Pointer)) = x
}

func (v View) SetBool(path string, x bool) {
	var b byte
	if x {
		b = 1
	}
	*(*byte)(v.at(path, Bool)) = b
}

// Raw offset accessors for decoders that resolved their offsets once.

func (v View) Float32At(off uintptr) float32 { return *(*float32)(unsafe.Add(v.base, off)) }
func (v View) Uint32At(off uintptr) uint32   { return *(*uint32)(unsafe.Add(v.base, off)) }
func (v View) BoolAt(off uintptr) bool       { return *(*byte)(unsafe.Add(v.base, off)) != 0 }
