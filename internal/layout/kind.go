package layout

import (
	"strconv"
	"unsafe"
)

// Kind is the native shape of a field, argument or return value.
type Kind uint8

const (
	Void Kind = iota
	Bool
	Uint8
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Pointer
	Struct
	Array
	Padding
)

// PointerSize is the width of a native pointer on the target ABI.
const PointerSize = unsafe.Sizeof(uintptr(0))

var kindNames = [...]string{
	Void:    "void",
	Bool:    "bool",
	Uint8:   "uint8",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
	Pointer: "pointer",
	Struct:  "struct",
	Array:   "array",
	Padding: "padding",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// IsPrimitive reports whether k is a scalar that can cross the call boundary
// by value.
func (k Kind) IsPrimitive() bool {
	return k >= Bool && k <= Pointer
}

// Size returns the byte size of a primitive kind, 0 otherwise.
// Enums are declared as Int32 and bool is one byte, as the C ABI lays them out.
func (k Kind) Size() uintptr {
	switch k {
	case Bool, Uint8:
		return 1
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	case Pointer:
		return PointerSize
	}
	return 0
}

// Align returns the natural alignment of a primitive kind. Padding bytes
// have alignment 1.
func (k Kind) Align() uintptr {
	switch k {
	case Padding:
		return 1
	case Int64, Uint64, Float64:
		// 8 on every 64-bit ABI the engine ships for.
		return 8
	}
	return k.Size()
}

func alignUp(x, a uintptr) uintptr {
	m := a - 1
	return (x + m) &^ m
}
