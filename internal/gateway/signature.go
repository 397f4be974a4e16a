package gateway

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/san-kum/jphbridge/internal/layout"
)

// MaxArgs is the most arguments a downcall may take.
const MaxArgs = 15

// Signature describes a native function in layout kinds. Aggregates travel
// by pointer, so only primitive kinds appear here.
type Signature struct {
	Ret  layout.Kind
	Args []layout.Kind
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Ret.String())
	b.WriteByte('(')
	for i, k := range s.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (s Signature) Equal(o Signature) bool {
	return s.Ret == o.Ret && slices.Equal(s.Args, o.Args)
}

// check returns a reason when the signature cannot be called, or "".
func (s Signature) check() string {
	if len(s.Args) > MaxArgs {
		return fmt.Sprintf("%d arguments, at most %d supported", len(s.Args), MaxArgs)
	}
	if s.Ret != layout.Void && !s.Ret.IsPrimitive() {
		return fmt.Sprintf("%s return must be passed through an out pointer", s.Ret)
	}
	for i, k := range s.Args {
		if k == layout.Void {
			return fmt.Sprintf("argument %d is void", i)
		}
		if !k.IsPrimitive() {
			return fmt.Sprintf("argument %d: %s cannot be passed by value", i, k)
		}
	}
	return ""
}

var goTypes = map[layout.Kind]reflect.Type{
	layout.Bool:    reflect.TypeFor[bool](),
	layout.Uint8:   reflect.TypeFor[uint8](),
	layout.Int32:   reflect.TypeFor[int32](),
	layout.Uint32:  reflect.TypeFor[uint32](),
	layout.Int64:   reflect.TypeFor[int64](),
	layout.Uint64:  reflect.TypeFor[uint64](),
	layout.Float32: reflect.TypeFor[float32](),
	layout.Float64: reflect.TypeFor[float64](),
	layout.Pointer: reflect.TypeFor[uintptr](),
}

// GoType is the Go type a kind is passed as across the boundary.
func GoType(k layout.Kind) (reflect.Type, bool) {
	t, ok := goTypes[k]
	return t, ok
}

// FuncType is the Go func type a native library binds s to.
func (s Signature) FuncType() reflect.Type {
	in := make([]reflect.Type, len(s.Args))
	for i, k := range s.Args {
		in[i] = goTypes[k]
	}
	var out []reflect.Type
	if s.Ret != layout.Void {
		out = []reflect.Type{goTypes[s.Ret]}
	}
	return reflect.FuncOf(in, out, false)
}
