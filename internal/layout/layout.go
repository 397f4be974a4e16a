package layout

import (
	"fmt"
	"sync"
)

// Field is one member of a Layout with its computed offset.
type Field struct {
	Name   string
	Offset uintptr
	Size   uintptr
	Align  uintptr
	Kind   Kind
	// Elem is the nested layout of a Struct field, or of an Array of structs.
	Elem *Layout
	// ElemKind is the element kind of an Array of primitives.
	ElemKind Kind
	// Count is the element count of an Array or the byte count of Padding.
	Count int
}

// Layout describes the memory shape of one native value type. Layouts are
// immutable once built and are shared by every buffer of that type.
type Layout struct {
	name   string
	size   uintptr
	align  uintptr
	fields []Field
	index  map[string]int

	refs sync.Map // dotted path -> FieldRef
}

func (l *Layout) Name() string   { return l.name }
func (l *Layout) Size() uintptr  { return l.size }
func (l *Layout) Align() uintptr { return l.align }

// Fields returns the fields in declaration order, padding included.
func (l *Layout) Fields() []Field {
	out := make([]Field, len(l.fields))
	copy(out, l.fields)
	return out
}

// Field returns the direct member called name.
func (l *Layout) Field(name string) (Field, bool) {
	i, ok := l.index[name]
	if !ok {
		return Field{}, false
	}
	return l.fields[i], true
}

func (l *Layout) String() string {
	return fmt.Sprintf("%s(size=%d align=%d)", l.name, l.size, l.align)
}

// FieldSpec declares a struct member; build them with F, Nested, ArrayOf and Pad.
type FieldSpec struct {
	name     string
	kind     Kind
	elem     *Layout
	elemKind Kind
	count    int
}

// F declares a primitive member.
func F(name string, k Kind) FieldSpec {
	return FieldSpec{name: name, kind: k}
}

// Nested declares a member whose type is another layout.
func Nested(name string, l *Layout) FieldSpec {
	return FieldSpec{name: name, kind: Struct, elem: l}
}

// ArrayOf declares a fixed-length array member. elem is a primitive Kind or
// a *Layout.
func ArrayOf(name string, elem any, n int) FieldSpec {
	fs := FieldSpec{name: name, kind: Array, count: n}
	switch e := elem.(type) {
	case Kind:
		fs.elemKind = e
	case *Layout:
		fs.elemKind = Struct
		fs.elem = e
	}
	return fs
}

// Pad declares n bytes of padding the native compiler inserts. The bytes must
// sit exactly where natural alignment would put them.
func Pad(n int) FieldSpec {
	return FieldSpec{kind: Padding, count: n}
}

func (fs FieldSpec) sizeAlign() (uintptr, uintptr, error) {
	switch fs.kind {
	case Padding:
		if fs.count <= 0 {
			return 0, 0, fmt.Errorf("padding must be positive, got %d", fs.count)
		}
		return uintptr(fs.count), 1, nil
	case Struct:
		if fs.elem == nil {
			return 0, 0, fmt.Errorf("field %s: nil nested layout", fs.name)
		}
		return fs.elem.size, fs.elem.align, nil
	case Array:
		if fs.count <= 0 {
			return 0, 0, fmt.Errorf("field %s: array length must be positive, got %d", fs.name, fs.count)
		}
		if fs.elemKind == Struct {
			if fs.elem == nil {
				return 0, 0, fmt.Errorf("field %s: nil array element layout", fs.name)
			}
			return uintptr(fs.count) * fs.elem.size, fs.elem.align, nil
		}
		if !fs.elemKind.IsPrimitive() {
			return 0, 0, fmt.Errorf("field %s: array of %s not supported", fs.name, fs.elemKind)
		}
		return uintptr(fs.count) * fs.elemKind.Size(), fs.elemKind.Align(), nil
	}
	if !fs.kind.IsPrimitive() {
		return 0, 0, fmt.Errorf("field %s: kind %s cannot be a struct member", fs.name, fs.kind)
	}
	return fs.kind.Size(), fs.kind.Align(), nil
}

// NewStruct lays out the given members using the C rules: every member at its
// natural alignment, trailing padding up to the struct alignment.
func NewStruct(name string, specs ...FieldSpec) (*Layout, error) {
	l := &Layout{
		name:   name,
		fields: make([]Field, 0, len(specs)),
		index:  make(map[string]int, len(specs)),
	}

	var off uintptr
	maxAlign := uintptr(1)
	padStart := -1
	pads := 0

	for _, fs := range specs {
		size, a, err := fs.sizeAlign()
		if err != nil {
			return nil, fmt.Errorf("layout(%s): %w", name, err)
		}

		if fs.kind == Padding {
			if padStart < 0 {
				padStart = int(off)
			}
			l.fields = append(l.fields, Field{
				Name:   fmt.Sprintf("_pad%d", pads),
				Offset: off,
				Size:   size,
				Align:  1,
				Kind:   Padding,
				Count:  fs.count,
			})
			pads++
			off += size
			continue
		}

		if padStart >= 0 {
			if natural := alignUp(uintptr(padStart), a); natural != off {
				return nil, fmt.Errorf("layout(%s): %d explicit padding bytes before %s, natural alignment puts it at %d not %d",
					name, off-uintptr(padStart), fs.name, natural, off)
			}
			padStart = -1
		}
		if fs.name == "" {
			return nil, fmt.Errorf("layout(%s): unnamed field", name)
		}
		if _, dup := l.index[fs.name]; dup {
			return nil, fmt.Errorf("layout(%s): duplicate field %s", name, fs.name)
		}

		off = alignUp(off, a)
		l.index[fs.name] = len(l.fields)
		l.fields = append(l.fields, Field{
			Name:     fs.name,
			Offset:   off,
			Size:     size,
			Align:    a,
			Kind:     fs.kind,
			Elem:     fs.elem,
			ElemKind: fs.elemKind,
			Count:    fs.count,
		})
		off += size
		if a > maxAlign {
			maxAlign = a
		}
	}

	if padStart >= 0 {
		if natural := alignUp(uintptr(padStart), maxAlign); natural != off {
			return nil, fmt.Errorf("layout(%s): trailing padding ends at %d, natural size is %d", name, off, natural)
		}
	}

	l.align = maxAlign
	l.size = alignUp(off, maxAlign)
	if err := Check(l); err != nil {
		return nil, err
	}
	return l, nil
}

// MustStruct is NewStruct for layouts declared at process start.
func MustStruct(name string, specs ...FieldSpec) *Layout {
	l, err := NewStruct(name, specs...)
	if err != nil {
		panic(err)
	}
	return l
}

// Check verifies the layout invariants: every field ends inside the struct and
// the size is a multiple of the alignment.
func Check(l *Layout) error {
	if l.align == 0 || l.align&(l.align-1) != 0 {
		return fmt.Errorf("layout(%s): alignment %d is not a power of two", l.name, l.align)
	}
	if l.size%l.align != 0 {
		return fmt.Errorf("layout(%s): size %d is not a multiple of alignment %d", l.name, l.size, l.align)
	}
	for _, f := range l.fields {
		if f.Offset+f.Size > l.size {
			return fmt.Errorf("layout(%s): field %s ends at %d past size %d", l.name, f.Name, f.Offset+f.Size, l.size)
		}
		if f.Offset%f.Align != 0 {
			return fmt.Errorf("layout(%s): field %s at %d is not %d-aligned", l.name, f.Name, f.Offset, f.Align)
		}
	}
	return nil
}
