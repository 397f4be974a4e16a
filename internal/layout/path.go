package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldRef is a resolved dotted path: the absolute offset from the start of
// the outermost layout and the shape found there.
type FieldRef struct {
	Path   string
	Offset uintptr
	Size   uintptr
	Kind   Kind
	// Layout is set when the path ends on a nested struct.
	Layout *Layout
}

// Lookup resolves paths such as "motorSettings.springSettings.damping" or
// "column[2].w". Results are cached on the layout.
func (l *Layout) Lookup(path string) (FieldRef, error) {
	if v, ok := l.refs.Load(path); ok {
		return v.(FieldRef), nil
	}
	ref, err := l.resolve(path)
	if err != nil {
		return FieldRef{}, err
	}
	l.refs.Store(path, ref)
	return ref, nil
}

// MustLookup panics on an unknown path; for offsets computed once at init.
func (l *Layout) MustLookup(path string) FieldRef {
	ref, err := l.Lookup(path)
	if err != nil {
		panic(err)
	}
	return ref
}

// FieldOffset returns the byte offset of a dotted path inside l.
func FieldOffset(l *Layout, path string) (uintptr, error) {
	ref, err := l.Lookup(path)
	if err != nil {
		return 0, err
	}
	return ref.Offset, nil
}

func (l *Layout) resolve(path string) (FieldRef, error) {
	if path == "" {
		return FieldRef{Kind: Struct, Size: l.size, Layout: l}, nil
	}

	cur := l
	var off uintptr
	ref := FieldRef{Path: path}
	parts := strings.Split(path, ".")

	for i, part := range parts {
		if cur == nil {
			return FieldRef{}, fmt.Errorf("layout(%s): %q: %s is not a struct", l.name, path, strings.Join(parts[:i], "."))
		}
		name, idx, indexed, err := splitIndex(part)
		if err != nil {
			return FieldRef{}, fmt.Errorf("layout(%s): %q: %w", l.name, path, err)
		}
		f, ok := cur.Field(name)
		if !ok {
			return FieldRef{}, fmt.Errorf("layout(%s): %q: no field %s in %s", l.name, path, name, cur.name)
		}
		off += f.Offset

		switch {
		case indexed:
			if f.Kind != Array {
				return FieldRef{}, fmt.Errorf("layout(%s): %q: %s is not an array", l.name, path, name)
			}
			if idx < 0 || idx >= f.Count {
				return FieldRef{}, fmt.Errorf("layout(%s): %q: index %d out of range [0,%d)", l.name, path, idx, f.Count)
			}
			if f.ElemKind == Struct {
				off += uintptr(idx) * f.Elem.size
				ref.Kind, ref.Size, ref.Layout = Struct, f.Elem.size, f.Elem
				cur = f.Elem
			} else {
				off += uintptr(idx) * f.ElemKind.Size()
				ref.Kind, ref.Size, ref.Layout = f.ElemKind, f.ElemKind.Size(), nil
				cur = nil
			}
		case f.Kind == Struct:
			ref.Kind, ref.Size, ref.Layout = Struct, f.Size, f.Elem
			cur = f.Elem
		default:
			ref.Kind, ref.Size, ref.Layout = f.Kind, f.Size, nil
			cur = nil
		}
	}
	ref.Offset = off
	return ref, nil
}

func splitIndex(part string) (string, int, bool, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, 0, false, nil
	}
	if !strings.HasSuffix(part, "]") {
		return "", 0, false, fmt.Errorf("malformed index in %q", part)
	}
	n, err := strconv.Atoi(part[open+1 : len(part)-1])
	if err != nil {
		return "", 0, false, fmt.Errorf("malformed index in %q: %w", part, err)
	}
	return part[:open], n, true, nil
}
