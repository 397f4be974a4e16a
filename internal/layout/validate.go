package layout

import (
	"github.com/san-kum/jphbridge/internal/fault"
)

// SizeOfFunc reports the size the native library compiled a struct with.
// ok is false when the library does not know the name.
type SizeOfFunc func(name string) (size uintptr, ok bool)

// Validate compares every layout in r with the native library's struct sizes
// and reports all drifting layouts at once. A non-nil error unwraps to
// fault.ErrLayoutValidation; callers must abort before any native call.
// Layouts the library does not know are returned in unknown.
func Validate(r *Registry, sizeOf SizeOfFunc) (unknown []Tag, err error) {
	var mismatches []fault.LayoutMismatch
	for _, l := range r.All() {
		if cerr := Check(l); cerr != nil {
			mismatches = append(mismatches, fault.LayoutMismatch{Layout: l.name, Declared: l.size})
			continue
		}
		native, ok := sizeOf(l.name)
		if !ok {
			unknown = append(unknown, Tag(l.name))
			continue
		}
		if native != l.size {
			mismatches = append(mismatches, fault.LayoutMismatch{
				Layout:   l.name,
				Declared: l.size,
				Native:   native,
			})
		}
	}
	if len(mismatches) > 0 {
		return unknown, &fault.LayoutError{Mismatches: mismatches}
	}
	return unknown, nil
}
