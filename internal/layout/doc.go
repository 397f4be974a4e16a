// Package layout declares the memory shapes of the native engine's value types.
//
// A [Layout] mirrors one C struct: field order, offsets, natural alignment,
// explicit padding and trailing padding. Layouts are built once at process
// start and shared:
//
//	vec3 := layout.Default().MustOf(layout.TagVec3)
//	off, _ := layout.FieldOffset(hinge, "motorSettings.springSettings.damping")
//
// A [View] reads and writes a struct in native memory without any encoding
// step.
//
// # ABI drift
//
// A declared layout that disagrees with the compiled native struct cannot be
// detected by the type system; it shows up as silently corrupted fields. Run
// [Validate] against the library's size introspection call at startup and
// abort on error.
package layout
