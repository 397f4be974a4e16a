// Package native loads the engine's shared library and exposes the three
// primitives the rest of the bridge is built on: symbol lookup, binding a
// symbol address to a typed Go function, and turning a Go function into a
// native callback pointer.
//
// On unix platforms the implementation is purego, so no C toolchain is
// needed. Tests use the in-process engine from nativetest instead.
package native
