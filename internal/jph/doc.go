// Package jph is the Go face of the physics engine. An Engine owns the
// resolved symbol table, the upcall dispatcher and one identity table per
// object family; wrappers such as Body and Shape are handed out through
// those tables so a native object always maps to the same Go value.
package jph
