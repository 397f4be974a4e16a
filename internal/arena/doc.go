// Package arena provides scoped scratch memory for native calls.
//
// A Region hands out zeroed, aligned buffers from chunks obtained from a
// mem.Allocator and records native handles that owe a destroy call. Closing
// the region runs those destroy calls once, in reverse order, and then frees
// the chunks. A region nobody closes is released when it, or the object it
// was tied to with TieTo, is collected.
package arena
