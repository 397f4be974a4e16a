package arena

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
	"github.com/san-kum/jphbridge/internal/mem"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize uintptr = 16 * 1024
	chunkAlign       uintptr = 16
	poisonByte       byte    = 0xdb
)

// Region is a scope for scratch native memory. Every buffer allocated from a
// region is released exactly once: on Close, or when the region (or the
// object it is tied to) becomes unreachable. Collection-driven release is a
// safety net with no timing guarantee; call Close for determinism.
//
// A Region is confined to one goroutine. Only Close is safe to race with the
// collection-driven release.
type Region struct {
	st *state
}

type chunk struct {
	ptr  unsafe.Pointer
	size uintptr
}

type state struct {
	mu        sync.Mutex
	closed    atomic.Bool
	alloc     mem.Allocator
	chunkSize uintptr
	poison    bool
	label     string
	log       *zap.Logger

	chunks   []chunk
	offset   uintptr
	bound    []*Bound
	children []*state
	parent   *state

	buffers int
	used    uintptr
}

type Option func(*state)

func WithChunkSize(n uintptr) Option {
	return func(s *state) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithPoison overwrites released memory with a marker pattern so native code
// that kept a pointer past release reads garbage instead of stale values.
func WithPoison(on bool) Option {
	return func(s *state) { s.poison = on }
}

func WithLabel(label string) Option {
	return func(s *state) { s.label = label }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *state) {
		if l != nil {
			s.log = l
		}
	}
}

func New(alloc mem.Allocator, opts ...Option) *Region {
	st := &state{
		alloc:     alloc,
		chunkSize: DefaultChunkSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(st)
	}
	return newRegion(st)
}

func newRegion(st *state) *Region {
	r := &Region{st: st}
	runtime.AddCleanup(r, releaseUnreachable, st)
	return r
}

// TieTo closes r once owner becomes unreachable. owner must not be reachable
// from r's bound cleanups.
func TieTo[T any](r *Region, owner *T) {
	runtime.AddCleanup(owner, releaseUnreachable, r.st)
}

func releaseUnreachable(st *state) {
	if st.closed.Load() {
		return
	}
	if err := st.close(); err != nil {
		st.log.Error("release of unreachable region failed", zap.String("region", st.label), zap.Error(err))
		return
	}
	st.log.Debug("released unreachable region", zap.String("region", st.label))
}

// Child returns a region nested in r. Closing r closes the child first.
// Buffers of the child must not be captured by anything that outlives it;
// the region cannot detect that. opts override settings inherited from r.
func (r *Region) Child(opts ...Option) *Region {
	p := r.st
	st := &state{
		alloc:     p.alloc,
		chunkSize: p.chunkSize,
		poison:    p.poison,
		label:     p.label + "/child",
		log:       p.log,
		parent:    p,
	}
	for _, opt := range opts {
		opt(st)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		st.closed.Store(true)
		return &Region{st: st}
	}
	p.children = append(p.children, st)
	return newRegion(st)
}

func (r *Region) Closed() bool  { return r.st.closed.Load() }
func (r *Region) Label() string { return r.st.label }

// Close releases every bound handle and every buffer. Closing an already
// closed region is a no-op.
func (r *Region) Close() error {
	return r.st.close()
}

func (s *state) close() error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil
	}
	s.closed.Store(true)
	children, bound, chunks := s.children, s.bound, s.chunks
	s.children, s.bound, s.chunks = nil, nil, nil
	parent := s.parent
	s.mu.Unlock()

	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(bound) - 1; i >= 0; i-- {
		if err := bound[i].run(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range chunks {
		if s.poison {
			mem.Fill(c.ptr, c.size, poisonByte)
		}
		if err := s.alloc.Free(c.ptr, c.size); err != nil {
			errs = append(errs, fmt.Errorf("arena(%s): %w", s.label, err))
		}
	}
	if parent != nil {
		parent.forget(s)
	}
	return errors.Join(errs...)
}

func (s *state) forget(child *state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// Allocate returns a zeroed buffer shaped by l.
func (r *Region) Allocate(l *layout.Layout) (*Buffer, error) {
	return r.allocate(l.Size(), l.Align(), l, 1)
}

// AllocateArray returns a zeroed buffer of n consecutive l values.
func (r *Region) AllocateArray(l *layout.Layout, n int) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("arena(%s): array length must be positive, got %d", r.st.label, n)
	}
	return r.allocate(l.Size()*uintptr(n), l.Align(), l, n)
}

// AllocateBytes returns a zeroed untyped buffer.
func (r *Region) AllocateBytes(size, align uintptr) (*Buffer, error) {
	return r.allocate(size, align, nil, 0)
}

func (r *Region) allocate(size, align uintptr, l *layout.Layout, count int) (*Buffer, error) {
	s := r.st
	if size == 0 {
		size = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, &fault.ReleaseError{Object: "region " + s.label}
	}

	var (
		c   *chunk
		off uintptr
	)
	if n := len(s.chunks); n > 0 {
		c = &s.chunks[n-1]
		off = alignedOffset(c.ptr, s.offset, align)
	}
	if c == nil || off+size > c.size {
		want := s.chunkSize
		if size+align > want {
			want = alignUp(size+align, chunkAlign)
		}
		a := chunkAlign
		if align > a {
			a = align
		}
		p, err := s.alloc.Alloc(want, a)
		if err != nil {
			return nil, fmt.Errorf("arena(%s): %w", s.label, err)
		}
		s.chunks = append(s.chunks, chunk{ptr: p, size: want})
		c = &s.chunks[len(s.chunks)-1]
		off = alignedOffset(c.ptr, 0, align)
	}

	p := unsafe.Add(c.ptr, off)
	mem.Zero(p, size)
	s.offset = off + size
	s.buffers++
	s.used += size

	return &Buffer{r: r, ptr: p, size: size, align: align, layout: l, count: count}, nil
}

// CString copies s into the region as a NUL-terminated string.
func (r *Region) CString(s string) (*Buffer, error) {
	b, err := r.allocate(uintptr(len(s))+1, 1, nil, 0)
	if err != nil {
		return nil, err
	}
	copy(b.Bytes(), s)
	return b, nil
}

// Bound is a native handle whose matching destroy call is owed by a region.
type Bound struct {
	handle  uintptr
	once    sync.Once
	cleanup func(uintptr) error
	err     error
	done    atomic.Bool
}

func (b *Bound) Handle() uintptr { return b.handle }
func (b *Bound) Released() bool  { return b.done.Load() }

// Release runs the cleanup now instead of at region close. It still runs at
// most once.
func (b *Bound) Release() error {
	return b.run()
}

func (b *Bound) run() error {
	b.once.Do(func() {
		defer b.done.Store(true)
		defer func() {
			if rec := recover(); rec != nil {
				b.err = fmt.Errorf("cleanup of %#x panicked: %v", b.handle, rec)
			}
		}()
		b.err = b.cleanup(b.handle)
	})
	return b.err
}

// BindCleanup records that handle must receive exactly one call to cleanup,
// run when the region is released. Cleanups run in reverse binding order,
// before the region's memory is freed.
func (r *Region) BindCleanup(handle uintptr, cleanup func(uintptr) error) (*Bound, error) {
	s := r.st
	b := &Bound{handle: handle, cleanup: cleanup}
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil, &fault.ReleaseError{Object: "region " + s.label}
	}
	s.bound = append(s.bound, b)
	s.mu.Unlock()
	return b, nil
}

// Stats is a snapshot of a region's bookkeeping.
type Stats struct {
	Chunks   int
	Reserved uintptr
	Used     uintptr
	Buffers  int
	Bound    int
	Children int
	Closed   bool
}

func (r *Region) Stats() Stats {
	s := r.st
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Chunks:   len(s.chunks),
		Used:     s.used,
		Buffers:  s.buffers,
		Bound:    len(s.bound),
		Children: len(s.children),
		Closed:   s.closed.Load(),
	}
	for _, c := range s.chunks {
		st.Reserved += c.size
	}
	return st
}

// alignedOffset is the first offset at or after off whose address in the
// chunk at base is a multiple of align. Chunks are only chunkAlign aligned.
func alignedOffset(base unsafe.Pointer, off, align uintptr) uintptr {
	b := uintptr(base)
	return alignUp(b+off, align) - b
}

func alignUp(x, a uintptr) uintptr {
	if a <= 1 {
		return x
	}
	m := a - 1
	return (x + m) &^ m
}
