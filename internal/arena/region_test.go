package arena

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
	"github.com/san-kum/jphbridge/internal/mem"
)

func vec3() *layout.Layout {
	return layout.Default().MustOf(layout.TagVec3)
}

func TestCloseTwiceRunsCleanupOnce(t *testing.T) {
	heap := mem.NewGoHeap()
	r := New(heap)

	if _, err := r.Allocate(vec3()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Allocate(layout.Default().MustOf(layout.TagQuat)); err != nil {
		t.Fatal(err)
	}

	var calls int
	var got uintptr
	if _, err := r.BindCleanup(0xbeef, func(h uintptr) error {
		calls++
		got = h
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if calls != 1 {
		t.Errorf("cleanup ran %d times, want 1", calls)
	}
	if got != 0xbeef {
		t.Errorf("cleanup got handle %#x, want 0xbeef", got)
	}
	if heap.Live() != 0 {
		t.Errorf("expected all chunks freed, %d live", heap.Live())
	}
}

func TestBufferIsZeroedAndAligned(t *testing.T) {
	r := New(mem.NewGoHeap(), WithChunkSize(64))
	defer r.Close()

	for i := 0; i < 10; i++ {
		b, err := r.Allocate(layout.Default().MustOf(layout.TagConstraintSettings))
		if err != nil {
			t.Fatal(err)
		}
		if b.Addr()%8 != 0 {
			t.Errorf("buffer %d at %#x not 8-aligned", i, b.Addr())
		}
		for j, x := range b.Bytes() {
			if x != 0 {
				t.Fatalf("buffer %d byte %d = %x, want 0", i, j, x)
			}
		}
		b.View().SetUint64("userData", ^uint64(0))
	}
	st := r.Stats()
	if st.Buffers != 10 {
		t.Errorf("buffers = %d, want 10", st.Buffers)
	}
	if st.Chunks < 5 {
		t.Errorf("expected a new chunk every two buffers, got %d chunks", st.Chunks)
	}
}

// skewed hands out chunks that are 16 but never 32 aligned.
type skewed struct {
	heap *mem.GoHeap
}

const skew = 16

func (s skewed) Name() string { return "skewed" }

func (s skewed) Alloc(size, align uintptr) (unsafe.Pointer, error) {
	p, err := s.heap.Alloc(size+64+skew, 64)
	if err != nil {
		return nil, err
	}
	return unsafe.Add(p, skew), nil
}

func (s skewed) Free(p unsafe.Pointer, size uintptr) error {
	return s.heap.Free(unsafe.Add(p, -skew), size+64+skew)
}

func TestOverAlignedRequestOnSkewedChunk(t *testing.T) {
	r := New(skewed{heap: mem.NewGoHeap()}, WithChunkSize(256))
	defer r.Close()

	tests := []struct {
		size, align uintptr
	}{
		{1, 1},
		{8, 64},
		{3, 1},
		{16, 32},
		{4, 128},
		{200, 64},
	}
	for _, tt := range tests {
		b, err := r.AllocateBytes(tt.size, tt.align)
		if err != nil {
			t.Fatalf("AllocateBytes(%d, %d): %v", tt.size, tt.align, err)
		}
		if b.Addr()%tt.align != 0 {
			t.Errorf("AllocateBytes(%d, %d) at %#x, %d mod %d", tt.size, tt.align, b.Addr(), b.Addr()%tt.align, tt.align)
		}
		clear(b.Bytes())
	}
}

func TestLargeAllocationGetsOwnChunk(t *testing.T) {
	r := New(mem.NewGoHeap(), WithChunkSize(32))
	defer r.Close()
	b, err := r.AllocateArray(vec3(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 1200 {
		t.Errorf("len = %d, want 1200", b.Len())
	}
	b.Index(99).SetFloat32("z", 9)
	if got := b.Index(99).Float32("z"); got != 9 {
		t.Errorf("z = %v", got)
	}
}

func TestUseAfterReleasePanics(t *testing.T) {
	r := New(mem.NewGoHeap())
	b, err := r.Allocate(vec3())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if b.Valid() {
		t.Error("buffer should be invalid after close")
	}

	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, fault.ErrUseAfterRelease) {
			t.Errorf("expected use-after-release panic, got %v", rec)
		}
	}()
	_ = b.View()
}

func TestAllocateAfterClose(t *testing.T) {
	r := New(mem.NewGoHeap())
	r.Close()
	if _, err := r.Allocate(vec3()); !errors.Is(err, fault.ErrUseAfterRelease) {
		t.Errorf("expected ErrUseAfterRelease, got %v", err)
	}
	if _, err := r.BindCleanup(1, func(uintptr) error { return nil }); !errors.Is(err, fault.ErrUseAfterRelease) {
		t.Errorf("expected ErrUseAfterRelease, got %v", err)
	}
}

func TestChildClosedWithParent(t *testing.T) {
	heap := mem.NewGoHeap()
	parent := New(heap, WithLabel("parent"))
	child := parent.Child()

	var order []string
	parent.BindCleanup(1, func(uintptr) error { order = append(order, "parent"); return nil })
	child.BindCleanup(2, func(uintptr) error { order = append(order, "child"); return nil })
	if _, err := child.Allocate(vec3()); err != nil {
		t.Fatal(err)
	}

	if err := parent.Close(); err != nil {
		t.Fatal(err)
	}
	if !child.Closed() {
		t.Error("child should close with parent")
	}
	if len(order) != 2 || order[0] != "child" || order[1] != "parent" {
		t.Errorf("cleanup order = %v, want [child parent]", order)
	}
	if heap.Live() != 0 {
		t.Errorf("%d chunks leaked", heap.Live())
	}
}

func TestChildCloseDetachesFromParent(t *testing.T) {
	parent := New(mem.NewGoHeap())
	defer parent.Close()
	child := parent.Child()
	if parent.Stats().Children != 1 {
		t.Fatalf("expected 1 child")
	}
	child.Close()
	if parent.Stats().Children != 0 {
		t.Errorf("closed child still attached")
	}
}

func TestCleanupOrderAndErrors(t *testing.T) {
	r := New(mem.NewGoHeap())
	var order []uintptr
	for h := uintptr(1); h <= 3; h++ {
		r.BindCleanup(h, func(h uintptr) error {
			order = append(order, h)
			if h == 2 {
				return errors.New("destroy failed")
			}
			return nil
		})
	}
	r.BindCleanup(4, func(uintptr) error { panic("boom") })

	err := r.Close()
	if err == nil {
		t.Fatal("expected joined cleanup errors")
	}
	if want := []uintptr{3, 2, 1}; len(order) != 3 || order[0] != want[0] || order[2] != want[2] {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestBoundReleaseEarlyIsOnce(t *testing.T) {
	r := New(mem.NewGoHeap())
	var calls atomic.Int32
	b, _ := r.BindCleanup(7, func(uintptr) error { calls.Add(1); return nil })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Release()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Close()
	}()
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("cleanup ran %d times, want 1", calls.Load())
	}
	if !b.Released() {
		t.Error("bound should report released")
	}
}

func TestReinterpret(t *testing.T) {
	r := New(mem.NewGoHeap())
	defer r.Close()
	b, _ := r.Allocate(layout.Default().MustOf(layout.TagVec4))
	b.View().SetFloat32("y", 2.5)

	v, err := b.Reinterpret(vec3())
	if err != nil {
		t.Fatal(err)
	}
	if v.Addr() != b.Addr() || v.Float32("y") != 2.5 {
		t.Error("reinterpret must alias the same bytes")
	}
	if _, err := b.Reinterpret(layout.Default().MustOf(layout.TagMat44)); err == nil {
		t.Error("expected size error")
	}
}

func TestPoisonOnRelease(t *testing.T) {
	r := New(mem.NewGoHeap(), WithPoison(true))
	b, _ := r.Allocate(vec3())
	p := b.Pointer()

	var during byte
	r.BindCleanup(0, func(uintptr) error {
		during = *(*byte)(p)
		return nil
	})
	r.Close()
	if during != 0 {
		t.Errorf("memory poisoned before cleanups ran: %x", during)
	}
	if after := *(*byte)(p); after != poisonByte {
		t.Errorf("released memory = %x, want %x", after, poisonByte)
	}
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestUnreachableRegionIsReleased(t *testing.T) {
	heap := mem.NewGoHeap()
	var released atomic.Bool
	func() {
		r := New(heap)
		r.Allocate(vec3())
		r.BindCleanup(1, func(uintptr) error { released.Store(true); return nil })
	}()
	if !waitFor(t, released.Load) {
		t.Fatal("cleanup did not run for unreachable region")
	}
	if !waitFor(t, func() bool { return heap.Live() == 0 }) {
		t.Errorf("%d chunks leaked", heap.Live())
	}
}

type owner struct {
	scratch *Region
	name    string
}

func TestTiedRegionReleasedWithOwner(t *testing.T) {
	var released atomic.Bool
	keep := New(mem.NewGoHeap())
	defer keep.Close()

	var scratch *Region
	func() {
		o := &owner{name: "settings"}
		scratch = keep.Child()
		o.scratch = scratch
		TieTo(scratch, o)
		scratch.BindCleanup(5, func(uintptr) error { released.Store(true); return nil })
	}()
	if !waitFor(t, released.Load) {
		t.Fatal("tied region not released after owner became unreachable")
	}
	if !scratch.Closed() {
		t.Error("region should report closed")
	}
}

func TestCString(t *testing.T) {
	r := New(mem.NewGoHeap())
	defer r.Close()
	b, err := r.CString("Vec3")
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b.Bytes()); got != "Vec3\x00" {
		t.Errorf("bytes = %q", got)
	}
}

func TestChildOptions(t *testing.T) {
	parent := New(mem.NewGoHeap(), WithChunkSize(1<<16), WithLabel("engine"))
	defer parent.Close()
	child := parent.Child(WithChunkSize(64), WithLabel("engine/ray"))
	if _, err := child.Allocate(vec3()); err != nil {
		t.Fatal(err)
	}
	if st := child.Stats(); st.Reserved != 64 {
		t.Errorf("child reserved %d bytes, want 64", st.Reserved)
	}
	if child.Label() != "engine/ray" {
		t.Errorf("label = %s", child.Label())
	}
}
