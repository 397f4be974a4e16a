package gateway

import (
	"errors"
	"reflect"
	"testing"
	"unsafe"

	"github.com/san-kum/jphbridge/internal/arena"
	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
	"github.com/san-kum/jphbridge/internal/mem"
	"github.com/san-kum/jphbridge/internal/native/nativetest"
	"golang.org/x/sync/errgroup"
)

func TestResolveUnknownSymbol(t *testing.T) {
	g := New(nativetest.NewLibrary("empty"))
	_, err := g.Resolve("JPH_Missing", layout.Void)
	if !errors.Is(err, fault.ErrSymbolNotFound) {
		t.Fatalf("expected ErrSymbolNotFound, got %v", err)
	}
	if !fault.IsFatal(err) {
		t.Error("missing symbol should be fatal")
	}
	var se *fault.SymbolError
	if !errors.As(err, &se) || se.Symbol != "JPH_Missing" {
		t.Errorf("expected SymbolError naming the symbol, got %#v", err)
	}
}

func TestResolveRejectsBadSignatures(t *testing.T) {
	lib := nativetest.NewLibrary("sig")
	lib.Export("f", func(uint32) {})

	many := make([]layout.Kind, MaxArgs+1)
	for i := range many {
		many[i] = layout.Pointer
	}

	tests := []struct {
		name string
		ret  layout.Kind
		args []layout.Kind
	}{
		{"void argument", layout.Void, []layout.Kind{layout.Void}},
		{"struct argument", layout.Void, []layout.Kind{layout.Struct}},
		{"array return", layout.Array, nil},
		{"too many arguments", layout.Void, many},
		{"abi mismatch", layout.Void, []layout.Kind{layout.Int32}},
		{"return mismatch", layout.Uint32, []layout.Kind{layout.Uint32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(lib)
			_, err := g.Resolve("f", tt.ret, tt.args...)
			if !errors.Is(err, fault.ErrSignatureMismatch) {
				t.Errorf("expected ErrSignatureMismatch, got %v", err)
			}
		})
	}
}

func TestResolveIsCached(t *testing.T) {
	lib := nativetest.NewLibrary("cache")
	lib.Export("JPH_Body_GetID", func(uintptr) uint32 { return 1 })
	g := New(lib)

	a, err := g.Resolve("JPH_Body_GetID", layout.Uint32, layout.Pointer)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Resolve("JPH_Body_GetID", layout.Uint32, layout.Pointer)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second resolve should return the cached function")
	}
	if n := lib.Lookups("JPH_Body_GetID"); n != 1 {
		t.Errorf("lookups = %d, want 1", n)
	}

	if _, err := g.Resolve("JPH_Body_GetID", layout.Uint64, layout.Pointer); !errors.Is(err, fault.ErrSignatureMismatch) {
		t.Errorf("conflicting signature: got %v", err)
	}
}

func TestConcurrentResolveLooksUpOnce(t *testing.T) {
	lib := nativetest.NewLibrary("race")
	lib.Export("JPH_Shape_Destroy", func(uintptr) {})
	g := New(lib)

	fns := make([]*Function, 64)
	var eg errgroup.Group
	for i := range fns {
		eg.Go(func() error {
			f, err := g.Resolve("JPH_Shape_Destroy", layout.Void, layout.Pointer)
			fns[i] = f
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, f := range fns {
		if f != fns[0] {
			t.Fatalf("goroutine %d got a different function", i)
		}
	}
	if n := lib.Lookups("JPH_Shape_Destroy"); n != 1 {
		t.Errorf("lookups = %d, want 1", n)
	}
}

type bodyID uint32

type addr uintptr

func (a addr) Addr() uintptr { return uintptr(a) }

func TestInvokeConvertsArguments(t *testing.T) {
	lib := nativetest.NewLibrary("conv")
	var got []any
	lib.Export("mix", func(a int32, b uint32, c float32, d float64, e bool, p, q, r uintptr) uint64 {
		got = []any{a, b, c, d, e, p, q, r}
		return 42
	})
	g := New(lib)
	f := g.MustResolve("mix", layout.Uint64,
		layout.Int32, layout.Uint32, layout.Float32, layout.Float64, layout.Bool,
		layout.Pointer, layout.Pointer, layout.Pointer)

	var x uint64
	res, err := f.Invoke(-3, bodyID(7), float32(1.5), 2.25, true, unsafe.Pointer(&x), addr(0x40), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Uint64() != 42 {
		t.Errorf("result = %d, want 42", res.Uint64())
	}
	want := []any{int32(-3), uint32(7), float32(1.5), 2.25, true, uintptr(unsafe.Pointer(&x)), uintptr(0x40), uintptr(0)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("native side saw %v, want %v", got, want)
	}
	if f.Calls() != 1 {
		t.Errorf("calls = %d", f.Calls())
	}
}

func TestInvokeRejectsBadArguments(t *testing.T) {
	lib := nativetest.NewLibrary("bad")
	lib.Export("f", func(uint32, float32, uintptr) {})
	f := New(lib).MustResolve("f", layout.Void, layout.Uint32, layout.Float32, layout.Pointer)

	tests := []struct {
		name string
		args []any
	}{
		{"arity", []any{uint32(1)}},
		{"negative unsigned", []any{-1, float32(0), uintptr(0)}},
		{"overflow", []any{uint64(1) << 40, float32(0), uintptr(0)}},
		{"string for int", []any{"x", float32(0), uintptr(0)}},
		{"int for float", []any{1, 2, uintptr(0)}},
		{"int for pointer", []any{1, float32(0), 5}},
		{"typed nil buffer", []any{uint32(1), float32(0), (*arena.Buffer)(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.Invoke(tt.args...); !errors.Is(err, fault.ErrSignatureMismatch) {
				t.Errorf("expected ErrSignatureMismatch, got %v", err)
			}
		})
	}
	if f.Calls() != 0 {
		t.Errorf("rejected calls reached native code %d times", f.Calls())
	}
}

func TestInvokeRecoversNativeFault(t *testing.T) {
	lib := nativetest.NewLibrary("fault")
	boom := errors.New("access violation")
	lib.Export("crash", func() { panic(boom) })
	lib.Export("crashString", func() { panic("bad body id") })
	g := New(lib)

	_, err := g.MustResolve("crash", layout.Void).Invoke()
	if !errors.Is(err, fault.ErrNativeCallFailed) || !errors.Is(err, boom) {
		t.Errorf("expected NativeCallFailed wrapping cause, got %v", err)
	}
	if fault.IsFatal(err) {
		t.Error("call failures are not fatal")
	}

	_, err = g.MustResolve("crashString", layout.Void).Invoke()
	var ce *fault.CallError
	if !errors.As(err, &ce) || ce.Symbol != "crashString" {
		t.Errorf("expected CallError, got %v", err)
	}
}

func TestStatusPolicies(t *testing.T) {
	lib := nativetest.NewLibrary("status")
	lib.Export("ok", func() bool { return true })
	lib.Export("notOk", func() bool { return false })
	lib.Export("null", func() uintptr { return 0 })
	lib.Export("ptr", func() uintptr { return 0x10 })
	lib.Export("code", func() int32 { return -7 })
	lib.Export("zero", func() int32 { return 0 })
	g := New(lib)

	tests := []struct {
		symbol string
		ret    layout.Kind
		status Status
		fail   bool
		code   int64
	}{
		{"ok", layout.Bool, StatusFalseIsError, false, 0},
		{"notOk", layout.Bool, StatusFalseIsError, true, 0},
		{"notOk", layout.Bool, StatusNone, false, 0},
		{"null", layout.Pointer, StatusNullIsError, true, 0},
		{"ptr", layout.Pointer, StatusNullIsError, false, 0},
		{"code", layout.Int32, StatusNonZeroIsError, true, -7},
		{"zero", layout.Int32, StatusNonZeroIsError, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.symbol+"/"+tt.status.String(), func(t *testing.T) {
			f := g.MustResolve(tt.symbol, tt.ret).WithStatus(tt.status)
			_, err := f.Invoke()
			if (err != nil) != tt.fail {
				t.Fatalf("err = %v, want failure %v", err, tt.fail)
			}
			if !tt.fail {
				return
			}
			var ce *fault.CallError
			if !errors.As(err, &ce) || ce.Code != tt.code {
				t.Errorf("expected CallError with code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestWithStatusPanicsOnWrongKind(t *testing.T) {
	lib := nativetest.NewLibrary("status")
	lib.Export("f", func() float32 { return 0 })
	f := New(lib).MustResolve("f", layout.Float32)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	f.WithStatus(StatusNullIsError)
}

func TestGetBodyPositionWritesIntoBuffer(t *testing.T) {
	eng := nativetest.NewEngine()
	g := New(eng.Lib)
	reg := layout.Default()

	g.MustResolve("JPH_Init", layout.Bool).Invoke()
	sysRes, err := g.MustResolve("JPH_PhysicsSystem_Create", layout.Pointer, layout.Uint32).
		WithStatus(StatusNullIsError).Invoke(uint32(16))
	if err != nil {
		t.Fatal(err)
	}
	biRes, _ := g.MustResolve("JPH_PhysicsSystem_GetBodyInterface", layout.Pointer, layout.Pointer).Invoke(sysRes.Uintptr())
	shapeRes, _ := g.MustResolve("JPH_SphereShape_Create", layout.Pointer, layout.Float32).Invoke(float32(0.5))

	r := arena.New(mem.NewGoHeap())
	defer r.Close()

	settings, err := r.Allocate(reg.MustOf(layout.TagBodyCreationSettings))
	if err != nil {
		t.Fatal(err)
	}
	sv := settings.View()
	sv.SetFloat64("position.x", 7)
	sv.SetFloat64("position.y", 8)
	sv.SetFloat64("position.z", 9)
	sv.SetFloat32("rotation.w", 1)
	sv.SetAddress("shape", shapeRes.Uintptr())

	bodyRes, err := g.MustResolve("JPH_BodyInterface_CreateBody", layout.Pointer, layout.Pointer, layout.Pointer).
		WithStatus(StatusNullIsError).Invoke(biRes.Uintptr(), settings)
	if err != nil {
		t.Fatal(err)
	}
	idRes, _ := g.MustResolve("JPH_Body_GetID", layout.Uint32, layout.Pointer).Invoke(bodyRes.Uintptr())

	out, err := r.Allocate(reg.MustOf(layout.TagVec3))
	if err != nil {
		t.Fatal(err)
	}
	getPos := g.MustResolve("JPH_BodyInterface_GetPosition", layout.Void, layout.Pointer, layout.Uint32, layout.Pointer)
	if _, err := getPos.Invoke(biRes.Uintptr(), idRes.Uint32(), out); err != nil {
		t.Fatal(err)
	}
	v := out.View()
	if x, y, z := v.Float32("x"), v.Float32("y"), v.Float32("z"); x != 7 || y != 8 || z != 9 {
		t.Errorf("position = (%v, %v, %v), want (7, 8, 9)", x, y, z)
	}

	if _, err := getPos.Invoke(biRes.Uintptr(), uint32(999), out); !errors.Is(err, fault.ErrNativeCallFailed) {
		t.Errorf("invalid body id: expected ErrNativeCallFailed, got %v", err)
	}
}

func TestSymbolsSorted(t *testing.T) {
	lib := nativetest.NewLibrary("list")
	lib.Export("b", func() {})
	lib.Export("a", func() {})
	g := New(lib)
	g.MustResolve("b", layout.Void)
	g.MustResolve("a", layout.Void)
	syms := g.Symbols()
	if len(syms) != 2 || syms[0].Symbol() != "a" || syms[1].Symbol() != "b" {
		t.Errorf("unexpected symbols order")
	}
	if got := syms[0].Signature().String(); got != "void()" {
		t.Errorf("signature = %q", got)
	}
}

func TestArgPoolClearsVectors(t *testing.T) {
	p := newArgPool(2)
	v := p.Get()
	(*v)[0] = reflect.ValueOf(1)
	p.Put(v)
	if (*v)[0].IsValid() {
		t.Error("pooled vector should be cleared")
	}
	short := make([]reflect.Value, 1)
	p.Put(&short)
}
