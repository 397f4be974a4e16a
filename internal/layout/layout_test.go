package layout

import (
	"errors"
	"math"
	"strings"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/san-kum/jphbridge/internal/fault"
)

func TestDefaultLayoutsInvariants(t *testing.T) {
	reg := Default()
	if len(reg.Names()) == 0 {
		t.Fatal("expected registered layouts")
	}
	for _, l := range reg.All() {
		if l.Size()%l.Align() != 0 {
			t.Errorf("%s: size %d not a multiple of align %d", l.Name(), l.Size(), l.Align())
		}
		for _, f := range l.Fields() {
			if f.Offset+f.Size > l.Size() {
				t.Errorf("%s.%s: ends at %d past size %d", l.Name(), f.Name, f.Offset+f.Size, l.Size())
			}
		}
	}
	if err := reg.CheckAll(); err != nil {
		t.Errorf("CheckAll: %v", err)
	}
}

func TestDefaultLayoutSizes(t *testing.T) {
	tests := []struct {
		tag   Tag
		size  uintptr
		align uintptr
	}{
		{TagVec3, 12, 4},
		{TagDVec3, 24, 8},
		{TagQuat, 16, 4},
		{TagMat44, 64, 4},
		{TagAABox, 24, 4},
		{TagSpringSettings, 12, 4},
		{TagMotorSettings, 28, 4},
		{TagConstraintSettings, 32, 8},
		{TagHingeConstraintSettings, 160, 8},
		{TagRayCastSettings, 12, 4},
		{TagRayCastResult, 12, 4},
		{TagShapeCastResult, 60, 4},
		{TagCollidePointResult, 8, 4},
		{TagWheelSettings, 108, 4},
	}
	if PointerSize == 8 {
		tests = append(tests, struct {
			tag   Tag
			size  uintptr
			align uintptr
		}{TagBodyEvent, 16, 8})
	}

	reg := Default()
	for _, tt := range tests {
		l := reg.MustOf(tt.tag)
		if l.Size() != tt.size || l.Align() != tt.align {
			t.Errorf("%s: got size=%d align=%d, want size=%d align=%d", tt.tag, l.Size(), l.Align(), tt.size, tt.align)
		}
	}
}

func TestBodyCreationSettingsPointerWidth(t *testing.T) {
	l := Default().MustOf(TagBodyCreationSettings)
	off, err := FieldOffset(l, "shape")
	if err != nil {
		t.Fatal(err)
	}
	if off != 104 {
		t.Errorf("shape offset = %d, want 104", off)
	}
	if want := alignUp(104+PointerSize, 8); l.Size() != want {
		t.Errorf("size = %d, want %d", l.Size(), want)
	}
}

func TestFieldOffsetDottedPaths(t *testing.T) {
	reg := Default()
	tests := []struct {
		tag  Tag
		path string
		want uintptr
	}{
		{TagConstraintSettings, "constraintPriority", 4},
		{TagConstraintSettings, "userData", 24},
		{TagHingeConstraintSettings, "base.enabled", 0},
		{TagHingeConstraintSettings, "point1.y", 40},
		{TagHingeConstraintSettings, "limitsSpringSettings.damping", 124},
		{TagHingeConstraintSettings, "motorSettings.springSettings.damping", 140},
		{TagHingeConstraintSettings, "motorSettings.maxTorqueLimit", 156},
		{TagMat44, "column[2].w", 44},
		{TagAABox, "max.z", 20},
		{TagWheelSettings, "suspensionSpring.mode", 84},
	}
	for _, tt := range tests {
		got, err := FieldOffset(reg.MustOf(tt.tag), tt.path)
		if err != nil {
			t.Errorf("%s %q: %v", tt.tag, tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s %q = %d, want %d", tt.tag, tt.path, got, tt.want)
		}
	}
}

func TestFieldOffsetErrors(t *testing.T) {
	hinge := Default().MustOf(TagHingeConstraintSettings)
	for _, path := range []string{"nope", "point1.w", "limitsMin.x", "point1[0]"} {
		if _, err := FieldOffset(hinge, path); err == nil {
			t.Errorf("%q: expected error", path)
		}
	}
	mat := Default().MustOf(TagMat44)
	if _, err := FieldOffset(mat, "column[4].x"); err == nil {
		t.Error("expected out of range error")
	}
}

func TestExplicitPaddingMustMatchNaturalLayout(t *testing.T) {
	_, err := NewStruct("Bad", F("flag", Bool), Pad(2), F("count", Uint32))
	if err == nil {
		t.Fatal("expected error for 2 pad bytes before a 4-aligned field")
	}
	if !strings.Contains(err.Error(), "explicit padding") {
		t.Errorf("unexpected error: %v", err)
	}

	_, err = NewStruct("BadTail", F("count", Uint32), F("flag", Bool), Pad(1))
	if err == nil {
		t.Fatal("expected error for short trailing padding")
	}

	l, err := NewStruct("Good", F("flag", Bool), Pad(3), F("count", Uint32))
	if err != nil {
		t.Fatal(err)
	}
	if off, _ := FieldOffset(l, "count"); off != 4 {
		t.Errorf("count offset = %d, want 4", off)
	}
}

func TestDuplicateFieldAndLayout(t *testing.T) {
	if _, err := NewStruct("Dup", F("a", Int32), F("a", Int32)); err == nil {
		t.Error("expected duplicate field error")
	}
	r := NewRegistry()
	l := MustStruct("One", F("a", Int32))
	if err := r.Register(l); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(l); err == nil {
		t.Error("expected duplicate layout error")
	}
	if _, err := r.Of("Two"); err == nil {
		t.Error("expected unknown layout error")
	}
}

func TestVec3RoundTripBitExact(t *testing.T) {
	vec3 := Default().MustOf(TagVec3)
	var backing [2]uint64
	v := NewView(unsafe.Pointer(&backing[0]), vec3)

	values := [][3]float32{
		{1, 2, 3},
		{-0.0, float32(math.Inf(1)), math.SmallestNonzeroFloat32},
		{math.Float32frombits(0x7fc00001), math.MaxFloat32, 1e-20},
	}
	for _, want := range values {
		v.SetFloat32("x", want[0])
		v.SetFloat32("y", want[1])
		v.SetFloat32("z", want[2])
		got := [3]float32{v.Float32("x"), v.Float32("y"), v.Float32("z")}
		for i := range want {
			if math.Float32bits(got[i]) != math.Float32bits(want[i]) {
				t.Errorf("component %d: bits %08x, want %08x", i, math.Float32bits(got[i]), math.Float32bits(want[i]))
			}
		}
	}
}

func TestOffsetAccessorsMatchPaths(t *testing.T) {
	l := Default().MustOf(TagShapeCastResult)
	backing := make([]uint64, l.Size()/8)
	v := NewView(unsafe.Pointer(&backing[0]), l)

	v.Sub("penetrationAxis").SetFloat32("y", -2.5)
	v.SetUint32("bodyID2", 77)
	v.SetBool("isBackFaceHit", true)

	tests := []struct {
		path string
		got  func(off uintptr) any
		want any
	}{
		{"penetrationAxis.y", func(off uintptr) any { return v.Float32At(off) }, float32(-2.5)},
		{"bodyID2", func(off uintptr) any { return v.Uint32At(off) }, uint32(77)},
		{"isBackFaceHit", func(off uintptr) any { return v.BoolAt(off) }, true},
		{"fraction", func(off uintptr) any { return v.Float32At(off) }, float32(0)},
	}
	for _, tt := range tests {
		off, err := FieldOffset(l, tt.path)
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if got := tt.got(off); got != tt.want {
			t.Errorf("%s at %d = %v, want %v", tt.path, off, got, tt.want)
		}
	}
}

func TestViewNestedAndKindChecks(t *testing.T) {
	hinge := Default().MustOf(TagHingeConstraintSettings)
	backing := make([]uint64, hinge.Size()/8)
	v := NewView(unsafe.Pointer(&backing[0]), hinge)

	v.Sub("motorSettings").Sub("springSettings").SetFloat32("damping", 0.75)
	if got := v.Float32("motorSettings.springSettings.damping"); got != 0.75 {
		t.Errorf("damping = %v, want 0.75", got)
	}
	v.SetBool("base.enabled", true)
	if v.Bytes()[0] != 1 {
		t.Errorf("enabled byte = %d, want 1", v.Bytes()[0])
	}
	v.SetUint64("base.userData", 0xdeadbeefcafe)
	if got := *(*uint64)(unsafe.Add(unsafe.Pointer(&backing[0]), 24)); got != 0xdeadbeefcafe {
		t.Errorf("userData at raw offset = %x", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic reading a float field as uint32")
		}
	}()
	_ = v.Uint32("limitsMin")
}

func TestValidate(t *testing.T) {
	reg := NewRegistry()
	vec3 := MustStruct("Vec3", F("x", Float32), F("y", Float32), F("z", Float32))
	aabox := MustStruct("AABox", Nested("min", vec3), Nested("max", vec3))
	extra := MustStruct("Extra", F("a", Uint64))
	for _, l := range []*Layout{vec3, aabox, extra} {
		if err := reg.Register(l); err != nil {
			t.Fatal(err)
		}
	}

	native := map[string]uintptr{"Vec3": 12, "AABox": 24}
	unknown, err := Validate(reg, func(name string) (uintptr, bool) {
		s, ok := native[name]
		return s, ok
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]Tag{"Extra"}, unknown); diff != "" {
		t.Errorf("unknown (-want +got):\n%s", diff)
	}

	// Native side compiled Vec3 as a 16-byte SIMD type.
	native["Vec3"] = 16
	native["AABox"] = 32
	_, err = Validate(reg, func(name string) (uintptr, bool) {
		s, ok := native[name]
		return s, ok
	})
	if !errors.Is(err, fault.ErrLayoutValidation) {
		t.Fatalf("expected layout validation error, got %v", err)
	}
	if !fault.IsFatal(err) {
		t.Error("layout drift must be fatal")
	}
	var lerr *fault.LayoutError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *fault.LayoutError, got %T", err)
	}
	want := []fault.LayoutMismatch{
		{Layout: "AABox", Declared: 24, Native: 32},
		{Layout: "Vec3", Declared: 12, Native: 16},
	}
	if diff := cmp.Diff(want, lerr.Mismatches); diff != "" {
		t.Errorf("mismatches (-want +got):\n%s", diff)
	}
}

func TestDescribe(t *testing.T) {
	l := Default().MustOf(TagRayCastSettings)
	want := Description{
		Name:  "RayCastSettings",
		Size:  12,
		Align: 4,
		Fields: []FieldDescription{
			{Name: "backFaceModeTriangles", Offset: 0, Size: 4, Type: "int32"},
			{Name: "backFaceModeConvex", Offset: 4, Size: 4, Type: "int32"},
			{Name: "treatConvexAsSolid", Offset: 8, Size: 1, Type: "bool"},
			{Name: "_pad0", Offset: 9, Size: 3, Type: "padding", Count: 3},
		},
	}
	if diff := cmp.Diff(want, l.Describe()); diff != "" {
		t.Errorf("Describe (-want +got):\n%s", diff)
	}

	mat := Default().MustOf(TagMat44).Describe()
	if mat.Fields[0].Type != "Vec4[]" || mat.Fields[0].Count != 4 {
		t.Errorf("unexpected Mat44 field: %+v", mat.Fields[0])
	}
}
