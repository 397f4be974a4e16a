package jph

import (
	"fmt"
	"math"

	"github.com/san-kum/jphbridge/internal/layout"
)

type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) String() string { return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z) }

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float32   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Length() float32      { return float32(math.Sqrt(float64(v.Dot(v)))) }

func (v *Vec3) Read(src layout.View) {
	v.X, v.Y, v.Z = src.Float32("x"), src.Float32("y"), src.Float32("z")
}

func (v Vec3) Write(dst layout.View) {
	dst.SetFloat32("x", v.X)
	dst.SetFloat32("y", v.Y)
	dst.SetFloat32("z", v.Z)
}

// RVec3 is a world-space position in double precision.
type RVec3 struct {
	X, Y, Z float64
}

func (v *RVec3) Read(src layout.View) {
	v.X, v.Y, v.Z = src.Float64("x"), src.Float64("y"), src.Float64("z")
}

func (v RVec3) Write(dst layout.View) {
	dst.SetFloat64("x", v.X)
	dst.SetFloat64("y", v.Y)
	dst.SetFloat64("z", v.Z)
}

type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity is the rotation that leaves vectors unchanged.
var QuatIdentity = Quat{W: 1}

func (q *Quat) Read(src layout.View) {
	q.X, q.Y, q.Z, q.W = src.Float32("x"), src.Float32("y"), src.Float32("z"), src.Float32("w")
}

func (q Quat) Write(dst layout.View) {
	dst.SetFloat32("x", q.X)
	dst.SetFloat32("y", q.Y)
	dst.SetFloat32("z", q.Z)
	dst.SetFloat32("w", q.W)
}

type AABox struct {
	Min, Max Vec3
}

func (b AABox) Center() Vec3 { return b.Min.Add(b.Max).Scale(0.5) }
func (b AABox) Extent() Vec3 { return b.Max.Sub(b.Min).Scale(0.5) }

func (b *AABox) Read(src layout.View) {
	b.Min.Read(src.Sub("min"))
	b.Max.Read(src.Sub("max"))
}

func (b AABox) Write(dst layout.View) {
	b.Min.Write(dst.Sub("min"))
	b.Max.Write(dst.Sub("max"))
}

// Mat44 is a column-major 4x4 transform.
type Mat44 [4][4]float32

var Mat44Identity = Mat44{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}

// Translation returns identity rotation with translation t.
func Translation(t Vec3) Mat44 {
	m := Mat44Identity
	m[3] = [4]float32{t.X, t.Y, t.Z, 1}
	return m
}

func (m Mat44) Translation() Vec3 { return Vec3{m[3][0], m[3][1], m[3][2]} }

var vec4Fields = [4]string{"x", "y", "z", "w"}

func (m *Mat44) Read(src layout.View) {
	for c := range 4 {
		col := src.Sub(fmt.Sprintf("column[%d]", c))
		for r, f := range vec4Fields {
			m[c][r] = col.Float32(f)
		}
	}
}

func (m Mat44) Write(dst layout.View) {
	for c := range 4 {
		col := dst.Sub(fmt.Sprintf("column[%d]", c))
		for r, f := range vec4Fields {
			col.SetFloat32(f, m[c][r])
		}
	}
}
