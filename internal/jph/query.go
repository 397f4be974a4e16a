package jph

import (
	"errors"
	"sync"

	"github.com/san-kum/jphbridge/internal/arena"
	"github.com/san-kum/jphbridge/internal/gateway"
	"github.com/san-kum/jphbridge/internal/layout"
	"github.com/san-kum/jphbridge/internal/upcall"
)

// Collectors decode one result per hit, so the result decoders read at
// offsets resolved once instead of walking field paths.

type vec3At [3]uintptr

func vec3Fields(l *layout.Layout, path string) vec3At {
	return vec3At{
		l.MustLookup(path + ".x").Offset,
		l.MustLookup(path + ".y").Offset,
		l.MustLookup(path + ".z").Offset,
	}
}

func (o vec3At) read(src layout.View) Vec3 {
	return Vec3{X: src.Float32At(o[0]), Y: src.Float32At(o[1]), Z: src.Float32At(o[2])}
}

func offset(l *layout.Layout, path string) uintptr { return l.MustLookup(path).Offset }

type RayCastResult struct {
	BodyID      uint32
	Fraction    float32
	SubShapeID2 uint32
}

var rayCastFields = sync.OnceValue(func() (o struct{ bodyID, fraction, subShapeID2 uintptr }) {
	l := layout.Default().MustOf(layout.TagRayCastResult)
	o.bodyID = offset(l, "bodyID")
	o.fraction = offset(l, "fraction")
	o.subShapeID2 = offset(l, "subShapeID2")
	return o
})

func (r *RayCastResult) Read(src layout.View) {
	o := rayCastFields()
	r.BodyID = src.Uint32At(o.bodyID)
	r.Fraction = src.Float32At(o.fraction)
	r.SubShapeID2 = src.Uint32At(o.subShapeID2)
}

type ShapeCastResult struct {
	ContactPointOn1  Vec3
	ContactPointOn2  Vec3
	PenetrationAxis  Vec3
	PenetrationDepth float32
	SubShapeID1      uint32
	SubShapeID2      uint32
	BodyID2          uint32
	Fraction         float32
	IsBackFaceHit    bool
}

type shapeCastOffsets struct {
	contact1, contact2, axis vec3At
	depth, fraction          uintptr
	subShape1, subShape2     uintptr
	body2, backFace          uintptr
}

var shapeCastFields = sync.OnceValue(func() shapeCastOffsets {
	l := layout.Default().MustOf(layout.TagShapeCastResult)
	return shapeCastOffsets{
		contact1:  vec3Fields(l, "contactPointOn1"),
		contact2:  vec3Fields(l, "contactPointOn2"),
		axis:      vec3Fields(l, "penetrationAxis"),
		depth:     offset(l, "penetrationDepth"),
		subShape1: offset(l, "subShapeID1"),
		subShape2: offset(l, "subShapeID2"),
		body2:     offset(l, "bodyID2"),
		fraction:  offset(l, "fraction"),
		backFace:  offset(l, "isBackFaceHit"),
	}
})

func (r *ShapeCastResult) Read(src layout.View) {
	o := shapeCastFields()
	r.ContactPointOn1 = o.contact1.read(src)
	r.ContactPointOn2 = o.contact2.read(src)
	r.PenetrationAxis = o.axis.read(src)
	r.PenetrationDepth = src.Float32At(o.depth)
	r.SubShapeID1 = src.Uint32At(o.subShape1)
	r.SubShapeID2 = src.Uint32At(o.subShape2)
	r.BodyID2 = src.Uint32At(o.body2)
	r.Fraction = src.Float32At(o.fraction)
	r.IsBackFaceHit = src.BoolAt(o.backFace)
}

type CollidePointResult struct {
	BodyID      uint32
	SubShapeID2 uint32
}

var collidePointFields = sync.OnceValue(func() (o struct{ bodyID, subShapeID2 uintptr }) {
	l := layout.Default().MustOf(layout.TagCollidePointResult)
	o.bodyID = offset(l, "bodyID")
	o.subShapeID2 = offset(l, "subShapeID2")
	return o
})

func (r *CollidePointResult) Read(src layout.View) {
	o := collidePointFields()
	r.BodyID = src.Uint32At(o.bodyID)
	r.SubShapeID2 = src.Uint32At(o.subShapeID2)
}

// collect runs one cast. The trampoline and every argument buffer live in a
// region that closes when the cast returns, so fn must copy any result it
// keeps. A panic in fn does not cross into the engine; the first one is
// returned after the native call completes.
func collect[T any](e *Engine, tag layout.Tag, decode func(layout.View, *T), fn func(*T),
	call func(r *arena.Region, t *upcall.Trampoline[T]) (gateway.Result, error)) (hit bool, err error) {
	r := e.scope(string(tag))
	defer func() { err = errors.Join(err, r.Close()) }()

	t, err := upcall.New(e.disp, e.layouts.MustOf(tag), decode, fn,
		upcall.InRegion(r), upcall.WithLabel(string(tag)))
	if err != nil {
		return false, err
	}
	res, err := call(r, t)
	if err != nil {
		return false, err
	}
	return res.Bool(), t.Err()
}

func vec3Arg(r *arena.Region, v Vec3) (*arena.Buffer, error) {
	buf, err := r.Allocate(layout.Default().MustOf(layout.TagVec3))
	if err != nil {
		return nil, err
	}
	v.Write(buf.View())
	return buf, nil
}

// CastRay reports every body hit by the segment origin + t*direction,
// t in [0, 1]. It returns whether anything was hit.
func (e *Engine) CastRay(origin, direction Vec3, fn func(*RayCastResult)) (bool, error) {
	return collect(e, layout.TagRayCastResult,
		func(v layout.View, res *RayCastResult) { res.Read(v) }, fn,
		func(r *arena.Region, t *upcall.Trampoline[RayCastResult]) (gateway.Result, error) {
			o, err := vec3Arg(r, origin)
			if err != nil {
				return gateway.Result{}, err
			}
			d, err := vec3Arg(r, direction)
			if err != nil {
				return gateway.Result{}, err
			}
			return e.call(symQueryCastRay, e.query, o, d, t.Pointer(), t.Ctx())
		})
}

// CastShape sweeps shape from transform along direction.
func (e *Engine) CastShape(shape *Shape, transform Mat44, direction Vec3, fn func(*ShapeCastResult)) (bool, error) {
	if err := shape.check("shape"); err != nil {
		return false, err
	}
	return collect(e, layout.TagShapeCastResult,
		func(v layout.View, res *ShapeCastResult) { res.Read(v) }, fn,
		func(r *arena.Region, t *upcall.Trampoline[ShapeCastResult]) (gateway.Result, error) {
			m, err := r.Allocate(e.layouts.MustOf(layout.TagMat44))
			if err != nil {
				return gateway.Result{}, err
			}
			transform.Write(m.View())
			d, err := vec3Arg(r, direction)
			if err != nil {
				return gateway.Result{}, err
			}
			return e.call(symQueryCastShape, e.query, shape, m, d, t.Pointer(), t.Ctx())
		})
}

// CollidePoint reports every body containing point.
func (e *Engine) CollidePoint(point Vec3, fn func(*CollidePointResult)) (bool, error) {
	return collect(e, layout.TagCollidePointResult,
		func(v layout.View, res *CollidePointResult) { res.Read(v) }, fn,
		func(r *arena.Region, t *upcall.Trampoline[CollidePointResult]) (gateway.Result, error) {
			p, err := vec3Arg(r, point)
			if err != nil {
				return gateway.Result{}, err
			}
			return e.call(symQueryCollidePoint, e.query, p, t.Pointer(), t.Ctx())
		})
}

// RayHits collects copies of every ray hit.
func (e *Engine) RayHits(origin, direction Vec3) ([]RayCastResult, error) {
	var hits []RayCastResult
	_, err := e.CastRay(origin, direction, func(r *RayCastResult) {
		hits = append(hits, *r)
	})
	return hits, err
}
