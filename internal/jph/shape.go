package jph

import (
	"errors"

	"github.com/san-kum/jphbridge/internal/arena"
	"github.com/san-kum/jphbridge/internal/layout"
)

// DefaultConvexRadius is the rounding the engine applies to box corners.
const DefaultConvexRadius float32 = 0.05

type Shape struct {
	handle
	tmp temps

	UserTag any
}

func (e *Engine) NewSphere(radius float32) (*Shape, error) {
	res, err := e.call(symSphereCreate, radius)
	if err != nil {
		return nil, err
	}
	return e.WrapShape(res.Uintptr()), nil
}

func (e *Engine) NewBox(halfExtent Vec3, convexRadius float32) (*Shape, error) {
	r := e.scope("create-box")
	defer r.Close()
	buf, err := r.Allocate(e.layouts.MustOf(layout.TagVec3))
	if err != nil {
		return nil, err
	}
	halfExtent.Write(buf.View())
	res, err := e.call(symBoxCreate, buf, convexRadius)
	if err != nil {
		return nil, err
	}
	return e.WrapShape(res.Uintptr()), nil
}

func (e *Engine) WrapShape(addr uintptr) *Shape {
	return e.fam.Shapes.Wrap(addr, func(a uintptr) *Shape {
		return &Shape{handle: handle{e: e, addr: a}}
	})
}

// LocalBounds is the shape's bounding box in its own space.
func (s *Shape) LocalBounds() (AABox, error) {
	var box AABox
	if err := s.check("shape"); err != nil {
		return box, err
	}
	err := withTemp(s.e, &s.tmp, s, layout.TagAABox, func(buf *arena.Buffer) error {
		if _, err := s.e.call(symShapeLocalBounds, s.addr, buf); err != nil {
			return err
		}
		box.Read(buf.View())
		return nil
	})
	return box, err
}

// Destroy releases the native shape. Bodies still using it must be
// destroyed first.
func (s *Shape) Destroy() error {
	if !s.destroyed.CompareAndSwap(false, true) {
		return s.check("shape")
	}
	_, err := s.e.call(symShapeDestroy, s.addr)
	s.e.fam.Shapes.Unregister(s.addr)
	return errors.Join(err, s.tmp.release())
}
