package jph

import (
	"errors"

	"github.com/san-kum/jphbridge/internal/arena"
	"github.com/san-kum/jphbridge/internal/layout"
)

type MotionType int32

const (
	MotionStatic MotionType = iota
	MotionKinematic
	MotionDynamic
)

func (m MotionType) String() string {
	switch m {
	case MotionStatic:
		return "static"
	case MotionKinematic:
		return "kinematic"
	case MotionDynamic:
		return "dynamic"
	}
	return "unknown"
}

// Activation selects whether a body write wakes the body up.
type Activation int32

const (
	Activate Activation = iota
	DontActivate
)

// BodyCreationSettings mirrors the native creation struct.
type BodyCreationSettings struct {
	Position        RVec3
	Rotation        Quat
	LinearVelocity  Vec3
	AngularVelocity Vec3
	UserData        uint64
	ObjectLayer     uint32
	MotionType      MotionType
	AllowSleeping   bool
	Friction        float32
	Restitution     float32
	LinearDamping   float32
	AngularDamping  float32
	GravityFactor   float32
	Shape           *Shape
}

func DefaultBodyCreationSettings(shape *Shape, pos RVec3, motion MotionType) BodyCreationSettings {
	return BodyCreationSettings{
		Position:       pos,
		Rotation:       QuatIdentity,
		MotionType:     motion,
		AllowSleeping:  true,
		Friction:       0.2,
		LinearDamping:  0.05,
		AngularDamping: 0.05,
		GravityFactor:  1,
		Shape:          shape,
	}
}

func (s *BodyCreationSettings) Write(dst layout.View) {
	s.Position.Write(dst.Sub("position"))
	s.Rotation.Write(dst.Sub("rotation"))
	s.LinearVelocity.Write(dst.Sub("linearVelocity"))
	s.AngularVelocity.Write(dst.Sub("angularVelocity"))
	dst.SetUint64("userData", s.UserData)
	dst.SetUint32("objectLayer", s.ObjectLayer)
	dst.SetInt32("motionType", int32(s.MotionType))
	dst.SetBool("allowSleeping", s.AllowSleeping)
	dst.SetFloat32("friction", s.Friction)
	dst.SetFloat32("restitution", s.Restitution)
	dst.SetFloat32("linearDamping", s.LinearDamping)
	dst.SetFloat32("angularDamping", s.AngularDamping)
	dst.SetFloat32("gravityFactor", s.GravityFactor)
	var shape uintptr
	if s.Shape != nil {
		shape = s.Shape.addr
	}
	dst.SetAddress("shape", shape)
}

// Body is the wrapper of a native body. The engine hands out one Body per
// native body for as long as the wrapper is referenced.
type Body struct {
	handle
	id  uint32
	tmp temps

	// UserTag is free for the caller. It survives every lookup that returns
	// this wrapper.
	UserTag any
}

func (b *Body) ID() uint32 { return b.id }

func (b *Body) Position() (Vec3, error) {
	var pos Vec3
	if err := b.check("body"); err != nil {
		return pos, err
	}
	err := withTemp(b.e, &b.tmp, b, layout.TagVec3, func(buf *arena.Buffer) error {
		if _, err := b.e.call(symBodyGetPosition, b.e.bodyIface, b.id, buf); err != nil {
			return err
		}
		pos.Read(buf.View())
		return nil
	})
	return pos, err
}

func (b *Body) SetPosition(pos Vec3, act Activation) error {
	if err := b.check("body"); err != nil {
		return err
	}
	return withTemp(b.e, &b.tmp, b, layout.TagVec3, func(buf *arena.Buffer) error {
		pos.Write(buf.View())
		_, err := b.e.call(symBodySetPosition, b.e.bodyIface, b.id, buf, int32(act))
		return err
	})
}

func (b *Body) Rotation() (Quat, error) {
	var q Quat
	if err := b.check("body"); err != nil {
		return q, err
	}
	err := withTemp(b.e, &b.tmp, b, layout.TagQuat, func(buf *arena.Buffer) error {
		if _, err := b.e.call(symBodyGetRotation, b.e.bodyIface, b.id, buf); err != nil {
			return err
		}
		q.Read(buf.View())
		return nil
	})
	return q, err
}

// CreateBody creates and wraps a body.
func (e *Engine) CreateBody(s BodyCreationSettings) (*Body, error) {
	r := e.scope("create-body")
	defer r.Close()
	buf, err := r.Allocate(e.layouts.MustOf(layout.TagBodyCreationSettings))
	if err != nil {
		return nil, err
	}
	s.Write(buf.View())
	res, err := e.call(symBodyCreate, e.bodyIface, buf)
	if err != nil {
		return nil, err
	}
	return e.WrapBody(res.Uintptr())
}

// WrapBody returns the wrapper of the body at addr, building one if no live
// wrapper exists. A zero addr yields nil.
func (e *Engine) WrapBody(addr uintptr) (*Body, error) {
	if addr == 0 {
		return nil, nil
	}
	if b := e.fam.Bodies.Get(addr); b != nil {
		return b, nil
	}
	res, err := e.call(symBodyGetID, addr)
	if err != nil {
		return nil, err
	}
	b, _ := e.fam.Bodies.Register(addr, &Body{handle: handle{e: e, addr: addr}, id: res.Uint32()})
	return b, nil
}

// BodyByID looks a body up by id. It returns nil when no such body exists.
func (e *Engine) BodyByID(id uint32) (*Body, error) {
	res, err := e.call(symBodyTryGet, e.bodyIface, id)
	if err != nil {
		return nil, err
	}
	return e.WrapBody(res.Uintptr())
}

// DestroyBody destroys the native body and drops its wrapper from the
// identity table. b must not be used afterwards.
func (e *Engine) DestroyBody(b *Body) error {
	if !b.destroyed.CompareAndSwap(false, true) {
		return b.check("body")
	}
	_, err := e.call(symBodyDestroy, e.bodyIface, b.id)
	e.fam.Bodies.Unregister(b.addr)
	return errors.Join(err, b.tmp.release())
}
