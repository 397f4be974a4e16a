package jph

import (
	"errors"
	"fmt"

	"github.com/san-kum/jphbridge/internal/arena"
	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
)

type ConstraintSubType uint32

const (
	SubTypeFixed ConstraintSubType = iota
	SubTypePoint
	SubTypeHinge
	SubTypeSlider
	SubTypeDistance
	SubTypeCone
	SubTypeSwingTwist
	SubTypeSixDOF
	SubTypePath
	SubTypeVehicle
	SubTypeRackAndPinion
	SubTypeGear
	SubTypePulley
)

var subTypeNames = [...]string{
	"fixed", "point", "hinge", "slider", "distance", "cone", "swing-twist",
	"six-dof", "path", "vehicle", "rack-and-pinion", "gear", "pulley",
}

func (t ConstraintSubType) String() string {
	if int(t) < len(subTypeNames) {
		return subTypeNames[t]
	}
	return fmt.Sprintf("subtype(%d)", uint32(t))
}

// Constraint is the wrapper of any native constraint. Typed views such as
// HingeConstraint share its address and its identity entry.
type Constraint struct {
	handle

	UserTag any
}

func (e *Engine) WrapConstraint(addr uintptr) *Constraint {
	return e.fam.Constraints.Wrap(addr, func(a uintptr) *Constraint {
		return &Constraint{handle: handle{e: e, addr: a}}
	})
}

func (c *Constraint) Type() (ConstraintSubType, error) {
	if err := c.check("constraint"); err != nil {
		return 0, err
	}
	res, err := c.e.call(symConstraintGetType, c.addr)
	if err != nil {
		return 0, err
	}
	return ConstraintSubType(res.Uint32()), nil
}

func (c *Constraint) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return c.check("constraint")
	}
	_, err := c.e.call(symConstraintDestroy, c.addr)
	c.e.fam.Constraints.Unregister(c.addr)
	return err
}

// AsHinge checks the native subtype before converting.
func (c *Constraint) AsHinge() (*HingeConstraint, error) {
	t, err := c.Type()
	if err != nil {
		return nil, err
	}
	if t != SubTypeHinge {
		return nil, fmt.Errorf("jph: constraint %#x is a %s, not a hinge", c.addr, t)
	}
	return c.UncheckedAsHinge(), nil
}

// UncheckedAsHinge reinterprets c as a hinge without asking the engine.
// Calling hinge methods on a constraint of another subtype is undefined.
func (c *Constraint) UncheckedAsHinge() *HingeConstraint {
	return &HingeConstraint{Constraint: c}
}

type HingeConstraint struct {
	*Constraint
}

// CurrentAngle is the angle between the two bodies around the hinge axis.
func (h *HingeConstraint) CurrentAngle() (float32, error) {
	if err := h.check("constraint"); err != nil {
		return 0, err
	}
	res, err := h.e.call(symHingeGetCurrentAngle, h.addr)
	if err != nil {
		return 0, err
	}
	return res.Float32(), nil
}

type SpringMode int32

const (
	SpringFrequencyAndDamping SpringMode = iota
	SpringStiffnessAndDamping
)

type SpringSettings struct {
	Mode                 SpringMode
	FrequencyOrStiffness float32
	Damping              float32
}

func (s *SpringSettings) Read(src layout.View) {
	s.Mode = SpringMode(src.Int32("mode"))
	s.FrequencyOrStiffness = src.Float32("frequencyOrStiffness")
	s.Damping = src.Float32("damping")
}

func (s SpringSettings) Write(dst layout.View) {
	dst.SetInt32("mode", int32(s.Mode))
	dst.SetFloat32("frequencyOrStiffness", s.FrequencyOrStiffness)
	dst.SetFloat32("damping", s.Damping)
}

type MotorSettings struct {
	Spring         SpringSettings
	MinForceLimit  float32
	MaxForceLimit  float32
	MinTorqueLimit float32
	MaxTorqueLimit float32
}

func (m *MotorSettings) Read(src layout.View) {
	m.Spring.Read(src.Sub("springSettings"))
	m.MinForceLimit = src.Float32("minForceLimit")
	m.MaxForceLimit = src.Float32("maxForceLimit")
	m.MinTorqueLimit = src.Float32("minTorqueLimit")
	m.MaxTorqueLimit = src.Float32("maxTorqueLimit")
}

func (m MotorSettings) Write(dst layout.View) {
	m.Spring.Write(dst.Sub("springSettings"))
	dst.SetFloat32("minForceLimit", m.MinForceLimit)
	dst.SetFloat32("maxForceLimit", m.MaxForceLimit)
	dst.SetFloat32("minTorqueLimit", m.MinTorqueLimit)
	dst.SetFloat32("maxTorqueLimit", m.MaxTorqueLimit)
}

type ConstraintSpace int32

const (
	LocalToBodyCOM ConstraintSpace = iota
	WorldSpace
)

// HingeSettings is the Go copy of a native hinge settings object.
type HingeSettings struct {
	Enabled                  bool
	ConstraintPriority       uint32
	NumVelocityStepsOverride uint32
	NumPositionStepsOverride uint32
	DrawConstraintSize       float32
	UserData                 uint64

	Space       ConstraintSpace
	Point1      Vec3
	HingeAxis1  Vec3
	NormalAxis1 Vec3
	Point2      Vec3
	HingeAxis2  Vec3
	NormalAxis2 Vec3

	LimitsMin         float32
	LimitsMax         float32
	LimitsSpring      SpringSettings
	MaxFrictionTorque float32
	Motor             MotorSettings
}

func (h *HingeSettings) Read(src layout.View) {
	base := src.Sub("base")
	h.Enabled = base.Bool("enabled")
	h.ConstraintPriority = base.Uint32("constraintPriority")
	h.NumVelocityStepsOverride = base.Uint32("numVelocityStepsOverride")
	h.NumPositionStepsOverride = base.Uint32("numPositionStepsOverride")
	h.DrawConstraintSize = base.Float32("drawConstraintSize")
	h.UserData = base.Uint64("userData")

	h.Space = ConstraintSpace(src.Int32("space"))
	h.Point1.Read(src.Sub("point1"))
	h.HingeAxis1.Read(src.Sub("hingeAxis1"))
	h.NormalAxis1.Read(src.Sub("normalAxis1"))
	h.Point2.Read(src.Sub("point2"))
	h.HingeAxis2.Read(src.Sub("hingeAxis2"))
	h.NormalAxis2.Read(src.Sub("normalAxis2"))
	h.LimitsMin = src.Float32("limitsMin")
	h.LimitsMax = src.Float32("limitsMax")
	h.LimitsSpring.Read(src.Sub("limitsSpringSettings"))
	h.MaxFrictionTorque = src.Float32("maxFrictionTorque")
	h.Motor.Read(src.Sub("motorSettings"))
}

func (h *HingeSettings) Write(dst layout.View) {
	base := dst.Sub("base")
	base.SetBool("enabled", h.Enabled)
	base.SetUint32("constraintPriority", h.ConstraintPriority)
	base.SetUint32("numVelocityStepsOverride", h.NumVelocityStepsOverride)
	base.SetUint32("numPositionStepsOverride", h.NumPositionStepsOverride)
	base.SetFloat32("drawConstraintSize", h.DrawConstraintSize)
	base.SetUint64("userData", h.UserData)

	dst.SetInt32("space", int32(h.Space))
	h.Point1.Write(dst.Sub("point1"))
	h.HingeAxis1.Write(dst.Sub("hingeAxis1"))
	h.NormalAxis1.Write(dst.Sub("normalAxis1"))
	h.Point2.Write(dst.Sub("point2"))
	h.HingeAxis2.Write(dst.Sub("hingeAxis2"))
	h.NormalAxis2.Write(dst.Sub("normalAxis2"))
	dst.SetFloat32("limitsMin", h.LimitsMin)
	dst.SetFloat32("limitsMax", h.LimitsMax)
	h.LimitsSpring.Write(dst.Sub("limitsSpringSettings"))
	dst.SetFloat32("maxFrictionTorque", h.MaxFrictionTorque)
	h.Motor.Write(dst.Sub("motorSettings"))
}

// HingeConstraintSettings is a native settings object owned by Go. Its
// native destroy call runs exactly once: on Close, when the engine closes,
// or after the settings become unreachable.
type HingeConstraintSettings struct {
	e      *Engine
	addr   uintptr
	region *arena.Region
	buf    *arena.Buffer
}

func (e *Engine) NewHingeConstraintSettings() (*HingeConstraintSettings, error) {
	res, err := e.call(symHingeSettingsCreate)
	if err != nil {
		return nil, err
	}
	addr := res.Uintptr()
	r := e.scratch.Child(arena.WithChunkSize(callChunkSize), arena.WithLabel("engine/hinge-settings"))

	destroy := e.fns[symHingeSettingsDestroy]
	if _, err := r.BindCleanup(addr, func(h uintptr) error {
		_, err := destroy.Invoke(h)
		return err
	}); err != nil {
		destroy.Invoke(addr)
		return nil, err
	}
	buf, err := r.Allocate(e.layouts.MustOf(layout.TagHingeConstraintSettings))
	if err != nil {
		r.Close()
		return nil, err
	}

	s := &HingeConstraintSettings{e: e, addr: addr, region: r, buf: buf}
	arena.TieTo(r, s)
	return s, nil
}

func (s *HingeConstraintSettings) Addr() uintptr { return s.addr }

func (s *HingeConstraintSettings) check() error {
	if s.region.Closed() {
		return &fault.ReleaseError{Object: fmt.Sprintf("hinge settings %#x", s.addr)}
	}
	return nil
}

// Get copies the native settings out.
func (s *HingeConstraintSettings) Get() (HingeSettings, error) {
	var h HingeSettings
	if err := s.check(); err != nil {
		return h, err
	}
	if _, err := s.e.call(symHingeSettingsGet, s.addr, s.buf); err != nil {
		return h, err
	}
	h.Read(s.buf.View())
	return h, nil
}

// Set copies h into the native settings.
func (s *HingeConstraintSettings) Set(h HingeSettings) error {
	if err := s.check(); err != nil {
		return err
	}
	clear(s.buf.Bytes())
	h.Write(s.buf.View())
	_, err := s.e.call(symHingeSettingsSet, s.addr, s.buf)
	return err
}

// CreateConstraint builds a hinge between two bodies from the current
// settings.
func (s *HingeConstraintSettings) CreateConstraint(body1, body2 *Body) (*HingeConstraint, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	for _, b := range []*Body{body1, body2} {
		if b == nil {
			return nil, errors.New("jph: hinge constraint needs two bodies")
		}
		if err := b.check("body"); err != nil {
			return nil, err
		}
	}
	res, err := s.e.call(symHingeCreateConstraint, s.addr, body1, body2)
	if err != nil {
		return nil, err
	}
	return s.e.WrapConstraint(res.Uintptr()).UncheckedAsHinge(), nil
}

// Close destroys the native settings now. Closing twice is a no-op.
func (s *HingeConstraintSettings) Close() error {
	return s.region.Close()
}
