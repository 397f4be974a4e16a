package jph

import (
	"errors"
	"fmt"

	"github.com/san-kum/jphbridge/internal/layout"
)

type WheelSettings struct {
	Position                   Vec3
	SuspensionForcePoint       Vec3
	SuspensionDirection        Vec3
	SteeringAxis               Vec3
	WheelUp                    Vec3
	WheelForward               Vec3
	SuspensionMinLength        float32
	SuspensionMaxLength        float32
	SuspensionPreloadLength    float32
	SuspensionSpring           SpringSettings
	Radius                     float32
	Width                      float32
	EnableSuspensionForcePoint bool
}

// DefaultWheelSettings returns the engine's defaults for a wheel at pos.
func DefaultWheelSettings(pos Vec3) WheelSettings {
	return WheelSettings{
		Position:            pos,
		SuspensionDirection: Vec3{0, -1, 0},
		SteeringAxis:        Vec3{0, 1, 0},
		WheelUp:             Vec3{0, 1, 0},
		WheelForward:        Vec3{0, 0, 1},
		SuspensionMinLength: 0.3,
		SuspensionMaxLength: 0.5,
		SuspensionSpring:    SpringSettings{Mode: SpringFrequencyAndDamping, FrequencyOrStiffness: 1.5, Damping: 0.5},
		Radius:              0.3,
		Width:               0.1,
	}
}

func (w *WheelSettings) Write(dst layout.View) {
	w.Position.Write(dst.Sub("position"))
	w.SuspensionForcePoint.Write(dst.Sub("suspensionForcePoint"))
	w.SuspensionDirection.Write(dst.Sub("suspensionDirection"))
	w.SteeringAxis.Write(dst.Sub("steeringAxis"))
	w.WheelUp.Write(dst.Sub("wheelUp"))
	w.WheelForward.Write(dst.Sub("wheelForward"))
	dst.SetFloat32("suspensionMinLength", w.SuspensionMinLength)
	dst.SetFloat32("suspensionMaxLength", w.SuspensionMaxLength)
	dst.SetFloat32("suspensionPreloadLength", w.SuspensionPreloadLength)
	w.SuspensionSpring.Write(dst.Sub("suspensionSpring"))
	dst.SetFloat32("radius", w.Radius)
	dst.SetFloat32("width", w.Width)
	dst.SetBool("enableSuspensionForcePoint", w.EnableSuspensionForcePoint)
}

type VehicleController struct {
	handle

	UserTag any
}

// NewVehicleController creates a wheeled controller in the engine's
// physics system.
func (e *Engine) NewVehicleController(wheels []WheelSettings) (*VehicleController, error) {
	if len(wheels) == 0 {
		return nil, errors.New("jph: vehicle needs at least one wheel")
	}
	r := e.scope("create-vehicle")
	defer r.Close()
	buf, err := r.AllocateArray(e.layouts.MustOf(layout.TagWheelSettings), len(wheels))
	if err != nil {
		return nil, err
	}
	for i := range wheels {
		wheels[i].Write(buf.Index(i))
	}
	res, err := e.call(symVehicleCreate, e.system, buf, uint32(len(wheels)))
	if err != nil {
		return nil, err
	}
	return e.WrapVehicle(res.Uintptr()), nil
}

func (e *Engine) WrapVehicle(addr uintptr) *VehicleController {
	return e.fam.Vehicles.Wrap(addr, func(a uintptr) *VehicleController {
		return &VehicleController{handle: handle{e: e, addr: a}}
	})
}

func (v *VehicleController) NumWheels() (int, error) {
	if err := v.check("vehicle"); err != nil {
		return 0, err
	}
	res, err := v.e.call(symVehicleNumWheels, v.addr)
	if err != nil {
		return 0, err
	}
	return int(res.Uint32()), nil
}

// Wheel returns the wrapper of wheel i. Repeated calls return the same
// wrapper while it is referenced.
func (v *VehicleController) Wheel(i int) (*Wheel, error) {
	if err := v.check("vehicle"); err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, fmt.Errorf("jph: wheel index %d out of range", i)
	}
	res, err := v.e.call(symVehicleGetWheel, v.addr, uint32(i))
	if err != nil {
		return nil, err
	}
	if res.IsZero() {
		return nil, fmt.Errorf("jph: wheel index %d out of range", i)
	}
	return v.e.fam.Wheels.Wrap(res.Uintptr(), func(a uintptr) *Wheel {
		return &Wheel{handle: handle{e: v.e, addr: a}, index: i}
	}), nil
}

// Destroy releases the controller and its wheels.
func (v *VehicleController) Destroy() error {
	if v.destroyed.Load() {
		return v.check("vehicle")
	}
	n, err := v.NumWheels()
	if err != nil {
		return err
	}
	wheels := make([]uintptr, 0, n)
	for i := range n {
		res, err := v.e.call(symVehicleGetWheel, v.addr, uint32(i))
		if err != nil {
			return err
		}
		wheels = append(wheels, res.Uintptr())
	}
	if !v.destroyed.CompareAndSwap(false, true) {
		return v.check("vehicle")
	}
	_, err = v.e.call(symVehicleDestroy, v.addr)
	v.e.fam.Vehicles.Unregister(v.addr)
	for _, w := range wheels {
		if wh := v.e.fam.Wheels.Get(w); wh != nil {
			wh.destroyed.Store(true)
		}
		v.e.fam.Wheels.Unregister(w)
	}
	return err
}

type Wheel struct {
	handle
	index int

	UserTag any
}

func (w *Wheel) Index() int { return w.index }

func (w *Wheel) AngularVelocity() (float32, error) {
	if err := w.check("wheel"); err != nil {
		return 0, err
	}
	res, err := w.e.call(symWheelAngularVelocity, w.addr)
	if err != nil {
		return 0, err
	}
	return res.Float32(), nil
}

func (w *Wheel) Radius() (float32, error) {
	if err := w.check("wheel"); err != nil {
		return 0, err
	}
	res, err := w.e.call(symWheelRadius, w.addr)
	if err != nil {
		return 0, err
	}
	return res.Float32(), nil
}
