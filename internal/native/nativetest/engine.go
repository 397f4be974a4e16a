package nativetest

import (
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"unsafe"

	"github.com/san-kum/jphbridge/internal/layout"
	"github.com/san-kum/jphbridge/internal/native"
)

const DefaultVersion = "5.2.0"

// Constraint sub types, numbered like the engine's enum.
const (
	SubTypeHinge   uint32 = 2
	SubTypeVehicle uint32 = 9
)

// Motion types.
const (
	MotionStatic    int32 = 0
	MotionKinematic int32 = 1
	MotionDynamic   int32 = 2
)

// UpdateBadStep is returned by the update call for a non-positive step.
const UpdateBadStep int32 = 1

const handleBase uintptr = 0x100000

type shape struct {
	half [3]float32
}

type body struct {
	id       uint32
	addr     uintptr
	pos      [3]float32
	rot      [4]float32
	vel      [3]float32
	shape    *shape
	userData uint64
	motion   int32
}

func (b *body) bounds() (lo, hi [3]float32) {
	for i := range 3 {
		lo[i] = b.pos[i] - b.shape.half[i]
		hi[i] = b.pos[i] + b.shape.half[i]
	}
	return lo, hi
}

type constraint struct {
	subType  uint32
	angle    float32
	min, max float32
}

type wheel struct {
	radius float32
	angVel float32
}

type vehicle struct {
	wheels []uintptr
}

type system struct {
	maxBodies uint32
	bodyIface uintptr
	query     uintptr
	listenCb  uintptr
	listenCtx uintptr
}

// Engine is a scripted physics engine exported through a Library. It keeps
// just enough state to answer every call the bridge makes: bodies with box
// bounds, settings blobs, constraints, vehicles, and the three query kinds.
type Engine struct {
	Lib *Library

	mu      sync.Mutex
	version []byte
	sizes   map[string]uint64
	faults  map[string]any
	calls   map[string]int
	ready   bool
	next    uintptr
	nextID  uint32

	systems     map[uintptr]*system
	ifaces      map[uintptr]*system
	shapes      map[uintptr]*shape
	bodies      map[uintptr]*body
	byID        map[uint32]*body
	materials   map[uintptr][]byte
	settings    map[uintptr][]uint64
	constraints map[uintptr]*constraint
	vehicles    map[uintptr]*vehicle
	wheels      map[uintptr]*wheel
}

func NewEngine() *Engine {
	e := &Engine{
		Lib:         NewLibrary("nativetest-jph"),
		sizes:       make(map[string]uint64),
		faults:      make(map[string]any),
		calls:       make(map[string]int),
		next:        handleBase,
		systems:     make(map[uintptr]*system),
		ifaces:      make(map[uintptr]*system),
		shapes:      make(map[uintptr]*shape),
		bodies:      make(map[uintptr]*body),
		byID:        make(map[uint32]*body),
		materials:   make(map[uintptr][]byte),
		settings:    make(map[uintptr][]uint64),
		constraints: make(map[uintptr]*constraint),
		vehicles:    make(map[uintptr]*vehicle),
		wheels:      make(map[uintptr]*wheel),
	}
	e.SetVersion(DefaultVersion)
	for _, l := range layout.Default().All() {
		e.sizes[l.Name()] = uint64(l.Size())
	}
	e.exportAll()
	return e
}

func lay(tag layout.Tag) *layout.Layout { return layout.Default().MustOf(tag) }

func (e *Engine) SetVersion(v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version = append([]byte(v), 0)
}

// SetStructSize overrides what the size introspection call reports for name.
func (e *Engine) SetStructSize(name string, size uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sizes[name] = size
}

// HideStructSizes drops the size introspection export, like a release build
// of the engine that does not ship it.
func (e *Engine) HideStructSizes() {
	e.Lib.Unexport("JPH_GetStructSize")
}

// FailNext makes the next call to symbol panic with cause.
func (e *Engine) FailNext(symbol string, cause any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[symbol] = cause
}

func (e *Engine) Calls(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[symbol]
}

func (e *Engine) BodyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bodies)
}

// BodyPosition reads a body's position directly from engine state.
func (e *Engine) BodyPosition(id uint32) ([3]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.byID[id]
	if !ok {
		return [3]float32{}, false
	}
	return b.pos, true
}

// RemoveBody destroys a body from the engine side, the way a native
// simulation step might, and notifies the destroy listener.
func (e *Engine) RemoveBody(id uint32) bool {
	e.mu.Lock()
	b, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	cb, ctx := e.dropBody(b)
	e.mu.Unlock()
	e.notifyDestroyed(cb, ctx, b)
	return true
}

func (e *Engine) handle() uintptr {
	e.next += 0x40
	return e.next
}

func (e *Engine) export(symbol string, fn any) {
	v := reflect.ValueOf(fn)
	wrapped := reflect.MakeFunc(v.Type(), func(in []reflect.Value) []reflect.Value {
		e.enter(symbol)
		return v.Call(in)
	})
	e.Lib.Export(symbol, wrapped.Interface())
}

func (e *Engine) enter(symbol string) {
	e.mu.Lock()
	e.calls[symbol]++
	cause, fail := e.faults[symbol]
	delete(e.faults, symbol)
	e.mu.Unlock()
	if fail {
		panic(cause)
	}
}

func (e *Engine) exportAll() {
	e.export("JPH_GetVersionString", e.versionString)
	e.export("JPH_GetStructSize", e.structSize)
	e.export("JPH_Init", e.initialize)
	e.export("JPH_Shutdown", e.shutdown)

	e.export("JPH_PhysicsSystem_Create", e.createSystem)
	e.export("JPH_PhysicsSystem_Destroy", e.destroySystem)
	e.export("JPH_PhysicsSystem_GetBodyInterface", e.bodyInterface)
	e.export("JPH_PhysicsSystem_GetNarrowPhaseQuery", e.narrowPhaseQuery)
	e.export("JPH_PhysicsSystem_Update", e.update)
	e.export("JPH_SetBodyDestroyedListener", e.setListener)

	e.export("JPH_SphereShape_Create", e.createSphere)
	e.export("JPH_BoxShape_Create", e.createBox)
	e.export("JPH_Shape_Destroy", e.destroyShape)
	e.export("JPH_Shape_GetLocalBounds", e.localBounds)

	e.export("JPH_BodyInterface_CreateBody", e.createBody)
	e.export("JPH_BodyInterface_DestroyBody", e.destroyBody)
	e.export("JPH_BodyInterface_GetPosition", e.getPosition)
	e.export("JPH_BodyInterface_SetPosition", e.setPosition)
	e.export("JPH_BodyInterface_GetRotation", e.getRotation)
	e.export("JPH_BodyInterface_TryGetBody", e.tryGetBody)
	e.export("JPH_Body_GetID", e.bodyID)

	e.export("JPH_PhysicsMaterial_Create", e.createMaterial)
	e.export("JPH_PhysicsMaterial_Destroy", e.destroyMaterial)
	e.export("JPH_PhysicsMaterial_GetDebugName", e.materialName)

	e.export("JPH_HingeConstraintSettings_Create", e.createHingeSettings)
	e.export("JPH_HingeConstraintSettings_Destroy", e.destroyHingeSettings)
	e.export("JPH_HingeConstraintSettings_Get", e.getHingeSettings)
	e.export("JPH_HingeConstraintSettings_Set", e.setHingeSettings)
	e.export("JPH_HingeConstraintSettings_CreateConstraint", e.createHinge)
	e.export("JPH_Constraint_GetType", e.constraintType)
	e.export("JPH_Constraint_Destroy", e.destroyConstraint)
	e.export("JPH_HingeConstraint_GetCurrentAngle", e.hingeAngle)

	e.export("JPH_WheeledVehicleController_Create", e.createVehicle)
	e.export("JPH_VehicleController_Destroy", e.destroyVehicle)
	e.export("JPH_VehicleController_GetNumWheels", e.numWheels)
	e.export("JPH_VehicleController_GetWheel", e.getWheel)
	e.export("JPH_Wheel_GetAngularVelocity", e.wheelAngularVelocity)
	e.export("JPH_Wheel_GetRadius", e.wheelRadius)

	e.export("JPH_NarrowPhaseQuery_CastRay", e.castRay)
	e.export("JPH_NarrowPhaseQuery_CastShape", e.castShape)
	e.export("JPH_NarrowPhaseQuery_CollidePoint", e.collidePoint)
}

func (e *Engine) versionString() uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uintptr(unsafe.Pointer(&e.version[0]))
}

func (e *Engine) structSize(name uintptr) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sizes[native.GoString(name)]
}

func (e *Engine) initialize() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = true
	return true
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
}

func (e *Engine) createSystem(maxBodies uint32) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready || maxBodies == 0 {
		return 0
	}
	s := &system{maxBodies: maxBodies, bodyIface: e.handle(), query: e.handle()}
	h := e.handle()
	e.systems[h] = s
	e.ifaces[s.bodyIface] = s
	e.ifaces[s.query] = s
	return h
}

func (e *Engine) destroySystem(sys uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.mustSystem(sys)
	delete(e.ifaces, s.bodyIface)
	delete(e.ifaces, s.query)
	delete(e.systems, sys)
}

func (e *Engine) mustSystem(sys uintptr) *system {
	s, ok := e.systems[sys]
	if !ok {
		panic(fmt.Sprintf("invalid physics system %#x", sys))
	}
	return s
}

func (e *Engine) mustIface(h uintptr) *system {
	s, ok := e.ifaces[h]
	if !ok {
		panic(fmt.Sprintf("invalid interface pointer %#x", h))
	}
	return s
}

func (e *Engine) bodyInterface(sys uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mustSystem(sys).bodyIface
}

func (e *Engine) narrowPhaseQuery(sys uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mustSystem(sys).query
}

func (e *Engine) update(sys uintptr, dt float32, steps int32) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustSystem(sys)
	if steps < 1 || dt <= 0 {
		return UpdateBadStep
	}
	for _, b := range e.bodies {
		if b.motion == MotionStatic {
			continue
		}
		for i := range 3 {
			b.pos[i] += b.vel[i] * dt
		}
	}
	for _, c := range e.constraints {
		if c.subType == SubTypeHinge {
			c.angle = min(c.max, max(c.min, c.angle+dt))
		}
	}
	for _, w := range e.wheels {
		w.angVel += dt * 10 / w.radius
	}
	return 0
}

func (e *Engine) setListener(sys, cb, ctx uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.mustSystem(sys)
	s.listenCb, s.listenCtx = cb, ctx
}

func (e *Engine) createSphere(radius float32) uintptr {
	if radius <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.handle()
	e.shapes[h] = &shape{half: [3]float32{radius, radius, radius}}
	return h
}

func (e *Engine) createBox(halfExtent uintptr, _ float32) uintptr {
	half := readVec3(halfExtent)
	if half[0] <= 0 || half[1] <= 0 || half[2] <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.handle()
	e.shapes[h] = &shape{half: half}
	return h
}

func (e *Engine) destroyShape(h uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.shapes, h)
}

func (e *Engine) localBounds(h, out uintptr) {
	e.mu.Lock()
	s, ok := e.shapes[h]
	e.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("invalid shape %#x", h))
	}
	v := layout.ViewAt(out, lay(layout.TagAABox))
	writeVec3View(v.Sub("min"), [3]float32{-s.half[0], -s.half[1], -s.half[2]})
	writeVec3View(v.Sub("max"), s.half)
}

func (e *Engine) createBody(iface, settings uintptr) uintptr {
	v := layout.ViewAt(settings, lay(layout.TagBodyCreationSettings))
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.mustIface(iface)
	sh, ok := e.shapes[v.Address("shape")]
	if !ok || uint32(len(e.bodies)) >= s.maxBodies {
		return 0
	}
	e.nextID++
	b := &body{
		id:   e.nextID,
		addr: e.handle(),
		pos: [3]float32{
			float32(v.Float64("position.x")),
			float32(v.Float64("position.y")),
			float32(v.Float64("position.z")),
		},
		rot: [4]float32{
			v.Float32("rotation.x"), v.Float32("rotation.y"),
			v.Float32("rotation.z"), v.Float32("rotation.w"),
		},
		vel:      readVec3View(v.Sub("linearVelocity")),
		shape:    sh,
		userData: v.Uint64("userData"),
		motion:   v.Int32("motionType"),
	}
	e.bodies[b.addr] = b
	e.byID[b.id] = b
	return b.addr
}

// dropBody removes b and returns the listener to notify. Callers hold e.mu.
func (e *Engine) dropBody(b *body) (cb, ctx uintptr) {
	delete(e.bodies, b.addr)
	delete(e.byID, b.id)
	for _, s := range e.systems {
		if s.listenCb != 0 {
			return s.listenCb, s.listenCtx
		}
	}
	return 0, 0
}

func (e *Engine) notifyDestroyed(cb, ctx uintptr, b *body) {
	if cb == 0 {
		return
	}
	l := lay(layout.TagBodyEvent)
	buf := make([]uint64, (l.Size()+7)/8)
	p := unsafe.Pointer(&buf[0])
	v := layout.NewView(p, l)
	v.SetAddress("body", b.addr)
	v.SetUint32("bodyID", b.id)
	e.Lib.Invoke(cb, ctx, uintptr(p))
	runtime.KeepAlive(buf)
}

func (e *Engine) destroyBody(iface uintptr, id uint32) {
	e.mu.Lock()
	e.mustIface(iface)
	b, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		panic(fmt.Sprintf("destroy of invalid body id %d", id))
	}
	cb, ctx := e.dropBody(b)
	e.mu.Unlock()
	e.notifyDestroyed(cb, ctx, b)
}

func (e *Engine) mustBody(id uint32) *body {
	b, ok := e.byID[id]
	if !ok {
		panic(fmt.Sprintf("invalid body id %d", id))
	}
	return b
}

func (e *Engine) getPosition(iface uintptr, id uint32, out uintptr) {
	e.mu.Lock()
	e.mustIface(iface)
	pos := e.mustBody(id).pos
	e.mu.Unlock()
	writeVec3(out, pos)
}

func (e *Engine) setPosition(iface uintptr, id uint32, in uintptr, _ int32) {
	pos := readVec3(in)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustIface(iface)
	e.mustBody(id).pos = pos
}

func (e *Engine) getRotation(iface uintptr, id uint32, out uintptr) {
	e.mu.Lock()
	e.mustIface(iface)
	rot := e.mustBody(id).rot
	e.mu.Unlock()
	v := layout.ViewAt(out, lay(layout.TagQuat))
	v.SetFloat32("x", rot[0])
	v.SetFloat32("y", rot[1])
	v.SetFloat32("z", rot[2])
	v.SetFloat32("w", rot[3])
}

func (e *Engine) tryGetBody(iface uintptr, id uint32) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustIface(iface)
	if b, ok := e.byID[id]; ok {
		return b.addr
	}
	return 0
}

func (e *Engine) bodyID(h uintptr) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bodies[h]
	if !ok {
		panic(fmt.Sprintf("invalid body %#x", h))
	}
	return b.id
}

func (e *Engine) createMaterial(name uintptr, _ uint32) uintptr {
	s := native.GoString(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.handle()
	e.materials[h] = append([]byte(s), 0)
	return h
}

func (e *Engine) destroyMaterial(h uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.materials, h)
}

func (e *Engine) materialName(h uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	name, ok := e.materials[h]
	if !ok {
		panic(fmt.Sprintf("invalid material %#x", h))
	}
	return uintptr(unsafe.Pointer(&name[0]))
}

// HingeSettingsLive reports how many hinge settings objects exist.
func (e *Engine) HingeSettingsLive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.settings)
}

func hingeView(words []uint64) layout.View {
	return layout.NewView(unsafe.Pointer(&words[0]), lay(layout.TagHingeConstraintSettings))
}

func (e *Engine) createHingeSettings() uintptr {
	l := lay(layout.TagHingeConstraintSettings)
	words := make([]uint64, (l.Size()+7)/8)
	v := hingeView(words)
	v.SetBool("base.enabled", true)
	v.SetFloat32("base.drawConstraintSize", 1)
	v.SetFloat32("hingeAxis1.y", 1)
	v.SetFloat32("hingeAxis2.y", 1)
	v.SetFloat32("normalAxis1.x", 1)
	v.SetFloat32("normalAxis2.x", 1)
	v.SetFloat32("limitsMin", -math.Pi)
	v.SetFloat32("limitsMax", math.Pi)

	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.handle()
	e.settings[h] = words
	return h
}

func (e *Engine) mustSettings(h uintptr) []uint64 {
	w, ok := e.settings[h]
	if !ok {
		panic(fmt.Sprintf("invalid hinge settings %#x", h))
	}
	return w
}

func (e *Engine) destroyHingeSettings(h uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustSettings(h)
	delete(e.settings, h)
}

func (e *Engine) getHingeSettings(h, out uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := hingeView(e.mustSettings(h))
	copy(layout.ViewAt(out, src.Layout()).Bytes(), src.Bytes())
}

func (e *Engine) setHingeSettings(h, in uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dst := hingeView(e.mustSettings(h))
	copy(dst.Bytes(), layout.ViewAt(in, dst.Layout()).Bytes())
}

func (e *Engine) createHinge(h, body1, body2 uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := hingeView(e.mustSettings(h))
	if _, ok := e.bodies[body1]; !ok {
		return 0
	}
	if _, ok := e.bodies[body2]; !ok {
		return 0
	}
	c := &constraint{subType: SubTypeHinge, min: v.Float32("limitsMin"), max: v.Float32("limitsMax")}
	c.angle = min(c.max, max(c.min, 0))
	ch := e.handle()
	e.constraints[ch] = c
	return ch
}

func (e *Engine) mustConstraint(h uintptr) *constraint {
	c, ok := e.constraints[h]
	if !ok {
		panic(fmt.Sprintf("invalid constraint %#x", h))
	}
	return c
}

func (e *Engine) constraintType(h uintptr) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mustConstraint(h).subType
}

func (e *Engine) destroyConstraint(h uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustConstraint(h)
	delete(e.constraints, h)
}

func (e *Engine) hingeAngle(h uintptr) float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.mustConstraint(h)
	if c.subType != SubTypeHinge {
		panic(fmt.Sprintf("constraint %#x is not a hinge", h))
	}
	return c.angle
}

func (e *Engine) createVehicle(sys, wheels uintptr, count uint32) uintptr {
	l := lay(layout.TagWheelSettings)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustSystem(sys)
	if count == 0 {
		return 0
	}
	veh := &vehicle{}
	for i := range uintptr(count) {
		v := layout.ViewAt(wheels+i*l.Size(), l)
		r := v.Float32("radius")
		if r <= 0 {
			return 0
		}
		wh := e.handle()
		e.wheels[wh] = &wheel{radius: r}
		veh.wheels = append(veh.wheels, wh)
	}
	h := e.handle()
	e.vehicles[h] = veh
	e.constraints[h] = &constraint{subType: SubTypeVehicle}
	return h
}

func (e *Engine) mustVehicle(h uintptr) *vehicle {
	v, ok := e.vehicles[h]
	if !ok {
		panic(fmt.Sprintf("invalid vehicle controller %#x", h))
	}
	return v
}

func (e *Engine) destroyVehicle(h uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.mustVehicle(h).wheels {
		delete(e.wheels, w)
	}
	delete(e.vehicles, h)
	delete(e.constraints, h)
}

func (e *Engine) numWheels(h uintptr) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint32(len(e.mustVehicle(h).wheels))
}

func (e *Engine) getWheel(h uintptr, index uint32) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.mustVehicle(h)
	if int(index) >= len(v.wheels) {
		return 0
	}
	return v.wheels[index]
}

func (e *Engine) mustWheel(h uintptr) *wheel {
	w, ok := e.wheels[h]
	if !ok {
		panic(fmt.Sprintf("invalid wheel %#x", h))
	}
	return w
}

func (e *Engine) wheelAngularVelocity(h uintptr) float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mustWheel(h).angVel
}

func (e *Engine) wheelRadius(h uintptr) float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mustWheel(h).radius
}

type hit struct {
	b        *body
	fraction float32
}

// sortedBodies snapshots bodies in id order so query results are stable.
func (e *Engine) sortedBodies(query uintptr) []body {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustIface(query)
	out := make([]body, 0, len(e.bodies))
	for _, b := range e.bodies {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// slab intersects the segment o + t*d, t in [0,1], with the box [lo, hi].
func slab(o, d, lo, hi [3]float32) (float32, bool) {
	tmin, tmax := float32(0), float32(1)
	for i := range 3 {
		if math.Abs(float64(d[i])) < 1e-9 {
			if o[i] < lo[i] || o[i] > hi[i] {
				return 0, false
			}
			continue
		}
		t1 := (lo[i] - o[i]) / d[i]
		t2 := (hi[i] - o[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

func sortHits(hits []hit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].fraction < hits[j].fraction })
}

// deliver invokes cb once per hit with a struct of layout l filled by fill.
func (e *Engine) deliver(cb, ctx uintptr, l *layout.Layout, n int, fill func(i int, v layout.View)) {
	buf := make([]uint64, (l.Size()+7)/8)
	p := unsafe.Pointer(&buf[0])
	v := layout.NewView(p, l)
	for i := range n {
		clear(buf)
		fill(i, v)
		e.Lib.Invoke(cb, ctx, uintptr(p))
	}
	runtime.KeepAlive(buf)
}

func (e *Engine) castRay(query, origin, direction, cb, ctx uintptr) bool {
	o, d := readVec3(origin), readVec3(direction)
	var hits []hit
	for _, b := range e.sortedBodies(query) {
		lo, hi := b.bounds()
		if f, ok := slab(o, d, lo, hi); ok {
			hits = append(hits, hit{b: &b, fraction: f})
		}
	}
	sortHits(hits)
	e.deliver(cb, ctx, lay(layout.TagRayCastResult), len(hits), func(i int, v layout.View) {
		v.SetUint32("bodyID", hits[i].b.id)
		v.SetFloat32("fraction", hits[i].fraction)
	})
	return len(hits) > 0
}

func (e *Engine) castShape(query, shapeH, transform, direction, cb, ctx uintptr) bool {
	e.mu.Lock()
	s, ok := e.shapes[shapeH]
	e.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("invalid shape %#x", shapeH))
	}
	m := layout.ViewAt(transform, lay(layout.TagMat44))
	c := [3]float32{m.Float32("column[3].x"), m.Float32("column[3].y"), m.Float32("column[3].z")}
	d := readVec3(direction)

	var hits []hit
	for _, b := range e.sortedBodies(query) {
		lo, hi := b.bounds()
		for i := range 3 {
			lo[i] -= s.half[i]
			hi[i] += s.half[i]
		}
		if f, ok := slab(c, d, lo, hi); ok {
			hits = append(hits, hit{b: &b, fraction: f})
		}
	}
	sortHits(hits)

	length := float32(math.Sqrt(float64(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])))
	var axis [3]float32
	if length > 0 {
		axis = [3]float32{d[0] / length, d[1] / length, d[2] / length}
	}
	e.deliver(cb, ctx, lay(layout.TagShapeCastResult), len(hits), func(i int, v layout.View) {
		h := hits[i]
		var contact [3]float32
		for k := range 3 {
			contact[k] = c[k] + d[k]*h.fraction
		}
		writeVec3View(v.Sub("contactPointOn1"), contact)
		writeVec3View(v.Sub("contactPointOn2"), contact)
		writeVec3View(v.Sub("penetrationAxis"), axis)
		v.SetUint32("bodyID2", h.b.id)
		v.SetFloat32("fraction", h.fraction)
	})
	return len(hits) > 0
}

func (e *Engine) collidePoint(query, point, cb, ctx uintptr) bool {
	p := readVec3(point)
	var ids []uint32
	for _, b := range e.sortedBodies(query) {
		lo, hi := b.bounds()
		if p[0] >= lo[0] && p[0] <= hi[0] && p[1] >= lo[1] && p[1] <= hi[1] && p[2] >= lo[2] && p[2] <= hi[2] {
			ids = append(ids, b.id)
		}
	}
	e.deliver(cb, ctx, lay(layout.TagCollidePointResult), len(ids), func(i int, v layout.View) {
		v.SetUint32("bodyID", ids[i])
	})
	return len(ids) > 0
}

func readVec3(addr uintptr) [3]float32 {
	return readVec3View(layout.ViewAt(addr, lay(layout.TagVec3)))
}

func readVec3View(v layout.View) [3]float32 {
	return [3]float32{v.Float32("x"), v.Float32("y"), v.Float32("z")}
}

func writeVec3(addr uintptr, x [3]float32) {
	writeVec3View(layout.ViewAt(addr, lay(layout.TagVec3)), x)
}

func writeVec3View(v layout.View, x [3]float32) {
	v.SetFloat32("x", x[0])
	v.SetFloat32("y", x[1])
	v.SetFloat32("z", x[2])
}
