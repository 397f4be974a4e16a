package layout

import "sync"

// Tags of the engine value types. The names match the struct names the
// native library reports through its size introspection call.
const (
	TagVec3                    Tag = "Vec3"
	TagDVec3                   Tag = "DVec3"
	TagVec4                    Tag = "Vec4"
	TagQuat                    Tag = "Quat"
	TagMat44                   Tag = "Mat44"
	TagAABox                   Tag = "AABox"
	TagSpringSettings          Tag = "SpringSettings"
	TagMotorSettings           Tag = "MotorSettings"
	TagConstraintSettings      Tag = "ConstraintSettings"
	TagHingeConstraintSettings Tag = "HingeConstraintSettings"
	TagRayCastSettings         Tag = "RayCastSettings"
	TagRayCastResult           Tag = "RayCastResult"
	TagShapeCastResult         Tag = "ShapeCastResult"
	TagCollidePointResult      Tag = "CollidePointResult"
	TagWheelSettings           Tag = "WheelSettings"
	TagBodyCreationSettings    Tag = "BodyCreationSettings"
	TagBodyEvent               Tag = "BodyEvent"
)

// Default returns the process-wide registry of engine layouts. It is built on
// first use and never changes afterwards.
var Default = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	for _, l := range engineLayouts() {
		if err := r.Register(l); err != nil {
			panic(err)
		}
	}
	return r
})

func engineLayouts() []*Layout {
	vec3 := MustStruct(string(TagVec3),
		F("x", Float32), F("y", Float32), F("z", Float32))
	dvec3 := MustStruct(string(TagDVec3),
		F("x", Float64), F("y", Float64), F("z", Float64))
	vec4 := MustStruct(string(TagVec4),
		F("x", Float32), F("y", Float32), F("z", Float32), F("w", Float32))
	quat := MustStruct(string(TagQuat),
		F("x", Float32), F("y", Float32), F("z", Float32), F("w", Float32))
	mat44 := MustStruct(string(TagMat44),
		ArrayOf("column", vec4, 4))
	aabox := MustStruct(string(TagAABox),
		Nested("min", vec3), Nested("max", vec3))

	spring := MustStruct(string(TagSpringSettings),
		F("mode", Int32),
		F("frequencyOrStiffness", Float32),
		F("damping", Float32))
	motor := MustStruct(string(TagMotorSettings),
		Nested("springSettings", spring),
		F("minForceLimit", Float32),
		F("maxForceLimit", Float32),
		F("minTorqueLimit", Float32),
		F("maxTorqueLimit", Float32))

	constraint := MustStruct(string(TagConstraintSettings),
		F("enabled", Bool),
		Pad(3),
		F("constraintPriority", Uint32),
		F("numVelocityStepsOverride", Uint32),
		F("numPositionStepsOverride", Uint32),
		F("drawConstraintSize", Float32),
		Pad(4),
		F("userData", Uint64))
	hinge := MustStruct(string(TagHingeConstraintSettings),
		Nested("base", constraint),
		F("space", Int32),
		Nested("point1", vec3),
		Nested("hingeAxis1", vec3),
		Nested("normalAxis1", vec3),
		Nested("point2", vec3),
		Nested("hingeAxis2", vec3),
		Nested("normalAxis2", vec3),
		F("limitsMin", Float32),
		F("limitsMax", Float32),
		Nested("limitsSpringSettings", spring),
		F("maxFrictionTorque", Float32),
		Nested("motorSettings", motor))

	rayCastSettings := MustStruct(string(TagRayCastSettings),
		F("backFaceModeTriangles", Int32),
		F("backFaceModeConvex", Int32),
		F("treatConvexAsSolid", Bool),
		Pad(3))
	rayCastResult := MustStruct(string(TagRayCastResult),
		F("bodyID", Uint32),
		F("fraction", Float32),
		F("subShapeID2", Uint32))
	shapeCastResult := MustStruct(string(TagShapeCastResult),
		Nested("contactPointOn1", vec3),
		Nested("contactPointOn2", vec3),
		Nested("penetrationAxis", vec3),
		F("penetrationDepth", Float32),
		F("subShapeID1", Uint32),
		F("subShapeID2", Uint32),
		F("bodyID2", Uint32),
		F("fraction", Float32),
		F("isBackFaceHit", Bool),
		Pad(3))
	collidePointResult := MustStruct(string(TagCollidePointResult),
		F("bodyID", Uint32),
		F("subShapeID2", Uint32))

	wheel := MustStruct(string(TagWheelSettings),
		Nested("position", vec3),
		Nested("suspensionForcePoint", vec3),
		Nested("suspensionDirection", vec3),
		Nested("steeringAxis", vec3),
		Nested("wheelUp", vec3),
		Nested("wheelForward", vec3),
		F("suspensionMinLength", Float32),
		F("suspensionMaxLength", Float32),
		F("suspensionPreloadLength", Float32),
		Nested("suspensionSpring", spring),
		F("radius", Float32),
		F("width", Float32),
		F("enableSuspensionForcePoint", Bool),
		Pad(3))

	body := MustStruct(string(TagBodyCreationSettings),
		Nested("position", dvec3),
		Nested("rotation", quat),
		Nested("linearVelocity", vec3),
		Nested("angularVelocity", vec3),
		F("userData", Uint64),
		F("objectLayer", Uint32),
		F("motionType", Int32),
		F("allowSleeping", Bool),
		Pad(3),
		F("friction", Float32),
		F("restitution", Float32),
		F("linearDamping", Float32),
		F("angularDamping", Float32),
		F("gravityFactor", Float32),
		F("shape", Pointer))

	bodyEvent := MustStruct(string(TagBodyEvent),
		F("body", Pointer),
		F("bodyID", Uint32))

	return []*Layout{
		vec3, dvec3, vec4, quat, mat44, aabox,
		spring, motor, constraint, hinge,
		rayCastSettings, rayCastResult, shapeCastResult, collidePointResult,
		wheel, body, bodyEvent,
	}
}
