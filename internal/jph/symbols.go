package jph

import (
	"errors"

	"github.com/san-kum/jphbridge/internal/gateway"
	"github.com/san-kum/jphbridge/internal/layout"
)

const (
	symGetVersionString = "JPH_GetVersionString"
	symGetStructSize    = "JPH_GetStructSize"
	symInit             = "JPH_Init"
	symShutdown         = "JPH_Shutdown"

	symSystemCreate       = "JPH_PhysicsSystem_Create"
	symSystemDestroy      = "JPH_PhysicsSystem_Destroy"
	symSystemBodyIface    = "JPH_PhysicsSystem_GetBodyInterface"
	symSystemQuery        = "JPH_PhysicsSystem_GetNarrowPhaseQuery"
	symSystemUpdate       = "JPH_PhysicsSystem_Update"
	symSetDestroyListener = "JPH_SetBodyDestroyedListener"

	symSphereCreate     = "JPH_SphereShape_Create"
	symBoxCreate        = "JPH_BoxShape_Create"
	symShapeDestroy     = "JPH_Shape_Destroy"
	symShapeLocalBounds = "JPH_Shape_GetLocalBounds"

	symBodyCreate      = "JPH_BodyInterface_CreateBody"
	symBodyDestroy     = "JPH_BodyInterface_DestroyBody"
	symBodyGetPosition = "JPH_BodyInterface_GetPosition"
	symBodySetPosition = "JPH_BodyInterface_SetPosition"
	symBodyGetRotation = "JPH_BodyInterface_GetRotation"
	symBodyTryGet      = "JPH_BodyInterface_TryGetBody"
	symBodyGetID       = "JPH_Body_GetID"

	symMaterialCreate  = "JPH_PhysicsMaterial_Create"
	symMaterialDestroy = "JPH_PhysicsMaterial_Destroy"
	symMaterialName    = "JPH_PhysicsMaterial_GetDebugName"

	symHingeSettingsCreate   = "JPH_HingeConstraintSettings_Create"
	symHingeSettingsDestroy  = "JPH_HingeConstraintSettings_Destroy"
	symHingeSettingsGet      = "JPH_HingeConstraintSettings_Get"
	symHingeSettingsSet      = "JPH_HingeConstraintSettings_Set"
	symHingeCreateConstraint = "JPH_HingeConstraintSettings_CreateConstraint"
	symConstraintGetType     = "JPH_Constraint_GetType"
	symConstraintDestroy     = "JPH_Constraint_Destroy"
	symHingeGetCurrentAngle  = "JPH_HingeConstraint_GetCurrentAngle"
	symVehicleCreate         = "JPH_WheeledVehicleController_Create"
	symVehicleDestroy        = "JPH_VehicleController_Destroy"
	symVehicleNumWheels      = "JPH_VehicleController_GetNumWheels"
	symVehicleGetWheel       = "JPH_VehicleController_GetWheel"
	symWheelAngularVelocity  = "JPH_Wheel_GetAngularVelocity"
	symWheelRadius           = "JPH_Wheel_GetRadius"
	symQueryCastRay          = "JPH_NarrowPhaseQuery_CastRay"
	symQueryCastShape        = "JPH_NarrowPhaseQuery_CastShape"
	symQueryCollidePoint     = "JPH_NarrowPhaseQuery_CollidePoint"
)

// SymbolSpec is one entry of the engine's required native surface.
type SymbolSpec struct {
	Name   string
	Sig    gateway.Signature
	Status gateway.Status
}

func spec(name string, status gateway.Status, ret layout.Kind, args ...layout.Kind) SymbolSpec {
	return SymbolSpec{Name: name, Sig: gateway.Signature{Ret: ret, Args: args}, Status: status}
}

const (
	ptr = layout.Pointer
	u32 = layout.Uint32
	i32 = layout.Int32
	f32 = layout.Float32
)

var (
	none    = gateway.StatusNone
	isFalse = gateway.StatusFalseIsError
	isNull  = gateway.StatusNullIsError
	nonZero = gateway.StatusNonZeroIsError
)

var symbolTable = []SymbolSpec{
	spec(symGetVersionString, none, ptr),
	spec(symInit, isFalse, layout.Bool),
	spec(symShutdown, none, layout.Void),

	spec(symSystemCreate, isNull, ptr, u32),
	spec(symSystemDestroy, none, layout.Void, ptr),
	spec(symSystemBodyIface, isNull, ptr, ptr),
	spec(symSystemQuery, isNull, ptr, ptr),
	spec(symSystemUpdate, nonZero, i32, ptr, f32, i32),
	spec(symSetDestroyListener, none, layout.Void, ptr, ptr, ptr),

	spec(symSphereCreate, isNull, ptr, f32),
	spec(symBoxCreate, isNull, ptr, ptr, f32),
	spec(symShapeDestroy, none, layout.Void, ptr),
	spec(symShapeLocalBounds, none, layout.Void, ptr, ptr),

	spec(symBodyCreate, isNull, ptr, ptr, ptr),
	spec(symBodyDestroy, none, layout.Void, ptr, u32),
	spec(symBodyGetPosition, none, layout.Void, ptr, u32, ptr),
	spec(symBodySetPosition, none, layout.Void, ptr, u32, ptr, i32),
	spec(symBodyGetRotation, none, layout.Void, ptr, u32, ptr),
	spec(symBodyTryGet, none, ptr, ptr, u32),
	spec(symBodyGetID, none, u32, ptr),

	spec(symMaterialCreate, isNull, ptr, ptr, u32),
	spec(symMaterialDestroy, none, layout.Void, ptr),
	spec(symMaterialName, none, ptr, ptr),

	spec(symHingeSettingsCreate, isNull, ptr),
	spec(symHingeSettingsDestroy, none, layout.Void, ptr),
	spec(symHingeSettingsGet, none, layout.Void, ptr, ptr),
	spec(symHingeSettingsSet, none, layout.Void, ptr, ptr),
	spec(symHingeCreateConstraint, isNull, ptr, ptr, ptr, ptr),
	spec(symConstraintGetType, none, u32, ptr),
	spec(symConstraintDestroy, none, layout.Void, ptr),
	spec(symHingeGetCurrentAngle, none, f32, ptr),

	spec(symVehicleCreate, isNull, ptr, ptr, ptr, u32),
	spec(symVehicleDestroy, none, layout.Void, ptr),
	spec(symVehicleNumWheels, none, u32, ptr),
	spec(symVehicleGetWheel, none, ptr, ptr, u32),
	spec(symWheelAngularVelocity, none, f32, ptr),
	spec(symWheelRadius, none, f32, ptr),

	spec(symQueryCastRay, none, layout.Bool, ptr, ptr, ptr, ptr, ptr),
	spec(symQueryCastShape, none, layout.Bool, ptr, ptr, ptr, ptr, ptr, ptr),
	spec(symQueryCollidePoint, none, layout.Bool, ptr, ptr, ptr, ptr),
}

// Symbols returns the native functions an Engine requires.
func Symbols() []SymbolSpec {
	out := make([]SymbolSpec, len(symbolTable))
	copy(out, symbolTable)
	return out
}

// resolveSymbols binds the whole table, reporting every failure at once.
func resolveSymbols(g *gateway.Gateway) (map[string]*gateway.Function, error) {
	fns := make(map[string]*gateway.Function, len(symbolTable))
	var errs []error
	for _, s := range symbolTable {
		f, err := g.Resolve(s.Name, s.Sig.Ret, s.Sig.Args...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fns[s.Name] = f.WithStatus(s.Status)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return fns, nil
}
