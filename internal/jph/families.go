package jph

import (
	"github.com/san-kum/jphbridge/internal/identity"
	"go.uber.org/zap"
)

// Families holds one identity table per native object family. Addresses of
// different families may coincide, so the tables never share entries.
type Families struct {
	Bodies      *identity.Table[Body]
	Shapes      *identity.Table[Shape]
	Materials   *identity.Table[PhysicsMaterial]
	Constraints *identity.Table[Constraint]
	Vehicles    *identity.Table[VehicleController]
	Wheels      *identity.Table[Wheel]
}

func NewFamilies(log *zap.Logger) *Families {
	opt := identity.WithLogger(log)
	return &Families{
		Bodies:      identity.NewTable[Body]("bodies", opt),
		Shapes:      identity.NewTable[Shape]("shapes", opt),
		Materials:   identity.NewTable[PhysicsMaterial]("materials", opt),
		Constraints: identity.NewTable[Constraint]("constraints", opt),
		Vehicles:    identity.NewTable[VehicleController]("vehicles", opt),
		Wheels:      identity.NewTable[Wheel]("wheels", opt),
	}
}

// FamilyStats is the live wrapper count of one table.
type FamilyStats struct {
	Name  string
	Live  int
	Slots int
}

func (f *Families) Stats() []FamilyStats {
	return []FamilyStats{
		statsOf(f.Bodies),
		statsOf(f.Shapes),
		statsOf(f.Materials),
		statsOf(f.Constraints),
		statsOf(f.Vehicles),
		statsOf(f.Wheels),
	}
}

func statsOf[W any](t *identity.Table[W]) FamilyStats {
	return FamilyStats{Name: t.Name(), Live: t.Len(), Slots: t.Slots()}
}
