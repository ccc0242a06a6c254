package model

import (
	"factorysim.ai/internal/sim/catalogs"
	"factorysim.ai/internal/sim/world/feature/production"
)

// StructureID addresses the structure arena. Ids are never reused, so a stale
// id can never resolve to a newer structure.
type StructureID uint32

type GridID uint32

// Role is the closed set of structure variants, derived from the def.
type Role uint8

const (
	RoleConnector Role = iota
	RoleProducer
	RoleConsumer
	RoleTransformer
	RolePowerNode
)

func (r Role) String() string {
	switch r {
	case RoleConnector:
		return "CONNECTOR"
	case RoleProducer:
		return "PRODUCER"
	case RoleConsumer:
		return "CONSUMER"
	case RoleTransformer:
		return "TRANSFORMER"
	case RolePowerNode:
		return "POWER_NODE"
	default:
		return "?"
	}
}

// RoleOf classifies a def by the union of its recipes' slots.
func RoleOf(def catalogs.StructureDef, recipes map[string]catalogs.RecipeDef) Role {
	hasIn, hasOut := false, false
	for _, rid := range def.Recipes {
		r, ok := recipes[rid]
		if !ok {
			continue
		}
		if len(r.Inputs) > 0 {
			hasIn = true
		}
		if len(r.Outputs) > 0 {
			hasOut = true
		}
	}
	switch {
	case hasIn && hasOut:
		return RoleTransformer
	case hasOut:
		return RoleProducer
	case hasIn:
		return RoleConsumer
	case def.PowerCapable():
		return RolePowerNode
	default:
		return RoleConnector
	}
}

type Structure struct {
	ID    StructureID
	DefID string
	Name  string
	Role  Role
	Pos   Coord

	Walkable bool

	RecipeID string
	Input    Inventory
	Output   Inventory
	Machine  production.Machine

	PowerCapable     bool
	RequiresPower    bool
	PowerProduction  int
	PowerConsumption int
	OutputCapacity   int

	Powered bool
	Working bool
	Grid    GridID

	// DispatchTicks counts ticks since the last porter left; saturates at the dispatch interval.
	DispatchTicks uint64

	BuiltTick  uint64
	Demolished bool
}

func NewStructure(id StructureID, def catalogs.StructureDef, role Role, pos Coord, nowTick uint64) *Structure {
	return &Structure{
		ID:               id,
		DefID:            def.ID,
		Name:             def.Name,
		Role:             role,
		Pos:              pos,
		Walkable:         def.Walkable,
		Input:            Inventory{},
		Output:           Inventory{},
		PowerCapable:     def.PowerCapable(),
		RequiresPower:    def.RequiresPower(),
		PowerProduction:  def.PowerProduction,
		PowerConsumption: def.PowerConsumption,
		OutputCapacity:   def.OutputCapacity,
		Powered:          def.PowerCapable(),
		BuiltTick:        nowTick,
	}
}

func (s *Structure) HasInventory() bool {
	switch s.Role {
	case RoleProducer, RoleConsumer, RoleTransformer:
		return true
	}
	return false
}

func (s *Structure) HasPower() bool { return s.PowerCapable }

// HasRoute reports whether the structure ships output and so owns route queues.
func (s *Structure) HasRoute() bool {
	return (s.Role == RoleProducer || s.Role == RoleTransformer) && s.RecipeID != ""
}

// AlwaysOn structures have no production cycle; they count as working whenever alive.
func (s *Structure) AlwaysOn() bool { return s.Role == RolePowerNode }

func (s *Structure) Alive() bool { return s != nil && !s.Demolished }
