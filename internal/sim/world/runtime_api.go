package world

import modelpkg "factorysim.ai/internal/sim/world/kernel/model"

// Read helpers for tools and tests. They are NOT safe to call concurrently
// with Run(); use them with Step() from a single goroutine.

type StructureView struct {
	ID       modelpkg.StructureID `json:"id"`
	Def      string               `json:"def"`
	Name     string               `json:"name"`
	Role     string               `json:"role"`
	Pos      [2]int               `json:"pos"`
	Recipe   string               `json:"recipe,omitempty"`
	State    string               `json:"state"`
	Progress float64              `json:"progress"`
	Blocked  bool                 `json:"blocked,omitempty"`
	Input    []modelpkg.ItemStack `json:"input,omitempty"`
	Output   []modelpkg.ItemStack `json:"output,omitempty"`
	Powered  bool                 `json:"powered"`
	Working  bool                 `json:"working"`
	Grid     modelpkg.GridID      `json:"grid,omitempty"`
}

func viewOf(s *modelpkg.Structure) StructureView {
	return StructureView{
		ID:       s.ID,
		Def:      s.DefID,
		Name:     s.Name,
		Role:     s.Role.String(),
		Pos:      s.Pos.ToArray(),
		Recipe:   s.RecipeID,
		State:    s.Machine.State.String(),
		Progress: s.Machine.Progress(),
		Blocked:  s.Machine.Blocked(),
		Input:    s.Input.List(),
		Output:   s.Output.List(),
		Powered:  s.Powered,
		Working:  s.Working,
		Grid:     s.Grid,
	}
}

func (w *World) StructureAt(pos modelpkg.Coord) (StructureView, bool) {
	s := w.structureAt(pos)
	if s == nil {
		return StructureView{}, false
	}
	return viewOf(s), true
}

// Structures lists live structures in id order.
func (w *World) Structures() []StructureView {
	live := w.liveStructures()
	out := make([]StructureView, 0, len(live))
	for _, s := range live {
		out = append(out, viewOf(s))
	}
	return out
}

type GridView struct {
	ID          modelpkg.GridID        `json:"id"`
	Members     []modelpkg.StructureID `json:"members"`
	Production  int                    `json:"production_kw"`
	Consumption int                    `json:"consumption_kw"`
}

func (w *World) Grids() []GridView {
	ids := w.power.GridIDs()
	out := make([]GridView, 0, len(ids))
	for _, gid := range ids {
		g := w.power.Grid(gid)
		out = append(out, GridView{
			ID:          gid,
			Members:     append([]modelpkg.StructureID(nil), g.Members...),
			Production:  g.Production,
			Consumption: g.Consumption,
		})
	}
	return out
}

func (w *World) PortersInFlight() int { return len(w.porters) }
