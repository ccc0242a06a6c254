package world

import (
	"fmt"

	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

// powerEnv adapts the arena to power.Env.
type powerEnv struct{ w *World }

func (e powerEnv) Powered(id modelpkg.StructureID) bool {
	s := e.w.structureByID(id)
	return s.Alive() && s.Powered
}

func (e powerEnv) Working(id modelpkg.StructureID) bool {
	s := e.w.structureByID(id)
	return s.Alive() && s.Working
}

func (e powerEnv) Production(id modelpkg.StructureID) int {
	if s := e.w.structureByID(id); s != nil {
		return s.PowerProduction
	}
	return 0
}

func (e powerEnv) Consumption(id modelpkg.StructureID) int {
	if s := e.w.structureByID(id); s != nil {
		return s.PowerConsumption
	}
	return 0
}

func (e powerEnv) SetPowered(id modelpkg.StructureID, on bool) {
	if s := e.w.structureByID(id); s.Alive() {
		s.Powered = on
	}
}

func (w *World) systemPowerLinks() {
	for _, cmd := range w.pendingLinks {
		w.linkPower(cmd)
	}
	w.pendingLinks = w.pendingLinks[:0]
}

func (w *World) linkPower(cmd Command) {
	pa, pb := modelpkg.CoordFromArray(cmd.Pos), modelpkg.CoordFromArray(cmd.To)
	a, b := w.structureAt(pa), w.structureAt(pb)
	if a == nil || b == nil {
		w.reject(cmd, ErrCodeNotFound, "link endpoint missing")
		return
	}
	if !a.PowerCapable || !b.PowerCapable || a.ID == b.ID {
		w.reject(cmd, ErrCodeNotPoweredNode, fmt.Sprintf("cannot link %s to %s", a.DefID, b.DefID))
		return
	}
	if r := w.cfg.PowerLinkRange; r > 0 && modelpkg.Chebyshev(pa, pb) > r {
		w.reject(cmd, ErrCodeOutOfRange, fmt.Sprintf("distance %d exceeds %d", modelpkg.Chebyshev(pa, pb), r))
		return
	}
	res, ok := w.power.Link(a.ID, b.ID)
	if !ok {
		w.reject(cmd, ErrCodeNotPoweredNode, "endpoint not on a grid")
		return
	}
	if !res.Merged {
		return
	}
	for _, id := range res.Moved {
		w.mustStructure(id).Grid = res.Survivor
	}
	w.emit(Event{Type: EventGridMerged, From: a.ID, To: b.ID, Grid: res.Survivor, Grids: []modelpkg.GridID{res.Absorbed}})
}

// systemPower recomputes per-grid totals and blows the fuse of every overloaded grid.
func (w *World) systemPower() {
	for _, gid := range w.power.Aggregate(powerEnv{w}) {
		g := w.power.Grid(gid)
		w.fuses++
		w.emit(Event{Type: EventFuseBlown, Grid: gid, Production: g.Production, Consumption: g.Consumption})
		w.logger.Printf("tick=%d fuse blown grid=%d production=%d consumption=%d", w.tick.Load(), gid, g.Production, g.Consumption)
	}
}

// splitGrid regroups the grid of a demolished structure.
func (w *World) splitGrid(id modelpkg.StructureID) {
	res, ok := w.power.Remove(id)
	if !ok || res.Emptied || len(res.Created) == 0 {
		return
	}
	for _, gid := range res.Created {
		for _, m := range w.power.Grid(gid).Members {
			w.mustStructure(m).Grid = gid
		}
	}
	w.emit(Event{Type: EventGridSplit, Structure: id, Grid: res.From, Grids: res.Created})
}
