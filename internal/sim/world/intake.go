package world

import (
	"fmt"

	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

// applyCommand handles construction, demolition, recipe selection and power
// restore immediately. Links are deferred to the merge phase.
func (w *World) applyCommand(cmd Command, nowTick uint64) {
	if err := ValidateCommand(cmd); err != nil {
		w.reject(cmd, ErrCodeInvalid, err.Error())
		return
	}
	switch cmd.Type {
	case CmdConstruct:
		w.construct(cmd, nowTick)
	case CmdDemolish:
		w.demolish(cmd)
	case CmdSelectRecipe:
		w.selectRecipe(cmd)
	case CmdRestorePower:
		w.restorePower(cmd)
	case CmdLinkPower:
		w.pendingLinks = append(w.pendingLinks, cmd)
	}
}

func (w *World) construct(cmd Command, nowTick uint64) {
	def, ok := w.catalogs.Structures.ByID[cmd.Def]
	if !ok {
		w.reject(cmd, ErrCodeUnknownDef, "unknown structure def "+cmd.Def)
		return
	}
	pos := modelpkg.CoordFromArray(cmd.Pos)
	if w.registry.Contains(pos) {
		w.reject(cmd, ErrCodeOccupied, "coordinate occupied")
		return
	}
	recipe := cmd.Recipe
	if recipe == "" {
		recipe = def.DefaultRecipe
	} else if !def.AllowsRecipe(recipe) {
		w.reject(cmd, ErrCodeBadRecipe, fmt.Sprintf("%s cannot run %s", def.ID, recipe))
		return
	}

	id := modelpkg.StructureID(len(w.structures) + 1)
	s := modelpkg.NewStructure(id, def, modelpkg.RoleOf(def, w.catalogs.Recipes.ByID), pos, nowTick)
	w.nameSeq[def.ID]++
	s.Name = fmt.Sprintf("%s #%d", def.Name, w.nameSeq[def.ID])
	s.RecipeID = recipe
	s.DispatchTicks = uint64(w.cfg.PorterDispatchTicks)
	if err := w.registry.Insert(pos, id); err != nil {
		w.reject(cmd, ErrCodeOccupied, err.Error())
		return
	}
	w.structures = append(w.structures, s)
	if s.PowerCapable {
		s.Grid = w.power.Add(id)
	}
	w.routesDirty = true
	w.emit(Event{Type: EventStructureConstructed, Structure: id, Def: def.ID, Name: s.Name, Pos: posOf(pos), Recipe: recipe, Grid: s.Grid})
}

func (w *World) demolish(cmd Command) {
	pos := modelpkg.CoordFromArray(cmd.Pos)
	id, ok := w.registry.Remove(pos)
	if !ok {
		w.reject(cmd, ErrCodeNotFound, "nothing to demolish")
		return
	}
	s := w.mustStructure(id)
	s.Demolished = true
	s.Powered = false
	s.Working = false
	w.demolished = append(w.demolished, id)
	w.routesDirty = true
	w.emit(Event{Type: EventStructureDemolished, Structure: id, Def: s.DefID, Name: s.Name, Pos: posOf(pos)})
}

func (w *World) selectRecipe(cmd Command) {
	s := w.structureAt(modelpkg.CoordFromArray(cmd.Pos))
	if s == nil {
		w.reject(cmd, ErrCodeNotFound, "no structure at coordinate")
		return
	}
	def := w.catalogs.Structures.ByID[s.DefID]
	if !def.AllowsRecipe(cmd.Recipe) {
		w.reject(cmd, ErrCodeBadRecipe, fmt.Sprintf("%s cannot run %s", s.DefID, cmd.Recipe))
		return
	}
	if s.RecipeID == cmd.Recipe {
		return
	}
	s.Machine.Abort(w.recipeOf(s), s.Input)
	s.RecipeID = cmd.Recipe
	s.Working = false
	w.routesDirty = true
	w.emit(Event{Type: EventRecipeSelected, Structure: s.ID, Recipe: cmd.Recipe})
}

func (w *World) restorePower(cmd Command) {
	s := w.structureAt(modelpkg.CoordFromArray(cmd.Pos))
	if s == nil {
		w.reject(cmd, ErrCodeNotFound, "no structure at coordinate")
		return
	}
	if !s.PowerCapable {
		w.reject(cmd, ErrCodeNotPoweredNode, s.DefID+" is not on a power grid")
		return
	}
	gid, _ := w.power.GridOf(s.ID)
	w.power.Restore(gid, powerEnv{w})
	w.emit(Event{Type: EventPowerRestored, Structure: s.ID, Grid: gid})
}
