package world

import (
	"factorysim.ai/internal/sim/world/feature/logistics/porters"
	"factorysim.ai/internal/sim/world/feature/logistics/routes"
	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

// routeGraph adapts the registry and arena to routes.Graph.
type routeGraph struct{ w *World }

func (g routeGraph) At(pos modelpkg.Coord) (modelpkg.StructureID, bool) {
	return g.w.registry.Get(pos)
}

func (g routeGraph) Walkable(id modelpkg.StructureID) bool {
	s := g.w.structureByID(id)
	return s.Alive() && s.Walkable
}

// Accepts reports whether the selected recipe of id has an input slot for resource.
func (g routeGraph) Accepts(id modelpkg.StructureID, resource string) bool {
	s := g.w.structureByID(id)
	if !s.Alive() {
		return false
	}
	r := g.w.recipeOf(s)
	return r != nil && r.InputCount(resource) > 0
}

func (w *World) routeProducers() []routes.Producer {
	var out []routes.Producer
	for _, s := range w.liveStructures() {
		if !s.HasRoute() {
			continue
		}
		r := w.recipeOf(s)
		if r == nil {
			continue
		}
		res := r.OutputItems()
		if len(res) == 0 {
			continue
		}
		out = append(out, routes.Producer{ID: s.ID, Pos: s.Pos, Resources: res})
	}
	return out
}

func (w *World) systemLogistics() {
	if w.routesDirty {
		w.routes.Rebuild(routeGraph{w}, w.routeProducers(), w.cfg.RouteMaxNodes)
		w.routesDirty = false
		w.emit(Event{Type: EventRoutesDiscovered, Routes: w.routes.RouteCount(), Digest: w.routes.Digest()})
	}

	params := porters.Params{Speed: w.cfg.PorterSpeed, ArriveEpsilon: w.cfg.PorterArriveEpsilon}
	w.porters = porters.Run(w.porters, params, porters.Ops{
		Resolve: w.registry.Get,
		Deliver: w.deliverPorter,
		Lose:    w.losePorter,
	})
}

func (w *World) deliverPorter(p *porters.Porter) {
	dest := w.structureByID(p.Dest)
	if !dest.Alive() || !(routeGraph{w}).Accepts(dest.ID, p.Resource) {
		w.losePorter(p, porters.LossStaleRoute)
		return
	}
	dest.Input.Add(p.Resource, 1)
	w.delivered++
	w.emit(Event{Type: EventPorterArrived, Porter: uint64(p.ID), Resource: p.Resource, From: p.Origin, To: p.Dest})
}

// losePorter returns the carried unit to a live origin with output room; otherwise the unit is gone.
func (w *World) losePorter(p *porters.Porter, reason string) {
	returned := false
	if origin := w.structureByID(p.Origin); origin.Alive() {
		if c := origin.OutputCapacity; c <= 0 || origin.Output.Count(p.Resource) < c {
			origin.Output.Add(p.Resource, 1)
			returned = true
		}
	}
	w.lost[reason]++
	w.emit(Event{Type: EventPorterLost, Porter: uint64(p.ID), Resource: p.Resource, From: p.Origin, To: p.Dest, Reason: reason, Returned: returned})
}

// dispatch spawns at most one porter for a producer whose dispatch timer has elapsed.
func (w *World) dispatch(s *modelpkg.Structure, nowTick uint64) {
	interval := uint64(w.cfg.PorterDispatchTicks)
	if s.DispatchTicks < interval {
		s.DispatchTicks++
	}
	if s.DispatchTicks < interval {
		return
	}
	for _, res := range w.routes.Resources(s.ID) {
		if s.Output.Count(res) < 1 {
			continue
		}
		r, ok := w.routes.Queue(s.ID, res).Next()
		if !ok {
			continue
		}
		s.Output.Take(res, 1)
		w.nextPorterID++
		p := porters.New(w.nextPorterID, res, routes.Hop{Pos: s.Pos, ID: s.ID}, r, uint64(w.cfg.PorterTTLTicks), nowTick)
		w.porters = append(w.porters, p)
		s.DispatchTicks = 0
		w.emit(Event{Type: EventPorterSpawned, Porter: uint64(p.ID), Resource: res, From: s.ID, To: r.Dest})
		return
	}
}
