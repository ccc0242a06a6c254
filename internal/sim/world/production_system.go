package world

import "factorysim.ai/internal/sim/world/feature/production"

// systemProduction advances every machine by one tick in id order, then lets
// producers hand output to porters. It also refreshes the working flag read by
// power aggregation.
func (w *World) systemProduction(nowTick uint64) {
	for _, s := range w.liveStructures() {
		r := w.recipeOf(s)
		s.Working = s.AlwaysOn()
		if r != nil {
			tr := s.Machine.Advance(1, production.Unit{
				Recipe:         r,
				Input:          s.Input,
				Output:         s.Output,
				RequiresPower:  s.RequiresPower,
				Powered:        s.Powered,
				OutputCapacity: s.OutputCapacity,
			})
			// The completing tick counts too; the next cycle only starts on the following tick.
			s.Working = tr.Started || tr.Completed || s.Machine.State == production.Working
			if tr.Completed {
				w.emit(Event{Type: EventCycleCompleted, Structure: s.ID, Recipe: r.RecipeID})
			}
		}
		if s.HasRoute() {
			w.dispatch(s, nowTick)
		}
	}
}
