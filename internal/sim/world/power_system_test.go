package world

import (
	"testing"

	"factorysim.ai/internal/sim/catalogs"
)

func powerCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.FromDefs(nil, []catalogs.StructureDef{
		{ID: "GEN", Name: "Generator", PowerProduction: 30},
		{ID: "LOAD20", Name: "Heater", PowerConsumption: 20},
		{ID: "LOAD15", Name: "Lamp", PowerConsumption: 15},
		{ID: "NODE", Name: "Pole", PowerNode: true},
	}, nil)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return cats
}

func TestScenario_GridMergeThenOverload(t *testing.T) {
	w, rec := newTestWorld(t, powerCatalogs(t))

	// Two isolated grids: {GEN, LOAD20} and {NODE, NODE}.
	w.Step([]Command{
		Construct("GEN", c(0, 0), ""),
		Construct("LOAD20", c(1, 0), ""),
		Construct("NODE", c(4, 0), ""),
		Construct("NODE", c(5, 0), ""),
		LinkPower(c(0, 0), c(1, 0)),
		LinkPower(c(4, 0), c(5, 0)),
	})
	if got := len(w.Grids()); got != 2 {
		t.Fatalf("grids=%d want 2", got)
	}

	w.Step([]Command{LinkPower(c(1, 0), c(4, 0))})
	grids := w.Grids()
	if len(grids) != 1 {
		t.Fatalf("grids=%d want 1 after merge", len(grids))
	}
	if g := grids[0]; g.Production != 30 || g.Consumption != 20 || len(g.Members) != 4 {
		t.Fatalf("merged grid=%+v want 30/20 with 4 members", g)
	}
	if _, blown := rec.find(EventFuseBlown); blown {
		t.Fatalf("fuse blew on a balanced grid")
	}
	if _, ok := rec.find(EventGridMerged); !ok {
		t.Fatalf("missing GRID_MERGED")
	}

	w.Step([]Command{Construct("LOAD15", c(6, 0), ""), LinkPower(c(5, 0), c(6, 0))})
	ev, ok := rec.find(EventFuseBlown)
	if !ok || ev.Production != 30 || ev.Consumption != 35 {
		t.Fatalf("fuse event=%+v ok=%v want 30/35", ev, ok)
	}
	for _, s := range w.Structures() {
		if s.Powered {
			t.Fatalf("%s still powered after fuse blow", s.Name)
		}
	}
	if m := w.Metrics(); m.FusesBlown != 1 || m.Unpowered != 5 {
		t.Fatalf("metrics fuses=%d unpowered=%d want 1/5", m.FusesBlown, m.Unpowered)
	}

	// Restoring re-powers the grid, which immediately overloads again.
	w.Step([]Command{RestorePower(c(0, 0))})
	if _, ok := rec.find(EventPowerRestored); !ok {
		t.Fatalf("missing POWER_RESTORED")
	}
	if m := w.Metrics(); m.FusesBlown != 2 {
		t.Fatalf("fuses=%d want 2 after restore into overload", m.FusesBlown)
	}

	// Dropping the extra load and restoring keeps the grid up.
	w.Step([]Command{Demolish(c(6, 0))})
	w.Step([]Command{RestorePower(c(0, 0))})
	for _, s := range w.Structures() {
		if !s.Powered {
			t.Fatalf("%s unpowered after restore", s.Name)
		}
	}
}

func TestDemolition_SplitsGrid(t *testing.T) {
	w, rec := newTestWorld(t, powerCatalogs(t))
	w.Step([]Command{
		Construct("GEN", c(0, 0), ""),
		Construct("NODE", c(1, 0), ""),
		Construct("NODE", c(2, 0), ""),
		LinkPower(c(0, 0), c(1, 0)),
		LinkPower(c(1, 0), c(2, 0)),
	})
	gen := mustView(t, w, c(0, 0))
	w.Step([]Command{Demolish(c(1, 0))})

	ev, ok := rec.find(EventGridSplit)
	if !ok || ev.Grid != gen.Grid || len(ev.Grids) != 1 {
		t.Fatalf("split event=%+v ok=%v", ev, ok)
	}
	if got := mustView(t, w, c(0, 0)).Grid; got != gen.Grid {
		t.Fatalf("generator grid=%d want %d", got, gen.Grid)
	}
	if got := mustView(t, w, c(2, 0)).Grid; got != ev.Grids[0] {
		t.Fatalf("far pole grid=%d want %d", got, ev.Grids[0])
	}
}

func TestPowerGate_UnpoweredConsumerDoesNotStart(t *testing.T) {
	cats := repoCatalogs(t)
	w, _ := newTestWorld(t, cats)
	w.Step([]Command{Construct("ASSEMBLER", c(0, 0), "")})
	a := w.structureAt(c(0, 0))
	a.Powered = false
	a.Input.Add("IRON_INGOT", 2)
	stepN(w, 3)
	if a.Input.Count("IRON_INGOT") != 2 || a.Working {
		t.Fatalf("unpowered assembler consumed inputs: %v working=%v", a.Input, a.Working)
	}
}

func TestCoalGenerator_StaysPoweredAcrossCycles(t *testing.T) {
	w, rec := newTestWorld(t, repoCatalogs(t))
	w.Step([]Command{Construct("COAL_GENERATOR", c(0, 0), "")})
	gen := w.structureAt(c(0, 0))
	gen.Input.Add("COAL", 100)
	w.Step([]Command{Construct("LAMP", c(1, 0), ""), LinkPower(c(0, 0), c(1, 0))})

	// BURN_COAL runs 60 ticks; cover several cycle boundaries.
	stepN(w, 200)
	if ev, blown := rec.find(EventFuseBlown); blown {
		t.Fatalf("fuse blew at a cycle boundary: %+v", ev)
	}
	if gen.Machine.Cycles < 3 {
		t.Fatalf("generator cycles=%d want >= 3", gen.Machine.Cycles)
	}
	if lamp := mustView(t, w, c(1, 0)); !lamp.Powered {
		t.Fatalf("lamp lost power")
	}
	if m := w.Metrics(); m.FusesBlown != 0 {
		t.Fatalf("fuses=%d want 0", m.FusesBlown)
	}
}
