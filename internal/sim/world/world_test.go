package world

import (
	"testing"

	"factorysim.ai/internal/sim/catalogs"
	"factorysim.ai/internal/sim/world/feature/production"
	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

type recorder struct{ entries []TickLogEntry }

func (r *recorder) WriteTick(e TickLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *recorder) last() TickLogEntry { return r.entries[len(r.entries)-1] }

func (r *recorder) find(typ EventType) (Event, bool) {
	for _, e := range r.entries {
		for _, ev := range e.Events {
			if ev.Type == typ {
				return ev, true
			}
		}
	}
	return Event{}, false
}

func c(x, y int) modelpkg.Coord { return modelpkg.Coord{X: x, Y: y} }

func repoCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func newTestWorld(t *testing.T, cats *catalogs.Catalogs) (*World, *recorder) {
	t.Helper()
	w, err := New(WorldConfig{ID: "test", PorterDispatchTicks: 5, PorterTTLTicks: 600}, cats)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	rec := &recorder{}
	w.AddTickSink(rec)
	return w, rec
}

func stepN(w *World, n int) {
	for i := 0; i < n; i++ {
		w.Step(nil)
	}
}

// minerToSmelter builds Miner(0,0) -> Path(1,0) -> Path(2,0) -> Smelter(3,0).
func minerToSmelter() []Command {
	return []Command{
		Construct("MINER", c(0, 0), ""),
		Construct("PATH", c(1, 0), ""),
		Construct("PATH", c(2, 0), ""),
		Construct("SMELTER", c(3, 0), ""),
	}
}

func mustView(t *testing.T, w *World, pos modelpkg.Coord) StructureView {
	t.Helper()
	v, ok := w.StructureAt(pos)
	if !ok {
		t.Fatalf("no structure at %v", pos)
	}
	return v
}

func count(stacks []modelpkg.ItemStack, item string) int {
	for _, s := range stacks {
		if s.Item == item {
			return s.Count
		}
	}
	return 0
}

func TestConstruct_AssignsIDsNamesAndDefaults(t *testing.T) {
	w, rec := newTestWorld(t, repoCatalogs(t))
	w.Step(minerToSmelter())

	miner := mustView(t, w, c(0, 0))
	if miner.ID != 1 || miner.Name != "Miner #1" || miner.Recipe != "MINE_IRON_ORE" {
		t.Fatalf("miner=%+v", miner)
	}
	if p := mustView(t, w, c(2, 0)); p.Name != "Path #2" || p.Role != "CONNECTOR" {
		t.Fatalf("path=%+v", p)
	}
	if ev, ok := rec.find(EventRoutesDiscovered); !ok || ev.Routes != 1 {
		t.Fatalf("routes event=%+v ok=%v want 1 route", ev, ok)
	}
}

func TestScenario_MinerFeedsSmelter(t *testing.T) {
	cats := repoCatalogs(t)
	w, rec := newTestWorld(t, cats)
	w.Step(minerToSmelter())

	var spawnTick, arriveTick uint64
	for i := 0; i < 200 && arriveTick == 0; i++ {
		tick, _ := w.Step(nil)
		for _, ev := range rec.last().Events {
			switch ev.Type {
			case EventPorterSpawned:
				if spawnTick == 0 {
					spawnTick = tick
				}
			case EventPorterArrived:
				arriveTick = tick
			}
		}
	}
	if spawnTick != 39 {
		t.Fatalf("first porter spawned at tick %d want 39", spawnTick)
	}
	// Three hops at 0.5 tiles per tick.
	if arriveTick != spawnTick+6 {
		t.Fatalf("porter arrived at tick %d want %d", arriveTick, spawnTick+6)
	}

	smelter := mustView(t, w, c(3, 0))
	if smelter.State != production.Working.String() {
		t.Fatalf("smelter state=%s want WORKING after delivery", smelter.State)
	}
	d := cats.Recipes.ByID["SMELT_IRON"].TimeTicks
	stepN(w, d-2)
	if got := count(mustView(t, w, c(3, 0)).Output, "IRON_INGOT"); got != 0 {
		t.Fatalf("ingot produced early: %d", got)
	}
	w.Step(nil)
	if got := count(mustView(t, w, c(3, 0)).Output, "IRON_INGOT"); got != 1 {
		t.Fatalf("ingots=%d want 1 after %d ticks", got, d)
	}
}

func TestDeterminism_SameCommandsSameDigest(t *testing.T) {
	cats := repoCatalogs(t)
	w1, _ := newTestWorld(t, cats)
	w2, _ := newTestWorld(t, cats)

	script := map[int][]Command{
		0: append(minerToSmelter(),
			Construct("MINER", c(0, 1), ""),
			Construct("INTERSECTION", c(1, 1), ""),
			Construct("DEPOT", c(1, 2), "DEPOT_IRON_INGOT"),
			Construct("SOLAR_PANEL", c(5, 5), ""),
			Construct("LAMP", c(6, 5), ""),
		),
		1:   {LinkPower(c(5, 5), c(6, 5))},
		60:  {Construct("PATH", c(4, 0), ""), Construct("DEPOT", c(5, 0), "DEPOT_IRON_INGOT")},
		120: {Demolish(c(1, 1))},
	}
	for tick := 0; tick < 300; tick++ {
		_, d1 := w1.Step(script[tick])
		_, d2 := w2.Step(script[tick])
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", tick, d1, d2)
		}
	}
	if w1.routes.Digest() != w2.routes.Digest() {
		t.Fatalf("route digests differ")
	}
}

func TestConservation_OreIsNeverCreatedOrLost(t *testing.T) {
	w, _ := newTestWorld(t, repoCatalogs(t))
	w.Step(minerToSmelter())
	for i := 0; i < 400; i++ {
		w.Step(nil)
		miner := w.structureAt(c(0, 0))
		smelter := w.structureAt(c(3, 0))
		inFlight := 0
		for _, p := range w.porters {
			if p.Resource == "IRON_ORE" {
				inFlight++
			}
		}
		consumed := int(smelter.Machine.Cycles)
		if smelter.Machine.State != production.Idle {
			consumed++
		}
		got := miner.Output.Count("IRON_ORE") + inFlight + smelter.Input.Count("IRON_ORE") + consumed
		if want := int(miner.Machine.Cycles); got != want {
			t.Fatalf("tick %d: accounted ore=%d want mined %d", i, got, want)
		}
	}
}

func TestPorter_DemolishedWaypointReturnsUnit(t *testing.T) {
	w, rec := newTestWorld(t, repoCatalogs(t))
	w.Step(minerToSmelter())
	stepN(w, 39) // ticks 1..39, spawn happens on tick 39
	if len(w.porters) != 1 {
		t.Fatalf("porters=%d want 1", len(w.porters))
	}
	w.Step([]Command{Demolish(c(2, 0))})
	w.Step(nil)
	w.Step(nil)

	ev, ok := rec.find(EventPorterLost)
	if !ok || ev.Reason != "STALE_ROUTE" || !ev.Returned {
		t.Fatalf("lost event=%+v ok=%v", ev, ok)
	}
	if got := w.structureAt(c(0, 0)).Output.Count("IRON_ORE"); got != 1 {
		t.Fatalf("miner ore=%d want refunded 1", got)
	}
	if len(w.porters) != 0 {
		t.Fatalf("porter still in flight")
	}
}

func TestPorter_FullOriginDiscardsUnit(t *testing.T) {
	w, rec := newTestWorld(t, repoCatalogs(t))
	w.Step(minerToSmelter())
	stepN(w, 39)
	miner := w.structureAt(c(0, 0))
	miner.Output.Add("IRON_ORE", miner.OutputCapacity)
	w.Step([]Command{Demolish(c(2, 0))})
	w.Step(nil)
	w.Step(nil)

	ev, ok := rec.find(EventPorterLost)
	if !ok || ev.Returned {
		t.Fatalf("lost event=%+v ok=%v want discarded unit", ev, ok)
	}
	if got := miner.Output.Count("IRON_ORE"); got != miner.OutputCapacity {
		t.Fatalf("miner ore=%d want capped at %d", got, miner.OutputCapacity)
	}
}

func binCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.FromDefs(
		[]catalogs.ResourceDef{{ID: "IRON_ORE", Name: "Iron ore"}, {ID: "COAL", Name: "Coal"}},
		[]catalogs.StructureDef{
			{ID: "MINER", Name: "Miner", Recipes: []string{"MINE"}, DefaultRecipe: "MINE", OutputCapacity: 10},
			{ID: "PATH", Name: "Path", Walkable: true},
			{ID: "BIN", Name: "Bin", Recipes: []string{"BIN_ORE", "BIN_COAL"}, DefaultRecipe: "BIN_ORE"},
		},
		[]catalogs.RecipeDef{
			{RecipeID: "MINE", Outputs: []catalogs.ItemCount{{Item: "IRON_ORE", Count: 1}}, TimeTicks: 40},
			{RecipeID: "BIN_ORE", Inputs: []catalogs.ItemCount{{Item: "IRON_ORE", Count: 1}}, TimeTicks: 1},
			{RecipeID: "BIN_COAL", Inputs: []catalogs.ItemCount{{Item: "COAL", Count: 1}}, TimeTicks: 1},
		},
	)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return cats
}

func TestPorter_DestinationStopsAcceptingReturnsUnit(t *testing.T) {
	w, rec := newTestWorld(t, binCatalogs(t))
	w.Step([]Command{
		Construct("MINER", c(0, 0), ""),
		Construct("PATH", c(1, 0), ""),
		Construct("PATH", c(2, 0), ""),
		Construct("BIN", c(3, 0), ""),
	})
	stepN(w, 39)
	if len(w.porters) != 1 {
		t.Fatalf("porters=%d want 1", len(w.porters))
	}
	w.Step([]Command{SelectRecipe(c(3, 0), "BIN_COAL")})
	stepN(w, 10)

	if _, arrived := rec.find(EventPorterArrived); arrived {
		t.Fatalf("ore delivered to a bin that no longer takes it")
	}
	ev, ok := rec.find(EventPorterLost)
	if !ok || ev.Reason != "STALE_ROUTE" || !ev.Returned {
		t.Fatalf("lost event=%+v ok=%v", ev, ok)
	}
	if got := w.structureAt(c(3, 0)).Input.Count("IRON_ORE"); got != 0 {
		t.Fatalf("bin ore=%d want 0", got)
	}
	if got := w.structureAt(c(0, 0)).Output.Count("IRON_ORE"); got != 1 {
		t.Fatalf("miner ore=%d want refunded 1", got)
	}
}

func TestPorter_DeadOriginDiscardsUnit(t *testing.T) {
	w, rec := newTestWorld(t, repoCatalogs(t))
	w.Step(minerToSmelter())
	stepN(w, 39)
	w.Step([]Command{Demolish(c(0, 0)), Demolish(c(2, 0))})
	w.Step(nil)
	w.Step(nil)
	ev, ok := rec.find(EventPorterLost)
	if !ok || ev.Returned {
		t.Fatalf("lost event=%+v ok=%v want discarded unit", ev, ok)
	}
	if w.structureByID(1) != nil {
		t.Fatalf("demolished miner still in arena")
	}
}

func TestRejectedCommands(t *testing.T) {
	w, rec := newTestWorld(t, repoCatalogs(t))
	w.Step(minerToSmelter())

	cases := []struct {
		cmd  Command
		code string
	}{
		{Construct("NOPE", c(9, 9), ""), ErrCodeUnknownDef},
		{Construct("PATH", c(0, 0), ""), ErrCodeOccupied},
		{Construct("MINER", c(9, 9), "SMELT_IRON"), ErrCodeBadRecipe},
		{Demolish(c(50, 50)), ErrCodeNotFound},
		{SelectRecipe(c(3, 0), "MINE_COAL"), ErrCodeBadRecipe},
		{LinkPower(c(1, 0), c(2, 0)), ErrCodeNotPoweredNode},
		{RestorePower(c(1, 0)), ErrCodeNotPoweredNode},
		{Command{Type: "TELEPORT"}, ErrCodeInvalid},
	}
	for _, tc := range cases {
		w.Step([]Command{tc.cmd})
		evs := rec.last().Events
		if len(evs) == 0 || evs[0].Type != EventCommandRejected || evs[0].Code != tc.code {
			t.Fatalf("%s: events=%+v want %s", tc.cmd.Type, evs, tc.code)
		}
	}

	w.Step([]Command{Construct("POWER_POLE", c(20, 0), ""), Construct("POWER_POLE", c(40, 0), "")})
	w.Step([]Command{LinkPower(c(20, 0), c(40, 0))})
	if evs := rec.last().Events; len(evs) == 0 || evs[0].Code != ErrCodeOutOfRange {
		t.Fatalf("events=%+v want %s", evs, ErrCodeOutOfRange)
	}
	if got := w.Metrics().CommandsRejected[ErrCodeBadRecipe]; got != 2 {
		t.Fatalf("bad recipe rejections=%d want 2", got)
	}
}

func TestSelectRecipe_RebuildsRoutes(t *testing.T) {
	w, rec := newTestWorld(t, repoCatalogs(t))
	w.Step(minerToSmelter())
	before := w.routes.RouteCount()
	w.Step([]Command{SelectRecipe(c(0, 0), "MINE_COAL")})
	if _, ok := rec.find(EventRecipeSelected); !ok {
		t.Fatalf("missing RECIPE_SELECTED")
	}
	// Nothing accepts coal on this line.
	if before != 1 || w.routes.RouteCount() != 0 {
		t.Fatalf("routes before=%d after=%d want 1 then 0", before, w.routes.RouteCount())
	}
	if m := w.structureAt(c(0, 0)).Machine; m.State != production.Working || m.Remaining != 39 {
		t.Fatalf("new recipe did not start fresh: %+v", m)
	}
}

func TestMustStructure_PanicsOnIndexMismatch(t *testing.T) {
	w, _ := newTestWorld(t, repoCatalogs(t))
	if err := w.registry.Insert(c(7, 7), 99); err != nil {
		t.Fatalf("insert: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	w.structureAt(c(7, 7))
}

func TestRegistryStaysUnique(t *testing.T) {
	w, _ := newTestWorld(t, repoCatalogs(t))
	defs := []string{"PATH", "MINER", "SMELTER", "DEPOT", "LAMP"}
	for i := 0; i < 300; i++ {
		pos := c(i%7, (i*3)%5)
		if i%3 == 2 {
			w.Step([]Command{Demolish(pos)})
		} else {
			w.Step([]Command{Construct(defs[i%len(defs)], pos, "")})
		}
		seen := map[modelpkg.Coord]modelpkg.StructureID{}
		for _, s := range w.liveStructures() {
			if prev, dup := seen[s.Pos]; dup {
				t.Fatalf("step %d: %v held by %d and %d", i, s.Pos, prev, s.ID)
			}
			seen[s.Pos] = s.ID
			if id, _ := w.registry.Get(s.Pos); id != s.ID {
				t.Fatalf("step %d: registry %v -> %d want %d", i, s.Pos, id, s.ID)
			}
		}
		if w.registry.Len() != len(seen) {
			t.Fatalf("step %d: registry len=%d live=%d", i, w.registry.Len(), len(seen))
		}
	}
}
