package power

import (
	"sort"

	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

// Env exposes the per-structure flags the network reads during aggregation.
// Only SetPowered mutates; the world owns the structures.
type Env interface {
	Powered(id modelpkg.StructureID) bool
	Working(id modelpkg.StructureID) bool
	Production(id modelpkg.StructureID) int
	Consumption(id modelpkg.StructureID) int
	SetPowered(id modelpkg.StructureID, on bool)
}

// Grid is one connected set of power-capable structures.
// Production and Consumption are recomputed by every Aggregate call.
type Grid struct {
	ID          modelpkg.GridID
	Members     []modelpkg.StructureID
	Production  int
	Consumption int
}

func (g *Grid) Overloaded() bool { return g.Consumption > g.Production }

// Network tracks grid membership and the link edges that formed it.
type Network struct {
	grids    map[modelpkg.GridID]*Grid
	memberOf map[modelpkg.StructureID]modelpkg.GridID
	links    map[modelpkg.StructureID]map[modelpkg.StructureID]bool
	nextID   modelpkg.GridID
}

func NewNetwork() *Network {
	return &Network{
		grids:    map[modelpkg.GridID]*Grid{},
		memberOf: map[modelpkg.StructureID]modelpkg.GridID{},
		links:    map[modelpkg.StructureID]map[modelpkg.StructureID]bool{},
	}
}

// Add places id in a new singleton grid. Adding a known member returns its grid.
func (n *Network) Add(id modelpkg.StructureID) modelpkg.GridID {
	if gid, ok := n.memberOf[id]; ok {
		return gid
	}
	gid := n.newGrid()
	n.grids[gid].Members = []modelpkg.StructureID{id}
	n.memberOf[id] = gid
	return gid
}

func (n *Network) newGrid() modelpkg.GridID {
	n.nextID++
	gid := n.nextID
	n.grids[gid] = &Grid{ID: gid}
	return gid
}

type LinkResult struct {
	Merged   bool
	Survivor modelpkg.GridID
	Absorbed modelpkg.GridID
	// Moved lists the structures that changed grid, ascending.
	Moved []modelpkg.StructureID
}

// Link records an edge between a and b. When they sit in different grids every
// member of b's grid moves into a's grid and b's grid is destroyed.
func (n *Network) Link(a, b modelpkg.StructureID) (LinkResult, bool) {
	ga, okA := n.memberOf[a]
	gb, okB := n.memberOf[b]
	if !okA || !okB || a == b {
		return LinkResult{}, false
	}
	n.addEdge(a, b)
	if ga == gb {
		return LinkResult{Survivor: ga}, true
	}

	dst, src := n.grids[ga], n.grids[gb]
	moved := src.Members
	for _, id := range moved {
		n.memberOf[id] = ga
	}
	dst.Members = append(dst.Members, moved...)
	sortIDs(dst.Members)
	delete(n.grids, gb)
	return LinkResult{Merged: true, Survivor: ga, Absorbed: gb, Moved: moved}, true
}

func (n *Network) addEdge(a, b modelpkg.StructureID) {
	if n.links[a] == nil {
		n.links[a] = map[modelpkg.StructureID]bool{}
	}
	if n.links[b] == nil {
		n.links[b] = map[modelpkg.StructureID]bool{}
	}
	n.links[a][b] = true
	n.links[b][a] = true
}

func (n *Network) Linked(a, b modelpkg.StructureID) bool { return n.links[a][b] }

type SplitResult struct {
	From modelpkg.GridID
	// Created holds the grids carved out of From, in ascending order of their lowest member.
	Created []modelpkg.GridID
	// Emptied is set when the removed structure was the grid's last member.
	Emptied bool
}

// Remove drops id and its edges. The remaining members are regrouped by the
// link graph; the component holding the lowest member id keeps the grid id.
func (n *Network) Remove(id modelpkg.StructureID) (SplitResult, bool) {
	gid, ok := n.memberOf[id]
	if !ok {
		return SplitResult{}, false
	}
	delete(n.memberOf, id)
	for peer := range n.links[id] {
		delete(n.links[peer], id)
		if len(n.links[peer]) == 0 {
			delete(n.links, peer)
		}
	}
	delete(n.links, id)

	g := n.grids[gid]
	rest := make([]modelpkg.StructureID, 0, len(g.Members))
	for _, m := range g.Members {
		if m != id {
			rest = append(rest, m)
		}
	}
	res := SplitResult{From: gid}
	if len(rest) == 0 {
		delete(n.grids, gid)
		res.Emptied = true
		return res, true
	}

	comps := n.components(rest)
	g.Members = comps[0]
	for _, comp := range comps[1:] {
		ngid := n.newGrid()
		n.grids[ngid].Members = comp
		for _, m := range comp {
			n.memberOf[m] = ngid
		}
		res.Created = append(res.Created, ngid)
	}
	return res, true
}

// components partitions sorted members by link reachability. Components come
// back ordered by their lowest id, each sorted ascending.
func (n *Network) components(members []modelpkg.StructureID) [][]modelpkg.StructureID {
	in := make(map[modelpkg.StructureID]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	seen := make(map[modelpkg.StructureID]bool, len(members))
	var out [][]modelpkg.StructureID
	for _, start := range members {
		if seen[start] {
			continue
		}
		seen[start] = true
		comp := []modelpkg.StructureID{start}
		q := []modelpkg.StructureID{start}
		for len(q) > 0 {
			cur := q[0]
			q = q[1:]
			for peer := range n.links[cur] {
				if !in[peer] || seen[peer] {
					continue
				}
				seen[peer] = true
				comp = append(comp, peer)
				q = append(q, peer)
			}
		}
		sortIDs(comp)
		out = append(out, comp)
	}
	return out
}

func (n *Network) GridOf(id modelpkg.StructureID) (modelpkg.GridID, bool) {
	gid, ok := n.memberOf[id]
	return gid, ok
}

func (n *Network) Grid(gid modelpkg.GridID) *Grid { return n.grids[gid] }

func (n *Network) Len() int { return len(n.grids) }

// GridIDs returns live grid ids ascending.
func (n *Network) GridIDs() []modelpkg.GridID {
	out := make([]modelpkg.GridID, 0, len(n.grids))
	for gid := range n.grids {
		out = append(out, gid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Aggregate recomputes every grid's totals from members that are powered and
// working, then trips each overloaded grid. Tripped grid ids are returned ascending.
func (n *Network) Aggregate(env Env) []modelpkg.GridID {
	var blown []modelpkg.GridID
	for _, gid := range n.GridIDs() {
		g := n.grids[gid]
		g.Production, g.Consumption = 0, 0
		for _, m := range g.Members {
			if !env.Powered(m) || !env.Working(m) {
				continue
			}
			g.Production += env.Production(m)
			g.Consumption += env.Consumption(m)
		}
		if g.Overloaded() {
			n.Trip(gid, env)
			blown = append(blown, gid)
		}
	}
	return blown
}

// Trip clears powered on every member of gid.
func (n *Network) Trip(gid modelpkg.GridID, env Env) {
	n.setAll(gid, env, false)
}

// Restore sets powered on every member of gid.
func (n *Network) Restore(gid modelpkg.GridID, env Env) bool {
	return n.setAll(gid, env, true)
}

func (n *Network) setAll(gid modelpkg.GridID, env Env, on bool) bool {
	g := n.grids[gid]
	if g == nil {
		return false
	}
	for _, m := range g.Members {
		env.SetPowered(m, on)
	}
	return true
}

func sortIDs(ids []modelpkg.StructureID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
