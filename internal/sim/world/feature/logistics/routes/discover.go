package routes

import modelpkg "factorysim.ai/internal/sim/world/kernel/model"

// Graph is the read-only view of the world that discovery walks.
type Graph interface {
	At(pos modelpkg.Coord) (modelpkg.StructureID, bool)
	Walkable(id modelpkg.StructureID) bool
	Accepts(id modelpkg.StructureID, resource string) bool
}

// Hop is one waypoint: the coordinate and the structure expected to be there.
type Hop struct {
	Pos modelpkg.Coord       `json:"pos"`
	ID  modelpkg.StructureID `json:"id"`
}

// Route is a path from a producer to one destination. Hops excludes the
// producer and ends with the destination.
type Route struct {
	Dest modelpkg.StructureID `json:"dest"`
	Hops []Hop                `json:"hops"`
}

// NeighborOrder is the fixed expansion order: +X, -X, +Y, -Y.
var NeighborOrder = [4]modelpkg.Coord{
	{X: 1, Y: 0},
	{X: -1, Y: 0},
	{X: 0, Y: 1},
	{X: 0, Y: -1},
}

// Discover runs a breadth-first search from origin and returns one route per
// structure that accepts resource, in discovery order. Only walkable nodes are
// expanded; the origin itself is always expanded. maxNodes caps the visited set.
func Discover(g Graph, origin Hop, resource string, maxNodes int) []Route {
	if g == nil || resource == "" || maxNodes <= 0 {
		return nil
	}

	visited := map[modelpkg.Coord]bool{origin.Pos: true}
	parent := map[modelpkg.Coord]modelpkg.Coord{}
	idAt := map[modelpkg.Coord]modelpkg.StructureID{origin.Pos: origin.ID}
	q := []modelpkg.Coord{origin.Pos}

	var dests []modelpkg.Coord
	for len(q) > 0 && len(visited) <= maxNodes {
		p := q[0]
		q = q[1:]

		for _, d := range NeighborOrder {
			np := p.Add(d)
			if visited[np] {
				continue
			}
			id, ok := g.At(np)
			if !ok {
				continue
			}
			visited[np] = true
			parent[np] = p
			idAt[np] = id

			if id != origin.ID && g.Accepts(id, resource) {
				dests = append(dests, np)
			}
			if g.Walkable(id) {
				q = append(q, np)
			}
			if len(visited) > maxNodes {
				break
			}
		}
	}

	out := make([]Route, 0, len(dests))
	for _, dp := range dests {
		out = append(out, Route{Dest: idAt[dp], Hops: backtrack(dp, origin.Pos, parent, idAt)})
	}
	return out
}

func backtrack(dest, origin modelpkg.Coord, parent map[modelpkg.Coord]modelpkg.Coord, idAt map[modelpkg.Coord]modelpkg.StructureID) []Hop {
	var rev []Hop
	for p := dest; p != origin; p = parent[p] {
		rev = append(rev, Hop{Pos: p, ID: idAt[p]})
	}
	hops := make([]Hop, len(rev))
	for i := range rev {
		hops[i] = rev[len(rev)-1-i]
	}
	return hops
}
