package spatial

import (
	"errors"
	"sort"

	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

// ErrOccupied is returned when inserting onto a coordinate that already holds
// a different structure. The registry never overwrites.
var ErrOccupied = errors.New("coordinate occupied")

// Registry maps coordinates to structure ids.
type Registry struct {
	byPos map[modelpkg.Coord]modelpkg.StructureID
}

func NewRegistry() *Registry {
	return &Registry{byPos: map[modelpkg.Coord]modelpkg.StructureID{}}
}

// Insert registers id at pos. Re-inserting the same id at the same pos is a no-op.
func (r *Registry) Insert(pos modelpkg.Coord, id modelpkg.StructureID) error {
	if cur, ok := r.byPos[pos]; ok {
		if cur == id {
			return nil
		}
		return ErrOccupied
	}
	r.byPos[pos] = id
	return nil
}

func (r *Registry) Remove(pos modelpkg.Coord) (modelpkg.StructureID, bool) {
	id, ok := r.byPos[pos]
	if ok {
		delete(r.byPos, pos)
	}
	return id, ok
}

func (r *Registry) Get(pos modelpkg.Coord) (modelpkg.StructureID, bool) {
	id, ok := r.byPos[pos]
	return id, ok
}

func (r *Registry) Contains(pos modelpkg.Coord) bool {
	_, ok := r.byPos[pos]
	return ok
}

func (r *Registry) Len() int { return len(r.byPos) }

// Coords returns every occupied coordinate ordered by X then Y.
func (r *Registry) Coords() []modelpkg.Coord {
	out := make([]modelpkg.Coord, 0, len(r.byPos))
	for p := range r.byPos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
