package porters

import (
	"math"

	"factorysim.ai/internal/sim/world/feature/logistics/routes"
	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

type PorterID uint64

const (
	LossTTLExpired = "TTL_EXPIRED"
	LossStaleRoute = "STALE_ROUTE"
)

// Porter carries one unit of Resource from Origin to Dest.
type Porter struct {
	ID       PorterID
	Resource string
	Origin   modelpkg.StructureID
	Dest     modelpkg.StructureID

	// Path holds the remaining hops reversed: the next waypoint is the last element.
	Path []routes.Hop
	TTL  uint64

	X, Y float64

	SpawnTick uint64
}

// New creates a porter standing on the origin tile with the route's hops.
func New(id PorterID, resource string, origin routes.Hop, r routes.Route, ttl uint64, nowTick uint64) *Porter {
	path := make([]routes.Hop, len(r.Hops))
	for i, h := range r.Hops {
		path[len(r.Hops)-1-i] = h
	}
	return &Porter{
		ID:        id,
		Resource:  resource,
		Origin:    origin.ID,
		Dest:      r.Dest,
		Path:      path,
		TTL:       ttl,
		X:         float64(origin.Pos.X),
		Y:         float64(origin.Pos.Y),
		SpawnTick: nowTick,
	}
}

// Next returns the next unconsumed waypoint.
func (p *Porter) Next() (routes.Hop, bool) {
	if len(p.Path) == 0 {
		return routes.Hop{}, false
	}
	return p.Path[len(p.Path)-1], true
}

type Params struct {
	Speed         float64
	ArriveEpsilon float64
}

type Outcome uint8

const (
	InTransit Outcome = iota
	Arrived
	Lost
)

// Resolver reports the live structure at a coordinate.
type Resolver func(pos modelpkg.Coord) (modelpkg.StructureID, bool)

// Step advances one porter by one tick. The TTL drops first; the next hop must
// still hold the structure recorded at discovery time.
func Step(p *Porter, params Params, resolve Resolver) (Outcome, string) {
	if p.TTL == 0 {
		return Lost, LossTTLExpired
	}
	p.TTL--

	next, ok := p.Next()
	if !ok {
		return Arrived, ""
	}
	if resolve == nil {
		return Lost, LossStaleRoute
	}
	if id, ok := resolve(next.Pos); !ok || id != next.ID {
		return Lost, LossStaleRoute
	}

	tx, ty := float64(next.Pos.X), float64(next.Pos.Y)
	dx, dy := tx-p.X, ty-p.Y
	dist := math.Hypot(dx, dy)
	if dist <= params.Speed {
		p.X, p.Y = tx, ty
	} else {
		p.X += dx / dist * params.Speed
		p.Y += dy / dist * params.Speed
	}
	if math.Hypot(tx-p.X, ty-p.Y) <= params.ArriveEpsilon {
		p.X, p.Y = tx, ty
		p.Path = p.Path[:len(p.Path)-1]
	}

	if len(p.Path) == 0 {
		return Arrived, ""
	}
	if p.TTL == 0 {
		return Lost, LossTTLExpired
	}
	return InTransit, ""
}

// Ops is the world-facing callback set; mutations of structures stay in the caller.
type Ops struct {
	Resolve Resolver
	Deliver func(p *Porter)
	Lose    func(p *Porter, reason string)
}

// Run steps every porter in order and returns the ones still in transit.
func Run(list []*Porter, params Params, ops Ops) []*Porter {
	kept := list[:0]
	for _, p := range list {
		if p == nil {
			continue
		}
		switch out, reason := Step(p, params, ops.Resolve); out {
		case Arrived:
			if ops.Deliver != nil {
				ops.Deliver(p)
			}
		case Lost:
			if ops.Lose != nil {
				ops.Lose(p, reason)
			}
		default:
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}
	return kept
}
