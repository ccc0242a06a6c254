package routes

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"lukechampine.com/blake3"

	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

// Queue is a FIFO of routes consumed round-robin.
type Queue struct {
	routes []Route
}

func NewQueue(routes []Route) *Queue { return &Queue{routes: routes} }

func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.routes)
}

// Next pops the front route and rotates it to the back.
func (q *Queue) Next() (Route, bool) {
	if q.Len() == 0 {
		return Route{}, false
	}
	r := q.routes[0]
	copy(q.routes, q.routes[1:])
	q.routes[len(q.routes)-1] = r
	return r, true
}

// Routes returns the current queue order.
func (q *Queue) Routes() []Route {
	if q == nil {
		return nil
	}
	return q.routes
}

// Producer is one route source: its position and the resources it ships.
type Producer struct {
	ID        modelpkg.StructureID
	Pos       modelpkg.Coord
	Resources []string
}

// Table holds the route queues of every producer, keyed by resource.
type Table struct {
	byProducer map[modelpkg.StructureID]map[string]*Queue
}

func NewTable() *Table {
	return &Table{byProducer: map[modelpkg.StructureID]map[string]*Queue{}}
}

// Rebuild discards all queues and rediscovers them for producers.
func (t *Table) Rebuild(g Graph, producers []Producer, maxNodes int) {
	t.byProducer = make(map[modelpkg.StructureID]map[string]*Queue, len(producers))
	for _, p := range producers {
		byRes := make(map[string]*Queue, len(p.Resources))
		for _, res := range p.Resources {
			byRes[res] = NewQueue(Discover(g, Hop{Pos: p.Pos, ID: p.ID}, res, maxNodes))
		}
		t.byProducer[p.ID] = byRes
	}
}

func (t *Table) Queue(id modelpkg.StructureID, resource string) *Queue {
	return t.byProducer[id][resource]
}

func (t *Table) Drop(id modelpkg.StructureID) { delete(t.byProducer, id) }

func (t *Table) Producers() []modelpkg.StructureID {
	out := make([]modelpkg.StructureID, 0, len(t.byProducer))
	for id := range t.byProducer {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resources returns the routed resources of a producer in sorted order.
func (t *Table) Resources(id modelpkg.StructureID) []string {
	byRes := t.byProducer[id]
	out := make([]string, 0, len(byRes))
	for res := range byRes {
		out = append(out, res)
	}
	sort.Strings(out)
	return out
}

func (t *Table) RouteCount() int {
	n := 0
	for _, byRes := range t.byProducer {
		for _, q := range byRes {
			n += q.Len()
		}
	}
	return n
}

// Digest hashes every queue in producer/resource order, including queue position.
func (t *Table) Digest() string {
	h := blake3.New(32, nil)
	var tmp [8]byte
	w := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	for _, id := range t.Producers() {
		w(uint64(id))
		for _, res := range t.Resources(id) {
			h.Write([]byte(res))
			q := t.byProducer[id][res]
			w(uint64(q.Len()))
			for _, r := range q.Routes() {
				w(uint64(r.Dest))
				w(uint64(len(r.Hops)))
				for _, hop := range r.Hops {
					w(uint64(int64(hop.Pos.X)))
					w(uint64(int64(hop.Pos.Y)))
					w(uint64(hop.ID))
				}
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
