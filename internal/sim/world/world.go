package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"factorysim.ai/internal/sim/catalogs"
	"factorysim.ai/internal/sim/world/feature/logistics/porters"
	"factorysim.ai/internal/sim/world/feature/logistics/routes"
	"factorysim.ai/internal/sim/world/feature/power"
	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
	"factorysim.ai/internal/sim/world/logic/spatial"
)

var ErrInboxFull = errors.New("world inbox full")

// World is a single-threaded authoritative factory simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	logger   *log.Logger

	tick atomic.Uint64

	// structures is the arena: index id-1. Slots are nil'ed after demolition cleanup.
	structures []*modelpkg.Structure
	registry   *spatial.Registry
	nameSeq    map[string]int

	routes      *routes.Table
	routesDirty bool

	porters      []*porters.Porter
	nextPorterID porters.PorterID

	power        *power.Network
	pendingLinks []Command
	demolished   []modelpkg.StructureID

	events []Event
	sinks  []TickSink

	inbox    chan Command
	stop     chan struct{}
	stopOnce sync.Once

	delivered uint64
	lost      map[string]uint64
	fuses     uint64
	rejected  map[string]uint64

	metrics atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	cfg.applyDefaults()
	w := &World{
		cfg:      cfg,
		catalogs: cats,
		logger:   log.New(io.Discard, "", 0),
		registry: spatial.NewRegistry(),
		nameSeq:  map[string]int{},
		routes:   routes.NewTable(),
		power:    power.NewNetwork(),
		inbox:    make(chan Command, cfg.InboxSize),
		stop:     make(chan struct{}),
		lost:     map[string]uint64{},
		rejected: map[string]uint64{},
	}
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

func (w *World) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	w.logger = l
}

// AddTickSink registers a sink. Must be called before Run.
func (w *World) AddTickSink(s TickSink) {
	if s != nil {
		w.sinks = append(w.sinks, s)
	}
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Inbox() chan<- Command { return w.inbox }

// Submit queues a command for the next tick without blocking.
func (w *World) Submit(cmd Command) error {
	select {
	case w.inbox <- cmd:
		return nil
	default:
		return ErrInboxFull
	}
}

func (w *World) structureByID(id modelpkg.StructureID) *modelpkg.Structure {
	if id == 0 || int(id) > len(w.structures) {
		return nil
	}
	return w.structures[id-1]
}

// mustStructure resolves an id taken from an index. A miss means the indexes
// and the arena disagree, which is unrecoverable.
func (w *World) mustStructure(id modelpkg.StructureID) *modelpkg.Structure {
	s := w.structureByID(id)
	if s == nil {
		panic(fmt.Sprintf("world: structure %d indexed but missing from arena", id))
	}
	return s
}

func (w *World) structureAt(pos modelpkg.Coord) *modelpkg.Structure {
	id, ok := w.registry.Get(pos)
	if !ok {
		return nil
	}
	return w.mustStructure(id)
}

// liveStructures returns alive structures in ascending id order.
func (w *World) liveStructures() []*modelpkg.Structure {
	out := make([]*modelpkg.Structure, 0, len(w.structures))
	for _, s := range w.structures {
		if s.Alive() {
			out = append(out, s)
		}
	}
	return out
}

func (w *World) recipeOf(s *modelpkg.Structure) *catalogs.RecipeDef {
	if s == nil || s.RecipeID == "" {
		return nil
	}
	r, ok := w.catalogs.Recipes.ByID[s.RecipeID]
	if !ok {
		return nil
	}
	return &r
}
