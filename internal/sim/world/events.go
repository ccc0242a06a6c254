package world

import modelpkg "factorysim.ai/internal/sim/world/kernel/model"

type EventType string

const (
	EventStructureConstructed EventType = "STRUCTURE_CONSTRUCTED"
	EventStructureDemolished  EventType = "STRUCTURE_DEMOLISHED"
	EventRecipeSelected       EventType = "RECIPE_SELECTED"
	EventCommandRejected      EventType = "COMMAND_REJECTED"
	EventRoutesDiscovered     EventType = "ROUTES_DISCOVERED"
	EventGridMerged           EventType = "GRID_MERGED"
	EventGridSplit            EventType = "GRID_SPLIT"
	EventFuseBlown            EventType = "FUSE_BLOWN"
	EventPowerRestored        EventType = "POWER_RESTORED"
	EventPorterSpawned        EventType = "PORTER_SPAWNED"
	EventPorterArrived        EventType = "PORTER_ARRIVED"
	EventPorterLost           EventType = "PORTER_LOST"
	EventCycleCompleted       EventType = "CYCLE_COMPLETED"
)

// Event is one observable outcome of a tick. Only the fields relevant to Type are set.
type Event struct {
	Type EventType `json:"type"`
	Tick uint64    `json:"tick"`

	Structure modelpkg.StructureID `json:"structure,omitempty"`
	Def       string               `json:"def,omitempty"`
	Name      string               `json:"name,omitempty"`
	Pos       []int                `json:"pos,omitempty"`
	Recipe    string               `json:"recipe,omitempty"`

	Porter   uint64               `json:"porter,omitempty"`
	Resource string               `json:"resource,omitempty"`
	From     modelpkg.StructureID `json:"from,omitempty"`
	To       modelpkg.StructureID `json:"to,omitempty"`
	Returned bool                 `json:"returned,omitempty"`

	Grid        modelpkg.GridID   `json:"grid,omitempty"`
	Grids       []modelpkg.GridID `json:"grids,omitempty"`
	Production  int               `json:"production_kw,omitempty"`
	Consumption int               `json:"consumption_kw,omitempty"`

	Routes int    `json:"routes,omitempty"`
	Digest string `json:"digest,omitempty"`

	Command CommandType `json:"command,omitempty"`
	Code    string      `json:"code,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

func posOf(c modelpkg.Coord) []int { return []int{c.X, c.Y} }

// TickLogEntry is what every sink receives once per tick.
type TickLogEntry struct {
	Tick     uint64    `json:"tick"`
	Commands []Command `json:"commands,omitempty"`
	Events   []Event   `json:"events,omitempty"`
	Digest   string    `json:"digest"`
}

// TickSink consumes tick entries. WriteTick is called from the world loop
// goroutine and must not block.
type TickSink interface {
	WriteTick(entry TickLogEntry) error
}

func (w *World) emit(e Event) {
	e.Tick = w.tick.Load()
	w.events = append(w.events, e)
}

func (w *World) reject(cmd Command, code, reason string) {
	w.rejected[code]++
	w.emit(Event{Type: EventCommandRejected, Command: cmd.Type, Pos: []int{cmd.Pos[0], cmd.Pos[1]}, Code: code, Reason: reason})
	w.logger.Printf("tick=%d reject %s at %v: %s (%s)", w.tick.Load(), cmd.Type, cmd.Pos, code, reason)
}
