package observerproto

import "factorysim.ai/internal/sim/world"

// Version is the observer protocol version.
const Version = "1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeCommand   = "COMMAND"
	TypeTick      = "TICK"
	TypeAck       = "ACK"
	TypeError     = "ERROR"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Events selects whether TICK messages carry the tick's events.
	Events bool `json:"events"`
}

// Client -> Server. Debug command intake; rate limited per connection.
type CommandMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ID              string        `json:"id,omitempty"`
	Command         world.Command `json:"command"`
}

// Server -> Client. Reply to a COMMAND.
type AckMsg struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	WorldID         string   `json:"world_id"`
	Tick            uint64   `json:"tick"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Resources       []string `json:"resources"`
	Structures      []string `json:"structures"`
	Recipes         []string `json:"recipes"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Structures int `json:"structures"`
	Porters    int `json:"porters_in_flight"`
	Grids      int `json:"grids"`
	Unpowered  int `json:"unpowered"`

	Commands int           `json:"commands"`
	Events   []world.Event `json:"events,omitempty"`
}
