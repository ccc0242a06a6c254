package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Structures int `json:"structures"`
	Porters    int `json:"porters_in_flight"`
	Grids      int `json:"grids"`
	Unpowered  int `json:"unpowered"`
	Routes     int `json:"routes"`

	PortersDelivered uint64            `json:"porters_delivered"`
	PortersLost      map[string]uint64 `json:"porters_lost,omitempty"`
	FusesBlown       uint64            `json:"fuses_blown"`
	CommandsRejected map[string]uint64 `json:"commands_rejected,omitempty"`

	InboxDepth int     `json:"inbox_depth"`
	StepMS     float64 `json:"step_ms"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) computeMetrics(nextTick uint64, stepMS float64) WorldMetrics {
	m := WorldMetrics{
		Tick:             nextTick,
		Porters:          len(w.porters),
		Grids:            w.power.Len(),
		Routes:           w.routes.RouteCount(),
		PortersDelivered: w.delivered,
		PortersLost:      copyCounts(w.lost),
		FusesBlown:       w.fuses,
		CommandsRejected: copyCounts(w.rejected),
		InboxDepth:       len(w.inbox),
		StepMS:           stepMS,
	}
	for _, s := range w.structures {
		if !s.Alive() {
			continue
		}
		m.Structures++
		if s.PowerCapable && !s.Powered {
			m.Unpowered++
		}
	}
	return m
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
