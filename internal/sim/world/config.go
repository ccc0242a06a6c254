package world

import "factorysim.ai/internal/sim/tuning"

type WorldConfig struct {
	ID         string
	TickRateHz int

	PorterSpeed         float64
	PorterArriveEpsilon float64
	PorterTTLTicks      int
	// PorterDispatchTicks is the minimum gap between two porters leaving one producer.
	PorterDispatchTicks int

	RouteMaxNodes int
	// PowerLinkRange bounds the Chebyshev distance of LINK_POWER; 0 disables the check.
	PowerLinkRange int

	InboxSize int
}

// ConfigFromTuning maps the tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                  id,
		TickRateHz:          t.TickRateHz,
		PorterSpeed:         t.PorterSpeed,
		PorterArriveEpsilon: t.PorterArriveEpsilon,
		PorterTTLTicks:      t.PorterTTLTicks,
		PorterDispatchTicks: t.PorterDispatchTicks,
		RouteMaxNodes:       t.RouteMaxNodes,
		PowerLinkRange:      t.PowerLinkRange,
		InboxSize:           t.EventBuffer,
	}
}

func (c *WorldConfig) applyDefaults() {
	d := tuning.Defaults()
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.PorterSpeed <= 0 {
		c.PorterSpeed = d.PorterSpeed
	}
	if c.PorterArriveEpsilon <= 0 {
		c.PorterArriveEpsilon = d.PorterArriveEpsilon
	}
	if c.PorterTTLTicks <= 0 {
		c.PorterTTLTicks = d.PorterTTLTicks
	}
	if c.PorterDispatchTicks <= 0 {
		c.PorterDispatchTicks = d.PorterDispatchTicks
	}
	if c.RouteMaxNodes <= 0 {
		c.RouteMaxNodes = d.RouteMaxNodes
	}
	if c.PowerLinkRange < 0 {
		c.PowerLinkRange = 0
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.EventBuffer
	}
}
