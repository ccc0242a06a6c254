package world

import (
	"time"
)

// Step advances the world by a single tick with the given commands, using the
// same ordering as Run. It returns the tick that was simulated and its digest.
// Not safe to call concurrently with Run.
func (w *World) Step(cmds []Command) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.stepInternal(cmds)
	return tick, digest
}

func (w *World) stepInternal(cmds []Command) string {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	w.events = nil

	// Intake in submission order.
	recorded := make([]Command, len(cmds))
	copy(recorded, cmds)
	for _, cmd := range recorded {
		w.applyCommand(cmd, nowTick)
	}

	// Systems: power links -> logistics -> production -> power -> cleanup.
	w.systemPowerLinks()
	w.systemLogistics()
	w.systemProduction(nowTick)
	w.systemPower()
	w.systemCleanup()

	digest := w.stateDigest(nowTick)
	events := w.events
	w.events = nil

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.metrics.Store(w.computeMetrics(nextTick, stepMS))

	entry := TickLogEntry{Tick: nowTick, Commands: recorded, Events: events, Digest: digest}
	for _, s := range w.sinks {
		if err := s.WriteTick(entry); err != nil {
			w.logger.Printf("tick=%d sink %T: %v", nowTick, s, err)
		}
	}
	return digest
}

// systemCleanup finishes demolitions: grids split, route queues drop, arena slots clear.
func (w *World) systemCleanup() {
	for _, id := range w.demolished {
		s := w.mustStructure(id)
		if s.PowerCapable {
			w.splitGrid(id)
		}
		w.routes.Drop(id)
		w.structures[id-1] = nil
	}
	w.demolished = w.demolished[:0]
}
