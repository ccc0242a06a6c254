package production

import "factorysim.ai/internal/sim/catalogs"

type State uint8

const (
	Idle State = iota
	Working
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Working:
		return "WORKING"
	case Completed:
		return "COMPLETED"
	default:
		return "?"
	}
}

// Store is the inventory surface a machine reads and writes.
type Store interface {
	Count(item string) int
	Add(item string, n int)
	Take(item string, n int) bool
}

// Unit is everything one Advance call needs besides the machine itself.
type Unit struct {
	Recipe *catalogs.RecipeDef
	Input  Store
	Output Store

	RequiresPower bool
	Powered       bool

	// OutputCapacity caps each output slot; 0 means unbounded.
	OutputCapacity int
}

// Machine is the per-structure production cycle. The zero value is Idle.
type Machine struct {
	State     State
	Remaining uint64
	Duration  uint64
	Cycles    uint64

	// Starved is set when the last consume attempt found missing inputs.
	Starved bool
	// Stalled is set while a completed cycle waits for output room.
	Stalled bool
}

type Transition struct {
	Started   bool
	Completed bool
}

// Advance runs consume -> progress -> produce once for elapsed ticks.
// Zero elapsed ticks never change state.
func (m *Machine) Advance(elapsed uint64, u Unit) Transition {
	var tr Transition
	if elapsed == 0 || u.Recipe == nil {
		return tr
	}

	if m.State == Idle {
		if u.RequiresPower && !u.Powered {
			return tr
		}
		if !hasInputs(u.Recipe, u.Input) {
			m.Starved = true
			return tr
		}
		for _, in := range u.Recipe.Inputs {
			u.Input.Take(in.Item, in.Count)
		}
		m.Starved = false
		m.State = Working
		m.Duration = uint64(u.Recipe.TimeTicks)
		m.Remaining = m.Duration
		tr.Started = true
	}

	if m.State == Working {
		if m.Remaining > elapsed {
			m.Remaining -= elapsed
		} else {
			m.Remaining = 0
			m.State = Completed
		}
	}

	if m.State == Completed {
		if !outputsFit(u.Recipe, u.Output, u.OutputCapacity) {
			m.Stalled = true
			return tr
		}
		for _, out := range u.Recipe.Outputs {
			u.Output.Add(out.Item, out.Count)
		}
		m.Stalled = false
		m.State = Idle
		m.Cycles++
		tr.Completed = true
	}
	return tr
}

// Abort cancels the current cycle and refunds its consumed inputs, including
// a completed cycle still stalled on output room.
func (m *Machine) Abort(recipe *catalogs.RecipeDef, input Store) {
	if m.State != Idle && recipe != nil && input != nil {
		for _, in := range recipe.Inputs {
			input.Add(in.Item, in.Count)
		}
	}
	*m = Machine{Cycles: m.Cycles}
}

// Blocked reports an idle machine whose last consume attempt lacked inputs.
func (m *Machine) Blocked() bool { return m.State == Idle && m.Starved }

// Progress is the elapsed fraction of the current cycle, in [0,1].
func (m *Machine) Progress() float64 {
	switch m.State {
	case Completed:
		return 1
	case Working:
		if m.Duration == 0 {
			return 1
		}
		return TimedProgress(m.Duration-m.Remaining, m.Duration)
	default:
		return 0
	}
}

func TimedProgress(done, total uint64) float64 {
	if total == 0 {
		return 0
	}
	p := float64(done) / float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func hasInputs(r *catalogs.RecipeDef, inv Store) bool {
	need := map[string]int{}
	for _, in := range r.Inputs {
		need[in.Item] += in.Count
	}
	if len(need) > 0 && inv == nil {
		return false
	}
	for item, n := range need {
		if inv.Count(item) < n {
			return false
		}
	}
	return true
}

func outputsFit(r *catalogs.RecipeDef, out Store, capacity int) bool {
	if capacity <= 0 {
		return true
	}
	add := map[string]int{}
	for _, o := range r.Outputs {
		add[o.Item] += o.Count
	}
	for item, n := range add {
		if out.Count(item)+n > capacity {
			return false
		}
	}
	return true
}
