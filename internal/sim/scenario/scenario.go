package scenario

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"factorysim.ai/internal/sim/world"
)

// Script is a headless run: commands keyed by the tick they are submitted on.
type Script struct {
	Name  string `yaml:"name" validate:"required"`
	Ticks int    `yaml:"ticks" validate:"gte=0"`
	Steps []Step `yaml:"steps" validate:"dive"`
}

// Step ticks are relative to the world tick when Run starts.
type Step struct {
	Tick    uint64        `yaml:"tick"`
	Command world.Command `yaml:"command"`
}

var validate = validator.New()

func Load(path string) (Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	s, err := Parse(raw)
	if err != nil {
		return Script{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Parse(raw []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Script{}, err
	}
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return Script{}, err
		}
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s", e.Namespace(), e.Tag()))
		}
		return Script{}, fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
	}
	// Same-tick steps keep file order.
	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].Tick < s.Steps[j].Tick })
	return s, nil
}

// Length is the number of ticks Run needs when no override is given.
func (s Script) Length() int {
	if s.Ticks > 0 {
		return s.Ticks
	}
	if len(s.Steps) == 0 {
		return 0
	}
	return int(s.Steps[len(s.Steps)-1].Tick) + 1
}

type Summary struct {
	Name      string             `json:"name"`
	Ticks     int                `json:"ticks"`
	FinalTick uint64             `json:"final_tick"`
	Digest    string             `json:"digest"`
	Events    map[string]int     `json:"events"`
	Metrics   world.WorldMetrics `json:"metrics"`
}

type tally struct{ counts map[string]int }

func (t *tally) WriteTick(e world.TickLogEntry) error {
	for _, ev := range e.Events {
		t.counts[string(ev.Type)]++
	}
	return nil
}

// Run steps w synchronously. ticks <= 0 falls back to s.Length().
// w must not be running its own loop.
func Run(w *world.World, s Script, ticks int) Summary {
	if ticks <= 0 {
		ticks = s.Length()
	}
	t := &tally{counts: map[string]int{}}
	w.AddTickSink(t)

	start := w.CurrentTick()
	next := 0
	var digest string
	for i := 0; i < ticks; i++ {
		var cmds []world.Command
		for next < len(s.Steps) && s.Steps[next].Tick <= uint64(i) {
			cmds = append(cmds, s.Steps[next].Command)
			next++
		}
		_, digest = w.Step(cmds)
	}
	return Summary{
		Name:      s.Name,
		Ticks:     ticks,
		FinalTick: start + uint64(ticks),
		Digest:    digest,
		Events:    t.counts,
		Metrics:   w.Metrics(),
	}
}
