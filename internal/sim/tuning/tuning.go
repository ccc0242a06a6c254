package tuning

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz" validate:"gte=1,lte=1000"`

	PorterSpeed         float64 `yaml:"porter_speed" validate:"gt=0,lte=1"`
	PorterArriveEpsilon float64 `yaml:"porter_arrive_epsilon" validate:"gt=0,lt=0.5"`
	PorterTTLTicks      int     `yaml:"porter_ttl_ticks" validate:"gte=1"`
	PorterDispatchTicks int     `yaml:"porter_dispatch_ticks" validate:"gte=1"`

	RouteMaxNodes  int `yaml:"route_max_nodes" validate:"gte=1"`
	PowerLinkRange int `yaml:"power_link_range" validate:"gte=0"`

	EventBuffer int `yaml:"event_buffer" validate:"gte=1"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:          20,
		PorterSpeed:         0.5,
		PorterArriveEpsilon: 0.01,
		PorterTTLTicks:      600,
		PorterDispatchTicks: 5,
		RouteMaxNodes:       4096,
		PowerLinkRange:      8,
		EventBuffer:         1024,
	}
}

// Load reads path over Defaults(), so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := Validate(t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var validate = validator.New()

func Validate(t Tuning) error {
	if err := validate.Struct(t); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Field(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}
