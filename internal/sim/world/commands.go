package world

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

type CommandType string

const (
	CmdConstruct    CommandType = "CONSTRUCT"
	CmdDemolish     CommandType = "DEMOLISH"
	CmdSelectRecipe CommandType = "SELECT_RECIPE"
	CmdLinkPower    CommandType = "LINK_POWER"
	CmdRestorePower CommandType = "RESTORE_POWER"
)

// Command is the single external input shape. Pos addresses the target
// structure; To is the second endpoint of LINK_POWER.
type Command struct {
	Type   CommandType `json:"type" yaml:"type" validate:"required,oneof=CONSTRUCT DEMOLISH SELECT_RECIPE LINK_POWER RESTORE_POWER"`
	Def    string      `json:"def,omitempty" yaml:"def,omitempty" validate:"required_if=Type CONSTRUCT"`
	Pos    [2]int      `json:"pos" yaml:"pos"`
	To     [2]int      `json:"to,omitempty" yaml:"to,omitempty"`
	Recipe string      `json:"recipe,omitempty" yaml:"recipe,omitempty" validate:"required_if=Type SELECT_RECIPE"`
}

func Construct(def string, pos modelpkg.Coord, recipe string) Command {
	return Command{Type: CmdConstruct, Def: def, Pos: pos.ToArray(), Recipe: recipe}
}

func Demolish(pos modelpkg.Coord) Command {
	return Command{Type: CmdDemolish, Pos: pos.ToArray()}
}

func SelectRecipe(pos modelpkg.Coord, recipe string) Command {
	return Command{Type: CmdSelectRecipe, Pos: pos.ToArray(), Recipe: recipe}
}

func LinkPower(a, b modelpkg.Coord) Command {
	return Command{Type: CmdLinkPower, Pos: a.ToArray(), To: b.ToArray()}
}

func RestorePower(pos modelpkg.Coord) Command {
	return Command{Type: CmdRestorePower, Pos: pos.ToArray()}
}

// Rejection codes carried by COMMAND_REJECTED.
const (
	ErrCodeInvalid        = "E_INVALID"
	ErrCodeUnknownDef     = "E_UNKNOWN_DEF"
	ErrCodeOccupied       = "E_OCCUPIED"
	ErrCodeNotFound       = "E_NOT_FOUND"
	ErrCodeBadRecipe      = "E_BAD_RECIPE"
	ErrCodeNotPoweredNode = "E_NOT_POWERED_NODE"
	ErrCodeOutOfRange     = "E_OUT_OF_RANGE"
)

var validate = validator.New()

// ValidateCommand checks the shape of a command before it reaches the inbox.
// World state checks happen later, at the tick boundary.
func ValidateCommand(c Command) error {
	if err := validate.Struct(c); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s", e.Field(), e.Tag()))
		}
		return fmt.Errorf("bad command: %s", strings.Join(msgs, "; "))
	}
	return nil
}
