// Package command names the body primitives as "noun.verb" commands and
// dispatches them through a fixed table.
package command

import (
	"errors"
	"fmt"
	"strings"

	"gridscout.ai/internal/sim/grid"
)

type Command uint8

const (
	Wait Command = iota
	Forward
	TurnLeft
	TurnRight
	Grab
	Release
	Look

	numCommands
)

var names = [numCommands]string{
	Wait:      "body.wait",
	Forward:   "legs.forward",
	TurnLeft:  "legs.turn_left",
	TurnRight: "legs.turn_right",
	Grab:      "hand.grab",
	Release:   "hand.release",
	Look:      "eyes.look",
}

var byName = func() map[string]Command {
	m := make(map[string]Command, numCommands)
	for c, n := range names {
		m[n] = Command(c)
	}
	return m
}()

var ErrUnknown = errors.New("unknown command")

func (c Command) String() string {
	if c >= numCommands {
		return fmt.Sprintf("command(%d)", uint8(c))
	}
	return names[c]
}

func (c Command) Noun() string {
	n, _, _ := strings.Cut(c.String(), ".")
	return n
}

func (c Command) Verb() string {
	_, v, _ := strings.Cut(c.String(), ".")
	return v
}

func (c Command) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Command) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func Parse(s string) (Command, error) {
	c, ok := byName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Wait, fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return c, nil
}

func All() []Command {
	out := make([]Command, 0, numCommands)
	for c := Command(0); c < numCommands; c++ {
		out = append(out, c)
	}
	return out
}

// Body is the set of primitives a command can drive. *grid.World implements it.
type Body interface {
	MoveForward() error
	TurnLeft() grid.Dir
	TurnRight() grid.Dir
	Grab() (grid.Object, error)
	Release() (bool, error)
	LookAround() [4]grid.Observation
}

// Outcome is the effect of one executed command.
type Outcome struct {
	Command   Command
	Err       error
	Facing    grid.Dir
	Grabbed   *grid.Object
	Delivered bool
	Looked    []grid.Observation
}

func (o Outcome) OK() bool { return o.Err == nil }

var dispatch = [numCommands]func(Body) Outcome{
	Wait: func(Body) Outcome { return Outcome{} },
	Forward: func(b Body) Outcome {
		return Outcome{Err: b.MoveForward()}
	},
	TurnLeft: func(b Body) Outcome {
		return Outcome{Facing: b.TurnLeft()}
	},
	TurnRight: func(b Body) Outcome {
		return Outcome{Facing: b.TurnRight()}
	},
	Grab: func(b Body) Outcome {
		obj, err := b.Grab()
		if err != nil {
			return Outcome{Err: err}
		}
		return Outcome{Grabbed: &obj}
	},
	Release: func(b Body) Outcome {
		delivered, err := b.Release()
		return Outcome{Err: err, Delivered: delivered}
	},
	Look: func(b Body) Outcome {
		obs := b.LookAround()
		return Outcome{Looked: obs[:]}
	},
}

func Execute(b Body, c Command) Outcome {
	if c >= numCommands {
		return Outcome{Command: c, Err: ErrUnknown}
	}
	out := dispatch[c](b)
	out.Command = c
	return out
}

// Sequence executes cmds in order and stops after the first failure.
func Sequence(b Body, cmds []Command) []Outcome {
	out := make([]Outcome, 0, len(cmds))
	for _, c := range cmds {
		o := Execute(b, c)
		out = append(out, o)
		if o.Err != nil {
			break
		}
	}
	return out
}
