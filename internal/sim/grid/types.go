package grid

import (
	"fmt"
	"strings"
)

type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) Add(d Pos) Pos { return Pos{X: p.X + d.X, Y: p.Y + d.Y} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Neighbors returns the four orthogonal neighbors in N, E, S, W order.
func (p Pos) Neighbors() [4]Pos {
	return [4]Pos{
		p.Add(North.Delta()),
		p.Add(East.Delta()),
		p.Add(South.Delta()),
		p.Add(West.Delta()),
	}
}

func Manhattan(a, b Pos) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Less orders positions by x, then y.
func Less(a, b Pos) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

type Dir uint8

const (
	North Dir = iota
	East
	South
	West
)

var Dirs = [4]Dir{North, East, South, West}

func (d Dir) Delta() Pos {
	switch d {
	case North:
		return Pos{Y: -1}
	case East:
		return Pos{X: 1}
	case South:
		return Pos{Y: 1}
	default:
		return Pos{X: -1}
	}
}

// Left rotates 90 degrees: N->W->S->E->N.
func (d Dir) Left() Dir { return (d + 3) % 4 }

// Right rotates 90 degrees: N->E->S->W->N.
func (d Dir) Right() Dir { return (d + 1) % 4 }

func (d Dir) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	}
	return "?"
}

func (d Dir) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Dir) UnmarshalText(b []byte) error {
	v, err := ParseDir(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func ParseDir(s string) (Dir, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NORTH":
		return North, nil
	case "E", "EAST":
		return East, nil
	case "S", "SOUTH":
		return South, nil
	case "W", "WEST":
		return West, nil
	}
	return North, fmt.Errorf("bad direction %q", s)
}

// DirTo returns the direction of an orthogonally adjacent cell.
func DirTo(from, to Pos) (Dir, bool) {
	d := Pos{X: to.X - from.X, Y: to.Y - from.Y}
	for _, dir := range Dirs {
		if dir.Delta() == d {
			return dir, true
		}
	}
	return North, false
}

type CellKind uint8

const (
	Empty CellKind = iota
	Wall
	Danger
	OutOfBounds
	ObjectCell
)

func (k CellKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Wall:
		return "wall"
	case Danger:
		return "danger"
	case OutOfBounds:
		return "out"
	case ObjectCell:
		return "object"
	}
	return "unknown"
}

func (k CellKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *CellKind) UnmarshalText(b []byte) error {
	v, err := ParseCellKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func ParseCellKind(s string) (CellKind, error) {
	switch s {
	case "empty":
		return Empty, nil
	case "wall":
		return Wall, nil
	case "danger":
		return Danger, nil
	case "out":
		return OutOfBounds, nil
	case "object":
		return ObjectCell, nil
	}
	return Empty, fmt.Errorf("bad cell kind %q", s)
}

type Object struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// IsGoal reports whether the object is a delivery marker ("goal" or "goal_<color>").
func (o Object) IsGoal() bool {
	return o.Name == "goal" || strings.HasPrefix(o.Name, "goal_")
}

// GoalColor returns the color a "goal_<color>" marker accepts, or "" for a generic goal.
func (o Object) GoalColor() string {
	if !strings.HasPrefix(o.Name, "goal_") {
		return ""
	}
	return strings.TrimPrefix(o.Name, "goal_")
}

func (o Object) String() string {
	if o.Color == "" {
		return o.Name
	}
	return o.Color + " " + o.Name
}

// Observation is what the agent perceives of one cell.
type Observation struct {
	Pos    Pos      `json:"pos"`
	Kind   CellKind `json:"kind"`
	Object *Object  `json:"object,omitempty"`
	Danger bool     `json:"danger,omitempty"`
}

type AgentState struct {
	Pos     Pos     `json:"pos"`
	Facing  Dir     `json:"facing"`
	Holding *Object `json:"holding,omitempty"`
}

type WallMove struct {
	From Pos `json:"from"`
	To   Pos `json:"to"`
}
