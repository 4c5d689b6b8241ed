package command

import (
	"errors"
	"testing"

	"gridscout.ai/internal/sim/grid"
)

func TestParseRoundTrip(t *testing.T) {
	for _, c := range All() {
		got, err := Parse(c.String())
		if err != nil || got != c {
			t.Fatalf("Parse(%q)=%v,%v", c.String(), got, err)
		}
		if c.Noun() == "" || c.Verb() == "" {
			t.Fatalf("%v: bad noun.verb", c)
		}
	}
	if _, err := Parse("arm.shoulder_up"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("err=%v", err)
	}
	if c, err := Parse("  LEGS.Forward "); err != nil || c != Forward {
		t.Fatalf("case-insensitive parse: %v %v", c, err)
	}
}

func TestExecuteOnWorld(t *testing.T) {
	w, _ := grid.New(5, 5)
	w.AddBorder()
	_ = w.SetAgent(grid.Pos{X: 1, Y: 1}, grid.East)
	_ = w.AddObject(grid.Pos{X: 3, Y: 1}, grid.Object{Name: "ball", Color: "red"})

	if o := Execute(w, Forward); !o.OK() {
		t.Fatalf("forward: %v", o.Err)
	}
	o := Execute(w, Grab)
	if !o.OK() || o.Grabbed == nil || o.Grabbed.Color != "red" {
		t.Fatalf("grab: %+v", o)
	}
	if o := Execute(w, TurnRight); o.Facing != grid.South {
		t.Fatalf("facing=%v", o.Facing)
	}
	if o := Execute(w, Look); len(o.Looked) != 4 {
		t.Fatalf("look=%+v", o.Looked)
	}
	if o := Execute(w, Command(200)); !errors.Is(o.Err, ErrUnknown) {
		t.Fatalf("unknown err=%v", o.Err)
	}
}

func TestSequenceStopsOnFailure(t *testing.T) {
	w, _ := grid.New(5, 5)
	w.AddBorder()
	_ = w.SetAgent(grid.Pos{X: 1, Y: 1}, grid.North)
	out := Sequence(w, []Command{Forward, TurnRight, Forward})
	if len(out) != 1 || !errors.Is(out[0].Err, grid.ErrBlocked) {
		t.Fatalf("out=%+v", out)
	}
}
