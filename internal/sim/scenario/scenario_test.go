package scenario

import (
	"strings"
	"testing"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/grid"
)

func TestBuiltins_Parse(t *testing.T) {
	names := Names()
	if len(names) != 3 {
		t.Fatalf("names=%v", names)
	}
	for _, n := range names {
		s, err := Builtin(n)
		if err != nil {
			t.Fatalf("%s: %v", n, err)
		}
		if s.Name != n {
			t.Fatalf("name=%q want %q", s.Name, n)
		}
		for _, leg := range s.Legs() {
			r, ok := s.Room(leg.Room)
			if !ok {
				t.Fatalf("%s: missing room %s", n, leg.Room)
			}
			if _, err := r.Build(); err != nil {
				t.Fatalf("%s/%s: %v", n, r.ID, err)
			}
		}
	}
}

func TestBallAndGoalLayout(t *testing.T) {
	s, err := Builtin("ball_and_goal")
	if err != nil {
		t.Fatal(err)
	}
	w, err := s.Rooms[0].Build()
	if err != nil {
		t.Fatal(err)
	}
	if w.Width() != 10 || w.Height() != 10 {
		t.Fatalf("size=%dx%d", w.Width(), w.Height())
	}
	if obj, ok := w.ObjectAt(grid.Pos{X: 2, Y: 3}); !ok || obj.Color != "red" {
		t.Fatalf("ball=%+v ok=%v", obj, ok)
	}
	if obj, ok := w.ObjectAt(grid.Pos{X: 8, Y: 7}); !ok || !obj.IsGoal() {
		t.Fatalf("goal=%+v ok=%v", obj, ok)
	}
	if a := w.Agent(); a.Pos != (grid.Pos{X: 5, Y: 5}) || a.Facing != grid.South {
		t.Fatalf("agent=%+v", a)
	}
	if w.CellAt(grid.Pos{X: 0, Y: 4}) != grid.Wall {
		t.Fatalf("border missing")
	}
	cfg := s.Configure(agent.DefaultConfig())
	if !cfg.ExhaustiveExplore {
		t.Fatalf("exhaustive override not applied")
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"no rooms": "name: x\n",
		"bad facing": `name: x
rooms:
  - { id: a, width: 5, height: 5, start: [1, 1], facing: Q }
`,
		"unknown field": `name: x
rooms:
  - { id: a, width: 5, height: 5, start: [1, 1], colour: red }
`,
		"short xy": `name: x
rooms:
  - { id: a, width: 5, height: 5, start: [1] }
`,
		"unknown itinerary room": `name: x
rooms:
  - { id: a, width: 5, height: 5, start: [1, 1] }
itinerary:
  - room: b
`,
		"start in wall": `name: x
rooms:
  - { id: a, width: 5, height: 5, start: [0, 0] }
`,
		"duplicate room": `name: x
rooms:
  - { id: a, width: 5, height: 5, start: [1, 1] }
  - { id: a, width: 5, height: 5, start: [1, 1] }
`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestChangesApply(t *testing.T) {
	s, err := Builtin("five_rooms")
	if err != nil {
		t.Fatal(err)
	}
	r, _ := s.Room("A")
	w, _ := r.Build()
	// Simulate the first visit's delivery onto the goal cell.
	w.RemoveObject(grid.Pos{X: 6, Y: 3})
	w.RemoveObject(grid.Pos{X: 4, Y: 3})
	_ = w.AddObject(grid.Pos{X: 6, Y: 3}, grid.Object{Name: "ball", Color: "red"})

	if err := s.Legs()[2].Changes.Apply(w); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if w.CellAt(grid.Pos{X: 3, Y: 3}) != grid.Wall {
		t.Fatalf("wall not added")
	}
	if obj, ok := w.ObjectAt(grid.Pos{X: 7, Y: 3}); !ok || !obj.IsGoal() {
		t.Fatalf("goal not added: %+v", obj)
	}
	if _, ok := w.ObjectAt(grid.Pos{X: 6, Y: 3}); ok {
		t.Fatalf("old ball not removed")
	}

	bad := &Changes{RemoveObjects: []XY{{1, 1}}, AddWalls: []XY{{99, 99}}}
	err = bad.Apply(w)
	if err == nil || !strings.Contains(err.Error(), "remove_objects") || !strings.Contains(err.Error(), "add_walls") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_ConfigScenario(t *testing.T) {
	s, err := Resolve("../../../configs/scenarios/shifting_walls.yaml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	legs := s.Legs()
	if len(legs) != 1 || legs[0].WallMoveProbability == nil || *legs[0].WallMoveProbability != 0.05 {
		t.Fatalf("legs=%+v", legs)
	}
	cfg := s.Configure(agent.DefaultConfig())
	if cfg.Deliveries != 2 || cfg.StepBudget != 800 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if s.Digest() == "" || len(s.Raw()) == 0 {
		t.Fatalf("raw not kept")
	}
}

func TestRoomReset(t *testing.T) {
	s, _ := Builtin("ball_and_goal")
	r := s.Rooms[0]
	w, _ := r.Build()
	_ = w.SetAgent(grid.Pos{X: 1, Y: 1}, grid.West)
	if err := r.Reset(w); err != nil {
		t.Fatal(err)
	}
	if a := w.Agent(); a.Pos != (grid.Pos{X: 5, Y: 5}) || a.Facing != grid.South {
		t.Fatalf("agent=%+v", a)
	}
}
