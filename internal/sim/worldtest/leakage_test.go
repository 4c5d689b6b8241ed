package worldtest

import (
	"testing"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/logic/pathfind"
)

// Two worlds that differ only in cells the agent has not observed must
// produce the same decisions.
func TestDecisionsIgnoreUnobservedGroundTruth(t *testing.T) {
	sc := Builtin(t, "ball_and_goal")
	room := sc.Rooms[0]
	w1, err := room.Build()
	if err != nil {
		t.Fatal(err)
	}
	w2, _ := room.Build()
	hidden := grid.Pos{X: 8, Y: 2}
	if err := w2.AddWall(hidden); err != nil {
		t.Fatal(err)
	}
	if err := w2.AddObject(grid.Pos{X: 1, Y: 8}, grid.Object{Name: "ball", Color: "blue"}); err != nil {
		t.Fatal(err)
	}

	cfg := sc.Configure(agent.DefaultConfig())
	c1 := agent.New(cfg, nil, nil)
	c2 := agent.New(cfg, nil, nil)
	c1.EnterRoom("main", w1)
	c2.EnterRoom("main", w2)

	compared := 0
	for i := 0; i < 200; i++ {
		r1, r2 := c1.Step(), c2.Step()
		m1, m2 := c1.Memory(), c2.Memory()
		if m1.Digest() != m2.Digest() {
			break
		}
		if (r1.Holding == nil) != (r2.Holding == nil) {
			t.Fatalf("tick %d: holding differs", r1.Tick)
		}
		r1.Holding, r2.Holding = nil, nil
		if r1 != r2 {
			t.Fatalf("tick %d: %+v vs %+v", r1.Tick, r1, r2)
		}
		if m1.HasReachableUnknown() != m2.HasReachableUnknown() {
			t.Fatalf("tick %d: HasReachableUnknown differs", r1.Tick)
		}
		from := w1.Agent().Pos
		for _, p := range m1.KnownEmpty() {
			p1, ok1 := pathfind.FindPath(m1.Map, from, p)
			p2, ok2 := pathfind.FindPath(m2.Map, from, p)
			if ok1 != ok2 || len(p1) != len(p2) {
				t.Fatalf("tick %d: path to %v differs", r1.Tick, p)
			}
		}
		compared++
	}
	if compared < 5 {
		t.Fatalf("memories diverged too early (%d ticks)", compared)
	}
}
