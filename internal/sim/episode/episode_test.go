package episode

import (
	"context"
	"testing"

	"gridscout.ai/internal/command"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/scenario"
)

func newEpisode(t *testing.T, name string, p float64) *Episode {
	t.Helper()
	sc, err := scenario.Builtin(name)
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(Options{Scenario: sc, Agent: agent.DefaultConfig(), WallMoveProbability: p})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNew_AssignsID(t *testing.T) {
	e := newEpisode(t, "ball_and_goal", 0)
	if len(e.ID()) != 36 {
		t.Fatalf("id=%q", e.ID())
	}
	if e.Legs() != 1 || e.LegIndex() != 0 || e.Done() {
		t.Fatalf("legs=%d idx=%d done=%v", e.Legs(), e.LegIndex(), e.Done())
	}
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error for nil scenario")
	}
}

func TestRun_SingleLeg(t *testing.T) {
	e := newEpisode(t, "ball_and_goal", 0)
	res := e.Run(context.Background())
	if len(res) != 1 || !res[0].Success() || res[0].Room != "main" {
		t.Fatalf("res=%+v", res)
	}
	s := e.Summary()
	if s.Completed != 1 || s.Delivered != 1 || s.Steps != res[0].Steps {
		t.Fatalf("summary=%+v", s)
	}
	if tk := e.Step(); !tk.Finished {
		t.Fatalf("step after done: %+v", tk)
	}
}

func TestRun_Cancelled(t *testing.T) {
	e := newEpisode(t, "five_rooms", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Run(ctx)
	if len(res) != 1 || res[0].Outcome != agent.OutcomeStopped {
		t.Fatalf("res=%+v", res)
	}
	if !e.Done() {
		t.Fatalf("not done after stop")
	}
}

func TestStep_LegBoundary(t *testing.T) {
	e := newEpisode(t, "five_rooms", 0)
	var first *LegResult
	for i := 0; i < 300 && first == nil; i++ {
		first = e.Step().LegDone
	}
	if first == nil || first.Room != "A" || first.Loaded {
		t.Fatalf("first leg=%+v", first)
	}
	if e.LegIndex() != 1 || e.Controller().Memory().CurrentRoom() != "B" {
		t.Fatalf("idx=%d room=%s", e.LegIndex(), e.Controller().Memory().CurrentRoom())
	}
	if e.Controller().Config().StepBudget != 200 {
		t.Fatalf("leg budget not applied: %d", e.Controller().Config().StepBudget)
	}
}

func TestStepWith_Manual(t *testing.T) {
	e := newEpisode(t, "ball_and_goal", 0)
	tk := e.StepWith(command.TurnLeft)
	if !tk.Manual || tk.Command != "legs.turn_left" {
		t.Fatalf("tick=%+v", tk.TickRecord)
	}
	if e.World().Agent().Facing.String() != "E" {
		t.Fatalf("facing=%v", e.World().Agent().Facing)
	}
}

func TestWallDrift_Deterministic(t *testing.T) {
	sc, err := scenario.Resolve("../../../configs/scenarios/shifting_walls.yaml")
	if err != nil {
		t.Fatal(err)
	}
	run := func() (int, string) {
		e, err := New(Options{ID: "x", Scenario: sc, Agent: agent.DefaultConfig()})
		if err != nil {
			t.Fatal(err)
		}
		moves := 0
		for i := 0; i < 150 && !e.Done(); i++ {
			moves += len(e.Step().WallMoves)
		}
		return moves, e.Digest()
	}
	m1, d1 := run()
	m2, d2 := run()
	if m1 == 0 {
		t.Fatalf("no walls moved")
	}
	if m1 != m2 || d1 != d2 {
		t.Fatalf("runs differ: %d/%s vs %d/%s", m1, d1, m2, d2)
	}
}
