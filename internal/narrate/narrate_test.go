package narrate

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/verbalizer"
)

func TestFormat(t *testing.T) {
	p := grid.Pos{X: 2, Y: 3}
	obj := grid.Object{Name: "ball", Color: "red"}
	cases := []struct {
		e    agent.Event
		want string
	}{
		{agent.Event{Tick: 4, Kind: agent.EventObjectFound, Target: &p, Object: &obj}, "t=4 found"},
		{agent.Event{Tick: 5, Room: "A", Kind: agent.EventActionFailed, Command: "hand.grab", Error: "nothing to grab"}, "[A] hand.grab failed: nothing to grab"},
		{agent.Event{Kind: agent.EventFinished, Result: &agent.Result{Outcome: agent.OutcomeFailed, Steps: 9, Reason: "target unreachable"}}, "failed after 9 steps, 0 delivered (target unreachable)"},
		{agent.Event{Kind: agent.EventRoomEntered, Loaded: true}, "remembered"},
	}
	for _, tc := range cases {
		if got := Format(tc.e); !strings.Contains(got, tc.want) {
			t.Fatalf("Format(%s)=%q, want substring %q", tc.e.Kind, got, tc.want)
		}
	}
}

func TestNarrator_QuietAndKeep(t *testing.T) {
	var buf bytes.Buffer
	n := New(Options{Logger: log.New(&buf, "", 0), Keep: 2})
	n.Emit(agent.Event{Kind: agent.EventAction, Command: "legs.forward"})
	n.Emit(agent.Event{Tick: 1, Kind: agent.EventRoomLeft})
	n.Emit(agent.Event{Tick: 2, Kind: agent.EventRoomLeft})
	n.Emit(agent.Event{Tick: 3, Kind: agent.EventRoomLeft})
	lines := n.Lines()
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "t=2") {
		t.Fatalf("lines=%q", lines)
	}
	if strings.Contains(buf.String(), "legs.forward") {
		t.Fatalf("quiet event logged: %s", buf.String())
	}
}

func TestNarrator_Say(t *testing.T) {
	w, _ := grid.New(5, 5)
	w.AddBorder()
	_ = w.SetAgent(grid.Pos{X: 2, Y: 2}, grid.North)
	n := New(Options{Verbalizer: verbalizer.Template{}})
	c := agent.New(agent.DefaultConfig(), nil, n)
	c.EnterRoom("r", w)
	c.Step()
	got, err := n.Say(context.Background(), c)
	if err != nil || got == "" {
		t.Fatalf("got=%q err=%v", got, err)
	}

	silent := New(Options{})
	if s, _ := silent.Say(context.Background(), c); s != "" {
		t.Fatalf("nop verbalizer returned %q", s)
	}
}
