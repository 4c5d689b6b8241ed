package worldtest

import (
	"testing"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/grid"
)

func TestBallAndGoal_ExploreThenDeliver(t *testing.T) {
	h := NewBuiltin(t, "ball_and_goal")
	ball, goal := grid.Pos{X: 2, Y: 3}, grid.Pos{X: 8, Y: 7}

	h.StepUntil(400, func(episode.Tick) bool { return h.State() != agent.Exploring })
	mem := h.Memory()
	if mem.HasReachableUnknown() {
		t.Fatalf("left EXPLORING with reachable unknown cells")
	}
	if f, ok := mem.Found[ball]; !ok || f.Object.Color != "red" {
		t.Fatalf("ball not in memory: %+v", mem.Found)
	}
	if f, ok := mem.Found[goal]; !ok || !f.Object.IsGoal() {
		t.Fatalf("goal not in memory: %+v", mem.Found)
	}

	res := h.Finish(500)
	if len(res) != 1 || !res[0].Success() {
		t.Fatalf("results=%+v", res)
	}
	w := h.World()
	if obj, ok := w.ObjectAt(goal); !ok || obj.Name != "ball" || obj.Color != "red" {
		t.Fatalf("goal cell holds %+v ok=%v", obj, ok)
	}
	if _, ok := w.Holding(); ok {
		t.Fatalf("agent still holding")
	}
	if len(w.Deliveries()) != 1 {
		t.Fatalf("deliveries=%+v", w.Deliveries())
	}
}

func TestBallMovedAfterCommit_Recovers(t *testing.T) {
	sc := Builtin(t, "ball_and_goal")
	off := false
	sc.Agent.ExhaustiveExplore = &off
	h := NewHarness(t, sc, agent.DefaultConfig())

	moved := false
	var movedTo grid.Pos
	h.OnEvent(func(e agent.Event) {
		if moved || e.Kind != agent.EventTargetSelected {
			return
		}
		w, mem := h.World(), h.Memory()
		// Prefer a cell the agent has never seen; fall back to any free cell away from it.
		var fallback *grid.Pos
		for y := 1; y < w.Height()-1 && !moved; y++ {
			for x := 1; x < w.Width()-1; x++ {
				p := grid.Pos{X: x, Y: y}
				if w.CellAt(p) != grid.Empty || p == w.Agent().Pos || p == *e.Target {
					continue
				}
				if _, ok := w.ObjectAt(p); ok {
					continue
				}
				if _, known := mem.Map[p]; known {
					if fallback == nil && grid.Manhattan(p, w.Agent().Pos) > 3 {
						q := p
						fallback = &q
					}
					continue
				}
				movedTo, moved = p, true
				break
			}
		}
		if !moved && fallback != nil {
			movedTo, moved = *fallback, true
		}
		if !moved {
			t.Fatalf("no cell to move the ball to")
		}
		if err := w.RelocateObject(*e.Target, movedTo); err != nil {
			t.Fatalf("relocate: %v", err)
		}
	})

	res := h.Finish(500)
	if !moved {
		t.Fatalf("target never selected")
	}
	if len(res) != 1 || !res[0].Success() {
		t.Fatalf("results=%+v", res)
	}

	var nothing bool
	for _, e := range h.Rec.OfKind(agent.EventActionFailed) {
		if e.Command == "hand.grab" && e.Error == grid.ErrNothingToGrab.Error() {
			nothing = true
		}
	}
	if !nothing {
		t.Fatalf("grab at the stale position did not fail")
	}
	if len(h.Rec.OfKind(agent.EventRecoveryStarted)) != 1 {
		t.Fatalf("recovery_started=%d", len(h.Rec.OfKind(agent.EventRecoveryStarted)))
	}
	rec := h.Rec.OfKind(agent.EventRecovered)
	if len(rec) != 1 || *rec[0].Target != movedTo {
		t.Fatalf("recovered=%+v want %v", rec, movedTo)
	}
	if _, ok := h.World().ObjectAt(movedTo); ok {
		t.Fatalf("ball still at %v", movedTo)
	}
}

func TestGoalMovedWhileHolding_SweepsForGoal(t *testing.T) {
	cfg := agent.DefaultConfig()
	cfg.StepBudget = 1500
	h := NewHarness(t, Builtin(t, "ball_and_goal"), cfg)
	goal, movedTo := grid.Pos{X: 8, Y: 7}, grid.Pos{X: 1, Y: 1}

	moved := false
	h.OnEvent(func(e agent.Event) {
		if moved || e.Kind != agent.EventGrabbed {
			return
		}
		if k, ok := h.Memory().Map[movedTo]; !ok || k != grid.Empty {
			t.Fatalf("%v should be known empty, got %v ok=%v", movedTo, k, ok)
		}
		if err := h.World().RelocateObject(goal, movedTo); err != nil {
			t.Fatalf("relocate: %v", err)
		}
		moved = true
	})

	res := h.Finish(1600)
	if !moved {
		t.Fatalf("ball never grabbed")
	}
	if len(res) != 1 || !res[0].Success() {
		t.Fatalf("results=%+v", res)
	}
	started := h.Rec.OfKind(agent.EventRecoveryStarted)
	if len(started) != 1 || !started[0].Object.IsGoal() {
		t.Fatalf("recovery_started=%+v", started)
	}
	rec := h.Rec.OfKind(agent.EventRecovered)
	if len(rec) != 1 || *rec[0].Target != movedTo {
		t.Fatalf("recovered=%+v want %v", rec, movedTo)
	}
	d := h.World().Deliveries()
	if len(d) != 1 || d[0].Pos != movedTo || d[0].Object.Color != "red" {
		t.Fatalf("deliveries=%+v", d)
	}
}

func TestFearControl(t *testing.T) {
	run := func(fear float64) string {
		sc := Builtin(t, "fear_control")
		sc.Agent.Fear = &fear
		h := NewHarness(t, sc, agent.DefaultConfig())
		res := h.Finish(500)
		if len(res) != 1 || !res[0].Success() {
			t.Fatalf("fear=%v results=%+v", fear, res)
		}
		d := h.World().Deliveries()
		if len(d) != 1 {
			t.Fatalf("fear=%v deliveries=%+v", fear, d)
		}
		return d[0].Object.Color
	}
	if got := run(0.8); got != "blue" {
		t.Fatalf("fear=0.8 delivered %s, want blue", got)
	}
	if got := run(0); got != "red" {
		t.Fatalf("fear=0 delivered %s, want red", got)
	}
}

func TestGrabReleaseExclusivity(t *testing.T) {
	h := NewBuiltin(t, "ball_and_goal")
	h.Check(func(tk episode.Tick) {
		w, mem := h.World(), h.Memory()
		held, holding := w.Holding()
		inWorld, inMemory := 0, 0
		for _, o := range w.Objects() {
			if !o.Object.IsGoal() {
				inWorld++
			}
		}
		for _, f := range mem.Found {
			if f.Object == held {
				inMemory++
			}
		}
		if holding && (inWorld != 0 || inMemory != 0) {
			t.Fatalf("tick %d: holding %v while world has %d and memory has %d", tk.Tick, held, inWorld, inMemory)
		}
		if !holding && inWorld != 1 {
			t.Fatalf("tick %d: not holding but world has %d balls", tk.Tick, inWorld)
		}
	})
	res := h.Finish(500)
	if !res[0].Success() {
		t.Fatalf("results=%+v", res)
	}
	if len(h.Rec.OfKind(agent.EventGrabbed)) != 1 || len(h.Rec.OfKind(agent.EventDelivered)) != 1 {
		t.Fatalf("grabbed/delivered events missing")
	}
}

func TestFiveRooms_RevisitsUseLongTermMemory(t *testing.T) {
	h := NewBuiltin(t, "five_rooms")
	res := h.Finish(1200)
	if len(res) != 5 {
		t.Fatalf("legs=%d", len(res))
	}
	wantRooms := []string{"A", "B", "A", "C", "A"}
	wantLoaded := []bool{false, false, true, false, true}
	for i, r := range res {
		if r.Room != wantRooms[i] || r.Loaded != wantLoaded[i] {
			t.Fatalf("leg %d: %+v", i, r)
		}
		if !r.Success() {
			t.Fatalf("leg %d (%s) failed: %+v", i, r.Room, r.Result)
		}
		if r.Warnings != "" {
			t.Fatalf("leg %d warnings: %s", i, r.Warnings)
		}
	}

	// The third leg enters A with the memory of the first visit, which the
	// rearrangement made stale.
	var entered, stale int
	for _, e := range h.Rec.Events() {
		if e.Kind == agent.EventRoomEntered && e.Room == "A" {
			entered++
		}
		if entered == 2 && e.Kind == agent.EventPredictionError && e.Room == "A" {
			stale++
		}
	}
	if stale == 0 {
		t.Fatalf("no prediction errors on the A revisit")
	}
	if got := h.Memory().Rooms(); len(got) != 3 {
		t.Fatalf("rooms in long-term memory=%v", got)
	}
}

func TestEpisode_DeterministicDigest(t *testing.T) {
	run := func() []string {
		h := NewBuiltin(t, "five_rooms")
		var digests []string
		for !h.E.Done() && len(digests) < 1200 {
			digests = append(digests, h.Step().Digest)
		}
		return digests
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("len %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("digest mismatch at tick %d", i)
		}
	}
}
