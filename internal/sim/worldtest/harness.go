package worldtest

import (
	"testing"

	"gridscout.ai/internal/command"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/memory"
	"gridscout.ai/internal/sim/scenario"
)

// Harness is a small black-box test helper for driving an episode via exported APIs:
// - Step()/StepWith() advance one tick and run per-tick checks
// - OnEvent hooks see every controller event as it is emitted, so tests can
//   mutate the world at precise moments (e.g. right after a target is chosen)
// - Rec keeps the full event stream for assertions
type Harness struct {
	T   *testing.T
	E   *episode.Episode
	Rec *agent.Recorder

	hooks  []func(agent.Event)
	checks []func(episode.Tick)
}

func NewHarness(t *testing.T, sc *scenario.Scenario, cfg agent.Config) *Harness {
	t.Helper()
	h := &Harness{T: t, Rec: &agent.Recorder{}}
	sink := agent.Sinks{h.Rec, agent.SinkFunc(func(e agent.Event) {
		for _, fn := range h.hooks {
			fn(e)
		}
	})}
	e, err := episode.New(episode.Options{ID: "test", Scenario: sc, Agent: cfg, Sink: sink})
	if err != nil {
		t.Fatalf("episode.New: %v", err)
	}
	h.E = e
	return h
}

// NewBuiltin loads a built-in scenario and wraps it with default agent settings.
func NewBuiltin(t *testing.T, name string) *Harness {
	t.Helper()
	return NewHarness(t, Builtin(t, name), agent.DefaultConfig())
}

func Builtin(t *testing.T, name string) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.Builtin(name)
	if err != nil {
		t.Fatalf("scenario %s: %v", name, err)
	}
	return sc
}

func (h *Harness) OnEvent(fn func(agent.Event)) { h.hooks = append(h.hooks, fn) }

// Check registers fn to run after every tick.
func (h *Harness) Check(fn func(episode.Tick)) { h.checks = append(h.checks, fn) }

func (h *Harness) World() *grid.World           { return h.E.World() }
func (h *Harness) Ctrl() *agent.Controller      { return h.E.Controller() }
func (h *Harness) Memory() *memory.Memory       { return h.E.Controller().Memory() }
func (h *Harness) State() agent.State           { return h.E.Controller().State() }
func (h *Harness) Results() []episode.LegResult { return h.E.Results() }

func (h *Harness) Step() episode.Tick {
	h.T.Helper()
	return h.after(h.E.Step())
}

func (h *Harness) StepWith(cmd command.Command) episode.Tick {
	h.T.Helper()
	return h.after(h.E.StepWith(cmd))
}

func (h *Harness) after(t episode.Tick) episode.Tick {
	for _, fn := range h.checks {
		fn(t)
	}
	return t
}

// StepUntil steps until cond holds or max ticks pass; it fails the test on timeout.
func (h *Harness) StepUntil(max int, cond func(episode.Tick) bool) episode.Tick {
	h.T.Helper()
	for i := 0; i < max; i++ {
		t := h.Step()
		if cond(t) {
			return t
		}
		if h.E.Done() {
			h.T.Fatalf("episode finished before condition held (tick %d): %+v", t.Tick, h.E.Results())
		}
	}
	h.T.Fatalf("condition not reached within %d ticks", max)
	return episode.Tick{}
}

// Finish steps until the episode is done and returns the leg results.
func (h *Harness) Finish(max int) []episode.LegResult {
	h.T.Helper()
	for i := 0; i < max && !h.E.Done(); i++ {
		h.Step()
	}
	if !h.E.Done() {
		h.T.Fatalf("episode not finished within %d ticks", max)
	}
	return h.E.Results()
}

// EventsSince returns recorded events at or after index i of the stream.
func (h *Harness) EventsSince(i int) []agent.Event {
	ev := h.Rec.Events()
	if i >= len(ev) {
		return nil
	}
	return ev[i:]
}
