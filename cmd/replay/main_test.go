package main

import (
	"testing"

	"gridscout.ai/internal/command"
	persistlog "gridscout.ai/internal/persistence/log"
	"gridscout.ai/internal/session"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/scenario"
	"gridscout.ai/internal/sim/tuning"
)

func record(t *testing.T, dir string, manual []command.Command) persistlog.Episode {
	t.Helper()
	sc, err := scenario.Builtin("ball_and_goal")
	if err != nil {
		t.Fatal(err)
	}
	tune := tuning.Defaults()
	tune.WallMoveProbability = 0.2
	s, err := session.Open(session.Options{DataDir: dir, Scenario: sc, Tuning: tune, DisableIndex: true, LogEvents: true})
	if err != nil {
		t.Fatal(err)
	}
	e, err := episode.New(s.EpisodeOptions())
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range manual {
		s.OnTick(e.StepWith(c))
	}
	for !e.Done() {
		s.OnTick(e.Step())
	}
	if err := s.Finish(e.Summary(), e.Controller().Memory()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	ep, err := persistlog.ReadEpisode(s.LogDir())
	if err != nil {
		t.Fatalf("ReadEpisode: %v", err)
	}
	return ep
}

func TestVerify_ReproducesDigests(t *testing.T) {
	dir := t.TempDir()
	// The second episode starts from the first one's long-term memory.
	record(t, dir, nil)
	ep := record(t, dir, []command.Command{command.TurnLeft, command.Forward})
	if ep.Header.Memory == nil {
		t.Fatalf("second episode should embed starting memory")
	}

	rep, err := verify(ep, 0, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Checked != len(ep.Ticks) || rep.Manual != 2 || rep.Legs != 1 {
		t.Fatalf("report=%+v ticks=%d", rep, len(ep.Ticks))
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	ep := record(t, t.TempDir(), nil)
	last := len(ep.Ticks) - 1
	ep.Ticks[last].Digest = "00"
	if _, err := verify(ep, 0, 0); err == nil {
		t.Fatalf("expected digest mismatch")
	}
	if rep, err := verify(ep, 0, ep.Ticks[last-1].Tick); err != nil || rep.Checked != last {
		t.Fatalf("bounded verify rep=%+v err=%v", rep, err)
	}
}
