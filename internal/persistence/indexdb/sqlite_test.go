package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/memory"
	"gridscout.ai/internal/sim/scenario"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick}

	_ = s.WriteTick("ep", episode.Tick{})
	s.Sink("ep").Emit(agent.Event{Kind: agent.EventPredictionError, Prediction: &memory.PredictionError{Kind: memory.Appeared}})
	s.Sink("ep").Emit(agent.Event{Kind: agent.EventAction})
	s.RecordEpisodeStart(EpisodeRow{ID: "ep"})
	s.RecordEpisodeEnd(episode.Summary{ID: "ep"})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropEventTotal != 1 {
		t.Fatalf("DropEventTotal=%d want=1", st.DropEventTotal)
	}
	if st.DropEpisodeTotal != 2 {
		t.Fatalf("DropEpisodeTotal=%d want=2", st.DropEpisodeTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_EpisodeRoundTrip(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "episodes.sqlite"), Options{CommitEvery: 16})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() { _ = idx.Close() }()

	sc, err := scenario.Builtin("five_rooms")
	if err != nil {
		t.Fatal(err)
	}
	e, err := episode.New(episode.Options{ID: "ep-1", Scenario: sc, Agent: agent.DefaultConfig(), Sink: idx.Sink("ep-1")})
	if err != nil {
		t.Fatal(err)
	}
	idx.RecordEpisodeStart(EpisodeRow{ID: e.ID(), Scenario: sc.Name, ScenarioDigest: sc.Digest(), Seed: e.Config().Seed})
	ticks := 0
	for !e.Done() {
		_ = idx.WriteTick(e.ID(), e.Step())
		ticks++
	}
	idx.RecordEpisodeEnd(e.Summary())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	eps, err := idx.Episodes(ctx, 10)
	if err != nil {
		t.Fatalf("Episodes: %v", err)
	}
	if len(eps) != 1 || eps[0].ID != "ep-1" || eps[0].FinishedAt == "" {
		t.Fatalf("episodes=%+v", eps)
	}
	sum := e.Summary()
	if eps[0].Legs != len(sum.Legs) || eps[0].Completed != sum.Completed || eps[0].Steps != sum.Steps {
		t.Fatalf("row=%+v summary=%+v", eps[0], sum)
	}

	n, err := idx.TickCount(ctx, "ep-1")
	if err != nil || n != ticks {
		t.Fatalf("TickCount=%d err=%v want %d", n, err, ticks)
	}
	legs, err := idx.Legs(ctx, "ep-1")
	if err != nil || len(legs) != len(sum.Legs) {
		t.Fatalf("legs=%+v err=%v", legs, err)
	}
	if legs[0].Loaded || !legs[2].Loaded {
		t.Fatalf("loaded flags: %+v", legs)
	}
	counts, err := idx.PredictionErrorCounts(ctx, "ep-1")
	if err != nil {
		t.Fatalf("PredictionErrorCounts: %v", err)
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		t.Fatalf("expected prediction errors from the room revisit")
	}
	hist, err := idx.StateHistogram(ctx, "ep-1")
	if err != nil || hist[string(agent.Exploring)] == 0 {
		t.Fatalf("hist=%v err=%v", hist, err)
	}
}

func TestSQLiteIndex_CloseIsIdempotent(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	_ = idx.WriteTick("ep", episode.Tick{})
	if idx.Stats().DropTickTotal != 0 {
		t.Fatalf("writes after close should be ignored, not counted")
	}
}
