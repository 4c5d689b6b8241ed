package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gridscout.ai/internal/persistence/indexdb"
	"gridscout.ai/internal/persistence/snapshot"
	"gridscout.ai/internal/session"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/scenario"
	"gridscout.ai/internal/sim/tuning"
)

func runFiveRooms(t *testing.T, dir string) string {
	t.Helper()
	sc, err := scenario.Builtin("five_rooms")
	if err != nil {
		t.Fatal(err)
	}
	s, err := session.Open(session.Options{DataDir: dir, Scenario: sc, Tuning: tuning.Defaults(), DisableLog: true})
	if err != nil {
		t.Fatal(err)
	}
	e, err := episode.New(s.EpisodeOptions())
	if err != nil {
		t.Fatal(err)
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
	return s.ID
}

func TestRunQuery(t *testing.T) {
	dir := t.TempDir()
	id := runFiveRooms(t, dir)

	idx, err := indexdb.OpenSQLite(session.IndexPath(dir), indexdb.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var buf bytes.Buffer
	if err := runQuery(ctx, &buf, idx, "episodes", "", 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"id":"`+id+`"`) {
		t.Fatalf("episodes:\n%s", buf.String())
	}

	buf.Reset()
	if err := runQuery(ctx, &buf, idx, "legs", "", 10); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n < 2 {
		t.Fatalf("legs=%d:\n%s", n, buf.String())
	}

	buf.Reset()
	if err := runQuery(ctx, &buf, idx, "states", id, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "EXPLORING") {
		t.Fatalf("states:\n%s", buf.String())
	}

	if err := runQuery(ctx, &buf, idx, "bogus", id, 10); err == nil {
		t.Fatalf("unknown query should fail")
	}
}

func TestForgetRooms(t *testing.T) {
	dir := t.TempDir()
	runFiveRooms(t, dir)
	in := session.LongTermPath(dir, "scout")
	before, err := snapshot.ReadSnapshot(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(before.Rooms) < 2 {
		t.Fatalf("expected several remembered rooms, got %d", len(before.Rooms))
	}
	drop := before.Rooms[0].ID

	out := filepath.Join(dir, "trimmed.snap.zst")
	n, err := forget(in, out, []string{drop, "nope"})
	if err != nil || n != 1 {
		t.Fatalf("forget n=%d err=%v", n, err)
	}
	after, err := snapshot.ReadSnapshot(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Rooms) != len(before.Rooms)-1 || after.Header.Rooms != len(after.Rooms) {
		t.Fatalf("after=%+v", after.Header)
	}
	for _, r := range after.Rooms {
		if r.ID == drop {
			t.Fatalf("room %s still remembered", drop)
		}
	}

	var buf bytes.Buffer
	if err := printMemory(&buf, out); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "room "+drop+" ") {
		t.Fatalf("memory listing:\n%s", buf.String())
	}

	if n, err := forget(out, out, []string{"*"}); err != nil || n != len(after.Rooms) {
		t.Fatalf("forget all n=%d err=%v", n, err)
	}
}
