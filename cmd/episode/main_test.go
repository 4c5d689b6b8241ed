package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"gridscout.ai/internal/sim/scenario"
	"gridscout.ai/internal/sim/tuning"
)

func TestRunOnce_BatchRemembersRooms(t *testing.T) {
	dir := t.TempDir()
	sc, err := scenario.Builtin("ball_and_goal")
	if err != nil {
		t.Fatal(err)
	}
	var stats batchStats
	for i := 0; i < 2; i++ {
		sum, err := runOnce(context.Background(), runConfig{DataDir: dir, Scenario: sc, Tuning: tuning.Defaults(), DisableLog: true})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		stats.add(sum)
	}
	rs := stats.RoomSteps["main"]
	if rs == nil || rs.FreshLegs != 1 || rs.LoadedLegs != 1 {
		t.Fatalf("room stats=%+v", rs)
	}
	if stats.Runs != 2 || stats.Legs != 2 || stats.Completed < 1 {
		t.Fatalf("stats=%+v", stats)
	}

	var buf bytes.Buffer
	stats.print(&buf)
	if !strings.Contains(buf.String(), "runs=2 legs=2 completed=") || !strings.Contains(buf.String(), "room main") {
		t.Fatalf("print:\n%s", buf.String())
	}
}

func TestRunOnce_CancelledStops(t *testing.T) {
	sc, err := scenario.Builtin("five_rooms")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := runOnce(ctx, runConfig{DataDir: t.TempDir(), Scenario: sc, Tuning: tuning.Defaults(), DisableLog: true, FreshMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Legs) != 1 || sum.Legs[0].Outcome != "stopped" {
		t.Fatalf("summary=%+v", sum)
	}
}
