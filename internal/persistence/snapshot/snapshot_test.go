package snapshot

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/memory"
)

func sampleMemory() *memory.Memory {
	m := memory.New()
	m.EnterRoom("A")
	m.RecordObservation(grid.Observation{Pos: grid.Pos{X: 1, Y: 1}, Kind: grid.Empty})
	m.RecordObservation(grid.Observation{Pos: grid.Pos{X: 0, Y: 1}, Kind: grid.Wall})
	ball := grid.Object{Name: "ball", Color: "red"}
	m.RecordObservation(grid.Observation{Pos: grid.Pos{X: 2, Y: 1}, Kind: grid.ObjectCell, Object: &ball, Danger: true})
	m.EnterRoom("B")
	m.RecordObservation(grid.Observation{Pos: grid.Pos{X: 3, Y: 3}, Kind: grid.Danger, Danger: true})
	return m
}

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent", "ltm.snap.zst")
	m := sampleMemory()
	if err := Save(path, m, Header{AgentID: "scout"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}

	hdr, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.Version != Version || hdr.Rooms != 2 || hdr.Cells != 4 || hdr.AgentID != "scout" {
		t.Fatalf("hdr=%+v", hdr)
	}

	fresh := memory.New()
	loaded, err := Load(path, fresh)
	if err != nil || !loaded {
		t.Fatalf("Load: loaded=%v err=%v", loaded, err)
	}
	if !reflect.DeepEqual(fresh.LongTerm(), m.LongTerm()) {
		t.Fatalf("long-term memory differs after round trip")
	}
	if !fresh.EnterRoom("A") {
		t.Fatalf("room A not restored")
	}
	if f, ok := fresh.Found[grid.Pos{X: 2, Y: 1}]; !ok || !f.InDanger || f.Object.Color != "red" {
		t.Fatalf("found=%+v", fresh.Found)
	}
}

func TestLoad_Missing(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "none.snap.zst"), memory.New())
	if err != nil || loaded {
		t.Fatalf("loaded=%v err=%v", loaded, err)
	}
}

func TestLongTerm_RejectsInconsistentRoom(t *testing.T) {
	snap := SnapshotV1{Rooms: []RoomV1{{
		ID:    "A",
		Cells: []CellV1{{X: 1, Y: 1, Kind: uint8(grid.Empty)}},
		Found: []FoundV1{{X: 1, Y: 1, Name: "ball"}},
	}}}
	if _, err := snap.LongTerm(); err == nil {
		t.Fatalf("expected error for object outside map")
	}
	snap = SnapshotV1{Rooms: []RoomV1{{ID: "A", Cells: []CellV1{{Kind: 99}}}}}
	if _, err := snap.LongTerm(); err == nil {
		t.Fatalf("expected error for bad kind")
	}
}
