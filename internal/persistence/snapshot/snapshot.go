package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/memory"
)

const Version = 1

// Header is also written as a plain JSON line ahead of the gob body so the
// file can be inspected without decoding it.
type Header struct {
	Version   int    `json:"version"`
	AgentID   string `json:"agent_id,omitempty"`
	EpisodeID string `json:"episode_id,omitempty"`
	Rooms     int    `json:"rooms"`
	Cells     int    `json:"cells"`
	WrittenAt string `json:"written_at"`
}

type CellV1 struct {
	X    int
	Y    int
	Kind uint8
}

type FoundV1 struct {
	X        int
	Y        int
	Name     string
	Color    string
	InDanger bool
}

type RoomV1 struct {
	ID    string
	Cells []CellV1
	Found []FoundV1
}

// SnapshotV1 is the agent's long-term memory: one entry per remembered room.
type SnapshotV1 struct {
	Header Header
	Rooms  []RoomV1
}

// FromLongTerm encodes rooms in id order with cells in position order.
func FromLongTerm(ltm map[string]memory.RoomMemory, hdr Header) SnapshotV1 {
	ids := make([]string, 0, len(ltm))
	for id := range ltm {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snap := SnapshotV1{Header: hdr}
	snap.Header.Version = Version
	for _, id := range ids {
		r := ltm[id]
		room := RoomV1{ID: id}
		for p, k := range r.Map {
			room.Cells = append(room.Cells, CellV1{X: p.X, Y: p.Y, Kind: uint8(k)})
		}
		sort.Slice(room.Cells, func(i, j int) bool {
			return grid.Less(grid.Pos{X: room.Cells[i].X, Y: room.Cells[i].Y}, grid.Pos{X: room.Cells[j].X, Y: room.Cells[j].Y})
		})
		for _, s := range r.Found.Sorted() {
			room.Found = append(room.Found, FoundV1{X: s.Pos.X, Y: s.Pos.Y, Name: s.Object.Name, Color: s.Object.Color, InDanger: s.InDanger})
		}
		snap.Header.Cells += len(room.Cells)
		snap.Rooms = append(snap.Rooms, room)
	}
	snap.Header.Rooms = len(snap.Rooms)
	return snap
}

// LongTerm decodes the snapshot back into memory form.
func (s SnapshotV1) LongTerm() (map[string]memory.RoomMemory, error) {
	out := make(map[string]memory.RoomMemory, len(s.Rooms))
	for _, r := range s.Rooms {
		if _, dup := out[r.ID]; dup {
			return nil, fmt.Errorf("duplicate room %q", r.ID)
		}
		rm := memory.RoomMemory{Map: memory.InternalMap{}, Found: memory.FoundObjects{}}
		for _, c := range r.Cells {
			k := grid.CellKind(c.Kind)
			if k > grid.ObjectCell {
				return nil, fmt.Errorf("room %s: bad cell kind %d at (%d,%d)", r.ID, c.Kind, c.X, c.Y)
			}
			rm.Map[grid.Pos{X: c.X, Y: c.Y}] = k
		}
		for _, f := range r.Found {
			p := grid.Pos{X: f.X, Y: f.Y}
			if rm.Map[p] != grid.ObjectCell {
				return nil, fmt.Errorf("room %s: object at %v not in map", r.ID, p)
			}
			rm.Found[p] = memory.FoundObject{Object: grid.Object{Name: f.Name, Color: f.Color}, InDanger: f.InDanger}
		}
		out[r.ID] = rm
	}
	return out, nil
}

// WriteSnapshot writes atomically: the file is renamed into place only after
// the compressor has been closed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if snap.Header.WrittenAt == "" {
		snap.Header.WrittenAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line first; the gob body repeats it.
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var hdr Header
	if err := json.Unmarshal(line, &hdr); err != nil {
		return snap, fmt.Errorf("parse header: %w", err)
	}
	if hdr.Version != Version {
		return snap, fmt.Errorf("snapshot version %d unsupported", hdr.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var hdr Header
	f, err := os.Open(path)
	if err != nil {
		return hdr, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return hdr, err
	}
	return hdr, json.Unmarshal(line, &hdr)
}

// Save writes m's long-term memory to path.
func Save(path string, m *memory.Memory, hdr Header) error {
	return WriteSnapshot(path, FromLongTerm(m.LongTerm(), hdr))
}

// Load restores long-term memory from path into m. A missing file is not an
// error and reports loaded=false.
func Load(path string, m *memory.Memory) (loaded bool, err error) {
	snap, err := ReadSnapshot(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	ltm, err := snap.LongTerm()
	if err != nil {
		return false, err
	}
	m.RestoreLongTerm(ltm)
	return true, nil
}
