package memory

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"

	"gridscout.ai/internal/sim/grid"
)

// InternalMap holds the agent's last observed belief per cell.
type InternalMap map[grid.Pos]grid.CellKind

func (m InternalMap) Lookup(p grid.Pos) (grid.CellKind, bool) {
	k, ok := m[p]
	return k, ok
}

func (m InternalMap) Clone() InternalMap {
	out := make(InternalMap, len(m))
	for p, k := range m {
		out[p] = k
	}
	return out
}

type FoundObject struct {
	Object   grid.Object `json:"object"`
	InDanger bool        `json:"in_danger,omitempty"`
}

type FoundObjects map[grid.Pos]FoundObject

func (f FoundObjects) Clone() FoundObjects {
	out := make(FoundObjects, len(f))
	for p, o := range f {
		out[p] = o
	}
	return out
}

// Sorted returns entries ordered by position.
func (f FoundObjects) Sorted() []Sighting {
	out := make([]Sighting, 0, len(f))
	for p, o := range f {
		out = append(out, Sighting{Pos: p, FoundObject: o})
	}
	sort.Slice(out, func(i, j int) bool { return grid.Less(out[i].Pos, out[j].Pos) })
	return out
}

type Sighting struct {
	Pos grid.Pos `json:"pos"`
	FoundObject
}

// RoomMemory is one long-term snapshot of a room.
type RoomMemory struct {
	Map   InternalMap
	Found FoundObjects
}

// Memory is the agent's STM (current room) plus LTM (snapshots per room).
// It is populated only from the agent's own observations.
type Memory struct {
	Map     InternalMap
	Found   FoundObjects
	Visited map[grid.Pos]struct{}

	room string
	ltm  map[string]RoomMemory
}

func New() *Memory {
	return &Memory{
		Map:     InternalMap{},
		Found:   FoundObjects{},
		Visited: map[grid.Pos]struct{}{},
		ltm:     map[string]RoomMemory{},
	}
}

// RecordObservation upserts the belief for one cell and keeps Found consistent.
func (m *Memory) RecordObservation(obs grid.Observation) {
	m.Map[obs.Pos] = obs.Kind
	if obs.Kind == grid.ObjectCell && obs.Object != nil {
		m.Found[obs.Pos] = FoundObject{Object: *obs.Object, InDanger: obs.Danger}
		return
	}
	delete(m.Found, obs.Pos)
}

// RecordSelf observes the agent's own cell and marks it visited.
func (m *Memory) RecordSelf(obs grid.Observation) (PredictionError, bool) {
	pe, ok := m.Observe(obs)
	m.Visited[obs.Pos] = struct{}{}
	return pe, ok
}

// Observe compares a fresh observation with the prior belief, then records it.
func (m *Memory) Observe(obs grid.Observation) (PredictionError, bool) {
	pe, ok := m.DetectPredictionError(obs.Pos, obs.Kind)
	m.RecordObservation(obs)
	return pe, ok
}

// ForgetObject drops an object the agent removed from the world itself.
// The cell keeps its danger marking if the object was sighted in danger.
func (m *Memory) ForgetObject(p grid.Pos) {
	f, found := m.Found[p]
	delete(m.Found, p)
	if k, ok := m.Map[p]; ok && k == grid.ObjectCell {
		if found && f.InDanger {
			m.Map[p] = grid.Danger
		} else {
			m.Map[p] = grid.Empty
		}
	}
}

func (m *Memory) IsVisited(p grid.Pos) bool {
	_, ok := m.Visited[p]
	return ok
}

// IsFrontier reports whether p is a known empty or danger cell with a
// neighbor missing from the map. Neighbors known to be out of bounds do not
// count.
func (m *Memory) IsFrontier(p grid.Pos) bool {
	if k, ok := m.Map[p]; !ok || (k != grid.Empty && k != grid.Danger) {
		return false
	}
	for _, n := range p.Neighbors() {
		if _, known := m.Map[n]; !known {
			return true
		}
	}
	return false
}

func (m *Memory) HasReachableUnknown() bool {
	for p := range m.Map {
		if m.IsFrontier(p) {
			return true
		}
	}
	return false
}

// Frontier returns all frontier cells ordered by position.
func (m *Memory) Frontier() []grid.Pos {
	var out []grid.Pos
	for p := range m.Map {
		if m.IsFrontier(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return grid.Less(out[i], out[j]) })
	return out
}

// KnownEmpty returns every cell believed empty, ordered by position.
func (m *Memory) KnownEmpty() []grid.Pos {
	var out []grid.Pos
	for p, k := range m.Map {
		if k == grid.Empty {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return grid.Less(out[i], out[j]) })
	return out
}

// --- rooms ---

func (m *Memory) CurrentRoom() string { return m.room }

// EnterRoom snapshots the active room (if any) into LTM, then loads roomID's
// snapshot or starts empty. It reports whether a snapshot existed.
func (m *Memory) EnterRoom(roomID string) bool {
	if m.room != "" {
		m.saveToLTM()
	}
	m.room = roomID
	m.Visited = map[grid.Pos]struct{}{}
	if saved, ok := m.ltm[roomID]; ok {
		m.Map = saved.Map.Clone()
		m.Found = saved.Found.Clone()
		return true
	}
	m.Map = InternalMap{}
	m.Found = FoundObjects{}
	return false
}

func (m *Memory) LeaveRoom() {
	m.saveToLTM()
	m.room = ""
}

func (m *Memory) saveToLTM() {
	if m.room == "" {
		return
	}
	m.ltm[m.room] = RoomMemory{Map: m.Map.Clone(), Found: m.Found.Clone()}
}

// Room returns a copy of the LTM snapshot for roomID.
func (m *Memory) Room(roomID string) (RoomMemory, bool) {
	r, ok := m.ltm[roomID]
	if !ok {
		return RoomMemory{}, false
	}
	return RoomMemory{Map: r.Map.Clone(), Found: r.Found.Clone()}, true
}

func (m *Memory) Rooms() []string {
	out := make([]string, 0, len(m.ltm))
	for id := range m.ltm {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TotalCells counts remembered cells across STM and every other room in LTM.
func (m *Memory) TotalCells() int {
	total := len(m.Map)
	for id, r := range m.ltm {
		if id != m.room {
			total += len(r.Map)
		}
	}
	return total
}

// LongTerm returns a deep copy of LTM, including the active room's current STM.
func (m *Memory) LongTerm() map[string]RoomMemory {
	out := make(map[string]RoomMemory, len(m.ltm)+1)
	for id, r := range m.ltm {
		out[id] = RoomMemory{Map: r.Map.Clone(), Found: r.Found.Clone()}
	}
	if m.room != "" {
		out[m.room] = RoomMemory{Map: m.Map.Clone(), Found: m.Found.Clone()}
	}
	return out
}

// RestoreLongTerm replaces LTM. The active room, if any, is left untouched.
func (m *Memory) RestoreLongTerm(rooms map[string]RoomMemory) {
	m.ltm = make(map[string]RoomMemory, len(rooms))
	for id, r := range rooms {
		m.ltm[id] = RoomMemory{Map: r.Map.Clone(), Found: r.Found.Clone()}
	}
}

// Digest hashes STM contents in position order.
func (m *Memory) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	put := func(v int) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write([]byte(m.room + "\x00"))
	keys := make([]grid.Pos, 0, len(m.Map))
	for p := range m.Map {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return grid.Less(keys[i], keys[j]) })
	for _, p := range keys {
		put(p.X)
		put(p.Y)
		_, _ = h.Write([]byte{byte(m.Map[p])})
	}
	for _, s := range m.Found.Sorted() {
		put(s.Pos.X)
		put(s.Pos.Y)
		_, _ = h.Write([]byte(s.Object.Name + "\x00" + s.Object.Color + "\x00"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Render draws the believed map over its known bounding box. Unknown cells
// are blank; agent is drawn at self when it falls inside the box.
func (m *Memory) Render(self grid.Pos, facing grid.Dir) []string {
	if len(m.Map) == 0 {
		return nil
	}
	minX, minY, maxX, maxY := self.X, self.Y, self.X, self.Y
	for p := range m.Map {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	rows := make([]string, 0, maxY-minY+1)
	for y := minY; y <= maxY; y++ {
		var b strings.Builder
		for x := minX; x <= maxX; x++ {
			p := grid.Pos{X: x, Y: y}
			if p == self {
				b.WriteString(grid.AgentGlyph(facing))
				continue
			}
			if f, ok := m.Found[p]; ok {
				b.WriteByte(grid.ObjectGlyph(f.Object))
				continue
			}
			k, ok := m.Map[p]
			if !ok {
				b.WriteByte(' ')
				continue
			}
			b.WriteByte(grid.KindGlyph(k))
		}
		rows = append(rows, b.String())
	}
	return rows
}
