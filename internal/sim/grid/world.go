package grid

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

var (
	ErrBlocked        = errors.New("blocked by wall")
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrOccupied       = errors.New("cell occupied")
	ErrNothingToGrab  = errors.New("nothing to grab")
	ErrAlreadyHolding = errors.New("already holding")
	ErrNotHolding     = errors.New("not holding anything")
	ErrFixedObject    = errors.New("object cannot be grabbed")
	ErrDangerDrop     = errors.New("cannot release onto danger")
)

// World is the ground-truth grid. It is not safe for concurrent use.
type World struct {
	width  int
	height int

	terrain []CellKind // Empty, Wall or Danger
	objects map[Pos]Object
	agent   AgentState

	delivered []Delivery
}

type Delivery struct {
	Pos    Pos    `json:"pos"`
	Object Object `json:"object"`
	Goal   Object `json:"goal"`
}

func New(width, height int) (*World, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bad grid size %dx%d", width, height)
	}
	return &World{
		width:   width,
		height:  height,
		terrain: make([]CellKind, width*height),
		objects: map[Pos]Object{},
	}, nil
}

func (w *World) Width() int  { return w.width }
func (w *World) Height() int { return w.height }

func (w *World) InBounds(p Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < w.width && p.Y < w.height
}

func (w *World) idx(p Pos) int { return p.Y*w.width + p.X }

// Interior reports whether p is inside the grid and not on its outer ring.
func (w *World) Interior(p Pos) bool {
	return p.X >= 1 && p.Y >= 1 && p.X < w.width-1 && p.Y < w.height-1
}

// --- scenario construction ---

// AddBorder walls the outer ring.
func (w *World) AddBorder() {
	for x := 0; x < w.width; x++ {
		w.terrain[w.idx(Pos{X: x})] = Wall
		w.terrain[w.idx(Pos{X: x, Y: w.height - 1})] = Wall
	}
	for y := 0; y < w.height; y++ {
		w.terrain[w.idx(Pos{Y: y})] = Wall
		w.terrain[w.idx(Pos{X: w.width - 1, Y: y})] = Wall
	}
}

func (w *World) AddWall(p Pos) error { return w.setTerrain(p, Wall) }

func (w *World) AddDanger(p Pos) error { return w.setTerrain(p, Danger) }

func (w *World) setTerrain(p Pos, k CellKind) error {
	if !w.InBounds(p) {
		return fmt.Errorf("%v: %w", p, ErrOutOfBounds)
	}
	if _, ok := w.objects[p]; ok && k == Wall {
		return fmt.Errorf("%v: %w", p, ErrOccupied)
	}
	w.terrain[w.idx(p)] = k
	return nil
}

// ClearCell resets the terrain at p to empty.
func (w *World) ClearCell(p Pos) error { return w.setTerrain(p, Empty) }

func (w *World) AddObject(p Pos, obj Object) error {
	if !w.InBounds(p) {
		return fmt.Errorf("%v: %w", p, ErrOutOfBounds)
	}
	if w.terrain[w.idx(p)] == Wall {
		return fmt.Errorf("%v: %w", p, ErrBlocked)
	}
	if _, ok := w.objects[p]; ok {
		return fmt.Errorf("%v: %w", p, ErrOccupied)
	}
	if p == w.agent.Pos {
		return fmt.Errorf("%v: agent position: %w", p, ErrOccupied)
	}
	w.objects[p] = obj
	return nil
}

func (w *World) RemoveObject(p Pos) (Object, bool) {
	obj, ok := w.objects[p]
	if ok {
		delete(w.objects, p)
	}
	return obj, ok
}

// RelocateObject moves an object to another free cell. It models an
// environment change the agent does not witness.
func (w *World) RelocateObject(from, to Pos) error {
	obj, ok := w.objects[from]
	if !ok {
		return fmt.Errorf("%v: %w", from, ErrNothingToGrab)
	}
	delete(w.objects, from)
	if err := w.AddObject(to, obj); err != nil {
		w.objects[from] = obj
		return err
	}
	return nil
}

func (w *World) SetAgent(p Pos, facing Dir) error {
	if !w.InBounds(p) {
		return fmt.Errorf("%v: %w", p, ErrOutOfBounds)
	}
	if w.terrain[w.idx(p)] == Wall {
		return fmt.Errorf("%v: %w", p, ErrBlocked)
	}
	if _, ok := w.objects[p]; ok {
		return fmt.Errorf("%v: %w", p, ErrOccupied)
	}
	w.agent.Pos = p
	w.agent.Facing = facing
	return nil
}

// DropHeld discards whatever the agent holds.
func (w *World) DropHeld() (Object, bool) {
	if w.agent.Holding == nil {
		return Object{}, false
	}
	obj := *w.agent.Holding
	w.agent.Holding = nil
	return obj, true
}

// --- queries ---

// CellAt returns the terrain at p; out-of-bounds positions return OutOfBounds.
func (w *World) CellAt(p Pos) CellKind {
	if !w.InBounds(p) {
		return OutOfBounds
	}
	return w.terrain[w.idx(p)]
}

func (w *World) ObjectAt(p Pos) (Object, bool) {
	obj, ok := w.objects[p]
	return obj, ok
}

// Observe returns the ground-truth content of p.
func (w *World) Observe(p Pos) Observation {
	o := Observation{Pos: p, Kind: w.CellAt(p)}
	if o.Kind == Danger {
		o.Danger = true
	}
	if obj, ok := w.objects[p]; ok {
		obj := obj
		o.Kind = ObjectCell
		o.Object = &obj
	}
	return o
}

func (w *World) Agent() AgentState {
	a := w.agent
	if a.Holding != nil {
		h := *a.Holding
		a.Holding = &h
	}
	return a
}

func (w *World) Holding() (Object, bool) {
	if w.agent.Holding == nil {
		return Object{}, false
	}
	return *w.agent.Holding, true
}

func (w *World) Front() Pos { return w.agent.Pos.Add(w.agent.Facing.Delta()) }

func (w *World) SeeFront() Observation { return w.Observe(w.Front()) }

// Underfoot observes the agent's own cell.
func (w *World) Underfoot() Observation { return w.Observe(w.agent.Pos) }

// LookAround observes the four adjacent cells, indexed by Dir.
func (w *World) LookAround() [4]Observation {
	var out [4]Observation
	for _, d := range Dirs {
		out[d] = w.Observe(w.agent.Pos.Add(d.Delta()))
	}
	return out
}

// Objects returns all objects ordered by position.
func (w *World) Objects() []Placed {
	out := make([]Placed, 0, len(w.objects))
	for p, obj := range w.objects {
		out = append(out, Placed{Pos: p, Object: obj})
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i].Pos, out[j].Pos) })
	return out
}

type Placed struct {
	Pos    Pos    `json:"pos"`
	Object Object `json:"object"`
}

func (w *World) Deliveries() []Delivery {
	return append([]Delivery(nil), w.delivered...)
}

// --- primitives ---

func (w *World) MoveForward() error {
	front := w.Front()
	switch w.CellAt(front) {
	case OutOfBounds:
		return ErrOutOfBounds
	case Wall:
		return ErrBlocked
	}
	if _, ok := w.objects[front]; ok {
		return ErrOccupied
	}
	w.agent.Pos = front
	return nil
}

func (w *World) TurnLeft() Dir {
	w.agent.Facing = w.agent.Facing.Left()
	return w.agent.Facing
}

func (w *World) TurnRight() Dir {
	w.agent.Facing = w.agent.Facing.Right()
	return w.agent.Facing
}

func (w *World) Grab() (Object, error) {
	if w.agent.Holding != nil {
		return Object{}, ErrAlreadyHolding
	}
	front := w.Front()
	obj, ok := w.objects[front]
	if !ok {
		return Object{}, ErrNothingToGrab
	}
	if obj.IsGoal() {
		return Object{}, ErrFixedObject
	}
	delete(w.objects, front)
	w.agent.Holding = &obj
	return obj, nil
}

// Release puts the held object on the front cell. Releasing onto a goal
// marker consumes the marker and reports delivered=true.
func (w *World) Release() (delivered bool, err error) {
	if w.agent.Holding == nil {
		return false, ErrNotHolding
	}
	front := w.Front()
	switch w.CellAt(front) {
	case OutOfBounds:
		return false, ErrOutOfBounds
	case Wall:
		return false, ErrBlocked
	}
	obj := *w.agent.Holding
	if existing, ok := w.objects[front]; ok {
		if !existing.IsGoal() {
			return false, ErrOccupied
		}
		delivered = true
		w.delivered = append(w.delivered, Delivery{Pos: front, Object: obj, Goal: existing})
	} else if w.CellAt(front) == Danger {
		return false, ErrDangerDrop
	}
	w.objects[front] = obj
	w.agent.Holding = nil
	return delivered, nil
}

// Tick relocates each interior wall to a random orthogonal free interior
// cell with probability p. Border walls never move.
func (w *World) Tick(rng *rand.Rand, p float64) []WallMove {
	if p <= 0 || rng == nil {
		return nil
	}
	var walls []Pos
	for y := 1; y < w.height-1; y++ {
		for x := 1; x < w.width-1; x++ {
			pos := Pos{X: x, Y: y}
			if w.terrain[w.idx(pos)] == Wall {
				walls = append(walls, pos)
			}
		}
	}
	var moved []WallMove
	for _, from := range walls {
		if rng.Float64() >= p {
			continue
		}
		dirs := Dirs
		rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })
		for _, d := range dirs {
			to := from.Add(d.Delta())
			if !w.Interior(to) || w.terrain[w.idx(to)] == Wall {
				continue
			}
			if _, ok := w.objects[to]; ok {
				continue
			}
			if to == w.agent.Pos {
				continue
			}
			// The vacated cell reverts to empty, even if it was danger before the wall.
			w.terrain[w.idx(from)] = Empty
			w.terrain[w.idx(to)] = Wall
			moved = append(moved, WallMove{From: from, To: to})
			break
		}
	}
	return moved
}

// Digest hashes the ground-truth state.
func (w *World) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	put := func(v int) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
		_, _ = h.Write(tmp[:])
	}
	put(w.width)
	put(w.height)
	for _, k := range w.terrain {
		_, _ = h.Write([]byte{byte(k)})
	}
	for _, o := range w.Objects() {
		put(o.Pos.X)
		put(o.Pos.Y)
		_, _ = h.Write([]byte(o.Object.Name + "\x00" + o.Object.Color + "\x00"))
	}
	put(w.agent.Pos.X)
	put(w.agent.Pos.Y)
	put(int(w.agent.Facing))
	if w.agent.Holding != nil {
		_, _ = h.Write([]byte(w.agent.Holding.Name + "\x00" + w.agent.Holding.Color))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Render draws the ground truth, one string per row.
func (w *World) Render() []string {
	rows := make([]string, 0, w.height)
	for y := 0; y < w.height; y++ {
		var b strings.Builder
		for x := 0; x < w.width; x++ {
			p := Pos{X: x, Y: y}
			if p == w.agent.Pos {
				b.WriteString(AgentGlyph(w.agent.Facing))
				continue
			}
			if obj, ok := w.objects[p]; ok {
				b.WriteByte(ObjectGlyph(obj))
				continue
			}
			b.WriteByte(KindGlyph(w.terrain[w.idx(p)]))
		}
		rows = append(rows, b.String())
	}
	return rows
}

func AgentGlyph(d Dir) string {
	switch d {
	case North:
		return "^"
	case East:
		return ">"
	case South:
		return "v"
	}
	return "<"
}

func KindGlyph(k CellKind) byte {
	switch k {
	case Wall:
		return '#'
	case Danger:
		return '!'
	case OutOfBounds:
		return 'X'
	case ObjectCell:
		return 'o'
	}
	return '.'
}

func ObjectGlyph(o Object) byte {
	if o.IsGoal() {
		return 'G'
	}
	if o.Color != "" {
		return o.Color[0]
	}
	return 'o'
}
