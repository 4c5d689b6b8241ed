// Package scenario loads room layouts and visit itineraries from YAML.
package scenario

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/grid"
)

//go:embed scenario.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("scenario.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

type XY []int

func (p XY) Pos() grid.Pos {
	if len(p) < 2 {
		return grid.Pos{}
	}
	return grid.Pos{X: p[0], Y: p[1]}
}

type Rect struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

type ObjectSpec struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color,omitempty"`
	At    XY     `yaml:"at"`
}

func (o ObjectSpec) Object() grid.Object { return grid.Object{Name: o.Name, Color: o.Color} }

type Room struct {
	ID      string       `yaml:"id"`
	Width   int          `yaml:"width"`
	Height  int          `yaml:"height"`
	Border  *bool        `yaml:"border,omitempty"`
	Walls   []XY         `yaml:"walls,omitempty"`
	Danger  []Rect       `yaml:"danger,omitempty"`
	Objects []ObjectSpec `yaml:"objects,omitempty"`
	Start   XY           `yaml:"start"`
	Facing  string       `yaml:"facing,omitempty"`
}

type Move struct {
	From XY `yaml:"from"`
	To   XY `yaml:"to"`
}

// Changes are applied to a room's world right before a leg enters it.
type Changes struct {
	AddWalls      []XY         `yaml:"add_walls,omitempty"`
	RemoveWalls   []XY         `yaml:"remove_walls,omitempty"`
	RemoveObjects []XY         `yaml:"remove_objects,omitempty"`
	AddObjects    []ObjectSpec `yaml:"add_objects,omitempty"`
	MoveObjects   []Move       `yaml:"move_objects,omitempty"`
}

type Leg struct {
	Room                string   `yaml:"room"`
	MaxSteps            int      `yaml:"max_steps,omitempty"`
	WallMoveProbability *float64 `yaml:"wall_move_probability,omitempty"`
	Changes             *Changes `yaml:"changes,omitempty"`
}

type Overrides struct {
	StepBudget        *int               `yaml:"step_budget,omitempty"`
	Deliveries        *int               `yaml:"deliveries,omitempty"`
	ExhaustiveExplore *bool              `yaml:"exhaustive_explore,omitempty"`
	TargetName        *string            `yaml:"target_name,omitempty"`
	Fear              *float64           `yaml:"fear,omitempty"`
	Urgency           *float64           `yaml:"urgency,omitempty"`
	Dynamic           *bool              `yaml:"dynamic,omitempty"`
	Preference        map[string]float64 `yaml:"preference,omitempty"`
}

type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Rooms       []Room    `yaml:"rooms"`
	Itinerary   []Leg     `yaml:"itinerary,omitempty"`
	Agent       Overrides `yaml:"agent,omitempty"`

	raw []byte
}

// Parse validates raw YAML against the scenario schema, then decodes it.
func Parse(raw []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}
	var generic any
	if err := json.Unmarshal(js, &generic); err != nil {
		return nil, fmt.Errorf("scenario json: %w", err)
	}
	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("scenario schema: %w", err)
	}
	if err := sch.Validate(generic); err != nil {
		return nil, fmt.Errorf("scenario invalid: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("scenario decode: %w", err)
	}
	s.raw = append([]byte(nil), raw...)
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return &s, nil
}

func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Resolve returns the built-in scenario called nameOrPath, or loads it as a file.
func Resolve(nameOrPath string) (*Scenario, error) {
	if s, err := Builtin(nameOrPath); err == nil {
		return s, nil
	}
	return Load(nameOrPath)
}

func (s *Scenario) check() error {
	seen := map[string]bool{}
	for _, r := range s.Rooms {
		if seen[r.ID] {
			return fmt.Errorf("duplicate room %q", r.ID)
		}
		seen[r.ID] = true
		if _, err := r.Build(); err != nil {
			return fmt.Errorf("room %s: %w", r.ID, err)
		}
	}
	for i, leg := range s.Itinerary {
		if !seen[leg.Room] {
			return fmt.Errorf("itinerary[%d]: unknown room %q", i, leg.Room)
		}
	}
	return nil
}

// Raw returns the document bytes the scenario was parsed from.
func (s *Scenario) Raw() []byte { return s.raw }

func (s *Scenario) Digest() string {
	sum := sha256.Sum256(s.raw)
	return hex.EncodeToString(sum[:])
}

func (s *Scenario) Room(id string) (Room, bool) {
	for _, r := range s.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// Legs returns the itinerary, or one visit per room in declaration order.
func (s *Scenario) Legs() []Leg {
	if len(s.Itinerary) > 0 {
		return s.Itinerary
	}
	out := make([]Leg, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		out = append(out, Leg{Room: r.ID})
	}
	return out
}

// Configure applies the scenario's agent overrides to cfg.
func (s *Scenario) Configure(cfg agent.Config) agent.Config {
	o := s.Agent
	if o.StepBudget != nil {
		cfg.StepBudget = *o.StepBudget
	}
	if o.Deliveries != nil {
		cfg.Deliveries = *o.Deliveries
	}
	if o.ExhaustiveExplore != nil {
		cfg.ExhaustiveExplore = *o.ExhaustiveExplore
	}
	if o.TargetName != nil {
		cfg.TargetName = *o.TargetName
	}
	if o.Fear != nil {
		cfg.Qualia.Fear = *o.Fear
	}
	if o.Urgency != nil {
		cfg.Qualia.Urgency = *o.Urgency
	}
	if o.Dynamic != nil {
		cfg.Dynamic = *o.Dynamic
	}
	if len(o.Preference) > 0 {
		pref := make(map[string]float64, len(cfg.Qualia.Preference)+len(o.Preference))
		for k, v := range cfg.Qualia.Preference {
			pref[k] = v
		}
		for k, v := range o.Preference {
			pref[k] = v
		}
		cfg.Qualia.Preference = pref
	}
	return cfg
}

// Build constructs the ground-truth world for the room.
func (r Room) Build() (*grid.World, error) {
	w, err := grid.New(r.Width, r.Height)
	if err != nil {
		return nil, err
	}
	if r.Border == nil || *r.Border {
		w.AddBorder()
	}
	for _, p := range r.Walls {
		if err := w.AddWall(p.Pos()); err != nil {
			return nil, fmt.Errorf("wall: %w", err)
		}
	}
	for _, d := range r.Danger {
		for y := d.Y; y < d.Y+d.H; y++ {
			for x := d.X; x < d.X+d.W; x++ {
				if err := w.AddDanger(grid.Pos{X: x, Y: y}); err != nil {
					return nil, fmt.Errorf("danger: %w", err)
				}
			}
		}
	}
	facing := grid.North
	if r.Facing != "" {
		if facing, err = grid.ParseDir(r.Facing); err != nil {
			return nil, err
		}
	}
	if err := w.SetAgent(r.Start.Pos(), facing); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	for _, o := range r.Objects {
		if err := w.AddObject(o.At.Pos(), o.Object()); err != nil {
			return nil, fmt.Errorf("object %s: %w", o.Name, err)
		}
	}
	return w, nil
}

// Reset puts the agent back at the room's start, empty-handed.
func (r Room) Reset(w *grid.World) error {
	facing := grid.North
	if r.Facing != "" {
		var err error
		if facing, err = grid.ParseDir(r.Facing); err != nil {
			return err
		}
	}
	w.DropHeld()
	return w.SetAgent(r.Start.Pos(), facing)
}

// Apply mutates w. Every change is attempted; failures are joined.
func (c *Changes) Apply(w *grid.World) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, p := range c.RemoveObjects {
		if _, ok := w.RemoveObject(p.Pos()); !ok {
			errs = append(errs, fmt.Errorf("remove_objects %v: nothing there", p.Pos()))
		}
	}
	for _, m := range c.MoveObjects {
		if err := w.RelocateObject(m.From.Pos(), m.To.Pos()); err != nil {
			errs = append(errs, fmt.Errorf("move_objects %v: %w", m.From.Pos(), err))
		}
	}
	for _, p := range c.RemoveWalls {
		if err := w.ClearCell(p.Pos()); err != nil {
			errs = append(errs, fmt.Errorf("remove_walls %v: %w", p.Pos(), err))
		}
	}
	for _, p := range c.AddWalls {
		if err := w.AddWall(p.Pos()); err != nil {
			errs = append(errs, fmt.Errorf("add_walls %v: %w", p.Pos(), err))
		}
	}
	for _, o := range c.AddObjects {
		if err := w.AddObject(o.At.Pos(), o.Object()); err != nil {
			errs = append(errs, fmt.Errorf("add_objects %s: %w", o.Name, err))
		}
	}
	return errors.Join(errs...)
}
