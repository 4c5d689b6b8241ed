// Package episode drives a controller through a scenario's itinerary, one
// room visit at a time, with optional wall drift between ticks.
package episode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"gridscout.ai/internal/command"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/memory"
	"gridscout.ai/internal/sim/scenario"
)

type Options struct {
	ID       string
	Scenario *scenario.Scenario
	// Agent is the base configuration; scenario overrides are applied on top.
	Agent agent.Config
	// WallMoveProbability applies to legs that do not set their own.
	WallMoveProbability float64
	Sink                agent.EventSink
	// LongTerm seeds the agent's long-term memory before the first leg.
	LongTerm map[string]memory.RoomMemory
}

type LegResult struct {
	Leg      int    `json:"leg"`
	Room     string `json:"room"`
	Loaded   bool   `json:"loaded,omitempty"`
	Warnings string `json:"warnings,omitempty"`
	agent.Result
}

// Tick is one episode tick: the controller's record plus world effects.
type Tick struct {
	agent.TickRecord
	Leg       int             `json:"leg"`
	WallMoves []grid.WallMove `json:"wall_moves,omitempty"`
	Digest    string          `json:"digest"`
	LegDone   *LegResult      `json:"leg_done,omitempty"`
	Finished  bool            `json:"finished,omitempty"`
}

type Episode struct {
	id   string
	sc   *scenario.Scenario
	cfg  agent.Config
	ctrl *agent.Controller

	worlds  map[string]*grid.World
	legs    []scenario.Leg
	leg     int
	loaded  bool
	warn    string
	wallRng *rand.Rand
	defP    float64

	results []LegResult
	done    bool
}

func New(opts Options) (*Episode, error) {
	if opts.Scenario == nil {
		return nil, fmt.Errorf("episode: nil scenario")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	cfg := opts.Scenario.Configure(opts.Agent)
	e := &Episode{
		id:      id,
		sc:      opts.Scenario,
		cfg:     cfg,
		worlds:  map[string]*grid.World{},
		legs:    opts.Scenario.Legs(),
		wallRng: rand.New(rand.NewSource(cfg.Seed ^ 0x5eed)),
		defP:    opts.WallMoveProbability,
	}
	if len(e.legs) == 0 {
		return nil, fmt.Errorf("episode: scenario %s has no legs", opts.Scenario.Name)
	}
	e.ctrl = agent.New(cfg, nil, opts.Sink)
	if opts.LongTerm != nil {
		e.ctrl.Memory().RestoreLongTerm(opts.LongTerm)
	}
	if err := e.startLeg(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Episode) ID() string                    { return e.id }
func (e *Episode) Scenario() *scenario.Scenario  { return e.sc }
func (e *Episode) Controller() *agent.Controller { return e.ctrl }
func (e *Episode) Config() agent.Config          { return e.cfg }
func (e *Episode) Done() bool                    { return e.done }
func (e *Episode) LegIndex() int                 { return e.leg }
func (e *Episode) Legs() int                     { return len(e.legs) }

func (e *Episode) Results() []LegResult {
	return append([]LegResult(nil), e.results...)
}

// World returns the ground truth of the room currently visited.
func (e *Episode) World() *grid.World {
	leg := e.legs[min(e.leg, len(e.legs)-1)]
	return e.worlds[leg.Room]
}

func (e *Episode) startLeg() error {
	leg := e.legs[e.leg]
	room, ok := e.sc.Room(leg.Room)
	if !ok {
		return fmt.Errorf("episode: unknown room %q", leg.Room)
	}
	w, ok := e.worlds[leg.Room]
	if !ok {
		var err error
		if w, err = room.Build(); err != nil {
			return fmt.Errorf("episode: room %s: %w", room.ID, err)
		}
		e.worlds[leg.Room] = w
	}
	// The agent goes back to the start first so changes never collide with
	// wherever the previous visit left it.
	if err := room.Reset(w); err != nil {
		return fmt.Errorf("episode: room %s: %w", room.ID, err)
	}
	e.warn = ""
	if err := leg.Changes.Apply(w); err != nil {
		e.warn = err.Error()
	}
	budget := e.cfg.StepBudget
	if leg.MaxSteps > 0 {
		budget = leg.MaxSteps
	}
	e.ctrl.SetStepBudget(budget)
	e.loaded = e.ctrl.EnterRoom(leg.Room, w)
	return nil
}

func (e *Episode) wallProbability() float64 {
	if p := e.legs[e.leg].WallMoveProbability; p != nil {
		return *p
	}
	return e.defP
}

// Step advances one tick.
func (e *Episode) Step() Tick {
	return e.step(nil)
}

// StepWith advances one tick executing cmd in place of the autonomous choice.
func (e *Episode) StepWith(cmd command.Command) Tick {
	return e.step(&cmd)
}

func (e *Episode) step(manual *command.Command) Tick {
	if e.done {
		return Tick{Leg: e.leg, Digest: e.Digest(), Finished: true}
	}
	var rec agent.TickRecord
	if manual != nil {
		rec = e.ctrl.StepWith(*manual)
	} else {
		rec = e.ctrl.Step()
	}
	t := Tick{TickRecord: rec, Leg: e.leg}
	if !rec.Done {
		t.WallMoves = e.World().Tick(e.wallRng, e.wallProbability())
	}
	t.Digest = e.Digest()

	if rec.Done {
		res, _ := e.ctrl.Result()
		lr := LegResult{Leg: e.leg, Room: e.legs[e.leg].Room, Loaded: e.loaded, Warnings: e.warn, Result: res}
		e.results = append(e.results, lr)
		t.LegDone = &lr
		e.ctrl.LeaveRoom()
		e.leg++
		if e.leg >= len(e.legs) || res.Outcome == agent.OutcomeStopped {
			e.done = true
		} else if err := e.startLeg(); err != nil {
			e.done = true
			t.LegDone.Warnings = err.Error()
		}
		t.Finished = e.done
	}
	return t
}

// Run steps until every leg finished or ctx is done.
func (e *Episode) Run(ctx context.Context) []LegResult {
	for !e.done {
		if ctx.Err() != nil {
			e.ctrl.Stop()
		}
		e.Step()
	}
	return e.Results()
}

func (e *Episode) Stop() { e.ctrl.Stop() }

// Digest combines ground truth and agent state.
func (e *Episode) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s", e.leg, e.World().Digest(), e.ctrl.Digest())
	return hex.EncodeToString(h.Sum(nil))
}

type Summary struct {
	ID        string      `json:"id"`
	Scenario  string      `json:"scenario"`
	Legs      []LegResult `json:"legs"`
	Steps     int         `json:"steps"`
	Delivered int         `json:"delivered"`
	Completed int         `json:"completed"`
}

func (e *Episode) Summary() Summary {
	s := Summary{ID: e.id, Scenario: e.sc.Name, Legs: e.Results()}
	for _, r := range s.Legs {
		s.Steps += r.Steps
		s.Delivered += r.Delivered
		if r.Success() {
			s.Completed++
		}
	}
	return s
}
