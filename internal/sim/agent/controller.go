package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync/atomic"

	"gridscout.ai/internal/command"
	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/logic/scoring"
	"gridscout.ai/internal/sim/memory"
	"gridscout.ai/internal/sim/qualia"
)

// Body is what the controller senses and acts through. *grid.World implements it.
type Body interface {
	command.Body
	Agent() grid.AgentState
	Underfoot() grid.Observation
}

type Target struct {
	Pos    grid.Pos    `json:"pos"`
	Object grid.Object `json:"object"`
}

// TickRecord summarizes one controller tick.
type TickRecord struct {
	Tick    uint64       `json:"tick"`
	Room    string       `json:"room,omitempty"`
	State   State        `json:"state"`
	Command string       `json:"command,omitempty"`
	Manual  bool         `json:"manual,omitempty"`
	Error   string       `json:"error,omitempty"`
	Pos     grid.Pos     `json:"pos"`
	Facing  grid.Dir     `json:"facing"`
	Holding *grid.Object `json:"holding,omitempty"`
	Errors  int          `json:"prediction_errors,omitempty"`
	Done    bool         `json:"done,omitempty"`
}

// maxTransitions bounds state changes evaluated within one tick.
const maxTransitions = 8

// Controller runs the sense/decide/act loop for one agent. Step and StepWith
// must be called from a single goroutine; Stop may be called from any.
type Controller struct {
	cfg    Config
	body   Body
	mem    *memory.Memory
	sink   EventSink
	rng    *rand.Rand
	drives *qualia.Layer

	state     State
	tick      uint64
	steps     int
	delivered int
	sensed    bool
	target    *Target
	goal      *grid.Object
	recovery  *sweep
	placed    map[grid.Pos]struct{}
	seen      map[grid.Pos]struct{}
	result    *Result

	tickErrors []memory.PredictionError
	lastCmd    string
	lastErr    error

	stop atomic.Bool
}

func New(cfg Config, body Body, sink EventSink) *Controller {
	if cfg.StepBudget <= 0 {
		cfg.StepBudget = DefaultConfig().StepBudget
	}
	if cfg.Deliveries <= 0 {
		cfg.Deliveries = 1
	}
	if sink == nil {
		sink = nopSink{}
	}
	c := &Controller{
		cfg:    cfg,
		body:   body,
		mem:    memory.New(),
		sink:   sink,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		state:  Exploring,
		placed: map[grid.Pos]struct{}{},
		seen:   map[grid.Pos]struct{}{},
	}
	if cfg.Dynamic {
		c.drives = qualia.New(map[qualia.Drive]float64{
			qualia.Fear:    cfg.Qualia.Fear,
			qualia.Urgency: cfg.Qualia.Urgency,
		}, cfg.Decay)
		c.drives.DesireColor = favorite(cfg.Qualia.Preference)
	}
	return c
}

func favorite(pref map[string]float64) string {
	best, bestV := "", -1.0
	for color, v := range pref {
		if v > bestV || (v == bestV && color < best) {
			best, bestV = color, v
		}
	}
	return best
}

func (c *Controller) Memory() *memory.Memory { return c.mem }
func (c *Controller) State() State           { return c.state }
func (c *Controller) Steps() int             { return c.steps }
func (c *Controller) Tick() uint64           { return c.tick }
func (c *Controller) Drives() *qualia.Layer  { return c.drives }
func (c *Controller) Config() Config         { return c.cfg }

func (c *Controller) Target() (Target, bool) {
	if c.target == nil {
		return Target{}, false
	}
	return *c.target, true
}

// Result reports the leg outcome once the controller went idle.
func (c *Controller) Result() (Result, bool) {
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

func (c *Controller) Done() bool { return c.result != nil }

// Stop asks the loop to end at the next tick.
func (c *Controller) Stop() { c.stop.Store(true) }

// EnterRoom switches STM to roomID and attaches the room's body. It resets
// the per-leg mission state and reports whether LTM had the room.
func (c *Controller) EnterRoom(roomID string, body Body) bool {
	loaded := c.mem.EnterRoom(roomID)
	c.body = body
	c.state = Exploring
	c.steps = 0
	c.delivered = 0
	c.sensed = false
	c.target = nil
	c.goal = nil
	c.recovery = nil
	c.result = nil
	c.placed = map[grid.Pos]struct{}{}
	c.seen = map[grid.Pos]struct{}{}
	c.emit(Event{Kind: EventRoomEntered, Loaded: loaded})
	return loaded
}

// SetStepBudget changes the per-leg budget. Non-positive values are ignored.
func (c *Controller) SetStepBudget(n int) {
	if n > 0 {
		c.cfg.StepBudget = n
	}
}

func (c *Controller) LeaveRoom() {
	c.emit(Event{Kind: EventRoomLeft})
	c.mem.LeaveRoom()
}

// Run steps until the controller finishes, Stop is called or ctx is done.
func (c *Controller) Run(ctx context.Context) Result {
	for {
		if ctx.Err() != nil {
			c.Stop()
		}
		if rec := c.Step(); rec.Done {
			return *c.result
		}
	}
}

// Step runs one tick: at most one primitive is issued.
func (c *Controller) Step() TickRecord {
	return c.step(nil)
}

// StepWith runs one tick using cmd instead of the autonomous decision.
func (c *Controller) StepWith(cmd command.Command) TickRecord {
	return c.step(&cmd)
}

func (c *Controller) step(manual *command.Command) TickRecord {
	if c.result != nil {
		return c.record(false)
	}
	c.tick++
	c.tickErrors = c.tickErrors[:0]
	c.lastCmd, c.lastErr = "", nil
	if !c.sensed {
		c.sense()
		c.sensed = true
	}

	if c.stop.Load() {
		c.finish(OutcomeStopped, "stop requested")
		return c.record(false)
	}

	c.steps++
	if manual != nil {
		c.apply(*manual, true)
	} else {
		c.decide()
	}
	if c.result == nil && c.steps >= c.cfg.StepBudget {
		c.finish(OutcomeBudget, "step budget exhausted")
	}
	if c.drives != nil {
		_, holding := c.holding()
		c.drives.Update(qualia.Input{
			Errors:      c.tickErrors,
			Found:       c.mem.Found,
			Map:         c.mem.Map,
			Pos:         c.pos(),
			Holding:     holding,
			StepsUsed:   c.steps,
			StepsBudget: c.cfg.StepBudget,
		})
	}
	return c.record(manual != nil)
}

func (c *Controller) record(manual bool) TickRecord {
	a := c.body.Agent()
	rec := TickRecord{
		Tick:    c.tick,
		Room:    c.mem.CurrentRoom(),
		State:   c.state,
		Command: c.lastCmd,
		Manual:  manual && c.lastCmd != "",
		Pos:     a.Pos,
		Facing:  a.Facing,
		Holding: a.Holding,
		Errors:  len(c.tickErrors),
		Done:    c.result != nil,
	}
	if c.lastErr != nil {
		rec.Error = c.lastErr.Error()
	}
	return rec
}

func (c *Controller) decide() {
	for i := 0; i < maxTransitions; i++ {
		var consumed bool
		switch c.state {
		case Exploring:
			consumed = c.explore()
		case SeekingTarget:
			consumed = c.seek()
		case Approaching:
			consumed = c.approach()
		case Grabbing:
			consumed = c.grab()
		case Delivering:
			consumed = c.deliver()
		case Recovering:
			consumed = c.recover()
		default:
			return
		}
		if consumed {
			return
		}
	}
	c.apply(command.Wait, false)
}

// --- sensing and acting ---

func (c *Controller) pos() grid.Pos { return c.body.Agent().Pos }

func (c *Controller) holding() (grid.Object, bool) {
	h := c.body.Agent().Holding
	if h == nil {
		return grid.Object{}, false
	}
	return *h, true
}

func (c *Controller) sense() {
	c.observe(c.body.Underfoot(), true)
	for _, o := range c.body.LookAround() {
		c.observe(o, false)
	}
}

func (c *Controller) observe(o grid.Observation, self bool) {
	c.seen[o.Pos] = struct{}{}
	prev, had := c.mem.Found[o.Pos]
	var (
		pe memory.PredictionError
		ok bool
	)
	if self {
		pe, ok = c.mem.RecordSelf(o)
	} else {
		pe, ok = c.mem.Observe(o)
	}
	if ok {
		c.tickErrors = append(c.tickErrors, pe)
		pe := pe
		c.emit(Event{Kind: EventPredictionError, Prediction: &pe})
	}
	if o.Object != nil && (!had || prev.Object != *o.Object) {
		obj := *o.Object
		p := o.Pos
		c.emit(Event{Kind: EventObjectFound, Target: &p, Object: &obj})
	}
}

// apply executes cmd and keeps memory consistent with its effect.
func (c *Controller) apply(cmd command.Command, manual bool) command.Outcome {
	before := c.body.Agent()
	front := before.Pos.Add(before.Facing.Delta())

	out := command.Execute(c.body, cmd)
	c.lastCmd = cmd.String()
	c.lastErr = out.Err

	if out.Err != nil {
		c.emit(Event{Kind: EventActionFailed, Command: cmd.String(), Manual: manual, Error: out.Err.Error()})
	} else if cmd != command.Wait {
		c.emit(Event{Kind: EventAction, Command: cmd.String(), Manual: manual})
	}

	switch cmd {
	case command.Forward, command.Release:
		c.sense()
	case command.Look:
		c.observe(c.body.Underfoot(), true)
		for _, o := range out.Looked {
			c.observe(o, false)
		}
	case command.Grab:
		if out.Grabbed != nil {
			c.mem.ForgetObject(front)
			obj := *out.Grabbed
			c.emit(Event{Kind: EventGrabbed, Target: &front, Object: &obj})
		} else {
			c.sense()
		}
	}
	return out
}

// face turns one step toward an adjacent cell. It reports whether it turned.
func (c *Controller) face(p grid.Pos) bool {
	a := c.body.Agent()
	want, ok := grid.DirTo(a.Pos, p)
	if !ok || a.Facing == want {
		return false
	}
	switch (int(want) - int(a.Facing) + 4) % 4 {
	case 1, 2:
		c.apply(command.TurnRight, false)
	default:
		c.apply(command.TurnLeft, false)
	}
	return true
}

func (c *Controller) stepToward(next grid.Pos) {
	if c.face(next) {
		return
	}
	c.apply(command.Forward, false)
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	from := c.state
	c.state = s
	c.emit(Event{Kind: EventStateChanged, From: from})
}

func (c *Controller) finish(o Outcome, reason string) {
	c.result = &Result{Outcome: o, Steps: c.steps, Delivered: c.delivered, Reason: reason}
	c.recovery = nil
	c.setState(Idle)
	res := *c.result
	c.emit(Event{Kind: EventFinished, Result: &res})
}

func (c *Controller) emit(e Event) {
	a := c.body.Agent()
	e.Tick = c.tick
	e.Room = c.mem.CurrentRoom()
	e.State = c.state
	e.Pos = a.Pos
	e.Facing = a.Facing
	c.sink.Emit(e)
}

func (c *Controller) scoringQualia() scoring.Qualia {
	if c.drives == nil {
		return c.cfg.Qualia
	}
	return scoring.Qualia{
		Preference: c.cfg.Qualia.Preference,
		Fear:       c.drives.Get(qualia.Fear),
		Urgency:    c.drives.Get(qualia.Urgency),
		Depletion:  float64(c.steps) / float64(c.cfg.StepBudget),
	}
}

// Digest hashes the agent's belief and mission state.
func (c *Controller) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|", c.mem.Digest(), c.state, c.steps, c.delivered)
	if c.target != nil {
		fmt.Fprintf(h, "%v|%s|", c.target.Pos, c.target.Object)
	}
	return hex.EncodeToString(h.Sum(nil))
}
