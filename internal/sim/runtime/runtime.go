// Package runtime runs an episode on a ticker and multiplexes it to
// observers. Operator commands are buffered and drained one per tick.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gridscout.ai/internal/command"
	"gridscout.ai/internal/lexicon"
	"gridscout.ai/internal/narrate"
	"gridscout.ai/internal/protocol"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
)

var (
	ErrBusy     = errors.New("command buffer full")
	ErrFinished = errors.New("episode finished")
)

type Options struct {
	Episode    episode.Options
	Lexicon    *lexicon.Lexicon
	TickRateHz int
	// MaxPending bounds buffered manual commands.
	MaxPending int
	// ObserverQueue is the default per-observer frame buffer.
	ObserverQueue int
	Logger        *log.Logger

	OnTick   func(episode.Tick)
	OnFinish func(episode.Summary)
}

type Runtime struct {
	ep   *episode.Episode
	lex  *lexicon.Lexicon
	log  *log.Logger
	rate int

	maxPending int
	obsQueue   int
	onTick     func(episode.Tick)
	onFinish   func(episode.Summary)

	mu      sync.Mutex
	pending []command.Command

	obsMu     sync.Mutex
	observers map[string]*Observer

	stateMu sync.RWMutex
	state   protocol.TickMsg

	ticks    atomic.Uint64
	finished atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

type Observer struct {
	ID  string
	Out chan []byte

	name    string
	events  bool
	render  bool
	dropped atomic.Uint64
}

func (o *Observer) Dropped() uint64 { return o.dropped.Load() }

type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Pending   int    `json:"pending"`
	Observers int    `json:"observers"`
	Dropped   uint64 `json:"dropped_frames"`
	Finished  bool   `json:"finished"`
}

func New(opts Options) (*Runtime, error) {
	r := &Runtime{
		lex:        opts.Lexicon,
		log:        opts.Logger,
		rate:       opts.TickRateHz,
		maxPending: opts.MaxPending,
		obsQueue:   opts.ObserverQueue,
		onTick:     opts.OnTick,
		onFinish:   opts.OnFinish,
		observers:  map[string]*Observer{},
		done:       make(chan struct{}),
	}
	if r.lex == nil {
		r.lex = lexicon.New()
	}
	if r.rate <= 0 {
		r.rate = 5
	}
	if r.maxPending <= 0 {
		r.maxPending = 64
	}
	if r.obsQueue <= 0 {
		r.obsQueue = 64
	}

	eo := opts.Episode
	eo.Sink = agent.Sinks{agent.SinkFunc(r.emit), eo.Sink}
	ep, err := episode.New(eo)
	if err != nil {
		return nil, err
	}
	r.ep = ep
	r.state = r.snapshot(episode.Tick{Leg: ep.LegIndex()})
	return r, nil
}

// Episode is only safe to inspect while Run is not active.
func (r *Runtime) Episode() *episode.Episode { return r.ep }
func (r *Runtime) Lexicon() *lexicon.Lexicon { return r.lex }
func (r *Runtime) TickRateHz() int           { return r.rate }
func (r *Runtime) Done() <-chan struct{}     { return r.done }
func (r *Runtime) Finished() bool            { return r.finished.Load() }

// Run ticks until the episode ends or ctx is cancelled. Cancellation stops
// the agent and lets the final tick record the stop.
func (r *Runtime) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(r.rate))
	defer ticker.Stop()

	for !r.finished.Load() {
		select {
		case <-ctx.Done():
			r.ep.Stop()
			for !r.finished.Load() {
				r.Tick()
			}
			return ctx.Err()
		case <-ticker.C:
			r.Tick()
		}
	}
	return nil
}

// Stop ends the episode at the next tick.
func (r *Runtime) Stop() { r.ep.Stop() }

// Tick advances the episode by one tick, executing the oldest buffered
// command if there is one. It reports false once the episode has finished.
func (r *Runtime) Tick() (episode.Tick, bool) {
	if r.finished.Load() {
		return episode.Tick{}, false
	}
	var tk episode.Tick
	if cmd, ok := r.next(); ok {
		tk = r.ep.StepWith(cmd)
	} else {
		tk = r.ep.Step()
	}
	r.ticks.Add(1)

	msg := r.snapshot(tk)
	r.stateMu.Lock()
	r.state = msg
	r.stateMu.Unlock()
	r.broadcastTick(msg)

	if r.onTick != nil {
		r.onTick(tk)
	}
	if tk.Finished {
		r.finish()
	}
	return tk, true
}

func (r *Runtime) finish() {
	r.finished.Store(true)
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	if r.onFinish != nil {
		r.onFinish(r.ep.Summary())
	}
	r.doneOnce.Do(func() { close(r.done) })
	if r.log != nil {
		sum := r.ep.Summary()
		r.log.Printf("episode %s finished: %d/%d legs complete, %d steps", sum.ID, sum.Completed, len(sum.Legs), sum.Steps)
	}
}

func (r *Runtime) next() (command.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return 0, false
	}
	c := r.pending[0]
	r.pending = r.pending[1:]
	return c, true
}

func (r *Runtime) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Submit resolves text through the lexicon and buffers the resulting
// commands. A sequence is accepted whole or not at all.
func (r *Runtime) Submit(text string) (lexicon.Match, int, error) {
	if r.finished.Load() {
		return lexicon.Match{}, 0, ErrFinished
	}
	m, err := r.lex.Lookup(text)
	if err != nil {
		return lexicon.Match{}, r.Pending(), err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending)+len(m.Commands) > r.maxPending {
		return m, len(r.pending), ErrBusy
	}
	r.pending = append(r.pending, m.Commands...)
	return m, len(r.pending), nil
}

// Teach learns phrase as the named command sequence.
func (r *Runtime) Teach(phrase string, names []string) ([]command.Command, error) {
	cmds := make([]command.Command, 0, len(names))
	for _, n := range names {
		c, err := command.Parse(n)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	if err := r.lex.Learn(phrase, cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

// Handle answers a COMMAND frame.
func (r *Runtime) Handle(msg protocol.CommandMsg) protocol.ReplyMsg {
	reply := protocol.ReplyMsg{Type: protocol.TypeReply, ProtocolVersion: protocol.Version, ReqID: msg.ReqID}
	if strings.TrimSpace(msg.Text) == "" {
		reply.Code, reply.Message = protocol.ErrBadRequest, "empty text"
		return reply
	}

	if len(msg.Teach) > 0 {
		cmds, err := r.Teach(msg.Text, msg.Teach)
		if err != nil {
			reply.Code, reply.Message = codeFor(err), err.Error()
			return reply
		}
		reply.Accepted = true
		reply.Phrase = msg.Text
		reply.Source = string(lexicon.SourceLearned)
		reply.Commands = commandNames(cmds)
		reply.Message = fmt.Sprintf("learned %q", msg.Text)
		return reply
	}

	m, pending, err := r.Submit(msg.Text)
	reply.Pending = pending
	if err != nil {
		reply.Code, reply.Message = codeFor(err), err.Error()
		return reply
	}
	reply.Accepted = true
	reply.Phrase = m.Phrase
	reply.Source = string(m.Source)
	reply.Commands = commandNames(m.Commands)
	return reply
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, lexicon.ErrUnknownPhrase):
		return protocol.ErrUnknownPhrase
	case errors.Is(err, command.ErrUnknown):
		return protocol.ErrUnknownCommand
	case errors.Is(err, lexicon.ErrEmptyPhrase), errors.Is(err, lexicon.ErrEmptySequence):
		return protocol.ErrBadRequest
	case errors.Is(err, ErrBusy):
		return protocol.ErrBusy
	case errors.Is(err, ErrFinished):
		return protocol.ErrFinished
	default:
		return protocol.ErrInternal
	}
}

func commandNames(cmds []command.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}

// State returns the most recent tick frame, including renders.
func (r *Runtime) State() protocol.TickMsg {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Runtime) snapshot(tk episode.Tick) protocol.TickMsg {
	ctrl := r.ep.Controller()
	mem := ctrl.Memory()
	msg := protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		EpisodeID:       r.ep.ID(),
		Tick:            tk.Tick,
		Leg:             tk.Leg,
		Room:            mem.CurrentRoom(),
		State:           string(ctrl.State()),
		Command:         tk.Command,
		Manual:          tk.Manual,
		Error:           tk.Error,
		Steps:           ctrl.Steps(),
		Known:           len(mem.Map),
		Digest:          tk.Digest,
		Pending:         r.Pending(),
		Finished:        tk.Finished,
	}
	if msg.Digest == "" {
		msg.Digest = r.ep.Digest()
	}

	w := r.ep.World()
	a := w.Agent()
	msg.Pos = [2]int{a.Pos.X, a.Pos.Y}
	msg.Facing = a.Facing.String()
	if a.Holding != nil {
		msg.Holding = a.Holding.String()
	}
	if t, ok := ctrl.Target(); ok {
		msg.Target = t.Object.String()
	}
	if d := ctrl.Drives(); d != nil {
		msg.Drives = map[string]float64{}
		for k, v := range d.Snapshot() {
			msg.Drives[string(k)] = v
		}
	}
	msg.World = w.Render()
	msg.Memory = mem.Render(a.Pos, a.Facing)

	if l := tk.LegDone; l != nil {
		msg.LegDone = &protocol.LegDone{
			Leg:       l.Leg,
			Room:      l.Room,
			Outcome:   string(l.Outcome),
			Steps:     l.Steps,
			Delivered: l.Delivered,
			Reason:    l.Reason,
		}
	}
	return msg
}

// Subscribe registers an observer and returns its WELCOME frame.
func (r *Runtime) Subscribe(sub protocol.SubscribeMsg) (*Observer, protocol.WelcomeMsg) {
	q := sub.MaxQueue
	if q <= 0 {
		q = r.obsQueue
	}
	if q > 1024 {
		q = 1024
	}
	o := &Observer{
		ID:     uuid.NewString(),
		Out:    make(chan []byte, q),
		name:   sub.Name,
		events: sub.Events,
		render: sub.Render,
	}
	r.obsMu.Lock()
	r.observers[o.ID] = o
	r.obsMu.Unlock()

	st := r.State()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       o.ID,
		EpisodeID:       r.ep.ID(),
		Scenario:        r.ep.Scenario().Name,
		TickRateHz:      r.rate,
		StepBudget:      r.ep.Config().StepBudget,
		Legs:            r.ep.Legs(),
		Tick:            st.Tick,
	}
	if r.log != nil {
		r.log.Printf("observer %s joined (%s)", o.ID, sub.Name)
	}
	return o, welcome
}

func (r *Runtime) Unsubscribe(id string) {
	r.obsMu.Lock()
	o, ok := r.observers[id]
	delete(r.observers, id)
	r.obsMu.Unlock()
	if ok && r.log != nil {
		r.log.Printf("observer %s left (dropped=%d)", id, o.Dropped())
	}
}

func (r *Runtime) broadcastTick(msg protocol.TickMsg) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	if len(r.observers) == 0 {
		return
	}
	full, _ := json.Marshal(msg)
	lite := msg
	lite.World, lite.Memory = nil, nil
	short, _ := json.Marshal(lite)
	for _, o := range r.observers {
		if o.render {
			sendLatest(o, full)
		} else {
			sendLatest(o, short)
		}
	}
}

// emit runs on the ticking goroutine, inside the episode step.
func (r *Runtime) emit(e agent.Event) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	var b []byte
	for _, o := range r.observers {
		if !o.events {
			continue
		}
		if b == nil {
			raw, _ := json.Marshal(e)
			b, _ = json.Marshal(protocol.EventMsg{
				Type:            protocol.TypeEvent,
				ProtocolVersion: protocol.Version,
				Tick:            e.Tick,
				Kind:            string(e.Kind),
				Line:            narrate.Format(e),
				Event:           raw,
			})
		}
		sendLatest(o, b)
	}
}

// sendLatest drops the oldest queued frame when the observer is behind.
func sendLatest(o *Observer, b []byte) {
	select {
	case o.Out <- b:
		return
	default:
	}
	select {
	case <-o.Out:
		o.dropped.Add(1)
	default:
	}
	select {
	case o.Out <- b:
	default:
		o.dropped.Add(1)
	}
}

func (r *Runtime) Stats() Stats {
	st := Stats{Ticks: r.ticks.Load(), Pending: r.Pending(), Finished: r.finished.Load()}
	r.obsMu.Lock()
	st.Observers = len(r.observers)
	for _, o := range r.observers {
		st.Dropped += o.Dropped()
	}
	r.obsMu.Unlock()
	return st
}
