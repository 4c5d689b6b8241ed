// Package narrate is the presentation layer for controller events.
package narrate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/qualia"
	"gridscout.ai/internal/verbalizer"
)

const defaultKeep = 64

// Narrator is an agent.EventSink that turns events into text lines. It keeps
// the most recent lines and optionally echoes them to a logger.
type Narrator struct {
	logger *log.Logger
	verb   verbalizer.Verbalizer
	quiet  map[agent.EventKind]bool

	mu    sync.Mutex
	lines []string
	keep  int
	last  agent.Event
}

type Options struct {
	Logger     *log.Logger
	Verbalizer verbalizer.Verbalizer
	Keep       int
	// Verbose includes per-step actions and state changes.
	Verbose bool
}

func New(opts Options) *Narrator {
	n := &Narrator{
		logger: opts.Logger,
		verb:   opts.Verbalizer,
		keep:   opts.Keep,
		quiet:  map[agent.EventKind]bool{},
	}
	if n.verb == nil {
		n.verb = verbalizer.Nop{}
	}
	if n.keep <= 0 {
		n.keep = defaultKeep
	}
	if !opts.Verbose {
		n.quiet[agent.EventAction] = true
		n.quiet[agent.EventStateChanged] = true
	}
	return n
}

func (n *Narrator) Emit(e agent.Event) {
	n.mu.Lock()
	n.last = e
	if n.quiet[e.Kind] {
		n.mu.Unlock()
		return
	}
	line := Format(e)
	n.lines = append(n.lines, line)
	if len(n.lines) > n.keep {
		n.lines = append(n.lines[:0], n.lines[len(n.lines)-n.keep:]...)
	}
	n.mu.Unlock()
	if n.logger != nil {
		n.logger.Print(line)
	}
}

func (n *Narrator) Lines() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.lines...)
}

// Say verbalizes the controller's current state, mentioning the most recent event.
func (n *Narrator) Say(ctx context.Context, c *agent.Controller) (string, error) {
	return n.Verbalize(ctx, n.Summary(c))
}

// Summary captures c's state and the last event seen. It must run on the
// goroutine stepping c; the result can be verbalized anywhere.
func (n *Narrator) Summary(c *agent.Controller) verbalizer.Summary {
	n.mu.Lock()
	last := n.last
	n.mu.Unlock()
	return Summarize(c, &last)
}

func (n *Narrator) Verbalize(ctx context.Context, s verbalizer.Summary) (string, error) {
	return n.verb.Verbalize(ctx, s)
}

// Format renders one event as a single line.
func Format(e agent.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%d ", e.Tick)
	if e.Room != "" {
		fmt.Fprintf(&b, "[%s] ", e.Room)
	}
	switch e.Kind {
	case agent.EventStateChanged:
		fmt.Fprintf(&b, "%s -> %s", e.From, e.State)
	case agent.EventPredictionError:
		if p := e.Prediction; p != nil {
			fmt.Fprintf(&b, "surprise: %v %s (expected %s, saw %s)", p.Pos, p.Kind, p.Expected, p.Actual)
		}
	case agent.EventObjectFound:
		fmt.Fprintf(&b, "found %s at %v", objectName(e), pos(e))
	case agent.EventTargetSelected:
		fmt.Fprintf(&b, "target %s at %v", objectName(e), pos(e))
		for _, s := range e.Scores {
			fmt.Fprintf(&b, " %s%v=%.2f", s.Candidate.Color, s.Candidate.Pos, s.Score)
		}
	case agent.EventAction:
		fmt.Fprintf(&b, "%s at %v facing %s", e.Command, e.Pos, e.Facing)
		if e.Manual {
			b.WriteString(" (manual)")
		}
	case agent.EventActionFailed:
		fmt.Fprintf(&b, "%s failed: %s", e.Command, e.Error)
	case agent.EventGrabbed:
		fmt.Fprintf(&b, "grabbed %s from %v", objectName(e), pos(e))
	case agent.EventDelivered:
		fmt.Fprintf(&b, "delivered onto %s at %v", objectName(e), pos(e))
	case agent.EventReleaseMissed:
		fmt.Fprintf(&b, "released %s next to the goal at %v", objectName(e), pos(e))
	case agent.EventRecoveryStarted:
		fmt.Fprintf(&b, "%s is gone; sweeping known cells", objectName(e))
	case agent.EventRecovered:
		fmt.Fprintf(&b, "found %s again at %v", objectName(e), pos(e))
	case agent.EventRoomEntered:
		if e.Loaded {
			b.WriteString("entered room (remembered)")
		} else {
			b.WriteString("entered room (new)")
		}
	case agent.EventRoomLeft:
		b.WriteString("left room")
	case agent.EventFinished:
		if r := e.Result; r != nil {
			fmt.Fprintf(&b, "finished: %s after %d steps, %d delivered", r.Outcome, r.Steps, r.Delivered)
			if r.Reason != "" {
				fmt.Fprintf(&b, " (%s)", r.Reason)
			}
		}
	default:
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func objectName(e agent.Event) string {
	if e.Object == nil {
		return "object"
	}
	return e.Object.String()
}

func pos(e agent.Event) string {
	if e.Target == nil {
		return "?"
	}
	return e.Target.String()
}

// Summarize builds a verbalizer summary from the controller state.
func Summarize(c *agent.Controller, last *agent.Event) verbalizer.Summary {
	mem := c.Memory()
	s := verbalizer.Summary{
		Room:    mem.CurrentRoom(),
		State:   string(c.State()),
		Known:   len(mem.Map),
		Objects: len(mem.Found),
		Steps:   c.Steps(),
		Budget:  c.Config().StepBudget,
	}
	if t, ok := c.Target(); ok {
		s.Target = t.Object.String()
	}
	if last != nil && last.Kind != "" {
		s.Pos = [2]int{last.Pos.X, last.Pos.Y}
		s.Facing = last.Facing.String()
		s.Event = string(last.Kind)
		s.Detail = strings.TrimPrefix(Format(*last), fmt.Sprintf("t=%d ", last.Tick))
	}
	if d := c.Drives(); d != nil {
		s.Drives = map[string]float64{}
		for _, k := range qualia.Drives {
			s.Drives[string(k)] = d.Get(k)
		}
	}
	return s
}
