package agent

import (
	"sync"

	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/logic/scoring"
	"gridscout.ai/internal/sim/memory"
)

type EventKind string

const (
	EventStateChanged    EventKind = "state_changed"
	EventPredictionError EventKind = "prediction_error"
	EventObjectFound     EventKind = "object_found"
	EventTargetSelected  EventKind = "target_selected"
	EventAction          EventKind = "action"
	EventActionFailed    EventKind = "action_failed"
	EventGrabbed         EventKind = "grabbed"
	EventDelivered       EventKind = "delivered"
	EventReleaseMissed   EventKind = "release_missed"
	EventRecoveryStarted EventKind = "recovery_started"
	EventRecovered       EventKind = "recovered"
	EventRoomEntered     EventKind = "room_entered"
	EventRoomLeft        EventKind = "room_left"
	EventFinished        EventKind = "finished"
)

// Event is a structured record of something the controller did or noticed.
// Presentation belongs to the sink.
type Event struct {
	Tick   uint64    `json:"tick"`
	Kind   EventKind `json:"kind"`
	Room   string    `json:"room,omitempty"`
	State  State     `json:"state,omitempty"`
	From   State     `json:"from,omitempty"`
	Pos    grid.Pos  `json:"pos"`
	Facing grid.Dir  `json:"facing"`

	Command    string                  `json:"command,omitempty"`
	Manual     bool                    `json:"manual,omitempty"`
	Target     *grid.Pos               `json:"target,omitempty"`
	Object     *grid.Object            `json:"object,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Prediction *memory.PredictionError `json:"prediction,omitempty"`
	Scores     []scoring.Breakdown     `json:"scores,omitempty"`
	Result     *Result                 `json:"result,omitempty"`
	Loaded     bool                    `json:"loaded,omitempty"`
}

type EventSink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Sinks fans an event out in order.
type Sinks []EventSink

func (s Sinks) Emit(e Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(e)
		}
	}
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// Recorder keeps every event. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfKind(k EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
