package protocol

import "encoding/json"

// SUBSCRIBE (client -> server). First message on the connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name,omitempty"`
	// Events requests EVENT frames in addition to TICK frames.
	Events bool `json:"events,omitempty"`
	// Render includes ground-truth and memory grids in TICK frames.
	Render   bool `json:"render,omitempty"`
	MaxQueue int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	EpisodeID       string `json:"episode_id"`
	Scenario        string `json:"scenario"`
	TickRateHz      int    `json:"tick_rate_hz"`
	StepBudget      int    `json:"step_budget"`
	Legs            int    `json:"legs"`
	Tick            uint64 `json:"tick"`
}

// TICK (server -> client), sent once per simulation tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EpisodeID       string `json:"episode_id"`
	Tick            uint64 `json:"tick"`
	Leg             int    `json:"leg"`
	Room            string `json:"room"`
	State           string `json:"state"`
	Command         string `json:"command,omitempty"`
	Manual          bool   `json:"manual,omitempty"`
	Error           string `json:"error,omitempty"`
	Pos             [2]int `json:"pos"`
	Facing          string `json:"facing"`
	Holding         string `json:"holding,omitempty"`
	Target          string `json:"target,omitempty"`
	Steps           int    `json:"steps"`
	Known           int    `json:"known"`
	Digest          string `json:"digest"`
	Pending         int    `json:"pending,omitempty"`

	Drives map[string]float64 `json:"drives,omitempty"`
	World  []string           `json:"world,omitempty"`
	Memory []string           `json:"memory,omitempty"`

	LegDone  *LegDone `json:"leg_done,omitempty"`
	Finished bool     `json:"finished,omitempty"`
}

type LegDone struct {
	Leg       int    `json:"leg"`
	Room      string `json:"room"`
	Outcome   string `json:"outcome"`
	Steps     int    `json:"steps"`
	Delivered int    `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

// EVENT (server -> client). Line is the narrated form; Event carries the
// structured payload.
type EventMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Kind            string          `json:"kind"`
	Line            string          `json:"line"`
	Event           json.RawMessage `json:"event,omitempty"`
}

// COMMAND (client -> server). Text is resolved through the lexicon. When
// Teach is set, Text is learned as a phrase for those commands instead.
type CommandMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id,omitempty"`
	Text            string   `json:"text"`
	Teach           []string `json:"teach,omitempty"`
}

// REPLY (server -> client)
type ReplyMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id,omitempty"`
	Accepted        bool     `json:"accepted"`
	Code            string   `json:"code,omitempty"`
	Message         string   `json:"message,omitempty"`
	Phrase          string   `json:"phrase,omitempty"`
	Source          string   `json:"source,omitempty"`
	Commands        []string `json:"commands,omitempty"`
	Pending         int      `json:"pending,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
