package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"gridscout.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip marshals v and decodes it generically so the schema sees the
// same document a client would.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	digest := strings.Repeat("ab", 32)
	cases := []struct {
		schema string
		msg    any
	}{
		{"subscribe.schema.json", protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, Name: "console", Events: true, Render: true, MaxQueue: 32}},
		{"welcome.schema.json", protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "S1", EpisodeID: "ep", Scenario: "ball_and_goal", TickRateHz: 5, StepBudget: 1000, Legs: 1}},
		{"tick.schema.json", protocol.TickMsg{
			Type: protocol.TypeTick, ProtocolVersion: protocol.Version, EpisodeID: "ep", Tick: 3, Room: "A",
			State: "EXPLORING", Command: "legs.turn_left", Pos: [2]int{1, 2}, Facing: "E", Steps: 3, Known: 9,
			Digest: digest, Drives: map[string]float64{"fear": 0.8}, World: []string{"###"}, Memory: []string{"#?#"},
			LegDone: &protocol.LegDone{Room: "A", Outcome: "complete", Steps: 40, Delivered: 1},
		}},
		{"event.schema.json", protocol.EventMsg{Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Tick: 4, Kind: "object_found", Line: "t=4 found red ball", Event: json.RawMessage(`{"tick":4,"kind":"object_found"}`)}},
		{"command.schema.json", protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, ReqID: "1", Text: "spin", Teach: []string{"legs.turn_right", "legs.turn_right"}}},
		{"reply.schema.json", protocol.ReplyMsg{Type: protocol.TypeReply, ProtocolVersion: protocol.Version, ReqID: "1", Accepted: false, Code: protocol.ErrUnknownPhrase, Message: "unknown phrase"}},
		{"reply.schema.json", protocol.ReplyMsg{Type: protocol.TypeReply, ProtocolVersion: protocol.Version, Accepted: true, Phrase: "turn around", Source: "default", Commands: []string{"legs.turn_right", "legs.turn_right"}, Pending: 2}},
		{"error.schema.json", protocol.NewError(protocol.ErrProtoBadRequest, "expected SUBSCRIBE")},
	}
	for _, tc := range cases {
		s := compile(t, tc.schema)
		if err := s.Validate(roundTrip(t, tc.msg)); err != nil {
			t.Fatalf("%s: %v", tc.schema, err)
		}
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	tick := compile(t, "tick.schema.json")
	bad := protocol.TickMsg{Type: protocol.TypeTick, ProtocolVersion: protocol.Version, State: "DANCING", Facing: "E", Digest: "nope"}
	if err := tick.Validate(roundTrip(t, bad)); err == nil {
		t.Fatalf("expected invalid TICK to be rejected")
	}
	cmd := compile(t, "command.schema.json")
	if err := cmd.Validate(roundTrip(t, protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version})); err == nil {
		t.Fatalf("expected empty COMMAND text to be rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	b, _ := json.Marshal(protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Text: "look"})
	base, err := protocol.DecodeBase(b)
	if err != nil || base.Type != protocol.TypeCommand || base.ProtocolVersion != protocol.Version {
		t.Fatalf("base=%+v err=%v", base, err)
	}
}
