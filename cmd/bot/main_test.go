package main

import (
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"testing"

	"gridscout.ai/internal/protocol"
)

func TestBot_SendsOnSchedule(t *testing.T) {
	b := &bot{rng: rand.New(rand.NewSource(1)), every: 10, logger: log.New(io.Discard, "", 0)}
	tick := func(n uint64, finished bool) []byte {
		raw, _ := json.Marshal(protocol.TickMsg{Type: protocol.TypeTick, Tick: n, Finished: finished})
		return raw
	}
	if got := b.handle(tick(4, false)); got != "" {
		t.Fatalf("tick 4 sent %q", got)
	}
	got := b.handle(tick(5, false))
	if _, ok := defaultLessons[got]; !ok {
		t.Fatalf("tick 5 sent %q", got)
	}
	if got := b.handle(tick(15, true)); got != "" {
		t.Fatalf("finished episode sent %q", got)
	}
	reply, _ := json.Marshal(protocol.ReplyMsg{Type: protocol.TypeReply, Accepted: true, Phrase: "peek", Source: "learned"})
	if got := b.handle(reply); got != "" {
		t.Fatalf("reply triggered %q", got)
	}
}
