// Command bot is a scripted observer: it teaches a few phrases, then
// occasionally takes manual control of the agent with them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"gridscout.ai/internal/protocol"
	"gridscout.ai/internal/transport/observer"
)

var defaultLessons = map[string][]string{
	"spin around": {"legs.turn_left", "legs.turn_left"},
	"peek":        {"eyes.look"},
	"step ahead":  {"legs.forward"},
}

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/observe", "observer websocket url")
		name  = flag.String("name", "bot", "observer name")
		every = flag.Uint64("every", 50, "send a phrase every N ticks (0: teach only)")
		seed  = flag.Int64("seed", 0, "phrase choice seed (0: time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	c, w, err := observer.Dial(ctx, *url, protocol.SubscribeMsg{Name: *name, MaxQueue: 8})
	cancel()
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer c.Close()
	logger.Printf("WELCOME episode=%s scenario=%s tick_rate=%d legs=%d", w.EpisodeID, w.Scenario, w.TickRateHz, w.Legs)

	for phrase, cmds := range defaultLessons {
		if _, err := c.Command(phrase, cmds...); err != nil {
			logger.Fatalf("teach %q: %v", phrase, err)
		}
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	b := &bot{rng: rand.New(rand.NewSource(s)), every: *every, logger: logger}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-c.Frames():
			if !ok {
				if err := c.Err(); err != nil {
					logger.Printf("disconnected: %v", err)
				}
				return
			}
			if phrase := b.handle(msg); phrase != "" {
				if _, err := c.Command(phrase); err != nil {
					logger.Printf("send: %v", err)
					return
				}
			}
		}
	}
}

type bot struct {
	rng    *rand.Rand
	every  uint64
	logger *log.Logger
}

// handle returns a phrase to send in response to msg, if any.
func (b *bot) handle(msg []byte) string {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return ""
	}
	switch base.Type {
	case protocol.TypeReply:
		var r protocol.ReplyMsg
		if json.Unmarshal(msg, &r) == nil {
			if r.Accepted {
				b.logger.Printf("REPLY %s %q -> %s", r.Source, r.Phrase, strings.Join(r.Commands, ","))
			} else {
				b.logger.Printf("REPLY %s: %s", r.Code, r.Message)
			}
		}
	case protocol.TypeTick:
		var t protocol.TickMsg
		if json.Unmarshal(msg, &t) != nil {
			return ""
		}
		if t.LegDone != nil {
			b.logger.Printf("leg %d room %s: %s", t.LegDone.Leg, t.LegDone.Room, t.LegDone.Outcome)
		}
		if t.Finished || b.every == 0 || t.Tick%b.every != b.every/2 {
			return ""
		}
		return b.pick()
	}
	return ""
}

func (b *bot) pick() string {
	phrases := make([]string, 0, len(defaultLessons))
	for p := range defaultLessons {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)
	return phrases[b.rng.Intn(len(phrases))]
}
