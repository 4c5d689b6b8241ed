package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gridscout.ai/internal/command"
	persistlog "gridscout.ai/internal/persistence/log"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/memory"
	"gridscout.ai/internal/sim/scenario"
)

func main() {
	var (
		dir      = flag.String("episode_dir", "", "episode log directory (data/episodes/<id>)")
		dataDir  = flag.String("data", "./data", "runtime data directory (used with -episode)")
		id       = flag.String("episode", "", "episode id under <data>/episodes")
		fromTick = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	path := strings.TrimSpace(*dir)
	if path == "" && *id != "" {
		path = persistlog.EpisodeDir(*dataDir, *id)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -episode_dir or -episode")
		os.Exit(2)
	}

	ep, err := persistlog.ReadEpisode(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read episode:", err)
		os.Exit(1)
	}
	h := ep.Header
	rooms := 0
	if h.Memory != nil {
		rooms = len(h.Memory.Rooms)
	}
	fmt.Printf("episode %s scenario=%s digest=%s seed=%d ticks=%d events=%d remembered_rooms=%d\n",
		h.EpisodeID, h.Scenario, short(h.ScenarioDigest), h.Agent.Seed, len(ep.Ticks), len(ep.Events), rooms)

	rep, err := verify(ep, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks manual=%d legs=%d\n", rep.Checked, rep.Manual, rep.Legs)
}

type report struct {
	Checked int
	Manual  int
	Legs    int
}

// verify rebuilds the episode from its header and re-steps every logged tick,
// comparing digests. Manual ticks replay the logged command.
func verify(ep persistlog.Episode, fromTick, toTick uint64) (report, error) {
	var rep report
	h := ep.Header
	sc, err := scenario.Parse([]byte(h.ScenarioYAML))
	if err != nil {
		return rep, fmt.Errorf("scenario: %w", err)
	}
	if h.ScenarioDigest != "" && sc.Digest() != h.ScenarioDigest {
		return rep, fmt.Errorf("scenario digest mismatch: header=%s parsed=%s", short(h.ScenarioDigest), short(sc.Digest()))
	}
	var ltm map[string]memory.RoomMemory
	if h.Memory != nil {
		if ltm, err = h.Memory.LongTerm(); err != nil {
			return rep, fmt.Errorf("memory: %w", err)
		}
	}
	e, err := episode.New(episode.Options{
		ID:                  h.EpisodeID,
		Scenario:            sc,
		Agent:               h.Agent,
		WallMoveProbability: h.WallMoveProbability,
		LongTerm:            ltm,
	})
	if err != nil {
		return rep, err
	}

	for _, entry := range ep.Ticks {
		if toTick != 0 && entry.Tick > toTick {
			break
		}
		if e.Done() {
			return rep, fmt.Errorf("tick %d logged after the episode finished", entry.Tick)
		}
		if entry.LegDone != nil && entry.LegDone.Outcome == agent.OutcomeStopped {
			e.Stop()
		}
		var tk episode.Tick
		if entry.Manual {
			cmd, err := command.Parse(entry.Command)
			if err != nil {
				return rep, fmt.Errorf("tick %d: %w", entry.Tick, err)
			}
			tk = e.StepWith(cmd)
			rep.Manual++
		} else {
			tk = e.Step()
		}
		if tk.Tick != entry.Tick {
			return rep, fmt.Errorf("tick mismatch: stepped=%d entry=%d", tk.Tick, entry.Tick)
		}
		if tk.Command != entry.Command {
			return rep, fmt.Errorf("tick %d: command %q, log has %q", entry.Tick, tk.Command, entry.Command)
		}
		if tk.LegDone != nil {
			rep.Legs++
		}
		if entry.Tick >= fromTick {
			rep.Checked++
			if tk.Digest != entry.Digest {
				return rep, fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", entry.Tick, short(tk.Digest), short(entry.Digest))
			}
		}
	}
	return rep, nil
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
