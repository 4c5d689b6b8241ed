package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"gridscout.ai/internal/narrate"
	"gridscout.ai/internal/persistence/indexdb"
	"gridscout.ai/internal/session"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/scenario"
	"gridscout.ai/internal/sim/tuning"
	"gridscout.ai/internal/verbalizer"
)

func main() {
	var (
		configDir    = flag.String("configs", "./configs", "config directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenarioName = flag.String("scenario", "ball_and_goal", "built-in scenario name or path to a scenario yaml")
		list         = flag.Bool("list", false, "list built-in scenarios and exit")
		runs         = flag.Int("runs", 1, "number of episodes to run back to back")
		seed         = flag.Int64("seed", 0, "agent seed for the first run (0: use tuning); later runs add the run index")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		agentID      = flag.String("agent", "scout", "agent id (selects the long-term memory file)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite episode index")
		noLog        = flag.Bool("no_log", false, "do not write episode logs")
		freshMemory  = flag.Bool("fresh_memory", false, "ignore and do not write long-term memory")
		archiveKeep  = flag.Int("memory_generations", 0, "archived long-term memory generations to keep (0: no archive)")
		verbose      = flag.Bool("verbose", false, "narrate every action and state change")
		quiet        = flag.Bool("quiet", false, "only print the final summary")
		jsonOut      = flag.Bool("json", false, "print summaries as json lines")
	)
	flag.Parse()

	if *list {
		for _, n := range scenario.Names() {
			fmt.Println(n)
		}
		return
	}

	logger := log.New(os.Stderr, "[episode] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}
	sc, err := scenario.Resolve(*scenarioName)
	if err != nil {
		logger.Fatalf("scenario: %v", err)
	}

	var narrOut io.Writer = os.Stdout
	if *quiet || *jsonOut {
		narrOut = io.Discard
	}
	agentLog := log.New(narrOut, "[agent] ", log.LstdFlags|log.Lmicroseconds)
	narrator := narrate.New(narrate.Options{
		Logger:     agentLog,
		Verbalizer: verbalizer.Template{},
		Verbose:    *verbose,
	})

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(session.IndexPath(*dataDir), indexdb.Options{QueueSize: tune.Index.QueueSize})
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	var stats batchStats
	for i := 0; i < *runs && ctx.Err() == nil; i++ {
		s := int64(0)
		if *seed != 0 {
			s = *seed + int64(i)
		}
		sum, err := runOnce(ctx, runConfig{
			DataDir:     *dataDir,
			AgentID:     *agentID,
			Scenario:    sc,
			Tuning:      tune,
			Seed:        s,
			DisableLog:  *noLog,
			FreshMemory: *freshMemory,
			ArchiveKeep: *archiveKeep,
			Index:       idx,
			Narrator:    narrator,
			AgentLog:    agentLog,
			Logger:      logger,
		})
		if err != nil {
			logger.Fatalf("run %d: %v", i+1, err)
		}
		stats.add(sum)
		if *jsonOut {
			b, _ := json.Marshal(sum)
			fmt.Println(string(b))
		} else if !*quiet {
			printSummary(os.Stdout, i+1, sum)
		}
	}
	if idx != nil {
		if err := idx.Flush(context.Background()); err != nil {
			logger.Printf("flush index: %v", err)
		}
	}
	if *runs > 1 || *quiet {
		stats.print(os.Stdout)
	}
}

type runConfig struct {
	DataDir     string
	AgentID     string
	Scenario    *scenario.Scenario
	Tuning      tuning.Tuning
	Seed        int64
	DisableLog  bool
	FreshMemory bool
	ArchiveKeep int
	Index       *indexdb.SQLiteIndex
	Narrator    *narrate.Narrator
	AgentLog    *log.Logger
	Logger      *log.Logger
}

// runOnce plays one episode to the end. A cancelled ctx stops the agent at
// its next tick and the episode is still recorded.
func runOnce(ctx context.Context, rc runConfig) (episode.Summary, error) {
	var sink agent.EventSink
	if rc.Narrator != nil {
		sink = rc.Narrator
	}
	sess, err := session.Open(session.Options{
		DataDir:       rc.DataDir,
		AgentID:       rc.AgentID,
		Scenario:      rc.Scenario,
		Tuning:        rc.Tuning,
		Seed:          rc.Seed,
		DisableLog:    rc.DisableLog,
		DisableIndex:  rc.Index == nil,
		DisableMemory: rc.FreshMemory,
		ArchiveKeep:   rc.ArchiveKeep,
		LogEvents:     true,
		Index:         rc.Index,
		Sink:          sink,
		Logger:        rc.Logger,
	})
	if err != nil {
		return episode.Summary{}, err
	}
	defer sess.Close()

	e, err := episode.New(sess.EpisodeOptions())
	if err != nil {
		return episode.Summary{}, err
	}
	for !e.Done() {
		if ctx.Err() != nil {
			e.Stop()
		}
		tk := e.Step()
		sess.OnTick(tk)
		if tk.LegDone != nil && rc.Narrator != nil && rc.AgentLog != nil {
			if line, err := rc.Narrator.Say(ctx, e.Controller()); err == nil && line != "" {
				rc.AgentLog.Printf("agent says: %s", line)
			}
		}
	}
	sum := e.Summary()
	if err := sess.Finish(sum, e.Controller().Memory()); err != nil {
		return sum, err
	}
	return sum, sess.Close()
}

func printSummary(w io.Writer, run int, sum episode.Summary) {
	fmt.Fprintf(w, "run %d episode=%s scenario=%s completed=%d/%d steps=%d delivered=%d\n",
		run, sum.ID, sum.Scenario, sum.Completed, len(sum.Legs), sum.Steps, sum.Delivered)
	for _, l := range sum.Legs {
		loaded := ""
		if l.Loaded {
			loaded = " (remembered)"
		}
		fmt.Fprintf(w, "  leg %d room %s%s: %s steps=%d delivered=%d", l.Leg, l.Room, loaded, l.Outcome, l.Steps, l.Delivered)
		if l.Reason != "" {
			fmt.Fprintf(w, " reason=%q", l.Reason)
		}
		if l.Warnings != "" {
			fmt.Fprintf(w, " warnings=%q", l.Warnings)
		}
		fmt.Fprintln(w)
	}
}

// batchStats aggregates outcomes across runs.
type batchStats struct {
	Runs      int
	Legs      int
	Completed int
	Steps     int
	Delivered int
	Outcomes  map[agent.Outcome]int
	// RoomSteps tracks steps per room split by whether the room was
	// remembered on entry.
	RoomSteps map[string]*roomSteps
}

type roomSteps struct {
	FreshLegs, FreshSteps   int
	LoadedLegs, LoadedSteps int
}

func (b *batchStats) add(sum episode.Summary) {
	if b.Outcomes == nil {
		b.Outcomes = map[agent.Outcome]int{}
		b.RoomSteps = map[string]*roomSteps{}
	}
	b.Runs++
	b.Completed += sum.Completed
	b.Steps += sum.Steps
	b.Delivered += sum.Delivered
	for _, l := range sum.Legs {
		b.Legs++
		b.Outcomes[l.Outcome]++
		rs := b.RoomSteps[l.Room]
		if rs == nil {
			rs = &roomSteps{}
			b.RoomSteps[l.Room] = rs
		}
		if l.Loaded {
			rs.LoadedLegs++
			rs.LoadedSteps += l.Steps
		} else {
			rs.FreshLegs++
			rs.FreshSteps += l.Steps
		}
	}
}

func (b *batchStats) print(w io.Writer) {
	if b.Runs == 0 {
		fmt.Fprintln(w, "no runs")
		return
	}
	fmt.Fprintf(w, "runs=%d legs=%d completed=%d (%.1f%%) steps=%d (%.1f/leg) delivered=%d\n",
		b.Runs, b.Legs, b.Completed, pct(b.Completed, b.Legs), b.Steps, avg(b.Steps, b.Legs), b.Delivered)
	outs := make([]string, 0, len(b.Outcomes))
	for o := range b.Outcomes {
		outs = append(outs, string(o))
	}
	sort.Strings(outs)
	for _, o := range outs {
		fmt.Fprintf(w, "  outcome %-16s %d\n", o, b.Outcomes[agent.Outcome(o)])
	}
	rooms := make([]string, 0, len(b.RoomSteps))
	for r := range b.RoomSteps {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	for _, r := range rooms {
		rs := b.RoomSteps[r]
		fmt.Fprintf(w, "  room %-8s fresh=%d avg_steps=%.1f remembered=%d avg_steps=%.1f\n",
			r, rs.FreshLegs, avg(rs.FreshSteps, rs.FreshLegs), rs.LoadedLegs, avg(rs.LoadedSteps, rs.LoadedLegs))
	}
}

func pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return 100 * float64(n) / float64(d)
}

func avg(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
