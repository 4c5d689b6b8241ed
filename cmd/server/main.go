package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gridscout.ai/internal/lexicon"
	"gridscout.ai/internal/narrate"
	"gridscout.ai/internal/session"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/runtime"
	"gridscout.ai/internal/sim/scenario"
	"gridscout.ai/internal/sim/tuning"
	"gridscout.ai/internal/transport/observer"
	"gridscout.ai/internal/verbalizer"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		configDir    = flag.String("configs", "./configs", "config directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenarioName = flag.String("scenario", "ball_and_goal", "built-in scenario name or path to a scenario yaml")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		agentID      = flag.String("agent", "scout", "agent id (selects the long-term memory file)")
		seed         = flag.Int64("seed", 0, "agent seed (0: use tuning)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite episode index")
		freshMemory  = flag.Bool("fresh_memory", false, "ignore and do not write long-term memory")
		archiveKeep  = flag.Int("memory_generations", 5, "archived long-term memory generations to keep (0: no archive)")
		logEvents    = flag.Bool("log_events", true, "write controller events to the episode log")
		verbose      = flag.Bool("verbose", false, "narrate every action and state change")
		remote       = flag.Bool("allow_remote", false, "accept observers from non-loopback addresses")
		exitOnFinish = flag.Bool("exit_on_finish", false, "shut down once the episode finishes")
		verbURL      = flag.String("verbalizer_url", "", "ollama-style /api/generate endpoint for narration (empty: template)")
		verbModel    = flag.String("verbalizer_model", "", "model name for -verbalizer_url")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	sc, err := scenario.Resolve(*scenarioName)
	if err != nil {
		logger.Fatalf("scenario: %v", err)
	}

	var verb verbalizer.Verbalizer = verbalizer.Template{}
	if u := strings.TrimSpace(*verbURL); u != "" {
		h, err := verbalizer.NewHTTP(verbalizer.HTTPConfig{Endpoint: u, Model: *verbModel, Logger: logger})
		if err != nil {
			logger.Fatalf("verbalizer: %v", err)
		}
		verb = h
	}
	narrator := narrate.New(narrate.Options{
		Logger:     log.New(os.Stdout, "[agent] ", log.LstdFlags|log.Lmicroseconds),
		Verbalizer: verb,
		Verbose:    *verbose,
	})

	lexPath := filepath.Join(*dataDir, "lexicon.json")
	lex := lexicon.New()
	if err := lex.Load(lexPath); err != nil {
		logger.Fatalf("load lexicon: %v", err)
	}

	sess, err := session.Open(session.Options{
		DataDir:       *dataDir,
		AgentID:       *agentID,
		Scenario:      sc,
		Tuning:        tune,
		Seed:          *seed,
		DisableIndex:  *disableDB,
		DisableMemory: *freshMemory,
		ArchiveKeep:   *archiveKeep,
		LogEvents:     *logEvents,
		Sink:          narrator,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Printf("close session: %v", err)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	var rt *runtime.Runtime
	rt, err = runtime.New(runtime.Options{
		Episode:       sess.EpisodeOptions(),
		Lexicon:       lex,
		TickRateHz:    tune.TickRateHz,
		ObserverQueue: tune.ObserverBuffer,
		Logger:        logger,
		OnTick: func(tk episode.Tick) {
			sess.OnTick(tk)
			if tk.LegDone != nil {
				say(ctx, narrator, rt.Episode().Controller(), logger)
			}
		},
		OnFinish: func(sum episode.Summary) {
			if err := sess.Finish(sum, rt.Episode().Controller().Memory()); err != nil {
				logger.Printf("%v", err)
			}
			if err := lex.Save(lexPath); err != nil {
				logger.Printf("save lexicon: %v", err)
			}
		},
	})
	if err != nil {
		logger.Fatalf("runtime: %v", err)
	}
	logger.Printf("episode %s scenario=%s legs=%d log=%s", sess.ID, sc.Name, rt.Episode().Legs(), sess.LogDir())

	go func() {
		if err := rt.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("runtime stopped: %v", err)
		}
		if *exitOnFinish {
			cancel()
		}
	}()

	obsSrv := observer.NewServer(rt, logger)
	obsSrv.AllowRemote = *remote
	mux := newMux(rt, obsSrv, sess, *dataDir)

	if envBool("GS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (GS_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-rt.Done()
}

func newMux(rt *runtime.Runtime, obsSrv *observer.Server, sess *session.Session, dataDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(rt, sess, dataDir))
	mux.HandleFunc("/v1/observe", obsSrv.WSHandler())
	mux.HandleFunc("/v1/state", obsSrv.StateHandler())
	mux.HandleFunc("/v1/lexicon", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"learned": rt.Lexicon().Learned(),
			"phrases": rt.Lexicon().Phrases(),
			"stats":   rt.Lexicon().Stats(),
		})
	})
	return mux
}

// say verbalizes off the ticking goroutine; the summary is taken first.
func say(ctx context.Context, n *narrate.Narrator, c *agent.Controller, logger *log.Logger) {
	s := n.Summary(c)
	go func() {
		text, err := n.Verbalize(ctx, s)
		if err != nil {
			logger.Printf("verbalize: %v", err)
			return
		}
		if text != "" {
			logger.Printf("agent says: %s", text)
		}
	}()
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
