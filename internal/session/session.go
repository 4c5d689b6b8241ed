// Package session wires one episode run to its durable outputs: the episode
// log, the SQLite index and the agent's long-term memory file.
package session

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"gridscout.ai/internal/persistence/archive"
	"gridscout.ai/internal/persistence/indexdb"
	persistlog "gridscout.ai/internal/persistence/log"
	"gridscout.ai/internal/persistence/snapshot"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/memory"
	"gridscout.ai/internal/sim/scenario"
	"gridscout.ai/internal/sim/tuning"
)

type Options struct {
	DataDir  string
	AgentID  string
	Scenario *scenario.Scenario
	Tuning   tuning.Tuning
	// Seed overrides the tuning seed when non-zero.
	Seed int64

	DisableLog    bool
	DisableIndex  bool
	DisableMemory bool
	// LogEvents writes every controller event to the episode log.
	LogEvents bool
	// ArchiveKeep archives the previous memory file before it is replaced,
	// keeping that many generations. Zero disables archiving.
	ArchiveKeep int

	// Index is shared across sessions when set; otherwise the session opens
	// and owns <data>/index/episodes.sqlite.
	Index *indexdb.SQLiteIndex

	Sink   agent.EventSink
	Logger *log.Logger
}

type Session struct {
	ID string

	opts    Options
	cfg     agent.Config
	ltmPath string
	ltm     map[string]memory.RoomMemory

	elog     *persistlog.EpisodeLogger
	idx      *indexdb.SQLiteIndex
	ownIndex bool
	log      *log.Logger
	finished bool
	closed   bool
}

func Open(opts Options) (*Session, error) {
	if opts.Scenario == nil {
		return nil, fmt.Errorf("session: nil scenario")
	}
	if opts.AgentID == "" {
		opts.AgentID = "scout"
	}
	s := &Session{
		ID:   uuid.NewString(),
		opts: opts,
		cfg:  opts.Tuning.AgentConfig(),
		log:  opts.Logger,
	}
	if opts.Seed != 0 {
		s.cfg.Seed = opts.Seed
	}

	var snap *snapshot.SnapshotV1
	if !opts.DisableMemory {
		s.ltmPath = LongTermPath(opts.DataDir, opts.AgentID)
		sv, err := snapshot.ReadSnapshot(s.ltmPath)
		switch {
		case err == nil:
			ltm, err := sv.LongTerm()
			if err != nil {
				return nil, fmt.Errorf("session: %s: %w", s.ltmPath, err)
			}
			s.ltm, snap = ltm, &sv
			s.logf("loaded long-term memory: %d rooms from %s", len(ltm), s.ltmPath)
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("session: read memory: %w", err)
		}
	}

	if !opts.DisableLog {
		s.elog = persistlog.NewEpisodeLogger(opts.DataDir, s.ID, opts.LogEvents)
		hdr := persistlog.EpisodeHeader{
			EpisodeID:           s.ID,
			Scenario:            opts.Scenario.Name,
			ScenarioDigest:      opts.Scenario.Digest(),
			ScenarioYAML:        string(opts.Scenario.Raw()),
			Agent:               s.cfg,
			WallMoveProbability: opts.Tuning.WallMoveProbability,
			Memory:              snap,
		}
		if err := s.elog.WriteHeader(hdr); err != nil {
			_ = s.elog.Close()
			return nil, fmt.Errorf("session: episode log: %w", err)
		}
	}

	switch {
	case opts.Index != nil:
		s.idx = opts.Index
	case !opts.DisableIndex:
		idx, err := indexdb.OpenSQLite(IndexPath(opts.DataDir), indexdb.Options{
			CommitEvery:   opts.Tuning.Index.CommitEvery,
			CommitMaxWait: time.Duration(opts.Tuning.Index.CommitIntervalMs) * time.Millisecond,
			QueueSize:     opts.Tuning.Index.QueueSize,
		})
		if err != nil {
			s.closeLog()
			return nil, fmt.Errorf("session: open index: %w", err)
		}
		s.idx, s.ownIndex = idx, true
	}
	s.idx.RecordEpisodeStart(indexdb.EpisodeRow{
		ID:             s.ID,
		Scenario:       opts.Scenario.Name,
		ScenarioDigest: opts.Scenario.Digest(),
		Seed:           s.cfg.Seed,
	})
	return s, nil
}

func LongTermPath(dataDir, agentID string) string {
	return filepath.Join(dataDir, "agents", agentID, "ltm.snap.zst")
}

func ArchiveDir(dataDir, agentID string) string {
	return filepath.Join(dataDir, "agents", agentID, "archive")
}

func IndexPath(dataDir string) string {
	return filepath.Join(dataDir, "index", "episodes.sqlite")
}

func (s *Session) Index() *indexdb.SQLiteIndex { return s.idx }

// LongTerm is the memory the run started with, nil when none was found.
func (s *Session) LongTerm() map[string]memory.RoomMemory { return s.ltm }

func (s *Session) LogDir() string {
	if s.elog == nil {
		return ""
	}
	return s.elog.Dir()
}

// EpisodeOptions returns episode options with every durable sink attached.
func (s *Session) EpisodeOptions() episode.Options {
	sinks := agent.Sinks{s.opts.Sink}
	if s.elog != nil {
		sinks = append(sinks, s.elog)
	}
	if s.idx != nil {
		sinks = append(sinks, s.idx.Sink(s.ID))
	}
	return episode.Options{
		ID:                  s.ID,
		Scenario:            s.opts.Scenario,
		Agent:               s.cfg,
		WallMoveProbability: s.opts.Tuning.WallMoveProbability,
		Sink:                sinks,
		LongTerm:            s.ltm,
	}
}

// OnTick records one tick. It runs on the ticking goroutine.
func (s *Session) OnTick(tk episode.Tick) {
	if s.elog != nil {
		if err := s.elog.WriteTick(tk); err != nil {
			s.logf("episode log: %v", err)
		}
	}
	_ = s.idx.WriteTick(s.ID, tk)
	if l := tk.LegDone; l != nil {
		s.logf("leg %d room %s: %s after %d steps (delivered=%d loaded=%v)", l.Leg, l.Room, l.Outcome, l.Steps, l.Delivered, l.Loaded)
	}
}

// Finish records the summary and persists the agent's long-term memory.
func (s *Session) Finish(sum episode.Summary, mem *memory.Memory) error {
	if s.finished {
		return nil
	}
	s.finished = true
	s.idx.RecordEpisodeEnd(sum)
	if s.ltmPath == "" || mem == nil {
		return nil
	}
	if s.opts.ArchiveKeep > 0 {
		gen, _, ok, err := archive.ArchiveMemory(ArchiveDir(s.opts.DataDir, s.opts.AgentID), s.ltmPath, s.opts.ArchiveKeep)
		if err != nil {
			return fmt.Errorf("session: archive memory: %w", err)
		}
		if ok {
			s.logf("archived previous long-term memory as generation %d", gen)
		}
	}
	err := snapshot.Save(s.ltmPath, mem, snapshot.Header{AgentID: s.opts.AgentID, EpisodeID: s.ID})
	if err != nil {
		return fmt.Errorf("session: save memory: %w", err)
	}
	s.logf("saved long-term memory to %s", s.ltmPath)
	return nil
}

// Close releases the log and an owned index. Later calls are no-ops.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.closeLog()
	if s.ownIndex {
		if cerr := s.idx.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Session) closeLog() error {
	if s.elog == nil {
		return nil
	}
	err := s.elog.Close()
	if err == nil {
		err = s.elog.Err()
	}
	return err
}

func (s *Session) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
