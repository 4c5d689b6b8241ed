package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridscout.ai/internal/persistence/snapshot"
	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
	"gridscout.ai/internal/sim/grid"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Sync pushes buffered entries through the compressor to disk.
func (w *JSONLZstdWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

const (
	EntryHeader = "header"
	EntryTick   = "tick"
	EntryEvent  = "event"
)

// EpisodeHeader is the first entry of every episode log. It carries enough
// to re-run the episode.
type EpisodeHeader struct {
	Type                string       `json:"type"`
	EpisodeID           string       `json:"episode_id"`
	Scenario            string       `json:"scenario"`
	ScenarioDigest      string       `json:"scenario_digest"`
	ScenarioYAML        string       `json:"scenario_yaml"`
	Agent               agent.Config `json:"agent"`
	WallMoveProbability float64      `json:"wall_move_probability"`
	StartedAt           string       `json:"started_at"`
	// Memory is the long-term memory the agent started with, if any.
	Memory *snapshot.SnapshotV1 `json:"memory,omitempty"`
}

// TickEntry is one controller tick.
type TickEntry struct {
	Type      string             `json:"type"`
	Tick      uint64             `json:"tick"`
	Leg       int                `json:"leg"`
	Room      string             `json:"room,omitempty"`
	State     agent.State        `json:"state"`
	Command   string             `json:"command,omitempty"`
	Manual    bool               `json:"manual,omitempty"`
	Error     string             `json:"error,omitempty"`
	Pos       grid.Pos           `json:"pos"`
	Facing    grid.Dir           `json:"facing"`
	WallMoves []grid.WallMove    `json:"wall_moves,omitempty"`
	Digest    string             `json:"digest"`
	LegDone   *episode.LegResult `json:"leg_done,omitempty"`
}

func TickEntryOf(t episode.Tick) TickEntry {
	return TickEntry{
		Type:      EntryTick,
		Tick:      t.Tick,
		Leg:       t.Leg,
		Room:      t.Room,
		State:     t.State,
		Command:   t.Command,
		Manual:    t.Manual,
		Error:     t.Error,
		Pos:       t.Pos,
		Facing:    t.Facing,
		WallMoves: t.WallMoves,
		Digest:    t.Digest,
		LegDone:   t.LegDone,
	}
}

type EventEntry struct {
	Type string `json:"type"`
	agent.Event
}

// EpisodeLogger writes one episode's header, ticks and events (compressed).
type EpisodeLogger struct {
	w   *JSONLZstdWriter
	dir string

	mu     sync.Mutex
	events bool
	err    error
}

// NewEpisodeLogger writes under <dataDir>/episodes/<id>. With events set,
// every controller event is logged too.
func NewEpisodeLogger(dataDir, episodeID string, events bool) *EpisodeLogger {
	dir := EpisodeDir(dataDir, episodeID)
	return &EpisodeLogger{w: NewJSONLZstdWriter(dir, "ticks"), dir: dir, events: events}
}

func EpisodeDir(dataDir, episodeID string) string {
	return filepath.Join(dataDir, "episodes", episodeID)
}

func (l *EpisodeLogger) Dir() string { return l.dir }

func (l *EpisodeLogger) WriteHeader(h EpisodeHeader) error {
	h.Type = EntryHeader
	if h.StartedAt == "" {
		h.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return l.w.Write(h)
}

func (l *EpisodeLogger) WriteTick(t episode.Tick) error { return l.w.Write(TickEntryOf(t)) }

// Emit makes the logger an agent.EventSink. Write errors are kept for Err.
func (l *EpisodeLogger) Emit(e agent.Event) {
	if !l.events {
		return
	}
	if err := l.w.Write(EventEntry{Type: EntryEvent, Event: e}); err != nil {
		l.mu.Lock()
		if l.err == nil {
			l.err = err
		}
		l.mu.Unlock()
	}
}

func (l *EpisodeLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *EpisodeLogger) Sync() error  { return l.w.Sync() }
func (l *EpisodeLogger) Close() error { return l.w.Close() }
