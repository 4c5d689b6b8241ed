package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/episode"
)

// SQLiteIndex is a queryable read model of episodes. Writes are queued and
// committed in batches by a single goroutine; the JSONL logs remain the
// source of truth, so a full queue drops rows instead of stalling the agent.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	commitEvery   int
	commitMaxWait time.Duration

	dropTick    atomic.Uint64
	dropEvent   atomic.Uint64
	dropEpisode atomic.Uint64
}

type Options struct {
	CommitEvery   int
	CommitMaxWait time.Duration
	QueueSize     int
}

type reqKind int

const (
	reqEpisodeStart reqKind = iota + 1
	reqEpisodeEnd
	reqTick
	reqPrediction
	reqFlush
)

type req struct {
	kind reqKind

	episodeID string
	start     EpisodeRow
	summary   episode.Summary
	tick      episode.Tick
	event     agent.Event
	done      chan struct{}
}

type EpisodeRow struct {
	ID             string `json:"id"`
	Scenario       string `json:"scenario"`
	ScenarioDigest string `json:"scenario_digest"`
	Seed           int64  `json:"seed"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at,omitempty"`
	Legs           int    `json:"legs"`
	Completed      int    `json:"completed"`
	Steps          int    `json:"steps"`
	Delivered      int    `json:"delivered"`
}

type QueueStats struct {
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
	DropTickTotal    uint64 `json:"drop_tick_total"`
	DropEventTotal   uint64 `json:"drop_event_total"`
	DropEpisodeTotal uint64 `json:"drop_episode_total"`
}

func OpenSQLite(path string, opts Options) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.CommitEvery <= 0 {
		opts.CommitEvery = 2000
	}
	if opts.CommitMaxWait <= 0 {
		opts.CommitMaxWait = 2 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 65536
	}
	s := &SQLiteIndex{
		db:            db,
		ch:            make(chan req, opts.QueueSize),
		commitEvery:   opts.CommitEvery,
		commitMaxWait: opts.CommitMaxWait,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			scenario_digest TEXT NOT NULL,
			seed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			legs INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			steps INTEGER NOT NULL DEFAULT 0,
			delivered INTEGER NOT NULL DEFAULT 0,
			summary_json TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS legs (
			episode_id TEXT NOT NULL,
			leg INTEGER NOT NULL,
			room TEXT NOT NULL,
			outcome TEXT NOT NULL,
			steps INTEGER NOT NULL,
			delivered INTEGER NOT NULL,
			loaded INTEGER NOT NULL,
			reason TEXT,
			PRIMARY KEY (episode_id, leg)
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			episode_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			leg INTEGER NOT NULL,
			room TEXT NOT NULL,
			state TEXT NOT NULL,
			command TEXT,
			manual INTEGER NOT NULL,
			error TEXT,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			facing TEXT NOT NULL,
			wall_moves INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (episode_id, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_state ON ticks(episode_id, state);`,
		`CREATE TABLE IF NOT EXISTS prediction_errors (
			episode_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			room TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			kind TEXT NOT NULL,
			expected TEXT NOT NULL,
			actual TEXT NOT NULL,
			PRIMARY KEY (episode_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_prediction_errors_kind ON prediction_errors(episode_id, kind);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordEpisodeStart(row EpisodeRow) {
	if s == nil {
		return
	}
	if row.StartedAt == "" {
		row.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.enqueue(req{kind: reqEpisodeStart, episodeID: row.ID, start: row}, &s.dropEpisode)
}

func (s *SQLiteIndex) RecordEpisodeEnd(sum episode.Summary) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqEpisodeEnd, episodeID: sum.ID, summary: sum}, &s.dropEpisode)
}

func (s *SQLiteIndex) WriteTick(episodeID string, t episode.Tick) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, episodeID: episodeID, tick: t}, &s.dropTick)
	return nil
}

// Sink returns an agent.EventSink that indexes prediction errors for episodeID.
func (s *SQLiteIndex) Sink(episodeID string) agent.EventSink {
	return agent.SinkFunc(func(e agent.Event) {
		if s == nil || e.Kind != agent.EventPredictionError || e.Prediction == nil {
			return
		}
		s.enqueue(req{kind: reqPrediction, episodeID: episodeID, event: e}, &s.dropEvent)
	})
}

// Flush blocks until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() QueueStats {
	st := QueueStats{
		DropTickTotal:    s.dropTick.Load(),
		DropEventTotal:   s.dropEvent.Load(),
		DropEpisodeTotal: s.dropEpisode.Load(),
	}
	if s.ch != nil {
		st.QueueDepth = len(s.ch)
		st.QueueCapacity = cap(s.ch)
	}
	return st
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	insertEpisode, _ := s.db.Prepare(`INSERT OR REPLACE INTO episodes(id,scenario,scenario_digest,seed,started_at) VALUES(?,?,?,?,?)`)
	finishEpisode, _ := s.db.Prepare(`UPDATE episodes SET finished_at=?, legs=?, completed=?, steps=?, delivered=?, summary_json=? WHERE id=?`)
	insertLeg, _ := s.db.Prepare(`INSERT OR REPLACE INTO legs(episode_id,leg,room,outcome,steps,delivered,loaded,reason) VALUES(?,?,?,?,?,?,?,?)`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(episode_id,tick,leg,room,state,command,manual,error,x,y,facing,wall_moves,digest) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertPrediction, _ := s.db.Prepare(`INSERT OR REPLACE INTO prediction_errors(episode_id,tick,seq,room,x,y,kind,expected,actual) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEpisode, finishEpisode, insertLeg, insertTick, insertPrediction} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()
		predTick   uint64
		predSeq    int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEpisodeStart:
			e := r.start
			exec(insertEpisode, e.ID, e.Scenario, e.ScenarioDigest, e.Seed, e.StartedAt)

		case reqEpisodeEnd:
			sum := r.summary
			raw, _ := json.Marshal(sum)
			if !exec(finishEpisode, time.Now().UTC().Format(time.RFC3339Nano), len(sum.Legs), sum.Completed, sum.Steps, sum.Delivered, string(raw), sum.ID) {
				continue
			}
			for _, l := range sum.Legs {
				if !exec(insertLeg, sum.ID, l.Leg, l.Room, string(l.Outcome), l.Steps, l.Delivered, boolInt(l.Loaded), l.Reason) {
					break
				}
			}

		case reqTick:
			t := r.tick
			exec(insertTick, r.episodeID, int64(t.Tick), t.Leg, t.Room, string(t.State), t.Command, boolInt(t.Manual), t.Error,
				t.Pos.X, t.Pos.Y, t.Facing.String(), len(t.WallMoves), t.Digest)

		case reqPrediction:
			e := r.event
			if e.Tick != predTick {
				predTick = e.Tick
				predSeq = 0
			}
			seq := predSeq
			predSeq++
			p := e.Prediction
			exec(insertPrediction, r.episodeID, int64(e.Tick), seq, e.Room, p.Pos.X, p.Pos.Y, string(p.Kind), p.Expected.String(), p.Actual.String())
		}
		if opCount >= s.commitEvery || time.Since(lastCommit) >= s.commitMaxWait {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
