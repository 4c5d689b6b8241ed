package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gridscout.ai/internal/protocol"
	"gridscout.ai/internal/session"
	"gridscout.ai/internal/sim/runtime"
	"gridscout.ai/internal/sim/scenario"
	"gridscout.ai/internal/sim/tuning"
	"gridscout.ai/internal/transport/observer"
)

func newTestMux(t *testing.T) (*runtime.Runtime, *http.ServeMux) {
	t.Helper()
	dir := t.TempDir()
	sc, err := scenario.Builtin("ball_and_goal")
	if err != nil {
		t.Fatal(err)
	}
	sess, err := session.Open(session.Options{DataDir: dir, Scenario: sc, Tuning: tuning.Defaults(), DisableLog: true, DisableMemory: true})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	rt, err := runtime.New(runtime.Options{Episode: sess.EpisodeOptions(), OnTick: sess.OnTick})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	return rt, newMux(rt, observer.NewServer(rt, nil), sess, dir)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	rt, mux := newTestMux(t)
	rt.Tick()
	rt.Tick()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz status=%d body=%q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{
		`gridscout_tick{episode="` + rt.Episode().ID() + `"} 2`,
		`gridscout_state{episode=`,
		`gridscout_index_dropped_total{kind="tick"} 0`,
		`gridscout_pending_commands 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestServer_StateAndLexicon(t *testing.T) {
	rt, mux := newTestMux(t)
	if _, err := rt.Teach("spin", []string{"legs.turn_left", "legs.turn_left"}); err != nil {
		t.Fatal(err)
	}
	rt.Tick()

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var st protocol.TickMsg
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v body=%s", err, rec.Body.String())
	}
	if st.Tick != 1 || st.Room != "main" || len(st.World) == 0 {
		t.Fatalf("state=%+v", st)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/lexicon", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `"spin"`) {
		t.Fatalf("lexicon body=%s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/lexicon", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote lexicon status=%d", rec.Code)
	}
}
