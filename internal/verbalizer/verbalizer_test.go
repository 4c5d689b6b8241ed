package verbalizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNop(t *testing.T) {
	got, err := Nop{}.Verbalize(context.Background(), Summary{State: "EXPLORING"})
	if err != nil || got != "" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

func TestTemplate(t *testing.T) {
	s := Summary{State: "DELIVERING", Holding: "red ball", Drives: map[string]float64{"fear": 0.7, "urgency": 0.2}}
	got, _ := Template{}.Verbalize(context.Background(), s)
	if !strings.Contains(got, "red ball") || !strings.Contains(got, "fear") {
		t.Fatalf("got=%q", got)
	}
}

func TestHTTP_Generate(t *testing.T) {
	var req generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "  I am exploring.  "})
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{Endpoint: srv.URL + "/api/generate", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := h.Verbalize(context.Background(), Summary{State: "EXPLORING", Facing: "N"})
	if err != nil || got != "I am exploring." {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if req.Model != "m" || req.Stream || !strings.Contains(req.Prompt, "state=EXPLORING") {
		t.Fatalf("req=%+v", req)
	}
}

func TestHTTP_FallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h, _ := NewHTTP(HTTPConfig{Endpoint: srv.URL})
	got, err := h.Verbalize(context.Background(), Summary{State: "IDLE"})
	if err != nil || got != "Done." {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if _, err := NewHTTP(HTTPConfig{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
