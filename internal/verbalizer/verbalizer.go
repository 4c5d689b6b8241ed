// Package verbalizer turns agent state summaries into short natural-language
// lines. Nothing in the simulation depends on what it returns.
package verbalizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Summary is the state snapshot handed to a verbalizer.
type Summary struct {
	Room    string             `json:"room,omitempty"`
	State   string             `json:"state"`
	Pos     [2]int             `json:"pos"`
	Facing  string             `json:"facing"`
	Holding string             `json:"holding,omitempty"`
	Target  string             `json:"target,omitempty"`
	Event   string             `json:"event,omitempty"`
	Detail  string             `json:"detail,omitempty"`
	Drives  map[string]float64 `json:"drives,omitempty"`
	Known   int                `json:"known_cells"`
	Objects int                `json:"known_objects"`
	Steps   int                `json:"steps"`
	Budget  int                `json:"budget"`
}

// Prompt renders s as the text prompt sent to language models.
func (s Summary) Prompt() string {
	var b strings.Builder
	b.WriteString("You are a small robot exploring a grid room. Describe what you are doing in one short first-person sentence.\n")
	fmt.Fprintf(&b, "state=%s pos=(%d,%d) facing=%s steps=%d/%d known_cells=%d known_objects=%d\n",
		s.State, s.Pos[0], s.Pos[1], s.Facing, s.Steps, s.Budget, s.Known, s.Objects)
	if s.Room != "" {
		fmt.Fprintf(&b, "room=%s\n", s.Room)
	}
	if s.Holding != "" {
		fmt.Fprintf(&b, "holding=%s\n", s.Holding)
	}
	if s.Target != "" {
		fmt.Fprintf(&b, "target=%s\n", s.Target)
	}
	if s.Event != "" {
		fmt.Fprintf(&b, "event=%s %s\n", s.Event, s.Detail)
	}
	if len(s.Drives) > 0 {
		names := make([]string, 0, len(s.Drives))
		for k := range s.Drives {
			names = append(names, k)
		}
		sort.Strings(names)
		b.WriteString("feelings:")
		for _, k := range names {
			fmt.Fprintf(&b, " %s=%.2f", k, s.Drives[k])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

type Verbalizer interface {
	Verbalize(ctx context.Context, s Summary) (string, error)
}

// Nop always returns the empty string.
type Nop struct{}

func (Nop) Verbalize(context.Context, Summary) (string, error) { return "", nil }

// Template produces deterministic rule-based lines.
type Template struct{}

func (Template) Verbalize(_ context.Context, s Summary) (string, error) {
	var line string
	switch s.State {
	case "EXPLORING":
		line = fmt.Sprintf("Exploring; I know %d cells so far.", s.Known)
	case "SEEKING_TARGET":
		line = fmt.Sprintf("Choosing among %d objects I have seen.", s.Objects)
	case "APPROACHING":
		line = fmt.Sprintf("Heading for the %s.", orDefault(s.Target, "target"))
	case "GRABBING":
		line = fmt.Sprintf("Reaching for the %s.", orDefault(s.Target, "target"))
	case "DELIVERING":
		line = fmt.Sprintf("Carrying the %s to a goal.", orDefault(s.Holding, "object"))
	case "RECOVERING":
		line = "It was not where I remembered. Searching."
	case "IDLE":
		line = "Done."
	default:
		line = "Thinking."
	}
	if s.Event != "" {
		line = fmt.Sprintf("%s (%s)", line, strings.TrimSpace(s.Event+" "+s.Detail))
	}
	if dom, v := dominant(s.Drives); dom != "" && v >= 0.5 {
		line += fmt.Sprintf(" I feel %s.", dom)
	}
	return line, nil
}

func dominant(d map[string]float64) (string, float64) {
	best, bestV := "", -1.0
	for k, v := range d {
		if v > bestV || (v == bestV && k < best) {
			best, bestV = k, v
		}
	}
	return best, bestV
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type HTTPConfig struct {
	// Endpoint is the generate URL, e.g. http://localhost:11434/api/generate.
	Endpoint string
	Model    string
	Timeout  time.Duration
	// Fallback answers when the endpoint fails. Nil means Template.
	Fallback Verbalizer
	Logger   *log.Logger
}

// HTTP calls an Ollama-style generate endpoint and falls back on any failure.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty verbalizer endpoint")
	}
	if cfg.Model == "" {
		cfg.Model = "gemma3:4b"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Fallback == nil {
		cfg.Fallback = Template{}
	}
	return &HTTP{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (h *HTTP) Verbalize(ctx context.Context, s Summary) (string, error) {
	text, err := h.generate(ctx, s.Prompt())
	if err == nil && text != "" {
		return text, nil
	}
	if h.cfg.Logger != nil && err != nil {
		h.cfg.Logger.Printf("verbalizer: %v (using fallback)", err)
	}
	return h.cfg.Fallback.Verbalize(ctx, s)
}

func (h *HTTP) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: h.cfg.Model, Prompt: prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("generate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("generate: decode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("generate: %s", out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}
