package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gridscout.ai/internal/protocol"
)

const maxLog = 200

type commander interface {
	Command(text string, teach ...string) (string, error)
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#555555")).Padding(0, 1)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	stateStyle = map[string]lipgloss.Style{
		"EXPLORING":      lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true),
		"SEEKING_TARGET": lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true),
		"APPROACHING":    lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true),
		"DELIVERING":     lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		"RECOVERING":     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
)

// frameMsg is one raw server frame; closedMsg means the stream ended.
type frameMsg []byte

type closedMsg struct{}

type sentMsg struct {
	reqID string
	err   error
}

type model struct {
	client  commander
	frames  <-chan []byte
	welcome protocol.WelcomeMsg

	input  textinput.Model
	tick   protocol.TickMsg
	log    []string
	status string
	closed bool

	width, height int
}

func newModel(c commander, frames <-chan []byte, welcome protocol.WelcomeMsg) *model {
	ti := textinput.New()
	ti.Placeholder = "phrase, command name, or teach <phrase> = cmd,cmd"
	ti.Prompt = "> "
	ti.CharLimit = 256
	ti.Width = 60
	ti.Focus()
	return &model{
		client:  c,
		frames:  frames,
		welcome: welcome,
		input:   ti,
		status:  fmt.Sprintf("connected to episode %s (%s)", short(welcome.EpisodeID), welcome.Scenario),
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitFrame())
}

func (m *model) waitFrame() tea.Cmd {
	frames := m.frames
	return func() tea.Msg {
		b, ok := <-frames
		if !ok {
			return closedMsg{}
		}
		return frameMsg(b)
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case frameMsg:
		m.handleFrame(msg)
		return m, m.waitFrame()

	case closedMsg:
		m.closed = true
		m.status = "disconnected"
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.status = "send failed: " + msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" || m.closed {
				return m, nil
			}
			return m, m.send(text)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send parses the prompt. "teach spin = legs.turn_left,legs.turn_left"
// teaches a phrase; anything else is submitted as a command phrase.
func (m *model) send(text string) tea.Cmd {
	phrase, teach := parsePrompt(text)
	m.appendLog(dimStyle.Render("you: " + text))
	c := m.client
	return func() tea.Msg {
		id, err := c.Command(phrase, teach...)
		return sentMsg{reqID: id, err: err}
	}
}

func parsePrompt(text string) (string, []string) {
	rest, ok := strings.CutPrefix(text, "teach ")
	if !ok {
		return text, nil
	}
	phrase, list, ok := strings.Cut(rest, "=")
	if !ok {
		return text, nil
	}
	var cmds []string
	for _, c := range strings.Split(list, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cmds = append(cmds, c)
		}
	}
	return strings.TrimSpace(phrase), cmds
}

func (m *model) handleFrame(b []byte) {
	base, err := protocol.DecodeBase(b)
	if err != nil {
		m.status = "bad frame: " + err.Error()
		return
	}
	switch base.Type {
	case protocol.TypeTick:
		var t protocol.TickMsg
		if json.Unmarshal(b, &t) != nil {
			return
		}
		// Lite frames keep the last rendered grids.
		if t.World == nil {
			t.World, t.Memory = m.tick.World, m.tick.Memory
		}
		m.tick = t
		if l := t.LegDone; l != nil {
			m.appendLog(fmt.Sprintf("leg %d room %s: %s after %d steps", l.Leg, l.Room, l.Outcome, l.Steps))
		}
		if t.Finished {
			m.status = "episode finished"
		}
	case protocol.TypeEvent:
		var e protocol.EventMsg
		if json.Unmarshal(b, &e) == nil && e.Line != "" {
			m.appendLog(fmt.Sprintf("[%d] %s", e.Tick, e.Line))
		}
	case protocol.TypeReply:
		var r protocol.ReplyMsg
		if json.Unmarshal(b, &r) != nil {
			return
		}
		if r.Accepted {
			m.appendLog(okStyle.Render("ok") + fmt.Sprintf(" %s -> %s (%s, pending %d)", r.Phrase, strings.Join(r.Commands, " "), r.Source, r.Pending))
		} else {
			m.appendLog(errStyle.Render(r.Code) + " " + r.Message)
		}
	case protocol.TypeError:
		var e protocol.ErrorMsg
		if json.Unmarshal(b, &e) == nil {
			m.appendLog(errStyle.Render(e.Code) + " " + e.Message)
		}
	}
}

func (m *model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLog {
		m.log = append(m.log[:0], m.log[len(m.log)-maxLog:]...)
	}
}

func (m *model) View() string {
	t := m.tick
	header := titleStyle.Render("gridscout") + " " + dimStyle.Render(m.status)

	st := t.State
	if s, ok := stateStyle[st]; ok {
		st = s.Render(st)
	}
	info := []string{
		fmt.Sprintf("tick %d  leg %d/%d  room %s", t.Tick, t.Leg+1, m.welcome.Legs, t.Room),
		fmt.Sprintf("state %s  steps %d/%d  known %d", st, t.Steps, m.welcome.StepBudget, t.Known),
		fmt.Sprintf("pos (%d,%d) facing %s", t.Pos[0], t.Pos[1], t.Facing),
	}
	if t.Holding != "" {
		info = append(info, "holding "+t.Holding)
	}
	if t.Target != "" {
		info = append(info, "target "+t.Target)
	}
	if t.Command != "" {
		c := t.Command
		if t.Manual {
			c += " (manual)"
		}
		if t.Error != "" {
			c += " " + errStyle.Render(t.Error)
		}
		info = append(info, "last "+c)
	}
	if t.Pending > 0 {
		info = append(info, fmt.Sprintf("queued %d", t.Pending))
	}
	info = append(info, "", drivesView(t.Drives))

	world := boxStyle.Render(titleStyle.Render("room") + "\n" + strings.Join(t.World, "\n"))
	mem := boxStyle.Render(titleStyle.Render("memory") + "\n" + strings.Join(t.Memory, "\n"))
	side := boxStyle.Render(strings.Join(info, "\n"))
	top := lipgloss.JoinHorizontal(lipgloss.Top, world, mem, side)

	logLines := m.log
	if n := m.logRows(); len(logLines) > n {
		logLines = logLines[len(logLines)-n:]
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, top, strings.Join(logLines, "\n"), m.input.View())
}

func (m *model) logRows() int {
	rows := m.height - len(m.tick.World) - 8
	if rows < 5 {
		return 5
	}
	return rows
}

func drivesView(d map[string]float64) string {
	if len(d) == 0 {
		return dimStyle.Render("no drives")
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-11s %s %.2f", k, bar(d[k], 10), d[k])
	}
	return b.String()
}

func bar(v float64, width int) string {
	n := int(v*float64(width) + 0.5)
	n = max(0, min(width, n))
	return strings.Repeat("#", n) + strings.Repeat(".", width-n)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
