// Package lexicon maps natural-language phrases onto command sequences.
//
// A Lexicon starts from a fixed set of default phrases copied at construction.
// Phrases taught at runtime live in a separate learned layer that is consulted
// first and is the only part written to disk.
package lexicon

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gridscout.ai/internal/command"
)

var (
	ErrUnknownPhrase = errors.New("unknown phrase")
	ErrEmptyPhrase   = errors.New("empty phrase")
	ErrEmptySequence = errors.New("empty command sequence")
)

var defaults = map[string][]command.Command{
	"forward":      {command.Forward},
	"go forward":   {command.Forward},
	"move forward": {command.Forward},
	"step":         {command.Forward},
	"walk":         {command.Forward},
	"turn left":    {command.TurnLeft},
	"left":         {command.TurnLeft},
	"turn right":   {command.TurnRight},
	"right":        {command.TurnRight},
	"turn around":  {command.TurnRight, command.TurnRight},
	"grab":         {command.Grab},
	"pick up":      {command.Grab},
	"take":         {command.Grab},
	"release":      {command.Release},
	"drop":         {command.Release},
	"put down":     {command.Release},
	"look":         {command.Look},
	"look around":  {command.Look},
	"wait":         {command.Wait},
	"stop":         {command.Wait},
	"hold on":      {command.Wait},
}

type Source string

const (
	SourceDefault Source = "default"
	SourceLearned Source = "learned"
	// SourceCommand marks input that named a command directly ("legs.forward").
	SourceCommand Source = "command"
)

// Match describes how an input resolved.
type Match struct {
	Phrase   string            `json:"phrase"`
	Source   Source            `json:"source"`
	Exact    bool              `json:"exact"`
	Commands []command.Command `json:"commands"`
}

type Entry struct {
	Phrase    string            `json:"phrase"`
	Commands  []command.Command `json:"commands"`
	LearnedAt time.Time         `json:"learned_at"`
}

type Stats struct {
	Total      int `json:"total"`
	Understood int `json:"understood"`
	Unknown    int `json:"unknown"`
}

// Lexicon is safe for concurrent use.
type Lexicon struct {
	mu       sync.RWMutex
	defaults map[string][]command.Command
	learned  map[string]Entry
	stats    Stats
	now      func() time.Time
}

func New() *Lexicon {
	d := make(map[string][]command.Command, len(defaults))
	for k, v := range defaults {
		d[k] = append([]command.Command(nil), v...)
	}
	return &Lexicon{defaults: d, learned: map[string]Entry{}, now: time.Now}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Lookup resolves text. Exact phrases win over substrings and learned phrases
// over defaults; among substring hits the longest phrase wins.
func (l *Lexicon) Lookup(text string) (Match, error) {
	key := normalize(text)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Total++
	m, err := l.resolve(key)
	if err != nil {
		l.stats.Unknown++
		return Match{}, err
	}
	l.stats.Understood++
	m.Commands = append([]command.Command(nil), m.Commands...)
	return m, nil
}

func (l *Lexicon) resolve(key string) (Match, error) {
	if key == "" {
		return Match{}, ErrEmptyPhrase
	}
	if e, ok := l.learned[key]; ok {
		return Match{Phrase: key, Source: SourceLearned, Exact: true, Commands: e.Commands}, nil
	}
	if cmds, ok := l.defaults[key]; ok {
		return Match{Phrase: key, Source: SourceDefault, Exact: true, Commands: cmds}, nil
	}
	if cmds, err := ParseSequence(key); err == nil {
		return Match{Phrase: key, Source: SourceCommand, Exact: true, Commands: cmds}, nil
	}

	learned := make(map[string][]command.Command, len(l.learned))
	for k, e := range l.learned {
		learned[k] = e.Commands
	}
	if m, ok := longestContained(key, learned); ok {
		m.Source = SourceLearned
		return m, nil
	}
	if m, ok := longestContained(key, l.defaults); ok {
		m.Source = SourceDefault
		return m, nil
	}
	return Match{}, fmt.Errorf("%w: %q", ErrUnknownPhrase, key)
}

// minReverse is the shortest input that may match as part of a longer phrase.
const minReverse = 3

// longestContained finds phrases inside key, or key inside a phrase.
func longestContained(key string, table map[string][]command.Command) (Match, bool) {
	phrases := make([]string, 0, len(table))
	for p := range table {
		phrases = append(phrases, p)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})
	for _, p := range phrases {
		if strings.Contains(key, p) || (len(key) >= minReverse && strings.Contains(p, key)) {
			return Match{Phrase: p, Commands: table[p]}, true
		}
	}
	return Match{}, false
}

// Learn binds phrase to cmds in the learned layer, replacing any previous binding.
func (l *Lexicon) Learn(phrase string, cmds []command.Command) error {
	key := normalize(phrase)
	if key == "" {
		return ErrEmptyPhrase
	}
	if len(cmds) == 0 {
		return ErrEmptySequence
	}
	l.mu.Lock()
	l.learned[key] = Entry{Phrase: key, Commands: append([]command.Command(nil), cmds...), LearnedAt: l.now().UTC()}
	l.mu.Unlock()
	return nil
}

// Forget drops a learned phrase. Defaults cannot be forgotten.
func (l *Lexicon) Forget(phrase string) bool {
	key := normalize(phrase)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.learned[key]; !ok {
		return false
	}
	delete(l.learned, key)
	return true
}

func (l *Lexicon) Learned() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.learned))
	for _, e := range l.learned {
		e.Commands = append([]command.Command(nil), e.Commands...)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phrase < out[j].Phrase })
	return out
}

// Phrases lists every known phrase, learned ones first.
func (l *Lexicon) Phrases() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var learned, defs []string
	for p := range l.learned {
		learned = append(learned, p)
	}
	for p := range l.defaults {
		if _, shadowed := l.learned[p]; !shadowed {
			defs = append(defs, p)
		}
	}
	sort.Strings(learned)
	sort.Strings(defs)
	return append(learned, defs...)
}

func (l *Lexicon) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// ParseSequence reads command names separated by spaces, commas or semicolons.
func ParseSequence(s string) ([]command.Command, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, ErrEmptySequence
	}
	out := make([]command.Command, 0, len(fields))
	for _, f := range fields {
		c, err := command.Parse(f)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
