// Package qualia keeps the decaying scalar drives that weight target scoring.
package qualia

import (
	"fmt"
	"strings"

	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/memory"
)

type Drive string

const (
	Surprise  Drive = "surprise"
	Curiosity Drive = "curiosity"
	Fear      Drive = "fear"
	Desire    Drive = "desire"
	Urgency   Drive = "urgency"
)

var Drives = []Drive{Surprise, Curiosity, Fear, Desire, Urgency}

type Decay struct {
	Surprise  float64 `yaml:"surprise" json:"surprise"`
	Curiosity float64 `yaml:"curiosity" json:"curiosity"`
	Fear      float64 `yaml:"fear" json:"fear"`
	Desire    float64 `yaml:"desire" json:"desire"`
	Urgency   float64 `yaml:"urgency" json:"urgency"`
}

func DefaultDecay() Decay {
	return Decay{Surprise: 0.8, Curiosity: 0.95, Fear: 0.9, Desire: 0.95, Urgency: 0.98}
}

func (d Decay) rate(k Drive) float64 {
	switch k {
	case Surprise:
		return d.Surprise
	case Curiosity:
		return d.Curiosity
	case Fear:
		return d.Fear
	case Desire:
		return d.Desire
	}
	return d.Urgency
}

// Input is what one tick contributes to the drives.
type Input struct {
	Errors  []memory.PredictionError
	Found   memory.FoundObjects
	Map     memory.InternalMap
	Pos     grid.Pos
	Holding bool

	StepsUsed   int
	StepsBudget int
}

type Layer struct {
	values map[Drive]float64
	decay  Decay
	// DesireColor is the color whose sighting raises desire the most.
	DesireColor string
}

// New seeds a layer. Unset drives start at 0 except curiosity at 0.5.
func New(seed map[Drive]float64, decay Decay) *Layer {
	l := &Layer{
		values: map[Drive]float64{Curiosity: 0.5},
		decay:  decay,
	}
	for k, v := range seed {
		l.values[k] = clamp(v)
	}
	return l
}

func (l *Layer) Get(k Drive) float64 { return l.values[k] }

func (l *Layer) Set(k Drive, v float64) { l.values[k] = clamp(v) }

func (l *Layer) add(k Drive, v float64) { l.values[k] = clamp(l.values[k] + v) }

func (l *Layer) atLeast(k Drive, v float64) {
	if l.values[k] < v {
		l.values[k] = clamp(v)
	}
}

// Update decays every drive, then applies this tick's stimuli.
func (l *Layer) Update(in Input) {
	for _, k := range Drives {
		l.values[k] *= l.decay.rate(k)
	}

	if len(in.Errors) > 0 {
		l.add(Surprise, float64(len(in.Errors))*0.3)
	}
	for _, pe := range in.Errors {
		switch pe.Actual {
		case grid.Wall:
			l.add(Fear, 0.3)
		case grid.ObjectCell:
			l.add(Curiosity, 0.2)
		case grid.Danger:
			l.add(Fear, 0.2)
		}
	}

	if k, ok := in.Map[in.Pos]; ok && k == grid.Danger {
		l.add(Fear, 0.15)
	}

	for _, f := range in.Found {
		if f.Object.IsGoal() {
			l.atLeast(Desire, 0.6)
			continue
		}
		if l.DesireColor == "" || f.Object.Color == l.DesireColor {
			l.atLeast(Desire, 0.8)
		}
	}

	unknown, walls := 0, 0
	for _, n := range in.Pos.Neighbors() {
		k, ok := in.Map[n]
		switch {
		case !ok:
			unknown++
		case k == grid.Wall || k == grid.OutOfBounds:
			walls++
		}
	}
	if unknown > 0 {
		l.add(Curiosity, float64(unknown)*0.05)
	}
	if walls >= 3 {
		l.add(Fear, 0.2)
	}

	if in.Holding {
		l.atLeast(Desire, 0.7)
	}
	if in.StepsBudget > 0 {
		l.atLeast(Urgency, float64(in.StepsUsed)/float64(in.StepsBudget))
	}
}

// Dominant returns the strongest drive; ties resolve in Drives order.
func (l *Layer) Dominant() Drive {
	best := Drives[0]
	for _, k := range Drives[1:] {
		if l.values[k] > l.values[best] {
			best = k
		}
	}
	return best
}

func (l *Layer) Snapshot() map[Drive]float64 {
	out := make(map[Drive]float64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
}

// Bars renders each drive as a ten-cell bar.
func (l *Layer) Bars() []string {
	out := make([]string, 0, len(Drives))
	for _, k := range Drives {
		v := l.values[k]
		n := int(v * 10)
		out = append(out, fmt.Sprintf("%-10s [%s%s] %.2f", k, strings.Repeat("#", n), strings.Repeat(".", 10-n), v))
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
