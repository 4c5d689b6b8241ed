package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gridscout.ai/internal/sim/agent"
	"gridscout.ai/internal/sim/logic/scoring"
	"gridscout.ai/internal/sim/qualia"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz          int     `yaml:"tick_rate_hz"`
	StepBudget          int     `yaml:"step_budget"`
	Deliveries          int     `yaml:"deliveries"`
	ExhaustiveExplore   bool    `yaml:"exhaustive_explore"`
	TargetName          string  `yaml:"target_name"`
	WallMoveProbability float64 `yaml:"wall_move_probability"`
	Seed                int64   `yaml:"seed"`

	Scoring scoring.Weights `yaml:"scoring"`
	Qualia  Qualia          `yaml:"qualia"`
	Index   Index           `yaml:"index"`

	ObserverBuffer int `yaml:"observer_buffer"`
}

type Qualia struct {
	Fear       float64            `yaml:"fear"`
	Urgency    float64            `yaml:"urgency"`
	Depletion  float64            `yaml:"depletion"`
	Preference map[string]float64 `yaml:"preference"`
	Dynamic    bool               `yaml:"dynamic"`
	Decay      qualia.Decay       `yaml:"decay"`
}

type Index struct {
	CommitEvery      int `yaml:"commit_every"`
	CommitIntervalMs int `yaml:"commit_interval_ms"`
	QueueSize        int `yaml:"queue_size"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      5,
		StepBudget:      500,
		Deliveries:      1,
		Seed:            1,
		Scoring:         scoring.DefaultWeights(),
		Qualia: Qualia{
			Preference: map[string]float64{},
			Decay:      qualia.DefaultDecay(),
		},
		Index: Index{
			CommitEvery:      2000,
			CommitIntervalMs: 2000,
			QueueSize:        8192,
		},
		ObserverBuffer: 64,
	}
}

// Load overlays the YAML file at path onto Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0, got %d", t.TickRateHz))
	}
	if t.StepBudget <= 0 {
		errs = append(errs, fmt.Errorf("step_budget must be > 0, got %d", t.StepBudget))
	}
	if t.Deliveries <= 0 {
		errs = append(errs, fmt.Errorf("deliveries must be > 0, got %d", t.Deliveries))
	}
	if t.WallMoveProbability < 0 || t.WallMoveProbability > 1 {
		errs = append(errs, fmt.Errorf("wall_move_probability out of [0,1]: %v", t.WallMoveProbability))
	}
	for name, v := range map[string]float64{
		"qualia.fear":      t.Qualia.Fear,
		"qualia.urgency":   t.Qualia.Urgency,
		"qualia.depletion": t.Qualia.Depletion,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s out of [0,1]: %v", name, v))
		}
	}
	for color, v := range t.Qualia.Preference {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("qualia.preference.%s out of [0,1]: %v", color, v))
		}
	}
	if t.Scoring.DangerPenalty < 0 {
		errs = append(errs, fmt.Errorf("scoring.danger_penalty must be >= 0"))
	}
	return errors.Join(errs...)
}

// AgentConfig maps tuning onto a controller configuration.
func (t Tuning) AgentConfig() agent.Config {
	pref := make(map[string]float64, len(t.Qualia.Preference))
	for k, v := range t.Qualia.Preference {
		pref[k] = v
	}
	return agent.Config{
		StepBudget:        t.StepBudget,
		Deliveries:        t.Deliveries,
		ExhaustiveExplore: t.ExhaustiveExplore,
		TargetName:        t.TargetName,
		Weights:           t.Scoring,
		Qualia: scoring.Qualia{
			Preference: pref,
			Fear:       t.Qualia.Fear,
			Urgency:    t.Qualia.Urgency,
			Depletion:  t.Qualia.Depletion,
		},
		Dynamic: t.Qualia.Dynamic,
		Decay:   t.Qualia.Decay,
		Seed:    t.Seed,
	}
}
