package agent

import (
	"gridscout.ai/internal/sim/logic/scoring"
	"gridscout.ai/internal/sim/qualia"
)

type State string

const (
	Exploring     State = "EXPLORING"
	SeekingTarget State = "SEEKING_TARGET"
	Approaching   State = "APPROACHING"
	Grabbing      State = "GRABBING"
	Delivering    State = "DELIVERING"
	Recovering    State = "RECOVERING"
	Idle          State = "IDLE"
)

type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeExplored Outcome = "explored"
	OutcomeFailed   Outcome = "failed"
	OutcomeBudget   Outcome = "budget_exhausted"
	OutcomeStopped  Outcome = "stopped"
)

type Result struct {
	Outcome   Outcome `json:"outcome"`
	Steps     int     `json:"steps"`
	Delivered int     `json:"delivered"`
	Reason    string  `json:"reason,omitempty"`
}

func (r Result) Success() bool { return r.Outcome == OutcomeComplete }

type Config struct {
	StepBudget int `json:"step_budget"`
	// Deliveries is how many successful releases complete the mission.
	Deliveries int `json:"deliveries"`
	// ExhaustiveExplore keeps exploring until no frontier remains before
	// seeking a target.
	ExhaustiveExplore bool `json:"exhaustive_explore"`
	// TargetName restricts candidates to objects with this name. Empty accepts
	// any object that is not a goal marker.
	TargetName string `json:"target_name,omitempty"`

	Weights scoring.Weights `json:"weights"`
	Qualia  scoring.Qualia  `json:"qualia"`

	// Dynamic derives fear and urgency from a decaying qualia layer instead
	// of the fixed seeds in Qualia.
	Dynamic bool         `json:"dynamic,omitempty"`
	Decay   qualia.Decay `json:"decay"`

	Seed int64 `json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		StepBudget: 500,
		Deliveries: 1,
		Weights:    scoring.DefaultWeights(),
		Decay:      qualia.DefaultDecay(),
		Seed:       1,
	}
}
