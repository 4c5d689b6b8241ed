package scoring

import "gridscout.ai/internal/sim/grid"

type Candidate struct {
	Pos      grid.Pos `json:"pos"`
	Color    string   `json:"color"`
	Distance int      `json:"distance"`
	InDanger bool     `json:"in_danger,omitempty"`
}

// Qualia are the scalar weights fed to the scorer. Values are expected in [0,1].
type Qualia struct {
	Preference map[string]float64 `json:"preference,omitempty"`
	Fear       float64            `json:"fear"`
	Urgency    float64            `json:"urgency"`
	Depletion  float64            `json:"depletion"`
}

type Weights struct {
	PreferenceScale   float64 `yaml:"preference_scale" json:"preference_scale"`
	DistanceBase      float64 `yaml:"distance_base" json:"distance_base"`
	DangerPenalty     float64 `yaml:"danger_penalty" json:"danger_penalty"`
	DefaultPreference float64 `yaml:"default_preference" json:"default_preference"`
	EnergyPenalty     float64 `yaml:"energy_penalty" json:"energy_penalty"`
	EnergyFarDistance int     `yaml:"energy_far_distance" json:"energy_far_distance"`
}

func DefaultWeights() Weights {
	return Weights{
		PreferenceScale:   10,
		DistanceBase:      0.5,
		DangerPenalty:     15,
		DefaultPreference: 0.5,
		EnergyPenalty:     5,
		EnergyFarDistance: 5,
	}
}

// Breakdown is one scored candidate with its terms.
type Breakdown struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`

	PreferenceTerm float64 `json:"preference_term"`
	DistanceTerm   float64 `json:"distance_term"`
	DangerTerm     float64 `json:"danger_term"`
	EnergyTerm     float64 `json:"energy_term"`
}

func (w Weights) preference(q Qualia, color string) float64 {
	if v, ok := q.Preference[color]; ok {
		return v
	}
	return w.DefaultPreference
}

func (w Weights) Explain(c Candidate, q Qualia) Breakdown {
	b := Breakdown{Candidate: c}
	b.PreferenceTerm = w.preference(q, c.Color) * w.PreferenceScale
	b.DistanceTerm = -float64(c.Distance) * (w.DistanceBase + q.Urgency)
	if c.InDanger {
		b.DangerTerm = -q.Fear * w.DangerPenalty
	}
	if q.Depletion > 0.5 && c.Distance > w.EnergyFarDistance {
		b.EnergyTerm = -w.EnergyPenalty * q.Depletion
	}
	b.Score = b.PreferenceTerm + b.DistanceTerm + b.DangerTerm + b.EnergyTerm
	return b
}

func (w Weights) Score(c Candidate, q Qualia) float64 {
	return w.Explain(c, q).Score
}

// Select returns the index of the highest scoring candidate, or -1 when
// cands is empty. Ties go to the earliest candidate.
func (w Weights) Select(cands []Candidate, q Qualia) (int, []Breakdown) {
	if len(cands) == 0 {
		return -1, nil
	}
	all := make([]Breakdown, len(cands))
	best := 0
	for i, c := range cands {
		all[i] = w.Explain(c, q)
		if all[i].Score > all[best].Score {
			best = i
		}
	}
	return best, all
}
