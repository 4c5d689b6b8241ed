package scoring

import (
	"math"
	"testing"
)

func fearScenario() []Candidate {
	return []Candidate{
		{Color: "red", Distance: 2, InDanger: true},
		{Color: "blue", Distance: 5},
	}
}

func TestSelect_FearAvoidsDanger(t *testing.T) {
	w := DefaultWeights()
	q := Qualia{Preference: map[string]float64{"red": 1.0, "blue": 0.3}, Fear: 0.8}
	best, all := w.Select(fearScenario(), q)
	if best != 1 {
		t.Fatalf("picked %s, scores=%+v", fearScenario()[best].Color, all)
	}
}

func TestSelect_NoFearPrefersRed(t *testing.T) {
	w := DefaultWeights()
	q := Qualia{Preference: map[string]float64{"red": 1.0, "blue": 0.3}, Fear: 0}
	best, all := w.Select(fearScenario(), q)
	if best != 0 {
		t.Fatalf("picked %s, scores=%+v", fearScenario()[best].Color, all)
	}
}

func TestScore_Terms(t *testing.T) {
	w := DefaultWeights()
	q := Qualia{Preference: map[string]float64{"red": 1.0}, Fear: 0.5, Urgency: 0.5}
	got := w.Score(Candidate{Color: "red", Distance: 4, InDanger: true}, q)
	want := 10.0 - 4*(0.5+0.5) - 0.5*15
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("score=%v want %v", got, want)
	}
}

func TestScore_DefaultPreference(t *testing.T) {
	w := DefaultWeights()
	got := w.Score(Candidate{Color: "green"}, Qualia{})
	if got != 5 {
		t.Fatalf("score=%v want 5", got)
	}
}

func TestScore_EnergyPenalty(t *testing.T) {
	w := DefaultWeights()
	near := w.Explain(Candidate{Color: "red", Distance: 5}, Qualia{Depletion: 0.8})
	if near.EnergyTerm != 0 {
		t.Fatalf("energy term applied at distance 5: %+v", near)
	}
	far := w.Explain(Candidate{Color: "red", Distance: 6}, Qualia{Depletion: 0.8})
	if math.Abs(far.EnergyTerm+4) > 1e-9 {
		t.Fatalf("energy term=%v want -4", far.EnergyTerm)
	}
	rested := w.Explain(Candidate{Color: "red", Distance: 9}, Qualia{Depletion: 0.5})
	if rested.EnergyTerm != 0 {
		t.Fatalf("energy term applied at depletion 0.5")
	}
}

func TestSelect_TieFirstWins(t *testing.T) {
	w := DefaultWeights()
	cands := []Candidate{{Color: "a", Distance: 3}, {Color: "b", Distance: 3}}
	if best, _ := w.Select(cands, Qualia{}); best != 0 {
		t.Fatalf("best=%d want 0", best)
	}
	if best, _ := w.Select(nil, Qualia{}); best != -1 {
		t.Fatalf("empty best=%d", best)
	}
}

func TestSelect_Pure(t *testing.T) {
	w := DefaultWeights()
	q := Qualia{Preference: map[string]float64{"red": 1.0, "blue": 0.3}, Fear: 0.8}
	c := fearScenario()
	a, _ := w.Select(c, q)
	b, _ := w.Select(c, q)
	if a != b || c[0].Color != "red" || q.Fear != 0.8 {
		t.Fatalf("select not pure")
	}
}
