package memory

import "gridscout.ai/internal/sim/grid"

type ErrorKind string

const (
	Appeared    ErrorKind = "appeared"
	Disappeared ErrorKind = "disappeared"
	BecameWall  ErrorKind = "became_wall"
	WallRemoved ErrorKind = "wall_removed"
	Changed     ErrorKind = "changed"
)

// PredictionError is a mismatch between a prior belief and a fresh observation.
type PredictionError struct {
	Pos      grid.Pos      `json:"pos"`
	Kind     ErrorKind     `json:"kind"`
	Expected grid.CellKind `json:"expected"`
	Actual   grid.CellKind `json:"actual"`
}

// DetectPredictionError compares the belief at pos with observed. A cell with
// no prior belief never yields an error.
func (m *Memory) DetectPredictionError(pos grid.Pos, observed grid.CellKind) (PredictionError, bool) {
	expected, ok := m.Map[pos]
	if !ok || expected == observed {
		return PredictionError{}, false
	}
	pe := PredictionError{Pos: pos, Expected: expected, Actual: observed}
	switch {
	case expected == grid.ObjectCell:
		pe.Kind = Disappeared
	case observed == grid.ObjectCell:
		pe.Kind = Appeared
	case observed == grid.Wall:
		pe.Kind = BecameWall
	case expected == grid.Wall:
		pe.Kind = WallRemoved
	default:
		pe.Kind = Changed
	}
	return pe, true
}
