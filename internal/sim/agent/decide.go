package agent

import (
	"errors"

	"gridscout.ai/internal/command"
	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/logic/pathfind"
	"gridscout.ai/internal/sim/logic/scoring"
)

// Each handler returns true when the tick is consumed: a primitive was issued
// or the leg finished. Returning false means the state changed and the next
// handler should run within the same tick.

func (c *Controller) explore() bool {
	if held, ok := c.holding(); ok {
		if _, ok := c.pickGoal(held); ok {
			c.setState(Delivering)
			return false
		}
	} else if cands, _ := c.candidates(); len(cands) > 0 {
		if !c.cfg.ExhaustiveExplore || !c.mem.HasReachableUnknown() {
			c.setState(SeekingTarget)
			return false
		}
	}

	if c.exploreStep() || c.refreshStep() {
		return true
	}

	if _, ok := c.holding(); ok {
		c.finish(OutcomeFailed, "no goal found")
		return true
	}
	if cands, _ := c.candidates(); len(cands) > 0 {
		c.setState(SeekingTarget)
		return false
	}
	c.finish(OutcomeExplored, "nothing left to explore")
	return true
}

// exploreStep moves toward the nearest frontier cell, or looks around when
// standing on one.
func (c *Controller) exploreStep() bool {
	path, ok := pathfind.Nearest(c.mem.Map, c.pos(), c.mem.IsFrontier)
	if !ok {
		return false
	}
	if len(path) == 1 {
		c.apply(command.Look, false)
		return true
	}
	c.stepToward(path[1])
	return true
}

// refreshStep re-checks memory carried over from an earlier visit: it heads
// for the nearest cell next to something not observed during this visit.
func (c *Controller) refreshStep() bool {
	path, ok := pathfind.Nearest(c.mem.Map, c.pos(), func(q grid.Pos) bool {
		for _, n := range q.Neighbors() {
			if _, known := c.mem.Map[n]; !known {
				continue
			}
			if _, ok := c.seen[n]; !ok {
				return true
			}
		}
		return false
	})
	if !ok {
		return false
	}
	if len(path) == 1 {
		c.apply(command.Look, false)
		return true
	}
	c.stepToward(path[1])
	return true
}

func (c *Controller) seek() bool {
	if _, ok := c.holding(); ok {
		c.setState(Delivering)
		return false
	}
	cands, targets := c.candidates()
	if len(cands) == 0 {
		c.setState(Exploring)
		return false
	}
	best, scores := c.cfg.Weights.Select(cands, c.scoringQualia())
	t := targets[best]
	c.target = &t
	p, obj := t.Pos, t.Object
	c.emit(Event{Kind: EventTargetSelected, Target: &p, Object: &obj, Scores: scores})
	c.setState(Approaching)
	return false
}

func (c *Controller) approach() bool {
	if _, ok := c.holding(); ok {
		c.setState(Delivering)
		return false
	}
	if c.target == nil {
		c.setState(SeekingTarget)
		return false
	}
	if grid.Manhattan(c.pos(), c.target.Pos) == 1 {
		c.setState(Grabbing)
		return false
	}
	return c.travelNextTo(c.target.Pos)
}

// travelNextTo takes one step toward any cell adjacent to p. Without a known
// route it explores; with nothing left to explore the leg fails.
func (c *Controller) travelNextTo(p grid.Pos) bool {
	path, ok := pathfind.Nearest(c.mem.Map, c.pos(), func(q grid.Pos) bool {
		return grid.Manhattan(q, p) == 1
	})
	if ok && len(path) > 1 {
		c.stepToward(path[1])
		return true
	}
	if c.exploreStep() || c.refreshStep() {
		return true
	}
	c.finish(OutcomeFailed, "target unreachable")
	return true
}

func (c *Controller) grab() bool {
	t := c.target
	if t == nil {
		c.setState(SeekingTarget)
		return false
	}
	if grid.Manhattan(c.pos(), t.Pos) != 1 {
		c.setState(Approaching)
		return false
	}
	if c.face(t.Pos) {
		return true
	}
	out := c.apply(command.Grab, false)
	switch {
	case out.Err == nil:
		c.target = nil
		c.setState(Delivering)
	case errors.Is(out.Err, grid.ErrNothingToGrab):
		c.startRecovery(t.Object, sameObject(t.Object))
	case errors.Is(out.Err, grid.ErrAlreadyHolding):
		c.setState(Delivering)
	default:
		c.target = nil
		c.setState(SeekingTarget)
	}
	return true
}

func (c *Controller) deliver() bool {
	held, ok := c.holding()
	if !ok {
		c.setState(SeekingTarget)
		return false
	}
	g, ok := c.pickGoal(held)
	if !ok {
		if c.goal != nil {
			// The goal we were heading for is gone from memory.
			lost := *c.goal
			c.goal = nil
			c.startRecovery(lost, anyGoal)
			return false
		}
		c.setState(Exploring)
		return false
	}
	heading := g.Object
	c.goal = &heading
	if grid.Manhattan(c.pos(), g.Pos) != 1 {
		return c.travelNextTo(g.Pos)
	}
	if c.face(g.Pos) {
		return true
	}
	out := c.apply(command.Release, false)
	if out.Err != nil {
		return true
	}
	c.goal = nil
	if !out.Delivered {
		p := g.Pos
		c.emit(Event{Kind: EventReleaseMissed, Target: &p, Object: &held})
		c.startRecovery(g.Object, anyGoal)
		return true
	}
	c.delivered++
	c.placed[g.Pos] = struct{}{}
	p, goal := g.Pos, g.Object
	c.emit(Event{Kind: EventDelivered, Target: &p, Object: &goal})
	if c.delivered >= c.cfg.Deliveries {
		c.finish(OutcomeComplete, "")
	} else {
		c.setState(SeekingTarget)
	}
	return true
}

// candidates lists known targets ordered by position with their scoring inputs.
func (c *Controller) candidates() ([]scoring.Candidate, []Target) {
	pos := c.pos()
	var (
		cands   []scoring.Candidate
		targets []Target
	)
	for _, s := range c.mem.Found.Sorted() {
		if s.Object.IsGoal() {
			continue
		}
		if _, done := c.placed[s.Pos]; done {
			continue
		}
		if c.cfg.TargetName != "" && s.Object.Name != c.cfg.TargetName {
			continue
		}
		d := pathfind.Distance(c.mem.Map, pos, s.Pos)
		if d < 0 {
			d = grid.Manhattan(pos, s.Pos)
		} else {
			d++
		}
		cands = append(cands, scoring.Candidate{Pos: s.Pos, Color: s.Object.Color, Distance: d, InDanger: s.InDanger})
		targets = append(targets, Target{Pos: s.Pos, Object: s.Object})
	}
	return cands, targets
}

// pickGoal prefers a goal matching the held color, then a generic goal, then
// any other goal. Within a tier the nearest by route wins.
func (c *Controller) pickGoal(held grid.Object) (Target, bool) {
	const unreachable = 1 << 20
	pos := c.pos()
	var (
		best     Target
		bestTier = 3
		bestDist int
	)
	for _, s := range c.mem.Found.Sorted() {
		if !s.Object.IsGoal() {
			continue
		}
		if _, done := c.placed[s.Pos]; done {
			continue
		}
		tier := 2
		switch s.Object.GoalColor() {
		case held.Color:
			tier = 0
		case "":
			tier = 1
		}
		d := pathfind.Distance(c.mem.Map, pos, s.Pos)
		if d < 0 {
			d = unreachable + grid.Manhattan(pos, s.Pos)
		}
		if tier < bestTier || (tier == bestTier && d < bestDist) {
			best, bestTier, bestDist = Target{Pos: s.Pos, Object: s.Object}, tier, d
		}
	}
	return best, bestTier < 3
}
