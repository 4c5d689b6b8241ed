package agent

import (
	"gridscout.ai/internal/sim/grid"
	"gridscout.ai/internal/sim/logic/pathfind"
)

// sweep visits every known empty cell in shuffled order looking for an
// object that was not where memory put it.
type sweep struct {
	lost   grid.Object
	match  func(grid.Object) bool
	queue  []grid.Pos
	queued map[grid.Pos]bool
}

func sameObject(o grid.Object) func(grid.Object) bool {
	return func(x grid.Object) bool { return x == o }
}

func anyGoal(o grid.Object) bool { return o.IsGoal() }

// startRecovery begins a sweep for any remembered object satisfying match;
// lost is the object reported in events.
func (c *Controller) startRecovery(lost grid.Object, match func(grid.Object) bool) {
	s := &sweep{lost: lost, match: match, queued: map[grid.Pos]bool{}}
	pos := c.pos()
	cells := c.mem.KnownEmpty()
	c.rng.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })
	for _, p := range cells {
		s.queued[p] = true
		if p != pos {
			s.queue = append(s.queue, p)
		}
	}
	c.recovery = s
	c.target = nil
	obj := lost
	c.emit(Event{Kind: EventRecoveryStarted, Object: &obj})
	c.setState(Recovering)
}

func (c *Controller) recover() bool {
	s := c.recovery
	if s == nil {
		c.setState(SeekingTarget)
		return false
	}
	if t, ok := c.findLost(s.match); ok {
		c.recovery = nil
		p, obj := t.Pos, t.Object
		c.emit(Event{Kind: EventRecovered, Target: &p, Object: &obj})
		switch _, holding := c.holding(); {
		case holding:
			c.setState(Delivering)
		case obj.IsGoal():
			// A missed release left the load on the floor.
			c.setState(SeekingTarget)
		default:
			c.target = &t
			c.setState(Approaching)
		}
		return false
	}

	// Cells learned during the sweep join the back of the queue.
	for _, p := range c.mem.KnownEmpty() {
		if !s.queued[p] {
			s.queued[p] = true
			s.queue = append(s.queue, p)
		}
	}

	pos := c.pos()
	for len(s.queue) > 0 {
		next := s.queue[0]
		if next == pos || !pathfind.Traversable(c.mem.Map, next) {
			s.queue = s.queue[1:]
			continue
		}
		path, ok := pathfind.FindPath(c.mem.Map, pos, next)
		if !ok {
			s.queue = s.queue[1:]
			continue
		}
		c.stepToward(path[1])
		return true
	}
	c.finish(OutcomeFailed, "recovery exhausted")
	return true
}

func (c *Controller) findLost(match func(grid.Object) bool) (Target, bool) {
	for _, s := range c.mem.Found.Sorted() {
		if !match(s.Object) {
			continue
		}
		if _, done := c.placed[s.Pos]; done {
			continue
		}
		return Target{Pos: s.Pos, Object: s.Object}, true
	}
	return Target{}, false
}
