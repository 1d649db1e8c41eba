package action

import "time"

// Series runs children one after another. The next child starts in the same
// Update in which the previous one finished. A Series with no children is
// DONE on Start. Nil children are dropped.
func Series(children ...*Action) *Action {
	return newAction(KindSeries, &series{kids: compact(children)}, nil)
}

// Parallel starts every child together and finishes when all of them have
// finished (join). Each child's cleanup runs on the tick it finishes.
func Parallel(children ...*Action) *Action {
	return newAction(KindParallel, &parallel{kids: compact(children)}, nil)
}

// Race starts every child together and finishes as soon as any child
// finishes, cancelling the others in that same Update.
func Race(children ...*Action) *Action {
	return newAction(KindRace, &parallel{kids: compact(children), race: true}, nil)
}

func compact(in []*Action) []*Action {
	out := make([]*Action, 0, len(in))
	for _, c := range in {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

type series struct {
	kids []*Action
	idx  int
}

func (s *series) start(now time.Time) error {
	s.idx = 0
	return s.advance(now)
}

// advance starts the child at idx, skipping past children that finish at
// start, until one is left RUNNING or none remain.
func (s *series) advance(now time.Time) error {
	for s.idx < len(s.kids) {
		c := s.kids[s.idx]
		if c.State() == Pending {
			if err := c.Start(now); err != nil {
				return err
			}
		}
		if !c.IsFinished() {
			return nil
		}
		s.idx++
	}
	return nil
}

func (s *series) update(now time.Time) error {
	if s.idx >= len(s.kids) {
		return nil
	}
	c := s.kids[s.idx]
	if err := c.Update(now); err != nil {
		return err
	}
	if c.IsFinished() {
		s.idx++
		return s.advance(now)
	}
	return nil
}

func (s *series) finished() bool {
	return s.idx >= len(s.kids)
}

// cancel only touches the current child; later children never started.
func (s *series) cancel(now time.Time) error {
	if s.idx >= len(s.kids) {
		return nil
	}
	return s.kids[s.idx].Cancel(now)
}

func (s *series) reset() {
	s.idx = 0
}

func (s *series) children() []*Action {
	return s.kids
}

type parallel struct {
	kids []*Action
	race bool
	won  bool
}

func (p *parallel) start(now time.Time) error {
	p.won = false
	for _, c := range p.kids {
		if err := c.Start(now); err != nil {
			return err
		}
	}
	return p.settle(now)
}

func (p *parallel) update(now time.Time) error {
	for _, c := range p.kids {
		if c.State() != Running {
			continue
		}
		if err := c.Update(now); err != nil {
			return err
		}
		if p.race && c.IsFinished() {
			break
		}
	}
	return p.settle(now)
}

// settle ends a race once any child has finished.
func (p *parallel) settle(now time.Time) error {
	if !p.race || p.won {
		return nil
	}
	for _, c := range p.kids {
		if c.IsFinished() {
			p.won = true
			return p.cancel(now)
		}
	}
	return nil
}

func (p *parallel) finished() bool {
	if len(p.kids) == 0 {
		return true
	}
	if p.race {
		return p.won
	}
	for _, c := range p.kids {
		if !c.IsFinished() {
			return false
		}
	}
	return true
}

func (p *parallel) cancel(now time.Time) error {
	var errs []error
	for _, c := range p.kids {
		if err := c.Cancel(now); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func (p *parallel) reset() {
	p.won = false
}

func (p *parallel) children() []*Action {
	return p.kids
}
