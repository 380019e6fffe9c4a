package sched

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// detectCycles partitions the wait-for graph reachable from the queue of phase p
// into strongly connected components.
// Edges whose requirement is already met are not followed.
// Members of a component with more than one entity or with a self edge are failed with Cycle,
// entities waiting on a cyclic failure are failed with CycleDependent in the same pass.
// It returns the number of newly failed entities.
func (s *Scheduler) detectCycles(ctx context.Context, p Phase) (failed int) {
	for i := range s.ents {
		e := &s.ents[i]

		e.index = -1
		e.low = -1
		e.onStack = false
	}

	s.counter = 0
	s.stack = s.stack[:0]

	for _, id := range s.queues[p] {
		e := &s.ents[id]

		if e.Err != NoError || e.index != -1 || len(e.Deps) == 0 {
			continue
		}

		failed += s.strongConnect(ctx, p, id)
	}

	return failed
}

func (s *Scheduler) strongConnect(ctx context.Context, p Phase, v ID) (failed int) {
	e := &s.ents[v]

	e.index = s.counter
	e.low = s.counter
	s.counter++

	s.stack = append(s.stack, v)
	e.onStack = true

	self := false
	taint := false

	for _, d := range e.Deps {
		if s.Satisfied(d) {
			continue
		}

		w := &s.ents[d.Target]

		if w.Err != NoError {
			taint = taint || w.Err.cyclic()
			continue
		}

		if d.Target == v {
			self = true
		}

		switch {
		case w.index == -1:
			failed += s.strongConnect(ctx, p, d.Target)

			e.low = min(e.low, w.low)
			taint = taint || w.Err.cyclic()
		case w.onStack:
			e.low = min(e.low, w.index)
		}
	}

	if e.low != e.index {
		return failed
	}

	comp := s.comps
	s.comps++

	var members []ID

	for {
		l := len(s.stack) - 1
		w := s.stack[l]
		s.stack = s.stack[:l]

		s.ents[w].onStack = false
		s.ents[w].comp = comp

		members = append(members, w)

		if w == v {
			break
		}
	}

	switch {
	case len(members) > 1 || self:
		err := errors.Wrap(ErrCycle, "entities %v", members)

		for _, w := range members {
			s.SetError(w, Cycle, err)
		}

		tlog.SpanFromContext(ctx).V("sched_cycle").Printw("dependency cycle", "phase", p, "members", members)

		failed += len(members)
	case taint:
		s.SetError(v, CycleDependent, errors.Wrap(ErrCycle, "entity %d waits on a cycle", v))

		failed++
	}

	return failed
}
