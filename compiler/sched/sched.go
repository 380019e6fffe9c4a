package sched

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

type (
	// Handler attempts one phase for one entity.
	// It returns nil if the phase is complete,
	// an error wrapping ErrYield after recording a dependency with Require or Need,
	// or any other error to mark the entity as failed.
	Handler interface {
		Handle(ctx context.Context, s *Scheduler, id ID) error
	}

	HandlerFunc func(ctx context.Context, s *Scheduler, id ID) error

	// Scheduler drives entities through the phases.
	// It is the whole scheduling state of one compilation run.
	Scheduler struct {
		*Pool

		queues   [NumPhases][]ID
		handlers [NumPhases]Handler

		// cycle detection pass state
		counter int
		comps   int
		stack   []ID

		Rounds int
	}

	Diagnostic struct {
		ID   ID
		Node any
		Kind ErrKind
		Err  error
	}
)

var (
	ErrYield      = errors.New("yield")
	ErrDependency = errors.New("dependency failed")
	ErrDeadlock   = errors.New("internal error: scheduler deadlock")
	ErrFailed     = errors.New("compilation failed")
	ErrCycle      = errors.New("dependency cycle")
)

func New() *Scheduler {
	return &Scheduler{
		Pool: NewPool(),
	}
}

func (f HandlerFunc) Handle(ctx context.Context, s *Scheduler, id ID) error {
	return f(ctx, s, id)
}

// SetHandler installs the handler for entities attempting phase p.
// Phases without a handler complete immediately.
func (s *Scheduler) SetHandler(p Phase, h Handler) {
	if p <= Parsed || p >= NumPhases {
		panic("no handler for phase " + p.String())
	}

	s.handlers[p] = h
}

// Register adds an entity for node and queues it for type checking.
func (s *Scheduler) Register(node any) ID {
	id := s.Add(node)

	s.queues[TypeChecked] = append(s.queues[TypeChecked], id)

	return id
}

// Queue returns the entities waiting to attempt phase p.
func (s *Scheduler) Queue(p Phase) []ID {
	return s.queues[p]
}

// Require returns nil if target reached phase p.
// Otherwise it records the edge and returns an error wrapping ErrYield,
// or ErrDependency if target failed and will never get there.
func (s *Scheduler) Require(self, target ID, p Phase) error {
	t := s.Get(target)

	if t.Phase >= p {
		return nil
	}

	if t.Err != NoError {
		return errors.Wrap(ErrDependency, "entity %d (%v)", target, t.Err)
	}

	s.Need(self, Dep{Target: target, Phase: p})

	tlog.V("sched_yield").Printw("yield", "id", self, "target", target, "phase", p, "target_phase", t.Phase)

	return errors.Wrap(ErrYield, "wait for %d to reach %v", target, p)
}

// Run repeats rounds over all phases until every entity is finished or failed.
// A round where nothing advanced, nothing failed and no new edge was recorded
// while work remains is a deadlock.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "sched: run", "entities", s.Len())
	defer tr.Finish("rounds", &s.Rounds, "err", &err)

	for s.outstanding() != 0 {
		s.Rounds++

		progress := false

		for p := TypeChecked; p < NumPhases; p++ {
			if len(s.queues[p]) == 0 {
				continue
			}

			if s.detectCycles(ctx, p) != 0 {
				progress = true
			}

			if s.runPhase(ctx, p) {
				progress = true
			}
		}

		if tr.If("sched_round") {
			tr.Printw("round", "round", s.Rounds, "progress", progress, "outstanding", s.outstanding(),
				"typechecked", len(s.queues[TypeChecked]), "sizecomputed", len(s.queues[SizeComputed]),
				"bytecodebuilt", len(s.queues[BytecodeBuilt]), "run", len(s.queues[Run]))
		}

		if !progress {
			return errors.Wrap(ErrDeadlock, "round %d: %d entities outstanding", s.Rounds, s.outstanding())
		}
	}

	if n := s.failedCount(); n != 0 {
		return errors.Wrap(ErrFailed, "%d declarations with errors", n)
	}

	return nil
}

func (s *Scheduler) runPhase(ctx context.Context, p Phase) (progress bool) {
	q := s.queues[p]
	s.queues[p] = nil

	keep := q[:0]

	for _, id := range q {
		e := s.Get(id)

		if e.Err != NoError {
			progress = true
			continue
		}

		if s.waiting(id) {
			keep = append(keep, id)
			continue
		}

		err := s.handle(ctx, p, id)

		e = s.Get(id)

		switch {
		case err == nil:
			e.Phase = p
			e.Deps = e.Deps[:0]

			if p+1 < NumPhases {
				s.queues[p+1] = append(s.queues[p+1], id)
			}

			progress = true
		case errors.Is(err, ErrYield):
			keep = append(keep, id)

			// waiting returned false, so every recorded edge is new
			if len(e.Deps) != 0 {
				progress = true
			}
		case errors.Is(err, ErrDependency):
			s.SetError(id, Dependency, err)
			progress = true
		default:
			s.SetError(id, Semantic, err)
			progress = true
		}
	}

	s.queues[p] = append(keep, s.queues[p]...)

	return progress
}

func (s *Scheduler) handle(ctx context.Context, p Phase, id ID) (err error) {
	h := s.handlers[p]
	if h == nil {
		return nil
	}

	if !tlog.If("sched_phase") {
		return h.Handle(ctx, s, id)
	}

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "sched: handle", "id", id, "phase", p)
	defer tr.Finish("err", &err)

	return h.Handle(ctx, s, id)
}

// waiting drops dated edges and edges to failed entities
// and reports whether the entity still has to wait.
func (s *Scheduler) waiting(id ID) bool {
	e := s.Get(id)

	deps := e.Deps[:0]

	for _, d := range e.Deps {
		if s.Satisfied(d) || s.Failed(d.Target) {
			continue
		}

		deps = append(deps, d)
	}

	e.Deps = deps

	return len(deps) != 0
}

func (s *Scheduler) outstanding() (n int) {
	for p := range s.queues {
		for _, id := range s.queues[p] {
			if s.ents[id].Err == NoError {
				n++
			}
		}
	}

	return n
}

func (s *Scheduler) failedCount() (n int) {
	for _, e := range s.ents {
		if e.Err != NoError {
			n++
		}
	}

	return n
}

// Diagnostics lists failed entities in index order.
func (s *Scheduler) Diagnostics() []Diagnostic {
	var r []Diagnostic

	for i, e := range s.ents {
		if e.Err == NoError {
			continue
		}

		r = append(r, Diagnostic{
			ID:   ID(i),
			Node: e.Node,
			Kind: e.Err,
			Err:  e.Cause,
		})
	}

	return r
}
