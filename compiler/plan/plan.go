package plan

import (
	"context"
	"os"

	"github.com/nikandfor/hacked/hfmt"
	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/gen"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/sched"
)

type (
	// Plan describes declarations by their requirements only.
	// It drives the scheduler without any real source code.
	Plan struct {
		Entities []Entity `yaml:"entities"`
	}

	Entity struct {
		Name  string `yaml:"name"`
		Needs []Need `yaml:"needs,omitempty"`

		// Fail is the phase the entity fails at with a semantic error.
		Fail sched.Phase `yaml:"fail,omitempty"`
	}

	// Need is a requirement raised while attempting phase At.
	// Tolerate makes a failed target not fail the entity itself.
	Need struct {
		At       sched.Phase `yaml:"at"`
		Target   string      `yaml:"target"`
		Phase    sched.Phase `yaml:"phase"`
		Tolerate bool        `yaml:"tolerate,omitempty"`
	}

	Outcome struct {
		Name  string
		Phase sched.Phase
		Err   sched.ErrKind
		Cause error
		Calls int
	}

	Report struct {
		Rounds   int
		Entities []Outcome
		Err      error
	}

	// Checker replays the plan as type checking and size computation
	// of declarations with the same names.
	Checker struct {
		Plan  *Plan
		Decls map[string]ast.Decl
	}
)

var ErrInjected = errors.New("injected failure")

func Load(name string) (*Plan, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read plan")
	}

	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	return p, nil
}

func Parse(data []byte) (*Plan, error) {
	var p Plan

	err := yaml.Unmarshal(data, &p)
	if err != nil {
		return nil, errors.Wrap(err, "decode plan")
	}

	err = p.validate()
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (p *Plan) validate() error {
	names := map[string]struct{}{}

	for _, e := range p.Entities {
		if e.Name == "" {
			return errors.New("entity without a name")
		}

		if _, ok := names[e.Name]; ok {
			return errors.New("entity %v defined twice", e.Name)
		}

		names[e.Name] = struct{}{}
	}

	for _, e := range p.Entities {
		if e.Fail != sched.Uninitialized && (e.Fail < sched.TypeChecked || e.Fail >= sched.NumPhases) {
			return errors.New("%v: can't fail at %v", e.Name, e.Fail)
		}

		for _, n := range e.Needs {
			if _, ok := names[n.Target]; !ok {
				return errors.New("%v: unknown target %v", e.Name, n.Target)
			}

			if n.At < sched.TypeChecked || n.At >= sched.NumPhases {
				return errors.New("%v: need raised at %v", e.Name, n.At)
			}

			if n.Phase < sched.Parsed || n.Phase >= sched.NumPhases {
				return errors.New("%v: need of %v at %v", e.Name, n.Target, n.Phase)
			}
		}
	}

	return nil
}

func (p *Plan) entity(name string) *Entity {
	for i := range p.Entities {
		if p.Entities[i].Name == name {
			return &p.Entities[i]
		}
	}

	return nil
}

// Run schedules the plan entities through all the phases.
// Compilation failures are reported in Report.Err,
// the returned error is for internal failures such as a deadlock.
func (p *Plan) Run(ctx context.Context) (r *Report, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "plan: run", "entities", len(p.Entities))
	defer tr.Finish("err", &err)

	s := sched.New()

	ids := make(map[string]sched.ID, len(p.Entities))
	calls := make(map[sched.ID]int, len(p.Entities))

	for i := range p.Entities {
		ids[p.Entities[i].Name] = s.Register(&p.Entities[i])
	}

	for ph := sched.TypeChecked; ph < sched.NumPhases; ph++ {
		ph := ph

		s.SetHandler(ph, sched.HandlerFunc(func(ctx context.Context, s *sched.Scheduler, id sched.ID) error {
			e := s.Get(id).Node.(*Entity)
			calls[id]++

			return e.replay(ph, func(target string, need sched.Phase) error {
				return s.Require(id, ids[target], need)
			})
		}))
	}

	err = s.Run(ctx)

	r = &Report{Rounds: s.Rounds}

	for _, e := range p.Entities {
		id := ids[e.Name]
		x := s.Get(id)

		r.Entities = append(r.Entities, Outcome{
			Name:  e.Name,
			Phase: x.Phase,
			Err:   x.Err,
			Cause: x.Cause,
			Calls: calls[id],
		})
	}

	if errors.Is(err, sched.ErrFailed) {
		r.Err = err
		err = nil
	}

	return r, err
}

func (e *Entity) replay(ph sched.Phase, require func(target string, p sched.Phase) error) error {
	for _, n := range e.Needs {
		if n.At != ph {
			continue
		}

		err := require(n.Target, n.Phase)
		if n.Tolerate && errors.Is(err, sched.ErrDependency) {
			continue
		}

		if err != nil {
			return err
		}
	}

	if e.Fail == ph {
		return errors.Wrap(ErrInjected, "%v at %v", e.Name, ph)
	}

	return nil
}

func (c *Checker) TypeCheck(ctx context.Context, d ast.Decl, deps gen.Deps) error {
	return c.replay(d, sched.TypeChecked, deps)
}

func (c *Checker) ComputeSize(ctx context.Context, d ast.Decl, deps gen.Deps) error {
	return c.replay(d, sched.SizeComputed, deps)
}

func (c *Checker) replay(d ast.Decl, ph sched.Phase, deps gen.Deps) error {
	e := c.Plan.entity(ast.Name(d))
	if e == nil {
		return nil
	}

	return e.replay(ph, func(target string, need sched.Phase) error {
		t, ok := c.Decls[target]
		if !ok {
			return errors.New("%v: no declaration for %v", e.Name, target)
		}

		return deps.Require(t, need)
	})
}

// Outcome looks up the outcome of the named entity.
func (r *Report) Outcome(name string) (Outcome, bool) {
	for _, o := range r.Entities {
		if o.Name == name {
			return o, true
		}
	}

	return Outcome{}, false
}

// MarshalYAML encodes the report with phase and error names.
func (r *Report) MarshalYAML() (any, error) {
	type entity struct {
		Name  string        `yaml:"name"`
		Phase sched.Phase   `yaml:"phase"`
		Err   sched.ErrKind `yaml:"err"`
		Cause string        `yaml:"cause,omitempty"`
		Calls int           `yaml:"calls"`
	}

	type report struct {
		Rounds   int      `yaml:"rounds"`
		Err      string   `yaml:"error,omitempty"`
		Entities []entity `yaml:"entities"`
	}

	doc := report{Rounds: r.Rounds}

	if r.Err != nil {
		doc.Err = r.Err.Error()
	}

	for _, o := range r.Entities {
		e := entity{Name: o.Name, Phase: o.Phase, Err: o.Err, Calls: o.Calls}

		if o.Cause != nil {
			e.Cause = o.Cause.Error()
		}

		doc.Entities = append(doc.Entities, e)
	}

	return doc, nil
}

// AppendText appends one line per entity.
func (r *Report) AppendText(b []byte) []byte {
	for _, o := range r.Entities {
		b = hfmt.Appendf(b, "%-16s %-14v", o.Name, o.Phase)

		if o.Err != sched.NoError {
			b = hfmt.Appendf(b, " %v: %v", o.Err, o.Cause)
		}

		b = append(b, '\n')
	}

	b = hfmt.Appendf(b, "rounds: %d\n", r.Rounds)

	if r.Err != nil {
		b = hfmt.Appendf(b, "error: %v\n", r.Err)
	}

	return b
}
