package compiler

import (
	"context"
	"encoding/binary"
	"slices"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/abi"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/gen"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/interp"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/sched"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

type (
	// Checker is the semantic front end.
	// It reports what it needs from other declarations through deps
	// and returns the error deps returned if it can't go on.
	Checker interface {
		TypeCheck(ctx context.Context, d ast.Decl, deps gen.Deps) error
		ComputeSize(ctx context.Context, d ast.Decl, deps gen.Deps) error
	}

	Options struct {
		ABI *abi.Resolver

		// Checker nil accepts everything as is.
		Checker Checker

		// MaxSteps limits every compile time execution. Zero keeps the interpreter default.
		MaxSteps int
	}

	Result struct {
		Procs map[string]*gen.Result
		Runs  []RunResult

		Diagnostics []sched.Diagnostic
		Rounds      int

		Machine *interp.Machine
	}

	// RunResult is a value computed by a run directive, in target memory layout.
	RunResult struct {
		Directive *ast.RunDirective
		Name      string
		Value     []byte
	}

	compilation struct {
		opts Options

		s *sched.Scheduler
		m *interp.Machine

		built map[ast.Decl]*gen.Result
		runs  map[*ast.RunDirective]string

		res *Result
	}

	// deps answers requirements of one entity.
	deps struct {
		c    *compilation
		self sched.ID
	}
)

// Compile drives declarations through all the phases.
// Run directives are executed as soon as everything they may reach is ready.
// On compilation errors the result is still returned with diagnostics filled in.
func Compile(ctx context.Context, decls []ast.Decl, opts Options) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "decls", len(decls))
	defer tr.Finish("err", &err)

	c := &compilation{
		opts:  opts,
		s:     sched.New(),
		m:     interp.New(),
		built: map[ast.Decl]*gen.Result{},
		runs:  map[*ast.RunDirective]string{},
		res: &Result{
			Procs: map[string]*gen.Result{},
		},
	}

	if opts.MaxSteps != 0 {
		c.m.MaxSteps = opts.MaxSteps
	}

	c.res.Machine = c.m

	for _, d := range decls {
		if r, ok := d.(*ast.RunDirective); ok {
			c.runs[r] = "#run." + strconv.Itoa(len(c.runs))
		}

		c.s.Register(d)
	}

	c.s.SetHandler(sched.TypeChecked, sched.HandlerFunc(c.typeCheck))
	c.s.SetHandler(sched.SizeComputed, sched.HandlerFunc(c.computeSize))
	c.s.SetHandler(sched.BytecodeBuilt, sched.HandlerFunc(c.bytecode))
	c.s.SetHandler(sched.Run, sched.HandlerFunc(c.run))

	err = c.s.Run(ctx)

	c.res.Rounds = c.s.Rounds
	c.res.Diagnostics = c.s.Diagnostics()

	for _, d := range c.res.Diagnostics {
		tr.Printw("diagnostic", "id", d.ID, "decl", name(c, d.Node), "kind", d.Kind, "err", d.Err)
	}

	for d, r := range c.built {
		if p, ok := d.(*ast.Proc); ok {
			c.res.Procs[p.Name] = r
		}
	}

	// directives are done with, their results are kept in Runs
	for r := range c.runs {
		id, ok := c.s.Lookup(r)
		if !ok {
			continue
		}

		if e := c.s.Get(id); e.Phase == sched.Run || e.Err != sched.NoError {
			c.s.Free(id)
		}
	}

	if err != nil {
		return c.res, err
	}

	return c.res, nil
}

func (c *compilation) typeCheck(ctx context.Context, s *sched.Scheduler, id sched.ID) error {
	if c.opts.Checker == nil {
		return nil
	}

	return c.opts.Checker.TypeCheck(ctx, s.Get(id).Node.(ast.Decl), c.deps(id))
}

func (c *compilation) computeSize(ctx context.Context, s *sched.Scheduler, id sched.ID) error {
	if c.opts.Checker == nil {
		return nil
	}

	return c.opts.Checker.ComputeSize(ctx, s.Get(id).Node.(ast.Decl), c.deps(id))
}

func (c *compilation) bytecode(ctx context.Context, s *sched.Scheduler, id sched.ID) error {
	switch d := s.Get(id).Node.(type) {
	case *ast.Proc:
		return c.build(ctx, id, d, d)
	case *ast.Var:
		c.m.Global(d.Name, d.T.Size(), d.T.Align())

		if d.Init == nil {
			return nil
		}

		p := ast.NewProc(d.Name+".init", &tp.Func{}, nil, &ast.Assign{
			Lhs: []ast.Expr{ast.Ref(d)},
			Rhs: []ast.Expr{d.Init},
		})

		return c.build(ctx, id, d, p)
	case *ast.RunDirective:
		var p *ast.Proc

		if t := d.X.Type(); t.Size() == 0 {
			p = ast.NewProc(c.runs[d], &tp.Func{}, nil, &ast.ExprStmt{X: d.X})
		} else {
			p = ast.NewProc(c.runs[d], &tp.Func{Out: []tp.Type{t}}, nil, &ast.Return{Results: []ast.Expr{d.X}})
		}

		return c.build(ctx, id, d, p)
	default:
		return nil
	}
}

func (c *compilation) build(ctx context.Context, id sched.ID, d ast.Decl, p *ast.Proc) error {
	res, err := gen.Build(ctx, p, gen.Config{
		ABI:  c.opts.ABI,
		Deps: c.deps(id),
	})
	if err != nil {
		return err
	}

	c.built[d] = res
	c.m.AddProc(res.Proc)

	return nil
}

func (c *compilation) run(ctx context.Context, s *sched.Scheduler, id sched.ID) error {
	d, ok := s.Get(id).Node.(ast.Decl)
	if !ok {
		return nil
	}

	res := c.built[d]

	switch d := d.(type) {
	case *ast.Var:
		if res == nil {
			return nil
		}

		if err := c.ready(id, d, res); err != nil {
			return err
		}

		if _, err := c.m.Call(ctx, res.Proc.Name); err != nil {
			return errors.Wrap(err, "init %v", d.Name)
		}

		return nil
	case *ast.RunDirective:
		if err := c.ready(id, d, res); err != nil {
			return err
		}

		v, err := c.execute(ctx, res)
		if err != nil {
			return errors.Wrap(err, "%v", c.runs[d])
		}

		tlog.SpanFromContext(ctx).Printw("run directive", "name", c.runs[d], "value", v)

		c.res.Runs = append(c.res.Runs, RunResult{
			Directive: d,
			Name:      c.runs[d],
			Value:     v,
		})

		return nil
	default:
		return nil
	}
}

// ready yields until everything the code may reach at run time is available:
// procedures it calls transitively are built and the globals they use are initialized.
// All the missing requirements are recorded at once.
func (c *compilation) ready(id sched.ID, self ast.Decl, root *gen.Result) error {
	seen := map[ast.Decl]struct{}{self: {}}
	var yield error

	var walk func(r *gen.Result) error

	walk = func(r *gen.Result) error {
		for _, g := range r.Globals {
			if _, ok := seen[g]; ok {
				continue
			}

			seen[g] = struct{}{}

			err := c.require(id, g, sched.Run)
			if errors.Is(err, sched.ErrYield) {
				yield = err
				continue
			}

			if err != nil {
				return err
			}
		}

		for _, p := range r.Callees {
			if _, ok := seen[p]; ok {
				continue
			}

			seen[p] = struct{}{}

			err := c.require(id, p, sched.BytecodeBuilt)
			if errors.Is(err, sched.ErrYield) {
				yield = err
				continue
			}

			if err != nil {
				return err
			}

			if err = walk(c.built[p]); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk(root); err != nil {
		return err
	}

	return yield
}

// execute runs the directive procedure and returns its result bytes.
func (c *compilation) execute(ctx context.Context, res *gen.Result) ([]byte, error) {
	if len(res.Sig.Results) == 0 {
		_, err := c.m.Call(ctx, res.Proc.Name)

		return nil, err
	}

	t := res.Sig.Results[0]

	if len(res.Sig.Hidden) == 0 {
		v, err := c.m.Call(ctx, res.Proc.Name)
		if err != nil {
			return nil, err
		}

		return binary.LittleEndian.AppendUint64(nil, v)[:t.Size()], nil
	}

	out := c.m.Global(res.Proc.Name+".out", t.Size(), t.Align())

	_, err := c.m.Call(ctx, res.Proc.Name, out)
	if err != nil {
		return nil, err
	}

	b, err := c.m.Bytes(out, t.Size())
	if err != nil {
		return nil, err
	}

	return slices.Clone(b), nil
}

func (c *compilation) require(self sched.ID, d ast.Decl, p sched.Phase) error {
	return c.deps(self).Require(d, p)
}

func (c *compilation) deps(id sched.ID) deps {
	return deps{c: c, self: id}
}

func (d deps) Require(x ast.Decl, p sched.Phase) error {
	id, ok := d.c.s.Lookup(x)
	if !ok {
		return errors.New("%v is not declared", name(d.c, x))
	}

	return d.c.s.Require(d.self, id, p)
}

// Global returns the final contents of a global variable.
func (r *Result) Global(v *ast.Var) ([]byte, error) {
	addr := r.Machine.Global(v.Name, v.T.Size(), v.T.Align())

	b, err := r.Machine.Bytes(addr, v.T.Size())
	if err != nil {
		return nil, err
	}

	return slices.Clone(b), nil
}

func name(c *compilation, n any) string {
	if r, ok := n.(*ast.RunDirective); ok {
		return c.runs[r]
	}

	if d, ok := n.(ast.Decl); ok {
		return ast.Name(d)
	}

	return ""
}
