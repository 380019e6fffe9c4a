package gen

import (
	"context"
	"slices"

	"tlog.app/go/errors"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/abi"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

func (b *Builder) stmt(ctx context.Context, s ast.Stmt) error {
	if b.dead {
		// unreachable
		return nil
	}

	defer b.endStmt()

	switch s := s.(type) {
	case *ast.Block:
		return b.block(ctx, s.List)
	case *ast.ExprStmt:
		_, err := b.expr(ctx, s.X)
		return err
	case *ast.DeclStmt:
		return b.declare(ctx, s.Var)
	case *ast.Assign:
		return b.assign(ctx, s)
	case *ast.If:
		return b.ifStmt(ctx, s)
	case *ast.For:
		return b.forStmt(ctx, s)
	case *ast.While:
		if s.DoWhile {
			return b.doWhile(ctx, s)
		}

		return b.while(ctx, s)
	case *ast.Switch:
		return b.switchStmt(ctx, s)
	case *ast.Break:
		t := b.innermost(false)
		if t == nil {
			return errors.New("break outside of a loop or switch")
		}

		if err := b.replay(ctx, t.depth); err != nil {
			return err
		}

		t.breaks = append(t.breaks, b.Jump())
	case *ast.Continue:
		t := b.innermost(true)
		if t == nil {
			return errors.New("continue outside of a loop")
		}

		if err := b.replay(ctx, t.depth); err != nil {
			return err
		}

		t.continues = append(t.continues, b.Jump())
	case *ast.Fallthrough:
		t := b.innermost(false)
		if t == nil || t.loop {
			return errors.New("fallthrough outside of a switch")
		}

		if err := b.replay(ctx, t.depth); err != nil {
			return err
		}

		t.falls = append(t.falls, b.Jump())
	case *ast.Return:
		return b.ret(ctx, s)
	case *ast.Defer:
		l := len(b.scopes) - 1
		b.scopes[l].defers = append(b.scopes[l].defers, s.Stmt)
	default:
		return errors.Wrap(ErrUnsupported, "statement %T", s)
	}

	return nil
}

// block lowers statements in a new scope and runs its defers
// if control falls off the end.
func (b *Builder) block(ctx context.Context, list []ast.Stmt) (err error) {
	b.scopes = append(b.scopes, scope{})

	for _, s := range list {
		if err = b.stmt(ctx, s); err != nil {
			return err
		}
	}

	if !b.dead {
		err = b.replay(ctx, len(b.scopes)-1)
	}

	b.scopes = b.scopes[:len(b.scopes)-1]

	return err
}

// replay emits deferred statements of scopes deeper than depth,
// innermost first and in reverse order of registration.
func (b *Builder) replay(ctx context.Context, depth int) error {
	saved := b.scopes
	defer func() { b.scopes = saved }()

	for i := len(saved) - 1; i >= depth; i-- {
		ds := saved[i].defers

		b.scopes = slices.Clip(saved[:i])

		for j := len(ds) - 1; j >= 0; j-- {
			if err := b.stmt(ctx, ds[j]); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *Builder) innermost(loop bool) *target {
	for i := len(b.targets) - 1; i >= 0; i-- {
		if t := b.targets[i]; t.loop || !loop {
			return t
		}
	}

	return nil
}

func (b *Builder) declare(ctx context.Context, v *ast.Var) error {
	slot := b.Local(v.T.Size(), v.T.Align())
	b.vars[v] = slot

	if v.Init == nil {
		b.zero(slot, v.T)
		return nil
	}

	x, err := b.expr(ctx, v.Init)
	if err != nil {
		return err
	}

	b.store(slot, v.T, x)

	return nil
}

func (b *Builder) assign(ctx context.Context, s *ast.Assign) error {
	if s.Op != "" {
		return b.compound(ctx, s)
	}

	if len(s.Lhs) != 1 && len(s.Rhs) == 1 {
		c, ok := s.Rhs[0].(*ast.Call)
		if !ok {
			return errors.New("assignment mismatch: %d targets, 1 value", len(s.Lhs))
		}

		dsts, err := b.lvalues(ctx, s.Lhs)
		if err != nil {
			return err
		}

		_, all, err := b.call(ctx, c)
		if err != nil {
			return err
		}

		if len(all) != len(dsts) {
			return errors.New("assignment mismatch: %d targets, %d results", len(dsts), len(all))
		}

		for i, d := range dsts {
			b.store(d.Reg, d.Type, all[i])
		}

		return nil
	}

	if len(s.Lhs) != len(s.Rhs) {
		return errors.New("assignment mismatch: %d targets, %d values", len(s.Lhs), len(s.Rhs))
	}

	dsts, err := b.lvalues(ctx, s.Lhs)
	if err != nil {
		return err
	}

	if len(dsts) == 1 {
		v, err := b.expr(ctx, s.Rhs[0])
		if err != nil {
			return err
		}

		b.store(dsts[0].Reg, dsts[0].Type, v)

		return nil
	}

	// all values are read before any target is written
	vals := make([]Value, len(s.Rhs))

	for i, x := range s.Rhs {
		v, err := b.expr(ctx, x)
		if err != nil {
			return err
		}

		vals[i] = b.detach(v)
	}

	for i, d := range dsts {
		b.store(d.Reg, d.Type, vals[i])
	}

	return nil
}

// detach makes a copy of v which is not affected by later stores.
func (b *Builder) detach(v Value) Value {
	if v.Kind != LValue {
		return rvalue(v.Type, b.Value(v))
	}

	if tp.IsScalar(v.Type) || regType(v.Type) != ir.Void {
		return rvalue(v.Type, b.Value(v))
	}

	tmp := b.Local(v.Type.Size(), v.Type.Align())
	b.Copy(tmp, v.Reg, v.Type.Size(), v.Type.Align())

	return lvalue(v.Type, tmp)
}

func (b *Builder) lvalues(ctx context.Context, xs []ast.Expr) ([]Value, error) {
	r := make([]Value, len(xs))

	for i, x := range xs {
		v, err := b.expr(ctx, x)
		if err != nil {
			return nil, err
		}

		if v.Kind != LValue {
			return nil, errors.New("cannot assign to %T", x)
		}

		r[i] = v
	}

	return r, nil
}

func (b *Builder) compound(ctx context.Context, s *ast.Assign) error {
	if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
		return errors.New("compound assignment of %d targets", len(s.Lhs))
	}

	dst, err := b.expr(ctx, s.Lhs[0])
	if err != nil {
		return err
	}

	if dst.Kind != LValue {
		return errors.New("cannot assign to %T", s.Lhs[0])
	}

	l := b.Value(dst)

	rv, err := b.expr(ctx, s.Rhs[0])
	if err != nil {
		return err
	}

	r := b.Value(rv)

	op, err := binOp(s.Op, dst.Type)
	if err != nil {
		return err
	}

	rt := regType(dst.Type)
	b.Store(rt, dst.Reg, b.Bin(op, rt, l, r), dst.Type.Align())

	return nil
}

// cond lowers a condition and returns the edges taken if it is false.
// Code emitted next runs if it is true.
func (b *Builder) cond(ctx context.Context, x ast.Expr) ([]edge, error) {
	v, err := b.expr(ctx, x)
	if err != nil {
		return nil, err
	}

	if v.Kind == PendingBool {
		// merge region is the true entry, the false path jumps elsewhere
		return []edge{{At: v.P.FalsePh, Slot: -1}}, nil
	}

	return []edge{b.BranchFalse(b.Value(v))}, nil
}

func (b *Builder) ifStmt(ctx context.Context, s *ast.If) error {
	falses, err := b.cond(ctx, s.Cond)
	if err != nil {
		return err
	}

	if err = b.stmt(ctx, s.Then); err != nil {
		return err
	}

	if s.Else == nil {
		b.patchAll(falses, b.Region())
		return nil
	}

	var exit []edge

	if !b.dead {
		exit = append(exit, b.Jump())
	}

	b.patchAll(falses, b.Region())

	if err = b.stmt(ctx, s.Else); err != nil {
		return err
	}

	if len(exit) == 0 && b.dead {
		return nil
	}

	b.patchAll(exit, b.Region())

	return nil
}

func (b *Builder) while(ctx context.Context, s *ast.While) error {
	head := b.Region()

	falses, err := b.cond(ctx, s.Cond)
	if err != nil {
		return err
	}

	t := b.pushTarget(true)

	if err = b.stmt(ctx, s.Body); err != nil {
		return err
	}

	if !b.dead {
		b.JumpTo(head)
	}

	b.popTarget()

	exit := b.Region()

	b.patchAll(falses, exit)
	b.patchAll(t.breaks, exit)
	b.patchAll(t.continues, head)

	return nil
}

func (b *Builder) doWhile(ctx context.Context, s *ast.While) error {
	body := b.Region()

	t := b.pushTarget(true)

	if err := b.stmt(ctx, s.Body); err != nil {
		return err
	}

	b.popTarget()

	next := b.Region()

	falses, err := b.cond(ctx, s.Cond)
	if err != nil {
		return err
	}

	b.JumpTo(body)

	exit := b.Region()

	b.patchAll(falses, exit)
	b.patchAll(t.breaks, exit)
	b.patchAll(t.continues, next)

	return nil
}

func (b *Builder) forStmt(ctx context.Context, s *ast.For) (err error) {
	if _, ok := s.Post.(*ast.Defer); ok {
		return errors.Wrap(ErrUnsupported, "defer as for post statement")
	}

	b.scopes = append(b.scopes, scope{})
	defer func() {
		b.scopes = b.scopes[:len(b.scopes)-1]
	}()

	if s.Init != nil {
		if err = b.stmt(ctx, s.Init); err != nil {
			return err
		}
	}

	head := b.Region()

	var falses []edge

	if s.Cond != nil {
		falses, err = b.cond(ctx, s.Cond)
		if err != nil {
			return err
		}
	}

	t := b.pushTarget(true)

	if err = b.stmt(ctx, s.Body); err != nil {
		return err
	}

	b.popTarget()

	next := head

	if s.Post != nil {
		next = b.Region()

		if err = b.stmt(ctx, s.Post); err != nil {
			return err
		}
	}

	if !b.dead {
		b.JumpTo(head)
	}

	if len(falses) != 0 || len(t.breaks) != 0 {
		exit := b.Region()

		b.patchAll(falses, exit)
		b.patchAll(t.breaks, exit)
	}

	b.patchAll(t.continues, next)

	// defers of the init statement run once the loop is left
	if !b.dead {
		err = b.replay(ctx, len(b.scopes)-1)
	}

	return err
}

func (b *Builder) switchStmt(ctx context.Context, s *ast.Switch) error {
	v, err := b.expr(ctx, s.Tag)
	if err != nil {
		return err
	}

	tag := b.Value(v)

	var vals []int64
	var slots [][]int

	def := -1

	for i, c := range s.Cases {
		if len(c.Values) == 0 {
			def = i
		}

		var cs []int

		for _, x := range c.Values {
			cs = append(cs, len(vals))
			vals = append(vals, x)
		}

		slots = append(slots, cs)
	}

	br := b.Switch(tag, vals)

	t := b.pushTarget(false)

	for i, c := range s.Cases {
		r := b.Region()

		for _, slot := range slots[i] {
			b.patch(edge{At: br, Slot: slot}, r)
		}

		if i == def {
			b.patch(edge{At: br, Slot: -1}, r)
		}

		b.patchAll(t.falls, r)
		t.falls = t.falls[:0]

		if err = b.block(ctx, c.Body); err != nil {
			return err
		}

		if !b.dead {
			t.breaks = append(t.breaks, b.Jump())
		}
	}

	b.popTarget()

	exit := b.Region()

	if def == -1 {
		b.patch(edge{At: br, Slot: -1}, exit)
	}

	b.patchAll(t.breaks, exit)
	b.patchAll(t.falls, exit)

	return nil
}

func (b *Builder) pushTarget(loop bool) *target {
	t := &target{loop: loop, depth: len(b.scopes)}
	b.targets = append(b.targets, t)

	return t
}

func (b *Builder) popTarget() {
	b.targets = b.targets[:len(b.targets)-1]
}

func (b *Builder) ret(ctx context.Context, s *ast.Return) error {
	res := b.sig.Results
	n := len(res)

	vals := make([]Value, 0, n)

	switch {
	case n > 1 && len(s.Results) == 1:
		c, ok := s.Results[0].(*ast.Call)
		if !ok {
			return errors.New("return of 1 value, want %d", n)
		}

		_, all, err := b.call(ctx, c)
		if err != nil {
			return err
		}

		vals = append(vals, all...)
	case len(s.Results) != n:
		return errors.New("return of %d values, want %d", len(s.Results), n)
	default:
		for _, x := range s.Results {
			v, err := b.expr(ctx, x)
			if err != nil {
				return err
			}

			vals = append(vals, v)
		}
	}

	if len(vals) != n {
		return errors.New("return of %d values, want %d", len(vals), n)
	}

	r := ir.NoReg

	for i, v := range vals {
		if out, ok := b.outs[i]; ok {
			b.store(out, res[i], v)
			continue
		}

		if b.sig.Ret.Rule == abi.Direct {
			r = b.Value(v)
		}
	}

	b.hold++

	err := b.replay(ctx, 0)

	b.hold--

	if err != nil {
		return err
	}

	if b.dead {
		// a deferred statement returned
		return nil
	}

	b.Ret(b.sig.RetReg(), r)

	return nil
}
