package gen

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/abi"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/format"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
)

type (
	Config struct {
		// ABI defaults to abi.Default.
		ABI *abi.Resolver

		// Deps is asked about every referenced procedure and global.
		// Nil means everything is ready.
		Deps Deps
	}

	// Result is everything a backend needs to know about a built procedure.
	Result struct {
		Proc *ir.Proc
		Sig  abi.Sig

		Callees []*ast.Proc
		Globals []*ast.Var
	}
)

// Build lowers a checked procedure into bytecode.
// If a referenced declaration is not ready the returned error wraps sched.ErrYield
// and the partial result is dropped: the next attempt starts over.
func Build(ctx context.Context, p *ast.Proc, cfg Config) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "gen: build", "proc", p.Name)
	defer tr.Finish("err", &err)

	if p.Type == nil || p.Body == nil {
		return nil, errors.New("procedure %v has no body", p.Name)
	}

	b := newBuilder(cfg.ABI, cfg.Deps)

	b.enter(p)

	err = b.block(ctx, p.Body.List)
	if err != nil {
		return nil, errors.Wrap(err, "proc %v", p.Name)
	}

	if !b.dead {
		b.implicitRet()
	}

	proc := &ir.Proc{
		Name:    p.Name,
		Params:  b.sig.RegParams(),
		Ret:     b.sig.RetReg(),
		Code:    b.Freeze(),
		NumRegs: int(b.maxreg),
	}

	if tr.If("dump_code") {
		tr.Printw("code", "proc", p.Name, "perm", b.perm, "code", string(format.Proc(nil, proc)))
	}

	return &Result{
		Proc:    proc,
		Sig:     b.sig,
		Callees: b.callees,
		Globals: b.globals,
	}, nil
}

// implicitRet returns the zero value when control falls off the end.
func (b *Builder) implicitRet() {
	t := b.sig.RetReg()

	switch {
	case t == ir.Void:
		b.Ret(t, ir.NoReg)
	case t.IsFloat():
		b.Ret(t, b.ImmFloat(t, 0))
	default:
		b.Ret(t, b.Imm(t, 0))
	}
}
