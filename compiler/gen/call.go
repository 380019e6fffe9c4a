package gen

import (
	"context"

	"tlog.app/go/errors"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/abi"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/sched"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

// call lowers a call expression.
// It returns the value of the last result and addresses of all the results.
func (b *Builder) call(ctx context.Context, x *ast.Call) (last Value, all []Value, err error) {
	ft, ok := x.Fun.Type().(*tp.Func)
	if !ok {
		return Value{}, nil, errors.New("call of %v", tp.String(x.Fun.Type()))
	}

	if len(x.Args) != len(ft.In) {
		return Value{}, nil, errors.New("call with %d args, want %d", len(x.Args), len(ft.In))
	}

	sig := b.abi.Sig(ft)

	target := ir.NoReg

	if id, ok := x.Fun.(*ast.Ident); ok {
		if p, ok := id.Ref.(*ast.Proc); ok {
			if err = b.need(ctx, p, sched.SizeComputed); err != nil {
				return Value{}, nil, err
			}

			b.refer(p)
			target = b.AddrOf(p.Name)
		}
	}

	if target == ir.NoReg {
		f, err := b.expr(ctx, x.Fun)
		if err != nil {
			return Value{}, nil, err
		}

		target = b.Value(f)
	}

	args := make([]ir.Reg, 0, len(sig.Hidden)+len(sig.Params))
	tmps := make(map[int]ir.Reg, len(sig.Hidden))

	for _, h := range sig.Hidden {
		t := b.Local(h.Type.Size(), h.Type.Align())
		tmps[h.Result] = t

		args = append(args, t)
	}

	for i, p := range sig.Params {
		v, err := b.expr(ctx, x.Args[i])
		if err != nil {
			return Value{}, nil, err
		}

		switch p.Rule {
		case abi.Ignore:
		case abi.Direct:
			args = append(args, b.Value(v))
		case abi.Indirect:
			tmp := b.Local(p.Type.Size(), p.Type.Align())
			b.store(tmp, p.Type, v)

			args = append(args, tmp)
		}
	}

	dst := b.Call(sig.RetReg(), target, args)

	all = make([]Value, len(ft.Out))

	for i, t := range ft.Out {
		if r, ok := tmps[i]; ok {
			all[i] = lvalue(t, r)
		}
	}

	if n := len(ft.Out); n != 0 {
		if sig.Ret.Rule == abi.Direct {
			all[n-1] = rvalue(ft.Out[n-1], dst)
		}

		if sig.Ret.Rule == abi.Ignore {
			all[n-1] = Value{Kind: NoValue, Type: ft.Out[n-1]}
		}

		last = all[n-1]
	}

	return last, all, nil
}

// enter emits the procedure entry sequence.
// Hidden output pointers are kept in permanent registers,
// direct parameters are spilled to stack slots,
// indirect parameters are addressed through their incoming pointer.
func (b *Builder) enter(p *ast.Proc) {
	b.prologue = true
	defer func() { b.prologue = false }()

	b.sig = b.abi.Sig(p.Type)

	n := ir.Reg(len(b.sig.RegParams()))
	b.nreg = n
	b.maxreg = n

	r := ir.Reg(0)

	for _, h := range b.sig.Hidden {
		b.perm.Set(int(r))
		b.outs[h.Result] = r
		r++
	}

	for i, prm := range b.sig.Params {
		var v *ast.Var
		if i < len(p.Params) {
			v = p.Params[i]
		}

		switch prm.Rule {
		case abi.Ignore:
			if v != nil {
				b.vars[v] = b.Local(0, prm.Type.Align())
			}
		case abi.Direct:
			if v != nil {
				slot := b.Local(prm.Type.Size(), prm.Type.Align())
				b.Store(prm.Reg, slot, r, prm.Type.Align())

				b.vars[v] = slot
			}

			r++
		case abi.Indirect:
			b.perm.Set(int(r))

			if v != nil {
				b.vars[v] = r
			}

			r++
		}
	}

	b.endStmt()
}
