package gen

import (
	"context"

	"tlog.app/go/errors"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/sched"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

func (b *Builder) expr(ctx context.Context, x ast.Expr) (Value, error) {
	switch x := x.(type) {
	case *ast.IntLit:
		return rvalue(x.T, b.ImmInt(regType(x.T), x.Val)), nil
	case *ast.FloatLit:
		return rvalue(x.T, b.ImmFloat(regType(x.T), x.Val)), nil
	case *ast.BoolLit:
		v := int64(0)
		if x.Val {
			v = 1
		}

		return rvalue(x.T, b.ImmInt(ir.I8, v)), nil
	case *ast.Ident:
		return b.ident(ctx, x)
	case *ast.Binary:
		return b.binary(ctx, x)
	case *ast.Unary:
		return b.unary(ctx, x)
	case *ast.Call:
		v, _, err := b.call(ctx, x)
		return v, err
	case *ast.Cast:
		return b.cast(ctx, x)
	case *ast.Field:
		return b.field(ctx, x)
	case *ast.Index:
		return b.index(ctx, x)
	default:
		return Value{}, errors.Wrap(ErrUnsupported, "expression %T", x)
	}
}

func (b *Builder) ident(ctx context.Context, x *ast.Ident) (Value, error) {
	switch d := x.Ref.(type) {
	case *ast.Var:
		if r, ok := b.vars[d]; ok {
			return lvalue(d.T, r), nil
		}

		if !d.Global {
			return Value{}, errors.New("undefined local %v", d.Name)
		}

		if err := b.need(ctx, d, sched.SizeComputed); err != nil {
			return Value{}, err
		}

		b.refer(d)

		return lvalue(d.T, b.AddrOf(d.Name)), nil
	case *ast.Proc:
		if err := b.need(ctx, d, sched.SizeComputed); err != nil {
			return Value{}, err
		}

		b.refer(d)

		return rvalue(d.Type, b.AddrOf(d.Name)), nil
	default:
		return Value{}, errors.Wrap(ErrUnsupported, "reference to %T", x.Ref)
	}
}

func (b *Builder) binary(ctx context.Context, x *ast.Binary) (Value, error) {
	switch x.Op {
	case "&&", "||":
		return b.logical(ctx, x)
	}

	l, err := b.expr(ctx, x.L)
	if err != nil {
		return Value{}, err
	}

	lr := b.Value(l)

	r, err := b.expr(ctx, x.R)
	if err != nil {
		return Value{}, err
	}

	rr := b.Value(r)

	op, err := binOp(x.Op, x.L.Type())
	if err != nil {
		return Value{}, err
	}

	return rvalue(x.T, b.Bin(op, regType(x.L.Type()), lr, rr)), nil
}

// logical lowers a && b and a || b into a pending boolean.
// If the left operand is pending already the right test is chained
// onto its true (&&) or false (||) path.
func (b *Builder) logical(ctx context.Context, x *ast.Binary) (Value, error) {
	l, err := b.expr(ctx, x.L)
	if err != nil {
		return Value{}, err
	}

	p := b.toPending(l)
	and := x.Op == "&&"

	ph := p.FalsePh
	if and {
		ph = p.TruePh
	}

	b.begin(ph)

	r, err := b.expr(ctx, x.R)
	if err != nil {
		return Value{}, err
	}

	switch {
	case r.Kind == PendingBool && and:
		b.patch(edge{At: r.P.FalsePh, Slot: -1}, p.FalseRegion)
		p.TrueRegion = r.P.Merge
	case r.Kind == PendingBool:
		b.patch(edge{At: r.P.TruePh, Slot: -1}, p.TrueRegion)
		p.FalseRegion = r.P.Merge
	case and:
		f := b.BranchFalse(b.Value(r))
		b.patch(f, p.FalseRegion)
		p.TrueRegion = b.At(f.At).(ir.Branch).Default
	default:
		// jump to the true path on non-zero
		rr := b.Value(r)
		br := b.emit(ir.Branch{Test: rr, Cases: []ir.Case{{Val: 0, Target: ir.NoInst}}, Default: p.TrueRegion})
		p.FalseRegion = b.Region()
		b.patch(edge{At: br, Slot: 0}, p.FalseRegion)
	}

	b.commit()

	return Value{Kind: PendingBool, Type: x.T, P: p}, nil
}

func (b *Builder) unary(ctx context.Context, x *ast.Unary) (Value, error) {
	v, err := b.expr(ctx, x.X)
	if err != nil {
		return Value{}, err
	}

	t := x.X.Type()

	switch x.Op {
	case "!":
		if v.Kind == PendingBool {
			v.P.swap()
			v.Type = x.T

			return v, nil
		}

		r := b.Value(v)
		zero := b.Imm(ir.I8, 0)

		return rvalue(x.T, b.Bin(ir.Eq, ir.I8, r, zero)), nil
	case "-":
		rt := regType(t)

		op := ir.Neg
		if rt.IsFloat() {
			op = ir.FNeg
		}

		return rvalue(x.T, b.Un(op, rt, rt, b.Value(v))), nil
	case "~":
		rt := regType(t)

		return rvalue(x.T, b.Un(ir.Not, rt, rt, b.Value(v))), nil
	case "*":
		return lvalue(x.T, b.Value(v)), nil
	case "&":
		return rvalue(x.T, b.Address(v)), nil
	default:
		return Value{}, errors.Wrap(ErrUnsupported, "unary %q", x.Op)
	}
}

func (b *Builder) cast(ctx context.Context, x *ast.Cast) (Value, error) {
	v, err := b.expr(ctx, x.X)
	if err != nil {
		return Value{}, err
	}

	r, err := b.convert(b.Value(v), x.X.Type(), x.T)
	if err != nil {
		return Value{}, err
	}

	return rvalue(x.T, r), nil
}

func (b *Builder) convert(r ir.Reg, from, to tp.Type) (ir.Reg, error) {
	ft, tt := regType(from), regType(to)

	switch to.(type) {
	case tp.Bool:
		if _, ok := from.(tp.Bool); ok {
			return r, nil
		}

		if ft.IsFloat() {
			return b.Bin(ir.FNe, ft, r, b.ImmFloat(ft, 0)), nil
		}

		return b.Bin(ir.Ne, ft, r, b.Imm(ft, 0)), nil
	}

	switch from.(type) {
	case tp.Bool, tp.Int:
		switch to.(type) {
		case tp.Int:
			switch {
			case tt.Size() > ft.Size() && tp.IsSigned(from):
				return b.Un(ir.SExt, tt, ft, r), nil
			case tt.Size() > ft.Size():
				return b.Un(ir.ZExt, tt, ft, r), nil
			case tt.Size() < ft.Size():
				return b.Un(ir.Trunc, tt, ft, r), nil
			default:
				return r, nil
			}
		case tp.Float:
			if tp.IsSigned(from) {
				return b.Un(ir.SToF, tt, ft, r), nil
			}

			return b.Un(ir.UToF, tt, ft, r), nil
		case tp.Ptr:
			return b.Un(ir.IntToPtr, tt, ft, r), nil
		}
	case tp.Float:
		switch to.(type) {
		case tp.Int:
			if tp.IsSigned(to) {
				return b.Un(ir.FToS, tt, ft, r), nil
			}

			return b.Un(ir.FToU, tt, ft, r), nil
		case tp.Float:
			switch {
			case tt.Size() > ft.Size():
				return b.Un(ir.FExt, tt, ft, r), nil
			case tt.Size() < ft.Size():
				return b.Un(ir.FTrunc, tt, ft, r), nil
			default:
				return r, nil
			}
		}
	case tp.Ptr, *tp.Func:
		switch to.(type) {
		case tp.Int:
			return b.Un(ir.PtrToInt, tt, ft, r), nil
		case tp.Ptr, *tp.Func:
			return r, nil
		}
	}

	return ir.NoReg, errors.Wrap(ErrUnsupported, "conversion %v to %v", tp.String(from), tp.String(to))
}

func (b *Builder) field(ctx context.Context, x *ast.Field) (Value, error) {
	v, err := b.expr(ctx, x.X)
	if err != nil {
		return Value{}, err
	}

	s := x.X.Type().(*tp.Struct)

	f, ok := s.Field(x.Name)
	if !ok {
		return Value{}, errors.New("no field %v in %v", x.Name, s.Name)
	}

	return lvalue(f.Type, b.offset(b.Address(v), f.Offset)), nil
}

func (b *Builder) index(ctx context.Context, x *ast.Index) (Value, error) {
	v, err := b.expr(ctx, x.X)
	if err != nil {
		return Value{}, err
	}

	var base ir.Reg

	switch x.X.Type().(type) {
	case tp.Array:
		base = b.Address(v)
	case tp.Ptr:
		base = b.Value(v)
	default:
		return Value{}, errors.Wrap(ErrUnsupported, "index %v", tp.String(x.X.Type()))
	}

	iv, err := b.expr(ctx, x.Index)
	if err != nil {
		return Value{}, err
	}

	i, err := b.convert(b.Value(iv), x.Index.Type(), tp.I64)
	if err != nil {
		return Value{}, err
	}

	size := b.Imm(ir.I64, uint64(x.T.Size()))
	off := b.Bin(ir.Mul, ir.I64, i, size)

	return lvalue(x.T, b.Bin(ir.Add, ir.Ptr, base, off)), nil
}

func (b *Builder) offset(addr ir.Reg, off int) ir.Reg {
	if off == 0 {
		return addr
	}

	return b.Bin(ir.Add, ir.Ptr, addr, b.Imm(ir.I64, uint64(off)))
}

func binOp(op string, t tp.Type) (ir.Op, error) {
	_, float := t.(tp.Float)
	signed := tp.IsSigned(t)

	pick := func(s, u, f ir.Op) (ir.Op, error) {
		switch {
		case float && f == ir.BadOp:
			return ir.BadOp, errors.Wrap(ErrUnsupported, "float operator %q", op)
		case float:
			return f, nil
		case signed:
			return s, nil
		default:
			return u, nil
		}
	}

	switch op {
	case "+":
		return pick(ir.Add, ir.Add, ir.FAdd)
	case "-":
		return pick(ir.Sub, ir.Sub, ir.FSub)
	case "*":
		return pick(ir.Mul, ir.Mul, ir.FMul)
	case "/":
		return pick(ir.SDiv, ir.UDiv, ir.FDiv)
	case "%":
		return pick(ir.SRem, ir.URem, ir.BadOp)
	case "&":
		return pick(ir.And, ir.And, ir.BadOp)
	case "|":
		return pick(ir.Or, ir.Or, ir.BadOp)
	case "^":
		return pick(ir.Xor, ir.Xor, ir.BadOp)
	case "<<":
		return pick(ir.Shl, ir.Shl, ir.BadOp)
	case ">>":
		return pick(ir.AShr, ir.LShr, ir.BadOp)
	case "==":
		return pick(ir.Eq, ir.Eq, ir.FEq)
	case "!=":
		return pick(ir.Ne, ir.Ne, ir.FNe)
	case "<":
		return pick(ir.SLt, ir.ULt, ir.FLt)
	case "<=":
		return pick(ir.SLe, ir.ULe, ir.FLe)
	case ">":
		return pick(ir.SGt, ir.UGt, ir.FGt)
	case ">=":
		return pick(ir.SGe, ir.UGe, ir.FGe)
	default:
		return ir.BadOp, errors.Wrap(ErrUnsupported, "binary operator %q", op)
	}
}
