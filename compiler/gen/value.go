package gen

import (
	"tlog.app/go/tlog/tlwire"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/abi"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

type (
	Kind uint8

	// Value is the result of lowering an expression.
	Value struct {
		Kind Kind
		Type tp.Type

		// Reg is the address for LValue, the value itself for RValue.
		// Compound RValues carry their bits in an integer register.
		Reg ir.Reg

		P *Pending
	}

	// Pending is a short-circuit boolean not materialized yet.
	//
	// Layout:
	//
	//	TrueRegion:  ...; TruePh:  jmp Merge
	//	FalseRegion: ...; FalsePh: jmp Merge
	//	Merge:
	//
	// Chaining inserts more tests right before a placeholder,
	// materializing inserts one constant before each.
	Pending struct {
		TrueRegion  ir.Inst
		FalseRegion ir.Inst

		TruePh  ir.Inst
		FalsePh ir.Inst

		Merge ir.Inst
	}
)

const (
	NoValue Kind = iota
	LValue
	RValue
	PendingBool
)

func lvalue(t tp.Type, addr ir.Reg) Value { return Value{Kind: LValue, Type: t, Reg: addr} }
func rvalue(t tp.Type, r ir.Reg) Value    { return Value{Kind: RValue, Type: t, Reg: r} }

// pending starts a short-circuit boolean testing r.
func (b *Builder) pending(r ir.Reg) *Pending {
	f := b.BranchFalse(r)

	p := &Pending{TrueRegion: b.At(f.At).(ir.Branch).Default}

	p.TruePh = b.Jump().At
	p.FalseRegion = b.Region()
	p.FalsePh = b.Jump().At
	p.Merge = b.Region()

	b.patch(f, p.FalseRegion)
	b.patch(edge{At: p.TruePh, Slot: -1}, p.Merge)
	b.patch(edge{At: p.FalsePh, Slot: -1}, p.Merge)

	return p
}

func (b *Builder) toPending(v Value) *Pending {
	if v.Kind == PendingBool {
		return v.P
	}

	return b.pending(b.Value(v))
}

// Value returns a register holding the value.
func (b *Builder) Value(v Value) ir.Reg {
	switch v.Kind {
	case RValue:
		return v.Reg
	case LValue:
		t := regType(v.Type)
		if t == ir.Void {
			bug("%v does not fit a register", tp.String(v.Type))
		}

		return b.Load(t, v.Reg, v.Type.Align())
	case PendingBool:
		return b.materialize(v.P)
	default:
		bug("no value")
		return ir.NoReg
	}
}

// materialize picks a destination once and sets it to 1 on the true path
// and to 0 on the false path.
func (b *Builder) materialize(p *Pending) ir.Reg {
	dst := b.AllocReg()

	b.begin(p.TruePh)
	b.emit(ir.Imm{Type: ir.I8, Dst: dst, Bits: 1})
	b.commit()

	b.begin(p.FalsePh)
	b.emit(ir.Imm{Type: ir.I8, Dst: dst, Bits: 0})
	b.commit()

	return dst
}

// Address returns a register holding the address of the value,
// spilling it to a stack temporary if needed.
func (b *Builder) Address(v Value) ir.Reg {
	if v.Kind == LValue {
		return v.Reg
	}

	r := b.Value(v)

	tmp := b.Local(v.Type.Size(), v.Type.Align())
	b.Store(regType(v.Type), tmp, r, v.Type.Align())

	return tmp
}

// store writes v of type t at address dst.
func (b *Builder) store(dst ir.Reg, t tp.Type, v Value) {
	size := t.Size()
	if size == 0 {
		return
	}

	if !tp.IsScalar(t) && v.Kind == LValue {
		b.Copy(dst, v.Reg, size, t.Align())
		return
	}

	rt := regType(t)
	if rt == ir.Void {
		bug("store %v from a register", tp.String(t))
	}

	b.Store(rt, dst, b.Value(v), t.Align())
}

func (b *Builder) zero(dst ir.Reg, t tp.Type) {
	size := t.Size()
	if size == 0 {
		return
	}

	if tp.IsScalar(t) {
		rt := regType(t)

		if rt.IsFloat() {
			b.Store(rt, dst, b.ImmFloat(rt, 0), t.Align())
		} else {
			b.Store(rt, dst, b.Imm(rt, 0), t.Align())
		}

		return
	}

	b.Fill(dst, b.Imm(ir.I8, 0), size, t.Align())
}

// regType is the register carrying a value of type t, Void if there is none.
func regType(t tp.Type) ir.Type {
	if tp.IsScalar(t) {
		return abi.RegType(t)
	}

	return ir.IntOfSize(t.Size())
}

func (p *Pending) swap() {
	p.TrueRegion, p.FalseRegion = p.FalseRegion, p.TrueRegion
	p.TruePh, p.FalsePh = p.FalsePh, p.TruePh
}

func (p *Pending) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 5)
	b = e.AppendKeyInt(b, "true", int(p.TrueRegion))
	b = e.AppendKeyInt(b, "false", int(p.FalseRegion))
	b = e.AppendKeyInt(b, "true_ph", int(p.TruePh))
	b = e.AppendKeyInt(b, "false_ph", int(p.FalsePh))
	b = e.AppendKeyInt(b, "merge", int(p.Merge))

	return b
}
