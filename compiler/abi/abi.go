package abi

import (
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

type (
	// Rule is how a value crosses a call boundary.
	Rule uint8

	// Resolver classifies types.
	// A compound is passed Direct if DirectSize says so for its size.
	Resolver struct {
		DirectSize func(size int) bool
	}

	Param struct {
		Rule Rule
		Type tp.Type

		// Reg is the register type carrying the value.
		// Direct compounds travel in an integer register of their size,
		// Indirect values as a pointer, Ignore as Void.
		Reg ir.Type
	}

	// Hidden is an output pointer synthesized for result number Result.
	Hidden struct {
		Result int
		Type   tp.Type
	}

	// Sig is a classified procedure signature.
	//
	// Only the last result is returned in a register.
	// Earlier results are written through caller supplied pointers
	// which are prepended to the arguments in declaration order.
	// If the last result itself is Indirect its pointer goes first.
	Sig struct {
		Hidden []Hidden
		Params []Param
		Ret    Param

		Results []tp.Type
	}
)

const (
	Ignore Rule = iota
	Direct
	Indirect
)

// Default passes compounds of 1, 2, 4 and 8 bytes in registers.
var Default = &Resolver{DirectSize: powerOfTwoUpTo8}

func (r Rule) String() string {
	switch r {
	case Ignore:
		return "ignore"
	case Direct:
		return "direct"
	case Indirect:
		return "indirect"
	default:
		return "rule(?)"
	}
}

func (r *Resolver) Classify(t tp.Type) Param {
	if t == nil || t.Size() == 0 {
		return Param{Rule: Ignore, Type: t, Reg: ir.Void}
	}

	if tp.IsScalar(t) {
		return Param{Rule: Direct, Type: t, Reg: RegType(t)}
	}

	direct := r.DirectSize
	if direct == nil {
		direct = powerOfTwoUpTo8
	}

	if direct(t.Size()) {
		return Param{Rule: Direct, Type: t, Reg: ir.IntOfSize(t.Size())}
	}

	return Param{Rule: Indirect, Type: t, Reg: ir.Ptr}
}

func (r *Resolver) Sig(f *tp.Func) Sig {
	s := Sig{
		Results: f.Out,
		Ret:     Param{Rule: Ignore, Type: tp.Void{}, Reg: ir.Void},
	}

	if n := len(f.Out); n != 0 {
		s.Ret = r.Classify(f.Out[n-1])

		if s.Ret.Rule == Indirect {
			s.Hidden = append(s.Hidden, Hidden{Result: n - 1, Type: f.Out[n-1]})
		}

		for i, t := range f.Out[:n-1] {
			s.Hidden = append(s.Hidden, Hidden{Result: i, Type: t})
		}
	}

	for _, t := range f.In {
		s.Params = append(s.Params, r.Classify(t))
	}

	return s
}

// RegParams lists register types of the incoming argument registers in order.
func (s Sig) RegParams() []ir.Type {
	r := make([]ir.Type, 0, len(s.Hidden)+len(s.Params))

	for range s.Hidden {
		r = append(r, ir.Ptr)
	}

	for _, p := range s.Params {
		if p.Rule != Ignore {
			r = append(r, p.Reg)
		}
	}

	return r
}

// RetReg is the register type of the returned value.
func (s Sig) RetReg() ir.Type {
	if s.Ret.Rule != Direct {
		return ir.Void
	}

	return s.Ret.Reg
}

// RegType maps a scalar type to its register type.
func RegType(t tp.Type) ir.Type {
	switch t := t.(type) {
	case tp.Bool:
		return ir.I8
	case tp.Int:
		return ir.IntOfSize(t.Size())
	case tp.Float:
		if t.Bits == 32 {
			return ir.F32
		}

		return ir.F64
	case tp.Ptr, *tp.Func:
		return ir.Ptr
	default:
		return ir.IntOfSize(t.Size())
	}
}

func powerOfTwoUpTo8(size int) bool {
	switch size {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}
