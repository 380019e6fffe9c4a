package format

import (
	"math"

	"github.com/nikandfor/hacked/hfmt"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
)

// Proc appends the textual form of a frozen procedure, one instruction per line.
// Regions are printed as labels named after their position.
func Proc(b []byte, p *ir.Proc) []byte {
	b = app(b, 0, "proc %s(", p.Name)

	for i, t := range p.Params {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = app(b, 0, "r%d %v", i, t)
	}

	b = app(b, 0, ") %v regs %d\n", p.Ret, p.NumRegs)

	for pos, x := range p.Code {
		if _, ok := x.(ir.Region); ok {
			b = app(b, 0, "%4d L%d:\n", pos, pos)
			continue
		}

		b = app(b, 0, "%4d ", pos)
		b = app(b, 1, "")
		b = Instr(b, x)
		b = append(b, '\n')
	}

	return b
}

// Instr appends one instruction. Branch targets are printed as labels.
func Instr(b []byte, x ir.Instr) []byte {
	switch x := x.(type) {
	case ir.Bin:
		return app(b, 0, "r%d = %v %v r%d, r%d", x.Dst, x.Op, x.Type, x.L, x.R)
	case ir.Un:
		if x.From != x.Type {
			return app(b, 0, "r%d = %v %v <- %v r%d", x.Dst, x.Op, x.Type, x.From, x.Src)
		}

		return app(b, 0, "r%d = %v %v r%d", x.Dst, x.Op, x.Type, x.Src)
	case ir.Imm:
		return app(b, 0, "r%d = imm %v %s", x.Dst, x.Type, imm(x.Type, x.Bits))
	case ir.Load:
		return app(b, 0, "r%d = load %v [r%d] align %d", x.Dst, x.Type, x.Addr, x.Align)
	case ir.Store:
		return app(b, 0, "store %v [r%d], r%d align %d", x.Type, x.Addr, x.Val, x.Align)
	case ir.MemCopy:
		return app(b, 0, "copy [r%d], [r%d] %d align %d", x.Dst, x.Src, x.Size, x.Align)
	case ir.MemFill:
		return app(b, 0, "fill [r%d], r%d %d align %d", x.Dst, x.Val, x.Size, x.Align)
	case ir.Local:
		return app(b, 0, "r%d = local %d align %d", x.Dst, x.Size, x.Align)
	case ir.Addr:
		return app(b, 0, "r%d = addr @%s", x.Dst, x.Sym)
	case ir.Call:
		if x.Dst != ir.NoReg {
			b = app(b, 0, "r%d = ", x.Dst)
		}

		b = app(b, 0, "call %v r%d(", x.Type, x.Target)

		for i, a := range x.Args {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = app(b, 0, "r%d", a)
		}

		return append(b, ')')
	case ir.Branch:
		if x.IsJump() {
			return app(b, 0, "jmp %s", label(x.Default))
		}

		b = app(b, 0, "br r%d [", x.Test)

		for i, c := range x.Cases {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = app(b, 0, "%d: %s", c.Val, label(c.Target))
		}

		return app(b, 0, "] default %s", label(x.Default))
	case ir.Region:
		return append(b, "region"...)
	case ir.Ret:
		if x.Val == ir.NoReg {
			return append(b, "ret"...)
		}

		return app(b, 0, "ret %v r%d", x.Type, x.Val)
	default:
		return app(b, 0, "<%T>", x)
	}
}

func label(i ir.Inst) string {
	if i == ir.NoInst {
		return "L?"
	}

	return string(hfmt.Appendf(nil, "L%d", i))
}

func imm(t ir.Type, bits uint64) string {
	switch t {
	case ir.F32:
		return string(hfmt.Appendf(nil, "%v", math.Float32frombits(uint32(bits))))
	case ir.F64:
		return string(hfmt.Appendf(nil, "%v", math.Float64frombits(bits)))
	default:
		return string(hfmt.Appendf(nil, "%d", int64(bits)))
	}
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t"

	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)

	return b
}
