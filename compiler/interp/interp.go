package interp

import (
	"context"
	"encoding/binary"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

type (
	// Machine executes frozen procedures at compile time.
	//
	// Integer registers are kept sign-extended from the width of their type.
	// Memory is split into a globals area and a stack,
	// procedure addresses are tagged and can only be called.
	Machine struct {
		MaxSteps  int
		MaxDepth  int
		StackSize int

		Steps int

		procs  []*ir.Proc
		byName map[string]int

		globals []byte
		gsyms   map[string]uint64

		stack []byte
		sp    int
		depth int
	}

	trap struct {
		proc string
		pos  int
		err  error
	}
)

const (
	globalBase = 0x1000
	stackBase  = 0x1000_0000
	procBase   = 1 << 62
)

var ErrTrap = errors.New("trap")

func New() *Machine {
	return &Machine{
		MaxSteps:  1 << 24,
		MaxDepth:  1 << 10,
		StackSize: 1 << 20,
		byName:    map[string]int{},
		gsyms:     map[string]uint64{},
	}
}

// AddProc makes p callable by name. A procedure with the same name is replaced.
func (m *Machine) AddProc(p *ir.Proc) {
	if i, ok := m.byName[p.Name]; ok {
		m.procs[i] = p
		return
	}

	m.byName[p.Name] = len(m.procs)
	m.procs = append(m.procs, p)
}

func (m *Machine) HasProc(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Global returns the address of a zeroed global, allocating it on first use.
func (m *Machine) Global(name string, size, align int) uint64 {
	if a, ok := m.gsyms[name]; ok {
		return a
	}

	off := tp.AlignUp(len(m.globals), max(align, 1))

	for len(m.globals) < off+size {
		m.globals = append(m.globals, 0)
	}

	a := uint64(globalBase + off)
	m.gsyms[name] = a

	return a
}

// Bytes returns memory at addr. The slice aliases machine memory.
func (m *Machine) Bytes(addr uint64, size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Wrap(ErrTrap, "negative size %d", size)
	}

	switch {
	case addr >= stackBase && addr-stackBase <= uint64(len(m.stack)) && uint64(size) <= uint64(len(m.stack))-(addr-stackBase):
		off := addr - stackBase
		return m.stack[off : off+uint64(size)], nil
	case addr >= globalBase && addr-globalBase <= uint64(len(m.globals)) && uint64(size) <= uint64(len(m.globals))-(addr-globalBase):
		off := addr - globalBase
		return m.globals[off : off+uint64(size)], nil
	default:
		return nil, errors.Wrap(ErrTrap, "bad memory access: %#x size %d", addr, size)
	}
}

// Call runs the named procedure. Arguments are raw register values.
func (m *Machine) Call(ctx context.Context, name string, args ...uint64) (res uint64, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "interp: call", "proc", name)
	defer tr.Finish("steps", &m.Steps, "err", &err)

	i, ok := m.byName[name]
	if !ok {
		return 0, errors.New("no such procedure: %v", name)
	}

	if m.stack == nil {
		m.stack = make([]byte, m.StackSize)
	}

	m.Steps = 0

	res, err = m.exec(ctx, m.procs[i], args)
	if t, ok := err.(trap); ok {
		return 0, errors.Wrap(t.err, "%v at %d", t.proc, t.pos)
	}

	return res, err
}

func (m *Machine) exec(ctx context.Context, p *ir.Proc, args []uint64) (res uint64, err error) {
	if len(args) != len(p.Params) {
		return 0, errors.New("%v: %d args, want %d", p.Name, len(args), len(p.Params))
	}

	if m.depth >= m.MaxDepth {
		return 0, trap{proc: p.Name, err: errors.Wrap(ErrTrap, "call depth exceeded")}
	}

	m.depth++
	defer func(sp int) {
		m.depth--
		m.sp = sp
	}(m.sp)

	tlog.SpanFromContext(ctx).V("interp_call").Printw("call", "proc", p.Name, "depth", m.depth, "args", args)

	regs := make([]uint64, max(p.NumRegs, len(args)))

	for i, a := range args {
		regs[i] = canon(a, p.Params[i])
	}

	fail := func(pc int, f string, args ...any) error {
		return trap{proc: p.Name, pos: pc, err: errors.Wrap(ErrTrap, f, args...)}
	}

	for pc := 0; pc < len(p.Code); pc++ {
		m.Steps++
		if m.MaxSteps != 0 && m.Steps > m.MaxSteps {
			return 0, fail(pc, "step limit exceeded")
		}

		switch x := p.Code[pc].(type) {
		case ir.Region:
		case ir.Bin:
			v, err := bin(x.Op, x.Type, regs[x.L], regs[x.R])
			if err != nil {
				return 0, fail(pc, "%v", err)
			}

			regs[x.Dst] = v
		case ir.Un:
			regs[x.Dst] = un(x.Op, x.Type, x.From, regs[x.Src])
		case ir.Imm:
			regs[x.Dst] = canon(x.Bits, x.Type)
		case ir.Load:
			b, err := m.Bytes(regs[x.Addr], x.Type.Size())
			if err != nil {
				return 0, fail(pc, "load: %v", err)
			}

			regs[x.Dst] = canon(load(b), x.Type)
		case ir.Store:
			b, err := m.Bytes(regs[x.Addr], x.Type.Size())
			if err != nil {
				return 0, fail(pc, "store: %v", err)
			}

			store(b, regs[x.Val])
		case ir.MemCopy:
			d, err := m.Bytes(regs[x.Dst], x.Size)
			if err != nil {
				return 0, fail(pc, "copy dst: %v", err)
			}

			s, err := m.Bytes(regs[x.Src], x.Size)
			if err != nil {
				return 0, fail(pc, "copy src: %v", err)
			}

			copy(d, s)
		case ir.MemFill:
			d, err := m.Bytes(regs[x.Dst], x.Size)
			if err != nil {
				return 0, fail(pc, "fill: %v", err)
			}

			for i := range d {
				d[i] = byte(regs[x.Val])
			}
		case ir.Local:
			a, err := m.alloc(x.Size, x.Align)
			if err != nil {
				return 0, fail(pc, "%v", err)
			}

			regs[x.Dst] = a
		case ir.Addr:
			if a, ok := m.gsyms[x.Sym]; ok {
				regs[x.Dst] = a
				break
			}

			i, ok := m.byName[x.Sym]
			if !ok {
				return 0, fail(pc, "undefined symbol %v", x.Sym)
			}

			regs[x.Dst] = procBase | uint64(i)
		case ir.Call:
			t := regs[x.Target]
			if t&procBase == 0 || t&^procBase >= uint64(len(m.procs)) {
				return 0, fail(pc, "call of non-procedure %#x", t)
			}

			cargs := make([]uint64, len(x.Args))
			for i, a := range x.Args {
				cargs[i] = regs[a]
			}

			v, err := m.exec(ctx, m.procs[t&^procBase], cargs)
			if err != nil {
				return 0, err
			}

			if x.Dst != ir.NoReg {
				regs[x.Dst] = canon(v, x.Type)
			}
		case ir.Branch:
			pc = target(x, regs) - 1
		case ir.Ret:
			if x.Val == ir.NoReg {
				return 0, nil
			}

			return regs[x.Val], nil
		default:
			return 0, fail(pc, "unsupported instruction %T", x)
		}
	}

	return 0, fail(len(p.Code), "control reached the end of procedure")
}

func (m *Machine) alloc(size, align int) (uint64, error) {
	off := tp.AlignUp(m.sp, max(align, 1))

	if off+size > len(m.stack) {
		return 0, errors.Wrap(ErrTrap, "stack overflow")
	}

	clear(m.stack[off : off+size])
	m.sp = off + size

	return uint64(stackBase + off), nil
}

func target(x ir.Branch, regs []uint64) int {
	if x.IsJump() {
		return int(x.Default)
	}

	v := int64(regs[x.Test])

	for _, c := range x.Cases {
		if c.Val == v {
			return int(c.Target)
		}
	}

	return int(x.Default)
}

func load(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func store(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

// canon sign-extends integers from the width of t and cuts f32 to its bits.
func canon(v uint64, t ir.Type) uint64 {
	switch t {
	case ir.I8:
		return uint64(int64(int8(v)))
	case ir.I16:
		return uint64(int64(int16(v)))
	case ir.I32:
		return uint64(int64(int32(v)))
	case ir.F32:
		return uint64(uint32(v))
	default:
		return v
	}
}

func zext(v uint64, t ir.Type) uint64 {
	switch t {
	case ir.I8:
		return uint64(uint8(v))
	case ir.I16:
		return uint64(uint16(v))
	case ir.I32:
		return uint64(uint32(v))
	default:
		return v
	}
}

func bits(t ir.Type) uint64 {
	return uint64(t.Size()) * 8
}

func flag(c bool) uint64 {
	if c {
		return 1
	}

	return 0
}

func bin(op ir.Op, t ir.Type, l, r uint64) (uint64, error) {
	if t.IsFloat() {
		return fbin(op, t, l, r)
	}

	sl, sr := int64(l), int64(r)
	ul, ur := zext(l, t), zext(r, t)

	switch op {
	case ir.Add:
		return canon(l+r, t), nil
	case ir.Sub:
		return canon(l-r, t), nil
	case ir.Mul:
		return canon(l*r, t), nil
	case ir.SDiv, ir.SRem, ir.UDiv, ir.URem:
		if r == 0 {
			return 0, errors.New("division by zero")
		}

		switch op {
		case ir.SDiv:
			return canon(uint64(sl/sr), t), nil
		case ir.SRem:
			return canon(uint64(sl%sr), t), nil
		case ir.UDiv:
			return canon(ul/ur, t), nil
		default:
			return canon(ul%ur, t), nil
		}
	case ir.And:
		return l & r, nil
	case ir.Or:
		return l | r, nil
	case ir.Xor:
		return l ^ r, nil
	case ir.Shl:
		return canon(l<<(ur%bits(t)), t), nil
	case ir.LShr:
		return canon(ul>>(ur%bits(t)), t), nil
	case ir.AShr:
		return canon(uint64(sl>>(ur%bits(t))), t), nil
	case ir.Eq:
		return flag(l == r), nil
	case ir.Ne:
		return flag(l != r), nil
	case ir.SLt:
		return flag(sl < sr), nil
	case ir.SLe:
		return flag(sl <= sr), nil
	case ir.SGt:
		return flag(sl > sr), nil
	case ir.SGe:
		return flag(sl >= sr), nil
	case ir.ULt:
		return flag(ul < ur), nil
	case ir.ULe:
		return flag(ul <= ur), nil
	case ir.UGt:
		return flag(ul > ur), nil
	case ir.UGe:
		return flag(ul >= ur), nil
	default:
		return 0, errors.New("bad integer operation %v", op)
	}
}

func fbin(op ir.Op, t ir.Type, l, r uint64) (uint64, error) {
	a, b := ftof(l, t), ftof(r, t)

	switch op {
	case ir.FAdd:
		return tobits(a+b, t), nil
	case ir.FSub:
		return tobits(a-b, t), nil
	case ir.FMul:
		return tobits(a*b, t), nil
	case ir.FDiv:
		return tobits(a/b, t), nil
	case ir.FEq:
		return flag(a == b), nil
	case ir.FNe:
		return flag(a != b), nil
	case ir.FLt:
		return flag(a < b), nil
	case ir.FLe:
		return flag(a <= b), nil
	case ir.FGt:
		return flag(a > b), nil
	case ir.FGe:
		return flag(a >= b), nil
	default:
		return 0, errors.New("bad float operation %v", op)
	}
}

func un(op ir.Op, t, from ir.Type, v uint64) uint64 {
	switch op {
	case ir.Neg:
		return canon(-v, t)
	case ir.Not:
		return canon(^v, t)
	case ir.FNeg:
		return tobits(-ftof(v, t), t)
	case ir.SExt, ir.Trunc, ir.PtrToInt:
		return canon(v, t)
	case ir.ZExt, ir.IntToPtr:
		return canon(zext(v, from), t)
	case ir.FExt, ir.FTrunc:
		return tobits(ftof(v, from), t)
	case ir.SToF:
		return tobits(float64(int64(v)), t)
	case ir.UToF:
		return tobits(float64(zext(v, from)), t)
	case ir.FToS:
		return canon(uint64(int64(ftof(v, from))), t)
	case ir.FToU:
		return canon(uint64(ftof(v, from)), t)
	default:
		return v
	}
}

func ftof(v uint64, t ir.Type) float64 {
	if t == ir.F32 {
		return float64(math.Float32frombits(uint32(v)))
	}

	return math.Float64frombits(v)
}

func tobits(f float64, t ir.Type) uint64 {
	if t == ir.F32 {
		return uint64(math.Float32bits(float32(f)))
	}

	return math.Float64bits(f)
}

func (t trap) Error() string { return t.err.Error() }

func (t trap) Unwrap() error { return t.err }
