package gen

import (
	"context"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/abi"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/sched"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/set"
)

type (
	// Deps resolves references to other declarations.
	// Require returns nil if d reached phase p,
	// an error wrapping sched.ErrYield after recording the dependency,
	// or any other error if d will never get there.
	Deps interface {
		Require(d ast.Decl, p sched.Phase) error
	}

	// Builder is the construction context of one procedure.
	Builder struct {
		ir.Stream

		abi  *abi.Resolver
		deps Deps

		nreg   ir.Reg
		maxreg ir.Reg
		perm   set.Bitmap // registers live across statements
		hold   int

		// dead is set after an unconditional jump or a return
		// and cleared by the next region.
		dead  bool
		saved []bool

		// Locals are inserted right before anchor, the first body instruction.
		anchor   ir.Inst
		prologue bool

		sig  abi.Sig
		outs map[int]ir.Reg // hidden output pointers by result index
		vars map[*ast.Var]ir.Reg

		scopes  []scope
		targets []*target

		callees []*ast.Proc
		globals []*ast.Var
		seen    map[ast.Decl]struct{}
	}

	scope struct {
		defers []ast.Stmt
	}

	// target collects jumps out of a loop or a switch.
	target struct {
		loop  bool
		depth int

		breaks    []edge
		continues []edge
		falls     []edge
	}

	// edge is a branch target slot waiting to be patched.
	// Slot is a case index or -1 for the default target.
	edge struct {
		At   ir.Inst
		Slot int
	}
)

var ErrUnsupported = errors.New("unsupported")

func newBuilder(a *abi.Resolver, deps Deps) *Builder {
	if a == nil {
		a = abi.Default
	}

	return &Builder{
		abi:    a,
		deps:   deps,
		anchor: ir.NoInst,
		outs:   map[int]ir.Reg{},
		vars:   map[*ast.Var]ir.Reg{},
		seen:   map[ast.Decl]struct{}{},
	}
}

// AllocReg returns the next free register skipping permanent ones.
func (b *Builder) AllocReg() ir.Reg {
	r := b.nreg

	for b.perm.IsSet(int(r)) {
		r++
	}

	b.nreg = r + 1
	b.maxreg = max(b.maxreg, b.nreg)

	return r
}

// PermReg allocates a register which stays valid until the end of the procedure.
// The register is one never used before, so its definition may be hoisted
// above code already emitted.
func (b *Builder) PermReg() ir.Reg {
	r := b.maxreg
	b.maxreg++
	b.perm.Set(int(r))

	return r
}

// endStmt reclaims temporaries of the finished statement.
func (b *Builder) endStmt() {
	if b.hold != 0 {
		return
	}

	b.nreg = ir.Reg(b.perm.NextClear(0))
}

func (b *Builder) emit(x ir.Instr) ir.Inst {
	h := b.Emit(x)

	if b.anchor == ir.NoInst && !b.prologue {
		b.anchor = h
	}

	switch x.(type) {
	case ir.Branch, ir.Ret:
		b.dead = true
	case ir.Region:
		b.dead = false
	}

	return h
}

// begin opens an insertion right before at.
func (b *Builder) begin(at ir.Inst) {
	b.Begin(at)

	b.saved = append(b.saved, b.dead)
	b.dead = false
}

func (b *Builder) commit() {
	b.Commit()

	l := len(b.saved) - 1
	b.dead = b.saved[l]
	b.saved = b.saved[:l]
}

func (b *Builder) Bin(op ir.Op, t ir.Type, l, r ir.Reg) ir.Reg {
	dst := b.AllocReg()
	b.emit(ir.Bin{Op: op, Type: t, Dst: dst, L: l, R: r})

	return dst
}

// Un emits a unary operation or a conversion from type from to type t.
func (b *Builder) Un(op ir.Op, t, from ir.Type, src ir.Reg) ir.Reg {
	dst := b.AllocReg()
	b.emit(ir.Un{Op: op, Type: t, From: from, Dst: dst, Src: src})

	return dst
}

func (b *Builder) Imm(t ir.Type, bits uint64) ir.Reg {
	dst := b.AllocReg()
	b.emit(ir.Imm{Type: t, Dst: dst, Bits: bits})

	return dst
}

func (b *Builder) ImmInt(t ir.Type, v int64) ir.Reg {
	return b.Imm(t, uint64(v))
}

func (b *Builder) ImmFloat(t ir.Type, v float64) ir.Reg {
	if t == ir.F32 {
		return b.Imm(t, uint64(math.Float32bits(float32(v))))
	}

	return b.Imm(t, math.Float64bits(v))
}

func (b *Builder) Load(t ir.Type, addr ir.Reg, align int) ir.Reg {
	dst := b.AllocReg()
	b.emit(ir.Load{Type: t, Dst: dst, Addr: addr, Align: align})

	return dst
}

func (b *Builder) Store(t ir.Type, addr, val ir.Reg, align int) {
	b.emit(ir.Store{Type: t, Addr: addr, Val: val, Align: align})
}

func (b *Builder) Copy(dst, src ir.Reg, size, align int) {
	b.emit(ir.MemCopy{Dst: dst, Src: src, Size: size, Align: align})
}

func (b *Builder) Fill(dst, val ir.Reg, size, align int) {
	b.emit(ir.MemFill{Dst: dst, Val: val, Size: size, Align: align})
}

// Local allocates stack memory. The allocation is hoisted to the procedure entry
// and its address register is permanent.
func (b *Builder) Local(size, align int) ir.Reg {
	dst := b.PermReg()
	x := ir.Local{Dst: dst, Size: size, Align: align}

	if b.anchor == ir.NoInst {
		b.Emit(x)

		return dst
	}

	b.Begin(b.anchor)
	b.Emit(x)
	b.Commit()

	return dst
}

func (b *Builder) AddrOf(sym string) ir.Reg {
	dst := b.AllocReg()
	b.emit(ir.Addr{Dst: dst, Sym: sym})

	return dst
}

// Call emits a call. Result type Void gives no result register.
func (b *Builder) Call(t ir.Type, target ir.Reg, args []ir.Reg) ir.Reg {
	dst := ir.NoReg
	if t != ir.Void {
		dst = b.AllocReg()
	}

	b.emit(ir.Call{Type: t, Dst: dst, Target: target, Args: args})

	return dst
}

func (b *Builder) Region() ir.Inst {
	return b.emit(ir.Region{})
}

func (b *Builder) Ret(t ir.Type, val ir.Reg) {
	b.emit(ir.Ret{Type: t, Val: val})
}

// Jump emits an unconditional jump with a placeholder target.
func (b *Builder) Jump() edge {
	return edge{At: b.emit(ir.Branch{Test: ir.NoReg, Default: ir.NoInst}), Slot: -1}
}

func (b *Builder) JumpTo(to ir.Inst) ir.Inst {
	return b.emit(ir.Branch{Test: ir.NoReg, Default: to})
}

// BranchFalse emits a conditional branch on test and opens the true region.
// It returns the edge taken if test is zero.
func (b *Builder) BranchFalse(test ir.Reg) edge {
	br := b.emit(ir.Branch{Test: test, Cases: []ir.Case{{Val: 0, Target: ir.NoInst}}, Default: ir.NoInst})
	t := b.Region()

	b.patch(edge{At: br, Slot: -1}, t)

	return edge{At: br, Slot: 0}
}

// Switch emits a branch with a placeholder target per case value.
func (b *Builder) Switch(test ir.Reg, vals []int64) ir.Inst {
	cs := make([]ir.Case, len(vals))

	for i, v := range vals {
		cs[i] = ir.Case{Val: v, Target: ir.NoInst}
	}

	return b.emit(ir.Branch{Test: test, Cases: cs, Default: ir.NoInst})
}

func (b *Builder) patch(e edge, to ir.Inst) {
	x, ok := b.At(e.At).(ir.Branch)
	if !ok {
		bug("patch %v: not a branch: %T", e, b.At(e.At))
	}

	if _, ok := b.At(to).(ir.Region); !ok {
		bug("patch %v: target %d is not a region: %T", e, to, b.At(to))
	}

	switch {
	case e.Slot == -1:
		x.Default = to
	case e.Slot >= 0 && e.Slot < len(x.Cases):
		x.Cases[e.Slot].Target = to
	default:
		bug("patch %v: no such case slot", e)
	}

	b.Set(e.At, x)
}

func (b *Builder) patchAll(es []edge, to ir.Inst) {
	for _, e := range es {
		b.patch(e, to)
	}
}

// need records a reference to d which must have reached phase p.
func (b *Builder) need(ctx context.Context, d ast.Decl, p sched.Phase) error {
	if b.deps == nil {
		return nil
	}

	err := b.deps.Require(d, p)
	if errors.Is(err, sched.ErrYield) {
		tlog.SpanFromContext(ctx).V("gen_yield").Printw("yield", "decl", ast.Name(d), "phase", p)
	}

	return err
}

func (b *Builder) refer(d ast.Decl) {
	if _, ok := b.seen[d]; ok {
		return
	}

	b.seen[d] = struct{}{}

	switch d := d.(type) {
	case *ast.Proc:
		b.callees = append(b.callees, d)
	case *ast.Var:
		b.globals = append(b.globals, d)
	}
}

func (e edge) TlogAppend(buf []byte) []byte {
	var enc tlwire.Encoder

	buf = enc.AppendMap(buf, 2)
	buf = enc.AppendKeyInt(buf, "at", int(e.At))
	buf = enc.AppendKeyInt(buf, "slot", e.Slot)

	return buf
}

func bug(f string, args ...any) {
	panic(errors.New("%v: "+f, append([]any{loc.Caller(2)}, args...)...))
}
