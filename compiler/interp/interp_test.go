package interp

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/gen"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

var (
	big   = tp.NewStruct("Big", tp.StructField{Name: "a", Type: tp.I64}, tp.StructField{Name: "b", Type: tp.I64}, tp.StructField{Name: "c", Type: tp.I64})
	small = tp.NewStruct("Small", tp.StructField{Name: "a", Type: tp.I32}, tp.StructField{Name: "b", Type: tp.I32})
)

func loadProcs(t *testing.T, m *Machine, ps ...*ast.Proc) {
	t.Helper()

	for _, p := range ps {
		res, err := gen.Build(context.Background(), p, gen.Config{})
		require.NoError(t, err, "proc %v", p.Name)

		m.AddProc(res.Proc)
	}
}

func i64(v int64) *ast.IntLit { return ast.Int(tp.I64, v) }

func local(name string, t tp.Type, init ast.Expr) *ast.Var {
	return &ast.Var{Name: name, T: t, Init: init}
}

func decl(v *ast.Var) ast.Stmt { return &ast.DeclStmt{Var: v} }

func set(l, r ast.Expr) ast.Stmt {
	return &ast.Assign{Lhs: []ast.Expr{l}, Rhs: []ast.Expr{r}}
}

func add(l ast.Expr, r ast.Expr) ast.Stmt {
	return &ast.Assign{Op: "+", Lhs: []ast.Expr{l}, Rhs: []ast.Expr{r}}
}

func ret(xs ...ast.Expr) ast.Stmt { return &ast.Return{Results: xs} }

func fn(in []tp.Type, out ...tp.Type) *tp.Func { return &tp.Func{In: in, Out: out} }

func TestLoops(t *testing.T) {
	ctx := context.Background()

	n := &ast.Var{Name: "n", T: tp.I64}
	s := local("s", tp.I64, i64(0))
	i := local("i", tp.I64, i64(0))

	sumOdd := ast.NewProc("sumOdd", fn([]tp.Type{tp.I64}, tp.I64), []*ast.Var{n},
		decl(s),
		decl(i),
		&ast.While{
			Cond: ast.Bin("<", ast.Ref(i), ast.Ref(n)),
			Body: ast.Stmts(
				add(ast.Ref(i), i64(1)),
				&ast.If{
					Cond: ast.Bin("==", ast.Bin("%", ast.Ref(i), i64(2)), i64(0)),
					Then: ast.Stmts(&ast.Continue{}),
				},
				add(ast.Ref(s), ast.Ref(i)),
			),
		},
		ret(ast.Ref(s)),
	)

	s2 := local("s", tp.I64, i64(0))
	j := local("j", tp.I64, i64(0))

	sumTo5 := ast.NewProc("sumTo5", fn(nil, tp.I64), nil,
		decl(s2),
		&ast.For{
			Init: decl(j),
			Post: add(ast.Ref(j), i64(1)),
			Body: ast.Stmts(
				&ast.If{
					Cond: ast.Bin("==", ast.Ref(j), i64(5)),
					Then: ast.Stmts(&ast.Break{}),
				},
				add(ast.Ref(s2), ast.Ref(j)),
			),
		},
		ret(ast.Ref(s2)),
	)

	k := &ast.Var{Name: "k", T: tp.I64}

	atLeastOnce := ast.NewProc("atLeastOnce", fn([]tp.Type{tp.I64}, tp.I64), []*ast.Var{k},
		&ast.While{
			DoWhile: true,
			Body:    ast.Stmts(add(ast.Ref(k), i64(1))),
			Cond:    ast.Bin("<", ast.Ref(k), i64(3)),
		},
		ret(ast.Ref(k)),
	)

	m := New()
	loadProcs(t, m, sumOdd, sumTo5, atLeastOnce)

	r, err := m.Call(ctx, "sumOdd", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), r)

	r, err = m.Call(ctx, "sumTo5")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), r)

	r, err = m.Call(ctx, "atLeastOnce", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), r)

	r, err = m.Call(ctx, "atLeastOnce", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), r)
}

func TestShortCircuit(t *testing.T) {
	ctx := context.Background()

	a, b, c := &ast.Var{Name: "a", T: tp.Bool{}}, &ast.Var{Name: "b", T: tp.Bool{}}, &ast.Var{Name: "c", T: tp.Bool{}}
	bools := []tp.Type{tp.Bool{}, tp.Bool{}, tp.Bool{}}

	exprs := []struct {
		name string
		x    ast.Expr
		f    func(a, b, c bool) bool
	}{
		{"and3", ast.Bin("&&", ast.Bin("&&", ast.Ref(a), ast.Ref(b)), ast.Ref(c)), func(a, b, c bool) bool { return a && b && c }},
		{"or3", ast.Bin("||", ast.Bin("||", ast.Ref(a), ast.Ref(b)), ast.Ref(c)), func(a, b, c bool) bool { return a || b || c }},
		{"orAnd", ast.Bin("||", ast.Ref(a), ast.Bin("&&", ast.Ref(b), ast.Ref(c))), func(a, b, c bool) bool { return a || b && c }},
		{"andOr", ast.Bin("&&", ast.Bin("||", ast.Ref(a), ast.Ref(b)), ast.Ref(c)), func(a, b, c bool) bool { return (a || b) && c }},
		{"notAnd", ast.Bin("||", ast.Un("!", ast.Bin("&&", ast.Ref(a), ast.Ref(b))), ast.Ref(c)), func(a, b, c bool) bool { return !(a && b) || c }},
		{"andNested", ast.Bin("&&", ast.Ref(a), ast.Bin("||", ast.Ref(b), ast.Un("!", ast.Ref(c)))), func(a, b, c bool) bool { return a && (b || !c) }},
	}

	m := New()

	for _, e := range exprs {
		loadProcs(t, m, ast.NewProc(e.name, fn(bools, tp.Bool{}), []*ast.Var{a, b, c}, ret(e.x)))
	}

	flag := func(x bool) uint64 {
		if x {
			return 1
		}

		return 0
	}

	for _, e := range exprs {
		for bitsv := 0; bitsv < 8; bitsv++ {
			x, y, z := bitsv&1 != 0, bitsv&2 != 0, bitsv&4 != 0

			r, err := m.Call(ctx, e.name, flag(x), flag(y), flag(z))
			require.NoError(t, err)
			assert.Equal(t, flag(e.f(x, y, z)), r, "%v(%v, %v, %v)", e.name, x, y, z)
		}
	}
}

func TestShortCircuitSkipsRight(t *testing.T) {
	ctx := context.Background()

	g := &ast.Var{Name: "g", T: tp.I64, Global: true}

	bump := ast.NewProc("bump", fn(nil, tp.Bool{}), nil,
		add(ast.Ref(g), i64(1)),
		ret(ast.Bool(true)),
	)

	a := &ast.Var{Name: "a", T: tp.Bool{}}

	f := ast.NewProc("f", fn([]tp.Type{tp.Bool{}}, tp.Bool{}), []*ast.Var{a},
		ret(ast.Bin("&&", ast.Ref(a), ast.CallOf(ast.Ref(bump)))),
	)

	m := New()
	addr := m.Global("g", 8, 8)
	loadProcs(t, m, bump, f)

	r, err := m.Call(ctx, "f", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r)

	mem, err := m.Bytes(addr, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(mem))

	r, err = m.Call(ctx, "f", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(mem))
}

func TestSwitch(t *testing.T) {
	ctx := context.Background()

	x := &ast.Var{Name: "x", T: tp.I64}
	r := local("r", tp.I64, i64(0))

	f := ast.NewProc("f", fn([]tp.Type{tp.I64}, tp.I64), []*ast.Var{x},
		decl(r),
		&ast.Switch{
			Tag: ast.Ref(x),
			Cases: []*ast.Case{
				{Values: []int64{1, 2}, Body: []ast.Stmt{add(ast.Ref(r), i64(10)), &ast.Fallthrough{}}},
				{Values: []int64{3}, Body: []ast.Stmt{add(ast.Ref(r), i64(1))}},
				{Body: []ast.Stmt{set(ast.Ref(r), i64(100))}},
			},
		},
		ret(ast.Ref(r)),
	)

	m := New()
	loadProcs(t, m, f)

	for in, exp := range map[uint64]uint64{1: 11, 2: 11, 3: 1, 7: 100} {
		res, err := m.Call(ctx, "f", in)
		require.NoError(t, err)
		assert.Equal(t, exp, res, "f(%d)", in)
	}
}

func TestMultiReturn(t *testing.T) {
	ctx := context.Background()

	x := &ast.Var{Name: "x", T: tp.I64}
	b := local("b", big, nil)

	pair := ast.NewProc("pair", fn([]tp.Type{tp.I64}, big, tp.I64, tp.I64), []*ast.Var{x},
		decl(b),
		set(ast.FieldOf(ast.Ref(b), "a"), ast.Ref(x)),
		set(ast.FieldOf(ast.Ref(b), "b"), ast.Bin("*", ast.Ref(x), i64(2))),
		set(ast.FieldOf(ast.Ref(b), "c"), ast.Bin("*", ast.Ref(x), i64(3))),
		ret(ast.Ref(b), ast.Bin("+", ast.Ref(x), i64(1)), ast.Bin("+", ast.Ref(x), i64(2))),
	)

	y := &ast.Var{Name: "y", T: tp.I64}
	cb, cy, cz := local("b", big, nil), local("y", tp.I64, nil), local("z", tp.I64, nil)

	caller := ast.NewProc("caller", fn([]tp.Type{tp.I64}, tp.I64), []*ast.Var{y},
		decl(cb), decl(cy), decl(cz),
		&ast.Assign{
			Lhs: []ast.Expr{ast.Ref(cb), ast.Ref(cy), ast.Ref(cz)},
			Rhs: []ast.Expr{ast.CallOf(ast.Ref(pair), ast.Ref(y))},
		},
		ret(ast.Bin("+",
			ast.Bin("+", ast.Bin("+", ast.FieldOf(ast.Ref(cb), "a"), ast.FieldOf(ast.Ref(cb), "b")), ast.FieldOf(ast.Ref(cb), "c")),
			ast.Bin("+", ast.Ref(cy), ast.Ref(cz)))),
	)

	m := New()
	loadProcs(t, m, pair, caller)

	r, err := m.Call(ctx, "caller", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), r)
}

func TestDirectStruct(t *testing.T) {
	ctx := context.Background()

	x := &ast.Var{Name: "x", T: tp.I32}
	s := local("s", small, nil)

	mk := ast.NewProc("mk", fn([]tp.Type{tp.I32}, small), []*ast.Var{x},
		decl(s),
		set(ast.FieldOf(ast.Ref(s), "a"), ast.Ref(x)),
		set(ast.FieldOf(ast.Ref(s), "b"), ast.Bin("+", ast.Ref(x), ast.Int(tp.I32, 1))),
		ret(ast.Ref(s)),
	)

	y := &ast.Var{Name: "y", T: tp.I32}

	use := ast.NewProc("use", fn([]tp.Type{tp.I32}, tp.I32), []*ast.Var{y},
		ret(ast.FieldOf(ast.CallOf(ast.Ref(mk), ast.Ref(y)), "b")),
	)

	m := New()
	loadProcs(t, m, mk, use)

	r, err := m.Call(ctx, "use", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), r)
}

func TestSequentialLocals(t *testing.T) {
	ctx := context.Background()

	x := &ast.Var{Name: "x", T: tp.I64}
	a := local("a", tp.I64, ast.Bin("+", ast.Ref(x), i64(5)))
	b := local("b", tp.I64, ast.Bin("+", ast.Ref(a), i64(1)))
	c := local("c", tp.I64, ast.Bin("*", ast.Ref(a), ast.Ref(b)))
	d := local("d", tp.I64, ast.Bin("-", ast.Ref(c), ast.Ref(b)))

	f := ast.NewProc("f", fn([]tp.Type{tp.I64}, tp.I64), []*ast.Var{x},
		decl(a), decl(b), decl(c),
		&ast.If{
			Cond: ast.Bin(">", ast.Ref(c), i64(0)),
			Then: ast.Stmts(decl(d), ret(ast.Ref(d))),
		},
		ret(i64(0)),
	)

	m := New()
	loadProcs(t, m, f)

	for _, tc := range []struct{ x, want int64 }{{0, 24}, {1, 35}, {-5, 0}} {
		r, err := m.Call(ctx, "f", uint64(tc.x))
		require.NoError(t, err, "x = %d", tc.x)
		assert.Equal(t, uint64(tc.want), r, "x = %d", tc.x)
	}
}

func TestForInitDefer(t *testing.T) {
	ctx := context.Background()

	g := &ast.Var{Name: "g", T: tp.I64, Global: true}

	step := func(d int64) ast.Stmt {
		return set(ast.Ref(g), ast.Bin("+", ast.Bin("*", ast.Ref(g), i64(10)), i64(d)))
	}

	i := local("i", tp.I64, i64(0))
	counted := ast.NewProc("counted", fn(nil, tp.I64), nil,
		decl(i),
		&ast.For{
			Init: &ast.Defer{Stmt: step(1)},
			Cond: ast.Bin("<", ast.Ref(i), i64(3)),
			Post: add(ast.Ref(i), i64(1)),
			Body: ast.Stmts(step(2)),
		},
		ret(ast.Ref(g)),
	)

	j := local("j", tp.I64, i64(0))
	broken := ast.NewProc("broken", fn(nil, tp.I64), nil,
		decl(j),
		&ast.For{
			Init: &ast.Defer{Stmt: step(1)},
			Body: ast.Stmts(
				&ast.If{Cond: ast.Bin(">=", ast.Ref(j), i64(2)), Then: ast.Stmts(&ast.Break{})},
				step(2),
				add(ast.Ref(j), i64(1)),
			),
		},
		ret(ast.Ref(g)),
	)

	for _, tc := range []struct {
		proc string
		want uint64
	}{
		{"counted", 2221},
		{"broken", 221},
	} {
		m := New()
		m.Global("g", 8, 8)
		loadProcs(t, m, counted, broken)

		r, err := m.Call(ctx, tc.proc)
		require.NoError(t, err, "%v", tc.proc)
		assert.Equal(t, tc.want, r, "%v", tc.proc)
	}
}

func TestDefers(t *testing.T) {
	ctx := context.Background()

	g := &ast.Var{Name: "g", T: tp.I64, Global: true}

	step := func(d int64) ast.Stmt {
		return set(ast.Ref(g), ast.Bin("+", ast.Bin("*", ast.Ref(g), i64(10)), i64(d)))
	}

	f := ast.NewProc("f", fn(nil, tp.I64), nil,
		&ast.Defer{Stmt: step(1)},
		&ast.Defer{Stmt: step(2)},
		step(3),
		ret(ast.Ref(g)),
	)

	m := New()
	addr := m.Global("g", 8, 8)
	loadProcs(t, m, f)

	r, err := m.Call(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), r, "result is computed before defers run")

	mem, err := m.Bytes(addr, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(321), binary.LittleEndian.Uint64(mem))
}

func TestConversions(t *testing.T) {
	ctx := context.Background()

	s8 := &ast.Var{Name: "x", T: tp.I8}
	u8 := &ast.Var{Name: "x", T: tp.U8}
	n := &ast.Var{Name: "x", T: tp.I64}
	fl := &ast.Var{Name: "x", T: tp.F64}

	m := New()
	loadProcs(t, m,
		ast.NewProc("sext", fn([]tp.Type{tp.I8}, tp.I64), []*ast.Var{s8}, ret(ast.CastTo(tp.I64, ast.Ref(s8)))),
		ast.NewProc("zext", fn([]tp.Type{tp.U8}, tp.I64), []*ast.Var{u8}, ret(ast.CastTo(tp.I64, ast.Ref(u8)))),
		ast.NewProc("half", fn([]tp.Type{tp.I64}, tp.F64), []*ast.Var{n}, ret(ast.Bin("/", ast.CastTo(tp.F64, ast.Ref(n)), ast.Float(tp.F64, 2)))),
		ast.NewProc("trunc", fn([]tp.Type{tp.F64}, tp.I32), []*ast.Var{fl}, ret(ast.CastTo(tp.I32, ast.Ref(fl)))),
	)

	r, err := m.Call(ctx, "sext", 0xfd)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), int64(r))

	r, err = m.Call(ctx, "zext", 0xfd)
	require.NoError(t, err)
	assert.Equal(t, uint64(253), r)

	r, err = m.Call(ctx, "half", 5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, math.Float64frombits(r))

	r, err = m.Call(ctx, "trunc", math.Float64bits(-7.9))
	require.NoError(t, err)
	assert.Equal(t, int64(-7), int64(r))
}

func TestTraps(t *testing.T) {
	ctx := context.Background()

	x := &ast.Var{Name: "x", T: tp.I64}

	m := New()
	m.MaxSteps = 1000

	loadProcs(t, m,
		ast.NewProc("div", fn([]tp.Type{tp.I64}, tp.I64), []*ast.Var{x}, ret(ast.Bin("/", i64(1), ast.Ref(x)))),
		ast.NewProc("spin", fn(nil), nil, &ast.For{Body: ast.Stmts()}),
	)

	_, err := m.Call(ctx, "div", 0)
	assert.True(t, errors.Is(err, ErrTrap), "err: %v", err)

	r, err := m.Call(ctx, "div", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)

	_, err = m.Call(ctx, "spin")
	assert.True(t, errors.Is(err, ErrTrap), "err: %v", err)

	m.AddProc(&ir.Proc{
		Name:    "wild",
		Code:    []ir.Instr{ir.Imm{Type: ir.I64, Dst: 0, Bits: 8}, ir.Load{Type: ir.I64, Dst: 0, Addr: 0, Align: 8}},
		NumRegs: 1,
	})

	_, err = m.Call(ctx, "wild")
	assert.True(t, errors.Is(err, ErrTrap), "err: %v", err)
}
