package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ir"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

var (
	small = tp.NewStruct("Small", tp.StructField{Name: "a", Type: tp.I32}, tp.StructField{Name: "b", Type: tp.I32})
	big   = tp.NewStruct("Big", tp.StructField{Name: "a", Type: tp.I64}, tp.StructField{Name: "b", Type: tp.I64}, tp.StructField{Name: "c", Type: tp.I64})
	odd   = tp.NewStruct("Odd", tp.StructField{Name: "a", Type: tp.I8}, tp.StructField{Name: "b", Type: tp.I8}, tp.StructField{Name: "c", Type: tp.I8})
)

func TestClassify(t *testing.T) {
	r := Default

	for _, tc := range []struct {
		t    tp.Type
		rule Rule
		reg  ir.Type
	}{
		{tp.I32, Direct, ir.I32},
		{tp.U8, Direct, ir.I8},
		{tp.Bool{}, Direct, ir.I8},
		{tp.F32, Direct, ir.F32},
		{tp.F64, Direct, ir.F64},
		{tp.Ptr{X: big}, Direct, ir.Ptr},
		{small, Direct, ir.I64},
		{big, Indirect, ir.Ptr},
		{odd, Indirect, ir.Ptr},
		{tp.NewStruct("Empty"), Ignore, ir.Void},
		{tp.Void{}, Ignore, ir.Void},
		{tp.Array{X: tp.I16, Len: 2}, Direct, ir.I32},
	} {
		p := r.Classify(tc.t)

		assert.Equal(t, tc.rule, p.Rule, "%v", tp.String(tc.t))
		assert.Equal(t, tc.reg, p.Reg, "%v", tp.String(tc.t))
	}
}

func TestClassifyCustomResolver(t *testing.T) {
	r := &Resolver{DirectSize: func(int) bool { return false }}

	assert.Equal(t, Indirect, r.Classify(small).Rule)
	assert.Equal(t, Direct, r.Classify(tp.I64).Rule)
}

func TestMultiReturnSig(t *testing.T) {
	s := Default.Sig(&tp.Func{
		In:  []tp.Type{tp.I32, big},
		Out: []tp.Type{big, odd, tp.I64},
	})

	require.Len(t, s.Hidden, 2)
	assert.Equal(t, Hidden{Result: 0, Type: big}, s.Hidden[0])
	assert.Equal(t, Hidden{Result: 1, Type: odd}, s.Hidden[1])

	assert.Equal(t, Direct, s.Ret.Rule)
	assert.Equal(t, ir.I64, s.RetReg())

	assert.Equal(t, []ir.Type{ir.Ptr, ir.Ptr, ir.I32, ir.Ptr}, s.RegParams())
}

func TestIndirectLastReturnGoesFirst(t *testing.T) {
	s := Default.Sig(&tp.Func{
		Out: []tp.Type{tp.I32, tp.I8, big},
	})

	require.Len(t, s.Hidden, 3)
	assert.Equal(t, 2, s.Hidden[0].Result)
	assert.Equal(t, 0, s.Hidden[1].Result)
	assert.Equal(t, 1, s.Hidden[2].Result)

	assert.Equal(t, Indirect, s.Ret.Rule)
	assert.Equal(t, ir.Void, s.RetReg())
}

func TestNoResults(t *testing.T) {
	s := Default.Sig(&tp.Func{In: []tp.Type{tp.NewStruct("Empty"), tp.I8}})

	assert.Empty(t, s.Hidden)
	assert.Equal(t, Ignore, s.Ret.Rule)
	assert.Equal(t, []ir.Type{ir.I8}, s.RegParams())
}
