package tp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructLayout(t *testing.T) {
	s := NewStruct("Pair",
		StructField{Name: "a", Type: I8},
		StructField{Name: "b", Type: I64},
		StructField{Name: "c", Type: I16},
	)

	assert.Equal(t, 24, s.Size())
	assert.Equal(t, 8, s.Align())

	f, ok := s.Field("b")
	assert.True(t, ok)
	assert.Equal(t, 8, f.Offset)

	f, ok = s.Field("c")
	assert.True(t, ok)
	assert.Equal(t, 16, f.Offset)

	_, ok = s.Field("z")
	assert.False(t, ok)
}

func TestEmptyStruct(t *testing.T) {
	s := NewStruct("Empty")

	assert.Equal(t, 0, s.Size())
	assert.Equal(t, 1, s.Align())
}

func TestScalar(t *testing.T) {
	assert.True(t, IsScalar(I32))
	assert.True(t, IsScalar(Ptr{X: I8}))
	assert.True(t, IsScalar(Bool{}))
	assert.False(t, IsScalar(Array{X: I8, Len: 4}))
	assert.False(t, IsScalar(NewStruct("S", StructField{Name: "x", Type: I32})))

	assert.Equal(t, "^s32", String(Ptr{X: I32}))
	assert.Equal(t, "[3]u8", String(Array{X: U8, Len: 3}))
}
