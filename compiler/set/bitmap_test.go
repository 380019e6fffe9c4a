package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmapNextClear(t *testing.T) {
	var s Bitmap

	assert.Equal(t, 0, s.NextClear(0))
	assert.Equal(t, 5, s.NextClear(5))

	for i := 0; i < 70; i++ {
		if i != 3 {
			s.Set(i)
		}
	}

	assert.Equal(t, 3, s.NextClear(0))
	assert.Equal(t, 70, s.NextClear(4))
	assert.Equal(t, 70, s.NextClear(63))
	assert.Equal(t, 200, s.NextClear(200))

	assert.True(t, s.IsSet(69))
	assert.False(t, s.IsSet(3))
	assert.False(t, s.IsSet(1000))
}

func TestBitmapRange(t *testing.T) {
	var s Bitmap

	s.Set(1)
	s.Set(64)
	s.Set(127)

	var got []int

	s.Range(func(i int) bool {
		got = append(got, i)
		return true
	})

	assert.Equal(t, []int{1, 64, 127}, got)

	got = got[:0]

	s.Range(func(i int) bool {
		got = append(got, i)
		return i < 64
	})

	assert.Equal(t, []int{1, 64}, got)
}
