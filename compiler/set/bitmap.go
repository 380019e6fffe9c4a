package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Bitmap is a growable set of small non-negative ints.
	Bitmap struct {
		b  []uint64
		b0 [1]uint64
	}
)

func (s *Bitmap) Set(i int) {
	i, j := s.ij(i)

	s.grow(i)

	s.b[i] |= 1 << j
}

func (s *Bitmap) IsSet(i int) bool {
	i, j := s.ij(i)

	if i >= len(s.b) {
		return false
	}

	return s.b[i]&(1<<j) != 0
}

// NextClear returns the smallest i >= from which is not in the set.
func (s *Bitmap) NextClear(from int) int {
	i, j := s.ij(from)

	for ; i < len(s.b); i, j = i+1, 0 {
		w := ^s.b[i] >> j
		if w != 0 {
			return i*64 + j + bits.TrailingZeros64(w)
		}
	}

	return max(from, len(s.b)*64)
}

func (s *Bitmap) Range(f func(i int) bool) {
	for i, x := range s.b {
		for x != 0 {
			j := bits.TrailingZeros64(x)
			x &^= 1 << j

			if !f(i*64 + j) {
				return
			}
		}
	}
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)

		return true
	})

	b = e.AppendBreak(b)

	return b
}

func (s *Bitmap) ij(pos int) (i int, j int) {
	return pos / 64, pos % 64
}

func (s *Bitmap) grow(i int) {
	if s.b == nil {
		s.b = s.b0[:]
	}

	for i >= len(s.b) {
		s.b = append(s.b, 0)
	}
}
