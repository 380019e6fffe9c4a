package ir

import (
	"math"
	"slices"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
)

type (
	// Stream is an instruction sequence under construction.
	//
	// Instructions are addressed by handles. Appending gives the handle equal to the position.
	// Middle insertion shifts positions, and the offset table translates
	// a handle to its current position: pos = handle + off[handle].
	Stream struct {
		code  []Instr // by handle
		order []Inst  // by position
		off   []int   // by handle

		bufs []*buffer

		gen int
	}

	buffer struct {
		at Inst
		hs []Inst
	}

	// Pos is a position valid until the next insertion.
	Pos struct {
		I   int
		gen int
	}
)

const unplaced = math.MinInt

// Emit appends x to the stream or to the innermost open insertion buffer.
func (s *Stream) Emit(x Instr) Inst {
	h := Inst(len(s.code))
	s.code = append(s.code, x)

	if l := len(s.bufs); l != 0 {
		b := s.bufs[l-1]
		b.hs = append(b.hs, h)
		s.off = append(s.off, unplaced)

		return h
	}

	s.off = append(s.off, len(s.order)-int(h))
	s.order = append(s.order, h)

	return h
}

func (s *Stream) At(h Inst) Instr {
	s.check(h)

	return s.code[h]
}

// Set replaces the instruction in place. Used to patch branch targets.
func (s *Stream) Set(h Inst, x Instr) {
	s.check(h)

	s.code[h] = x
}

// Len is the number of placed instructions.
func (s *Stream) Len() int { return len(s.order) }

// Handles is the number of handles allocated.
func (s *Stream) Handles() int { return len(s.code) }

func (s *Stream) Inserting() bool { return len(s.bufs) != 0 }

// Begin opens an insertion buffer.
// Instructions emitted until the matching Commit are inserted right before at.
func (s *Stream) Begin(at Inst) {
	s.check(at)

	s.bufs = append(s.bufs, &buffer{at: at})
}

// Commit splices the innermost buffer in front of its anchor,
// wherever the anchor has been shifted to since Begin.
func (s *Stream) Commit() {
	l := len(s.bufs)
	if l == 0 {
		bug("commit without begin")
	}

	b := s.bufs[l-1]
	s.bufs = s.bufs[:l-1]

	if len(b.hs) == 0 {
		return
	}

	if s.off[b.at] != unplaced {
		pos := s.Translate(b.at)

		s.order = slices.Insert(s.order, pos, b.hs...)

		for p := pos; p < len(s.order); p++ {
			h := s.order[p]
			s.off[h] = p - int(h)
		}

		s.gen++

		tlog.V("gen_insert").Printw("insert", "at", b.at, "pos", pos, "n", len(b.hs), "len", len(s.order))

		return
	}

	for i := len(s.bufs) - 1; i >= 0; i-- {
		outer := s.bufs[i]

		j := slices.Index(outer.hs, b.at)
		if j < 0 {
			continue
		}

		outer.hs = slices.Insert(outer.hs, j, b.hs...)

		return
	}

	bug("insertion anchor %d is not in the stream", b.at)
}

// Translate returns the current position of the instruction.
func (s *Stream) Translate(h Inst) int {
	s.check(h)

	if s.off[h] == unplaced {
		bug("instruction %d is not placed yet", h)
	}

	return int(h) + s.off[h]
}

func (s *Stream) Placed(h Inst) bool {
	s.check(h)

	return s.off[h] != unplaced
}

func (s *Stream) Pos(h Inst) Pos {
	return Pos{I: s.Translate(h), gen: s.gen}
}

// AtPos returns the instruction at a position.
// Using a position computed before the last insertion is a bug.
func (s *Stream) AtPos(p Pos) Instr {
	if p.gen != s.gen {
		bug("stale position %d: taken at generation %d, stream is at %d", p.I, p.gen, s.gen)
	}

	if p.I < 0 || p.I >= len(s.order) {
		bug("position out of range: %d (len %d)", p.I, len(s.order))
	}

	return s.code[s.order[p.I]]
}

// Order returns handles in program order.
func (s *Stream) Order() []Inst {
	return slices.Clone(s.order)
}

// Freeze returns instructions in program order with branch targets
// translated from handles to positions.
func (s *Stream) Freeze() []Instr {
	if len(s.bufs) != 0 {
		bug("freeze with %d open insertions", len(s.bufs))
	}

	r := make([]Instr, len(s.order))

	for p, h := range s.order {
		x := s.code[h]

		if br, ok := x.(Branch); ok {
			cases := make([]Case, len(br.Cases))

			for i, c := range br.Cases {
				cases[i] = Case{Val: c.Val, Target: Inst(s.target(h, c.Target))}
			}

			br.Cases = cases
			br.Default = Inst(s.target(h, br.Default))

			x = br
		}

		r[p] = x
	}

	return r
}

func (s *Stream) target(br, h Inst) int {
	if h == NoInst {
		bug("branch %d has unpatched target", br)
	}

	if _, ok := s.code[h].(Region); !ok {
		bug("branch %d targets %d which is not a region: %T", br, h, s.code[h])
	}

	return s.Translate(h)
}

func (s *Stream) check(h Inst) {
	if h < 0 || int(h) >= len(s.code) {
		bug("instruction handle out of range: %d (have %d)", h, len(s.code))
	}
}

func bug(f string, args ...any) {
	panic(errors.New("%v: "+f, append([]any{loc.Caller(2)}, args...)...))
}
