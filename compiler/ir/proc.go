package ir

type (
	// Proc is a frozen procedure body: branch targets are positions in Code.
	Proc struct {
		Name string

		// Params are register types of incoming arguments,
		// hidden output pointers included. Param i arrives in register i.
		Params []Type
		Ret    Type

		Code    []Instr
		NumRegs int
	}
)

// Regions returns positions of region markers.
func (p *Proc) Regions() (r []int) {
	for i, x := range p.Code {
		if _, ok := x.(Region); ok {
			r = append(r, i)
		}
	}

	return r
}

// Preds returns positions of branches targeting the region at pos,
// plus pos-1 if control falls through into it.
func (p *Proc) Preds(pos int) (r []int) {
	if pos > 0 && fallsThrough(p.Code[pos-1]) {
		r = append(r, pos-1)
	}

	for i, x := range p.Code {
		br, ok := x.(Branch)
		if !ok {
			continue
		}

		if int(br.Default) == pos {
			r = append(r, i)
			continue
		}

		for _, c := range br.Cases {
			if int(c.Target) == pos {
				r = append(r, i)
				break
			}
		}
	}

	return r
}

func fallsThrough(x Instr) bool {
	switch x.(type) {
	case Branch, Ret:
		return false
	default:
		return true
	}
}
