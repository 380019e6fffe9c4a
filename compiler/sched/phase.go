package sched

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

type (
	// Phase is a compilation stage. Entity phases never decrease.
	Phase int8

	// ID addresses an entity in the Pool. It stays valid while the pool grows.
	ID int32

	// Dep is a wait-for edge: the owner needs Target to reach Phase.
	Dep struct {
		Target ID
		Phase  Phase
	}

	ErrKind int8
)

const (
	Uninitialized Phase = iota
	Parsed
	TypeChecked
	SizeComputed
	BytecodeBuilt
	Run

	NumPhases
)

const None ID = -1

const (
	NoError ErrKind = iota
	Semantic
	Dependency
	Cycle
	CycleDependent
)

var phaseNames = [NumPhases]string{
	Uninitialized: "uninitialized",
	Parsed:        "parsed",
	TypeChecked:   "typechecked",
	SizeComputed:  "sizecomputed",
	BytecodeBuilt: "bytecodebuilt",
	Run:           "run",
}

func (p Phase) String() string {
	if p < 0 || p >= NumPhases {
		return "phase(?)"
	}

	return phaseNames[p]
}

func ParsePhase(s string) (Phase, error) {
	for p, n := range phaseNames {
		if n == s {
			return Phase(p), nil
		}
	}

	return Uninitialized, errors.New("unknown phase: %q", s)
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) (err error) {
	*p, err = ParsePhase(string(b))

	return err
}

func (k ErrKind) String() string {
	switch k {
	case NoError:
		return "ok"
	case Semantic:
		return "semantic"
	case Dependency:
		return "dependency"
	case Cycle:
		return "cycle"
	case CycleDependent:
		return "cycle_dependent"
	default:
		return "errkind(?)"
	}
}

func (k ErrKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// cyclic errors propagate to every dependent during cycle detection.
func (k ErrKind) cyclic() bool {
	return k == Cycle || k == CycleDependent
}

func (d Dep) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyInt(b, "target", int(d.Target))
	b = e.AppendKeyInt(b, "phase", int(d.Phase))

	return b
}
