package ir

type (
	// Reg is an abstract numbered value slot.
	Reg int32

	// Inst is a stable instruction handle.
	// Before any middle insertion it equals the instruction position.
	Inst int32

	// Type is the machine type of a register value.
	Type uint8

	Op uint8

	// Instr is one of the instruction structs below.
	Instr interface {
		instr()
	}

	Bin struct {
		Op   Op
		Type Type
		Dst  Reg
		L, R Reg
	}

	// Un is a unary operation or a conversion from From to Type.
	Un struct {
		Op   Op
		Type Type
		From Type
		Dst  Reg
		Src  Reg
	}

	// Imm loads a constant. Floats are stored as their IEEE bits.
	Imm struct {
		Type Type
		Dst  Reg
		Bits uint64
	}

	Load struct {
		Type  Type
		Dst   Reg
		Addr  Reg
		Align int
	}

	Store struct {
		Type  Type
		Addr  Reg
		Val   Reg
		Align int
	}

	MemCopy struct {
		Dst, Src Reg
		Size     int
		Align    int
	}

	// MemFill sets Size bytes at Dst to the low byte of Val.
	MemFill struct {
		Dst   Reg
		Val   Reg
		Size  int
		Align int
	}

	// Local allocates stack memory for the procedure frame.
	Local struct {
		Dst   Reg
		Size  int
		Align int
	}

	// Addr takes the address of a global or a procedure.
	Addr struct {
		Dst Reg
		Sym string
	}

	// Call with Dst == NoReg has no register result.
	Call struct {
		Type   Type
		Dst    Reg
		Target Reg
		Args   []Reg
	}

	// Branch jumps to the target of the case equal to Test, or to Default.
	// A branch without cases is an unconditional jump.
	Branch struct {
		Test    Reg
		Cases   []Case
		Default Inst
	}

	Case struct {
		Val    int64
		Target Inst
	}

	// Region marks a basic block entry.
	Region struct{}

	// Ret with Val == NoReg returns nothing.
	Ret struct {
		Type Type
		Val  Reg
	}
)

const (
	NoReg  Reg  = -1
	NoInst Inst = -1
)

const (
	Void Type = iota
	I8
	I16
	I32
	I64
	F32
	F64
	Ptr
)

const (
	BadOp Op = iota

	Add
	Sub
	Mul
	SDiv
	UDiv
	SRem
	URem
	And
	Or
	Xor
	Shl
	LShr
	AShr

	Eq
	Ne
	SLt
	SLe
	SGt
	SGe
	ULt
	ULe
	UGt
	UGe

	FAdd
	FSub
	FMul
	FDiv
	FEq
	FNe
	FLt
	FLe
	FGt
	FGe

	Neg
	Not
	FNeg
	SExt
	ZExt
	Trunc
	FExt
	FTrunc
	SToF
	UToF
	FToS
	FToU
	PtrToInt
	IntToPtr
	Mov
)

func (Bin) instr()     {}
func (Un) instr()      {}
func (Imm) instr()     {}
func (Load) instr()    {}
func (Store) instr()   {}
func (MemCopy) instr() {}
func (MemFill) instr() {}
func (Local) instr()   {}
func (Addr) instr()    {}
func (Call) instr()    {}
func (Branch) instr()  {}
func (Region) instr()  {}
func (Ret) instr()     {}

var typeNames = [...]string{
	Void: "void",
	I8:   "i8",
	I16:  "i16",
	I32:  "i32",
	I64:  "i64",
	F32:  "f32",
	F64:  "f64",
	Ptr:  "ptr",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}

	return "type(?)"
}

func (t Type) Size() int {
	switch t {
	case I8:
		return 1
	case I16:
		return 2
	case I32, F32:
		return 4
	case I64, F64, Ptr:
		return 8
	default:
		return 0
	}
}

func (t Type) IsFloat() bool { return t == F32 || t == F64 }

// IntOfSize returns the integer type carrying size bytes.
func IntOfSize(size int) Type {
	switch size {
	case 1:
		return I8
	case 2:
		return I16
	case 4:
		return I32
	case 8:
		return I64
	default:
		return Void
	}
}

var opNames = [...]string{
	BadOp: "bad",

	Add: "add", Sub: "sub", Mul: "mul",
	SDiv: "sdiv", UDiv: "udiv", SRem: "srem", URem: "urem",
	And: "and", Or: "or", Xor: "xor",
	Shl: "shl", LShr: "lshr", AShr: "ashr",

	Eq: "eq", Ne: "ne",
	SLt: "slt", SLe: "sle", SGt: "sgt", SGe: "sge",
	ULt: "ult", ULe: "ule", UGt: "ugt", UGe: "uge",

	FAdd: "fadd", FSub: "fsub", FMul: "fmul", FDiv: "fdiv",
	FEq: "feq", FNe: "fne", FLt: "flt", FLe: "fle", FGt: "fgt", FGe: "fge",

	Neg: "neg", Not: "not", FNeg: "fneg",
	SExt: "sext", ZExt: "zext", Trunc: "trunc",
	FExt: "fext", FTrunc: "ftrunc",
	SToF: "stof", UToF: "utof", FToS: "ftos", FToU: "ftou",
	PtrToInt: "ptrtoint", IntToPtr: "inttoptr",
	Mov: "mov",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}

	return "op(?)"
}

// IsCompare reports whether op produces a boolean.
func (op Op) IsCompare() bool {
	return op >= Eq && op <= UGe || op >= FEq && op <= FGe
}

// IsJump reports whether b is an unconditional jump.
func (b Branch) IsJump() bool { return len(b.Cases) == 0 }

// Defines returns the register the instruction writes, or NoReg.
func Defines(x Instr) Reg {
	switch x := x.(type) {
	case Bin:
		return x.Dst
	case Un:
		return x.Dst
	case Imm:
		return x.Dst
	case Load:
		return x.Dst
	case Local:
		return x.Dst
	case Addr:
		return x.Dst
	case Call:
		return x.Dst
	case Store, MemCopy, MemFill, Branch, Region, Ret:
		return NoReg
	default:
		panic(x)
	}
}
