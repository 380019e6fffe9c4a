package tp

import "fmt"

type (
	// Type is a checked type.
	// Size and Align are final once the size phase of the declaring entity completed.
	Type interface {
		Size() int
		Align() int
	}

	Void struct{}

	Bool struct{}

	Int struct {
		Bits   int16
		Signed bool
	}

	Float struct {
		Bits int16
	}

	Ptr struct {
		X Type
	}

	Array struct {
		X   Type
		Len int
	}

	Struct struct {
		Name   string
		Fields []StructField

		size, align int
	}

	StructField struct {
		Name   string
		Offset int
		Type   Type
	}

	Func struct {
		In  []Type
		Out []Type
	}
)

const PtrSize = 8

var (
	I8  = Int{Bits: 8, Signed: true}
	I16 = Int{Bits: 16, Signed: true}
	I32 = Int{Bits: 32, Signed: true}
	I64 = Int{Bits: 64, Signed: true}
	U8  = Int{Bits: 8}
	U16 = Int{Bits: 16}
	U32 = Int{Bits: 32}
	U64 = Int{Bits: 64}
	F32 = Float{Bits: 32}
	F64 = Float{Bits: 64}
)

func (Void) Size() int  { return 0 }
func (Void) Align() int { return 1 }

func (Bool) Size() int  { return 1 }
func (Bool) Align() int { return 1 }

func (x Int) Size() int  { return int(x.Bits) / 8 }
func (x Int) Align() int { return x.Size() }

func (x Float) Size() int  { return int(x.Bits) / 8 }
func (x Float) Align() int { return x.Size() }

func (Ptr) Size() int  { return PtrSize }
func (Ptr) Align() int { return PtrSize }

func (x Array) Size() int  { return x.X.Size() * x.Len }
func (x Array) Align() int { return x.X.Align() }

func (*Func) Size() int  { return PtrSize }
func (*Func) Align() int { return PtrSize }

// NewStruct lays fields out in order, each at the next offset aligned to its type.
func NewStruct(name string, fields ...StructField) *Struct {
	s := &Struct{Name: name, Fields: fields, align: 1}

	off := 0

	for i, f := range s.Fields {
		a := f.Type.Align()
		off = AlignUp(off, a)

		s.Fields[i].Offset = off
		off += f.Type.Size()

		s.align = max(s.align, a)
	}

	s.size = AlignUp(off, s.align)

	return s
}

func (x *Struct) Size() int  { return x.size }
func (x *Struct) Align() int { return x.align }

func (x *Struct) Field(name string) (StructField, bool) {
	for _, f := range x.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return StructField{}, false
}

func AlignUp(n, a int) int {
	if a <= 1 {
		return n
	}

	return (n + a - 1) / a * a
}

// IsScalar reports whether values of the type fit a single register.
func IsScalar(t Type) bool {
	switch t.(type) {
	case Bool, Int, Float, Ptr, *Func:
		return true
	default:
		return false
	}
}

func IsSigned(t Type) bool {
	x, ok := t.(Int)
	return ok && x.Signed
}

func String(t Type) string {
	switch x := t.(type) {
	case nil:
		return "<nil>"
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Int:
		if x.Signed {
			return fmt.Sprintf("s%d", x.Bits)
		}

		return fmt.Sprintf("u%d", x.Bits)
	case Float:
		return fmt.Sprintf("f%d", x.Bits)
	case Ptr:
		return "^" + String(x.X)
	case Array:
		return fmt.Sprintf("[%d]%s", x.Len, String(x.X))
	case *Struct:
		return x.Name
	case *Func:
		return fmt.Sprintf("proc%v->%v", x.In, x.Out)
	default:
		return fmt.Sprintf("%T", t)
	}
}
