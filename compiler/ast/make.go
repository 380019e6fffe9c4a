package ast

import "github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"

// Constructors used by the checker front end and by tests.

func Int(t tp.Type, v int64) *IntLit {
	return &IntLit{Typed: Typed{T: t}, Val: v}
}

func Float(t tp.Type, v float64) *FloatLit {
	return &FloatLit{Typed: Typed{T: t}, Val: v}
}

func Bool(v bool) *BoolLit {
	return &BoolLit{Typed: Typed{T: tp.Bool{}}, Val: v}
}

// Ref refers to a variable or a procedure.
func Ref(d Decl) *Ident {
	switch d := d.(type) {
	case *Var:
		return &Ident{Typed: Typed{T: d.T}, Name: d.Name, Ref: d}
	case *Proc:
		return &Ident{Typed: Typed{T: d.Type}, Name: d.Name, Ref: d}
	default:
		panic(d)
	}
}

// Bin builds a binary expression. Comparisons and logical operators are bool typed.
func Bin(op string, l, r Expr) *Binary {
	t := l.Type()

	switch op {
	case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
		t = tp.Bool{}
	}

	return &Binary{Typed: Typed{T: t}, Op: op, L: l, R: r}
}

func Un(op string, x Expr) *Unary {
	t := x.Type()

	switch op {
	case "!":
		t = tp.Bool{}
	case "*":
		t = t.(tp.Ptr).X
	case "&":
		t = tp.Ptr{X: t}
	}

	return &Unary{Typed: Typed{T: t}, Op: op, X: x}
}

// CallOf builds a call. The expression type is the last result type.
func CallOf(fun Expr, args ...Expr) *Call {
	ft := fun.Type().(*tp.Func)

	var t tp.Type = tp.Void{}
	if l := len(ft.Out); l != 0 {
		t = ft.Out[l-1]
	}

	return &Call{Typed: Typed{T: t}, Fun: fun, Args: args}
}

func CastTo(t tp.Type, x Expr) *Cast {
	return &Cast{Typed: Typed{T: t}, X: x}
}

func FieldOf(x Expr, name string) *Field {
	s := x.Type().(*tp.Struct)

	f, ok := s.Field(name)
	if !ok {
		panic(name)
	}

	return &Field{Typed: Typed{T: f.Type}, X: x, Name: name}
}

func IndexOf(x, i Expr) *Index {
	var t tp.Type

	switch xt := x.Type().(type) {
	case tp.Array:
		t = xt.X
	case tp.Ptr:
		t = xt.X
	default:
		panic(xt)
	}

	return &Index{Typed: Typed{T: t}, X: x, Index: i}
}

func NewProc(name string, t *tp.Func, params []*Var, body ...Stmt) *Proc {
	return &Proc{
		Name:   name,
		Params: params,
		Type:   t,
		Body:   &Block{List: body},
	}
}

func Stmts(list ...Stmt) *Block {
	return &Block{List: list}
}
