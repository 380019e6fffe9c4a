package ast

import "github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"

// Checked syntax tree as produced by the parser and the type checker.
// Pointers to declaration nodes are node identities: the scheduler keys entities by them.

type (
	Node interface {
		Pos() int
	}

	Decl interface {
		Node
		decl()
	}

	Stmt interface {
		Node
		stmt()
	}

	Expr interface {
		Node
		Type() tp.Type
		expr()
	}

	Base struct {
		At int
	}

	// Typed is embedded into every expression.
	Typed struct {
		Base
		T tp.Type
	}
)

// Declarations.
type (
	Proc struct {
		Base

		Name   string
		Params []*Var
		Type   *tp.Func
		Body   *Block
	}

	// Var is a global, a local or a procedure parameter.
	Var struct {
		Base

		Name   string
		T      tp.Type
		Init   Expr
		Global bool
	}

	TypeDecl struct {
		Base

		Name string
		T    tp.Type
	}

	// RunDirective is an expression evaluated at compile time.
	RunDirective struct {
		Base

		X Expr
	}
)

// Statements.
type (
	Block struct {
		Base

		List []Stmt
	}

	ExprStmt struct {
		Base

		X Expr
	}

	DeclStmt struct {
		Base

		Var *Var
	}

	// Assign with Op == "" is a plain (possibly multi-value) assignment.
	// Otherwise it is a compound assignment of one target, Op being the binary operator.
	Assign struct {
		Base

		Op  string
		Lhs []Expr
		Rhs []Expr
	}

	If struct {
		Base

		Cond Expr
		Then *Block
		Else Stmt // nil, *Block or *If
	}

	For struct {
		Base

		Init Stmt
		Cond Expr // nil means forever
		Post Stmt
		Body *Block
	}

	While struct {
		Base

		Cond    Expr
		Body    *Block
		DoWhile bool
	}

	Switch struct {
		Base

		Tag   Expr
		Cases []*Case
	}

	// Case with no Values is the default case.
	Case struct {
		Base

		Values []int64
		Body   []Stmt
	}

	Break struct{ Base }

	Continue struct{ Base }

	// Fallthrough must be the last statement of a case body.
	Fallthrough struct{ Base }

	Return struct {
		Base

		Results []Expr
	}

	Defer struct {
		Base

		Stmt Stmt
	}
)

// Expressions.
type (
	Ident struct {
		Typed

		Name string
		Ref  Decl // *Var or *Proc
	}

	IntLit struct {
		Typed

		Val int64
	}

	FloatLit struct {
		Typed

		Val float64
	}

	BoolLit struct {
		Typed

		Val bool
	}

	// Binary operators: + - * / % & | ^ << >> == != < <= > >= && ||
	Binary struct {
		Typed

		Op   string
		L, R Expr
	}

	// Unary operators: - ! ~ * (dereference) & (address of)
	Unary struct {
		Typed

		Op string
		X  Expr
	}

	Call struct {
		Typed

		Fun  Expr
		Args []Expr
	}

	Cast struct {
		Typed

		X Expr
	}

	Field struct {
		Typed

		X    Expr
		Name string
	}

	Index struct {
		Typed

		X, Index Expr
	}
)

func (b Base) Pos() int { return b.At }

func (x Typed) Type() tp.Type { return x.T }

func (*Proc) decl()         {}
func (*Var) decl()          {}
func (*TypeDecl) decl()     {}
func (*RunDirective) decl() {}

func (*Block) stmt()       {}
func (*ExprStmt) stmt()    {}
func (*DeclStmt) stmt()    {}
func (*Assign) stmt()      {}
func (*If) stmt()          {}
func (*For) stmt()         {}
func (*While) stmt()       {}
func (*Switch) stmt()      {}
func (*Break) stmt()       {}
func (*Continue) stmt()    {}
func (*Fallthrough) stmt() {}
func (*Return) stmt()      {}
func (*Defer) stmt()       {}

func (*Ident) expr()    {}
func (*IntLit) expr()   {}
func (*FloatLit) expr() {}
func (*BoolLit) expr()  {}
func (*Binary) expr()   {}
func (*Unary) expr()    {}
func (*Call) expr()     {}
func (*Cast) expr()     {}
func (*Field) expr()    {}
func (*Index) expr()    {}

// Name returns the declared name. Run directives have none.
func Name(d Decl) string {
	switch d := d.(type) {
	case *Proc:
		return d.Name
	case *Var:
		return d.Name
	case *TypeDecl:
		return d.Name
	default:
		return ""
	}
}
