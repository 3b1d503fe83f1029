package ir

import (
	"fmt"

	"github.com/dave/jennifer/jen"
)

// HelperChoose is the generic helper rendering simple ternaries.
const HelperChoose = "choose"

// Emitter renders IR as Go code.
//
// Locals are named v0, v1, ... in the order the emitter first meets them,
// so names are stable for a given tree.
type Emitter struct {
	names map[int]string

	// Helpers records helper functions the rendered code calls.
	Helpers map[string]bool
}

// NewEmitter creates an emitter with fresh local naming.
func NewEmitter() *Emitter {
	return &Emitter{
		names:   map[int]string{},
		Helpers: map[string]bool{},
	}
}

// Name returns the Go name of a local.
func (e *Emitter) Name(l *Local) string {
	id := l.ID()

	name, ok := e.names[id]
	if !ok {
		name = fmt.Sprintf("v%d", len(e.names))
		e.names[id] = name
	}

	return name
}

// GoType returns the Go type of an IR type.
func GoType(t Type) jen.Code {
	switch t {
	case TypeInt:
		return jen.Int()
	case TypeString:
		return jen.String()
	case TypeBool:
		return jen.Bool()
	default:
		return jen.Interface()
	}
}

// Block renders a statement list.
func (e *Emitter) Block(stmts []Node) []jen.Code {
	res := make([]jen.Code, 0, len(stmts))
	for _, s := range stmts {
		res = append(res, e.Stmt(s))
	}
	return res
}

// Stmt renders one statement.
func (e *Emitter) Stmt(n Node) jen.Code {
	switch n := n.(type) {
	case *If:
		st := jen.If(e.Expr(n.Cond)).Block(e.Block(n.Then)...)

		switch {
		case len(n.Else) == 0:
		case len(n.Else) == 1 && isIf(n.Else[0]):
			st = st.Else().Add(e.Stmt(n.Else[0]))
		default:
			st = st.Else().Block(e.Block(n.Else)...)
		}

		return st
	case *Loop:
		return jen.For(e.Expr(n.Cond)).Block(e.Block(n.Body)...)
	case *InitLocal:
		name := e.Name(n.Slot)
		if n.Value == nil {
			return jen.Var().Id(name).Add(GoType(n.Slot.Type()))
		}
		if t, ok := n.Value.(*Ternary); ok && t.Typ != n.Slot.Type() {
			// the slot type may have been settled after optimization
			t = &Ternary{Typ: n.Slot.Type(), Cond: t.Cond, Then: t.Then, Else: t.Else}
			return jen.Id(name).Op(":=").Add(e.ternary(t))
		}
		return jen.Id(name).Op(":=").Add(e.Expr(n.Value))
	case *AssignLocal:
		return jen.Id(e.Name(n.Slot)).Op("=").Add(e.Expr(n.Value))
	case *Store:
		return e.store(n)
	case *ExprStmt:
		return e.Expr(n.X)
	case *Discard:
		return jen.Id("_").Op("=").Add(e.Expr(n.X))
	case *Void:
		return n.Gen()
	default:
		panic(fmt.Sprintf("ir: %T is not a statement", n))
	}
}

func isIf(n Node) bool {
	_, ok := n.(*If)
	return ok
}

func (e *Emitter) store(n *Store) jen.Code {
	v := e.Expr(n.Value)
	r := n.Ref

	switch r.Kind {
	case VarField:
		return jen.Id(r.Scope).Dot("Set").Call(jen.Lit(r.Name), v)
	case VarLocalString:
		return jen.Id(r.Scope).Dot("SetLocalString").Call(jen.Lit(r.Name), v)
	case VarLocalInt:
		return jen.Id(r.Scope).Dot("SetLocalInt").Call(jen.Lit(r.Name), v)
	default:
		return jen.Id(r.Scope).Dot(r.Ident).Op("=").Add(v)
	}
}

// Expr renders one expression.
func (e *Emitter) Expr(n Node) *jen.Statement {
	switch n := n.(type) {
	case *Literal:
		switch n.Typ {
		case TypeInt:
			return jen.Lit(n.Int)
		case TypeBool:
			return jen.Lit(n.Bool)
		default:
			return jen.Lit(n.Str)
		}
	case *VarRef:
		switch n.Kind {
		case VarField:
			return jen.Id(n.Scope).Dot("Field").Call(jen.Lit(n.Name))
		case VarLocalString:
			return jen.Id(n.Scope).Dot("LocalString").Call(jen.Lit(n.Name))
		case VarLocalInt:
			return jen.Id(n.Scope).Dot("LocalInt").Call(jen.Lit(n.Name))
		default:
			return jen.Id(n.Scope).Dot(n.Ident)
		}
	case *Local:
		return jen.Id(e.Name(n))
	case *Ident:
		return jen.Id(n.Name)
	case *Binary:
		l := e.operand(n.L, Prec(n.L) < n.Prec)
		r := e.operand(n.R, Prec(n.R) <= n.Prec)
		return l.Op(n.Op).Add(r)
	case *Not:
		return jen.Op("!").Add(e.operand(n.X, Prec(n.X) < PrecUnary))
	case *Call:
		return e.call(n)
	case *Ternary:
		return e.ternary(n)
	default:
		panic(fmt.Sprintf("ir: %T is not an expression", n))
	}
}

func (e *Emitter) operand(n Node, parens bool) *jen.Statement {
	if parens {
		return jen.Parens(e.Expr(n))
	}
	return e.Expr(n)
}

func (e *Emitter) call(n *Call) *jen.Statement {
	args := make([]jen.Code, len(n.Args))
	for i, a := range n.Args {
		args[i] = e.Expr(a)
	}

	switch {
	case n.Pkg != "":
		return jen.Qual(n.Pkg, n.Name).Call(args...)
	case len(n.Recv) != 0:
		st := jen.Id(n.Recv[0])
		for _, r := range n.Recv[1:] {
			st = st.Dot(r)
		}
		return st.Dot(n.Name).Call(args...)
	default:
		return jen.Id(n.Name).Call(args...)
	}
}

func (e *Emitter) ternary(n *Ternary) *jen.Statement {
	if Trivial(n.Then) && Trivial(n.Else) {
		e.Helpers[HelperChoose] = true
		return jen.Id(HelperChoose).Call(e.Expr(n.Cond), e.Expr(n.Then), e.Expr(n.Else))
	}

	return jen.Func().Params().Add(GoType(n.Typ)).Block(
		jen.If(e.Expr(n.Cond)).Block(jen.Return(e.Expr(n.Then))),
		jen.Return(e.Expr(n.Else)),
	).Call()
}
