// Package ir defines the typed intermediate representation produced by
// symbolic execution of .bst function bodies.
//
// The IR sits between the stack-machine evaluator and Go code generation:
//   - Expressions are pure and may be evaluated lazily at their use site.
//   - Statements carry every side effect, in source order.
//   - Locals are slots in an arena and can be unified after the fact.
//
// Node is a closed variant: every implementation lives in this package and
// consumers dispatch with type switches.
package ir

import (
	"github.com/dave/jennifer/jen"

	"github.com/chazu/bst2go/pkg/ast"
)

// Type represents the static type of a node.
type Type int

const (
	TypeUnknown Type = iota // Slot whose type is not fixed yet
	TypeVoid                // Statements
	TypeInt
	TypeString
	TypeBool
	TypeCode // Compile-time code values: blocks and quoted functions
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeCode:
		return "code"
	default:
		return "unknown"
	}
}

// Node is an IR expression or statement.
type Node interface {
	irNode()
	Type() Type
}

// Operator precedences. Only used to decide parenthesization.
const (
	PrecOr      = 300
	PrecAnd     = 400
	PrecCompare = 700
	PrecAdd     = 800
	PrecUnary   = 1000
	PrecAtom    = 10000
)

// === Expressions ===

// Literal is an int, string or bool constant.
type Literal struct {
	Typ  Type
	Int  int
	Str  string
	Bool bool
}

// IntLit creates an int literal.
func IntLit(n int) *Literal { return &Literal{Typ: TypeInt, Int: n} }

// StrLit creates a string literal.
func StrLit(s string) *Literal { return &Literal{Typ: TypeString, Str: s} }

// BoolLit creates a bool literal.
func BoolLit(b bool) *Literal { return &Literal{Typ: TypeBool, Bool: b} }

// VarKind is the storage class of a variable reference.
type VarKind int

const (
	VarField VarKind = iota
	VarGlobalString
	VarGlobalInt
	VarLocalString
	VarLocalInt
)

func (k VarKind) String() string {
	switch k {
	case VarField:
		return "field"
	case VarGlobalString:
		return "global-string"
	case VarGlobalInt:
		return "global-int"
	case VarLocalString:
		return "local-string"
	default:
		return "local-int"
	}
}

// IsGlobal reports whether the variable lives on the style struct.
func (k VarKind) IsGlobal() bool { return k == VarGlobalString || k == VarGlobalInt }

// VarRef reads a declared storage location.
//
// Scope is the Go variable holding the entry for fields and entry locals,
// or the receiver for globals. Ident is the Go field name of a global.
type VarRef struct {
	Kind  VarKind
	Scope string
	Name  string
	Ident string
}

// Binary is an infix operator application.
type Binary struct {
	Op   string
	Prec int
	Typ  Type
	L, R Node
}

// Not is logical negation.
type Not struct {
	X Node
}

// Call is a named operation: a method on Recv, a package function (Pkg) or a
// plain function such as a linked helper.
type Call struct {
	Typ  Type
	Recv []string // e.g. {"s", "rt"} renders s.rt.Name(...)
	Pkg  string   // import path for package functions
	Name string
	Args []Node

	Reads    []string // storage names read besides Args
	Clobbers bool     // may write any storage
}

// Ternary is an expression-level conditional. Only the optimizer builds it.
type Ternary struct {
	Typ              Type
	Cond, Then, Else Node
}

// Ident is a raw Go identifier such as the current entry variable.
type Ident struct {
	Name string
	Typ  Type
}

// BlockRef is a code block pushed on the operand stack.
type BlockRef struct {
	Block *ast.Block
}

// QuoteRef is a quoted function name pushed on the operand stack.
type QuoteRef struct {
	Name string
}

// === Statements ===

// If is a statement-level conditional.
type If struct {
	Cond       Node
	Then, Else []Node
}

// Loop is a while loop.
type Loop struct {
	Cond Node
	Body []Node
}

// InitLocal declares a local slot. Value is nil for an uninitialized slot.
type InitLocal struct {
	Slot  *Local
	Value Node
}

// AssignLocal updates a local slot.
type AssignLocal struct {
	Slot  *Local
	Value Node
}

// Store writes a declared storage location.
type Store struct {
	Ref   *VarRef
	Value Node
}

// ExprStmt evaluates a call for its side effects.
type ExprStmt struct {
	X Node
}

// Discard evaluates and drops a value.
type Discard struct {
	X Node
}

// Void is opaque generated boilerplate, rendered lazily.
type Void struct {
	Gen func() jen.Code
}

func (*Literal) irNode()     {}
func (*VarRef) irNode()      {}
func (*Binary) irNode()      {}
func (*Not) irNode()         {}
func (*Call) irNode()        {}
func (*Ternary) irNode()     {}
func (*Ident) irNode()       {}
func (*BlockRef) irNode()    {}
func (*QuoteRef) irNode()    {}
func (*Local) irNode()       {}
func (*If) irNode()          {}
func (*Loop) irNode()        {}
func (*InitLocal) irNode()   {}
func (*AssignLocal) irNode() {}
func (*Store) irNode()       {}
func (*ExprStmt) irNode()    {}
func (*Discard) irNode()     {}
func (*Void) irNode()        {}

func (n *Literal) Type() Type { return n.Typ }

func (n *VarRef) Type() Type {
	switch n.Kind {
	case VarGlobalInt, VarLocalInt:
		return TypeInt
	default:
		return TypeString
	}
}

func (n *Binary) Type() Type  { return n.Typ }
func (n *Not) Type() Type     { return TypeBool }
func (n *Call) Type() Type    { return n.Typ }
func (n *Ternary) Type() Type { return n.Typ }
func (n *Ident) Type() Type   { return n.Typ }

func (*BlockRef) Type() Type    { return TypeCode }
func (*QuoteRef) Type() Type    { return TypeCode }
func (*If) Type() Type          { return TypeVoid }
func (*Loop) Type() Type        { return TypeVoid }
func (*InitLocal) Type() Type   { return TypeVoid }
func (*AssignLocal) Type() Type { return TypeVoid }
func (*Store) Type() Type       { return TypeVoid }
func (*ExprStmt) Type() Type    { return TypeVoid }
func (*Discard) Type() Type     { return TypeVoid }
func (*Void) Type() Type        { return TypeVoid }

// Prec returns the binding strength of an expression.
func Prec(n Node) int {
	switch n := n.(type) {
	case *Binary:
		return n.Prec
	case *Not:
		return PrecUnary
	case *Literal:
		if n.Typ == TypeInt && n.Int < 0 {
			return PrecUnary
		}
	}
	return PrecAtom
}

// Trivial reports whether evaluating n twice is as cheap as reading a
// variable.
func Trivial(n Node) bool {
	switch n.(type) {
	case *Literal, *Local, *VarRef, *Ident, *BlockRef, *QuoteRef:
		return true
	}
	return false
}
