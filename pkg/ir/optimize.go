package ir

import (
	"tlog.app/go/tlog"
)

// Optimize rewrites a statement list bottom-up in a single pass.
//
// Rewrites, in order:
//   - empty if removal: if c {} => _ = c when c reads a local, else nothing
//   - branch swap: if c {} else {E} => if !c {E}
//   - nested-if fusion: if a { if b {T} } => if a && b {T}
//   - ternary inlining: var x; if c { x = a } else { x = b } => x := c ? a : b
//   - redundant-init elision: var x; x = v => x := v
//
// The input is not modified, so nodes may be shared between lists.
// Optimize(Optimize(l)) is structurally equal to Optimize(l).
func Optimize(stmts []Node) []Node {
	res := make([]Node, 0, len(stmts))

	for _, s := range stmts {
		s = optimizeStmt(s)
		if s == nil {
			continue
		}
		res = append(res, s)
	}

	return optimizeList(res)
}

func optimizeStmt(n Node) Node {
	switch n := n.(type) {
	case *If:
		return optimizeIf(&If{
			Cond: Simplify(n.Cond),
			Then: Optimize(n.Then),
			Else: Optimize(n.Else),
		})
	case *Loop:
		return &Loop{Cond: Simplify(n.Cond), Body: Optimize(n.Body)}
	case *InitLocal:
		if n.Value == nil {
			return n
		}
		return &InitLocal{Slot: n.Slot, Value: Simplify(n.Value)}
	case *AssignLocal:
		return &AssignLocal{Slot: n.Slot, Value: Simplify(n.Value)}
	case *Store:
		return &Store{Ref: n.Ref, Value: Simplify(n.Value)}
	case *ExprStmt:
		return &ExprStmt{X: Simplify(n.X)}
	case *Discard:
		return &Discard{X: Simplify(n.X)}
	default:
		return n
	}
}

func optimizeIf(n *If) Node {
	if len(n.Then) == 0 && len(n.Else) == 0 {
		// conditions are pure, but the locals they read must stay used
		if len(Reads(n.Cond).Slots) != 0 {
			return &Discard{X: n.Cond}
		}
		return nil
	}

	if len(n.Then) == 0 {
		if tlog.If("opt") {
			tlog.Printw("swap branches", "else", len(n.Else))
		}

		n = &If{Cond: Negate(n.Cond), Then: n.Else}
	}

	if len(n.Else) == 0 && len(n.Then) == 1 {
		if inner, ok := n.Then[0].(*If); ok && len(inner.Else) == 0 {
			if tlog.If("opt") {
				tlog.Printw("fuse nested if")
			}

			n = &If{Cond: And(n.Cond, inner.Cond), Then: inner.Then}
		}
	}

	return n
}

func optimizeList(stmts []Node) []Node {
	res := make([]Node, 0, len(stmts))

	for i := 0; i < len(stmts); i++ {
		if init, ok := stmts[i].(*InitLocal); ok && init.Value == nil && i+1 < len(stmts) {
			if merged := mergeInit(init, stmts[i+1]); merged != nil {
				res = append(res, merged)
				i++
				continue
			}
		}

		res = append(res, stmts[i])
	}

	return res
}

// mergeInit folds the statement following an uninitialized declaration into
// the declaration when it is the slot's first assignment.
func mergeInit(init *InitLocal, next Node) Node {
	switch next := next.(type) {
	case *If:
		a, ok := singleAssign(next.Then, init.Slot)
		if !ok {
			return nil
		}
		b, ok := singleAssign(next.Else, init.Slot)
		if !ok {
			return nil
		}
		if ReadsSlot(next.Cond, init.Slot) {
			return nil
		}

		if tlog.If("opt") {
			tlog.Printw("inline ternary", "slot", init.Slot)
		}

		return &InitLocal{
			Slot:  init.Slot,
			Value: &Ternary{Typ: init.Slot.Type(), Cond: next.Cond, Then: a.Value, Else: b.Value},
		}
	case *AssignLocal:
		if !next.Slot.Same(init.Slot) || ReadsSlot(next.Value, init.Slot) {
			return nil
		}

		if tlog.If("opt") {
			tlog.Printw("elide init", "slot", init.Slot)
		}

		return &InitLocal{Slot: init.Slot, Value: next.Value}
	}

	return nil
}

func singleAssign(list []Node, slot *Local) (*AssignLocal, bool) {
	if len(list) != 1 {
		return nil, false
	}
	a, ok := list[0].(*AssignLocal)
	if !ok || !a.Slot.Same(slot) || ReadsSlot(a.Value, slot) {
		return nil, false
	}
	return a, true
}

// Simplify normalizes an expression: negations of comparisons are inverted,
// double negations removed and negated constants folded.
func Simplify(n Node) Node {
	switch n := n.(type) {
	case *Not:
		return Negate(Simplify(n.X))
	case *Binary:
		l, r := Simplify(n.L), Simplify(n.R)
		if l == n.L && r == n.R {
			return n
		}
		return &Binary{Op: n.Op, Prec: n.Prec, Typ: n.Typ, L: l, R: r}
	case *Ternary:
		return &Ternary{Typ: n.Typ, Cond: Simplify(n.Cond), Then: Simplify(n.Then), Else: Simplify(n.Else)}
	case *Call:
		var args []Node
		for i, a := range n.Args {
			s := Simplify(a)
			if s != a && args == nil {
				args = append([]Node{}, n.Args...)
			}
			if args != nil {
				args[i] = s
			}
		}
		if args == nil {
			return n
		}
		c := *n
		c.Args = args
		return &c
	default:
		return n
	}
}

var inverse = map[string]string{
	"==": "!=",
	"!=": "==",
	"<":  ">=",
	">=": "<",
	">":  "<=",
	"<=": ">",
}

// Negate returns the logical negation of a simplified boolean expression.
func Negate(n Node) Node {
	switch n := n.(type) {
	case *Not:
		return n.X
	case *Literal:
		if n.Typ == TypeBool {
			return BoolLit(!n.Bool)
		}
	case *Binary:
		if op, ok := inverse[n.Op]; ok {
			return &Binary{Op: op, Prec: n.Prec, Typ: n.Typ, L: n.L, R: n.R}
		}
	}
	return &Not{X: n}
}

// And conjoins two conditions.
func And(a, b Node) Node {
	return &Binary{Op: "&&", Prec: PrecAnd, Typ: TypeBool, L: a, R: b}
}
