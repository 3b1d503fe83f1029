package compiler

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/chazu/bst2go/pkg/ir"
)

// compileIf compiles cond {then} {else} if$.
//
// Both blocks run against their own states. Their stacks are padded to
// equal depth, their inputs unified pairwise and bound to caller values, and
// every stack position where the branches disagree gets a local both
// branches assign. The caller sees one If statement and those locals.
func compileIf(c *Compiler, st *State) error {
	elseV, thenV, condV := st.Pop(), st.Pop(), st.Pop()

	thenB, ok := codeBlock(thenV)
	if !ok {
		return &ControlFlowError{Construct: "if$", Reason: ReasonIfThen, Fragment: describe(thenV)}
	}

	elseB, ok := codeBlock(elseV)
	if !ok {
		return &ControlFlowError{Construct: "if$", Reason: ReasonIfElse, Fragment: describe(elseV)}
	}

	cond, err := st.Coerce(condV, ir.TypeBool, "if$")
	if err != nil {
		return errors.Wrap(err, "if condition")
	}

	t := st.Nested()
	if err := c.Evaluate(thenB, t); err != nil {
		return errors.Wrap(err, "if then")
	}

	e := st.Nested()
	if err := c.Evaluate(elseB, e); err != nil {
		return errors.Wrap(err, "if else")
	}

	if d := e.Len() - t.Len(); d > 0 {
		t.Pad(d)
	} else {
		e.Pad(-d)
	}

	inputs, err := c.unifyInputs(t.locals, e.locals, "if$")
	if err != nil {
		return err
	}

	targets, results, fresh, err := c.mergeResults(inputs, t, e)
	if err != nil {
		return err
	}

	if err := st.bind(inputs, "if$"); err != nil {
		return errors.Wrap(err, "if inputs")
	}

	for _, r := range fresh {
		st.Add(&ir.InitLocal{Slot: r})
	}

	thenS, err := c.branchBody(t, targets)
	if err != nil {
		return errors.Wrap(err, "if then")
	}

	elseS, err := c.branchBody(e, targets)
	if err != nil {
		return errors.Wrap(err, "if else")
	}

	if c.opts.optimize() {
		cond = ir.Simplify(cond)
	}

	tlog.V("eval").Printw("if", "inputs", len(inputs), "results", len(results), "then", len(thenS), "else", len(elseS))

	st.Add(&ir.If{Cond: cond, Then: thenS, Else: elseS})

	for _, r := range results {
		st.Push(r)
	}

	return nil
}

// unifyInputs merges the inputs of two sibling states position by position
// and returns the canonical list, as long as the longer one.
func (c *Compiler) unifyInputs(a, b []*ir.Local, op string) ([]*ir.Local, error) {
	if len(a) < len(b) {
		a, b = b, a
	}

	for i := range b {
		if err := c.slots.Union(a[i], b[i]); err != nil {
			return nil, &TypeShapeError{Op: op, Want: a[i].Type().String(), Got: b[i].Type().String()}
		}
	}

	return a, nil
}

// mergeResults picks the local holding each stack position after a
// conditional. Positions where both branches hold the same local pass it
// through and get a nil target. Otherwise an input found only at that
// position is reused, or a fresh local is made.
func (c *Compiler) mergeResults(inputs []*ir.Local, t, e *State) (targets []*ir.Local, results []ir.Node, fresh []*ir.Local, err error) {
	m := t.Len()

	targets = make([]*ir.Local, m)
	results = make([]ir.Node, m)
	used := map[int]bool{}

	for j := 0; j < m; j++ {
		tv, ev := t.stack[j], e.stack[j]

		if tl, ok := tv.(*ir.Local); ok {
			if el, ok := ev.(*ir.Local); ok && tl.Same(el) {
				results[j] = tl
				continue
			}
		}

		if tv.Type() == ir.TypeCode || ev.Type() == ir.TypeCode {
			return nil, nil, nil, &TypeShapeError{Op: "if$", Want: "value", Got: describe(firstCode(tv, ev))}
		}

		typ, err := ir.MergeTypes(slotType(tv.Type()), slotType(ev.Type()))
		if err != nil {
			return nil, nil, nil, &TypeShapeError{Op: "if$", Want: tv.Type().String(), Got: ev.Type().String()}
		}

		var r *ir.Local

		for _, v := range []ir.Node{tv, ev} {
			l, ok := v.(*ir.Local)
			if !ok || used[l.ID()] || !isOneOf(l, inputs) || !onlyAt(l, j, t.stack, e.stack) {
				continue
			}

			r = l
			break
		}

		if r == nil {
			r = c.slots.New(typ)
			fresh = append(fresh, r)
		} else if err := c.slots.Refine(r, typ); err != nil {
			return nil, nil, nil, &TypeShapeError{Op: "if$", Want: r.Type().String(), Got: typ.String()}
		}

		used[r.ID()] = true
		targets[j] = r
		results[j] = r
	}

	return targets, results, fresh, nil
}

// branchBody finishes a branch: placeholders for inputs are dropped and the
// stack is assigned to targets.
func (c *Compiler) branchBody(b *State, targets []*ir.Local) ([]ir.Node, error) {
	b.EliminateSideEffects(targets)

	assigns, err := b.assignTo(targets, "if$")
	if err != nil {
		return nil, err
	}

	body := append(b.body(), assigns...)

	if c.opts.optimize() {
		body = ir.Optimize(body)
	}

	return body, nil
}

// compileWhile compiles {cond} {body} while$.
//
// The condition must leave one more value than it takes. The body must leave
// as many values as it takes, in any form: a body leaving fewer is a complex
// body too, not only one leaving more. Values carried around the loop live
// in locals shared by both blocks. The condition's statements run before the
// loop and again at the end of every iteration.
func compileWhile(c *Compiler, st *State) error {
	bodyV, condV := st.Pop(), st.Pop()

	bodyB, ok := codeBlock(bodyV)
	if !ok {
		return &ControlFlowError{Construct: "while$", Reason: ReasonWhileBody, Fragment: describe(bodyV)}
	}

	condB, ok := codeBlock(condV)
	if !ok {
		return &ControlFlowError{Construct: "while$", Reason: ReasonWhileCond, Fragment: describe(condV)}
	}

	cs := st.Nested()
	if err := c.Evaluate(condB, cs); err != nil {
		return errors.Wrap(err, "while condition")
	}

	bs := st.Nested()
	if err := c.Evaluate(bodyB, bs); err != nil {
		return errors.Wrap(err, "while body")
	}

	if cs.Len()-len(cs.locals) != 1 {
		return &ControlFlowError{Construct: "while$", Reason: ReasonComplexCondition, Fragment: condB.String()}
	}

	if bs.Len() != len(bs.locals) {
		return &ControlFlowError{Construct: "while$", Reason: ReasonComplexBody, Fragment: bodyB.String()}
	}

	cond, err := cs.PopAs(ir.TypeBool, "while$")
	if err != nil {
		return errors.Wrap(err, "while condition")
	}

	m := len(cs.locals)
	if len(bs.locals) > m {
		m = len(bs.locals)
	}

	cs.Pad(m - len(cs.locals))
	bs.Pad(m - len(bs.locals))

	carried, err := c.unifyInputs(cs.locals, bs.locals, "while$")
	if err != nil {
		return err
	}

	targets := make([]*ir.Local, m)
	for j := range targets {
		targets[j] = carried[m-1-j]
	}

	for j, r := range targets {
		for _, v := range []ir.Node{cs.stack[j], bs.stack[j]} {
			if v.Type() == ir.TypeCode {
				return &TypeShapeError{Op: "while$", Want: "value", Got: describe(v)}
			}

			if err := c.slots.Refine(r, slotType(v.Type())); err != nil {
				return &TypeShapeError{Op: "while$", Want: r.Type().String(), Got: v.Type().String()}
			}
		}
	}

	if err := st.bind(carried, "while$"); err != nil {
		return errors.Wrap(err, "while inputs")
	}

	cs.EliminateSideEffects(targets)

	condAssign, err := cs.assignTo(targets, "while$")
	if err != nil {
		return errors.Wrap(err, "while condition")
	}

	condStmts := cs.body()

	if ir.Touches(cond, ir.Writes(condAssign...)) {
		flag := c.slots.New(ir.TypeBool)
		condStmts = append(condStmts, &ir.InitLocal{Slot: flag, Value: cond})
		cond = flag
	}

	condStmts = append(condStmts, condAssign...)

	bs.EliminateSideEffects(targets)

	bodyAssign, err := bs.assignTo(targets, "while$")
	if err != nil {
		return errors.Wrap(err, "while body")
	}

	body := append(bs.body(), bodyAssign...)
	body = append(body, reassign(condStmts)...)

	if c.opts.optimize() {
		body = ir.Optimize(body)
		cond = ir.Simplify(cond)
	}

	tlog.V("eval").Printw("while", "carried", m, "cond_stmts", len(condStmts), "body", len(body))

	for _, s := range condStmts {
		st.Add(s)
	}

	st.Add(&ir.Loop{Cond: cond, Body: body})

	for _, r := range targets {
		st.Push(r)
	}

	return nil
}

// reassign turns top level declarations into assignments so statements can
// be repeated in a nested scope without shadowing.
func reassign(stmts []ir.Node) []ir.Node {
	res := make([]ir.Node, 0, len(stmts))

	for _, s := range stmts {
		if init, ok := s.(*ir.InitLocal); ok {
			if init.Value == nil {
				continue
			}

			s = &ir.AssignLocal{Slot: init.Slot, Value: init.Value}
		}

		res = append(res, s)
	}

	return res
}

func isOneOf(l *ir.Local, list []*ir.Local) bool {
	for _, x := range list {
		if l.Same(x) {
			return true
		}
	}
	return false
}

// onlyAt reports whether l appears on the stacks at position j only.
func onlyAt(l *ir.Local, j int, stacks ...[]ir.Node) bool {
	for _, s := range stacks {
		for k, v := range s {
			if k == j {
				continue
			}
			if o, ok := v.(*ir.Local); ok && o.Same(l) {
				return false
			}
		}
	}
	return true
}

func firstCode(a, b ir.Node) ir.Node {
	if a.Type() == ir.TypeCode {
		return a
	}
	return b
}
